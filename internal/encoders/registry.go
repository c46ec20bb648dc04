package encoders

import (
	"sort"
	"strings"
	"sync"
)

// SoftwareName is the backend that is available on every platform.
const SoftwareName = "software"

// Descriptor describes one hardware-accelerated backend a platform offers.
type Descriptor struct {
	// Name is matched case-insensitively in SelectBackend.
	Name string

	// MaxInstances bounds how many concurrent encoder instances the
	// platform can allocate. Prepare clamps the worker count to it.
	MaxInstances int

	// New allocates one instance. Called once per worker slot.
	New func() (Instance, error)
}

var (
	registryMu sync.RWMutex
	registry   = map[string]Descriptor{}
)

// Register makes a hardware backend selectable. Platform support packages
// call this from init; tests register fakes.
func Register(desc Descriptor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[strings.ToLower(desc.Name)] = desc
}

// Unregister removes a backend. Intended for tests.
func Unregister(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(registry, strings.ToLower(name))
}

func lookup(name string) (Descriptor, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	desc, ok := registry[strings.ToLower(name)]
	return desc, ok
}

// Available returns the selectable backend set, software first, hardware
// backends sorted by name.
func Available() []Descriptor {
	registryMu.RLock()
	defer registryMu.RUnlock()

	out := make([]Descriptor, 0, len(registry)+1)
	out = append(out, Descriptor{Name: SoftwareName})
	hw := make([]Descriptor, 0, len(registry))
	for _, d := range registry {
		hw = append(hw, d)
	}
	sort.Slice(hw, func(i, j int) bool { return hw[i].Name < hw[j].Name })
	return append(out, hw...)
}
