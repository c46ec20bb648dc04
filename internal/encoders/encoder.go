// Package encoders implements the adaptive JPEG encoder backend. A backend
// is either the built-in software codec or a registered hardware
// accelerator with one instance per concurrent worker slot. Any hardware
// failure permanently degrades the whole backend to software for the rest
// of the process; only a fresh SelectBackend plus a successful Prepare can
// restore hardware.
package encoders

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/camkit/camsink/internal/events"
	"github.com/camkit/camsink/internal/frame"
	"github.com/camkit/camsink/internal/metrics"
)

// DefaultQuality is the JPEG quality used unless SetQuality overrides it.
const DefaultQuality = 80

var (
	// ErrInvalidBackend reports an unrecognized backend name.
	ErrInvalidBackend = errors.New("encoders: unknown backend")

	// ErrHardwareFailure reports that a hardware instance failed and the
	// backend has fallen back to software. The triggering frame is
	// dropped; the next frame takes the software path.
	ErrHardwareFailure = errors.New("encoders: hardware compression failed")

	// ErrBadWorkerIndex reports a compress call with an index outside the
	// prepared slot set.
	ErrBadWorkerIndex = errors.New("encoders: worker index out of range")
)

// Encoder compresses frame buffers at a configured quality through the
// selected backend. The active variant is the single piece of shared
// mutable state; it is an atomic flag so concurrent workers observing a
// fallback never see a torn value.
type Encoder struct {
	logger *slog.Logger
	bus    *events.Bus

	quality atomic.Int32

	// mu guards preparation and teardown; per-frame Compress never takes it.
	mu       sync.Mutex
	desired  string
	desc     Descriptor
	slots    []Instance
	hwActive atomic.Bool

	// slotLocks serialize access to each instance: calls on one instance
	// never run concurrently, so a config reload's PrepareLive cannot
	// overlap an in-flight Compress on the same slot.
	slotLocks []sync.Mutex

	// degraded records a failure-driven fallback. Only a fresh
	// SelectBackend clears it, so Prepare alone can't restore hardware.
	degraded atomic.Bool
}

// New returns an encoder with the software backend selected and the
// default quality. The bus may be nil.
func New(logger *slog.Logger, bus *events.Bus) *Encoder {
	e := &Encoder{
		logger:  logger,
		bus:     bus,
		desired: SoftwareName,
	}
	e.quality.Store(DefaultQuality)
	return e
}

// SelectBackend sets the desired variant for the next Prepare. The name is
// matched case-insensitively; "software" is always recognized.
func (e *Encoder) SelectBackend(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if strings.EqualFold(name, SoftwareName) {
		e.desired = SoftwareName
		e.desc = Descriptor{}
		e.degraded.Store(false)
		return nil
	}
	desc, ok := lookup(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrInvalidBackend, name)
	}
	e.desired = desc.Name
	e.desc = desc
	e.degraded.Store(false)
	return nil
}

// SetQuality updates the JPEG quality (1-100) for subsequent frames. A new
// quality reaches hardware instances on the next PrepareLive.
func (e *Encoder) SetQuality(quality int) error {
	if quality < 1 || quality > 100 {
		return fmt.Errorf("encoders: quality %d out of range 1..100", quality)
	}
	e.quality.Store(int32(quality))
	return nil
}

// Quality returns the configured JPEG quality.
func (e *Encoder) Quality() int {
	return int(e.quality.Load())
}

// Active returns the name of the backend frames are currently routed to.
func (e *Encoder) Active() string {
	if e.hwActive.Load() {
		return e.desc.Name
	}
	return SoftwareName
}

// Prepare allocates the worker slot set for the desired backend and
// returns the effective worker count. A hardware backend gets one instance
// per slot; requesting more workers than the platform supports clamps the
// count (logged, not fatal). Allocation is all-or-nothing: if any single
// instance fails, the whole set is released and the backend starts in
// software.
func (e *Encoder) Prepare(workers int) int {
	if workers < 1 {
		workers = 1
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.destroySlotsLocked()
	e.logger.Info("Using JPEG quality", "quality", e.Quality())

	if e.desired == SoftwareName {
		e.hwActive.Store(false)
		return workers
	}
	if e.degraded.Load() {
		e.logger.Warn("Backend previously degraded, staying on software until re-selected",
			"backend", e.desc.Name)
		e.hwActive.Store(false)
		return workers
	}

	if e.desc.MaxInstances > 0 && workers > e.desc.MaxInstances {
		e.logger.Info("Backend supports fewer workers, clamping",
			"backend", e.desc.Name, "requested", workers, "max", e.desc.MaxInstances)
		workers = e.desc.MaxInstances
	}

	slots := make([]Instance, workers)
	for i := range slots {
		inst, err := e.desc.New()
		if err != nil {
			e.logger.Error("Can't initialize selected backend, using software instead",
				"backend", e.desc.Name, "slot", i, "error", err)
			for j := 0; j < i; j++ {
				if slots[j] != nil {
					slots[j].Close()
				}
			}
			e.hwActive.Store(false)
			return workers
		}
		slots[i] = inst
	}

	e.slots = slots
	e.slotLocks = make([]sync.Mutex, len(slots))
	e.hwActive.Store(true)
	e.logger.Info("Hardware backend prepared", "backend", e.desc.Name, "workers", workers)
	return workers
}

// PrepareLive pushes the current capture geometry to every hardware
// instance. Callable repeatedly across format changes. Any single instance
// failure degrades the entire backend to software for the remainder of the
// process.
func (e *Encoder) PrepareLive(cfg DeviceConfig) {
	if !e.hwActive.Load() {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	quality := e.Quality()
	for i, inst := range e.slots {
		if inst == nil {
			continue
		}
		e.slotLocks[i].Lock()
		err := inst.PrepareLive(cfg, quality)
		e.slotLocks[i].Unlock()
		if err != nil {
			e.fallback(fmt.Sprintf("prepare_live failed on slot %d: %v", i, err))
			return
		}
	}
}

// Compress encodes src into dst as JPEG on behalf of the given worker
// slot. The software path is assumed to always succeed or be fatal; the
// hardware path flips the whole backend to software on failure and reports
// ErrHardwareFailure for this one call without retrying the same frame.
func (e *Encoder) Compress(worker int, src, dst *frame.Frame) error {
	if !e.hwActive.Load() {
		start := frame.Now()
		if err := compressSoftware(src, dst, e.Quality()); err != nil {
			return err
		}
		metrics.ObserveCompress(SoftwareName, frame.Now()-start)
		return nil
	}

	if worker < 0 || worker >= len(e.slots) || e.slots[worker] == nil {
		return fmt.Errorf("%w: %d", ErrBadWorkerIndex, worker)
	}

	start := frame.Now()
	e.slotLocks[worker].Lock()
	err := e.slots[worker].Compress(src, dst)
	e.slotLocks[worker].Unlock()
	if err != nil {
		e.fallback(fmt.Sprintf("compress failed on slot %d: %v", worker, err))
		return fmt.Errorf("%w: %v", ErrHardwareFailure, err)
	}
	metrics.ObserveCompress(e.desc.Name, frame.Now()-start)
	return nil
}

// fallback flips the backend to software exactly once. Instances stay
// allocated until Destroy so an in-flight Compress on another slot never
// dereferences a released handle.
func (e *Encoder) fallback(reason string) {
	e.degraded.Store(true)
	if !e.hwActive.CompareAndSwap(true, false) {
		return
	}
	e.logger.Error("Hardware backend failed, falling back to software for the rest of the process",
		"backend", e.desc.Name, "reason", reason)
	metrics.IncFallbacks()
	if e.bus != nil {
		e.bus.Publish(events.BackendFallbackEvent{From: e.desc.Name, Reason: reason})
	}
}

// Destroy releases every allocated hardware instance in ascending slot
// order, tolerating holes left by a partially-failed Prepare. Idempotent.
func (e *Encoder) Destroy() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.hwActive.Store(false)
	e.destroySlotsLocked()
}

func (e *Encoder) destroySlotsLocked() {
	for i, inst := range e.slots {
		if inst == nil {
			continue
		}
		e.slotLocks[i].Lock()
		err := inst.Close()
		e.slotLocks[i].Unlock()
		if err != nil {
			e.logger.Warn("Error releasing encoder instance", "slot", i, "error", err)
		}
		e.slots[i] = nil
	}
	e.slots = nil
	e.slotLocks = nil
}
