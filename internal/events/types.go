package events

// Event type constants for kelindar/event.
const (
	TypeBackendFallback uint32 = iota + 1
	TypeProducerState
	TypeSecondElapsed
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// BackendFallbackEvent fires once when the encoder degrades from a hardware
// backend to software for the rest of the process lifetime.
type BackendFallbackEvent struct {
	From   string `json:"from"`
	Reason string `json:"reason"`
}

// Type returns the event type identifier for BackendFallbackEvent.
func (e BackendFallbackEvent) Type() uint32 { return TypeBackendFallback }

// ProducerStateEvent fires when the observed producer liveness flag flips.
type ProducerStateEvent struct {
	Sink   string `json:"sink"`
	Online bool   `json:"online"`
}

// Type returns the event type identifier for ProducerStateEvent.
func (e ProducerStateEvent) Type() uint32 { return TypeProducerState }

// SecondElapsedEvent carries the frame count of a just-completed wall
// second, published on the first frame of the next second.
type SecondElapsedEvent struct {
	Sink   string `json:"sink"`
	Second int64  `json:"second"`
	FPS    uint   `json:"fps"`
}

// Type returns the event type identifier for SecondElapsedEvent.
func (e SecondElapsedEvent) Type() uint32 { return TypeSecondElapsed }
