package pgpool

import "sync"

// EventKind identifies one of the lifecycle events a Pool or Connection can
// emit, letting callers and tests observe lifecycle transitions without
// polling internal state.
type EventKind int

const (
	EventConnectionCreated EventKind = iota
	EventConnectionAcquired
	EventConnectionReleased
	EventConnectionDestroyed
	EventConnectionAborted
	EventStarted
	EventStopped
)

func (k EventKind) String() string {
	switch k {
	case EventConnectionCreated:
		return "connection_created"
	case EventConnectionAcquired:
		return "connection_acquired"
	case EventConnectionReleased:
		return "connection_released"
	case EventConnectionDestroyed:
		return "connection_destroyed"
	case EventConnectionAborted:
		return "connection_aborted"
	case EventStarted:
		return "started"
	case EventStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Event describes a single lifecycle occurrence. Connection is nil for the
// pool-wide Started/Stopped events.
type Event struct {
	Kind       EventKind
	Connection *Connection
	Err        error
}

// EventHandler receives pool and connection lifecycle events.
type EventHandler func(Event)

// emitter is a small synchronous pub-sub registry, embedded by both Pool and
// Connection. Handlers are invoked in registration order and must not block.
type emitter struct {
	mu       sync.RWMutex
	handlers map[EventKind][]EventHandler
}

func newEmitter() *emitter {
	return &emitter{handlers: make(map[EventKind][]EventHandler)}
}

// On registers handler to be called whenever an event of kind is emitted.
func (e *emitter) On(kind EventKind, handler EventHandler) {
	if handler == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[kind] = append(e.handlers[kind], handler)
}

func (e *emitter) emit(evt Event) {
	e.mu.RLock()
	handlers := append([]EventHandler(nil), e.handlers[evt.Kind]...)
	e.mu.RUnlock()
	for _, h := range handlers {
		h(evt)
	}
}
