package streaming

import "sync"

// Event names published by the manager.
const (
	EventStreamIn        = "stream_in"
	EventStreamOut       = "stream_out"
	EventCancel          = "cancel"
	EventStreamOutForced = "stream_out_forced"
	EventOverBudget      = "over_budget"
	EventLevelAdded      = "level_added"
	EventLevelRemoved    = "level_removed"
	EventTrackedChange   = "tracked_change"
)

// Event represents a streaming event.
// Minimal and stable: name + texture and optional fields via key/values.
type Event struct {
	Name    string
	Texture string
	Fields  map[string]any
}

// EventPublisher receives events from the manager. Publish is called with
// the manager lock held: implementations must be non-blocking and must not
// call back into the manager.
type EventPublisher interface {
	Publish(Event)
}

// noopPublisher is the default; it drops events.
type noopPublisher struct{}

func (noopPublisher) Publish(Event) {}

// MemoryPublisher stores events in-memory for tests.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryPublisher() *MemoryPublisher { return &MemoryPublisher{} }

func (p *MemoryPublisher) Publish(e Event) {
	p.mu.Lock()
	p.events = append(p.events, e)
	p.mu.Unlock()
}

func (p *MemoryPublisher) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Event, len(p.events))
	copy(out, p.events)
	return out
}

// MultiPublisher fans an event out to several publishers.
type MultiPublisher []EventPublisher

func (m MultiPublisher) Publish(e Event) {
	for _, p := range m {
		if p != nil {
			p.Publish(e)
		}
	}
}
