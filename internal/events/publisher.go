package events

import (
	"slices"
	"sync"
)

// GlobalTaskID subscribes to every task's events.
const GlobalTaskID = "*"

// Publisher fans events out to per-task subscribers.
type Publisher interface {
	// Publish delivers an event to subscribers of its task and to
	// global subscribers. Never blocks.
	Publish(event Event)
	// Subscribe returns a channel carrying events for one task, or for
	// all tasks when taskID is GlobalTaskID.
	Subscribe(taskID string) <-chan Event
	// Unsubscribe detaches and closes a channel returned by Subscribe.
	Unsubscribe(taskID string, ch <-chan Event)
	// Close closes every subscription; later publishes are dropped.
	Close()
}

const defaultSubscriberBuffer = 100

// subscription is one attached listener. The channel doubles as its
// identity for Unsubscribe.
type subscription struct {
	out chan Event
}

// MemoryPublisher is the in-process Publisher used by the orchestrator,
// the CLI stream and the websocket layer.
type MemoryPublisher struct {
	mu     sync.RWMutex
	byTask map[string][]*subscription
	buffer int
	closed bool
}

// PublisherOption configures a MemoryPublisher.
type PublisherOption func(*MemoryPublisher)

// WithBufferSize sets how many undelivered events a subscriber may lag
// behind before publishes to it are dropped.
func WithBufferSize(size int) PublisherOption {
	return func(p *MemoryPublisher) { p.buffer = size }
}

// NewMemoryPublisher creates an in-memory publisher.
func NewMemoryPublisher(opts ...PublisherOption) *MemoryPublisher {
	p := &MemoryPublisher{
		byTask: make(map[string][]*subscription),
		buffer: defaultSubscriberBuffer,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish delivers the event to its task's subscribers and to global
// subscribers. A subscriber whose buffer is full misses the event; a
// slow dashboard must never stall the orchestrator.
func (p *MemoryPublisher) Publish(event Event) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return
	}

	deliver(p.byTask[event.TaskID], event)
	if event.TaskID != GlobalTaskID {
		deliver(p.byTask[GlobalTaskID], event)
	}
}

func deliver(subs []*subscription, event Event) {
	for _, sub := range subs {
		select {
		case sub.out <- event:
		default:
		}
	}
}

// Subscribe attaches a listener for one task (or all, via GlobalTaskID).
// After Close the returned channel is already closed.
func (p *MemoryPublisher) Subscribe(taskID string) <-chan Event {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		dead := make(chan Event)
		close(dead)
		return dead
	}

	sub := &subscription{out: make(chan Event, p.buffer)}
	p.byTask[taskID] = append(p.byTask[taskID], sub)
	return sub.out
}

// Unsubscribe detaches the channel and closes it. Unknown channels are
// ignored, so unsubscribing twice is safe.
func (p *MemoryPublisher) Unsubscribe(taskID string, ch <-chan Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	subs := p.byTask[taskID]
	for i, sub := range subs {
		if sub.out == ch {
			p.byTask[taskID] = slices.Delete(subs, i, i+1)
			close(sub.out)
			return
		}
	}
}

// Close closes all subscriptions. Idempotent.
func (p *MemoryPublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true

	for _, subs := range p.byTask {
		for _, sub := range subs {
			close(sub.out)
		}
	}
	p.byTask = make(map[string][]*subscription)
}

// NopPublisher discards all events.
type NopPublisher struct{}

func (NopPublisher) Publish(Event)                    {}
func (NopPublisher) Subscribe(string) <-chan Event    { return make(chan Event) }
func (NopPublisher) Unsubscribe(string, <-chan Event) {}
func (NopPublisher) Close()                           {}
