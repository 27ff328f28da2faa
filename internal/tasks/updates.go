package tasks

import (
	"sync"

	"github.com/desertthunder/karaoke/internal/shared"
)

// StatusUpdate represents a progress event during a conversion.
//
// Serialized as-is onto the SSE stream: Message is always present, Progress
// (0-100) and Duration are optional. Events from concurrent jobs interleave
// on the shared stream; JobID tells them apart.
type StatusUpdate struct {
	JobID    string `json:"job_id,omitempty"`
	Message  string `json:"message"`
	Progress int    `json:"progress,omitempty"` // 0-100; zero means not reported
	Duration string `json:"duration,omitempty"` // e.g. "3 minutes 32 seconds"
	URL      string `json:"url,omitempty"`
}

// subscriberBuffer sizes each subscriber's event channel. A subscriber that
// falls further behind than this drops events rather than stall the pipeline.
const subscriberBuffer = 16

// Subscriber is a registered listener on a [Broadcaster].
type Subscriber struct {
	id     string
	events chan StatusUpdate
}

// Events returns the channel updates are delivered on. It is closed on
// unsubscribe.
func (s *Subscriber) Events() <-chan StatusUpdate {
	return s.events
}

// Broadcaster fans out status updates to every registered subscriber.
//
// It is constructed once at process startup and passed by reference to the
// engine that publishes and the handlers that serve the stream. Delivery is
// best-effort and carries no backlog: a listener subscribed after an event
// was published never sees it, and a full subscriber buffer drops the event
// for that subscriber only.
type Broadcaster struct {
	mu          sync.Mutex
	subscribers []*Subscriber
}

// NewBroadcaster creates an empty Broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{}
}

// Subscribe registers a new listener and returns its handle.
func (b *Broadcaster) Subscribe() *Subscriber {
	sub := &Subscriber{
		id:     shared.GenerateID(),
		events: make(chan StatusUpdate, subscriberBuffer),
	}

	b.mu.Lock()
	b.subscribers = append(b.subscribers, sub)
	b.mu.Unlock()

	return sub
}

// Unsubscribe removes a listener and closes its channel. Safe to call once
// per handle; unknown handles are ignored.
func (b *Broadcaster) Unsubscribe(sub *Subscriber) {
	if sub == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for i, s := range b.subscribers {
		if s.id == sub.id {
			b.subscribers = append(b.subscribers[:i], b.subscribers[i+1:]...)
			close(s.events)
			return
		}
	}
}

// Publish delivers update to every currently-registered subscriber in
// registration order without blocking on any of them.
func (b *Broadcaster) Publish(update StatusUpdate) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, sub := range b.subscribers {
		select {
		case sub.events <- update:
		default:
			// Slow subscriber; drop rather than stall the pipeline.
		}
	}
}

// Len returns the number of registered subscribers.
func (b *Broadcaster) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}
