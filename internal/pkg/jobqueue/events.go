package jobqueue

import (
	"sync"
	"time"
)

// EventType tags queue lifecycle broadcasts.
type EventType string

const (
	EventJobCompleted EventType = "job.completed"
	EventJobFailed    EventType = "job.failed"
	EventJobStuck     EventType = "job.stuck"
	EventQueuePaused  EventType = "queue.paused"
	EventQueueResumed EventType = "queue.resumed"
	EventError        EventType = "error"
)

// QueueEvent is a transient broadcast. It is never persisted; whoever is
// subscribed at publish time gets it, everyone else misses it.
type QueueEvent struct {
	Type      EventType              `json:"type"`
	Queue     string                 `json:"queue"`
	JobID     string                 `json:"jobId,omitempty"`
	Message   string                 `json:"message"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// Subscription is one observer's handle on the bus. Events arrive on C.
type Subscription struct {
	C <-chan QueueEvent

	id  int
	ch  chan QueueEvent
	bus *EventBus
}

// Unsubscribe detaches the observer and closes its channel. Safe to call
// once per subscription from any goroutine.
func (s *Subscription) Unsubscribe() {
	s.bus.unsubscribe(s.id)
}

// EventBus is an in-process multicast of QueueEvents. Delivery is at most
// once and best effort: a subscriber that cannot keep up drops events rather
// than blocking publishers.
type EventBus struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan QueueEvent
}

const subscriberBuffer = 64

func NewEventBus() *EventBus {
	return &EventBus{subs: make(map[int]chan QueueEvent)}
}

func (b *EventBus) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	ch := make(chan QueueEvent, subscriberBuffer)
	b.subs[b.nextID] = ch
	return &Subscription{C: ch, id: b.nextID, ch: ch, bus: b}
}

func (b *EventBus) unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}

// Publish fans the event out to all current subscribers. With zero
// subscribers the event is simply lost; there is no replay buffer.
func (b *EventBus) Publish(event QueueEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
			// Subscriber buffer full, drop for this observer.
		}
	}
}

// SubscriberCount returns the number of attached observers.
func (b *EventBus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
