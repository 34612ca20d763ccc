package events

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cuemby/burrow/pkg/metrics"
)

// EventType represents the type of event
type EventType string

const (
	EventVolumeCreated        EventType = "volume.created"
	EventVolumeAttached       EventType = "volume.attached"
	EventDatasetCreated       EventType = "dataset.created"
	EventDatasetFailed        EventType = "dataset.failed"
	EventConvergenceCompleted EventType = "convergence.completed"
)

// subscriptionBuffer is the number of undelivered events a subscription holds
const subscriptionBuffer = 64

// Event represents something that happened on this node
type Event struct {
	ID        string            `json:"id"`
	Type      EventType         `json:"type"`
	Timestamp time.Time         `json:"timestamp"`
	Message   string            `json:"message"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// NewEvent creates an event with a fresh id
func NewEvent(eventType EventType, message string, metadata map[string]string) *Event {
	return &Event{
		ID:       uuid.New().String(),
		Type:     eventType,
		Message:  message,
		Metadata: metadata,
	}
}

// Subscription receives the events it was registered for on Events until
// it is closed or the broker stops
type Subscription struct {
	Events <-chan *Event

	ch      chan *Event
	only    map[EventType]bool
	broker  *Broker
	dropped uint64
}

func (s *Subscription) wants(t EventType) bool {
	return len(s.only) == 0 || s.only[t]
}

// Close detaches the subscription and closes Events. Closing twice is a no-op.
func (s *Subscription) Close() {
	s.broker.remove(s)
}

// Dropped returns how many events were discarded because Events was full
func (s *Subscription) Dropped() uint64 {
	s.broker.mu.RLock()
	defer s.broker.mu.RUnlock()
	return s.dropped
}

// Broker fans events out to subscriptions. Delivery happens on the
// publisher's goroutine and never blocks.
type Broker struct {
	mu      sync.RWMutex
	subs    map[*Subscription]struct{}
	stopped bool
}

// NewBroker creates a broker ready to publish
func NewBroker() *Broker {
	return &Broker{subs: make(map[*Subscription]struct{})}
}

// Subscribe registers for the given event types, or for every type when
// none are given. Subscribing to a stopped broker returns a closed subscription.
func (b *Broker) Subscribe(only ...EventType) *Subscription {
	ch := make(chan *Event, subscriptionBuffer)
	s := &Subscription{Events: ch, ch: ch, broker: b}
	if len(only) > 0 {
		s.only = make(map[EventType]bool, len(only))
		for _, t := range only {
			s.only[t] = true
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		close(ch)
		return s
	}
	b.subs[s] = struct{}{}
	return s
}

func (b *Broker) remove(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[s]; ok {
		delete(b.subs, s)
		close(s.ch)
	}
}

// Publish delivers event to every interested subscription. Events
// published after Stop are discarded.
func (b *Broker) Publish(event *Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	// The write lock guards the per-subscription drop counters
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return
	}

	for s := range b.subs {
		if !s.wants(event.Type) {
			continue
		}
		select {
		case s.ch <- event:
		default:
			s.dropped++
			metrics.EventsDroppedTotal.WithLabelValues(string(event.Type)).Inc()
		}
	}
}

// Stop closes every subscription. Further publishes are discarded.
func (b *Broker) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return
	}
	b.stopped = true
	for s := range b.subs {
		close(s.ch)
		delete(b.subs, s)
	}
}

// SubscriberCount returns the number of open subscriptions
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
