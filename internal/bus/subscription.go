package bus

import (
	"context"
	"sync/atomic"
	"time"
)

// Subscription is a subscriber's queue of matching messages. Messages arrive
// in publish order. Close it when done.
type Subscription struct {
	id           string
	subscriberID string
	filter       Filter
	ch           chan Message
	bus          *Bus

	received atomic.Uint64
	dropped  atomic.Uint64
	closed   atomic.Bool
}

// ID is the unique id of this subscription.
func (s *Subscription) ID() string { return s.id }

// SubscriberID is the participant id the subscription was registered for.
func (s *Subscription) SubscriberID() string { return s.subscriberID }

// Filter returns the filter the subscription was created with.
func (s *Subscription) Filter() Filter { return s.filter }

// C exposes the queue for use in select statements. It is closed when the
// subscription is closed.
func (s *Subscription) C() <-chan Message { return s.ch }

// Len returns the number of queued messages.
func (s *Subscription) Len() int { return len(s.ch) }

// Received returns how many messages were handed to this subscription.
func (s *Subscription) Received() uint64 { return s.received.Load() }

// Dropped returns how many matching messages were discarded because the
// queue was full.
func (s *Subscription) Dropped() uint64 { return s.dropped.Load() }

// Receive waits for the next message. A timeout of zero or less waits until
// ctx is done. It returns ErrTimeout, ErrClosed or the context's error.
func (s *Subscription) Receive(ctx context.Context, timeout time.Duration) (Message, error) {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case msg, ok := <-s.ch:
		if !ok {
			return Message{}, ErrClosed
		}
		return msg, nil
	case <-expired:
		return Message{}, ErrTimeout
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

// TryReceive returns the next queued message without waiting.
func (s *Subscription) TryReceive() (Message, bool) {
	select {
	case msg, ok := <-s.ch:
		return msg, ok
	default:
		return Message{}, false
	}
}

// Drain discards queued messages and returns how many were dropped.
func (s *Subscription) Drain() int {
	n := 0
	for {
		if _, ok := s.TryReceive(); !ok {
			return n
		}
		n++
	}
}

// Close unsubscribes. Queued messages stay readable until drained; further
// receives then report ErrClosed. Close is idempotent.
func (s *Subscription) Close() {
	if s.closed.CompareAndSwap(false, true) {
		s.bus.unsubscribe(s)
	}
}

// accepts reports whether msg should be queued. Callers hold the bus lock.
func (s *Subscription) accepts(msg Message) bool {
	if msg.RecipientID != "" && msg.RecipientID != s.subscriberID {
		return false
	}
	return s.filter.Matches(msg)
}
