package bus

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xkilldash9x/actiongate/internal/config"
	"go.uber.org/zap"
)

var (
	// ErrTimeout is returned when a wait elapses without a message.
	ErrTimeout = errors.New("bus: timed out waiting for message")
	// ErrClosed is returned by operations on a closed bus or subscription.
	ErrClosed = errors.New("bus: closed")
	// ErrNotInitialized is returned by Instance before Init.
	ErrNotInitialized = errors.New("bus: not initialized")
	// ErrInvalidMessage is returned when publishing a message without a type.
	ErrInvalidMessage = errors.New("bus: invalid message")
)

const (
	defaultHistoryCapacity  = 1000
	defaultSubscriberBuffer = 256
)

// SubscriberStats describes one live subscription.
type SubscriberStats struct {
	SubscriptionID string `json:"subscription_id"`
	SubscriberID   string `json:"subscriber_id"`
	Received       uint64 `json:"received"`
	Dropped        uint64 `json:"dropped"`
	Pending        int    `json:"pending"`
}

// Stats is a consistent snapshot of bus counters.
type Stats struct {
	Sent            uint64            `json:"sent"`
	Received        uint64            `json:"received"`
	Dropped         uint64            `json:"dropped"`
	SubscriberCount int               `json:"subscriber_count"`
	HistorySize     int               `json:"history_size"`
	HistoryCapacity int               `json:"history_capacity"`
	Subscribers     []SubscriberStats `json:"subscribers"`
}

// Bus is an in-process publish/subscribe hub with a bounded history.
//
// Publish hands each message to every matching subscription without
// blocking; a subscription whose queue is full loses that message and the
// loss is counted. All mutations share one lock, so each subscriber sees
// messages in publish order.
type Bus struct {
	logger     *zap.Logger
	bufferSize int
	now        func() time.Time

	mu       sync.RWMutex
	subs     map[string]*Subscription
	order    []*Subscription
	history  *ring
	sent     uint64
	received uint64
	dropped  uint64
	closed   bool
}

// New creates a bus sized by cfg. Non-positive sizes fall back to defaults.
func New(cfg config.BusConfig, logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	capacity := cfg.HistoryCapacity
	if capacity <= 0 {
		capacity = defaultHistoryCapacity
	}
	buffer := cfg.SubscriberBuffer
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	return &Bus{
		logger:     logger.Named("message_bus"),
		bufferSize: buffer,
		now:        func() time.Time { return time.Now().UTC() },
		subs:       make(map[string]*Subscription),
		history:    newRing(capacity),
	}
}

// Subscribe registers subscriberID for messages matching filter. Messages
// addressed to a specific RecipientID only reach subscriptions with that
// subscriber id.
func (b *Bus) Subscribe(subscriberID string, filter Filter) (*Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}
	sub := &Subscription{
		id:           uuid.New().String(),
		subscriberID: subscriberID,
		filter:       filter,
		ch:           make(chan Message, b.bufferSize),
		bus:          b,
	}
	b.subs[sub.id] = sub
	b.order = append(b.order, sub)

	b.logger.Debug("Subscriber registered",
		zap.String("subscription_id", sub.id),
		zap.String("subscriber_id", subscriberID),
		zap.String("role", string(filter.Role)),
	)
	return sub, nil
}

func (b *Bus) unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[sub.id]; !ok {
		return
	}
	delete(b.subs, sub.id)
	for i, s := range b.order {
		if s == sub {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
	close(sub.ch)
	b.logger.Debug("Subscriber removed", zap.String("subscription_id", sub.id))
}

// Publish assigns an id and timestamp when missing, records the message in
// history and queues it for every matching subscription. It never blocks.
func (b *Bus) Publish(msg Message) (Message, error) {
	if msg.Type == "" {
		return Message{}, fmt.Errorf("%w: type is required", ErrInvalidMessage)
	}
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return Message{}, ErrClosed
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = b.now()
	}

	b.history.push(msg)
	b.sent++

	for _, sub := range b.order {
		if !sub.accepts(msg) {
			continue
		}
		select {
		case sub.ch <- msg:
			sub.received.Add(1)
			b.received++
		default:
			sub.dropped.Add(1)
			b.dropped++
			b.logger.Warn("Subscriber queue full; message dropped",
				zap.String("subscriber_id", sub.subscriberID),
				zap.String("message_id", msg.ID),
				zap.String("type", string(msg.Type)),
			)
		}
	}
	return msg, nil
}

// Broadcast publishes msg with its recipient fields cleared.
func (b *Bus) Broadcast(msg Message) (Message, error) {
	msg.RecipientRole = ""
	msg.RecipientID = ""
	return b.Publish(msg)
}

// History returns the retained messages matching filter, oldest first.
func (b *Bus) History(filter Filter) []Message {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []Message
	b.history.each(func(m Message) {
		if filter.Matches(m) {
			out = append(out, m)
		}
	})
	return out
}

// ClearHistory discards all retained messages. Counters are kept.
func (b *Bus) ClearHistory() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.history.reset()
}

// Statistics returns a snapshot of the bus counters.
func (b *Bus) Statistics() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	st := Stats{
		Sent:            b.sent,
		Received:        b.received,
		Dropped:         b.dropped,
		SubscriberCount: len(b.order),
		HistorySize:     b.history.len(),
		HistoryCapacity: b.history.cap(),
		Subscribers:     make([]SubscriberStats, 0, len(b.order)),
	}
	for _, sub := range b.order {
		st.Subscribers = append(st.Subscribers, SubscriberStats{
			SubscriptionID: sub.id,
			SubscriberID:   sub.subscriberID,
			Received:       sub.Received(),
			Dropped:        sub.Dropped(),
			Pending:        sub.Len(),
		})
	}
	return st
}

// Close rejects further publishes and closes every subscription.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for _, sub := range b.order {
		sub.closed.Store(true)
		close(sub.ch)
	}
	b.subs = make(map[string]*Subscription)
	b.order = nil
	b.logger.Debug("Message bus closed")
}
