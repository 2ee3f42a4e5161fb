package swarm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xkilldash9x/actiongate/internal/bus"
	"go.uber.org/zap"
)

// defaultAwaitTimeout bounds awaits that were given no timeout.
const defaultAwaitTimeout = 5 * time.Second

// Role is the capability shared by the planner, executor and validator.
type Role interface {
	ID() string
	Kind() bus.Role
	// Start subscribes the role to its traffic and starts its dispatch loop.
	Start(ctx context.Context) error
	// Stop unsubscribes, drains queued messages and resolves pending awaits
	// to ErrCancelled.
	Stop() error
	Active() bool
}

// Voter picks an option index for a consensus question.
type Voter func(question string, options []string) int

// FirstOptionVoter always votes for the first option.
func FirstOptionVoter(string, []string) int { return 0 }

// RoleOption customizes a role at construction.
type RoleOption func(*endpoint)

// WithVoter replaces the role's consensus voter.
func WithVoter(v Voter) RoleOption {
	return func(e *endpoint) {
		if v != nil {
			e.voter = v
		}
	}
}

// WithRoleID overrides the generated role id.
func WithRoleID(id string) RoleOption {
	return func(e *endpoint) {
		if id != "" {
			e.id = id
		}
	}
}

type handlerFunc func(ctx context.Context, msg bus.Message)

// endpoint is the messaging machinery every role embeds: one subscription,
// one dispatch goroutine, and response waiters keyed by request id.
type endpoint struct {
	id     string
	kind   bus.Role
	scope  Scope
	bus    *bus.Bus
	logger *zap.Logger
	voter  Voter

	mu      sync.Mutex
	active  bool
	sub     *bus.Subscription
	cancel  context.CancelFunc
	done    chan struct{}
	waiters map[string]chan bus.Message
}

func newEndpoint(kind bus.Role, scope Scope, b *bus.Bus, logger *zap.Logger, opts []RoleOption) *endpoint {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &endpoint{
		id:    fmt.Sprintf("%s-%s-%s", kind, scope.TaskID, uuid.New().String()[:8]),
		kind:  kind,
		scope: scope,
		bus:   b,
		voter: FirstOptionVoter,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = logger.Named(string(kind)).With(
		zap.String("agent_id", e.id),
		zap.String("task_id", scope.TaskID),
	)
	return e
}

func (e *endpoint) ID() string     { return e.id }
func (e *endpoint) Kind() bus.Role { return e.kind }

func (e *endpoint) Active() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

func (e *endpoint) start(ctx context.Context, handle handlerFunc) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.active {
		return fmt.Errorf("%s is already active", e.id)
	}
	if e.bus == nil {
		return fmt.Errorf("%s has no message bus", e.id)
	}
	sub, err := e.bus.Subscribe(e.id, bus.Filter{
		Role:            e.kind,
		TaskID:          e.scope.TaskID,
		StepID:          e.scope.StepID,
		ExcludeSenderID: e.id,
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe %s: %w", e.id, err)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	e.sub = sub
	e.cancel = cancel
	e.done = make(chan struct{})
	e.waiters = make(map[string]chan bus.Message)
	e.active = true

	go e.run(loopCtx, sub, e.done, handle)
	e.logger.Info("Agent started")
	return nil
}

func (e *endpoint) stop() error {
	e.mu.Lock()
	if !e.active {
		e.mu.Unlock()
		return ErrRoleInactive
	}
	e.active = false
	cancel, done, sub := e.cancel, e.done, e.sub
	e.mu.Unlock()

	cancel()
	<-done
	sub.Close()
	if n := sub.Drain(); n > 0 {
		e.logger.Debug("Discarded queued messages on stop", zap.Int("count", n))
	}

	e.mu.Lock()
	for id, ch := range e.waiters {
		close(ch)
		delete(e.waiters, id)
	}
	e.mu.Unlock()

	e.logger.Info("Agent stopped")
	return nil
}

func (e *endpoint) run(ctx context.Context, sub *bus.Subscription, done chan struct{}, handle handlerFunc) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.C():
			if !ok {
				return
			}
			if e.deliver(msg) {
				continue
			}
			if msg.Type == bus.TypeConsensusRequest {
				if e.voter != nil {
					e.vote(msg)
				}
				continue
			}
			if handle != nil {
				handle(ctx, msg)
			}
		}
	}
}

// deliver hands a response to its waiter. The send happens under e.mu so it
// cannot race with stop closing the channel.
func (e *endpoint) deliver(msg bus.Message) bool {
	if msg.InResponseTo == "" {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	ch, ok := e.waiters[msg.InResponseTo]
	if !ok {
		return false
	}
	select {
	case ch <- msg:
	default:
		e.logger.Warn("Response waiter full; response dropped",
			zap.String("message_id", msg.ID),
			zap.String("in_response_to", msg.InResponseTo),
		)
	}
	return true
}

// expect registers a waiter for responses to requestID. Register before
// publishing the request so an early response is not lost.
func (e *endpoint) expect(requestID string, capacity int) (<-chan bus.Message, error) {
	if capacity < 1 {
		capacity = 1
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.active {
		return nil, ErrRoleInactive
	}
	ch := make(chan bus.Message, capacity)
	e.waiters[requestID] = ch
	return ch, nil
}

func (e *endpoint) waiter(requestID string) (<-chan bus.Message, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ch, ok := e.waiters[requestID]
	return ch, ok
}

func (e *endpoint) forget(requestID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.waiters, requestID)
}

// send stamps msg with the role's identity and scope and publishes it.
func (e *endpoint) send(msg bus.Message) (bus.Message, error) {
	if !e.Active() {
		return bus.Message{}, ErrRoleInactive
	}
	msg.SenderRole = e.kind
	msg.SenderID = e.id
	msg.TaskID = e.scope.TaskID
	msg.StepID = e.scope.StepID

	out, err := e.bus.Publish(msg)
	if err != nil {
		return bus.Message{}, fmt.Errorf("%s failed to publish %s: %w", e.id, msg.Type, err)
	}
	e.logger.Debug("Message sent",
		zap.String("message_id", out.ID),
		zap.String("type", string(out.Type)),
		zap.String("recipient_role", string(out.RecipientRole)),
	)
	return out, nil
}

// reportError broadcasts an ERROR message. Failures are only logged.
func (e *endpoint) reportError(code ErrorCode, message string) {
	_, err := e.send(bus.Message{
		Type:     bus.TypeError,
		Priority: bus.PriorityCritical,
		Payload:  ErrorPayload{Code: code, Message: message, RoleID: e.id},
	})
	if err != nil {
		e.logger.Error("Failed to publish error message", zap.String("code", string(code)), zap.Error(err))
	}
}

func (e *endpoint) vote(msg bus.Message) {
	req, ok := msg.Payload.(ConsensusRequestPayload)
	if !ok || len(req.Options) == 0 {
		e.logger.Warn("Ignoring malformed consensus request", zap.String("message_id", msg.ID))
		return
	}
	choice := e.voter(req.Question, req.Options)
	e.logger.Debug("Casting consensus vote", zap.String("question", req.Question), zap.Int("vote", choice))

	_, err := e.send(bus.Message{
		Type:          bus.TypeConsensusResponse,
		RecipientRole: bus.RoleCoordinator,
		RecipientID:   msg.SenderID,
		InResponseTo:  msg.ID,
		Priority:      bus.PriorityHigh,
		Payload:       ConsensusResponsePayload{VoterID: e.id, Vote: choice},
	})
	if err != nil {
		e.logger.Warn("Failed to send consensus vote", zap.Error(err))
	}
}

// awaitResponse waits for one message on ch. A closed channel means the
// owning role was stopped.
func awaitResponse(ctx context.Context, ch <-chan bus.Message, timeout time.Duration) (bus.Message, error) {
	if timeout <= 0 {
		timeout = defaultAwaitTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case msg, ok := <-ch:
		if !ok {
			return bus.Message{}, ErrCancelled
		}
		return msg, nil
	case <-timer.C:
		return bus.Message{}, bus.ErrTimeout
	case <-ctx.Done():
		return bus.Message{}, ctx.Err()
	}
}
