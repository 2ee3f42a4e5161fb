package swarm

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/xkilldash9x/actiongate/api/schemas"
	"github.com/xkilldash9x/actiongate/internal/bus"
	"github.com/xkilldash9x/actiongate/internal/config"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ExecutionOutcome is what the execution collaborator reports for an action.
type ExecutionOutcome struct {
	Success bool
	Error   string
	Result  map[string]interface{}
}

// ActionExecutor performs an approved action against the browser. A returned
// error is an infrastructure failure and aborts the cycle; an unsuccessful
// outcome is an ordinary action failure.
type ActionExecutor interface {
	Execute(ctx context.Context, action schemas.Action) (ExecutionOutcome, error)
}

// ActionExecutorFunc adapts a function to ActionExecutor.
type ActionExecutorFunc func(ctx context.Context, action schemas.Action) (ExecutionOutcome, error)

func (f ActionExecutorFunc) Execute(ctx context.Context, action schemas.Action) (ExecutionOutcome, error) {
	return f(ctx, action)
}

// ExecutorRole asks the validator for approval and runs approved actions.
type ExecutorRole struct {
	*endpoint
	exec    ActionExecutor
	cfg     config.SwarmConfig
	now     func() time.Time
	limiter *rate.Limiter
}

var _ Role = (*ExecutorRole)(nil)

// NewExecutorRole creates an executor bound to scope. exec may be nil when the
// role only proposes actions.
func NewExecutorRole(b *bus.Bus, exec ActionExecutor, cfg config.SwarmConfig, scope Scope, logger *zap.Logger, opts ...RoleOption) *ExecutorRole {
	x := &ExecutorRole{
		endpoint: newEndpoint(bus.RoleExecutor, scope, b, logger, opts),
		exec:     exec,
		cfg:      cfg,
		now:      time.Now,
	}
	if cfg.ExecutionRate > 0 {
		x.limiter = rate.NewLimiter(rate.Limit(cfg.ExecutionRate), 1)
	}
	return x
}

// Start implements Role.
func (x *ExecutorRole) Start(ctx context.Context) error { return x.start(ctx, nil) }

// Stop implements Role.
func (x *ExecutorRole) Stop() error { return x.stop() }

// ProposeActionExecution publishes an ACTION_PROPOSAL to the validator and
// returns its message id for AwaitDecision.
func (x *ExecutorRole) ProposeActionExecution(ctx context.Context, action schemas.Action, index int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	proposalID := uuid.New().String()
	if _, err := x.expect(proposalID, 1); err != nil {
		return "", err
	}

	risk := RiskLow
	if isHighRiskAction(action.Type, x.cfg) {
		risk = RiskHigh
	}
	reasoning := action.Reasoning
	if reasoning == "" {
		reasoning = fmt.Sprintf("Step %d of the approved plan", index)
	}

	if _, err := x.send(bus.Message{
		ID:               proposalID,
		Type:             bus.TypeActionProposal,
		RecipientRole:    bus.RoleValidator,
		Priority:         bus.PriorityHigh,
		RequiresResponse: true,
		Payload: ActionProposalPayload{
			Index:          index,
			Action:         action,
			Rationale:      reasoning,
			RiskAssessment: risk,
			Confidence:     x.cfg.ProposalConfidence,
		},
	}); err != nil {
		x.forget(proposalID)
		return "", err
	}
	x.logger.Debug("Action proposed", zap.String("proposal_id", proposalID), zap.Stringer("action", action))
	return proposalID, nil
}

// AwaitDecision waits for the validator's approval or rejection of a proposal.
func (x *ExecutorRole) AwaitDecision(ctx context.Context, proposalID string, timeout time.Duration) (ActionDecisionPayload, error) {
	ch, ok := x.waiter(proposalID)
	if !ok {
		if !x.Active() {
			return ActionDecisionPayload{}, ErrCancelled
		}
		return ActionDecisionPayload{}, fmt.Errorf("no pending proposal %q", proposalID)
	}
	defer x.forget(proposalID)

	msg, err := awaitResponse(ctx, ch, timeout)
	if err != nil {
		return ActionDecisionPayload{}, fmt.Errorf("awaiting decision for proposal %s: %w", proposalID, err)
	}
	decision, ok := msg.Payload.(ActionDecisionPayload)
	if !ok {
		return ActionDecisionPayload{}, fmt.Errorf("proposal %s: unexpected decision payload %T", proposalID, msg.Payload)
	}
	decision.Approved = decision.Approved && msg.Type == bus.TypeActionApproval
	return decision, nil
}

// Execute runs an approved action through the execution collaborator and
// broadcasts the EXECUTION_RESULT. A collaborator error is also broadcast as
// an ERROR message.
func (x *ExecutorRole) Execute(ctx context.Context, action schemas.Action, index int) (ExecutionOutcome, error) {
	if !x.Active() {
		return ExecutionOutcome{}, ErrRoleInactive
	}
	if x.exec == nil {
		return ExecutionOutcome{}, ErrNoExecutor
	}

	if x.limiter != nil {
		if err := x.limiter.Wait(ctx); err != nil {
			return ExecutionOutcome{}, fmt.Errorf("waiting for execution slot: %w", err)
		}
	}

	start := x.now()
	outcome, err := x.exec.Execute(ctx, action)
	if err != nil {
		outcome = ExecutionOutcome{Success: false, Error: err.Error()}
		x.logger.Error("Action executor failed", zap.Stringer("action", action), zap.Error(err))
		x.reportError(ErrCodeExecutionFailure, fmt.Sprintf("executing %s: %v", action, err))
	}

	if _, sendErr := x.send(bus.Message{
		Type:     bus.TypeExecutionResult,
		Priority: bus.PriorityHigh,
		Payload: ExecutionResultPayload{
			Index:    index,
			Action:   action,
			Success:  outcome.Success,
			Error:    outcome.Error,
			Result:   outcome.Result,
			Duration: x.now().Sub(start),
		},
	}); sendErr != nil {
		x.logger.Warn("Failed to publish execution result", zap.Error(sendErr))
	}
	return outcome, err
}

func isHighRiskAction(t schemas.ActionType, cfg config.SwarmConfig) bool {
	for _, name := range cfg.HighRiskActions {
		if string(t) == name {
			return true
		}
	}
	return false
}
