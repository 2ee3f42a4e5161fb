package swarm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xkilldash9x/actiongate/api/schemas"
	"github.com/xkilldash9x/actiongate/internal/bus"
	"github.com/xkilldash9x/actiongate/internal/config"
	"github.com/xkilldash9x/actiongate/internal/symbolic"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ActionStatus tracks one action through RunExecution.
type ActionStatus string

const (
	StatusProposed ActionStatus = "PROPOSED"
	StatusApproved ActionStatus = "APPROVED"
	StatusRejected ActionStatus = "REJECTED"
	StatusExecuted ActionStatus = "EXECUTED"
	StatusFailed   ActionStatus = "FAILED"
	StatusSkipped  ActionStatus = "SKIPPED"
)

// ActionOutcome is the final status of one action of a run.
type ActionOutcome struct {
	Index         int                    `json:"index"`
	Action        schemas.Action         `json:"action"`
	Status        ActionStatus           `json:"status"`
	Reason        string                 `json:"reason,omitempty"`
	Modifications map[string]interface{} `json:"modifications,omitempty"`
	Error         string                 `json:"error,omitempty"`
}

// ExecutionReport summarizes RunExecution. Executed actions are never rolled
// back, including when the run is aborted.
type ExecutionReport struct {
	Outcomes    []ActionOutcome `json:"outcomes"`
	Executed    int             `json:"executed"`
	Failed      int             `json:"failed"`
	Rejected    int             `json:"rejected"`
	Skipped     int             `json:"skipped"`
	Aborted     bool            `json:"aborted"`
	AbortReason string          `json:"abort_reason,omitempty"`
}

func (r *ExecutionReport) add(o ActionOutcome) {
	r.Outcomes = append(r.Outcomes, o)
	switch o.Status {
	case StatusExecuted:
		r.Executed++
	case StatusFailed:
		r.Failed++
	case StatusRejected:
		r.Rejected++
	case StatusSkipped:
		r.Skipped++
	}
}

func (r *ExecutionReport) skipFrom(actions []schemas.Action, start int, reason string) {
	for i := start; i < len(actions); i++ {
		r.add(ActionOutcome{Index: i, Action: actions[i], Status: StatusSkipped, Reason: reason})
	}
}

// RoleStatus reports one role in Statistics.
type RoleStatus struct {
	ID     string `json:"id"`
	Active bool   `json:"active"`
}

// Statistics is a snapshot of the coordinator and its bus.
type Statistics struct {
	Enabled     bool                    `json:"enable_swarm"`
	TaskID      string                  `json:"task_id"`
	StepID      string                  `json:"step_id,omitempty"`
	State       CycleState              `json:"state"`
	AbortReason string                  `json:"abort_reason,omitempty"`
	Roles       map[bus.Role]RoleStatus `json:"agents"`
	Bus         bus.Stats               `json:"message_bus"`
}

// CoordinatorOption customizes a Coordinator.
type CoordinatorOption func(*coordinatorOptions)

type coordinatorOptions struct {
	roleOpts map[bus.Role][]RoleOption
}

// WithRoleOptions passes options to the role of the given kind.
func WithRoleOptions(kind bus.Role, opts ...RoleOption) CoordinatorOption {
	return func(o *coordinatorOptions) {
		o.roleOpts[kind] = append(o.roleOpts[kind], opts...)
	}
}

// Coordinator runs a planner, an executor and a validator for one task step.
// With swarm mode disabled it behaves as a single agent: no messages are sent,
// plans and actions are approved, and consensus picks the first option.
type Coordinator struct {
	cfg    config.SwarmConfig
	scope  Scope
	bus    *bus.Bus
	exec   ActionExecutor
	logger *zap.Logger

	ep        *endpoint
	planner   *PlannerRole
	executor  *ExecutorRole
	validator *ValidatorRole
	cycle     *cycle

	mu          sync.Mutex
	abortReason string
}

// NewCoordinator wires the three roles for scope. b and planner are required
// when swarm mode is enabled. exec may be nil if RunExecution is not used.
func NewCoordinator(
	cfg config.SwarmConfig,
	b *bus.Bus,
	planner *symbolic.HybridPlanner,
	exec ActionExecutor,
	scope Scope,
	logger *zap.Logger,
	opts ...CoordinatorOption,
) (*Coordinator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Enabled {
		if b == nil {
			return nil, errors.New("swarm mode requires a message bus")
		}
		if planner == nil {
			return nil, errors.New("swarm mode requires a hybrid planner")
		}
	}
	o := coordinatorOptions{roleOpts: make(map[bus.Role][]RoleOption)}
	for _, opt := range opts {
		opt(&o)
	}

	c := &Coordinator{
		cfg:    cfg,
		scope:  scope,
		bus:    b,
		exec:   exec,
		logger: logger.Named("swarm").With(zap.String("task_id", scope.TaskID), zap.String("step_id", scope.StepID)),
		cycle:  newCycle(),
	}
	c.ep = newEndpoint(bus.RoleCoordinator, scope, b, logger, o.roleOpts[bus.RoleCoordinator])
	c.ep.voter = nil
	c.planner = NewPlannerRole(b, planner, cfg, scope, logger, o.roleOpts[bus.RolePlanner]...)
	c.executor = NewExecutorRole(b, exec, cfg, scope, logger, o.roleOpts[bus.RoleExecutor]...)
	c.validator = NewValidatorRole(b, planner, cfg, scope, logger, o.roleOpts[bus.RoleValidator]...)
	return c, nil
}

// Planner returns the planner role.
func (c *Coordinator) Planner() *PlannerRole { return c.planner }

// Executor returns the executor role.
func (c *Coordinator) Executor() *ExecutorRole { return c.executor }

// Validator returns the validator role.
func (c *Coordinator) Validator() *ValidatorRole { return c.validator }

// State returns the current cycle state.
func (c *Coordinator) State() CycleState { return c.cycle.State() }

// StateHistory returns every state the cycle has entered, in order.
func (c *Coordinator) StateHistory() []CycleState { return c.cycle.History() }

func (c *Coordinator) roles() []Role {
	return []Role{c.planner, c.executor, c.validator}
}

// Start launches the roles concurrently. ctx bounds their dispatch loops. A
// role that fails to start is reported with an ERROR message and the others
// keep running.
func (c *Coordinator) Start(ctx context.Context) error {
	if err := c.cycle.transition(StateStarted); err != nil {
		return err
	}
	if !c.cfg.Enabled {
		c.logger.Info("Swarm mode disabled; running as a single agent")
		return nil
	}
	if err := c.ep.start(ctx, c.handle); err != nil {
		return fmt.Errorf("failed to start coordinator: %w", err)
	}

	var g errgroup.Group
	for _, r := range c.roles() {
		g.Go(func() error {
			if err := r.Start(ctx); err != nil {
				c.logger.Error("Agent failed to start", zap.String("agent_id", r.ID()), zap.Error(err))
				c.ep.reportError(ErrCodeRoleStartFailed, fmt.Sprintf("%s: %v", r.ID(), err))
				return fmt.Errorf("%s: %w", r.ID(), err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		c.logger.Warn("Swarm started with inactive agents", zap.Error(err))
	}

	if _, err := c.ep.send(bus.Message{
		Type:     bus.TypeStatusUpdate,
		Priority: bus.PriorityNormal,
		Payload:  StatusUpdatePayload{Status: "swarm_started", Message: "Multi-agent swarm initialized"},
	}); err != nil {
		c.logger.Warn("Failed to announce swarm start", zap.Error(err))
	}
	c.logger.Info("Swarm started",
		zap.String("planner_id", c.planner.ID()),
		zap.String("executor_id", c.executor.ID()),
		zap.String("validator_id", c.validator.ID()),
	)
	return nil
}

// Stop stops every active role concurrently, then the coordinator itself.
// Pending awaits resolve to ErrCancelled. Stop is idempotent.
func (c *Coordinator) Stop() error {
	if c.cycle.State() == StateStopped {
		return nil
	}
	if c.cfg.Enabled && c.ep.Active() {
		var g errgroup.Group
		for _, r := range c.roles() {
			if !r.Active() {
				continue
			}
			g.Go(func() error {
				if err := r.Stop(); err != nil {
					c.logger.Error("Agent failed to stop", zap.String("agent_id", r.ID()), zap.Error(err))
					c.ep.reportError(ErrCodeRoleStopFailed, fmt.Sprintf("%s: %v", r.ID(), err))
					return fmt.Errorf("%s: %w", r.ID(), err)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			c.logger.Warn("Some agents did not stop cleanly", zap.Error(err))
		}
		if err := c.ep.stop(); err != nil && !errors.Is(err, ErrRoleInactive) {
			c.logger.Warn("Failed to stop coordinator endpoint", zap.Error(err))
		}
	}
	if err := c.cycle.transition(StateStopped); err != nil {
		return err
	}
	c.logger.Info("Swarm stopped")
	return nil
}

// CoordinatePlanning runs one planning round: the planner filters actions and
// the validator judges the plan. There are no retries; a rejected plan is
// returned with false.
func (c *Coordinator) CoordinatePlanning(ctx context.Context, state symbolic.PageState, actions []schemas.Action) ([]schemas.Action, bool, error) {
	if err := c.cycle.transition(StatePlanning); err != nil {
		return nil, false, err
	}
	if !c.cfg.Enabled {
		if err := c.cycle.transition(StatePlanValidated); err != nil {
			return nil, false, err
		}
		return append([]schemas.Action(nil), actions...), true, nil
	}

	c.validator.ObserveState(state)
	filtered, summary, err := c.planner.CreatePlan(ctx, state, actions)
	if err != nil {
		return nil, false, c.settlePlan(false, fmt.Errorf("planning failed: %w", err))
	}
	verdict, err := c.planner.AwaitPlanVerdict(ctx, summary.MessageID, c.cfg.PlanTimeout)
	if err != nil {
		return filtered, false, c.settlePlan(false, err)
	}
	if !verdict.Valid {
		c.logger.Warn("Plan rejected by validator", zap.Strings("findings", verdict.Findings))
		return filtered, false, c.settlePlan(false, nil)
	}
	c.logger.Info("Plan approved", zap.Int("actions", len(filtered)))
	return filtered, true, c.settlePlan(true, nil)
}

// settlePlan records the planning verdict and returns cause, or the
// transition error when the cycle was aborted meanwhile.
func (c *Coordinator) settlePlan(valid bool, cause error) error {
	next := StatePlanRejected
	if valid {
		next = StatePlanValidated
	}
	if err := c.cycle.transition(next); err != nil {
		if cause != nil {
			return fmt.Errorf("%w (after %v)", err, cause)
		}
		return err
	}
	return cause
}

// CoordinateActionExecution asks the validator to approve one action and
// returns the decision with any modifications.
func (c *Coordinator) CoordinateActionExecution(ctx context.Context, action schemas.Action, index int) (bool, map[string]interface{}, error) {
	decision, err := c.approve(ctx, action, index)
	if err != nil {
		return false, nil, err
	}
	return decision.Approved, decision.Modifications, nil
}

func (c *Coordinator) approve(ctx context.Context, action schemas.Action, index int) (ActionDecisionPayload, error) {
	if c.cycle.State() == StateAborted {
		return ActionDecisionPayload{}, ErrAborted
	}
	if !c.cfg.Enabled {
		return ActionDecisionPayload{
			Approved:      true,
			Reasoning:     "single-agent mode",
			Modifications: map[string]interface{}{},
		}, nil
	}
	proposalID, err := c.executor.ProposeActionExecution(ctx, action, index)
	if err != nil {
		return ActionDecisionPayload{}, err
	}
	decision, err := c.executor.AwaitDecision(ctx, proposalID, c.cfg.ApprovalTimeout)
	// An ERROR handled while waiting outranks whatever decision arrived.
	if c.cycle.State() == StateAborted {
		return ActionDecisionPayload{}, ErrAborted
	}
	return decision, err
}

// RunExecution proposes, and when approved executes, each action in order.
// An ERROR message for the task, or an executor infrastructure error, aborts
// the remaining actions.
func (c *Coordinator) RunExecution(ctx context.Context, actions []schemas.Action) (ExecutionReport, error) {
	report := ExecutionReport{Outcomes: make([]ActionOutcome, 0, len(actions))}
	if c.exec == nil {
		return report, ErrNoExecutor
	}
	if err := c.cycle.transition(StateExecuting); err != nil {
		if errors.Is(err, ErrAborted) {
			c.markAborted(&report, actions, 0)
		}
		return report, err
	}

	for i, action := range actions {
		if c.cycle.State() == StateAborted {
			c.markAborted(&report, actions, i)
			return report, ErrAborted
		}
		if err := ctx.Err(); err != nil {
			report.skipFrom(actions, i, err.Error())
			return report, err
		}

		decision, err := c.approve(ctx, action, i)
		switch {
		case errors.Is(err, ErrAborted):
			c.markAborted(&report, actions, i)
			return report, ErrAborted
		case errors.Is(err, ErrCancelled), errors.Is(err, ErrRoleInactive), errors.Is(err, context.Canceled),
			errors.Is(err, context.DeadlineExceeded):
			report.skipFrom(actions, i, err.Error())
			return report, err
		case errors.Is(err, bus.ErrTimeout):
			c.ep.reportError(ErrCodeApprovalTimeout, fmt.Sprintf("no decision for %s", action))
			report.add(ActionOutcome{Index: i, Action: action, Status: StatusRejected, Reason: "approval timed out", Error: err.Error()})
			continue
		case err != nil:
			report.add(ActionOutcome{Index: i, Action: action, Status: StatusRejected, Error: err.Error()})
			continue
		case !decision.Approved:
			report.add(ActionOutcome{Index: i, Action: action, Status: StatusRejected, Reason: decision.Reasoning})
			continue
		}

		if c.cycle.State() == StateAborted {
			c.markAborted(&report, actions, i)
			return report, ErrAborted
		}
		outcome := ActionOutcome{Index: i, Action: action, Status: StatusApproved, Reason: decision.Reasoning, Modifications: decision.Modifications}
		result, execErr := c.execute(ctx, action, i)
		switch {
		case execErr != nil:
			outcome.Status = StatusFailed
			outcome.Error = execErr.Error()
			report.add(outcome)
			c.abort(fmt.Sprintf("executor failed on %s: %v", action, execErr))
		case result.Success:
			outcome.Status = StatusExecuted
			report.add(outcome)
		default:
			outcome.Status = StatusFailed
			outcome.Error = result.Error
			report.add(outcome)
		}
	}

	if c.cycle.State() == StateAborted {
		report.Aborted = true
		report.AbortReason = c.reason()
	}
	c.logger.Info("Execution finished",
		zap.Int("executed", report.Executed),
		zap.Int("failed", report.Failed),
		zap.Int("rejected", report.Rejected),
		zap.Int("skipped", report.Skipped),
		zap.Bool("aborted", report.Aborted),
	)
	return report, nil
}

func (c *Coordinator) execute(ctx context.Context, action schemas.Action, index int) (ExecutionOutcome, error) {
	if c.cfg.Enabled {
		return c.executor.Execute(ctx, action, index)
	}
	return c.exec.Execute(ctx, action)
}

func (c *Coordinator) markAborted(report *ExecutionReport, actions []schemas.Action, from int) {
	reason := c.reason()
	report.skipFrom(actions, from, "aborted: "+reason)
	report.Aborted = true
	report.AbortReason = reason
}

// RequestConsensus asks every active role to vote on options and returns the
// majority choice, ties going to the lower index. Votes that arrive before
// the consensus timeout are counted; with none the configured default applies.
func (c *Coordinator) RequestConsensus(ctx context.Context, question string, options []string) (ConsensusResult, error) {
	if len(options) == 0 {
		return ConsensusResult{Index: -1, Votes: map[string]int{}, Tally: []int{}}, nil
	}
	if !c.cfg.Enabled {
		return ConsensusResult{
			Index:    0,
			Option:   options[0],
			Votes:    map[string]int{},
			Tally:    make([]int, len(options)),
			Fallback: true,
		}, nil
	}
	if c.cycle.State() == StateAborted {
		return ConsensusResult{Index: -1}, ErrAborted
	}

	var voters []string
	expected := make(map[string]bool)
	for _, r := range c.roles() {
		if r.Active() {
			voters = append(voters, r.ID())
			expected[r.ID()] = true
		}
	}
	if len(voters) == 0 {
		return newConsensusResult(options, map[string]int{}, 0, c.cfg.ConsensusDefault), nil
	}

	requestID := uuid.New().String()
	ch, err := c.ep.expect(requestID, len(voters))
	if err != nil {
		return ConsensusResult{Index: -1}, err
	}
	defer c.ep.forget(requestID)

	if _, err := c.ep.send(bus.Message{
		ID:               requestID,
		Type:             bus.TypeConsensusRequest,
		Priority:         bus.PriorityCritical,
		RequiresResponse: true,
		Payload:          ConsensusRequestPayload{Question: question, Options: options, Voters: voters},
	}); err != nil {
		return ConsensusResult{Index: -1}, err
	}

	timeout := c.cfg.ConsensusTimeout
	if timeout <= 0 {
		timeout = defaultAwaitTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	votes := make(map[string]int, len(voters))
	timedOut := false
collect:
	for len(votes) < len(voters) {
		select {
		case msg, ok := <-ch:
			if !ok {
				return ConsensusResult{Index: -1}, ErrCancelled
			}
			resp, ok := msg.Payload.(ConsensusResponsePayload)
			if !ok || !expected[msg.SenderID] {
				continue
			}
			if _, dup := votes[msg.SenderID]; dup {
				continue
			}
			votes[msg.SenderID] = resp.Vote
		case <-timer.C:
			timedOut = true
			break collect
		case <-ctx.Done():
			return ConsensusResult{Index: -1}, ctx.Err()
		}
	}

	res := newConsensusResult(options, votes, len(voters), c.cfg.ConsensusDefault)
	res.TimedOut = timedOut
	c.logger.Info("Consensus reached",
		zap.String("question", question),
		zap.Int("selected", res.Index),
		zap.Int("votes", len(votes)),
		zap.Int("expected", len(voters)),
		zap.Bool("timed_out", timedOut),
	)
	return res, nil
}

// GetStatistics returns a snapshot of the coordinator, its roles and the bus.
func (c *Coordinator) GetStatistics() Statistics {
	st := Statistics{
		Enabled:     c.cfg.Enabled,
		TaskID:      c.scope.TaskID,
		StepID:      c.scope.StepID,
		State:       c.cycle.State(),
		AbortReason: c.reason(),
		Roles:       make(map[bus.Role]RoleStatus, 3),
	}
	for _, r := range c.roles() {
		st.Roles[r.Kind()] = RoleStatus{ID: r.ID(), Active: r.Active()}
	}
	if c.bus != nil {
		st.Bus = c.bus.Statistics()
	}
	return st
}

// handle escalates ERROR messages for the task into an abort.
func (c *Coordinator) handle(_ context.Context, msg bus.Message) {
	if msg.Type != bus.TypeError {
		return
	}
	reason := fmt.Sprintf("error reported by %s", msg.SenderID)
	if p, ok := msg.Payload.(ErrorPayload); ok {
		reason = fmt.Sprintf("%s from %s: %s", p.Code, msg.SenderID, p.Message)
	}
	c.abort(reason)
}

func (c *Coordinator) abort(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.cycle.transition(StateAborted); err != nil {
		c.logger.Debug("Abort ignored", zap.String("reason", reason), zap.Error(err))
		return
	}
	c.abortReason = reason
	c.logger.Warn("Cycle aborted", zap.String("reason", reason))
}

func (c *Coordinator) reason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.abortReason
}
