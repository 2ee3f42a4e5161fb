package swarm

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/xkilldash9x/actiongate/api/schemas"
	"github.com/xkilldash9x/actiongate/internal/bus"
	"github.com/xkilldash9x/actiongate/internal/config"
	"github.com/xkilldash9x/actiongate/internal/symbolic"
	"go.uber.org/zap"
)

// PlanSummary describes a plan published by the planner.
type PlanSummary struct {
	MessageID  string
	Plan       PlanPayload
	Validation *symbolic.ValidationResult
}

// PlannerRole filters candidate actions through the hybrid planner and
// submits the result to the validator.
type PlannerRole struct {
	*endpoint
	planner *symbolic.HybridPlanner
	cfg     config.SwarmConfig
}

var _ Role = (*PlannerRole)(nil)

// NewPlannerRole creates a planner bound to scope.
func NewPlannerRole(b *bus.Bus, planner *symbolic.HybridPlanner, cfg config.SwarmConfig, scope Scope, logger *zap.Logger, opts ...RoleOption) *PlannerRole {
	return &PlannerRole{
		endpoint: newEndpoint(bus.RolePlanner, scope, b, logger, opts),
		planner:  planner,
		cfg:      cfg,
	}
}

// Start implements Role. The planner only reacts to responses and consensus
// requests, so it has no handler of its own.
func (p *PlannerRole) Start(ctx context.Context) error { return p.start(ctx, nil) }

// Stop implements Role.
func (p *PlannerRole) Stop() error { return p.stop() }

// CreatePlan validates candidates against the current page, publishes an
// optional THOUGHT and a PLAN addressed to the validator, and returns the
// actions that survived. When nothing survives the planner's configured
// fallback actions are planned instead.
func (p *PlannerRole) CreatePlan(ctx context.Context, state symbolic.PageState, candidates []schemas.Action) ([]schemas.Action, PlanSummary, error) {
	if !p.Active() {
		return nil, PlanSummary{}, ErrRoleInactive
	}
	if err := ctx.Err(); err != nil {
		return nil, PlanSummary{}, err
	}

	result := p.planner.ValidateAndFilterActions(candidates, state, "", symbolic.ValidationContext{
		TaskID: p.scope.TaskID,
		StepID: p.scope.StepID,
	})
	actions := p.planner.ReconcileWithFallback(result, nil)
	risk := assessRisk(len(actions), p.cfg)

	if p.cfg.EmitThoughts {
		p.think(state, candidates, result)
	}

	plan := PlanPayload{
		Description:     fmt.Sprintf("Execute %d of %d proposed actions", len(actions), len(candidates)),
		Steps:           make([]PlanStep, 0, len(actions)),
		Actions:         append([]schemas.Action(nil), actions...),
		ExpectedOutcome: "Progress toward task completion",
		RiskLevel:       risk,
		Rejected:        len(result.Rejected),
		Warnings:        append([]string(nil), result.Warnings...),
	}
	for _, a := range actions {
		plan.Steps = append(plan.Steps, PlanStep{ActionType: a.Type, Description: a.String()})
	}
	if risk == RiskHigh {
		plan.Alternatives = []string{"Skip high-risk actions", "Request human intervention"}
	}

	planID := uuid.New().String()
	if _, err := p.expect(planID, 1); err != nil {
		return nil, PlanSummary{}, err
	}
	if _, err := p.send(bus.Message{
		ID:               planID,
		Type:             bus.TypePlan,
		RecipientRole:    bus.RoleValidator,
		Priority:         bus.PriorityHigh,
		RequiresResponse: true,
		Payload:          plan,
	}); err != nil {
		p.forget(planID)
		return nil, PlanSummary{}, err
	}

	p.logger.Info("Plan submitted for validation",
		zap.String("plan_id", planID),
		zap.Int("steps", len(plan.Steps)),
		zap.String("risk_level", string(risk)),
	)
	return actions, PlanSummary{MessageID: planID, Plan: plan, Validation: result}, nil
}

// AwaitPlanVerdict waits for the validator's VALIDATION_RESULT for planID.
func (p *PlannerRole) AwaitPlanVerdict(ctx context.Context, planID string, timeout time.Duration) (PlanVerdictPayload, error) {
	ch, ok := p.waiter(planID)
	if !ok {
		if !p.Active() {
			return PlanVerdictPayload{}, ErrCancelled
		}
		return PlanVerdictPayload{}, fmt.Errorf("no pending plan %q", planID)
	}
	defer p.forget(planID)

	msg, err := awaitResponse(ctx, ch, timeout)
	if err != nil {
		return PlanVerdictPayload{}, fmt.Errorf("awaiting verdict for plan %s: %w", planID, err)
	}
	verdict, ok := msg.Payload.(PlanVerdictPayload)
	if !ok {
		return PlanVerdictPayload{}, fmt.Errorf("plan %s: unexpected verdict payload %T", planID, msg.Payload)
	}
	return verdict, nil
}

func (p *PlannerRole) think(state symbolic.PageState, candidates []schemas.Action, result *symbolic.ValidationResult) {
	confidence := 0.0
	if len(candidates) > 0 {
		confidence = float64(len(result.Allowed)) / float64(len(candidates))
	}
	pageURL := ""
	if state != nil {
		pageURL = state.CurrentURL()
	}
	chain := []string{
		"Examining current page state",
		fmt.Sprintf("Checked %d proposed actions against %d affordances", len(candidates), len(result.EvaluatedAffordances)),
		fmt.Sprintf("Active guards: %d", len(result.ActiveGuards)),
	}
	chain = append(chain, result.Warnings...)

	_, err := p.send(bus.Message{
		Type:     bus.TypeThought,
		Priority: bus.PriorityLow,
		Payload: ThoughtPayload{
			Thought:        fmt.Sprintf("Analyzing %d proposed actions", len(candidates)),
			Confidence:     confidence,
			ReasoningChain: chain,
			Context: map[string]interface{}{
				"page_url": pageURL,
				"allowed":  len(result.Allowed),
				"rejected": len(result.Rejected),
			},
		},
	})
	if err != nil {
		p.logger.Warn("Failed to publish thought", zap.Error(err))
	}
}

// assessRisk grades a plan by its number of steps.
func assessRisk(steps int, cfg config.SwarmConfig) RiskLevel {
	switch {
	case steps > cfg.HighRiskPlanSize:
		return RiskHigh
	case steps > cfg.MediumRiskPlanSize:
		return RiskMedium
	default:
		return RiskLow
	}
}
