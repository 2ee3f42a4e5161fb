package swarm

import (
	"context"
	"fmt"
	"sync"

	"github.com/xkilldash9x/actiongate/internal/bus"
	"github.com/xkilldash9x/actiongate/internal/config"
	"github.com/xkilldash9x/actiongate/internal/symbolic"
	"go.uber.org/zap"
)

const planVerdictConfidence = 0.85

// ValidatorRole reviews plans and action proposals and critiques failed
// executions.
type ValidatorRole struct {
	*endpoint
	planner *symbolic.HybridPlanner
	cfg     config.SwarmConfig

	stateMu sync.RWMutex
	state   symbolic.PageState
}

var _ Role = (*ValidatorRole)(nil)

// NewValidatorRole creates a validator bound to scope. planner may be nil, in
// which case only the risk heuristics apply.
func NewValidatorRole(b *bus.Bus, planner *symbolic.HybridPlanner, cfg config.SwarmConfig, scope Scope, logger *zap.Logger, opts ...RoleOption) *ValidatorRole {
	return &ValidatorRole{
		endpoint: newEndpoint(bus.RoleValidator, scope, b, logger, opts),
		planner:  planner,
		cfg:      cfg,
	}
}

// Start implements Role.
func (v *ValidatorRole) Start(ctx context.Context) error { return v.start(ctx, v.handle) }

// Stop implements Role.
func (v *ValidatorRole) Stop() error { return v.stop() }

// ObserveState sets the page state that plans and proposals are checked
// against. Without a state only the risk heuristics apply.
func (v *ValidatorRole) ObserveState(state symbolic.PageState) {
	v.stateMu.Lock()
	defer v.stateMu.Unlock()
	v.state = state
}

func (v *ValidatorRole) observed() symbolic.PageState {
	v.stateMu.RLock()
	defer v.stateMu.RUnlock()
	return v.state
}

func (v *ValidatorRole) handle(_ context.Context, msg bus.Message) {
	switch msg.Type {
	case bus.TypePlan:
		v.ValidatePlan(msg)
	case bus.TypeActionProposal:
		v.ValidateAction(msg)
	case bus.TypeExecutionResult:
		v.critique(msg)
	}
}

// ValidatePlan judges a PLAN message and replies to its sender with a
// VALIDATION_RESULT. A plan is rejected when it is high risk or when any of
// its actions is no longer admitted by the hybrid planner.
func (v *ValidatorRole) ValidatePlan(msg bus.Message) bool {
	verdict := PlanVerdictPayload{Confidence: planVerdictConfidence}

	plan, ok := msg.Payload.(PlanPayload)
	if !ok {
		verdict.Findings = []string{fmt.Sprintf("Malformed plan payload %T", msg.Payload)}
		verdict.Confidence = 0
	} else {
		verdict.RiskLevel = assessRisk(len(plan.Actions), v.cfg)
		verdict.Valid = verdict.RiskLevel != RiskHigh
		verdict.Findings = []string{
			fmt.Sprintf("Risk level: %s", verdict.RiskLevel),
			fmt.Sprintf("Number of steps: %d", len(plan.Actions)),
		}
		if verdict.RiskLevel == RiskHigh {
			verdict.Recommendations = []string{"Proceed with caution", "Split the plan into smaller steps"}
		}
		if state := v.observed(); state != nil && v.planner != nil {
			for i, action := range plan.Actions {
				if d := v.planner.Check(action, state, ""); !d.Allowed {
					verdict.Valid = false
					verdict.Findings = append(verdict.Findings, fmt.Sprintf("Step %d %s rejected: %s", i, action, d.Reason))
				}
			}
		}
	}

	v.logger.Info("Plan validated",
		zap.String("plan_id", msg.ID),
		zap.Bool("valid", verdict.Valid),
		zap.String("risk_level", string(verdict.RiskLevel)),
	)
	v.reply(msg, bus.TypeValidationResult, verdict)
	return verdict.Valid
}

// ValidateAction judges an ACTION_PROPOSAL and replies to the proposing
// executor with ACTION_APPROVAL or ACTION_REJECTION.
func (v *ValidatorRole) ValidateAction(msg bus.Message) (bool, map[string]interface{}) {
	decision := ActionDecisionPayload{Modifications: map[string]interface{}{}}

	proposal, ok := msg.Payload.(ActionProposalPayload)
	switch {
	case !ok:
		decision.Reasoning = fmt.Sprintf("Malformed proposal payload %T", msg.Payload)
	default:
		highRisk := proposal.RiskAssessment == RiskHigh || isHighRiskAction(proposal.Action.Type, v.cfg)
		if highRisk {
			decision.Conditions = []string{"Monitor for unexpected page changes"}
		}
		switch {
		case highRisk:
			decision.Reasoning = fmt.Sprintf("%s is a high-risk action and needs review", proposal.Action)
		case proposal.Confidence < v.cfg.AutoApproveThreshold:
			decision.Reasoning = fmt.Sprintf("Confidence %.2f is below the approval threshold %.2f",
				proposal.Confidence, v.cfg.AutoApproveThreshold)
		default:
			decision.Approved = true
			decision.Reasoning = fmt.Sprintf("Confidence: %.2f, Risk: %s", proposal.Confidence, proposal.RiskAssessment)
		}
		if decision.Approved && v.planner != nil {
			if state := v.observed(); state != nil {
				if d := v.planner.Check(proposal.Action, state, ""); !d.Allowed {
					decision.Approved = false
					decision.Reasoning = d.Reason
				}
			}
		}
	}

	msgType := bus.TypeActionRejection
	if decision.Approved {
		msgType = bus.TypeActionApproval
	}
	v.logger.Info("Action validated",
		zap.String("proposal_id", msg.ID),
		zap.Bool("approved", decision.Approved),
		zap.String("reasoning", decision.Reasoning),
	)
	v.reply(msg, msgType, decision)
	return decision.Approved, decision.Modifications
}

func (v *ValidatorRole) critique(msg bus.Message) {
	result, ok := msg.Payload.(ExecutionResultPayload)
	if !ok || result.Success {
		return
	}
	_, err := v.send(bus.Message{
		Type:         bus.TypeCritique,
		InResponseTo: msg.ID,
		Priority:     bus.PriorityNormal,
		Payload: CritiquePayload{
			Target:   "execution",
			Text:     fmt.Sprintf("Action execution failed: %s", result.Error),
			Severity: "warning",
			Suggestions: []string{
				"Verify the target element is still present",
				"Consider an alternative approach",
			},
		},
	})
	if err != nil {
		v.logger.Warn("Failed to publish critique", zap.Error(err))
	}
}

func (v *ValidatorRole) reply(req bus.Message, t bus.MessageType, payload interface{}) {
	_, err := v.send(bus.Message{
		Type:          t,
		RecipientRole: req.SenderRole,
		RecipientID:   req.SenderID,
		InResponseTo:  req.ID,
		Priority:      bus.PriorityCritical,
		Payload:       payload,
	})
	if err != nil {
		v.logger.Warn("Failed to reply", zap.String("type", string(t)), zap.Error(err))
	}
}
