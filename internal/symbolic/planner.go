package symbolic

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/xkilldash9x/actiongate/api/schemas"
	"github.com/xkilldash9x/actiongate/internal/config"
	"go.uber.org/zap"
)

// HybridPlanner admits or rejects LLM-proposed actions against declared
// affordances and guard conditions, and watches the stream of admitted
// actions for loops.
//
// Registrations are serialized with validation passes, so the rule set is
// fixed for the duration of a single ValidateAndFilterActions call.
type HybridPlanner struct {
	logger    *zap.Logger
	evaluator *Evaluator
	now       func() time.Time

	mu          sync.Mutex
	affordances []boundAffordance
	guards      []GuardCondition
	fallback    []schemas.Action
	loops       *LoopDetector
	loopFactor  int
	matcher     SequenceMatcher
}

// Option configures a HybridPlanner.
type Option func(*plannerOptions)

type plannerOptions struct {
	resolver CustomResolver
	matcher  SequenceMatcher
	now      func() time.Time
}

// WithCustomResolver supplies the lookup for custom predicate capabilities.
func WithCustomResolver(r CustomResolver) Option {
	return func(o *plannerOptions) { o.resolver = r }
}

// WithSequenceMatcher replaces the exact-match loop comparison.
func WithSequenceMatcher(m SequenceMatcher) Option {
	return func(o *plannerOptions) { o.matcher = m }
}

// WithClock overrides the timestamp source for results.
func WithClock(now func() time.Time) Option {
	return func(o *plannerOptions) { o.now = now }
}

// NewHybridPlanner creates a planner with no affordances or guards.
func NewHybridPlanner(cfg config.PlannerConfig, logger *zap.Logger, opts ...Option) *HybridPlanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := plannerOptions{matcher: ExactMatcher{}, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	factor := cfg.LoopHistoryFactor
	if factor == 0 {
		factor = DefaultLoopHistoryFactor
	}
	return &HybridPlanner{
		logger:     logger.Named("hybrid_planner"),
		evaluator:  NewEvaluator(logger, o.resolver),
		now:        o.now,
		loops:      NewLoopDetector(cfg.LoopWindow, factor, o.matcher),
		loopFactor: factor,
		matcher:    o.matcher,
	}
}

// Evaluator exposes the planner's predicate evaluator.
func (p *HybridPlanner) Evaluator() *Evaluator { return p.evaluator }

// RegisterAffordance appends an affordance. Registration order breaks
// priority ties.
func (p *HybridPlanner) RegisterAffordance(a Affordance) error {
	bound, err := bindAffordance(a)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.affordances = append(p.affordances, bound)
	return nil
}

// RegisterGuard appends a guard condition.
func (p *HybridPlanner) RegisterGuard(g GuardCondition) error {
	if g.Name == "" {
		return fmt.Errorf("guard condition requires a name")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.guards = append(p.guards, g)
	return nil
}

// SetFallbackActions sets the actions used by ReconcileWithFallback when the
// caller supplies none.
func (p *HybridPlanner) SetFallbackActions(actions []schemas.Action) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fallback = append([]schemas.Action(nil), actions...)
}

// SetLoopWindow replaces the loop detector with one over the given window.
// Retained history is discarded.
func (p *HybridPlanner) SetLoopWindow(window int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loops = NewLoopDetector(window, p.loopFactor, p.matcher)
}

// Clear drops every affordance, guard, fallback action and the loop history.
func (p *HybridPlanner) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.affordances = nil
	p.guards = nil
	p.fallback = nil
	p.loops.Reset()
}

// Affordances returns the registered affordances in registration order.
func (p *HybridPlanner) Affordances() []Affordance {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Affordance, len(p.affordances))
	for i, b := range p.affordances {
		out[i] = b.Affordance
	}
	return out
}

// Guards returns the registered guards in registration order.
func (p *HybridPlanner) Guards() []GuardCondition {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]GuardCondition(nil), p.guards...)
}

// ValidateAndFilterActions decides every action against the current rule set,
// then feeds the allowed actions to loop detection. A detected repeat adds one
// advisory warning and never rejects anything.
func (p *HybridPlanner) ValidateAndFilterActions(
	actions []schemas.Action,
	state PageState,
	currentURL string,
	vctx ValidationContext,
) *ValidationResult {
	p.mu.Lock()
	defer p.mu.Unlock()

	if currentURL == "" && state != nil {
		currentURL = state.CurrentURL()
	}

	logger := p.logger.With(zap.String("task_id", vctx.TaskID), zap.String("step_id", vctx.StepID))
	logger.Info("Hybrid plan validation started",
		zap.Int("num_actions", len(actions)),
		zap.Int("num_affordances", len(p.affordances)),
		zap.Int("num_guards", len(p.guards)),
	)

	active := p.activeGuards(state, currentURL)
	result := &ValidationResult{
		Context:   vctx,
		Timestamp: p.now(),
	}
	for _, g := range active {
		result.ActiveGuards = append(result.ActiveGuards, g.Name)
	}

	evaluated := make(map[int]bool)
	var fingerprints []string
	for _, action := range actions {
		decision, idx := p.decide(action, state, currentURL, active)
		if idx >= 0 && !evaluated[idx] {
			evaluated[idx] = true
			result.EvaluatedAffordances = append(result.EvaluatedAffordances, p.affordances[idx].Affordance)
		}
		result.Decisions = append(result.Decisions, decision)

		if decision.Allowed {
			result.Allowed = append(result.Allowed, action)
			fingerprints = append(fingerprints, action.Fingerprint())
			continue
		}
		result.Rejected = append(result.Rejected, Rejection{Action: action, Reason: decision.Reason})
		logger.Warn("Action rejected",
			zap.Stringer("action", action),
			zap.String("reason", decision.Reason),
			zap.String("guard", decision.Guard),
		)
	}

	if repeated, found := p.loops.Observe(fingerprints); found {
		logger.Warn("Potential loop detected", zap.Strings("recent_actions", repeated))
		result.Warnings = append(result.Warnings, fmt.Sprintf("%s: repeated sequence of %d actions [%s]",
			WarningPotentialLoop, len(repeated), strings.Join(repeated, ", ")))
	}

	logger.Info("Hybrid plan validation completed",
		zap.Bool("valid", result.Valid()),
		zap.Int("allowed", len(result.Allowed)),
		zap.Int("rejected", len(result.Rejected)),
		zap.Int("warnings", len(result.Warnings)),
	)
	return result
}

// Check decides a single action without touching loop history.
func (p *HybridPlanner) Check(action schemas.Action, state PageState, currentURL string) Decision {
	p.mu.Lock()
	defer p.mu.Unlock()

	if currentURL == "" && state != nil {
		currentURL = state.CurrentURL()
	}
	decision, _ := p.decide(action, state, currentURL, p.activeGuards(state, currentURL))
	return decision
}

// ReconcileWithFallback returns the allowed actions when there are any, and
// otherwise the fallback exactly as given. A nil fallback selects the actions
// configured through SetFallbackActions or a plan config. The returned slice
// is always a fresh copy.
func (p *HybridPlanner) ReconcileWithFallback(result *ValidationResult, fallback []schemas.Action) []schemas.Action {
	if result.Valid() {
		return append([]schemas.Action(nil), result.Allowed...)
	}
	if fallback != nil {
		p.logger.Warn("Plan validation produced no actions; using provided fallback", zap.Int("count", len(fallback)))
		return append(make([]schemas.Action, 0, len(fallback)), fallback...)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.fallback) == 0 {
		p.logger.Warn("No fallback actions available after plan validation failure")
		return nil
	}
	p.logger.Warn("Plan validation produced no actions; using configured fallback", zap.Int("count", len(p.fallback)))
	return append([]schemas.Action(nil), p.fallback...)
}

// activeGuards evaluates every guard once. Callers hold p.mu.
func (p *HybridPlanner) activeGuards(state PageState, currentURL string) []GuardCondition {
	var active []GuardCondition
	for _, g := range p.guards {
		if p.allHold(g.Predicates, state, currentURL) {
			active = append(active, g)
		}
	}
	return active
}

func (p *HybridPlanner) allHold(preds []Predicate, state PageState, currentURL string) bool {
	for _, pred := range preds {
		if !p.evaluator.Evaluate(pred, state, currentURL) {
			return false
		}
	}
	return true
}

// decide returns the decision and the index of the selected affordance, or -1.
// Callers hold p.mu.
func (p *HybridPlanner) decide(action schemas.Action, state PageState, currentURL string, active []GuardCondition) (Decision, int) {
	for _, g := range active {
		if g.Blocks(action.Type) {
			return Decision{Action: action, Reason: g.Reason(), Guard: g.Name}, -1
		}
	}

	selected := -1
	for i, a := range p.affordances {
		if !a.matches(action) {
			continue
		}
		if selected < 0 || a.Priority > p.affordances[selected].Priority {
			selected = i
		}
	}
	if selected < 0 {
		return Decision{Action: action, Allowed: true, Reason: ReasonOpenWorld}, -1
	}

	aff := p.affordances[selected].Affordance
	for _, pred := range aff.Preconditions {
		if !p.evaluator.Evaluate(pred, state, currentURL) {
			return Decision{
				Action:     action,
				Reason:     ReasonPreconditionFailed + ":" + pred.String(),
				Affordance: &aff,
				Detail:     aff.FailureReason,
			}, selected
		}
	}
	return Decision{Action: action, Allowed: true, Reason: ReasonAffordanceSatisfied, Affordance: &aff}, selected
}
