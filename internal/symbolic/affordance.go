package symbolic

import (
	"fmt"

	"github.com/gobwas/glob"
	"github.com/xkilldash9x/actiongate/api/schemas"
)

// Affordance permits an action type on a target while all of its
// preconditions hold. Target is compared literally; TargetPattern is a glob
// (e.g. "nav_*") matching a family of element ids. With neither set the
// affordance matches any target. Postconditions are carried for audit only
// and never evaluated.
type Affordance struct {
	ActionType     schemas.ActionType `json:"action_type" yaml:"action_type"`
	Target         string             `json:"target,omitempty" yaml:"target,omitempty"`
	TargetPattern  string             `json:"target_pattern,omitempty" yaml:"target_pattern,omitempty"`
	Preconditions  []Predicate        `json:"preconditions,omitempty" yaml:"preconditions,omitempty"`
	Postconditions []Predicate        `json:"postconditions,omitempty" yaml:"postconditions,omitempty"`
	Priority       int                `json:"priority" yaml:"priority"`
	FailureReason  string             `json:"failure_reason,omitempty" yaml:"failure_reason,omitempty"`
}

// String renders the affordance as type(target), using the pattern for glob
// affordances and * for any target.
func (a Affordance) String() string {
	target := a.Target
	switch {
	case a.TargetPattern != "":
		target = a.TargetPattern
	case target == "":
		target = "*"
	}
	return fmt.Sprintf("%s(%s)", a.ActionType, target)
}

// boundAffordance is a registered affordance with its target matcher compiled.
type boundAffordance struct {
	Affordance
	pattern glob.Glob
}

func bindAffordance(a Affordance) (boundAffordance, error) {
	if a.ActionType == "" {
		return boundAffordance{}, fmt.Errorf("affordance for target %q has no action type", a.Target)
	}
	b := boundAffordance{Affordance: a}
	if a.TargetPattern != "" {
		if a.Target != "" {
			return boundAffordance{}, fmt.Errorf("affordance %s sets both target and target_pattern", a.ActionType)
		}
		g, err := glob.Compile(a.TargetPattern)
		if err != nil {
			return boundAffordance{}, fmt.Errorf("invalid target pattern %q: %w", a.TargetPattern, err)
		}
		b.pattern = g
	}
	return b, nil
}

func (b boundAffordance) matches(action schemas.Action) bool {
	if b.ActionType != action.Type {
		return false
	}
	switch {
	case b.pattern != nil:
		return b.pattern.Match(action.Target)
	case b.Target == "":
		return true
	default:
		return b.Target == action.Target
	}
}

// GuardCondition blocks action types while all of its predicates hold. A
// guard with no predicates is always active.
type GuardCondition struct {
	Name               string               `json:"name" yaml:"name"`
	Predicates         []Predicate          `json:"predicates,omitempty" yaml:"predicates,omitempty"`
	BlockedActionTypes []schemas.ActionType `json:"blocked_action_types" yaml:"blocked_action_types"`
	Message            string               `json:"message,omitempty" yaml:"message,omitempty"`
}

// Blocks reports whether the guard names t among its blocked action types.
func (g GuardCondition) Blocks(t schemas.ActionType) bool {
	for _, blocked := range g.BlockedActionTypes {
		if blocked == t {
			return true
		}
	}
	return false
}

// Reason is the rejection reason recorded when the guard blocks an action.
func (g GuardCondition) Reason() string {
	if g.Message != "" {
		return g.Message
	}
	return "guard_blocked:" + g.Name
}
