package symbolic

import (
	"strings"
	"time"

	"github.com/xkilldash9x/actiongate/api/schemas"
)

const (
	// ReasonOpenWorld is recorded for actions no affordance addresses.
	ReasonOpenWorld = "open_world"
	// ReasonAffordanceSatisfied is recorded when the selected affordance's
	// preconditions all held.
	ReasonAffordanceSatisfied = "affordance_satisfied"
	// ReasonPreconditionFailed prefixes the first failing precondition.
	ReasonPreconditionFailed = "precondition_failed"
)

// ValidationContext identifies what a validation pass was run for.
type ValidationContext struct {
	TaskID   string            `json:"task_id,omitempty"`
	StepID   string            `json:"step_id,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Decision is the verdict for one action.
type Decision struct {
	Action  schemas.Action
	Allowed bool
	Reason  string
	// Affordance is the selected affordance, if any matched.
	Affordance *Affordance
	// Guard names the guard that blocked the action.
	Guard string
	// Detail carries the affordance's declared failure reason on rejection.
	Detail string
}

// Rejection pairs a rejected action with its reason.
type Rejection struct {
	Action schemas.Action
	Reason string
}

// ValidationResult is produced once per ValidateAndFilterActions call and is
// not modified afterwards.
type ValidationResult struct {
	Allowed              []schemas.Action
	Rejected             []Rejection
	Warnings             []string
	Decisions            []Decision
	EvaluatedAffordances []Affordance
	ActiveGuards         []string
	Context              ValidationContext
	Timestamp            time.Time
}

// Valid reports whether at least one action survived validation.
func (r *ValidationResult) Valid() bool {
	return r != nil && len(r.Allowed) > 0
}

// HasWarning reports whether any warning starts with prefix.
func (r *ValidationResult) HasWarning(prefix string) bool {
	if r == nil {
		return false
	}
	for _, w := range r.Warnings {
		if strings.HasPrefix(w, prefix) {
			return true
		}
	}
	return false
}
