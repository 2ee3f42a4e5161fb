package swarm

import (
	"time"

	"github.com/xkilldash9x/actiongate/api/schemas"
)

// RiskLevel is the coarse risk assigned to a plan or action.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Scope binds roles and messages to one task step.
type Scope struct {
	TaskID string
	StepID string
}

// ThoughtPayload is the body of a THOUGHT message.
type ThoughtPayload struct {
	Thought        string                 `json:"thought"`
	Confidence     float64                `json:"confidence"`
	ReasoningChain []string               `json:"reasoning_chain"`
	Context        map[string]interface{} `json:"context,omitempty"`
}

// PlanStep describes one step of a proposed plan.
type PlanStep struct {
	ActionType  schemas.ActionType `json:"action_type"`
	Description string             `json:"description"`
}

// PlanPayload is the body of a PLAN message.
type PlanPayload struct {
	Description     string           `json:"description"`
	Steps           []PlanStep       `json:"steps"`
	Actions         []schemas.Action `json:"actions"`
	ExpectedOutcome string           `json:"expected_outcome"`
	RiskLevel       RiskLevel        `json:"risk_level"`
	Alternatives    []string         `json:"alternatives,omitempty"`
	Rejected        int              `json:"rejected"`
	Warnings        []string         `json:"warnings,omitempty"`
}

// PlanVerdictPayload is the body of a VALIDATION_RESULT message.
type PlanVerdictPayload struct {
	Valid           bool      `json:"valid"`
	RiskLevel       RiskLevel `json:"risk_level"`
	Findings        []string  `json:"findings"`
	Confidence      float64   `json:"confidence"`
	Recommendations []string  `json:"recommendations,omitempty"`
}

// ActionProposalPayload is the body of an ACTION_PROPOSAL message.
type ActionProposalPayload struct {
	Index          int            `json:"action_index"`
	Action         schemas.Action `json:"action"`
	Rationale      string         `json:"rationale"`
	RiskAssessment RiskLevel      `json:"risk_assessment"`
	Confidence     float64        `json:"confidence"`
}

// ActionDecisionPayload is the body of ACTION_APPROVAL and ACTION_REJECTION
// messages.
type ActionDecisionPayload struct {
	Approved      bool                   `json:"approved"`
	Reasoning     string                 `json:"approver_reasoning"`
	Modifications map[string]interface{} `json:"modifications"`
	Conditions    []string               `json:"conditions,omitempty"`
}

// ExecutionResultPayload is the body of an EXECUTION_RESULT message.
type ExecutionResultPayload struct {
	Index    int                    `json:"action_index"`
	Action   schemas.Action         `json:"action"`
	Success  bool                   `json:"success"`
	Error    string                 `json:"error_message,omitempty"`
	Result   map[string]interface{} `json:"result,omitempty"`
	Duration time.Duration          `json:"duration"`
}

// CritiquePayload is the body of a CRITIQUE message.
type CritiquePayload struct {
	Target      string   `json:"critique_target"`
	Text        string   `json:"critique_text"`
	Severity    string   `json:"severity"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// ConsensusRequestPayload is the body of a CONSENSUS_REQUEST message.
type ConsensusRequestPayload struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
	Voters   []string `json:"voters"`
}

// ConsensusResponsePayload is the body of a CONSENSUS_RESPONSE message.
type ConsensusResponsePayload struct {
	VoterID string `json:"voter_id"`
	Vote    int    `json:"vote"`
}

// StatusUpdatePayload is the body of a STATUS_UPDATE message.
type StatusUpdatePayload struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// ErrorPayload is the body of an ERROR message.
type ErrorPayload struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	RoleID  string    `json:"role_id,omitempty"`
}
