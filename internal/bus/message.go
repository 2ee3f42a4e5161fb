package bus

import "time"

// Role identifies the kind of participant that sent or should receive a message.
type Role string

const (
	RolePlanner     Role = "planner"
	RoleExecutor    Role = "executor"
	RoleValidator   Role = "validator"
	RoleCoordinator Role = "coordinator"
)

// MessageType enumerates the messages exchanged between roles.
type MessageType string

const (
	TypePlan              MessageType = "PLAN"
	TypeThought           MessageType = "THOUGHT"
	TypeValidationResult  MessageType = "VALIDATION_RESULT"
	TypeActionProposal    MessageType = "ACTION_PROPOSAL"
	TypeActionApproval    MessageType = "ACTION_APPROVAL"
	TypeActionRejection   MessageType = "ACTION_REJECTION"
	TypeExecutionResult   MessageType = "EXECUTION_RESULT"
	TypeCritique          MessageType = "CRITIQUE"
	TypeConsensusRequest  MessageType = "CONSENSUS_REQUEST"
	TypeConsensusResponse MessageType = "CONSENSUS_RESPONSE"
	TypeStatusUpdate      MessageType = "STATUS_UPDATE"
	TypeError             MessageType = "ERROR"
)

// Priority orders messages for filtering; it does not affect delivery order.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Message is the envelope carried by the bus. A message with neither
// RecipientRole nor RecipientID is a broadcast. Payload is opaque to the bus
// and must not be mutated after publishing.
type Message struct {
	ID               string      `json:"id"`
	SenderRole       Role        `json:"sender_role"`
	SenderID         string      `json:"sender_id"`
	RecipientRole    Role        `json:"recipient_role,omitempty"`
	RecipientID      string      `json:"recipient_id,omitempty"`
	Type             MessageType `json:"type"`
	Payload          interface{} `json:"payload,omitempty"`
	TaskID           string      `json:"task_id,omitempty"`
	StepID           string      `json:"step_id,omitempty"`
	Priority         Priority    `json:"priority"`
	Timestamp        time.Time   `json:"timestamp"`
	InResponseTo     string      `json:"in_response_to,omitempty"`
	RequiresResponse bool        `json:"requires_response,omitempty"`
}

// IsBroadcast reports whether the message has no recipient.
func (m Message) IsBroadcast() bool {
	return m.RecipientRole == "" && m.RecipientID == ""
}
