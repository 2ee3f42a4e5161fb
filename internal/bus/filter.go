package bus

import "time"

// Filter selects messages. Every non-zero field must match; zero fields are
// wildcards.
type Filter struct {
	// Role matches messages addressed to the role as well as broadcasts.
	Role       Role
	SenderRole Role
	// Types matches any of the listed types.
	Types       []MessageType
	TaskID      string
	StepID      string
	MinPriority Priority
	Since       time.Time
	Until       time.Time
	// ExcludeSenderID drops messages sent by the given participant, so a
	// role does not receive its own traffic.
	ExcludeSenderID string
}

// Matches reports whether m satisfies every field of the filter.
func (f Filter) Matches(m Message) bool {
	if f.Role != "" && m.RecipientRole != "" && m.RecipientRole != f.Role {
		return false
	}
	if f.SenderRole != "" && m.SenderRole != f.SenderRole {
		return false
	}
	if len(f.Types) > 0 && !f.hasType(m.Type) {
		return false
	}
	if f.TaskID != "" && m.TaskID != f.TaskID {
		return false
	}
	if f.StepID != "" && m.StepID != f.StepID {
		return false
	}
	if m.Priority < f.MinPriority {
		return false
	}
	if !f.Since.IsZero() && m.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && m.Timestamp.After(f.Until) {
		return false
	}
	if f.ExcludeSenderID != "" && m.SenderID == f.ExcludeSenderID {
		return false
	}
	return true
}

func (f Filter) hasType(t MessageType) bool {
	for _, want := range f.Types {
		if want == t {
			return true
		}
	}
	return false
}
