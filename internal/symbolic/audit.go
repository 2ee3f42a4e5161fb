package symbolic

import (
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/xkilldash9x/actiongate/api/schemas"
)

var auditJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// AuditEntry records the verdict on one proposed action.
type AuditEntry struct {
	Index      int                `json:"index"`
	ActionID   string             `json:"action_id,omitempty"`
	ActionType schemas.ActionType `json:"action_type"`
	Target     string             `json:"target,omitempty"`
	Decision   string             `json:"decision"`
	Reason     string             `json:"reason"`
	Affordance string             `json:"affordance,omitempty"`
	Guard      string             `json:"guard,omitempty"`
	Detail     string             `json:"detail,omitempty"`
}

// AuditSummary counts the outcomes of a validation pass.
type AuditSummary struct {
	Total    int  `json:"total"`
	Allowed  int  `json:"allowed"`
	Rejected int  `json:"rejected"`
	Valid    bool `json:"valid"`
}

// AuditRecord is the serializable account of one validation pass. It is meant
// for external storage and is never persisted here.
type AuditRecord struct {
	Context              ValidationContext `json:"context"`
	Timestamp            time.Time         `json:"timestamp"`
	Summary              AuditSummary      `json:"summary"`
	Decisions            []AuditEntry      `json:"decisions"`
	ActiveGuards         []string          `json:"active_guards"`
	EvaluatedAffordances []Affordance      `json:"evaluated_affordances"`
	Warnings             []string          `json:"warnings"`
}

// JSON renders the record as indented JSON.
func (r AuditRecord) JSON() ([]byte, error) {
	return auditJSON.MarshalIndent(r, "", "  ")
}

// ExportAuditLog builds the audit record for result.
func (p *HybridPlanner) ExportAuditLog(result *ValidationResult) AuditRecord {
	return NewAuditRecord(result)
}

// NewAuditRecord builds the audit record for result. Slices are always
// non-nil so the JSON form has stable keys.
func NewAuditRecord(result *ValidationResult) AuditRecord {
	rec := AuditRecord{
		Decisions:            []AuditEntry{},
		ActiveGuards:         []string{},
		EvaluatedAffordances: []Affordance{},
		Warnings:             []string{},
	}
	if result == nil {
		return rec
	}

	rec.Context = result.Context
	rec.Timestamp = result.Timestamp
	rec.ActiveGuards = append(rec.ActiveGuards, result.ActiveGuards...)
	rec.EvaluatedAffordances = append(rec.EvaluatedAffordances, result.EvaluatedAffordances...)
	rec.Warnings = append(rec.Warnings, result.Warnings...)
	rec.Summary = AuditSummary{
		Total:    len(result.Decisions),
		Allowed:  len(result.Allowed),
		Rejected: len(result.Rejected),
		Valid:    result.Valid(),
	}

	for i, d := range result.Decisions {
		entry := AuditEntry{
			Index:      i,
			ActionID:   d.Action.ID,
			ActionType: d.Action.Type,
			Target:     d.Action.Target,
			Decision:   "reject",
			Reason:     d.Reason,
			Guard:      d.Guard,
			Detail:     d.Detail,
		}
		if d.Allowed {
			entry.Decision = "allow"
		}
		if d.Affordance != nil {
			entry.Affordance = d.Affordance.String()
		}
		rec.Decisions = append(rec.Decisions, entry)
	}
	return rec
}
