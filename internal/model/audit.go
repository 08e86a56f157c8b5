package model

import "time"

// AuditFeedback is an optional user rating attached to an audit entry
// after the fact. Attachment by reference is the only permitted mutation
// of the audit log.
type AuditFeedback struct {
	Rating string `json:"rating"` // e.g. "helpful", "incorrect"
	Notes  string `json:"notes,omitempty"`
}

// ExplainAuditEntry is one write-once record of an explanation: the
// literal evidence queries and the ranked slices they produced. An
// explanation is only valid if it is reproducible from this entry.
type ExplainAuditEntry struct {
	ID             string         `json:"id"`
	Timestamp      time.Time      `json:"timestamp"`
	KpiName        string         `json:"kpi_name"`
	Date           string         `json:"date"`
	SQLUsed        string         `json:"sql_used"`         // serialized []EvidenceQuery
	SlicesReturned string         `json:"slices_returned"`  // serialized []DriverSlice
	UserFeedback   *AuditFeedback `json:"user_feedback,omitempty"`
	RequestID      string         `json:"request_id"`
}
