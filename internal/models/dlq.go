package models

import "time"

// Failure types for DLQ records. They mirror the dispatcher error taxonomy.
const (
	FailureTypeValidation = "validation"
	FailureTypeState      = "state"
	FailureTypeNetwork    = "network"
	FailureTypeServer     = "server"
	FailureTypeUnknown    = "unknown"
)

// DLQRecord is published for every dispatch that did not succeed. Nothing is
// retried automatically; an operator re-invokes from this record.
type DLQRecord struct {
	DispatchID      string            `json:"dispatch_id"`
	CommandID       string            `json:"command_id,omitempty"`
	Segment         string            `json:"segment"`
	OriginalMessage any               `json:"original_message"`
	FailureType     string            `json:"failure_type"`
	StatusCode      int               `json:"status_code,omitempty"`
	LastError       string            `json:"last_error,omitempty"`
	FailedAt        time.Time         `json:"failed_at"`
	TraceID         string            `json:"trace_id,omitempty"`
	Meta            map[string]string `json:"meta,omitempty"`
}
