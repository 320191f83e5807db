package models

import "time"

// Status event constants, one per dispatcher transition.
const (
	StatusEventRequested    = "requested"
	StatusEventConfirmed    = "confirmed"
	StatusEventCancelled    = "cancelled"
	StatusEventSending      = "sending"
	StatusEventSent         = "sent"
	StatusEventFailed       = "failed"
	StatusEventAcknowledged = "acknowledged"
	StatusEventDLQ          = "dlq"
)

// Receipt is the server acknowledgment of one successful dispatch.
type Receipt struct {
	DispatchID string    `json:"dispatch_id"`
	Segment    string    `json:"segment"`
	Endpoint   string    `json:"endpoint"`
	StatusCode int       `json:"status_code"`
	Message    string    `json:"message,omitempty"`
	Raw        string    `json:"raw,omitempty"`
	SentAt     time.Time `json:"sent_at"`
}

// StatusEvent represents lifecycle events emitted for a dispatch.
type StatusEvent struct {
	DispatchID string    `json:"dispatch_id"`
	Segment    string    `json:"segment"`
	EventType  string    `json:"event_type"`
	Receipt    *Receipt  `json:"receipt,omitempty"`
	Error      string    `json:"error,omitempty"`
	TraceID    string    `json:"trace_id,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}
