package sms

import (
	"context"
	"time"
)

// Payload is one outbound send as the billing API expects it. A nil Body
// sends no request body.
type Payload struct {
	DispatchID string
	Path       string
	Body       any
	Token      string
}

// RawResponse describes the low-level response to a send.
type RawResponse struct {
	Code      int
	Body      string
	Timestamp time.Time
}

// Provider performs the outbound call for a payload.
type Provider interface {
	Send(ctx context.Context, payload *Payload) (*RawResponse, error)
}
