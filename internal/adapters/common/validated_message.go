package common

import (
	"time"

	"github.com/ajayykmr/billing-notifier/internal/models"
)

// Envelope carries one confirmed dispatch from the dispatcher to an adapter.
// Token is the bearer token of the injected session and may be empty.
type Envelope struct {
	DispatchID string
	TraceID    string
	CreatedAt  time.Time
	Request    models.DispatchRequest
	Token      string
}
