package common

import (
	"context"

	"github.com/ajayykmr/billing-notifier/internal/models"
)

// Adapter maps one confirmed dispatch onto exactly one outbound call. Errors
// are classified as ErrValidation, ErrNetwork or ErrServer.
type Adapter interface {
	Send(ctx context.Context, env *Envelope) (*models.Receipt, error)
}
