package sms

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/rs/zerolog"

	common "github.com/ajayykmr/billing-notifier/internal/adapters/common"
	"github.com/ajayykmr/billing-notifier/internal/models"
	smsprovider "github.com/ajayykmr/billing-notifier/internal/providers/sms"
)

// Endpoints of the billing API, relative to the API base.
const (
	EndpointAll         = "/send-to-all"
	EndpointUnpaid      = "/send-sms-unpaid"
	EndpointLowBalance  = "/send-sms-low-balance"
	EndpointHighBalance = "/send-sms-high-balance"
	EndpointCustomer    = "/send-sms"
	EndpointGroup       = "/send-to-group"
)

// Option modifies adapter behaviour.
type Option func(*Adapter)

// WithRawBodyLimit overrides how much of the response body to keep in receipts.
func WithRawBodyLimit(limit int) Option {
	return func(a *Adapter) {
		if limit > 0 {
			a.maxRawChars = limit
		}
	}
}

// Adapter implements common.Adapter by mapping a segment onto its endpoint.
type Adapter struct {
	logger      zerolog.Logger
	provider    smsprovider.Provider
	maxRawChars int
}

// NewAdapter constructs an SMS adapter using the supplied provider.
func NewAdapter(provider smsprovider.Provider, logger zerolog.Logger, opts ...Option) (*Adapter, error) {
	if provider == nil {
		return nil, errors.New("sms adapter: provider dependency is required")
	}
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}

	a := &Adapter{
		logger:      logger,
		provider:    provider,
		maxRawChars: common.DefaultRawBodyLimit,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a, nil
}

// Route resolves the endpoint and request body for a dispatch. A nil body
// means the request is sent without one.
func Route(req models.DispatchRequest) (string, any, error) {
	seg := req.Segment
	msg := strings.TrimSpace(req.Message)

	switch seg.Kind {
	case models.SegmentAll:
		if msg == "" {
			return "", nil, common.WrapValidation(errors.New("message is required"))
		}
		return EndpointAll, map[string]string{"message": msg}, nil
	case models.SegmentUnpaid:
		return EndpointUnpaid, optionalMessage(msg), nil
	case models.SegmentLowBalance:
		return EndpointLowBalance, optionalMessage(msg), nil
	case models.SegmentHighBalance:
		return EndpointHighBalance, optionalMessage(msg), nil
	case models.SegmentDay:
		if seg.Day == "" {
			return "", nil, common.WrapValidation(errors.New("day is required"))
		}
		if msg == "" {
			return "", nil, common.WrapValidation(errors.New("message is required"))
		}
		if seg.Mobile != "" {
			return EndpointCustomer, map[string]string{"mobile": seg.Mobile, "message": msg}, nil
		}
		return EndpointGroup, map[string]string{"day": string(seg.Day), "message": msg}, nil
	default:
		return "", nil, common.WrapValidation(fmt.Errorf("unknown segment %q", seg.Kind))
	}
}

func optionalMessage(msg string) any {
	if msg == "" {
		return nil
	}
	return map[string]string{"message": msg}
}

// Send performs exactly one outbound call for the envelope.
func (a *Adapter) Send(ctx context.Context, env *common.Envelope) (*models.Receipt, error) {
	if env == nil {
		return nil, common.WrapValidation(errors.New("sms adapter: envelope is nil"))
	}

	path, body, err := Route(env.Request)
	if err != nil {
		return nil, err
	}

	payload := &smsprovider.Payload{
		DispatchID: env.DispatchID,
		Path:       path,
		Body:       body,
		Token:      env.Token,
	}

	raw, err := a.provider.Send(ctx, payload)
	receipt := a.buildReceipt(env, path, raw)
	if err != nil {
		classified := classifyError(raw, err)
		a.logger.Warn().
			Str("dispatch_id", env.DispatchID).
			Str("segment", env.Request.Segment.String()).
			Str("endpoint", path).
			Int("status_code", receipt.StatusCode).
			Err(classified).
			Msg("sms adapter send failed")
		return receipt, classified
	}

	a.logger.Debug().
		Str("dispatch_id", env.DispatchID).
		Str("segment", env.Request.Segment.String()).
		Str("endpoint", path).
		Int("status_code", receipt.StatusCode).
		Msg("sms adapter send succeeded")
	return receipt, nil
}

func (a *Adapter) buildReceipt(env *common.Envelope, path string, raw *smsprovider.RawResponse) *models.Receipt {
	r := &models.Receipt{
		DispatchID: env.DispatchID,
		Segment:    env.Request.Segment.String(),
		Endpoint:   path,
	}
	if raw != nil {
		r.StatusCode = raw.Code
		r.Message = common.AckMessage([]byte(raw.Body))
		r.Raw = common.TruncateRaw(raw.Body, a.maxRawChars)
		r.SentAt = raw.Timestamp
	}
	return r
}

// classifyError keeps errors already in the taxonomy and maps the rest by
// the response that came back, if any.
func classifyError(raw *smsprovider.RawResponse, err error) error {
	switch {
	case errors.Is(err, common.ErrServer), errors.Is(err, common.ErrNetwork), errors.Is(err, common.ErrValidation):
		return err
	case raw != nil && (raw.Code < 200 || raw.Code > 299):
		msg := common.AckMessage([]byte(raw.Body))
		if msg == "" {
			msg = err.Error()
		}
		return &common.ServerError{StatusCode: raw.Code, Message: msg}
	default:
		return common.WrapNetwork(err)
	}
}
