package sms

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ajayykmr/billing-notifier/internal/api"
)

// HTTPProvider sends payloads to the billing API, which relays them to the
// SMS gateway.
type HTTPProvider struct {
	logger zerolog.Logger
	client *api.Client
}

// NewHTTPProvider wraps an API client.
func NewHTTPProvider(client *api.Client, logger zerolog.Logger) (*HTTPProvider, error) {
	if client == nil {
		return nil, errors.New("sms http provider: api client is required")
	}
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	return &HTTPProvider{logger: logger, client: client}, nil
}

// Send posts the payload. Errors come back already classified by the API
// client; the raw response is returned whenever the server answered.
func (p *HTTPProvider) Send(ctx context.Context, payload *Payload) (*RawResponse, error) {
	if payload == nil {
		return nil, errors.New("sms http provider: payload is required")
	}
	if strings.TrimSpace(payload.Path) == "" {
		return nil, errors.New("sms http provider: path is required")
	}

	resp, err := p.client.Do(ctx, api.Call{
		Method:    http.MethodPost,
		Path:      payload.Path,
		Body:      payload.Body,
		Token:     payload.Token,
		RequestID: payload.DispatchID,
	})
	var raw *RawResponse
	if resp != nil {
		raw = &RawResponse{Code: resp.StatusCode, Body: string(resp.Body), Timestamp: resp.ReceivedAt}
	}
	if err != nil {
		p.logger.Debug().
			Str("dispatch_id", payload.DispatchID).
			Str("endpoint", payload.Path).
			Err(err).
			Msg("sms http provider send failed")
		return raw, err
	}
	return raw, nil
}
