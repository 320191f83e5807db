package sms

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Scenario enumerates the mock behaviours supported by the provider.
type Scenario string

const (
	ScenarioSuccess      Scenario = "success"
	ScenarioServerError  Scenario = "server_error"
	ScenarioUnauthorized Scenario = "unauthorized"
	ScenarioNetwork      Scenario = "network"
)

// Option customises the mock provider.
type Option func(*MockProvider)

// WithScenario sets the scenario used for every send.
func WithScenario(s Scenario) Option {
	return func(p *MockProvider) {
		p.scenario = s
	}
}

// WithLatency configures the artificial latency injected before answering.
func WithLatency(d time.Duration) Option {
	return func(p *MockProvider) {
		if d < 0 {
			d = 0
		}
		p.latency = d
	}
}

// WithClock overrides the clock used to timestamp responses (useful for tests).
func WithClock(now func() time.Time) Option {
	return func(p *MockProvider) {
		if now != nil {
			p.now = now
		}
	}
}

// MockProvider is a deterministic provider for tests and dry runs. It records
// every payload it receives.
type MockProvider struct {
	logger   zerolog.Logger
	scenario Scenario
	latency  time.Duration
	now      func() time.Time

	mu    sync.Mutex
	calls []Payload
}

// NewMockProvider constructs a mock provider.
func NewMockProvider(logger zerolog.Logger, opts ...Option) *MockProvider {
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	p := &MockProvider{
		logger:   logger,
		scenario: ScenarioSuccess,
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Calls returns a copy of the recorded payloads.
func (p *MockProvider) Calls() []Payload {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Payload(nil), p.calls...)
}

// Send simulates one call according to the configured scenario.
func (p *MockProvider) Send(ctx context.Context, payload *Payload) (*RawResponse, error) {
	if payload == nil {
		return nil, errors.New("sms mock: payload is required")
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	p.mu.Lock()
	p.calls = append(p.calls, *payload)
	p.mu.Unlock()

	if p.latency > 0 {
		timer := time.NewTimer(p.latency)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	p.logger.Debug().
		Str("dispatch_id", payload.DispatchID).
		Str("endpoint", payload.Path).
		Str("scenario", string(p.scenario)).
		Msg("sms mock send")

	response := &RawResponse{
		Code:      200,
		Body:      `{"message":"mock: message accepted"}`,
		Timestamp: p.now(),
	}

	switch p.scenario {
	case ScenarioSuccess:
		return response, nil
	case ScenarioServerError:
		response.Code = 500
		response.Body = `{"message":"mock: gateway failure"}`
		return response, fmt.Errorf("sms mock: gateway failure")
	case ScenarioUnauthorized:
		response.Code = 401
		response.Body = `{"message":"mock: unauthorized"}`
		return response, fmt.Errorf("sms mock: unauthorized")
	case ScenarioNetwork:
		return nil, fmt.Errorf("sms mock: connection reset")
	default:
		return nil, fmt.Errorf("sms mock unknown scenario: %s", p.scenario)
	}
}
