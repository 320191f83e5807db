package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	smsadapter "github.com/ajayykmr/billing-notifier/internal/adapters/sms"
	"github.com/ajayykmr/billing-notifier/internal/api"
	"github.com/ajayykmr/billing-notifier/internal/config"
	"github.com/ajayykmr/billing-notifier/internal/dispatch"
	"github.com/ajayykmr/billing-notifier/internal/logger"
	"github.com/ajayykmr/billing-notifier/internal/providers/factory"
	"github.com/ajayykmr/billing-notifier/internal/session"
)

// Session opens the configured session store and loads any saved session.
// The returned closer releases the store.
func Session(ctx context.Context, cfg config.SessionConfig, log zerolog.Logger) (*session.Manager, func() error, error) {
	store, closer, err := session.NewStore(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("session store: %w", err)
	}
	mgr, err := session.NewManager(store, logger.Component(log, "session"))
	if err != nil {
		closer()
		return nil, nil, err
	}
	if err := mgr.Load(ctx); err != nil {
		closer()
		return nil, nil, fmt.Errorf("load session: %w", err)
	}
	return mgr, closer, nil
}

// Client builds the billing API client. tokens may be nil.
func Client(cfg config.APIConfig, tokens api.TokenSource, log zerolog.Logger) (*api.Client, error) {
	opts := []api.Option{
		api.WithTimeout(time.Duration(cfg.TimeoutSeconds) * time.Second),
		api.WithBodyLimit(int64(cfg.MaxBodyBytes)),
	}
	if tokens != nil {
		opts = append(opts, api.WithTokenSource(tokens))
	}
	return api.New(cfg.BaseURL, logger.Component(log, "api-client"), opts...)
}

// DispatcherOptions carries the optional dispatcher collaborators.
type DispatcherOptions struct {
	Session dispatch.Session
	Events  dispatch.StatusPublisher
	Metrics dispatch.Recorder
}

// Dispatcher wires provider, adapter and dispatcher for cfg.
func Dispatcher(cfg *config.Config, client *api.Client, log zerolog.Logger, opts DispatcherOptions) (*dispatch.Dispatcher, error) {
	provider, err := factory.SMS(cfg.Providers, client, logger.Component(log, "sms-provider"))
	if err != nil {
		return nil, err
	}
	adapter, err := smsadapter.NewAdapter(provider, logger.Component(log, "sms-adapter"))
	if err != nil {
		return nil, err
	}
	return dispatch.New(dispatch.Deps{
		Adapter:    adapter,
		Session:    opts.Session,
		Events:     opts.Events,
		Metrics:    opts.Metrics,
		Logger:     logger.Component(log, "dispatcher"),
		SMSBodyMax: cfg.Validation.SMSBodyMax,
	})
}
