package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajayykmr/billing-notifier/internal/config"
	"github.com/ajayykmr/billing-notifier/internal/models"
	"github.com/ajayykmr/billing-notifier/internal/session"
)

func TestDispatcherWithMockProvider(t *testing.T) {
	ctx := context.Background()
	cfg := &config.Config{
		API:        config.APIConfig{BaseURL: "http://localhost:5000/api"},
		Providers:  config.ProviderConfig{SMSProvider: "mock"},
		Validation: config.ValidationConfig{SMSBodyMax: 160},
		Session:    config.SessionConfig{Backend: "file", File: filepath.Join(t.TempDir(), "session.json")},
	}

	mgr, closeStore, err := Session(ctx, cfg.Session, zerolog.Nop())
	require.NoError(t, err)
	defer closeStore()
	require.NoError(t, mgr.Begin(ctx, session.Session{Token: "opaque"}))

	client, err := Client(cfg.API, mgr, zerolog.Nop())
	require.NoError(t, err)

	d, err := Dispatcher(cfg, client, zerolog.Nop(), DispatcherOptions{Session: mgr})
	require.NoError(t, err)

	receipt, err := d.Run(ctx, models.DispatchRequest{Segment: models.HighBalance(), Message: "Top up"})
	require.NoError(t, err)
	assert.Equal(t, "/send-sms-high-balance", receipt.Endpoint)
	assert.Equal(t, "mock: message accepted", receipt.Message)
}

func TestClientRejectsBadBaseURL(t *testing.T) {
	_, err := Client(config.APIConfig{BaseURL: "not a url"}, nil, zerolog.Nop())
	assert.Error(t, err)
}
