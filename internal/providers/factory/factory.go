package factory

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ajayykmr/billing-notifier/internal/api"
	"github.com/ajayykmr/billing-notifier/internal/config"
	smsprovider "github.com/ajayykmr/billing-notifier/internal/providers/sms"
)

// SMS constructs the configured send provider. Supports the billing API
// over HTTP and a mock backend for dry runs.
func SMS(cfg config.ProviderConfig, client *api.Client, logger zerolog.Logger) (smsprovider.Provider, error) {
	backend := normalize(cfg.SMSProvider, "http")
	switch backend {
	case "http":
		provider, err := smsprovider.NewHTTPProvider(client, logger)
		if err != nil {
			return nil, fmt.Errorf("factory: http sms provider init: %w", err)
		}
		logger.Info().
			Str("backend", "http").
			Str("base_url", client.BaseURL()).
			Msg("sms provider initialised")
		return provider, nil
	case "mock":
		provider := smsprovider.NewMockProvider(logger)
		logger.Info().
			Str("backend", "mock").
			Msg("sms provider initialised")
		return provider, nil
	default:
		return nil, fmt.Errorf("factory: unsupported sms provider backend %q", cfg.SMSProvider)
	}
}

func normalize(value, def string) string {
	value = strings.TrimSpace(strings.ToLower(value))
	if value == "" {
		return def
	}
	return value
}
