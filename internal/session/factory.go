package session

import (
	"fmt"

	"github.com/ajayykmr/billing-notifier/internal/config"
)

// NewStore builds the configured store. The returned closer releases any
// connection the store holds.
func NewStore(cfg config.SessionConfig) (Store, func() error, error) {
	switch cfg.Backend {
	case "", "file":
		store, err := NewFileStore(cfg.File)
		if err != nil {
			return nil, nil, err
		}
		return store, func() error { return nil }, nil
	case "redis":
		client := DialRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		store, err := NewRedisStore(client, cfg.Key)
		if err != nil {
			client.Close()
			return nil, nil, err
		}
		return store, client.Close, nil
	default:
		return nil, nil, fmt.Errorf("session: unsupported backend %q", cfg.Backend)
	}
}
