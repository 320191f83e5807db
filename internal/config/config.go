package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config captures all runtime configuration for the notifier CLI and the
// dispatch worker.
type Config struct {
	App        AppConfig
	API        APIConfig
	Providers  ProviderConfig
	Validation ValidationConfig
	Session    SessionConfig
	Kafka      KafkaConfig
	Health     HealthConfig
}

// AppConfig contains generic application level settings.
type AppConfig struct {
	Env      string
	Port     int
	LogLevel string
}

// APIConfig describes the billing backend.
type APIConfig struct {
	BaseURL string
	// TimeoutSeconds of 0 leaves the transport default in place.
	TimeoutSeconds int
	MaxBodyBytes   int
}

// ProviderConfig selects the outbound send backend.
type ProviderConfig struct {
	SMSProvider string
}

// ValidationConfig holds the limits used while validating dispatches.
type ValidationConfig struct {
	MsgMaxBytes int
	SMSBodyMax  int
}

// SessionConfig selects where the signed-in session is persisted.
type SessionConfig struct {
	Backend       string
	File          string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Key           string
}

// KafkaConfig defines broker information and the dispatch topics.
type KafkaConfig struct {
	Brokers             []string
	RequestTopic        string
	StatusTopic         string
	DLQTopic            string
	ConsumerGroup       string
	CommitOnSuccessOnly bool
}

// HealthConfig controls the worker's health endpoints.
type HealthConfig struct {
	HandlerTimeoutMs int
}

// Enabled reports whether any broker is configured.
func (k KafkaConfig) Enabled() bool { return len(k.Brokers) > 0 }

// Validate checks the settings the dispatch worker cannot run without.
func (k KafkaConfig) Validate() error {
	ldr := &envLoader{}
	if len(k.Brokers) == 0 {
		ldr.addError("KAFKA_BROKERS is required")
	}
	if k.RequestTopic == "" {
		ldr.addError("KAFKA_DISPATCH_REQUEST_TOPIC is required")
	}
	if k.StatusTopic == "" {
		ldr.addError("KAFKA_DISPATCH_STATUS_TOPIC is required")
	}
	if k.DLQTopic == "" {
		ldr.addError("KAFKA_DISPATCH_DLQ_TOPIC is required")
	}
	if k.ConsumerGroup == "" {
		ldr.addError("DISPATCH_CONSUMER_GROUP is required")
	}
	return ldr.validate()
}

var (
	smsProviders     = []string{"http", "mock"}
	sessionBackends  = []string{"file", "redis"}
	defaultSessionID = "billing-notifier:session"
)

// Load reads environment variables, applies defaults, validates required
// values and returns a populated Config instance.
func Load() (*Config, error) {
	_ = godotenv.Load()

	ldr := &envLoader{}

	cfg := &Config{}
	cfg.App.Env = ldr.getString("APP_ENV", "development", false)
	cfg.App.Port = ldr.getInt("APP_PORT", 8080, false)
	cfg.App.LogLevel = ldr.getString("LOG_LEVEL", "info", false)

	cfg.API.BaseURL = strings.TrimRight(ldr.getString("API_BASE_URL", "", true), "/")
	cfg.API.TimeoutSeconds = ldr.getInt("API_TIMEOUT_SECONDS", 0, false)
	cfg.API.MaxBodyBytes = ldr.getInt("API_MAX_BODY_BYTES", 16*1024, false)
	if cfg.API.TimeoutSeconds < 0 {
		ldr.addError("API_TIMEOUT_SECONDS cannot be negative")
	}

	cfg.Providers.SMSProvider = ldr.getEnum("SMS_PROVIDER", "http", smsProviders)

	cfg.Validation.MsgMaxBytes = ldr.getInt("MSG_MAX_BYTES", 64*1024, false)
	cfg.Validation.SMSBodyMax = ldr.getInt("SMS_BODY_MAX", 1600, false)

	cfg.Session.Backend = ldr.getEnum("SESSION_BACKEND", "file", sessionBackends)
	cfg.Session.File = ldr.getString("SESSION_FILE", defaultSessionFile(), false)
	cfg.Session.Key = ldr.getString("SESSION_KEY", defaultSessionID, false)
	requireRedis := cfg.Session.Backend == "redis"
	cfg.Session.RedisAddr = ldr.getString("REDIS_ADDR", "", requireRedis)
	cfg.Session.RedisPassword = ldr.getString("REDIS_PASSWORD", "", false)
	cfg.Session.RedisDB = ldr.getInt("REDIS_DB", 0, false)

	cfg.Kafka.Brokers = ldr.getStringSlice("KAFKA_BROKERS", false)
	cfg.Kafka.RequestTopic = ldr.getString("KAFKA_DISPATCH_REQUEST_TOPIC", "billing.dispatch.request", false)
	cfg.Kafka.StatusTopic = ldr.getString("KAFKA_DISPATCH_STATUS_TOPIC", "billing.dispatch.status", false)
	cfg.Kafka.DLQTopic = ldr.getString("KAFKA_DISPATCH_DLQ_TOPIC", "billing.dispatch.dlq", false)
	cfg.Kafka.ConsumerGroup = ldr.getString("DISPATCH_CONSUMER_GROUP", "billing-dispatch-worker", false)
	cfg.Kafka.CommitOnSuccessOnly = ldr.getBool("COMMIT_ON_SUCCESS_ONLY", true, false)

	cfg.Health.HandlerTimeoutMs = ldr.getInt("HEALTH_HANDLER_TIMEOUT_MS", 500, false)

	if err := ldr.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func defaultSessionFile() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join(".", ".billing-notifier", "session.json")
	}
	return filepath.Join(home, ".billing-notifier", "session.json")
}

type envLoader struct {
	errs []string
}

func (l *envLoader) validate() error {
	if len(l.errs) == 0 {
		return nil
	}
	return fmt.Errorf("config validation failed: %s", strings.Join(l.errs, "; "))
}

func (l *envLoader) getString(key, def string, required bool) string {
	if val, ok := os.LookupEnv(key); ok {
		val = strings.TrimSpace(val)
		if val == "" {
			if required {
				l.addError(fmt.Sprintf("%s is required", key))
			}
			return def
		}
		return val
	}
	if required {
		l.addError(fmt.Sprintf("%s is required", key))
	}
	return def
}

func (l *envLoader) getEnum(key, def string, allowed []string) string {
	val := strings.ToLower(l.getString(key, def, false))
	for _, a := range allowed {
		if val == a {
			return val
		}
	}
	l.addError(fmt.Sprintf("%s must be one of %s", key, strings.Join(allowed, ", ")))
	return def
}

func (l *envLoader) getInt(key string, def int, required bool) int {
	if val, ok := os.LookupEnv(key); ok {
		val = strings.TrimSpace(val)
		if val == "" {
			if required {
				l.addError(fmt.Sprintf("%s is required", key))
			}
			return def
		}
		i, err := strconv.Atoi(val)
		if err != nil {
			l.addError(fmt.Sprintf("%s must be a valid integer", key))
			return def
		}
		return i
	}
	if required {
		l.addError(fmt.Sprintf("%s is required", key))
	}
	return def
}

func (l *envLoader) getBool(key string, def bool, required bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		val = strings.TrimSpace(val)
		if val == "" {
			if required {
				l.addError(fmt.Sprintf("%s is required", key))
			}
			return def
		}
		parsed, err := strconv.ParseBool(val)
		if err != nil {
			l.addError(fmt.Sprintf("%s must be a valid boolean", key))
			return def
		}
		return parsed
	}
	if required {
		l.addError(fmt.Sprintf("%s is required", key))
	}
	return def
}

func (l *envLoader) getStringSlice(key string, required bool) []string {
	raw := l.getString(key, "", required)
	if raw == "" {
		if required {
			return nil
		}
		return []string{}
	}
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if required && len(out) == 0 {
		l.addError(fmt.Sprintf("%s must contain at least one entry", key))
	}
	return out
}

func (l *envLoader) addError(err string) {
	l.errs = append(l.errs, err)
}
