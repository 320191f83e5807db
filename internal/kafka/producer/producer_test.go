package producer

import (
	"testing"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"
)

func TestNewRequiresBrokers(t *testing.T) {
	if _, err := New(nil, zerolog.Nop()); err == nil {
		t.Fatalf("expected error without brokers")
	}
}

func TestDefaultConfigIsIdempotent(t *testing.T) {
	cfg := defaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if !cfg.Producer.Idempotent || cfg.Producer.RequiredAcks != sarama.WaitForAll {
		t.Fatalf("expected idempotent producer with full acks")
	}
}

func TestCloneConfigLeavesCallerUntouched(t *testing.T) {
	orig := defaultConfig()
	cloned := cloneConfig(orig)
	cloned.ClientID = "changed"
	if orig.ClientID == "changed" {
		t.Fatalf("clone must not alias the caller config")
	}
}

func TestToRecordHeaders(t *testing.T) {
	if toRecordHeaders(nil) != nil {
		t.Fatalf("expected nil headers")
	}
	src := []byte("application/json")
	headers := toRecordHeaders(map[string][]byte{"content-type": src})
	src[0] = 'X'
	if len(headers) != 1 || string(headers[0].Value) != "application/json" {
		t.Fatalf("unexpected headers %+v", headers)
	}
}
