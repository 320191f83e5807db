package dispatchvalidator

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	common "github.com/ajayykmr/billing-notifier/internal/adapters/common"
	"github.com/ajayykmr/billing-notifier/internal/config"
	"github.com/ajayykmr/billing-notifier/internal/models"
)

const commandID = "b0c9c2b0-1f3a-4d2d-9e3f-123456789abc"

func newValidator() *Validator {
	return New(config.ValidationConfig{SMSBodyMax: 20}, zerolog.Nop())
}

func TestParseAndValidateDayCustomer(t *testing.T) {
	payload := `{"command_id":"` + commandID + `","segment":"day","day":"monday","mobile":"0712 345 678","message":" Reminder ","created_at":"2024-05-01T10:00:00Z","meta":{" source ":"cli"}}`

	job, err := newValidator().ParseAndValidate(context.Background(), []byte(payload))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := models.DayCustomer(models.Monday, "0712345678")
	if job.Request.Segment != want {
		t.Fatalf("expected segment %v, got %v", want, job.Request.Segment)
	}
	if job.Request.Message != "Reminder" {
		t.Fatalf("expected trimmed message, got %q", job.Request.Message)
	}
	if job.Command.Meta["source"] != "cli" {
		t.Fatalf("expected normalised meta, got %v", job.Command.Meta)
	}
}

func TestParseAndValidateSegments(t *testing.T) {
	for _, seg := range []string{"all", "unpaid", "low-balance", "HIGH_BALANCE"} {
		payload := `{"command_id":"` + commandID + `","segment":"` + seg + `","message":"hi","created_at":"2024-05-01T10:00:00Z"}`
		if _, err := newValidator().ParseAndValidate(context.Background(), []byte(payload)); err != nil {
			t.Fatalf("%s: unexpected error %v", seg, err)
		}
	}
}

func TestParseAndValidateFailures(t *testing.T) {
	tests := map[string]string{
		"empty":          ``,
		"not json":       `nope`,
		"unknown field":  `{"command_id":"` + commandID + `","segment":"all","channel":"sms","created_at":"2024-05-01T10:00:00Z"}`,
		"bad command id": `{"command_id":"abc","segment":"all","message":"hi","created_at":"2024-05-01T10:00:00Z"}`,
		"no created_at":  `{"command_id":"` + commandID + `","segment":"all","message":"hi"}`,
		"bad segment":    `{"command_id":"` + commandID + `","segment":"vip","message":"hi","created_at":"2024-05-01T10:00:00Z"}`,
		"bad day":        `{"command_id":"` + commandID + `","segment":"day","day":"funday","message":"hi","created_at":"2024-05-01T10:00:00Z"}`,
		"bad mobile":     `{"command_id":"` + commandID + `","segment":"day","day":"monday","mobile":"07x","message":"hi","created_at":"2024-05-01T10:00:00Z"}`,
		"too long":       `{"command_id":"` + commandID + `","segment":"all","message":"` + strings.Repeat("a", 21) + `","created_at":"2024-05-01T10:00:00Z"}`,
	}
	for name, payload := range tests {
		_, err := newValidator().ParseAndValidate(context.Background(), []byte(payload))
		if !errors.Is(err, common.ErrValidation) {
			t.Fatalf("%s: expected validation error, got %v", name, err)
		}
	}
}

func TestParseAndValidateKeepsCommandOnFailure(t *testing.T) {
	payload := `{"command_id":"` + commandID + `","segment":"vip","message":"hi","created_at":"2024-05-01T10:00:00Z","trace_id":"t-1"}`
	job, err := newValidator().ParseAndValidate(context.Background(), []byte(payload))
	if err == nil {
		t.Fatalf("expected error")
	}
	if job == nil || job.Command.CommandID != commandID || job.Command.TraceID != "t-1" {
		t.Fatalf("expected decoded command on failure, got %+v", job)
	}
}
