package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"github.com/rs/zerolog"

	"github.com/ajayykmr/billing-notifier/internal/models"
)

// ErrProducerNotInitialised is returned by a publisher without a producer.
var ErrProducerNotInitialised = errors.New("kafka publisher: producer not initialised")

// SyncProducer is the subset of the producer the publishers need.
type SyncProducer interface {
	PublishSync(topic string, key []byte, headers map[string][]byte, payload []byte) error
}

// StatusPublisher emits dispatch lifecycle events. Events are keyed by
// dispatch id so one dispatch stays on one partition.
type StatusPublisher struct {
	producer SyncProducer
	topic    string
	logger   zerolog.Logger
}

// NewStatusPublisher returns nil when prod is nil.
func NewStatusPublisher(prod SyncProducer, topic string, logger zerolog.Logger) *StatusPublisher {
	if prod == nil {
		return nil
	}
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	return &StatusPublisher{producer: prod, topic: topic, logger: logger}
}

// PublishStatus writes one event synchronously.
func (p *StatusPublisher) PublishStatus(_ context.Context, event models.StatusEvent) error {
	if p == nil || p.producer == nil {
		return ErrProducerNotInitialised
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("kafka publisher: marshal status event: %w", err)
	}
	headers := eventHeaders(event.EventType, event.TraceID)
	if err := p.producer.PublishSync(p.topic, []byte(event.DispatchID), headers, payload); err != nil {
		return fmt.Errorf("kafka publisher: publish status event: %w", err)
	}
	p.logger.Debug().
		Str("dispatch_id", event.DispatchID).
		Str("event_type", event.EventType).
		Msg("status event published")
	return nil
}

// DLQPublisher writes failed dispatches for manual re-invocation.
type DLQPublisher struct {
	producer SyncProducer
	topic    string
	logger   zerolog.Logger
}

// NewDLQPublisher returns nil when prod is nil.
func NewDLQPublisher(prod SyncProducer, topic string, logger zerolog.Logger) *DLQPublisher {
	if prod == nil {
		return nil
	}
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	return &DLQPublisher{producer: prod, topic: topic, logger: logger}
}

// PublishDLQ writes one record synchronously, keyed by command id.
func (p *DLQPublisher) PublishDLQ(_ context.Context, record models.DLQRecord) error {
	if p == nil || p.producer == nil {
		return ErrProducerNotInitialised
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("kafka publisher: marshal dlq record: %w", err)
	}
	key := record.CommandID
	if key == "" {
		key = record.DispatchID
	}
	headers := eventHeaders(models.StatusEventDLQ, record.TraceID)
	headers["failure-type"] = []byte(record.FailureType)
	if err := p.producer.PublishSync(p.topic, []byte(key), headers, payload); err != nil {
		return fmt.Errorf("kafka publisher: publish dlq record: %w", err)
	}
	p.logger.Debug().
		Str("command_id", record.CommandID).
		Str("failure_type", record.FailureType).
		Msg("dlq record published")
	return nil
}

func eventHeaders(eventType, traceID string) map[string][]byte {
	headers := map[string][]byte{
		"content-type": []byte("application/json"),
		"event-type":   []byte(eventType),
	}
	if traceID != "" {
		headers["trace-id"] = []byte(traceID)
	}
	return headers
}
