package worker

import (
	"context"
	"testing"
	"time"

	"github.com/ajayykmr/billing-notifier/internal/kafka/consumer"
)

func TestNewRecordFromConsumerCopiesAndBindsCommit(t *testing.T) {
	src := &consumer.Record{
		Topic:     "billing.dispatch.request",
		Partition: 2,
		Offset:    11,
		Key:       []byte("k"),
		Value:     []byte(`{}`),
		Timestamp: time.Unix(1700000000, 0),
		Headers:   map[string][]byte{"trace-id": []byte("t")},
	}
	committed := false
	rec := NewRecordFromConsumer(src, func(context.Context) error {
		committed = true
		return nil
	})

	src.Value[0] = 'X'
	src.Headers["trace-id"][0] = 'X'
	if string(rec.Value) != `{}` || string(rec.Headers["trace-id"]) != "t" {
		t.Fatalf("record must not alias the consumer buffers")
	}
	if err := rec.Clone().Commit(context.Background()); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if !committed {
		t.Fatalf("expected clone to share the commit function")
	}
	if NewRecordFromConsumer(nil, nil) != nil {
		t.Fatalf("expected nil for nil record")
	}
}

func TestKafkaHandlerIgnoresNil(t *testing.T) {
	h := KafkaHandler(nil, nil)
	if err := h(context.Background(), &consumer.Record{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
