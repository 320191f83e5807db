package worker

import (
	"context"

	"github.com/ajayykmr/billing-notifier/internal/kafka/consumer"
)

// NewRecordFromConsumer copies a consumer record and binds commit, which the
// engine calls once the command has been sent or dead-lettered.
func NewRecordFromConsumer(rec *consumer.Record, commit func(context.Context) error) *Record {
	if rec == nil {
		return nil
	}

	wr := &Record{
		Topic:     rec.Topic,
		Partition: rec.Partition,
		Offset:    rec.Offset,
		Key:       cloneBytes(rec.Key),
		Value:     cloneBytes(rec.Value),
		Timestamp: rec.Timestamp,
		Headers:   cloneHeaders(rec.Headers),
	}
	if commit != nil {
		wr.setCommitFn(commit)
	}
	return wr
}
