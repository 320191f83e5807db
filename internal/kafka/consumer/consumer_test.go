package consumer

import (
	"context"
	"testing"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"
)

type stubSession struct {
	marked  []int64
	commits int
}

func (s *stubSession) Claims() map[string][]int32 { return nil }
func (s *stubSession) MemberID() string           { return "member" }
func (s *stubSession) GenerationID() int32        { return 1 }
func (s *stubSession) MarkOffset(string, int32, int64, string) {
}
func (s *stubSession) Commit() { s.commits++ }
func (s *stubSession) ResetOffset(string, int32, int64, string) {
}
func (s *stubSession) MarkMessage(msg *sarama.ConsumerMessage, _ string) {
	s.marked = append(s.marked, msg.Offset)
}
func (s *stubSession) Context() context.Context { return context.Background() }

func TestNewValidatesArguments(t *testing.T) {
	if _, err := New(nil, "group", zerolog.Nop(), true); err == nil {
		t.Fatalf("expected error without brokers")
	}
	if _, err := New([]string{"localhost:9092"}, "", zerolog.Nop(), true); err == nil {
		t.Fatalf("expected error without group id")
	}
}

func TestCommitMarksOnce(t *testing.T) {
	session := &stubSession{}
	msg := &sarama.ConsumerMessage{
		Topic:   "billing.dispatch.request",
		Offset:  42,
		Value:   []byte(`{}`),
		Headers: []*sarama.RecordHeader{{Key: []byte("trace-id"), Value: []byte("t-1")}, nil},
	}
	record := newRecord(session, msg)
	if string(record.Headers["trace-id"]) != "t-1" {
		t.Fatalf("expected trace header, got %v", record.Headers)
	}

	c := &Consumer{logger: zerolog.Nop(), commitOnAck: true}
	for i := 0; i < 2; i++ {
		if err := c.Commit(context.Background(), record); err != nil {
			t.Fatalf("commit: %v", err)
		}
	}
	if len(session.marked) != 1 || session.marked[0] != 42 || session.commits != 1 {
		t.Fatalf("expected one mark and one commit, got %v / %d", session.marked, session.commits)
	}
}

func TestCommitWithoutSession(t *testing.T) {
	c := &Consumer{logger: zerolog.Nop()}
	if err := c.Commit(context.Background(), &Record{}); err == nil {
		t.Fatalf("expected error for detached record")
	}
}

func TestDefaultConfigValid(t *testing.T) {
	cfg := defaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Consumer.Offsets.Initial != sarama.OffsetOldest {
		t.Fatalf("expected oldest initial offset")
	}
}
