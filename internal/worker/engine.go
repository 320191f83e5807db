package worker

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	common "github.com/ajayykmr/billing-notifier/internal/adapters/common"
	"github.com/ajayykmr/billing-notifier/internal/dispatch"
	"github.com/ajayykmr/billing-notifier/internal/models"
)

// Config contains the runtime settings of the worker engine.
type Config struct {
	MsgMaxBytes int
}

// Record represents a Kafka message delivered to the worker, decoupled from
// the concrete consumer.
type Record struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	Value     []byte
	Timestamp time.Time
	Headers   map[string][]byte

	commit func(context.Context) error
}

// Commit invokes the commit function bound by the consumer bridge.
func (r *Record) Commit(ctx context.Context) error {
	if r == nil || r.commit == nil {
		return errors.New("worker: record has no commit function")
	}
	return r.commit(ctx)
}

func (r *Record) setCommitFn(fn func(context.Context) error) {
	r.commit = fn
}

// Clone returns a deep copy of the record that shares its commit function.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	clone := *r
	clone.Key = cloneBytes(r.Key)
	clone.Value = cloneBytes(r.Value)
	clone.Headers = cloneHeaders(r.Headers)
	return &clone
}

// Job is a dispatch command that passed validation.
type Job struct {
	Command models.DispatchCommand
	Request models.DispatchRequest
}

// Validator parses and validates an inbound command payload.
type Validator interface {
	ParseAndValidate(ctx context.Context, payload []byte) (*Job, error)
}

// Runner performs one full dispatch cycle. *dispatch.Dispatcher implements it.
type Runner interface {
	Run(ctx context.Context, req models.DispatchRequest) (*models.Receipt, error)
}

// StatusPublisher publishes events for commands rejected before dispatch.
type StatusPublisher interface {
	PublishStatus(ctx context.Context, event models.StatusEvent) error
}

// DLQPublisher writes failed commands to the DLQ topic.
type DLQPublisher interface {
	PublishDLQ(ctx context.Context, record models.DLQRecord) error
}

// Committer commits Kafka offsets after processing.
type Committer interface {
	Commit(ctx context.Context, record *Record) error
}

// CommitFunc adapts a function to Committer.
type CommitFunc func(ctx context.Context, record *Record) error

// Commit implements Committer.
func (f CommitFunc) Commit(ctx context.Context, record *Record) error {
	return f(ctx, record)
}

// DeadLetterCounter is notified for each DLQ record.
type DeadLetterCounter interface {
	DeadLettered()
}

// Dependencies collects the runtime collaborators required by the engine.
type Dependencies struct {
	Runner          Runner
	Validator       Validator
	StatusPublisher StatusPublisher
	DLQPublisher    DLQPublisher
	Committer       Committer
	Metrics         DeadLetterCounter
	Logger          zerolog.Logger
	Now             func() time.Time
}

// Engine feeds dispatch commands to the runner one at a time. Nothing is
// retried: a failed command goes to the DLQ and its offset is committed.
type Engine struct {
	cfg             Config
	runner          Runner
	validator       Validator
	statusPublisher StatusPublisher
	dlqPublisher    DLQPublisher
	committer       Committer
	metrics         DeadLetterCounter
	logger          zerolog.Logger

	// Weight 1: at most one send in flight across all partitions.
	semaphore *semaphore.Weighted
	inflight  sync.WaitGroup

	now func() time.Time
}

// NewEngine validates the configuration and collaborators.
func NewEngine(cfg Config, deps Dependencies) (*Engine, error) {
	if cfg.MsgMaxBytes < 0 {
		return nil, errors.New("worker: msg max bytes cannot be negative")
	}
	if deps.Runner == nil {
		return nil, errors.New("worker: runner dependency is required")
	}
	if deps.Validator == nil {
		return nil, errors.New("worker: validator dependency is required")
	}
	if deps.StatusPublisher == nil {
		return nil, errors.New("worker: status publisher dependency is required")
	}
	if deps.DLQPublisher == nil {
		return nil, errors.New("worker: DLQ publisher dependency is required")
	}
	if deps.Committer == nil {
		return nil, errors.New("worker: committer dependency is required")
	}

	logger := deps.Logger
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	nowFunc := deps.Now
	if nowFunc == nil {
		nowFunc = time.Now
	}

	return &Engine{
		cfg:             cfg,
		runner:          deps.Runner,
		validator:       deps.Validator,
		statusPublisher: deps.StatusPublisher,
		dlqPublisher:    deps.DLQPublisher,
		committer:       deps.Committer,
		metrics:         deps.Metrics,
		logger:          logger.With().Str("component", "worker_engine").Logger(),
		semaphore:       semaphore.NewWeighted(1),
		now:             nowFunc,
	}, nil
}

// HandleRecord checks size, validates the command and hands it to a
// goroutine once the single send slot is free.
func (e *Engine) HandleRecord(ctx context.Context, record *Record) {
	if record == nil {
		return
	}

	if e.cfg.MsgMaxBytes > 0 && len(record.Value) > e.cfg.MsgMaxBytes {
		err := common.WrapValidation(fmt.Errorf("payload exceeds maximum size: got %d bytes, limit %d bytes", len(record.Value), e.cfg.MsgMaxBytes))
		e.reject(ctx, record, nil, err)
		return
	}

	job, err := e.validator.ParseAndValidate(ctx, record.Value)
	if err != nil {
		e.reject(ctx, record, job, err)
		return
	}

	if err := e.semaphore.Acquire(ctx, 1); err != nil {
		e.logger.Warn().
			Str("command_id", job.Command.CommandID).
			Err(err).
			Msg("worker: stopped before a send slot was free; command will be redelivered")
		return
	}

	e.inflight.Add(1)
	go e.process(ctx, record.Clone(), job)
}

// Wait blocks until every started command has finished.
func (e *Engine) Wait() {
	e.inflight.Wait()
}

func (e *Engine) process(ctx context.Context, record *Record, job *Job) {
	defer e.inflight.Done()
	defer e.semaphore.Release(1)

	cmd := job.Command
	// A started send runs to completion even when the worker shuts down.
	sendCtx := dispatch.WithTraceID(context.WithoutCancel(ctx), cmd.TraceID)

	start := e.now()
	receipt, err := e.runner.Run(sendCtx, job.Request)
	log := e.logger.With().
		Str("command_id", cmd.CommandID).
		Str("segment", job.Request.Segment.String()).
		Dur("duration", e.now().Sub(start)).
		Logger()

	if err == nil {
		log.Info().Int("status_code", receipt.StatusCode).Msg("worker: dispatch sent")
		e.commitRecord(sendCtx, record)
		return
	}

	log.Warn().Err(err).Msg("worker: dispatch failed")
	dlq := e.dlqRecord(cmd, record, err)
	if receipt != nil {
		dlq.DispatchID = receipt.DispatchID
		dlq.StatusCode = receipt.StatusCode
	}
	var se *common.ServerError
	if errors.As(err, &se) {
		dlq.StatusCode = se.StatusCode
	}
	e.publishDLQ(sendCtx, dlq)
	e.commitRecord(sendCtx, record)
}

// reject handles commands that never reach the dispatcher.
func (e *Engine) reject(ctx context.Context, record *Record, job *Job, err error) {
	var cmd models.DispatchCommand
	if job != nil {
		cmd = job.Command
	}
	if cmd.CommandID == "" {
		cmd.CommandID = string(record.Key)
	}
	if cmd.TraceID == "" {
		cmd.TraceID = string(record.Headers["trace-id"])
	}

	e.logger.Warn().
		Str("command_id", cmd.CommandID).
		Err(err).
		Msg("worker: command rejected before dispatch")

	if pubErr := e.statusPublisher.PublishStatus(ctx, models.StatusEvent{
		DispatchID: cmd.CommandID,
		Segment:    cmd.Segment,
		EventType:  models.StatusEventFailed,
		Error:      err.Error(),
		TraceID:    cmd.TraceID,
		Timestamp:  e.now().UTC(),
	}); pubErr != nil {
		e.logger.Error().
			Str("command_id", cmd.CommandID).
			Err(pubErr).
			Msg("worker: failed to publish status event")
	}

	e.publishDLQ(ctx, e.dlqRecord(cmd, record, err))
	e.commitRecord(ctx, record)
}

func (e *Engine) dlqRecord(cmd models.DispatchCommand, record *Record, err error) models.DLQRecord {
	kind := common.Kind(err)
	if kind == "" {
		kind = models.FailureTypeUnknown
	}
	return models.DLQRecord{
		CommandID:       cmd.CommandID,
		Segment:         cmd.Segment,
		OriginalMessage: originalMessage(record.Value),
		FailureType:     kind,
		LastError:       err.Error(),
		FailedAt:        e.now().UTC(),
		TraceID:         cmd.TraceID,
		Meta:            cmd.Meta,
	}
}

func (e *Engine) publishDLQ(ctx context.Context, record models.DLQRecord) {
	if e.metrics != nil {
		e.metrics.DeadLettered()
	}
	if err := e.dlqPublisher.PublishDLQ(ctx, record); err != nil {
		e.logger.Error().
			Str("command_id", record.CommandID).
			Err(err).
			Msg("worker: failed to publish DLQ record")
	}
}

func (e *Engine) commitRecord(ctx context.Context, record *Record) {
	if err := e.committer.Commit(ctx, record); err != nil {
		e.logger.Error().
			Str("topic", record.Topic).
			Int32("partition", record.Partition).
			Int64("offset", record.Offset).
			Err(err).
			Msg("worker: failed to commit record offset")
	}
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return append([]byte(nil), b...)
}

func cloneHeaders(headers map[string][]byte) map[string][]byte {
	if len(headers) == 0 {
		return nil
	}
	clone := make(map[string][]byte, len(headers))
	for k, v := range headers {
		clone[k] = cloneBytes(v)
	}
	return clone
}
