package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/ajayykmr/billing-notifier/internal/app"
	"github.com/ajayykmr/billing-notifier/internal/config"
	"github.com/ajayykmr/billing-notifier/internal/health"
	"github.com/ajayykmr/billing-notifier/internal/kafka/consumer"
	"github.com/ajayykmr/billing-notifier/internal/kafka/producer"
	kafkapublisher "github.com/ajayykmr/billing-notifier/internal/kafka/publisher"
	"github.com/ajayykmr/billing-notifier/internal/logger"
	"github.com/ajayykmr/billing-notifier/internal/metrics"
	"github.com/ajayykmr/billing-notifier/internal/worker"
	dispatchvalidator "github.com/ajayykmr/billing-notifier/internal/worker/validator/dispatch"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fail("config load", err)
	}
	if err := cfg.Kafka.Validate(); err != nil {
		fail("config load", err)
	}

	baseLogger, err := logger.New(cfg.App.Env, cfg.App.LogLevel)
	if err != nil {
		fail("logger init", err)
	}
	log := baseLogger.With().Str("service", "dispatch-worker").Logger()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.New(registry)

	sess, closeSession, err := app.Session(ctx, cfg.Session, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open session store")
	}
	defer closeSession()
	if _, ok := sess.Current(); !ok {
		log.Warn().Msg("no signed-in session; dispatches will fail until `notify login` is run")
	}

	prod, err := producer.New(cfg.Kafka.Brokers, logger.Component(log, "kafka-producer"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create kafka producer")
	}
	defer func() {
		if err := prod.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close kafka producer")
		}
	}()

	cons, err := consumer.New(cfg.Kafka.Brokers, cfg.Kafka.ConsumerGroup, logger.Component(log, "kafka-consumer"), cfg.Kafka.CommitOnSuccessOnly)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create kafka consumer")
	}
	defer func() {
		if err := cons.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close kafka consumer")
		}
	}()

	statusPublisher := kafkapublisher.NewStatusPublisher(prod, cfg.Kafka.StatusTopic, logger.Component(log, "status-publisher"))
	dlqPublisher := kafkapublisher.NewDLQPublisher(prod, cfg.Kafka.DLQTopic, logger.Component(log, "dlq-publisher"))

	client, err := app.Client(cfg.API, sess, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialise api client")
	}

	dispatcher, err := app.Dispatcher(cfg, client, log, app.DispatcherOptions{
		Session: sess,
		Events:  statusPublisher,
		Metrics: recorder,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialise dispatcher")
	}

	engine, err := worker.NewEngine(worker.Config{MsgMaxBytes: cfg.Validation.MsgMaxBytes}, worker.Dependencies{
		Runner:          dispatcher,
		Validator:       dispatchvalidator.New(cfg.Validation, logger.Component(log, "dispatch-validator")),
		StatusPublisher: statusPublisher,
		DLQPublisher:    dlqPublisher,
		Committer: worker.CommitFunc(func(ctx context.Context, record *worker.Record) error {
			return record.Commit(ctx)
		}),
		Metrics: recorder,
		Logger:  log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialise worker engine")
	}

	healthServer := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.App.Port),
		Handler: health.NewRouter(health.Options{
			Gatherer: registry,
			Timeout:  time.Duration(cfg.Health.HandlerTimeoutMs) * time.Millisecond,
			Checks: map[string]health.Check{
				"kafka_producer": func(context.Context) bool { return prod.IsReady() },
				"kafka_consumer": func(context.Context) bool { return cons.IsReady() },
			},
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info().Str("addr", healthServer.Addr).Msg("health server listening")
		if err := healthServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("health server failed")
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		if err := cons.Consume(ctx, []string{cfg.Kafka.RequestTopic}, worker.KafkaHandler(engine, cons)); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- err
		}
		close(errCh)
	}()

	log.Info().Str("request_topic", cfg.Kafka.RequestTopic).Msg("dispatch worker started")

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("consumer terminated with error")
		}
	}

	engine.Wait()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health server shutdown failed")
	}
}

func fail(stage string, err error) {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	logger.Fatal().Err(err).Str("stage", stage).Msg("dispatch worker init failed")
}
