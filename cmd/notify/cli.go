package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"

	common "github.com/ajayykmr/billing-notifier/internal/adapters/common"
	"github.com/ajayykmr/billing-notifier/internal/api"
	"github.com/ajayykmr/billing-notifier/internal/app"
	"github.com/ajayykmr/billing-notifier/internal/config"
	"github.com/ajayykmr/billing-notifier/internal/dispatch"
	"github.com/ajayykmr/billing-notifier/internal/kafka/producer"
	kafkapublisher "github.com/ajayykmr/billing-notifier/internal/kafka/publisher"
	"github.com/ajayykmr/billing-notifier/internal/logger"
	"github.com/ajayykmr/billing-notifier/internal/session"
)

var errUsage = errors.New("usage")

// cli holds what every subcommand shares. Collaborators are built lazily so
// "notify logout" does not need a reachable Kafka, for example.
type cli struct {
	in     *bufio.Reader
	out    io.Writer
	errOut io.Writer

	cfg     *config.Config
	log     zerolog.Logger
	session *session.Manager
	client  *api.Client

	closers []func() error
}

func newCLI(stdin io.Reader, stdout, stderr io.Writer) *cli {
	return &cli{in: bufio.NewReader(stdin), out: stdout, errOut: stderr}
}

func (c *cli) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet("notify "+name, flag.ContinueOnError)
	fs.SetOutput(c.errOut)
	return fs
}

func (c *cli) parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(c.errOut, "unexpected arguments: %s\n", strings.Join(fs.Args(), " "))
		fs.Usage()
		return errUsage
	}
	return nil
}

// setup loads config, logger, the stored session and the API client.
func (c *cli) setup(ctx context.Context, verbose bool) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	level := "warn"
	if verbose {
		level = cfg.App.LogLevel
	}
	base, err := logger.New(cfg.App.Env, level, zerolog.ConsoleWriter{Out: c.errOut, NoColor: true})
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	c.cfg = cfg
	c.log = base.With().Str("service", "notify").Logger()

	mgr, closeStore, err := app.Session(ctx, cfg.Session, c.log)
	if err != nil {
		return err
	}
	c.closers = append(c.closers, closeStore)
	c.session = mgr

	client, err := app.Client(cfg.API, mgr, c.log)
	if err != nil {
		return err
	}
	c.client = client
	return nil
}

// dispatcher builds a dispatcher, publishing lifecycle events to Kafka when
// brokers are configured. An unreachable broker only costs the events.
func (c *cli) dispatcher() (*dispatch.Dispatcher, error) {
	opts := app.DispatcherOptions{Session: c.session}
	if c.cfg.Kafka.Enabled() {
		prod, err := producer.New(c.cfg.Kafka.Brokers, logger.Component(c.log, "kafka-producer"), producer.WithClientID("billing-notifier-cli"))
		if err != nil {
			c.log.Warn().Err(err).Msg("kafka unavailable; dispatch events will not be published")
		} else {
			c.closers = append(c.closers, prod.Close)
			opts.Events = kafkapublisher.NewStatusPublisher(prod, c.cfg.Kafka.StatusTopic, logger.Component(c.log, "status-publisher"))
		}
	}
	return app.Dispatcher(c.cfg, c.client, c.log, opts)
}

func (c *cli) requireSession() error {
	if _, err := c.session.Token(); err != nil {
		return fmt.Errorf("%w; run \"notify login\" first", err)
	}
	return nil
}

// confirm asks a yes/no question on stdin. Anything but y/yes is a no.
func (c *cli) confirm(question string) bool {
	fmt.Fprintf(c.out, "%s [y/N]: ", question)
	answer, _ := c.in.ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

func (c *cli) prompt(label string) string {
	fmt.Fprintf(c.out, "%s: ", label)
	answer, _ := c.in.ReadString('\n')
	return strings.TrimSpace(answer)
}

func (c *cli) close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		_ = c.closers[i]()
	}
}

// describe turns taxonomy errors into operator-facing text.
func describe(err error) string {
	switch {
	case common.IsUnauthorized(err):
		return "the server rejected the session; run \"notify login\" again"
	case errors.Is(err, common.ErrNetwork):
		return "could not reach the billing server: " + err.Error()
	default:
		return err.Error()
	}
}
