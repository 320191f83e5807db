package dispatch

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	common "github.com/ajayykmr/billing-notifier/internal/adapters/common"
	"github.com/ajayykmr/billing-notifier/internal/models"
)

// ErrInProgress is returned (wrapped in ErrState) when a send is requested
// while another one is running.
var ErrInProgress = errors.New("dispatch already in progress")

// Session is the injected signed-in session.
type Session interface {
	Token() (string, error)
	Clear(ctx context.Context) error
}

// StatusPublisher receives one event per transition.
type StatusPublisher interface {
	PublishStatus(ctx context.Context, event models.StatusEvent) error
}

// Recorder receives dispatch metrics.
type Recorder interface {
	ObserveDispatch(segment, outcome string, elapsed time.Duration)
	Rejected(reason string)
}

// Deps groups the dispatcher collaborators. Adapter is required; everything
// else is optional.
type Deps struct {
	Adapter common.Adapter
	// Session supplies the bearer token. Without one, requests go out
	// unauthenticated.
	Session Session
	Events  StatusPublisher
	Metrics Recorder
	Logger  zerolog.Logger
	Now     func() time.Time
	NewID   func() string
	// SMSBodyMax bounds the message length in runes. Zero disables the check.
	SMSBodyMax int
}

// Dispatcher drives one session through request, confirm, send and
// acknowledge. At most one send is in flight at any time.
type Dispatcher struct {
	adapter    common.Adapter
	session    Session
	events     StatusPublisher
	metrics    Recorder
	logger     zerolog.Logger
	now        func() time.Time
	newID      func() string
	smsBodyMax int

	mu       sync.Mutex
	state    State
	inFlight bool
}

// New constructs a dispatcher in the Idle phase.
func New(deps Deps) (*Dispatcher, error) {
	if deps.Adapter == nil {
		return nil, errors.New("dispatch: adapter dependency is required")
	}
	logger := deps.Logger
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	newID := deps.NewID
	if newID == nil {
		newID = func() string { return uuid.NewString() }
	}
	return &Dispatcher{
		adapter:    deps.Adapter,
		session:    deps.Session,
		events:     deps.Events,
		metrics:    deps.Metrics,
		logger:     logger,
		now:        now,
		newID:      newID,
		smsBodyMax: deps.SMSBodyMax,
	}, nil
}

// State returns a snapshot of the current state.
func (d *Dispatcher) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// RequestSend starts a cycle. The "all" segment goes straight to Sending;
// every other segment waits in AwaitingConfirmation with the draft held.
// A request made while AwaitingConfirmation replaces the pending one, and a
// request made from Result acknowledges the previous outcome first.
func (d *Dispatcher) RequestSend(segment models.Segment, message string) (State, error) {
	message = strings.TrimSpace(message)
	segment.Mobile = strings.TrimSpace(segment.Mobile)

	d.mu.Lock()
	if d.state.Phase == Sending {
		snap := d.state
		d.mu.Unlock()
		return snap, d.reject(common.WrapState(ErrInProgress))
	}
	if err := d.validate(segment, message); err != nil {
		snap := d.state
		d.mu.Unlock()
		return snap, d.reject(err)
	}
	if d.state.Phase == Result {
		d.state = State{}
	}

	next := State{
		Phase:      AwaitingConfirmation,
		Segment:    segment,
		Message:    message,
		DispatchID: d.newID(),
	}
	if !segment.RequiresConfirmation() {
		next.Phase = Sending
	}
	d.state = next
	d.mu.Unlock()

	d.logger.Info().
		Str("dispatch_id", next.DispatchID).
		Str("segment", segment.String()).
		Str("phase", next.Phase.String()).
		Msg("dispatch requested")
	d.emit(context.Background(), next, models.StatusEventRequested, nil, nil)
	if next.Phase == Sending {
		d.emit(context.Background(), next, models.StatusEventSending, nil, nil)
	}
	return next, nil
}

// Confirm releases a pending request whose segment equals segment.
func (d *Dispatcher) Confirm(segment models.Segment) (State, error) {
	segment.Mobile = strings.TrimSpace(segment.Mobile)

	d.mu.Lock()
	if d.state.Phase != AwaitingConfirmation {
		snap := d.state
		d.mu.Unlock()
		return snap, d.reject(common.WrapState(fmt.Errorf("nothing to confirm in phase %s", snap.Phase)))
	}
	if d.state.Segment != segment {
		snap := d.state
		d.mu.Unlock()
		return snap, d.reject(common.WrapState(fmt.Errorf("confirmation for %s does not match pending %s", segment, snap.Segment)))
	}
	d.state.Phase = Sending
	snap := d.state
	d.mu.Unlock()

	d.logger.Info().
		Str("dispatch_id", snap.DispatchID).
		Str("segment", snap.Segment.String()).
		Msg("dispatch confirmed")
	d.emit(context.Background(), snap, models.StatusEventConfirmed, nil, nil)
	d.emit(context.Background(), snap, models.StatusEventSending, nil, nil)
	return snap, nil
}

// Cancel discards a pending request and its draft. Cancelling from Idle is a
// no-op; a running or finished send cannot be cancelled.
func (d *Dispatcher) Cancel() (State, error) {
	d.mu.Lock()
	switch d.state.Phase {
	case Idle:
		d.mu.Unlock()
		return State{}, nil
	case AwaitingConfirmation:
		prev := d.state
		d.state = State{}
		d.mu.Unlock()
		d.logger.Info().
			Str("dispatch_id", prev.DispatchID).
			Str("segment", prev.Segment.String()).
			Msg("dispatch cancelled")
		d.emit(context.Background(), prev, models.StatusEventCancelled, nil, nil)
		return State{}, nil
	default:
		snap := d.state
		d.mu.Unlock()
		return snap, d.reject(common.WrapState(fmt.Errorf("cannot cancel in phase %s", snap.Phase)))
	}
}

// Dispatch performs the single outbound call for the request in Sending and
// moves to Result. The call runs to completion once started.
func (d *Dispatcher) Dispatch(ctx context.Context) (*models.Receipt, error) {
	d.mu.Lock()
	if d.state.Phase != Sending {
		phase := d.state.Phase
		d.mu.Unlock()
		return nil, d.reject(common.WrapState(fmt.Errorf("nothing to dispatch in phase %s", phase)))
	}
	if d.inFlight {
		d.mu.Unlock()
		return nil, d.reject(common.WrapState(ErrInProgress))
	}
	d.inFlight = true
	current := d.state
	d.mu.Unlock()

	started := d.now()
	receipt, err := d.send(ctx, current)
	elapsed := d.now().Sub(started)

	d.mu.Lock()
	d.inFlight = false
	d.state = State{
		Phase:      Result,
		Segment:    current.Segment,
		DispatchID: current.DispatchID,
		Success:    err == nil,
		Detail:     detail(receipt, err),
	}
	snap := d.state
	d.mu.Unlock()

	outcome := "success"
	if err != nil {
		outcome = common.Kind(err)
	}
	if d.metrics != nil {
		d.metrics.ObserveDispatch(current.Segment.Label(), outcome, elapsed)
	}

	if err != nil {
		if common.IsUnauthorized(err) && d.session != nil {
			if clearErr := d.session.Clear(ctx); clearErr != nil {
				d.logger.Warn().Err(clearErr).Msg("failed to clear rejected session")
			}
		}
		d.logger.Warn().
			Str("dispatch_id", snap.DispatchID).
			Str("segment", snap.Segment.String()).
			Str("outcome", outcome).
			Err(err).
			Msg("dispatch failed")
		d.emit(ctx, snap, models.StatusEventFailed, receipt, err)
		return receipt, err
	}

	d.logger.Info().
		Str("dispatch_id", snap.DispatchID).
		Str("segment", snap.Segment.String()).
		Str("endpoint", receipt.Endpoint).
		Int("status_code", receipt.StatusCode).
		Dur("elapsed", elapsed).
		Msg("dispatch sent")
	d.emit(ctx, snap, models.StatusEventSent, receipt, nil)
	return receipt, nil
}

// Acknowledge leaves Result for Idle, clearing the draft whatever the
// outcome. In any other phase it only returns the current state.
func (d *Dispatcher) Acknowledge() State {
	d.mu.Lock()
	if d.state.Phase != Result {
		snap := d.state
		d.mu.Unlock()
		return snap
	}
	prev := d.state
	d.state = State{}
	d.mu.Unlock()

	d.emit(context.Background(), prev, models.StatusEventAcknowledged, nil, nil)
	return State{}
}

// Run performs a whole cycle for a caller that has already confirmed
// intent: request, confirm when required, dispatch and acknowledge.
func (d *Dispatcher) Run(ctx context.Context, req models.DispatchRequest) (*models.Receipt, error) {
	st, err := d.RequestSend(req.Segment, req.Message)
	if err != nil {
		return nil, err
	}
	if st.Phase == AwaitingConfirmation {
		if _, err := d.Confirm(st.Segment); err != nil {
			return nil, err
		}
	}
	receipt, err := d.Dispatch(ctx)
	d.Acknowledge()
	return receipt, err
}

func (d *Dispatcher) send(ctx context.Context, st State) (*models.Receipt, error) {
	env := &common.Envelope{
		DispatchID: st.DispatchID,
		TraceID:    TraceID(ctx),
		CreatedAt:  d.now(),
		Request:    models.DispatchRequest{Segment: st.Segment, Message: st.Message},
	}
	if d.session != nil {
		token, err := d.session.Token()
		if err != nil {
			return nil, common.WrapState(fmt.Errorf("sign in required: %v", err))
		}
		env.Token = token
	}
	return d.adapter.Send(ctx, env)
}

func (d *Dispatcher) validate(segment models.Segment, message string) error {
	switch segment.Kind {
	case models.SegmentAll:
		if message == "" {
			return common.WrapValidation(errors.New("message is required"))
		}
	case models.SegmentUnpaid, models.SegmentLowBalance, models.SegmentHighBalance:
		if segment.Day != "" || segment.Mobile != "" {
			return common.WrapValidation(fmt.Errorf("segment %s does not take a day or mobile", segment.Kind))
		}
	case models.SegmentDay:
		if _, err := models.ParseWeekday(string(segment.Day)); err != nil {
			return common.WrapValidation(err)
		}
		if message == "" {
			return common.WrapValidation(errors.New("message is required"))
		}
	default:
		return common.WrapValidation(fmt.Errorf("unknown segment %q", segment.Kind))
	}
	if d.smsBodyMax > 0 && utf8.RuneCountInString(message) > d.smsBodyMax {
		return common.WrapValidation(fmt.Errorf("message exceeds %d characters", d.smsBodyMax))
	}
	return nil
}

func (d *Dispatcher) reject(err error) error {
	if d.metrics != nil {
		d.metrics.Rejected(common.Kind(err))
	}
	d.logger.Debug().Err(err).Msg("dispatch operation rejected")
	return err
}

func (d *Dispatcher) emit(ctx context.Context, st State, eventType string, receipt *models.Receipt, cause error) {
	if d.events == nil {
		return
	}
	event := models.StatusEvent{
		DispatchID: st.DispatchID,
		Segment:    st.Segment.String(),
		EventType:  eventType,
		Receipt:    receipt,
		TraceID:    TraceID(ctx),
		Timestamp:  d.now().UTC(),
	}
	if cause != nil {
		event.Error = cause.Error()
	}
	if err := d.events.PublishStatus(ctx, event); err != nil {
		d.logger.Error().
			Err(err).
			Str("dispatch_id", st.DispatchID).
			Str("event_type", eventType).
			Msg("failed to publish status event")
	}
}

func detail(receipt *models.Receipt, err error) string {
	if err != nil {
		return err.Error()
	}
	if receipt != nil && receipt.Message != "" {
		return receipt.Message
	}
	return "sent"
}
