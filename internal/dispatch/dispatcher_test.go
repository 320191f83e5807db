package dispatch_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	common "github.com/ajayykmr/billing-notifier/internal/adapters/common"
	"github.com/ajayykmr/billing-notifier/internal/dispatch"
	"github.com/ajayykmr/billing-notifier/internal/models"
)

type stubAdapter struct {
	mu      sync.Mutex
	calls   []*common.Envelope
	err     error
	block   chan struct{}
	started chan struct{}
}

func (s *stubAdapter) Send(_ context.Context, env *common.Envelope) (*models.Receipt, error) {
	s.mu.Lock()
	s.calls = append(s.calls, env)
	s.mu.Unlock()
	if s.started != nil {
		close(s.started)
	}
	if s.block != nil {
		<-s.block
	}
	receipt := &models.Receipt{DispatchID: env.DispatchID, Segment: env.Request.Segment.String(), StatusCode: 200, Message: "queued"}
	if s.err != nil {
		return receipt, s.err
	}
	return receipt, nil
}

func (s *stubAdapter) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

type stubSession struct {
	token   string
	err     error
	cleared int
}

func (s *stubSession) Token() (string, error) { return s.token, s.err }

func (s *stubSession) Clear(context.Context) error {
	s.cleared++
	s.token = ""
	return nil
}

type recordingEvents struct {
	mu     sync.Mutex
	events []models.StatusEvent
}

func (r *recordingEvents) PublishStatus(_ context.Context, e models.StatusEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingEvents) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.EventType)
	}
	return out
}

type recordingMetrics struct {
	mu       sync.Mutex
	outcomes []string
	rejected []string
}

func (r *recordingMetrics) ObserveDispatch(_, outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

func (r *recordingMetrics) Rejected(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rejected = append(r.rejected, reason)
}

func newDispatcher(t *testing.T, adapter common.Adapter, mutate ...func(*dispatch.Deps)) *dispatch.Dispatcher {
	t.Helper()
	deps := dispatch.Deps{
		Adapter: adapter,
		Logger:  zerolog.Nop(),
		NewID:   func() string { return "dispatch-1" },
	}
	for _, m := range mutate {
		m(&deps)
	}
	d, err := dispatch.New(deps)
	require.NoError(t, err)
	return d
}

func TestNewRequiresAdapter(t *testing.T) {
	_, err := dispatch.New(dispatch.Deps{})
	assert.Error(t, err)
}

func TestNonAllSegmentsWaitForConfirmation(t *testing.T) {
	for _, seg := range []models.Segment{
		models.Unpaid(),
		models.LowBalance(),
		models.HighBalance(),
		models.DayGroup(models.Wednesday),
		models.DayCustomer(models.Friday, "0712345678"),
	} {
		t.Run(seg.String(), func(t *testing.T) {
			adapter := &stubAdapter{}
			d := newDispatcher(t, adapter)

			st, err := d.RequestSend(seg, "Pay now")
			require.NoError(t, err)
			assert.Equal(t, dispatch.AwaitingConfirmation, st.Phase)
			assert.Equal(t, seg, st.Segment)

			_, err = d.Dispatch(context.Background())
			assert.True(t, errors.Is(err, common.ErrState))
			assert.Zero(t, adapter.count())
		})
	}
}

func TestAllWithEmptyMessageIsValidationError(t *testing.T) {
	adapter := &stubAdapter{}
	metrics := &recordingMetrics{}
	d := newDispatcher(t, adapter, func(deps *dispatch.Deps) { deps.Metrics = metrics })

	for _, msg := range []string{"", "   "} {
		st, err := d.RequestSend(models.All(), msg)
		require.Error(t, err)
		assert.True(t, errors.Is(err, common.ErrValidation))
		assert.Equal(t, dispatch.Idle, st.Phase)
	}
	assert.Equal(t, dispatch.Idle, d.State().Phase)
	assert.Zero(t, adapter.count())
	assert.Equal(t, []string{"validation", "validation"}, metrics.rejected)
}

func TestAllGoesStraightToSending(t *testing.T) {
	adapter := &stubAdapter{}
	d := newDispatcher(t, adapter)

	st, err := d.RequestSend(models.All(), "  Happy holidays  ")
	require.NoError(t, err)
	assert.Equal(t, dispatch.Sending, st.Phase)
	assert.Equal(t, "Happy holidays", st.Message)

	receipt, err := d.Dispatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "dispatch-1", receipt.DispatchID)
	require.Equal(t, 1, adapter.count())
	assert.Equal(t, "Happy holidays", adapter.calls[0].Request.Message)
}

func TestConfirmRules(t *testing.T) {
	d := newDispatcher(t, &stubAdapter{})

	_, err := d.Confirm(models.Unpaid())
	assert.True(t, errors.Is(err, common.ErrState), "confirm without pending request")

	_, err = d.RequestSend(models.DayGroup(models.Monday), "Reminder")
	require.NoError(t, err)

	_, err = d.Confirm(models.DayGroup(models.Tuesday))
	assert.True(t, errors.Is(err, common.ErrState), "confirm with other day")
	_, err = d.Confirm(models.Unpaid())
	assert.True(t, errors.Is(err, common.ErrState), "confirm with other segment")
	assert.Equal(t, dispatch.AwaitingConfirmation, d.State().Phase)

	st, err := d.Confirm(models.DayGroup(models.Monday))
	require.NoError(t, err)
	assert.Equal(t, dispatch.Sending, st.Phase)
	assert.Equal(t, "Reminder", st.Message)
}

func TestDayValidation(t *testing.T) {
	d := newDispatcher(t, &stubAdapter{})

	_, err := d.RequestSend(models.DayGroup(models.Monday), "")
	assert.True(t, errors.Is(err, common.ErrValidation))

	_, err = d.RequestSend(models.DayGroup("FUNDAY"), "x")
	assert.True(t, errors.Is(err, common.ErrValidation))

	_, err = d.RequestSend(models.Segment{Kind: models.SegmentUnpaid, Day: models.Monday}, "x")
	assert.True(t, errors.Is(err, common.ErrValidation))

	_, err = d.RequestSend(models.Segment{Kind: "vip"}, "x")
	assert.True(t, errors.Is(err, common.ErrValidation))
	assert.Equal(t, dispatch.Idle, d.State().Phase)
}

func TestMessageLengthLimit(t *testing.T) {
	d := newDispatcher(t, &stubAdapter{}, func(deps *dispatch.Deps) { deps.SMSBodyMax = 5 })

	_, err := d.RequestSend(models.All(), "héllo")
	require.NoError(t, err)
	_, err = d.Dispatch(context.Background())
	require.NoError(t, err)
	d.Acknowledge()

	_, err = d.RequestSend(models.All(), "hello!")
	assert.True(t, errors.Is(err, common.ErrValidation))
}

func TestCancel(t *testing.T) {
	adapter := &stubAdapter{}
	d := newDispatcher(t, adapter)

	st, err := d.Cancel()
	require.NoError(t, err)
	assert.Equal(t, dispatch.Idle, st.Phase)

	_, err = d.RequestSend(models.HighBalance(), "draft")
	require.NoError(t, err)
	st, err = d.Cancel()
	require.NoError(t, err)
	assert.Equal(t, dispatch.State{}, st)

	_, err = d.Confirm(models.HighBalance())
	assert.True(t, errors.Is(err, common.ErrState))

	_, err = d.RequestSend(models.All(), "hi")
	require.NoError(t, err)
	_, err = d.Cancel()
	assert.True(t, errors.Is(err, common.ErrState), "cannot cancel while sending")

	_, err = d.Dispatch(context.Background())
	require.NoError(t, err)
	_, err = d.Cancel()
	assert.True(t, errors.Is(err, common.ErrState), "cannot cancel a result")
	assert.Equal(t, 1, adapter.count())
}

func TestRequestReplacesPendingAndAcknowledgesResult(t *testing.T) {
	adapter := &stubAdapter{}
	d := newDispatcher(t, adapter)

	_, err := d.RequestSend(models.Unpaid(), "first")
	require.NoError(t, err)
	st, err := d.RequestSend(models.LowBalance(), "second")
	require.NoError(t, err)
	assert.Equal(t, models.LowBalance(), st.Segment)
	assert.Equal(t, "second", st.Message)

	_, err = d.Confirm(models.LowBalance())
	require.NoError(t, err)
	_, err = d.Dispatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, dispatch.Result, d.State().Phase)

	st, err = d.RequestSend(models.Unpaid(), "third")
	require.NoError(t, err)
	assert.Equal(t, dispatch.AwaitingConfirmation, st.Phase)
	assert.Equal(t, 1, adapter.count())
}

func TestUnpaidScenario(t *testing.T) {
	adapter := &stubAdapter{}
	events := &recordingEvents{}
	metrics := &recordingMetrics{}
	d := newDispatcher(t, adapter, func(deps *dispatch.Deps) {
		deps.Events = events
		deps.Metrics = metrics
	})

	st, err := d.RequestSend(models.Unpaid(), "Pay now")
	require.NoError(t, err)
	assert.Equal(t, dispatch.AwaitingConfirmation, st.Phase)
	assert.Zero(t, adapter.count())

	st, err = d.Confirm(models.Unpaid())
	require.NoError(t, err)
	assert.Equal(t, dispatch.Sending, st.Phase)

	receipt, err := d.Dispatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "queued", receipt.Message)

	st = d.State()
	assert.Equal(t, dispatch.Result, st.Phase)
	assert.True(t, st.Success)
	assert.Equal(t, "queued", st.Detail)
	assert.Empty(t, st.Message)

	st = d.Acknowledge()
	assert.Equal(t, dispatch.State{}, st)
	assert.Equal(t, dispatch.State{}, d.State())
	assert.Equal(t, 1, adapter.count())

	assert.Equal(t, []string{
		models.StatusEventRequested,
		models.StatusEventConfirmed,
		models.StatusEventSending,
		models.StatusEventSent,
		models.StatusEventAcknowledged,
	}, events.types())
	assert.Equal(t, []string{"success"}, metrics.outcomes)
}

func TestFailedDispatchClearsDraft(t *testing.T) {
	adapter := &stubAdapter{err: &common.ServerError{StatusCode: 500, Message: "gateway down"}}
	events := &recordingEvents{}
	d := newDispatcher(t, adapter, func(deps *dispatch.Deps) { deps.Events = events })

	_, err := d.RequestSend(models.DayGroup(models.Monday), "Reminder")
	require.NoError(t, err)
	_, err = d.Confirm(models.DayGroup(models.Monday))
	require.NoError(t, err)

	_, err = d.Dispatch(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrServer))

	st := d.State()
	assert.Equal(t, dispatch.Result, st.Phase)
	assert.False(t, st.Success)
	assert.Contains(t, st.Detail, "gateway down")

	assert.Equal(t, dispatch.Idle, d.Acknowledge().Phase)
	assert.Empty(t, d.State().Message)
	assert.Contains(t, events.types(), models.StatusEventFailed)

	_, err = d.RequestSend(models.All(), "still usable")
	assert.NoError(t, err)
}

func TestUnauthorizedClearsSession(t *testing.T) {
	adapter := &stubAdapter{err: &common.ServerError{StatusCode: 401}}
	sess := &stubSession{token: "expired-token"}
	d := newDispatcher(t, adapter, func(deps *dispatch.Deps) { deps.Session = sess })

	_, err := d.Run(context.Background(), models.DispatchRequest{Segment: models.All(), Message: "hi"})
	require.Error(t, err)
	assert.True(t, common.IsUnauthorized(err))
	assert.Equal(t, 1, sess.cleared)
	assert.Equal(t, "expired-token", adapter.calls[0].Token)
	assert.Equal(t, dispatch.Idle, d.State().Phase)
}

func TestMissingSessionMakesNoCall(t *testing.T) {
	adapter := &stubAdapter{}
	sess := &stubSession{err: errors.New("no session")}
	d := newDispatcher(t, adapter, func(deps *dispatch.Deps) { deps.Session = sess })

	_, err := d.RequestSend(models.All(), "hi")
	require.NoError(t, err)
	_, err = d.Dispatch(context.Background())
	assert.True(t, errors.Is(err, common.ErrState))
	assert.Zero(t, adapter.count())
	assert.False(t, d.State().Success)
}

func TestSecondRequestWhileSendingIsRejected(t *testing.T) {
	adapter := &stubAdapter{block: make(chan struct{}), started: make(chan struct{})}
	d := newDispatcher(t, adapter)

	_, err := d.RequestSend(models.All(), "first")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := d.Dispatch(context.Background())
		done <- err
	}()
	<-adapter.started

	st, err := d.RequestSend(models.All(), "second")
	assert.True(t, errors.Is(err, common.ErrState))
	assert.True(t, errors.Is(err, dispatch.ErrInProgress))
	assert.Equal(t, dispatch.Sending, st.Phase)
	assert.Equal(t, "first", st.Message)

	_, err = d.Dispatch(context.Background())
	assert.True(t, errors.Is(err, dispatch.ErrInProgress))

	close(adapter.block)
	require.NoError(t, <-done)
	assert.Equal(t, 1, adapter.count())
	assert.Equal(t, dispatch.Result, d.State().Phase)
}

func TestConcurrentRunsSendOnce(t *testing.T) {
	adapter := &stubAdapter{block: make(chan struct{}), started: make(chan struct{})}
	d := newDispatcher(t, adapter)

	first := make(chan error, 1)
	go func() {
		_, err := d.Run(context.Background(), models.DispatchRequest{Segment: models.All(), Message: "a"})
		first <- err
	}()
	<-adapter.started

	_, err := d.Run(context.Background(), models.DispatchRequest{Segment: models.Unpaid(), Message: "b"})
	assert.True(t, errors.Is(err, common.ErrState))

	close(adapter.block)
	require.NoError(t, <-first)
	assert.Equal(t, 1, adapter.count())
	assert.Equal(t, dispatch.Idle, d.State().Phase)
}

func TestTraceIDReachesAdapter(t *testing.T) {
	adapter := &stubAdapter{}
	d := newDispatcher(t, adapter)

	ctx := dispatch.WithTraceID(context.Background(), "trace-9")
	_, err := d.Run(ctx, models.DispatchRequest{Segment: models.All(), Message: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "trace-9", adapter.calls[0].TraceID)
}
