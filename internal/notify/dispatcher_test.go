package notify

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"gaming_queue/internal/models"
	"gaming_queue/internal/queue"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// scriptedTransport возвращает ошибки из script по порядку, затем nil.
type scriptedTransport struct {
	name   string
	mu     sync.Mutex
	script []error
	calls  int
	sent   []Notification
}

func (s *scriptedTransport) Name() string { return s.name }

func (s *scriptedTransport) Send(_ context.Context, n Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if len(s.script) > 0 {
		err := s.script[0]
		s.script = s.script[1:]
		if err != nil {
			return err
		}
	}
	s.sent = append(s.sent, n)
	return nil
}

func testOptions() Options {
	return Options{Attempts: 3, InitialDelay: time.Millisecond, Workers: 2}
}

func TestDispatcherRetriesTransientErrors(t *testing.T) {
	transient := errors.New("timeout")
	tr := &scriptedTransport{name: "fake", script: []error{transient, transient}}
	d := NewDispatcher(zaptest.NewLogger(t), testOptions(), tr)

	err := d.Notify(context.Background(), models.QueueEntry{ID: 1}, ReasonTurnReached)

	require.NoError(t, err)
	assert.Equal(t, 3, tr.calls)
	require.Len(t, tr.sent, 1)
	assert.NotEmpty(t, tr.sent[0].ID)
	assert.Equal(t, ReasonTurnReached, tr.sent[0].Reason)
}

func TestDispatcherGivesUpAfterAttempts(t *testing.T) {
	transient := errors.New("timeout")
	tr := &scriptedTransport{name: "fake", script: []error{transient, transient, transient, transient}}
	d := NewDispatcher(zaptest.NewLogger(t), testOptions(), tr)

	err := d.Notify(context.Background(), models.QueueEntry{ID: 1}, ReasonTurnReached)

	assert.ErrorIs(t, err, queue.ErrDispatchFailure)
	assert.ErrorIs(t, err, transient)
	assert.Equal(t, 3, tr.calls)
}

func TestDispatcherDoesNotRetryPermanentErrors(t *testing.T) {
	tr := &scriptedTransport{name: "fake", script: []error{ErrPermanent}}
	d := NewDispatcher(zaptest.NewLogger(t), testOptions(), tr)

	err := d.Notify(context.Background(), models.QueueEntry{ID: 1}, ReasonExpired)

	assert.ErrorIs(t, err, queue.ErrDispatchFailure)
	assert.Equal(t, 1, tr.calls)
}

// refusingLimiter отказывает первые refuse раз и называет срок ожидания wait.
type refusingLimiter struct {
	refuse int
	wait   time.Duration
	calls  atomic.Int32
}

func (l *refusingLimiter) Allow(context.Context) (bool, time.Duration, error) {
	if int(l.calls.Add(1)) <= l.refuse {
		return false, l.wait, nil
	}
	return true, 0, nil
}

func TestDispatcherRetriesRateLimitedTurnNotification(t *testing.T) {
	var delivered atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		delivered.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	limiter := &refusingLimiter{refuse: 1, wait: 30 * time.Millisecond}
	wa := NewWhatsAppTransport(whatsappConfig(srv.URL), srv.Client(), limiter, zaptest.NewLogger(t))
	d := NewDispatcher(zaptest.NewLogger(t), testOptions(), wa)

	started := time.Now()
	err := d.Notify(context.Background(), models.QueueEntry{ID: 1, PhoneNumber: "+7700"}, ReasonTurnReached)

	require.NoError(t, err)
	assert.Equal(t, int32(2), limiter.calls.Load())
	assert.Equal(t, int32(1), delivered.Load())
	assert.GreaterOrEqual(t, time.Since(started), 30*time.Millisecond, "повтор ждёт окончания окна лимита")
}

func TestDispatcherRateLimitStopsAtContext(t *testing.T) {
	limiter := &refusingLimiter{refuse: 100, wait: time.Hour}
	wa := NewWhatsAppTransport(whatsappConfig("http://127.0.0.1:0"), nil, limiter, zaptest.NewLogger(t))
	d := NewDispatcher(zaptest.NewLogger(t), testOptions(), wa)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := d.Notify(ctx, models.QueueEntry{ID: 1, PhoneNumber: "+7700"}, ReasonTurnReached)

	assert.ErrorIs(t, err, queue.ErrDispatchFailure)
	assert.Equal(t, int32(1), limiter.calls.Load())
}

func TestDispatcherSkipIsNotFailure(t *testing.T) {
	skipping := &scriptedTransport{name: "skip", script: []error{ErrSkipped}}
	ok := &scriptedTransport{name: "ok"}
	d := NewDispatcher(zaptest.NewLogger(t), testOptions(), skipping, ok)

	err := d.Notify(context.Background(), models.QueueEntry{ID: 1}, ReasonRemovedLogin)

	require.NoError(t, err)
	assert.Equal(t, 1, skipping.calls)
	assert.Equal(t, 1, ok.calls)
}

func TestDispatcherOneTransportFailureDoesNotStopOthers(t *testing.T) {
	broken := &scriptedTransport{name: "broken", script: []error{ErrPermanent}}
	ok := &scriptedTransport{name: "ok"}
	d := NewDispatcher(zaptest.NewLogger(t), testOptions(), broken, ok)

	err := d.Notify(context.Background(), models.QueueEntry{ID: 1}, ReasonTurnReached)

	assert.ErrorIs(t, err, queue.ErrDispatchFailure)
	assert.Len(t, ok.sent, 1)
}

// slowTransport считает одновременные отправки.
type slowTransport struct {
	current, max atomic.Int32
}

func (s *slowTransport) Name() string { return "slow" }

func (s *slowTransport) Send(ctx context.Context, _ Notification) error {
	n := s.current.Add(1)
	for {
		m := s.max.Load()
		if n <= m || s.max.CompareAndSwap(m, n) {
			break
		}
	}
	time.Sleep(10 * time.Millisecond)
	s.current.Add(-1)
	return nil
}

func TestDispatchBoundsConcurrency(t *testing.T) {
	tr := &slowTransport{}
	d := NewDispatcher(zaptest.NewLogger(t), testOptions(), tr)

	ns := make([]Notification, 8)
	for i := range ns {
		ns[i] = Notification{Reason: ReasonTurnReached, Entry: models.QueueEntry{ID: uint(i + 1)}}
	}
	errs := d.Dispatch(context.Background(), ns)

	require.Len(t, errs, 8)
	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.LessOrEqual(t, tr.max.Load(), int32(2))
	assert.GreaterOrEqual(t, tr.max.Load(), int32(1))
}

func TestDispatchKeepsErrorOrder(t *testing.T) {
	tr := &perEntryTransport{fail: map[uint]bool{2: true}}
	d := NewDispatcher(zaptest.NewLogger(t), testOptions(), tr)

	errs := d.Dispatch(context.Background(), []Notification{
		{Reason: ReasonTurnReached, Entry: models.QueueEntry{ID: 1}},
		{Reason: ReasonTurnReached, Entry: models.QueueEntry{ID: 2}},
		{Reason: ReasonTurnReached, Entry: models.QueueEntry{ID: 3}},
	})

	assert.NoError(t, errs[0])
	assert.ErrorIs(t, errs[1], queue.ErrDispatchFailure)
	assert.NoError(t, errs[2])
}

type perEntryTransport struct {
	fail map[uint]bool
}

func (p *perEntryTransport) Name() string { return "per-entry" }

func (p *perEntryTransport) Send(_ context.Context, n Notification) error {
	if p.fail[n.Entry.ID] {
		return ErrPermanent
	}
	return nil
}

func TestReasonForStatus(t *testing.T) {
	r, ok := ReasonForStatus(models.StatusNotified)
	assert.True(t, ok)
	assert.Equal(t, ReasonTurnReached, r)

	_, ok = ReasonForStatus(models.StatusWaiting)
	assert.False(t, ok)
}
