package monitor_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"gaming_queue/internal/models"
	"gaming_queue/internal/monitor"
	"gaming_queue/internal/notify"
	"gaming_queue/internal/queue"
	"gaming_queue/internal/storage"
	"gaming_queue/internal/storage/storagetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

var start = time.Date(2025, 3, 1, 18, 0, 0, 0, time.UTC)

type fakeProbe struct {
	mu     sync.Mutex
	active map[uint]struct{}
	err    error
	calls  int
}

func (p *fakeProbe) ActiveUserIDs(context.Context) (map[uint]struct{}, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	out := make(map[uint]struct{}, len(p.active))
	for id := range p.active {
		out[id] = struct{}{}
	}
	return out, nil
}

func (p *fakeProbe) set(ids ...uint) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = nil
	p.active = make(map[uint]struct{})
	for _, id := range ids {
		p.active[id] = struct{}{}
	}
}

func (p *fakeProbe) fail() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = fmt.Errorf("%w: connection refused", queue.ErrProbeUnavailable)
}

type recorder struct {
	mu   sync.Mutex
	sent []notify.Notification
	fail bool
}

func (r *recorder) Dispatch(_ context.Context, ns []notify.Notification) []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, ns...)
	errs := make([]error, len(ns))
	if r.fail {
		for i := range errs {
			errs[i] = queue.ErrDispatchFailure
		}
	}
	return errs
}

func (r *recorder) count(reason notify.Reason, entryID uint) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.sent {
		if s.Reason == reason && s.Entry.ID == entryID {
			n++
		}
	}
	return n
}

func (r *recorder) find(reason notify.Reason, entryID uint) []notify.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []notify.Notification
	for _, s := range r.sent {
		if s.Reason == reason && s.Entry.ID == entryID {
			out = append(out, s)
		}
	}
	return out
}

type fixture struct {
	db       *gorm.DB
	store    *storage.QueueStore
	settings *storage.SettingsStore
	probe    *fakeProbe
	sent     *recorder
	clock    *storagetest.Clock
	mon      *monitor.Monitor
}

func newFixture(t *testing.T, opts monitor.Options) *fixture {
	t.Helper()
	db := storagetest.Open(t)
	clock := storagetest.NewClock(start, time.Second)
	f := &fixture{
		db:       db,
		store:    storage.NewQueueStore(db).WithClock(clock.Now),
		settings: storage.NewSettingsStore(db),
		probe:    &fakeProbe{},
		sent:     &recorder{},
		clock:    clock,
	}
	f.mon = monitor.New(f.store, f.probe, f.sent, f.settings, opts, zaptest.NewLogger(t)).WithClock(clock.Now)
	return f
}

func (f *fixture) enqueue(t *testing.T, name string, class models.ComputerClass) (models.User, *models.QueueEntry) {
	t.Helper()
	u := storagetest.CreateUser(t, f.db, name)
	e, err := f.store.Enqueue(context.Background(), storage.EnqueueParams{UserID: u.ID, ComputerClass: class, UserName: name})
	require.NoError(t, err)
	return u, e
}

func (f *fixture) get(t *testing.T, id uint) *models.QueueEntry {
	t.Helper()
	e, err := f.store.Get(context.Background(), id)
	require.NoError(t, err)
	return e
}

func (f *fixture) cycle(t *testing.T) *monitor.Report {
	t.Helper()
	report, err := f.mon.RunCycle(context.Background())
	require.NoError(t, err)
	require.Empty(t, report.Errors)
	return report
}

func TestCycleRemovesLoggedInUser(t *testing.T) {
	f := newFixture(t, monitor.Options{})
	_, e1 := f.enqueue(t, "u1", models.ClassTop)
	u2, e2 := f.enqueue(t, "u2", models.ClassTop)
	_, e3 := f.enqueue(t, "u3", models.ClassTop)
	f.probe.set(u2.ID)

	report := f.cycle(t)

	assert.True(t, report.ProbeOK)
	assert.NotEmpty(t, report.CycleID)
	assert.Equal(t, []uint{e2.ID}, report.Removed)

	assert.Equal(t, models.StatusRemovedLogin, f.get(t, e2.ID).Status)
	assert.NotNil(t, f.get(t, e2.ID).ResolvedAt)
	assert.Equal(t, 1, f.get(t, e1.ID).Position)
	assert.Equal(t, 2, f.get(t, e3.ID).Position)
	assert.Equal(t, 1, f.sent.count(notify.ReasonRemovedLogin, e2.ID))
}

func TestCycleTellsAdvancedUsersTheirPosition(t *testing.T) {
	f := newFixture(t, monitor.Options{})
	u1, e1 := f.enqueue(t, "u1", models.ClassTop)
	_, e2 := f.enqueue(t, "u2", models.ClassTop)
	_, e3 := f.enqueue(t, "u3", models.ClassTop)
	f.probe.set(u1.ID)

	report := f.cycle(t)

	assert.Equal(t, []uint{e1.ID}, report.Removed)
	assert.Equal(t, []uint{e2.ID}, report.Notified)
	assert.Equal(t, 2, report.PositionChanges)

	moved := f.sent.find(notify.ReasonPositionChanged, e3.ID)
	require.Len(t, moved, 1)
	assert.Equal(t, 3, moved[0].PreviousPosition)
	assert.Equal(t, 2, moved[0].Entry.Position)
	assert.Equal(t, "u3", moved[0].Entry.UserName)

	// Первый получает turn_reached, а не сообщение о сдвиге.
	assert.Empty(t, f.sent.find(notify.ReasonPositionChanged, e2.ID))
	assert.Equal(t, 1, f.sent.count(notify.ReasonTurnReached, e2.ID))

	// Без новых сдвигов повторных сообщений нет.
	f.probe.set()
	again := f.cycle(t)
	assert.Zero(t, again.PositionChanges)
	assert.Len(t, f.sent.find(notify.ReasonPositionChanged, e3.ID), 1)
}

func TestCycleNotifiesHeadOnce(t *testing.T) {
	f := newFixture(t, monitor.Options{})
	_, e1 := f.enqueue(t, "u1", models.ClassBottom)
	_, e2 := f.enqueue(t, "u2", models.ClassBottom)
	f.probe.set()

	first := f.cycle(t)
	assert.Equal(t, []uint{e1.ID}, first.Notified)
	for i := 0; i < 5; i++ {
		report := f.cycle(t)
		assert.Empty(t, report.Notified)
	}

	head := f.get(t, e1.ID)
	assert.Equal(t, models.StatusNotified, head.Status)
	assert.NotNil(t, head.NotifiedAt)
	assert.Equal(t, 1, f.sent.count(notify.ReasonTurnReached, e1.ID))
	assert.Zero(t, f.sent.count(notify.ReasonTurnReached, e2.ID))
	assert.Equal(t, models.StatusWaiting, f.get(t, e2.ID).Status)
}

func TestCycleNotifiesHeadOfEveryPartition(t *testing.T) {
	f := newFixture(t, monitor.Options{})
	_, top := f.enqueue(t, "top", models.ClassTop)
	_, bottom := f.enqueue(t, "bottom", models.ClassBottom)
	_, anyClass := f.enqueue(t, "any", models.ClassAny)
	f.probe.set()

	report := f.cycle(t)

	assert.ElementsMatch(t, []uint{top.ID, bottom.ID, anyClass.ID}, report.Notified)
}

func TestProbeFailureChangesNothing(t *testing.T) {
	f := newFixture(t, monitor.Options{StaleAfter: time.Minute})
	u1, e1 := f.enqueue(t, "u1", models.ClassTop)
	_, e2 := f.enqueue(t, "u2", models.ClassTop)
	f.probe.set(u1.ID)
	f.probe.fail()
	f.clock.Advance(time.Hour)

	before, err := f.store.ListAllActive(context.Background())
	require.NoError(t, err)
	snapBefore, err := f.store.Snapshot(context.Background(), models.ClassTop)
	require.NoError(t, err)

	report, err := f.mon.RunCycle(context.Background())
	require.NoError(t, err)

	assert.False(t, report.ProbeOK)
	assert.Empty(t, report.Removed)
	assert.Empty(t, report.Notified)
	assert.Empty(t, report.Expired)
	assert.Zero(t, report.PositionChanges)

	after, err := f.store.ListAllActive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, before, after)
	snapAfter, err := f.store.Snapshot(context.Background(), models.ClassTop)
	require.NoError(t, err)
	assert.Equal(t, snapBefore.Version, snapAfter.Version)
	assert.Equal(t, models.StatusWaiting, f.get(t, e1.ID).Status)
	assert.Equal(t, models.StatusWaiting, f.get(t, e2.ID).Status)
	assert.Empty(t, f.sent.sent)
}

func TestManualRemovalPromotesNextOnce(t *testing.T) {
	f := newFixture(t, monitor.Options{})
	_, e1 := f.enqueue(t, "u1", models.ClassBottom)
	_, e4 := f.enqueue(t, "u4", models.ClassBottom)
	f.probe.set()

	// Уведомление получает только первый.
	f.cycle(t)
	require.Equal(t, 1, f.sent.count(notify.ReasonTurnReached, e1.ID))
	require.Equal(t, models.StatusWaiting, f.get(t, e4.ID).Status)

	tr, err := f.store.UpdateStatus(context.Background(), e1.ID, models.StatusRemovedManual)
	require.NoError(t, err)
	assert.Equal(t, []queue.PositionChange{{EntryID: e4.ID, UserID: e4.UserID, From: 2, To: 1}}, tr.Changes)
	assert.Equal(t, 1, f.get(t, e4.ID).Position)

	for i := 0; i < 3; i++ {
		f.cycle(t)
	}

	assert.Equal(t, models.StatusNotified, f.get(t, e4.ID).Status)
	assert.Equal(t, 1, f.sent.count(notify.ReasonTurnReached, e4.ID))
	assert.Equal(t, 1, f.sent.count(notify.ReasonTurnReached, e1.ID))
}

func TestNotifiedUserWhoLogsInIsRemoved(t *testing.T) {
	f := newFixture(t, monitor.Options{})
	u1, e1 := f.enqueue(t, "u1", models.ClassAny)
	_, e2 := f.enqueue(t, "u2", models.ClassAny)
	f.probe.set()
	f.cycle(t)
	require.Equal(t, models.StatusNotified, f.get(t, e1.ID).Status)

	f.probe.set(u1.ID)
	report := f.cycle(t)

	assert.Equal(t, []uint{e1.ID}, report.Removed)
	assert.Equal(t, []uint{e2.ID}, report.Notified)
	closed := f.get(t, e1.ID)
	assert.Equal(t, models.StatusRemovedLogin, closed.Status)
	assert.NotNil(t, closed.NotifiedAt)
	assert.Equal(t, 1, f.get(t, e2.ID).Position)
}

func TestDispatchFailureDoesNotRollBack(t *testing.T) {
	f := newFixture(t, monitor.Options{})
	f.sent.fail = true
	_, e1 := f.enqueue(t, "u1", models.ClassTop)
	f.probe.set()

	f.cycle(t)
	f.cycle(t)

	assert.Equal(t, models.StatusNotified, f.get(t, e1.ID).Status)
	assert.Equal(t, 1, f.sent.count(notify.ReasonTurnReached, e1.ID))
}

func TestCycleExpiresStaleEntries(t *testing.T) {
	f := newFixture(t, monitor.Options{StaleAfter: 30 * time.Minute})
	_, old := f.enqueue(t, "old", models.ClassTop)
	f.clock.Advance(20 * time.Minute)
	_, fresh := f.enqueue(t, "fresh", models.ClassTop)
	f.probe.set()

	f.cycle(t)
	require.Equal(t, models.StatusNotified, f.get(t, old.ID).Status)

	f.clock.Advance(15 * time.Minute)
	report := f.cycle(t)

	assert.Equal(t, []uint{old.ID}, report.Expired)
	assert.Equal(t, models.StatusExpired, f.get(t, old.ID).Status)
	assert.Equal(t, 1, f.get(t, fresh.ID).Position)
	assert.Equal(t, 1, f.sent.count(notify.ReasonExpired, old.ID))

	// Новый первый узнаёт о своей очереди в том же цикле.
	assert.Equal(t, []uint{fresh.ID}, report.Notified)
	assert.Equal(t, models.StatusNotified, f.get(t, fresh.ID).Status)
	assert.Equal(t, 1, f.sent.count(notify.ReasonTurnReached, fresh.ID))
}

func TestCycleRepairsPositionDrift(t *testing.T) {
	f := newFixture(t, monitor.Options{})
	u1, e1 := f.enqueue(t, "u1", models.ClassTop)
	_, e2 := f.enqueue(t, "u2", models.ClassTop)
	_, e3 := f.enqueue(t, "u3", models.ClassTop)
	require.NoError(t, f.db.Model(&models.QueueEntry{}).Where("id = ?", e3.ID).Update("position", 7).Error)
	f.probe.set(u1.ID)

	report := f.cycle(t)

	assert.Equal(t, []uint{e1.ID}, report.Removed)
	assert.Equal(t, 1, f.get(t, e2.ID).Position)
	assert.Equal(t, 2, f.get(t, e3.ID).Position)
}

func TestAutomaticModeFollowsQueue(t *testing.T) {
	f := newFixture(t, monitor.Options{})
	on := true
	_, err := f.settings.Update(context.Background(), storage.SettingsUpdate{AutomaticMode: &on})
	require.NoError(t, err)
	u1, _ := f.enqueue(t, "u1", models.ClassTop)
	f.probe.set()

	f.cycle(t)
	s, err := f.settings.Get(context.Background())
	require.NoError(t, err)
	assert.True(t, s.IsActive)

	f.probe.set(u1.ID)
	f.cycle(t)
	s, err = f.settings.Get(context.Background())
	require.NoError(t, err)
	assert.False(t, s.IsActive)
}

// blockingProbe держит цикл, пока тест не отпустит его.
type blockingProbe struct {
	entered chan struct{}
	release chan struct{}
}

func (p *blockingProbe) ActiveUserIDs(ctx context.Context) (map[uint]struct{}, error) {
	p.entered <- struct{}{}
	<-p.release
	return map[uint]struct{}{}, nil
}

func TestCyclesNeverOverlap(t *testing.T) {
	db := storagetest.Open(t)
	probe := &blockingProbe{entered: make(chan struct{}), release: make(chan struct{})}
	mon := monitor.New(storage.NewQueueStore(db), probe, &recorder{}, nil, monitor.Options{}, zaptest.NewLogger(t))

	done := make(chan error, 1)
	go func() {
		_, err := mon.RunCycle(context.Background())
		done <- err
	}()
	<-probe.entered

	_, err := mon.RunCycle(context.Background())
	assert.ErrorIs(t, err, monitor.ErrCycleInProgress)

	mon.Trigger()
	mon.Wait()

	close(probe.release)
	require.NoError(t, <-done)
}

func TestCycleSurvivesCancelledCaller(t *testing.T) {
	f := newFixture(t, monitor.Options{CycleTimeout: time.Minute})
	_, e1 := f.enqueue(t, "u1", models.ClassTop)
	f.probe.set()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.mon.RunCycle(ctx)
	require.NoError(t, err)

	assert.Equal(t, models.StatusNotified, f.get(t, e1.ID).Status)
}
