package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gaming_queue/internal/metrics"
	"gaming_queue/internal/models"
	"gaming_queue/internal/notify"
	"gaming_queue/internal/queue"
	"gaming_queue/internal/session"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrCycleInProgress — предыдущий цикл ещё не закончился, новый не запускается.
var ErrCycleInProgress = errors.New("monitor cycle already running")

// maxConflictRetries ограничивает повторы пересчёта при конкурентной записи в раздел.
const maxConflictRetries = 3

// Store — операции хранилища, которые нужны монитору.
type Store interface {
	ListAllActive(ctx context.Context) ([]models.QueueEntry, error)
	Snapshot(ctx context.Context, class models.ComputerClass) (*queue.Snapshot, error)
	SetPositions(ctx context.Context, class models.ComputerClass, version uint64, positions map[uint]int) ([]queue.PositionChange, error)
	UpdateStatus(ctx context.Context, id uint, status models.Status) (*queue.Transition, error)
}

// Notifier отправляет уведомления, накопленные за цикл.
type Notifier interface {
	Dispatch(ctx context.Context, ns []notify.Notification) []error
}

// AutomaticMode переключает активность очереди по её размеру.
type AutomaticMode interface {
	SyncAutomaticMode(ctx context.Context) (bool, error)
}

type Options struct {
	CycleTimeout time.Duration
	StaleAfter   time.Duration // 0 — записи не истекают
}

// Monitor периодически сверяет очередь с активными сессиями. Всё состояние берётся из
// хранилища в начале каждого цикла, между циклами в памяти ничего не хранится,
// поэтому после перезапуска монитор продолжает работу без восстановления.
type Monitor struct {
	store     Store
	probe     session.Probe
	notifier  Notifier
	automatic AutomaticMode
	opts      Options
	log       *zap.Logger
	now       func() time.Time

	running sync.Mutex
	wg      sync.WaitGroup
}

func New(store Store, probe session.Probe, notifier Notifier, automatic AutomaticMode, opts Options, log *zap.Logger) *Monitor {
	return &Monitor{
		store:     store,
		probe:     probe,
		notifier:  notifier,
		automatic: automatic,
		opts:      opts,
		log:       log.Named("monitor"),
		now:       time.Now,
	}
}

// WithClock подменяет источник времени (используется в тестах).
func (m *Monitor) WithClock(now func() time.Time) *Monitor {
	m.now = now
	return m
}

// Report — итог одного цикла.
type Report struct {
	CycleID         string
	ProbeOK         bool
	Removed         []uint // Записи, переведённые в removed_login
	Notified        []uint // Записи, переведённые в notified
	Expired         []uint
	PositionChanges int // Записи, сменившие позицию за цикл
	Errors          []error
}

// Trigger запускает внеочередной цикл в фоне, например по событию входа из системы сессий.
// Если цикл уже идёт, вызов ничего не делает.
func (m *Monitor) Trigger() {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if _, err := m.RunCycle(context.Background()); err != nil && !errors.Is(err, ErrCycleInProgress) {
			m.log.Error("ошибка внеочередного цикла", zap.Error(err))
		}
	}()
}

// Wait дожидается завершения внеочередных циклов.
func (m *Monitor) Wait() {
	m.wg.Wait()
}

// RunCycle выполняет один цикл монитора. Циклы никогда не выполняются одновременно.
// Контекст вызывающего используется только как родитель: цикл ограничен собственным
// таймаутом и при остановке сервиса доводится до конца.
func (m *Monitor) RunCycle(parent context.Context) (*Report, error) {
	if !m.running.TryLock() {
		metrics.MonitorCycles.WithLabelValues("skipped").Inc()
		m.log.Info("предыдущий цикл ещё выполняется, пропуск")
		return nil, ErrCycleInProgress
	}
	defer m.running.Unlock()

	ctx := context.WithoutCancel(parent)
	if m.opts.CycleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.opts.CycleTimeout)
		defer cancel()
	}

	started := time.Now()
	report := &Report{CycleID: uuid.NewString()}
	log := m.log.With(zap.String("cycle_id", report.CycleID))
	defer func() {
		metrics.MonitorCycleDuration.Observe(time.Since(started).Seconds())
	}()

	active, err := m.probe.ActiveUserIDs(ctx)
	if err != nil {
		// Без списка сессий нельзя ни удалять, ни продвигать очередь.
		metrics.MonitorCycles.WithLabelValues("probe_unavailable").Inc()
		log.Warn("список сессий недоступен, цикл завершён без изменений", zap.Error(err))
		return report, nil
	}
	report.ProbeOK = true

	var outbox []notify.Notification

	// Пользователи, которые уже сели за компьютер, покидают очередь.
	entries, err := m.store.ListAllActive(ctx)
	if err != nil {
		metrics.MonitorCycles.WithLabelValues("error").Inc()
		return report, fmt.Errorf("ошибка чтения очереди: %w", err)
	}
	touched := make(map[models.ComputerClass]bool)
	// Позиция записи до первого сдвига в этом цикле.
	moved := make(map[uint]int)
	for _, e := range entries {
		if _, ok := active[e.UserID]; !ok {
			continue
		}
		tr, err := m.transition(ctx, e.ID, models.StatusRemovedLogin)
		if err != nil {
			m.recordError(log, report, e, err)
			continue
		}
		log.Info("пользователь сел за компьютер, удалён из очереди",
			zap.Uint("entry_id", e.ID), zap.Uint("user_id", e.UserID),
			zap.String("computer_class", string(e.ComputerClass)), zap.Int("position", e.Position))
		report.Removed = append(report.Removed, e.ID)
		trackMoves(moved, tr.Changes)
		touched[e.ComputerClass] = true
		outbox = append(outbox, notify.Notification{Reason: notify.ReasonRemovedLogin, Entry: tr.Entry})
	}

	// Истечение идёт до поиска первых, чтобы новый первый узнал об этом в том же цикле.
	if m.opts.StaleAfter > 0 {
		outbox = append(outbox, m.expire(ctx, log, report, touched, moved)...)
	}

	for _, class := range models.ComputerClasses() {
		if !touched[class] {
			continue
		}
		changes, err := m.reconcile(ctx, class)
		if err != nil {
			report.Errors = append(report.Errors, err)
			log.Error("ошибка пересчёта позиций", zap.String("computer_class", string(class)), zap.Error(err))
			continue
		}
		trackMoves(moved, changes)
	}
	report.PositionChanges = len(moved)

	// Первый в разделе получает уведомление ровно один раз, остальные продвинувшиеся
	// узнают новую позицию.
	for _, class := range models.ComputerClasses() {
		snap, err := m.store.Snapshot(ctx, class)
		if err != nil {
			report.Errors = append(report.Errors, err)
			log.Error("ошибка чтения раздела", zap.String("computer_class", string(class)), zap.Error(err))
			continue
		}
		metrics.ActiveEntries.WithLabelValues(string(class)).Set(float64(len(snap.Entries)))
		for _, e := range snap.Entries {
			if from, ok := moved[e.ID]; ok && e.Position > 1 && e.Position < from {
				outbox = append(outbox, notify.PositionChanged(e, from))
				continue
			}
			if e.Position != 1 || e.Status != models.StatusWaiting || e.NotifiedAt != nil {
				continue
			}
			tr, err := m.transition(ctx, e.ID, models.StatusNotified)
			if err != nil {
				m.recordError(log, report, e, err)
				continue
			}
			log.Info("подошла очередь", zap.Uint("entry_id", e.ID), zap.Uint("user_id", e.UserID),
				zap.String("computer_class", string(class)))
			report.Notified = append(report.Notified, e.ID)
			outbox = append(outbox, notify.Notification{Reason: notify.ReasonTurnReached, Entry: tr.Entry})
		}
	}

	if m.automatic != nil {
		if changed, err := m.automatic.SyncAutomaticMode(ctx); err != nil {
			log.Error("ошибка автоматического режима", zap.Error(err))
		} else if changed {
			log.Info("автоматический режим переключил активность очереди")
		}
	}

	if len(outbox) > 0 {
		failed := 0
		for _, err := range m.notifier.Dispatch(ctx, outbox) {
			if err != nil {
				failed++
			}
		}
		if failed > 0 {
			log.Warn("часть уведомлений не доставлена", zap.Int("failed", failed), zap.Int("total", len(outbox)))
		}
	}

	metrics.MonitorCycles.WithLabelValues("ok").Inc()
	log.Debug("цикл монитора завершён",
		zap.Int("removed", len(report.Removed)),
		zap.Int("notified", len(report.Notified)),
		zap.Int("expired", len(report.Expired)),
		zap.Int("position_changes", report.PositionChanges),
		zap.Duration("took", time.Since(started)))
	return report, nil
}

func (m *Monitor) expire(ctx context.Context, log *zap.Logger, report *Report,
	touched map[models.ComputerClass]bool, moved map[uint]int) []notify.Notification {
	entries, err := m.store.ListAllActive(ctx)
	if err != nil {
		report.Errors = append(report.Errors, err)
		log.Error("ошибка чтения очереди для истечения", zap.Error(err))
		return nil
	}

	cutoff := m.now().Add(-m.opts.StaleAfter)
	var out []notify.Notification
	for _, e := range entries {
		if !e.JoinedAt.Before(cutoff) {
			continue
		}
		tr, err := m.transition(ctx, e.ID, models.StatusExpired)
		if err != nil {
			m.recordError(log, report, e, err)
			continue
		}
		log.Info("запись истекла", zap.Uint("entry_id", e.ID), zap.Uint("user_id", e.UserID),
			zap.Time("joined_at", e.JoinedAt))
		report.Expired = append(report.Expired, e.ID)
		trackMoves(moved, tr.Changes)
		touched[e.ComputerClass] = true
		out = append(out, notify.Notification{Reason: notify.ReasonExpired, Entry: tr.Entry})
	}
	return out
}

// trackMoves запоминает исходную позицию каждой сдвинутой записи.
func trackMoves(moved map[uint]int, changes []queue.PositionChange) {
	for _, c := range changes {
		if _, ok := moved[c.EntryID]; !ok {
			moved[c.EntryID] = c.From
		}
	}
}

// transition меняет статус записи, повторяя попытку при конкурентной записи в раздел.
func (m *Monitor) transition(ctx context.Context, id uint, status models.Status) (*queue.Transition, error) {
	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		var tr *queue.Transition
		tr, err = m.store.UpdateStatus(ctx, id, status)
		if err == nil {
			metrics.Transitions.WithLabelValues(string(status)).Inc()
			return tr, nil
		}
		if !errors.Is(err, queue.ErrStoreWriteConflict) {
			return nil, err
		}
	}
	return nil, err
}

// reconcile сверяет сохранённые позиции раздела с расчётом и исправляет расхождения.
// При конкурентной записи расчёт повторяется по свежему снимку.
func (m *Monitor) reconcile(ctx context.Context, class models.ComputerClass) ([]queue.PositionChange, error) {
	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		var snap *queue.Snapshot
		snap, err = m.store.Snapshot(ctx, class)
		if err != nil {
			return nil, err
		}
		positions := queue.Positions(snap.Entries)
		if len(queue.Diff(snap.Entries, positions)) == 0 {
			return nil, nil
		}

		var changes []queue.PositionChange
		changes, err = m.store.SetPositions(ctx, class, snap.Version, positions)
		if err == nil {
			return changes, nil
		}
		if !errors.Is(err, queue.ErrStoreWriteConflict) {
			return nil, err
		}
	}
	return nil, err
}

// recordError учитывает ошибку по одной записи. Запись, которую уже закрыл другой писатель,
// ошибкой не считается.
func (m *Monitor) recordError(log *zap.Logger, report *Report, e models.QueueEntry, err error) {
	if errors.Is(err, queue.ErrInvalidTransition) || errors.Is(err, queue.ErrEntryNotFound) {
		log.Debug("запись уже изменена другим писателем", zap.Uint("entry_id", e.ID), zap.Error(err))
		return
	}
	report.Errors = append(report.Errors, fmt.Errorf("запись %d: %w", e.ID, err))
	log.Error("ошибка обработки записи", zap.Uint("entry_id", e.ID), zap.Error(err))
}
