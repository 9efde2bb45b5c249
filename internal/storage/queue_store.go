package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gaming_queue/internal/models"
	"gaming_queue/internal/queue"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// QueueStore — долговременное хранилище очереди. Любая запись в раздел выполняется в одной
// транзакции под блокировкой строки раздела, поэтому снаружи не видно промежуточных позиций.
type QueueStore struct {
	db  *gorm.DB
	now func() time.Time
}

func NewQueueStore(db *gorm.DB) *QueueStore {
	return &QueueStore{db: db, now: time.Now}
}

// WithClock подменяет источник времени (используется в тестах).
func (s *QueueStore) WithClock(now func() time.Time) *QueueStore {
	s.now = now
	return s
}

// EnqueueParams — данные новой записи.
type EnqueueParams struct {
	UserID        uint
	ComputerClass models.ComputerClass
	UserName      string
	PhoneNumber   string
	Notes         string
	IsPhysical    bool
	CreatedBy     *uint
	MaxQueueSize  int // 0 — без ограничения
}

// Enqueue ставит пользователя в очередь и пересчитывает позиции раздела.
func (s *QueueStore) Enqueue(ctx context.Context, p EnqueueParams) (*models.QueueEntry, error) {
	if !p.ComputerClass.Valid() {
		return nil, fmt.Errorf("%w: %q", queue.ErrUnknownComputerClass, p.ComputerClass)
	}

	var entry models.QueueEntry
	// Лимит считается по всей очереди, поэтому при нём блокируются все разделы.
	err := s.withPartitions(ctx, p.ComputerClass, p.MaxQueueSize > 0, func(tx *gorm.DB, _ *models.QueuePartition) error {
		var existing int64
		if err := tx.Model(&models.QueueEntry{}).
			Where("user_id = ? AND status IN ?", p.UserID, models.ActiveStatuses()).
			Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return queue.ErrAlreadyQueued
		}

		if p.MaxQueueSize > 0 {
			var total int64
			if err := tx.Model(&models.QueueEntry{}).
				Where("status IN ?", models.ActiveStatuses()).
				Count(&total).Error; err != nil {
				return err
			}
			if total >= int64(p.MaxQueueSize) {
				return queue.ErrQueueFull
			}
		}

		entry = models.QueueEntry{
			UserID:        p.UserID,
			ComputerClass: p.ComputerClass,
			Status:        models.StatusWaiting,
			JoinedAt:      s.now().UTC(),
			UserName:      p.UserName,
			PhoneNumber:   p.PhoneNumber,
			Notes:         p.Notes,
			IsPhysical:    p.IsPhysical,
			CreatedBy:     p.CreatedBy,
		}
		if err := tx.Create(&entry).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return queue.ErrAlreadyQueued
			}
			return err
		}

		changes, err := recompute(tx, p.ComputerClass)
		if err != nil {
			return err
		}
		for _, c := range changes {
			if c.EntryID == entry.ID {
				entry.Position = c.To
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// Get возвращает запись по ID.
func (s *QueueStore) Get(ctx context.Context, id uint) (*models.QueueEntry, error) {
	var entry models.QueueEntry
	if err := s.db.WithContext(ctx).First(&entry, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, queue.ErrEntryNotFound
		}
		return nil, err
	}
	return &entry, nil
}

// ActiveForUser возвращает активную запись пользователя в любом разделе.
func (s *QueueStore) ActiveForUser(ctx context.Context, userID uint) (*models.QueueEntry, error) {
	var entry models.QueueEntry
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND status IN ?", userID, models.ActiveStatuses()).
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, queue.ErrEntryNotFound
		}
		return nil, err
	}
	return &entry, nil
}

// ListActive возвращает активные записи раздела в порядке позиций.
func (s *QueueStore) ListActive(ctx context.Context, class models.ComputerClass) ([]models.QueueEntry, error) {
	if !class.Valid() {
		return nil, fmt.Errorf("%w: %q", queue.ErrUnknownComputerClass, class)
	}
	var entries []models.QueueEntry
	err := s.db.WithContext(ctx).
		Where("computer_class = ? AND status IN ?", class, models.ActiveStatuses()).
		Order("position, id").
		Find(&entries).Error
	return entries, err
}

// ListAllActive возвращает активные записи всех разделов.
func (s *QueueStore) ListAllActive(ctx context.Context) ([]models.QueueEntry, error) {
	var entries []models.QueueEntry
	err := s.db.WithContext(ctx).
		Where("status IN ?", models.ActiveStatuses()).
		Order("computer_class, position, id").
		Find(&entries).Error
	return entries, err
}

// Snapshot читает версию раздела и его активные записи согласованно.
func (s *QueueStore) Snapshot(ctx context.Context, class models.ComputerClass) (*queue.Snapshot, error) {
	snap := queue.Snapshot{ComputerClass: class}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var p models.QueuePartition
		if err := tx.Clauses(clause.Locking{Strength: "SHARE"}).
			Where("computer_class = ?", class).
			First(&p).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: %q", queue.ErrUnknownComputerClass, class)
			}
			return err
		}
		snap.Version = p.Version
		return tx.Where("computer_class = ? AND status IN ?", class, models.ActiveStatuses()).
			Order("position, id").
			Find(&snap.Entries).Error
	})
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// SetPositions сохраняет рассчитанные позиции раздела, если с момента снимка раздел не менялся.
// Иначе возвращает queue.ErrStoreWriteConflict, и пересчёт нужно начать заново.
func (s *QueueStore) SetPositions(ctx context.Context, class models.ComputerClass, version uint64, positions map[uint]int) ([]queue.PositionChange, error) {
	if err := checkContiguous(positions); err != nil {
		return nil, err
	}

	var changes []queue.PositionChange
	err := s.withPartition(ctx, class, func(tx *gorm.DB, p *models.QueuePartition) error {
		if p.Version != version {
			return fmt.Errorf("%w: версия %d, ожидалась %d", queue.ErrStoreWriteConflict, p.Version, version)
		}

		var entries []models.QueueEntry
		if err := tx.Where("computer_class = ? AND status IN ?", class, models.ActiveStatuses()).
			Find(&entries).Error; err != nil {
			return err
		}
		if len(entries) != len(positions) {
			return fmt.Errorf("%w: состав раздела изменился", queue.ErrStoreWriteConflict)
		}
		for _, e := range entries {
			if _, ok := positions[e.ID]; !ok {
				return fmt.Errorf("%w: запись %d отсутствует в расчёте", queue.ErrStoreWriteConflict, e.ID)
			}
		}

		changes = queue.Diff(entries, positions)
		return applyChanges(tx, changes)
	})
	if err != nil {
		return nil, err
	}
	return changes, nil
}

// UpdateStatus переводит запись в новый статус. Переход в конечный статус в той же транзакции
// пересчитывает позиции оставшихся записей раздела. Переход в notified возможен только из
// waiting и только один раз.
func (s *QueueStore) UpdateStatus(ctx context.Context, id uint, status models.Status) (*queue.Transition, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: неизвестный статус %q", queue.ErrInvalidTransition, status)
	}
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	var tr queue.Transition
	err = s.withPartition(ctx, current.ComputerClass, func(tx *gorm.DB, _ *models.QueuePartition) error {
		var entry models.QueueEntry
		if err := tx.First(&entry, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return queue.ErrEntryNotFound
			}
			return err
		}
		if !entry.Status.CanTransition(status) {
			return fmt.Errorf("%w: %s -> %s", queue.ErrInvalidTransition, entry.Status, status)
		}

		now := s.now().UTC()
		updates := map[string]interface{}{"status": status}
		if status == models.StatusNotified {
			if entry.NotifiedAt != nil {
				return fmt.Errorf("%w: запись %d уже уведомлена", queue.ErrInvalidTransition, id)
			}
			updates["notified_at"] = now
			entry.NotifiedAt = &now
		}
		if status.Terminal() {
			updates["resolved_at"] = now
			entry.ResolvedAt = &now
		}

		res := tx.Model(&models.QueueEntry{}).
			Where("id = ? AND status = ?", id, entry.Status).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return queue.ErrStoreWriteConflict
		}

		tr.From = entry.Status
		entry.Status = status
		if status.Terminal() {
			changes, err := recompute(tx, entry.ComputerClass)
			if err != nil {
				return err
			}
			tr.Changes = changes
		}
		tr.Entry = entry
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &tr, nil
}

// QueueStats — количество активных записей по разделам и способу записи.
type QueueStats struct {
	Total    int64                          `json:"total"`
	Physical int64                          `json:"physical"`
	Online   int64                          `json:"online"`
	ByClass  map[models.ComputerClass]int64 `json:"by_class"`
}

func (s *QueueStore) Stats(ctx context.Context) (*QueueStats, error) {
	var rows []struct {
		ComputerClass models.ComputerClass
		IsPhysical    bool
		Total         int64
	}
	err := s.db.WithContext(ctx).Model(&models.QueueEntry{}).
		Select("computer_class, is_physical, count(*) as total").
		Where("status IN ?", models.ActiveStatuses()).
		Group("computer_class, is_physical").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	stats := &QueueStats{ByClass: make(map[models.ComputerClass]int64)}
	for _, class := range models.ComputerClasses() {
		stats.ByClass[class] = 0
	}
	for _, r := range rows {
		stats.Total += r.Total
		stats.ByClass[r.ComputerClass] += r.Total
		if r.IsPhysical {
			stats.Physical += r.Total
		} else {
			stats.Online += r.Total
		}
	}
	return stats, nil
}

// PurgeTerminal удаляет записи в конечных статусах, закрытые раньше before.
func (s *QueueStore) PurgeTerminal(ctx context.Context, before time.Time) (int64, error) {
	terminal := []models.Status{models.StatusRemovedLogin, models.StatusRemovedManual, models.StatusExpired}
	res := s.db.WithContext(ctx).
		Where("status IN ? AND resolved_at < ?", terminal, before.UTC()).
		Delete(&models.QueueEntry{})
	return res.RowsAffected, res.Error
}

// withPartition выполняет fn в транзакции под блокировкой строки раздела и увеличивает версию
// раздела. Разные разделы блокируются независимо.
func (s *QueueStore) withPartition(ctx context.Context, class models.ComputerClass, fn func(tx *gorm.DB, p *models.QueuePartition) error) error {
	return s.withPartitions(ctx, class, false, fn)
}

// withPartitions при all блокирует строки всех разделов в порядке computer_class,
// версия увеличивается только у раздела class.
func (s *QueueStore) withPartitions(ctx context.Context, class models.ComputerClass, all bool, fn func(tx *gorm.DB, p *models.QueuePartition) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := lockPartitions(tx, class, all)
		if err != nil {
			return err
		}

		if err := fn(tx, p); err != nil {
			return err
		}

		res := tx.Model(&models.QueuePartition{}).
			Where("computer_class = ? AND version = ?", class, p.Version).
			Updates(map[string]interface{}{"version": p.Version + 1, "recomputed_at": s.now().UTC()})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return queue.ErrStoreWriteConflict
		}
		return nil
	})
}

func lockPartitions(tx *gorm.DB, class models.ComputerClass, all bool) (*models.QueuePartition, error) {
	locked := tx.Clauses(clause.Locking{Strength: "UPDATE"})
	if !all {
		var p models.QueuePartition
		if err := locked.Where("computer_class = ?", class).First(&p).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, fmt.Errorf("%w: %q", queue.ErrUnknownComputerClass, class)
			}
			return nil, err
		}
		return &p, nil
	}

	var parts []models.QueuePartition
	if err := locked.Order("computer_class").Find(&parts).Error; err != nil {
		return nil, err
	}
	for i := range parts {
		if parts[i].ComputerClass == class {
			return &parts[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %q", queue.ErrUnknownComputerClass, class)
}

func recompute(tx *gorm.DB, class models.ComputerClass) ([]queue.PositionChange, error) {
	var entries []models.QueueEntry
	if err := tx.Where("computer_class = ? AND status IN ?", class, models.ActiveStatuses()).
		Find(&entries).Error; err != nil {
		return nil, err
	}
	changes := queue.Diff(entries, queue.Positions(entries))
	if err := applyChanges(tx, changes); err != nil {
		return nil, err
	}
	return changes, nil
}

func applyChanges(tx *gorm.DB, changes []queue.PositionChange) error {
	for _, c := range changes {
		if err := tx.Model(&models.QueueEntry{}).
			Where("id = ?", c.EntryID).
			Update("position", c.To).Error; err != nil {
			return err
		}
	}
	return nil
}

func checkContiguous(positions map[uint]int) error {
	seen := make([]bool, len(positions)+1)
	for id, pos := range positions {
		if pos < 1 || pos > len(positions) || seen[pos] {
			return fmt.Errorf("позиция %d записи %d вне диапазона 1..%d или повторяется", pos, id, len(positions))
		}
		seen[pos] = true
	}
	return nil
}
