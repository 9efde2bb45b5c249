package storage

import (
	"context"
	"errors"

	"gaming_queue/internal/models"

	"gorm.io/gorm"
)

const settingsID = 1

// SettingsStore читает и обновляет общие настройки очереди.
type SettingsStore struct {
	db *gorm.DB
}

func NewSettingsStore(db *gorm.DB) *SettingsStore {
	return &SettingsStore{db: db}
}

func (s *SettingsStore) Get(ctx context.Context) (*models.QueueSettings, error) {
	var settings models.QueueSettings
	if err := s.db.WithContext(ctx).First(&settings, settingsID).Error; err != nil {
		return nil, err
	}
	return &settings, nil
}

// SettingsUpdate — частичное обновление настроек, nil-поля не меняются.
type SettingsUpdate struct {
	IsActive           *bool
	AllowOnlineJoining *bool
	MaxQueueSize       *int
	AutomaticMode      *bool
	UpdatedBy          *uint
}

func (s *SettingsStore) Update(ctx context.Context, u SettingsUpdate) (*models.QueueSettings, error) {
	updates := map[string]interface{}{}
	if u.IsActive != nil {
		updates["is_active"] = *u.IsActive
	}
	if u.AllowOnlineJoining != nil {
		updates["allow_online_joining"] = *u.AllowOnlineJoining
	}
	if u.MaxQueueSize != nil {
		updates["max_queue_size"] = *u.MaxQueueSize
	}
	if u.AutomaticMode != nil {
		updates["automatic_mode"] = *u.AutomaticMode
	}
	if u.UpdatedBy != nil {
		updates["updated_by"] = *u.UpdatedBy
	}
	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(&models.QueueSettings{}).
			Where("id = ?", settingsID).
			Updates(updates).Error; err != nil {
			return nil, err
		}
	}
	return s.Get(ctx)
}

// SyncAutomaticMode в автоматическом режиме включает очередь, когда в ней кто-то есть,
// и выключает, когда она пуста. Возвращает true, если флаг активности изменился.
func (s *SettingsStore) SyncAutomaticMode(ctx context.Context) (bool, error) {
	settings, err := s.Get(ctx)
	if err != nil {
		return false, err
	}
	if !settings.AutomaticMode {
		return false, nil
	}

	var active int64
	if err := s.db.WithContext(ctx).Model(&models.QueueEntry{}).
		Where("status IN ?", models.ActiveStatuses()).
		Count(&active).Error; err != nil {
		return false, err
	}

	want := active > 0
	if settings.IsActive == want {
		return false, nil
	}
	err = s.db.WithContext(ctx).Model(&models.QueueSettings{}).
		Where("id = ?", settingsID).
		Update("is_active", want).Error
	return err == nil, err
}

// UserStore — доступ к справочнику пользователей.
type UserStore struct {
	db *gorm.DB
}

func NewUserStore(db *gorm.DB) *UserStore {
	return &UserStore{db: db}
}

// ErrUserNotFound — пользователя нет в справочнике.
var ErrUserNotFound = errors.New("user not found")

func (s *UserStore) Get(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// UserIDsByGizmoIDs сопоставляет идентификаторы Gizmo с пользователями очереди.
// Неизвестные идентификаторы пропускаются.
func (s *UserStore) UserIDsByGizmoIDs(ctx context.Context, gizmoIDs []int) ([]uint, error) {
	if len(gizmoIDs) == 0 {
		return nil, nil
	}
	var ids []uint
	err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("gizmo_id IN ?", gizmoIDs).
		Pluck("id", &ids).Error
	return ids, err
}
