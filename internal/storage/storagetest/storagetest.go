// Package storagetest поднимает изолированную базу SQLite в памяти для тестов.
package storagetest

import (
	"sync"
	"testing"
	"time"

	"gaming_queue/internal/config"
	"gaming_queue/internal/models"
	"gaming_queue/internal/storage"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// Open создаёт новую базу с применёнными миграциями. База удаляется вместе с последним соединением.
func Open(t testing.TB) *gorm.DB {
	t.Helper()
	db, err := storage.ConnectDatabase(config.Database{
		Driver: "sqlite",
		Name:   "file:" + uuid.NewString() + "?mode=memory&cache=shared",
	})
	require.NoError(t, err)
	require.NoError(t, storage.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

type UserOption func(*models.User)

func Staff() UserOption {
	return func(u *models.User) { u.IsStaff = true }
}

func Gizmo(id int) UserOption {
	return func(u *models.User) { u.GizmoID = &id }
}

func Phone(phone string) UserOption {
	return func(u *models.User) { u.Phone = phone }
}

func OptOut() UserOption {
	return func(u *models.User) { u.NotificationsOptOut = true }
}

// CreateUser добавляет пользователя в справочник.
func CreateUser(t testing.TB, db *gorm.DB, name string, opts ...UserOption) models.User {
	t.Helper()
	u := models.User{Name: name}
	for _, opt := range opts {
		opt(&u)
	}
	require.NoError(t, db.Create(&u).Error)
	return u
}

// Clock — управляемые часы. Каждый вызов Now сдвигает время на шаг.
type Clock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func NewClock(start time.Time, step time.Duration) *Clock {
	return &Clock{now: start, step: step}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(c.step)
	return c.now
}

// Advance переводит часы вперёд без вызова Now.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
