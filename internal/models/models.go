package models

import (
	"time"
)

// User — запись справочника пользователей. Таблицу ведёт внешний сервис авторизации,
// очередь её только читает.
type User struct {
	ID                  uint      `gorm:"primaryKey"`
	Name                string    `gorm:"not null"`
	Phone               string    // Номер для WhatsApp, может быть пустым
	GizmoID             *int      `gorm:"uniqueIndex"` // Идентификатор пользователя в Gizmo (системе сессий)
	IsStaff             bool      `gorm:"default:false"`
	NotificationsOptOut bool      `gorm:"default:false"` // Пользователь отказался от WhatsApp-уведомлений
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// QueueEntry — место пользователя в очереди на компьютер.
type QueueEntry struct {
	ID            uint          `gorm:"primaryKey"`
	UserID        uint          `gorm:"not null;index"`
	ComputerClass ComputerClass `gorm:"type:varchar(16);not null;index:idx_queue_scan,priority:1"` // Раздел очереди, не меняется после создания
	Status        Status        `gorm:"type:varchar(32);not null;index:idx_queue_scan,priority:2"`
	JoinedAt      time.Time     `gorm:"not null;index:idx_queue_scan,priority:3"` // Время вступления, определяет порядок
	Position      int           `gorm:"not null"`                                 // Вычисляемая позиция внутри раздела, начиная с 1
	NotifiedAt    *time.Time    // Устанавливается один раз при переходе в notified
	ResolvedAt    *time.Time    `gorm:"index"` // Время перехода в конечный статус
	UserName      string        `gorm:"not null"`
	PhoneNumber   string
	Notes         string
	IsPhysical    bool  `gorm:"default:false"` // Записан сотрудником на месте, а не через сайт
	CreatedBy     *uint // Сотрудник, добавивший запись
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Active сообщает, занимает ли запись место в очереди.
func (e QueueEntry) Active() bool {
	return e.Status.Active()
}

// QueuePartition хранит версию раздела очереди. Строка блокируется на время каждой записи
// в раздел, а версия растёт после каждого пересчёта позиций.
type QueuePartition struct {
	ComputerClass ComputerClass `gorm:"type:varchar(16);primaryKey"`
	Version       uint64        `gorm:"not null;default:0"`
	RecomputedAt  time.Time
}

// QueueSettings — общие настройки очереди, хранятся одной строкой с ID = 1.
type QueueSettings struct {
	ID                 uint `gorm:"primaryKey"`
	IsActive           bool
	AllowOnlineJoining bool
	MaxQueueSize       int  // 0 — без ограничения
	AutomaticMode      bool // Очередь включается и выключается сама в зависимости от размера
	UpdatedBy          *uint
	UpdatedAt          time.Time
}
