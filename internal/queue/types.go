package queue

import "gaming_queue/internal/models"

// PositionChange описывает сдвиг одной записи после пересчёта.
type PositionChange struct {
	EntryID uint
	UserID  uint
	From    int
	To      int
}

// Transition — результат смены статуса записи.
type Transition struct {
	Entry   models.QueueEntry
	From    models.Status
	Changes []PositionChange // Сдвиги остальных записей раздела
}

// Snapshot — согласованный срез раздела вместе с его версией.
type Snapshot struct {
	ComputerClass models.ComputerClass
	Version       uint64
	Entries       []models.QueueEntry
}
