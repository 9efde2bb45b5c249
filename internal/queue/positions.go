package queue

import (
	"fmt"
	"slices"

	"gaming_queue/internal/models"
)

// Positions вычисляет позиции активных записей. Каждая запись ранжируется внутри своего
// раздела (computer_class) по времени вступления, при равенстве по ID.
// Записи в конечных статусах не учитываются. Входной срез не изменяется.
func Positions(entries []models.QueueEntry) map[uint]int {
	byClass := make(map[models.ComputerClass][]models.QueueEntry)
	for _, e := range entries {
		if !e.Active() {
			continue
		}
		byClass[e.ComputerClass] = append(byClass[e.ComputerClass], e)
	}

	positions := make(map[uint]int, len(entries))
	for _, partition := range byClass {
		slices.SortFunc(partition, compareEntries)
		for i, e := range partition {
			positions[e.ID] = i + 1
		}
	}
	return positions
}

// Diff возвращает записи, чья сохранённая позиция отличается от вычисленной.
func Diff(entries []models.QueueEntry, positions map[uint]int) []PositionChange {
	var changes []PositionChange
	for _, e := range entries {
		to, ok := positions[e.ID]
		if !ok || to == e.Position {
			continue
		}
		changes = append(changes, PositionChange{EntryID: e.ID, UserID: e.UserID, From: e.Position, To: to})
	}
	return changes
}

// PoolSlot — место в очереди на конкретный зал с учётом записей "any".
type PoolSlot struct {
	Entry        models.QueueEntry
	PoolPosition int
}

// PoolOrder строит порядок допуска к физическому залу: записи самого зала и записи "any"
// сливаются по времени вступления. Запись "any" попадает в оба зала, но её позиция
// в собственном разделе от этого не меняется.
func PoolOrder(entries []models.QueueEntry, pool models.ComputerClass) ([]PoolSlot, error) {
	if !pool.Physical() {
		return nil, fmt.Errorf("%w: %q is not a physical pool", ErrUnknownComputerClass, pool)
	}

	var eligible []models.QueueEntry
	for _, e := range entries {
		if !e.Active() {
			continue
		}
		if e.ComputerClass == pool || e.ComputerClass == models.ClassAny {
			eligible = append(eligible, e)
		}
	}
	slices.SortFunc(eligible, compareEntries)

	slots := make([]PoolSlot, len(eligible))
	for i, e := range eligible {
		slots[i] = PoolSlot{Entry: e, PoolPosition: i + 1}
	}
	return slots, nil
}

func compareEntries(a, b models.QueueEntry) int {
	if c := a.JoinedAt.Compare(b.JoinedAt); c != 0 {
		return c
	}
	switch {
	case a.ID < b.ID:
		return -1
	case a.ID > b.ID:
		return 1
	}
	return 0
}
