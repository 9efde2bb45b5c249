package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gaming_queue/internal/models"
)

// Reason — повод для уведомления.
type Reason string

const (
	ReasonTurnReached   Reason = "turn_reached"
	ReasonRemovedLogin  Reason = "removed_login"
	ReasonRemovedManual Reason = "removed_manual"
	ReasonExpired       Reason = "expired"
	ReasonQueueJoined   Reason = "queue_joined"
	// ReasonPositionChanged — запись продвинулась, но ещё не первая.
	ReasonPositionChanged Reason = "position_changed"
)

// ReasonForStatus возвращает повод уведомления для статуса, в который перешла запись.
func ReasonForStatus(s models.Status) (Reason, bool) {
	switch s {
	case models.StatusNotified:
		return ReasonTurnReached, true
	case models.StatusRemovedLogin:
		return ReasonRemovedLogin, true
	case models.StatusRemovedManual:
		return ReasonRemovedManual, true
	case models.StatusExpired:
		return ReasonExpired, true
	}
	return "", false
}

// Notification — одно сообщение о записи очереди.
type Notification struct {
	ID     string
	Reason Reason
	Entry  models.QueueEntry
	// PreviousPosition заполняется для position_changed.
	PreviousPosition int
}

// PositionChanged описывает продвижение записи с позиции from на текущую позицию entry.
func PositionChanged(entry models.QueueEntry, from int) Notification {
	return Notification{Reason: ReasonPositionChanged, Entry: entry, PreviousPosition: from}
}

// Transport доставляет уведомление по одному каналу.
type Transport interface {
	Name() string
	Send(ctx context.Context, n Notification) error
}

var (
	// ErrSkipped — канал не применим к получателю (нет телефона, отказ от рассылки и т.п.).
	ErrSkipped = errors.New("notification skipped")
	// ErrPermanent — повторная отправка не поможет.
	ErrPermanent = errors.New("permanent delivery error")
	// ErrRateLimited — исчерпан лимит сообщений.
	ErrRateLimited = errors.New("rate limited")
)

// RateLimitedError сообщает, через сколько лимит освободится. Диспетчер ждёт не меньше
// RetryAfter перед следующей попыткой.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("%s, retry after %s", ErrRateLimited, e.RetryAfter)
}

func (e *RateLimitedError) Unwrap() error { return ErrRateLimited }
