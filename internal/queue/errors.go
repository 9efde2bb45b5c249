package queue

import "errors"

var (
	// ErrAlreadyQueued — пользователь уже стоит в одной из очередей.
	ErrAlreadyQueued = errors.New("user already queued")
	// ErrProbeUnavailable — список активных сессий недоступен, цикл не должен ничего менять.
	ErrProbeUnavailable = errors.New("session probe unavailable")
	// ErrDispatchFailure — уведомление не доставлено после всех попыток.
	ErrDispatchFailure = errors.New("notification dispatch failed")
	// ErrStoreWriteConflict — раздел изменился между чтением и записью, пересчёт нужно повторить.
	ErrStoreWriteConflict = errors.New("queue partition changed concurrently")

	ErrEntryNotFound        = errors.New("queue entry not found")
	ErrInvalidTransition    = errors.New("invalid status transition")
	ErrQueueFull            = errors.New("queue is full")
	ErrUnknownComputerClass = errors.New("unknown computer class")
)
