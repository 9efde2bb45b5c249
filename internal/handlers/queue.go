package handlers

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"gaming_queue/internal/auth"
	"gaming_queue/internal/models"
	"gaming_queue/internal/notify"
	"gaming_queue/internal/queue"
	"gaming_queue/internal/response"
	"gaming_queue/internal/storage"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Notifier отправляет уведомления о действиях через API.
type Notifier interface {
	Dispatch(ctx context.Context, ns []notify.Notification) []error
}

// Trigger запускает внеочередной цикл монитора.
type Trigger interface {
	Trigger()
}

// QueueHandler обслуживает HTTP API очереди.
type QueueHandler struct {
	entries  *storage.QueueStore
	settings *storage.SettingsStore
	users    *storage.UserStore
	notifier Notifier
	monitor  Trigger
	log      *zap.Logger

	notifyTimeout time.Duration
	wg            sync.WaitGroup
}

func NewQueueHandler(entries *storage.QueueStore, settings *storage.SettingsStore, users *storage.UserStore,
	notifier Notifier, monitor Trigger, log *zap.Logger) *QueueHandler {
	return &QueueHandler{
		entries:       entries,
		settings:      settings,
		users:         users,
		notifier:      notifier,
		monitor:       monitor,
		log:           log.Named("handlers"),
		notifyTimeout: time.Minute,
	}
}

// Wait дожидается отправки уведомлений, поставленных обработчиками.
func (h *QueueHandler) Wait() {
	h.wg.Wait()
}

// notifyAsync отправляет уведомления в фоне, чтобы ответ не ждал повторов доставки.
func (h *QueueHandler) notifyAsync(ns ...notify.Notification) {
	if h.notifier == nil || len(ns) == 0 {
		return
	}
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), h.notifyTimeout)
		defer cancel()
		for i, err := range h.notifier.Dispatch(ctx, ns) {
			if err != nil {
				h.log.Warn("уведомление не доставлено", zap.Uint("entry_id", ns[i].Entry.ID),
					zap.String("reason", string(ns[i].Reason)), zap.Error(err))
			}
		}
	}()
}

func (h *QueueHandler) triggerMonitor() {
	if h.monitor != nil {
		h.monitor.Trigger()
	}
}

type EnqueueRequest struct {
	UserID        uint   `json:"user_id" binding:"required" example:"7"`
	ComputerClass string `json:"computer_class" binding:"required" example:"top"`
	Notes         string `json:"notes" example:"придёт через 10 минут"`
	IsPhysical    bool   `json:"is_physical"`
}

// EnqueueHandler ставит пользователя в очередь
// @Summary		Запись в очередь
// @Description	Ставит пользователя в очередь на компьютер выбранного типа. Сотрудник может записать любого пользователя, в том числе на месте (is_physical)
// @Tags			queue
// @Accept			json
// @Produce		json
// @Param			request	body	EnqueueRequest	true	"Данные записи"
// @Security		BearerAuth
// @Success		201	{object}	response.EntryResponse	"Запись создана"
// @Failure		400	{object}	response.ErrorResponse	"Ошибка валидации (VALIDATION_ERROR, INVALID_COMPUTER_CLASS, QUEUE_INACTIVE, ONLINE_JOINING_DISABLED, QUEUE_FULL)"
// @Failure		403	{object}	response.ErrorResponse	"Нет прав (FORBIDDEN)"
// @Failure		404	{object}	response.ErrorResponse	"Пользователь не найден (USER_NOT_FOUND)"
// @Failure		409	{object}	response.ErrorResponse	"Пользователь уже в очереди (ALREADY_QUEUED)"
// @Failure		500	{object}	response.ErrorResponse	"Ошибка сервера (DB_ERROR)"
// @Router			/api/queue/enqueue [post]
func (h *QueueHandler) EnqueueHandler(c *gin.Context) {
	var req EnqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "Ошибка валидации данных",
			Details: err.Error(),
		})
		return
	}

	callerID := auth.UserID(c)
	staff := auth.IsStaff(c)
	if !staff && (req.UserID != callerID || req.IsPhysical) {
		c.JSON(http.StatusForbidden, response.ErrorResponse{
			Code:    "FORBIDDEN",
			Message: "Записать другого пользователя может только сотрудник",
		})
		return
	}

	class := models.ComputerClass(req.ComputerClass)
	if !class.Valid() {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{
			Code:    "INVALID_COMPUTER_CLASS",
			Message: "Неизвестный тип компьютера",
			Details: "computer_class должен быть одним из any, top, bottom",
		})
		return
	}

	ctx := c.Request.Context()
	settings, err := h.settings.Get(ctx)
	if err != nil {
		h.dbError(c, "Ошибка чтения настроек очереди", err)
		return
	}
	// В автоматическом режиме флаг активности выставляет монитор, запись открыта всегда.
	if !settings.IsActive && !settings.AutomaticMode {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{
			Code:    "QUEUE_INACTIVE",
			Message: "Очередь не активна",
		})
		return
	}
	if !req.IsPhysical && !settings.AllowOnlineJoining {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{
			Code:    "ONLINE_JOINING_DISABLED",
			Message: "Запись через сайт отключена, обратитесь к администратору",
		})
		return
	}

	user, err := h.users.Get(ctx, req.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, response.ErrorResponse{
				Code:    "USER_NOT_FOUND",
				Message: "Пользователь не найден",
			})
			return
		}
		h.dbError(c, "Ошибка чтения пользователя", err)
		return
	}

	params := storage.EnqueueParams{
		UserID:        user.ID,
		ComputerClass: class,
		UserName:      user.Name,
		Notes:         req.Notes,
		IsPhysical:    req.IsPhysical,
		MaxQueueSize:  settings.MaxQueueSize,
	}
	if !user.NotificationsOptOut {
		params.PhoneNumber = user.Phone
	}
	if staff {
		params.CreatedBy = &callerID
	}

	entry, err := h.entries.Enqueue(ctx, params)
	switch {
	case errors.Is(err, queue.ErrAlreadyQueued):
		c.JSON(http.StatusConflict, response.ErrorResponse{
			Code:    "ALREADY_QUEUED",
			Message: "Пользователь уже состоит в очереди",
		})
		return
	case errors.Is(err, queue.ErrQueueFull):
		c.JSON(http.StatusBadRequest, response.ErrorResponse{
			Code:    "QUEUE_FULL",
			Message: "Очередь заполнена",
		})
		return
	case err != nil:
		h.dbError(c, "Ошибка добавления в очередь", err)
		return
	}

	h.log.Info("пользователь записан в очередь", zap.Uint("entry_id", entry.ID), zap.Uint("user_id", entry.UserID),
		zap.String("computer_class", string(class)), zap.Int("position", entry.Position), zap.Bool("is_physical", entry.IsPhysical))
	h.notifyAsync(notify.Notification{Reason: notify.ReasonQueueJoined, Entry: *entry})

	c.JSON(http.StatusCreated, response.NewEntryResponse(*entry))
}

// ListClassHandler возвращает позиции в разделе очереди
// @Summary		Очередь по типу компьютера
// @Description	Возвращает активные записи раздела: только пользователь и позиция
// @Tags			queue
// @Produce		json
// @Param			class	path	string	true	"Тип компьютера (any, top, bottom)"
// @Security		BearerAuth
// @Success		200	{array}		response.PositionResponse
// @Failure		400	{object}	response.ErrorResponse	"Неизвестный тип компьютера (INVALID_COMPUTER_CLASS)"
// @Failure		500	{object}	response.ErrorResponse	"Ошибка сервера (DB_ERROR)"
// @Router			/api/queue/classes/{class} [get]
func (h *QueueHandler) ListClassHandler(c *gin.Context) {
	class := models.ComputerClass(c.Param("class"))
	if !class.Valid() {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{
			Code:    "INVALID_COMPUTER_CLASS",
			Message: "Неизвестный тип компьютера",
		})
		return
	}

	entries, err := h.entries.ListActive(c.Request.Context(), class)
	if err != nil {
		h.dbError(c, "Ошибка чтения очереди", err)
		return
	}
	out := make([]response.PositionResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, response.PositionResponse{UserID: e.UserID, Position: e.Position})
	}
	c.JSON(http.StatusOK, out)
}

// ListPoolHandler возвращает очередь физического зала
// @Summary		Очередь зала
// @Description	Объединяет записи зала и записи на любой компьютер в порядке вступления
// @Tags			queue
// @Produce		json
// @Param			pool	path	string	true	"Зал (top, bottom)"
// @Security		BearerAuth
// @Success		200	{array}		response.PoolSlotResponse
// @Failure		400	{object}	response.ErrorResponse	"Неизвестный зал (INVALID_COMPUTER_CLASS)"
// @Failure		500	{object}	response.ErrorResponse	"Ошибка сервера (DB_ERROR)"
// @Router			/api/queue/pools/{pool} [get]
func (h *QueueHandler) ListPoolHandler(c *gin.Context) {
	entries, err := h.entries.ListAllActive(c.Request.Context())
	if err != nil {
		h.dbError(c, "Ошибка чтения очереди", err)
		return
	}
	slots, err := queue.PoolOrder(entries, models.ComputerClass(c.Param("pool")))
	if err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{
			Code:    "INVALID_COMPUTER_CLASS",
			Message: "Неизвестный зал",
			Details: err.Error(),
		})
		return
	}
	out := make([]response.PoolSlotResponse, 0, len(slots))
	for _, s := range slots {
		out = append(out, response.PoolSlotResponse{
			UserID:        s.Entry.UserID,
			ComputerClass: string(s.Entry.ComputerClass),
			Position:      s.Entry.Position,
			PoolPosition:  s.PoolPosition,
		})
	}
	c.JSON(http.StatusOK, out)
}

type RemoveRequest struct {
	EntryID uint `json:"entry_id" binding:"required" example:"42"`
}

// RemoveHandler снимает запись с очереди вручную
// @Summary		Удаление из очереди
// @Description	Переводит запись в removed_manual. Доступно сотруднику или владельцу записи
// @Tags			queue
// @Accept			json
// @Produce		json
// @Param			request	body	RemoveRequest	true	"Запись"
// @Security		BearerAuth
// @Success		200	{object}	response.EntryResponse
// @Failure		400	{object}	response.ErrorResponse	"Ошибка валидации (VALIDATION_ERROR)"
// @Failure		403	{object}	response.ErrorResponse	"Нет прав (FORBIDDEN)"
// @Failure		404	{object}	response.ErrorResponse	"Запись не найдена (ENTRY_NOT_FOUND)"
// @Failure		409	{object}	response.ErrorResponse	"Запись уже закрыта (ENTRY_CLOSED)"
// @Failure		500	{object}	response.ErrorResponse	"Ошибка сервера (DB_ERROR)"
// @Router			/api/queue/remove [post]
func (h *QueueHandler) RemoveHandler(c *gin.Context) {
	var req RemoveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "Ошибка валидации данных",
			Details: err.Error(),
		})
		return
	}

	ctx := c.Request.Context()
	entry, err := h.entries.Get(ctx, req.EntryID)
	if err != nil {
		if errors.Is(err, queue.ErrEntryNotFound) {
			h.entryNotFound(c)
			return
		}
		h.dbError(c, "Ошибка чтения записи", err)
		return
	}
	if !auth.IsStaff(c) && entry.UserID != auth.UserID(c) {
		c.JSON(http.StatusForbidden, response.ErrorResponse{
			Code:    "FORBIDDEN",
			Message: "Удалить чужую запись может только сотрудник",
		})
		return
	}

	var tr *queue.Transition
	for attempt := 0; attempt < 3; attempt++ {
		tr, err = h.entries.UpdateStatus(ctx, entry.ID, models.StatusRemovedManual)
		if !errors.Is(err, queue.ErrStoreWriteConflict) {
			break
		}
	}
	switch {
	case errors.Is(err, queue.ErrInvalidTransition):
		c.JSON(http.StatusConflict, response.ErrorResponse{
			Code:    "ENTRY_CLOSED",
			Message: "Запись уже закрыта",
		})
		return
	case errors.Is(err, queue.ErrEntryNotFound):
		h.entryNotFound(c)
		return
	case err != nil:
		h.dbError(c, "Ошибка при удалении из очереди", err)
		return
	}

	h.log.Info("запись удалена вручную", zap.Uint("entry_id", tr.Entry.ID), zap.Uint("user_id", tr.Entry.UserID),
		zap.Uint("by", auth.UserID(c)), zap.Int("position_changes", len(tr.Changes)))
	outbox := []notify.Notification{{Reason: notify.ReasonRemovedManual, Entry: tr.Entry}}
	for _, ch := range tr.Changes {
		// Новый первый получит turn_reached в ближайшем цикле монитора.
		if ch.To <= 1 || ch.To >= ch.From {
			continue
		}
		moved, err := h.entries.Get(ctx, ch.EntryID)
		if err != nil {
			h.log.Warn("не удалось прочитать сдвинутую запись", zap.Uint("entry_id", ch.EntryID), zap.Error(err))
			continue
		}
		outbox = append(outbox, notify.PositionChanged(*moved, ch.From))
	}
	h.notifyAsync(outbox...)
	h.triggerMonitor()

	c.JSON(http.StatusOK, response.NewEntryResponse(tr.Entry))
}

// MyEntryHandler возвращает активную запись текущего пользователя
// @Summary		Моя запись
// @Tags			queue
// @Produce		json
// @Security		BearerAuth
// @Success		200	{object}	response.EntryResponse
// @Failure		404	{object}	response.ErrorResponse	"Пользователь не в очереди (ENTRY_NOT_FOUND)"
// @Failure		500	{object}	response.ErrorResponse	"Ошибка сервера (DB_ERROR)"
// @Router			/api/queue/me [get]
func (h *QueueHandler) MyEntryHandler(c *gin.Context) {
	entry, err := h.entries.ActiveForUser(c.Request.Context(), auth.UserID(c))
	if err != nil {
		if errors.Is(err, queue.ErrEntryNotFound) {
			h.entryNotFound(c)
			return
		}
		h.dbError(c, "Ошибка чтения записи", err)
		return
	}
	c.JSON(http.StatusOK, response.NewEntryResponse(*entry))
}

// StatsHandler возвращает размеры очереди
// @Summary		Статистика очереди
// @Tags			staff
// @Produce		json
// @Security		BearerAuth
// @Success		200	{object}	storage.QueueStats
// @Failure		403	{object}	response.ErrorResponse	"Нет прав (FORBIDDEN)"
// @Failure		500	{object}	response.ErrorResponse	"Ошибка сервера (DB_ERROR)"
// @Router			/api/queue/stats [get]
func (h *QueueHandler) StatsHandler(c *gin.Context) {
	stats, err := h.entries.Stats(c.Request.Context())
	if err != nil {
		h.dbError(c, "Ошибка подсчёта очереди", err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// GetSettingsHandler возвращает настройки очереди
// @Summary		Настройки очереди
// @Tags			staff
// @Produce		json
// @Security		BearerAuth
// @Success		200	{object}	response.SettingsResponse
// @Failure		403	{object}	response.ErrorResponse	"Нет прав (FORBIDDEN)"
// @Failure		500	{object}	response.ErrorResponse	"Ошибка сервера (DB_ERROR)"
// @Router			/api/queue/settings [get]
func (h *QueueHandler) GetSettingsHandler(c *gin.Context) {
	settings, err := h.settings.Get(c.Request.Context())
	if err != nil {
		h.dbError(c, "Ошибка чтения настроек очереди", err)
		return
	}
	c.JSON(http.StatusOK, response.NewSettingsResponse(*settings))
}

type SettingsRequest struct {
	IsActive           *bool `json:"is_active"`
	AllowOnlineJoining *bool `json:"allow_online_joining"`
	MaxQueueSize       *int  `json:"max_queue_size" binding:"omitempty,min=0" example:"30"`
	AutomaticMode      *bool `json:"automatic_mode"`
}

// UpdateSettingsHandler частично обновляет настройки очереди
// @Summary		Изменение настроек очереди
// @Tags			staff
// @Accept			json
// @Produce		json
// @Param			request	body	SettingsRequest	true	"Изменяемые поля"
// @Security		BearerAuth
// @Success		200	{object}	response.SettingsResponse
// @Failure		400	{object}	response.ErrorResponse	"Ошибка валидации (VALIDATION_ERROR)"
// @Failure		403	{object}	response.ErrorResponse	"Нет прав (FORBIDDEN)"
// @Failure		500	{object}	response.ErrorResponse	"Ошибка сервера (DB_ERROR)"
// @Router			/api/queue/settings [patch]
func (h *QueueHandler) UpdateSettingsHandler(c *gin.Context) {
	var req SettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "Ошибка валидации данных",
			Details: err.Error(),
		})
		return
	}

	staffID := auth.UserID(c)
	settings, err := h.settings.Update(c.Request.Context(), storage.SettingsUpdate{
		IsActive:           req.IsActive,
		AllowOnlineJoining: req.AllowOnlineJoining,
		MaxQueueSize:       req.MaxQueueSize,
		AutomaticMode:      req.AutomaticMode,
		UpdatedBy:          &staffID,
	})
	if err != nil {
		h.dbError(c, "Ошибка сохранения настроек очереди", err)
		return
	}
	h.log.Info("настройки очереди изменены", zap.Uint("by", staffID))
	c.JSON(http.StatusOK, response.NewSettingsResponse(*settings))
}

func (h *QueueHandler) entryNotFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, response.ErrorResponse{
		Code:    "ENTRY_NOT_FOUND",
		Message: "Запись в очереди не найдена",
	})
}

func (h *QueueHandler) dbError(c *gin.Context, msg string, err error) {
	h.log.Error(msg, zap.Error(err))
	c.JSON(http.StatusInternalServerError, response.ErrorResponse{
		Code:    "DB_ERROR",
		Message: msg,
		Details: err.Error(),
	})
}
