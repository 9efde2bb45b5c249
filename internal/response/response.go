package response

import (
	"time"

	"gaming_queue/internal/models"
)

// SuccessResponse представляет успешный ответ API
type SuccessResponse struct {
	Message string `json:"message" example:"Операция успешно выполнена"`
}

// ErrorResponse представляет ответ с ошибкой API
type ErrorResponse struct {
	// Код ошибки для программной обработки
	// example: VALIDATION_ERROR
	Code string `json:"code"`

	// Человекочитаемое сообщение об ошибке
	// example: Ошибка валидации данных
	Message string `json:"message"`

	// Дополнительные детали об ошибке (опционально)
	// example: computer_class должен быть одним из any, top, bottom
	Details string `json:"details,omitempty"`
}

// EntryResponse — запись очереди в ответах API
type EntryResponse struct {
	ID            uint       `json:"id" example:"42"`
	UserID        uint       `json:"user_id" example:"7"`
	ComputerClass string     `json:"computer_class" example:"top"`
	Status        string     `json:"status" example:"waiting"`
	Position      int        `json:"position" example:"3"`
	JoinedAt      time.Time  `json:"joined_at"`
	NotifiedAt    *time.Time `json:"notified_at,omitempty"`
	ResolvedAt    *time.Time `json:"resolved_at,omitempty"`
	UserName      string     `json:"user_name,omitempty" example:"Алексей"`
	Notes         string     `json:"notes,omitempty"`
	IsPhysical    bool       `json:"is_physical"`
}

func NewEntryResponse(e models.QueueEntry) EntryResponse {
	return EntryResponse{
		ID:            e.ID,
		UserID:        e.UserID,
		ComputerClass: string(e.ComputerClass),
		Status:        string(e.Status),
		Position:      e.Position,
		JoinedAt:      e.JoinedAt,
		NotifiedAt:    e.NotifiedAt,
		ResolvedAt:    e.ResolvedAt,
		UserName:      e.UserName,
		Notes:         e.Notes,
		IsPhysical:    e.IsPhysical,
	}
}

// PositionResponse — публичное представление очереди: только пользователь и позиция
type PositionResponse struct {
	UserID   uint `json:"user_id" example:"7"`
	Position int  `json:"position" example:"1"`
}

// PoolSlotResponse — место в очереди физического пула
type PoolSlotResponse struct {
	UserID        uint   `json:"user_id" example:"7"`
	ComputerClass string `json:"computer_class" example:"any"`
	Position      int    `json:"position" example:"2"`
	PoolPosition  int    `json:"pool_position" example:"1"`
}

// SettingsResponse — настройки очереди
type SettingsResponse struct {
	IsActive           bool      `json:"is_active"`
	AllowOnlineJoining bool      `json:"allow_online_joining"`
	MaxQueueSize       int       `json:"max_queue_size" example:"0"`
	AutomaticMode      bool      `json:"automatic_mode"`
	UpdatedBy          *uint     `json:"updated_by,omitempty"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func NewSettingsResponse(s models.QueueSettings) SettingsResponse {
	return SettingsResponse{
		IsActive:           s.IsActive,
		AllowOnlineJoining: s.AllowOnlineJoining,
		MaxQueueSize:       s.MaxQueueSize,
		AutomaticMode:      s.AutomaticMode,
		UpdatedBy:          s.UpdatedBy,
		UpdatedAt:          s.UpdatedAt,
	}
}
