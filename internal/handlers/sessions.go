package handlers

import (
	"crypto/subtle"
	"net/http"

	"gaming_queue/internal/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SessionEventsHandler принимает события системы сессий и запускает внеочередной цикл монитора.
type SessionEventsHandler struct {
	token   string
	monitor Trigger
	log     *zap.Logger
}

func NewSessionEventsHandler(token string, monitor Trigger, log *zap.Logger) *SessionEventsHandler {
	return &SessionEventsHandler{token: token, monitor: monitor, log: log.Named("sessions")}
}

// SessionEvent — тело события. Содержимое не используется: монитор всё равно перечитывает
// активные сессии целиком.
type SessionEvent struct {
	Type   string `json:"type" example:"UserLogin"`
	UserID int    `json:"userId" example:"1234"`
}

// Handle обрабатывает событие входа или выхода пользователя
// @Summary		Событие системы сессий
// @Description	Запускает внеочередную сверку очереди с активными сессиями. Требует заголовок X-Webhook-Token
// @Tags			sessions
// @Accept			json
// @Produce		json
// @Param			X-Webhook-Token	header	string			true	"Секрет вебхука"
// @Param			request			body	SessionEvent	false	"Событие"
// @Success		202	{object}	response.SuccessResponse
// @Failure		401	{object}	response.ErrorResponse	"Неверный токен (INVALID_WEBHOOK_TOKEN)"
// @Router			/api/sessions/events [post]
func (h *SessionEventsHandler) Handle(c *gin.Context) {
	got := c.GetHeader("X-Webhook-Token")
	if h.token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(h.token)) != 1 {
		c.JSON(http.StatusUnauthorized, response.ErrorResponse{
			Code:    "INVALID_WEBHOOK_TOKEN",
			Message: "Неверный токен вебхука",
		})
		return
	}

	var ev SessionEvent
	_ = c.ShouldBindJSON(&ev)
	h.log.Debug("событие системы сессий", zap.String("type", ev.Type), zap.Int("gizmo_user_id", ev.UserID))

	h.monitor.Trigger()
	c.JSON(http.StatusAccepted, response.SuccessResponse{Message: "Сверка очереди запущена"})
}
