package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"gaming_queue/internal/config"

	"go.uber.org/zap"
)

// OptOutMarker в заметках записи отключает WhatsApp-уведомления.
const OptOutMarker = "[no_whatsapp]"

// Limiter ограничивает частоту отправки сообщений.
type Limiter interface {
	Allow(ctx context.Context) (allowed bool, retryAfter time.Duration, err error)
}

// WhatsAppTransport отправляет шаблонные сообщения через Infobip.
type WhatsAppTransport struct {
	cfg     config.WhatsApp
	client  *http.Client
	limiter Limiter
	log     *zap.Logger
}

func NewWhatsAppTransport(cfg config.WhatsApp, client *http.Client, limiter Limiter, log *zap.Logger) *WhatsAppTransport {
	if client == nil {
		client = http.DefaultClient
	}
	return &WhatsAppTransport{cfg: cfg, client: client, limiter: limiter, log: log.Named("whatsapp")}
}

func (w *WhatsAppTransport) Name() string { return "whatsapp" }

type templateMessage struct {
	Messages []templateEnvelope `json:"messages"`
}

type templateEnvelope struct {
	From      string          `json:"from"`
	To        string          `json:"to"`
	MessageID string          `json:"messageId,omitempty"`
	Content   templateContent `json:"content"`
}

type templateContent struct {
	TemplateName string       `json:"templateName"`
	TemplateData templateData `json:"templateData"`
	Language     string       `json:"language"`
}

type templateData struct {
	Body templateBody `json:"body"`
}

type templateBody struct {
	Placeholders []string `json:"placeholders"`
}

func (w *WhatsAppTransport) Send(ctx context.Context, n Notification) error {
	if w.cfg.APIKey == "" {
		return fmt.Errorf("%w: не задан INFOBIP_API_KEY", ErrSkipped)
	}
	if n.Entry.PhoneNumber == "" {
		return fmt.Errorf("%w: нет номера телефона", ErrSkipped)
	}
	if strings.Contains(n.Entry.Notes, OptOutMarker) {
		return fmt.Errorf("%w: пользователь отказался от WhatsApp", ErrSkipped)
	}
	template, placeholders := w.template(n)
	if template == "" {
		return fmt.Errorf("%w: нет шаблона для %s", ErrSkipped, n.Reason)
	}

	if w.limiter != nil {
		allowed, retryAfter, err := w.limiter.Allow(ctx)
		if err != nil {
			// Без Redis лимит не проверить, сообщение всё равно отправляется.
			w.log.Warn("ошибка проверки лимита сообщений", zap.Error(err))
		} else if !allowed {
			return &RateLimitedError{RetryAfter: retryAfter}
		}
	}

	payload := templateMessage{Messages: []templateEnvelope{{
		From:      w.cfg.Sender,
		To:        strings.TrimPrefix(n.Entry.PhoneNumber, "+"),
		MessageID: n.ID,
		Content: templateContent{
			TemplateName: template,
			TemplateData: templateData{Body: templateBody{Placeholders: placeholders}},
			Language:     w.cfg.Language,
		},
	}}}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPermanent, err)
	}

	url := strings.TrimRight(w.cfg.BaseURL, "/") + "/whatsapp/1/message/template"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPermanent, err)
	}
	req.Header.Set("Authorization", "App "+w.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("ответ Infobip %d: %s", resp.StatusCode, respBody)
	default:
		return fmt.Errorf("%w: ответ Infobip %d: %s", ErrPermanent, resp.StatusCode, respBody)
	}
}

func (w *WhatsAppTransport) template(n Notification) (string, []string) {
	name := n.Entry.UserName
	if name == "" {
		name = "there"
	}
	switch n.Reason {
	case ReasonTurnReached:
		return w.cfg.TemplateTurn, []string{name}
	case ReasonQueueJoined, ReasonPositionChanged:
		return w.cfg.TemplateJoined, []string{name, strconv.Itoa(n.Entry.Position)}
	case ReasonRemovedLogin, ReasonRemovedManual, ReasonExpired:
		return w.cfg.TemplateRemoved, []string{name}
	}
	return "", nil
}
