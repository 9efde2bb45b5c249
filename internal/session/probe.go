package session

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"gaming_queue/internal/queue"
)

// Probe сообщает, кто из пользователей сейчас сидит за компьютером.
type Probe interface {
	ActiveUserIDs(ctx context.Context) (map[uint]struct{}, error)
}

// UserDirectory сопоставляет пользователей Gizmo с пользователями очереди.
type UserDirectory interface {
	UserIDsByGizmoIDs(ctx context.Context, gizmoIDs []int) ([]uint, error)
}

// activeSession — элемент ответа /usersessions/active.
type activeSession struct {
	UserID int `json:"userId"`
	HostID int `json:"hostId"`
}

type activeSessionsResponse struct {
	Result []activeSession `json:"result"`
}

// GizmoProbe читает активные сессии из API Gizmo.
type GizmoProbe struct {
	baseURL string
	auth    string
	client  *http.Client
	users   UserDirectory
}

func NewGizmoProbe(baseURL, auth string, client *http.Client, users UserDirectory) *GizmoProbe {
	if client == nil {
		client = http.DefaultClient
	}
	return &GizmoProbe{
		baseURL: strings.TrimRight(baseURL, "/"),
		auth:    auth,
		client:  client,
		users:   users,
	}
}

// ActiveUserIDs возвращает пользователей очереди, у которых открыта сессия.
// Любой сбой источника возвращается как queue.ErrProbeUnavailable: пустой ответ при ошибке
// нельзя отличить от пустого клуба.
func (p *GizmoProbe) ActiveUserIDs(ctx context.Context) (map[uint]struct{}, error) {
	gizmoIDs, err := p.activeGizmoIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", queue.ErrProbeUnavailable, err)
	}

	ids, err := p.users.UserIDsByGizmoIDs(ctx, gizmoIDs)
	if err != nil {
		return nil, fmt.Errorf("%w: сопоставление пользователей: %v", queue.ErrProbeUnavailable, err)
	}

	active := make(map[uint]struct{}, len(ids))
	for _, id := range ids {
		active[id] = struct{}{}
	}
	return active, nil
}

func (p *GizmoProbe) activeGizmoIDs(ctx context.Context) ([]int, error) {
	if p.baseURL == "" {
		return nil, fmt.Errorf("не задан GIZMO_API_BASE_URL")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/usersessions/active", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(p.auth)))
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("ответ API Gizmo: %d", resp.StatusCode)
	}

	var body activeSessionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("ошибка декодирования активных сессий: %w", err)
	}

	ids := make([]int, 0, len(body.Result))
	seen := make(map[int]struct{}, len(body.Result))
	for _, s := range body.Result {
		if _, ok := seen[s.UserID]; ok {
			continue
		}
		seen[s.UserID] = struct{}{}
		ids = append(ids, s.UserID)
	}
	return ids, nil
}
