package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"gaming_queue/internal/models"
	"gaming_queue/internal/notify"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WSMessage — событие очереди для клиентов фронтенда.
type WSMessage struct {
	EventType     string                 `json:"event_type"`
	ComputerClass string                 `json:"computer_class"`
	Data          map[string]interface{} `json:"data"`
}

// BroadcastMessage — сообщение для рассылки подписчикам одного раздела очереди.
type BroadcastMessage struct {
	ComputerClass string
	Message       []byte
}

// Hub хранит подключения клиентов, сгруппированные по разделу очереди.
type Hub struct {
	clients    map[string]map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan BroadcastMessage
	done       chan struct{}
	mu         sync.RWMutex
	log        *zap.Logger
}

func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan BroadcastMessage, 64),
		done:       make(chan struct{}),
		log:        log.Named("ws"),
	}
}

// Run обрабатывает каналы хаба до отмены контекста.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for class, clients := range h.clients {
				for client := range clients {
					close(client.Send)
				}
				delete(h.clients, class)
			}
			h.mu.Unlock()
			return
		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.ComputerClass] == nil {
				h.clients[client.ComputerClass] = make(map[*Client]bool)
			}
			h.clients[client.ComputerClass][client] = true
			h.mu.Unlock()
		case client := <-h.unregister:
			h.mu.Lock()
			if clients, ok := h.clients[client.ComputerClass]; ok {
				if _, ok := clients[client]; ok {
					delete(clients, client)
					close(client.Send)
					if len(clients) == 0 {
						delete(h.clients, client.ComputerClass)
					}
				}
			}
			h.mu.Unlock()
		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients[message.ComputerClass] {
				select {
				case client.Send <- message.Message:
				default:
					// Клиент не успевает читать, отключаем.
					close(client.Send)
					delete(h.clients[message.ComputerClass], client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Subscribers возвращает число подключений к разделу.
func (h *Hub) Subscribers(class string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[class])
}

// Name и Send позволяют использовать хаб как канал уведомлений.
func (h *Hub) Name() string { return "websocket" }

// Send рассылает событие подписчикам раздела записи.
func (h *Hub) Send(ctx context.Context, n notify.Notification) error {
	msg := WSMessage{
		EventType:     string(n.Reason),
		ComputerClass: string(n.Entry.ComputerClass),
		Data: map[string]interface{}{
			"entry_id": n.Entry.ID,
			"user_id":  n.Entry.UserID,
			"position": n.Entry.Position,
		},
	}
	if n.PreviousPosition > 0 {
		msg.Data["previous_position"] = n.PreviousPosition
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("%w: %v", notify.ErrPermanent, err)
	}
	select {
	case <-h.done:
		return fmt.Errorf("%w: хаб остановлен", notify.ErrSkipped)
	default:
	}
	select {
	case h.broadcast <- BroadcastMessage{ComputerClass: msg.ComputerClass, Message: data}:
		return nil
	case <-h.done:
		return fmt.Errorf("%w: хаб остановлен", notify.ErrSkipped)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Client представляет одно подключение через WebSocket.
type Client struct {
	Hub           *Hub
	Conn          *websocket.Conn
	Send          chan []byte
	ComputerClass string
}

// readPump читает сообщения из соединения. Входящие сообщения не обрабатываются,
// цикл нужен только чтобы заметить разрыв.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.Hub.unregister <- c:
		case <-c.Hub.done:
		}
		c.Conn.Close()
	}()
	c.Conn.SetReadLimit(512)
	c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			break
		}
	}
}

// writePump отправляет клиенту сообщения из канала Send и пинги.
func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// QueueWebSocketHandler обновляет соединение до WebSocket и подписывает клиента на раздел.
// URL-пример: /api/queue/classes/{class}/ws
func (h *Hub) QueueWebSocketHandler(c *gin.Context) {
	class := models.ComputerClass(c.Param("class"))
	if !class.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_COMPUTER_CLASS", "message": "Неизвестный тип компьютера"})
		return
	}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("ошибка обновления до WebSocket", zap.Error(err))
		return
	}
	client := &Client{
		Hub:           h,
		Conn:          conn,
		Send:          make(chan []byte, 256),
		ComputerClass: string(class),
	}
	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	client.readPump()
}
