package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"univmarket/internal/domain/entity"
	"univmarket/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8192
	sendBufferSize = 256
)

// ChatService is the part of the chat use case the hub needs. It is set after
// construction because the use case also broadcasts through the hub.
type ChatService interface {
	AuthorizeRoom(ctx context.Context, userID, roomID string) error
	SendMessage(ctx context.Context, userID, roomID, content, tempID string) (*entity.Message, error)
}

// Client is one live connection. A user may hold several.
type Client struct {
	ID     string
	UserID string
	Conn   *websocket.Conn
	Send   chan []byte
}

func NewClient(userID string, conn *websocket.Conn) *Client {
	return &Client{
		ID:     uuid.New().String(),
		UserID: userID,
		Conn:   conn,
		Send:   make(chan []byte, sendBufferSize),
	}
}

// Manager tracks connections and the rooms each one is subscribed to.
type Manager struct {
	clients map[*Client]bool
	rooms   map[string]map[*Client]string
	mutex   sync.RWMutex

	chatService ChatService
}

func NewManager() *Manager {
	return &Manager{
		clients: make(map[*Client]bool),
		rooms:   make(map[string]map[*Client]string),
	}
}

func (m *Manager) SetChatService(svc ChatService) {
	m.chatService = svc
}

// Start closes every connection once ctx is done.
func (m *Manager) Start(ctx context.Context) {
	go func() {
		<-ctx.Done()

		m.mutex.RLock()
		conns := make([]*websocket.Conn, 0, len(m.clients))
		for client := range m.clients {
			conns = append(conns, client.Conn)
		}
		m.mutex.RUnlock()

		for _, conn := range conns {
			conn.Close()
		}
		logger.Info("WebSocket: closed %d connections on shutdown", len(conns))
	}()
}

func (m *Manager) AddClient(client *Client) {
	m.mutex.Lock()
	m.clients[client] = true
	m.mutex.Unlock()
	logger.Debug("Client registered: %s (%s)", client.UserID, client.ID)
}

// RemoveClient drops client from every room and closes its send channel once.
func (m *Manager) RemoveClient(client *Client) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, ok := m.clients[client]; !ok {
		return
	}
	delete(m.clients, client)
	logger.Debug("Client unregistered: %s (%s)", client.UserID, client.ID)
	for roomID, subs := range m.rooms {
		delete(subs, client)
		if len(subs) == 0 {
			delete(m.rooms, roomID)
		}
	}
	close(client.Send)
}

// Subscribe adds client to roomID and returns the subscription id. Subscribing twice
// returns the existing id.
func (m *Manager) Subscribe(client *Client, roomID string) string {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	subs, ok := m.rooms[roomID]
	if !ok {
		subs = make(map[*Client]string)
		m.rooms[roomID] = subs
	}
	if id, ok := subs[client]; ok {
		return id
	}
	id := uuid.New().String()
	subs[client] = id
	return id
}

func (m *Manager) Unsubscribe(client *Client, roomID string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	subs, ok := m.rooms[roomID]
	if !ok {
		return
	}
	delete(subs, client)
	if len(subs) == 0 {
		delete(m.rooms, roomID)
	}
}

func (m *Manager) IsSubscribed(client *Client, roomID string) bool {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	_, ok := m.rooms[roomID][client]
	return ok
}

// SubscriberCount is used by tests and the health endpoint.
func (m *Manager) SubscriberCount(roomID string) int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.rooms[roomID])
}

// BroadcastMessage delivers a persisted message to every subscriber of its room,
// sender included, so the sender can match its temp id.
func (m *Manager) BroadcastMessage(roomID string, message *entity.Message) {
	m.BroadcastToRoom(roomID, WSMessage{
		Type:      MessageTypeMessage,
		Data:      message,
		ChatID:    roomID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (m *Manager) BroadcastToRoom(roomID string, message WSMessage) {
	payload, err := json.Marshal(message)
	if err != nil {
		logger.Error("WebSocket: Failed to marshal broadcast for room %s: %v", roomID, err)
		return
	}

	m.mutex.RLock()
	targets := make([]*Client, 0, len(m.rooms[roomID]))
	for client := range m.rooms[roomID] {
		targets = append(targets, client)
	}
	m.mutex.RUnlock()

	for _, client := range targets {
		m.deliver(client, payload)
	}
}

func (m *Manager) deliver(client *Client, payload []byte) {
	m.mutex.RLock()
	_, alive := m.clients[client]
	if alive {
		select {
		case client.Send <- payload:
		default:
			alive = false
		}
	}
	m.mutex.RUnlock()

	if !alive {
		logger.Warn("WebSocket: Client %s send channel full or closed, dropping connection", client.ID)
		m.RemoveClient(client)
	}
}

// ReadPump reads frames until the connection fails, then removes the client.
func (c *Client) ReadPump(ctx context.Context, m *Manager) {
	defer func() {
		m.RemoveClient(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("WebSocket: read error for %s: %v", c.UserID, err)
			}
			return
		}
		m.HandleClientMessage(ctx, c, message)
	}
}

// WritePump drains Send to the connection and keeps it alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logger.Warn("WebSocket: write error for %s: %v", c.UserID, err)
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
