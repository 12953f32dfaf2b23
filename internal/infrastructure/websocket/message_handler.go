package websocket

import (
	"context"
	"encoding/json"
	"time"

	"univmarket/pkg/errors"
	"univmarket/pkg/logger"
)

const (
	MessageTypePing        = "ping"
	MessageTypePong        = "pong"
	MessageTypeSubscribe   = "subscribe"
	MessageTypeSubscribed  = "subscribed"
	MessageTypeUnsubscribe = "unsubscribe"
	MessageTypeSendMessage = "send_message"
	MessageTypeMessage     = "message"
	MessageTypeError       = "error"
)

// WSMessage is an outbound frame.
type WSMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	ChatID    string      `json:"chat_id,omitempty"`
	Timestamp string      `json:"timestamp"`
}

// Envelope is the inbound side of WSMessage; Data is decoded once Type is known.
type Envelope struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	ChatID    string          `json:"chat_id,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
}

type SubscribedData struct {
	SubscriptionID string `json:"subscription_id"`
}

type SendMessageData struct {
	TempID  string `json:"temp_id,omitempty"`
	Content string `json:"content"`
}

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	TempID  string `json:"temp_id,omitempty"`
}

func NewFrame(frameType, chatID string, data interface{}) WSMessage {
	return WSMessage{
		Type:      frameType,
		Data:      data,
		ChatID:    chatID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// HandleClientMessage dispatches one inbound frame from client.
func (m *Manager) HandleClientMessage(ctx context.Context, client *Client, raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		logger.Warn("WebSocket: Failed to unmarshal frame from %s: %v", client.UserID, err)
		m.sendErrorToClient(client, "", errors.BadRequest("Invalid message format", err), "")
		return
	}

	switch env.Type {
	case MessageTypePing:
		m.sendToClient(client, NewFrame(MessageTypePong, "", nil))

	case MessageTypeSubscribe:
		m.handleSubscribe(ctx, client, env.ChatID)

	case MessageTypeUnsubscribe:
		if env.ChatID != "" {
			m.Unsubscribe(client, env.ChatID)
			logger.Debug("WebSocket: %s unsubscribed from %s", client.UserID, env.ChatID)
		}

	case MessageTypeSendMessage:
		m.handleSendMessage(ctx, client, env)

	default:
		logger.Warn("WebSocket: Unknown message type '%s' from %s", env.Type, client.UserID)
		m.sendErrorToClient(client, env.ChatID, errors.BadRequest("Unknown message type", nil), "")
	}
}

func (m *Manager) handleSubscribe(ctx context.Context, client *Client, roomID string) {
	if roomID == "" {
		m.sendErrorToClient(client, "", errors.BadRequest("Missing chat_id", nil), "")
		return
	}
	if m.chatService == nil {
		m.sendErrorToClient(client, roomID, errors.Internal("Chat service unavailable", nil), "")
		return
	}
	if err := m.chatService.AuthorizeRoom(ctx, client.UserID, roomID); err != nil {
		m.sendErrorToClient(client, roomID, err, "")
		return
	}

	subID := m.Subscribe(client, roomID)
	m.sendToClient(client, NewFrame(MessageTypeSubscribed, roomID, SubscribedData{SubscriptionID: subID}))
	logger.Debug("WebSocket: %s subscribed to %s as %s", client.UserID, roomID, subID)
}

func (m *Manager) handleSendMessage(ctx context.Context, client *Client, env Envelope) {
	var data SendMessageData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		m.sendErrorToClient(client, env.ChatID, errors.BadRequest("Invalid send message format", err), "")
		return
	}
	if env.ChatID == "" {
		m.sendErrorToClient(client, "", errors.BadRequest("Missing chat_id", nil), data.TempID)
		return
	}
	if !m.IsSubscribed(client, env.ChatID) {
		m.sendErrorToClient(client, env.ChatID, errors.Forbidden("Subscribe to the room before publishing", nil), data.TempID)
		return
	}
	if m.chatService == nil {
		m.sendErrorToClient(client, env.ChatID, errors.Internal("Chat service unavailable", nil), data.TempID)
		return
	}

	// The use case persists and broadcasts; the sender receives its own echo.
	if _, err := m.chatService.SendMessage(ctx, client.UserID, env.ChatID, data.Content, data.TempID); err != nil {
		logger.Warn("WebSocket: send_message from %s to %s failed: %v", client.UserID, env.ChatID, err)
		m.sendErrorToClient(client, env.ChatID, err, data.TempID)
	}
}

func (m *Manager) sendToClient(client *Client, message WSMessage) {
	payload, err := json.Marshal(message)
	if err != nil {
		logger.Error("WebSocket: Failed to marshal frame for %s: %v", client.UserID, err)
		return
	}
	m.deliver(client, payload)
}

func (m *Manager) sendErrorToClient(client *Client, roomID string, err error, tempID string) {
	data := ErrorData{Code: errors.CodeInternal, Message: "An unexpected error occurred", TempID: tempID}
	if appErr, ok := errors.AsAppError(err); ok {
		data.Code = appErr.Code
		data.Message = appErr.Message
	}
	m.sendToClient(client, NewFrame(MessageTypeError, roomID, data))
}
