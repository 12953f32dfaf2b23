package entity

import (
	"strings"
	"time"
)

// System notices are ordinary messages whose content starts with one of these markers.
const (
	SystemMarkerReserved  = "🔔"
	SystemMarkerCompleted = "✅"

	ReservedNotice  = SystemMarkerReserved + " The product has been reserved."
	CompletedNotice = SystemMarkerCompleted + " The transaction has been completed."
)

// ContinuousWindow is how close two messages from one sender must be to render as a run.
const ContinuousWindow = 60 * time.Second

type Message struct {
	ID             string    `json:"id" firestore:"id"`
	RoomID         string    `json:"room_id" firestore:"roomId"`
	SenderID       string    `json:"sender_id" firestore:"senderId"`
	SenderNickname string    `json:"sender_nickname,omitempty" firestore:"senderNickname,omitempty"`
	Content        string    `json:"content" firestore:"content"`
	CreatedAt      time.Time `json:"created_at" firestore:"createdAt"`
	// TempID is a client-local tag echoed back by the live channel; never persisted.
	TempID string `json:"temp_id,omitempty" firestore:"-"`
}

func IsSystemContent(content string) bool {
	return strings.HasPrefix(content, SystemMarkerReserved) || strings.HasPrefix(content, SystemMarkerCompleted)
}

func (m *Message) IsSystem() bool {
	return IsSystemContent(m.Content)
}
