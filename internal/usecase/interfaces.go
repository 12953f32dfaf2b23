package usecase

import (
	"univmarket/internal/domain/entity"
)

// MessageBroadcaster pushes a persisted message to live subscribers of a room.
type MessageBroadcaster interface {
	BroadcastMessage(roomID string, message *entity.Message)
}

type noopBroadcaster struct{}

func (noopBroadcaster) BroadcastMessage(string, *entity.Message) {}
