package repository

import (
	"context"

	"univmarket/internal/domain/entity"
)

type ChatRepository interface {
	Create(ctx context.Context, room *entity.ChatRoom) error
	GetByID(ctx context.Context, id string) (*entity.ChatRoom, error)
	// GetByProductAndBuyer returns NOT_FOUND when the buyer never contacted the seller.
	GetByProductAndBuyer(ctx context.Context, productID, buyerID string) (*entity.ChatRoom, error)
	ListByUserID(ctx context.Context, userID string) ([]*entity.ChatRoom, error)

	// Message methods
	CreateMessage(ctx context.Context, message *entity.Message) error
	// GetMessagesByRoom returns the full history, oldest first.
	GetMessagesByRoom(ctx context.Context, roomID string) ([]*entity.Message, error)
	GetLastMessage(ctx context.Context, roomID string) (*entity.Message, error)
}
