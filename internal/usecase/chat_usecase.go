package usecase

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"univmarket/internal/domain/entity"
	"univmarket/internal/domain/repository"
	"univmarket/internal/infrastructure/ratelimit"
	"univmarket/pkg/errors"
	"univmarket/pkg/logger"
)

const maxMessageLength = 1000

type ChatUseCase struct {
	chatRepo    repository.ChatRepository
	userRepo    repository.UserRepository
	productRepo repository.ProductRepository
	broadcaster MessageBroadcaster
	rateLimiter *ratelimit.RateLimiter
}

func NewChatUseCase(
	chatRepo repository.ChatRepository,
	userRepo repository.UserRepository,
	productRepo repository.ProductRepository,
	broadcaster MessageBroadcaster,
	rateLimiter *ratelimit.RateLimiter,
) *ChatUseCase {
	if broadcaster == nil {
		broadcaster = noopBroadcaster{}
	}
	if rateLimiter == nil {
		rateLimiter = ratelimit.NewRateLimiter()
	}

	return &ChatUseCase{
		chatRepo:    chatRepo,
		userRepo:    userRepo,
		productRepo: productRepo,
		broadcaster: broadcaster,
		rateLimiter: rateLimiter,
	}
}

// CreateChatRoom opens the buyer's room for a product, or returns the one that already exists.
func (uc *ChatUseCase) CreateChatRoom(ctx context.Context, buyerID, productID string) (*entity.ChatRoom, error) {
	product, err := uc.productRepo.GetByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	if product.SellerID == buyerID {
		return nil, errors.BadRequest("You cannot start a chat about your own product", nil)
	}

	existing, err := uc.chatRepo.GetByProductAndBuyer(ctx, productID, buyerID)
	if err == nil {
		return uc.enrichRoom(ctx, existing), nil
	}
	if !errors.Is(err, errors.CodeNotFound) {
		return nil, err
	}

	allowed, waitTime := uc.rateLimiter.Allow(buyerID, ratelimit.ActionCreateChat)
	if !allowed {
		logger.Warn("CreateChatRoom Rate Limited: User %s must wait %v", buyerID, waitTime)
		return nil, errors.TooManyRequests("Rate limit exceeded. Please wait before opening another chat", fmt.Errorf("retry in %v", waitTime))
	}

	room := &entity.ChatRoom{
		ProductID:       product.ID,
		BuyerID:         buyerID,
		SellerID:        product.SellerID,
		ProductStatus:   product.Status,
		ProductTitle:    product.Title,
		ProductImageURL: product.ImageURL,
		BuyerNickname:   uc.nickname(ctx, buyerID),
		SellerNickname:  uc.nickname(ctx, product.SellerID),
	}
	if err := uc.chatRepo.Create(ctx, room); err != nil {
		logger.Error("CreateChatRoom Error: %v", err)
		return nil, err
	}

	logger.Info("Chat room %s opened by %s for product %s", room.ID, buyerID, productID)
	return room, nil
}

// GetChatRoom returns room meta with the authoritative product status.
func (uc *ChatUseCase) GetChatRoom(ctx context.Context, userID, roomID string) (*entity.ChatRoom, error) {
	room, err := uc.participantRoom(ctx, userID, roomID)
	if err != nil {
		return nil, err
	}
	return uc.enrichRoom(ctx, room), nil
}

func (uc *ChatUseCase) ListUserChatRooms(ctx context.Context, userID string) ([]*entity.ChatRoom, error) {
	rooms, err := uc.chatRepo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i, room := range rooms {
		rooms[i] = uc.enrichRoom(ctx, room)
	}
	return rooms, nil
}

// GetChatMessages returns the whole history of a room, oldest first.
func (uc *ChatUseCase) GetChatMessages(ctx context.Context, userID, roomID string) ([]*entity.Message, error) {
	if _, err := uc.participantRoom(ctx, userID, roomID); err != nil {
		return nil, err
	}

	messages, err := uc.chatRepo.GetMessagesByRoom(ctx, roomID)
	if err != nil {
		logger.Error("GetChatMessages Error: %v", err)
		return nil, err
	}
	if messages == nil {
		messages = []*entity.Message{}
	}
	return messages, nil
}

// SendMessage persists a message and pushes it to every live subscriber of the room.
// tempID is echoed back on the broadcast only.
func (uc *ChatUseCase) SendMessage(ctx context.Context, userID, roomID, content, tempID string) (*entity.Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, errors.BadRequest("Message content is required", nil)
	}
	if utf8.RuneCountInString(content) > maxMessageLength {
		return nil, errors.BadRequest(fmt.Sprintf("Message must be at most %d characters", maxMessageLength), nil)
	}

	allowed, waitTime := uc.rateLimiter.Allow(userID, ratelimit.ActionSendMessage)
	if !allowed {
		logger.Warn("SendMessage Rate Limited: User %s must wait %v", userID, waitTime)
		return nil, errors.TooManyRequests("Rate limit exceeded. Please wait before sending another message", fmt.Errorf("retry in %v", waitTime))
	}

	room, err := uc.participantRoom(ctx, userID, roomID)
	if err != nil {
		return nil, err
	}
	if entity.IsSystemContent(content) {
		if err := uc.checkNotice(ctx, userID, room, content); err != nil {
			return nil, err
		}
	}

	message := &entity.Message{
		RoomID:         room.ID,
		SenderID:       userID,
		SenderNickname: uc.nickname(ctx, userID),
		Content:        content,
	}
	if err := uc.chatRepo.CreateMessage(ctx, message); err != nil {
		logger.Error("SendMessage Error: %v", err)
		return nil, err
	}

	echo := *message
	echo.TempID = tempID
	uc.broadcaster.BroadcastMessage(room.ID, &echo)

	return message, nil
}

// checkNotice accepts marker content only as the notice of a transition the product
// service has already confirmed, sent by the participant who made it.
func (uc *ChatUseCase) checkNotice(ctx context.Context, userID string, room *entity.ChatRoom, content string) error {
	product, err := uc.productRepo.GetByID(ctx, room.ProductID)
	if err != nil {
		return err
	}

	switch content {
	case entity.ReservedNotice:
		reserved := product.Status == entity.ProductStatusReserved || product.Status == entity.ProductStatusCompleted
		if reserved && userID == room.BuyerID && (product.BuyerID == "" || product.BuyerID == userID) {
			return nil
		}
	case entity.CompletedNotice:
		if product.Status == entity.ProductStatusCompleted && userID == product.SellerID {
			return nil
		}
	}
	logger.Warn("SendMessage: rejected notice %q from %s in room %s (product %s)", content, userID, room.ID, product.Status)
	return errors.BadRequest("Messages starting with a system marker are reserved for transaction notices", nil)
}

// AuthorizeRoom allows only the buyer and the seller of a room.
func (uc *ChatUseCase) AuthorizeRoom(ctx context.Context, userID, roomID string) error {
	_, err := uc.participantRoom(ctx, userID, roomID)
	return err
}

func (uc *ChatUseCase) participantRoom(ctx context.Context, userID, roomID string) (*entity.ChatRoom, error) {
	room, err := uc.chatRepo.GetByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !room.IsParticipant(userID) {
		return nil, errors.Forbidden("You are not a participant in this chat", nil)
	}
	return room, nil
}

func (uc *ChatUseCase) enrichRoom(ctx context.Context, room *entity.ChatRoom) *entity.ChatRoom {
	if product, err := uc.productRepo.GetByID(ctx, room.ProductID); err == nil {
		room.ProductStatus = product.Status
	} else {
		logger.Warn("Product %s for room %s unavailable, keeping stored status: %v", room.ProductID, room.ID, err)
	}

	last, err := uc.chatRepo.GetLastMessage(ctx, room.ID)
	if err != nil {
		logger.Warn("Last message for room %s unavailable: %v", room.ID, err)
	}
	room.LastMessage = last
	return room
}

func (uc *ChatUseCase) nickname(ctx context.Context, userID string) string {
	user, err := uc.userRepo.GetByID(ctx, userID)
	if err != nil || user.Nickname == "" {
		return userID
	}
	return user.Nickname
}
