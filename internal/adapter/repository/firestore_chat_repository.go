package repository

import (
	"context"
	"sort"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"univmarket/internal/domain/entity"
	"univmarket/internal/domain/repository"
	"univmarket/pkg/errors"
	"univmarket/pkg/logger"
)

const (
	chatRoomsCollection = "chatRooms"
	messagesCollection  = "messages"
)

type firestoreChatRepository struct {
	client *firestore.Client
}

func NewFirestoreChatRepository(client *firestore.Client) repository.ChatRepository {
	return &firestoreChatRepository{
		client: client,
	}
}

func (r *firestoreChatRepository) Create(ctx context.Context, room *entity.ChatRoom) error {
	if room.ID == "" {
		room.ID = uuid.New().String()
	}
	if room.CreatedAt.IsZero() {
		room.CreatedAt = time.Now()
	}

	_, err := r.client.Collection(chatRoomsCollection).Doc(room.ID).Set(ctx, room)
	if err != nil {
		return errors.Internal("Failed to create chat room", err)
	}

	return nil
}

func (r *firestoreChatRepository) GetByID(ctx context.Context, id string) (*entity.ChatRoom, error) {
	doc, err := r.client.Collection(chatRoomsCollection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.NotFound("Chat room", nil)
		}
		return nil, errors.Internal("Failed to get chat room", err)
	}

	var room entity.ChatRoom
	if err := doc.DataTo(&room); err != nil {
		return nil, errors.Internal("Failed to parse chat room data", err)
	}

	return &room, nil
}

func (r *firestoreChatRepository) GetByProductAndBuyer(ctx context.Context, productID, buyerID string) (*entity.ChatRoom, error) {
	query := r.client.Collection(chatRoomsCollection).
		Where("productId", "==", productID).
		Where("buyerId", "==", buyerID).
		Limit(1)

	iter := query.Documents(ctx)
	defer iter.Stop()

	doc, err := iter.Next()
	if err != nil {
		if err == iterator.Done {
			return nil, errors.NotFound("Chat room", nil)
		}
		return nil, errors.Internal("Failed to query chat room", err)
	}

	var room entity.ChatRoom
	if err := doc.DataTo(&room); err != nil {
		return nil, errors.Internal("Failed to parse chat room data", err)
	}
	return &room, nil
}

func (r *firestoreChatRepository) ListByUserID(ctx context.Context, userID string) ([]*entity.ChatRoom, error) {
	seen := make(map[string]bool)
	var rooms []*entity.ChatRoom

	// Firestore has no OR across fields here, so buyer and seller rooms are read separately.
	for _, field := range []string{"buyerId", "sellerId"} {
		iter := r.client.Collection(chatRoomsCollection).Where(field, "==", userID).Documents(ctx)
		for {
			doc, err := iter.Next()
			if err == iterator.Done {
				break
			}
			if err != nil {
				iter.Stop()
				logger.Error("Firestore error while listing chat rooms for user %s: %v", userID, err)
				return nil, errors.Internal("Failed to list chat rooms", err)
			}

			var room entity.ChatRoom
			if err := doc.DataTo(&room); err != nil {
				iter.Stop()
				return nil, errors.Internal("Failed to parse chat room data", err)
			}
			if seen[room.ID] {
				continue
			}
			seen[room.ID] = true
			rooms = append(rooms, &room)
		}
		iter.Stop()
	}

	sort.SliceStable(rooms, func(i, j int) bool {
		return rooms[i].CreatedAt.After(rooms[j].CreatedAt)
	})
	return rooms, nil
}

func (r *firestoreChatRepository) CreateMessage(ctx context.Context, message *entity.Message) error {
	if message.ID == "" {
		message.ID = uuid.New().String()
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now()
	}

	_, err := r.client.Collection(chatRoomsCollection).Doc(message.RoomID).
		Collection(messagesCollection).Doc(message.ID).Set(ctx, message)
	if err != nil {
		return errors.Internal("Failed to create message", err)
	}

	return nil
}

func (r *firestoreChatRepository) GetMessagesByRoom(ctx context.Context, roomID string) ([]*entity.Message, error) {
	query := r.client.Collection(chatRoomsCollection).Doc(roomID).Collection(messagesCollection).
		OrderBy("createdAt", firestore.Asc)

	iter := query.Documents(ctx)
	defer iter.Stop()

	var messages []*entity.Message
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			logger.Error("Firestore error while iterating messages for room %s: %v", roomID, err)
			return nil, errors.Internal("Failed to iterate messages", err)
		}

		var message entity.Message
		if err := doc.DataTo(&message); err != nil {
			logger.Error("Error parsing message data for room %s: %v", roomID, err)
			return nil, errors.Internal("Failed to parse message data", err)
		}
		messages = append(messages, &message)
	}

	return messages, nil
}

func (r *firestoreChatRepository) GetLastMessage(ctx context.Context, roomID string) (*entity.Message, error) {
	iter := r.client.Collection(chatRoomsCollection).Doc(roomID).Collection(messagesCollection).
		OrderBy("createdAt", firestore.Desc).
		Limit(1).
		Documents(ctx)
	defer iter.Stop()

	doc, err := iter.Next()
	if err != nil {
		if err == iterator.Done {
			return nil, nil
		}
		return nil, errors.Internal("Failed to get last message", err)
	}

	var message entity.Message
	if err := doc.DataTo(&message); err != nil {
		return nil, errors.Internal("Failed to parse message data", err)
	}
	return &message, nil
}
