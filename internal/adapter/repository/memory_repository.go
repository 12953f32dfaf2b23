package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"univmarket/internal/domain/entity"
	"univmarket/internal/domain/repository"
	"univmarket/pkg/errors"
)

// MemoryStore backs the chat, product and user repositories when no Firestore project
// is configured. All three views share one lock.
type MemoryStore struct {
	mu       sync.RWMutex
	rooms    map[string]*entity.ChatRoom
	messages map[string][]*entity.Message
	products map[string]*entity.Product
	users    map[string]*entity.User
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rooms:    make(map[string]*entity.ChatRoom),
		messages: make(map[string][]*entity.Message),
		products: make(map[string]*entity.Product),
		users:    make(map[string]*entity.User),
	}
}

func (s *MemoryStore) Chats() repository.ChatRepository       { return &memoryChatRepository{s} }
func (s *MemoryStore) Products() repository.ProductRepository { return &memoryProductRepository{s} }
func (s *MemoryStore) Users() repository.UserRepository       { return &memoryUserRepository{s} }

type memoryChatRepository struct {
	s *MemoryStore
}

func (r *memoryChatRepository) Create(ctx context.Context, room *entity.ChatRoom) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if room.ID == "" {
		room.ID = uuid.New().String()
	}
	if room.CreatedAt.IsZero() {
		room.CreatedAt = time.Now()
	}
	stored := *room
	stored.LastMessage = nil
	r.s.rooms[room.ID] = &stored
	return nil
}

func (r *memoryChatRepository) GetByID(ctx context.Context, id string) (*entity.ChatRoom, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	room, ok := r.s.rooms[id]
	if !ok {
		return nil, errors.NotFound("Chat room", nil)
	}
	cp := *room
	return &cp, nil
}

func (r *memoryChatRepository) GetByProductAndBuyer(ctx context.Context, productID, buyerID string) (*entity.ChatRoom, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, room := range r.s.rooms {
		if room.ProductID == productID && room.BuyerID == buyerID {
			cp := *room
			return &cp, nil
		}
	}
	return nil, errors.NotFound("Chat room", nil)
}

func (r *memoryChatRepository) ListByUserID(ctx context.Context, userID string) ([]*entity.ChatRoom, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var rooms []*entity.ChatRoom
	for _, room := range r.s.rooms {
		if room.IsParticipant(userID) {
			cp := *room
			rooms = append(rooms, &cp)
		}
	}
	sort.SliceStable(rooms, func(i, j int) bool {
		if rooms[i].CreatedAt.Equal(rooms[j].CreatedAt) {
			return rooms[i].ID < rooms[j].ID
		}
		return rooms[i].CreatedAt.After(rooms[j].CreatedAt)
	})
	return rooms, nil
}

func (r *memoryChatRepository) CreateMessage(ctx context.Context, message *entity.Message) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.rooms[message.RoomID]; !ok {
		return errors.NotFound("Chat room", nil)
	}
	if message.ID == "" {
		message.ID = uuid.New().String()
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now()
	}
	stored := *message
	stored.TempID = ""

	// History stays sorted by CreatedAt; equal timestamps keep insertion order.
	list := r.s.messages[message.RoomID]
	i := sort.Search(len(list), func(i int) bool {
		return list[i].CreatedAt.After(stored.CreatedAt)
	})
	list = append(list, nil)
	copy(list[i+1:], list[i:])
	list[i] = &stored
	r.s.messages[message.RoomID] = list
	return nil
}

func (r *memoryChatRepository) GetMessagesByRoom(ctx context.Context, roomID string) ([]*entity.Message, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	list := r.s.messages[roomID]
	out := make([]*entity.Message, 0, len(list))
	for _, m := range list {
		cp := *m
		out = append(out, &cp)
	}
	return out, nil
}

func (r *memoryChatRepository) GetLastMessage(ctx context.Context, roomID string) (*entity.Message, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	list := r.s.messages[roomID]
	if len(list) == 0 {
		return nil, nil
	}
	cp := *list[len(list)-1]
	return &cp, nil
}

type memoryProductRepository struct {
	s *MemoryStore
}

func (r *memoryProductRepository) Create(ctx context.Context, product *entity.Product) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if product.ID == "" {
		product.ID = uuid.New().String()
	}
	now := time.Now()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now
	if product.Status == "" {
		product.Status = entity.ProductStatusWaiting
	}
	stored := *product
	r.s.products[product.ID] = &stored
	return nil
}

func (r *memoryProductRepository) GetByID(ctx context.Context, id string) (*entity.Product, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	product, ok := r.s.products[id]
	if !ok {
		return nil, errors.NotFound("Product", nil)
	}
	cp := *product
	return &cp, nil
}

func (r *memoryProductRepository) UpdateStatus(ctx context.Context, id string, from, to entity.ProductStatus, buyerID string) (*entity.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	product, ok := r.s.products[id]
	if !ok {
		return nil, errors.NotFound("Product", nil)
	}
	if product.Status != from {
		return nil, errors.Conflict("Product status changed to " + string(product.Status))
	}

	product.Status = to
	product.UpdatedAt = time.Now()
	if buyerID != "" {
		product.BuyerID = buyerID
	}
	cp := *product
	return &cp, nil
}

type memoryUserRepository struct {
	s *MemoryStore
}

func (r *memoryUserRepository) Create(ctx context.Context, user *entity.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if user.ID == "" {
		return errors.BadRequest("User ID is required", nil)
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	stored := *user
	r.s.users[user.ID] = &stored
	return nil
}

func (r *memoryUserRepository) GetByID(ctx context.Context, id string) (*entity.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	user, ok := r.s.users[id]
	if !ok {
		return nil, errors.NotFound("User", nil)
	}
	cp := *user
	return &cp, nil
}

func (r *memoryUserRepository) Update(ctx context.Context, user *entity.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.users[user.ID]; !ok {
		return errors.NotFound("User", nil)
	}
	stored := *user
	r.s.users[user.ID] = &stored
	return nil
}
