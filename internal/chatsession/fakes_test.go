package chatsession

import (
	"context"
	"fmt"
	"sync"
	"time"

	"univmarket/internal/domain/entity"
	"univmarket/internal/infrastructure/livechannel"
	"univmarket/pkg/errors"
)

var base = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// fakeBackend is an in-process chat service holding one room.
type fakeBackend struct {
	mu       sync.Mutex
	room     entity.ChatRoom
	messages []entity.Message
	seq      int

	metaErr     error
	messagesErr error
	sendErr     error
	reserveErr  error
	completeErr error

	sends       int
	reserves    int
	completes   int
	metaFetches int

	// fetchGate, when set, holds FetchMessages until it is closed; fetching is signalled first.
	fetchGate chan struct{}
	fetching  chan struct{}
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		room: entity.ChatRoom{
			ID:            "room-1",
			ProductID:     "p1",
			SellerID:      "U1",
			BuyerID:       "U2",
			ProductStatus: entity.ProductStatusWaiting,
		},
	}
}

func (b *fakeBackend) FetchRoomMeta(ctx context.Context, roomID string) (*entity.ChatRoom, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.metaFetches++
	if b.metaErr != nil {
		return nil, b.metaErr
	}
	room := b.room
	return &room, nil
}

func (b *fakeBackend) FetchMessages(ctx context.Context, roomID string) ([]entity.Message, error) {
	b.mu.Lock()
	gate, fetching := b.fetchGate, b.fetching
	b.mu.Unlock()
	if gate != nil {
		fetching <- struct{}{}
		<-gate
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.messagesErr != nil {
		return nil, b.messagesErr
	}
	return append([]entity.Message(nil), b.messages...), nil
}

func (b *fakeBackend) SendMessageFallback(ctx context.Context, roomID, content string) (*entity.Message, error) {
	return b.sendAs(ctx, "", content)
}

func (b *fakeBackend) sendAs(ctx context.Context, senderID, content string) (*entity.Message, error) {
	b.mu.Lock()
	b.sends++
	err := b.sendErr
	b.mu.Unlock()
	if err != nil {
		return nil, err
	}
	msg := b.persist(senderID, content)
	return &msg, nil
}

func (b *fakeBackend) sendCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sends
}

// asUser is the backend as seen through one user's credential.
func (b *fakeBackend) asUser(userID string) Backend {
	return userBackend{fakeBackend: b, userID: userID}
}

type userBackend struct {
	*fakeBackend
	userID string
}

func (u userBackend) SendMessageFallback(ctx context.Context, roomID, content string) (*entity.Message, error) {
	return u.sendAs(ctx, u.userID, content)
}

func (b *fakeBackend) RequestReserve(ctx context.Context, productID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reserves++
	if b.reserveErr != nil {
		return b.reserveErr
	}
	b.room.ProductStatus = entity.ProductStatusReserved
	return nil
}

func (b *fakeBackend) RequestComplete(ctx context.Context, productID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.completes++
	if b.completeErr != nil {
		return b.completeErr
	}
	b.room.ProductStatus = entity.ProductStatusCompleted
	return nil
}

func (b *fakeBackend) persist(senderID, content string) entity.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	msg := entity.Message{
		ID:        fmt.Sprintf("m%d", b.seq),
		RoomID:    b.room.ID,
		SenderID:  senderID,
		Content:   content,
		CreatedAt: base.Add(time.Duration(b.seq) * time.Second),
	}
	b.messages = append(b.messages, msg)
	return msg
}

func (b *fakeBackend) metaFetchCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.metaFetches
}

func (b *fakeBackend) status() entity.ProductStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.room.ProductStatus
}

func (b *fakeBackend) setErr(target *error, err error) {
	b.mu.Lock()
	*target = err
	b.mu.Unlock()
}

// fakeTransport echoes published messages through the backend like the live channel
// server does. publishErr plays a server error frame: nothing is stored or echoed.
type fakeTransport struct {
	server *fakeBackend
	userID string

	mu          sync.Mutex
	state       livechannel.State
	onMessage   func(entity.Message)
	published   []entity.Message
	connects    int
	disconnects int
	publishErr  error
}

func newFakeTransport(server *fakeBackend, userID string, state livechannel.State) *fakeTransport {
	return &fakeTransport{server: server, userID: userID, state: state}
}

func (t *fakeTransport) Connect(ctx context.Context, roomID, credential string, onMessage func(entity.Message)) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connects++
	t.onMessage = onMessage
	return nil
}

func (t *fakeTransport) Publish(ctx context.Context, roomID string, msg entity.Message) error {
	t.mu.Lock()
	if t.state != livechannel.StateConnected {
		t.mu.Unlock()
		return errors.TransportUnavailable("live channel is " + string(t.state))
	}
	if t.publishErr != nil {
		err := t.publishErr
		t.mu.Unlock()
		return err
	}
	t.published = append(t.published, msg)
	deliver := t.onMessage
	t.mu.Unlock()

	echo := t.server.persist(t.userID, msg.Content)
	echo.TempID = msg.TempID
	if deliver != nil {
		deliver(echo)
	}
	return nil
}

func (t *fakeTransport) Disconnect() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.disconnects++
	t.state = livechannel.StateDisconnected
}

func (t *fakeTransport) Connection() livechannel.Connection {
	t.mu.Lock()
	defer t.mu.Unlock()
	return livechannel.Connection{RoomID: "room-1", State: t.state}
}

// push delivers msg the way a late, already scheduled callback would.
func (t *fakeTransport) push(msg entity.Message) {
	t.mu.Lock()
	deliver := t.onMessage
	t.mu.Unlock()
	if deliver != nil {
		deliver(msg)
	}
}

func (t *fakeTransport) setPublishErr(err error) {
	t.mu.Lock()
	t.publishErr = err
	t.mu.Unlock()
}

func (t *fakeTransport) setState(state livechannel.State) {
	t.mu.Lock()
	t.state = state
	t.mu.Unlock()
}

func (t *fakeTransport) publishCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.published)
}
