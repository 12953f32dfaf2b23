package chatsession

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"univmarket/internal/domain/entity"
	"univmarket/internal/infrastructure/livechannel"
	"univmarket/pkg/errors"
	"univmarket/pkg/logger"
)

// Backend is the request/response side of the chat service.
type Backend interface {
	FetchRoomMeta(ctx context.Context, roomID string) (*entity.ChatRoom, error)
	FetchMessages(ctx context.Context, roomID string) ([]entity.Message, error)
	SendMessageFallback(ctx context.Context, roomID, content string) (*entity.Message, error)
	TransitionRequester
}

// Transport is the live push channel of one room.
type Transport interface {
	Connect(ctx context.Context, roomID, credential string, onMessage func(entity.Message)) error
	Publish(ctx context.Context, roomID string, msg entity.Message) error
	Disconnect()
	Connection() livechannel.Connection
}

type Option func(*Session)

// WithOnChange registers fn to run after the message log or cached state changes.
// It is never called with a session lock held.
func WithOnChange(fn func()) Option {
	return func(s *Session) {
		s.onChange = fn
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

// Session coordinates one chat room for one user: it owns the room's transport, its
// message log and the transaction state machine.
type Session struct {
	roomID     string
	userID     string
	credential string
	backend    Backend
	transport  Transport
	reconciler *Reconciler
	onChange   func()
	now        func() time.Time
	log        zerolog.Logger

	mu      sync.Mutex
	room    *entity.ChatRoom
	machine *TransactionStateMachine
	opened  bool
	closed  bool
	liveCtx context.Context
	cancel  context.CancelFunc
}

func NewSession(roomID, userID, credential string, backend Backend, transport Transport, opts ...Option) *Session {
	s := &Session{
		roomID:     roomID,
		userID:     userID,
		credential: credential,
		backend:    backend,
		transport:  transport,
		reconciler: NewReconciler(NewMessageStore()),
		now:        time.Now,
		log:        logger.Room(roomID),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open loads the room and its history, then starts the live channel. The channel keeps
// reconnecting in the background until Close.
func (s *Session) Open(ctx context.Context) error {
	if err := s.ready(false); err != nil {
		return err
	}

	room, err := s.backend.FetchRoomMeta(ctx, s.roomID)
	if err != nil {
		return asFetchFailed("failed to load room", err)
	}
	if !room.IsParticipant(s.userID) {
		return errors.Forbidden("you are not a participant of this chat room", nil)
	}
	history, err := s.backend.FetchMessages(ctx, s.roomID)
	if err != nil {
		return asFetchFailed("failed to load messages", err)
	}

	liveCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	s.mu.Lock()
	if s.closed || s.opened {
		s.mu.Unlock()
		cancel()
		return s.ready(false)
	}
	s.room = room
	s.machine = NewTransactionStateMachine(room.ProductID, room.SellerID, room.ProductStatus, s.backend)
	s.opened = true
	s.liveCtx = liveCtx
	s.cancel = cancel
	s.reconciler.IngestFallbackBatch(history)
	s.mu.Unlock()
	s.changed()

	if err := s.transport.Connect(liveCtx, s.roomID, s.credential, s.onPush); err != nil {
		s.log.Warn().Err(err).Msg("live channel not started, using fallback only")
	}
	s.log.Info().Int("messages", len(history)).Str("status", string(room.ProductStatus)).Msg("chat session opened")
	return nil
}

// Send publishes content on the live channel when it is connected and returns once the
// server has echoed it back. Otherwise it posts the message over REST and reloads the full
// history. A rejection from either path is returned as is.
func (s *Session) Send(ctx context.Context, content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return errors.BadRequest("message content cannot be empty", nil)
	}
	if err := s.ready(true); err != nil {
		return err
	}
	return s.deliver(ctx, content)
}

func (s *Session) deliver(ctx context.Context, content string) error {
	if s.transport.Connection().State == livechannel.StateConnected {
		msg := entity.Message{
			RoomID:    s.roomID,
			SenderID:  s.userID,
			Content:   content,
			CreatedAt: s.now().UTC(),
			TempID:    uuid.New().String(),
		}
		err := s.transport.Publish(ctx, s.roomID, msg)
		if err == nil {
			return nil
		}
		if !errors.Is(err, errors.CodeTransportUnavailable) {
			return err
		}
		s.log.Debug().Err(err).Msg("live channel unavailable, sending over fallback")
	}

	sent, err := s.backend.SendMessageFallback(ctx, s.roomID, content)
	if err != nil {
		return err
	}
	if err := s.reloadHistory(ctx); err != nil {
		s.log.Warn().Err(err).Msg("history reload after fallback send failed")
		if sent != nil && s.ingest(*sent) {
			s.changed()
		}
	}
	return nil
}

// Reserve asks the product service to reserve the product for the current user and
// announces it in the room.
func (s *Session) Reserve(ctx context.Context) error {
	return s.runTransition(ctx, ActionReserve)
}

// Complete asks the product service to complete the transaction and announces it.
func (s *Session) Complete(ctx context.Context) error {
	return s.runTransition(ctx, ActionComplete)
}

func (s *Session) runTransition(ctx context.Context, action TransitionAction) error {
	if err := s.ready(true); err != nil {
		return err
	}
	machine := s.stateMachine()

	var (
		ann Announcement
		err error
	)
	if action == ActionReserve {
		ann, err = machine.Reserve(ctx, s.userID)
	} else {
		ann, err = machine.Complete(ctx, s.userID)
	}
	if err != nil {
		logger.LogTransitionError(s.productID(), string(action), err)
		return err
	}
	s.changed()

	if err := s.announce(ctx, ann); err != nil {
		s.log.Warn().Err(err).Str("action", string(action)).Msg("transition committed but not announced")
	}
	s.refreshMeta(ctx)
	return nil
}

// RetryAnnouncement resends the system messages of transitions that were committed but
// never reached the room.
func (s *Session) RetryAnnouncement(ctx context.Context) error {
	if err := s.ready(true); err != nil {
		return err
	}
	for _, ann := range s.stateMachine().Pending() {
		if err := s.announce(ctx, ann); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) announce(ctx context.Context, ann Announcement) error {
	if err := s.deliver(ctx, ann.Content); err != nil {
		return err
	}
	s.stateMachine().MarkAnnounced(ann.Action)
	s.changed()
	return nil
}

// Refresh reloads the room and its full history. On failure nothing cached changes.
func (s *Session) Refresh(ctx context.Context) error {
	if err := s.ready(true); err != nil {
		return err
	}

	room, err := s.backend.FetchRoomMeta(ctx, s.roomID)
	if err != nil {
		return asFetchFailed("failed to refresh room", err)
	}
	history, err := s.backend.FetchMessages(ctx, s.roomID)
	if err != nil {
		return asFetchFailed("failed to refresh messages", err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.SessionClosed()
	}
	s.applyRoomLocked(room)
	s.reconciler.IngestFallbackBatch(history)
	s.mu.Unlock()
	s.changed()
	return nil
}

// Close stops the live channel. No message is added to the log once Close returns.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	opened, cancel := s.opened, s.cancel
	s.mu.Unlock()

	if opened {
		s.transport.Disconnect()
		cancel()
	}
	s.log.Info().Msg("chat session closed")
}

func (s *Session) Messages() []entity.Message {
	return s.reconciler.Store().Messages()
}

func (s *Session) Store() *MessageStore {
	return s.reconciler.Store()
}

// ProductStatus is the cached, possibly stale, product status.
func (s *Session) ProductStatus() entity.ProductStatus {
	if m := s.stateMachine(); m != nil {
		return m.Status()
	}
	return ""
}

func (s *Session) Room() *entity.ChatRoom {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.room == nil {
		return nil
	}
	room := *s.room
	return &room
}

func (s *Session) Connection() livechannel.Connection {
	return s.transport.Connection()
}

// PendingAnnouncement returns the oldest committed transition that was not announced.
func (s *Session) PendingAnnouncement() (Announcement, bool) {
	m := s.stateMachine()
	if m == nil {
		return Announcement{}, false
	}
	pending := m.Pending()
	if len(pending) == 0 {
		return Announcement{}, false
	}
	return pending[0], true
}

func (s *Session) onPush(msg entity.Message) {
	if !s.ingest(msg) {
		return
	}
	// A notice is only a hint; the cached status follows the product service.
	if msg.IsSystem() && msg.SenderID != s.userID {
		s.mu.Lock()
		ctx := s.liveCtx
		s.mu.Unlock()
		go s.refreshMeta(ctx)
	}
	s.changed()
}

// ingest adds one pushed or acked message unless the session is closed.
func (s *Session) ingest(msg entity.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	return s.reconciler.IngestPush(msg)
}

func (s *Session) refreshMeta(ctx context.Context) {
	room, err := s.backend.FetchRoomMeta(ctx, s.roomID)
	if err != nil {
		s.log.Warn().Err(err).Msg("room refresh failed")
		return
	}
	if s.setRoom(room) {
		s.changed()
	}
}

func (s *Session) setRoom(room *entity.ChatRoom) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.applyRoomLocked(room)
	return true
}

func (s *Session) applyRoomLocked(room *entity.ChatRoom) {
	s.room = room
	if s.machine != nil {
		s.machine.SetStatus(room.ProductStatus)
	}
}

func (s *Session) reloadHistory(ctx context.Context) error {
	history, err := s.backend.FetchMessages(ctx, s.roomID)
	if err != nil {
		return asFetchFailed("failed to reload messages", err)
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.SessionClosed()
	}
	s.reconciler.IngestFallbackBatch(history)
	s.mu.Unlock()
	s.changed()
	return nil
}

// ready checks the lifecycle. requireOpen distinguishes actions from Open itself.
func (s *Session) ready(requireOpen bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.closed:
		return errors.SessionClosed()
	case requireOpen && !s.opened:
		return errors.BadRequest("chat session is not open", nil)
	case !requireOpen && s.opened:
		return errors.Conflict("chat session is already open")
	}
	return nil
}

func (s *Session) stateMachine() *TransactionStateMachine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine
}

func (s *Session) productID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.room == nil {
		return ""
	}
	return s.room.ProductID
}

func (s *Session) changed() {
	if s.onChange != nil {
		s.onChange()
	}
}

func asFetchFailed(message string, err error) error {
	if errors.Is(err, errors.CodeFetchFailed) {
		return err
	}
	return errors.FetchFailed(message, err)
}
