package livechannel

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"univmarket/internal/domain/entity"
	chatws "univmarket/internal/infrastructure/websocket"
	"univmarket/pkg/errors"
	"univmarket/pkg/logger"
)

const (
	DefaultReconnectDelay = 5 * time.Second
	DefaultAckTimeout     = 10 * time.Second
)

type State string

const (
	StateDisconnected State = "DISCONNECTED"
	StateConnecting   State = "CONNECTING"
	StateConnected    State = "CONNECTED"
	StateFailed       State = "FAILED"
)

// Connection is a snapshot of the channel. Retries counts failures since the last
// successful handshake.
type Connection struct {
	RoomID         string
	State          State
	SubscriptionID string
	Retries        int
}

type Option func(*Channel)

// WithReconnectDelay sets the flat wait between attempts.
func WithReconnectDelay(d time.Duration) Option {
	return func(c *Channel) {
		if d > 0 {
			c.delay = d
		}
	}
}

// WithAckTimeout bounds how long Publish waits for the server to echo or reject a message.
func WithAckTimeout(d time.Duration) Option {
	return func(c *Channel) {
		if d > 0 {
			c.ackTimeout = d
		}
	}
}

// WithStateHook is called on every state change, outside the channel lock.
func WithStateHook(fn func(Connection)) Option {
	return func(c *Channel) {
		c.onState = fn
	}
}

// Channel keeps one live subscription to one room, reconnecting after failures
// until Disconnect.
type Channel struct {
	dialer     Dialer
	delay      time.Duration
	ackTimeout time.Duration
	onState    func(Connection)

	mu        sync.Mutex
	conn      Conn
	snapshot  Connection
	onMessage func(entity.Message)
	cancel    context.CancelFunc
	done      chan struct{}
	// acks holds one waiter per published temp id until its echo or error frame arrives.
	acks map[string]chan error

	writeMu sync.Mutex
}

func New(dialer Dialer, opts ...Option) *Channel {
	c := &Channel{
		dialer:     dialer,
		delay:      DefaultReconnectDelay,
		ackTimeout: DefaultAckTimeout,
		snapshot:   Connection{State: StateDisconnected},
		acks:       make(map[string]chan error),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect starts the supervisor for roomID and returns immediately. A running
// supervisor, for this or another room, is stopped first.
func (c *Channel) Connect(ctx context.Context, roomID, credential string, onMessage func(entity.Message)) error {
	if roomID == "" {
		return errors.BadRequest("room id is required", nil)
	}
	c.Disconnect()

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	c.mu.Lock()
	c.snapshot = Connection{RoomID: roomID, State: StateConnecting}
	c.onMessage = onMessage
	c.cancel = cancel
	c.done = done
	snap := c.snapshot
	c.mu.Unlock()
	c.notify(snap)

	go c.supervise(runCtx, roomID, credential, done)
	return nil
}

// Subscribe rebinds the delivery callback and, when connected, asks for the room again.
func (c *Channel) Subscribe(roomID string, onMessage func(entity.Message)) error {
	c.mu.Lock()
	if c.snapshot.RoomID != roomID {
		c.mu.Unlock()
		return errors.BadRequest("channel is bound to another room", nil)
	}
	c.onMessage = onMessage
	conn, state := c.conn, c.snapshot.State
	c.mu.Unlock()

	if state != StateConnected || conn == nil {
		return nil
	}
	return c.write(conn, chatws.NewFrame(chatws.MessageTypeSubscribe, roomID, nil))
}

// Publish sends msg over the live connection and waits until the server echoes it back
// or rejects it. It fails with TRANSPORT_UNAVAILABLE, without sending anything, unless
// the channel is connected to roomID. A rejection is returned as the server's AppError;
// no answer before ctx ends or the ack timeout is DELIVERY_UNCONFIRMED.
func (c *Channel) Publish(ctx context.Context, roomID string, msg entity.Message) error {
	if msg.TempID == "" {
		msg.TempID = uuid.New().String()
	}

	c.mu.Lock()
	conn, snap := c.conn, c.snapshot
	if snap.State != StateConnected || conn == nil {
		c.mu.Unlock()
		return errors.TransportUnavailable("live channel is " + string(snap.State))
	}
	if snap.RoomID != roomID {
		c.mu.Unlock()
		return errors.TransportUnavailable("live channel is connected to another room")
	}
	ack := make(chan error, 1)
	c.acks[msg.TempID] = ack
	c.mu.Unlock()
	defer c.forgetAck(msg.TempID)

	frame := chatws.NewFrame(chatws.MessageTypeSendMessage, roomID, chatws.SendMessageData{
		TempID:  msg.TempID,
		Content: msg.Content,
	})
	if err := c.write(conn, frame); err != nil {
		log := logger.Room(roomID)
		log.Warn().Err(err).Msg("live channel publish failed")
		return errors.TransportUnavailable("live channel write failed")
	}

	timer := time.NewTimer(c.ackTimeout)
	defer timer.Stop()
	select {
	case err := <-ack:
		return err
	case <-ctx.Done():
		return errors.DeliveryUnconfirmed(ctx.Err())
	case <-timer.C:
		return errors.DeliveryUnconfirmed(nil)
	}
}

// Disconnect stops the supervisor and waits for it, so no callback runs after it
// returns. The unsubscribe frame is only sent on a connected channel.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	conn, snap := c.conn, c.snapshot
	c.cancel, c.done = nil, nil
	c.mu.Unlock()

	if cancel == nil {
		return
	}

	if snap.State == StateConnected && conn != nil {
		if err := c.write(conn, chatws.NewFrame(chatws.MessageTypeUnsubscribe, snap.RoomID, nil)); err != nil {
			log := logger.Room(snap.RoomID)
			log.Debug().Err(err).Msg("unsubscribe frame not sent")
		}
	}

	cancel()
	<-done

	c.mu.Lock()
	c.conn = nil
	c.onMessage = nil
	c.snapshot.State = StateDisconnected
	c.failAcksLocked(errors.DeliveryUnconfirmed(errors.TransportUnavailable("live channel disconnected")))
	snap = c.snapshot
	c.mu.Unlock()
	c.notify(snap)
}

func (c *Channel) Connection() Connection {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot
}

func (c *Channel) supervise(ctx context.Context, roomID, credential string, done chan struct{}) {
	defer close(done)
	log := logger.Room(roomID)

	for {
		err := c.runOnce(ctx, roomID, credential, log)
		if ctx.Err() != nil {
			return
		}

		c.mu.Lock()
		c.conn = nil
		c.snapshot.State = StateFailed
		c.snapshot.Retries++
		c.failAcksLocked(errors.DeliveryUnconfirmed(err))
		snap := c.snapshot
		c.mu.Unlock()
		c.notify(snap)

		if errors.Is(err, errors.CodeHandshakeFailed) {
			log.Warn().Err(err).Int("retries", snap.Retries).Dur("delay", c.delay).Msg("live channel handshake failed, retrying")
		} else {
			log.Warn().Err(err).Int("retries", snap.Retries).Dur("delay", c.delay).Msg("live channel dropped, reconnecting")
		}

		timer := time.NewTimer(c.delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		c.mu.Lock()
		c.snapshot.State = StateConnecting
		snap = c.snapshot
		c.mu.Unlock()
		c.notify(snap)
	}
}

// runOnce holds one connection until it fails or ctx is done.
func (c *Channel) runOnce(ctx context.Context, roomID, credential string, log zerolog.Logger) error {
	conn, err := c.dialer.Dial(ctx, credential)
	if err != nil {
		if !errors.Is(err, errors.CodeHandshakeFailed) {
			err = errors.HandshakeFailed(err)
		}
		return err
	}
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()
	defer conn.Close()

	// The subscribe frame goes out before any publish can take the write lock.
	c.writeMu.Lock()
	c.mu.Lock()
	c.conn = conn
	c.snapshot.State = StateConnected
	c.snapshot.Retries = 0
	snap := c.snapshot
	c.mu.Unlock()
	err = conn.WriteJSON(chatws.NewFrame(chatws.MessageTypeSubscribe, roomID, nil))
	c.writeMu.Unlock()

	c.notify(snap)
	if err != nil {
		return err
	}
	log.Info().Msg("live channel connected")

	for {
		var env chatws.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			return err
		}

		switch env.Type {
		case chatws.MessageTypeSubscribed:
			var data chatws.SubscribedData
			if err := json.Unmarshal(env.Data, &data); err != nil {
				log.Warn().Err(err).Msg("malformed subscribed frame")
				continue
			}
			c.mu.Lock()
			c.snapshot.SubscriptionID = data.SubscriptionID
			snap := c.snapshot
			c.mu.Unlock()
			c.notify(snap)

		case chatws.MessageTypeMessage:
			var msg entity.Message
			if err := json.Unmarshal(env.Data, &msg); err != nil {
				log.Warn().Err(err).Msg("malformed message frame")
				continue
			}
			if msg.RoomID == "" {
				msg.RoomID = env.ChatID
			}
			if msg.RoomID != roomID {
				continue
			}
			c.deliver(ctx, msg)
			if msg.TempID != "" {
				c.resolveAck(msg.TempID, nil)
			}

		case chatws.MessageTypeError:
			var data chatws.ErrorData
			if err := json.Unmarshal(env.Data, &data); err != nil {
				log.Warn().Err(err).Msg("malformed error frame")
				continue
			}
			log.Warn().Str("code", data.Code).Str("temp_id", data.TempID).Msg(data.Message)
			if data.TempID != "" {
				c.resolveAck(data.TempID, errors.FromCode(data.Code, data.Message))
			}

		case chatws.MessageTypePong:
		default:
			log.Debug().Str("type", env.Type).Msg("ignoring frame")
		}
	}
}

func (c *Channel) deliver(ctx context.Context, msg entity.Message) {
	if ctx.Err() != nil {
		return
	}
	c.mu.Lock()
	fn := c.onMessage
	c.mu.Unlock()
	if fn != nil {
		fn(msg)
	}
}

func (c *Channel) resolveAck(tempID string, err error) {
	c.mu.Lock()
	ack, ok := c.acks[tempID]
	delete(c.acks, tempID)
	c.mu.Unlock()
	if ok {
		ack <- err
	}
}

func (c *Channel) forgetAck(tempID string) {
	c.mu.Lock()
	delete(c.acks, tempID)
	c.mu.Unlock()
}

func (c *Channel) failAcksLocked(err error) {
	for tempID, ack := range c.acks {
		ack <- err
		delete(c.acks, tempID)
	}
}

func (c *Channel) write(conn Conn, frame chatws.WSMessage) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteJSON(frame)
}

func (c *Channel) notify(snap Connection) {
	if c.onState != nil {
		c.onState(snap)
	}
}
