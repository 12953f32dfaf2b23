package chatsession

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"univmarket/internal/domain/entity"
	"univmarket/internal/infrastructure/livechannel"
	"univmarket/pkg/errors"
)

func openSession(t *testing.T, backend *fakeBackend, userID string, state livechannel.State) (*Session, *fakeTransport) {
	t.Helper()
	transport := newFakeTransport(backend, userID, state)
	s := NewSession("room-1", userID, "dev-"+userID, backend.asUser(userID), transport)
	require.NoError(t, s.Open(context.Background()))
	t.Cleanup(s.Close)
	return s, transport
}

func countContent(messages []entity.Message, content string) int {
	n := 0
	for _, m := range messages {
		if m.Content == content {
			n++
		}
	}
	return n
}

func TestSession_OpenLoadsRoomAndHistory(t *testing.T) {
	backend := newFakeBackend()
	backend.persist("U1", "still available?")
	backend.persist("U2", "yes")

	s, transport := openSession(t, backend, "U2", livechannel.StateConnected)

	assert.Equal(t, entity.ProductStatusWaiting, s.ProductStatus())
	assert.Equal(t, "p1", s.Room().ProductID)
	assert.Len(t, s.Messages(), 2)
	assert.Equal(t, 1, transport.connects)

	assert.True(t, errors.Is(s.Open(context.Background()), errors.CodeConflict))
}

func TestSession_OpenRejectsStrangers(t *testing.T) {
	backend := newFakeBackend()
	s := NewSession("room-1", "U3", "tok", backend, newFakeTransport(backend, "U3", livechannel.StateDisconnected))
	err := s.Open(context.Background())
	assert.True(t, errors.Is(err, errors.CodeForbidden))
}

func TestSession_OpenFetchFailure(t *testing.T) {
	backend := newFakeBackend()
	backend.messagesErr = assert.AnError
	transport := newFakeTransport(backend, "U2", livechannel.StateDisconnected)
	s := NewSession("room-1", "U2", "tok", backend, transport)

	err := s.Open(context.Background())
	assert.True(t, errors.Is(err, errors.CodeFetchFailed))
	assert.Zero(t, transport.connects)
	assert.True(t, errors.Is(s.Send(context.Background(), "hi"), errors.CodeBadRequest), "not open")
}

func TestSession_ReserveThenCompleteScenario(t *testing.T) {
	backend := newFakeBackend()
	buyer, _ := openSession(t, backend, "U2", livechannel.StateDisconnected)
	seller, _ := openSession(t, backend, "U1", livechannel.StateDisconnected)

	require.NoError(t, buyer.Reserve(context.Background()))
	assert.Equal(t, entity.ProductStatusReserved, buyer.ProductStatus())
	last, ok := buyer.Store().Last()
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(last.Content, entity.SystemMarkerReserved))
	_, pending := buyer.PendingAnnouncement()
	assert.False(t, pending)

	require.NoError(t, seller.Refresh(context.Background()))
	assert.Equal(t, entity.ProductStatusReserved, seller.ProductStatus())

	require.NoError(t, seller.Complete(context.Background()))
	assert.Equal(t, entity.ProductStatusCompleted, seller.ProductStatus())
	messages := seller.Messages()
	require.Len(t, messages, 2)
	assert.True(t, messages[0].IsSystem())
	assert.True(t, strings.HasPrefix(messages[1].Content, entity.SystemMarkerCompleted))
}

func TestSession_TransitionGuards(t *testing.T) {
	backend := newFakeBackend()
	seller, _ := openSession(t, backend, "U1", livechannel.StateDisconnected)
	buyer, _ := openSession(t, backend, "U2", livechannel.StateDisconnected)

	assert.True(t, errors.Is(seller.Reserve(context.Background()), errors.CodeTransitionRejected))
	assert.True(t, errors.Is(buyer.Complete(context.Background()), errors.CodeTransitionRejected))

	require.NoError(t, buyer.Reserve(context.Background()))
	assert.True(t, errors.Is(buyer.Reserve(context.Background()), errors.CodeTransitionRejected))
	assert.True(t, errors.Is(buyer.Complete(context.Background()), errors.CodeTransitionRejected))
	assert.Equal(t, 1, backend.reserves)
	assert.Zero(t, backend.completes)
}

func TestSession_FailedReserveLeavesEverythingUnchanged(t *testing.T) {
	backend := newFakeBackend()
	backend.persist("U2", "can I pick it up today?")
	buyer, transport := openSession(t, backend, "U2", livechannel.StateConnected)
	before := buyer.Messages()

	backend.setErr(&backend.reserveErr, errors.Unauthorized("token expired", nil))
	err := buyer.Reserve(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.CodeUnauthorized))

	assert.Equal(t, entity.ProductStatusWaiting, buyer.ProductStatus())
	assert.Equal(t, before, buyer.Messages())
	assert.Zero(t, transport.publishCount())
	_, pending := buyer.PendingAnnouncement()
	assert.False(t, pending)
}

func TestSession_AnnouncesOverLiveChannel(t *testing.T) {
	backend := newFakeBackend()
	buyer, transport := openSession(t, backend, "U2", livechannel.StateConnected)

	require.NoError(t, buyer.Reserve(context.Background()))
	assert.Equal(t, 1, transport.publishCount())
	assert.Zero(t, backend.sendCount())

	last, ok := buyer.Store().Last()
	require.True(t, ok)
	assert.Equal(t, entity.ReservedNotice, last.Content)
	assert.Equal(t, "U2", last.SenderID)
}

func TestSession_UnannouncedTransitionCanBeRetried(t *testing.T) {
	backend := newFakeBackend()
	backend.sendErr = errors.Internal("chat service down", nil)
	buyer, _ := openSession(t, backend, "U2", livechannel.StateDisconnected)

	require.NoError(t, buyer.Reserve(context.Background()), "the transition itself committed")
	assert.Equal(t, entity.ProductStatusReserved, buyer.ProductStatus())
	ann, pending := buyer.PendingAnnouncement()
	require.True(t, pending)
	assert.Equal(t, ActionReserve, ann.Action)
	assert.Zero(t, buyer.Store().Len())

	assert.Error(t, buyer.RetryAnnouncement(context.Background()))
	backend.setErr(&backend.sendErr, nil)
	require.NoError(t, buyer.RetryAnnouncement(context.Background()))

	_, pending = buyer.PendingAnnouncement()
	assert.False(t, pending)
	assert.Equal(t, 1, countContent(buyer.Messages(), entity.ReservedNotice))
	assert.Equal(t, 1, backend.reserves, "the transition is not repeated")
}

func TestSession_FallbackSendThenStalePush(t *testing.T) {
	backend := newFakeBackend()
	s, transport := openSession(t, backend, "U2", livechannel.StateDisconnected)

	require.NoError(t, s.Send(context.Background(), "hello"))
	assert.Equal(t, 1, backend.sendCount())
	assert.Zero(t, transport.publishCount())

	last, ok := s.Store().Last()
	require.True(t, ok)
	assert.Equal(t, "hello", last.Content)

	transport.push(last)
	require.NoError(t, s.Refresh(context.Background()))
	assert.Equal(t, 1, countContent(s.Messages(), "hello"))
}

func TestSession_SendPrefersLiveChannel(t *testing.T) {
	backend := newFakeBackend()
	s, transport := openSession(t, backend, "U2", livechannel.StateConnected)

	require.NoError(t, s.Send(context.Background(), "  hi there  "))
	assert.Equal(t, 1, transport.publishCount())
	assert.Zero(t, backend.sendCount())
	assert.NotEmpty(t, transport.published[0].TempID)
	assert.Equal(t, "hi there", transport.published[0].Content)
	assert.Equal(t, 1, countContent(s.Messages(), "hi there"))

	transport.setState(livechannel.StateFailed)
	require.NoError(t, s.Send(context.Background(), "while offline"))
	assert.Equal(t, 1, transport.publishCount())
	assert.Equal(t, 1, backend.sendCount())
	assert.Equal(t, 1, countContent(s.Messages(), "while offline"))
}

func TestSession_SendRejectsEmptyContent(t *testing.T) {
	backend := newFakeBackend()
	s, transport := openSession(t, backend, "U2", livechannel.StateConnected)

	err := s.Send(context.Background(), " \n\t ")
	assert.True(t, errors.Is(err, errors.CodeBadRequest))
	assert.Zero(t, transport.publishCount())
	assert.Zero(t, backend.sendCount())
}

func TestSession_RefreshFailureKeepsState(t *testing.T) {
	backend := newFakeBackend()
	backend.persist("U1", "hello")
	s, _ := openSession(t, backend, "U2", livechannel.StateDisconnected)
	before := s.Messages()

	backend.persist("U1", "new message")
	backend.mu.Lock()
	backend.room.ProductStatus = entity.ProductStatusReserved
	backend.messagesErr = errors.Internal("boom", nil)
	backend.mu.Unlock()

	err := s.Refresh(context.Background())
	assert.True(t, errors.Is(err, errors.CodeFetchFailed))
	assert.Equal(t, before, s.Messages())
	assert.Equal(t, entity.ProductStatusWaiting, s.ProductStatus())

	backend.setErr(&backend.messagesErr, nil)
	require.NoError(t, s.Refresh(context.Background()))
	assert.Len(t, s.Messages(), 2)
	assert.Equal(t, entity.ProductStatusReserved, s.ProductStatus())
}

func TestSession_PushedNoticeRefreshesFromProductService(t *testing.T) {
	backend := newFakeBackend()
	seller, transport := openSession(t, backend, "U1", livechannel.StateConnected)
	fetches := backend.metaFetchCount()

	transport.push(backend.persist("U2", "🔔 just kidding"))
	require.Eventually(t, func() bool { return backend.metaFetchCount() > fetches }, time.Second, 5*time.Millisecond)
	assert.Equal(t, entity.ProductStatusWaiting, seller.ProductStatus(), "a notice alone never moves the status")
	assert.True(t, errors.Is(seller.Complete(context.Background()), errors.CodeTransitionRejected))

	require.NoError(t, backend.RequestReserve(context.Background(), "p1"))
	transport.push(backend.persist("U2", entity.ReservedNotice))
	require.Eventually(t, func() bool { return seller.ProductStatus() == entity.ProductStatusReserved }, time.Second, 5*time.Millisecond)
	require.NoError(t, seller.Complete(context.Background()))
}

func TestSession_RejectedLiveSendIsReturned(t *testing.T) {
	backend := newFakeBackend()
	s, transport := openSession(t, backend, "U2", livechannel.StateConnected)

	transport.setPublishErr(errors.BadRequest("Message must be at most 1000 characters", nil))
	err := s.Send(context.Background(), "too long")
	assert.True(t, errors.Is(err, errors.CodeBadRequest))
	assert.Zero(t, backend.sendCount(), "a rejection is not retried over the fallback")
	assert.Zero(t, s.Store().Len())

	transport.setPublishErr(errors.DeliveryUnconfirmed(nil))
	assert.True(t, errors.Is(s.Send(context.Background(), "lost"), errors.CodeDeliveryUnconfirmed))
	assert.Zero(t, backend.sendCount())
}

func TestSession_RejectedLiveNoticeStaysPending(t *testing.T) {
	backend := newFakeBackend()
	buyer, transport := openSession(t, backend, "U2", livechannel.StateConnected)

	transport.setPublishErr(errors.TooManyRequests("Rate limit exceeded", nil))
	require.NoError(t, buyer.Reserve(context.Background()))
	assert.Equal(t, entity.ProductStatusReserved, buyer.ProductStatus())
	assert.Equal(t, entity.ProductStatusReserved, backend.status())

	ann, pending := buyer.PendingAnnouncement()
	require.True(t, pending)
	assert.Equal(t, ActionReserve, ann.Action)
	assert.Zero(t, countContent(buyer.Messages(), entity.ReservedNotice))

	transport.setPublishErr(nil)
	require.NoError(t, buyer.RetryAnnouncement(context.Background()))
	_, pending = buyer.PendingAnnouncement()
	assert.False(t, pending)
	assert.Equal(t, 1, countContent(buyer.Messages(), entity.ReservedNotice))
	assert.Equal(t, 1, backend.reserves)
}

func TestSession_RefreshInFlightAtCloseChangesNothing(t *testing.T) {
	backend := newFakeBackend()
	backend.persist("U1", "hello")
	s, _ := openSession(t, backend, "U2", livechannel.StateDisconnected)
	before := s.Messages()

	backend.persist("U1", "arrives during close")
	backend.mu.Lock()
	backend.room.ProductStatus = entity.ProductStatusReserved
	backend.fetchGate = make(chan struct{})
	backend.fetching = make(chan struct{}, 1)
	gate, fetching := backend.fetchGate, backend.fetching
	backend.mu.Unlock()

	result := make(chan error, 1)
	go func() { result <- s.Refresh(context.Background()) }()

	<-fetching
	s.Close()
	close(gate)

	err := <-result
	assert.True(t, errors.Is(err, errors.CodeSessionClosed))
	assert.Equal(t, before, s.Messages())
	assert.Equal(t, entity.ProductStatusWaiting, s.ProductStatus())
}

func TestSession_CloseStopsDelivery(t *testing.T) {
	backend := newFakeBackend()
	transport := newFakeTransport(backend, "U2", livechannel.StateConnected)
	s := NewSession("room-1", "U2", "tok", backend, transport)
	require.NoError(t, s.Open(context.Background()))

	transport.push(backend.persist("U1", "before close"))
	require.Equal(t, 1, s.Store().Len())

	s.Close()
	s.Close()
	assert.Equal(t, 1, transport.disconnects)

	transport.push(backend.persist("U1", "after close"))
	assert.Equal(t, 1, s.Store().Len())

	assert.True(t, errors.Is(s.Send(context.Background(), "hi"), errors.CodeSessionClosed))
	assert.True(t, errors.Is(s.Reserve(context.Background()), errors.CodeSessionClosed))
	assert.True(t, errors.Is(s.Refresh(context.Background()), errors.CodeSessionClosed))
	assert.True(t, errors.Is(s.Open(context.Background()), errors.CodeSessionClosed))
}

func TestSession_OnChangeRunsOutsideLocks(t *testing.T) {
	backend := newFakeBackend()
	transport := newFakeTransport(backend, "U2", livechannel.StateConnected)

	var (
		calls int32
		s     *Session
	)
	s = NewSession("room-1", "U2", "tok", backend, transport, WithOnChange(func() {
		atomic.AddInt32(&calls, 1)
		_ = s.Messages()
		_ = s.ProductStatus()
		_ = s.Room()
	}))
	require.NoError(t, s.Open(context.Background()))
	defer s.Close()

	before := atomic.LoadInt32(&calls)
	transport.push(backend.persist("U1", "ping"))
	assert.Greater(t, atomic.LoadInt32(&calls), before)
}

func TestSession_ConcurrentPushAndSend(t *testing.T) {
	backend := newFakeBackend()
	s, transport := openSession(t, backend, "U2", livechannel.StateConnected)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			transport.push(backend.persist("U1", "from seller"))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			assert.NoError(t, s.Send(context.Background(), "from buyer"))
		}
	}()
	wg.Wait()

	messages := s.Messages()
	assert.Len(t, messages, 100)
	assertOrderedAndUnique(t, messages)
}

// failingDialer refuses every handshake.
type failingDialer struct {
	attempts int32
}

func (d *failingDialer) Dial(ctx context.Context, credential string) (livechannel.Conn, error) {
	atomic.AddInt32(&d.attempts, 1)
	return nil, errors.HandshakeFailed(assert.AnError)
}

func TestSession_HandshakeFailuresRetryWithoutSending(t *testing.T) {
	backend := newFakeBackend()
	dialer := &failingDialer{}

	var (
		mu      sync.Mutex
		retries []int
	)
	channel := livechannel.New(dialer,
		livechannel.WithReconnectDelay(10*time.Millisecond),
		livechannel.WithStateHook(func(c livechannel.Connection) {
			if c.State == livechannel.StateFailed {
				mu.Lock()
				retries = append(retries, c.Retries)
				mu.Unlock()
			}
		}),
	)
	s := NewSession("room-1", "U2", "tok", backend, channel)
	require.NoError(t, s.Open(context.Background()))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(retries) >= 3
	}, 2*time.Second, 5*time.Millisecond)
	s.Close()

	mu.Lock()
	assert.Equal(t, []int{1, 2, 3}, retries[:3])
	mu.Unlock()
	assert.Equal(t, livechannel.StateDisconnected, s.Connection().State)
	assert.Zero(t, backend.sendCount(), "nothing is sent automatically during the outage")

	attempts := atomic.LoadInt32(&dialer.attempts)
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, attempts, atomic.LoadInt32(&dialer.attempts), "no retries after Close")
}
