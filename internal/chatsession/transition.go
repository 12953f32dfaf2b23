package chatsession

import (
	"context"
	"fmt"
	"sync"
	"time"

	"univmarket/internal/domain/entity"
	"univmarket/pkg/errors"
)

type TransitionAction string

const (
	ActionReserve  TransitionAction = "reserve"
	ActionComplete TransitionAction = "complete"
)

// Announcement is the system message owed to the room after a committed transition.
type Announcement struct {
	Action    TransitionAction
	Status    entity.ProductStatus
	Content   string
	CallerID  string
	CreatedAt time.Time
}

// TransitionRequester performs the authoritative product transitions.
type TransitionRequester interface {
	RequestReserve(ctx context.Context, productID string) error
	RequestComplete(ctx context.Context, productID string) error
}

// TransactionStateMachine guards reserve and complete against a cached product status.
// A committed transition is recorded as pending until MarkAnnounced, so announcing it can
// be retried on its own.
type TransactionStateMachine struct {
	productID string
	sellerID  string
	requester TransitionRequester
	now       func() time.Time

	// txMu serialises authoritative calls; mu guards the fields below.
	txMu    sync.Mutex
	mu      sync.Mutex
	status  entity.ProductStatus
	pending []Announcement
}

func NewTransactionStateMachine(productID, sellerID string, status entity.ProductStatus, requester TransitionRequester) *TransactionStateMachine {
	return &TransactionStateMachine{
		productID: productID,
		sellerID:  sellerID,
		requester: requester,
		now:       time.Now,
		status:    status,
	}
}

func (m *TransactionStateMachine) Status() entity.ProductStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// SetStatus overwrites the cached status with one read from the product service.
func (m *TransactionStateMachine) SetStatus(status entity.ProductStatus) {
	if !status.Valid() {
		return
	}
	m.mu.Lock()
	m.status = status
	m.mu.Unlock()
}

func (m *TransactionStateMachine) Reserve(ctx context.Context, callerID string) (Announcement, error) {
	return m.transition(ctx, callerID, ActionReserve)
}

func (m *TransactionStateMachine) Complete(ctx context.Context, callerID string) (Announcement, error) {
	return m.transition(ctx, callerID, ActionComplete)
}

func (m *TransactionStateMachine) transition(ctx context.Context, callerID string, action TransitionAction) (Announcement, error) {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	from := m.Status()
	if err := m.check(callerID, action, from); err != nil {
		return Announcement{}, err
	}

	var (
		err    error
		to     entity.ProductStatus
		notice string
	)
	switch action {
	case ActionReserve:
		to, notice = entity.ProductStatusReserved, entity.ReservedNotice
		err = m.requester.RequestReserve(ctx, m.productID)
	case ActionComplete:
		to, notice = entity.ProductStatusCompleted, entity.CompletedNotice
		err = m.requester.RequestComplete(ctx, m.productID)
	}
	if err != nil {
		return Announcement{}, err
	}

	ann := Announcement{
		Action:    action,
		Status:    to,
		Content:   notice,
		CallerID:  callerID,
		CreatedAt: m.now().UTC(),
	}

	m.mu.Lock()
	m.status = to
	m.pending = append(m.pending, ann)
	m.mu.Unlock()
	return ann, nil
}

func (m *TransactionStateMachine) check(callerID string, action TransitionAction, from entity.ProductStatus) error {
	switch action {
	case ActionReserve:
		if callerID == m.sellerID {
			return errors.TransitionRejected("a seller cannot reserve their own product", nil)
		}
		if from != entity.ProductStatusWaiting {
			return errors.TransitionRejected(fmt.Sprintf("product is %s and cannot be reserved", from), nil)
		}
	case ActionComplete:
		if callerID != m.sellerID {
			return errors.TransitionRejected("only the seller can complete the transaction", nil)
		}
		if from != entity.ProductStatusReserved {
			return errors.TransitionRejected(fmt.Sprintf("product is %s and cannot be completed", from), nil)
		}
	default:
		return errors.BadRequest("unknown transition "+string(action), nil)
	}
	return nil
}

// Pending returns the committed transitions whose announcement has not been sent yet,
// oldest first.
func (m *TransactionStateMachine) Pending() []Announcement {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Announcement, len(m.pending))
	copy(out, m.pending)
	return out
}

func (m *TransactionStateMachine) MarkAnnounced(action TransitionAction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, ann := range m.pending {
		if ann.Action == action {
			m.pending = append(m.pending[:i], m.pending[i+1:]...)
			return
		}
	}
}
