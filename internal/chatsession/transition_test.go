package chatsession

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"univmarket/internal/domain/entity"
	"univmarket/pkg/errors"
)

var allStatuses = []entity.ProductStatus{
	entity.ProductStatusWaiting,
	entity.ProductStatusReserved,
	entity.ProductStatusCompleted,
}

func TestReserve_Guards(t *testing.T) {
	for _, status := range allStatuses {
		for _, caller := range []string{"U1", "U2"} {
			t.Run(fmt.Sprintf("%s by %s", status, caller), func(t *testing.T) {
				backend := newFakeBackend()
				m := NewTransactionStateMachine("p1", "U1", status, backend)

				ann, err := m.Reserve(context.Background(), caller)
				if status == entity.ProductStatusWaiting && caller == "U2" {
					require.NoError(t, err)
					assert.Equal(t, entity.ProductStatusReserved, m.Status())
					assert.Equal(t, entity.ReservedNotice, ann.Content)
					assert.Equal(t, 1, backend.reserves)
					return
				}
				assert.True(t, errors.Is(err, errors.CodeTransitionRejected))
				assert.Equal(t, status, m.Status())
				assert.Empty(t, m.Pending())
				assert.Zero(t, backend.reserves, "rejected locally")
			})
		}
	}
}

func TestComplete_Guards(t *testing.T) {
	for _, status := range allStatuses {
		for _, caller := range []string{"U1", "U2"} {
			t.Run(fmt.Sprintf("%s by %s", status, caller), func(t *testing.T) {
				backend := newFakeBackend()
				m := NewTransactionStateMachine("p1", "U1", status, backend)

				ann, err := m.Complete(context.Background(), caller)
				if status == entity.ProductStatusReserved && caller == "U1" {
					require.NoError(t, err)
					assert.Equal(t, entity.ProductStatusCompleted, m.Status())
					assert.Equal(t, entity.CompletedNotice, ann.Content)
					return
				}
				assert.True(t, errors.Is(err, errors.CodeTransitionRejected))
				assert.Equal(t, status, m.Status())
				assert.Zero(t, backend.completes)
			})
		}
	}
}

func TestTransition_AuthoritativeFailureChangesNothing(t *testing.T) {
	backend := newFakeBackend()
	backend.reserveErr = errors.FetchFailed("product service unreachable", nil)
	m := NewTransactionStateMachine("p1", "U1", entity.ProductStatusWaiting, backend)

	_, err := m.Reserve(context.Background(), "U2")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.CodeFetchFailed))
	assert.Equal(t, entity.ProductStatusWaiting, m.Status())
	assert.Empty(t, m.Pending())
}

func TestTransition_PendingUntilAnnounced(t *testing.T) {
	m := NewTransactionStateMachine("p1", "U1", entity.ProductStatusWaiting, newFakeBackend())

	_, err := m.Reserve(context.Background(), "U2")
	require.NoError(t, err)
	_, err = m.Complete(context.Background(), "U1")
	require.NoError(t, err)

	pending := m.Pending()
	require.Len(t, pending, 2)
	assert.Equal(t, ActionReserve, pending[0].Action)
	assert.Equal(t, ActionComplete, pending[1].Action)

	m.MarkAnnounced(ActionReserve)
	pending = m.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, ActionComplete, pending[0].Action)
}

func TestSetStatus_IgnoresUnknownValues(t *testing.T) {
	m := NewTransactionStateMachine("p1", "U1", entity.ProductStatusReserved, newFakeBackend())

	m.SetStatus(entity.ProductStatusCompleted)
	assert.Equal(t, entity.ProductStatusCompleted, m.Status())

	m.SetStatus("bogus")
	assert.Equal(t, entity.ProductStatusCompleted, m.Status())
}
