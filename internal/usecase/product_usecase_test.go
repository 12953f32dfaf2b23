package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"univmarket/internal/domain/entity"
	"univmarket/pkg/errors"
)

func TestReserveProduct(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	_, err := f.products.ReserveProduct(ctx, "seller", "p1")
	assert.True(t, errors.Is(err, errors.CodeTransitionRejected))

	product, err := f.products.ReserveProduct(ctx, "buyer", "p1")
	require.NoError(t, err)
	assert.Equal(t, entity.ProductStatusReserved, product.Status)
	assert.Equal(t, "buyer", product.BuyerID)

	_, err = f.products.ReserveProduct(ctx, "buyer", "p1")
	assert.True(t, errors.Is(err, errors.CodeTransitionRejected))
}

func TestCompleteTransaction(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	_, err := f.products.CompleteTransaction(ctx, "seller", "p1")
	assert.True(t, errors.Is(err, errors.CodeTransitionRejected), "complete from WAITING")

	_, err = f.products.ReserveProduct(ctx, "buyer", "p1")
	require.NoError(t, err)

	_, err = f.products.CompleteTransaction(ctx, "buyer", "p1")
	assert.True(t, errors.Is(err, errors.CodeTransitionRejected), "buyer cannot complete")

	product, err := f.products.CompleteTransaction(ctx, "seller", "p1")
	require.NoError(t, err)
	assert.Equal(t, entity.ProductStatusCompleted, product.Status)

	_, err = f.products.ReserveProduct(ctx, "buyer", "p1")
	assert.True(t, errors.Is(err, errors.CodeTransitionRejected), "completed is terminal")
}

func TestTransition_UnknownProduct(t *testing.T) {
	f := newChatFixture(t)
	_, err := f.products.ReserveProduct(context.Background(), "buyer", "nope")
	assert.True(t, errors.Is(err, errors.CodeNotFound))
}

func TestCreateProduct(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	product, err := f.products.CreateProduct(ctx, "seller", CreateProductInput{Title: "  Desk  ", Price: 1000})
	require.NoError(t, err)
	assert.Equal(t, "Desk", product.Title)
	assert.Equal(t, entity.ProductStatusWaiting, product.Status)

	_, err = f.products.CreateProduct(ctx, "seller", CreateProductInput{Title: ""})
	assert.True(t, errors.Is(err, errors.CodeBadRequest))

	_, err = f.products.CreateProduct(ctx, "seller", CreateProductInput{Title: "x", Price: -1})
	assert.True(t, errors.Is(err, errors.CodeBadRequest))
}
