package repository

import (
	"context"

	"univmarket/internal/domain/entity"
)

type ProductRepository interface {
	Create(ctx context.Context, product *entity.Product) error
	GetByID(ctx context.Context, id string) (*entity.Product, error)
	// UpdateStatus moves a product from one status to the next atomically. It returns a
	// CONFLICT error when the stored status is no longer from.
	UpdateStatus(ctx context.Context, id string, from, to entity.ProductStatus, buyerID string) (*entity.Product, error)
}
