package repository

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"univmarket/internal/domain/entity"
	"univmarket/internal/domain/repository"
	"univmarket/pkg/errors"
)

type firestoreProductRepository struct {
	client *firestore.Client
}

func NewFirestoreProductRepository(client *firestore.Client) repository.ProductRepository {
	return &firestoreProductRepository{
		client: client,
	}
}

func (r *firestoreProductRepository) Create(ctx context.Context, product *entity.Product) error {
	if product.ID == "" {
		doc := r.client.Collection("products").NewDoc()
		product.ID = doc.ID
	}

	now := time.Now()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now
	if product.Status == "" {
		product.Status = entity.ProductStatusWaiting
	}

	_, err := r.client.Collection("products").Doc(product.ID).Set(ctx, product)
	if err != nil {
		return errors.Internal("Failed to create product", err)
	}

	return nil
}

func (r *firestoreProductRepository) GetByID(ctx context.Context, id string) (*entity.Product, error) {
	doc, err := r.client.Collection("products").Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.NotFound("Product", err)
		}
		return nil, errors.Internal("Failed to get product", err)
	}

	var product entity.Product
	if err := doc.DataTo(&product); err != nil {
		return nil, errors.Internal("Failed to parse product data", err)
	}

	return &product, nil
}

func (r *firestoreProductRepository) UpdateStatus(ctx context.Context, id string, from, to entity.ProductStatus, buyerID string) (*entity.Product, error) {
	ref := r.client.Collection("products").Doc(id)
	var updated entity.Product

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return errors.NotFound("Product", err)
			}
			return errors.Internal("Failed to get product", err)
		}

		var product entity.Product
		if err := doc.DataTo(&product); err != nil {
			return errors.Internal("Failed to parse product data", err)
		}
		if product.Status != from {
			return errors.Conflict("Product status changed to " + string(product.Status))
		}

		product.Status = to
		product.UpdatedAt = time.Now()
		updates := []firestore.Update{
			{Path: "status", Value: product.Status},
			{Path: "updatedAt", Value: product.UpdatedAt},
		}
		if buyerID != "" {
			product.BuyerID = buyerID
			updates = append(updates, firestore.Update{Path: "buyerId", Value: buyerID})
		}

		updated = product
		return tx.Update(ref, updates)
	})
	if err != nil {
		if _, ok := errors.AsAppError(err); ok {
			return nil, err
		}
		return nil, errors.Internal("Failed to update product status", err)
	}

	return &updated, nil
}
