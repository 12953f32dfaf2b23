package usecase

import (
	"context"
	"fmt"
	"strings"

	"univmarket/internal/domain/entity"
	"univmarket/internal/domain/repository"
	"univmarket/internal/infrastructure/ratelimit"
	"univmarket/pkg/errors"
	"univmarket/pkg/logger"
)

type ProductUseCase struct {
	productRepo repository.ProductRepository
	userRepo    repository.UserRepository
	rateLimiter *ratelimit.RateLimiter
}

func NewProductUseCase(
	productRepo repository.ProductRepository,
	userRepo repository.UserRepository,
	rateLimiter *ratelimit.RateLimiter,
) *ProductUseCase {
	if rateLimiter == nil {
		rateLimiter = ratelimit.NewRateLimiter()
	}
	return &ProductUseCase{
		productRepo: productRepo,
		userRepo:    userRepo,
		rateLimiter: rateLimiter,
	}
}

type CreateProductInput struct {
	Title    string `json:"title"`
	ImageURL string `json:"image_url"`
	Price    int64  `json:"price"`
}

func (uc *ProductUseCase) CreateProduct(ctx context.Context, sellerID string, input CreateProductInput) (*entity.Product, error) {
	if strings.TrimSpace(input.Title) == "" {
		return nil, errors.BadRequest("Title is required", nil)
	}
	if input.Price < 0 {
		return nil, errors.BadRequest("Price cannot be negative", nil)
	}

	product := &entity.Product{
		SellerID: sellerID,
		Title:    strings.TrimSpace(input.Title),
		ImageURL: input.ImageURL,
		Price:    input.Price,
		Status:   entity.ProductStatusWaiting,
	}
	if err := uc.productRepo.Create(ctx, product); err != nil {
		logger.Error("CreateProduct Error: %v", err)
		return nil, err
	}
	return product, nil
}

func (uc *ProductUseCase) GetProduct(ctx context.Context, productID string) (*entity.Product, error) {
	return uc.productRepo.GetByID(ctx, productID)
}

// ReserveProduct moves a product from WAITING to RESERVED for userID. The seller cannot
// reserve their own product.
func (uc *ProductUseCase) ReserveProduct(ctx context.Context, userID, productID string) (*entity.Product, error) {
	if err := uc.checkRate(userID); err != nil {
		return nil, err
	}

	product, err := uc.productRepo.GetByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	if product.SellerID == userID {
		return nil, errors.TransitionRejected("The seller cannot reserve their own product", nil)
	}
	if product.Status != entity.ProductStatusWaiting {
		return nil, errors.TransitionRejected(fmt.Sprintf("Product is %s and cannot be reserved", product.Status), nil)
	}

	return uc.transition(ctx, product, entity.ProductStatusReserved, userID, "reserve")
}

// CompleteTransaction moves a product from RESERVED to COMPLETED. Only the seller may do it.
func (uc *ProductUseCase) CompleteTransaction(ctx context.Context, userID, productID string) (*entity.Product, error) {
	if err := uc.checkRate(userID); err != nil {
		return nil, err
	}

	product, err := uc.productRepo.GetByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	if product.SellerID != userID {
		return nil, errors.TransitionRejected("Only the seller can complete the transaction", nil)
	}
	if product.Status != entity.ProductStatusReserved {
		return nil, errors.TransitionRejected(fmt.Sprintf("Product is %s and cannot be completed", product.Status), nil)
	}

	return uc.transition(ctx, product, entity.ProductStatusCompleted, "", "complete")
}

func (uc *ProductUseCase) transition(ctx context.Context, product *entity.Product, to entity.ProductStatus, buyerID, action string) (*entity.Product, error) {
	updated, err := uc.productRepo.UpdateStatus(ctx, product.ID, product.Status, to, buyerID)
	if err != nil {
		if errors.Is(err, errors.CodeConflict) {
			// Lost a race with another transition.
			return nil, errors.TransitionRejected("Product status changed, refresh and try again", err)
		}
		logger.LogTransitionError(product.ID, action, err)
		return nil, err
	}

	logger.Info("Product %s moved %s -> %s", product.ID, product.Status, updated.Status)
	return updated, nil
}

func (uc *ProductUseCase) checkRate(userID string) error {
	allowed, waitTime := uc.rateLimiter.Allow(userID, ratelimit.ActionTransition)
	if !allowed {
		return errors.TooManyRequests("Rate limit exceeded. Please wait before changing the product status again", fmt.Errorf("retry in %v", waitTime))
	}
	return nil
}
