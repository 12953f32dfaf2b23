package entity

import (
	"time"
)

type ProductStatus string

const (
	ProductStatusWaiting   ProductStatus = "WAITING"
	ProductStatusReserved  ProductStatus = "RESERVED"
	ProductStatusCompleted ProductStatus = "COMPLETED"
)

func (s ProductStatus) Valid() bool {
	switch s {
	case ProductStatusWaiting, ProductStatusReserved, ProductStatusCompleted:
		return true
	}
	return false
}

// Next is the only status s may move to. COMPLETED is terminal.
func (s ProductStatus) Next() (ProductStatus, bool) {
	switch s {
	case ProductStatusWaiting:
		return ProductStatusReserved, true
	case ProductStatusReserved:
		return ProductStatusCompleted, true
	}
	return "", false
}

func (s ProductStatus) CanTransitionTo(next ProductStatus) bool {
	n, ok := s.Next()
	return ok && n == next
}

type Product struct {
	ID        string        `json:"id" firestore:"id"`
	SellerID  string        `json:"seller_id" firestore:"sellerId"`
	BuyerID   string        `json:"buyer_id,omitempty" firestore:"buyerId,omitempty"`
	Title     string        `json:"title" firestore:"title"`
	ImageURL  string        `json:"image_url,omitempty" firestore:"imageUrl,omitempty"`
	Price     int64         `json:"price" firestore:"price"`
	Status    ProductStatus `json:"status" firestore:"status"`
	CreatedAt time.Time     `json:"created_at" firestore:"createdAt"`
	UpdatedAt time.Time     `json:"updated_at" firestore:"updatedAt"`
}
