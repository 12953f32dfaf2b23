package entity

import "time"

// ChatRoom is a buyer-seller conversation about one product. The product fields are
// denormalised for display; ProductStatus is a snapshot and may be stale on clients.
type ChatRoom struct {
	ID              string        `json:"id" firestore:"id"`
	ProductID       string        `json:"product_id" firestore:"productId"`
	BuyerID         string        `json:"buyer_id" firestore:"buyerId"`
	SellerID        string        `json:"seller_id" firestore:"sellerId"`
	ProductStatus   ProductStatus `json:"product_status" firestore:"productStatus"`
	ProductTitle    string        `json:"product_title" firestore:"productTitle"`
	ProductImageURL string        `json:"product_image_url,omitempty" firestore:"productImageUrl,omitempty"`
	BuyerNickname   string        `json:"buyer_nickname" firestore:"buyerNickname"`
	SellerNickname  string        `json:"seller_nickname" firestore:"sellerNickname"`
	CreatedAt       time.Time     `json:"created_at" firestore:"createdAt"`
	LastMessage     *Message      `json:"last_message,omitempty" firestore:"-"`
}

func (r *ChatRoom) IsParticipant(userID string) bool {
	return userID != "" && (userID == r.BuyerID || userID == r.SellerID)
}

// CounterpartNickname is the nickname of whoever userID is talking to.
func (r *ChatRoom) CounterpartNickname(userID string) string {
	if userID == r.SellerID {
		return r.BuyerNickname
	}
	return r.SellerNickname
}
