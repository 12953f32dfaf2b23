package entity

import (
	"time"
)

type User struct {
	ID        string    `json:"id" firestore:"id"`
	Nickname  string    `json:"nickname" firestore:"nickname"`
	Email     string    `json:"email,omitempty" firestore:"email,omitempty"`
	CreatedAt time.Time `json:"created_at" firestore:"createdAt"`
}
