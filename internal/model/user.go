package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// User represents a user document in MongoDB. Identity is verified by the
// auth collaborator; this core only reads users to validate membership.
type User struct {
	ID        primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	UserID    string             `json:"userId" bson:"user_id"`
	Username  string             `json:"username" bson:"username"`
	Email     string             `json:"email" bson:"email"`
	Avatar    string             `json:"avatar" bson:"avatar"`
	IsActive  bool               `json:"isActive" bson:"is_active"`
	CreatedAt time.Time          `json:"createdAt" bson:"created_at"`
	UpdatedAt *time.Time         `json:"updatedAt" bson:"updated_at"`
}
