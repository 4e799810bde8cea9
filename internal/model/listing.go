package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Listing is the slice of a listing document this core reads: identity and
// ownership for role assignment. The listing lifecycle itself is owned by
// the marketplace collaborator.
type Listing struct {
	ID        primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	OwnerID   string             `json:"ownerId" bson:"owner_id"`
	Title     string             `json:"title" bson:"title"`
	CreatedAt time.Time          `json:"createdAt" bson:"created_at"`
}
