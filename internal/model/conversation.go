package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Conversation represents a chat thread in MongoDB, optionally scoped to a
// listing. Conversations are never hard-deleted; each user carries their own
// hide timestamp in DeletedBy.
type Conversation struct {
	ID             primitive.ObjectID   `json:"id" bson:"_id,omitempty"`
	IsGroup        bool                 `json:"isGroup" bson:"is_group"`
	Name           string               `json:"name,omitempty" bson:"name,omitempty"`
	Participants   []Participant        `json:"participants" bson:"participants"`
	ParticipantIds []string             `json:"participantIds" bson:"participant_ids"`
	ListingID      *primitive.ObjectID  `json:"listingId,omitempty" bson:"listing_id,omitempty"`
	MessageIds     []primitive.ObjectID `json:"messageIds" bson:"message_ids"`
	LastMessageAt  time.Time            `json:"lastMessageAt" bson:"last_message_at"`
	DeletedBy      map[string]time.Time `json:"deletedBy,omitempty" bson:"deleted_by,omitempty"`
	CreatedBy      string               `json:"createdBy" bson:"created_by"`
	CreatedAt      time.Time            `json:"createdAt" bson:"created_at"`
	UpdatedAt      time.Time            `json:"updatedAt" bson:"updated_at"`
	Revision       int64                `json:"-" bson:"revision"`
}

// Participant represents a user in a conversation with their role relative
// to the associated listing.
type Participant struct {
	UserID   string    `json:"userId" bson:"user_id"`
	Role     Role      `json:"role" bson:"role"`
	JoinedAt time.Time `json:"joinedAt" bson:"joined_at"`
}

// HasParticipant reports whether the user is in the participant roster.
func (c *Conversation) HasParticipant(userID string) bool {
	for _, id := range c.ParticipantIds {
		if id == userID {
			return true
		}
	}
	return false
}

// DeletedAt returns the user's soft-delete timestamp, if any.
func (c *Conversation) DeletedAt(userID string) (time.Time, bool) {
	if c.DeletedBy == nil {
		return time.Time{}, false
	}
	t, ok := c.DeletedBy[userID]
	return t, ok
}

// VisibleTo reports whether the conversation should appear in the user's
// inbox: the user is a participant and either never soft-deleted it or a
// message arrived after their most recent delete.
func (c *Conversation) VisibleTo(userID string) bool {
	if !c.HasParticipant(userID) {
		return false
	}
	deletedAt, ok := c.DeletedAt(userID)
	if !ok {
		return true
	}
	return c.LastMessageAt.After(deletedAt)
}
