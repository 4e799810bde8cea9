package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// SystemSenderID is the reserved sender for automated messages such as
// "member added". System messages are excluded from seen-tracking.
const SystemSenderID = "system"

// Message kinds.
const (
	KindUser   = "user"
	KindSystem = "system"
)

// Message represents a chat message in MongoDB. Messages belong to exactly
// one conversation for their lifetime and are append-only: the only mutation
// after insert is growing SeenBy.
type Message struct {
	ID             primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	ConversationID primitive.ObjectID `json:"conversationId" bson:"conversation_id"`
	SenderID       string             `json:"senderId" bson:"sender_id"`
	Kind           string             `json:"kind" bson:"kind"`
	Body           string             `json:"body,omitempty" bson:"body,omitempty"`
	Attachment     *string            `json:"attachment,omitempty" bson:"attachment,omitempty"`
	SeenBy         []string           `json:"seenBy" bson:"seen_by"`
	IdempotencyKey string             `json:"-" bson:"idempotency_key,omitempty"`
	CreatedAt      time.Time          `json:"createdAt" bson:"created_at"`
}

// IsSystem reports whether the message was authored by the reserved system
// sender.
func (m *Message) IsSystem() bool {
	return m.Kind == KindSystem
}

// SeenByUser reports whether the user has acknowledged this message.
func (m *Message) SeenByUser(userID string) bool {
	for _, id := range m.SeenBy {
		if id == userID {
			return true
		}
	}
	return false
}
