package repo

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cemgunay/coleaseum-webapp-sub000/internal/db"
	"github.com/cemgunay/coleaseum-webapp-sub000/internal/fault"
	"github.com/cemgunay/coleaseum-webapp-sub000/internal/metrics"
	"github.com/cemgunay/coleaseum-webapp-sub000/internal/model"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// AppendInput carries the content of a new message. For KindUser exactly one
// of Body/Attachment must be set; system messages carry only a body.
type AppendInput struct {
	SenderID       string
	Kind           string
	Body           string
	Attachment     *string
	IdempotencyKey string
}

type messageRepository struct {
	con       *mongo.Database
	mongoRepo *db.Repository[model.Message]
	convRepo  *db.Repository[model.Conversation]
	clock     *monotonicClock
	logger    *zap.Logger

	// for idempotency - track in-flight appends
	inFlightOps     map[string]struct{}
	inFlightOpsLock sync.Mutex
}

type MessageRepository interface {
	// Append inserts a message and bumps the owning conversation's
	// last_message_at and message sequence. The message is retrievable
	// before the conversation bump becomes visible, never the other way
	// around.
	Append(ctx context.Context, conversationID string, in AppendInput) (*model.Message, error)

	// MarkSeen adds the user to the seen set of the conversation's latest
	// user message. Idempotent: returns (nil, nil) when there is nothing to
	// mark (no messages, or already seen).
	MarkSeen(ctx context.Context, conversationID, userID string) (*model.Message, error)

	// ListVisible returns the messages the user may see, oldest first:
	// everything created after their most recent soft-delete of the
	// conversation, or everything if they never deleted it.
	ListVisible(ctx context.Context, conv *model.Conversation, userID string) ([]model.Message, error)

	// ListVisiblePage is the paginated variant used by the read API.
	ListVisiblePage(ctx context.Context, conv *model.Conversation, userID string, page int64) (*db.PaginatedResult[model.Message], error)

	// LatestVisible returns the newest message visible to the user, or nil
	// when the user's visibility window is empty.
	LatestVisible(ctx context.Context, conv *model.Conversation, userID string) (*model.Message, error)
}

func NewMessageRepository(mongo *mongo.Database, repo *db.Repository[model.Message], convRepo *db.Repository[model.Conversation], logger *zap.Logger) MessageRepository {
	return &messageRepository{
		con:         mongo,
		mongoRepo:   repo,
		convRepo:    convRepo,
		clock:       newMonotonicClock(),
		logger:      logger,
		inFlightOps: make(map[string]struct{}),
	}
}

// -----------------------------------------------------------------------------
// Append
// -----------------------------------------------------------------------------

func (m *messageRepository) Append(ctx context.Context, conversationID string, in AppendInput) (*model.Message, error) {
	if err := validateAppend(in); err != nil {
		return nil, err
	}

	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	convObjectID, err := primitive.ObjectIDFromHex(conversationID)
	if err != nil {
		return nil, fault.ErrNotFound
	}

	exists, err := m.convRepo.Exists(ctx, bson.M{"_id": convObjectID})
	if err != nil {
		return nil, translateErr(err)
	}
	if !exists {
		return nil, fault.ErrNotFound
	}

	if in.IdempotencyKey != "" {
		key := fmt.Sprintf("%s:%s", conversationID, in.IdempotencyKey)
		if !m.tryAcquireInFlight(key) {
			return nil, fmt.Errorf("%w: duplicate append in progress", fault.ErrTransientStore)
		}
		defer m.releaseInFlight(key)

		filter := bson.M{"conversation_id": convObjectID, "idempotency_key": in.IdempotencyKey}
		existing, err := m.mongoRepo.FindOne(ctx, filter)
		if err == nil {
			m.logger.Debug("append replayed via idempotency key",
				zap.String("conversation_id", conversationID),
				zap.String("message_id", existing.ID.Hex()),
			)
			return existing, nil
		}
		if !errors.Is(err, mongo.ErrNoDocuments) {
			return nil, translateErr(err)
		}
	}

	msg := model.Message{
		ID:             primitive.NewObjectID(),
		ConversationID: convObjectID,
		SenderID:       in.SenderID,
		Kind:           in.Kind,
		Body:           in.Body,
		Attachment:     in.Attachment,
		SeenBy:         []string{in.SenderID},
		IdempotencyKey: in.IdempotencyKey,
		CreatedAt:      m.clock.Next(),
	}

	if err := m.insert(ctx, &msg); err != nil {
		return nil, err
	}

	// Bump the conversation only after the message is retrievable: a reader
	// must never observe last_message_at ahead of the message itself. $max
	// keeps last_message_at monotone under concurrent appends.
	update := bson.M{
		"$push": bson.M{"message_ids": msg.ID},
		"$max":  bson.M{"last_message_at": msg.CreatedAt},
		"$set":  bson.M{"updated_at": msg.CreatedAt},
		"$inc":  bson.M{"revision": 1},
	}
	if _, err := m.convRepo.UpdateRaw(ctx, bson.M{"_id": convObjectID}, update); err != nil {
		m.logger.Error("failed to bump conversation after append",
			zap.String("conversation_id", conversationID),
			zap.String("message_id", msg.ID.Hex()),
			zap.Error(err),
		)
		return nil, translateErr(err)
	}

	metrics.MessagesAppended.Inc()
	return &msg, nil
}

func (m *messageRepository) insert(ctx context.Context, msg *model.Message) error {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			if err := waitForRetry(ctx, attempt); err != nil {
				return translateErr(lastErr)
			}
			metrics.StoreRetries.Inc()
		}

		_, err := m.mongoRepo.Create(ctx, *msg)
		if err == nil {
			m.logger.Info("message inserted",
				zap.String("message_id", msg.ID.Hex()),
				zap.String("conversation_id", msg.ConversationID.Hex()),
				zap.String("kind", msg.Kind),
				zap.Int("attempt", attempt+1),
			)
			return nil
		}

		lastErr = err
		if !isRetryableError(err) {
			break
		}

		m.logger.Warn("insert attempt failed, retrying",
			zap.Error(err),
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", maxRetries),
		)
	}

	m.logger.Error("failed to insert message after all retries",
		zap.Error(lastErr),
		zap.String("conversation_id", msg.ConversationID.Hex()),
	)
	return translateErr(fmt.Errorf("insert message failed: %w", lastErr))
}

func validateAppend(in AppendInput) error {
	if in.SenderID == "" {
		return fault.ErrUnauthorized
	}

	switch in.Kind {
	case model.KindUser:
		hasBody := in.Body != ""
		hasAttachment := in.Attachment != nil && *in.Attachment != ""
		if !hasBody && !hasAttachment {
			return fault.NewValidation("body", "a message needs a body or an attachment")
		}
	case model.KindSystem:
		if in.SenderID != model.SystemSenderID {
			return fault.NewValidation("sender", "system messages must use the reserved system sender")
		}
		if in.Body == "" {
			return fault.NewValidation("body", "required for system messages")
		}
	default:
		return fault.NewValidation("kind", "must be user or system")
	}
	return nil
}

// -----------------------------------------------------------------------------
// MarkSeen
// -----------------------------------------------------------------------------

func (m *messageRepository) MarkSeen(ctx context.Context, conversationID, userID string) (*model.Message, error) {
	if userID == "" {
		return nil, fault.ErrUnauthorized
	}

	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	convObjectID, err := primitive.ObjectIDFromHex(conversationID)
	if err != nil {
		return nil, fault.ErrNotFound
	}

	// Seen is a high-water mark on the newest user message only; system
	// messages are outside seen-tracking.
	latest, err := m.mongoRepo.FindOneSorted(ctx,
		bson.M{"conversation_id": convObjectID, "kind": model.KindUser},
		bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}},
	)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil // nothing to mark
		}
		return nil, translateErr(err)
	}

	// Conditional $addToSet: matches only while the user is absent, so a
	// repeated call finds nothing to update and stays silent.
	filter := bson.M{"_id": latest.ID, "seen_by": bson.M{"$ne": userID}}
	update := bson.M{"$addToSet": bson.M{"seen_by": userID}}

	updated, err := m.mongoRepo.FindOneAndUpdateRaw(ctx, filter, update)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil // already seen
		}
		return nil, translateErr(err)
	}

	m.logger.Info("message seen",
		zap.String("conversation_id", conversationID),
		zap.String("message_id", updated.ID.Hex()),
		zap.String("user_id", userID),
	)
	return updated, nil
}

// -----------------------------------------------------------------------------
// ListVisible
// -----------------------------------------------------------------------------

func (m *messageRepository) ListVisible(ctx context.Context, conv *model.Conversation, userID string) ([]model.Message, error) {
	ctx, cancel := ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	msgs, err := m.mongoRepo.FindAllSorted(ctx,
		m.visibilityFilter(conv, userID),
		bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}},
	)
	if err != nil {
		return nil, translateErr(err)
	}
	return msgs, nil
}

func (m *messageRepository) ListVisiblePage(ctx context.Context, conv *model.Conversation, userID string, page int64) (*db.PaginatedResult[model.Message], error) {
	ctx, cancel := ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	result, err := m.mongoRepo.FindWithPagination(ctx, m.visibilityFilter(conv, userID), db.PaginationParams{
		Page:     page,
		PageSize: 15,
		SortBy:   "created_at",
		SortDesc: false,
	})
	if err != nil {
		return nil, translateErr(err)
	}
	return result, nil
}

func (m *messageRepository) LatestVisible(ctx context.Context, conv *model.Conversation, userID string) (*model.Message, error) {
	ctx, cancel := ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	latest, err := m.mongoRepo.FindOneSorted(ctx,
		m.visibilityFilter(conv, userID),
		bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}},
	)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, translateErr(err)
	}
	return latest, nil
}

func (m *messageRepository) visibilityFilter(conv *model.Conversation, userID string) bson.M {
	f := db.NewFilter().Eq("conversation_id", conv.ID)
	if deletedAt, ok := conv.DeletedAt(userID); ok {
		f.Gt("created_at", deletedAt)
	}
	return f.Build()
}

// -----------------------------------------------------------------------------
// Private Helper Methods
// -----------------------------------------------------------------------------

func (m *messageRepository) tryAcquireInFlight(key string) bool {
	m.inFlightOpsLock.Lock()
	defer m.inFlightOpsLock.Unlock()

	if _, exists := m.inFlightOps[key]; exists {
		return false
	}
	m.inFlightOps[key] = struct{}{}
	return true
}

func (m *messageRepository) releaseInFlight(key string) {
	m.inFlightOpsLock.Lock()
	defer m.inFlightOpsLock.Unlock()
	delete(m.inFlightOps, key)
}
