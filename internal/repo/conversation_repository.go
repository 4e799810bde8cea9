package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cemgunay/coleaseum-webapp-sub000/internal/db"
	"github.com/cemgunay/coleaseum-webapp-sub000/internal/fault"
	"github.com/cemgunay/coleaseum-webapp-sub000/internal/model"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

type conversationRepository struct {
	con       *mongo.Database
	mongoRepo *db.Repository[model.Conversation]
	logger    *zap.Logger
}

type ConversationRepository interface {
	// CreateDirect returns the existing direct conversation between the two
	// users scoped to the same listing if one exists, otherwise creates one.
	// The second return value reports whether a new document was created.
	CreateDirect(ctx context.Context, initiatorID, otherUserID string, listing *model.Listing) (*model.Conversation, bool, error)

	// CreateGroup creates a named group with the initiator plus at least two
	// members, assigning roles against the optional listing owner.
	CreateGroup(ctx context.Context, initiatorID string, memberIDs []string, name string, listing *model.Listing) (*model.Conversation, error)

	GetByID(ctx context.Context, conversationID string) (*model.Conversation, error)

	// AddMembers appends the given users as subtenants. Members already in
	// the roster are no-ops. Returns the ids actually added and the updated
	// conversation. The requester must be a participant.
	AddMembers(ctx context.Context, conversationID, requesterID string, memberIDs []string) ([]string, *model.Conversation, error)

	// ReassignListing points the conversation at a new listing and recomputes
	// every participant's role against its owner.
	ReassignListing(ctx context.Context, conversationID, requesterID string, listing *model.Listing) (*model.Conversation, error)

	// SoftDelete stamps the user's per-user hide timestamp. Other users'
	// views are unaffected.
	SoftDelete(ctx context.Context, conversationID, userID string) error

	// GetVisibleFor returns the user's inbox: conversations where they are a
	// participant and which they either never soft-deleted or which received
	// a message after their most recent delete. Newest activity first.
	GetVisibleFor(ctx context.Context, userID string) ([]model.Conversation, error)
}

func NewConversationRepository(mongo *mongo.Database, repo *db.Repository[model.Conversation], logger *zap.Logger) ConversationRepository {
	return &conversationRepository{
		con:       mongo,
		mongoRepo: repo,
		logger:    logger,
	}
}

// -----------------------------------------------------------------------------
// CreateDirect
// -----------------------------------------------------------------------------

func (r *conversationRepository) CreateDirect(ctx context.Context, initiatorID, otherUserID string, listing *model.Listing) (*model.Conversation, bool, error) {
	if otherUserID == "" {
		return nil, false, fault.NewValidation("otherUser", "required")
	}
	if otherUserID == initiatorID {
		return nil, false, fault.NewValidation("otherUser", "cannot start a conversation with yourself")
	}

	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	// Dedup key: the unordered pair, non-group, same listing scope.
	filter := bson.M{
		"is_group":        false,
		"participant_ids": bson.M{"$all": []string{initiatorID, otherUserID}, "$size": 2},
	}
	if listing != nil {
		filter["listing_id"] = listing.ID
	} else {
		filter["listing_id"] = bson.M{"$exists": false}
	}

	existing, err := r.mongoRepo.FindOne(ctx, filter)
	if err == nil {
		r.logger.Debug("direct conversation already exists",
			zap.String("conversation_id", existing.ID.Hex()),
			zap.String("initiator", initiatorID),
			zap.String("other_user", otherUserID),
		)
		return existing, false, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, translateErr(err)
	}

	listingOwner := ""
	var listingID *primitive.ObjectID
	if listing != nil {
		listingOwner = listing.OwnerID
		id := listing.ID
		listingID = &id
	}

	now := time.Now().UTC()
	conv := model.Conversation{
		ID:      primitive.NewObjectID(),
		IsGroup: false,
		Participants: []model.Participant{
			{UserID: initiatorID, Role: model.AssignRole(listingOwner, initiatorID, otherUserID), JoinedAt: now},
			{UserID: otherUserID, Role: model.AssignRole(listingOwner, otherUserID, otherUserID), JoinedAt: now},
		},
		ParticipantIds: []string{initiatorID, otherUserID},
		ListingID:      listingID,
		MessageIds:     []primitive.ObjectID{},
		LastMessageAt:  now,
		CreatedBy:      initiatorID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := r.insert(ctx, &conv); err != nil {
		return nil, false, err
	}
	return &conv, true, nil
}

// -----------------------------------------------------------------------------
// CreateGroup
// -----------------------------------------------------------------------------

func (r *conversationRepository) CreateGroup(ctx context.Context, initiatorID string, memberIDs []string, name string, listing *model.Listing) (*model.Conversation, error) {
	if name == "" {
		return nil, fault.NewValidation("name", "required for group conversations")
	}

	// Dedupe members and drop the initiator before checking the floor.
	seen := map[string]struct{}{initiatorID: {}}
	members := make([]string, 0, len(memberIDs))
	for _, id := range memberIDs {
		if id == "" {
			return nil, fault.NewValidation("members", "member id cannot be empty")
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		members = append(members, id)
	}
	if len(members) < 2 {
		return nil, fault.NewValidation("members", "group conversations require at least 2 members besides the creator")
	}

	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	listingOwner := ""
	var listingID *primitive.ObjectID
	if listing != nil {
		listingOwner = listing.OwnerID
		id := listing.ID
		listingID = &id
	}

	now := time.Now().UTC()
	participantIDs := append([]string{initiatorID}, members...)
	participants := make([]model.Participant, 0, len(participantIDs))
	for _, id := range participantIDs {
		participants = append(participants, model.Participant{
			UserID:   id,
			Role:     model.AssignRole(listingOwner, id, initiatorID),
			JoinedAt: now,
		})
	}

	conv := model.Conversation{
		ID:             primitive.NewObjectID(),
		IsGroup:        true,
		Name:           name,
		Participants:   participants,
		ParticipantIds: participantIDs,
		ListingID:      listingID,
		MessageIds:     []primitive.ObjectID{},
		LastMessageAt:  now,
		CreatedBy:      initiatorID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := r.insert(ctx, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

func (r *conversationRepository) insert(ctx context.Context, conv *model.Conversation) error {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			if err := waitForRetry(ctx, attempt); err != nil {
				return translateErr(lastErr)
			}
		}

		_, err := r.mongoRepo.Create(ctx, *conv)
		if err == nil {
			r.logger.Info("conversation created",
				zap.String("conversation_id", conv.ID.Hex()),
				zap.Bool("is_group", conv.IsGroup),
				zap.Int("participants", len(conv.ParticipantIds)),
				zap.Int("attempt", attempt+1),
			)
			return nil
		}

		lastErr = err
		if !isRetryableError(err) {
			break
		}

		r.logger.Warn("conversation insert failed, retrying",
			zap.Error(err),
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", maxRetries),
		)
	}

	r.logger.Error("failed to insert conversation", zap.Error(lastErr))
	return translateErr(fmt.Errorf("insert conversation failed: %w", lastErr))
}

// -----------------------------------------------------------------------------
// GetByID
// -----------------------------------------------------------------------------

func (r *conversationRepository) GetByID(ctx context.Context, conversationID string) (*model.Conversation, error) {
	if conversationID == "" {
		return nil, fault.NewValidation("conversationId", "required")
	}

	ctx, cancel := ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	if _, err := primitive.ObjectIDFromHex(conversationID); err != nil {
		return nil, fault.ErrNotFound
	}

	conv, err := r.mongoRepo.FindByID(ctx, conversationID)
	if err != nil {
		return nil, translateErr(err)
	}
	return conv, nil
}

// -----------------------------------------------------------------------------
// AddMembers
// -----------------------------------------------------------------------------

func (r *conversationRepository) AddMembers(ctx context.Context, conversationID, requesterID string, memberIDs []string) ([]string, *model.Conversation, error) {
	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	conv, err := r.GetByID(ctx, conversationID)
	if err != nil {
		return nil, nil, err
	}
	if !conv.HasParticipant(requesterID) {
		return nil, nil, fault.ErrNotParticipant
	}

	now := time.Now().UTC()
	added := make([]string, 0, len(memberIDs))
	for _, memberID := range memberIDs {
		if memberID == "" {
			return nil, nil, fault.NewValidation("members", "member id cannot be empty")
		}

		// Conditional per-member update: matches only while the member is
		// absent, so a concurrent duplicate add is a no-op.
		filter := bson.M{
			"_id":             conv.ID,
			"participant_ids": bson.M{"$ne": memberID},
		}
		update := bson.M{
			"$push":     bson.M{"participants": model.Participant{UserID: memberID, Role: model.RoleSubtenant, JoinedAt: now}},
			"$addToSet": bson.M{"participant_ids": memberID},
			"$set":      bson.M{"updated_at": now},
			"$inc":      bson.M{"revision": 1},
		}

		result, err := r.mongoRepo.UpdateRaw(ctx, filter, update)
		if err != nil {
			return nil, nil, translateErr(err)
		}
		if result.ModifiedCount > 0 {
			added = append(added, memberID)
		}
	}

	updated, err := r.GetByID(ctx, conversationID)
	if err != nil {
		return nil, nil, err
	}

	r.logger.Info("members added",
		zap.String("conversation_id", conversationID),
		zap.String("requester", requesterID),
		zap.Int("requested", len(memberIDs)),
		zap.Int("added", len(added)),
	)
	return added, updated, nil
}

// -----------------------------------------------------------------------------
// ReassignListing
// -----------------------------------------------------------------------------

func (r *conversationRepository) ReassignListing(ctx context.Context, conversationID, requesterID string, listing *model.Listing) (*model.Conversation, error) {
	if listing == nil {
		return nil, fault.ErrNotFound
	}

	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	// Whole-roster rewrite: the only read-modify-write in this store, guarded
	// by a revision check so a racing member-add or message append is not
	// silently overwritten.
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			if err := waitForRetry(ctx, attempt); err != nil {
				return nil, fmt.Errorf("%w: reassign listing contention", fault.ErrTransientStore)
			}
		}

		conv, err := r.GetByID(ctx, conversationID)
		if err != nil {
			return nil, err
		}
		if !conv.HasParticipant(requesterID) {
			return nil, fault.ErrNotParticipant
		}

		participants := make([]model.Participant, len(conv.Participants))
		for i, p := range conv.Participants {
			participants[i] = p
			participants[i].Role = model.AssignRole(listing.OwnerID, p.UserID, conv.CreatedBy)
		}

		now := time.Now().UTC()
		filter := bson.M{"_id": conv.ID, "revision": conv.Revision}
		update := bson.M{
			"$set": bson.M{
				"participants": participants,
				"listing_id":   listing.ID,
				"updated_at":   now,
			},
			"$inc": bson.M{"revision": 1},
		}

		result, err := r.mongoRepo.UpdateRaw(ctx, filter, update)
		if err != nil {
			return nil, translateErr(err)
		}
		if result.MatchedCount > 0 {
			r.logger.Info("listing reassigned",
				zap.String("conversation_id", conversationID),
				zap.String("listing_id", listing.ID.Hex()),
				zap.String("listing_owner", listing.OwnerID),
			)
			return r.GetByID(ctx, conversationID)
		}

		r.logger.Warn("revision conflict on listing reassignment, retrying",
			zap.String("conversation_id", conversationID),
			zap.Int64("revision", conv.Revision),
			zap.Int("attempt", attempt+1),
		)
	}

	return nil, fmt.Errorf("%w: reassign listing contention", fault.ErrTransientStore)
}

// -----------------------------------------------------------------------------
// SoftDelete
// -----------------------------------------------------------------------------

func (r *conversationRepository) SoftDelete(ctx context.Context, conversationID, userID string) error {
	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(conversationID)
	if err != nil {
		return fault.ErrNotFound
	}

	now := time.Now().UTC()
	filter := bson.M{"_id": objectID, "participant_ids": userID}
	update := bson.M{
		"$set": bson.M{
			"deleted_by." + userID: now,
			"updated_at":           now,
		},
		"$inc": bson.M{"revision": 1},
	}

	result, err := r.mongoRepo.UpdateRaw(ctx, filter, update)
	if err != nil {
		return translateErr(err)
	}
	if result.MatchedCount == 0 {
		// Distinguish a missing conversation from a non-participant caller.
		exists, err := r.mongoRepo.Exists(ctx, bson.M{"_id": objectID})
		if err != nil {
			return translateErr(err)
		}
		if !exists {
			return fault.ErrNotFound
		}
		return fault.ErrNotParticipant
	}

	r.logger.Info("conversation soft-deleted",
		zap.String("conversation_id", conversationID),
		zap.String("user_id", userID),
	)
	return nil
}

// -----------------------------------------------------------------------------
// GetVisibleFor
// -----------------------------------------------------------------------------

func (r *conversationRepository) GetVisibleFor(ctx context.Context, userID string) ([]model.Conversation, error) {
	if userID == "" {
		return nil, fault.ErrUnauthorized
	}

	ctx, cancel := ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	deletedField := "deleted_by." + userID
	filter := db.NewFilter().
		Eq("participant_ids", userID).
		Or(
			bson.M{deletedField: bson.M{"$exists": false}},
			// A message after the user's delete resurrects the conversation.
			bson.M{"$expr": bson.M{"$gt": bson.A{"$last_message_at", "$" + deletedField}}},
		).
		Build()

	conversations, err := r.mongoRepo.FindAllSorted(ctx, filter, bson.D{{Key: "last_message_at", Value: -1}})
	if err != nil {
		return nil, translateErr(err)
	}

	r.logger.Debug("inbox conversations retrieved",
		zap.String("user_id", userID),
		zap.Int("count", len(conversations)),
	)
	return conversations, nil
}
