package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cemgunay/coleaseum-webapp-sub000/internal/db"
	"github.com/cemgunay/coleaseum-webapp-sub000/internal/fault"
	"github.com/cemgunay/coleaseum-webapp-sub000/internal/model"
	"github.com/cemgunay/coleaseum-webapp-sub000/internal/relay"
	"github.com/cemgunay/coleaseum-webapp-sub000/internal/repo"
	"github.com/cemgunay/coleaseum-webapp-sub000/internal/visibility"
	"go.uber.org/zap"
)

// ConversationView is the full read model for an open conversation: visible
// messages clustered for display plus the single "seen by" marker.
type ConversationView struct {
	Conversation *model.Conversation `json:"conversation"`
	Groups       [][]model.Message   `json:"groups"`
	LastSeen     *model.Message      `json:"lastSeenMessage,omitempty"`
}

// ChatService is the public surface of the conversation synchronization
// core. Every mutation commits to the stores first and then fires the relay
// synchronously; relay failures degrade to eventual consistency and are
// never surfaced.
type ChatService interface {
	CreateDirect(ctx context.Context, userID, otherUserID, listingID string) (*model.Conversation, error)
	CreateGroup(ctx context.Context, userID string, memberIDs []string, name, listingID string) (*model.Conversation, error)
	SendMessage(ctx context.Context, userID, conversationID, body string, attachment *string, idempotencyKey string) (*model.Message, error)
	MarkSeen(ctx context.Context, userID, conversationID string) (*model.Message, error)
	AddMembers(ctx context.Context, userID, conversationID string, memberIDs []string) (*model.Conversation, error)
	ReassignListing(ctx context.Context, userID, conversationID, listingID string) (*model.Conversation, error)
	DeleteConversation(ctx context.Context, userID, conversationID string) error
	Inbox(ctx context.Context, userID string) ([]visibility.InboxEntry, error)
	UnseenCount(ctx context.Context, userID string) (int, error)
	ConversationMessages(ctx context.Context, userID, conversationID string) (*ConversationView, error)
	ConversationMessagesPage(ctx context.Context, userID, conversationID string, page int64) (*db.PaginatedResult[model.Message], error)

	// CanSubscribe implements the hub's subscription gate.
	CanSubscribe(ctx context.Context, userID, channel string) bool
}

type chatService struct {
	conversations repo.ConversationRepository
	messages      repo.MessageRepository
	listings      repo.ListingRepository
	users         repo.UserRepository
	relay         *relay.Relay
	logger        *zap.Logger
}

func NewChatService(
	conversations repo.ConversationRepository,
	messages repo.MessageRepository,
	listings repo.ListingRepository,
	users repo.UserRepository,
	relay *relay.Relay,
	logger *zap.Logger,
) ChatService {
	return &chatService{
		conversations: conversations,
		messages:      messages,
		listings:      listings,
		users:         users,
		relay:         relay,
		logger:        logger,
	}
}

// -----------------------------------------------------------------------------
// Conversation creation
// -----------------------------------------------------------------------------

func (s *chatService) CreateDirect(ctx context.Context, userID, otherUserID, listingID string) (*model.Conversation, error) {
	if userID == "" {
		return nil, fault.ErrUnauthorized
	}
	if otherUserID == "" {
		return nil, fault.NewValidation("otherUser", "required")
	}

	if _, err := s.users.GetByUserID(ctx, otherUserID); err != nil {
		if errors.Is(err, fault.ErrNotFound) {
			return nil, fault.NewValidation("otherUser", "unknown user")
		}
		return nil, err
	}

	listing, err := s.resolveListing(ctx, listingID)
	if err != nil {
		return nil, err
	}

	conv, created, err := s.conversations.CreateDirect(ctx, userID, otherUserID, listing)
	if err != nil {
		return nil, err
	}
	if created {
		s.relay.ConversationNew(ctx, conv, conv.ParticipantIds)
	}
	return conv, nil
}

func (s *chatService) CreateGroup(ctx context.Context, userID string, memberIDs []string, name, listingID string) (*model.Conversation, error) {
	if userID == "" {
		return nil, fault.ErrUnauthorized
	}

	ok, err := s.users.AllExist(ctx, memberIDs)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fault.NewValidation("members", "one or more members are unknown users")
	}

	listing, err := s.resolveListing(ctx, listingID)
	if err != nil {
		return nil, err
	}

	conv, err := s.conversations.CreateGroup(ctx, userID, memberIDs, name, listing)
	if err != nil {
		return nil, err
	}

	s.relay.ConversationNew(ctx, conv, conv.ParticipantIds)
	return conv, nil
}

// resolveListing turns an optional listing id into the collaborator's
// {id, owner} record. A bad id on a creation path is the client's mistake.
func (s *chatService) resolveListing(ctx context.Context, listingID string) (*model.Listing, error) {
	if listingID == "" {
		return nil, nil
	}
	listing, err := s.listings.GetByID(ctx, listingID)
	if err != nil {
		if errors.Is(err, fault.ErrNotFound) {
			return nil, fault.NewValidation("listingId", "unknown listing")
		}
		return nil, err
	}
	return listing, nil
}

// -----------------------------------------------------------------------------
// Messaging
// -----------------------------------------------------------------------------

func (s *chatService) SendMessage(ctx context.Context, userID, conversationID, body string, attachment *string, idempotencyKey string) (*model.Message, error) {
	if userID == "" {
		return nil, fault.ErrUnauthorized
	}

	conv, err := s.conversations.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(userID) {
		return nil, fault.ErrNotParticipant
	}

	msg, err := s.messages.Append(ctx, conversationID, repo.AppendInput{
		SenderID:       userID,
		Kind:           model.KindUser,
		Body:           body,
		Attachment:     attachment,
		IdempotencyKey: idempotencyKey,
	})
	if err != nil {
		return nil, err
	}

	if msg.CreatedAt.After(conv.LastMessageAt) {
		conv.LastMessageAt = msg.CreatedAt
	}

	s.relay.MessageNew(ctx, msg)
	s.relay.ConversationUpdate(ctx, conv, msg, conv.ParticipantIds)
	return msg, nil
}

func (s *chatService) MarkSeen(ctx context.Context, userID, conversationID string) (*model.Message, error) {
	if userID == "" {
		return nil, fault.ErrUnauthorized
	}

	conv, err := s.conversations.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(userID) {
		return nil, fault.ErrNotParticipant
	}

	msg, err := s.messages.MarkSeen(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	if msg == nil {
		// nothing to mark: empty conversation or already seen
		return nil, nil
	}

	s.relay.MessageUpdate(ctx, msg)
	s.relay.ConversationUpdate(ctx, conv, msg, conv.ParticipantIds)
	return msg, nil
}

// -----------------------------------------------------------------------------
// Membership and listing
// -----------------------------------------------------------------------------

func (s *chatService) AddMembers(ctx context.Context, userID, conversationID string, memberIDs []string) (*model.Conversation, error) {
	if userID == "" {
		return nil, fault.ErrUnauthorized
	}

	ok, err := s.users.AllExist(ctx, memberIDs)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fault.NewValidation("members", "one or more members are unknown users")
	}

	added, conv, err := s.conversations.AddMembers(ctx, conversationID, userID, memberIDs)
	if err != nil {
		return nil, err
	}
	if len(added) == 0 {
		return conv, nil
	}

	body := fmt.Sprintf("%s added %s to the conversation", s.displayName(ctx, userID), s.displayNames(ctx, added))
	conv = s.postSystemMessage(ctx, conv, body)

	s.relay.ConversationNew(ctx, conv, added)
	return conv, nil
}

func (s *chatService) ReassignListing(ctx context.Context, userID, conversationID, listingID string) (*model.Conversation, error) {
	if userID == "" {
		return nil, fault.ErrUnauthorized
	}

	listing, err := s.listings.GetByID(ctx, listingID)
	if err != nil {
		return nil, err
	}

	conv, err := s.conversations.ReassignListing(ctx, conversationID, userID, listing)
	if err != nil {
		return nil, err
	}

	body := fmt.Sprintf("This conversation is now about \"%s\"", listing.Title)
	conv = s.postSystemMessage(ctx, conv, body)

	s.relay.ConversationUpdate(ctx, conv, nil, conv.ParticipantIds)
	return conv, nil
}

// postSystemMessage appends a system message and relays it. System messages
// ride on the regular append path, so they bump last_message_at and
// resurrect the conversation for users who had soft-deleted it.
func (s *chatService) postSystemMessage(ctx context.Context, conv *model.Conversation, body string) *model.Conversation {
	msg, err := s.messages.Append(ctx, conv.ID.Hex(), repo.AppendInput{
		SenderID: model.SystemSenderID,
		Kind:     model.KindSystem,
		Body:     body,
	})
	if err != nil {
		// The roster mutation already committed; a lost system message is
		// cosmetic. Log and move on.
		s.logger.Warn("failed to append system message",
			zap.String("conversation_id", conv.ID.Hex()),
			zap.Error(err),
		)
		return conv
	}

	if msg.CreatedAt.After(conv.LastMessageAt) {
		conv.LastMessageAt = msg.CreatedAt
	}
	s.relay.MessageNew(ctx, msg)
	s.relay.ConversationUpdate(ctx, conv, msg, conv.ParticipantIds)
	return conv
}

func (s *chatService) displayName(ctx context.Context, userID string) string {
	user, err := s.users.GetByUserID(ctx, userID)
	if err != nil || user.Username == "" {
		return userID
	}
	return user.Username
}

func (s *chatService) displayNames(ctx context.Context, userIDs []string) string {
	names := make([]string, len(userIDs))
	for i, id := range userIDs {
		names[i] = s.displayName(ctx, id)
	}
	return strings.Join(names, ", ")
}

// -----------------------------------------------------------------------------
// Deletion and reads
// -----------------------------------------------------------------------------

func (s *chatService) DeleteConversation(ctx context.Context, userID, conversationID string) error {
	if userID == "" {
		return fault.ErrUnauthorized
	}

	if err := s.conversations.SoftDelete(ctx, conversationID, userID); err != nil {
		return err
	}

	conv, err := s.conversations.GetByID(ctx, conversationID)
	if err != nil {
		// The delete committed; the deleting user's other devices will catch
		// up on their next refetch.
		s.logger.Warn("soft delete committed but refetch failed",
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
		return nil
	}

	// Only the deleting user's view changed.
	s.relay.ConversationUpdate(ctx, conv, nil, []string{userID})
	return nil
}

func (s *chatService) Inbox(ctx context.Context, userID string) ([]visibility.InboxEntry, error) {
	if userID == "" {
		return nil, fault.ErrUnauthorized
	}

	conversations, err := s.conversations.GetVisibleFor(ctx, userID)
	if err != nil {
		return nil, err
	}

	entries := make([]visibility.InboxEntry, 0, len(conversations))
	for i := range conversations {
		conv := conversations[i]
		latest, err := s.messages.LatestVisible(ctx, &conv, userID)
		if err != nil {
			return nil, err
		}
		entries = append(entries, visibility.NewInboxEntry(userID, conv, latest))
	}
	return entries, nil
}

func (s *chatService) UnseenCount(ctx context.Context, userID string) (int, error) {
	entries, err := s.Inbox(ctx, userID)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, entry := range entries {
		if entry.HasUnseen {
			count++
		}
	}
	return count, nil
}

func (s *chatService) ConversationMessages(ctx context.Context, userID, conversationID string) (*ConversationView, error) {
	if userID == "" {
		return nil, fault.ErrUnauthorized
	}

	conv, err := s.conversations.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(userID) {
		return nil, fault.ErrNotParticipant
	}

	msgs, err := s.messages.ListVisible(ctx, conv, userID)
	if err != nil {
		return nil, err
	}

	return &ConversationView{
		Conversation: conv,
		Groups:       visibility.GroupMessages(msgs),
		LastSeen:     visibility.LastSeenByOwnMessage(userID, msgs),
	}, nil
}

// ConversationMessagesPage serves the raw paginated history for clients that
// lazy-load older messages; clustering happens client-side on this path.
func (s *chatService) ConversationMessagesPage(ctx context.Context, userID, conversationID string, page int64) (*db.PaginatedResult[model.Message], error) {
	if userID == "" {
		return nil, fault.ErrUnauthorized
	}

	conv, err := s.conversations.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(userID) {
		return nil, fault.ErrNotParticipant
	}

	return s.messages.ListVisiblePage(ctx, conv, userID, page)
}

// -----------------------------------------------------------------------------
// Subscription gate
// -----------------------------------------------------------------------------

func (s *chatService) CanSubscribe(ctx context.Context, userID, channel string) bool {
	if userID == "" {
		return false
	}
	if channel == relay.UserChannel(userID) {
		return true
	}

	convID, ok := strings.CutPrefix(channel, "conversation:")
	if !ok {
		return false
	}

	conv, err := s.conversations.GetByID(ctx, convID)
	if err != nil {
		return false
	}
	return conv.HasParticipant(userID)
}
