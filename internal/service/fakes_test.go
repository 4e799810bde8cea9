package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/cemgunay/coleaseum-webapp-sub000/internal/db"
	"github.com/cemgunay/coleaseum-webapp-sub000/internal/fault"
	"github.com/cemgunay/coleaseum-webapp-sub000/internal/model"
	"github.com/cemgunay/coleaseum-webapp-sub000/internal/relay"
	"github.com/cemgunay/coleaseum-webapp-sub000/internal/repo"
)

// fakeClock hands out strictly increasing timestamps a full second apart so
// ordering assertions never depend on the wall clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Next() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

// -----------------------------------------------------------------------------
// Conversations
// -----------------------------------------------------------------------------

type fakeConversations struct {
	mu    sync.Mutex
	store map[string]*model.Conversation
	clock *fakeClock
}

func (f *fakeConversations) CreateDirect(_ context.Context, initiatorID, otherUserID string, listing *model.Listing) (*model.Conversation, bool, error) {
	if otherUserID == "" {
		return nil, false, fault.NewValidation("otherUser", "required")
	}
	if otherUserID == initiatorID {
		return nil, false, fault.NewValidation("otherUser", "cannot start a conversation with yourself")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	for _, conv := range f.store {
		if conv.IsGroup || len(conv.ParticipantIds) != 2 {
			continue
		}
		if !conv.HasParticipant(initiatorID) || !conv.HasParticipant(otherUserID) {
			continue
		}
		if listing == nil && conv.ListingID == nil {
			c := *conv
			return &c, false, nil
		}
		if listing != nil && conv.ListingID != nil && *conv.ListingID == listing.ID {
			c := *conv
			return &c, false, nil
		}
	}

	listingOwner := ""
	var listingID *primitive.ObjectID
	if listing != nil {
		listingOwner = listing.OwnerID
		id := listing.ID
		listingID = &id
	}

	now := f.clock.Next()
	conv := &model.Conversation{
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
	f.store[conv.ID.Hex()] = conv

	c := *conv
	return &c, true, nil
}

func (f *fakeConversations) CreateGroup(_ context.Context, initiatorID string, memberIDs []string, name string, listing *model.Listing) (*model.Conversation, error) {
	if name == "" {
		return nil, fault.NewValidation("name", "required for group conversations")
	}

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

	listingOwner := ""
	var listingID *primitive.ObjectID
	if listing != nil {
		listingOwner = listing.OwnerID
		id := listing.ID
		listingID = &id
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.clock.Next()
	participantIDs := append([]string{initiatorID}, members...)
	participants := make([]model.Participant, 0, len(participantIDs))
	for _, id := range participantIDs {
		participants = append(participants, model.Participant{
			UserID:   id,
			Role:     model.AssignRole(listingOwner, id, initiatorID),
			JoinedAt: now,
		})
	}

	conv := &model.Conversation{
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
	f.store[conv.ID.Hex()] = conv

	c := *conv
	return &c, nil
}

func (f *fakeConversations) GetByID(_ context.Context, conversationID string) (*model.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	conv, ok := f.store[conversationID]
	if !ok {
		return nil, fault.ErrNotFound
	}
	c := *conv
	return &c, nil
}

func (f *fakeConversations) AddMembers(_ context.Context, conversationID, requesterID string, memberIDs []string) ([]string, *model.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	conv, ok := f.store[conversationID]
	if !ok {
		return nil, nil, fault.ErrNotFound
	}
	if !conv.HasParticipant(requesterID) {
		return nil, nil, fault.ErrNotParticipant
	}

	now := f.clock.Next()
	added := make([]string, 0, len(memberIDs))
	for _, memberID := range memberIDs {
		if memberID == "" {
			return nil, nil, fault.NewValidation("members", "member id cannot be empty")
		}
		if conv.HasParticipant(memberID) {
			continue
		}
		conv.Participants = append(conv.Participants, model.Participant{UserID: memberID, Role: model.RoleSubtenant, JoinedAt: now})
		conv.ParticipantIds = append(conv.ParticipantIds, memberID)
		conv.Revision++
		added = append(added, memberID)
	}

	c := *conv
	return added, &c, nil
}

func (f *fakeConversations) ReassignListing(_ context.Context, conversationID, requesterID string, listing *model.Listing) (*model.Conversation, error) {
	if listing == nil {
		return nil, fault.ErrNotFound
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	conv, ok := f.store[conversationID]
	if !ok {
		return nil, fault.ErrNotFound
	}
	if !conv.HasParticipant(requesterID) {
		return nil, fault.ErrNotParticipant
	}

	for i, p := range conv.Participants {
		conv.Participants[i].Role = model.AssignRole(listing.OwnerID, p.UserID, conv.CreatedBy)
	}
	id := listing.ID
	conv.ListingID = &id
	conv.Revision++

	c := *conv
	return &c, nil
}

func (f *fakeConversations) SoftDelete(_ context.Context, conversationID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	conv, ok := f.store[conversationID]
	if !ok {
		return fault.ErrNotFound
	}
	if !conv.HasParticipant(userID) {
		return fault.ErrNotParticipant
	}

	if conv.DeletedBy == nil {
		conv.DeletedBy = make(map[string]time.Time)
	}
	conv.DeletedBy[userID] = f.clock.Next()
	conv.Revision++
	return nil
}

func (f *fakeConversations) GetVisibleFor(_ context.Context, userID string) ([]model.Conversation, error) {
	if userID == "" {
		return nil, fault.ErrUnauthorized
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	visible := make([]model.Conversation, 0, len(f.store))
	for _, conv := range f.store {
		if conv.VisibleTo(userID) {
			visible = append(visible, *conv)
		}
	}
	sort.Slice(visible, func(i, j int) bool {
		return visible[i].LastMessageAt.After(visible[j].LastMessageAt)
	})
	return visible, nil
}

// -----------------------------------------------------------------------------
// Messages
// -----------------------------------------------------------------------------

type fakeMessages struct {
	mu    sync.Mutex
	store map[string][]model.Message
	convs *fakeConversations
	clock *fakeClock
}

func (f *fakeMessages) Append(_ context.Context, conversationID string, in repo.AppendInput) (*model.Message, error) {
	if in.Kind == model.KindUser && in.Body == "" && in.Attachment == nil {
		return nil, fault.NewValidation("body", "message requires a body or an attachment")
	}
	if in.Kind == model.KindSystem && in.Body == "" {
		return nil, fault.NewValidation("body", "system message requires a body")
	}

	f.convs.mu.Lock()
	conv, ok := f.convs.store[conversationID]
	f.convs.mu.Unlock()
	if !ok {
		return nil, fault.ErrNotFound
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if in.IdempotencyKey != "" {
		for _, existing := range f.store[conversationID] {
			if existing.SenderID == in.SenderID && existing.IdempotencyKey == in.IdempotencyKey {
				m := existing
				return &m, nil
			}
		}
	}

	msg := model.Message{
		ID:             primitive.NewObjectID(),
		ConversationID: conv.ID,
		SenderID:       in.SenderID,
		Kind:           in.Kind,
		Body:           in.Body,
		Attachment:     in.Attachment,
		SeenBy:         []string{in.SenderID},
		IdempotencyKey: in.IdempotencyKey,
		CreatedAt:      f.clock.Next(),
	}
	f.store[conversationID] = append(f.store[conversationID], msg)

	f.convs.mu.Lock()
	conv.MessageIds = append(conv.MessageIds, msg.ID)
	if msg.CreatedAt.After(conv.LastMessageAt) {
		conv.LastMessageAt = msg.CreatedAt
	}
	conv.Revision++
	f.convs.mu.Unlock()

	m := msg
	return &m, nil
}

func (f *fakeMessages) MarkSeen(_ context.Context, conversationID, userID string) (*model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	msgs := f.store[conversationID]
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Kind != model.KindUser {
			continue
		}
		if msgs[i].SeenByUser(userID) {
			return nil, nil
		}
		msgs[i].SeenBy = append(msgs[i].SeenBy, userID)
		m := msgs[i]
		return &m, nil
	}
	return nil, nil
}

func (f *fakeMessages) ListVisible(_ context.Context, conv *model.Conversation, userID string) ([]model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	deletedAt, deleted := conv.DeletedAt(userID)
	visible := make([]model.Message, 0)
	for _, msg := range f.store[conv.ID.Hex()] {
		if deleted && !msg.CreatedAt.After(deletedAt) {
			continue
		}
		visible = append(visible, msg)
	}
	return visible, nil
}

func (f *fakeMessages) ListVisiblePage(ctx context.Context, conv *model.Conversation, userID string, page int64) (*db.PaginatedResult[model.Message], error) {
	msgs, err := f.ListVisible(ctx, conv, userID)
	if err != nil {
		return nil, err
	}
	return &db.PaginatedResult[model.Message]{
		Data:       msgs,
		Total:      int64(len(msgs)),
		Page:       page,
		PageSize:   int64(len(msgs)),
		TotalPages: 1,
	}, nil
}

func (f *fakeMessages) LatestVisible(ctx context.Context, conv *model.Conversation, userID string) (*model.Message, error) {
	msgs, err := f.ListVisible(ctx, conv, userID)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, nil
	}
	m := msgs[len(msgs)-1]
	return &m, nil
}

// -----------------------------------------------------------------------------
// Listings and users
// -----------------------------------------------------------------------------

type fakeListings struct {
	store map[string]*model.Listing
}

func (f *fakeListings) GetByID(_ context.Context, listingID string) (*model.Listing, error) {
	listing, ok := f.store[listingID]
	if !ok {
		return nil, fault.ErrNotFound
	}
	l := *listing
	return &l, nil
}

type fakeUsers struct {
	store map[string]*model.User
}

func (f *fakeUsers) GetByUserID(_ context.Context, userID string) (*model.User, error) {
	user, ok := f.store[userID]
	if !ok {
		return nil, fault.ErrNotFound
	}
	u := *user
	return &u, nil
}

func (f *fakeUsers) AllExist(_ context.Context, userIDs []string) (bool, error) {
	for _, id := range userIDs {
		if _, ok := f.store[id]; !ok {
			return false, nil
		}
	}
	return true, nil
}

// -----------------------------------------------------------------------------
// Relay capture and test world
// -----------------------------------------------------------------------------

type publishCall struct {
	Channel string
	Event   string
	Payload interface{}
}

type capturePublisher struct {
	mu    sync.Mutex
	calls []publishCall
	err   error
}

func (p *capturePublisher) Trigger(_ context.Context, channel, event string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, publishCall{Channel: channel, Event: event, Payload: payload})
	return p.err
}

func (p *capturePublisher) byEvent(event string) []publishCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	matched := make([]publishCall, 0)
	for _, call := range p.calls {
		if call.Event == event {
			matched = append(matched, call)
		}
	}
	return matched
}

func (p *capturePublisher) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = nil
}

// world wires a ChatService over in-memory stores seeded with the given
// user ids.
type world struct {
	convs    *fakeConversations
	msgs     *fakeMessages
	listings *fakeListings
	users    *fakeUsers
	pub      *capturePublisher
	svc      ChatService
}

func newWorld(userIDs ...string) *world {
	clock := newFakeClock()
	convs := &fakeConversations{store: make(map[string]*model.Conversation), clock: clock}
	msgs := &fakeMessages{store: make(map[string][]model.Message), convs: convs, clock: clock}
	listings := &fakeListings{store: make(map[string]*model.Listing)}
	users := &fakeUsers{store: make(map[string]*model.User)}

	for _, id := range userIDs {
		users.store[id] = &model.User{ID: primitive.NewObjectID(), UserID: id, Username: id, IsActive: true}
	}

	pub := &capturePublisher{}
	svc := NewChatService(convs, msgs, listings, users, relay.New(pub, zap.NewNop()), zap.NewNop())

	return &world{convs: convs, msgs: msgs, listings: listings, users: users, pub: pub, svc: svc}
}

// addListing seeds a listing and returns its hex id.
func (w *world) addListing(ownerID, title string) string {
	listing := &model.Listing{ID: primitive.NewObjectID(), OwnerID: ownerID, Title: title}
	w.listings.store[listing.ID.Hex()] = listing
	return listing.ID.Hex()
}
