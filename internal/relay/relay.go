// Package relay broadcasts committed mutations to interested subscribers
// over per-user and per-conversation channels. Delivery is best-effort and
// at-least-once to currently connected subscribers; the store remains the
// source of truth and a failed publish never rolls a mutation back.
package relay

import (
	"context"

	"github.com/cemgunay/coleaseum-webapp-sub000/internal/fault"
	"github.com/cemgunay/coleaseum-webapp-sub000/internal/metrics"
	"github.com/cemgunay/coleaseum-webapp-sub000/internal/model"
	"go.uber.org/zap"
)

// Event names pushed to subscribers.
const (
	EventConversationNew    = "conversation:new"
	EventConversationUpdate = "conversation:update"
	EventMessagesNew        = "messages:new"
	EventMessageUpdate      = "message:update"
)

// UserChannel names the per-user channel carrying inbox-level events.
func UserChannel(userID string) string {
	return "user:" + userID
}

// ConversationChannel names the per-conversation channel carrying message
// events for an open conversation view.
func ConversationChannel(conversationID string) string {
	return "conversation:" + conversationID
}

// Publisher is the pub/sub collaborator boundary: named-channel publish with
// at-least-once delivery to currently connected subscribers only.
type Publisher interface {
	Trigger(ctx context.Context, channel, event string, payload interface{}) error
}

// ConversationUpdatePayload is the inbox delta: enough to reorder the list
// and refresh the preview without a refetch.
type ConversationUpdatePayload struct {
	ConversationID string         `json:"conversationId"`
	LastMessageAt  int64          `json:"lastMessageAt"` // unix millis
	Message        *model.Message `json:"message,omitempty"`
}

// Relay fans mutation outcomes out to the affected channels. It is invoked
// synchronously in the request path after the store commit; failures are
// logged and counted, never surfaced to the caller.
type Relay struct {
	pub    Publisher
	logger *zap.Logger
}

func New(pub Publisher, logger *zap.Logger) *Relay {
	return &Relay{pub: pub, logger: logger}
}

// ConversationNew notifies each target user's channel about a conversation
// that is new to them: all participants on creation, just the newcomers on a
// member add.
func (r *Relay) ConversationNew(ctx context.Context, conv *model.Conversation, userIDs []string) {
	for _, userID := range userIDs {
		r.trigger(ctx, UserChannel(userID), EventConversationNew, conv)
	}
}

// ConversationUpdate notifies each target user's channel that the
// conversation changed (new message, seen-state change on its preview, or
// the user's own soft delete).
func (r *Relay) ConversationUpdate(ctx context.Context, conv *model.Conversation, msg *model.Message, userIDs []string) {
	payload := ConversationUpdatePayload{
		ConversationID: conv.ID.Hex(),
		LastMessageAt:  conv.LastMessageAt.UnixMilli(),
		Message:        msg,
	}
	for _, userID := range userIDs {
		r.trigger(ctx, UserChannel(userID), EventConversationUpdate, payload)
	}
}

// MessageNew pushes the full message to the conversation channel so open
// views append it live.
func (r *Relay) MessageNew(ctx context.Context, msg *model.Message) {
	r.trigger(ctx, ConversationChannel(msg.ConversationID.Hex()), EventMessagesNew, msg)
}

// MessageUpdate pushes a seen-state change on a message to the conversation
// channel.
func (r *Relay) MessageUpdate(ctx context.Context, msg *model.Message) {
	r.trigger(ctx, ConversationChannel(msg.ConversationID.Hex()), EventMessageUpdate, msg)
}

func (r *Relay) trigger(ctx context.Context, channel, event string, payload interface{}) {
	if err := r.pub.Trigger(ctx, channel, event, payload); err != nil {
		// Degrades to eventual consistency: the client reconciles on its
		// next refetch or reconnect.
		metrics.RelayPublishes.WithLabelValues(event, "failure").Inc()
		r.logger.Warn("relay publish failed",
			zap.String("channel", channel),
			zap.String("event", event),
			zap.Error(err),
			zap.NamedError("kind", fault.ErrRelayDelivery),
		)
		return
	}
	metrics.RelayPublishes.WithLabelValues(event, "success").Inc()
}
