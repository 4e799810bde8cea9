package relay

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/cemgunay/coleaseum-webapp-sub000/internal/model"
)

type publishCall struct {
	channel string
	event   string
	payload interface{}
}

type capturePublisher struct {
	calls []publishCall
	err   error
}

func (p *capturePublisher) Trigger(_ context.Context, channel, event string, payload interface{}) error {
	p.calls = append(p.calls, publishCall{channel: channel, event: event, payload: payload})
	return p.err
}

func TestChannelNames(t *testing.T) {
	assert.Equal(t, "user:alice", UserChannel("alice"))
	assert.Equal(t, "conversation:abc", ConversationChannel("abc"))
}

func TestConversationNewFansOutPerUser(t *testing.T) {
	pub := &capturePublisher{}
	r := New(pub, zap.NewNop())

	conv := &model.Conversation{ID: primitive.NewObjectID()}
	r.ConversationNew(context.Background(), conv, []string{"alice", "bob"})

	require.Len(t, pub.calls, 2)
	assert.Equal(t, "user:alice", pub.calls[0].channel)
	assert.Equal(t, "user:bob", pub.calls[1].channel)
	for _, call := range pub.calls {
		assert.Equal(t, EventConversationNew, call.event)
		assert.Equal(t, conv, call.payload)
	}
}

func TestConversationUpdatePayload(t *testing.T) {
	pub := &capturePublisher{}
	r := New(pub, zap.NewNop())

	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	conv := &model.Conversation{ID: primitive.NewObjectID(), LastMessageAt: at}
	msg := &model.Message{ID: primitive.NewObjectID(), ConversationID: conv.ID, Body: "hi"}

	r.ConversationUpdate(context.Background(), conv, msg, []string{"bob"})

	require.Len(t, pub.calls, 1)
	payload, ok := pub.calls[0].payload.(ConversationUpdatePayload)
	require.True(t, ok)
	assert.Equal(t, conv.ID.Hex(), payload.ConversationID)
	assert.Equal(t, at.UnixMilli(), payload.LastMessageAt)
	assert.Equal(t, msg, payload.Message)
}

func TestMessageEventsTargetConversationChannel(t *testing.T) {
	pub := &capturePublisher{}
	r := New(pub, zap.NewNop())

	msg := &model.Message{ID: primitive.NewObjectID(), ConversationID: primitive.NewObjectID()}
	r.MessageNew(context.Background(), msg)
	r.MessageUpdate(context.Background(), msg)

	require.Len(t, pub.calls, 2)
	want := ConversationChannel(msg.ConversationID.Hex())
	assert.Equal(t, want, pub.calls[0].channel)
	assert.Equal(t, EventMessagesNew, pub.calls[0].event)
	assert.Equal(t, want, pub.calls[1].channel)
	assert.Equal(t, EventMessageUpdate, pub.calls[1].event)
}

// A failed publish is swallowed: the caller never sees it and later
// publishes still go out.
func TestPublishFailureDoesNotPropagate(t *testing.T) {
	pub := &capturePublisher{err: errors.New("broker down")}
	r := New(pub, zap.NewNop())

	msg := &model.Message{ID: primitive.NewObjectID(), ConversationID: primitive.NewObjectID()}
	r.MessageNew(context.Background(), msg)
	r.ConversationNew(context.Background(), &model.Conversation{ID: primitive.NewObjectID()}, []string{"a", "b"})

	assert.Len(t, pub.calls, 3)
}
