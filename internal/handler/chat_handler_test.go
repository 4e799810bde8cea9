package handler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/cemgunay/coleaseum-webapp-sub000/internal/auth"
	"github.com/cemgunay/coleaseum-webapp-sub000/internal/fault"
	"github.com/cemgunay/coleaseum-webapp-sub000/internal/model"
	"github.com/cemgunay/coleaseum-webapp-sub000/internal/service"
)

// stubService overrides just the methods a test exercises; anything else
// panics through the embedded nil interface.
type stubService struct {
	service.ChatService
	sendMessage func(ctx context.Context, userID, conversationID, body string, attachment *string, idempotencyKey string) (*model.Message, error)
	markSeen    func(ctx context.Context, userID, conversationID string) (*model.Message, error)
}

func (s *stubService) SendMessage(ctx context.Context, userID, conversationID, body string, attachment *string, idempotencyKey string) (*model.Message, error) {
	return s.sendMessage(ctx, userID, conversationID, body, attachment, idempotencyKey)
}

func (s *stubService) MarkSeen(ctx context.Context, userID, conversationID string) (*model.Message, error) {
	return s.markSeen(ctx, userID, conversationID)
}

func withUser(userID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(auth.ContextUserKey, userID)
	}
}

func TestRespondError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		err    error
		status int
	}{
		{fault.ErrUnauthorized, http.StatusUnauthorized},
		{fault.ErrNotFound, http.StatusNotFound},
		{fault.ErrNotParticipant, http.StatusForbidden},
		{fault.NewValidation("body", "required"), http.StatusBadRequest},
		{fmt.Errorf("append: %w", fault.ErrTransientStore), http.StatusServiceUnavailable},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)

			respondError(c, tt.err)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestRespondErrorValidationDetail(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	respondError(c, fault.NewValidation("otherUser", "unknown user"))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "otherUser")
	assert.Contains(t, w.Body.String(), "unknown user")
}

func TestSendMessageHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var gotKey, gotConv, gotUser string
	stub := &stubService{
		sendMessage: func(_ context.Context, userID, conversationID, body string, _ *string, idempotencyKey string) (*model.Message, error) {
			gotUser, gotConv, gotKey = userID, conversationID, idempotencyKey
			return &model.Message{
				ID:       primitive.NewObjectID(),
				SenderID: userID,
				Kind:     model.KindUser,
				Body:     body,
				SeenBy:   []string{userID},
			}, nil
		},
	}

	r := gin.New()
	h := NewChatHandler(stub)
	r.POST("/conversations/:conversationId/messages", withUser("alice"), h.SendMessage)

	req := httptest.NewRequest(http.MethodPost, "/conversations/abc/messages", strings.NewReader(`{"body":"hi"}`))
	req.Header.Set("Idempotency-Key", "key-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "alice", gotUser)
	assert.Equal(t, "abc", gotConv)
	assert.Equal(t, "key-1", gotKey)
	assert.Contains(t, w.Body.String(), `"body":"hi"`)
}

func TestSendMessageHandlerBadBody(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	h := NewChatHandler(&stubService{})
	r.POST("/conversations/:conversationId/messages", withUser("alice"), h.SendMessage)

	req := httptest.NewRequest(http.MethodPost, "/conversations/abc/messages", strings.NewReader(`{"body":`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMarkSeenHandlerNothingToMark(t *testing.T) {
	gin.SetMode(gin.TestMode)

	stub := &stubService{
		markSeen: func(context.Context, string, string) (*model.Message, error) {
			return nil, nil
		},
	}

	r := gin.New()
	h := NewChatHandler(stub)
	r.POST("/conversations/:conversationId/seen", withUser("bob"), h.MarkSeen)

	req := httptest.NewRequest(http.MethodPost, "/conversations/abc/seen", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"updated":false}`, w.Body.String())
}
