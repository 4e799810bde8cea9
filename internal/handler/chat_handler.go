package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/cemgunay/coleaseum-webapp-sub000/internal/auth"
	"github.com/cemgunay/coleaseum-webapp-sub000/internal/fault"
	"github.com/cemgunay/coleaseum-webapp-sub000/internal/service"
	"github.com/gin-gonic/gin"
)

type ChatHandler interface {
	CreateDirect(c *gin.Context)
	CreateGroup(c *gin.Context)
	GetInbox(c *gin.Context)
	GetUnseenCount(c *gin.Context)
	GetConversationMessages(c *gin.Context)
	SendMessage(c *gin.Context)
	MarkSeen(c *gin.Context)
	AddMembers(c *gin.Context)
	ReassignListing(c *gin.Context)
	DeleteConversation(c *gin.Context)
}

type chatHandler struct {
	service service.ChatService
}

func NewChatHandler(service service.ChatService) ChatHandler {
	return &chatHandler{
		service: service,
	}
}

type createDirectRequest struct {
	OtherUserID string `json:"otherUserId"`
	ListingID   string `json:"listingId"`
}

func (h *chatHandler) CreateDirect(c *gin.Context) {
	var req createDirectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	conv, err := h.service.CreateDirect(c.Request.Context(), auth.UserID(c), req.OtherUserID, req.ListingID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"conversation": conv})
}

type createGroupRequest struct {
	Name      string   `json:"name"`
	Members   []string `json:"members"`
	ListingID string   `json:"listingId"`
}

func (h *chatHandler) CreateGroup(c *gin.Context) {
	var req createGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	conv, err := h.service.CreateGroup(c.Request.Context(), auth.UserID(c), req.Members, req.Name, req.ListingID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"conversation": conv})
}

func (h *chatHandler) GetInbox(c *gin.Context) {
	entries, err := h.service.Inbox(c.Request.Context(), auth.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": entries})
}

func (h *chatHandler) GetUnseenCount(c *gin.Context) {
	count, err := h.service.UnseenCount(c.Request.Context(), auth.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unseenCount": count})
}

func (h *chatHandler) GetConversationMessages(c *gin.Context) {
	// With ?page=N the client gets a raw page for lazy-loading history;
	// without it, the full clustered view.
	if pageParam := c.Query("page"); pageParam != "" {
		page, err := strconv.ParseInt(pageParam, 10, 64)
		if err != nil || page < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "page must be a positive integer"})
			return
		}

		result, err := h.service.ConversationMessagesPage(c.Request.Context(), auth.UserID(c), c.Param("conversationId"), page)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
		return
	}

	view, err := h.service.ConversationMessages(c.Request.Context(), auth.UserID(c), c.Param("conversationId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

type sendMessageRequest struct {
	Body       string  `json:"body"`
	Attachment *string `json:"attachment"`
}

func (h *chatHandler) SendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	msg, err := h.service.SendMessage(
		c.Request.Context(),
		auth.UserID(c),
		c.Param("conversationId"),
		req.Body,
		req.Attachment,
		c.GetHeader("Idempotency-Key"),
	)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

func (h *chatHandler) MarkSeen(c *gin.Context) {
	msg, err := h.service.MarkSeen(c.Request.Context(), auth.UserID(c), c.Param("conversationId"))
	if err != nil {
		respondError(c, err)
		return
	}
	if msg == nil {
		c.JSON(http.StatusOK, gin.H{"updated": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": true, "message": msg})
}

type addMembersRequest struct {
	Members []string `json:"members"`
}

func (h *chatHandler) AddMembers(c *gin.Context) {
	var req addMembersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	conv, err := h.service.AddMembers(c.Request.Context(), auth.UserID(c), c.Param("conversationId"), req.Members)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversation": conv})
}

type reassignListingRequest struct {
	ListingID string `json:"listingId"`
}

func (h *chatHandler) ReassignListing(c *gin.Context) {
	var req reassignListingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	conv, err := h.service.ReassignListing(c.Request.Context(), auth.UserID(c), c.Param("conversationId"), req.ListingID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversation": conv})
}

func (h *chatHandler) DeleteConversation(c *gin.Context) {
	if err := h.service.DeleteConversation(c.Request.Context(), auth.UserID(c), c.Param("conversationId")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// respondError maps the fault taxonomy onto HTTP statuses. Validation
// failures carry their detail so the client can correct and resubmit;
// transient store failures tell the client to retry.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, fault.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	case errors.Is(err, fault.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, fault.ErrNotParticipant):
		c.JSON(http.StatusForbidden, gin.H{"error": "not a participant of this conversation"})
	case errors.Is(err, fault.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, fault.ErrTransientStore):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "temporary storage problem, please retry"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
