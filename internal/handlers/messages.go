package handlers

import (
	"errors"
	"fmt"
	"time"

	"clinic-portal-server/internal/apperr"
	"clinic-portal-server/internal/middleware"
	"clinic-portal-server/internal/models"
	"clinic-portal-server/internal/store"
	"clinic-portal-server/internal/utils"

	"github.com/gin-gonic/gin"
)

// MessageHandler handles messaging related requests.
type MessageHandler struct {
	messages store.MessageStore
	users    store.UserStore
	now      func() time.Time
}

// NewMessageHandler creates a new MessageHandler.
func NewMessageHandler(messages store.MessageStore, users store.UserStore) *MessageHandler {
	return &MessageHandler{messages: messages, users: users, now: time.Now}
}

// patientContacts are the roles a patient may exchange messages with.
var patientContacts = middleware.NewRoleSet(models.RoleDoctor, models.RoleNurse, models.RoleAdmin)

// CanMessage reports whether from may start a message to to. Patients talk
// to clinical staff and admins but not to each other; staff may message
// anyone.
func CanMessage(from, to models.Role) bool {
	switch {
	case from == models.RolePatient:
		return patientContacts.Allows(to)
	case to == models.RolePatient:
		return patientContacts.Allows(from)
	default:
		return from.Valid() && to.Valid()
	}
}

// SendMessageRequest represents the request body for sending a message.
type SendMessageRequest struct {
	RecipientID     string `json:"recipientId" binding:"required,uuid"`
	Content         string `json:"content" binding:"required"`
	Subject         string `json:"subject" binding:"max=255"`
	ParentMessageID string `json:"parentMessageId" binding:"omitempty,uuid"`
}

// SendMessage handles sending a new message.
func (h *MessageHandler) SendMessage(c *gin.Context) {
	senderID, senderRole, ok := caller(c)
	if !ok {
		return
	}

	var req SendMessageRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}
	if req.RecipientID == senderID {
		utils.BadRequest(c, "Cannot send a message to yourself")
		return
	}
	ctx := c.Request.Context()

	recipient, err := h.users.FindByID(ctx, req.RecipientID)
	if err != nil {
		utils.RespondError(c, notFound(err, "Recipient"))
		return
	}
	if !recipient.IsActive {
		utils.RespondError(c, apperr.NotFound("Recipient"))
		return
	}
	if !CanMessage(senderRole, recipient.Role) {
		utils.RespondError(c, apperr.ErrForbidden.WithMessage("You are not authorized to send a message to this user"))
		return
	}

	message := models.Message{
		SenderID:   senderID,
		ReceiverID: recipient.ID,
		Subject:    req.Subject,
		Content:    req.Content,
		Status:     models.MessageStatusSent,
	}

	if req.ParentMessageID != "" {
		parent, err := h.messages.FindByID(ctx, req.ParentMessageID)
		if err != nil {
			utils.RespondError(c, notFound(err, "Parent message"))
			return
		}
		if !involves(parent, senderID) || !involves(parent, recipient.ID) {
			utils.RespondError(c, apperr.Invalid("Parent message belongs to another conversation"))
			return
		}
		message.ParentID = parent.ID
	}

	if err := h.messages.Create(ctx, &message); err != nil {
		utils.RespondError(c, fmt.Errorf("create message: %w", err))
		return
	}
	utils.Created(c, "Message sent successfully", message)
}

// GetMessagesForUser lists the caller's messages, oldest first. With
// ?withUser= it returns that one conversation and marks what the partner
// sent as read.
func (h *MessageHandler) GetMessagesForUser(c *gin.Context) {
	userID, _, ok := caller(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	partnerID := c.Query("withUser")
	if partnerID != "" {
		if err := h.messages.MarkAllRead(ctx, userID, partnerID, h.now().UTC()); err != nil {
			utils.RespondError(c, fmt.Errorf("mark conversation read: %w", err))
			return
		}
	}

	messages, err := h.messages.List(ctx, store.MessageFilter{UserID: userID, WithUserID: partnerID})
	if err != nil {
		utils.RespondError(c, fmt.Errorf("list messages: %w", err))
		return
	}
	utils.Success(c, "Messages fetched successfully", messages)
}

// NewMessagesRequest represents the query params for getting new messages
type NewMessagesRequest struct {
	Since string `form:"since" binding:"required"`
}

// GetNewMessages returns the caller's messages created after ?since=,
// newest first. Clients poll this.
func (h *MessageHandler) GetNewMessages(c *gin.Context) {
	userID, _, ok := caller(c)
	if !ok {
		return
	}

	var req NewMessagesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		utils.BadRequest(c, "The since query parameter is required")
		return
	}
	since, err := time.Parse(time.RFC3339, req.Since)
	if err != nil {
		utils.BadRequest(c, "Invalid timestamp format. Use RFC3339 format (e.g., 2006-01-02T15:04:05Z07:00)")
		return
	}

	messages, err := h.messages.List(c.Request.Context(), store.MessageFilter{
		UserID:      userID,
		Since:       since,
		NewestFirst: true,
	})
	if err != nil {
		utils.RespondError(c, fmt.Errorf("list new messages: %w", err))
		return
	}
	utils.Success(c, "New messages fetched successfully", messages)
}

// GetConversations returns one preview per conversation partner.
func (h *MessageHandler) GetConversations(c *gin.Context) {
	userID, _, ok := caller(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	partners, err := h.messages.Partners(ctx, userID)
	if err != nil {
		utils.RespondError(c, fmt.Errorf("list conversation partners: %w", err))
		return
	}

	previews := make([]models.ConversationPreview, 0, len(partners))
	for _, partnerID := range partners {
		partner, err := h.users.FindByID(ctx, partnerID)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			utils.RespondError(c, fmt.Errorf("load partner: %w", err))
			return
		}

		last, err := h.messages.Latest(ctx, userID, partnerID)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			utils.RespondError(c, fmt.Errorf("load latest message: %w", err))
			return
		}

		unread, err := h.messages.CountUnread(ctx, userID, partnerID)
		if err != nil {
			utils.RespondError(c, fmt.Errorf("count unread: %w", err))
			return
		}

		previews = append(previews, models.ConversationPreview{
			Partner:     partner.Sanitize(),
			LastMessage: *last,
			UnreadCount: unread,
		})
	}

	utils.Success(c, "Conversations fetched successfully", previews)
}

// MarkMessageAsRead marks one message read. Only its recipient may.
func (h *MessageHandler) MarkMessageAsRead(c *gin.Context) {
	userID, _, ok := caller(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	message, err := h.messages.FindByID(ctx, c.Param("messageId"))
	if err != nil {
		utils.RespondError(c, notFound(err, "Message"))
		return
	}
	if message.ReceiverID != userID {
		utils.RespondError(c, apperr.ErrForbidden.WithMessage("You are not authorized to mark this message as read"))
		return
	}
	if message.Status == models.MessageStatusRead {
		utils.Success(c, "Message already marked as read", message)
		return
	}

	now := h.now().UTC()
	if err := h.messages.MarkRead(ctx, message.ID, now); err != nil {
		utils.RespondError(c, fmt.Errorf("mark message read: %w", err))
		return
	}
	message.Status = models.MessageStatusRead
	message.ReadAt = &now

	utils.Success(c, "Message marked as read successfully", message)
}

func involves(m *models.Message, userID string) bool {
	return m.SenderID == userID || m.ReceiverID == userID
}
