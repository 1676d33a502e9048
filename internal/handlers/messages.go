package handlers

import (
	"context"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"messaging-service/internal/cache"
	"messaging-service/internal/models"
	"messaging-service/internal/query"
	"messaging-service/internal/repositories"
)

// Mutator is every write the HTTP layer can request.
type Mutator interface {
	CreateMessage(ctx context.Context, senderID, receiverID int64, content string, parentID *int64) (models.Message, error)
	UpdateMessageContent(ctx context.Context, messageID, editorID int64, content string) (models.Message, error)
	RevertTo(ctx context.Context, messageID, historyID int64) (models.Message, error)
	DeleteMessage(ctx context.Context, messageID, actorID int64) error
	MarkRead(ctx context.Context, messageID, userID int64) error
	MarkAllRead(ctx context.Context, userID int64, ids []int64) (int64, error)
	MarkNotificationsRead(ctx context.Context, userID int64, ids []int64) (int64, error)
	CreateUser(ctx context.Context, username string) (models.User, error)
	DeleteUser(ctx context.Context, userID int64) error
}

// Reader is the read side used by the handlers.
type Reader interface {
	GetMessage(ctx context.Context, messageID int64) (models.Message, error)
	UnreadFor(ctx context.Context, userID int64, priority bool) ([]models.Message, error)
	UnreadCount(ctx context.Context, userID int64) (int, error)
	UnreadFromSender(ctx context.Context, userID, senderID int64) ([]models.Message, error)
	UnreadSummaryBySender(ctx context.Context, userID int64) ([]models.SenderSummary, error)
	EditHistoryOf(ctx context.Context, messageID int64) ([]models.HistoryEntry, error)
	TimelineOf(ctx context.Context, messageID int64) (query.Timeline, error)
	ThreadOf(ctx context.Context, messageID int64) (models.Thread, error)
	OriginalContentOf(ctx context.Context, messageID int64) (string, error)
	ConversationBetween(ctx context.Context, userA, userB int64) ([]models.Message, error)
	EditsBy(ctx context.Context, editorID int64) ([]models.HistoryEntry, error)
	NotificationsFor(ctx context.Context, userID int64, filter repositories.NotificationFilter) ([]models.Notification, error)
}

// MessageHandler serves the message endpoints.
type MessageHandler struct {
	mutator Mutator
	reader  Reader
	cache   cache.Cache
}

// NewMessageHandler builds a MessageHandler. A nil cache disables caching.
func NewMessageHandler(mutator Mutator, reader Reader, c cache.Cache) *MessageHandler {
	if c == nil {
		c = cache.Noop{}
	}
	return &MessageHandler{mutator: mutator, reader: reader, cache: c}
}

// PostMessage sends a message, optionally as a reply.
func (h *MessageHandler) PostMessage(c *gin.Context) {
	var req struct {
		ReceiverID int64  `json:"receiver_id" binding:"required"`
		Content    string `json:"content" binding:"required"`
		ParentID   *int64 `json:"parent_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := currentUserID(c)
	msg, err := h.mutator.CreateMessage(c.Request.Context(), userID, req.ReceiverID, req.Content, req.ParentID)
	if err != nil {
		writeError(c, err)
		return
	}
	h.invalidate(c, cache.UnreadCountKey(msg.ReceiverID))
	c.JSON(http.StatusCreated, msg)
}

// GetMessage returns a message visible to the caller.
func (h *MessageHandler) GetMessage(c *gin.Context) {
	msg, ok := h.loadParticipantMessage(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, msg)
}

// EditMessage replaces a message's content. Only the sender may edit.
func (h *MessageHandler) EditMessage(c *gin.Context) {
	msg, ok := h.loadSenderMessage(c)
	if !ok {
		return
	}

	var req struct {
		Content string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updated, err := h.mutator.UpdateMessageContent(c.Request.Context(), msg.ID, currentUserID(c), req.Content)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// RevertMessage restores the content held before a history entry.
func (h *MessageHandler) RevertMessage(c *gin.Context) {
	msg, ok := h.loadSenderMessage(c)
	if !ok {
		return
	}
	historyID, ok := parseIDParam(c, "history_id")
	if !ok {
		return
	}

	updated, err := h.mutator.RevertTo(c.Request.Context(), msg.ID, historyID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// DeleteMessage removes a message and its thread replies (sender only).
func (h *MessageHandler) DeleteMessage(c *gin.Context) {
	msg, ok := h.loadSenderMessage(c)
	if !ok {
		return
	}
	if err := h.mutator.DeleteMessage(c.Request.Context(), msg.ID, currentUserID(c)); err != nil {
		writeError(c, err)
		return
	}
	h.invalidate(c, cache.UnreadCountKey(msg.ReceiverID))
	c.Status(http.StatusNoContent)
}

// MarkRead marks one message read for its receiver.
func (h *MessageHandler) MarkRead(c *gin.Context) {
	messageID, ok := parseIDParam(c, "message_id")
	if !ok {
		return
	}
	userID := currentUserID(c)
	if err := h.mutator.MarkRead(c.Request.Context(), messageID, userID); err != nil {
		writeError(c, err)
		return
	}
	h.invalidate(c, cache.UnreadCountKey(userID))
	c.Status(http.StatusNoContent)
}

// MarkAllRead marks the listed messages read, or all of them when the body
// carries no ids.
func (h *MessageHandler) MarkAllRead(c *gin.Context) {
	var req struct {
		MessageIDs []int64 `json:"message_ids"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	userID := currentUserID(c)
	updated, err := h.mutator.MarkAllRead(c.Request.Context(), userID, req.MessageIDs)
	if err != nil {
		writeError(c, err)
		return
	}
	h.invalidate(c, cache.UnreadCountKey(userID))
	c.JSON(http.StatusOK, gin.H{"updated": updated})
}

// ListUnread returns unread messages for the caller. priority=true switches
// to direct-first ordering; sender_id restricts to one sender.
func (h *MessageHandler) ListUnread(c *gin.Context) {
	userID := currentUserID(c)
	senderID, hasSender, ok := parseIDQuery(c, "sender_id")
	if !ok {
		return
	}
	priority, _ := strconv.ParseBool(c.DefaultQuery("priority", "false"))

	var (
		msgs []models.Message
		err  error
	)
	if hasSender {
		msgs, err = h.reader.UnreadFromSender(c.Request.Context(), userID, senderID)
	} else {
		msgs, err = h.reader.UnreadFor(c.Request.Context(), userID, priority)
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// UnreadCount returns the caller's unread count, served from cache when fresh.
func (h *MessageHandler) UnreadCount(c *gin.Context) {
	userID := currentUserID(c)
	key := cache.UnreadCountKey(userID)

	var count int
	if found, err := h.cache.Get(c.Request.Context(), key, &count); err != nil {
		log.Printf("cache read failed: key=%s err=%v", key, err)
	} else if found {
		c.JSON(http.StatusOK, gin.H{"unread": count})
		return
	}

	count, err := h.reader.UnreadCount(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	if err := h.cache.Set(c.Request.Context(), key, count); err != nil {
		log.Printf("cache write failed: key=%s err=%v", key, err)
	}
	c.JSON(http.StatusOK, gin.H{"unread": count})
}

func (h *MessageHandler) UnreadSummary(c *gin.Context) {
	summary, err := h.reader.UnreadSummaryBySender(c.Request.Context(), currentUserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"senders": summary})
}

func (h *MessageHandler) History(c *gin.Context) {
	msg, ok := h.loadParticipantMessage(c)
	if !ok {
		return
	}
	history, err := h.reader.EditHistoryOf(c.Request.Context(), msg.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": history})
}

func (h *MessageHandler) Timeline(c *gin.Context) {
	msg, ok := h.loadParticipantMessage(c)
	if !ok {
		return
	}
	timeline, err := h.reader.TimelineOf(c.Request.Context(), msg.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"timeline": timeline.Entries()})
}

func (h *MessageHandler) Original(c *gin.Context) {
	msg, ok := h.loadParticipantMessage(c)
	if !ok {
		return
	}
	content, err := h.reader.OriginalContentOf(c.Request.Context(), msg.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"content": content})
}

// Thread returns the thread containing the message, cached for the TTL.
func (h *MessageHandler) Thread(c *gin.Context) {
	msg, ok := h.loadParticipantMessage(c)
	if !ok {
		return
	}
	key := cache.ThreadKey(msg.ID)

	var thread models.Thread
	if found, err := h.cache.Get(c.Request.Context(), key, &thread); err != nil {
		log.Printf("cache read failed: key=%s err=%v", key, err)
	} else if found {
		c.JSON(http.StatusOK, thread)
		return
	}

	thread, err := h.reader.ThreadOf(c.Request.Context(), msg.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	if err := h.cache.Set(c.Request.Context(), key, thread); err != nil {
		log.Printf("cache write failed: key=%s err=%v", key, err)
	}
	c.JSON(http.StatusOK, thread)
}

// Conversation returns every message between the caller and another user.
func (h *MessageHandler) Conversation(c *gin.Context) {
	otherID, ok := parseIDParam(c, "user_id")
	if !ok {
		return
	}
	msgs, err := h.reader.ConversationBetween(c.Request.Context(), currentUserID(c), otherID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// MyEdits lists the history entries the caller produced.
func (h *MessageHandler) MyEdits(c *gin.Context) {
	edits, err := h.reader.EditsBy(c.Request.Context(), currentUserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"edits": edits})
}

func (h *MessageHandler) loadParticipantMessage(c *gin.Context) (models.Message, bool) {
	messageID, ok := parseIDParam(c, "message_id")
	if !ok {
		return models.Message{}, false
	}
	msg, err := h.reader.GetMessage(c.Request.Context(), messageID)
	if err != nil {
		writeError(c, err)
		return models.Message{}, false
	}
	if !msg.Involves(currentUserID(c)) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a participant"})
		return models.Message{}, false
	}
	return msg, true
}

func (h *MessageHandler) loadSenderMessage(c *gin.Context) (models.Message, bool) {
	msg, ok := h.loadParticipantMessage(c)
	if !ok {
		return models.Message{}, false
	}
	if msg.SenderID != currentUserID(c) {
		c.JSON(http.StatusForbidden, gin.H{"error": "only the sender can do this"})
		return models.Message{}, false
	}
	return msg, true
}

func (h *MessageHandler) invalidate(c *gin.Context, keys ...string) {
	if err := h.cache.Delete(c.Request.Context(), keys...); err != nil {
		log.Printf("cache invalidate failed: keys=%v err=%v", keys, err)
	}
}
