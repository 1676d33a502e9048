package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"messaging-service/internal/models"
	"messaging-service/internal/repositories"
)

const maxNotificationLimit = 200

// NotificationHandler serves the caller's notification feed.
type NotificationHandler struct {
	mutator Mutator
	reader  Reader
}

func NewNotificationHandler(mutator Mutator, reader Reader) *NotificationHandler {
	return &NotificationHandler{mutator: mutator, reader: reader}
}

// List supports unread=true, kind=<kind> and limit=<n> filters.
func (h *NotificationHandler) List(c *gin.Context) {
	filter := repositories.NotificationFilter{Limit: 50}
	if raw := c.Query("unread"); raw != "" {
		unread, err := strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid unread"})
			return
		}
		filter.UnreadOnly = unread
	}
	if raw := c.Query("kind"); raw != "" {
		kind := models.NotificationKind(raw)
		if !kind.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid kind"})
			return
		}
		filter.Kind = kind
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 || limit > maxNotificationLimit {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		filter.Limit = limit
	}

	notes, err := h.reader.NotificationsFor(c.Request.Context(), currentUserID(c), filter)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": notes})
}

// MarkRead flags the listed notifications read, or all when none are given.
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	var req struct {
		IDs []int64 `json:"ids"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	updated, err := h.mutator.MarkNotificationsRead(c.Request.Context(), currentUserID(c), req.IDs)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": updated})
}
