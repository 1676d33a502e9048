package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"messaging-service/internal/observability"
	"messaging-service/internal/repositories"
)

// currentUserID returns the authenticated caller set by the auth middleware.
func currentUserID(c *gin.Context) int64 {
	val, _ := c.Get("userID")
	switch v := val.(type) {
	case int64:
		return v
	case int:
		return int64(v)
	}
	return 0
}

func parseIDParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

func parseIDQuery(c *gin.Context, name string) (int64, bool, bool) {
	raw := c.Query(name)
	if raw == "" {
		return 0, false, true
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false, false
	}
	return id, true, true
}

// writeError maps store and service errors to a status code.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	message := "internal error"
	switch {
	case errors.Is(err, repositories.ErrNotFound):
		status, message = http.StatusNotFound, err.Error()
	case errors.Is(err, repositories.ErrValidation):
		status, message = http.StatusBadRequest, err.Error()
	case errors.Is(err, repositories.ErrConflict):
		status, message = http.StatusConflict, err.Error()
	default:
		log.Printf("request failed: path=%s request_id=%s err=%v", c.FullPath(), observability.RequestIDFromContext(c.Request.Context()), err)
	}
	c.JSON(status, gin.H{"error": message})
}
