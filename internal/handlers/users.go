package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// TokenIssuer mints bearer tokens for new users.
type TokenIssuer interface {
	Issue(userID int64) (string, error)
}

// UserHandler registers and removes users.
type UserHandler struct {
	mutator Mutator
	issuer  TokenIssuer
}

func NewUserHandler(mutator Mutator, issuer TokenIssuer) *UserHandler {
	return &UserHandler{mutator: mutator, issuer: issuer}
}

// Register creates a user and returns a token for it.
func (h *UserHandler) Register(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.mutator.CreateUser(c.Request.Context(), req.Username)
	if err != nil {
		writeError(c, err)
		return
	}
	token, err := h.issuer.Issue(user.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"user": user, "token": token})
}

// DeleteMe removes the caller along with every conversation they were part of.
func (h *UserHandler) DeleteMe(c *gin.Context) {
	if err := h.mutator.DeleteUser(c.Request.Context(), currentUserID(c)); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
