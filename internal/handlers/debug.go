package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"messaging-service/internal/repositories"
	"messaging-service/internal/telemetry"
)

// IntegrityChecker verifies the store's referential invariants.
type IntegrityChecker interface {
	VerifyIntegrity(ctx context.Context) error
}

// RegisterDebugRoutes wires debug-only endpoints.
func RegisterDebugRoutes(router gin.IRouter, emitter *telemetry.AuditEmitter, checker IntegrityChecker, enabled bool) {
	if !enabled {
		return
	}

	router.GET("/debug/audit-test", func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured"})
			return
		}
		var userID *int64
		if id := currentUserID(c); id != 0 {
			userID = &id
		}
		emitter.Emit(c.Request.Context(), "info", "audit_test", "audit test", userID)
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/debug/integrity", func(c *gin.Context) {
		err := checker.VerifyIntegrity(c.Request.Context())
		if errors.Is(err, repositories.ErrIntegrity) {
			c.JSON(http.StatusConflict, gin.H{"status": "violated", "error": err.Error()})
			return
		}
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}
