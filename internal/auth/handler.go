package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handler handles session endpoints. The upstream identity provider is
// external; this layer only exchanges a resolved identity for a
// role-tagged session token and exposes the current session.
type Handler struct {
	tokens *TokenManager
	logger *zap.Logger
}

// NewHandler creates a new auth handler
func NewHandler(tokens *TokenManager, logger *zap.Logger) *Handler {
	return &Handler{tokens: tokens, logger: logger}
}

// CreateSessionRequest carries the identity resolved by the upstream
// provider plus the portal role selected at login
type CreateSessionRequest struct {
	UserID string `json:"user_id" binding:"required"`
	Name   string `json:"name" binding:"required"`
	Role   Role   `json:"role" binding:"required"`
}

// CreateSession handles POST /auth/session
func (h *Handler) CreateSession(c *gin.Context) {
	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	identity := Identity{ID: req.UserID, Name: req.Name, Role: req.Role}
	token, err := h.tokens.IssueToken(identity)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.logger.Info("Session created",
		zap.String("user_id", identity.ID),
		zap.String("role", string(identity.Role)))

	c.JSON(http.StatusOK, gin.H{
		"token":    token,
		"identity": identity,
	})
}

// Me handles GET /auth/me
func (h *Handler) Me(c *gin.Context) {
	identity, ok := FromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "no active session"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"identity": identity})
}
