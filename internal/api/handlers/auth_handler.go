package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/seetohshaokang/HabitEase/internal/api/dto"
	"go.uber.org/zap"
)

// TokenIssuer signs bearer tokens for a user id
type TokenIssuer interface {
	Issue(userID uuid.UUID) (string, time.Time, error)
}

// AuthHandler hands out anonymous identities. Every token carries a fresh
// user id, so a client keeps its habits by keeping its token.
type AuthHandler struct {
	issuer TokenIssuer
}

// NewAuthHandler creates a new AuthHandler instance
func NewAuthHandler(issuer TokenIssuer) *AuthHandler {
	return &AuthHandler{issuer: issuer}
}

// IssueToken handles GET /api/auth/token
func (h *AuthHandler) IssueToken(c *gin.Context) {
	userID := uuid.New()

	token, expiresAt, err := h.issuer.Issue(userID)
	if err != nil {
		log.Error("Failed to issue token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue token"})
		return
	}

	log.Info("Issued anonymous token",
		zap.String("user_id", userID.String()),
		zap.Time("expires_at", expiresAt),
	)

	c.JSON(http.StatusOK, gin.H{"data": dto.TokenResponse{
		Token:     token,
		UserID:    userID,
		ExpiresAt: expiresAt,
	}})
}
