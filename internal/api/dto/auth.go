package dto

import (
	"time"

	"github.com/google/uuid"
)

// TokenResponse carries a freshly issued anonymous bearer token
type TokenResponse struct {
	Token     string    `json:"token"`
	UserID    uuid.UUID `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}
