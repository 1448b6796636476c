package routes

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/seetohshaokang/HabitEase/internal/api/handlers"
	"github.com/seetohshaokang/HabitEase/internal/api/middleware"
	"github.com/seetohshaokang/HabitEase/pkg/security/auth"
)

const (
	tokenIssueLimit  = 10
	tokenIssueWindow = time.Minute
)

// AuthRoutes handles the setup of auth-related routes
type AuthRoutes struct {
	handler *handlers.AuthHandler
	limiter auth.RateLimiter
}

// NewAuthRoutes creates a new AuthRoutes instance. limiter may be nil.
func NewAuthRoutes(handler *handlers.AuthHandler, limiter auth.RateLimiter) *AuthRoutes {
	return &AuthRoutes{
		handler: handler,
		limiter: limiter,
	}
}

// RegisterRoutes registers the anonymous token endpoint, which gets a
// tighter per-client limit than the rest of the API.
func (ar *AuthRoutes) RegisterRoutes(router *gin.Engine) {
	authGroup := router.Group("/api/auth")
	if ar.limiter != nil {
		authGroup.Use(middleware.RateLimitMiddleware(ar.limiter.WithLimit(tokenIssueLimit, tokenIssueWindow)))
	}
	authGroup.GET("/token", ar.handler.IssueToken)
}
