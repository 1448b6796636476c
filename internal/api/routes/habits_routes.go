package routes

import (
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/seetohshaokang/HabitEase/internal/api/dto"
	"github.com/seetohshaokang/HabitEase/internal/api/handlers"
	"github.com/seetohshaokang/HabitEase/internal/api/middleware"
)

type HabitsRoutes struct {
	handler   *handlers.HabitsHandler
	jwtSecret string
}

func NewHabitsRoutes(handler *handlers.HabitsHandler, jwtSecret string) *HabitsRoutes {
	return &HabitsRoutes{
		handler:   handler,
		jwtSecret: jwtSecret,
	}
}

// RegisterRoutes registers all habit-related routes
func (h *HabitsRoutes) RegisterRoutes(router *gin.Engine, cache *middleware.CacheMiddleware) {
	validation := middleware.NewValidationMiddleware()
	compress := gzip.Gzip(gzip.DefaultCompression)

	habits := router.Group("/api/habits")
	habits.Use(middleware.NewAuthMiddleware(h.jwtSecret))

	// Static routes first
	habits.GET("", validation.ValidateQuery(&dto.PageQuery{}), cache.CacheResponse(), h.handler.ListHabits)
	habits.POST("", validation.ValidateRequest(&dto.CreateHabitRequest{}), cache.CacheInvalidateUser(), h.handler.CreateHabit)
	// Day-based views are cached by the service under the calendar day
	habits.GET("/statistics/summary", compress, h.handler.GetStatisticsSummary)

	// Log edits
	habits.PUT("/log/:logId", validation.ValidateRequest(&dto.UpdateHabitLogRequest{}), cache.CacheInvalidateUser(), h.handler.UpdateHabitLog)
	habits.DELETE("/log/:logId", cache.CacheInvalidateUser(), h.handler.DeleteHabitLog)

	// CRUD operations with parameters
	habits.GET("/:id", cache.CacheResponse(), h.handler.GetHabit)
	habits.PUT("/:id", validation.ValidateRequest(&dto.UpdateHabitRequest{}), cache.CacheInvalidateUser(), h.handler.UpdateHabit)
	habits.DELETE("/:id", cache.CacheInvalidateUser(), h.handler.DeleteHabit)

	// Completion and derived views
	habits.PUT("/:id/complete", cache.CacheInvalidateUser(), h.handler.CompleteHabit)
	habits.GET("/:id/logs", cache.CacheResponse(), h.handler.GetHabitLogs)
	habits.GET("/:id/statistics", compress, h.handler.GetHabitStatistics)
	habits.GET("/:id/heatmap", compress, h.handler.GetHabitHeatmap)
	habits.GET("/:id/activity", validation.ValidateQuery(&dto.PageQuery{}), h.handler.GetHabitActivity)
}
