package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/seetohshaokang/HabitEase/internal/api/dto"
	"github.com/seetohshaokang/HabitEase/internal/api/middleware"
	"github.com/seetohshaokang/HabitEase/internal/domain/habits"
	"github.com/seetohshaokang/HabitEase/pkg/logger"
	"go.uber.org/zap"
)

var log = logger.NewLogger()

const defaultPageSize = 20

// HabitsHandler handles HTTP requests for habits operations
type HabitsHandler struct {
	service habits.Service
}

// NewHabitsHandler creates a new HabitsHandler instance
func NewHabitsHandler(service habits.Service) *HabitsHandler {
	return &HabitsHandler{service: service}
}

// bindBody prefers the model stored by the validation middleware and falls
// back to plain JSON binding.
func bindBody[T any](c *gin.Context, req *T) bool {
	if validatedModel, exists := c.Get("validated_model"); exists {
		validatedPtr, ok := validatedModel.(*T)
		if !ok {
			log.Error("Invalid model type from validation", zap.String("type", fmt.Sprintf("%T", validatedModel)))
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid model type from validation"})
			return false
		}
		*req = *validatedPtr
		return true
	}
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	return true
}

func bindPage(c *gin.Context) (dto.PageQuery, bool) {
	query := dto.PageQuery{PageSize: defaultPageSize}
	if validated, exists := c.Get("validated_query"); exists {
		if q, ok := validated.(*dto.PageQuery); ok {
			query = *q
		}
	} else if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid query parameters"})
		return query, false
	}
	if query.PageSize <= 0 {
		query.PageSize = defaultPageSize
	}
	return query, true
}

func requireUser(c *gin.Context) (uuid.UUID, bool) {
	userID, exists := middleware.GetUserID(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return uuid.Nil, false
	}
	return userID, true
}

func parseID(c *gin.Context, param, label string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + label + " ID"})
		return uuid.Nil, false
	}
	return id, true
}

// respondError maps service errors to status codes. Store failures are
// logged and hidden behind a generic message.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, habits.ErrHabitNotFound), errors.Is(err, habits.ErrLogNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, habits.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, habits.ErrConcurrentUpdate):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		log.Error("Request failed",
			zap.String("request_id", middleware.GetRequestID(c)),
			zap.String("path", c.Request.URL.Path),
			zap.String("method", c.Request.Method),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

// CreateHabit handles POST /api/habits
func (h *HabitsHandler) CreateHabit(c *gin.Context) {
	var req dto.CreateHabitRequest
	if !bindBody(c, &req) {
		return
	}

	userID, ok := requireUser(c)
	if !ok {
		return
	}

	created, err := h.service.CreateHabit(c.Request.Context(), habits.CreateHabitInput{
		Name:   req.Name,
		Logo:   req.Logo,
		Unit:   req.Unit,
		UserID: userID,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": HabitToResponse(created)})
}

// GetHabit handles GET /api/habits/:id
func (h *HabitsHandler) GetHabit(c *gin.Context) {
	id, ok := parseID(c, "id", "habit")
	if !ok {
		return
	}
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	habit, err := h.service.GetHabit(c.Request.Context(), id, userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": HabitToResponse(habit)})
}

// ListHabits handles GET /api/habits
func (h *HabitsHandler) ListHabits(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	page, ok := bindPage(c)
	if !ok {
		return
	}

	habitsData, total, err := h.service.ListHabits(c.Request.Context(), habits.HabitFilter{
		UserID:   &userID,
		Page:     page.Page,
		PageSize: page.PageSize,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	responses := make([]dto.HabitResponse, len(habitsData))
	for i := range habitsData {
		responses[i] = *HabitToResponse(&habitsData[i])
	}

	c.JSON(http.StatusOK, gin.H{"data": dto.HabitListResponse{
		Habits:     responses,
		TotalCount: total,
		Page:       page.Page,
		PageSize:   page.PageSize,
	}})
}

// UpdateHabit handles PUT /api/habits/:id
func (h *HabitsHandler) UpdateHabit(c *gin.Context) {
	id, ok := parseID(c, "id", "habit")
	if !ok {
		return
	}

	var req dto.UpdateHabitRequest
	if !bindBody(c, &req) {
		return
	}

	userID, ok := requireUser(c)
	if !ok {
		return
	}

	updated, err := h.service.UpdateHabit(c.Request.Context(), id, userID, habits.UpdateHabitInput{
		Name: req.Name,
		Logo: req.Logo,
		Unit: req.Unit,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": HabitToResponse(updated)})
}

// DeleteHabit handles DELETE /api/habits/:id
func (h *HabitsHandler) DeleteHabit(c *gin.Context) {
	id, ok := parseID(c, "id", "habit")
	if !ok {
		return
	}
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	if err := h.service.DeleteHabit(c.Request.Context(), id, userID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "habit deleted successfully"})
}

// CompleteHabit handles PUT /api/habits/:id/complete. The body is optional.
func (h *HabitsHandler) CompleteHabit(c *gin.Context) {
	id, ok := parseID(c, "id", "habit")
	if !ok {
		return
	}

	var req dto.CompleteHabitRequest
	if c.Request.ContentLength != 0 && !bindBody(c, &req) {
		return
	}

	userID, ok := requireUser(c)
	if !ok {
		return
	}

	result, err := h.service.LogCompletion(c.Request.Context(), id, userID, req.Value)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": CompletionToResponse(result)})
}

// GetHabitLogs handles GET /api/habits/:id/logs
func (h *HabitsHandler) GetHabitLogs(c *gin.Context) {
	id, ok := parseID(c, "id", "habit")
	if !ok {
		return
	}
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	logs, err := h.service.GetHabitLogs(c.Request.Context(), id, userID)
	if err != nil {
		respondError(c, err)
		return
	}

	responses := make([]dto.HabitLogResponse, len(logs))
	for i := range logs {
		responses[i] = *HabitLogToResponse(&logs[i])
	}

	c.JSON(http.StatusOK, gin.H{"data": responses})
}

// UpdateHabitLog handles PUT /api/habits/log/:logId
func (h *HabitsHandler) UpdateHabitLog(c *gin.Context) {
	logID, ok := parseID(c, "logId", "log")
	if !ok {
		return
	}

	var req dto.UpdateHabitLogRequest
	if !bindBody(c, &req) {
		return
	}

	userID, ok := requireUser(c)
	if !ok {
		return
	}

	updated, err := h.service.UpdateHabitLog(c.Request.Context(), logID, userID, habits.UpdateLogInput{
		Value:     req.Value,
		Timestamp: req.Timestamp,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": HabitLogToResponse(updated)})
}

// DeleteHabitLog handles DELETE /api/habits/log/:logId
func (h *HabitsHandler) DeleteHabitLog(c *gin.Context) {
	logID, ok := parseID(c, "logId", "log")
	if !ok {
		return
	}
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	if err := h.service.DeleteHabitLog(c.Request.Context(), logID, userID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "habit log deleted successfully"})
}

// GetHabitStatistics handles GET /api/habits/:id/statistics
func (h *HabitsHandler) GetHabitStatistics(c *gin.Context) {
	id, ok := parseID(c, "id", "habit")
	if !ok {
		return
	}
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	stats, err := h.service.GetHabitStatistics(c.Request.Context(), id, userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": stats})
}

// GetStatisticsSummary handles GET /api/habits/statistics/summary
func (h *HabitsHandler) GetStatisticsSummary(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	summary, err := h.service.GetAllHabitsStatistics(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": summary})
}

// GetHabitHeatmap handles GET /api/habits/:id/heatmap
func (h *HabitsHandler) GetHabitHeatmap(c *gin.Context) {
	id, ok := parseID(c, "id", "habit")
	if !ok {
		return
	}
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	heatmap, err := h.service.GetHeatmap(c.Request.Context(), id, userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": heatmap})
}

// GetHabitActivity handles GET /api/habits/:id/activity
func (h *HabitsHandler) GetHabitActivity(c *gin.Context) {
	id, ok := parseID(c, "id", "habit")
	if !ok {
		return
	}
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	page, ok := bindPage(c)
	if !ok {
		return
	}

	activities, total, err := h.service.GetHabitActivity(c.Request.Context(), id, userID, page.Page, page.PageSize)
	if err != nil {
		respondError(c, err)
		return
	}

	responses := make([]dto.HabitActivityResponse, len(activities))
	for i := range activities {
		responses[i] = HabitActivityToResponse(&activities[i])
	}

	c.JSON(http.StatusOK, gin.H{"data": dto.HabitActivityListResponse{
		Activities: responses,
		TotalCount: total,
		Page:       page.Page,
		PageSize:   page.PageSize,
	}})
}
