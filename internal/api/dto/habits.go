package dto

import (
	"time"

	"github.com/google/uuid"
)

// CreateHabitRequest represents the request to create a new habit
type CreateHabitRequest struct {
	Name string  `json:"name" binding:"required,max=255"`
	Logo string  `json:"logo" binding:"omitempty,max=32"`
	Unit *string `json:"unit" binding:"omitempty,max=64"`
}

// UpdateHabitRequest represents the request to update an existing habit
type UpdateHabitRequest struct {
	Name *string `json:"name,omitempty" binding:"omitempty,max=255"`
	Logo *string `json:"logo,omitempty" binding:"omitempty,max=32"`
	Unit *string `json:"unit,omitempty" binding:"omitempty,max=64"`
}

// CompleteHabitRequest represents the request to record a completion
type CompleteHabitRequest struct {
	Value *string `json:"value,omitempty" binding:"omitempty,max=255"`
}

// UpdateHabitLogRequest represents the request to edit a completion log
type UpdateHabitLogRequest struct {
	Value     *string    `json:"value,omitempty" binding:"omitempty,max=255"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// PageQuery holds the pagination query parameters of list endpoints
type PageQuery struct {
	Page     int `form:"page" binding:"min=0"`
	PageSize int `form:"page_size" binding:"omitempty,min=1,max=100"`
}

// HabitResponse represents a habit in API responses
type HabitResponse struct {
	ID               uuid.UUID `json:"id"`
	UserID           uuid.UUID `json:"user_id"`
	Name             string    `json:"name"`
	Logo             string    `json:"logo"`
	Unit             *string   `json:"unit"`
	Streak           int       `json:"streak"`
	LastCompletedDay *string   `json:"last_completed_day,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// HabitListResponse represents the response for listing habits
type HabitListResponse struct {
	Habits     []HabitResponse `json:"habits"`
	TotalCount int64           `json:"total_count"`
	Page       int             `json:"page"`
	PageSize   int             `json:"page_size"`
}

// HabitLogResponse represents one completion log in API responses
type HabitLogResponse struct {
	ID        uuid.UUID `json:"id"`
	HabitID   uuid.UUID `json:"habit_id"`
	Timestamp time.Time `json:"timestamp"`
	Value     *string   `json:"value"`
}

// CompletionResponse is returned after a completion is recorded
type CompletionResponse struct {
	Log        HabitLogResponse `json:"log"`
	Streak     int              `json:"streak"`
	FirstOfDay bool             `json:"first_of_day"`
}

// HabitActivityResponse represents a single activity trail entry
type HabitActivityResponse struct {
	ID        uuid.UUID              `json:"id"`
	HabitID   uuid.UUID              `json:"habit_id"`
	Action    string                 `json:"action"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// HabitActivityListResponse represents the paginated activity trail of a habit
type HabitActivityListResponse struct {
	Activities []HabitActivityResponse `json:"activities"`
	TotalCount int64                   `json:"total_count"`
	Page       int                     `json:"page"`
	PageSize   int                     `json:"page_size"`
}
