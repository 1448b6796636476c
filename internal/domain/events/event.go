package events

import (
	"time"

	"github.com/google/uuid"
)

// Habit event types
const (
	HabitEventCreated         = "habit_created"
	HabitEventUpdated         = "habit_updated"
	HabitEventDeleted         = "habit_deleted"
	HabitEventCompleted       = "habit_completed"
	HabitEventLogChanged      = "habit_log_changed"
	HabitEventStreakRepaired  = "habit_streak_repaired"
	HabitEventCacheInvalidate = "cache_invalidate"
)

// HabitEvent is published whenever a user's habit data changes, so that
// cached responses for that user can be dropped.
type HabitEvent struct {
	EventType string                 `json:"event_type"`
	UserID    uuid.UUID              `json:"user_id"`
	EntityID  uuid.UUID              `json:"entity_id"`
	Timestamp time.Time              `json:"timestamp"`
	Details   map[string]interface{} `json:"details,omitempty"`
}
