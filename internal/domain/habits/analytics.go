package habits

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// HabitActivity is an audit record of something that happened to a habit
type HabitActivity struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey"`
	HabitID   uuid.UUID      `gorm:"type:uuid;not null;index"`
	UserID    uuid.UUID      `gorm:"type:uuid;not null;index"`
	Action    string         `gorm:"type:varchar(50);not null"`
	Timestamp time.Time      `gorm:"not null;index"`
	Metadata  datatypes.JSON `gorm:"default:null"`
}

// TableName specifies the table name for the HabitActivity model
func (HabitActivity) TableName() string {
	return "habit_activities"
}

func (a *HabitActivity) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now()
	}
	return nil
}

// ActivityFilter defines filtering options for habit activity
type ActivityFilter struct {
	HabitID  *uuid.UUID
	UserID   *uuid.UUID
	Action   *string
	Page     int
	PageSize int
}

// Common activity actions
const (
	ActionHabitCreated    = "habit_created"
	ActionHabitUpdated    = "habit_updated"
	ActionHabitDeleted    = "habit_deleted"
	ActionHabitCompleted  = "habit_completed"
	ActionLogUpdated      = "log_updated"
	ActionLogDeleted      = "log_deleted"
	ActionStreakMilestone = "streak_milestone"
	ActionStreakRepaired  = "streak_repaired"
)

// streakMilestones are the streak lengths worth an activity record
var streakMilestones = map[int]bool{7: true, 30: true, 100: true, 365: true}
