package habits

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DefaultLogo is used when a habit is created without a display glyph
const DefaultLogo = "✅"

type Habit struct {
	ID               uuid.UUID  `gorm:"type:uuid;primaryKey"`
	UserID           uuid.UUID  `gorm:"type:uuid;not null;index"`
	Name             string     `gorm:"size:255;not null"`
	Logo             string     `gorm:"size:32;not null"`
	Unit             *string    `gorm:"size:64;default:null"`
	Streak           int        `gorm:"default:0;not null"`
	LastCompletedDay *string    `gorm:"size:10;default:null"` // day-key of the last first-of-day completion
	StreakVersion    int        `gorm:"default:0;not null"`
	Logs             []HabitLog `gorm:"constraint:OnDelete:CASCADE"`
	CreatedAt        time.Time  `gorm:"not null"`
	UpdatedAt        time.Time  `gorm:"not null"`
}

// TableName specifies the table name for the Habit model
func (Habit) TableName() string {
	return "habits"
}

// HasUnit reports whether completions of this habit carry a measured value
func (h *Habit) HasUnit() bool {
	return h.Unit != nil && *h.Unit != ""
}

// HabitLog represents one completion event of a habit
type HabitLog struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	HabitID   uuid.UUID `gorm:"type:uuid;not null;index:idx_habit_log_time,priority:1"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;index"`
	Timestamp time.Time `gorm:"not null;index:idx_habit_log_time,priority:2"`
	Value     *string   `gorm:"size:255;default:null"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName specifies the table name for the HabitLog model
func (HabitLog) TableName() string {
	return "habit_logs"
}

// CreateHabitInput represents the input for creating a new habit
type CreateHabitInput struct {
	Name   string    `json:"name"`
	Logo   string    `json:"logo"`
	Unit   *string   `json:"unit"`
	UserID uuid.UUID `json:"user_id"`
}

// UpdateHabitInput represents the input for updating a habit
type UpdateHabitInput struct {
	Name *string `json:"name,omitempty"`
	Logo *string `json:"logo,omitempty"`
	Unit *string `json:"unit,omitempty"`
}

// UpdateLogInput represents the input for editing a completion log
type UpdateLogInput struct {
	Value     *string    `json:"value,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// HabitFilter defines the filtering options for habits
type HabitFilter struct {
	UserID   *uuid.UUID
	Name     *string
	Page     int
	PageSize int
}

// BeforeCreate is called before creating a new habit record
func (h *Habit) BeforeCreate(tx *gorm.DB) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	if h.Logo == "" {
		h.Logo = DefaultLogo
	}
	now := time.Now()
	h.CreatedAt = now
	h.UpdatedAt = now
	return nil
}

// BeforeUpdate is called before updating a habit record
func (h *Habit) BeforeUpdate(tx *gorm.DB) error {
	h.UpdatedAt = time.Now()
	return nil
}

func (l *HabitLog) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	now := time.Now()
	if l.Timestamp.IsZero() {
		l.Timestamp = now
	}
	l.CreatedAt = now
	l.UpdatedAt = now
	return nil
}

func (l *HabitLog) BeforeUpdate(tx *gorm.DB) error {
	l.UpdatedAt = time.Now()
	return nil
}
