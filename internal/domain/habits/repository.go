package habits

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/seetohshaokang/HabitEase/internal/infrastructure/persistence/postgres/connection"
	"gorm.io/gorm"
)

var (
	ErrHabitNotFound    = errors.New("habit not found")
	ErrLogNotFound      = errors.New("habit log not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrConcurrentUpdate = errors.New("habit was modified concurrently")
)

const (
	defaultListPageSize  = 10000
	defaultActivityLimit = 100
)

// Repository defines the interface for habit persistence operations
type Repository interface {
	Create(ctx context.Context, habit *Habit) error
	FindByID(ctx context.Context, id uuid.UUID) (*Habit, error)
	FindByIDForUser(ctx context.Context, id, userID uuid.UUID) (*Habit, error)
	FindAll(ctx context.Context, filter HabitFilter) ([]Habit, int64, error)
	Update(ctx context.Context, habit *Habit) error
	Delete(ctx context.Context, id, userID uuid.UUID) error

	// Logs
	CreateLog(ctx context.Context, log *HabitLog) error
	FindLogs(ctx context.Context, habitID uuid.UUID) ([]HabitLog, error)
	FindLogsByUser(ctx context.Context, userID uuid.UUID) ([]HabitLog, error)
	FindLogByID(ctx context.Context, id, userID uuid.UUID) (*HabitLog, error)
	UpdateLog(ctx context.Context, log *HabitLog) error
	DeleteLog(ctx context.Context, id, userID uuid.UUID) error
	HasLogBetween(ctx context.Context, habitID uuid.UUID, start, end time.Time) (bool, error)

	// CompareAndSetStreak stores a new streak only if the habit's version is
	// still expectedVersion. It reports whether the write happened.
	CompareAndSetStreak(ctx context.Context, habitID uuid.UUID, expectedVersion, streak int, lastDay *string) (bool, error)

	// Transaction runs fn against a repository bound to one transaction
	Transaction(ctx context.Context, fn func(Repository) error) error

	// Activity trail
	RecordActivity(ctx context.Context, activity *HabitActivity) error
	ListActivities(ctx context.Context, filter ActivityFilter) ([]HabitActivity, int64, error)
}

type repository struct {
	db *connection.Database
}

func NewRepository(db *connection.Database) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, habit *Habit) error {
	return r.db.WithContext(ctx).Create(habit).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*Habit, error) {
	var habit Habit
	result := r.db.WithContext(ctx).Where("id = ?", id).First(&habit)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrHabitNotFound
		}
		return nil, result.Error
	}
	return &habit, nil
}

// FindByIDForUser hides other users' habits behind ErrHabitNotFound
func (r *repository) FindByIDForUser(ctx context.Context, id, userID uuid.UUID) (*Habit, error) {
	var habit Habit
	result := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&habit)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrHabitNotFound
		}
		return nil, result.Error
	}
	return &habit, nil
}

func (r *repository) FindAll(ctx context.Context, filter HabitFilter) ([]Habit, int64, error) {
	var habits []Habit
	var total int64
	query := r.db.WithContext(ctx).Model(&Habit{})

	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}

	if filter.Name != nil {
		query = query.Where("name LIKE ?", "%"+*filter.Name+"%")
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if filter.PageSize <= 0 {
		filter.PageSize = defaultListPageSize
	}

	err := query.Order("created_at ASC").
		Offset(filter.Page * filter.PageSize).
		Limit(filter.PageSize).
		Find(&habits).Error
	if err != nil {
		return nil, 0, err
	}

	return habits, total, nil
}

// Update writes the user-editable fields only; streak columns are owned by
// CompareAndSetStreak.
func (r *repository) Update(ctx context.Context, habit *Habit) error {
	habit.UpdatedAt = time.Now().UTC()
	result := r.db.WithContext(ctx).Model(&Habit{}).
		Where("id = ? AND user_id = ?", habit.ID, habit.UserID).
		Select("name", "logo", "unit", "updated_at").
		Updates(map[string]interface{}{
			"name":       habit.Name,
			"logo":       habit.Logo,
			"unit":       habit.Unit,
			"updated_at": habit.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrHabitNotFound
	}
	return nil
}

// Delete removes the habit together with its logs and activity trail
func (r *repository) Delete(ctx context.Context, id, userID uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("id = ? AND user_id = ?", id, userID).Delete(&Habit{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrHabitNotFound
		}
		if err := tx.Where("habit_id = ?", id).Delete(&HabitLog{}).Error; err != nil {
			return err
		}
		return tx.Where("habit_id = ?", id).Delete(&HabitActivity{}).Error
	})
}

func (r *repository) CreateLog(ctx context.Context, log *HabitLog) error {
	log.Timestamp = log.Timestamp.UTC()
	return r.db.WithContext(ctx).Create(log).Error
}

func (r *repository) FindLogs(ctx context.Context, habitID uuid.UUID) ([]HabitLog, error) {
	var logs []HabitLog
	err := r.db.WithContext(ctx).
		Where("habit_id = ?", habitID).
		Order("timestamp DESC").
		Find(&logs).Error
	return logs, err
}

func (r *repository) FindLogsByUser(ctx context.Context, userID uuid.UUID) ([]HabitLog, error) {
	var logs []HabitLog
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("timestamp DESC").
		Find(&logs).Error
	return logs, err
}

func (r *repository) FindLogByID(ctx context.Context, id, userID uuid.UUID) (*HabitLog, error) {
	var log HabitLog
	result := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&log)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrLogNotFound
		}
		return nil, result.Error
	}
	return &log, nil
}

func (r *repository) UpdateLog(ctx context.Context, log *HabitLog) error {
	log.Timestamp = log.Timestamp.UTC()
	log.UpdatedAt = time.Now().UTC()
	result := r.db.WithContext(ctx).Model(&HabitLog{}).
		Where("id = ? AND user_id = ?", log.ID, log.UserID).
		Select("timestamp", "value", "updated_at").
		Updates(map[string]interface{}{
			"timestamp":  log.Timestamp,
			"value":      log.Value,
			"updated_at": log.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrLogNotFound
	}
	return nil
}

func (r *repository) DeleteLog(ctx context.Context, id, userID uuid.UUID) error {
	result := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).Delete(&HabitLog{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrLogNotFound
	}
	return nil
}

// HasLogBetween reports whether the habit has a log in [start, end)
func (r *repository) HasLogBetween(ctx context.Context, habitID uuid.UUID, start, end time.Time) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&HabitLog{}).
		Where("habit_id = ? AND timestamp >= ? AND timestamp < ?", habitID, start.UTC(), end.UTC()).
		Limit(1).
		Count(&count).Error
	return count > 0, err
}

func (r *repository) CompareAndSetStreak(ctx context.Context, habitID uuid.UUID, expectedVersion, streak int, lastDay *string) (bool, error) {
	result := r.db.WithContext(ctx).Model(&Habit{}).
		Where("id = ? AND streak_version = ?", habitID, expectedVersion).
		Updates(map[string]interface{}{
			"streak":             streak,
			"last_completed_day": lastDay,
			"streak_version":     expectedVersion + 1,
			"updated_at":         time.Now().UTC(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repository) Transaction(ctx context.Context, fn func(Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&repository{db: connection.Wrap(tx)})
	})
}

func (r *repository) RecordActivity(ctx context.Context, activity *HabitActivity) error {
	return r.db.WithContext(ctx).Create(activity).Error
}

func (r *repository) ListActivities(ctx context.Context, filter ActivityFilter) ([]HabitActivity, int64, error) {
	var activities []HabitActivity
	var total int64
	query := r.db.WithContext(ctx).Model(&HabitActivity{})

	if filter.HabitID != nil {
		query = query.Where("habit_id = ?", *filter.HabitID)
	}
	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}
	if filter.Action != nil {
		query = query.Where("action = ?", *filter.Action)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if filter.PageSize <= 0 {
		filter.PageSize = defaultActivityLimit
	}

	err := query.Order("timestamp DESC").
		Offset(filter.Page * filter.PageSize).
		Limit(filter.PageSize).
		Find(&activities).Error
	if err != nil {
		return nil, 0, err
	}

	return activities, total, nil
}
