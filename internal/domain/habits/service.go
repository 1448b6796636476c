package habits

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/seetohshaokang/HabitEase/internal/domain/events"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

const (
	maxCompletionAttempts = 3
	maxNameLength         = 255
	reconcilePageSize     = 500
	defaultStatsCacheTTL  = 5 * time.Minute
)

var errStreakConflict = errors.New("streak version changed")

var (
	completionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "habitease_completions_total",
			Help: "Completions recorded, by whether they were the first of the day",
		},
		[]string{"first_of_day"},
	)

	completionConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "habitease_completion_conflicts_total",
			Help: "Completion attempts retried because the habit changed underneath them",
		},
	)

	streakRepairs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "habitease_streak_repairs_total",
			Help: "Cached streaks corrected from log history",
		},
		[]string{"source"},
	)
)

// Cache is the subset of the Redis client the service relies on. A nil
// Cache disables caching and event publication.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	ClearByPattern(ctx context.Context, pattern string) error
	PublishHabitEvent(ctx context.Context, event *events.HabitEvent) error
}

type Service interface {
	CreateHabit(ctx context.Context, input CreateHabitInput) (*Habit, error)
	GetHabit(ctx context.Context, id, userID uuid.UUID) (*Habit, error)
	ListHabits(ctx context.Context, filter HabitFilter) ([]Habit, int64, error)
	UpdateHabit(ctx context.Context, id, userID uuid.UUID, input UpdateHabitInput) (*Habit, error)
	DeleteHabit(ctx context.Context, id, userID uuid.UUID) error

	// Completions and logs
	LogCompletion(ctx context.Context, id, userID uuid.UUID, value *string) (*CompletionResult, error)
	GetHabitLogs(ctx context.Context, id, userID uuid.UUID) ([]HabitLog, error)
	UpdateHabitLog(ctx context.Context, logID, userID uuid.UUID, input UpdateLogInput) (*HabitLog, error)
	DeleteHabitLog(ctx context.Context, logID, userID uuid.UUID) error

	// Derived views
	GetHabitStatistics(ctx context.Context, id, userID uuid.UUID) (*HabitStatistics, error)
	GetAllHabitsStatistics(ctx context.Context, userID uuid.UUID) (*AllHabitsStatistics, error)
	GetHeatmap(ctx context.Context, id, userID uuid.UUID) (*Heatmap, error)
	GetHabitActivity(ctx context.Context, id, userID uuid.UUID, page, pageSize int) ([]HabitActivity, int64, error)

	// ReconcileStreaks recomputes every cached streak from log history and
	// returns how many were corrected.
	ReconcileStreaks(ctx context.Context) (int, error)
}

type service struct {
	repo     Repository
	cache    Cache
	cal      Calendar
	cacheTTL time.Duration
	logger   *zap.Logger
}

// ServiceOption customises a service
type ServiceOption func(*service)

// WithCacheTTL sets how long derived statistics stay cached
func WithCacheTTL(ttl time.Duration) ServiceOption {
	return func(s *service) {
		if ttl > 0 {
			s.cacheTTL = ttl
		}
	}
}

func NewService(repo Repository, cache Cache, cal Calendar, logger *zap.Logger, opts ...ServiceOption) Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &service{
		repo:     repo,
		cache:    cache,
		cal:      cal,
		cacheTTL: defaultStatsCacheTTL,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func normalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return "", fmt.Errorf("%w: name exceeds %d characters", ErrInvalidInput, maxNameLength)
	}
	return name, nil
}

// normalizeUnit maps blank units to nil, i.e. a unit-less habit
func normalizeUnit(unit *string) *string {
	if unit == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*unit)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

// normalizeValue drops values of unit-less habits and rejects values a unit
// habit could never aggregate.
func normalizeValue(habit *Habit, value *string) (*string, error) {
	if !habit.HasUnit() || value == nil {
		return nil, nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil, nil
	}
	if _, ok := ParseLogValue(&trimmed); !ok {
		return nil, fmt.Errorf("%w: value %q is not numeric", ErrInvalidInput, trimmed)
	}
	return &trimmed, nil
}

func (s *service) CreateHabit(ctx context.Context, input CreateHabitInput) (*Habit, error) {
	if input.UserID == uuid.Nil {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	name, err := normalizeName(input.Name)
	if err != nil {
		return nil, err
	}

	habit := &Habit{
		UserID: input.UserID,
		Name:   name,
		Logo:   strings.TrimSpace(input.Logo),
		Unit:   normalizeUnit(input.Unit),
	}

	if err := s.repo.Create(ctx, habit); err != nil {
		return nil, fmt.Errorf("create habit: %w", err)
	}

	s.recordActivity(ctx, habit, ActionHabitCreated, map[string]interface{}{
		"name": habit.Name,
		"unit": habit.Unit,
	})
	s.publish(ctx, events.HabitEventCreated, habit.UserID, habit.ID, map[string]interface{}{
		"name": habit.Name,
	})

	return habit, nil
}

func (s *service) GetHabit(ctx context.Context, id, userID uuid.UUID) (*Habit, error) {
	return s.repo.FindByIDForUser(ctx, id, userID)
}

func (s *service) ListHabits(ctx context.Context, filter HabitFilter) ([]Habit, int64, error) {
	return s.repo.FindAll(ctx, filter)
}

func (s *service) UpdateHabit(ctx context.Context, id, userID uuid.UUID, input UpdateHabitInput) (*Habit, error) {
	habit, err := s.repo.FindByIDForUser(ctx, id, userID)
	if err != nil {
		return nil, err
	}

	changes := map[string]interface{}{}

	if input.Name != nil {
		name, err := normalizeName(*input.Name)
		if err != nil {
			return nil, err
		}
		if habit.Name != name {
			changes["name"] = map[string]string{"from": habit.Name, "to": name}
			habit.Name = name
		}
	}
	if input.Logo != nil {
		logo := strings.TrimSpace(*input.Logo)
		if logo == "" {
			logo = DefaultLogo
		}
		if habit.Logo != logo {
			changes["logo"] = logo
			habit.Logo = logo
		}
	}
	if input.Unit != nil {
		unit := normalizeUnit(input.Unit)
		if !sameString(habit.Unit, unit) {
			changes["unit"] = unit
			habit.Unit = unit
		}
	}

	if len(changes) == 0 {
		return habit, nil
	}

	if err := s.repo.Update(ctx, habit); err != nil {
		return nil, err
	}

	s.recordActivity(ctx, habit, ActionHabitUpdated, changes)
	s.publish(ctx, events.HabitEventUpdated, habit.UserID, habit.ID, nil)
	return habit, nil
}

func sameString(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func (s *service) DeleteHabit(ctx context.Context, id, userID uuid.UUID) error {
	habit, err := s.repo.FindByIDForUser(ctx, id, userID)
	if err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id, userID); err != nil {
		return err
	}

	s.logger.Info("Habit deleted",
		zap.String("habit_id", id.String()),
		zap.String("name", habit.Name))
	s.publish(ctx, events.HabitEventDeleted, userID, id, nil)
	return nil
}

// LogCompletion stores a completion for now and advances the cached streak.
// The read of the cached streak, the log insert and the streak write happen in
// one transaction guarded by the habit's streak version; a concurrent writer
// makes the attempt roll back and retry.
func (s *service) LogCompletion(ctx context.Context, id, userID uuid.UUID, value *string) (*CompletionResult, error) {
	now := s.cal.Now()
	todayStart, todayEnd := s.cal.DayBounds(now)
	yesterdayStart := todayStart.AddDate(0, 0, -1)
	today := s.cal.DayKey(now)

	for attempt := 1; attempt <= maxCompletionAttempts; attempt++ {
		var (
			result   CompletionResult
			habit    *Habit
			previous int
		)

		err := s.repo.Transaction(ctx, func(tx Repository) error {
			var err error
			habit, err = tx.FindByIDForUser(ctx, id, userID)
			if err != nil {
				return err
			}

			logValue, err := normalizeValue(habit, value)
			if err != nil {
				return err
			}

			hasToday, err := tx.HasLogBetween(ctx, habit.ID, todayStart, todayEnd)
			if err != nil {
				return fmt.Errorf("check today's logs: %w", err)
			}
			hasYesterday, err := tx.HasLogBetween(ctx, habit.ID, yesterdayStart, todayStart)
			if err != nil {
				return fmt.Errorf("check yesterday's logs: %w", err)
			}

			result = RecordCompletion(*habit, hasToday, hasYesterday, HabitLog{
				HabitID:   habit.ID,
				UserID:    userID,
				Timestamp: now,
				Value:     logValue,
			})

			if err := tx.CreateLog(ctx, &result.Log); err != nil {
				return fmt.Errorf("create log: %w", err)
			}

			lastDay := habit.LastCompletedDay
			if result.FirstOfDay {
				lastDay = &today
			}
			ok, err := tx.CompareAndSetStreak(ctx, habit.ID, habit.StreakVersion, result.UpdatedStreak, lastDay)
			if err != nil {
				return fmt.Errorf("update streak: %w", err)
			}
			if !ok {
				return errStreakConflict
			}

			previous = habit.Streak
			habit.Streak = result.UpdatedStreak
			habit.LastCompletedDay = lastDay
			habit.StreakVersion++
			return nil
		})

		if errors.Is(err, errStreakConflict) {
			completionConflicts.Inc()
			s.logger.Debug("Completion raced with another update, retrying",
				zap.String("habit_id", id.String()),
				zap.Int("attempt", attempt))
			continue
		}
		if err != nil {
			return nil, err
		}

		completionsTotal.WithLabelValues(fmt.Sprintf("%t", result.FirstOfDay)).Inc()
		s.afterCompletion(ctx, habit, previous, result)
		return &result, nil
	}

	return nil, ErrConcurrentUpdate
}

func (s *service) afterCompletion(ctx context.Context, habit *Habit, previous int, result CompletionResult) {
	s.recordActivity(ctx, habit, ActionHabitCompleted, map[string]interface{}{
		"log_id":          result.Log.ID,
		"value":           result.Log.Value,
		"first_of_day":    result.FirstOfDay,
		"previous_streak": previous,
		"streak":          result.UpdatedStreak,
	})

	if result.FirstOfDay && streakMilestones[result.UpdatedStreak] {
		s.recordActivity(ctx, habit, ActionStreakMilestone, map[string]interface{}{
			"streak": result.UpdatedStreak,
		})
		s.logger.Info("Streak milestone reached",
			zap.String("habit_id", habit.ID.String()),
			zap.Int("streak", result.UpdatedStreak))
	}

	s.publish(ctx, events.HabitEventCompleted, habit.UserID, habit.ID, map[string]interface{}{
		"streak":       result.UpdatedStreak,
		"first_of_day": result.FirstOfDay,
	})
}

func (s *service) GetHabitLogs(ctx context.Context, id, userID uuid.UUID) ([]HabitLog, error) {
	if _, err := s.repo.FindByIDForUser(ctx, id, userID); err != nil {
		return nil, err
	}
	return s.repo.FindLogs(ctx, id)
}

// UpdateHabitLog edits a log's value or timestamp. The cached streak is left
// alone and corrected by the next statistics read.
func (s *service) UpdateHabitLog(ctx context.Context, logID, userID uuid.UUID, input UpdateLogInput) (*HabitLog, error) {
	entry, err := s.repo.FindLogByID(ctx, logID, userID)
	if err != nil {
		return nil, err
	}
	habit, err := s.repo.FindByIDForUser(ctx, entry.HabitID, userID)
	if err != nil {
		return nil, err
	}

	if input.Value != nil {
		value, err := normalizeValue(habit, input.Value)
		if err != nil {
			return nil, err
		}
		entry.Value = value
	}
	if input.Timestamp != nil {
		if input.Timestamp.IsZero() {
			return nil, fmt.Errorf("%w: timestamp is required", ErrInvalidInput)
		}
		entry.Timestamp = *input.Timestamp
	}

	if err := s.repo.UpdateLog(ctx, entry); err != nil {
		return nil, err
	}

	s.recordActivity(ctx, habit, ActionLogUpdated, map[string]interface{}{
		"log_id":    entry.ID,
		"value":     entry.Value,
		"timestamp": entry.Timestamp,
	})
	s.publish(ctx, events.HabitEventLogChanged, userID, habit.ID, map[string]interface{}{
		"log_id": entry.ID,
	})
	return entry, nil
}

// DeleteHabitLog removes one log. Like edits, deletes do not touch the
// cached streak.
func (s *service) DeleteHabitLog(ctx context.Context, logID, userID uuid.UUID) error {
	entry, err := s.repo.FindLogByID(ctx, logID, userID)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteLog(ctx, logID, userID); err != nil {
		return err
	}

	if habit, err := s.repo.FindByIDForUser(ctx, entry.HabitID, userID); err == nil {
		s.recordActivity(ctx, habit, ActionLogDeleted, map[string]interface{}{
			"log_id":    entry.ID,
			"timestamp": entry.Timestamp,
		})
	}
	s.publish(ctx, events.HabitEventLogChanged, userID, entry.HabitID, map[string]interface{}{
		"log_id":  entry.ID,
		"deleted": true,
	})
	return nil
}

func (s *service) statsCacheKey(kind string, userID uuid.UUID, id string) string {
	return fmt.Sprintf("habits:%s:%s:%s:%s", kind, userID, id, s.cal.Today())
}

func (s *service) GetHabitStatistics(ctx context.Context, id, userID uuid.UUID) (*HabitStatistics, error) {
	habit, err := s.repo.FindByIDForUser(ctx, id, userID)
	if err != nil {
		return nil, err
	}

	key := s.statsCacheKey("stats", userID, id.String())
	var cached HabitStatistics
	if s.readCache(ctx, key, &cached) {
		return &cached, nil
	}

	logs, err := s.repo.FindLogs(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load logs: %w", err)
	}

	stats := ComputeHabitStatistics(*habit, logs, s.cal)
	if stats.MalformedLogs > 0 {
		s.logger.Warn("Skipping logs without a timestamp",
			zap.String("habit_id", id.String()),
			zap.Int("count", stats.MalformedLogs))
	}

	if stats.StreakStale {
		var lastDay *string
		if stats.LastLogDate != nil {
			d := s.cal.DayKey(*stats.LastLogDate)
			lastDay = &d
		}
		s.repairStreak(ctx, habit, stats.CurrentStreak, lastDay, "read")
	} else {
		s.writeCache(ctx, key, stats)
	}

	return &stats, nil
}

func (s *service) GetAllHabitsStatistics(ctx context.Context, userID uuid.UUID) (*AllHabitsStatistics, error) {
	key := s.statsCacheKey("summary", userID, "all")
	var cached AllHabitsStatistics
	if s.readCache(ctx, key, &cached) {
		return &cached, nil
	}

	habits, _, err := s.repo.FindAll(ctx, HabitFilter{UserID: &userID})
	if err != nil {
		return nil, fmt.Errorf("load habits: %w", err)
	}
	logs, err := s.repo.FindLogsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load logs: %w", err)
	}

	summary := ComputeAllHabitsStatistics(habits, logs, s.cal)

	repaired := false
	for i := range habits {
		current := summary.Habits[i].CurrentStreak
		if current == habits[i].Streak {
			continue
		}
		var lastDay *string
		if at := summary.Habits[i].LastCompletedAt; at != nil {
			d := s.cal.DayKey(*at)
			lastDay = &d
		}
		s.repairStreak(ctx, &habits[i], current, lastDay, "read")
		repaired = true
	}
	if !repaired {
		s.writeCache(ctx, key, summary)
	}

	return &summary, nil
}

func (s *service) GetHeatmap(ctx context.Context, id, userID uuid.UUID) (*Heatmap, error) {
	habit, err := s.repo.FindByIDForUser(ctx, id, userID)
	if err != nil {
		return nil, err
	}

	key := s.statsCacheKey("heatmap", userID, id.String())
	var cached Heatmap
	if s.readCache(ctx, key, &cached) {
		return &cached, nil
	}

	logs, err := s.repo.FindLogs(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load logs: %w", err)
	}
	hm := BuildHeatmap(*habit, logs, s.cal)
	s.writeCache(ctx, key, hm)
	return &hm, nil
}

func (s *service) GetHabitActivity(ctx context.Context, id, userID uuid.UUID, page, pageSize int) ([]HabitActivity, int64, error) {
	if _, err := s.repo.FindByIDForUser(ctx, id, userID); err != nil {
		return nil, 0, err
	}
	return s.repo.ListActivities(ctx, ActivityFilter{
		HabitID:  &id,
		UserID:   &userID,
		Page:     page,
		PageSize: pageSize,
	})
}

func (s *service) ReconcileStreaks(ctx context.Context) (int, error) {
	repaired := 0
	for page := 0; ; page++ {
		habits, _, err := s.repo.FindAll(ctx, HabitFilter{Page: page, PageSize: reconcilePageSize})
		if err != nil {
			return repaired, fmt.Errorf("load habits: %w", err)
		}

		for i := range habits {
			if err := ctx.Err(); err != nil {
				return repaired, err
			}
			logs, err := s.repo.FindLogs(ctx, habits[i].ID)
			if err != nil {
				return repaired, fmt.Errorf("load logs for %s: %w", habits[i].ID, err)
			}
			days := CompletedDays(logs, s.cal)
			current := ComputeStreakFromHistory(days, s.cal)
			if current == habits[i].Streak {
				continue
			}
			var lastDay *string
			if len(days) > 0 {
				lastDay = &days[len(days)-1]
			}
			if s.repairStreak(ctx, &habits[i], current, lastDay, "reconcile") {
				repaired++
			}
		}

		if len(habits) < reconcilePageSize {
			return repaired, nil
		}
	}
}

// repairStreak overwrites the cached streak with the value recomputed from
// history. A concurrent completion wins; the repair is then skipped.
func (s *service) repairStreak(ctx context.Context, habit *Habit, streak int, lastDay *string, source string) bool {
	ok, err := s.repo.CompareAndSetStreak(ctx, habit.ID, habit.StreakVersion, streak, lastDay)
	if err != nil {
		s.logger.Error("Failed to repair cached streak",
			zap.String("habit_id", habit.ID.String()),
			zap.Error(err))
		return false
	}
	if !ok {
		s.logger.Debug("Streak repair skipped, habit changed concurrently",
			zap.String("habit_id", habit.ID.String()))
		return false
	}

	streakRepairs.WithLabelValues(source).Inc()
	s.logger.Info("Repaired cached streak",
		zap.String("habit_id", habit.ID.String()),
		zap.Int("from", habit.Streak),
		zap.Int("to", streak),
		zap.String("source", source))

	s.recordActivity(ctx, habit, ActionStreakRepaired, map[string]interface{}{
		"from":   habit.Streak,
		"to":     streak,
		"source": source,
	})

	habit.Streak = streak
	habit.LastCompletedDay = lastDay
	habit.StreakVersion++
	s.publish(ctx, events.HabitEventStreakRepaired, habit.UserID, habit.ID, map[string]interface{}{
		"streak": streak,
	})
	return true
}

func (s *service) readCache(ctx context.Context, key string, dst interface{}) bool {
	if s.cache == nil {
		return false
	}
	raw, err := s.cache.Get(ctx, key)
	if err != nil {
		return false
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		s.logger.Warn("Discarding unreadable cache entry", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

func (s *service) writeCache(ctx context.Context, key string, value interface{}) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, string(data), s.cacheTTL); err != nil {
		s.logger.Debug("Failed to cache statistics", zap.String("key", key), zap.Error(err))
	}
}

// publish drops the user's cached statistics and announces the change
func (s *service) publish(ctx context.Context, eventType string, userID, entityID uuid.UUID, details map[string]interface{}) {
	if s.cache == nil {
		return
	}
	if err := s.cache.ClearByPattern(ctx, fmt.Sprintf("habits:*:%s:*", userID)); err != nil {
		s.logger.Debug("Failed to clear statistics cache", zap.Error(err))
	}
	event := &events.HabitEvent{
		EventType: eventType,
		UserID:    userID,
		EntityID:  entityID,
		Timestamp: time.Now().UTC(),
		Details:   details,
	}
	if err := s.cache.PublishHabitEvent(ctx, event); err != nil {
		s.logger.Error("Failed to publish habit event", zap.Error(err))
	}
}

func (s *service) recordActivity(ctx context.Context, habit *Habit, action string, metadata map[string]interface{}) {
	var raw datatypes.JSON
	if metadata != nil {
		data, err := json.Marshal(metadata)
		if err != nil {
			s.logger.Error("Failed to encode activity metadata", zap.Error(err))
		} else {
			raw = datatypes.JSON(data)
		}
	}

	activity := &HabitActivity{
		HabitID:   habit.ID,
		UserID:    habit.UserID,
		Action:    action,
		Timestamp: time.Now().UTC(),
		Metadata:  raw,
	}
	if err := s.repo.RecordActivity(ctx, activity); err != nil {
		s.logger.Error("Failed to record habit activity",
			zap.String("habit_id", habit.ID.String()),
			zap.String("action", action),
			zap.Error(err))
	}
}
