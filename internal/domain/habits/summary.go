package habits

import (
	"time"

	"github.com/google/uuid"
)

// TrailingWindowDays is the window of the per-habit consistency rate
const TrailingWindowDays = 30

// HabitSummary is the per-habit entry of the multi-habit aggregation
type HabitSummary struct {
	HabitID         uuid.UUID  `json:"habit_id"`
	Name            string     `json:"name"`
	Logo            string     `json:"logo"`
	TotalLogs       int        `json:"total_logs"`
	UniqueDays      int        `json:"unique_days"`
	CompletionRate  float64    `json:"completion_rate"` // trailing 30 days
	LastCompletedAt *time.Time `json:"last_completed_at,omitempty"`
	CurrentStreak   int        `json:"current_streak"`
}

// AllHabitsStatistics is the user-level aggregation across every habit
type AllHabitsStatistics struct {
	Habits                []HabitSummary `json:"habits"`
	TotalHabits           int            `json:"total_habits"`
	TotalLogs             int            `json:"total_logs"`
	MostConsistentHabitID *uuid.UUID     `json:"most_consistent_habit_id"`
}

// ComputeAllHabitsStatistics summarises all habits of one user. Logs are
// matched to habits by HabitID; logs of unknown habits are ignored. The most
// consistent habit is the one with the highest trailing 30-day rate, and on a
// tie the one that comes first in habits keeps the title.
func ComputeAllHabitsStatistics(habits []Habit, logs []HabitLog, cal Calendar) AllHabitsStatistics {
	byHabit := make(map[uuid.UUID][]HabitLog, len(habits))
	for _, l := range logs {
		byHabit[l.HabitID] = append(byHabit[l.HabitID], l)
	}

	today := cal.Today()
	windowStart, err := cal.AddDays(today, -(TrailingWindowDays - 1))
	if err != nil {
		windowStart = today
	}

	result := AllHabitsStatistics{
		Habits:      make([]HabitSummary, 0, len(habits)),
		TotalHabits: len(habits),
	}

	bestRate := -1.0
	for _, h := range habits {
		habitLogs := byHabit[h.ID]
		days := CompletedDays(habitLogs, cal)

		recent := 0
		for _, d := range days {
			if d >= windowStart && d <= today {
				recent++
			}
		}

		summary := HabitSummary{
			HabitID:        h.ID,
			Name:           h.Name,
			Logo:           h.Logo,
			TotalLogs:      len(habitLogs),
			UniqueDays:     len(days),
			CompletionRate: round1(float64(recent) / TrailingWindowDays * 100),
			CurrentStreak:  ComputeStreakFromHistory(days, cal),
		}
		for _, l := range habitLogs {
			if l.Timestamp.IsZero() {
				continue
			}
			if summary.LastCompletedAt == nil || l.Timestamp.After(*summary.LastCompletedAt) {
				ts := l.Timestamp
				summary.LastCompletedAt = &ts
			}
		}

		result.TotalLogs += len(habitLogs)
		result.Habits = append(result.Habits, summary)

		if summary.CompletionRate > bestRate {
			bestRate = summary.CompletionRate
			id := h.ID
			result.MostConsistentHabitID = &id
		}
	}

	return result
}
