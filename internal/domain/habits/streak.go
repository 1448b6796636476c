package habits

import (
	"sort"
)

// CompletionResult is the outcome of recording one completion on the
// incremental streak path
type CompletionResult struct {
	Log           HabitLog
	UpdatedStreak int
	// FirstOfDay is false when the habit already had a log for the same day
	FirstOfDay bool
}

// RecordCompletion applies the incremental streak rule for a new log. The
// caller supplies whether the habit already had a log on the new log's day
// and on the day before it. A repeated same-day completion leaves the streak
// untouched; otherwise the chain is extended when yesterday was completed and
// restarted at 1 when it was not.
func RecordCompletion(habit Habit, hasLogToday, hasLogYesterday bool, newLog HabitLog) CompletionResult {
	if hasLogToday {
		return CompletionResult{Log: newLog, UpdatedStreak: habit.Streak, FirstOfDay: false}
	}
	streak := 1
	if hasLogYesterday {
		streak = habit.Streak + 1
	}
	return CompletionResult{Log: newLog, UpdatedStreak: streak, FirstOfDay: true}
}

// CompletedDays returns the sorted set of day-keys with at least one log.
// Logs with a zero timestamp are skipped.
func CompletedDays(logs []HabitLog, cal Calendar) []string {
	seen := make(map[string]struct{}, len(logs))
	for _, l := range logs {
		if l.Timestamp.IsZero() {
			continue
		}
		seen[cal.DayKey(l.Timestamp)] = struct{}{}
	}
	days := make([]string, 0, len(seen))
	for d := range seen {
		days = append(days, d)
	}
	sort.Strings(days)
	return days
}

// ComputeStreakFromHistory counts the consecutive completed days ending at
// today, or at the most recent completed day when today has no log yet.
// Days after today are ignored.
func ComputeStreakFromHistory(dayKeys []string, cal Calendar) int {
	today := cal.Today()
	set := make(map[string]struct{}, len(dayKeys))
	day := ""
	for _, d := range dayKeys {
		if d > today {
			continue
		}
		set[d] = struct{}{}
		if d > day {
			day = d
		}
	}
	if day == "" {
		return 0
	}

	streak := 0
	for {
		if _, ok := set[day]; !ok {
			return streak
		}
		streak++
		prev, err := cal.AddDays(day, -1)
		if err != nil {
			return streak
		}
		day = prev
	}
}

// LongestStreak returns the longest run of consecutive days in dayKeys
func LongestStreak(dayKeys []string, cal Calendar) int {
	if len(dayKeys) == 0 {
		return 0
	}
	sorted := append([]string(nil), dayKeys...)
	sort.Strings(sorted)

	longest, run := 1, 1
	for i := 1; i < len(sorted); i++ {
		if sorted[i] == sorted[i-1] {
			continue
		}
		next, err := cal.AddDays(sorted[i-1], 1)
		if err == nil && next == sorted[i] {
			run++
		} else {
			run = 1
		}
		if run > longest {
			longest = run
		}
	}
	return longest
}
