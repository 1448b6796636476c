package habits

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	monthKeyLayout    = "2006-01"
	monthlyTrendWidth = 6
)

// WeekdayStat is the completion share of one weekday
type WeekdayStat struct {
	Weekday     time.Weekday `json:"-"`
	Day         string       `json:"day"`
	Completions int          `json:"completions"`
	Occurrences int          `json:"occurrences"`
	Percentage  float64      `json:"percentage"`
}

// MonthlyTrendPoint is the number of logs in one calendar month
type MonthlyTrendPoint struct {
	Month string `json:"month"` // YYYY-MM
	Label string `json:"label"`
	Year  int    `json:"year"`
	Count int    `json:"count"`
}

// ValueAggregates summarises the numeric values of a unit habit
type ValueAggregates struct {
	Average float64 `json:"average"`
	Max     float64 `json:"max"`
	Samples int     `json:"samples"`
}

// HabitStatistics is the derived view of one habit's log history
type HabitStatistics struct {
	HabitID                  uuid.UUID           `json:"habit_id"`
	Name                     string              `json:"name"`
	Unit                     *string             `json:"unit,omitempty"`
	TotalLogs                int                 `json:"total_logs"`
	UniqueCompletionDays     int                 `json:"unique_completion_days"`
	CompletionRate           float64             `json:"completion_rate"`
	FirstLogDate             *time.Time          `json:"first_log_date,omitempty"`
	LastLogDate              *time.Time          `json:"last_log_date,omitempty"`
	CurrentMonthCompletions  int                 `json:"current_month_completions"`
	PreviousMonthCompletions int                 `json:"previous_month_completions"`
	MonthlyChangePercentage  *float64            `json:"monthly_change_percentage"`
	Weekdays                 []WeekdayStat       `json:"weekdays"`
	MonthlyTrend             []MonthlyTrendPoint `json:"monthly_trend"`
	Values                   *ValueAggregates    `json:"values,omitempty"`
	CurrentStreak            int                 `json:"current_streak"`
	LongestStreak            int                 `json:"longest_streak"`
	CachedStreak             int                 `json:"cached_streak"`
	StreakStale              bool                `json:"streak_stale"`
	MalformedLogs            int                 `json:"malformed_logs"`
}

// ComputeHabitStatistics derives the statistics record of one habit. It never
// fails: logs without a usable timestamp still count towards TotalLogs but
// are left out of every date-based figure and reported in MalformedLogs.
func ComputeHabitStatistics(habit Habit, logs []HabitLog, cal Calendar) HabitStatistics {
	now := cal.Now()
	today := cal.DayKey(now)

	stats := HabitStatistics{
		HabitID:      habit.ID,
		Name:         habit.Name,
		Unit:         habit.Unit,
		TotalLogs:    len(logs),
		CachedStreak: habit.Streak,
		MonthlyTrend: monthlyTrend(logs, cal, now),
	}

	currentMonth := cal.StartOfMonth(now, 0).Format(monthKeyLayout)
	previousMonth := cal.StartOfMonth(now, -1).Format(monthKeyLayout)

	var first, last time.Time
	for _, l := range logs {
		if l.Timestamp.IsZero() {
			stats.MalformedLogs++
			continue
		}
		if first.IsZero() || l.Timestamp.Before(first) {
			first = l.Timestamp
		}
		if last.IsZero() || l.Timestamp.After(last) {
			last = l.Timestamp
		}
		switch l.Timestamp.In(cal.loc()).Format(monthKeyLayout) {
		case currentMonth:
			stats.CurrentMonthCompletions++
		case previousMonth:
			stats.PreviousMonthCompletions++
		}
	}

	if stats.PreviousMonthCompletions > 0 {
		change := round1(float64(stats.CurrentMonthCompletions-stats.PreviousMonthCompletions) /
			float64(stats.PreviousMonthCompletions) * 100)
		stats.MonthlyChangePercentage = &change
	}

	days := CompletedDays(logs, cal)
	stats.UniqueCompletionDays = len(days)
	stats.CurrentStreak = ComputeStreakFromHistory(days, cal)
	stats.LongestStreak = LongestStreak(days, cal)
	stats.StreakStale = stats.CurrentStreak != habit.Streak

	if !first.IsZero() {
		firstCopy, lastCopy := first, last
		stats.FirstLogDate = &firstCopy
		stats.LastLogDate = &lastCopy

		end := now
		if last.After(end) {
			end = last
		}
		if elapsed := cal.DaysBetween(first, end); elapsed > 0 {
			stats.CompletionRate = round1(float64(len(days)) / float64(elapsed) * 100)
		}
	}
	stats.Weekdays = weekdayDistribution(days, first, now, today, cal)

	if habit.HasUnit() {
		stats.Values = aggregateValues(logs)
	}

	return stats
}

// weekdayDistribution divides completed days per weekday by the number of
// times that weekday occurs between the first log and today, both inclusive.
func weekdayDistribution(days []string, first, now time.Time, today string, cal Calendar) []WeekdayStat {
	out := make([]WeekdayStat, 7)
	for i := range out {
		wd := time.Weekday(i)
		out[i] = WeekdayStat{Weekday: wd, Day: wd.String()}
	}
	if first.IsZero() {
		return out
	}

	span := cal.DaysBetween(first, now)
	if span > 0 {
		start := first.In(cal.loc()).Weekday()
		for i := range out {
			out[i].Occurrences = span / 7
		}
		for i := 0; i < span%7; i++ {
			out[(int(start)+i)%7].Occurrences++
		}
	}

	for _, d := range days {
		if d > today {
			continue
		}
		t, err := cal.ParseDayKey(d)
		if err != nil {
			continue
		}
		out[t.Weekday()].Completions++
	}

	for i := range out {
		if out[i].Occurrences > 0 {
			out[i].Percentage = round1(float64(out[i].Completions) / float64(out[i].Occurrences) * 100)
		}
	}
	return out
}

// monthlyTrend counts logs in each of the trailing calendar months, oldest
// first, the current month last.
func monthlyTrend(logs []HabitLog, cal Calendar, now time.Time) []MonthlyTrendPoint {
	points := make([]MonthlyTrendPoint, monthlyTrendWidth)
	index := make(map[string]int, monthlyTrendWidth)
	for i := 0; i < monthlyTrendWidth; i++ {
		m := cal.StartOfMonth(now, i-(monthlyTrendWidth-1))
		key := m.Format(monthKeyLayout)
		points[i] = MonthlyTrendPoint{
			Month: key,
			Label: m.Month().String()[:3],
			Year:  m.Year(),
		}
		index[key] = i
	}
	for _, l := range logs {
		if l.Timestamp.IsZero() {
			continue
		}
		if i, ok := index[l.Timestamp.In(cal.loc()).Format(monthKeyLayout)]; ok {
			points[i].Count++
		}
	}
	return points
}

func aggregateValues(logs []HabitLog) *ValueAggregates {
	agg := &ValueAggregates{}
	sum := 0.0
	for _, l := range logs {
		v, ok := ParseLogValue(l.Value)
		if !ok {
			continue
		}
		if agg.Samples == 0 || v > agg.Max {
			agg.Max = v
		}
		sum += v
		agg.Samples++
	}
	if agg.Samples > 0 {
		agg.Average = sum / float64(agg.Samples)
	}
	return agg
}

var leadingNumber = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?`)

// ParseLogValue reads the numeric part of a log value. Values such as
// "20mins" yield their leading number; nil, empty and non-numeric values
// report false.
func ParseLogValue(value *string) (float64, bool) {
	if value == nil {
		return 0, false
	}
	match := leadingNumber.FindString(strings.TrimSpace(*value))
	if match == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(match, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
