package habits

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildHeatmap_Range(t *testing.T) {
	habit := Habit{ID: uuid.New()}

	hm := BuildHeatmap(habit, nil, testCalendar())

	assert.Equal(t, "2023-10-01", hm.Start)
	assert.Equal(t, "2024-03-15", hm.End)
	// Oct..Feb (31+30+31+31+29) plus 15 days of March
	require.Len(t, hm.Cells, 167)
	assert.Equal(t, "2023-10-01", hm.Cells[0].Date)
	assert.Equal(t, "2024-03-15", hm.Cells[len(hm.Cells)-1].Date)
	assert.Equal(t, 0, hm.MaxCount)
}

func TestBuildHeatmap_Counts(t *testing.T) {
	habit := Habit{ID: uuid.New()}
	logs := logsOn(habit.ID, 0, 0, 1, 400)

	hm := BuildHeatmap(habit, logs, testCalendar())

	last := hm.Cells[len(hm.Cells)-1]
	assert.Equal(t, 2, last.Count)
	assert.Equal(t, 1, last.Level)
	assert.Nil(t, last.Value)
	assert.Equal(t, 0, hm.Cells[0].Level)
	assert.Equal(t, 1, hm.Cells[len(hm.Cells)-2].Count)
	assert.Equal(t, 2, hm.MaxCount)

	total := 0
	for _, c := range hm.Cells {
		total += c.Count
	}
	assert.Equal(t, 3, total)
}

func TestBuildHeatmap_UnitValues(t *testing.T) {
	habit := Habit{ID: uuid.New(), Unit: strPtr("km")}
	logs := []HabitLog{
		{HabitID: habit.ID, Timestamp: testNow.Add(-time.Hour), Value: strPtr("10")},
		{HabitID: habit.ID, Timestamp: testNow.Add(-2 * time.Hour), Value: strPtr("5.5km")},
		{HabitID: habit.ID, Timestamp: daysAgo(1), Value: strPtr("n/a")},
	}

	hm := BuildHeatmap(habit, logs, testCalendar())

	today := hm.Cells[len(hm.Cells)-1]
	require.NotNil(t, today.Value)
	assert.Equal(t, 15.5, *today.Value)

	yesterday := hm.Cells[len(hm.Cells)-2]
	assert.Equal(t, 1, yesterday.Count)
	assert.Nil(t, yesterday.Value)
}

func TestHeatmapLevel(t *testing.T) {
	tests := []struct {
		count    int
		expected int
	}{
		{count: 0, expected: 0},
		{count: 1, expected: 1},
		{count: 2, expected: 1},
		{count: 3, expected: 2},
		{count: 4, expected: 2},
		{count: 5, expected: 3},
		{count: 12, expected: 3},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, HeatmapLevel(tt.count), "count %d", tt.count)
	}
}

func TestBuildHeatmap_Levels(t *testing.T) {
	habit := Habit{ID: uuid.New()}
	logs := logsOn(habit.ID, 0, 0, 0, 0, 0, 1, 1, 1)

	hm := BuildHeatmap(habit, logs, testCalendar())

	assert.Equal(t, 3, hm.Cells[len(hm.Cells)-1].Level)
	assert.Equal(t, 2, hm.Cells[len(hm.Cells)-2].Level)
	assert.Equal(t, 5, hm.MaxCount)
}
