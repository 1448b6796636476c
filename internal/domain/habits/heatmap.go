package habits

// HeatmapMonths is how many calendar months the heatmap covers, current included
const HeatmapMonths = 6

// HeatmapCell is one day of the heatmap
type HeatmapCell struct {
	Date  string   `json:"date"`
	Count int      `json:"count"`
	Level int      `json:"level"`
	Value *float64 `json:"value,omitempty"`
}

// HeatmapLevel buckets a day's log count into 0 (none) through 3 (5 or more)
func HeatmapLevel(count int) int {
	switch {
	case count >= 5:
		return 3
	case count >= 3:
		return 2
	case count >= 1:
		return 1
	default:
		return 0
	}
}

// Heatmap is a day-by-day grid of completions
type Heatmap struct {
	Start    string        `json:"start"`
	End      string        `json:"end"`
	Cells    []HeatmapCell `json:"cells"`
	MaxCount int           `json:"max_count"`
}

// BuildHeatmap lays out one cell per day from the first day of the month five
// months back through today. Unit habits also carry the sum of the day's
// numeric values.
func BuildHeatmap(habit Habit, logs []HabitLog, cal Calendar) Heatmap {
	now := cal.Now()
	start := cal.StartOfMonth(now, -(HeatmapMonths - 1))
	end := cal.StartOfDay(now)

	counts := make(map[string]int)
	sums := make(map[string]float64)
	withValue := make(map[string]bool)
	for _, l := range logs {
		if l.Timestamp.IsZero() {
			continue
		}
		key := cal.DayKey(l.Timestamp)
		counts[key]++
		if v, ok := ParseLogValue(l.Value); ok {
			sums[key] += v
			withValue[key] = true
		}
	}

	hm := Heatmap{
		Start: start.Format(DayKeyLayout),
		End:   end.Format(DayKeyLayout),
	}
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		key := d.Format(DayKeyLayout)
		cell := HeatmapCell{Date: key, Count: counts[key], Level: HeatmapLevel(counts[key])}
		if habit.HasUnit() && withValue[key] {
			v := sums[key]
			cell.Value = &v
		}
		if cell.Count > hm.MaxCount {
			hm.MaxCount = cell.Count
		}
		hm.Cells = append(hm.Cells, cell)
	}
	return hm
}
