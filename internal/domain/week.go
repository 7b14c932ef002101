package domain

import (
	"math"
	"time"
)

// CurrentWeekBounds returns the window from the most recent Monday at local midnight up to now.
// The window ends at now, not at the following Sunday.
func CurrentWeekBounds(now time.Time) (start, end time.Time) {
	// Weekday counts from Sunday = 0; shift so Monday opens the week.
	back := (int(now.Weekday()) + 6) % 7
	y, m, d := now.Date()
	start = time.Date(y, m, d-back, 0, 0, 0, 0, now.Location())
	return start, now
}

// FilterToWindow keeps the activities dated within [start, end].
func FilterToWindow(activities []Activity, start, end time.Time) []Activity {
	out := make([]Activity, 0, len(activities))
	for _, a := range activities {
		if a.Date.IsZero() || a.Date.Before(start) || a.Date.After(end) {
			continue
		}
		out = append(out, a)
	}
	return out
}

// WeeklyTarget is the configured weekly goal.
type WeeklyTarget struct {
	TargetDistance  int     `json:"target_distance"`
	TargetTimeHours float64 `json:"target_time_hours"`
}

// WeeklyReport is the dashboard view of the current week.
type WeeklyReport struct {
	Start  time.Time    `json:"start"`
	End    time.Time    `json:"end"`
	Stats  Summary      `json:"stats"`
	Target WeeklyTarget `json:"target"`
	// Progress values are percentages of the target, capped at 100.
	DistanceProgress float64 `json:"distance_progress"`
	TimeProgress     float64 `json:"time_progress"`
}

// WeeklyStats aggregates the activities of the week containing now and compares them with target.
func WeeklyStats(activities []Activity, now time.Time, target WeeklyTarget) WeeklyReport {
	start, end := CurrentWeekBounds(now)
	stats := Aggregate(FilterToWindow(activities, start, end))
	return WeeklyReport{
		Start:            start,
		End:              end,
		Stats:            stats,
		Target:           target,
		DistanceProgress: progress(float64(stats.TotalDistance), float64(target.TargetDistance)),
		TimeProgress:     progress(float64(stats.TotalDurationMinutes), target.TargetTimeHours*60),
	}
}

func progress(value, target float64) float64 {
	if target <= 0 {
		return 0
	}
	pct := value / target * 100
	return math.Min(100, math.Round(pct*10)/10)
}
