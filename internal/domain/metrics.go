package domain

import (
	"fmt"
	"math"
)

// PaceSeconds is the time in whole seconds needed per 100 distance units, floored.
// It is 0 when either distance or duration is zero.
func PaceSeconds(distance, durationMinutes int) int {
	if distance <= 0 || durationMinutes <= 0 {
		return 0
	}
	// (minutes*60) / (distance/100), kept in integers so the floor is exact.
	return durationMinutes * 6000 / distance
}

// Pace renders PaceSeconds as "M:SS". A session without distance or time has pace "0:00".
func Pace(distance, durationMinutes int) string {
	secs := PaceSeconds(distance, durationMinutes)
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}

// Summary aggregates a collection of activities.
type Summary struct {
	Count                int    `json:"count"`
	TotalDistance        int    `json:"total_distance"`
	TotalDurationMinutes int    `json:"total_duration_minutes"`
	AveragePace          string `json:"average_pace"`
	AverageHeartRate     int    `json:"average_heart_rate"`
}

// Aggregate sums distance and duration and derives the combined pace. The pace is that of all
// sessions swum back to back, so longer sessions weigh more than short ones. The average heart
// rate covers only activities that recorded one and is 0 when none did.
func Aggregate(activities []Activity) Summary {
	s := Summary{Count: len(activities)}
	hrTotal, hrCount := 0, 0
	for _, a := range activities {
		s.TotalDistance += a.Distance
		s.TotalDurationMinutes += a.DurationMinutes
		if a.HeartRateAvg != nil {
			hrTotal += *a.HeartRateAvg
			hrCount++
		}
	}
	s.AveragePace = Pace(s.TotalDistance, s.TotalDurationMinutes)
	if hrCount > 0 {
		s.AverageHeartRate = int(math.Round(float64(hrTotal) / float64(hrCount)))
	}
	return s
}
