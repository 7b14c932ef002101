package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPace(t *testing.T) {
	require.Equal(t, "2:00", Pace(1000, 20))
	require.Equal(t, "2:06", Pace(1000, 21))
	require.Equal(t, "0:00", Pace(0, 30))
	require.Equal(t, "0:00", Pace(1000, 0))
	require.Equal(t, "0:00", Pace(-100, 10))
	// 7 minutes over 333 units floors to 126 seconds.
	require.Equal(t, 126, PaceSeconds(333, 7))
}

func TestAggregateWeighsByDistance(t *testing.T) {
	short := Activity{Distance: 100, DurationMinutes: 1}
	long := Activity{Distance: 300, DurationMinutes: 9}

	s := Aggregate([]Activity{short, long})

	require.Equal(t, 2, s.Count)
	require.Equal(t, 400, s.TotalDistance)
	require.Equal(t, 10, s.TotalDurationMinutes)
	require.Equal(t, Pace(400, 10), s.AveragePace)
	require.Equal(t, "2:30", s.AveragePace)
}

func TestAggregateHeartRateSkipsMissing(t *testing.T) {
	hr := func(n int) *int { return &n }
	s := Aggregate([]Activity{
		{Distance: 1000, DurationMinutes: 20, HeartRateAvg: hr(140)},
		{Distance: 1000, DurationMinutes: 20, HeartRateAvg: hr(151)},
		{Distance: 1000, DurationMinutes: 20},
	})
	require.Equal(t, 146, s.AverageHeartRate)

	empty := Aggregate(nil)
	require.Zero(t, empty.Count)
	require.Zero(t, empty.AverageHeartRate)
	require.Equal(t, "0:00", empty.AveragePace)
}
