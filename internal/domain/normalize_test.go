package domain

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNormalizeResolvesAliases(t *testing.T) {
	n := Normalizer{Location: time.UTC}
	raw := Record{
		"id":              "a1",
		"start":           "2024-01-10T07:45:00Z",
		"pool":            " Clube Pinheiros ",
		"locationType":    "Open Water",
		"poolLength":      float64(50),
		"durationMinutes": "1h 15m",
		"distance":        json.Number("2500"),
		"waterTemp":       "26.5",
		"feeling":         "Good",
		"heartRate":       map[string]any{"avg": float64(142), "max": float64(171)},
		"notes":           "threshold",
	}

	act, err := n.Normalize(raw)
	require.NoError(t, err)

	require.Equal(t, "a1", act.ID)
	require.Equal(t, time.Date(2024, time.January, 10, 0, 0, 0, 0, time.UTC), act.Date)
	require.Equal(t, "Clube Pinheiros", act.LocationName)
	require.Equal(t, LocationOpenWater, act.LocationType)
	require.NotNil(t, act.PoolSize)
	require.Equal(t, 50, *act.PoolSize)
	require.Equal(t, 75, act.DurationMinutes)
	require.Equal(t, 2500, act.Distance)
	require.NotNil(t, act.WaterTemp)
	require.InDelta(t, 26.5, *act.WaterTemp, 0.0001)
	require.Equal(t, FeelingGood, act.Feeling)
	require.Equal(t, 142, *act.HeartRateAvg)
	require.Equal(t, 171, *act.HeartRateMax)
	require.Equal(t, "threshold", act.Notes)
	require.Empty(t, act.Intervals)
	require.NotNil(t, act.Intervals)
}

func TestNormalizeMissingDistanceAndDuration(t *testing.T) {
	_, err := Normalize(Record{"date": "2024-01-10", "feeling": "good"})

	var missing *MissingRequiredFieldError
	require.ErrorAs(t, err, &missing)
	require.Equal(t, "distance|duration", missing.Field)
	require.EqualError(t, err, "missing required field: distance|duration")
	require.Equal(t, "missing_required_field", RejectionReason(err))
}

func TestNormalizeOutOfRangeQuantitiesStayNonNegative(t *testing.T) {
	n := Normalizer{Location: time.UTC}

	act, err := n.Normalize(Record{"distance": 1000, "duration": json.Number("1e300")})
	require.NoError(t, err)
	require.Equal(t, 0, act.DurationMinutes)
	require.Equal(t, 1000, act.Distance)

	act, err = n.Normalize(Record{"distance": 1000, "duration": "153722867280912931h"})
	require.NoError(t, err)
	require.Equal(t, 0, act.DurationMinutes)

	// A huge explicit distance is ignored and the interval sum saturates instead of wrapping.
	act, err = n.Normalize(Record{
		"distance":  json.Number("1e300"),
		"duration":  30,
		"intervals": []any{
			map[string]any{"distance": float64(2_000_000_000)},
			map[string]any{"distance": float64(2_000_000_000)},
			map[string]any{"distance": float64(1e300)},
		},
	})
	require.NoError(t, err)
	require.Equal(t, math.MaxInt32, act.Distance)
	require.Equal(t, 0, act.Intervals[2].Distance)
	require.Equal(t, 30, act.DurationMinutes)
}

func TestNormalizeRejectsOffScaleFeeling(t *testing.T) {
	_, err := Normalize(Record{"distance": float64(1000), "feeling": "ecstatic"})

	var invalid *InvalidFeelingError
	require.ErrorAs(t, err, &invalid)
	require.Equal(t, "ecstatic", invalid.Value)
	require.Equal(t, "invalid_feeling", RejectionReason(err))

	_, err = Normalize(Record{"distance": float64(1000), "feeling": float64(3)})
	require.ErrorAs(t, err, &invalid)
}

func TestNormalizeDefaults(t *testing.T) {
	act, err := Normalize(Record{"duration": float64(30)})
	require.NoError(t, err)

	require.Equal(t, FeelingRegular, act.Feeling)
	require.True(t, act.Date.IsZero())
	require.Zero(t, act.Distance)
	require.Equal(t, 30, act.DurationMinutes)
	require.Nil(t, act.PoolSize)
	require.Nil(t, act.WaterTemp)
	require.Nil(t, act.HeartRateAvg)
	require.Equal(t, LocationType(""), act.LocationType)
	require.Equal(t, "0:00", act.Pace())
}

func TestNormalizeMalformedDurationDegradesToZero(t *testing.T) {
	act, err := Normalize(Record{"distance": float64(800), "duration": "about an hour"})
	require.NoError(t, err)
	require.Zero(t, act.DurationMinutes)
	require.Equal(t, 800, act.Distance)
}

func TestNormalizeIntervalsBothSchemas(t *testing.T) {
	raw := Record{
		"duration": float64(30),
		"intervals": []any{
			map[string]any{"distance": float64(100), "type": "freestyle", "duration": "1:32.45", "rest": float64(20)},
			map[string]any{"distance": float64(200), "type": "kick", "stroke": "kick", "time": "4:10"},
			map[string]any{"distance": float64(50), "type": "warmup", "stroke": "Backstroke", "notes": "easy"},
			"not an interval",
		},
	}

	act, err := Normalize(raw)
	require.NoError(t, err)
	require.Len(t, act.Intervals, 3)

	require.Equal(t, Interval{Distance: 100, Type: IntervalSwim, Stroke: StrokeFreestyle, Time: "1:32.45", RestSeconds: 20}, act.Intervals[0])
	require.Equal(t, Interval{Distance: 200, Type: IntervalKick, Stroke: StrokeKick, Time: "4:10"}, act.Intervals[1])
	require.Equal(t, Interval{Distance: 50, Type: IntervalWarmUp, Stroke: StrokeBackstroke, Notes: "easy"}, act.Intervals[2])

	require.Equal(t, 350, act.Distance)
}

func TestNormalizeExplicitDistanceWins(t *testing.T) {
	act, err := Normalize(Record{
		"distance":  float64(1000),
		"duration":  float64(20),
		"intervals": []any{map[string]any{"distance": float64(400)}},
	})
	require.NoError(t, err)
	require.Equal(t, 1000, act.Distance)
	require.Equal(t, "2:00", act.Pace())
}

func TestNormalizeDropsInconsistentHeartRate(t *testing.T) {
	act, err := Normalize(Record{
		"distance":       float64(1000),
		"heart_rate_avg": float64(150),
		"heart_rate_max": float64(120),
	})
	require.NoError(t, err)
	require.Equal(t, 150, *act.HeartRateAvg)
	require.Nil(t, act.HeartRateMax)

	act, err = Normalize(Record{"distance": float64(1000), "heartRateAvg": float64(0)})
	require.NoError(t, err)
	require.Nil(t, act.HeartRateAvg)
}

func TestNormalizeDateInLocation(t *testing.T) {
	loc := time.FixedZone("BRT", -3*60*60)
	act, err := Normalizer{Location: loc}.Normalize(Record{"date": "2024-01-10", "distance": float64(1000)})
	require.NoError(t, err)
	require.Equal(t, time.Date(2024, time.January, 10, 0, 0, 0, 0, loc), act.Date)

	act, err = Normalize(Record{"date": "10/01/2024", "distance": float64(1000)})
	require.NoError(t, err)
	require.True(t, act.Date.IsZero())
}
