// Package fitimport turns swim FIT files recorded by watches into raw activity records, so they go
// through the same normalizer as records from the activity store.
package fitimport

import (
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/tormoder/fit"

	"example.com/swimlog/internal/domain"
)

var (
	// ErrNoSession is returned for activity files without a session message.
	ErrNoSession = errors.New("fit file has no session")
	// ErrNotSwimming is returned when the session sport is not swimming.
	ErrNotSwimming = errors.New("fit session is not a swim")
)

// Decode reads a FIT activity file and returns its first session as a record. The session date is
// taken in loc; nil means time.Local.
func Decode(r io.Reader, loc *time.Location) (domain.Record, error) {
	decoded, err := fit.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode fit file: %w", err)
	}
	activity, err := decoded.Activity()
	if err != nil {
		return nil, fmt.Errorf("activity fit expected: %w", err)
	}
	if len(activity.Sessions) == 0 {
		return nil, ErrNoSession
	}
	session := activity.Sessions[0]
	if session.Sport != fit.SportSwimming {
		return nil, fmt.Errorf("%w: sport %v", ErrNotSwimming, session.Sport)
	}
	if loc == nil {
		loc = time.Local
	}

	record := domain.Record{
		"duration": int(math.Round(positive(session.GetTotalTimerTimeScaled()) / 60)),
		"distance": int(math.Round(positive(session.GetTotalDistanceScaled()))),
	}
	if start := validTime(session.StartTime); !start.IsZero() {
		record["date"] = start.In(loc).Format("2006-01-02")
	}

	switch {
	case session.SubSport == fit.SubSportOpenWater:
		record["locationType"] = string(domain.LocationOpenWater)
	case session.SubSport == fit.SubSportLapSwimming || validPoolLength(session) > 0:
		record["locationType"] = string(domain.LocationPool)
	}
	if pool := validPoolLength(session); pool > 0 {
		record["poolSize"] = pool
	}
	if hr := validUint8(session.AvgHeartRate); hr > 0 {
		record["heartRateAvg"] = hr
	}
	if hr := validUint8(session.MaxHeartRate); hr > 0 {
		record["heartRateMax"] = hr
	}

	intervals := make([]any, 0, len(activity.Laps))
	for _, lap := range activity.Laps {
		intervals = append(intervals, lapInterval(lap))
	}
	record["intervals"] = intervals
	return record, nil
}

// lapInterval maps one lap onto the canonical interval shape. Laps without distance are rest.
func lapInterval(lap *fit.LapMsg) map[string]any {
	distance := int(math.Round(positive(lap.GetTotalDistanceScaled())))
	stroke := strokeName(lap.SwimStroke)
	kind := domain.IntervalSwim
	switch {
	case distance == 0:
		kind = domain.IntervalRest
	case stroke == domain.StrokeDrill:
		kind = domain.IntervalDrill
	}
	return map[string]any{
		"distance": distance,
		"type":     string(kind),
		"stroke":   string(stroke),
		"time":     formatSegment(positive(lap.GetTotalTimerTimeScaled())),
	}
}

func strokeName(s fit.SwimStroke) domain.Stroke {
	switch s {
	case fit.SwimStrokeFreestyle:
		return domain.StrokeFreestyle
	case fit.SwimStrokeBackstroke:
		return domain.StrokeBackstroke
	case fit.SwimStrokeBreaststroke:
		return domain.StrokeBreaststroke
	case fit.SwimStrokeButterfly:
		return domain.StrokeButterfly
	case fit.SwimStrokeDrill:
		return domain.StrokeDrill
	case fit.SwimStrokeMixed, fit.SwimStrokeIm:
		return domain.StrokeMedley
	default:
		return domain.StrokeUnknown
	}
}

// formatSegment renders seconds as "M:SS.hh".
func formatSegment(seconds float64) string {
	hundredths := int(math.Round(seconds * 100))
	return fmt.Sprintf("%d:%02d.%02d", hundredths/6000, hundredths%6000/100, hundredths%100)
}

func validPoolLength(s *fit.SessionMsg) int {
	return int(math.Round(positive(s.GetPoolLengthScaled())))
}

func validTime(t time.Time) time.Time {
	if t.IsZero() || fit.IsBaseTime(t) {
		return time.Time{}
	}
	return t
}

func validUint8(v uint8) int {
	if v == math.MaxUint8 {
		return 0
	}
	return int(v)
}

func positive(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return 0
	}
	return v
}
