package domain

import "time"

// LocationType is where a session took place.
type LocationType string

const (
	LocationPool      LocationType = "pool"
	LocationOpenWater LocationType = "open_water"
)

// Feeling is the swimmer's self-rating of a session.
type Feeling string

const (
	FeelingExcellent Feeling = "excellent"
	FeelingGood      Feeling = "good"
	FeelingRegular   Feeling = "regular"
	FeelingTired     Feeling = "tired"
	FeelingBad       Feeling = "bad"
)

// feelingScale lists the feelings from best to worst.
var feelingScale = []Feeling{FeelingExcellent, FeelingGood, FeelingRegular, FeelingTired, FeelingBad}

// Rank returns the position of f on the scale (0 is best) or -1 when f is not on it.
func (f Feeling) Rank() int {
	for i, v := range feelingScale {
		if v == f {
			return i
		}
	}
	return -1
}

// Valid reports whether f is one of the fixed scale values.
func (f Feeling) Valid() bool {
	return f.Rank() >= 0
}

// IntervalType is the kind of segment swum.
type IntervalType string

const (
	IntervalSwim     IntervalType = "swim"
	IntervalRest     IntervalType = "rest"
	IntervalDrill    IntervalType = "drill"
	IntervalKick     IntervalType = "kick"
	IntervalPull     IntervalType = "pull"
	IntervalWarmUp   IntervalType = "warmup"
	IntervalMainSet  IntervalType = "main_set"
	IntervalCoolDown IntervalType = "cooldown"
)

var intervalTypes = map[IntervalType]struct{}{
	IntervalSwim: {}, IntervalRest: {}, IntervalDrill: {}, IntervalKick: {},
	IntervalPull: {}, IntervalWarmUp: {}, IntervalMainSet: {}, IntervalCoolDown: {},
}

// Stroke is the swimming style of a segment.
type Stroke string

const (
	StrokeFreestyle    Stroke = "freestyle"
	StrokeBackstroke   Stroke = "backstroke"
	StrokeBreaststroke Stroke = "breaststroke"
	StrokeButterfly    Stroke = "butterfly"
	StrokeMedley       Stroke = "medley"
	StrokeKick         Stroke = "kick"
	StrokeDrill        Stroke = "drill"
	StrokeUnknown      Stroke = "unknown"
)

var strokes = map[Stroke]struct{}{
	StrokeFreestyle: {}, StrokeBackstroke: {}, StrokeBreaststroke: {}, StrokeButterfly: {},
	StrokeMedley: {}, StrokeKick: {}, StrokeDrill: {}, StrokeUnknown: {},
}

// Activity is one swim session in canonical form.
type Activity struct {
	// ID is assigned by the store; empty until persisted.
	ID string `json:"id,omitempty"`
	// Date is the calendar day of the session at local midnight.
	Date         time.Time    `json:"date"`
	LocationName string       `json:"location_name"`
	LocationType LocationType `json:"location_type,omitempty"`
	// PoolSize is the pool length; only meaningful for pool sessions.
	PoolSize        *int     `json:"pool_size,omitempty"`
	DurationMinutes int      `json:"duration_minutes"`
	Distance        int      `json:"distance"`
	WaterTemp       *float64 `json:"water_temp,omitempty"`
	Feeling         Feeling  `json:"feeling"`
	HeartRateAvg    *int     `json:"heart_rate_avg,omitempty"`
	HeartRateMax    *int     `json:"heart_rate_max,omitempty"`
	Notes           string   `json:"notes"`
	// Intervals are kept in the order they were swum.
	Intervals []Interval `json:"intervals"`
}

// Interval is a segment within a session.
type Interval struct {
	ID       string       `json:"id,omitempty"`
	Distance int          `json:"distance"`
	Type     IntervalType `json:"type"`
	Stroke   Stroke       `json:"stroke"`
	// Time is the display value of the segment time, e.g. "1:32.45".
	Time        string `json:"time"`
	RestSeconds int    `json:"rest_seconds"`
	Notes       string `json:"notes,omitempty"`
}

// IntervalDistance sums the distance of all intervals, saturating at maxQuantity.
func (a Activity) IntervalDistance() int {
	total := 0
	for _, in := range a.Intervals {
		if in.Distance <= 0 {
			continue
		}
		if in.Distance > maxQuantity-total {
			return maxQuantity
		}
		total += in.Distance
	}
	return total
}

// Pace is the pace of the session per 100 distance units.
func (a Activity) Pace() string {
	return Pace(a.Distance, a.DurationMinutes)
}

// Owner identifies whose activities an operation works on.
type Owner struct {
	TenantID string
	UserID   string
}

// Valid reports whether both identifiers are set.
func (o Owner) Valid() bool {
	return o.TenantID != "" && o.UserID != ""
}
