package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Record is one raw activity as returned by the activity store, with loosely typed values.
type Record map[string]any

// Canonical field names resolved through the alias tables.
const (
	fieldID           = "id"
	fieldDate         = "date"
	fieldLocationName = "locationName"
	fieldLocationType = "locationType"
	fieldPoolSize     = "poolSize"
	fieldDuration     = "duration"
	fieldDistance     = "distance"
	fieldWaterTemp    = "waterTemp"
	fieldFeeling      = "feeling"
	fieldHeartRateAvg = "heartRateAvg"
	fieldHeartRateMax = "heartRateMax"
	fieldHeartRate    = "heartRate"
	fieldNotes        = "notes"
	fieldIntervals    = "intervals"

	fieldType        = "type"
	fieldStroke      = "stroke"
	fieldTime        = "time"
	fieldRestSeconds = "restSeconds"
)

// activityAliases maps each canonical activity field to the source keys that may carry it,
// in lookup order. This is the only place source naming differences are resolved.
var activityAliases = map[string][]string{
	fieldID:           {"id"},
	fieldDate:         {"date", "start"},
	fieldLocationName: {"location_name", "locationName", "pool"},
	fieldLocationType: {"location_type", "locationType"},
	fieldPoolSize:     {"pool_size", "poolSize", "poolLength"},
	fieldDuration:     {"duration", "duration_minutes", "durationMinutes"},
	fieldDistance:     {"distance"},
	fieldWaterTemp:    {"water_temp", "waterTemp"},
	fieldFeeling:      {"feeling"},
	fieldHeartRateAvg: {"heart_rate_avg", "heartRateAvg"},
	fieldHeartRateMax: {"heart_rate_max", "heartRateMax"},
	fieldHeartRate:    {"heartRate", "heart_rate"},
	fieldNotes:        {"notes"},
	fieldIntervals:    {"intervals"},
}

// intervalAliases is the interval counterpart of activityAliases.
var intervalAliases = map[string][]string{
	fieldID:          {"id"},
	fieldDistance:    {"distance"},
	fieldType:        {"type"},
	fieldStroke:      {"stroke"},
	fieldTime:        {"time", "duration"},
	fieldRestSeconds: {"rest_seconds", "restSeconds", "rest"},
	fieldNotes:       {"notes"},
}

// Normalizer converts raw records into canonical activities.
type Normalizer struct {
	// Location anchors calendar dates; nil means time.Local.
	Location *time.Location
}

// Normalize converts raw using the local time zone.
func Normalize(raw Record) (Activity, error) {
	return Normalizer{}.Normalize(raw)
}

// Normalize maps raw into an Activity. It fails only when the record carries neither a distance
// nor a duration, or when it names a feeling outside the fixed scale.
func (n Normalizer) Normalize(raw Record) (Activity, error) {
	_, hasDistance := lookup(raw, activityAliases, fieldDistance)
	durationRaw, hasDuration := lookup(raw, activityAliases, fieldDuration)
	if !hasDistance && !hasDuration {
		return Activity{}, &MissingRequiredFieldError{Field: fieldDistance + "|" + fieldDuration}
	}

	feeling, err := normalizeFeeling(raw)
	if err != nil {
		return Activity{}, err
	}

	act := Activity{
		ID:              stringField(raw, activityAliases, fieldID),
		Date:            n.date(raw),
		LocationName:    stringField(raw, activityAliases, fieldLocationName),
		LocationType:    normalizeLocationType(stringField(raw, activityAliases, fieldLocationType)),
		PoolSize:        positiveIntField(raw, activityAliases, fieldPoolSize),
		DurationMinutes: ParseToMinutes(durationRaw),
		WaterTemp:       floatField(raw, activityAliases, fieldWaterTemp),
		Feeling:         feeling,
		Notes:           stringField(raw, activityAliases, fieldNotes),
		Intervals:       normalizeIntervals(raw),
	}
	act.HeartRateAvg, act.HeartRateMax = heartRates(raw)

	if d, ok := intField(raw, activityAliases, fieldDistance); ok && d > 0 {
		act.Distance = d
	} else {
		act.Distance = act.IntervalDistance()
	}
	return act, nil
}

func (n Normalizer) date(raw Record) time.Time {
	v, ok := lookup(raw, activityAliases, fieldDate)
	if !ok {
		return time.Time{}
	}
	s, ok := v.(string)
	if !ok {
		return time.Time{}
	}
	s = strings.TrimSpace(s)
	if len(s) < len("2006-01-02") {
		return time.Time{}
	}
	loc := n.Location
	if loc == nil {
		loc = time.Local
	}
	d, err := time.ParseInLocation("2006-01-02", s[:10], loc)
	if err != nil {
		return time.Time{}
	}
	return d
}

func normalizeFeeling(raw Record) (Feeling, error) {
	v, ok := lookup(raw, activityAliases, fieldFeeling)
	if !ok {
		return FeelingRegular, nil
	}
	s, isString := v.(string)
	if !isString {
		return "", &InvalidFeelingError{Value: fmt.Sprint(v)}
	}
	if strings.TrimSpace(s) == "" {
		return FeelingRegular, nil
	}
	f := Feeling(strings.ToLower(strings.TrimSpace(s)))
	if !f.Valid() {
		return "", &InvalidFeelingError{Value: s}
	}
	return f, nil
}

func normalizeLocationType(s string) LocationType {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer(" ", "_", "-", "_").Replace(s)
	switch LocationType(s) {
	case LocationPool, LocationOpenWater:
		return LocationType(s)
	default:
		return ""
	}
}

// heartRates reads the flat heart-rate keys, falling back to the nested {avg, max} object of the
// logging form. Zero or negative readings count as absent, and a maximum below the average is
// dropped rather than kept inconsistent.
func heartRates(raw Record) (avg, peak *int) {
	avg = positiveIntField(raw, activityAliases, fieldHeartRateAvg)
	peak = positiveIntField(raw, activityAliases, fieldHeartRateMax)
	if nested, ok := lookup(raw, activityAliases, fieldHeartRate); ok {
		if m, ok := nested.(map[string]any); ok {
			if avg == nil {
				avg = positiveInt(m["avg"])
			}
			if peak == nil {
				peak = positiveInt(m["max"])
			}
		}
	}
	if avg != nil && peak != nil && *peak < *avg {
		peak = nil
	}
	return avg, peak
}

func normalizeIntervals(raw Record) []Interval {
	v, ok := lookup(raw, activityAliases, fieldIntervals)
	if !ok {
		return []Interval{}
	}
	items, ok := v.([]any)
	if !ok {
		return []Interval{}
	}
	out := make([]Interval, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, normalizeInterval(Record(m)))
	}
	return out
}

// normalizeInterval resolves the two interval schemas seen in the store. The canonical "type" is
// the segment kind; when a source puts a stroke name in "type" it is moved to the stroke and the
// segment becomes a plain swim.
func normalizeInterval(raw Record) Interval {
	in := Interval{
		ID:     stringField(raw, intervalAliases, fieldID),
		Time:   segmentTime(raw),
		Notes:  stringField(raw, intervalAliases, fieldNotes),
		Type:   IntervalSwim,
		Stroke: StrokeUnknown,
	}
	if d, ok := intField(raw, intervalAliases, fieldDistance); ok && d > 0 {
		in.Distance = d
	}
	if r, ok := intField(raw, intervalAliases, fieldRestSeconds); ok && r > 0 {
		in.RestSeconds = r
	}

	stroke := Stroke(strings.ToLower(stringField(raw, intervalAliases, fieldStroke)))
	if _, ok := strokes[stroke]; ok {
		in.Stroke = stroke
	}

	kind := strings.ToLower(stringField(raw, intervalAliases, fieldType))
	if _, ok := intervalTypes[IntervalType(kind)]; ok {
		in.Type = IntervalType(kind)
	} else if s := Stroke(kind); isSwimStroke(s) && in.Stroke == StrokeUnknown {
		in.Stroke = s
	}
	return in
}

// segmentTime copies the segment time as given; it carries hundredths the minute codec cannot
// represent, so it is never reparsed.
func segmentTime(raw Record) string {
	v, ok := lookup(raw, intervalAliases, fieldTime)
	if !ok {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return stringField(raw, intervalAliases, fieldTime)
}

// isSwimStroke reports whether s names a stroke that is never a segment kind.
func isSwimStroke(s Stroke) bool {
	switch s {
	case StrokeFreestyle, StrokeBackstroke, StrokeBreaststroke, StrokeButterfly, StrokeMedley:
		return true
	}
	return false
}

// lookup returns the first non-null value among the aliases of field.
func lookup(raw Record, aliases map[string][]string, field string) (any, bool) {
	for _, key := range aliases[field] {
		if v, ok := raw[key]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func stringField(raw Record, aliases map[string][]string, field string) string {
	v, ok := lookup(raw, aliases, field)
	if !ok {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return ""
	}
}

func intField(raw Record, aliases map[string][]string, field string) (int, bool) {
	v, ok := lookup(raw, aliases, field)
	if !ok {
		return 0, false
	}
	return toInt(v)
}

func positiveIntField(raw Record, aliases map[string][]string, field string) *int {
	v, ok := lookup(raw, aliases, field)
	if !ok {
		return nil
	}
	return positiveInt(v)
}

func positiveInt(v any) *int {
	n, ok := toInt(v)
	if !ok || n <= 0 {
		return nil
	}
	return &n
}

func floatField(raw Record, aliases map[string][]string, field string) *float64 {
	v, ok := lookup(raw, aliases, field)
	if !ok {
		return nil
	}
	f, ok := toFloat(v)
	if !ok {
		return nil
	}
	return &f
}

func toInt(v any) (int, bool) {
	f, ok := toFloat(v)
	if !ok || math.Abs(f) > maxQuantity {
		return 0, false
	}
	return int(math.Round(f)), true
}

func toFloat(v any) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int32:
		f = float64(t)
	case int64:
		f = float64(t)
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
