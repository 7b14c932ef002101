package domain

import (
	"cmp"
	"slices"
	"strings"
)

// SortKey selects the ordering of a history view.
type SortKey string

const (
	SortByDate     SortKey = "date"
	SortByDistance SortKey = "distance"
	SortByDuration SortKey = "durationMinutes"
	SortByFeeling  SortKey = "feeling"
)

// FeelingAll disables the feeling filter.
const FeelingAll = "all"

// HistoryQuery bundles the three inputs of a history view.
type HistoryQuery struct {
	Search  string
	Feeling string
	Sort    SortKey
}

// ParseSortKey maps a query parameter onto a SortKey, defaulting to date.
// "duration" is accepted for durationMinutes.
func ParseSortKey(s string) SortKey {
	switch strings.TrimSpace(s) {
	case "", string(SortByDate):
		return SortByDate
	case string(SortByDistance):
		return SortByDistance
	case string(SortByDuration), "duration", "duration_minutes":
		return SortByDuration
	case string(SortByFeeling):
		return SortByFeeling
	default:
		return SortKey(s)
	}
}

// ParseFeelingFilter validates a feeling filter value. Empty means all.
func ParseFeelingFilter(s string) (string, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" || s == FeelingAll {
		return FeelingAll, nil
	}
	if !Feeling(s).Valid() {
		return "", &InvalidFeelingError{Value: s}
	}
	return s, nil
}

// Run applies q to activities.
func (q HistoryQuery) Run(activities []Activity) []Activity {
	return Query(activities, q.Search, q.Feeling, q.Sort)
}

// Query searches, filters and sorts activities into a new slice; the input is left untouched.
// The sort is stable, so ties keep input order, and an unrecognised key keeps input order.
func Query(activities []Activity, search, feeling string, sortKey SortKey) []Activity {
	term := strings.ToLower(strings.TrimSpace(search))
	out := make([]Activity, 0, len(activities))
	for _, a := range activities {
		if !matchesSearch(a, term) {
			continue
		}
		if feeling != "" && feeling != FeelingAll && string(a.Feeling) != feeling {
			continue
		}
		out = append(out, a)
	}

	if cmpFn := comparator(sortKey); cmpFn != nil {
		slices.SortStableFunc(out, cmpFn)
	}
	return out
}

func matchesSearch(a Activity, term string) bool {
	if term == "" {
		return true
	}
	if strings.Contains(strings.ToLower(a.LocationName), term) ||
		strings.Contains(strings.ToLower(a.Notes), term) {
		return true
	}
	for _, in := range a.Intervals {
		if strings.Contains(strings.ToLower(in.Notes), term) {
			return true
		}
	}
	return false
}

func comparator(key SortKey) func(a, b Activity) int {
	switch key {
	case SortByDate:
		return func(a, b Activity) int { return b.Date.Compare(a.Date) }
	case SortByDistance:
		return func(a, b Activity) int { return cmp.Compare(b.Distance, a.Distance) }
	case SortByDuration:
		return func(a, b Activity) int { return cmp.Compare(b.DurationMinutes, a.DurationMinutes) }
	case SortByFeeling:
		return func(a, b Activity) int { return cmp.Compare(a.Feeling.Rank(), b.Feeling.Rank()) }
	default:
		return nil
	}
}
