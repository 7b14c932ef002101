package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// maxQuantity bounds minutes and distances to what the INTEGER columns hold. Larger inputs are
// treated as malformed.
const maxQuantity = math.MaxInt32

var (
	digitsPattern = regexp.MustCompile(`^\d+$`)
	// durationToken matches "1h", "15m", "15min" and the compact "1h15m".
	durationToken = regexp.MustCompile(`^(?:(\d+)h)?(?:(\d+)m(?:in)?)?$`)
)

// ParseToMinutes converts an elapsed time into whole minutes.
//
// Numbers are taken as minutes already. Strings may carry an hour token and a minute token in
// either order ("1h 15m", "15m 1h", "2h", "45m", "45 min") or be plain digits ("75"). Any other
// shape, negative numbers and values beyond maxQuantity yield 0.
func ParseToMinutes(raw any) int {
	switch v := raw.(type) {
	case nil:
		return 0
	case int:
		return nonNegative(v)
	case int32:
		return nonNegative(int(v))
	case int64:
		if v < 0 || v > maxQuantity {
			return 0
		}
		return int(v)
	case float32:
		return floatMinutes(float64(v))
	case float64:
		return floatMinutes(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return ParseToMinutes(n)
		}
		if f, err := v.Float64(); err == nil {
			return floatMinutes(f)
		}
		return 0
	case string:
		return parseDurationString(v)
	default:
		return 0
	}
}

func parseDurationString(s string) int {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return 0
	}
	if digitsPattern.MatchString(s) {
		return atoiOrZero(s)
	}

	fields := strings.Fields(s)
	// "45 min" and "45 m": a bare number followed by its unit.
	tokens := make([]string, 0, len(fields))
	for i := 0; i < len(fields); i++ {
		if digitsPattern.MatchString(fields[i]) && i+1 < len(fields) && isUnit(fields[i+1]) {
			tokens = append(tokens, fields[i]+fields[i+1])
			i++
			continue
		}
		tokens = append(tokens, fields[i])
	}
	if len(tokens) > 2 {
		return 0
	}

	var hours, minutes int
	var seenHours, seenMinutes bool
	for _, tok := range tokens {
		m := durationToken.FindStringSubmatch(tok)
		if m == nil || (m[1] == "" && m[2] == "") {
			return 0
		}
		if m[1] != "" {
			if seenHours {
				return 0
			}
			seenHours = true
			hours = atoiOrZero(m[1])
		}
		if m[2] != "" {
			if seenMinutes {
				return 0
			}
			seenMinutes = true
			minutes = atoiOrZero(m[2])
		}
	}
	if hours > (maxQuantity-minutes)/60 {
		return 0
	}
	return hours*60 + minutes
}

// FormatMinutes renders minutes as "Xh Ym", "Xh" or "<n> min".
// Negative values are outside the domain and must be rejected by the caller.
func FormatMinutes(minutes int) string {
	if minutes >= 60 {
		h, m := minutes/60, minutes%60
		if m > 0 {
			return fmt.Sprintf("%dh %dm", h, m)
		}
		return fmt.Sprintf("%dh", h)
	}
	return fmt.Sprintf("%d min", minutes)
}

func isUnit(s string) bool {
	return s == "h" || s == "m" || s == "min"
}

func atoiOrZero(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 || n > maxQuantity {
		return 0
	}
	return n
}

func nonNegative(n int) int {
	if n < 0 || n > maxQuantity {
		return 0
	}
	return n
}

func floatMinutes(f float64) int {
	if math.IsNaN(f) || f < 0 || f >= maxQuantity+1 {
		return 0
	}
	return int(f)
}
