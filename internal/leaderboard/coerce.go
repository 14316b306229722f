package leaderboard

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Coerce turns a raw score or delta into an int. Numbers are truncated and
// strings are read up to the first non-digit after an optional sign.
// Anything unusable becomes 0.
func Coerce(raw any) int {
	switch v := raw.(type) {
	case nil:
		return 0
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return clampInt64(v)
	case float64:
		return truncate(v)
	case float32:
		return truncate(float64(v))
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return clampInt64(n)
		}
		if f, err := v.Float64(); err == nil {
			return truncate(f)
		}
		return 0
	case string:
		return parseLeadingInt(v)
	default:
		return 0
	}
}

func truncate(f float64) int {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	t := math.Trunc(f)
	if t >= float64(math.MaxInt64) || t < float64(math.MinInt64) {
		return 0
	}
	return clampInt64(int64(t))
}

func clampInt64(v int64) int {
	if int64(int(v)) != v {
		return 0
	}
	return int(v)
}

func parseLeadingInt(s string) int {
	s = strings.TrimLeft(s, " \t\n\r\v\f")
	end := 0
	if end < len(s) && (s[end] == '+' || s[end] == '-') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return 0
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0
	}
	return n
}
