package remote

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ParseOffset parses a video offset given as seconds ("90", "90s", "1.5") or as
// a clock value ("MM:SS", "HH:MM:SS", seconds may be fractional).
func ParseOffset(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty offset")
	}

	if !strings.Contains(s, ":") {
		secs, err := strconv.ParseFloat(strings.TrimSuffix(s, "s"), 64)
		if err != nil {
			return 0, fmt.Errorf("invalid offset %q", s)
		}
		return secondsToDuration(s, secs)
	}

	parts := strings.Split(s, ":")
	if len(parts) > 3 {
		return 0, fmt.Errorf("invalid offset %q: expected MM:SS or HH:MM:SS", s)
	}

	secs, err := strconv.ParseFloat(parts[len(parts)-1], 64)
	if err != nil || secs < 0 || !(secs < 60) {
		return 0, fmt.Errorf("invalid seconds in offset %q", s)
	}

	total := secs
	multiplier := 60.0
	for i := len(parts) - 2; i >= 0; i-- {
		v, err := strconv.Atoi(parts[i])
		if err != nil || v < 0 {
			return 0, fmt.Errorf("invalid offset %q", s)
		}
		if i == len(parts)-2 && len(parts) == 3 && v >= 60 {
			return 0, fmt.Errorf("invalid minutes in offset %q", s)
		}
		total += float64(v) * multiplier
		multiplier *= 60
	}

	return secondsToDuration(s, total)
}

func secondsToDuration(raw string, secs float64) (time.Duration, error) {
	if secs < 0 || math.IsNaN(secs) || math.IsInf(secs, 0) {
		return 0, fmt.Errorf("invalid offset %q", raw)
	}
	return time.Duration(math.Round(secs * float64(time.Second))), nil
}
