package utils

import (
	"fmt"
	"strconv"
	"time"
)

// ParseSinceDate parses a sync window boundary in one of two forms:
//   - Relative: "12h", "7d", "2w" (that long ago)
//   - Absolute: "2026-08-15" (YYYY-MM-DD, UTC midnight)
func ParseSinceDate(since string) (time.Time, error) {
	if since == "" {
		return time.Time{}, fmt.Errorf("since date cannot be empty")
	}

	if t, ok, err := parseRelative(since); ok {
		return t, err
	}

	parsed, err := time.Parse("2006-01-02", since)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date format '%s': expected 'YYYY-MM-DD' or relative format like '7d'", since)
	}
	return parsed, nil
}

func parseRelative(s string) (time.Time, bool, error) {
	unit := s[len(s)-1]
	if unit != 'h' && unit != 'd' && unit != 'w' {
		return time.Time{}, false, nil
	}

	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil {
		return time.Time{}, true, fmt.Errorf("invalid relative date format '%s': expected format like '7d'", s)
	}
	if n < 0 {
		return time.Time{}, true, fmt.Errorf("relative offset cannot be negative: %d", n)
	}

	now := time.Now()
	switch unit {
	case 'h':
		return now.Add(-time.Duration(n) * time.Hour), true, nil
	case 'w':
		return now.AddDate(0, 0, -7*n), true, nil
	default:
		return now.AddDate(0, 0, -n), true, nil
	}
}
