package aggregation

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	day  = 24 * time.Hour
	week = 7 * day
)

// ParseWindow parses a window such as "15m", "1h", "7d" or "2w".
// Go duration syntax is accepted alongside day (d) and week (w) counts.
func ParseWindow(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("window must not be empty")
	}

	var unit time.Duration
	switch s[len(s)-1] {
	case 'd':
		unit = day
	case 'w':
		unit = week
	default:
		d, err := time.ParseDuration(s)
		if err != nil {
			return 0, fmt.Errorf("invalid window %q: %w", s, err)
		}
		if d <= 0 {
			return 0, fmt.Errorf("window must be positive, got %q", s)
		}
		return d, nil
	}

	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid window %q: want a positive whole count", s)
	}
	return time.Duration(n) * unit, nil
}

// BucketFor truncates t to the start of its size-long bucket.
// BucketFor(10:37:42, 5m) is 10:35:00.
func BucketFor(t time.Time, size time.Duration) time.Time {
	return t.Truncate(size)
}

// DayLayout is the wire format for calendar dates.
const DayLayout = "2006-01-02"

// DayStart returns midnight UTC of the day containing t.
func DayStart(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DayKey formats t as its UTC calendar date.
func DayKey(t time.Time) string {
	return t.UTC().Format(DayLayout)
}

// DaysInclusive counts calendar days from start to end, both included.
func DaysInclusive(start, end time.Time) int {
	return int(DayStart(end).Sub(DayStart(start))/day) + 1
}
