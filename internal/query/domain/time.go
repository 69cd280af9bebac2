package domain

import (
	"errors"
	"regexp"
	"strconv"
	"time"
)

// Bucket sizes accepted on the wire, smallest first.
var bucketSizes = []struct {
	name string
	d    time.Duration
}{
	{"1m", time.Minute},
	{"5m", 5 * time.Minute},
	{"15m", 15 * time.Minute},
	{"1h", time.Hour},
	{"6h", 6 * time.Hour},
	{"1d", 24 * time.Hour},
}

// BucketDuration resolves a bucket size name to its duration.
func BucketDuration(name string) (time.Duration, bool) {
	for _, b := range bucketSizes {
		if b.name == name {
			return b.d, true
		}
	}
	return 0, false
}

// AutoBucket picks the bucket size for a window so a chart stays readable
// regardless of how wide the window is.
func AutoBucket(window time.Duration) string {
	switch {
	case window <= time.Hour:
		return "1m"
	case window <= 6*time.Hour:
		return "5m"
	case window <= 24*time.Hour:
		return "15m"
	case window <= 7*24*time.Hour:
		return "1h"
	case window <= 30*24*time.Hour:
		return "6h"
	default:
		return "1d"
	}
}

var relativePattern = regexp.MustCompile(`^(\d+)(m|h|d|w)$`)

var ErrInvalidTime = errors.New("invalid time value")

// ParseTime accepts either an RFC 3339 timestamp or a relative shorthand
// like "15m", "24h", "7d" or "2w", meaning that far back from now.
func ParseTime(raw string, now time.Time) (time.Time, error) {
	if raw == "" {
		return time.Time{}, ErrInvalidTime
	}
	if m := relativePattern.FindStringSubmatch(raw); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return time.Time{}, ErrInvalidTime
		}
		var unit time.Duration
		switch m[2] {
		case "m":
			unit = time.Minute
		case "h":
			unit = time.Hour
		case "d":
			unit = 24 * time.Hour
		case "w":
			unit = 7 * 24 * time.Hour
		}
		return now.Add(-time.Duration(n) * unit), nil
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, ErrInvalidTime
	}
	return ts.UTC(), nil
}
