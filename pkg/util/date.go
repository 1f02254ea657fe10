package util

import (
	"strconv"
	"time"
)

var layouts = []string{
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTime tries RFC3339, RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02" and
// unix seconds, in that order. Layouts without zone are read in loc.
func ParseTime(s string, loc *time.Location) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
		return time.Unix(ts, 0).In(loc), true
	}
	return time.Time{}, false
}

// Bucket returns the start of the width-wide bucket containing t, aligned to the unix epoch.
func Bucket(t time.Time, width time.Duration) time.Time {
	if width <= 0 {
		return t
	}
	return time.Unix(0, 0).UTC().Add(t.UTC().Sub(time.Unix(0, 0).UTC()).Truncate(width)).In(t.Location())
}
