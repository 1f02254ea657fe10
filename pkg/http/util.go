package http

import (
	"time"

	xutil "FinAlert/pkg/util"
)

// ParseTime reads a from/to query value; zone-less layouts are taken as UTC.
func ParseTime(s string) (time.Time, bool) { return xutil.ParseTime(s, time.UTC) }
