// Package isodate formats and parses the ISO8601 timestamps exchanged with the
// portal front end.
package isodate

import (
	"fmt"
	"time"
)

// Layout is the canonical output format, always in UTC.
const Layout = "2006-01-02T15:04:05.000Z07:00"

var layouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000Z0700",
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// Format renders t in UTC using Layout.
func Format(t time.Time) string {
	return t.UTC().Format(Layout)
}

// Parse reads an ISO8601 timestamp. Values without a zone are taken as UTC.
func Parse(s string) (time.Time, error) {
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid ISO8601 date %q", s)
}
