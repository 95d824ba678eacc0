package ingest

import (
	"strings"
	"time"
)

// dateLayouts are the accepted expiry/import date shapes, most common
// first. Two-digit years roll over per time.Parse rules.
var dateLayouts = []string{
	"02.01.2006",
	"02.01.06",
	"2006-01-02",
	"02/01/2006",
}

// dateRejectMarkers are words whose presence disqualifies a field from
// date parsing; they indicate receipt annotations shifted into the date
// column, not dates.
var dateRejectMarkers = []string{"поступление", "роц", "партия", "серия"}

// parseDate attempts to read a date column. Purely numeric values such as
// "230.90" are prices that drifted into the column and are rejected before
// any layout is tried, as are fields carrying known non-date markers.
func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if isNumericField(s) {
		return time.Time{}, false
	}
	lower := strings.ToLower(s)
	for _, marker := range dateRejectMarkers {
		if strings.Contains(lower, marker) {
			return time.Time{}, false
		}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
