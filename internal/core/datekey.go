package core

import (
	"strings"
	"time"
)

const (
	// KeyLayout is the canonical join key format shared by revenue records and cash entries.
	KeyLayout = "2006/01/02"
	// ISOLayout is the date format sent to the persistence API.
	ISOLayout = "2006-01-02"
)

// Accepted input layouts, most specific first. Timestamps keep their own
// offset: only the calendar day of the given instant is used.
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	ISOLayout,
	KeyLayout,
	"2006-1-2",
	"2006/1/2",
	"02-01-2006",
	"02/01/2006",
	"2-1-2006",
	"2/1/2006",
}

// ParseDay extracts the calendar day from a date-like value.
//
// Supported inputs are strings in any of the accepted layouts, time.Time,
// *time.Time and Date. The returned Date is midnight UTC of that day.
// ok is false for anything else or for unparseable strings.
func ParseDay(v any) (Date, bool) {
	var t time.Time
	switch x := v.(type) {
	case string:
		parsed, ok := parseDateString(x)
		if !ok {
			return Date{}, false
		}
		t = parsed
	case time.Time:
		t = x
	case *time.Time:
		if x == nil {
			return Date{}, false
		}
		t = *x
	case Date:
		t = x.Time
	default:
		return Date{}, false
	}
	if t.IsZero() {
		return Date{}, false
	}
	y, m, d := t.Date()
	return NewDate(y, int(m), d), true
}

func parseDateString(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// DateKey returns the canonical YYYY/MM/DD key for a date-like value, or an
// empty string when the value cannot be parsed. An empty key never matches.
func DateKey(v any) string {
	d, ok := ParseDay(v)
	if !ok {
		return ""
	}
	return d.Format(KeyLayout)
}

// ISODate returns the YYYY-MM-DD form of a date-like value, or an empty
// string when the value cannot be parsed.
func ISODate(v any) string {
	d, ok := ParseDay(v)
	if !ok {
		return ""
	}
	return d.Format(ISOLayout)
}
