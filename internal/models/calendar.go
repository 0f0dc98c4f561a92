package models

import (
	"fmt"
	"time"
)

// DefaultAnchorHour is the hour of day a Day's date is normalized to when stored.
// Noon keeps the calendar day stable across DST shifts and small offset changes.
const DefaultAnchorHour = 12

// DayKey is a normalized calendar day. It is comparable and safe to use as a map key.
type DayKey struct {
	Year  int
	Month time.Month
	Day   int
}

// String formats the key as YYYY-MM-DD
func (k DayKey) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", k.Year, int(k.Month), k.Day)
}

// Calendar decides calendar-day equality for schedule dates.
// All comparisons happen in Location, never by exact timestamp.
type Calendar struct {
	Location   *time.Location
	AnchorHour int
}

// NewCalendar creates a calendar for the given location (nil means time.Local)
func NewCalendar(loc *time.Location, anchorHour int) Calendar {
	if loc == nil {
		loc = time.Local
	}
	if anchorHour < 0 || anchorHour > 23 {
		anchorHour = DefaultAnchorHour
	}
	return Calendar{Location: loc, AnchorHour: anchorHour}
}

func (c Calendar) location() *time.Location {
	if c.Location == nil {
		return time.Local
	}
	return c.Location
}

// Key returns the calendar day t falls on
func (c Calendar) Key(t time.Time) DayKey {
	y, m, d := t.In(c.location()).Date()
	return DayKey{Year: y, Month: m, Day: d}
}

// SameDay reports whether a and b fall on the same calendar day
func (c Calendar) SameDay(a, b time.Time) bool {
	return c.Key(a) == c.Key(b)
}

// Anchor normalizes t to the anchor hour of its calendar day
func (c Calendar) Anchor(t time.Time) time.Time {
	k := c.Key(t)
	return time.Date(k.Year, k.Month, k.Day, c.AnchorHour, 0, 0, 0, c.location())
}

// ParseDay parses a YYYY-MM-DD string into an anchored date
func (c Calendar) ParseDay(s string) (time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", s, c.location())
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid day %q: %w", s, err)
	}
	return c.Anchor(t), nil
}
