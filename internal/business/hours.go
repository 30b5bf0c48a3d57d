package business

import (
	"fmt"
	"time"
)

// Hours answers whether a business is open at a given moment. The
// free-text opening-hours field tenants fill in has no agreed grammar,
// so openness is a pluggable predicate rather than a parser.
type Hours interface {
	IsOpen(at time.Time) bool
}

// AlwaysOpen treats the business as never closed. It is the default
// for tenants without structured hours.
type AlwaysOpen struct{}

// IsOpen always returns true.
func (AlwaysOpen) IsOpen(time.Time) bool { return true }

// WindowHours is a daily open window in a local timezone, for tenants
// that configure structured "HH:MM" open/close times.
type WindowHours struct {
	openMinutes  int
	closeMinutes int
	location     *time.Location
}

// ParseWindowHours builds a daily window from "HH:MM" open/close
// strings and an IANA timezone name ("" means UTC).
func ParseWindowHours(open, close, tz string) (WindowHours, error) {
	loc := time.UTC
	if tz != "" {
		var err error
		loc, err = time.LoadLocation(tz)
		if err != nil {
			return WindowHours{}, fmt.Errorf("business: load hours tz: %w", err)
		}
	}
	openMin, err := parseClock(open)
	if err != nil {
		return WindowHours{}, fmt.Errorf("business: parse opening time: %w", err)
	}
	closeMin, err := parseClock(close)
	if err != nil {
		return WindowHours{}, fmt.Errorf("business: parse closing time: %w", err)
	}
	return WindowHours{
		openMinutes:  openMin,
		closeMinutes: closeMin,
		location:     loc,
	}, nil
}

func parseClock(v string) (int, error) {
	if v == "" {
		return 0, fmt.Errorf("empty clock")
	}
	t, err := time.Parse("15:04", v)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

// IsOpen reports whether at falls inside the daily window.
func (w WindowHours) IsOpen(at time.Time) bool {
	local := at.In(w.location)
	minutes := local.Hour()*60 + local.Minute()
	if w.openMinutes == w.closeMinutes {
		return true
	}
	if w.openMinutes < w.closeMinutes {
		return minutes >= w.openMinutes && minutes < w.closeMinutes
	}
	// Window crosses midnight.
	return minutes >= w.openMinutes || minutes < w.closeMinutes
}

// ClosedAndReopenedBetween reports whether the business was closed at
// some point between from and to. A closure between two messages means
// the earlier context belongs to a previous visit.
func ClosedAndReopenedBetween(h Hours, from, to time.Time) bool {
	if h == nil {
		return false
	}
	if !from.Before(to) {
		return false
	}
	// Sample minute by minute, capped at one day: beyond that the
	// 24-hour context rule decides anyway.
	if to.Sub(from) > 24*time.Hour {
		from = to.Add(-24 * time.Hour)
	}
	for cursor := from; cursor.Before(to); cursor = cursor.Add(time.Minute) {
		if !h.IsOpen(cursor) {
			return true
		}
	}
	return false
}
