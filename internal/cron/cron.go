// Package cron evaluates 6-field cron expressions
// (second minute hour day month weekday) against a timezone.
package cron

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrInvalidExpression is returned when the 6-field grammar does not
	// parse or a field value is out of range.
	ErrInvalidExpression = errors.New("invalid cron expression")

	// ErrUnsatisfiable is returned by Next when no matching instant exists
	// within the scan bound (a Feb-30 style expression).
	ErrUnsatisfiable = errors.New("cron expression matches no instant")
)

// scanBound caps the forward scan. Any satisfiable expression fires within
// five years (the rarest combination is a leap-day schedule).
const scanBoundYears = 5

type fieldSpec struct {
	name string
	min  int
	max  int
}

var fields = [6]fieldSpec{
	{"second", 0, 59},
	{"minute", 0, 59},
	{"hour", 0, 23},
	{"day", 1, 31},
	{"month", 1, 12},
	{"weekday", 0, 7}, // 7 folds into 0 (Sunday)
}

// Schedule is a parsed cron expression bound to a location.
type Schedule struct {
	second, minute, hour uint64
	day, month, weekday  uint64
	dayStar, weekdayStar bool
	loc                  *time.Location
}

// Parse parses a 6-field expression evaluated in UTC.
func Parse(expr string) (*Schedule, error) {
	return parse(expr, time.UTC)
}

// ParseInLocation parses a 6-field expression evaluated in the named
// timezone. An empty timezone means UTC.
func ParseInLocation(expr, timezone string) (*Schedule, error) {
	loc := time.UTC
	if timezone != "" {
		var err error
		loc, err = time.LoadLocation(timezone)
		if err != nil {
			return nil, fmt.Errorf("%w: unknown timezone %q", ErrInvalidExpression, timezone)
		}
	}
	return parse(expr, loc)
}

// Validate checks an expression and timezone without building a schedule.
// Used before persisting a task so misconfiguration surfaces at creation
// time, never at runtime scheduling.
func Validate(expr, timezone string) error {
	_, err := ParseInLocation(expr, timezone)
	return err
}

func parse(expr string, loc *time.Location) (*Schedule, error) {
	parts := strings.Fields(expr)
	if len(parts) != 6 {
		return nil, fmt.Errorf("%w: expected 6 fields, got %d", ErrInvalidExpression, len(parts))
	}

	var bits [6]uint64
	for i, part := range parts {
		spec := fields[i]
		b, err := parseField(part, spec.min, spec.max)
		if err != nil {
			return nil, fmt.Errorf("%w: %s field %q: %v", ErrInvalidExpression, spec.name, part, err)
		}
		bits[i] = b
	}

	// Weekday 7 is an alias for Sunday.
	if bits[5]&(1<<7) != 0 {
		bits[5] |= 1
		bits[5] &^= 1 << 7
	}

	return &Schedule{
		second:      bits[0],
		minute:      bits[1],
		hour:        bits[2],
		day:         bits[3],
		month:       bits[4],
		weekday:     bits[5],
		dayStar:     parts[3] == "*",
		weekdayStar: parts[5] == "*",
		loc:         loc,
	}, nil
}

// parseField expands one field into a bitmask. Supported grammar per
// comma-separated part: "*", "N", "A-B", with an optional "/step" suffix.
func parseField(field string, min, max int) (uint64, error) {
	var bits uint64
	for _, part := range strings.Split(field, ",") {
		b, err := parsePart(part, min, max)
		if err != nil {
			return 0, err
		}
		bits |= b
	}
	return bits, nil
}

func parsePart(part string, min, max int) (uint64, error) {
	if part == "" {
		return 0, errors.New("empty value")
	}

	step := 1
	rangeSpec := part
	if i := strings.Index(part, "/"); i >= 0 {
		s, err := strconv.Atoi(part[i+1:])
		if err != nil || s < 1 {
			return 0, fmt.Errorf("bad step %q", part[i+1:])
		}
		step = s
		rangeSpec = part[:i]
	}

	lo, hi := min, max
	switch {
	case rangeSpec == "*":
		// full range
	case strings.Contains(rangeSpec, "-"):
		bounds := strings.SplitN(rangeSpec, "-", 2)
		a, errA := strconv.Atoi(bounds[0])
		b, errB := strconv.Atoi(bounds[1])
		if errA != nil || errB != nil {
			return 0, fmt.Errorf("bad range %q", rangeSpec)
		}
		lo, hi = a, b
	default:
		v, err := strconv.Atoi(rangeSpec)
		if err != nil {
			return 0, fmt.Errorf("bad value %q", rangeSpec)
		}
		lo = v
		if strings.Contains(part, "/") {
			// "N/step" runs from N to the field maximum.
			hi = max
		} else {
			hi = v
		}
	}

	if lo < min || hi > max || lo > hi {
		return 0, fmt.Errorf("value out of range [%d,%d]", min, max)
	}

	var bits uint64
	for v := lo; v <= hi; v += step {
		bits |= 1 << uint(v)
	}
	return bits, nil
}

// Next returns the first instant strictly after the given one that satisfies
// every field constraint. The scan advances field-by-field (month, day, hour,
// minute, second) with carry, so it terminates quickly; ErrUnsatisfiable is
// returned when nothing matches within the bound.
func (s *Schedule) Next(after time.Time) (time.Time, error) {
	t := after.In(s.loc).Truncate(time.Second).Add(time.Second)
	bound := after.AddDate(scanBoundYears, 0, 0)

	for t.Before(bound) {
		if s.month&(1<<uint(t.Month())) == 0 {
			t = time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, s.loc)
			continue
		}
		if !s.dayMatches(t) {
			t = time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, s.loc)
			continue
		}
		if s.hour&(1<<uint(t.Hour())) == 0 {
			t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour()+1, 0, 0, 0, s.loc)
			continue
		}
		if s.minute&(1<<uint(t.Minute())) == 0 {
			t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute()+1, 0, 0, s.loc)
			continue
		}
		if s.second&(1<<uint(t.Second())) == 0 {
			t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second()+1, 0, s.loc)
			continue
		}
		return t, nil
	}

	return time.Time{}, ErrUnsatisfiable
}

// dayMatches applies the classic cron day rule: when both day-of-month and
// weekday are restricted, either match suffices; otherwise the restricted
// field must match.
func (s *Schedule) dayMatches(t time.Time) bool {
	domOK := s.day&(1<<uint(t.Day())) != 0
	dowOK := s.weekday&(1<<uint(t.Weekday())) != 0

	switch {
	case s.dayStar && s.weekdayStar:
		return true
	case s.dayStar:
		return dowOK
	case s.weekdayStar:
		return domOK
	default:
		return domOK || dowOK
	}
}
