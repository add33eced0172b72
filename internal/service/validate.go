package service

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"loops-server/internal/model"
)

var (
	weekPeriodRe  = regexp.MustCompile(`^(\d{4})-W(\d{2})$`)
	monthPeriodRe = regexp.MustCompile(`^\d{4}-\d{2}$`)
	colorRe       = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)
)

var validTiers = map[string]bool{
	model.TierDaily:   true,
	model.TierWeekly:  true,
	model.TierMonthly: true,
}

var validTypes = map[string]bool{
	model.TypeOpen:     true,
	model.TypeWindowed: true,
}

var validStatuses = map[string]bool{
	model.StatusActive:  true,
	model.StatusExpired: true,
}

// validateWireLoop rejects malformed loops before any store mutation. A
// missing status defaults to active; everything else is required to be
// well-formed.
func validateWireLoop(wire *WireLoop) error {
	if wire.ID == "" {
		return fmt.Errorf("%w: loop id is required", ErrInvalidInput)
	}
	if wire.Title == "" {
		return fmt.Errorf("%w: loop %q: title is required", ErrInvalidInput, wire.ID)
	}
	if !validTiers[wire.Tier] {
		return fmt.Errorf("%w: loop %q: invalid tier %q", ErrInvalidInput, wire.ID, wire.Tier)
	}
	if !validTypes[wire.Type] {
		return fmt.Errorf("%w: loop %q: invalid type %q", ErrInvalidInput, wire.ID, wire.Type)
	}
	if wire.Status == "" {
		wire.Status = model.StatusActive
	} else if !validStatuses[wire.Status] {
		return fmt.Errorf("%w: loop %q: invalid status %q", ErrInvalidInput, wire.ID, wire.Status)
	}
	if wire.Recurrence != nil && !validTiers[*wire.Recurrence] {
		return fmt.Errorf("%w: loop %q: invalid recurrence %q", ErrInvalidInput, wire.ID, *wire.Recurrence)
	}
	if wire.Color != "" && !colorRe.MatchString(wire.Color) {
		return fmt.Errorf("%w: loop %q: invalid color %q", ErrInvalidInput, wire.ID, wire.Color)
	}
	if err := validatePeriod(wire.Tier, wire.Period); err != nil {
		return fmt.Errorf("%w: loop %q: %v", ErrInvalidInput, wire.ID, err)
	}
	return nil
}

// validatePeriod checks the period string against the format its tier
// requires: day "YYYY-MM-DD", week "YYYY-Www", month "YYYY-MM".
func validatePeriod(tier, period string) error {
	switch tier {
	case model.TierDaily:
		if _, err := time.Parse("2006-01-02", period); err != nil {
			return fmt.Errorf("invalid daily period %q", period)
		}
	case model.TierWeekly:
		m := weekPeriodRe.FindStringSubmatch(period)
		if m == nil {
			return fmt.Errorf("invalid weekly period %q", period)
		}
		week, _ := strconv.Atoi(m[2])
		if week < 1 || week > 53 {
			return fmt.Errorf("invalid weekly period %q", period)
		}
	case model.TierMonthly:
		if !monthPeriodRe.MatchString(period) {
			return fmt.Errorf("invalid monthly period %q", period)
		}
		if _, err := time.Parse("2006-01", period); err != nil {
			return fmt.Errorf("invalid monthly period %q", period)
		}
	}
	return nil
}

// periodEnd returns the first instant after the given calendar period, in
// UTC. Used to decide when an active loop's period has fully elapsed.
func periodEnd(tier, period string) (time.Time, bool) {
	switch tier {
	case model.TierDaily:
		day, err := time.Parse("2006-01-02", period)
		if err != nil {
			return time.Time{}, false
		}
		return day.AddDate(0, 0, 1), true
	case model.TierWeekly:
		m := weekPeriodRe.FindStringSubmatch(period)
		if m == nil {
			return time.Time{}, false
		}
		year, _ := strconv.Atoi(m[1])
		week, _ := strconv.Atoi(m[2])
		if week < 1 || week > 53 {
			return time.Time{}, false
		}
		return isoWeekStart(year, week).AddDate(0, 0, 7), true
	case model.TierMonthly:
		month, err := time.Parse("2006-01", period)
		if err != nil {
			return time.Time{}, false
		}
		return month.AddDate(0, 1, 0), true
	}
	return time.Time{}, false
}

// isoWeekStart returns the Monday of the given ISO 8601 week. January 4th
// always falls in week 1, so week 1's Monday is found from it.
func isoWeekStart(year, week int) time.Time {
	jan4 := time.Date(year, time.January, 4, 0, 0, 0, 0, time.UTC)
	weekday := int(jan4.Weekday())
	if weekday == 0 {
		weekday = 7 // Sunday
	}
	week1Monday := jan4.AddDate(0, 0, 1-weekday)
	return week1Monday.AddDate(0, 0, (week-1)*7)
}
