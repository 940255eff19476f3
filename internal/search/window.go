package search

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidWindow is returned when a time window cannot be parsed.
var ErrInvalidWindow = errors.New("invalid time window")

const maxWindowLen = 100

var windowPattern = regexp.MustCompile(
	`(?i)^(-?\d*\.?\d+) *(milliseconds?|msecs?|ms|seconds?|secs?|s|minutes?|mins?|m|hours?|hrs?|h|days?|d|weeks?|w|years?|yrs?|y)?$`)

const (
	day  = 24 * time.Hour
	week = 7 * day
	// 365.25 days
	year = time.Duration(365.25 * float64(day))
)

// ParseWindow parses a relative duration such as "500", "10s", "2 days",
// "1.5h" or "1y". Bare numbers are milliseconds. Units are case-insensitive.
func ParseWindow(s string) (time.Duration, error) {
	if len(s) > maxWindowLen {
		return 0, fmt.Errorf("%w: longer than %d characters", ErrInvalidWindow, maxWindowLen)
	}
	match := windowPattern.FindStringSubmatch(strings.TrimSpace(s))
	if match == nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidWindow, s)
	}

	n, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrInvalidWindow, s, err)
	}

	var unit time.Duration
	switch strings.ToLower(match[2]) {
	case "years", "year", "yrs", "yr", "y":
		unit = year
	case "weeks", "week", "w":
		unit = week
	case "days", "day", "d":
		unit = day
	case "hours", "hour", "hrs", "hr", "h":
		unit = time.Hour
	case "minutes", "minute", "mins", "min", "m":
		unit = time.Minute
	case "seconds", "second", "secs", "sec", "s":
		unit = time.Second
	default:
		unit = time.Millisecond
	}

	d := n * float64(unit)
	if math.IsInf(d, 0) || math.Abs(d) >= math.MaxInt64 {
		return 0, fmt.Errorf("%w: %q overflows", ErrInvalidWindow, s)
	}
	return time.Duration(d), nil
}
