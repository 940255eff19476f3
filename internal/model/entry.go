package model

import (
	"strconv"
	"time"

	"github.com/coffersTech/logpile/internal/sanitize"
	"github.com/spf13/cast"
)

// Mandatory entry keys.
const (
	KeyTimestamp = "timestamp"
	KeyLevel     = "level"
	KeyMessage   = "message"
)

// TimestampLayout is the ISO-8601 form written into every entry (UTC, millisecond precision).
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Entry represents a structured log entry.
// Besides "timestamp" and "level" it may hold arbitrary scalars, maps and slices.
// Entries are treated as immutable once built.
type Entry map[string]any

// NewEntry builds an entry stamped with the current time.
func NewEntry(level Level, args ...any) Entry {
	return NewEntryAt(time.Now(), level, args...)
}

// NewEntryAt builds an entry from variadic arguments:
// the n-th string becomes "message" (n=1) or "message<n>", maps are merged in order,
// errors are merged as {"error": msg} and other values are merged when they sanitize to an object.
// Arguments are applied after timestamp and level, so they may override both.
func NewEntryAt(now time.Time, level Level, args ...any) Entry {
	e := Entry{
		KeyTimestamp: FormatTimestamp(now),
		KeyLevel:     string(level),
	}

	strIdx := 0
	for _, arg := range args {
		switch v := arg.(type) {
		case nil:
		case string:
			strIdx++
			if strIdx == 1 {
				e[KeyMessage] = v
			} else {
				e[KeyMessage+strconv.Itoa(strIdx)] = v
			}
		case Entry:
			for k, val := range v {
				e[k] = val
			}
		case map[string]any:
			for k, val := range v {
				e[k] = val
			}
		case error:
			e["error"] = v.Error()
		default:
			if obj, ok := sanitize.Sanitize(v, sanitize.MaxDepth).(map[string]any); ok {
				for k, val := range obj {
					e[k] = val
				}
			}
		}
	}
	return e
}

// FormatTimestamp renders t the way entries store it.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// Timestamp parses the entry's timestamp field.
func (e Entry) Timestamp() (time.Time, bool) {
	raw, ok := e[KeyTimestamp]
	if !ok || raw == nil {
		return time.Time{}, false
	}
	if s, ok := raw.(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t, true
		}
	}
	t, err := cast.ToTimeE(raw)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Level returns the normalised severity of the entry.
func (e Entry) Level() Level {
	s, _ := e[KeyLevel].(string)
	return ParseLevel(s)
}

// Message returns the primary message, if any.
func (e Entry) Message() string {
	s, _ := e[KeyMessage].(string)
	return s
}
