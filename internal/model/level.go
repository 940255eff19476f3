package model

import "strings"

// Level is a severity name.
type Level string

// Severities in RFC 5424 order, most severe first.
const (
	LevelEmergency Level = "emergency"
	LevelAlert     Level = "alert"
	LevelCritical  Level = "critical"
	LevelError     Level = "error"
	LevelWarning   Level = "warning"
	LevelNotice    Level = "notice"
	LevelInfo      Level = "info"
	LevelDebug     Level = "debug"
)

// Source RFC5424 (https://datatracker.ietf.org/doc/html/rfc5424#page-36)
var levelNumbers = map[Level]int{
	LevelEmergency: 0,
	LevelAlert:     1,
	LevelCritical:  2,
	LevelError:     3,
	LevelWarning:   4,
	LevelNotice:    5,
	LevelInfo:      6,
	LevelDebug:     7,
}

var levelAliases = map[string]Level{
	"emerg":         LevelEmergency,
	"crit":          LevelCritical,
	"err":           LevelError,
	"warn":          LevelWarning,
	"informational": LevelInfo,
}

// ParseLevel normalises a level name. Unknown names map to LevelDebug.
func ParseLevel(s string) Level {
	name := strings.ToLower(strings.TrimSpace(s))
	if alias, ok := levelAliases[name]; ok {
		return alias
	}
	if _, ok := levelNumbers[Level(name)]; ok {
		return Level(name)
	}
	return LevelDebug
}

// ValidLevel reports whether s names a known severity or alias.
func ValidLevel(s string) bool {
	name := strings.ToLower(strings.TrimSpace(s))
	if _, ok := levelAliases[name]; ok {
		return true
	}
	_, ok := levelNumbers[Level(name)]
	return ok
}

// Number returns the RFC 5424 code of the level (0 = emergency .. 7 = debug).
func (l Level) Number() int {
	return levelNumbers[ParseLevel(string(l))]
}

// Allows reports whether an entry at level l passes a threshold.
func (l Level) Allows(threshold Level) bool {
	return l.Number() <= threshold.Number()
}

// Levels returns every canonical level, most severe first.
func Levels() []Level {
	return []Level{
		LevelEmergency, LevelAlert, LevelCritical, LevelError,
		LevelWarning, LevelNotice, LevelInfo, LevelDebug,
	}
}

// LevelFromNumber maps an RFC 5424 code back to its level.
func LevelFromNumber(n int) Level {
	levels := Levels()
	if n < 0 || n >= len(levels) {
		return LevelDebug
	}
	return levels[n]
}

func IsError(l Level) bool   { return l.Number() <= 3 }
func IsWarning(l Level) bool { return l.Number() == 4 }
func IsVerbose(l Level) bool { return l.Number() >= 5 }
