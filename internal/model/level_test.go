package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevelOrdering(t *testing.T) {
	t.Parallel()

	for i, l := range Levels() {
		assert.Equal(t, i, l.Number(), "level %s", l)
		assert.Equal(t, l, LevelFromNumber(i))
	}

	assert.Equal(t, LevelDebug, LevelFromNumber(99))
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want Level
	}{
		{"ERROR", LevelError},
		{"err", LevelError},
		{"emerg", LevelEmergency},
		{"crit", LevelCritical},
		{"warn", LevelWarning},
		{"informational", LevelInfo},
		{" info ", LevelInfo},
		{"bogus", LevelDebug},
		{"", LevelDebug},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLevel(tt.in), tt.in)
	}

	assert.True(t, ValidLevel("Informational"))
	assert.False(t, ValidLevel("bogus"))
}

func TestLevelClasses(t *testing.T) {
	t.Parallel()

	assert.True(t, LevelError.Allows(LevelError))
	assert.True(t, LevelAlert.Allows(LevelError))
	assert.False(t, LevelWarning.Allows(LevelError))
	assert.True(t, LevelDebug.Allows(LevelDebug))

	assert.True(t, IsError(LevelCritical))
	assert.True(t, IsWarning(LevelWarning))
	assert.True(t, IsVerbose(LevelInfo))
	assert.True(t, IsVerbose(Level("informational")))
	assert.False(t, IsVerbose(LevelError))
}
