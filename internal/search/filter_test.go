package search

import (
	"fmt"
	"testing"
	"time"

	"github.com/coffersTech/logpile/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func entryAt(ago time.Duration, msg string) model.Entry {
	return model.NewEntryAt(now.Add(-ago), model.LevelInfo, msg)
}

func TestFilterAt(t *testing.T) {
	t.Parallel()

	old := entryAt(2*time.Hour, "deploy finished")
	recent := entryAt(10*time.Minute, "cache miss")
	recentDeploy := entryAt(time.Minute, "deploy started")
	broken := model.Entry{"timestamp": "garbage", "level": "info", "message": "deploy finished"}
	entries := []model.Entry{old, recent, recentDeploy, broken, old}

	tests := []struct {
		name  string
		query any
		opts  Options
		want  []model.Entry
	}{
		{
			name:  "content keeps order and duplicates",
			query: "deploy finished",
			want:  []model.Entry{old, broken, old},
		},
		{
			name:  "shape",
			query: map[string]any{"message": "cache miss"},
			want:  []model.Entry{recent},
		},
		{
			name: "time only",
			opts: Options{Time: "1h"},
			want: []model.Entry{recent, recentDeploy},
		},
		{
			name:  "time overrides content",
			query: "deploy finished",
			opts:  Options{Time: "1h"},
			want:  []model.Entry{recent, recentDeploy},
		},
		{
			name:  "time intersects content",
			query: "deploy started",
			opts:  Options{Time: "1h", Intersect: true},
			want:  []model.Entry{recentDeploy},
		},
		{
			name:  "intersect with nothing recent",
			query: "deploy finished",
			opts:  Options{Time: "1h", Intersect: true},
			want:  []model.Entry{},
		},
		{
			name: "neither returns nothing",
			want: []model.Entry{},
		},
		{
			name:  "empty shape returns nothing",
			query: map[string]any{},
			want:  []model.Entry{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := FilterAt(entries, NewQuery(tt.query), tt.opts, now)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFilterAtStrictlyAfterCutoff(t *testing.T) {
	t.Parallel()

	edge := entryAt(time.Hour, "edge")
	inside := entryAt(time.Hour-time.Millisecond, "inside")

	got, err := FilterAt([]model.Entry{edge, inside}, nil, Options{Time: "1h"}, now)
	require.NoError(t, err)
	assert.Equal(t, []model.Entry{inside}, got)
}

func TestFilterAtInvalidWindow(t *testing.T) {
	t.Parallel()

	_, err := FilterAt(nil, NewQuery("x"), Options{Time: "soon"}, now)
	assert.ErrorIs(t, err, ErrInvalidWindow)
}

func TestFilterDoesNotMutateEntries(t *testing.T) {
	t.Parallel()

	e := model.Entry{"timestamp": model.FormatTimestamp(now), "level": "info", "nested": map[string]any{"k": "v"}}
	before := fmt.Sprint(e)

	_, err := FilterAt([]model.Entry{e}, NewQuery("v"), Options{Time: "1d"}, now)
	require.NoError(t, err)
	assert.Equal(t, before, fmt.Sprint(e))
}

func TestFilterMillionEntries(t *testing.T) {
	if testing.Short() {
		t.Skip("large collection")
	}
	t.Parallel()

	const n = 1_000_000
	entries := make([]model.Entry, n)
	ts := model.FormatTimestamp(now)
	for i := range entries {
		entries[i] = model.Entry{"timestamp": ts, "level": "info", "message": "noise"}
	}
	target := model.Entry{"timestamp": ts, "level": "error", "message": "X"}
	entries[n/2] = target

	start := time.Now()
	got, err := Filter(entries, NewQuery(map[string]any{"message": "X"}), Options{})
	elapsed := time.Since(start)

	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, target, got[0])
	assert.Less(t, elapsed, time.Minute)
}
