package search

import (
	"sort"
	"time"

	"github.com/coffersTech/logpile/internal/model"
)

// HistogramPoint is the number of entries in the bucket starting at Time (unix ms).
type HistogramPoint struct {
	Time  int64 `json:"time"`
	Count int   `json:"count"`
}

// Histogram aggregates entry counts over time buckets of the given interval.
// Entries without a usable timestamp are ignored.
func Histogram(entries []model.Entry, interval time.Duration) []HistogramPoint {
	if interval <= 0 {
		interval = time.Minute
	}
	step := interval.Milliseconds()
	if step == 0 {
		step = 1
	}

	// bucket start -> count
	buckets := make(map[int64]int)
	for _, e := range entries {
		ts, ok := e.Timestamp()
		if !ok {
			continue
		}
		ms := ts.UnixMilli()
		bucket := ms - mod(ms, step)
		buckets[bucket]++
	}

	points := make([]HistogramPoint, 0, len(buckets))
	for t, c := range buckets {
		points = append(points, HistogramPoint{Time: t, Count: c})
	}
	sort.Slice(points, func(i, j int) bool {
		return points[i].Time < points[j].Time
	})
	return points
}

// mod is the non-negative remainder, so pre-1970 timestamps floor correctly.
func mod(a, b int64) int64 {
	r := a % b
	if r < 0 {
		r += b
	}
	return r
}
