package search

import (
	"time"

	"github.com/coffersTech/logpile/internal/model"
)

// Filter is FilterAt evaluated against the current time.
func Filter(entries []model.Entry, q Query, opts Options) ([]model.Entry, error) {
	return FilterAt(entries, q, opts, time.Now())
}

// FilterAt selects entries in their original order.
//
// A present query keeps the entries in which SearchTree finds it. A time
// window then recomputes the result from all entries, keeping those stamped
// strictly after now minus the window; with opts.Intersect the window narrows
// the content matches instead. Without a query or a window nothing is returned.
// Entries with a missing or unparsable timestamp never pass a window.
//
// Cost is a linear scan over entries with a full tree walk per entry.
func FilterAt(entries []model.Entry, q Query, opts Options, now time.Time) ([]model.Entry, error) {
	var window time.Duration
	if opts.Time != "" {
		w, err := ParseWindow(opts.Time)
		if err != nil {
			return nil, err
		}
		window = w
	}

	found := []model.Entry{}
	hasQuery := Present(q)
	if hasQuery {
		for _, e := range entries {
			if _, ok := SearchTree(e, q, opts); ok {
				found = append(found, e)
			}
		}
	}

	if opts.Time == "" {
		return found, nil
	}

	source := entries
	if opts.Intersect && hasQuery {
		source = found
	}
	cutoff := now.Add(-window)
	recent := []model.Entry{}
	for _, e := range source {
		ts, ok := e.Timestamp()
		if ok && ts.After(cutoff) {
			recent = append(recent, e)
		}
	}
	return recent, nil
}
