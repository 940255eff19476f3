// Package medium implements the places log entries are persisted to and retrieved from.
package medium

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/coffersTech/logpile/internal/model"
	"github.com/coffersTech/logpile/internal/sanitize"
)

// PersistFunc stores an entry. It reports false when the entry was skipped.
type PersistFunc func(ctx context.Context, e model.Entry) (bool, error)

// Retrieval is the result of reading a medium back.
type Retrieval struct {
	Entries []model.Entry
	// Skipped counts stored records that could not be decoded.
	Skipped int
}

// Add appends another retrieval.
func (r *Retrieval) Add(o Retrieval) {
	r.Entries = append(r.Entries, o.Entries...)
	r.Skipped += o.Skipped
}

// RetrieveFunc reads back what a medium's persist functions stored.
type RetrieveFunc func(ctx context.Context) (Retrieval, error)

// Medium groups persist functions with the function that reads them back.
type Medium struct {
	Persist  []PersistFunc
	Retrieve RetrieveFunc
}

// PersistOptions are shared by every persist function.
type PersistOptions struct {
	// Level is the least severe level stored. Empty means debug.
	Level model.Level
	// Depth is the sanitizer depth; 0 means sanitize.MaxDepth.
	Depth int
}

// Admits reports whether e is severe enough to be stored.
func (o PersistOptions) Admits(e model.Entry) bool {
	threshold := o.Level
	if threshold == "" {
		threshold = model.LevelDebug
	}
	return e.Level().Allows(threshold)
}

// Encode sanitizes e and renders it as one line of JSON, without the newline.
func Encode(e model.Entry, depth int) ([]byte, error) {
	b, err := json.Marshal(sanitize.Sanitize(map[string]any(e), depth))
	if err != nil {
		return nil, fmt.Errorf("encode entry: %w", err)
	}
	return b, nil
}
