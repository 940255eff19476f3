package logpile

import (
	"github.com/coffersTech/logpile/internal/medium"
	"github.com/coffersTech/logpile/internal/model"
	"github.com/coffersTech/logpile/internal/sanitize"
	"github.com/coffersTech/logpile/internal/search"
)

type (
	Entry = model.Entry
	Level = model.Level

	Medium         = medium.Medium
	PersistFunc    = medium.PersistFunc
	RetrieveFunc   = medium.RetrieveFunc
	Retrieval      = medium.Retrieval
	PersistOptions = medium.PersistOptions
	ConsoleOptions = medium.ConsoleOptions
	FileOptions    = medium.FileOptions
	Memory         = medium.Memory

	SearchOptions = search.Options
	Query         = search.Query
	ExactValue    = search.ExactValue
	PartialShape  = search.PartialShape
)

const (
	LevelEmergency = model.LevelEmergency
	LevelAlert     = model.LevelAlert
	LevelCritical  = model.LevelCritical
	LevelError     = model.LevelError
	LevelWarning   = model.LevelWarning
	LevelNotice    = model.LevelNotice
	LevelInfo      = model.LevelInfo
	LevelDebug     = model.LevelDebug
)

// ErrInvalidWindow is returned by Search for an unparsable time window.
var ErrInvalidWindow = search.ErrInvalidWindow

// Console persists entries to stdout and stderr.
func Console(opts ConsoleOptions) PersistFunc { return medium.Console(opts) }

// FilePersist appends entries to JSON-lines files.
func FilePersist(opts FileOptions) PersistFunc { return medium.FilePersist(opts) }

// FileRetrieve reads entries written by FilePersist with the same options.
func FileRetrieve(opts FileOptions) RetrieveFunc { return medium.FileRetrieve(opts) }

// File pairs FilePersist and FileRetrieve.
func File(opts FileOptions) Medium { return medium.File(opts) }

// NewMemory returns an in-process medium.
func NewMemory(opts PersistOptions) *Memory { return medium.NewMemory(opts) }

// NewQuery resolves a value into an exact-value or partial-shape query.
func NewQuery(v any) Query { return search.NewQuery(v) }

// SearchTree finds q inside tree and returns the innermost node holding it.
func SearchTree(tree any, q Query, opts SearchOptions) (any, bool) {
	return search.SearchTree(tree, q, opts)
}

// Sanitize deep-copies v, replacing cycles and over-deep containers with "[Circular]".
func Sanitize(v any, maxDepth int) any { return sanitize.Sanitize(v, maxDepth) }
