// Package logpile emits structured log entries to pluggable mediums and
// searches them back by value or partial shape.
package logpile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/coffersTech/logpile/internal/model"
	"github.com/coffersTech/logpile/internal/search"
)

// ErrNoRetrieve is returned by Search when the medium cannot be read back.
var ErrNoRetrieve = errors.New("logpile: medium has no retrieve function")

// Logger builds entries and hands them to every persist function of its medium.
type Logger struct {
	medium Medium
	diag   *slog.Logger
	now    func() time.Time
}

// Option configures a Logger.
type Option func(*Logger)

// WithDiagnostics sets where persist failures of the level methods are reported.
func WithDiagnostics(l *slog.Logger) Option {
	return func(lg *Logger) {
		if l != nil {
			lg.diag = l
		}
	}
}

// WithClock overrides the time source used for entry timestamps.
func WithClock(now func() time.Time) Option {
	return func(lg *Logger) {
		if now != nil {
			lg.now = now
		}
	}
}

// New returns a Logger that persists to every function of m.
func New(m Medium, opts ...Option) *Logger {
	l := &Logger{
		medium: m,
		diag:   slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Result is the outcome of Search.
type Result struct {
	Entries []Entry `json:"entries"`
	// Skipped counts stored records the medium could not decode.
	Skipped int `json:"skipped"`
}

// Entry builds an entry at the given level without persisting it.
func (l *Logger) Entry(level Level, args ...any) Entry {
	return model.NewEntryAt(l.now(), level, args...)
}

// Persist builds an entry and stores it, returning every persist failure joined.
func (l *Logger) Persist(ctx context.Context, level Level, args ...any) error {
	return l.PersistEntry(ctx, l.Entry(level, args...))
}

// PersistEntry hands e to each persist function in order.
func (l *Logger) PersistEntry(ctx context.Context, e Entry) error {
	var errs []error
	for i, persist := range l.medium.Persist {
		if _, err := persist(ctx, e); err != nil {
			errs = append(errs, fmt.Errorf("persist #%d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// Search retrieves every stored entry once and filters it.
// query may be a string or other value (exact match), a string-keyed map
// (partial shape), a Query, or nil. The result keeps retrieval order.
func (l *Logger) Search(ctx context.Context, query any, opts SearchOptions) (Result, error) {
	if l.medium.Retrieve == nil {
		return Result{}, ErrNoRetrieve
	}
	got, err := l.medium.Retrieve(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("retrieve: %w", err)
	}
	entries, err := search.Filter(got.Entries, search.NewQuery(query), opts)
	if err != nil {
		return Result{}, err
	}
	return Result{Entries: entries, Skipped: got.Skipped}, nil
}

// Retrieve reads back every stored entry.
func (l *Logger) Retrieve(ctx context.Context) (Retrieval, error) {
	if l.medium.Retrieve == nil {
		return Retrieval{}, ErrNoRetrieve
	}
	return l.medium.Retrieve(ctx)
}

func (l *Logger) log(level Level, args []any) {
	if err := l.Persist(context.Background(), level, args...); err != nil {
		l.diag.Error("failed to persist log entry", "level", string(level), "error", err)
	}
}

// Emergency and the level methods below persist one entry at their level in
// the background context. Failures go to the diagnostics logger instead of
// the caller; use Persist to handle them. Emerg, Crit, Err and Warn are
// short aliases.
func (l *Logger) Emergency(args ...any) { l.log(LevelEmergency, args) }
func (l *Logger) Emerg(args ...any)     { l.log(LevelEmergency, args) }
func (l *Logger) Alert(args ...any)     { l.log(LevelAlert, args) }
func (l *Logger) Critical(args ...any)  { l.log(LevelCritical, args) }
func (l *Logger) Crit(args ...any)      { l.log(LevelCritical, args) }
func (l *Logger) Error(args ...any)     { l.log(LevelError, args) }
func (l *Logger) Err(args ...any)       { l.log(LevelError, args) }
func (l *Logger) Warning(args ...any)   { l.log(LevelWarning, args) }
func (l *Logger) Warn(args ...any)      { l.log(LevelWarning, args) }
func (l *Logger) Notice(args ...any)    { l.log(LevelNotice, args) }
func (l *Logger) Info(args ...any)      { l.log(LevelInfo, args) }
func (l *Logger) Debug(args ...any)     { l.log(LevelDebug, args) }
