package medium

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/coffersTech/logpile/internal/model"
)

// FileOptions configure the JSON-lines file medium.
//
// Entries go to the severity file matching their level and to FilePath.
// Configuring FilePath together with a severity file duplicates entries on retrieval.
type FileOptions struct {
	PersistOptions
	FilePath        string
	ErrorFilePath   string
	WarningFilePath string
	VerboseFilePath string

	Logger *slog.Logger
}

func (o FileOptions) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

// targets returns the files an entry at lvl is appended to.
func (o FileOptions) targets(lvl model.Level) []string {
	var paths []string
	if o.ErrorFilePath != "" && model.IsError(lvl) {
		paths = append(paths, o.ErrorFilePath)
	}
	if o.VerboseFilePath != "" && model.IsVerbose(lvl) {
		paths = append(paths, o.VerboseFilePath)
	}
	if o.WarningFilePath != "" && model.IsWarning(lvl) {
		paths = append(paths, o.WarningFilePath)
	}
	if o.FilePath != "" {
		paths = append(paths, o.FilePath)
	}
	return paths
}

// readOrder lists configured files in retrieval order.
func (o FileOptions) readOrder() []string {
	var paths []string
	for _, p := range []string{o.ErrorFilePath, o.VerboseFilePath, o.WarningFilePath, o.FilePath} {
		if p != "" {
			paths = append(paths, p)
		}
	}
	return paths
}

// FilePersist appends one sanitized JSON entry per line.
func FilePersist(opts FileOptions) PersistFunc {
	var mu sync.Mutex
	return func(ctx context.Context, e model.Entry) (bool, error) {
		if !opts.Admits(e) {
			return false, nil
		}
		line, err := Encode(e, opts.Depth)
		if err != nil {
			return false, err
		}
		line = append(line, '\n')

		mu.Lock()
		defer mu.Unlock()
		for _, path := range opts.targets(e.Level()) {
			if err := ctx.Err(); err != nil {
				return false, err
			}
			if err := appendLine(path, line); err != nil {
				return false, err
			}
		}
		return true, nil
	}
}

func appendLine(path string, line []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create log dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	if _, err := f.Write(line); err != nil {
		f.Close()
		return fmt.Errorf("append log file: %w", err)
	}
	return f.Close()
}

// File returns a medium that persists to and retrieves from the same files.
func File(opts FileOptions) Medium {
	return Medium{
		Persist:  []PersistFunc{FilePersist(opts)},
		Retrieve: FileRetrieve(opts),
	}
}
