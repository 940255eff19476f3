package medium

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/coffersTech/logpile/internal/model"
)

// ConsoleOptions configure the console medium.
type ConsoleOptions struct {
	PersistOptions
	// Stdout and Stderr default to the process streams.
	Stdout io.Writer
	Stderr io.Writer
}

var levelColors = map[model.Level]lipgloss.Color{
	model.LevelEmergency: lipgloss.Color("9"),
	model.LevelAlert:     lipgloss.Color("9"),
	model.LevelCritical:  lipgloss.Color("9"),
	model.LevelError:     lipgloss.Color("1"),
	model.LevelWarning:   lipgloss.Color("11"),
	model.LevelNotice:    lipgloss.Color("14"),
	model.LevelInfo:      lipgloss.Color("10"),
	model.LevelDebug:     lipgloss.Color("8"),
}

type consoleStream struct {
	w      io.Writer
	styles map[model.Level]lipgloss.Style
}

func newConsoleStream(w io.Writer) *consoleStream {
	r := lipgloss.NewRenderer(w)
	styles := make(map[model.Level]lipgloss.Style, len(levelColors))
	for lvl, c := range levelColors {
		s := r.NewStyle().Foreground(c)
		if model.IsError(lvl) {
			s = s.Bold(true)
		}
		styles[lvl] = s
	}
	return &consoleStream{w: w, styles: styles}
}

// Console writes entries to the terminal: errors and warnings to stderr,
// everything else to stdout. Each line is a level label followed by the entry as JSON.
func Console(opts ConsoleOptions) PersistFunc {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	out := newConsoleStream(opts.Stdout)
	errOut := newConsoleStream(opts.Stderr)

	var mu sync.Mutex
	return func(_ context.Context, e model.Entry) (bool, error) {
		if !opts.Admits(e) {
			return false, nil
		}
		line, err := Encode(e, opts.Depth)
		if err != nil {
			return false, err
		}

		lvl := e.Level()
		stream := out
		if model.IsError(lvl) || model.IsWarning(lvl) {
			stream = errOut
		}
		label := stream.styles[lvl].Render(strings.ToUpper(string(lvl)))

		mu.Lock()
		defer mu.Unlock()
		if _, err := fmt.Fprintf(stream.w, "%s %s\n", label, line); err != nil {
			return false, fmt.Errorf("write console: %w", err)
		}
		return true, nil
	}
}
