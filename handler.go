package logpile

import (
	"context"
	"log/slog"
	"maps"
	"runtime"
	"slices"

	"github.com/coffersTech/logpile/internal/model"
)

// SlogHandler is a slog.Handler that turns records into entries persisted by a Logger.
type SlogHandler struct {
	logger *Logger
	opts   slog.HandlerOptions
	attrs  map[string]any // preformatted attributes, nested by group
	groups []string
}

// NewSlogHandler returns a handler persisting through l. opts may be nil.
func NewSlogHandler(l *Logger, opts *slog.HandlerOptions) *SlogHandler {
	h := &SlogHandler{logger: l, attrs: map[string]any{}}
	if opts != nil {
		h.opts = *opts
	}
	return h
}

// LevelFromSlog maps slog levels onto severities.
func LevelFromSlog(l slog.Level) Level {
	switch {
	case l >= slog.LevelError+4:
		return LevelCritical
	case l >= slog.LevelError:
		return LevelError
	case l >= slog.LevelWarn:
		return LevelWarning
	case l >= slog.LevelInfo+2:
		return LevelNotice
	case l >= slog.LevelInfo:
		return LevelInfo
	default:
		return LevelDebug
	}
}

func (h *SlogHandler) Enabled(_ context.Context, level slog.Level) bool {
	threshold := slog.LevelInfo
	if h.opts.Level != nil {
		threshold = h.opts.Level.Level()
	}
	return level >= threshold
}

func (h *SlogHandler) Handle(ctx context.Context, r slog.Record) error {
	fields := cloneTree(h.attrs)
	target := groupMap(fields, h.groups)

	// Add basic source info
	if h.opts.AddSource && r.PC != 0 {
		fs := runtime.CallersFrames([]uintptr{r.PC})
		f, _ := fs.Next()
		fields["source"] = map[string]any{
			"function": f.Function,
			"file":     f.File,
			"line":     f.Line,
		}
	}

	r.Attrs(func(a slog.Attr) bool {
		h.addAttr(target, h.groups, a)
		return true
	})

	args := []any{fields}
	if r.Message != "" {
		args = []any{r.Message, fields}
	}
	pruneEmptyGroups(fields, h.groups)

	now := r.Time
	if now.IsZero() {
		now = h.logger.now()
	}
	return h.logger.PersistEntry(ctx, model.NewEntryAt(now, LevelFromSlog(r.Level), args...))
}

func (h *SlogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	h2 := *h
	h2.attrs = cloneTree(h.attrs)
	target := groupMap(h2.attrs, h2.groups)
	for _, a := range attrs {
		h2.addAttr(target, h2.groups, a)
	}
	return &h2
}

func (h *SlogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	h2 := *h
	h2.groups = append(slices.Clip(h.groups), name)
	return &h2
}

// addAttr resolves a and stores it in dst; groups become nested maps.
func (h *SlogHandler) addAttr(dst map[string]any, groups []string, a slog.Attr) {
	if h.opts.ReplaceAttr != nil && a.Value.Kind() != slog.KindGroup {
		a = h.opts.ReplaceAttr(groups, a)
	}
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}

	if a.Value.Kind() != slog.KindGroup {
		dst[a.Key] = attrValue(a.Value)
		return
	}

	members := a.Value.Group()
	if len(members) == 0 {
		return
	}
	sub := dst
	subGroups := groups
	if a.Key != "" {
		existing, _ := dst[a.Key].(map[string]any)
		if existing == nil {
			existing = map[string]any{}
		}
		dst[a.Key] = existing
		sub = existing
		subGroups = append(slices.Clip(groups), a.Key)
	}
	for _, m := range members {
		h.addAttr(sub, subGroups, m)
	}
}

func attrValue(v slog.Value) any {
	switch v.Kind() {
	case slog.KindTime:
		return model.FormatTimestamp(v.Time())
	case slog.KindDuration:
		return v.Duration().String()
	default:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
		return v.Any()
	}
}

// groupMap returns the nested map for the group path, creating it if needed.
func groupMap(root map[string]any, groups []string) map[string]any {
	cur := root
	for _, g := range groups {
		next, ok := cur[g].(map[string]any)
		if !ok {
			next = map[string]any{}
			cur[g] = next
		}
		cur = next
	}
	return cur
}

// pruneEmptyGroups drops group maps left empty by a record without attributes.
func pruneEmptyGroups(root map[string]any, groups []string) {
	if len(groups) == 0 {
		return
	}
	child, ok := root[groups[0]].(map[string]any)
	if !ok {
		return
	}
	pruneEmptyGroups(child, groups[1:])
	if len(child) == 0 {
		delete(root, groups[0])
	}
}

// cloneTree copies nested attribute maps so handlers never share them.
func cloneTree(m map[string]any) map[string]any {
	out := maps.Clone(m)
	if out == nil {
		out = map[string]any{}
	}
	for k, v := range out {
		if sub, ok := v.(map[string]any); ok {
			out[k] = cloneTree(sub)
		}
	}
	return out
}
