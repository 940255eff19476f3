package medium

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coffersTech/logpile/internal/model"
	"github.com/coffersTech/logpile/internal/sanitize"
)

var at = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func entry(lvl model.Level, msg string) model.Entry {
	return model.NewEntryAt(at, lvl, msg)
}

func TestPersistOptionsAdmits(t *testing.T) {
	t.Parallel()

	all := PersistOptions{}
	assert.True(t, all.Admits(entry(model.LevelDebug, "x")))

	warn := PersistOptions{Level: model.LevelWarning}
	assert.True(t, warn.Admits(entry(model.LevelError, "x")))
	assert.True(t, warn.Admits(entry(model.LevelWarning, "x")))
	assert.False(t, warn.Admits(entry(model.LevelNotice, "x")))
}

func TestEncodeSanitizes(t *testing.T) {
	t.Parallel()

	e := entry(model.LevelInfo, "loop")
	self := map[string]any{"a": 2}
	self["b"] = self
	e["ctx"] = self

	b, err := Encode(e, 0)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"ctx":{"a":2,"b":"[Circular]"}`)
	assert.NotContains(t, string(b), "\n")
}

func TestConsole(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer
	persist := Console(ConsoleOptions{
		PersistOptions: PersistOptions{Level: model.LevelInfo},
		Stdout:         &stdout,
		Stderr:         &stderr,
	})
	ctx := context.Background()

	tests := []struct {
		lvl     model.Level
		written bool
		stream  *bytes.Buffer
	}{
		{model.LevelCritical, true, &stderr},
		{model.LevelWarning, true, &stderr},
		{model.LevelInfo, true, &stdout},
		{model.LevelDebug, false, nil},
	}
	for _, tt := range tests {
		stdout.Reset()
		stderr.Reset()

		ok, err := persist(ctx, entry(tt.lvl, "hello"))
		require.NoError(t, err)
		assert.Equal(t, tt.written, ok, tt.lvl)
		if tt.stream == nil {
			assert.Zero(t, stdout.Len()+stderr.Len())
			continue
		}
		line := tt.stream.String()
		assert.Contains(t, line, strings.ToUpper(string(tt.lvl)))
		assert.Contains(t, line, `"message":"hello"`)
		assert.True(t, strings.HasSuffix(line, "\n"))
	}
}

func TestFileRoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	opts := FileOptions{
		ErrorFilePath:   filepath.Join(dir, "error.log"),
		WarningFilePath: filepath.Join(dir, "warning.log"),
		VerboseFilePath: filepath.Join(dir, "verbose.log"),
	}
	m := File(opts)
	ctx := context.Background()

	written := []model.Entry{
		entry(model.LevelInfo, "first info"),
		entry(model.LevelWarning, "a warning"),
		entry(model.LevelError, "an error"),
		entry(model.LevelDebug, "some debug"),
	}
	for _, e := range written {
		ok, err := m.Persist[0](ctx, e)
		require.NoError(t, err)
		require.True(t, ok)
	}

	res, err := m.Retrieve(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Skipped)

	var messages []string
	for _, e := range res.Entries {
		messages = append(messages, e.Message())
	}
	// error, verbose, warning
	assert.Equal(t, []string{"an error", "first info", "some debug", "a warning"}, messages)
}

func TestFileRetrieveSkipsBadLines(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "all.log")
	content := `{"timestamp":"2024-03-01T12:00:00.000Z","level":"info","message":"ok"}
{not json

[1,2,3]
{"timestamp":"2024-03-01T12:00:01.000Z","level":"error","message":"also ok"}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	res, err := FileRetrieve(FileOptions{FilePath: path})(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Skipped)
	require.Len(t, res.Entries, 2)
	assert.Equal(t, "ok", res.Entries[0].Message())
	assert.Equal(t, "also ok", res.Entries[1].Message())
}

func TestFileRetrieveMissingFile(t *testing.T) {
	t.Parallel()

	res, err := FileRetrieve(FileOptions{FilePath: filepath.Join(t.TempDir(), "nope.log")})(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Entries)
	assert.Zero(t, res.Skipped)
}

func TestFilePersistRespectsLevel(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "all.log")
	persist := FilePersist(FileOptions{
		PersistOptions: PersistOptions{Level: model.LevelError},
		FilePath:       path,
	})

	ok, err := persist(context.Background(), entry(model.LevelInfo, "quiet"))
	require.NoError(t, err)
	assert.False(t, ok)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))

	ok, err = persist(context.Background(), entry(model.LevelAlert, "loud"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.FileExists(t, path)
}

func TestMemory(t *testing.T) {
	t.Parallel()

	mem := NewMemory(PersistOptions{})
	med := mem.Medium()

	e := entry(model.LevelInfo, "kept")
	e["self"] = e
	ok, err := med.Persist[0](context.Background(), e)
	require.NoError(t, err)
	require.True(t, ok)

	res, err := med.Retrieve(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Entries, 1)
	assert.Equal(t, sanitize.Circular, res.Entries[0]["self"])
	assert.Equal(t, 1, mem.Len())
}
