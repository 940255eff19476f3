package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/coffersTech/logpile"
	"github.com/coffersTech/logpile/internal/engine"
)

// executeCommand runs a fresh command tree with args and returns captured output
func executeCommand(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err = root.Execute()
	return out.String(), errOut.String(), err
}

func writeConfig(t *testing.T, body string) (dir, path string) {
	t.Helper()
	dir = t.TempDir()
	path = filepath.Join(dir, "logpile.yaml")
	body = strings.ReplaceAll(body, "$DIR", dir)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return dir, path
}

func TestRootCommand(t *testing.T) {
	root := NewRootCmd()
	assert.Equal(t, "logpile", root.Use)

	names := make(map[string]bool)
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"emit", "search", "serve", "stats", "hash-token"} {
		assert.True(t, names[want], "missing subcommand %q", want)
	}
}

func TestEmitThenSearchFile(t *testing.T) {
	_, cfg := writeConfig(t, `
log:
  file: $DIR/app.log
console:
  enabled: false
`)

	_, _, err := executeCommand(t, "--config", cfg, "emit", "--level", "error", "payment failed", "--field", "order=42", "--field", `request={"method":"post"}`)
	require.NoError(t, err)
	_, _, err = executeCommand(t, "--config", cfg, "emit", "all good")
	require.NoError(t, err)

	out, _, err := executeCommand(t, "--config", cfg, "search", "42", "--json")
	require.NoError(t, err)
	var res logpile.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.Len(t, res.Entries, 1)
	assert.Equal(t, "payment failed", res.Entries[0]["message"])
	assert.Equal(t, "error", res.Entries[0]["level"])

	out, _, err = executeCommand(t, "--config", cfg, "search", "--shape", `{"method":"post"}`)
	require.NoError(t, err)
	assert.Contains(t, out, "payment failed")
	assert.Contains(t, out, "1 entries")

	// "42" as a literal string matches nothing: the field holds a number
	out, _, err = executeCommand(t, "--config", cfg, "search", "42", "--literal")
	require.NoError(t, err)
	assert.Contains(t, out, "0 entries")

	_, _, err = executeCommand(t, "--config", cfg, "search", "x", "--shape", `{"a":1}`)
	assert.Error(t, err)
	_, _, err = executeCommand(t, "--config", cfg, "search", "--time", "someday")
	assert.ErrorIs(t, err, logpile.ErrInvalidWindow)
}

func TestEmitToStoreAndStats(t *testing.T) {
	dir, cfg := writeConfig(t, `
log:
  file: ""
console:
  enabled: false
`)
	dataDir := filepath.Join(dir, "data")

	for _, msg := range []string{"one", "two"} {
		_, _, err := executeCommand(t, "--config", cfg, "--data-dir", dataDir, "emit", "--level", "warning", msg)
		require.NoError(t, err)
	}

	out, _, err := executeCommand(t, "--config", cfg, "--data-dir", dataDir, "stats", "--json")
	require.NoError(t, err)
	var stats engine.Stats
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.EqualValues(t, 2, stats.TotalEntries)
	assert.EqualValues(t, 2, stats.LevelCounts["warning"])

	out, _, err = executeCommand(t, "--config", cfg, "--data-dir", dataDir, "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "STORE SUMMARY")
	assert.Contains(t, out, "warning")

	out, _, err = executeCommand(t, "--config", cfg, "--data-dir", dataDir, "search", "two", "--json")
	require.NoError(t, err)
	var res logpile.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.Len(t, res.Entries, 1)
}

func TestStatsWithoutStore(t *testing.T) {
	_, cfg := writeConfig(t, "console:\n  enabled: false\n")
	_, _, err := executeCommand(t, "--config", cfg, "stats")
	assert.ErrorIs(t, err, errNoStats)
}

func TestInvalidConfig(t *testing.T) {
	_, cfg := writeConfig(t, "log:\n  level: loud\n")
	_, _, err := executeCommand(t, "--config", cfg, "emit", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log.level")
}

func TestHashToken(t *testing.T) {
	out, _, err := executeCommand(t, "hash-token", "sk-abc")
	require.NoError(t, err)

	hash := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(out), "hash:"))
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("sk-abc")))

	out, _, err = executeCommand(t, "hash-token")
	require.NoError(t, err)
	assert.Contains(t, out, "token: sk-")
}

func TestParseFields(t *testing.T) {
	t.Parallel()

	got, err := parseFields([]string{"n=42", "ok=true", "name=alice", `obj={"a":[1]}`, "empty="})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"n":     float64(42),
		"ok":    true,
		"name":  "alice",
		"obj":   map[string]any{"a": []any{float64(1)}},
		"empty": "",
	}, got)

	_, err = parseFields([]string{"novalue"})
	assert.Error(t, err)
	_, err = parseFields([]string{"=x"})
	assert.Error(t, err)
}

func TestSearchQuery(t *testing.T) {
	t.Parallel()

	q, err := searchQuery([]string{"500"}, "", false)
	require.NoError(t, err)
	assert.Equal(t, float64(500), q)

	q, err = searchQuery([]string{"500"}, "", true)
	require.NoError(t, err)
	assert.Equal(t, "500", q)

	q, err = searchQuery([]string{"Bearer token"}, "", false)
	require.NoError(t, err)
	assert.Equal(t, "Bearer token", q)

	q, err = searchQuery([]string{`{"a":1}`}, "", false)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, q)

	q, err = searchQuery(nil, `{"method":"post"}`, false)
	require.NoError(t, err)
	assert.Equal(t, logpile.PartialShape{Fields: map[string]any{"method": "post"}}, q)

	q, err = searchQuery(nil, "", false)
	require.NoError(t, err)
	assert.Nil(t, q)

	_, err = searchQuery(nil, "[1]", false)
	assert.Error(t, err)
}

func TestFormatBytes(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "512 B", formatBytes(512))
	assert.Equal(t, "1.5 KiB", formatBytes(1536))
	assert.Equal(t, "2.0 MiB", formatBytes(2<<20))
}
