package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/coffersTech/logpile/internal/model"
	"github.com/coffersTech/logpile/internal/sanitize"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // config key, e.g. "store.retention"
	Value   any
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errs []ValidationError
	add := func(field string, value any, msg string) {
		errs = append(errs, ValidationError{Field: field, Value: value, Message: msg})
	}

	if !model.ValidLevel(c.Log.Level) {
		add("log.level", c.Log.Level, "unknown severity")
	}
	if c.Log.Depth < 0 || c.Log.Depth > sanitize.MaxDepth {
		add("log.depth", c.Log.Depth, fmt.Sprintf("must be between 0 and %d", sanitize.MaxDepth))
	}
	if !model.ValidLevel(c.Console.Level) {
		add("console.level", c.Console.Level, "unknown severity")
	}

	if c.Store.Enabled {
		if c.Store.DataDir == "" {
			add("store.data_dir", c.Store.DataDir, "required when the store is enabled")
		}
		if c.Store.MaxTableMB <= 0 {
			add("store.max_table_mb", c.Store.MaxTableMB, "must be positive")
		}
	}
	if c.Store.Retention != "" {
		if d, err := time.ParseDuration(c.Store.Retention); err != nil || d < 0 {
			add("store.retention", c.Store.Retention, "invalid duration")
		}
	}

	for _, node := range c.Cluster.Nodes {
		if !validURL(node) {
			add("cluster.nodes", node, "must be an http(s) URL")
		}
	}
	if c.Cluster.ShipTo != "" && !validURL(c.Cluster.ShipTo) {
		add("cluster.ship_to", c.Cluster.ShipTo, "must be an http(s) URL")
	}
	if c.Server.TokenHash != "" && !strings.HasPrefix(c.Server.TokenHash, "$2") {
		add("server.token_hash", "<redacted>", "must be a bcrypt hash")
	}

	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.Diagnostics.Level)); err != nil {
		add("diagnostics.level", c.Diagnostics.Level, "must be debug, info, warn or error")
	}

	return errs
}

func validURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
