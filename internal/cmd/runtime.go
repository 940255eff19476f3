package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/coffersTech/logpile"
	"github.com/coffersTech/logpile/internal/cluster"
	"github.com/coffersTech/logpile/internal/config"
	"github.com/coffersTech/logpile/internal/model"
)

// runtime is a Logger assembled from configuration, plus what it must close.
type runtime struct {
	cfg     *config.Config
	diag    *slog.Logger
	logger  *logpile.Logger
	store   *logpile.Store
	shipper *cluster.Shipper
	agg     *cluster.Aggregator
}

// openRuntime wires every configured medium. Retrieval prefers cluster
// nodes, then the segment store, then the log files.
func openRuntime(cfg *config.Config, stdout, stderr io.Writer) (*runtime, error) {
	rt := &runtime{
		cfg: cfg,
		diag: slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{
			Level: cfg.Diagnostics.SlogLevel(),
		})),
	}

	depth := cfg.Log.Depth
	var m logpile.Medium

	if cfg.Console.Enabled {
		m.Persist = append(m.Persist, logpile.Console(logpile.ConsoleOptions{
			PersistOptions: logpile.PersistOptions{Level: model.ParseLevel(cfg.Console.Level), Depth: depth},
			Stdout:         stdout,
			Stderr:         stderr,
		}))
	}

	fileOpts := logpile.FileOptions{
		PersistOptions:  logpile.PersistOptions{Level: model.ParseLevel(cfg.Log.Level), Depth: depth},
		FilePath:        cfg.Log.File,
		ErrorFilePath:   cfg.Log.ErrorFile,
		WarningFilePath: cfg.Log.WarningFile,
		VerboseFilePath: cfg.Log.VerboseFile,
		Logger:          rt.diag,
	}
	hasFiles := fileOpts.FilePath != "" || fileOpts.ErrorFilePath != "" ||
		fileOpts.WarningFilePath != "" || fileOpts.VerboseFilePath != ""
	if hasFiles {
		files := logpile.File(fileOpts)
		m.Persist = append(m.Persist, files.Persist...)
		m.Retrieve = files.Retrieve
	}

	if cfg.Store.Enabled {
		var key []byte
		if cfg.Store.Encrypt {
			k, generated, err := logpile.LoadKey(cfg.Store.KeyPath())
			if err != nil {
				return nil, fmt.Errorf("load master key: %w", err)
			}
			if generated {
				rt.diag.Warn("generated a new master key; keep it safe", "path", cfg.Store.KeyPath())
			}
			key = k
		}
		store, err := logpile.OpenStore(logpile.StoreOptions{
			DataDir:      cfg.Store.DataDir,
			MaxTableSize: cfg.Store.MaxTableSize(),
			Retention:    cfg.Store.RetentionDuration(),
			Persist:      logpile.PersistOptions{Level: model.ParseLevel(cfg.Log.Level), Depth: depth},
			Key:          key,
			Logger:       rt.diag,
		})
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		rt.store = store
		m.Persist = append(m.Persist, store.Persist)
		m.Retrieve = store.Retrieve
	}

	if cfg.Cluster.ShipTo != "" {
		rt.shipper = cluster.NewShipper(cluster.ShipperOptions{
			PersistOptions: logpile.PersistOptions{Level: model.ParseLevel(cfg.Log.Level), Depth: depth},
			URL:            cfg.Cluster.ShipTo,
			Token:          cfg.Cluster.Token,
			Logger:         rt.diag,
		})
		m.Persist = append(m.Persist, rt.shipper.Persist)
	}

	if len(cfg.Cluster.Nodes) > 0 {
		rt.agg = cluster.NewAggregator(cfg.Cluster.Nodes, cfg.Cluster.Token, rt.diag)
		m.Retrieve = rt.agg.Retrieve
	}

	rt.logger = logpile.New(m, logpile.WithDiagnostics(rt.diag))
	return rt, nil
}

// Close drains the shipper and flushes the store.
func (rt *runtime) Close() error {
	var errs []error
	if rt.shipper != nil {
		errs = append(errs, rt.shipper.Close())
	}
	if rt.store != nil {
		errs = append(errs, rt.store.Close())
	}
	return errors.Join(errs...)
}
