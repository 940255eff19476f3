package cmd

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/coffersTech/logpile/internal/engine"
	"github.com/coffersTech/logpile/internal/registry"
	"github.com/coffersTech/logpile/internal/server"
)

const (
	cleanerInterval = time.Hour

	// shippers silent for this long drop out of /api/instances
	instanceTimeout = 10 * time.Minute
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API for ingest and search",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, a, cmd)
		},
	}

	cmd.Flags().String("addr", "", "listen address (default from server.addr)")
	_ = a.v.BindPFlag("server.addr", cmd.Flags().Lookup("addr"))
	return cmd
}

func serve(ctx context.Context, a *app, cmd *cobra.Command) error {
	rt, err := openRuntime(a.cfg, cmd.OutOrStdout(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	reg := registry.NewStore()
	go reg.RunCleanupLoop(ctx, time.Minute, instanceTimeout)

	opts := server.Options{
		Logger:      rt.logger,
		TokenHash:   a.cfg.Server.TokenHash,
		Registry:    reg,
		Diagnostics: rt.diag,
	}
	switch {
	case rt.agg != nil:
		opts.Stats = rt.agg.Stats
	case rt.store != nil:
		store := rt.store
		opts.Stats = func(context.Context) engine.Stats { return store.Stats() }
	}
	if rt.store != nil {
		opts.Sync = rt.store.Sync
		if a.cfg.Store.RetentionDuration() > 0 {
			go rt.store.RunCleaner(ctx, cleanerInterval)
		}
	}

	srv := server.New(opts)
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(a.cfg.Server.Addr)
	}()

	select {
	case err = <-errCh:
		if err != nil {
			rt.diag.Error("server stopped", "error", err)
		}
	case <-ctx.Done():
		rt.diag.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if serr := srv.Shutdown(shutdownCtx); serr != nil {
			rt.diag.Error("server shutdown error", "error", serr)
		}
	}

	rt.diag.Info("flushing buffered entries")
	return errors.Join(err, rt.Close())
}
