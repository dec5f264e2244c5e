// Package main provides the parquetgrip CLI: a paginated viewer backend
// for large tabular files queried through embedded DuckDB.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/wansanai/ParquetGrip/config"
	"github.com/wansanai/ParquetGrip/core"
	"github.com/wansanai/ParquetGrip/engine"
	"github.com/wansanai/ParquetGrip/manager"
	"github.com/wansanai/ParquetGrip/server"
	"github.com/wansanai/ParquetGrip/state"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "parquetgrip [file]",
		Short: "Browse large tabular files without loading them into memory",
		Long: `parquetgrip serves a paginated query session engine over embedded
DuckDB. Each tab holds one file with its own filter, sort and page
position; all of it is persisted so the viewer resumes where it left
off.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile, cmd.Flags())
			if err != nil {
				return err
			}
			return runServe(cfg, args)
		},
		SilenceUsage: true,
	}

	cmd.Flags().StringVar(&cfgFile, "config", "", "Config file (default parquetgrip.yaml if present)")
	addConfigFlags(cmd.Flags())

	cmd.AddCommand(newPeekCommand())
	cmd.AddCommand(newVersionCommand())
	return cmd
}

// addConfigFlags declares the flags that override config keys. Flag names
// use dashes; config.Load maps them onto the underscored keys.
func addConfigFlags(f *pflag.FlagSet) {
	f.String("listen", "", "HTTP listen address")
	f.String("state-file", "", "Path of the persisted session state")
	f.Int("page-size", 0, "Rows per page")
	f.Duration("save-debounce", 0, "Delay before persisting state changes")
	f.Bool("watch", true, "Refresh tabs when their files change on disk")
	f.String("log-level", "", "Log level: debug, info, warn, error")
}

func runServe(cfg *config.Config, args []string) error {
	if err := core.SetLogLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}
	ctx := core.WithLogger(context.Background(), "main")

	eng, err := engine.New()
	if err != nil {
		return err
	}
	defer eng.Close()

	store := state.NewStore(afero.NewOsFs(), cfg.StateFile)
	mgr := manager.New(eng, store, manager.Options{
		PageSize:     cfg.PageSize,
		SaveDebounce: cfg.SaveDebounce,
		Watch:        cfg.Watch,
	})
	defer mgr.Close()

	doc, err := store.Load()
	switch {
	case errors.Is(err, core.ErrPersistenceCorrupt):
		core.Warnf(ctx, "discarding corrupt session state at %s: %v", store.Path(), err)
	case err != nil:
		core.Warnf(ctx, "cannot read session state at %s: %v", store.Path(), err)
	default:
		mgr.Restore(ctx, doc)
	}

	if len(args) == 1 {
		if _, err := mgr.OpenTab(ctx, args[0]); err != nil {
			core.Warnf(ctx, "opening %s: %v", args[0], err)
		}
	}

	srv := &http.Server{
		Addr:    cfg.Listen,
		Handler: server.New(mgr).Router(),
	}

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		core.Infof(ctx, "parquetgrip listening on http://%s", cfg.Listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-sigCtx.Done():
	}

	core.Infof(ctx, "shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		core.Errorf(ctx, "server shutdown: %v", err)
	}
	return nil
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("parquetgrip %s\n", strings.TrimSpace(version))
		},
	}
}

// version is overridden at build time with -ldflags.
var version = "dev"
