package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/user/rerunctl/internal/console"
	"github.com/user/rerunctl/internal/keepalive"
	"github.com/user/rerunctl/internal/state"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local console and heartbeat daemon",
	RunE:  runServe,
}

const pidFileName = "rerunctl.pid"

func writePIDFile(dataDir string) (string, error) {
	pidPath := filepath.Join(dataDir, pidFileName)
	pid := os.Getpid()
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(pid)+"\n"), 0644); err != nil {
		return "", fmt.Errorf("write PID file: %w", err)
	}
	return pidPath, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	pidPath, err := writePIDFile(cfg.DataDir)
	if err != nil {
		return err
	}
	defer os.Remove(pidPath)

	files := state.NewFileStore(cfg.DataDir)
	store, err := files.Load()
	if err != nil {
		return fmt.Errorf("load session state: %w", err)
	}
	files.Attach(store)
	// CLI invocations write the state file while the daemon runs.
	reload := func() error { return files.Reload(store) }

	resolver := newResolver(cfg)
	backend := newClient(cfg)

	consoleSrv := console.NewServer(store, backend, resolver, console.Options{
		ViewerBaseURL: cfg.Viewer.BaseURL,
		Streaming:     cfg.Streaming,
		CatalogTTL:    cfg.Catalog.TTL.Duration,
		Reload:        reload,
	})
	httpServer := &http.Server{
		Addr:              cfg.ConsoleAddr(),
		Handler:           consoleSrv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("console started", "listen", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("console server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		return httpServer.Shutdown(shutdownCtx)
	})

	if interval := cfg.Heartbeat.Interval.Duration; interval > 0 {
		keeper := keepalive.New(backend, store, interval, keepalive.WithReload(reload))
		g.Go(func() error { return keeper.Run(gctx) })
	} else {
		slog.Warn("heartbeat disabled (interval is zero)")
	}

	slog.Info("rerunctl started",
		"data_dir", cfg.DataDir,
		"log_level", cfg.LogLevel,
		"api_base", resolver.Base(),
		"viewer_base", cfg.Viewer.BaseURL,
		"streaming", cfg.Streaming.Enabled,
		"recording_id", string(store.RecordingID()),
		"pid_file", pidPath,
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigChan)

	for {
		select {
		case <-gctx.Done():
			// A component failed; surface its error.
			return g.Wait()
		case sig := <-sigChan:
			if sig == syscall.SIGHUP {
				slog.Info("received SIGHUP, restarting")
				execPath, err := os.Executable()
				if err != nil {
					slog.Error("failed to get executable path", "error", err)
					continue
				}
				cancel()
				if err := g.Wait(); err != nil {
					slog.Error("shutdown before re-exec", "error", err)
				}
				os.Remove(pidPath)
				if err := syscall.Exec(execPath, os.Args, os.Environ()); err != nil {
					return fmt.Errorf("re-exec: %w", err)
				}
			}
			slog.Info("shutting down", "signal", sig)
			cancel()
			return g.Wait()
		}
	}
}
