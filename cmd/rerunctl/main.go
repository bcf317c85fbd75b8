package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/user/rerunctl/internal/client"
	"github.com/user/rerunctl/internal/config"
	"github.com/user/rerunctl/internal/endpoint"
	"github.com/user/rerunctl/internal/state"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:           "rerunctl",
	Short:         "Drive Rerun recording sessions on a data provider backend",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging(loadConfig())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config",
		filepath.Join(os.Getenv("HOME"), ".rerunctl", "config.json"), "config file path")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var loadedCfg *config.Config

// loadConfig loads the config once per process; failures are fatal.
func loadConfig() *config.Config {
	if loadedCfg != nil {
		return loadedCfg
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	loadedCfg = cfg
	return cfg
}

func setupLogging(cfg *config.Config) {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var out io.Writer = os.Stderr
	if cfg.LogFile != "" {
		out = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    10, // megabytes
			MaxBackups: 5,
			MaxAge:     30, // days
			Compress:   true,
		})
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})))
}

func newResolver(cfg *config.Config) *endpoint.Resolver {
	return endpoint.NewResolver(cfg.API.BaseURL)
}

func newClient(cfg *config.Config) *client.Client {
	return client.New(newResolver(cfg), cfg.API.Timeout.Duration)
}

// openState loads the persisted session state and keeps the file in sync
// with every later mutation.
func openState(cfg *config.Config) (*state.Store, error) {
	files := state.NewFileStore(cfg.DataDir)
	store, err := files.Load()
	if err != nil {
		return nil, fmt.Errorf("load session state: %w", err)
	}
	files.Attach(store)
	return store, nil
}
