package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"avmcp/internal/alphavantage"
	"avmcp/internal/config"
	"avmcp/internal/slogutil"
	"avmcp/internal/storage"
	"avmcp/internal/version"
)

var (
	configFileFlag string
	logLevelFlag   string
	logFormatFlag  string
	noCacheFlag    bool
)

var rootCmd = &cobra.Command{
	Use:   "avmcp",
	Short: "Alpha Vantage MCP server",
	Long: `avmcp exposes Alpha Vantage market data (quotes, daily prices and
symbol search) to MCP clients over stdio or HTTP, and to the shell through
direct commands.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.SetVersionTemplate("avmcp version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVar(&configFileFlag, "config", "", "Config file (default: ./avmcp.toml or ~/.avmcp/avmcp.toml)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormatFlag, "log-format", "", "Log format: human, json")
	rootCmd.PersistentFlags().BoolVar(&noCacheFlag, "no-cache", false, "Bypass the response cache")
}

// loadConfig loads configuration and applies the global flag overrides.
// Flags take precedence over the environment and the config file.
func loadConfig() (*config.LoadResult, error) {
	result, err := config.LoadWithDetails(config.LoadOptions{ConfigFile: configFileFlag})
	if err != nil {
		return nil, err
	}

	cfg := result.Config
	if logLevelFlag != "" {
		cfg.Logging.Level = logLevelFlag
	}
	if logFormatFlag != "" {
		cfg.Logging.Format = logFormatFlag
	}
	if noCacheFlag {
		cfg.Cache.Enabled = false
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return result, nil
}

// app holds the components shared by the commands that talk to Alpha Vantage.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	client *alphavantage.Client

	closers []io.Closer
}

// newMaintenanceApp loads configuration and wires logging only.
// Logs always go to stderr.
func newMaintenanceApp() (*app, error) {
	result, err := loadConfig()
	if err != nil {
		return nil, err
	}
	cfg := result.Config

	logger, logCloser, err := slogutil.FromConfig(cfg.Logging, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	if result.ConfigPath != "" {
		logger.Debug("Loaded config", "path", result.ConfigPath)
	}
	for _, ov := range result.EnvOverrides {
		logger.Debug("Config override", "env", ov.EnvVar, "key", ov.Path, "source", ov.Source)
	}

	return &app{cfg: cfg, logger: logger, closers: []io.Closer{logCloser}}, nil
}

// newApp additionally wires the response cache and the Alpha Vantage client.
func newApp() (*app, error) {
	a, err := newMaintenanceApp()
	if err != nil {
		return nil, err
	}
	cfg := a.cfg

	if !cfg.HasAPIKey() {
		a.logger.Warn("ALPHA_VANTAGE_API_KEY is not set; tool calls will fail until it is configured")
	}

	opts := []alphavantage.Option{alphavantage.WithLogger(a.logger)}
	if cfg.Cache.Enabled {
		cache, err := a.openCache()
		if err != nil {
			a.logger.Warn("Response cache unavailable", "path", cfg.Cache.Path, "error", err.Error())
		} else {
			opts = append(opts, alphavantage.WithCache(cache, alphavantage.TTLsFromConfig(cfg.Cache)))
		}
	}

	a.client = alphavantage.New(cfg.AlphaVantage, opts...)
	return a, nil
}

// openCache opens the cache database and registers it for Close.
func (a *app) openCache() (*storage.Cache, error) {
	db, err := storage.Open(a.cfg.Cache.Path, a.logger)
	if err != nil {
		return nil, err
	}
	cache, err := storage.NewCache(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	a.closers = append(a.closers, db, cache)
	return cache, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i].Close()
	}
}
