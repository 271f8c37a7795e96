package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	gotoml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"avmcp/internal/config"
	"avmcp/internal/paths"
)

var (
	configFormat    string
	configInitForce bool
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage avmcp configuration",
	Long:  "View and manage avmcp configuration stored in avmcp.toml",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long: `Display the effective configuration after defaults, the config file,
.env and environment variables are merged. Secrets are masked.

Examples:
  avmcp config show                # Pretty-print current config
  avmcp config show --format json  # JSON with source information
  avmcp config show --format toml  # Ready to paste into avmcp.toml`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file",
	Long: `Write the default configuration to --config, or to ~/.avmcp/avmcp.toml.
An existing file is left alone unless --force is given.`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

var configEnvCmd = &cobra.Command{
	Use:   "env",
	Short: "List supported environment variables",
	Args:  cobra.NoArgs,
	Run:   runConfigEnv,
}

func init() {
	configShowCmd.Flags().StringVar(&configFormat, "format", "human", "Output format (human, json, yaml, toml)")
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "Overwrite an existing config file")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configEnvCmd)
	rootCmd.AddCommand(configCmd)
}

// ConfigShowResponse is the response format for config show
type ConfigShowResponse struct {
	ConfigPath   string               `json:"configPath,omitempty"`
	DotEnvPath   string               `json:"dotEnvPath,omitempty"`
	UsedDefaults bool                 `json:"usedDefaults"`
	EnvOverrides []config.EnvOverride `json:"envOverrides,omitempty"`
	Config       *config.Config       `json:"config"`
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	result, err := loadConfig()
	if err != nil {
		return err
	}
	return writeConfig(os.Stdout, result, configFormat)
}

func writeConfig(w io.Writer, result *config.LoadResult, format string) error {
	cfg := result.Config.Redacted()

	switch strings.ToLower(format) {
	case "json":
		data, err := json.MarshalIndent(ConfigShowResponse{
			ConfigPath:   result.ConfigPath,
			DotEnvPath:   result.DotEnvPath,
			UsedDefaults: result.UsedDefaults,
			EnvOverrides: result.EnvOverrides,
			Config:       cfg,
		}, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal config: %w", err)
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return fmt.Errorf("marshal config: %w", err)
		}
		return enc.Close()
	case "toml":
		data, err := gotoml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("marshal config: %w", err)
		}
		_, err = w.Write(data)
		return err
	case "human", "":
		writeConfigHuman(w, result, cfg)
		return nil
	default:
		return fmt.Errorf("unsupported format: %s (use human, json, yaml or toml)", format)
	}
}

func writeConfigHuman(w io.Writer, result *config.LoadResult, cfg *config.Config) {
	defaults := config.DefaultConfig()

	fmt.Fprintln(w, "avmcp Configuration")
	fmt.Fprintln(w, strings.Repeat("─", 50))

	if result.UsedDefaults {
		fmt.Fprintln(w, "Source: defaults (no config file found)")
	} else if result.ConfigPath != "" {
		fmt.Fprintf(w, "Source: %s\n", result.ConfigPath)
	}
	if result.DotEnvPath != "" {
		fmt.Fprintf(w, "Dotenv: %s\n", result.DotEnvPath)
	}

	if len(result.EnvOverrides) > 0 {
		fmt.Fprintln(w, "\nEnvironment Overrides:")
		for _, ov := range result.EnvOverrides {
			fmt.Fprintf(w, "  %s=%s → %s (%s)\n", ov.EnvVar, ov.FromValue, ov.Path, ov.Source)
		}
	}

	fmt.Fprintln(w, "\nalphaVantage:")
	printConfigValue(w, "  apiKey", valueOr(cfg.AlphaVantage.APIKey, "(not set)"), "(not set)")
	printConfigValue(w, "  baseUrl", cfg.AlphaVantage.BaseURL, defaults.AlphaVantage.BaseURL)
	printConfigValue(w, "  requestTimeout", cfg.AlphaVantage.RequestTimeout, defaults.AlphaVantage.RequestTimeout)
	printConfigValue(w, "  maxRetries", cfg.AlphaVantage.MaxRetries, defaults.AlphaVantage.MaxRetries)

	fmt.Fprintln(w, "\nserver:")
	printConfigValue(w, "  host", cfg.Server.Host, defaults.Server.Host)
	printConfigValue(w, "  port", cfg.Server.Port, defaults.Server.Port)
	printConfigValue(w, "  authTokenHashes", len(cfg.Server.AuthTokenHashes), 0)
	printConfigValue(w, "  rateLimit.enabled", cfg.Server.RateLimit.Enabled, defaults.Server.RateLimit.Enabled)
	printConfigValue(w, "  rateLimit.requestsPerMinute", cfg.Server.RateLimit.RequestsPerMinute, defaults.Server.RateLimit.RequestsPerMinute)
	printConfigValue(w, "  rateLimit.burst", cfg.Server.RateLimit.Burst, defaults.Server.RateLimit.Burst)

	fmt.Fprintln(w, "\ncache:")
	printConfigValue(w, "  enabled", cfg.Cache.Enabled, defaults.Cache.Enabled)
	printConfigValue(w, "  path", cfg.Cache.Path, defaults.Cache.Path)
	printConfigValue(w, "  quoteTtlSeconds", cfg.Cache.QuoteTTLSeconds, defaults.Cache.QuoteTTLSeconds)
	printConfigValue(w, "  dailyTtlSeconds", cfg.Cache.DailyTTLSeconds, defaults.Cache.DailyTTLSeconds)
	printConfigValue(w, "  searchTtlSeconds", cfg.Cache.SearchTTLSeconds, defaults.Cache.SearchTTLSeconds)

	fmt.Fprintln(w, "\nlogging:")
	printConfigValue(w, "  level", cfg.Logging.Level, defaults.Logging.Level)
	printConfigValue(w, "  format", cfg.Logging.Format, defaults.Logging.Format)
	printConfigValue(w, "  file", valueOr(cfg.Logging.File, "(stderr only)"), "(stderr only)")

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Use 'avmcp config show --format json' for full configuration")
	fmt.Fprintln(w, "Use 'avmcp config env' to see supported environment variables")
}

func printConfigValue(w io.Writer, name string, value, defaultValue interface{}) {
	modified := ""
	if fmt.Sprint(value) != fmt.Sprint(defaultValue) {
		modified = fmt.Sprintf(" (default: %v)", defaultValue)
	}
	fmt.Fprintf(w, "%s: %v%s\n", name, value, modified)
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := configFileFlag
	if path == "" {
		p, err := paths.DefaultConfigPath()
		if err != nil {
			return err
		}
		path = p
	}

	if paths.Exists(path) && !configInitForce {
		return fmt.Errorf("config file already exists: %s (use --force to overwrite)", path)
	}

	if err := config.DefaultConfig().Save(path); err != nil {
		return err
	}

	fmt.Printf("Wrote default configuration to %s\n", path)
	fmt.Println("Set your API key with ALPHA_VANTAGE_API_KEY or alphaVantage.apiKey in that file.")
	return nil
}

func runConfigEnv(cmd *cobra.Command, args []string) {
	fmt.Println("Supported environment variables (also read from ./.env):")
	fmt.Println()
	for _, b := range config.EnvBindings() {
		state := ""
		if val, ok := os.LookupEnv(b.EnvVar); ok && val != "" {
			if b.Secret {
				val = config.MaskSecret(val)
			}
			state = fmt.Sprintf(" [set: %s]", val)
		}
		fmt.Printf("  %-26s %s%s\n", b.EnvVar, b.Description, state)
		fmt.Printf("  %-26s → %s\n", "", b.Key)
	}
}
