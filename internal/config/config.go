package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"

	"avmcp/internal/paths"
)

// CurrentVersion is the config schema version written by Save.
const CurrentVersion = 1

// DefaultBaseURL is the Alpha Vantage query endpoint.
const DefaultBaseURL = "https://www.alphavantage.co/query"

// Config represents the complete avmcp configuration
type Config struct {
	Version int `json:"version" mapstructure:"version" toml:"version" yaml:"version"`

	AlphaVantage AlphaVantageConfig `json:"alphaVantage" mapstructure:"alphaVantage" toml:"alphaVantage" yaml:"alphaVantage"`
	Server       ServerConfig       `json:"server" mapstructure:"server" toml:"server" yaml:"server"`
	Cache        CacheConfig        `json:"cache" mapstructure:"cache" toml:"cache" yaml:"cache"`
	Logging      LoggingConfig      `json:"logging" mapstructure:"logging" toml:"logging" yaml:"logging"`
}

// AlphaVantageConfig contains upstream API settings
type AlphaVantageConfig struct {
	APIKey         string `json:"apiKey" mapstructure:"apiKey" toml:"apiKey" yaml:"apiKey"`
	BaseURL        string `json:"baseUrl" mapstructure:"baseUrl" toml:"baseUrl" yaml:"baseUrl"`
	RequestTimeout int    `json:"requestTimeout" mapstructure:"requestTimeout" toml:"requestTimeout" yaml:"requestTimeout"` // seconds
	MaxRetries     int    `json:"maxRetries" mapstructure:"maxRetries" toml:"maxRetries" yaml:"maxRetries"`
}

// Timeout returns the per-request timeout as a duration.
func (c AlphaVantageConfig) Timeout() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Second
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host            string          `json:"host" mapstructure:"host" toml:"host" yaml:"host"`
	Port            int             `json:"port" mapstructure:"port" toml:"port" yaml:"port"`
	AuthTokenHashes []string        `json:"authTokenHashes" mapstructure:"authTokenHashes" toml:"authTokenHashes" yaml:"authTokenHashes"`
	RateLimit       RateLimitConfig `json:"rateLimit" mapstructure:"rateLimit" toml:"rateLimit" yaml:"rateLimit"`
}

// Addr returns host:port.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// RateLimitConfig configures per-client HTTP rate limiting
type RateLimitConfig struct {
	Enabled           bool `json:"enabled" mapstructure:"enabled" toml:"enabled" yaml:"enabled"`
	RequestsPerMinute int  `json:"requestsPerMinute" mapstructure:"requestsPerMinute" toml:"requestsPerMinute" yaml:"requestsPerMinute"`
	Burst             int  `json:"burst" mapstructure:"burst" toml:"burst" yaml:"burst"`
}

// CacheConfig contains response cache settings
type CacheConfig struct {
	Enabled          bool   `json:"enabled" mapstructure:"enabled" toml:"enabled" yaml:"enabled"`
	Path             string `json:"path" mapstructure:"path" toml:"path" yaml:"path"`
	QuoteTTLSeconds  int    `json:"quoteTtlSeconds" mapstructure:"quoteTtlSeconds" toml:"quoteTtlSeconds" yaml:"quoteTtlSeconds"`
	DailyTTLSeconds  int    `json:"dailyTtlSeconds" mapstructure:"dailyTtlSeconds" toml:"dailyTtlSeconds" yaml:"dailyTtlSeconds"`
	SearchTTLSeconds int    `json:"searchTtlSeconds" mapstructure:"searchTtlSeconds" toml:"searchTtlSeconds" yaml:"searchTtlSeconds"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level      string `json:"level" mapstructure:"level" toml:"level" yaml:"level"`
	Format     string `json:"format" mapstructure:"format" toml:"format" yaml:"format"`
	File       string `json:"file" mapstructure:"file" toml:"file" yaml:"file"`
	MaxSizeMB  int    `json:"maxSizeMb" mapstructure:"maxSizeMb" toml:"maxSizeMb" yaml:"maxSizeMb"`
	MaxBackups int    `json:"maxBackups" mapstructure:"maxBackups" toml:"maxBackups" yaml:"maxBackups"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	cachePath, err := paths.DefaultCachePath()
	if err != nil {
		cachePath = filepath.Join(".avmcp", "cache.db")
	}

	return &Config{
		Version: CurrentVersion,
		AlphaVantage: AlphaVantageConfig{
			APIKey:         "",
			BaseURL:        DefaultBaseURL,
			RequestTimeout: 10,
			MaxRetries:     3,
		},
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            8000,
			AuthTokenHashes: []string{},
			RateLimit: RateLimitConfig{
				Enabled:           false,
				RequestsPerMinute: 60,
				Burst:             10,
			},
		},
		Cache: CacheConfig{
			Enabled:          true,
			Path:             cachePath,
			QuoteTTLSeconds:  60,
			DailyTTLSeconds:  3600,
			SearchTTLSeconds: 86400,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "human",
			File:       "",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// EnvBinding maps an environment variable onto a config key
type EnvBinding struct {
	EnvVar      string `json:"envVar"`
	Key         string `json:"key"`
	Description string `json:"description"`
	Secret      bool   `json:"-"`
}

// envBindings keeps the original variable names for the upstream settings so
// existing .env files keep working.
var envBindings = []EnvBinding{
	{EnvVar: "ALPHA_VANTAGE_API_KEY", Key: "alphaVantage.apiKey", Description: "Alpha Vantage API key", Secret: true},
	{EnvVar: "ALPHA_VANTAGE_BASE_URL", Key: "alphaVantage.baseUrl", Description: "Alpha Vantage API base URL"},
	{EnvVar: "REQUEST_TIMEOUT", Key: "alphaVantage.requestTimeout", Description: "API request timeout in seconds (1-60)"},
	{EnvVar: "MAX_RETRIES", Key: "alphaVantage.maxRetries", Description: "Maximum number of retries (0-5)"},
	{EnvVar: "AVMCP_HOST", Key: "server.host", Description: "HTTP bind host"},
	{EnvVar: "AVMCP_PORT", Key: "server.port", Description: "HTTP bind port"},
	{EnvVar: "AVMCP_AUTH_TOKEN_HASHES", Key: "server.authTokenHashes", Description: "Comma-separated bcrypt hashes of accepted bearer tokens", Secret: true},
	{EnvVar: "AVMCP_RATE_LIMIT_ENABLED", Key: "server.rateLimit.enabled", Description: "Enable per-client HTTP rate limiting"},
	{EnvVar: "AVMCP_RATE_LIMIT", Key: "server.rateLimit.requestsPerMinute", Description: "Requests per minute per client"},
	{EnvVar: "AVMCP_CACHE_ENABLED", Key: "cache.enabled", Description: "Enable the response cache"},
	{EnvVar: "AVMCP_CACHE_PATH", Key: "cache.path", Description: "Response cache database path"},
	{EnvVar: "AVMCP_LOG_LEVEL", Key: "logging.level", Description: "Log level (debug, info, warn, error)"},
	{EnvVar: "AVMCP_LOG_FORMAT", Key: "logging.format", Description: "Log format (human, json)"},
	{EnvVar: "AVMCP_LOG_FILE", Key: "logging.file", Description: "Optional log file path"},
}

// EnvBindings returns the supported environment variables.
func EnvBindings() []EnvBinding {
	out := make([]EnvBinding, len(envBindings))
	copy(out, envBindings)
	return out
}

// EnvOverride records a value that came from the environment or .env
type EnvOverride struct {
	EnvVar    string `json:"envVar"`
	Path      string `json:"path"`
	FromValue string `json:"value"`
	Source    string `json:"source"` // "env" or ".env"
}

// LoadOptions controls where configuration is read from
type LoadOptions struct {
	// ConfigFile is an explicit config path; it must exist when set.
	ConfigFile string
	// WorkDir is searched for avmcp.toml and .env. Defaults to the cwd.
	WorkDir string
	// SkipDotEnv disables reading <WorkDir>/.env.
	SkipDotEnv bool
}

// LoadResult contains the loaded config and where it came from
type LoadResult struct {
	Config       *Config
	ConfigPath   string
	DotEnvPath   string
	UsedDefaults bool
	EnvOverrides []EnvOverride
}

// Load loads configuration, see LoadWithDetails.
func Load(opts LoadOptions) (*Config, error) {
	result, err := LoadWithDetails(opts)
	if err != nil {
		return nil, err
	}
	return result.Config, nil
}

// LoadWithDetails loads configuration with precedence
// environment > .env > config file > defaults, and validates it.
func LoadWithDetails(opts LoadOptions) (*LoadResult, error) {
	workDir := opts.WorkDir
	if workDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolve working directory: %w", err)
		}
		workDir = wd
	}

	v := viper.New()
	setDefaults(v, DefaultConfig())

	result := &LoadResult{UsedDefaults: true}

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", opts.ConfigFile, err)
		}
		result.ConfigPath = opts.ConfigFile
		result.UsedDefaults = false
	} else {
		v.SetConfigName(strings.TrimSuffix(paths.ConfigFileName(), ".toml"))
		v.SetConfigType("toml")
		v.AddConfigPath(workDir)
		if dataDir, err := paths.DataDir(); err == nil {
			v.AddConfigPath(dataDir)
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		} else {
			result.ConfigPath = v.ConfigFileUsed()
			result.UsedDefaults = false
		}
	}

	var dotenv map[string]string
	if !opts.SkipDotEnv {
		dotenvPath := filepath.Join(workDir, ".env")
		values, err := readDotEnv(dotenvPath)
		if err != nil {
			return nil, err
		}
		if values != nil {
			dotenv = values
			result.DotEnvPath = dotenvPath
		}
	}

	for _, b := range envBindings {
		if err := v.BindEnv(b.Key, b.EnvVar); err != nil {
			return nil, fmt.Errorf("bind %s: %w", b.EnvVar, err)
		}

		if val, ok := os.LookupEnv(b.EnvVar); ok && val != "" {
			result.EnvOverrides = append(result.EnvOverrides, newOverride(b, val, "env"))
			continue
		}
		// Real environment wins over .env, so .env values are only applied
		// when the variable is unset.
		if val, ok := dotenv[strings.ToLower(b.EnvVar)]; ok && val != "" {
			v.Set(b.Key, val)
			result.EnvOverrides = append(result.EnvOverrides, newOverride(b, val, ".env"))
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	result.Config = &cfg
	return result, nil
}

func newOverride(b EnvBinding, val, source string) EnvOverride {
	if b.Secret {
		val = MaskSecret(val)
	}
	return EnvOverride{EnvVar: b.EnvVar, Path: b.Key, FromValue: val, Source: source}
}

// readDotEnv parses a .env file. A missing file yields nil, nil.
// Keys are lower-cased so lookups are case-insensitive.
func readDotEnv(path string) (map[string]string, error) {
	if !paths.Exists(path) {
		return nil, nil
	}

	ev := viper.New()
	ev.SetConfigFile(path)
	ev.SetConfigType("env")
	if err := ev.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	values := make(map[string]string)
	for _, key := range ev.AllKeys() {
		values[strings.ToLower(key)] = ev.GetString(key)
	}
	return values, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("version", d.Version)

	v.SetDefault("alphaVantage.apiKey", d.AlphaVantage.APIKey)
	v.SetDefault("alphaVantage.baseUrl", d.AlphaVantage.BaseURL)
	v.SetDefault("alphaVantage.requestTimeout", d.AlphaVantage.RequestTimeout)
	v.SetDefault("alphaVantage.maxRetries", d.AlphaVantage.MaxRetries)

	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.authTokenHashes", d.Server.AuthTokenHashes)
	v.SetDefault("server.rateLimit.enabled", d.Server.RateLimit.Enabled)
	v.SetDefault("server.rateLimit.requestsPerMinute", d.Server.RateLimit.RequestsPerMinute)
	v.SetDefault("server.rateLimit.burst", d.Server.RateLimit.Burst)

	v.SetDefault("cache.enabled", d.Cache.Enabled)
	v.SetDefault("cache.path", d.Cache.Path)
	v.SetDefault("cache.quoteTtlSeconds", d.Cache.QuoteTTLSeconds)
	v.SetDefault("cache.dailyTtlSeconds", d.Cache.DailyTTLSeconds)
	v.SetDefault("cache.searchTtlSeconds", d.Cache.SearchTTLSeconds)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.file", d.Logging.File)
	v.SetDefault("logging.maxSizeMb", d.Logging.MaxSizeMB)
	v.SetDefault("logging.maxBackups", d.Logging.MaxBackups)
}

// normalize trims values that commonly arrive with stray whitespace from
// env files.
func (c *Config) normalize() {
	c.AlphaVantage.APIKey = strings.TrimSpace(c.AlphaVantage.APIKey)
	c.AlphaVantage.BaseURL = strings.TrimSpace(c.AlphaVantage.BaseURL)
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))

	hashes := c.Server.AuthTokenHashes[:0]
	for _, h := range c.Server.AuthTokenHashes {
		if h = strings.TrimSpace(h); h != "" {
			hashes = append(hashes, h)
		}
	}
	c.Server.AuthTokenHashes = hashes
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Version != CurrentVersion {
		return &ConfigError{Field: "version", Message: "unsupported config version"}
	}

	av := c.AlphaVantage
	if av.RequestTimeout < 1 || av.RequestTimeout > 60 {
		return &ConfigError{Field: "alphaVantage.requestTimeout", Message: fmt.Sprintf("must be between 1 and 60, got %d", av.RequestTimeout)}
	}
	if av.MaxRetries < 0 || av.MaxRetries > 5 {
		return &ConfigError{Field: "alphaVantage.maxRetries", Message: fmt.Sprintf("must be between 0 and 5, got %d", av.MaxRetries)}
	}
	u, err := url.Parse(av.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return &ConfigError{Field: "alphaVantage.baseUrl", Message: fmt.Sprintf("must be an absolute http(s) URL, got %q", av.BaseURL)}
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return &ConfigError{Field: "server.port", Message: fmt.Sprintf("must be between 1 and 65535, got %d", c.Server.Port)}
	}
	if rl := c.Server.RateLimit; rl.Enabled {
		if rl.RequestsPerMinute < 1 {
			return &ConfigError{Field: "server.rateLimit.requestsPerMinute", Message: "must be at least 1"}
		}
		if rl.Burst < 1 {
			return &ConfigError{Field: "server.rateLimit.burst", Message: "must be at least 1"}
		}
	}

	if c.Cache.QuoteTTLSeconds < 0 || c.Cache.DailyTTLSeconds < 0 || c.Cache.SearchTTLSeconds < 0 {
		return &ConfigError{Field: "cache", Message: "TTLs must not be negative"}
	}
	if c.Cache.Enabled && c.Cache.Path == "" {
		return &ConfigError{Field: "cache.path", Message: "required when the cache is enabled"}
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return &ConfigError{Field: "logging.level", Message: fmt.Sprintf("unknown level %q", c.Logging.Level)}
	}
	switch c.Logging.Format {
	case "human", "json":
	default:
		return &ConfigError{Field: "logging.format", Message: fmt.Sprintf("unknown format %q", c.Logging.Format)}
	}

	return nil
}

// HasAPIKey reports whether an Alpha Vantage key is configured.
func (c *Config) HasAPIKey() bool {
	return c.AlphaVantage.APIKey != ""
}

// Redacted returns a copy safe for display: secrets are masked.
func (c *Config) Redacted() *Config {
	out := *c
	out.AlphaVantage.APIKey = MaskSecret(c.AlphaVantage.APIKey)
	out.Server.AuthTokenHashes = make([]string, len(c.Server.AuthTokenHashes))
	for i, h := range c.Server.AuthTokenHashes {
		out.Server.AuthTokenHashes[i] = MaskSecret(h)
	}
	return &out
}

// MaskSecret keeps only the last four characters of a secret.
func MaskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 4 {
		return "****"
	}
	return "****" + s[len(s)-4:]
}

// Save writes the configuration as TOML to path, creating parent directories.
func (c *Config) Save(path string) error {
	if err := paths.EnsureParentDir(path); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	if err := toml.NewEncoder(f).Encode(c); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error in field '" + e.Field + "': " + e.Message
}
