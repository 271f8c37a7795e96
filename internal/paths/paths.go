// Package paths resolves the on-disk locations avmcp uses for its config
// file, response cache, and logs.
package paths

import (
	"fmt"
	"os"
	"path/filepath"
)

// HomeEnvVar overrides the data directory.
const HomeEnvVar = "AVMCP_HOME"

const (
	dirName        = ".avmcp"
	configFileName = "avmcp.toml"
	cacheFileName  = "cache.db"
	logsDirName    = "logs"
)

// DataDir returns the avmcp data directory: $AVMCP_HOME if set,
// otherwise ~/.avmcp.
func DataDir() (string, error) {
	if dir := os.Getenv(HomeEnvVar); dir != "" {
		return filepath.Clean(dir), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, dirName), nil
}

// ConfigFileName is the config file searched for in the working directory
// and the data directory.
func ConfigFileName() string {
	return configFileName
}

// DefaultConfigPath returns <data dir>/avmcp.toml.
func DefaultConfigPath() (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFileName), nil
}

// DefaultCachePath returns <data dir>/cache.db.
func DefaultCachePath() (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, cacheFileName), nil
}

// LogsDir returns <data dir>/logs.
func LogsDir() (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, logsDirName), nil
}

// EnsureParentDir creates the parent directory of path if it is missing.
// In-memory SQLite paths are left alone.
func EnsureParentDir(path string) error {
	if path == "" || path == ":memory:" {
		return nil
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}
	return nil
}

// Exists reports whether path exists.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
