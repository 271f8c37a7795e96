package paths

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDataDirOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(HomeEnvVar, dir)

	got, err := DataDir()
	if err != nil {
		t.Fatalf("DataDir() error: %v", err)
	}
	if got != filepath.Clean(dir) {
		t.Errorf("DataDir() = %q, want %q", got, dir)
	}

	cache, err := DefaultCachePath()
	if err != nil {
		t.Fatalf("DefaultCachePath() error: %v", err)
	}
	if cache != filepath.Join(dir, "cache.db") {
		t.Errorf("DefaultCachePath() = %q", cache)
	}

	cfg, err := DefaultConfigPath()
	if err != nil {
		t.Fatalf("DefaultConfigPath() error: %v", err)
	}
	if filepath.Base(cfg) != ConfigFileName() {
		t.Errorf("DefaultConfigPath() = %q", cfg)
	}

	logs, err := LogsDir()
	if err != nil {
		t.Fatalf("LogsDir() error: %v", err)
	}
	if logs != filepath.Join(dir, "logs") {
		t.Errorf("LogsDir() = %q", logs)
	}
}

func TestEnsureParentDir(t *testing.T) {
	tests := []struct {
		name string
		path string
	}{
		{"memory", ":memory:"},
		{"empty", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := EnsureParentDir(tt.path); err != nil {
				t.Errorf("EnsureParentDir(%q) error: %v", tt.path, err)
			}
		})
	}

	target := filepath.Join(t.TempDir(), "a", "b", "cache.db")
	if err := EnsureParentDir(target); err != nil {
		t.Fatalf("EnsureParentDir() error: %v", err)
	}
	if info, err := os.Stat(filepath.Dir(target)); err != nil || !info.IsDir() {
		t.Errorf("expected parent directory to exist, err=%v", err)
	}
	if Exists(target) {
		t.Error("file itself should not have been created")
	}
}
