package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"rowcache/internal/logging"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Version != 1 {
		t.Errorf("Version = %d, want 1", cfg.Version)
	}
	if cfg.Database.Path != DefaultDatabasePath {
		t.Errorf("Database.Path = %s, want %s", cfg.Database.Path, DefaultDatabasePath)
	}
	if cfg.Watch.Debounce.Duration() != DefaultDebounce {
		t.Errorf("Watch.Debounce = %s, want %s", cfg.Watch.Debounce.Duration(), DefaultDebounce)
	}
	if !cfg.SaveOnShutdown() {
		t.Error("SaveOnShutdown() should default to true")
	}

	level, format := cfg.LogSettings()
	if level != logging.LevelInfo || format != logging.FormatText {
		t.Errorf("LogSettings() = %v, %v, want info, text", level, format)
	}
}

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	cfg := DefaultConfig()
	cfg.Database.Path = "data/main.db"
	cfg.Schemas = map[string]string{"archive": "/srv/archive.db", "audit": "audit.db"}
	cfg.Logging = LoggingConfig{Level: "debug", Format: "json"}
	save := false
	cfg.Shutdown.Save = &save
	cfg.Watch.Debounce = Duration(2 * time.Second)

	if err := cfg.Save(configPath); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	loaded, path, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("LoadFromPath() error: %v", err)
	}
	if path != configPath {
		t.Errorf("path = %s, want %s", path, configPath)
	}

	if want := filepath.Join(tmpDir, "data", "main.db"); loaded.Database.Path != want {
		t.Errorf("Database.Path = %s, want %s", loaded.Database.Path, want)
	}
	if loaded.Schemas["archive"] != "/srv/archive.db" {
		t.Errorf("absolute schema path changed: %s", loaded.Schemas["archive"])
	}
	if want := filepath.Join(tmpDir, "audit.db"); loaded.Schemas["audit"] != want {
		t.Errorf("Schemas[audit] = %s, want %s", loaded.Schemas["audit"], want)
	}
	if names := loaded.SchemaNames(); len(names) != 2 || names[0] != "archive" || names[1] != "audit" {
		t.Errorf("SchemaNames() = %v", names)
	}
	if loaded.SaveOnShutdown() {
		t.Error("SaveOnShutdown() should be false")
	}
	if loaded.Watch.Debounce.Duration() != 2*time.Second {
		t.Errorf("Watch.Debounce = %s, want 2s", loaded.Watch.Debounce.Duration())
	}
	level, format := loaded.LogSettings()
	if level != logging.LevelDebug || format != logging.FormatJSON {
		t.Errorf("LogSettings() = %v, %v, want debug, json", level, format)
	}
	if !strings.Contains(loaded.Summary(), "Schema audit:") {
		t.Errorf("Summary() missing schema line:\n%s", loaded.Summary())
	}
}

func TestLoadRejectsReservedSchema(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	data := "database:\n  path: main.db\nschemas:\n  main: other.db\n"
	if err := os.WriteFile(configPath, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	if _, _, err := LoadFromPath(configPath); err == nil {
		t.Error("LoadFromPath() should reject a schema named main")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte("database: [\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, _, err := LoadFromPath(configPath); err == nil {
		t.Error("LoadFromPath() should fail on invalid YAML")
	}
}

func TestResolvePath(t *testing.T) {
	tests := []struct {
		dir, in, want string
	}{
		{"/etc/rowcache", "main.db", "/etc/rowcache/main.db"},
		{"/etc/rowcache", "/var/lib/main.db", "/var/lib/main.db"},
		{"/etc/rowcache", ":memory:", ":memory:"},
		{"/etc/rowcache", "file:test.db?mode=memory", "file:test.db?mode=memory"},
		{"/etc/rowcache", "", ""},
	}

	for _, tt := range tests {
		if got := ResolvePath(tt.dir, tt.in); got != tt.want {
			t.Errorf("ResolvePath(%q, %q) = %q, want %q", tt.dir, tt.in, got, tt.want)
		}
	}
}

func TestFindConfigPath(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, ConfigFileName)

	cfg := DefaultConfig()
	if err := cfg.Save(configPath); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	t.Chdir(tmpDir)

	// Should find config in working directory
	found := FindConfigPath()
	if found == "" {
		t.Error("FindConfigPath() should find config in working directory")
	}

	// Explicit path doesn't exist, should fall back
	t.Setenv(EnvConfigPath, "/nonexistent/path.yaml")
	found = FindConfigPath()
	if found == "" {
		t.Error("FindConfigPath() should fall back when env path doesn't exist")
	}

	// Existing explicit path wins
	explicit := filepath.Join(t.TempDir(), "explicit.yaml")
	if err := cfg.Save(explicit); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	t.Setenv(EnvConfigPath, explicit)
	if found := FindConfigPath(); found != explicit {
		t.Errorf("FindConfigPath() = %s, want %s", found, explicit)
	}
}

func TestDuration(t *testing.T) {
	d := Duration(5 * time.Minute)

	if d.Duration() != 5*time.Minute {
		t.Errorf("Duration() = %s, want 5m", d.Duration())
	}

	// Test YAML marshaling
	marshaled, err := d.MarshalYAML()
	if err != nil {
		t.Fatalf("MarshalYAML() error: %v", err)
	}
	if marshaled != "5m0s" {
		t.Errorf("MarshalYAML() = %v, want 5m0s", marshaled)
	}
}

func TestDefaultConfigPath(t *testing.T) {
	explicit := filepath.Join(t.TempDir(), "explicit.yaml")
	t.Setenv(EnvConfigPath, explicit)
	if got := DefaultConfigPath(); got != explicit {
		t.Errorf("DefaultConfigPath() = %s, want %s", got, explicit)
	}

	t.Setenv(EnvConfigPath, "")
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	if want := filepath.Join(xdg, ConfigDirName, "config.yaml"); DefaultConfigPath() != want {
		t.Errorf("DefaultConfigPath() = %s, want %s", DefaultConfigPath(), want)
	}

	// A config written there is the one FindConfigPath picks up.
	t.Chdir(t.TempDir())
	if err := DefaultConfig().Save(DefaultConfigPath()); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if found := FindConfigPath(); found != DefaultConfigPath() {
		t.Errorf("FindConfigPath() = %s, want %s", found, DefaultConfigPath())
	}
}
