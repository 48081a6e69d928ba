package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/kbukum/queryflow/logger"
)

func loggerLevel(level string) logger.Config {
	return logger.Config{Level: level}
}

func TestServiceConfigApplyDefaults(t *testing.T) {
	tests := []struct {
		name      string
		cfg       ServiceConfig
		wantEnv   string
		wantDebug bool
		wantLevel string
	}{
		{"empty", ServiceConfig{Name: "orders"}, "development", true, "debug"},
		{"production", ServiceConfig{Name: "orders", Environment: "production"}, "production", false, "info"},
		{"explicit level", ServiceConfig{Name: "orders", Logging: loggerLevel("warn")}, "development", true, "warn"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := tc.cfg
			cfg.ApplyDefaults()
			if cfg.Environment != tc.wantEnv {
				t.Errorf("expected environment %q, got %q", tc.wantEnv, cfg.Environment)
			}
			if cfg.Debug != tc.wantDebug {
				t.Errorf("expected debug=%v, got %v", tc.wantDebug, cfg.Debug)
			}
			if cfg.Logging.Level != tc.wantLevel {
				t.Errorf("expected logging level %q, got %q", tc.wantLevel, cfg.Logging.Level)
			}
			if cfg.Logging.Service != "orders" {
				t.Errorf("expected logging service 'orders', got %q", cfg.Logging.Service)
			}
		})
	}
}

func TestServiceConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ServiceConfig
		wantErr bool
		errMsg  string
	}{
		{"valid", ServiceConfig{Name: "svc", Environment: "staging"}, false, ""},
		{"missing name", ServiceConfig{Environment: "production"}, true, "name"},
		{"bad environment", ServiceConfig{Name: "svc", Environment: "qa"}, true, "environment"},
		{"bad logging", ServiceConfig{Name: "svc", Environment: "staging", Logging: loggerLevel("loud")}, true, "logging"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := tc.cfg
			if cfg.Logging.Level == "" {
				cfg.Logging.ApplyDefaults()
			}
			err := cfg.Validate()
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				if !strings.Contains(err.Error(), tc.errMsg) {
					t.Errorf("expected error containing %q, got %q", tc.errMsg, err.Error())
				}
			} else if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

type testSettings struct {
	ServiceConfig `yaml:",inline" mapstructure:",squash"`
	Window        time.Duration `yaml:"window" mapstructure:"window"`
	Targets       []string      `yaml:"targets" mapstructure:"targets"`
}

func TestLoadConfigWithYAML(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "orders.yml")

	yamlContent := `
name: orders
environment: staging
version: "1.0.0"
window: 250ms
targets:
  - orders
  - customers
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	var cfg testSettings
	err := LoadConfig("orders", &cfg, WithConfigFile(configPath), WithFileSystem(&RealFileSystem{}))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Name != "orders" {
		t.Errorf("expected name 'orders', got %q", cfg.Name)
	}
	if cfg.Environment != "staging" {
		t.Errorf("expected environment 'staging', got %q", cfg.Environment)
	}
	if cfg.Window != 250*time.Millisecond {
		t.Errorf("expected window 250ms, got %v", cfg.Window)
	}
	if len(cfg.Targets) != 2 || cfg.Targets[1] != "customers" {
		t.Errorf("expected two targets, got %v", cfg.Targets)
	}
}

func TestLoadConfigEnvOverride(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "orders.yml")
	if err := os.WriteFile(configPath, []byte("name: orders\nlogging:\n  level: info\n"), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	t.Setenv("LOGGING_LEVEL", "warn")

	var cfg testSettings
	if err := LoadConfig("orders", &cfg, WithConfigFile(configPath)); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("expected env to override logging.level, got %q", cfg.Logging.Level)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	var cfg testSettings
	// With no config file found, LoadConfig should still succeed (just empty config)
	err := LoadConfig("nonexistent-service", &cfg, WithConfigFile("/nonexistent/path.yml"))
	if err != nil {
		t.Fatalf("expected LoadConfig to succeed with missing file, got %v", err)
	}
}

func TestLoadConfigMalformedFile(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "bad.yml")
	if err := os.WriteFile(configPath, []byte("name: [unclosed"), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	var cfg testSettings
	if err := LoadConfig("bad", &cfg, WithConfigFile(configPath)); err == nil {
		t.Fatal("expected an error for malformed YAML")
	}
}

func TestResolverWithMockFS(t *testing.T) {
	tests := []struct {
		name  string
		files []string
		want  string
	}{
		{"service file", []string{"./config/orders.yml", "./config/config.yml"}, "./config/orders.yml"},
		{"service yaml at root", []string{"./orders.yaml", "./config.yml"}, "./orders.yaml"},
		{"generic fallback", []string{"./config/config.yaml"}, "./config/config.yaml"},
		{"nothing", nil, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			fs := &mockFS{files: map[string]bool{}}
			for _, f := range tc.files {
				fs.files[f] = true
			}
			resolver := &Resolver{FileSystem: fs}
			files := resolver.ResolveFiles("orders", LoaderConfig{})
			if files.ConfigFile != tc.want {
				t.Errorf("expected config file %q, got %q", tc.want, files.ConfigFile)
			}
		})
	}
}

func TestResolverExplicitPaths(t *testing.T) {
	resolver := &Resolver{FileSystem: &mockFS{}}
	files := resolver.ResolveFiles("orders", LoaderConfig{ConfigFile: "a.yml", EnvFile: "b.env"})
	if files.ConfigFile != "a.yml" || files.EnvFile != "b.env" {
		t.Errorf("expected explicit paths to win, got %+v", files)
	}
}

func TestLoadConfigEnvWithoutFileKey(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "orders.yml")
	if err := os.WriteFile(configPath, []byte("name: orders\n"), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	t.Setenv("WINDOW", "2s")
	t.Setenv("LOGGING_NO_COLOR", "true")

	var cfg testSettings
	if err := LoadConfig("orders", &cfg, WithConfigFile(configPath)); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Window != 2*time.Second {
		t.Errorf("expected window from env, got %v", cfg.Window)
	}
	if !cfg.Logging.NoColor {
		t.Error("expected logging.no_color from env")
	}
}

func TestStructKeys(t *testing.T) {
	got := structKeys(reflect.TypeOf(&testSettings{}), "")
	want := []string{
		"name", "environment", "version", "debug",
		"logging.service", "logging.level", "logging.format", "logging.output",
		"logging.no_color", "logging.timestamp", "logging.caller",
		"window", "targets",
	}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("expected %v, got %v", want, got)
	}
	if keys := structKeys(reflect.TypeOf(42), ""); keys != nil {
		t.Errorf("expected no keys for a non-struct, got %v", keys)
	}
}

func TestEnvName(t *testing.T) {
	tests := map[string]string{
		"name":                 "NAME",
		"logging.level":        "LOGGING_LEVEL",
		"redis.pubsub_channel": "REDIS_PUBSUB_CHANNEL",
		"kafka.group-id":       "KAFKA_GROUP_ID",
	}
	for key, want := range tests {
		if got := EnvName(key); got != want {
			t.Errorf("EnvName(%q): expected %q, got %q", key, want, got)
		}
	}
}

func TestResolverEnvFile(t *testing.T) {
	tests := []struct {
		name  string
		files []string
		want  string
	}{
		{"service env", []string{"./.env.acme-orders", "./.env"}, "./.env.acme-orders"},
		{"short name", []string{"./config/.env.orders", "./.env"}, "./config/.env.orders"},
		{"generic", []string{"../.env"}, "../.env"},
		{"nothing", nil, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			fs := &mockFS{files: map[string]bool{}}
			for _, f := range tc.files {
				fs.files[f] = true
			}
			files := (&Resolver{FileSystem: fs}).ResolveFiles("acme-orders", LoaderConfig{})
			if files.EnvFile != tc.want {
				t.Errorf("expected env file %q, got %q", tc.want, files.EnvFile)
			}
		})
	}
}

type mockFS struct {
	files map[string]bool
}

func (m *mockFS) Exists(path string) bool   { return m.files[path] }
func (m *mockFS) LoadEnv(path string) error { return nil }

func TestWithFileSystemOption(t *testing.T) {
	var lc LoaderConfig
	fs := &mockFS{}
	WithFileSystem(fs)(&lc)
	if lc.FileSystem == nil {
		t.Error("expected FileSystem to be set")
	}
}

func TestWithConfigFileOption(t *testing.T) {
	var lc LoaderConfig
	WithConfigFile("/path/to/config.yml")(&lc)
	if lc.ConfigFile != "/path/to/config.yml" {
		t.Errorf("expected config file path, got %q", lc.ConfigFile)
	}
}

func TestWithEnvFileOption(t *testing.T) {
	var lc LoaderConfig
	WithEnvFile("/path/to/.env")(&lc)
	if lc.EnvFile != "/path/to/.env" {
		t.Errorf("expected env file path, got %q", lc.EnvFile)
	}
}
