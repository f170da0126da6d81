package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

func load(t *testing.T, args []string) (Config, error) {
	t.Helper()
	cfg := Default()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	cfg.RegisterFlags(fs)
	if err := fs.Parse(args); err != nil {
		t.Fatalf("Failed to parse flags: %v", err)
	}
	err := Load(viper.New(), fs)
	return cfg, err
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tenantdb.toml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := load(t, nil)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Errorf("Defaults changed (-want +got):\n%s", diff)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Defaults do not validate: %v", err)
	}
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, `
engine = "duckdb"
connection-limit = 4
acquire-timeout = "5s"

[s3]
region = "eu-west-1"

[server.auth]
enabled = true
jwt-secret = "s3cret"
`)
	cfg, err := load(t, []string{"--config", path})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Engine != "duckdb" || cfg.ConnectionLimit != 4 || cfg.AcquireTimeout != 5*time.Second {
		t.Errorf("Top-level options not applied: %+v", cfg)
	}
	if cfg.S3.Region != "eu-west-1" {
		t.Errorf("Expected s3 region eu-west-1, got %q", cfg.S3.Region)
	}
	if !cfg.Server.Auth.Enabled || cfg.Server.Auth.JWTSecret != "s3cret" {
		t.Errorf("Nested auth options not applied: %+v", cfg.Server.Auth)
	}
}

func TestLoadPriority(t *testing.T) {
	path := writeFile(t, "connection-limit = 2\ndatabases-path = \"/from/file\"\nengine = \"duckdb\"\n")
	t.Setenv("TENANTDB_CONNECTION_LIMIT", "3")
	t.Setenv("TENANTDB_LOG_LEVEL", "debug")

	cfg, err := load(t, []string{"--config", path, "--databases-path", "/from/flag"})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	tests := []struct {
		name string
		got  any
		want any
	}{
		{"flag beats file", cfg.DatabasesPath, "/from/flag"},
		{"env beats file", cfg.ConnectionLimit, 3},
		{"env beats default", cfg.Log.Level, "debug"},
		{"file beats default", cfg.Engine, "duckdb"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s: got %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeFile(t, "engin = \"sqlite\"\n")
	_, err := load(t, []string{"--config", path})
	if err == nil || !strings.Contains(err.Error(), "invalid option") {
		t.Errorf("Expected invalid option error, got %v", err)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("TENANTDB_CONNECTION_LIMIT", "many")
	if _, err := load(t, nil); err == nil {
		t.Error("Expected error for non-numeric connection limit")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		want   string
	}{
		{"engine", func(c *Config) { c.Engine = "oracle" }, "unknown engine"},
		{"path", func(c *Config) { c.DatabasesPath = "" }, "databases path"},
		{"limit", func(c *Config) { c.ConnectionLimit = 0 }, "connection limit"},
		{"timeout", func(c *Config) { c.AcquireTimeout = 0 }, "acquire timeout"},
		{"datamodel", func(c *Config) { c.Datamodel.Path = "a.json"; c.Datamodel.GitURL = "https://x/y.git" }, "mutually exclusive"},
		{"auth", func(c *Config) { c.Server.Auth.Enabled = true }, "jwt secret"},
		{"log format", func(c *Config) { c.Log.Format = "xml" }, "log format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
