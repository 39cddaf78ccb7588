package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

type sampleConfig struct {
	URL     string        `envconfig:"URL" required:"true"`
	Timeout time.Duration `split_words:"true" default:"5s"`
}

func TestExportEnvironmentKeepsProcessValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.env")
	body := "CFGTEST_URL=https://from-file.example.com\nCFGTEST_TIMEOUT=9s\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	t.Setenv("CFGTEST_URL", "https://from-env.example.com")
	t.Cleanup(func() { os.Unsetenv("CFGTEST_TIMEOUT") })

	if err := exportEnvironment(path); err != nil {
		t.Fatalf("exportEnvironment() error = %v", err)
	}

	if got := os.Getenv("CFGTEST_URL"); got != "https://from-env.example.com" {
		t.Fatalf("CFGTEST_URL = %q, want process value", got)
	}
	if got := os.Getenv("CFGTEST_TIMEOUT"); got != "9s" {
		t.Fatalf("CFGTEST_TIMEOUT = %q, want file value", got)
	}
}

func TestNewProcessesPrefix(t *testing.T) {
	t.Setenv("CFGNEW_URL", "https://engine.example.com")
	t.Setenv("CFGNEW_TIMEOUT", "3s")

	conf, err := New[sampleConfig]("CFGNEW")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if conf.URL != "https://engine.example.com" || conf.Timeout != 3*time.Second {
		t.Fatalf("New() = %+v", conf)
	}
}

func TestNewMissingRequired(t *testing.T) {
	if _, err := New[sampleConfig]("CFGMISSING"); err == nil {
		t.Fatal("New() error = nil, want missing required field")
	}
}

func TestExportEnvironmentIfExistsSkipsMissing(t *testing.T) {
	t.Parallel()

	if err := exportEnvironmentIfExists(filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Fatalf("exportEnvironmentIfExists() error = %v", err)
	}
}
