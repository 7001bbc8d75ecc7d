package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type testConfig struct {
	Name  string `yaml:"name"`
	Count int    `yaml:"count"`
}

func (c *testConfig) Validate() error {
	if c.Name == "" {
		return errors.New("name is required")
	}
	return nil
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_ExpandsEnv(t *testing.T) {
	t.Setenv("CONFIG_TEST_NAME", "from-env")
	path := writeFile(t, "name: ${CONFIG_TEST_NAME}\ncount: 3\n")

	var cfg testConfig
	if err := Load(path, &cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Name != "from-env" || cfg.Count != 3 {
		t.Errorf("got %+v", cfg)
	}
}

func TestLoad_Validates(t *testing.T) {
	path := writeFile(t, "count: 3\n")

	var cfg testConfig
	err := Load(path, &cfg)
	if err == nil || !strings.Contains(err.Error(), "name is required") {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	var cfg testConfig
	err := Load(filepath.Join(t.TempDir(), "missing.yaml"), &cfg)
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected os.ErrNotExist, got %v", err)
	}
}

func TestLoadOptional_MissingFileKeepsDefaults(t *testing.T) {
	cfg := testConfig{Name: "default", Count: 1}
	if err := LoadOptional(filepath.Join(t.TempDir(), "missing.yaml"), &cfg); err != nil {
		t.Fatalf("LoadOptional: %v", err)
	}
	if cfg.Name != "default" || cfg.Count != 1 {
		t.Errorf("defaults changed: %+v", cfg)
	}
}

func TestLoadOptional_MissingFileStillValidates(t *testing.T) {
	var cfg testConfig
	if err := LoadOptional(filepath.Join(t.TempDir(), "missing.yaml"), &cfg); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestLoadOptional_OverridesDefaults(t *testing.T) {
	path := writeFile(t, "count: 9\n")
	cfg := testConfig{Name: "default", Count: 1}
	if err := LoadOptional(path, &cfg); err != nil {
		t.Fatalf("LoadOptional: %v", err)
	}
	if cfg.Name != "default" || cfg.Count != 9 {
		t.Errorf("got %+v", cfg)
	}
}
