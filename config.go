package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/drummonds/pdfshelf/internal/viewer"
)

const configFileName = "pdfshelf.yaml"

// Environment overrides, applied after the config file.
const (
	envAPI   = "PDFSHELF_API"
	envAddr  = "PDFSHELF_ADDR"
	envOwner = "PDFSHELF_OWNER"
)

type Config struct {
	APIURL   string        `yaml:"api_url"`
	Addr     string        `yaml:"addr"`
	Owner    string        `yaml:"owner"`
	LogLevel string        `yaml:"log_level,omitempty"`
	Timeout  time.Duration `yaml:"timeout,omitempty"`

	// Viewer
	Watermark     string        `yaml:"watermark,omitempty"`
	PDFiumWorkers int           `yaml:"pdfium_workers,omitempty"`
	ViewerIdle    time.Duration `yaml:"viewer_idle,omitempty"`

	// ThumbDir caches card thumbnails. Defaults to the user cache dir.
	ThumbDir string `yaml:"thumb_dir,omitempty"`
}

func defaultConfig() Config {
	return Config{
		APIURL:        "http://localhost:8080/api/pdf",
		Addr:          ":8090",
		Owner:         "guest",
		LogLevel:      "info",
		Timeout:       30 * time.Second,
		Watermark:     viewer.DefaultWatermarkText,
		PDFiumWorkers: 2,
		ViewerIdle:    viewer.DefaultIdleTimeout,
	}
}

func loadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg, nil
}

// resolveConfig reads path when it exists, falls back to the defaults when
// it does not, then applies the environment. It returns the config and
// where it came from.
func resolveConfig(path string) (Config, string, error) {
	cfg, err := loadConfig(path)
	source := path
	switch {
	case errors.Is(err, os.ErrNotExist):
		cfg = defaultConfig()
		source = "defaults"
	case err != nil:
		return Config{}, "", err
	default:
		if abs, err := filepath.Abs(path); err == nil {
			source = abs
		}
	}
	cfg.applyEnv()
	return cfg, source, cfg.validate()
}

func (c *Config) applyEnv() {
	c.APIURL = GetEnv(envAPI, c.APIURL)
	c.Addr = GetEnv(envAddr, c.Addr)
	c.Owner = GetEnv(envOwner, c.Owner)
}

func (c Config) validate() error {
	if c.APIURL == "" {
		return fmt.Errorf("api_url must be set in %s or %s", configFileName, envAPI)
	}
	if c.PDFiumWorkers < 1 {
		return fmt.Errorf("pdfium_workers must be at least 1, got %d", c.PDFiumWorkers)
	}
	if strings.TrimSpace(c.Watermark) == "" {
		return errors.New("watermark must not be empty")
	}
	return nil
}

// thumbDir returns the configured thumbnail dir or one under the user
// cache dir.
func (c Config) thumbDir() string {
	if c.ThumbDir != "" {
		return c.ThumbDir
	}
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		cacheDir = os.TempDir()
	}
	return filepath.Join(cacheDir, "pdfshelf", "thumbs")
}

func writeExampleConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}
	data, err := yaml.Marshal(defaultConfig())
	if err != nil {
		return err
	}
	header := "# pdfshelf configuration\n# api_url is the root of the PDF document REST API\n\n"
	return os.WriteFile(path, []byte(header+string(data)), 0644)
}

// GetEnv returns the environment variable key or fallback when it is unset.
func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
