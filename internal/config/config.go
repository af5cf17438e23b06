// internal/config/config.go
//
// This package handles configuration and the .role2 directory structure.
// Every directory the builder runs from gets a .role2/ folder holding the
// project config, the persisted wizard session and the logs.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const (
	// Role2Dir is the name of the directory we create in each project
	Role2Dir = ".role2"

	// DefaultBaseURL is the hosted generation service.
	DefaultBaseURL = "https://role2-builder-production.up.railway.app"

	DefaultRequestTimeout    = 30 * time.Second
	DefaultGenerationTimeout = 3 * time.Minute

	StorageFile   = "file"
	StorageSQLite = "sqlite"

	defaultDownloadsDir = "downloads"
)

const defaultProjectConfigYAML = `# role2 exercise builder configuration
version: 1

service:
  # Generation service root. ROLE2_API_URL overrides this value.
  base_url: https://role2-builder-production.up.railway.app
  request_timeout: 30s
  # Package generation takes one to two minutes; calls past this deadline fail.
  generation_timeout: 3m

# Where the wizard session is persisted between steps: file or sqlite.
storage:
  backend: file

downloads:
  dir: downloads

telemetry:
  enabled: false
  # OTLP/HTTP endpoint, e.g. http://localhost:4318
  endpoint: ""
`

// ServiceConfig describes the remote generation service.
type ServiceConfig struct {
	BaseURL           string        `yaml:"base_url"`
	RequestTimeout    time.Duration `yaml:"request_timeout"`
	GenerationTimeout time.Duration `yaml:"generation_timeout"`
}

// StorageConfig selects the session persistence backend.
type StorageConfig struct {
	Backend string `yaml:"backend"`
}

// DownloadsConfig controls where generated files are written.
type DownloadsConfig struct {
	Dir string `yaml:"dir"`
}

// TelemetryConfig enables OTLP trace export.
type TelemetryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

// ProjectConfig models .role2/config.yaml.
type ProjectConfig struct {
	Version   int             `yaml:"version"`
	Service   ServiceConfig   `yaml:"service"`
	Storage   StorageConfig   `yaml:"storage"`
	Downloads DownloadsConfig `yaml:"downloads"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// EnvOverrides are read from the process environment after the YAML file.
// Empty values leave the file settings alone.
type EnvOverrides struct {
	APIURL            string        `env:"ROLE2_API_URL"`
	Storage           string        `env:"ROLE2_STORAGE"`
	DownloadsDir      string        `env:"ROLE2_DOWNLOADS_DIR"`
	GenerationTimeout time.Duration `env:"ROLE2_GENERATION_TIMEOUT"`
	OTelEndpoint      string        `env:"ROLE2_OTEL_ENDPOINT"`
	OTelEnabled       string        `env:"ROLE2_OTEL_ENABLED"`
}

// Config holds the runtime configuration for the builder.
type Config struct {
	// ProjectDir is the directory where the user ran `role2` from
	ProjectDir string

	// Role2ProjectDir is ProjectDir/.role2
	Role2ProjectDir string

	Project ProjectConfig
}

// InitDir creates the .role2 directory structure in the given project directory.
//
// Structure created:
// .role2/
// ├── config.yaml
// ├── logs/     <- journey log and client log
// └── state/    <- persisted wizard session
func InitDir(projectDir string) error {
	root := filepath.Join(projectDir, Role2Dir)
	dirs := []string{
		filepath.Join(root, "logs"),
		filepath.Join(root, "state"),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return ensureProjectConfig(filepath.Join(root, "config.yaml"))
}

// NewConfig loads .role2/config.yaml (if present) and applies environment
// overrides.
func NewConfig(projectDir string) (*Config, error) {
	cfg := &Config{
		ProjectDir:      projectDir,
		Role2ProjectDir: filepath.Join(projectDir, Role2Dir),
		Project:         defaultProjectConfig(),
	}
	if err := cfg.loadProjectConfig(); err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LogsDir returns the path to the logs directory
func (c *Config) LogsDir() string {
	return filepath.Join(c.Role2ProjectDir, "logs")
}

// StateDir returns the path to the session state directory
func (c *Config) StateDir() string {
	return filepath.Join(c.Role2ProjectDir, "state")
}

// ProjectConfigPath returns the on-disk location for the project config file.
func (c *Config) ProjectConfigPath() string {
	return filepath.Join(c.Role2ProjectDir, "config.yaml")
}

// DownloadsDir returns the absolute directory generated files are saved to.
func (c *Config) DownloadsDir() string {
	return resolvePath(c.ProjectDir, c.Project.Downloads.Dir)
}

// BaseURL returns the generation service root without a trailing slash.
func (c *Config) BaseURL() string {
	return strings.TrimRight(c.Project.Service.BaseURL, "/")
}

// StorageBackend returns the configured session backend.
func (c *Config) StorageBackend() string {
	return c.Project.Storage.Backend
}

func (c *Config) loadProjectConfig() error {
	path := c.ProjectConfigPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	var parsed ProjectConfig
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}

	parsed.applyDefaults()
	parsed.normalize()
	if err := parsed.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	c.Project = parsed
	return nil
}

func (c *Config) applyEnv() error {
	var overrides EnvOverrides
	if err := env.Parse(&overrides); err != nil {
		return fmt.Errorf("config: parse env: %w", err)
	}
	p := &c.Project
	if v := strings.TrimSpace(overrides.APIURL); v != "" {
		p.Service.BaseURL = v
	}
	if v := strings.TrimSpace(overrides.Storage); v != "" {
		p.Storage.Backend = v
	}
	if v := strings.TrimSpace(overrides.DownloadsDir); v != "" {
		p.Downloads.Dir = v
	}
	if overrides.GenerationTimeout > 0 {
		p.Service.GenerationTimeout = overrides.GenerationTimeout
	}
	if v := strings.TrimSpace(overrides.OTelEndpoint); v != "" {
		p.Telemetry.Endpoint = v
		p.Telemetry.Enabled = true
	}
	if v := strings.TrimSpace(overrides.OTelEnabled); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: ROLE2_OTEL_ENABLED: %w", err)
		}
		p.Telemetry.Enabled = enabled
	}
	p.normalize()
	if err := p.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func defaultProjectConfig() ProjectConfig {
	pc := ProjectConfig{}
	pc.applyDefaults()
	return pc
}

func (pc *ProjectConfig) applyDefaults() {
	if pc.Version == 0 {
		pc.Version = 1
	}
	if strings.TrimSpace(pc.Service.BaseURL) == "" {
		pc.Service.BaseURL = DefaultBaseURL
	}
	if pc.Service.RequestTimeout <= 0 {
		pc.Service.RequestTimeout = DefaultRequestTimeout
	}
	if pc.Service.GenerationTimeout <= 0 {
		pc.Service.GenerationTimeout = DefaultGenerationTimeout
	}
	if strings.TrimSpace(pc.Storage.Backend) == "" {
		pc.Storage.Backend = StorageFile
	}
	if strings.TrimSpace(pc.Downloads.Dir) == "" {
		pc.Downloads.Dir = defaultDownloadsDir
	}
}

func (pc *ProjectConfig) normalize() {
	pc.Service.BaseURL = strings.TrimRight(strings.TrimSpace(pc.Service.BaseURL), "/")
	pc.Storage.Backend = strings.ToLower(strings.TrimSpace(pc.Storage.Backend))
	pc.Downloads.Dir = strings.TrimSpace(pc.Downloads.Dir)
	pc.Telemetry.Endpoint = strings.TrimSpace(pc.Telemetry.Endpoint)
}

func (pc *ProjectConfig) validate() error {
	if pc.Version != 1 {
		return fmt.Errorf("unsupported config version %d", pc.Version)
	}
	u, err := url.Parse(pc.Service.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("service.base_url must be an absolute URL, got %q", pc.Service.BaseURL)
	}
	switch pc.Storage.Backend {
	case StorageFile, StorageSQLite:
	default:
		return fmt.Errorf("storage.backend must be %q or %q", StorageFile, StorageSQLite)
	}
	if pc.Telemetry.Enabled && pc.Telemetry.Endpoint == "" {
		return fmt.Errorf("telemetry.endpoint is required when telemetry is enabled")
	}
	return nil
}

func resolvePath(base, candidate string) string {
	trimmed := strings.TrimSpace(candidate)
	if trimmed == "" {
		return filepath.Clean(base)
	}
	if filepath.IsAbs(trimmed) {
		return filepath.Clean(trimmed)
	}
	return filepath.Clean(filepath.Join(base, trimmed))
}

func ensureProjectConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.WriteFile(path, []byte(defaultProjectConfigYAML), 0o644)
}
