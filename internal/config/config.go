// Package config provides configuration types and defaults for catalog-engine.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/zjrosen/catalog-engine/internal/log"
	"github.com/zjrosen/catalog-engine/internal/tracing"
)

// EnvPrefix prefixes environment overrides: datastore.url is read from
// CATALOG_ENGINE_DATASTORE_URL.
const EnvPrefix = "CATALOG_ENGINE"

// Config holds all configuration options.
type Config struct {
	Datastore DatastoreConfig `mapstructure:"datastore"`
	Tracker   TrackerConfig   `mapstructure:"tracker"`
	Compiler  CompilerConfig  `mapstructure:"compiler"`
	Failures  FailuresConfig  `mapstructure:"failures"`
	Tracing   tracing.Config  `mapstructure:"tracing"`
	Watch     WatchConfig     `mapstructure:"watch"`
	Log       LogConfig       `mapstructure:"log"`
}

// DatastoreConfig points at the catalog datastore and its cache endpoint.
type DatastoreConfig struct {
	URL       string        `mapstructure:"url"`
	CacheURL  string        `mapstructure:"cache_url"`
	BatchSize int           `mapstructure:"batch_size"`
	Retries   int           `mapstructure:"retries"` // attempts per request, including the first
	Backoff   time.Duration `mapstructure:"backoff"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// TrackerConfig points at the document tracker.
type TrackerConfig struct {
	URL     string        `mapstructure:"url"`
	Retries int           `mapstructure:"retries"`
	Backoff time.Duration `mapstructure:"backoff"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// CompilerConfig locates the schema toolkit and the module files it reads.
type CompilerConfig struct {
	Binary     string `mapstructure:"binary"`
	ModulesDir string `mapstructure:"modules_dir"`
}

// FailuresConfig locates the failure log and the per-run artifacts.
type FailuresConfig struct {
	DBPath       string `mapstructure:"db_path"`
	ArtifactsDir string `mapstructure:"artifacts_dir"`
}

// WatchConfig drives the watch command.
type WatchConfig struct {
	SpoolDir string        `mapstructure:"spool_dir"`
	Debounce time.Duration `mapstructure:"debounce"`
}

// LogConfig selects the log file and minimum level. An empty file disables
// logging.
type LogConfig struct {
	File  string `mapstructure:"file"`
	Level string `mapstructure:"level"`
}

// BaseDir returns ~/.config/catalog-engine, or an empty string when the home
// directory is unknown.
func BaseDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "catalog-engine")
}

func underBase(parts ...string) string {
	base := BaseDir()
	if base == "" {
		return ""
	}
	return filepath.Join(append([]string{base}, parts...)...)
}

// Defaults returns a Config with default values.
func Defaults() Config {
	tc := tracing.DefaultConfig()
	tc.FilePath = underBase("traces", "traces.jsonl")

	return Config{
		Datastore: DatastoreConfig{
			URL:       "http://localhost:8080/api",
			CacheURL:  "http://localhost:8080/api",
			BatchSize: 250,
			Retries:   3,
			Backoff:   2 * time.Second,
			Timeout:   60 * time.Second,
		},
		Tracker: TrackerConfig{
			URL:     "http://localhost:8081/api",
			Retries: 3,
			Backoff: 5 * time.Second,
			Timeout: 30 * time.Second,
		},
		Compiler: CompilerConfig{
			Binary:     "pyang",
			ModulesDir: "modules",
		},
		Failures: FailuresConfig{
			DBPath:       underBase("failures.db"),
			ArtifactsDir: underBase("failed"),
		},
		Tracing: tc,
		Watch: WatchConfig{
			SpoolDir: filepath.Join(".catalog-engine", "spool"),
			Debounce: 5 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// RegisterDefaults installs Defaults on v and enables environment overrides.
// Every key must have a default for AutomaticEnv to reach it on Unmarshal.
func RegisterDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("datastore.url", d.Datastore.URL)
	v.SetDefault("datastore.cache_url", d.Datastore.CacheURL)
	v.SetDefault("datastore.batch_size", d.Datastore.BatchSize)
	v.SetDefault("datastore.retries", d.Datastore.Retries)
	v.SetDefault("datastore.backoff", d.Datastore.Backoff)
	v.SetDefault("datastore.timeout", d.Datastore.Timeout)
	v.SetDefault("tracker.url", d.Tracker.URL)
	v.SetDefault("tracker.retries", d.Tracker.Retries)
	v.SetDefault("tracker.backoff", d.Tracker.Backoff)
	v.SetDefault("tracker.timeout", d.Tracker.Timeout)
	v.SetDefault("compiler.binary", d.Compiler.Binary)
	v.SetDefault("compiler.modules_dir", d.Compiler.ModulesDir)
	v.SetDefault("failures.db_path", d.Failures.DBPath)
	v.SetDefault("failures.artifacts_dir", d.Failures.ArtifactsDir)
	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.exporter", d.Tracing.Exporter)
	v.SetDefault("tracing.file_path", d.Tracing.FilePath)
	v.SetDefault("tracing.otlp_endpoint", d.Tracing.OTLPEndpoint)
	v.SetDefault("tracing.sample_rate", d.Tracing.SampleRate)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
	v.SetDefault("watch.spool_dir", d.Watch.SpoolDir)
	v.SetDefault("watch.debounce", d.Watch.Debounce)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.level", d.Log.Level)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Validate checks the parts of cfg every command depends on.
func Validate(cfg Config) error {
	if err := validateURL("datastore.url", cfg.Datastore.URL); err != nil {
		return err
	}
	if err := validateURL("datastore.cache_url", cfg.Datastore.CacheURL); err != nil {
		return err
	}
	if err := validateURL("tracker.url", cfg.Tracker.URL); err != nil {
		return err
	}
	if cfg.Datastore.BatchSize <= 0 {
		return fmt.Errorf("datastore.batch_size must be positive, got %d", cfg.Datastore.BatchSize)
	}
	if cfg.Datastore.Retries < 1 || cfg.Tracker.Retries < 1 {
		return fmt.Errorf("datastore.retries and tracker.retries must be at least 1")
	}
	if cfg.Datastore.Backoff < 0 || cfg.Tracker.Backoff < 0 {
		return fmt.Errorf("backoff durations must not be negative")
	}
	if cfg.Compiler.Binary == "" {
		return fmt.Errorf("compiler.binary is required")
	}
	if cfg.Compiler.ModulesDir == "" {
		return fmt.Errorf("compiler.modules_dir is required")
	}
	if cfg.Failures.DBPath == "" {
		return fmt.Errorf("failures.db_path is required")
	}
	return ValidateTracing(cfg.Tracing)
}

// ValidateTracing checks tracing configuration. Empty values use defaults.
func ValidateTracing(tc tracing.Config) error {
	if tc.SampleRate < 0.0 || tc.SampleRate > 1.0 {
		return fmt.Errorf("tracing.sample_rate must be between 0.0 and 1.0, got %v", tc.SampleRate)
	}
	switch tc.Exporter {
	case "", "none", "file", "stdout", "otlp":
	default:
		return fmt.Errorf("tracing.exporter must be \"none\", \"file\", \"stdout\", or \"otlp\", got %q", tc.Exporter)
	}
	if tc.Enabled && tc.Exporter == "file" && tc.FilePath == "" {
		return fmt.Errorf("tracing.file_path is required when exporter is \"file\"")
	}
	return nil
}

func validateURL(key, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", key)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s must be an http(s) URL, got %q", key, raw)
	}
	return nil
}

// DefaultConfigTemplate returns the default config as commented YAML.
func DefaultConfigTemplate() string {
	return `# catalog-engine configuration
# Every key can be overridden with CATALOG_ENGINE_<SECTION>_<KEY>,
# e.g. CATALOG_ENGINE_DATASTORE_URL.

datastore:
  url: http://localhost:8080/api
  cache_url: http://localhost:8080/api  # receives POST /load-cache after writes
  batch_size: 250                       # records per PATCH request
  retries: 3                            # attempts per request
  backoff: 2s
  timeout: 60s

tracker:
  url: http://localhost:8081/api
  retries: 3
  backoff: 5s
  timeout: 30s

compiler:
  binary: pyang
  modules_dir: modules    # local copies of every schema the catalog references

# failures:
#   db_path: ~/.config/catalog-engine/failures.db
#   artifacts_dir: ~/.config/catalog-engine/failed

watch:
  spool_dir: .catalog-engine/spool   # drop *.keys files here, one name@revision per line
  debounce: 5s

log:
  level: info
  # file: catalog-engine.log

# Tracing (disabled by default)
# tracing:
#   enabled: true
#   exporter: otlp          # none, file, stdout or otlp
#   otlp_endpoint: localhost:4317
#   sample_rate: 1.0
`
}

// WriteDefaultConfig writes DefaultConfigTemplate to configPath, creating the
// parent directory.
func WriteDefaultConfig(configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to create config directory", err, "dir", dir)
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(configPath, []byte(DefaultConfigTemplate()), 0o600); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to write config file", err, "path", configPath)
		return fmt.Errorf("writing config file: %w", err)
	}
	log.Info(log.CatConfig, "Created default config", "path", configPath)
	return nil
}
