// Package config loads service settings from an optional config file and
// PLASMIDSEQ_* environment variables on top of built-in defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable the loader reads,
// e.g. PLASMIDSEQ_SESSION_ROOT or PLASMIDSEQ_RATE_LIMIT_ENABLED.
const EnvPrefix = "PLASMIDSEQ"

// Config holds the service settings.
type Config struct {
	Port         int    `mapstructure:"port"`
	SessionRoot  string `mapstructure:"session_root"`  // Parent directory of every session
	ArchiveLabel string `mapstructure:"archive_label"` // Prefix of packaged archive names

	// External tools
	Python         string   `mapstructure:"python"`
	PythonArgs     []string `mapstructure:"python_args"`
	PipelineScript string   `mapstructure:"pipeline_script"`
	ResultsScript  string   `mapstructure:"results_script"`
	RenameScript   string   `mapstructure:"rename_script"` // Empty uses the built-in FASTA renamer
	CutSiteScript  string   `mapstructure:"cut_site_script"`
	ModelsScript   string   `mapstructure:"models_script"`
	ModelsCache    string   `mapstructure:"models_cache"`

	PipelineTimeout   time.Duration `mapstructure:"pipeline_timeout"` // Zero disables the ceiling
	ResultsTimeout    time.Duration `mapstructure:"results_timeout"`
	MaxConcurrentRuns int           `mapstructure:"max_concurrent_runs"`

	// Job persistence; DatabaseURL wins over StateDir, neither means in-memory
	DatabaseURL string `mapstructure:"database_url"`
	StateDir    string `mapstructure:"state_dir"`

	RateLimit RateLimit `mapstructure:"rate_limit"`

	CORSOrigin string `mapstructure:"cors_origin"`
	Debug      bool   `mapstructure:"debug"`
	LogFormat  string `mapstructure:"log_format"` // "terminal", "json" or empty to detect
}

// RateLimit configures the per-client HTTP limiter.
type RateLimit struct {
	Enabled       bool          `mapstructure:"enabled"`
	DefaultLimit  int           `mapstructure:"default_limit"`
	DefaultWindow time.Duration `mapstructure:"default_window"`
	RunLimit      int           `mapstructure:"run_limit"` // Run submissions per RunWindow
	RunWindow     time.Duration `mapstructure:"run_window"`
	Whitelist     []string      `mapstructure:"whitelist"`
	Blacklist     []string      `mapstructure:"blacklist"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", 8080)
	v.SetDefault("session_root", "/tmp")
	v.SetDefault("archive_label", "bulkPlasmidSeq")
	v.SetDefault("python", "/usr/local/miniconda/envs/medaka/bin/python3")
	v.SetDefault("python_args", []string{"-u"})
	v.SetDefault("pipeline_script", "/usr/local/bulkPlasmidSeq/bulkPlasmidSeq.py")
	v.SetDefault("results_script", "processResults.py")
	v.SetDefault("rename_script", "")
	v.SetDefault("cut_site_script", "findCutSites.py")
	v.SetDefault("models_script", "getMedakaModels.py")
	v.SetDefault("models_cache", "medakaModels.json")
	v.SetDefault("pipeline_timeout", 6*time.Hour)
	v.SetDefault("results_timeout", 30*time.Minute)
	v.SetDefault("max_concurrent_runs", 2)
	v.SetDefault("database_url", "")
	v.SetDefault("state_dir", "")
	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.default_limit", 1000)
	v.SetDefault("rate_limit.default_window", time.Minute)
	v.SetDefault("rate_limit.run_limit", 10)
	v.SetDefault("rate_limit.run_window", time.Hour)
	v.SetDefault("rate_limit.whitelist", []string{})
	v.SetDefault("rate_limit.blacklist", []string{})
	v.SetDefault("cors_origin", "*")
	v.SetDefault("debug", false)
	v.SetDefault("log_format", "")
}

// Default returns the built-in settings.
func Default() *Config {
	cfg, err := Load("")
	if err != nil {
		// Defaults alone cannot fail to decode.
		panic(err)
	}
	return cfg
}

// Load reads settings from path (yaml, json or toml; empty for none) and the
// environment. It does not validate; call Validate once flags are applied.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Validate checks ranges and required paths.
func (c *Config) Validate() error {
	var errs []error
	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("config error: 'port' must be between 0 and 65535"))
	}
	if c.SessionRoot == "" {
		errs = append(errs, fmt.Errorf("config error: 'session_root' is required"))
	} else if info, err := os.Stat(c.SessionRoot); err != nil || !info.IsDir() {
		errs = append(errs, fmt.Errorf("config error: session root is not a directory: %s", c.SessionRoot))
	}
	if c.Python == "" {
		errs = append(errs, fmt.Errorf("config error: 'python' is required"))
	}
	if c.PipelineScript == "" {
		errs = append(errs, fmt.Errorf("config error: 'pipeline_script' is required"))
	}
	if c.ResultsScript == "" {
		errs = append(errs, fmt.Errorf("config error: 'results_script' is required"))
	}
	if c.ArchiveLabel == "" || strings.ContainsAny(c.ArchiveLabel, `/\`) {
		errs = append(errs, fmt.Errorf("config error: 'archive_label' must be a non-empty name without separators"))
	}
	if c.PipelineTimeout < 0 || c.ResultsTimeout < 0 {
		errs = append(errs, fmt.Errorf("config error: timeouts must be non-negative"))
	}
	if c.MaxConcurrentRuns < 1 {
		errs = append(errs, fmt.Errorf("config error: 'max_concurrent_runs' must be at least 1"))
	}
	if c.RateLimit.Enabled {
		if c.RateLimit.DefaultLimit < 0 || c.RateLimit.RunLimit < 0 {
			errs = append(errs, fmt.Errorf("config error: rate limits must be non-negative"))
		}
		if c.RateLimit.DefaultWindow <= 0 || c.RateLimit.RunWindow <= 0 {
			errs = append(errs, fmt.Errorf("config error: rate limit windows must be positive"))
		}
	}
	switch c.LogFormat {
	case "", "terminal", "json":
	default:
		errs = append(errs, fmt.Errorf("config error: unknown log format %q", c.LogFormat))
	}
	return errors.Join(errs...)
}
