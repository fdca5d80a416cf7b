package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Input   InputConfig   `yaml:"input" mapstructure:"input"`
	Output  OutputConfig  `yaml:"output" mapstructure:"output"`
	Geocode GeocodeConfig `yaml:"geocode" mapstructure:"geocode"`
	Retry   RetryConfig   `yaml:"retry" mapstructure:"retry"`
	Cascade CascadeConfig `yaml:"cascade" mapstructure:"cascade"`
	Ledger  LedgerConfig  `yaml:"ledger" mapstructure:"ledger"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// InputConfig describes the input table.
type InputConfig struct {
	Path          string `yaml:"path" mapstructure:"path"`
	IDColumn      string `yaml:"id_column" mapstructure:"id_column"`
	AddressColumn string `yaml:"address_column" mapstructure:"address_column"`
	Encoding      string `yaml:"encoding" mapstructure:"encoding"`
	HasHeader     bool   `yaml:"has_header" mapstructure:"has_header"`
}

// OutputConfig locates result files. Empty Dir and Base derive from the
// input path.
type OutputConfig struct {
	Dir        string `yaml:"dir" mapstructure:"dir"`
	Base       string `yaml:"base" mapstructure:"base"`
	FinalFile  string `yaml:"final_file" mapstructure:"final_file"`
	MissesFile string `yaml:"misses_file" mapstructure:"misses_file"`
	BOM        bool   `yaml:"bom" mapstructure:"bom"`
}

// GeocodeConfig configures the resolver client and the first pass.
type GeocodeConfig struct {
	BaseURL          string  `yaml:"base_url" mapstructure:"base_url"`
	Concurrency      int     `yaml:"concurrency" mapstructure:"concurrency"`
	ChunkSize        int     `yaml:"chunk_size" mapstructure:"chunk_size"`
	TimeoutSecs      int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	RateLimit        float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	UserAgent        string  `yaml:"user_agent" mapstructure:"user_agent"`
}

// Timeout returns the per-call deadline.
func (g GeocodeConfig) Timeout() time.Duration {
	return time.Duration(g.TimeoutSecs) * time.Second
}

// RetryConfig configures the retry passes. Backoff grows linearly.
type RetryConfig struct {
	Concurrency      int `yaml:"concurrency" mapstructure:"concurrency"`
	TimeoutSecs      int `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	TimeoutPassSecs  int `yaml:"timeout_pass_secs" mapstructure:"timeout_pass_secs"`
}

// Timeout returns the per-call deadline of the communication error pass.
func (r RetryConfig) Timeout() time.Duration {
	return time.Duration(r.TimeoutSecs) * time.Second
}

// TimeoutPass returns the per-call deadline of the timeout pass. Addresses
// that timed out once are often just slow, so this is usually the longer one.
func (r RetryConfig) TimeoutPass() time.Duration {
	return time.Duration(r.TimeoutPassSecs) * time.Second
}

// CascadeConfig configures the normalization cascade.
type CascadeConfig struct {
	Concurrency int      `yaml:"concurrency" mapstructure:"concurrency"`
	TimeoutSecs int      `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxAttempts int      `yaml:"max_attempts" mapstructure:"max_attempts"`
	Stages      []string `yaml:"stages" mapstructure:"stages"`
}

// Timeout returns the per-call deadline.
func (c CascadeConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// LedgerConfig configures the run ledger backend.
type LedgerConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("GEOCODER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("input.path", "")
	v.SetDefault("input.id_column", "法人番号")
	v.SetDefault("input.address_column", "住所")
	v.SetDefault("input.encoding", "auto")
	v.SetDefault("input.has_header", true)
	v.SetDefault("output.dir", "")
	v.SetDefault("output.base", "")
	v.SetDefault("output.final_file", "final_geocoded_result.csv")
	v.SetDefault("output.misses_file", "")
	v.SetDefault("output.bom", true)
	v.SetDefault("geocode.base_url", "https://msearch.gsi.go.jp/address-search/AddressSearch")
	v.SetDefault("geocode.concurrency", 100)
	v.SetDefault("geocode.chunk_size", 100000)
	v.SetDefault("geocode.timeout_secs", 30)
	v.SetDefault("geocode.max_attempts", 3)
	v.SetDefault("geocode.initial_backoff_ms", 500)
	v.SetDefault("geocode.max_backoff_ms", 5000)
	v.SetDefault("geocode.rate_limit", 0)
	v.SetDefault("geocode.user_agent", "gsi-geocoder/1.0")
	v.SetDefault("retry.concurrency", 500)
	v.SetDefault("retry.timeout_secs", 60)
	v.SetDefault("retry.max_attempts", 5)
	v.SetDefault("retry.initial_backoff_ms", 2000)
	v.SetDefault("retry.max_backoff_ms", 30000)
	v.SetDefault("retry.timeout_pass_secs", 120)
	v.SetDefault("cascade.concurrency", 100)
	v.SetDefault("cascade.timeout_secs", 30)
	v.SetDefault("cascade.max_attempts", 1)
	v.SetDefault("cascade.stages", []string{"ward_rename", "street_convention", "merger_mapping", "locality_marker"})
	v.SetDefault("ledger.driver", "sqlite")
	v.SetDefault("ledger.database_url", "geocoder.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// ResultDir is where chunk result files live: output.dir, else the input's
// directory.
func (c *Config) ResultDir() string {
	if c.Output.Dir != "" {
		return c.Output.Dir
	}
	if c.Input.Path != "" {
		return filepath.Dir(c.Input.Path)
	}
	return "."
}

// ResultBase is the stem embedded in result file names: output.base, else
// the input file name without its extension.
func (c *Config) ResultBase() string {
	if c.Output.Base != "" {
		return c.Output.Base
	}
	if c.Input.Path == "" {
		return ""
	}
	name := filepath.Base(c.Input.Path)
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// FinalPath resolves output.final_file against the result directory.
func (c *Config) FinalPath() string {
	return c.resolve(c.Output.FinalFile)
}

// MissesPath resolves output.misses_file; empty disables the miss listing.
func (c *Config) MissesPath() string {
	if c.Output.MissesFile == "" {
		return ""
	}
	return c.resolve(c.Output.MissesFile)
}

func (c *Config) resolve(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.ResultDir(), name)
}

var (
	validEncodings = map[string]bool{"auto": true, "utf-8": true, "utf8": true, "utf-8-sig": true, "shift_jis": true, "sjis": true, "cp932": true, "windows-31j": true, "euc-jp": true, "eucjp": true}
	validDrivers   = map[string]bool{"sqlite": true, "postgres": true, "none": true, "": true}
)

// maxConcurrency bounds every concurrency setting.
const maxConcurrency = 2000

// Validate checks the configuration for the given command mode: geocode,
// retry, cascade, consolidate, status or run.
func (c *Config) Validate(mode string) error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	needsInput := false
	switch mode {
	case "geocode", "run":
		needsInput = true
	case "retry", "cascade", "consolidate", "status":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if needsInput {
		if c.Input.Path == "" {
			add("input.path is required")
		}
		if c.Geocode.ChunkSize <= 0 {
			add("geocode.chunk_size must be > 0")
		}
	} else if c.ResultBase() == "" {
		add("input.path or output.base is required to locate result files")
	}
	if c.Input.HasHeader && c.Input.AddressColumn == "" {
		add("input.address_column is required")
	}
	if !validEncodings[strings.ToLower(c.Input.Encoding)] {
		add("input.encoding %q is not supported", c.Input.Encoding)
	}

	checkConcurrency := func(key string, n int) {
		if n < 1 || n > maxConcurrency {
			add("%s must be between 1 and %d", key, maxConcurrency)
		}
	}
	checkPositive := func(key string, n int) {
		if n <= 0 {
			add("%s must be > 0", key)
		}
	}

	switch mode {
	case "geocode":
		checkConcurrency("geocode.concurrency", c.Geocode.Concurrency)
		checkPositive("geocode.timeout_secs", c.Geocode.TimeoutSecs)
	case "retry":
		checkConcurrency("retry.concurrency", c.Retry.Concurrency)
		checkPositive("retry.timeout_secs", c.Retry.TimeoutSecs)
		checkPositive("retry.timeout_pass_secs", c.Retry.TimeoutPassSecs)
	case "cascade":
		checkConcurrency("cascade.concurrency", c.Cascade.Concurrency)
		checkPositive("cascade.timeout_secs", c.Cascade.TimeoutSecs)
		if len(c.Cascade.Stages) == 0 {
			add("cascade.stages must name at least one stage")
		}
	case "run":
		checkConcurrency("geocode.concurrency", c.Geocode.Concurrency)
		checkConcurrency("retry.concurrency", c.Retry.Concurrency)
		checkConcurrency("cascade.concurrency", c.Cascade.Concurrency)
		checkPositive("geocode.timeout_secs", c.Geocode.TimeoutSecs)
		checkPositive("retry.timeout_secs", c.Retry.TimeoutSecs)
		checkPositive("retry.timeout_pass_secs", c.Retry.TimeoutPassSecs)
		checkPositive("cascade.timeout_secs", c.Cascade.TimeoutSecs)
	}
	if c.Geocode.RateLimit < 0 {
		add("geocode.rate_limit must be >= 0")
	}

	if !validDrivers[c.Ledger.Driver] {
		add("ledger.driver %q is not one of sqlite, postgres, none", c.Ledger.Driver)
	} else if c.Ledger.Driver == "postgres" && c.Ledger.DatabaseURL == "" {
		add("ledger.database_url is required for postgres")
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
