package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/go-playground/validator/v10"
	"github.com/k1LoW/duration"
	"github.com/spf13/viper"

	"github.com/tidyfs/tidyfs/pkg/tidyfs/types"
)

// SandboxConfig defines the allowed mount roots. No path outside these
// roots is ever read or mutated.
type SandboxConfig struct {
	Roots []string `mapstructure:"roots" validate:"required,min=1,dive,required"`
}

// ScanConfig configures scanner behavior.
type ScanConfig struct {
	MaxDepth           int      `mapstructure:"max_depth" validate:"min=1,max=64"`
	MaxFiles           int      `mapstructure:"max_files" validate:"min=1"`
	IncludeHidden      bool     `mapstructure:"include_hidden"`
	FollowSymlinks     bool     `mapstructure:"follow_symlinks"`
	FingerprintCeiling string   `mapstructure:"fingerprint_ceiling" validate:"bytesize"`
	ProgressEvery      int      `mapstructure:"progress_every" validate:"min=1"`
	HashWorkers        int      `mapstructure:"hash_workers" validate:"min=0"`
	Exclude            []string `mapstructure:"exclude"`
}

// ExecConfig configures the execution engine.
type ExecConfig struct {
	DryRunDefault bool   `mapstructure:"dry_run_default"`
	BatchSize     int    `mapstructure:"batch_size" validate:"min=1,max=1000"`
	IOTimeout     string `mapstructure:"io_timeout" validate:"humandur"`
}

// RetentionConfig configures the delete retention area.
type RetentionConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Dir     string `mapstructure:"dir"`
	Ceiling string `mapstructure:"ceiling" validate:"bytesize"`
	Keep    string `mapstructure:"keep" validate:"humandur"`
}

// JournalConfig configures the rollback journal store.
type JournalConfig struct {
	Dir string `mapstructure:"dir"`
}

// CacheConfig configures the fingerprint cache.
type CacheConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
	TTL     string `mapstructure:"ttl" validate:"humandur"`
}

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSize    string `mapstructure:"max_size" validate:"bytesize"`
	MaxAge     int    `mapstructure:"max_age" validate:"min=0"`
	MaxBackups int    `mapstructure:"max_backups" validate:"min=0"`
	Daily      bool   `mapstructure:"daily"`
}

// LoggingConfig configures application logging.
type LoggingConfig struct {
	Level      string            `mapstructure:"level" validate:"oneof=debug info warn error"`
	Path       string            `mapstructure:"path"`
	Rotation   RotationConfig    `mapstructure:"rotation"`
	Components map[string]string `mapstructure:"components"`
}

// OutputConfig configures default CLI rendering.
type OutputConfig struct {
	Format  string `mapstructure:"format" validate:"oneof=pretty plain json yaml"`
	NoColor bool   `mapstructure:"no_color"`
}

// Config represents the application configuration.
type Config struct {
	Sandbox   SandboxConfig   `mapstructure:"sandbox"`
	Scan      ScanConfig      `mapstructure:"scan"`
	Exec      ExecConfig      `mapstructure:"exec"`
	Retention RetentionConfig `mapstructure:"retention"`
	Journal   JournalConfig   `mapstructure:"journal"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Output    OutputConfig    `mapstructure:"output"`
}

// Load loads configuration from file and environment variables.
// Config file locations (in order of precedence):
//   - $XDG_CONFIG_HOME/tidyfs/config.yaml
//   - $HOME/.config/tidyfs/config.yaml
//
// Environment variables are prefixed with TIDYFS_ (e.g., TIDYFS_SCAN_MAX_DEPTH).
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile loads configuration from an explicit file instead of the
// default search locations. An empty path behaves like Load. Unlike
// the default search, a named file that cannot be read is an error.
func LoadFile(path string) (*Config, error) {
	v := viper.New()

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get user home directory: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")

		if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
			v.AddConfigPath(filepath.Join(xdgConfigHome, "tidyfs"))
		}
		v.AddConfigPath(filepath.Join(homeDir, ".config", "tidyfs"))
	}

	v.SetEnvPrefix("TIDYFS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, homeDir)

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// No config file is fine; defaults apply.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Expand ~ in every user-facing path.
	for i, root := range cfg.Sandbox.Roots {
		expanded, err := ExpandPath(root)
		if err != nil {
			return nil, err
		}
		cfg.Sandbox.Roots[i] = expanded
	}
	for _, p := range []*string{&cfg.Retention.Dir, &cfg.Journal.Dir, &cfg.Cache.Path, &cfg.Logging.Path} {
		expanded, err := ExpandPath(*p)
		if err != nil {
			return nil, err
		}
		*p = expanded
	}

	// An explicit empty path in the config file means "use the default".
	if cfg.Retention.Dir == "" {
		cfg.Retention.Dir = DefaultRetainDir()
	}
	if cfg.Journal.Dir == "" {
		cfg.Journal.Dir = DefaultJournalDir()
	}
	if cfg.Cache.Path == "" {
		cfg.Cache.Path = DefaultCachePath()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Default returns the built-in configuration: what Load yields with no
// config file and no environment overrides.
func Default() (*Config, error) {
	v := viper.New()

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get user home directory: %w", err)
	}
	setDefaults(v, homeDir)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper, homeDir string) {
	v.SetDefault("sandbox.roots", []string{homeDir})

	v.SetDefault("scan.max_depth", DefaultMaxDepth)
	v.SetDefault("scan.max_files", DefaultMaxFiles)
	v.SetDefault("scan.include_hidden", false)
	v.SetDefault("scan.follow_symlinks", false)
	v.SetDefault("scan.fingerprint_ceiling", DefaultFingerprintCeiling)
	v.SetDefault("scan.progress_every", DefaultProgressEvery)
	v.SetDefault("scan.hash_workers", 0) // 0 = autotune
	v.SetDefault("scan.exclude", DefaultExclusions)

	v.SetDefault("exec.dry_run_default", true)
	v.SetDefault("exec.batch_size", DefaultBatchSize)
	v.SetDefault("exec.io_timeout", DefaultIOTimeout)

	v.SetDefault("retention.enabled", true)
	v.SetDefault("retention.dir", DefaultRetainDir())
	v.SetDefault("retention.ceiling", DefaultRetentionCeiling)
	v.SetDefault("retention.keep", DefaultRetentionKeep)

	v.SetDefault("journal.dir", DefaultJournalDir())

	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.path", DefaultCachePath())
	v.SetDefault("cache.ttl", DefaultCacheTTL)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.path", "") // empty means logging.DefaultLogPath
	v.SetDefault("logging.rotation.max_size", "10MB")
	v.SetDefault("logging.rotation.max_age", 30)
	v.SetDefault("logging.rotation.max_backups", 5)
	v.SetDefault("logging.rotation.daily", true)
	v.SetDefault("logging.components", map[string]string{
		"scanner": "info",
		"engine":  "info",
		"journal": "warn",
		"watcher": "warn",
	})

	v.SetDefault("output.format", "pretty")
	v.SetDefault("output.no_color", false)
}

// Validate checks the configuration for structural and value errors.
func (c *Config) Validate() error {
	validate := validator.New()

	// bytesize: a parseable human size like "100MB".
	if err := validate.RegisterValidation("bytesize", func(fl validator.FieldLevel) bool {
		_, err := types.ParseSize(fl.Field().String())
		return err == nil
	}); err != nil {
		return fmt.Errorf("registering bytesize validator: %w", err)
	}

	// humandur: a parseable duration like "30s" or "30 days".
	if err := validate.RegisterValidation("humandur", func(fl validator.FieldLevel) bool {
		_, err := duration.Parse(fl.Field().String())
		return err == nil
	}); err != nil {
		return fmt.Errorf("registering humandur validator: %w", err)
	}

	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// FingerprintCeilingBytes returns the parsed fingerprint size ceiling.
func (c *Config) FingerprintCeilingBytes() (int64, error) {
	return types.ParseSize(c.Scan.FingerprintCeiling)
}

// RetentionCeilingBytes returns the parsed retention size ceiling.
func (c *Config) RetentionCeilingBytes() (int64, error) {
	return types.ParseSize(c.Retention.Ceiling)
}

// RetentionKeepDuration returns the parsed retention period.
func (c *Config) RetentionKeepDuration() (time.Duration, error) {
	return duration.Parse(c.Retention.Keep)
}

// IOTimeoutDuration returns the parsed per-call I/O timeout.
func (c *Config) IOTimeoutDuration() (time.Duration, error) {
	return duration.Parse(c.Exec.IOTimeout)
}

// CacheTTLDuration returns the parsed fingerprint cache TTL.
func (c *Config) CacheTTLDuration() (time.Duration, error) {
	return duration.Parse(c.Cache.TTL)
}

// ConfigDir returns the configuration directory path.
func ConfigDir() (string, error) {
	if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
		return filepath.Join(xdgConfigHome, "tidyfs"), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(homeDir, ".config", "tidyfs"), nil
}

// EnsureConfigDir creates the config directory if it doesn't exist.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	return nil
}

// WriteDefault writes a default config file if none exists.
// Returns nil if a config file already exists.
func WriteDefault() error {
	if err := EnsureConfigDir(); err != nil {
		return err
	}

	configDir, err := ConfigDir()
	if err != nil {
		return err
	}

	configPath := filepath.Join(configDir, "config.yaml")

	if _, err := os.Stat(configPath); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to check config file: %w", err)
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get user home directory: %w", err)
	}

	defaultConfig := fmt.Sprintf(`# tidyfs configuration

# Allowed mount roots. No path outside these is ever read or mutated.
sandbox:
  roots:
    - %s

# Scanner settings
scan:
  max_depth: %d
  max_files: %d
  include_hidden: false
  follow_symlinks: false
  # Files larger than this are recorded but not fingerprinted
  fingerprint_ceiling: %s
  progress_every: %d
  # 0 = pick hash worker count automatically
  hash_workers: 0
  exclude:
    - node_modules
    - __pycache__
    - .git

# Execution settings
exec:
  # Executions validate without mutating unless --commit is given
  dry_run_default: true
  batch_size: %d
  io_timeout: %s

# Retention of deleted files for rollback
retention:
  enabled: true
  # Empty means use default: $XDG_DATA_HOME/tidyfs/retained
  dir: ""
  # Deletes larger than this are permanent (rollback reports them)
  ceiling: %s
  keep: %s

# Rollback journal
journal:
  # Empty means use default: $XDG_DATA_HOME/tidyfs/journal
  dir: ""

# Fingerprint cache
cache:
  enabled: true
  path: ""
  ttl: %s

# Logging configuration
logging:
  # Log level: debug, info, warn, error
  level: info
  # Log file path (empty means use default: $XDG_STATE_HOME/tidyfs/tidyfs.log)
  path: ""
  rotation:
    max_size: 10MB
    max_age: 30       # days
    max_backups: 5
    daily: true
  # Per-component log levels
  components:
    scanner: info
    engine: info
    journal: warn
    watcher: warn

# Output configuration
output:
  format: pretty
  no_color: false
`, homeDir, DefaultMaxDepth, DefaultMaxFiles, DefaultFingerprintCeiling,
		DefaultProgressEvery, DefaultBatchSize, DefaultIOTimeout,
		DefaultRetentionCeiling, DefaultRetentionKeep, DefaultCacheTTL)

	if err := os.WriteFile(configPath, []byte(defaultConfig), 0o644); err != nil {
		return fmt.Errorf("failed to write default config: %w", err)
	}

	return nil
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(homeDir, path[1:]), nil
}

// DataDir returns $XDG_DATA_HOME/tidyfs/ for the journal and retention area.
func DataDir() string {
	return filepath.Join(xdg.DataHome, "tidyfs")
}

// StateDir returns $XDG_STATE_HOME/tidyfs/ for log files.
func StateDir() string {
	return filepath.Join(xdg.StateHome, "tidyfs")
}

// CacheDir returns $XDG_CACHE_HOME/tidyfs/ for the fingerprint cache.
func CacheDir() string {
	return filepath.Join(xdg.CacheHome, "tidyfs")
}

// DefaultJournalDir returns the default rollback journal directory.
func DefaultJournalDir() string {
	return filepath.Join(DataDir(), "journal")
}

// DefaultRetainDir returns the default retention directory.
func DefaultRetainDir() string {
	return filepath.Join(DataDir(), "retained")
}

// DefaultCachePath returns the default fingerprint cache database
// directory.
func DefaultCachePath() string {
	return filepath.Join(CacheDir(), "fingerprints")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func EnsureDataDir() error {
	if err := os.MkdirAll(DataDir(), 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	return nil
}

// EnsureStateDir creates the state directory if it doesn't exist.
func EnsureStateDir() error {
	if err := os.MkdirAll(StateDir(), 0o755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}
	return nil
}

// EnsureCacheDir creates the cache directory if it doesn't exist.
func EnsureCacheDir() error {
	if err := os.MkdirAll(CacheDir(), 0o755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}
	return nil
}
