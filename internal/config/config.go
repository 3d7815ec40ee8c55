package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the entire application configuration
type Config struct {
	Download DownloadConfig `mapstructure:"download"`
	Retry    RetryConfig    `mapstructure:"retry"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Journal  JournalConfig  `mapstructure:"journal"`
	Pipes    PipesConfig    `mapstructure:"pipes"`
}

// DownloadConfig contains the session options
type DownloadConfig struct {
	DestDir                    string            `mapstructure:"dest_dir"`
	Method                     string            `mapstructure:"method"`
	Headers                    map[string]string `mapstructure:"headers"`
	FileName                   string            `mapstructure:"file_name"`
	Override                   bool              `mapstructure:"override"`
	SkipExisting               bool              `mapstructure:"skip_existing"`
	SkipSmaller                bool              `mapstructure:"skip_smaller"`
	ForceResume                bool              `mapstructure:"force_resume"`
	RemoveOnStop               bool              `mapstructure:"remove_on_stop"`
	RemoveOnFail               bool              `mapstructure:"remove_on_fail"`
	Timeout                    string            `mapstructure:"timeout"`
	ProgressThrottle           string            `mapstructure:"progress_throttle"`
	ResumeOnIncomplete         bool              `mapstructure:"resume_on_incomplete"`
	ResumeOnIncompleteMaxRetry int               `mapstructure:"resume_on_incomplete_max_retry"`
	ResumeIfFileExists         bool              `mapstructure:"resume_if_file_exists"`
	MaxRedirects               int               `mapstructure:"max_redirects"`
	BufferSizeKB               int               `mapstructure:"buffer_size_kb"`
}

// RetryConfig contains the retry policy
type RetryConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	MaxRetries int    `mapstructure:"max_retries"`
	Delay      string `mapstructure:"delay"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// JournalConfig contains resume journal settings
type JournalConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`

	// MaxAge is how long an interrupted download stays resumable
	MaxAge string `mapstructure:"max_age"`
}

// PipesConfig contains fan-out destinations
type PipesConfig struct {
	// Zstd is a path receiving a zstd compressed copy; empty disables it
	Zstd string `mapstructure:"zstd"`

	// MirrorBucket is a gocloud bucket URL receiving a copy; empty disables it
	MirrorBucket string `mapstructure:"mirror_bucket"`
	MirrorKey    string `mapstructure:"mirror_key"`
}

// Load loads configuration from the specified file path. An empty path
// uses defaults and DLHELPER_* environment variables only.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("DLHELPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")

		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("download.dest_dir", ".")
	v.SetDefault("download.method", "GET")
	v.SetDefault("download.file_name", "")
	v.SetDefault("download.override", false)
	v.SetDefault("download.skip_existing", false)
	v.SetDefault("download.skip_smaller", false)
	v.SetDefault("download.force_resume", false)
	v.SetDefault("download.remove_on_stop", true)
	v.SetDefault("download.remove_on_fail", true)
	v.SetDefault("download.timeout", "")
	v.SetDefault("download.progress_throttle", "1s")
	v.SetDefault("download.resume_on_incomplete", true)
	v.SetDefault("download.resume_on_incomplete_max_retry", 5)
	v.SetDefault("download.resume_if_file_exists", false)
	v.SetDefault("download.max_redirects", 10)
	v.SetDefault("download.buffer_size_kb", 64)
	v.SetDefault("retry.enabled", false)
	v.SetDefault("retry.max_retries", 3)
	v.SetDefault("retry.delay", "3s")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("journal.enabled", true)
	v.SetDefault("journal.path", "")
	v.SetDefault("journal.max_age", "720h")
	v.SetDefault("pipes.zstd", "")
	v.SetDefault("pipes.mirror_bucket", "")
	v.SetDefault("pipes.mirror_key", "")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Download.DestDir == "" {
		return fmt.Errorf("download.dest_dir is required")
	}
	if c.Download.Method == "" {
		return fmt.Errorf("download.method is required")
	}
	if c.Download.Timeout != "" {
		if _, err := time.ParseDuration(c.Download.Timeout); err != nil {
			return fmt.Errorf("invalid download.timeout: %w", err)
		}
	}
	if _, err := time.ParseDuration(c.Download.ProgressThrottle); err != nil {
		return fmt.Errorf("invalid download.progress_throttle: %w", err)
	}
	if c.Download.ResumeOnIncompleteMaxRetry < 0 {
		return fmt.Errorf("download.resume_on_incomplete_max_retry must not be negative")
	}
	if c.Download.MaxRedirects < 0 {
		return fmt.Errorf("download.max_redirects must not be negative")
	}
	if c.Download.SkipSmaller && !c.Download.SkipExisting {
		return fmt.Errorf("download.skip_smaller requires download.skip_existing")
	}

	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries must not be negative")
	}
	if _, err := time.ParseDuration(c.Retry.Delay); err != nil {
		return fmt.Errorf("invalid retry.delay: %w", err)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		// Valid levels
	default:
		return fmt.Errorf("invalid logging.level: %s", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "json", "text":
		// Valid formats
	default:
		return fmt.Errorf("invalid logging.format: %s", c.Logging.Format)
	}

	if _, err := time.ParseDuration(c.Journal.MaxAge); err != nil {
		return fmt.Errorf("invalid journal.max_age: %w", err)
	}

	if c.Pipes.MirrorKey != "" && c.Pipes.MirrorBucket == "" {
		return fmt.Errorf("pipes.mirror_key requires pipes.mirror_bucket")
	}

	return nil
}

// GetTimeout returns the inactivity timeout, zero when disabled
func (c *DownloadConfig) GetTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Timeout)
	return d
}

// GetProgressThrottle returns the throttled progress interval
func (c *DownloadConfig) GetProgressThrottle() time.Duration {
	d, _ := time.ParseDuration(c.ProgressThrottle)
	if d == 0 {
		return time.Second
	}
	return d
}

// GetBufferSize returns the sink buffer size in bytes
func (c *DownloadConfig) GetBufferSize() int {
	if c.BufferSizeKB <= 0 {
		return 64 * 1024
	}
	return c.BufferSizeKB * 1024
}

// GetDelay returns the retry delay as time.Duration
func (c *RetryConfig) GetDelay() time.Duration {
	d, _ := time.ParseDuration(c.Delay)
	return d
}

// GetPath returns the journal database path, defaulting to the user cache dir
func (c *JournalConfig) GetPath() string {
	if c.Path != "" {
		return c.Path
	}
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "dlhelper", "journal.db")
}

// GetMaxAge returns the journal entry lifetime
func (c *JournalConfig) GetMaxAge() time.Duration {
	d, _ := time.ParseDuration(c.MaxAge)
	return d
}
