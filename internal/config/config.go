package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config represents the entire application configuration
type Config struct {
	Charts    ChartsConfig    `mapstructure:"charts"`
	Download  DownloadConfig  `mapstructure:"download"`
	Transport TransportConfig `mapstructure:"transport"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
}

// ChartsConfig contains chart storage settings
type ChartsConfig struct {
	RootDir string `mapstructure:"root_dir"`
}

// DownloadConfig contains download orchestration settings
type DownloadConfig struct {
	MaxAttempts         int    `mapstructure:"max_attempts"`
	RetryBackoff        string `mapstructure:"retry_backoff"`
	RetryMaxBackoff     string `mapstructure:"retry_max_backoff"`
	MaxDiskUsagePercent int    `mapstructure:"max_disk_usage_percent"`
	MinFreeMB           int    `mapstructure:"min_free_mb"`
	ProgressInterval    string `mapstructure:"progress_interval"`
	StalePartialMaxAge  string `mapstructure:"stale_partial_max_age"`
}

// TransportConfig contains HTTP transport settings for chart servers
type TransportConfig struct {
	ConnectTimeout    string `mapstructure:"connect_timeout"`
	ReceiveTimeout    string `mapstructure:"receive_timeout"`
	SendTimeout       string `mapstructure:"send_timeout"`
	RequestsPerSecond int    `mapstructure:"requests_per_second"` // 0 disables throttling
	Burst             int    `mapstructure:"burst"`
}

// HTTPConfig contains API server configuration
type HTTPConfig struct {
	BindAddr      string `mapstructure:"bind_addr"`
	AdminUsername string `mapstructure:"admin_username"`
	AdminPassword string `mapstructure:"admin_password"`
	ReadTimeout   string `mapstructure:"read_timeout"`
	WriteTimeout  string `mapstructure:"write_timeout"`
	IdleTimeout   string `mapstructure:"idle_timeout"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// Load loads configuration from the specified file path
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	// Set defaults
	viper.SetDefault("charts.root_dir", "/var/lib/chartfetch")
	viper.SetDefault("download.max_attempts", 5)
	viper.SetDefault("download.retry_backoff", "1s")
	viper.SetDefault("download.retry_max_backoff", "30s")
	viper.SetDefault("download.max_disk_usage_percent", 90)
	viper.SetDefault("download.min_free_mb", 512)
	viper.SetDefault("download.progress_interval", "10s")
	viper.SetDefault("download.stale_partial_max_age", "168h")
	viper.SetDefault("transport.connect_timeout", "30s")
	viper.SetDefault("transport.receive_timeout", "10m")
	viper.SetDefault("transport.send_timeout", "5m")
	viper.SetDefault("transport.requests_per_second", 0)
	viper.SetDefault("transport.burst", 1)
	viper.SetDefault("http.bind_addr", "0.0.0.0:8080")
	viper.SetDefault("http.admin_username", "admin")
	viper.SetDefault("http.admin_password", "")
	viper.SetDefault("http.read_timeout", "30s")
	viper.SetDefault("http.write_timeout", "30s")
	viper.SetDefault("http.idle_timeout", "60s")
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("database.path", "")

	// Read config file
	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Charts.RootDir == "" {
		return fmt.Errorf("charts.root_dir is required")
	}

	if c.Download.MaxAttempts < 1 {
		return fmt.Errorf("download.max_attempts must be at least 1")
	}
	if c.Download.MaxDiskUsagePercent <= 0 || c.Download.MaxDiskUsagePercent > 100 {
		return fmt.Errorf("download.max_disk_usage_percent must be between 1 and 100")
	}
	if _, err := time.ParseDuration(c.Download.RetryBackoff); err != nil {
		return fmt.Errorf("invalid download.retry_backoff: %w", err)
	}
	if _, err := time.ParseDuration(c.Download.RetryMaxBackoff); err != nil {
		return fmt.Errorf("invalid download.retry_max_backoff: %w", err)
	}

	if c.Transport.RequestsPerSecond < 0 {
		return fmt.Errorf("transport.requests_per_second must not be negative")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		// Valid levels
	default:
		return fmt.Errorf("invalid logging.level: %s", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "json", "console":
		// Valid formats
	default:
		return fmt.Errorf("invalid logging.format: %s", c.Logging.Format)
	}

	return nil
}

// GetRetryBackoff returns the initial retry backoff as time.Duration
func (c *DownloadConfig) GetRetryBackoff() time.Duration {
	d, _ := time.ParseDuration(c.RetryBackoff)
	if d == 0 {
		return time.Second
	}
	return d
}

// GetRetryMaxBackoff returns the backoff ceiling as time.Duration
func (c *DownloadConfig) GetRetryMaxBackoff() time.Duration {
	d, _ := time.ParseDuration(c.RetryMaxBackoff)
	if d == 0 {
		return 30 * time.Second
	}
	return d
}

// GetProgressInterval returns the progress log interval as time.Duration
func (c *DownloadConfig) GetProgressInterval() time.Duration {
	d, _ := time.ParseDuration(c.ProgressInterval)
	if d == 0 {
		return 10 * time.Second
	}
	return d
}

// GetStalePartialMaxAge returns the stale partial file age threshold
func (c *DownloadConfig) GetStalePartialMaxAge() time.Duration {
	d, _ := time.ParseDuration(c.StalePartialMaxAge)
	if d == 0 {
		return 7 * 24 * time.Hour
	}
	return d
}

// GetMinFreeBytes returns the free-space floor in bytes
func (c *DownloadConfig) GetMinFreeBytes() int64 {
	if c.MinFreeMB <= 0 {
		return 512 * 1024 * 1024
	}
	return int64(c.MinFreeMB) * 1024 * 1024
}

// GetConnectTimeout returns the dial timeout as time.Duration
func (c *TransportConfig) GetConnectTimeout() time.Duration {
	d, _ := time.ParseDuration(c.ConnectTimeout)
	if d == 0 {
		return 30 * time.Second
	}
	return d
}

// GetReceiveTimeout returns the receive timeout as time.Duration
func (c *TransportConfig) GetReceiveTimeout() time.Duration {
	d, _ := time.ParseDuration(c.ReceiveTimeout)
	if d == 0 {
		return 10 * time.Minute
	}
	return d
}

// GetSendTimeout returns the send timeout as time.Duration
func (c *TransportConfig) GetSendTimeout() time.Duration {
	d, _ := time.ParseDuration(c.SendTimeout)
	if d == 0 {
		return 5 * time.Minute
	}
	return d
}

// GetReadTimeout returns the server read timeout as time.Duration
func (c *HTTPConfig) GetReadTimeout() time.Duration {
	d, _ := time.ParseDuration(c.ReadTimeout)
	if d == 0 {
		return 30 * time.Second
	}
	return d
}

// GetWriteTimeout returns the server write timeout as time.Duration
func (c *HTTPConfig) GetWriteTimeout() time.Duration {
	d, _ := time.ParseDuration(c.WriteTimeout)
	if d == 0 {
		return 30 * time.Second
	}
	return d
}

// GetIdleTimeout returns the server idle timeout as time.Duration
func (c *HTTPConfig) GetIdleTimeout() time.Duration {
	d, _ := time.ParseDuration(c.IdleTimeout)
	if d == 0 {
		return 60 * time.Second
	}
	return d
}
