package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Auth     AuthConfig     `mapstructure:"auth" validate:"required"`
	Task     TaskConfig     `mapstructure:"task" validate:"required"`
	Batch    BatchConfig    `mapstructure:"batch" validate:"required"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig selects the persistence backend.
// The memory driver keeps everything in-process and is intended for local runs and tests.
type DatabaseConfig struct {
	Driver       string `mapstructure:"driver" validate:"required,oneof=postgres memory"`
	URL          string `mapstructure:"url" validate:"required_if=Driver postgres,omitempty,url"`
	MaxOpenConns int    `mapstructure:"max_open_conns" validate:"gte=1"`
}

// AuthConfig contains token lifetime and cookie settings.
type AuthConfig struct {
	TokenTTLHours              int    `mapstructure:"token_ttl_hours" validate:"gt=0"`
	CookieName                 string `mapstructure:"cookie_name" validate:"required"`
	CookieSecure               bool   `mapstructure:"cookie_secure"`
	BCryptCost                 int    `mapstructure:"bcrypt_cost" validate:"gte=4,lte=31"`
	ExpirySweepIntervalMinutes int    `mapstructure:"expiry_sweep_interval_minutes" validate:"gte=0"`
}

// TokenTTL returns the configured token lifetime.
func (c AuthConfig) TokenTTL() time.Duration {
	return time.Duration(c.TokenTTLHours) * time.Hour
}

// ExpirySweepInterval returns the sweep period; zero disables the sweeper.
func (c AuthConfig) ExpirySweepInterval() time.Duration {
	return time.Duration(c.ExpirySweepIntervalMinutes) * time.Minute
}

// TaskConfig configures the asynchronous worker pool.
type TaskConfig struct {
	WorkerCount               int    `mapstructure:"worker_count" validate:"gt=0"`
	QueueSize                 int    `mapstructure:"queue_size" validate:"gt=0"`
	QueueDriver               string `mapstructure:"queue_driver" validate:"required,oneof=memory redis"`
	MaxAttempts               int    `mapstructure:"max_attempts" validate:"gte=1,lte=10"`
	RetryDelaySeconds         int    `mapstructure:"retry_delay_seconds" validate:"gte=0"`
	ItemDelayMs               int    `mapstructure:"item_delay_ms" validate:"gte=0"`
	TaskTimeoutSeconds        int    `mapstructure:"task_timeout_seconds" validate:"gt=0"`
	StuckTaskAgeMinutes       int    `mapstructure:"stuck_task_age_minutes" validate:"gt=0"`
	StuckCheckIntervalMinutes int    `mapstructure:"stuck_check_interval_minutes" validate:"gte=0"`
}

// BatchConfig configures bulk-upload submission.
type BatchConfig struct {
	InvalidRowPolicy string `mapstructure:"invalid_row_policy" validate:"required,oneof=skip record"`
	MaxRows          int    `mapstructure:"max_rows" validate:"gt=0"`
}

// RedisConfig is only consulted when task.queue_driver is redis.
type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db" validate:"gte=0"`
	QueueName string `mapstructure:"queue_name"`
	DLQSuffix string `mapstructure:"dlq_suffix"`
}
