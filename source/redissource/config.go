package redissource

import (
	"strings"
	"time"

	"github.com/kbukum/queryflow/validation"
)

// Config holds Redis connection and key layout settings.
type Config struct {
	// Addr is the Redis server address (host:port).
	Addr string `yaml:"addr" mapstructure:"addr" validate:"required"`

	// Password is the Redis server password.
	Password string `yaml:"password" mapstructure:"password"`

	// DB is the Redis database number.
	DB int `yaml:"db" mapstructure:"db" validate:"gte=0"`

	// Prefix namespaces row keys: "<prefix>:<target>:<id>".
	Prefix string `yaml:"prefix" mapstructure:"prefix"`

	// Channel is the pub/sub channel carrying changed targets.
	// Defaults to "<prefix>:changes".
	Channel string `yaml:"channel" mapstructure:"channel"`

	// KeyColumn names the column holding the id part of each row key.
	KeyColumn string `yaml:"key_column" mapstructure:"key_column"`

	// PoolSize is the maximum number of socket connections.
	PoolSize int `yaml:"pool_size" mapstructure:"pool_size" validate:"gte=0"`

	// MaxRetries is the number of command retries; -1 disables retries.
	MaxRetries int `yaml:"max_retries" mapstructure:"max_retries" validate:"gte=-1"`

	// ConnectAttempts is the number of attempts to reach the server on Open.
	ConnectAttempts int `yaml:"connect_attempts" mapstructure:"connect_attempts" validate:"gte=0"`

	// DialTimeout is the timeout for establishing new connections.
	DialTimeout time.Duration `yaml:"dial_timeout" mapstructure:"dial_timeout" validate:"gte=0"`

	// ReadTimeout is the timeout for socket reads.
	ReadTimeout time.Duration `yaml:"read_timeout" mapstructure:"read_timeout" validate:"gte=0"`

	// WriteTimeout is the timeout for socket writes.
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout" validate:"gte=0"`

	// ScanCount is the COUNT hint passed to SCAN.
	ScanCount int64 `yaml:"scan_count" mapstructure:"scan_count" validate:"gte=0"`
}

// ApplyDefaults sets defaults for zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.Prefix == "" {
		c.Prefix = "queryflow"
	}
	if c.Channel == "" {
		c.Channel = c.Prefix + ":changes"
	}
	if c.KeyColumn == "" {
		c.KeyColumn = "id"
	}
	if c.PoolSize <= 0 {
		c.PoolSize = 10
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.ConnectAttempts <= 0 {
		c.ConnectAttempts = 3
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 3 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 3 * time.Second
	}
	if c.ScanCount <= 0 {
		c.ScanCount = 100
	}
}

// Validate checks the struct tags and the key layout.
func (c *Config) Validate() error {
	if err := validation.Validate(c); err != nil {
		return err
	}
	v := validation.New().
		Custom(segment.MatchString(c.Prefix), "prefix", "must be letters, digits, '_', '-' or '.'").
		Custom(c.KeyColumn != "" && !strings.ContainsAny(c.KeyColumn, " ,") && validation.IsSortOrder(c.KeyColumn), "key_column", "must be a column name")
	if appErr := v.Validate(); appErr != nil {
		return appErr
	}
	return nil
}
