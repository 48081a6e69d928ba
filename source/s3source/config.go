package s3source

import (
	"time"

	"github.com/kbukum/queryflow/validation"
)

// Config holds the S3 connection settings of a listing querier.
type Config struct {
	// Bucket is the S3 bucket name.
	Bucket string `yaml:"bucket" mapstructure:"bucket" validate:"required"`

	// Region is the AWS region.
	Region string `yaml:"region" mapstructure:"region"`

	// Endpoint is a custom S3-compatible endpoint (e.g. MinIO).
	Endpoint string `yaml:"endpoint" mapstructure:"endpoint" validate:"omitempty,url"`

	// ForcePathStyle addresses the bucket in the path instead of the host.
	ForcePathStyle bool `yaml:"force_path_style" mapstructure:"force_path_style"`

	// AccessKey is the AWS access key ID.
	AccessKey string `yaml:"access_key" mapstructure:"access_key"`

	// SecretKey is the AWS secret access key.
	SecretKey string `yaml:"secret_key" mapstructure:"secret_key"`

	// PageSize is the MaxKeys of each ListObjectsV2 call.
	PageSize int32 `yaml:"page_size" mapstructure:"page_size" validate:"gte=0,lte=1000"`

	// MaxAttempts is the number of SDK attempts per request.
	MaxAttempts int `yaml:"max_attempts" mapstructure:"max_attempts" validate:"gte=0"`

	// BreakerFailures is the number of failed listings that open the circuit.
	BreakerFailures int `yaml:"breaker_failures" mapstructure:"breaker_failures" validate:"gte=0"`

	// BreakerTimeout is how long the circuit stays open.
	BreakerTimeout time.Duration `yaml:"breaker_timeout" mapstructure:"breaker_timeout" validate:"gte=0"`
}

// ApplyDefaults sets defaults for zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.Region == "" {
		c.Region = "us-east-1"
	}
	if c.PageSize <= 0 {
		c.PageSize = 1000
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BreakerFailures <= 0 {
		c.BreakerFailures = 5
	}
	if c.BreakerTimeout <= 0 {
		c.BreakerTimeout = 30 * time.Second
	}
}

// Validate checks the struct tags and the credential pair.
func (c *Config) Validate() error {
	if err := validation.Validate(c); err != nil {
		return err
	}
	v := validation.New().
		Custom((c.AccessKey == "") == (c.SecretKey == ""), "secret_key", "access_key and secret_key must be set together")
	if appErr := v.Validate(); appErr != nil {
		return appErr
	}
	return nil
}
