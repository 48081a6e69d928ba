package kafkanotify

import (
	"time"

	"github.com/kbukum/queryflow/validation"
)

// Config holds the settings of a Kafka change feed.
type Config struct {
	// Brokers is the list of Kafka broker addresses.
	Brokers []string `yaml:"brokers" mapstructure:"brokers" validate:"required,min=1"`

	// Topic carries one message per changed target.
	Topic string `yaml:"topic" mapstructure:"topic" validate:"required"`

	// GroupID is the consumer group. Without one every partition is read
	// from StartOffset.
	GroupID string `yaml:"group_id" mapstructure:"group_id"`

	// StartOffset is "first" or "last".
	StartOffset string `yaml:"start_offset" mapstructure:"start_offset" validate:"omitempty,oneof=first last"`

	// MaxWait is the longest a fetch waits for new data.
	MaxWait time.Duration `yaml:"max_wait" mapstructure:"max_wait" validate:"gte=0"`

	// ReadAttempts is the number of consecutive failed reads before Run
	// gives up.
	ReadAttempts int `yaml:"read_attempts" mapstructure:"read_attempts" validate:"gte=0"`

	// InitialBackoff is the delay after the first failed read.
	InitialBackoff time.Duration `yaml:"initial_backoff" mapstructure:"initial_backoff" validate:"gte=0"`

	// MaxBackoff caps the delay between failed reads.
	MaxBackoff time.Duration `yaml:"max_backoff" mapstructure:"max_backoff" validate:"gte=0"`
}

// ApplyDefaults sets defaults for zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.StartOffset == "" {
		c.StartOffset = "last"
	}
	if c.MaxWait <= 0 {
		c.MaxWait = 500 * time.Millisecond
	}
	if c.ReadAttempts <= 0 {
		c.ReadAttempts = 5
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 30 * time.Second
	}
}

// Validate checks the struct tags and the backoff bounds.
func (c *Config) Validate() error {
	if err := validation.Validate(c); err != nil {
		return err
	}
	v := validation.New().
		Custom(c.InitialBackoff <= c.MaxBackoff, "initial_backoff", "must not exceed max_backoff")
	if appErr := v.Validate(); appErr != nil {
		return appErr
	}
	return nil
}
