package flow

import (
	"time"

	"github.com/kbukum/queryflow/config"
	"github.com/kbukum/queryflow/source"
	"github.com/kbukum/queryflow/validation"
)

// Config describes a flow in a config file.
//
//	flows:
//	  - name: open-orders
//	    target: orders
//	    selection: "status = ?"
//	    selection_args: [open]
//	    sort_order: "created_at DESC"
//	    throttle_window: 500ms
type Config struct {
	Name                 string        `yaml:"name" mapstructure:"name"`
	Target               string        `yaml:"target" mapstructure:"target" validate:"required"`
	Projection           []string      `yaml:"projection" mapstructure:"projection"`
	Selection            string        `yaml:"selection" mapstructure:"selection"`
	SelectionArgs        []any         `yaml:"selection_args" mapstructure:"selection_args"`
	SortOrder            string        `yaml:"sort_order" mapstructure:"sort_order" validate:"sortorder"`
	NotifyForDescendants *bool         `yaml:"notify_for_descendants" mapstructure:"notify_for_descendants"`
	ThrottleWindow       time.Duration `yaml:"throttle_window" mapstructure:"throttle_window" validate:"gte=0"`
	// Unthrottled publishes every distinct result immediately.
	Unthrottled bool `yaml:"unthrottled" mapstructure:"unthrottled"`
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.Name == "" {
		c.Name = c.Target
	}
	if c.NotifyForDescendants == nil {
		on := true
		c.NotifyForDescendants = &on
	}
	if c.Unthrottled {
		c.ThrottleWindow = 0
	} else if c.ThrottleWindow == 0 {
		c.ThrottleWindow = DefaultThrottleWindow
	}
}

// Validate checks the struct tags and the query placeholders.
func (c *Config) Validate() error {
	if err := validation.Validate(c); err != nil {
		return err
	}
	return c.Query().Validate()
}

// Query returns the source query the config describes.
func (c *Config) Query() source.Query {
	return source.Query{
		Target:        c.Target,
		Projection:    c.Projection,
		Selection:     c.Selection,
		SelectionArgs: c.SelectionArgs,
		SortOrder:     c.SortOrder,
	}
}

// Options returns the flow options the config describes.
func (c *Config) Options() []Option {
	opts := []Option{
		WithName(c.Name),
		WithThrottleWindow(c.ThrottleWindow),
	}
	if c.NotifyForDescendants != nil {
		opts = append(opts, WithNotifyForDescendants(*c.NotifyForDescendants))
	}
	return opts
}

// NewFromConfig applies defaults to cfg, validates it and starts a flow.
// Options given here override the ones derived from cfg.
func NewFromConfig[T any](src source.Source, cfg Config, transform Transform[T], opts ...Option) (*Flow[T], error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return New(src, cfg.Query(), transform, append(cfg.Options(), opts...)...)
}

// Settings is the config file layout of a process hosting flows.
type Settings struct {
	config.ServiceConfig `yaml:",inline" mapstructure:",squash"`
	Flows                []Config `yaml:"flows" mapstructure:"flows"`
}

// ApplyDefaults applies service and flow defaults.
func (s *Settings) ApplyDefaults() {
	s.ServiceConfig.ApplyDefaults()
	for i := range s.Flows {
		s.Flows[i].ApplyDefaults()
	}
}

// Validate validates the service config and every flow.
func (s *Settings) Validate() error {
	if err := s.ServiceConfig.Validate(); err != nil {
		return err
	}
	seen := make(map[string]bool, len(s.Flows))
	v := validation.New()
	for i := range s.Flows {
		if err := s.Flows[i].Validate(); err != nil {
			return err
		}
		name := s.Flows[i].Name
		v.Custom(!seen[name], "flows", "duplicate flow name "+name)
		seen[name] = true
	}
	if appErr := v.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

// Flow returns the flow config with the given name.
func (s *Settings) Flow(name string) (Config, bool) {
	for _, c := range s.Flows {
		if c.Name == name {
			return c, true
		}
	}
	return Config{}, false
}

// LoadSettings loads Settings for serviceName with the config loader, then
// applies defaults and validates.
func LoadSettings(serviceName string, opts ...config.LoaderOption) (*Settings, error) {
	var s Settings
	if err := config.LoadConfig(serviceName, &s, opts...); err != nil {
		return nil, err
	}
	s.ApplyDefaults()
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}
