package filesource

import (
	"unicode/utf8"

	"github.com/kbukum/queryflow/validation"
)

// Config holds the settings of a CSV file source.
type Config struct {
	// Root is the directory targets are resolved against.
	Root string `yaml:"root" mapstructure:"root" validate:"required"`

	// Comma is the field delimiter. Defaults to ",".
	Comma string `yaml:"comma" mapstructure:"comma"`

	// Comment, if set, marks lines to skip when it is their first character.
	Comment string `yaml:"comment" mapstructure:"comment"`

	// TrimLeadingSpace ignores leading white space in a field.
	TrimLeadingSpace bool `yaml:"trim_leading_space" mapstructure:"trim_leading_space"`
}

// ApplyDefaults sets defaults for zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.Comma == "" {
		c.Comma = ","
	}
}

// Validate checks the struct tags and the delimiters.
func (c *Config) Validate() error {
	if err := validation.Validate(c); err != nil {
		return err
	}
	v := validation.New().
		Custom(utf8.RuneCountInString(c.Comma) == 1, "comma", "must be a single character").
		Custom(c.Comment == "" || utf8.RuneCountInString(c.Comment) == 1, "comment", "must be a single character").
		Custom(c.Comment == "" || c.Comment != c.Comma, "comment", "must differ from comma")
	if appErr := v.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

func firstRune(s string) rune {
	r, _ := utf8.DecodeRuneInString(s)
	return r
}
