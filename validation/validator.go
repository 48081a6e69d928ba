package validation

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/kbukum/queryflow/errors"
)

// Validator collects validation errors.
type Validator struct {
	errors []FieldError
}

// FieldError represents a validation error for a specific field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// New creates a new Validator.
func New() *Validator {
	return &Validator{
		errors: make([]FieldError, 0),
	}
}

// AddError adds a field error.
func (v *Validator) AddError(field, message string) {
	v.errors = append(v.errors, FieldError{
		Field:   field,
		Message: message,
	})
}

// HasErrors returns true if there are validation errors.
func (v *Validator) HasErrors() bool {
	return len(v.errors) > 0
}

// Errors returns all validation errors.
func (v *Validator) Errors() []FieldError {
	return v.errors
}

// Validate returns an AppError if there are validation errors, nil otherwise.
func (v *Validator) Validate() *errors.AppError {
	if !v.HasErrors() {
		return nil
	}

	messages := make([]string, len(v.errors))
	for i, e := range v.errors {
		messages[i] = fmt.Sprintf("%s: %s", e.Field, e.Message)
	}

	appErr := errors.Validation(strings.Join(messages, "; "))
	appErr.Details = map[string]any{
		"fields": v.errors,
	}

	return appErr
}

// Required checks if a string is non-empty.
func (v *Validator) Required(field, value string) *Validator {
	if strings.TrimSpace(value) == "" {
		v.AddError(field, "is required")
	}
	return v
}

// NonNegative checks that a duration is zero or positive.
func (v *Validator) NonNegative(field string, d time.Duration) *Validator {
	if d < 0 {
		v.AddError(field, "must not be negative")
	}
	return v
}

// Positive checks that a duration is greater than zero.
func (v *Validator) Positive(field string, d time.Duration) *Validator {
	if d <= 0 {
		v.AddError(field, "must be greater than zero")
	}
	return v
}

// SortOrder checks that a non-empty value is a list of "column [ASC|DESC]" terms.
func (v *Validator) SortOrder(field, value string) *Validator {
	if value != "" && !IsSortOrder(value) {
		v.AddError(field, "must be a comma separated list of \"column [ASC|DESC]\"")
	}
	return v
}

// Placeholders checks that query has exactly one "?" per argument.
func (v *Validator) Placeholders(field, query string, args int) *Validator {
	if n := strings.Count(query, "?"); n != args {
		v.AddError(field, fmt.Sprintf("has %d placeholders but %d arguments", n, args))
	}
	return v
}

// OneOf checks if a value is one of the allowed values.
func (v *Validator) OneOf(field, value string, allowed []string) *Validator {
	if value == "" {
		return v
	}
	for _, a := range allowed {
		if value == a {
			return v
		}
	}
	v.AddError(field, fmt.Sprintf("must be one of: %s", strings.Join(allowed, ", ")))
	return v
}

// Custom applies a custom validation condition.
func (v *Validator) Custom(condition bool, field, message string) *Validator {
	if !condition {
		v.AddError(field, message)
	}
	return v
}

// Required validates a single required field and returns an error if empty.
func Required(field, value string) error {
	v := New().Required(field, value)
	if appErr := v.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

var sortOrderPattern = regexp.MustCompile(
	`^\s*[A-Za-z_][A-Za-z0-9_.]*(\s+(?i:asc|desc))?\s*(,\s*[A-Za-z_][A-Za-z0-9_.]*(\s+(?i:asc|desc))?\s*)*$`)

// IsSortOrder reports whether s is a list of "column [ASC|DESC]" terms.
func IsSortOrder(s string) bool {
	return sortOrderPattern.MatchString(s)
}
