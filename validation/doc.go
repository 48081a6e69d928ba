// Package validation checks flow and source configuration.
//
// It supports both struct tag validation (using the validator library) and
// programmatic validation with error collection. Tag validation covers the
// shape of a config struct; programmatic checks cover rules that span fields.
//
// # Struct Tag Validation
//
//	type Config struct {
//	    Target    string `mapstructure:"target" validate:"required"`
//	    SortOrder string `mapstructure:"sort_order" validate:"sortorder"`
//	}
//	err := validation.Validate(cfg)
//
// # Programmatic Validation
//
//	v := validation.New()
//	v.Placeholders("selection", cfg.Selection, len(cfg.SelectionArgs))
//	if appErr := v.Validate(); appErr != nil { ... }
package validation
