package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate checks a Config for structural correctness using struct tags.
// Call it after ApplyDefaults so zero-value fields that have acquired a
// default no longer trip "required" rules.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			return fmt.Errorf("%s", formatValidationErrors(verrs))
		}
		return err
	}
	return nil
}

// formatValidationErrors renders validator.ValidationErrors as a single
// human-readable message, one entry per field joined with "; ".
func formatValidationErrors(errs validator.ValidationErrors) string {
	msg := ""
	for i, e := range errs {
		if i > 0 {
			msg += "; "
		}
		msg += fmt.Sprintf("%s failed on %q", e.Namespace(), e.Tag())
	}
	return msg
}
