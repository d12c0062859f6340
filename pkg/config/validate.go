package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the configuration for structural and semantic errors.
// Struct tags cover the field-level rules; cross-field checks follow.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		if errs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range errs {
				return fmt.Errorf("field %s failed validation rule %q", fe.Namespace(), fe.Tag())
			}
		}
		return err
	}

	if err := cfg.Database.Validate(); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if cfg.Ingest.MinSequence < 0 {
		return fmt.Errorf("ingest: min_sequence must not be negative")
	}
	if cfg.Ingest.StartSequence < 0 {
		return fmt.Errorf("ingest: start_sequence must not be negative")
	}
	if cfg.Ingest.StartSequence > 0 && cfg.Ingest.StartSequence < cfg.Ingest.MinSequence {
		return fmt.Errorf("ingest: start_sequence %d is below min_sequence %d",
			cfg.Ingest.StartSequence, cfg.Ingest.MinSequence)
	}
	if cfg.Loader.RetentionDays < 0 {
		return fmt.Errorf("loader: retention_days must not be negative")
	}

	return nil
}
