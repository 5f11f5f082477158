package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrConfig is returned when a ladder configuration is rejected.
	ErrConfig = errors.New("invalid ladder config")

	// ErrValidation is returned for bad runtime input such as a non-positive
	// reference price or an unknown level id. State is never partially mutated.
	ErrValidation = errors.New("validation failed")

	// ErrEmptyData is returned when a backtest is given no bars.
	ErrEmptyData = errors.New("empty bar sequence")

	// ErrOrdering is returned when bar timestamps are not strictly ascending.
	ErrOrdering = errors.New("bars out of order")
)

// ConfigError names the offending field and the constraint it violates.
type ConfigError struct {
	Field      string
	Constraint string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid ladder config: %s must be %s", e.Field, e.Constraint)
}

func (e *ConfigError) Unwrap() error { return ErrConfig }
