package homie

import "errors"

// Use errors.Is() to check for these errors.
var (
	// ErrInvalidIdentifier is returned for ids that are not topic-safe.
	ErrInvalidIdentifier = errors.New("homie: invalid identifier")

	// ErrInvalidConfiguration is returned when a property or node description
	// breaks the data type rules at construction time.
	ErrInvalidConfiguration = errors.New("homie: invalid configuration")

	// ErrInvalidOperation is returned when a call is not allowed in the current
	// role, property type or lifecycle phase.
	ErrInvalidOperation = errors.New("homie: invalid operation")

	// ErrInvalidValue is returned when a value is outside the property's domain.
	ErrInvalidValue = errors.New("homie: invalid value")
)
