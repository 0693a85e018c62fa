// Package common defines shared sentinel errors used across the
// attendance sync layers. Callers should use errors.Is to match them.
package common

import "errors"

// Programmer errors: these indicate a coding defect, not a runtime
// condition, and are returned to the caller instead of being absorbed.
var (
	ErrUnknownCollection = errors.New("unknown collection")
	ErrInvalidQuery      = errors.New("invalid query")
	ErrInvalidPath       = errors.New("invalid path")
)
