package backoff

import "errors"

// Policy validation errors.
var (
	ErrInvalidBase     = errors.New("backoff base must be positive")
	ErrInvalidCap      = errors.New("backoff cap must not be below base")
	ErrInvalidAttempts = errors.New("backoff max attempts must not be negative")
)
