package store

import "errors"

// ErrNil is returned when a key, field or member does not exist.
var ErrNil = errors.New("store: nil")
