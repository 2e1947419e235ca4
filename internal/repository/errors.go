package repository

import "errors"

// ErrStateChanged is returned when a conditional write matched no rows because
// another request moved the record first.
var ErrStateChanged = errors.New("mfa state changed concurrently")
