package service

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrAlreadyEnabled    = errors.New("two-factor authentication is already enabled")
	ErrNotEnabled        = errors.New("two-factor authentication is not enabled")
	ErrNotPending        = errors.New("no pending two-factor setup")
	ErrInvalidCredential = errors.New("incorrect password")
	ErrInvalidCode       = errors.New("invalid verification code")
	ErrRateLimited       = errors.New("too many attempts")
	ErrIdentityTimeout   = errors.New("identity service timed out")
	ErrMFANotConfigured  = errors.New("mfa not configured")
)

// RateLimitedError carries how long the caller has to wait. It matches
// ErrRateLimited under errors.Is.
type RateLimitedError struct {
	Operation  string
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("%s: retry after %d seconds", ErrRateLimited.Error(), e.RetryAfterSeconds())
}

func (e *RateLimitedError) Is(target error) bool {
	return target == ErrRateLimited
}

// RetryAfterSeconds rounds up and never reports less than one second.
func (e *RateLimitedError) RetryAfterSeconds() int64 {
	seconds := int64(math.Ceil(e.RetryAfter.Seconds()))
	if seconds < 1 {
		return 1
	}
	return seconds
}
