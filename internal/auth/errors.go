package auth

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned by Store implementations for missing rows.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates the username or password is incorrect.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrWeakPassword indicates a new password failed the minimum-length check.
	ErrWeakPassword = errors.New("password too weak")
	// ErrAccountLocked indicates the account is in a lockout window.
	ErrAccountLocked = errors.New("account locked")
	// ErrAccountSuspended indicates a live suspension blocks the account.
	ErrAccountSuspended = errors.New("account suspended")
	// ErrAccountInactive indicates a terminal non-suspension inactive state.
	ErrAccountInactive = errors.New("account inactive")
	// ErrInvalidToken indicates the presented refresh secret matches no token.
	ErrInvalidToken = errors.New("invalid refresh token")
	// ErrExpiredToken indicates the refresh token expired and was discarded.
	ErrExpiredToken = errors.New("refresh token expired")
	// ErrReuseDetected indicates a replayed refresh token; the whole family
	// has been revoked.
	ErrReuseDetected = errors.New("refresh token reuse detected")
	// ErrInvalidAccessToken indicates a malformed, mis-signed or expired
	// access token.
	ErrInvalidAccessToken = errors.New("invalid access token")
)

// LockedError carries the remaining lockout window.
type LockedError struct {
	RetryAfter time.Duration
}

func (e *LockedError) Error() string {
	mins := int(e.RetryAfter.Minutes())
	if mins < 1 {
		mins = 1
	}
	return fmt.Sprintf("account locked, try again in %d minute(s)", mins)
}

// Unwrap exposes ErrAccountLocked for errors.Is comparisons.
func (e *LockedError) Unwrap() error { return ErrAccountLocked }

// SuspendedError carries the suspension reason shown to the caller.
type SuspendedError struct {
	Reason string
	Until  *time.Time // nil means permanent
}

func (e *SuspendedError) Error() string {
	if e.Reason == "" {
		return ErrAccountSuspended.Error()
	}
	return e.Reason
}

// Unwrap exposes ErrAccountSuspended for errors.Is comparisons.
func (e *SuspendedError) Unwrap() error { return ErrAccountSuspended }
