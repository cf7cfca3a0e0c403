package security

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownAccount    = errors.New("unknown account")
	ErrBadPassword       = errors.New("bad password")
	ErrBadSecondFactor   = errors.New("bad second factor")
	ErrAccountLocked     = errors.New("account locked")
	ErrSessionExpired    = errors.New("session expired")
	ErrSessionSuperseded = errors.New("session superseded")
	ErrOTPNotEnrolled    = errors.New("second factor not enrolled")
)

type ExpiryKind string

const (
	ExpiryIdle     ExpiryKind = "idle"
	ExpiryAbsolute ExpiryKind = "absolute"
)

// SessionExpiredError carries which timeout fired. It matches ErrSessionExpired
// under errors.Is.
type SessionExpiredError struct {
	Kind ExpiryKind
}

func (e *SessionExpiredError) Error() string {
	return fmt.Sprintf("session expired (%s)", e.Kind)
}

func (e *SessionExpiredError) Unwrap() error { return ErrSessionExpired }

// IsCredentialFailure reports whether err is one of the rejections that must
// reach the user only as "invalid credentials".
func IsCredentialFailure(err error) bool {
	return errors.Is(err, ErrUnknownAccount) ||
		errors.Is(err, ErrBadPassword) ||
		errors.Is(err, ErrBadSecondFactor) ||
		errors.Is(err, ErrAccountLocked) ||
		errors.Is(err, ErrOTPNotEnrolled)
}

// FailureReason is the log/audit label for a credential failure.
func FailureReason(err error) string {
	switch {
	case errors.Is(err, ErrUnknownAccount):
		return "unknown_account"
	case errors.Is(err, ErrBadPassword):
		return "bad_password"
	case errors.Is(err, ErrBadSecondFactor):
		return "bad_second_factor"
	case errors.Is(err, ErrAccountLocked):
		return "account_locked"
	case errors.Is(err, ErrOTPNotEnrolled):
		return "otp_not_enrolled"
	default:
		return "error"
	}
}
