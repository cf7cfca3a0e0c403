package service

import "errors"

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailTaken         = errors.New("email already registered")
	ErrEmailNotVerified   = errors.New("email not verified")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrNoPendingLogin     = errors.New("no login awaiting a second factor")
	ErrOTPNotEnrolled     = errors.New("two-factor authentication is not set up")
	ErrTooManyRequests    = errors.New("too many requests")
	ErrNotFound           = errors.New("not found")
	ErrForbidden          = errors.New("forbidden")

	ErrNotActivityHost = errors.New("only the host can change this activity")
	ErrHostCannotJoin  = errors.New("hosts cannot join their own activity")
	ErrAlreadyJoined   = errors.New("already joined")
	ErrActivityFull    = errors.New("activity is full")
	ErrActivityPast    = errors.New("activity has already taken place")
	ErrNotJoined       = errors.New("not a participant")
	ErrNotPostAuthor   = errors.New("only the author can change this post")
)
