package models

import (
	"errors"
	"time"
)

var (
	// ErrRecordNotFound is returned by stores when a lookup matches no row.
	ErrRecordNotFound  = errors.New("record not found")
	ErrDuplicateRecord = errors.New("duplicate record")
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Account is a row of the users table. OTPSecret holds the plaintext secret
// once loaded; the store seals it at rest.
type Account struct {
	ID            int64      `gorm:"column:id;primaryKey" json:"id"`
	Name          string     `gorm:"column:name" json:"name"`
	Email         string     `gorm:"column:email;uniqueIndex" json:"email"`
	PasswordHash  string     `gorm:"column:password_hash" json:"-"`
	Role          Role       `gorm:"column:role" json:"role"`
	LockedUntil   *time.Time `gorm:"column:locked_until" json:"-"`
	OTPSecret     *string    `gorm:"column:otp_secret" json:"-"`
	OTPEnabled    bool       `gorm:"column:otp_enabled" json:"otp_enabled"`
	SessionToken  *string    `gorm:"column:session_token" json:"-"`
	EmailVerified bool       `gorm:"column:email_verified" json:"email_verified"`
	CreatedAt     time.Time  `gorm:"column:created_at" json:"created_at"`
}

func (Account) TableName() string { return "users" }

func (a *Account) IsAdmin() bool { return a.Role == RoleAdmin }

func (a *Account) HasOTPSecret() bool {
	return a.OTPSecret != nil && *a.OTPSecret != ""
}

// UserSummary is the public projection used in listings and search results.
type UserSummary struct {
	ID   int64  `gorm:"column:id" json:"id"`
	Name string `gorm:"column:name" json:"name"`
}

// FailedLogin is one entry of the append-only failure ledger.
type FailedLogin struct {
	ID          int64     `gorm:"column:id;primaryKey"`
	UserID      int64     `gorm:"column:user_id"`
	AttemptedAt time.Time `gorm:"column:attempted_at"`
}

func (FailedLogin) TableName() string { return "user_failed_login" }

type PasswordReset struct {
	ID        int64     `gorm:"column:id;primaryKey"`
	UserID    int64     `gorm:"column:user_id"`
	TokenHash string    `gorm:"column:token_hash"`
	ExpiresAt time.Time `gorm:"column:expires_at"`
	Used      bool      `gorm:"column:used"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (PasswordReset) TableName() string { return "reset_password" }
