package service

import (
	"fmt"
	"net/mail"
	"strings"
	"unicode/utf8"

	"buddiesfinder/internal/util"
)

const (
	passwordMinLength = 8
	passwordMaxLength = 255
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// cleanText sanitizes s and checks its length in characters.
func cleanText(field, s string, minLen, maxLen int) (string, error) {
	s = util.SanitizeInput(s)
	n := utf8.RuneCountInString(s)
	if n < minLen || n > maxLen {
		if minLen <= 1 {
			return "", invalid("%s must be at most %d characters", field, maxLen)
		}
		return "", invalid("%s must be between %d and %d characters", field, minLen, maxLen)
	}
	if util.ContainsSuspicious(s) {
		return "", invalid("%s contains unsupported content", field)
	}
	return s, nil
}

func cleanEmail(s string) (string, error) {
	email := util.NormalizeEmail(s)
	if email == "" || len(email) > 254 {
		return "", invalid("enter a valid email")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", invalid("enter a valid email")
	}
	return email, nil
}

func checkPassword(password, confirm string) error {
	n := utf8.RuneCountInString(password)
	if n < passwordMinLength || n > passwordMaxLength {
		return invalid("password must be between %d and %d characters", passwordMinLength, passwordMaxLength)
	}
	if password != confirm {
		return invalid("passwords must match")
	}
	return nil
}

// cleanImagePath accepts an optional relative path to an uploaded image.
func cleanImagePath(p *string) (*string, error) {
	if p == nil {
		return nil, nil
	}
	v := strings.TrimSpace(*p)
	if v == "" {
		return nil, nil
	}
	if len(v) > 255 || strings.Contains(v, "..") || strings.HasPrefix(v, "/") || strings.ContainsAny(v, "\\<>\"") {
		return nil, invalid("image path is not allowed")
	}
	return &v, nil
}
