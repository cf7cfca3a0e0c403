package tokens

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const purposeEmailVerify = "email-verify"

var ErrInvalidToken = errors.New("invalid or expired token")

type emailClaims struct {
	Purpose string `json:"purpose"`
	jwt.RegisteredClaims
}

// EmailTokens signs and checks email verification links.
type EmailTokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewEmailTokens(secret string, ttl time.Duration) *EmailTokens {
	return &EmailTokens{secret: []byte(secret), ttl: ttl, now: time.Now}
}

func (t *EmailTokens) Issue(email string) (string, error) {
	now := t.now()
	claims := emailClaims{
		Purpose: purposeEmailVerify,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign email token: %w", err)
	}
	return signed, nil
}

// Verify returns the email address a valid token was issued for.
func (t *EmailTokens) Verify(token string) (string, error) {
	claims := &emailClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid {
		return "", ErrInvalidToken
	}
	if claims.Purpose != purposeEmailVerify || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}
