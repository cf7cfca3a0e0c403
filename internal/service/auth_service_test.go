package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"buddiesfinder/internal/models"
	"buddiesfinder/internal/security"
)

const password = "correct horse"

func TestRegisterValidatesInput(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	cases := map[string]RegisterInput{
		"empty name":        {Name: " ", Email: "a@example.com", Password: password, ConfirmPassword: password},
		"long name":         {Name: strings.Repeat("n", 51), Email: "a@example.com", Password: password, ConfirmPassword: password},
		"bad email":         {Name: "A", Email: "not-an-email", Password: password, ConfirmPassword: password},
		"short password":    {Name: "A", Email: "a@example.com", Password: "short", ConfirmPassword: "short"},
		"mismatched":        {Name: "A", Email: "a@example.com", Password: password, ConfirmPassword: password + "!"},
		"script in name":    {Name: "<script>x</script>", Email: "a@example.com", Password: password, ConfirmPassword: password},
		"email with a name": {Name: "A", Email: "A <a@example.com>", Password: password, ConfirmPassword: password},
	}
	for name, in := range cases {
		in := in
		t.Run(name, func(t *testing.T) {
			_, err := h.auth.Register(ctx, in)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestRegisterVerifyAndLogin(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	account, err := h.auth.Register(ctx, RegisterInput{Name: "Alice", Email: " Alice@Example.com ", Password: password, ConfirmPassword: password})
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", account.Email)
	assert.Equal(t, models.RoleUser, account.Role)
	assert.True(t, strings.HasPrefix(account.PasswordHash, "$argon2id$"))

	_, err = h.auth.Register(ctx, RegisterInput{Name: "Alice 2", Email: "alice@example.com", Password: password, ConfirmPassword: password})
	assert.ErrorIs(t, err, ErrEmailTaken)

	_, err = h.auth.Login(ctx, "alice@example.com", password)
	assert.ErrorIs(t, err, ErrEmailNotVerified)

	msg := h.mailer.last(t)
	assert.Equal(t, "email_verification", msg.Kind)
	require.NoError(t, h.auth.VerifyEmail(ctx, linkToken(t, msg)))
	assert.ErrorIs(t, h.auth.VerifyEmail(ctx, "garbage"), ErrInvalidToken)

	res, err := h.auth.Login(ctx, "ALICE@example.com", password)
	require.NoError(t, err)
	assert.False(t, res.RequiresSecondFactor)
	assert.True(t, res.Session.Authenticated())
	assert.NotEmpty(t, res.Session.SessionToken)
	assert.Len(t, h.audit.ofType(models.EventLoginSucceeded), 1)
}

func TestLoginFailuresAreGenericButAudited(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.verifiedAccount(t, "Alice", "alice@example.com", password)

	_, err := h.auth.Login(ctx, "alice@example.com", "wrong password")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	assert.ErrorIs(t, err, security.ErrBadPassword)

	_, err = h.auth.Login(ctx, "nobody@example.com", password)
	require.ErrorIs(t, err, ErrInvalidCredentials)
	assert.ErrorIs(t, err, security.ErrUnknownAccount)

	failed := h.audit.ofType(models.EventLoginFailed)
	require.Len(t, failed, 2)
	assert.Equal(t, "bad_password", failed[0].Reason)
	assert.Equal(t, "unknown_account", failed[1].Reason)
	assert.Equal(t, "nobody@example.com", failed[1].Email)
}

func TestSecondLoginSupersedesFirstSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.verifiedAccount(t, "Alice", "alice@example.com", password)

	first, err := h.auth.Login(ctx, "alice@example.com", password)
	require.NoError(t, err)
	h.now = h.now.Add(time.Minute)
	second, err := h.auth.Login(ctx, "alice@example.com", password)
	require.NoError(t, err)

	_, outcome, err := h.gate.Check(ctx, first.Session, h.now)
	require.NoError(t, err)
	assert.Equal(t, security.OutcomeSuperseded, outcome)

	_, outcome, err = h.gate.Check(ctx, second.Session, h.now)
	require.NoError(t, err)
	assert.Equal(t, security.OutcomeActive, outcome)

	require.NoError(t, h.auth.Logout(ctx, second.Account.ID))
	_, outcome, err = h.gate.Check(ctx, second.Session, h.now)
	require.NoError(t, err)
	assert.Equal(t, security.OutcomeSuperseded, outcome)
	assert.Len(t, h.audit.ofType(models.EventSessionRevoked), 1)
}

func enableOTP(t *testing.T, h *harness, accountID int64) string {
	t.Helper()
	ctx := context.Background()
	enrollment, err := h.auth.BeginOTPEnrollment(ctx, accountID)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(enrollment.QRCode, "data:image/png;base64,"))
	assert.Contains(t, enrollment.URI, "issuer=BuddiesFinders")
	require.NoError(t, h.auth.ConfirmOTPEnrollment(ctx, accountID, h.code(t, enrollment.Secret)))
	return enrollment.Secret
}

func TestLoginWithSecondFactor(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	account := h.verifiedAccount(t, "Alice", "alice@example.com", password)
	secret := enableOTP(t, h, account.ID)
	assert.Len(t, h.audit.ofType(models.EventOTPEnabled), 1)

	res, err := h.auth.Login(ctx, "alice@example.com", password)
	require.NoError(t, err)
	require.True(t, res.RequiresSecondFactor)
	assert.False(t, res.Session.Authenticated())
	assert.Equal(t, account.ID, res.Session.PendingAccountID)

	_, err = h.auth.CompleteSecondFactor(ctx, 0, "123456")
	assert.ErrorIs(t, err, ErrNoPendingLogin)

	_, err = h.auth.CompleteSecondFactor(ctx, account.ID, "000000")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	assert.ErrorIs(t, err, security.ErrBadSecondFactor)
	require.Len(t, h.audit.ofType(models.EventSecondFactorFailed), 1)

	done, err := h.auth.CompleteSecondFactor(ctx, account.ID, h.code(t, secret))
	require.NoError(t, err)
	assert.True(t, done.Session.Authenticated())
}

func TestConfirmOTPRequiresEnrollment(t *testing.T) {
	h := newHarness(t)
	account := h.verifiedAccount(t, "Alice", "alice@example.com", password)
	assert.ErrorIs(t, h.auth.ConfirmOTPEnrollment(context.Background(), account.ID, "123456"), ErrOTPNotEnrolled)
}

func TestDisableOTPRestoresSingleFactorLogin(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	account := h.verifiedAccount(t, "Alice", "alice@example.com", password)
	enableOTP(t, h, account.ID)

	require.NoError(t, h.auth.DisableOTP(ctx, account.ID))
	res, err := h.auth.Login(ctx, "alice@example.com", password)
	require.NoError(t, err)
	assert.False(t, res.RequiresSecondFactor)
	assert.ErrorIs(t, h.auth.DisableOTP(ctx, 9999), ErrNotFound)
}

func TestSecondFactorFailuresLockPasswordLogin(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	account := h.verifiedAccount(t, "Alice", "alice@example.com", password)
	enableOTP(t, h, account.ID)

	_, err := h.auth.Login(ctx, "alice@example.com", password)
	require.NoError(t, err)
	for i := 0; i < security.DefaultFailureThreshold; i++ {
		_, err = h.auth.CompleteSecondFactor(ctx, account.ID, "000000")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	}

	_, err = h.auth.Login(ctx, "alice@example.com", password)
	require.ErrorIs(t, err, ErrInvalidCredentials)
	assert.ErrorIs(t, err, security.ErrAccountLocked)

	h.now = h.now.Add(security.DefaultLockDuration + time.Second)
	_, err = h.auth.Login(ctx, "alice@example.com", password)
	assert.NoError(t, err)
}

func TestLegacyBcryptHashIsUpgraded(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	legacy, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	require.NoError(t, h.accounts.Create(ctx, &models.Account{
		Name: "Old", Email: "old@example.com", PasswordHash: string(legacy), Role: models.RoleUser, EmailVerified: true,
	}))

	_, err = h.auth.Login(ctx, "old@example.com", password)
	require.NoError(t, err)

	stored, err := h.accounts.FindByEmail(ctx, "old@example.com")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stored.PasswordHash, "$argon2id$"))
	_, err = h.auth.Login(ctx, "old@example.com", password)
	assert.NoError(t, err)
}

func TestPasswordResetFlow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	account := h.verifiedAccount(t, "Alice", "alice@example.com", password)

	old, err := h.auth.Login(ctx, "alice@example.com", password)
	require.NoError(t, err)
	for i := 0; i < security.DefaultFailureThreshold; i++ {
		_, _ = h.auth.Login(ctx, "alice@example.com", "wrong password")
	}
	_, err = h.auth.Login(ctx, "alice@example.com", password)
	require.ErrorIs(t, err, security.ErrAccountLocked)

	require.NoError(t, h.auth.RequestPasswordReset(ctx, "Alice@example.com"))
	msg := h.mailer.last(t)
	require.Equal(t, "password_reset", msg.Kind)
	token := linkToken(t, msg)

	assert.ErrorIs(t, h.auth.ResetPassword(ctx, token, "new password 1", "mismatch"), ErrInvalidInput)
	require.NoError(t, h.auth.ResetPassword(ctx, token, "new password 1", "new password 1"))
	assert.ErrorIs(t, h.auth.ResetPassword(ctx, token, "new password 2", "new password 2"), ErrInvalidToken)

	_, outcome, err := h.gate.Check(ctx, old.Session, h.now)
	require.NoError(t, err)
	assert.Equal(t, security.OutcomeSuperseded, outcome)

	_, err = h.auth.Login(ctx, "alice@example.com", password)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = h.auth.Login(ctx, "alice@example.com", "new password 1")
	require.NoError(t, err, "lockout is lifted by a reset")

	events := h.audit.ofType(models.EventPasswordReset)
	require.Len(t, events, 1)
	assert.Equal(t, account.ID, events[0].UserID)
}

func TestPasswordResetTokenExpires(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.verifiedAccount(t, "Alice", "alice@example.com", password)

	require.NoError(t, h.auth.RequestPasswordReset(ctx, "alice@example.com"))
	token := linkToken(t, h.mailer.last(t))

	h.now = h.now.Add(61 * time.Minute)
	assert.ErrorIs(t, h.auth.ResetPassword(ctx, token, "new password 1", "new password 1"), ErrInvalidToken)
}

func TestPasswordResetUnknownEmailAndThrottle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.verifiedAccount(t, "Alice", "alice@example.com", password)
	sent := len(h.mailer.messages)

	require.NoError(t, h.auth.RequestPasswordReset(ctx, "nobody@example.com"))
	assert.Len(t, h.mailer.messages, sent, "no mail for unknown addresses")

	h.limiter.allow = false
	assert.ErrorIs(t, h.auth.RequestPasswordReset(ctx, "alice@example.com"), ErrTooManyRequests)
	require.NotEmpty(t, h.limiter.keys)
	assert.NotContains(t, h.limiter.keys[0], "alice", "throttle keys do not carry the address")
}
