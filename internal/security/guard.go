package security

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"buddiesfinder/internal/models"
)

type Factor string

const (
	FactorPassword Factor = "password"
	FactorOTP      Factor = "otp"
)

// AccountStore is the slice of the credential store the guard and gate need.
// Update methods return the number of rows affected.
type AccountStore interface {
	FindByEmail(ctx context.Context, email string) (*models.Account, error)
	FindByID(ctx context.Context, id int64) (*models.Account, error)
	UpdateLockedUntil(ctx context.Context, id int64, until *time.Time) (int64, error)
	UpdateSessionToken(ctx context.Context, id int64, token *string) (int64, error)
	CurrentSessionToken(ctx context.Context, id int64) (string, error)
}

// FailureLedger is the append-only record of failed credential checks.
type FailureLedger interface {
	Insert(ctx context.Context, accountID int64, at time.Time) error
	CountSince(ctx context.Context, accountID int64, since time.Time) (int, error)
	DeleteAll(ctx context.Context, accountID int64) error
}

type PasswordVerifier interface {
	VerifyPassword(password, encodedHash string) bool
}

type CodeValidator interface {
	Validate(code, secret string, at time.Time) bool
}

// LockHook is called after a lock has been written for an account.
type LockHook func(ctx context.Context, account *models.Account, factor Factor, until time.Time)

type Guard struct {
	accounts  AccountStore
	ledger    FailureLedger
	passwords PasswordVerifier
	codes     CodeValidator
	policy    Policy
	now       func() time.Time
	onLock    LockHook
	logger    *zap.Logger
}

func NewGuard(accounts AccountStore, ledger FailureLedger, passwords PasswordVerifier, codes CodeValidator, policy Policy, logger *zap.Logger) *Guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Guard{
		accounts:  accounts,
		ledger:    ledger,
		passwords: passwords,
		codes:     codes,
		policy:    policy.withDefaults(),
		now:       time.Now,
		logger:    logger,
	}
}

// WithClock replaces the time source.
func (g *Guard) WithClock(now func() time.Time) *Guard {
	g.now = now
	return g
}

func (g *Guard) OnLock(hook LockHook) *Guard {
	g.onLock = hook
	return g
}

func (g *Guard) Policy() Policy { return g.policy }

// Authenticate checks an email/password pair. A locked account is rejected
// before the password is looked at.
func (g *Guard) Authenticate(ctx context.Context, email, password string) (*models.Account, error) {
	now := g.now()

	account, err := g.accounts.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrRecordNotFound) {
			g.logger.Warn("authentication rejected",
				zap.String("reason", "unknown_account"),
				zap.String("email", email),
			)
			return nil, ErrUnknownAccount
		}
		return nil, fmt.Errorf("lookup account: %w", err)
	}

	if g.IsLocked(account, now) {
		g.logger.Warn("authentication rejected",
			zap.String("reason", "account_locked"),
			zap.Int64("account_id", account.ID),
			zap.Time("locked_until", account.LockedUntil.In(LockZone)),
		)
		return nil, ErrAccountLocked
	}

	if !g.passwords.VerifyPassword(password, account.PasswordHash) {
		g.logger.Warn("authentication rejected",
			zap.String("reason", "bad_password"),
			zap.Int64("account_id", account.ID),
		)
		if err := g.recordAndMaybeLock(ctx, account, FactorPassword, now); err != nil {
			return nil, err
		}
		return nil, ErrBadPassword
	}

	if err := g.clearFailures(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}

// VerifySecondFactor checks a TOTP code against the account's secret under the
// same lockout rules as the password factor. A nil error means the code was
// accepted.
func (g *Guard) VerifySecondFactor(ctx context.Context, account *models.Account, code string) error {
	now := g.now()

	if !account.HasOTPSecret() {
		g.logger.Warn("second factor rejected",
			zap.String("reason", "otp_not_enrolled"),
			zap.Int64("account_id", account.ID),
		)
		return ErrOTPNotEnrolled
	}

	if g.IsLocked(account, now) {
		g.logger.Warn("second factor rejected",
			zap.String("reason", "account_locked"),
			zap.Int64("account_id", account.ID),
			zap.Time("locked_until", account.LockedUntil.In(LockZone)),
		)
		return ErrAccountLocked
	}

	if !g.codes.Validate(code, *account.OTPSecret, now) {
		g.logger.Warn("second factor rejected",
			zap.String("reason", "bad_second_factor"),
			zap.Int64("account_id", account.ID),
		)
		if err := g.recordAndMaybeLock(ctx, account, FactorOTP, now); err != nil {
			return err
		}
		return ErrBadSecondFactor
	}

	return g.clearFailures(ctx, account)
}

// IssueSession stores a fresh random token as the account's only valid
// session token and returns it.
func (g *Guard) IssueSession(ctx context.Context, account *models.Account) (string, error) {
	token, err := newSessionToken()
	if err != nil {
		return "", err
	}

	n, err := g.accounts.UpdateSessionToken(ctx, account.ID, &token)
	if err != nil {
		return "", fmt.Errorf("store session token: %w", err)
	}
	if n == 0 {
		return "", ErrUnknownAccount
	}

	account.SessionToken = &token
	g.logger.Info("session issued", zap.Int64("account_id", account.ID))
	return token, nil
}

func (g *Guard) RevokeSession(ctx context.Context, accountID int64) error {
	if _, err := g.accounts.UpdateSessionToken(ctx, accountID, nil); err != nil {
		return fmt.Errorf("clear session token: %w", err)
	}
	g.logger.Info("session revoked", zap.Int64("account_id", accountID))
	return nil
}

// IsLocked compares the lock deadline with now in the fixed lock zone.
func (g *Guard) IsLocked(account *models.Account, now time.Time) bool {
	if account.LockedUntil == nil {
		return false
	}
	return now.In(LockZone).Before(account.LockedUntil.In(LockZone))
}

// recordAndMaybeLock appends a failure and locks the account once the
// trailing window holds the threshold. The count and the lock write are not
// atomic; concurrent failures may both stay under the threshold.
func (g *Guard) recordAndMaybeLock(ctx context.Context, account *models.Account, factor Factor, now time.Time) error {
	if err := g.ledger.Insert(ctx, account.ID, now); err != nil {
		return fmt.Errorf("record %s failure: %w", factor, err)
	}

	count, err := g.ledger.CountSince(ctx, account.ID, now.Add(-g.policy.FailureWindow))
	if err != nil {
		return fmt.Errorf("count %s failures: %w", factor, err)
	}
	if count < g.policy.FailureThreshold {
		return nil
	}

	until := now.Add(g.policy.LockDuration).In(LockZone)
	if _, err := g.accounts.UpdateLockedUntil(ctx, account.ID, &until); err != nil {
		return fmt.Errorf("lock account: %w", err)
	}
	account.LockedUntil = &until

	g.logger.Warn("account locked",
		zap.Int64("account_id", account.ID),
		zap.String("factor", string(factor)),
		zap.Int("failures", count),
		zap.Time("locked_until", until),
	)
	if g.onLock != nil {
		g.onLock(ctx, account, factor, until)
	}
	return nil
}

func (g *Guard) clearFailures(ctx context.Context, account *models.Account) error {
	if err := g.ledger.DeleteAll(ctx, account.ID); err != nil {
		return fmt.Errorf("clear failures: %w", err)
	}
	if _, err := g.accounts.UpdateLockedUntil(ctx, account.ID, nil); err != nil {
		return fmt.Errorf("clear lock: %w", err)
	}
	account.LockedUntil = nil
	return nil
}

func newSessionToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
