package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"buddiesfinder/internal/hashing"
	"buddiesfinder/internal/mail"
	"buddiesfinder/internal/metrics"
	"buddiesfinder/internal/models"
	"buddiesfinder/internal/security"
	"buddiesfinder/internal/util"
)

type RegisterInput struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

// LoginResult is the outcome of a successful first factor. Session holds
// either an authenticated snapshot or, when a code is still owed, a pending
// one.
type LoginResult struct {
	Account              *models.Account
	Session              security.Snapshot
	RequiresSecondFactor bool
}

// ResetPolicy bounds password reset requests and tokens.
type ResetPolicy struct {
	TokenTTL      time.Duration
	RequestLimit  int
	RequestWindow time.Duration
}

type AuthDeps struct {
	Accounts AccountStore
	Ledger   security.FailureLedger
	Resets   PasswordResetStore
	Guard    *security.Guard
	Hasher   PasswordHasher
	Tokens   EmailTokens
	OTP      OTPProvider
	Mailer   mail.Mailer
	Composer mail.Composer
	Limiter  RateLimiter
	Search   UserSearcher
	Audit    EventRecorder
	Reset    ResetPolicy
	Logger   *zap.Logger
}

// AuthService drives registration, login and credential changes on top of
// the guard.
type AuthService struct {
	accounts AccountStore
	ledger   security.FailureLedger
	resets   PasswordResetStore
	guard    *security.Guard
	hasher   PasswordHasher
	tokens   EmailTokens
	otp      OTPProvider
	mailer   mail.Mailer
	composer mail.Composer
	limiter  RateLimiter
	search   UserSearcher
	audit    EventRecorder
	reset    ResetPolicy
	now      func() time.Time
	logger   *zap.Logger
}

func NewAuthService(d AuthDeps) *AuthService {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Reset.TokenTTL <= 0 {
		d.Reset.TokenTTL = time.Hour
	}
	return &AuthService{
		accounts: d.Accounts,
		ledger:   d.Ledger,
		resets:   d.Resets,
		guard:    d.Guard,
		hasher:   d.Hasher,
		tokens:   d.Tokens,
		otp:      d.OTP,
		mailer:   d.Mailer,
		composer: d.Composer,
		limiter:  d.Limiter,
		search:   d.Search,
		audit:    d.Audit,
		reset:    d.Reset,
		now:      time.Now,
		logger:   d.Logger,
	}
}

func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*models.Account, error) {
	startTime := time.Now()

	name, err := cleanText("name", in.Name, 1, 50)
	if err != nil {
		return nil, err
	}
	email, err := cleanEmail(in.Email)
	if err != nil {
		return nil, err
	}
	if err := checkPassword(in.Password, in.ConfirmPassword); err != nil {
		return nil, err
	}

	hash, err := s.hasher.HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	account := &models.Account{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         models.RoleUser,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, models.ErrDuplicateRecord) {
			metrics.RegistrationsTotal.WithLabelValues("duplicate").Inc()
			return nil, ErrEmailTaken
		}
		metrics.RegistrationsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to create account: %w", err)
	}
	metrics.RegistrationsTotal.WithLabelValues("success").Inc()

	if err := s.search.IndexUser(ctx, models.UserSummary{ID: account.ID, Name: account.Name}); err != nil {
		s.logger.Warn("Failed to index user", util.Int64("user_id", account.ID), util.ErrorField(err))
	}
	s.sendVerification(ctx, account)

	s.logger.Info("Account registered",
		util.Int64("user_id", account.ID),
		util.Duration("duration", time.Since(startTime)),
	)
	return account, nil
}

func (s *AuthService) sendVerification(ctx context.Context, account *models.Account) {
	token, err := s.tokens.Issue(account.Email)
	if err != nil {
		s.logger.Error("Failed to issue verification token", util.Int64("user_id", account.ID), util.ErrorField(err))
		return
	}
	if err := s.mailer.Send(ctx, s.composer.Verification(account.Email, account.Name, token)); err != nil {
		s.logger.Error("Failed to send verification mail", util.Int64("user_id", account.ID), util.ErrorField(err))
	}
}

func (s *AuthService) VerifyEmail(ctx context.Context, token string) error {
	email, err := s.tokens.Verify(token)
	if err != nil {
		return ErrInvalidToken
	}
	n, err := s.accounts.MarkEmailVerified(ctx, email)
	if err != nil {
		return fmt.Errorf("failed to verify email: %w", err)
	}
	if n == 0 {
		return ErrInvalidToken
	}
	s.logger.Info("Email verified")
	return nil
}

// Login runs the password factor. Accounts with two-factor enabled get a
// pending snapshot instead of a session.
func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = util.NormalizeEmail(email)

	account, err := s.guard.Authenticate(ctx, email, password)
	if err != nil {
		return nil, s.credentialFailure(ctx, err, security.FactorPassword, 0, email)
	}
	metrics.AuthAttemptsTotal.WithLabelValues(string(security.FactorPassword), "success").Inc()

	if !account.EmailVerified {
		return nil, ErrEmailNotVerified
	}

	s.upgradeHash(ctx, account, password)

	if account.OTPEnabled && account.HasOTPSecret() {
		s.logger.Info("Second factor required", util.Int64("user_id", account.ID))
		return &LoginResult{
			Account:              account,
			Session:              security.NewPendingSnapshot(account.ID),
			RequiresSecondFactor: true,
		}, nil
	}

	snap, err := s.startSession(ctx, account)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Account: account, Session: snap}, nil
}

// CompleteSecondFactor finishes a pending login with a TOTP code.
func (s *AuthService) CompleteSecondFactor(ctx context.Context, pendingAccountID int64, code string) (*LoginResult, error) {
	if pendingAccountID == 0 {
		return nil, ErrNoPendingLogin
	}
	account, err := s.accounts.FindByID(ctx, pendingAccountID)
	if err != nil {
		if errors.Is(err, models.ErrRecordNotFound) {
			return nil, ErrNoPendingLogin
		}
		return nil, fmt.Errorf("failed to load account: %w", err)
	}

	if err := s.guard.VerifySecondFactor(ctx, account, code); err != nil {
		return nil, s.credentialFailure(ctx, err, security.FactorOTP, account.ID, account.Email)
	}
	metrics.AuthAttemptsTotal.WithLabelValues(string(security.FactorOTP), "success").Inc()

	snap, err := s.startSession(ctx, account)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Account: account, Session: snap}, nil
}

func (s *AuthService) startSession(ctx context.Context, account *models.Account) (security.Snapshot, error) {
	token, err := s.guard.IssueSession(ctx, account)
	if err != nil {
		return security.Snapshot{}, fmt.Errorf("failed to issue session: %w", err)
	}
	s.audit.Record(ctx, models.SecurityEvent{EventType: models.EventLoginSucceeded, UserID: account.ID, Email: account.Email})
	return security.NewAuthenticatedSnapshot(account, token, s.now()), nil
}

// credentialFailure audits the specific reason and hands callers the
// generic error with the reason still wrapped.
func (s *AuthService) credentialFailure(ctx context.Context, err error, factor security.Factor, userID int64, email string) error {
	if !security.IsCredentialFailure(err) {
		return fmt.Errorf("credential check failed: %w", err)
	}

	reason := security.FailureReason(err)
	metrics.AuthAttemptsTotal.WithLabelValues(string(factor), reason).Inc()

	eventType := models.EventLoginFailed
	if factor == security.FactorOTP {
		eventType = models.EventSecondFactorFailed
	}
	s.audit.Record(ctx, models.SecurityEvent{
		EventType: eventType,
		UserID:    userID,
		Email:     email,
		Reason:    reason,
		Factor:    string(factor),
	})
	return fmt.Errorf("%w: %w", ErrInvalidCredentials, err)
}

func (s *AuthService) upgradeHash(ctx context.Context, account *models.Account, password string) {
	if !s.hasher.NeedsRehash(account.PasswordHash) {
		return
	}
	hash, err := s.hasher.HashPassword(password)
	if err != nil {
		s.logger.Warn("Failed to rehash password", util.Int64("user_id", account.ID), util.ErrorField(err))
		return
	}
	if _, err := s.accounts.UpdatePasswordHash(ctx, account.ID, hash); err != nil {
		s.logger.Warn("Failed to store upgraded password hash", util.Int64("user_id", account.ID), util.ErrorField(err))
		return
	}
	account.PasswordHash = hash
	s.logger.Info("Password hash upgraded", util.Int64("user_id", account.ID))
}

func (s *AuthService) Logout(ctx context.Context, accountID int64) error {
	if err := s.guard.RevokeSession(ctx, accountID); err != nil {
		return err
	}
	s.audit.Record(ctx, models.SecurityEvent{EventType: models.EventSessionRevoked, UserID: accountID, Reason: "logout"})
	return nil
}

// BeginOTPEnrollment stores a fresh secret and returns what the
// authenticator app needs. The factor stays off until confirmed.
func (s *AuthService) BeginOTPEnrollment(ctx context.Context, accountID int64) (*security.Enrollment, error) {
	account, err := findAccount(ctx, s.accounts, accountID)
	if err != nil {
		return nil, err
	}
	enrollment, err := s.otp.Enroll(account.Email)
	if err != nil {
		return nil, err
	}
	if _, err := s.accounts.SetOTPSecret(ctx, account.ID, &enrollment.Secret); err != nil {
		return nil, fmt.Errorf("failed to store otp secret: %w", err)
	}
	s.logger.Info("OTP enrollment started", util.Int64("user_id", account.ID))
	return enrollment, nil
}

// ConfirmOTPEnrollment turns the factor on once a code from the new secret
// checks out. Wrong codes count toward the lockout like any other factor.
func (s *AuthService) ConfirmOTPEnrollment(ctx context.Context, accountID int64, code string) error {
	account, err := findAccount(ctx, s.accounts, accountID)
	if err != nil {
		return err
	}
	if !account.HasOTPSecret() {
		return ErrOTPNotEnrolled
	}
	if err := s.guard.VerifySecondFactor(ctx, account, code); err != nil {
		return s.credentialFailure(ctx, err, security.FactorOTP, account.ID, account.Email)
	}
	if _, err := s.accounts.SetOTPEnabled(ctx, account.ID, true); err != nil {
		return fmt.Errorf("failed to enable otp: %w", err)
	}
	s.audit.Record(ctx, models.SecurityEvent{EventType: models.EventOTPEnabled, UserID: account.ID})
	return nil
}

func (s *AuthService) DisableOTP(ctx context.Context, accountID int64) error {
	n, err := s.accounts.SetOTPSecret(ctx, accountID, nil)
	if err != nil {
		return fmt.Errorf("failed to disable otp: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	s.audit.Record(ctx, models.SecurityEvent{EventType: models.EventOTPDisabled, UserID: accountID})
	return nil
}

// RequestPasswordReset mails a single-use reset link. Unknown addresses get
// the same answer as known ones.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	email = util.NormalizeEmail(email)
	if email == "" {
		return invalid("email is required")
	}

	if s.limiter != nil && s.reset.RequestLimit > 0 {
		allowed, _, err := s.limiter.SlidingWindowRateLimit(ctx, "password_reset:"+hashing.HashToken(email), s.reset.RequestLimit, s.reset.RequestWindow)
		if err != nil {
			s.logger.Warn("Reset throttle unavailable", util.ErrorField(err))
		} else if !allowed {
			return ErrTooManyRequests
		}
	}

	account, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrRecordNotFound) {
			s.logger.Info("Password reset requested for unknown email")
			return nil
		}
		return fmt.Errorf("failed to load account: %w", err)
	}

	token, err := hashing.NewToken(32)
	if err != nil {
		return err
	}
	reset := &models.PasswordReset{
		UserID:    account.ID,
		TokenHash: hashing.HashToken(token),
		ExpiresAt: s.now().Add(s.reset.TokenTTL).UTC(),
		CreatedAt: s.now().UTC(),
	}
	if err := s.resets.Create(ctx, reset); err != nil {
		return fmt.Errorf("failed to store reset token: %w", err)
	}
	if err := s.mailer.Send(ctx, s.composer.PasswordReset(account.Email, account.Name, token)); err != nil {
		s.logger.Error("Failed to send reset mail", util.Int64("user_id", account.ID), util.ErrorField(err))
	}
	return nil
}

// ResetPassword consumes a reset token, replaces the password, ends the
// current session and lifts any lockout.
func (s *AuthService) ResetPassword(ctx context.Context, token, password, confirm string) error {
	if err := checkPassword(password, confirm); err != nil {
		return err
	}

	reset, err := s.resets.FindByTokenHash(ctx, hashing.HashToken(token))
	if err != nil {
		if errors.Is(err, models.ErrRecordNotFound) {
			return ErrInvalidToken
		}
		return fmt.Errorf("failed to load reset token: %w", err)
	}
	if reset.Used || !s.now().Before(reset.ExpiresAt) {
		return ErrInvalidToken
	}
	n, err := s.resets.MarkUsed(ctx, reset.ID)
	if err != nil {
		return fmt.Errorf("failed to consume reset token: %w", err)
	}
	if n == 0 {
		return ErrInvalidToken
	}

	hash, err := s.hasher.HashPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if _, err := s.accounts.UpdatePasswordHash(ctx, reset.UserID, hash); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	if err := s.resets.InvalidateForUser(ctx, reset.UserID); err != nil {
		s.logger.Warn("Failed to invalidate other reset tokens", util.Int64("user_id", reset.UserID), util.ErrorField(err))
	}
	if err := s.guard.RevokeSession(ctx, reset.UserID); err != nil {
		return err
	}
	if err := s.ledger.DeleteAll(ctx, reset.UserID); err != nil {
		return fmt.Errorf("failed to clear failures: %w", err)
	}
	if _, err := s.accounts.UpdateLockedUntil(ctx, reset.UserID, nil); err != nil {
		return fmt.Errorf("failed to clear lock: %w", err)
	}

	s.audit.Record(ctx, models.SecurityEvent{EventType: models.EventPasswordReset, UserID: reset.UserID})
	return nil
}
