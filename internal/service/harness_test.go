package service

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"buddiesfinder/internal/encryption"
	"buddiesfinder/internal/hashing"
	"buddiesfinder/internal/mail"
	"buddiesfinder/internal/models"
	"buddiesfinder/internal/repository/postgres"
	"buddiesfinder/internal/search"
	"buddiesfinder/internal/security"
	"buddiesfinder/internal/tokens"
)

// 17:00 in UTC+8.
var baseTime = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

type captureMailer struct {
	mu       sync.Mutex
	messages []mail.Message
}

func (m *captureMailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	return nil
}

func (m *captureMailer) last(t *testing.T) mail.Message {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.messages)
	return m.messages[len(m.messages)-1]
}

// linkToken pulls the token query parameter out of a mail body.
func linkToken(t *testing.T, msg mail.Message) string {
	t.Helper()
	for _, field := range strings.Fields(msg.Body) {
		if u, err := url.Parse(field); err == nil && u.Query().Get("token") != "" {
			return u.Query().Get("token")
		}
	}
	t.Fatalf("no token link in %q", msg.Body)
	return ""
}

type captureRecorder struct {
	mu     sync.Mutex
	events []models.SecurityEvent
}

func (r *captureRecorder) Record(_ context.Context, e models.SecurityEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *captureRecorder) ofType(typ models.SecurityEventType) []models.SecurityEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.SecurityEvent
	for _, e := range r.events {
		if e.EventType == typ {
			out = append(out, e)
		}
	}
	return out
}

type stubLimiter struct {
	allow bool
	keys  []string
}

func (l *stubLimiter) SlidingWindowRateLimit(_ context.Context, key string, _ int, _ time.Duration) (bool, int, error) {
	l.keys = append(l.keys, key)
	return l.allow, len(l.keys), nil
}

type harness struct {
	now time.Time
	db  *gorm.DB

	accounts   *postgres.AccountRepository
	ledger     *postgres.FailedLoginRepository
	resets     *postgres.PasswordResetRepository
	activities *postgres.ActivityRepository
	posts      *postgres.PostRepository
	guard      *security.Guard
	gate       *security.Gate
	hasher     *hashing.Hasher
	tokens     *tokens.EmailTokens
	mailer     *captureMailer
	audit      *captureRecorder
	limiter    *stubLimiter

	auth     *AuthService
	profile  *ProfileService
	bulletin *ActivityService
	feed     *FeedService
	admin    *AdminService
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Account{}, &models.FailedLogin{}, &models.PasswordReset{},
		&models.Activity{}, &models.ActivityParticipant{},
		&models.Post{}, &models.PostLike{}, &models.Comment{},
	))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	sealer, err := encryption.NewLocalManager(bytes.Repeat([]byte{9}, 32))
	require.NoError(t, err)

	h := &harness{
		now:        baseTime,
		db:         db,
		accounts:   postgres.NewAccountRepository(db, sealer),
		ledger:     postgres.NewFailedLoginRepository(db),
		resets:     postgres.NewPasswordResetRepository(db),
		activities: postgres.NewActivityRepository(db),
		posts:      postgres.NewPostRepository(db),
		hasher:     hashing.NewHasherWithParams(hashing.Argon2Params{Memory: 8 * 1024, Iterations: 1, Parallelism: 1}),
		tokens:     tokens.NewEmailTokens("test-secret", time.Hour),
		mailer:     &captureMailer{},
		audit:      &captureRecorder{},
		limiter:    &stubLimiter{allow: true},
	}

	totpCodes := security.NewTOTP("BuddiesFinders")
	h.guard = security.NewGuard(h.accounts, h.ledger, h.hasher, totpCodes, security.DefaultPolicy(), nil).WithClock(h.clock)
	h.gate = security.NewGate(h.accounts, security.DefaultPolicy(), nil)

	factory := NewServiceFactory(Dependencies{
		Accounts:   h.accounts,
		Ledger:     h.ledger,
		Resets:     h.resets,
		Activities: h.activities,
		Posts:      h.posts,
		Guard:      h.guard,
		Hasher:     h.hasher,
		Tokens:     h.tokens,
		OTP:        totpCodes,
		Mailer:     h.mailer,
		Composer:   mail.Composer{From: "noreply@test", BaseURL: "https://bf.test"},
		Limiter:    h.limiter,
		Search:     search.NewUserIndex(nil, "", h.accounts, nil),
		Audit:      h.audit,
		Reset:      ResetPolicy{TokenTTL: time.Hour, RequestLimit: 3, RequestWindow: 15 * time.Minute},
	})

	h.auth = factory.AuthService()
	h.auth.now = h.clock
	h.profile = factory.ProfileService()
	h.profile.now = h.clock
	h.bulletin = factory.ActivityService()
	h.bulletin.now = h.clock
	h.feed = factory.FeedService()
	h.feed.now = h.clock
	h.admin = factory.AdminService()
	return h
}

func (h *harness) clock() time.Time { return h.now }

// verifiedAccount registers an account and confirms its email.
func (h *harness) verifiedAccount(t *testing.T, name, email, password string) *models.Account {
	t.Helper()
	ctx := context.Background()
	account, err := h.auth.Register(ctx, RegisterInput{Name: name, Email: email, Password: password, ConfirmPassword: password})
	require.NoError(t, err)
	token, err := h.tokens.Issue(email)
	require.NoError(t, err)
	require.NoError(t, h.auth.VerifyEmail(ctx, token))
	account.EmailVerified = true
	return account
}

func (h *harness) makeAdmin(t *testing.T, id int64) {
	t.Helper()
	// Role changes are done by the admin seeding tool, not the services.
	require.NoError(t, h.db.Model(&models.Account{}).Where("id = ?", id).Update("role", models.RoleAdmin).Error)
}

func (h *harness) code(t *testing.T, secret string) string {
	t.Helper()
	code, err := totp.GenerateCodeCustom(secret, h.now, totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	require.NoError(t, err)
	return code
}

// activityDate formats a start time for ActivityInput.
func activityDate(t time.Time) string {
	return t.In(security.LockZone).Format(ActivityDateLayout)
}
