package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"buddiesfinder/internal/audit"
	"buddiesfinder/internal/client"
	"buddiesfinder/internal/encryption"
	"buddiesfinder/internal/hashing"
	"buddiesfinder/internal/mail"
	"buddiesfinder/internal/models"
	"buddiesfinder/internal/repository/postgres"
	rediscache "buddiesfinder/internal/repository/redis"
	"buddiesfinder/internal/search"
	"buddiesfinder/internal/security"
	"buddiesfinder/internal/service"
	"buddiesfinder/internal/tokens"
)

const testPassword = "correct horse"

type outbox struct {
	mu       sync.Mutex
	messages []mail.Message
}

func (o *outbox) Send(_ context.Context, msg mail.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.messages = append(o.messages, msg)
	return nil
}

func (o *outbox) lastToken(t *testing.T) string {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	require.NotEmpty(t, o.messages)
	for _, field := range strings.Fields(o.messages[len(o.messages)-1].Body) {
		if u, err := url.Parse(field); err == nil && u.Query().Get("token") != "" {
			return u.Query().Get("token")
		}
	}
	t.Fatal("no token link in last message")
	return ""
}

type testServer struct {
	router   chi.Router
	sessions *Sessions
	outbox   *outbox
	db       *gorm.DB
	redis    *miniredis.Miniredis
}

func newTestServer(t *testing.T, loginLimit int) *testServer {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true, Logger: logger.Default.LogMode(logger.Silent)})
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

	mr := miniredis.RunT(t)
	rc := client.NewRedisClientFrom(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = rc.Close() })

	sealer, err := encryption.NewLocalManager(bytes.Repeat([]byte{7}, 32))
	require.NoError(t, err)
	accounts := postgres.NewAccountRepository(db, sealer)
	ledger := postgres.NewFailedLoginRepository(db)
	hasher := hashing.NewHasherWithParams(hashing.Argon2Params{Memory: 8 * 1024, Iterations: 1, Parallelism: 1})
	codes := security.NewTOTP("BuddiesFinders")
	policy := security.DefaultPolicy()
	guard := security.NewGuard(accounts, ledger, hasher, codes, policy, nil)
	box := &outbox{}

	factory := service.NewServiceFactory(service.Dependencies{
		Accounts:   accounts,
		Ledger:     ledger,
		Resets:     postgres.NewPasswordResetRepository(db),
		Activities: postgres.NewActivityRepository(db),
		Posts:      postgres.NewPostRepository(db),
		Guard:      guard,
		Hasher:     hasher,
		Tokens:     tokens.NewEmailTokens("handler-test", time.Hour),
		OTP:        codes,
		Mailer:     box,
		Composer:   mail.Composer{From: "noreply@test", BaseURL: "https://bf.test"},
		Limiter:    rediscache.NewRateLimitCache(rc),
		Search:     search.NewUserIndex(nil, "", accounts, nil),
		Audit:      audit.NewRecorder(nil, nil),
		Reset:      service.ResetPolicy{TokenTTL: time.Hour, RequestLimit: 3, RequestWindow: 15 * time.Minute},
	})

	sessions := NewSessions(
		rediscache.NewSessionCache(rc, policy.AbsoluteTimeout),
		security.NewGate(accounts, policy, nil),
		CookieConfig{Name: "bf_session", MaxAge: policy.AbsoluteTimeout},
		nil,
	)
	handlers := Handlers{
		Auth:       NewAuthHandler(factory.AuthService(), sessions, nil),
		Profile:    NewProfileHandler(factory.ProfileService(), factory.AuthService(), nil),
		Activities: NewActivityHandler(factory.ActivityService(), nil),
		Posts:      NewPostHandler(factory.FeedService(), nil),
		Admin:      NewAdminHandler(factory.AdminService(), nil),
	}
	router := NewRouter(handlers, sessions, RouterConfig{
		AllowedOrigins:  []string{"https://bf.test"},
		LoginRateLimit:  loginLimit,
		LoginRateWindow: time.Minute,
		HealthChecks: []HealthCheck{
			{Name: "redis", Check: rc.HealthCheck},
		},
	}, zap.NewNop())

	return &testServer{router: router, sessions: sessions, outbox: box, db: db, redis: mr}
}

type call struct {
	method string
	path   string
	body   any
	cookie *http.Cookie
	accept string
}

func (s *testServer) do(t *testing.T, c call) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	if c.body != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(c.body))
	}
	req := httptest.NewRequest(c.method, c.path, &body)
	req.Header.Set("Content-Type", "application/json")
	if c.accept != "" {
		req.Header.Set("Accept", c.accept)
	}
	if c.cookie != nil {
		req.AddCookie(c.cookie)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp
}

// dataAs re-decodes the envelope's data field into dst.
func dataAs(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.NoError(t, json.Unmarshal(env.Data, dst))
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == "bf_session" && c.Value != "" {
			return c
		}
	}
	t.Fatalf("no session cookie in response: %s", rec.Body.String())
	return nil
}

// signUp registers and verifies an account, returning its id.
func (s *testServer) signUp(t *testing.T, name, email string) int64 {
	t.Helper()
	rec := s.do(t, call{method: http.MethodPost, path: "/api/v1/auth/register", body: service.RegisterInput{
		Name: name, Email: email, Password: testPassword, ConfirmPassword: testPassword,
	}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var account models.Account
	dataAs(t, rec, &account)

	rec = s.do(t, call{method: http.MethodGet, path: "/api/v1/auth/verify-email?token=" + url.QueryEscape(s.outbox.lastToken(t))})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return account.ID
}

func (s *testServer) login(t *testing.T, email string) *http.Cookie {
	t.Helper()
	rec := s.do(t, call{method: http.MethodPost, path: "/api/v1/auth/login", body: loginRequest{Email: email, Password: testPassword}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return sessionCookie(t, rec)
}
