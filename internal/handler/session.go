package handler

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"buddiesfinder/internal/hashing"
	"buddiesfinder/internal/metrics"
	rediscache "buddiesfinder/internal/repository/redis"
	"buddiesfinder/internal/security"
	"buddiesfinder/internal/util"
)

// SessionStore keeps snapshots keyed by the opaque id in the session cookie.
type SessionStore interface {
	Load(ctx context.Context, sessionID string) (security.Snapshot, error)
	Save(ctx context.Context, sessionID string, snap security.Snapshot) error
	Delete(ctx context.Context, sessionID string) error
}

type CookieConfig struct {
	Name   string
	Secure bool
	MaxAge time.Duration
}

// Sessions binds the session cookie to stored snapshots and runs the gate on
// every request.
type Sessions struct {
	responder
	store  SessionStore
	gate   *security.Gate
	cookie CookieConfig
	now    func() time.Time
}

func NewSessions(store SessionStore, gate *security.Gate, cookie CookieConfig, logger *zap.Logger) *Sessions {
	if cookie.Name == "" {
		cookie.Name = "bf_session"
	}
	return &Sessions{
		responder: newResponder(logger),
		store:     store,
		gate:      gate,
		cookie:    cookie,
		now:       time.Now,
	}
}

type sessionState struct {
	id      string
	snap    security.Snapshot
	outcome security.Outcome
}

type sessionKey struct{}

func sessionFrom(ctx context.Context) *sessionState {
	if s, ok := ctx.Value(sessionKey{}).(*sessionState); ok {
		return s
	}
	return &sessionState{}
}

// accountID returns the signed-in account, or 0.
func accountID(r *http.Request) int64 {
	s := sessionFrom(r.Context())
	if s.outcome != security.OutcomeActive {
		return 0
	}
	return s.snap.AccountID
}

// Middleware loads the snapshot named by the cookie and applies the gate. A
// rejected session is destroyed and its cookie cleared; the outcome stays on
// the request so RequireAuth can explain it.
func (s *Sessions) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		state := &sessionState{outcome: security.OutcomeAnonymous}

		if c, err := r.Cookie(s.cookie.Name); err == nil && c.Value != "" {
			snap, err := s.store.Load(ctx, c.Value)
			switch {
			case errors.Is(err, rediscache.ErrSessionNotFound):
				s.clearCookie(w)
			case err != nil:
				s.respondWithError(w, r, err, "Session unavailable")
				return
			default:
				checked, outcome, err := s.gate.Check(ctx, snap, s.now())
				if err != nil {
					s.respondWithError(w, r, err, "Session unavailable")
					return
				}
				metrics.SessionGateOutcomesTotal.WithLabelValues(outcome.String()).Inc()
				state.outcome = outcome

				switch outcome {
				case security.OutcomeActive:
					if err := s.store.Save(ctx, c.Value, checked); err != nil {
						s.respondWithError(w, r, err, "Session unavailable")
						return
					}
					state.id, state.snap = c.Value, checked
				case security.OutcomeAnonymous:
					state.id, state.snap = c.Value, snap
				default:
					s.destroy(ctx, c.Value)
					s.clearCookie(w)
				}
			}
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, sessionKey{}, state)))
	})
}

// RequireAuth lets only requests with an active session through. Browsers are
// sent back to the login page with a notice; API clients get a 401.
func (s *Sessions) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		state := sessionFrom(r.Context())
		if state.outcome == security.OutcomeActive {
			next.ServeHTTP(w, r)
			return
		}

		notice := state.outcome.Notice()
		if notice == "" {
			notice = "login required"
		}
		if wantsHTML(r) {
			http.Redirect(w, r, "/login?notice="+url.QueryEscape(notice), http.StatusSeeOther)
			return
		}
		errText := "unauthorized"
		if err := state.outcome.Err(); err != nil {
			errText = err.Error()
		}
		s.respondWithJSON(w, http.StatusUnauthorized, errorResponse(errText, notice))
	})
}

// Start stores snap under a fresh id and points the cookie at it. Any
// previous snapshot on this request is dropped so ids never survive a login.
func (s *Sessions) Start(w http.ResponseWriter, r *http.Request, snap security.Snapshot) error {
	id, err := hashing.NewToken(32)
	if err != nil {
		return err
	}
	if err := s.store.Save(r.Context(), id, snap); err != nil {
		return err
	}
	if prev := sessionFrom(r.Context()); prev.id != "" {
		s.destroy(r.Context(), prev.id)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookie.Name,
		Value:    id,
		Path:     "/",
		MaxAge:   int(s.cookie.MaxAge.Seconds()),
		HttpOnly: true,
		Secure:   s.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func (s *Sessions) End(w http.ResponseWriter, r *http.Request) {
	if state := sessionFrom(r.Context()); state.id != "" {
		s.destroy(r.Context(), state.id)
	}
	s.clearCookie(w)
}

func (s *Sessions) destroy(ctx context.Context, id string) {
	if err := s.store.Delete(ctx, id); err != nil {
		s.logger.Warn("Failed to delete session", util.ErrorField(err))
	}
}

func (s *Sessions) clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookie.Name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func wantsHTML(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}
