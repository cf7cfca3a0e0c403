package security

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"buddiesfinder/internal/models"
)

// Snapshot is the session state carried between requests. Times are UTC.
type Snapshot struct {
	SessionToken     string      `json:"session_token,omitempty"`
	AccountID        int64       `json:"account_id,omitempty"`
	Role             models.Role `json:"role,omitempty"`
	CreatedAt        *time.Time  `json:"created_at,omitempty"`
	LastActivity     *time.Time  `json:"last_activity,omitempty"`
	PendingAccountID int64       `json:"pending_2fa_account_id,omitempty"`
}

// NewAuthenticatedSnapshot starts a session for an account that passed every
// required factor.
func NewAuthenticatedSnapshot(account *models.Account, token string, now time.Time) Snapshot {
	t := now.UTC()
	return Snapshot{
		SessionToken: token,
		AccountID:    account.ID,
		Role:         account.Role,
		CreatedAt:    &t,
		LastActivity: &t,
	}
}

// NewPendingSnapshot records a password-verified account still owing a code.
func NewPendingSnapshot(accountID int64) Snapshot {
	return Snapshot{PendingAccountID: accountID}
}

func (s Snapshot) Authenticated() bool {
	return s.CreatedAt != nil && s.AccountID != 0
}

func (s Snapshot) Empty() bool {
	return s == Snapshot{}
}

type Outcome int

const (
	OutcomeAnonymous Outcome = iota
	OutcomeActive
	OutcomeExpiredAbsolute
	OutcomeExpiredIdle
	OutcomeSuperseded
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAnonymous:
		return "anonymous"
	case OutcomeActive:
		return "active"
	case OutcomeExpiredAbsolute:
		return "expired_absolute"
	case OutcomeExpiredIdle:
		return "expired_idle"
	case OutcomeSuperseded:
		return "superseded"
	default:
		return "unknown"
	}
}

// Err maps a rejecting outcome onto the error taxonomy.
func (o Outcome) Err() error {
	switch o {
	case OutcomeExpiredAbsolute:
		return &SessionExpiredError{Kind: ExpiryAbsolute}
	case OutcomeExpiredIdle:
		return &SessionExpiredError{Kind: ExpiryIdle}
	case OutcomeSuperseded:
		return ErrSessionSuperseded
	default:
		return nil
	}
}

// Notice is the user-facing message shown after a rejected session.
func (o Outcome) Notice() string {
	switch o {
	case OutcomeExpiredAbsolute:
		return "session expired"
	case OutcomeExpiredIdle:
		return "idle timeout"
	case OutcomeSuperseded:
		return "logged out elsewhere"
	default:
		return ""
	}
}

type TokenSource interface {
	CurrentSessionToken(ctx context.Context, accountID int64) (string, error)
}

// Gate enforces session timeouts and single-session ownership per request.
type Gate struct {
	tokens   TokenSource
	absolute time.Duration
	idle     time.Duration
	logger   *zap.Logger
}

func NewGate(tokens TokenSource, policy Policy, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	policy = policy.withDefaults()
	return &Gate{
		tokens:   tokens,
		absolute: policy.AbsoluteTimeout,
		idle:     policy.IdleTimeout,
		logger:   logger,
	}
}

// Check evaluates snap at now. Absolute expiry wins over idle expiry, and both
// win over a token mismatch. Rejections return an empty snapshot; an active
// session comes back with LastActivity moved to now.
func (g *Gate) Check(ctx context.Context, snap Snapshot, now time.Time) (Snapshot, Outcome, error) {
	if snap.CreatedAt == nil {
		return snap, OutcomeAnonymous, nil
	}

	if now.Sub(*snap.CreatedAt) > g.absolute {
		g.reject(snap, OutcomeExpiredAbsolute)
		return Snapshot{}, OutcomeExpiredAbsolute, nil
	}

	last := *snap.CreatedAt
	if snap.LastActivity != nil {
		last = *snap.LastActivity
	}
	if now.Sub(last) > g.idle {
		g.reject(snap, OutcomeExpiredIdle)
		return Snapshot{}, OutcomeExpiredIdle, nil
	}

	current, err := g.tokens.CurrentSessionToken(ctx, snap.AccountID)
	if err != nil && !errors.Is(err, models.ErrRecordNotFound) {
		return snap, OutcomeActive, fmt.Errorf("load session token: %w", err)
	}
	if current == "" || current != snap.SessionToken {
		g.reject(snap, OutcomeSuperseded)
		return Snapshot{}, OutcomeSuperseded, nil
	}

	t := now.UTC()
	snap.LastActivity = &t
	return snap, OutcomeActive, nil
}

func (g *Gate) reject(snap Snapshot, outcome Outcome) {
	g.logger.Info("session rejected",
		zap.Int64("account_id", snap.AccountID),
		zap.String("outcome", outcome.String()),
	)
}
