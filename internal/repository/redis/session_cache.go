package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"buddiesfinder/internal/client"
	"buddiesfinder/internal/security"
	"buddiesfinder/internal/util"
)

const (
	sessionDataPrefix = "session_data:"

	// pendingSessionTTL bounds how long a password-verified login may wait
	// for its second factor.
	pendingSessionTTL = 5 * time.Minute

	// expiredSessionGrace keeps a snapshot readable after its absolute
	// deadline so the gate can still report it as expired.
	expiredSessionGrace = time.Hour
)

var ErrSessionNotFound = errors.New("session not found")

// SessionCache mirrors session snapshots keyed by the opaque id held in the
// client cookie. Entries are dropped one grace period after the absolute
// session timeout.
type SessionCache struct {
	client   *client.RedisClient
	absolute time.Duration
	now      func() time.Time
}

func NewSessionCache(client *client.RedisClient, absolute time.Duration) *SessionCache {
	return &SessionCache{client: client, absolute: absolute, now: time.Now}
}

// Save writes snap under sessionID. Authenticated snapshots expire one grace
// period after the absolute timeout counted from CreatedAt.
func (c *SessionCache) Save(ctx context.Context, sessionID string, snap security.Snapshot) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	ttl := pendingSessionTTL
	if snap.CreatedAt != nil {
		ttl = snap.CreatedAt.Add(c.absolute + expiredSessionGrace).Sub(c.now())
		if ttl < time.Second {
			ttl = time.Second
		}
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal session snapshot: %w", err)
	}

	if err := c.client.Set(ctx, sessionDataPrefix+sessionID, data, ttl); err != nil {
		util.Error("Failed to save session",
			zap.Int64("account_id", snap.AccountID),
			zap.Duration("ttl", ttl),
			zap.Error(err))
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (c *SessionCache) Load(ctx context.Context, sessionID string) (security.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	raw, err := c.client.Get(ctx, sessionDataPrefix+sessionID)
	if err != nil {
		if errors.Is(err, client.ErrCacheMiss) {
			return security.Snapshot{}, ErrSessionNotFound
		}
		return security.Snapshot{}, fmt.Errorf("failed to load session: %w", err)
	}

	var snap security.Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		util.Warn("Discarding unreadable session", zap.Error(err))
		_ = c.client.Del(ctx, sessionDataPrefix+sessionID)
		return security.Snapshot{}, ErrSessionNotFound
	}
	return snap, nil
}

func (c *SessionCache) Delete(ctx context.Context, sessionID string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := c.client.Del(ctx, sessionDataPrefix+sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}
