package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"buddiesfinder/internal/util"
)

// migrations are applied in order and recorded in schema_migrations.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id             BIGSERIAL PRIMARY KEY,
		name           VARCHAR(50)  NOT NULL,
		email          VARCHAR(254) NOT NULL UNIQUE,
		password_hash  TEXT         NOT NULL,
		role           VARCHAR(10)  NOT NULL DEFAULT 'user' CHECK (role IN ('user', 'admin')),
		locked_until   TIMESTAMPTZ,
		otp_secret     TEXT,
		otp_enabled    BOOLEAN      NOT NULL DEFAULT FALSE,
		session_token  VARCHAR(128),
		email_verified BOOLEAN      NOT NULL DEFAULT FALSE,
		created_at     TIMESTAMPTZ  NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS user_failed_login (
		id           BIGSERIAL PRIMARY KEY,
		user_id      BIGINT      NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		attempted_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_failed_login_user_time ON user_failed_login (user_id, attempted_at)`,
	`CREATE TABLE IF NOT EXISTS reset_password (
		id         BIGSERIAL PRIMARY KEY,
		user_id    BIGINT      NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		token_hash CHAR(64)    NOT NULL UNIQUE,
		expires_at TIMESTAMPTZ NOT NULL,
		used       BOOLEAN     NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS sports_activity (
		id            BIGSERIAL PRIMARY KEY,
		activity_name VARCHAR(50)  NOT NULL,
		activity_type VARCHAR(20)  NOT NULL CHECK (activity_type IN ('Sports', 'Non Sports')),
		skills_req    VARCHAR(100) NOT NULL,
		activity_date TIMESTAMPTZ  NOT NULL,
		location      VARCHAR(50)  NOT NULL,
		max_pax       INT          NOT NULL CHECK (max_pax >= 1),
		host_id       BIGINT       NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		created_at    TIMESTAMPTZ  NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_activity_date ON sports_activity (activity_date)`,
	`CREATE TABLE IF NOT EXISTS activity_participants (
		activity_id BIGINT      NOT NULL REFERENCES sports_activity(id) ON DELETE CASCADE,
		user_id     BIGINT      NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		joined_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (activity_id, user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS feed (
		id         BIGSERIAL PRIMARY KEY,
		user_id    BIGINT       NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		content    VARCHAR(255) NOT NULL,
		image_path TEXT,
		created_at TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ  NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS feed_likes (
		post_id    BIGINT      NOT NULL REFERENCES feed(id) ON DELETE CASCADE,
		user_id    BIGINT      NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (post_id, user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS comments (
		id         BIGSERIAL PRIMARY KEY,
		post_id    BIGINT       NOT NULL REFERENCES feed(id) ON DELETE CASCADE,
		user_id    BIGINT       NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		content    VARCHAR(255) NOT NULL,
		created_at TIMESTAMPTZ  NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_comments_post ON comments (post_id, created_at)`,
}

// Migrate applies pending migrations inside one transaction.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	var current int
	if err := pool.QueryRow(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if current >= len(migrations) {
		return nil
	}

	err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		for i := current; i < len(migrations); i++ {
			if _, err := tx.Exec(ctx, migrations[i]); err != nil {
				return fmt.Errorf("migration %d: %w", i+1, err)
			}
			if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, i+1); err != nil {
				return fmt.Errorf("record migration %d: %w", i+1, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	util.Info("Database migrated", zap.Int("from", current), zap.Int("to", len(migrations)))
	return nil
}
