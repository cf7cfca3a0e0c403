package service

import (
	"context"
	"time"

	"buddiesfinder/internal/models"
	"buddiesfinder/internal/repository/postgres"
	"buddiesfinder/internal/security"
)

type AccountStore interface {
	security.AccountStore
	Create(ctx context.Context, account *models.Account) error
	UpdatePasswordHash(ctx context.Context, id int64, hash string) (int64, error)
	UpdateName(ctx context.Context, id int64, name string) (int64, error)
	SetOTPSecret(ctx context.Context, id int64, secret *string) (int64, error)
	SetOTPEnabled(ctx context.Context, id int64, enabled bool) (int64, error)
	MarkEmailVerified(ctx context.Context, email string) (int64, error)
}

type PasswordResetStore interface {
	Create(ctx context.Context, reset *models.PasswordReset) error
	FindByTokenHash(ctx context.Context, tokenHash string) (*models.PasswordReset, error)
	MarkUsed(ctx context.Context, id int64) (int64, error)
	InvalidateForUser(ctx context.Context, userID int64) error
}

type ActivityStore interface {
	Create(ctx context.Context, activity *models.Activity) error
	Update(ctx context.Context, activity *models.Activity) (int64, error)
	FindByID(ctx context.Context, id int64) (*models.Activity, error)
	Upcoming(ctx context.Context, f postgres.ActivityFilter) ([]models.Activity, error)
	HostedBy(ctx context.Context, hostID int64, from time.Time) ([]models.Activity, error)
	JoinedBy(ctx context.Context, userID int64, from time.Time) ([]models.Activity, error)
	AddParticipant(ctx context.Context, activityID, userID int64, at time.Time) (int64, error)
	RemoveParticipant(ctx context.Context, activityID, userID int64) (int64, error)
	IsParticipant(ctx context.Context, activityID, userID int64) (bool, error)
	Participants(ctx context.Context, activityID int64) ([]models.UserSummary, error)
	Delete(ctx context.Context, id int64) (int64, error)
}

type PostStore interface {
	Create(ctx context.Context, post *models.Post) error
	FindByID(ctx context.Context, id int64) (*models.Post, error)
	UpdateContent(ctx context.Context, id int64, content string, imagePath *string, at time.Time) (int64, error)
	Delete(ctx context.Context, id int64) (int64, error)
	Recent(ctx context.Context, limit int) ([]models.Post, error)
	MostLiked(ctx context.Context, limit int) ([]models.Post, error)
	ByAuthor(ctx context.Context, userID int64) ([]models.Post, error)
	Like(ctx context.Context, postID, userID int64, at time.Time) error
	Unlike(ctx context.Context, postID, userID int64) (int64, error)
	LikedBy(ctx context.Context, userID int64, postIDs []int64) (map[int64]bool, error)
	AddComment(ctx context.Context, comment *models.Comment) error
	CommentsFor(ctx context.Context, postIDs []int64) ([]models.Comment, error)
}

// AccountFinder resolves the author behind a profile feed.
type AccountFinder interface {
	FindByID(ctx context.Context, id int64) (*models.Account, error)
}

type UserSearcher interface {
	IndexUser(ctx context.Context, user models.UserSummary) error
	SearchUsers(ctx context.Context, query string, limit int) ([]models.UserSummary, error)
}

type RateLimiter interface {
	SlidingWindowRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, int, error)
}

type EventRecorder interface {
	Record(ctx context.Context, event models.SecurityEvent)
}

// EventHistory reads back an account's recorded security events, newest
// first.
type EventHistory interface {
	ForUser(ctx context.Context, userID int64, limit int) ([]models.SecurityEvent, error)
}

type PasswordHasher interface {
	HashPassword(password string) (string, error)
	VerifyPassword(password, encodedHash string) bool
	NeedsRehash(encodedHash string) bool
}

type EmailTokens interface {
	Issue(email string) (string, error)
	Verify(token string) (string, error)
}

type OTPProvider interface {
	Enroll(accountName string) (*security.Enrollment, error)
}
