package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"buddiesfinder/internal/models"
	"buddiesfinder/internal/util"
)

// AdminService performs moderation deletes. The actor's role is read from
// the store on every call rather than trusted from the session.
type AdminService struct {
	accounts   accountFinder
	activities ActivityStore
	posts      PostStore
	audit      EventRecorder
	logger     *zap.Logger
}

func NewAdminService(accounts AccountStore, activities ActivityStore, posts PostStore, audit EventRecorder, logger *zap.Logger) *AdminService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdminService{accounts: accounts, activities: activities, posts: posts, audit: audit, logger: logger}
}

func (s *AdminService) DeleteActivity(ctx context.Context, actorID, activityID int64) error {
	if err := s.requireAdmin(ctx, actorID); err != nil {
		return err
	}
	n, err := s.activities.Delete(ctx, activityID)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	s.recordDeletion(ctx, actorID, "activity", activityID)
	return nil
}

func (s *AdminService) DeletePost(ctx context.Context, actorID, postID int64) error {
	if err := s.requireAdmin(ctx, actorID); err != nil {
		return err
	}
	n, err := s.posts.Delete(ctx, postID)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	s.recordDeletion(ctx, actorID, "post", postID)
	return nil
}

func (s *AdminService) requireAdmin(ctx context.Context, actorID int64) error {
	actor, err := findAccount(ctx, s.accounts, actorID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrForbidden
		}
		return err
	}
	if !actor.IsAdmin() {
		s.logger.Warn("Admin action refused", util.Int64("user_id", actorID))
		return ErrForbidden
	}
	return nil
}

func (s *AdminService) recordDeletion(ctx context.Context, actorID int64, kind string, id int64) {
	s.logger.Info("Admin deletion",
		util.Int64("admin_id", actorID),
		util.String("kind", kind),
		util.Int64("id", id))
	s.audit.Record(ctx, models.SecurityEvent{
		EventType: models.EventAdminDeletion,
		UserID:    actorID,
		Reason:    fmt.Sprintf("%s:%d", kind, id),
	})
}
