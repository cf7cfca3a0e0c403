package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"buddiesfinder/internal/models"
	"buddiesfinder/internal/util"
)

const (
	searchResultLimit = 10
	historyLimit      = 50
)

type Profile struct {
	Account *models.Account   `json:"account"`
	Hosted  []models.Activity `json:"hosted_activities"`
	Joined  []models.Activity `json:"joined_activities"`
	Posts   []models.Post     `json:"posts"`
}

type ProfileUpdate struct {
	Name            string `json:"name"`
	Password        string `json:"password,omitempty"`
	ConfirmPassword string `json:"confirm_password,omitempty"`
}

type ProfileService struct {
	accounts   AccountStore
	activities ActivityStore
	posts      PostStore
	hasher     PasswordHasher
	search     UserSearcher
	audit      EventRecorder
	history    EventHistory
	now        func() time.Time
	logger     *zap.Logger
}

func NewProfileService(accounts AccountStore, activities ActivityStore, posts PostStore, hasher PasswordHasher, search UserSearcher, audit EventRecorder, logger *zap.Logger) *ProfileService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProfileService{
		accounts:   accounts,
		activities: activities,
		posts:      posts,
		hasher:     hasher,
		search:     search,
		audit:      audit,
		now:        time.Now,
		logger:     logger,
	}
}

// Profile gathers the account with its upcoming hosted and joined
// activities and its own posts.
func (s *ProfileService) Profile(ctx context.Context, accountID int64) (*Profile, error) {
	account, err := findAccount(ctx, s.accounts, accountID)
	if err != nil {
		return nil, err
	}
	from := startOfToday(s.now())

	hosted, err := s.activities.HostedBy(ctx, accountID, from)
	if err != nil {
		return nil, err
	}
	joined, err := s.activities.JoinedBy(ctx, accountID, from)
	if err != nil {
		return nil, err
	}
	posts, err := s.posts.ByAuthor(ctx, accountID)
	if err != nil {
		return nil, err
	}

	return &Profile{Account: account, Hosted: hosted, Joined: joined, Posts: posts}, nil
}

func (s *ProfileService) UpdateProfile(ctx context.Context, accountID int64, in ProfileUpdate) (*models.Account, error) {
	name, err := cleanText("name", in.Name, 1, 50)
	if err != nil {
		return nil, err
	}

	var hash string
	if in.Password != "" || in.ConfirmPassword != "" {
		if err := checkPassword(in.Password, in.ConfirmPassword); err != nil {
			return nil, err
		}
		if hash, err = s.hasher.HashPassword(in.Password); err != nil {
			return nil, fmt.Errorf("failed to hash password: %w", err)
		}
	}

	n, err := s.accounts.UpdateName(ctx, accountID, name)
	if err != nil {
		return nil, fmt.Errorf("failed to update name: %w", err)
	}
	if n == 0 {
		return nil, ErrNotFound
	}
	if hash != "" {
		if _, err := s.accounts.UpdatePasswordHash(ctx, accountID, hash); err != nil {
			return nil, fmt.Errorf("failed to update password: %w", err)
		}
		s.audit.Record(ctx, models.SecurityEvent{EventType: models.EventPasswordChanged, UserID: accountID})
	}

	if err := s.search.IndexUser(ctx, models.UserSummary{ID: accountID, Name: name}); err != nil {
		s.logger.Warn("Failed to reindex user", util.Int64("user_id", accountID), util.ErrorField(err))
	}
	return findAccount(ctx, s.accounts, accountID)
}

// WithHistory enables SecurityEvents. Without it the history is empty.
func (s *ProfileService) WithHistory(history EventHistory) *ProfileService {
	s.history = history
	return s
}

// SecurityEvents lists recent logins, failures and credential changes for
// the account.
func (s *ProfileService) SecurityEvents(ctx context.Context, accountID int64) ([]models.SecurityEvent, error) {
	if s.history == nil {
		return []models.SecurityEvent{}, nil
	}
	events, err := s.history.ForUser(ctx, accountID, historyLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load security events: %w", err)
	}
	return events, nil
}

func (s *ProfileService) SearchUsers(ctx context.Context, query string) ([]models.UserSummary, error) {
	query = util.SanitizeInput(query)
	if len(query) > 50 {
		return nil, invalid("search query is too long")
	}
	return s.search.SearchUsers(ctx, query, searchResultLimit)
}
