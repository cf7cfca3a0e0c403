package service

import (
	"go.uber.org/zap"

	"buddiesfinder/internal/mail"
	"buddiesfinder/internal/security"
)

// Dependencies are the stores and collaborators shared by all services.
type Dependencies struct {
	Accounts   AccountStore
	Ledger     security.FailureLedger
	Resets     PasswordResetStore
	Activities ActivityStore
	Posts      PostStore
	Guard      *security.Guard
	Hasher     PasswordHasher
	Tokens     EmailTokens
	OTP        OTPProvider
	Mailer     mail.Mailer
	Composer   mail.Composer
	Limiter    RateLimiter
	Search     UserSearcher
	Audit      EventRecorder
	History    EventHistory
	Reset      ResetPolicy
	Logger     *zap.Logger
}

// ServiceFactory creates and manages service instances
type ServiceFactory struct {
	deps Dependencies

	authService     *AuthService
	profileService  *ProfileService
	activityService *ActivityService
	feedService     *FeedService
	adminService    *AdminService
}

func NewServiceFactory(deps Dependencies) *ServiceFactory {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &ServiceFactory{deps: deps}
}

func (f *ServiceFactory) AuthService() *AuthService {
	if f.authService == nil {
		f.authService = NewAuthService(AuthDeps{
			Accounts: f.deps.Accounts,
			Ledger:   f.deps.Ledger,
			Resets:   f.deps.Resets,
			Guard:    f.deps.Guard,
			Hasher:   f.deps.Hasher,
			Tokens:   f.deps.Tokens,
			OTP:      f.deps.OTP,
			Mailer:   f.deps.Mailer,
			Composer: f.deps.Composer,
			Limiter:  f.deps.Limiter,
			Search:   f.deps.Search,
			Audit:    f.deps.Audit,
			Reset:    f.deps.Reset,
			Logger:   f.deps.Logger.Named("auth"),
		})
	}
	return f.authService
}

func (f *ServiceFactory) ProfileService() *ProfileService {
	if f.profileService == nil {
		f.profileService = NewProfileService(
			f.deps.Accounts,
			f.deps.Activities,
			f.deps.Posts,
			f.deps.Hasher,
			f.deps.Search,
			f.deps.Audit,
			f.deps.Logger.Named("profile"),
		).WithHistory(f.deps.History)
	}
	return f.profileService
}

func (f *ServiceFactory) ActivityService() *ActivityService {
	if f.activityService == nil {
		f.activityService = NewActivityService(f.deps.Activities, f.deps.Logger.Named("bulletin"))
	}
	return f.activityService
}

func (f *ServiceFactory) FeedService() *FeedService {
	if f.feedService == nil {
		f.feedService = NewFeedService(f.deps.Posts, f.deps.Accounts, f.deps.Logger.Named("feed"))
	}
	return f.feedService
}

func (f *ServiceFactory) AdminService() *AdminService {
	if f.adminService == nil {
		f.adminService = NewAdminService(
			f.deps.Accounts,
			f.deps.Activities,
			f.deps.Posts,
			f.deps.Audit,
			f.deps.Logger.Named("admin"),
		)
	}
	return f.adminService
}
