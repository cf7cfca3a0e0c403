package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"buddiesfinder/internal/models"
)

// SecretSealer encrypts values before they reach a column.
type SecretSealer interface {
	SealString(ctx context.Context, plaintext string) (string, error)
	OpenString(ctx context.Context, sealed string) (string, error)
}

// AccountRepository is the credential store over the users table. OTP
// secrets are sealed on write and opened on read.
type AccountRepository struct {
	db     *gorm.DB
	sealer SecretSealer
}

func NewAccountRepository(db *gorm.DB, sealer SecretSealer) *AccountRepository {
	return &AccountRepository{db: db, sealer: sealer}
}

func (r *AccountRepository) Create(ctx context.Context, account *models.Account) error {
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now().UTC()
	}
	if err := r.db.WithContext(ctx).Create(account).Error; err != nil {
		return translate(err)
	}
	return nil
}

func (r *AccountRepository) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	return r.findOne(ctx, "email = ?", email)
}

func (r *AccountRepository) FindByID(ctx context.Context, id int64) (*models.Account, error) {
	return r.findOne(ctx, "id = ?", id)
}

func (r *AccountRepository) findOne(ctx context.Context, query string, arg any) (*models.Account, error) {
	var account models.Account
	if err := r.db.WithContext(ctx).Where(query, arg).First(&account).Error; err != nil {
		return nil, translate(err)
	}
	if account.HasOTPSecret() {
		secret, err := r.sealer.OpenString(ctx, *account.OTPSecret)
		if err != nil {
			return nil, fmt.Errorf("open otp secret for account %d: %w", account.ID, err)
		}
		account.OTPSecret = &secret
	}
	return &account, nil
}

func (r *AccountRepository) UpdateLockedUntil(ctx context.Context, id int64, until *time.Time) (int64, error) {
	var value any = gorm.Expr("NULL")
	if until != nil {
		value = until.UTC()
	}
	return r.updateColumn(ctx, id, "locked_until", value)
}

func (r *AccountRepository) UpdateSessionToken(ctx context.Context, id int64, token *string) (int64, error) {
	var value any = gorm.Expr("NULL")
	if token != nil {
		value = *token
	}
	return r.updateColumn(ctx, id, "session_token", value)
}

// CurrentSessionToken returns "" when the account has no live session.
func (r *AccountRepository) CurrentSessionToken(ctx context.Context, id int64) (string, error) {
	var row struct {
		SessionToken *string
	}
	res := r.db.WithContext(ctx).Model(&models.Account{}).Select("session_token").Where("id = ?", id).Take(&row)
	if res.Error != nil {
		return "", translate(res.Error)
	}
	if row.SessionToken == nil {
		return "", nil
	}
	return *row.SessionToken, nil
}

func (r *AccountRepository) UpdatePasswordHash(ctx context.Context, id int64, hash string) (int64, error) {
	return r.updateColumn(ctx, id, "password_hash", hash)
}

func (r *AccountRepository) UpdateName(ctx context.Context, id int64, name string) (int64, error) {
	return r.updateColumn(ctx, id, "name", name)
}

// SetOTPSecret stores a new pending secret and turns the factor off until
// it is confirmed. A nil secret removes enrollment entirely.
func (r *AccountRepository) SetOTPSecret(ctx context.Context, id int64, secret *string) (int64, error) {
	updates := map[string]any{"otp_enabled": false, "otp_secret": gorm.Expr("NULL")}
	if secret != nil {
		sealed, err := r.sealer.SealString(ctx, *secret)
		if err != nil {
			return 0, fmt.Errorf("seal otp secret: %w", err)
		}
		updates["otp_secret"] = sealed
	}
	res := r.db.WithContext(ctx).Model(&models.Account{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return 0, fmt.Errorf("update otp secret: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (r *AccountRepository) SetOTPEnabled(ctx context.Context, id int64, enabled bool) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Account{}).
		Where("id = ? AND otp_secret IS NOT NULL", id).
		Update("otp_enabled", enabled)
	if res.Error != nil {
		return 0, fmt.Errorf("update otp_enabled: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (r *AccountRepository) MarkEmailVerified(ctx context.Context, email string) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Account{}).Where("email = ?", email).Update("email_verified", true)
	if res.Error != nil {
		return 0, fmt.Errorf("verify email: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// SearchByName matches a case-insensitive substring of the display name.
func (r *AccountRepository) SearchByName(ctx context.Context, query string, limit int) ([]models.UserSummary, error) {
	var out []models.UserSummary
	pattern := "%" + escapeLike(strings.ToLower(query)) + "%"
	err := r.db.WithContext(ctx).Model(&models.Account{}).
		Select("id, name").
		Where(`LOWER(name) LIKE ? ESCAPE '\'`, pattern).
		Order("name ASC").
		Limit(limit).
		Scan(&out).Error
	if err != nil {
		return nil, fmt.Errorf("search accounts: %w", err)
	}
	return out, nil
}

func (r *AccountRepository) updateColumn(ctx context.Context, id int64, column string, value any) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Account{}).Where("id = ?", id).Update(column, value)
	if res.Error != nil {
		return 0, fmt.Errorf("update %s: %w", column, res.Error)
	}
	return res.RowsAffected, nil
}

func translate(err error) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return models.ErrRecordNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return models.ErrDuplicateRecord
	default:
		return err
	}
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
