package postgres

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"buddiesfinder/internal/models"
)

type PasswordResetRepository struct {
	db *gorm.DB
}

func NewPasswordResetRepository(db *gorm.DB) *PasswordResetRepository {
	return &PasswordResetRepository{db: db}
}

func (r *PasswordResetRepository) Create(ctx context.Context, reset *models.PasswordReset) error {
	reset.ExpiresAt = reset.ExpiresAt.UTC()
	if reset.CreatedAt.IsZero() {
		reset.CreatedAt = time.Now().UTC()
	}
	if err := r.db.WithContext(ctx).Create(reset).Error; err != nil {
		return fmt.Errorf("create password reset: %w", translate(err))
	}
	return nil
}

func (r *PasswordResetRepository) FindByTokenHash(ctx context.Context, tokenHash string) (*models.PasswordReset, error) {
	var reset models.PasswordReset
	if err := r.db.WithContext(ctx).Where("token_hash = ?", tokenHash).First(&reset).Error; err != nil {
		return nil, translate(err)
	}
	return &reset, nil
}

// MarkUsed flips the used flag only if it is still unset, so a token can be
// redeemed once even under concurrent requests.
func (r *PasswordResetRepository) MarkUsed(ctx context.Context, id int64) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.PasswordReset{}).
		Where("id = ? AND used = ?", id, false).
		Update("used", true)
	if res.Error != nil {
		return 0, fmt.Errorf("mark reset used: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// InvalidateForUser marks every outstanding token of an account as used.
func (r *PasswordResetRepository) InvalidateForUser(ctx context.Context, userID int64) error {
	err := r.db.WithContext(ctx).Model(&models.PasswordReset{}).
		Where("user_id = ? AND used = ?", userID, false).
		Update("used", true).Error
	if err != nil {
		return fmt.Errorf("invalidate resets: %w", err)
	}
	return nil
}
