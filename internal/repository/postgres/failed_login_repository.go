package postgres

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"buddiesfinder/internal/models"
)

// FailedLoginRepository is the failure ledger shared by both factors.
type FailedLoginRepository struct {
	db *gorm.DB
}

func NewFailedLoginRepository(db *gorm.DB) *FailedLoginRepository {
	return &FailedLoginRepository{db: db}
}

func (r *FailedLoginRepository) Insert(ctx context.Context, accountID int64, at time.Time) error {
	row := models.FailedLogin{UserID: accountID, AttemptedAt: at.UTC()}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("insert failed login: %w", err)
	}
	return nil
}

func (r *FailedLoginRepository) CountSince(ctx context.Context, accountID int64, since time.Time) (int, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.FailedLogin{}).
		Where("user_id = ? AND attempted_at >= ?", accountID, since.UTC()).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count failed logins: %w", err)
	}
	return int(n), nil
}

func (r *FailedLoginRepository) DeleteAll(ctx context.Context, accountID int64) error {
	if err := r.db.WithContext(ctx).Where("user_id = ?", accountID).Delete(&models.FailedLogin{}).Error; err != nil {
		return fmt.Errorf("delete failed logins: %w", err)
	}
	return nil
}
