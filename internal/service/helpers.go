package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"buddiesfinder/internal/models"
	"buddiesfinder/internal/security"
)

type accountFinder interface {
	FindByID(ctx context.Context, id int64) (*models.Account, error)
}

func findAccount(ctx context.Context, accounts accountFinder, id int64) (*models.Account, error) {
	account, err := accounts.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	return account, nil
}

// startOfToday is midnight of now's calendar day in the UTC+8 zone.
func startOfToday(now time.Time) time.Time {
	local := now.In(security.LockZone)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, security.LockZone)
}
