package postgres

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"buddiesfinder/internal/encryption"
	"buddiesfinder/internal/models"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Account{}, &models.FailedLogin{}, &models.PasswordReset{},
		&models.Activity{}, &models.ActivityParticipant{},
		&models.Post{}, &models.PostLike{}, &models.Comment{},
	))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func newTestAccounts(t *testing.T, db *gorm.DB) *AccountRepository {
	t.Helper()
	sealer, err := encryption.NewLocalManager(bytes.Repeat([]byte{3}, 32))
	require.NoError(t, err)
	return NewAccountRepository(db, sealer)
}

func createAccount(t *testing.T, repo *AccountRepository, name, email string) *models.Account {
	t.Helper()
	a := &models.Account{Name: name, Email: email, PasswordHash: "h", Role: models.RoleUser}
	require.NoError(t, repo.Create(context.Background(), a))
	require.NotZero(t, a.ID)
	return a
}

func TestAccountRepositoryCredentialUpdates(t *testing.T) {
	ctx := context.Background()
	repo := newTestAccounts(t, openTestDB(t))
	a := createAccount(t, repo, "Alice", "alice@example.com")

	err := repo.Create(ctx, &models.Account{Name: "Dup", Email: "alice@example.com", PasswordHash: "h", Role: models.RoleUser})
	assert.ErrorIs(t, err, models.ErrDuplicateRecord)

	_, err = repo.FindByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, models.ErrRecordNotFound)

	until := time.Date(2026, 3, 14, 17, 15, 0, 0, time.FixedZone("UTC+8", 8*3600))
	n, err := repo.UpdateLockedUntil(ctx, a.ID, &until)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := repo.FindByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	require.NotNil(t, got.LockedUntil)
	assert.True(t, got.LockedUntil.Equal(until))

	_, err = repo.UpdateLockedUntil(ctx, a.ID, nil)
	require.NoError(t, err)
	got, err = repo.FindByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Nil(t, got.LockedUntil)

	n, err = repo.UpdateLockedUntil(ctx, 9999, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestAccountRepositorySessionToken(t *testing.T) {
	ctx := context.Background()
	repo := newTestAccounts(t, openTestDB(t))
	a := createAccount(t, repo, "Alice", "alice@example.com")

	tok, err := repo.CurrentSessionToken(ctx, a.ID)
	require.NoError(t, err)
	assert.Empty(t, tok)

	token := "abc123"
	_, err = repo.UpdateSessionToken(ctx, a.ID, &token)
	require.NoError(t, err)
	tok, err = repo.CurrentSessionToken(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "abc123", tok)

	_, err = repo.UpdateSessionToken(ctx, a.ID, nil)
	require.NoError(t, err)
	tok, err = repo.CurrentSessionToken(ctx, a.ID)
	require.NoError(t, err)
	assert.Empty(t, tok)

	_, err = repo.CurrentSessionToken(ctx, 9999)
	assert.ErrorIs(t, err, models.ErrRecordNotFound)
}

func TestAccountRepositorySealsOTPSecret(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := newTestAccounts(t, db)
	a := createAccount(t, repo, "Alice", "alice@example.com")

	secret := "JBSWY3DPEHPK3PXP"
	_, err := repo.SetOTPSecret(ctx, a.ID, &secret)
	require.NoError(t, err)

	var raw string
	require.NoError(t, db.Model(&models.Account{}).Select("otp_secret").Where("id = ?", a.ID).Scan(&raw).Error)
	assert.NotContains(t, raw, secret)

	got, err := repo.FindByID(ctx, a.ID)
	require.NoError(t, err)
	require.True(t, got.HasOTPSecret())
	assert.Equal(t, secret, *got.OTPSecret)
	assert.False(t, got.OTPEnabled)

	n, err := repo.SetOTPEnabled(ctx, a.ID, true)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = repo.SetOTPSecret(ctx, a.ID, nil)
	require.NoError(t, err)
	got, err = repo.FindByID(ctx, a.ID)
	require.NoError(t, err)
	assert.False(t, got.HasOTPSecret())
	assert.False(t, got.OTPEnabled)

	n, err = repo.SetOTPEnabled(ctx, a.ID, true)
	require.NoError(t, err)
	assert.Zero(t, n, "cannot enable without a secret")
}

func TestAccountRepositorySearchByName(t *testing.T) {
	ctx := context.Background()
	repo := newTestAccounts(t, openTestDB(t))
	createAccount(t, repo, "Alice Tan", "alice@example.com")
	createAccount(t, repo, "Malik", "malik@example.com")
	createAccount(t, repo, "Bob", "bob@example.com")
	createAccount(t, repo, "100%_real", "weird@example.com")

	got, err := repo.SearchByName(ctx, "AL", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Alice Tan", got[0].Name)
	assert.Equal(t, "Malik", got[1].Name)

	got, err = repo.SearchByName(ctx, "%", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "100%_real", got[0].Name)
}

func TestFailedLoginLedger(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	ledger := NewFailedLoginRepository(db)
	a := createAccount(t, newTestAccounts(t, db), "Alice", "alice@example.com")
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	require.NoError(t, ledger.Insert(ctx, a.ID, now.Add(-11*time.Minute)))
	for i := 0; i < 3; i++ {
		require.NoError(t, ledger.Insert(ctx, a.ID, now.Add(-time.Duration(i)*time.Minute)))
	}

	n, err := ledger.CountSince(ctx, a.ID, now.Add(-10*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	require.NoError(t, ledger.DeleteAll(ctx, a.ID))
	n, err = ledger.CountSince(ctx, a.ID, time.Time{})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPasswordResetSingleUse(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	resets := NewPasswordResetRepository(db)
	a := createAccount(t, newTestAccounts(t, db), "Alice", "alice@example.com")

	reset := &models.PasswordReset{UserID: a.ID, TokenHash: "deadbeef", ExpiresAt: time.Now().Add(time.Hour)}
	require.NoError(t, resets.Create(ctx, reset))

	got, err := resets.FindByTokenHash(ctx, "deadbeef")
	require.NoError(t, err)
	assert.False(t, got.Used)

	n, err := resets.MarkUsed(ctx, got.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	n, err = resets.MarkUsed(ctx, got.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestActivityRepositoryJoinAndListing(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	accounts := newTestAccounts(t, db)
	repo := NewActivityRepository(db)
	host := createAccount(t, accounts, "Host", "host@example.com")
	u1 := createAccount(t, accounts, "One", "one@example.com")
	u2 := createAccount(t, accounts, "Two", "two@example.com")
	today := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

	badminton := &models.Activity{Name: "Badminton", Type: models.ActivitySports, SkillsRequired: "Basic",
		Date: today.AddDate(0, 0, 3), Location: "Hall A", MaxParticipants: 1, HostID: host.ID}
	chess := &models.Activity{Name: "Chess Club", Type: models.ActivityNonSports, SkillsRequired: "None",
		Date: today.AddDate(0, 0, 1), Location: "Library", MaxParticipants: 5, HostID: host.ID}
	past := &models.Activity{Name: "Old Hike", Type: models.ActivitySports, SkillsRequired: "Fit",
		Date: today.AddDate(0, 0, -2), Location: "Hill", MaxParticipants: 5, HostID: host.ID}
	for _, a := range []*models.Activity{badminton, chess, past} {
		require.NoError(t, repo.Create(ctx, a))
	}

	n, err := repo.AddParticipant(ctx, badminton.ID, u1.ID, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = repo.AddParticipant(ctx, badminton.ID, u2.ID, time.Now())
	require.NoError(t, err)
	assert.Zero(t, n, "activity is full")

	_, err = repo.AddParticipant(ctx, chess.ID, u1.ID, time.Now())
	require.NoError(t, err)
	_, err = repo.AddParticipant(ctx, chess.ID, u1.ID, time.Now())
	assert.ErrorIs(t, err, models.ErrDuplicateRecord)

	upcoming, err := repo.Upcoming(ctx, ActivityFilter{From: today})
	require.NoError(t, err)
	require.Len(t, upcoming, 1, "full and past activities are hidden")
	assert.Equal(t, "Chess Club", upcoming[0].Name)
	assert.Equal(t, "Host", upcoming[0].HostName)
	assert.Equal(t, 1, upcoming[0].ParticipantCount)

	none, err := repo.Upcoming(ctx, ActivityFilter{From: today, Types: []models.ActivityType{models.ActivitySports}})
	require.NoError(t, err)
	assert.Empty(t, none)

	byName, err := repo.Upcoming(ctx, ActivityFilter{From: today, Name: "CHESS"})
	require.NoError(t, err)
	assert.Len(t, byName, 1)

	joined, err := repo.JoinedBy(ctx, u1.ID, today)
	require.NoError(t, err)
	assert.Len(t, joined, 2)

	hosted, err := repo.HostedBy(ctx, host.ID, today)
	require.NoError(t, err)
	assert.Len(t, hosted, 2, "past activities are not listed")

	people, err := repo.Participants(ctx, chess.ID)
	require.NoError(t, err)
	require.Len(t, people, 1)
	assert.Equal(t, "One", people[0].Name)

	removed, err := repo.RemoveParticipant(ctx, badminton.ID, u1.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	deleted, err := repo.Delete(ctx, chess.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
	_, err = repo.FindByID(ctx, chess.ID)
	assert.ErrorIs(t, err, models.ErrRecordNotFound)
}

func TestPostRepositoryLikesAndComments(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	accounts := newTestAccounts(t, db)
	repo := NewPostRepository(db)
	alice := createAccount(t, accounts, "Alice", "alice@example.com")
	bob := createAccount(t, accounts, "Bob", "bob@example.com")
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	first := &models.Post{AuthorID: alice.ID, Content: "first", CreatedAt: base}
	second := &models.Post{AuthorID: bob.ID, Content: "second", CreatedAt: base.Add(time.Minute)}
	require.NoError(t, repo.Create(ctx, first))
	require.NoError(t, repo.Create(ctx, second))

	require.NoError(t, repo.Like(ctx, first.ID, bob.ID, base))
	require.NoError(t, repo.Like(ctx, first.ID, bob.ID, base), "liking twice is a no-op")
	require.NoError(t, repo.Like(ctx, first.ID, alice.ID, base))

	recent, err := repo.Recent(ctx, 50)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "second", recent[0].Content)
	assert.Equal(t, 2, recent[1].LikeCount)
	assert.Equal(t, "Alice", recent[1].AuthorName)

	featured, err := repo.MostLiked(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, "first", featured[0].Content)

	liked, err := repo.LikedBy(ctx, bob.ID, []int64{first.ID, second.ID})
	require.NoError(t, err)
	assert.True(t, liked[first.ID])
	assert.False(t, liked[second.ID])

	n, err := repo.Unlike(ctx, first.ID, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.NoError(t, repo.AddComment(ctx, &models.Comment{PostID: first.ID, AuthorID: bob.ID, Content: "nice", CreatedAt: base}))
	comments, err := repo.CommentsFor(ctx, []int64{first.ID})
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, "Bob", comments[0].AuthorName)

	deleted, err := repo.Delete(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
	comments, err = repo.CommentsFor(ctx, []int64{first.ID})
	require.NoError(t, err)
	assert.Empty(t, comments)
}
