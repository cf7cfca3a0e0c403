package security

import (
	"context"
	"errors"
	"sync"
	"time"

	"buddiesfinder/internal/models"
)

type memoryAccounts struct {
	mu       sync.Mutex
	accounts map[int64]*models.Account
}

func newMemoryAccounts(accounts ...*models.Account) *memoryAccounts {
	m := &memoryAccounts{accounts: make(map[int64]*models.Account)}
	for _, a := range accounts {
		m.accounts[a.ID] = a
	}
	return m
}

func (m *memoryAccounts) FindByEmail(_ context.Context, email string) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if a.Email == email {
			cp := *a
			return &cp, nil
		}
	}
	return nil, models.ErrRecordNotFound
}

func (m *memoryAccounts) FindByID(_ context.Context, id int64) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return nil, models.ErrRecordNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memoryAccounts) UpdateLockedUntil(_ context.Context, id int64, until *time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return 0, nil
	}
	a.LockedUntil = until
	return 1, nil
}

func (m *memoryAccounts) UpdateSessionToken(_ context.Context, id int64, token *string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return 0, nil
	}
	a.SessionToken = token
	return 1, nil
}

func (m *memoryAccounts) CurrentSessionToken(_ context.Context, id int64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return "", models.ErrRecordNotFound
	}
	if a.SessionToken == nil {
		return "", nil
	}
	return *a.SessionToken, nil
}

func (m *memoryAccounts) get(id int64) models.Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.accounts[id]
}

type memoryLedger struct {
	mu       sync.Mutex
	failures map[int64][]time.Time
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{failures: make(map[int64][]time.Time)}
}

func (l *memoryLedger) Insert(_ context.Context, accountID int64, at time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failures[accountID] = append(l.failures[accountID], at)
	return nil
}

func (l *memoryLedger) CountSince(_ context.Context, accountID int64, since time.Time) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, at := range l.failures[accountID] {
		if !at.Before(since) {
			n++
		}
	}
	return n, nil
}

func (l *memoryLedger) DeleteAll(_ context.Context, accountID int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.failures, accountID)
	return nil
}

func (l *memoryLedger) len(accountID int64) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.failures[accountID])
}

// countingVerifier accepts hash == password and counts comparisons.
type countingVerifier struct {
	calls int
}

func (v *countingVerifier) VerifyPassword(password, encodedHash string) bool {
	v.calls++
	return password == encodedHash
}

type stubCodes struct {
	valid string
}

func (c stubCodes) Validate(code, _ string, _ time.Time) bool {
	return code == c.valid
}

type failingTokens struct{}

func (failingTokens) CurrentSessionToken(context.Context, int64) (string, error) {
	return "", errors.New("connection reset")
}
