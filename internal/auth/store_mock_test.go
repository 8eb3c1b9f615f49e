package auth

import (
	"context"
	"sort"
	"sync"
	"time"
)

// memStore is an in-memory Store double. InTx just runs fn against the same
// store; transactional semantics are the Postgres implementation's concern.
type memStore struct {
	mu          sync.Mutex
	accounts    map[int64]*Account
	tokens      map[int64]*RefreshToken
	suspensions []SuspensionRecord

	updatePasswordErr   error
	updatePasswordCalls int
	inTxCalls           int
}

var _ Store = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{
		accounts: map[int64]*Account{},
		tokens:   map[int64]*RefreshToken{},
	}
}

func (m *memStore) addAccount(a Account) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := a
	m.accounts[a.ID] = &cp
}

func (m *memStore) account(id int64) Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.accounts[id]
}

func (m *memStore) tokenByHash(hash string) *RefreshToken {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tokens {
		if t.TokenHash == hash {
			cp := *t
			return &cp
		}
	}
	return nil
}

func (m *memStore) familyTokens(familyID string) []RefreshToken {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []RefreshToken
	for _, t := range m.tokens {
		if t.FamilyID == familyID {
			out = append(out, *t)
		}
	}
	return out
}

func (m *memStore) liveTokens(familyID string, now time.Time) int {
	n := 0
	for _, t := range m.familyTokens(familyID) {
		if !t.Revoked && t.ExpiresAt.After(now) {
			n++
		}
	}
	return n
}

func (m *memStore) tokenCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tokens)
}

func (m *memStore) GetAccountByUsername(ctx context.Context, username string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if a.Username == username {
			cp := *a
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memStore) GetAccountByID(ctx context.Context, id int64) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memStore) IncrementFailedAttempts(ctx context.Context, id int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return 0, ErrNotFound
	}
	a.FailedAttempts++
	return a.FailedAttempts, nil
}

func (m *memStore) LockAccount(ctx context.Context, id int64, until time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.accounts[id]; ok {
		u := until
		a.LockedUntil = &u
	}
	return nil
}

func (m *memStore) ResetFailedAttempts(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.accounts[id]; ok {
		a.FailedAttempts = 0
		a.LockedUntil = nil
	}
	return nil
}

func (m *memStore) UpdatePassword(ctx context.Context, id int64, hash, scheme string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updatePasswordCalls++
	if m.updatePasswordErr != nil {
		return m.updatePasswordErr
	}
	if a, ok := m.accounts[id]; ok {
		a.PasswordHash = hash
		a.PasswordScheme = scheme
		a.LegacySalt = nil
	}
	return nil
}

func (m *memStore) SetAccountActive(ctx context.Context, id int64, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.accounts[id]; ok {
		a.Active = active
	}
	return nil
}

func (m *memStore) RecentSuspensions(ctx context.Context, accountID int64, limit int) ([]SuspensionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []SuspensionRecord
	for _, r := range m.suspensions {
		if r.AccountID == accountID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ActionedAt.Equal(out[j].ActionedAt) {
			return out[i].ActionedAt.After(out[j].ActionedAt)
		}
		return out[i].ID > out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) AppendSuspension(ctx context.Context, rec *SuspensionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.suspensions = append(m.suspensions, *rec)
	return nil
}

func (m *memStore) CreateRefreshToken(ctx context.Context, t *RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.tokens[t.ID] = &cp
	return nil
}

func (m *memStore) GetRefreshTokenByHash(ctx context.Context, tokenHash string) (*RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tokens {
		if t.TokenHash == tokenHash {
			cp := *t
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memStore) RevokeRefreshToken(ctx context.Context, id int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tokens[id]; ok && !t.Revoked {
		t.Revoked = true
		ts := at
		t.RevokedAt = &ts
	}
	return nil
}

func (m *memStore) DeleteRefreshToken(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, id)
	return nil
}

func (m *memStore) DeleteTokenFamily(ctx context.Context, familyID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, t := range m.tokens {
		if t.FamilyID == familyID {
			delete(m.tokens, id)
			n++
		}
	}
	return n, nil
}

func (m *memStore) DeleteAccountTokens(ctx context.Context, accountID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, t := range m.tokens {
		if t.AccountID == accountID {
			delete(m.tokens, id)
			n++
		}
	}
	return n, nil
}

func (m *memStore) InTx(ctx context.Context, fn func(Store) error) error {
	m.inTxCalls++
	return fn(m)
}
