package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/anonymousobject/shuushuu-api-sub001/internal/auth"
)

// Store is the Postgres implementation of auth.Store using sqlx.
// Outside a transaction q is the *sqlx.DB; inside InTx it is the *sqlx.Tx,
// so every method transparently rides the transaction it was called under.
type Store struct {
	db *sqlx.DB
	q  sqlx.ExtContext
}

var _ auth.Store = (*Store)(nil)

func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db, q: db}
}

// EnsureSchema creates the subsystem's tables if they do not exist.
// Convenience for early development; prefer migrations in production.
func (s *Store) EnsureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS accounts (
  id BIGSERIAL PRIMARY KEY,
  username TEXT UNIQUE NOT NULL,
  email TEXT UNIQUE NOT NULL,
  password_hash TEXT NOT NULL,
  password_scheme TEXT NOT NULL DEFAULT 'modern',
  legacy_salt TEXT,
  failed_attempts INT NOT NULL DEFAULT 0,
  locked_until TIMESTAMPTZ,
  active BOOLEAN NOT NULL DEFAULT true,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS refresh_tokens (
  id BIGINT PRIMARY KEY,
  account_id BIGINT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
  token_hash TEXT UNIQUE NOT NULL,
  family_id TEXT NOT NULL,
  parent_token_id BIGINT,
  expires_at TIMESTAMPTZ NOT NULL,
  revoked BOOLEAN NOT NULL DEFAULT false,
  revoked_at TIMESTAMPTZ,
  ip_address TEXT NOT NULL DEFAULT '',
  user_agent TEXT NOT NULL DEFAULT '',
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_refresh_tokens_family ON refresh_tokens(family_id);
CREATE INDEX IF NOT EXISTS idx_refresh_tokens_account ON refresh_tokens(account_id);
CREATE TABLE IF NOT EXISTS suspension_records (
  id BIGINT PRIMARY KEY,
  account_id BIGINT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
  action TEXT NOT NULL,
  actioned_by BIGINT,
  actioned_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  suspended_until TIMESTAMPTZ,
  reason TEXT,
  acknowledged_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_suspension_records_account ON suspension_records(account_id, actioned_at DESC);
`
	_, err := s.q.ExecContext(ctx, ddl)
	return err
}

// InTx runs fn within one transaction, giving it a tx-scoped Store.
// Nested calls join the enclosing transaction.
func (s *Store) InTx(ctx context.Context, fn func(auth.Store) error) error {
	if _, ok := s.q.(*sqlx.Tx); ok {
		return fn(s)
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(&Store{db: s.db, q: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

const accountColumns = `id, username, email, password_hash, password_scheme, legacy_salt,
	failed_attempts, locked_until, active, created_at, updated_at`

func (s *Store) GetAccountByUsername(ctx context.Context, username string) (*auth.Account, error) {
	q := `SELECT ` + accountColumns + ` FROM accounts WHERE username=$1`
	var a auth.Account
	if err := sqlx.GetContext(ctx, s.q, &a, q, username); err != nil {
		return nil, mapNoRows(err)
	}
	return &a, nil
}

func (s *Store) GetAccountByID(ctx context.Context, id int64) (*auth.Account, error) {
	q := `SELECT ` + accountColumns + ` FROM accounts WHERE id=$1`
	var a auth.Account
	if err := sqlx.GetContext(ctx, s.q, &a, q, id); err != nil {
		return nil, mapNoRows(err)
	}
	return &a, nil
}

// IncrementFailedAttempts bumps the counter atomically and returns the new value.
func (s *Store) IncrementFailedAttempts(ctx context.Context, id int64) (int, error) {
	const q = `UPDATE accounts SET failed_attempts = failed_attempts + 1, updated_at=NOW()
		WHERE id=$1 RETURNING failed_attempts`
	var n int
	if err := sqlx.GetContext(ctx, s.q, &n, q, id); err != nil {
		return 0, mapNoRows(err)
	}
	return n, nil
}

func (s *Store) LockAccount(ctx context.Context, id int64, until time.Time) error {
	const q = `UPDATE accounts SET locked_until=$2, updated_at=NOW() WHERE id=$1`
	_, err := s.q.ExecContext(ctx, q, id, until)
	return err
}

func (s *Store) ResetFailedAttempts(ctx context.Context, id int64) error {
	const q = `UPDATE accounts SET failed_attempts=0, locked_until=NULL, updated_at=NOW() WHERE id=$1`
	_, err := s.q.ExecContext(ctx, q, id)
	return err
}

// UpdatePassword stores a new hash and scheme. The legacy salt is cleared;
// once an account is modern it never goes back.
func (s *Store) UpdatePassword(ctx context.Context, id int64, hash, scheme string) error {
	const q = `UPDATE accounts SET password_hash=$2, password_scheme=$3, legacy_salt=NULL, updated_at=NOW() WHERE id=$1`
	_, err := s.q.ExecContext(ctx, q, id, hash, scheme)
	return err
}

func (s *Store) SetAccountActive(ctx context.Context, id int64, active bool) error {
	const q = `UPDATE accounts SET active=$2, updated_at=NOW() WHERE id=$1`
	_, err := s.q.ExecContext(ctx, q, id, active)
	return err
}

func (s *Store) RecentSuspensions(ctx context.Context, accountID int64, limit int) ([]auth.SuspensionRecord, error) {
	const q = `SELECT id, account_id, action, actioned_by, actioned_at, suspended_until, reason, acknowledged_at
		FROM suspension_records WHERE account_id=$1 ORDER BY actioned_at DESC, id DESC LIMIT $2`
	var recs []auth.SuspensionRecord
	if err := sqlx.SelectContext(ctx, s.q, &recs, q, accountID, limit); err != nil {
		return nil, err
	}
	return recs, nil
}

func (s *Store) AppendSuspension(ctx context.Context, rec *auth.SuspensionRecord) error {
	const q = `INSERT INTO suspension_records (id, account_id, action, actioned_by, actioned_at, suspended_until, reason, acknowledged_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := s.q.ExecContext(ctx, q, rec.ID, rec.AccountID, rec.Action, rec.ActionedBy,
		rec.ActionedAt, rec.SuspendedUntil, rec.Reason, rec.AcknowledgedAt)
	return err
}

func (s *Store) CreateRefreshToken(ctx context.Context, t *auth.RefreshToken) error {
	const q = `INSERT INTO refresh_tokens (id, account_id, token_hash, family_id, parent_token_id,
		expires_at, revoked, revoked_at, ip_address, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := s.q.ExecContext(ctx, q, t.ID, t.AccountID, t.TokenHash, t.FamilyID, t.ParentTokenID,
		t.ExpiresAt, t.Revoked, t.RevokedAt, t.IPAddress, t.UserAgent, t.CreatedAt)
	return err
}

// GetRefreshTokenByHash looks a token up by secret digest. Inside a
// transaction it takes a row lock so concurrent rotations of the same token
// serialize; the loser then observes revoked=true and trips reuse detection
// instead of creating a second live child.
func (s *Store) GetRefreshTokenByHash(ctx context.Context, tokenHash string) (*auth.RefreshToken, error) {
	q := `SELECT id, account_id, token_hash, family_id, parent_token_id, expires_at,
		revoked, revoked_at, ip_address, user_agent, created_at
		FROM refresh_tokens WHERE token_hash=$1`
	if _, ok := s.q.(*sqlx.Tx); ok {
		q += ` FOR UPDATE`
	}
	var t auth.RefreshToken
	if err := sqlx.GetContext(ctx, s.q, &t, q, tokenHash); err != nil {
		return nil, mapNoRows(err)
	}
	return &t, nil
}

func (s *Store) RevokeRefreshToken(ctx context.Context, id int64, at time.Time) error {
	const q = `UPDATE refresh_tokens SET revoked=true, revoked_at=$2 WHERE id=$1 AND NOT revoked`
	_, err := s.q.ExecContext(ctx, q, id, at)
	return err
}

func (s *Store) DeleteRefreshToken(ctx context.Context, id int64) error {
	_, err := s.q.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE id=$1`, id)
	return err
}

func (s *Store) DeleteTokenFamily(ctx context.Context, familyID string) (int64, error) {
	res, err := s.q.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE family_id=$1`, familyID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) DeleteAccountTokens(ctx context.Context, accountID int64) (int64, error) {
	res, err := s.q.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE account_id=$1`, accountID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func mapNoRows(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return auth.ErrNotFound
	}
	return err
}
