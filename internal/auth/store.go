package auth

import (
	"context"
	"time"
)

// Store is the persistence surface of the subsystem. The Postgres
// implementation lives in the repo package; tests use an in-memory double.
//
// Methods called inside InTx ride the same transaction. For Postgres,
// GetRefreshTokenByHash takes a row lock (SELECT ... FOR UPDATE) when
// transactional, which serializes concurrent rotations of the same token.
type Store interface {
	GetAccountByUsername(ctx context.Context, username string) (*Account, error)
	GetAccountByID(ctx context.Context, id int64) (*Account, error)
	IncrementFailedAttempts(ctx context.Context, id int64) (int, error)
	LockAccount(ctx context.Context, id int64, until time.Time) error
	ResetFailedAttempts(ctx context.Context, id int64) error
	UpdatePassword(ctx context.Context, id int64, hash, scheme string) error
	SetAccountActive(ctx context.Context, id int64, active bool) error

	RecentSuspensions(ctx context.Context, accountID int64, limit int) ([]SuspensionRecord, error)
	AppendSuspension(ctx context.Context, rec *SuspensionRecord) error

	CreateRefreshToken(ctx context.Context, t *RefreshToken) error
	GetRefreshTokenByHash(ctx context.Context, tokenHash string) (*RefreshToken, error)
	RevokeRefreshToken(ctx context.Context, id int64, at time.Time) error
	DeleteRefreshToken(ctx context.Context, id int64) error
	DeleteTokenFamily(ctx context.Context, familyID string) (int64, error)
	DeleteAccountTokens(ctx context.Context, accountID int64) (int64, error)

	// InTx runs fn inside a single database transaction. The Store passed to
	// fn is scoped to that transaction; returning an error rolls it back.
	InTx(ctx context.Context, fn func(Store) error) error
}
