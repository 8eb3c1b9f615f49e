package auth

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/anonymousobject/shuushuu-api-sub001/pkg/utilities"
)

// Service orchestrates login, refresh rotation, logout and password change.
type Service struct {
	store  Store
	hasher PasswordHasher
	issuer *TokenIssuer
	cfg    Config
	logger *zap.SugaredLogger
	now    func() time.Time
}

// NewService constructs a Service. A nil hasher gets the bounded bcrypt
// hasher built from cfg.
func NewService(store Store, hasher PasswordHasher, cfg Config, logger *zap.SugaredLogger) *Service {
	if hasher == nil {
		hasher = NewBcryptHasher(cfg.BcryptCost, cfg.HashWorkers)
	}
	return &Service{
		store:  store,
		hasher: hasher,
		issuer: NewTokenIssuer(cfg),
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// Issuer exposes the token issuer for transport middleware.
func (s *Service) Issuer() *TokenIssuer { return s.issuer }

// txContext bounds the transactional part of a flow. Hashing happens before
// this deadline starts ticking.
func (s *Service) txContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.TxTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.cfg.TxTimeout)
}

// TokenPair is the result of a successful login or refresh.
type TokenPair struct {
	AccessToken   string
	RefreshSecret string
}

// ClientMeta carries issuance metadata recorded on refresh-token rows.
type ClientMeta struct {
	IP        string
	UserAgent string
}

// Login verifies credentials and, if the account is unlocked and
// unsuspended, starts a new refresh-token family.
func (s *Service) Login(ctx context.Context, username, password string, meta ClientMeta) (*TokenPair, error) {
	a, err := s.store.GetAccountByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	now := s.now()

	// lockout check first: no hashing, no counter bump while locked
	if a.LockedUntil != nil && a.LockedUntil.After(now) {
		return nil, &LockedError{RetryAfter: a.LockedUntil.Sub(now)}
	}

	res := VerifyPassword(s.hasher, a, password)
	if !res.Valid {
		return nil, s.recordFailure(ctx, a, now)
	}

	txCtx, cancel := s.txContext(ctx)
	defer cancel()

	var pair *TokenPair
	err = s.store.InTx(txCtx, func(st Store) error {
		if err := evaluateSuspension(txCtx, st, a, now); err != nil {
			return err
		}
		if err := st.ResetFailedAttempts(txCtx, a.ID); err != nil {
			return err
		}
		p, err := s.issueFamily(txCtx, st, a, now, meta)
		if err != nil {
			return err
		}
		pair = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	if res.ShouldMigrate {
		s.migratePassword(ctx, a, password)
	}
	return pair, nil
}

// recordFailure persists one failed attempt and locks the account when the
// counter reaches the threshold. Always surfaces a client-facing error.
func (s *Service) recordFailure(ctx context.Context, a *Account, now time.Time) error {
	n, err := s.store.IncrementFailedAttempts(ctx, a.ID)
	if err != nil {
		s.logger.Warnw("failed-attempt counter update failed", "account_id", a.ID, "err", err)
		return ErrInvalidCredentials
	}
	if n >= s.cfg.MaxFailedLogins {
		until := now.Add(s.cfg.LockoutWindow)
		if err := s.store.LockAccount(ctx, a.ID, until); err != nil {
			s.logger.Warnw("account lock failed", "account_id", a.ID, "err", err)
			return ErrInvalidCredentials
		}
		s.logger.Infow("account locked after repeated failures",
			"account_id", a.ID, "attempts", n, "locked_until", until)
		return &LockedError{RetryAfter: s.cfg.LockoutWindow}
	}
	return ErrInvalidCredentials
}

// migratePassword upgrades a legacy credential to the modern scheme.
// Best-effort: a failed write leaves the account on legacy until the next
// successful login and never fails the login itself.
func (s *Service) migratePassword(ctx context.Context, a *Account, password string) {
	hash, err := s.hasher.Hash(password)
	if err == nil {
		err = s.store.UpdatePassword(ctx, a.ID, hash, SchemeModern)
	}
	if err != nil {
		s.logger.Warnw("legacy password migration failed", "account_id", a.ID, "err", err)
		return
	}
	s.logger.Infow("password migrated to modern scheme", "account_id", a.ID)
}

// issueFamily creates the first member of a new token family.
func (s *Service) issueFamily(ctx context.Context, st Store, a *Account, now time.Time, meta ClientMeta) (*TokenPair, error) {
	secret, digest, err := NewRefreshSecret()
	if err != nil {
		return nil, err
	}
	t := &RefreshToken{
		ID:        utilities.NewRowID(),
		AccountID: a.ID,
		TokenHash: digest,
		FamilyID:  utilities.NewKSUID(),
		ExpiresAt: now.Add(s.cfg.RefreshTokenTTL),
		IPAddress: meta.IP,
		UserAgent: meta.UserAgent,
		CreatedAt: now,
	}
	if err := st.CreateRefreshToken(ctx, t); err != nil {
		return nil, err
	}
	access, err := s.issuer.AccessToken(a, now)
	if err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: access, RefreshSecret: secret}, nil
}

// Refresh validates a presented refresh secret and rotates the chain, or
// revokes the entire family when the secret was already consumed.
//
// The whole decision runs in one transaction with the token row locked, so
// two concurrent presentations of the same secret serialize: the second
// observes the first's commit and takes the reuse branch. Side-effectful
// failures (expiry cleanup, family wipe) must survive the failed request, so
// they commit and the error is surfaced afterwards.
func (s *Service) Refresh(ctx context.Context, refreshSecret string, meta ClientMeta) (*TokenPair, error) {
	digest := HashRefreshSecret(refreshSecret)
	now := s.now()

	txCtx, cancel := s.txContext(ctx)
	defer cancel()

	var pair *TokenPair
	var failErr error
	err := s.store.InTx(txCtx, func(st Store) error {
		old, err := st.GetRefreshTokenByHash(txCtx, digest)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				// deliberately indistinguishable from deleted-by-replay
				failErr = ErrInvalidToken
				return nil
			}
			return err
		}

		if !old.ExpiresAt.After(now) {
			// routine cleanup, not a security event
			if err := st.DeleteRefreshToken(txCtx, old.ID); err != nil {
				return err
			}
			failErr = ErrExpiredToken
			return nil
		}

		if old.Revoked {
			// replay: the secret was consumed by an earlier rotation
			n, err := st.DeleteTokenFamily(txCtx, old.FamilyID)
			if err != nil {
				return err
			}
			s.logger.Warnw("refresh token reuse detected, family revoked",
				"account_id", old.AccountID, "family_id", old.FamilyID, "tokens_deleted", n)
			failErr = ErrReuseDetected
			return nil
		}

		a, err := st.GetAccountByID(txCtx, old.AccountID)
		if err != nil {
			return err
		}
		if err := evaluateSuspension(txCtx, st, a, now); err != nil {
			if errors.Is(err, ErrAccountSuspended) || errors.Is(err, ErrAccountInactive) {
				failErr = err
				return nil
			}
			return err
		}

		pair, err = s.rotate(txCtx, st, a, old, now, meta)
		return err
	})
	if err != nil {
		return nil, err
	}
	if failErr != nil {
		return nil, failErr
	}
	return pair, nil
}

// rotate inserts the next family member and retires its parent. Both writes
// commit together with the surrounding transaction: a crash cannot leave the
// old token revoked without a successor, nor two live tokens in one family.
func (s *Service) rotate(ctx context.Context, st Store, a *Account, old *RefreshToken, now time.Time, meta ClientMeta) (*TokenPair, error) {
	secret, digest, err := NewRefreshSecret()
	if err != nil {
		return nil, err
	}
	parentID := old.ID
	next := &RefreshToken{
		ID:            utilities.NewRowID(),
		AccountID:     a.ID,
		TokenHash:     digest,
		FamilyID:      old.FamilyID,
		ParentTokenID: &parentID,
		ExpiresAt:     now.Add(s.cfg.RefreshTokenTTL),
		IPAddress:     meta.IP,
		UserAgent:     meta.UserAgent,
		CreatedAt:     now,
	}
	if err := st.CreateRefreshToken(ctx, next); err != nil {
		return nil, err
	}
	if err := st.RevokeRefreshToken(ctx, old.ID, now); err != nil {
		return nil, err
	}
	access, err := s.issuer.AccessToken(a, now)
	if err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: access, RefreshSecret: secret}, nil
}

// Logout revokes the single token matching the presented secret. Absent or
// already-revoked tokens are a no-op: logout always appears to succeed.
func (s *Service) Logout(ctx context.Context, refreshSecret string) error {
	t, err := s.store.GetRefreshTokenByHash(ctx, HashRefreshSecret(refreshSecret))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	if t.Revoked {
		return nil
	}
	return s.store.RevokeRefreshToken(ctx, t.ID, s.now())
}

// LogoutAll deletes every refresh token for the account, regardless of
// family, revoked state or expiry. Idempotent.
func (s *Service) LogoutAll(ctx context.Context, accountID int64) (int64, error) {
	n, err := s.store.DeleteAccountTokens(ctx, accountID)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Infow("all sessions revoked", "account_id", accountID, "count", n)
	}
	return n, nil
}

// ChangePassword verifies the current password, stores the new one under the
// modern scheme and revokes every session.
func (s *Service) ChangePassword(ctx context.Context, accountID int64, current, next string) error {
	a, err := s.store.GetAccountByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrInvalidCredentials
		}
		return err
	}
	if res := VerifyPassword(s.hasher, a, current); !res.Valid {
		return ErrInvalidCredentials
	}
	if len(next) < s.cfg.MinPasswordLength {
		return ErrWeakPassword
	}
	hash, err := s.hasher.Hash(next)
	if err != nil {
		return err
	}
	txCtx, cancel := s.txContext(ctx)
	defer cancel()
	err = s.store.InTx(txCtx, func(st Store) error {
		if err := st.UpdatePassword(txCtx, accountID, hash, SchemeModern); err != nil {
			return err
		}
		_, err := st.DeleteAccountTokens(txCtx, accountID)
		return err
	})
	if err != nil {
		return err
	}
	s.logger.Infow("password changed, all sessions revoked", "account_id", accountID)
	return nil
}
