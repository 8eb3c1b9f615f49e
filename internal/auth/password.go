package auth

import (
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"

	"golang.org/x/crypto/bcrypt"
)

// PasswordHasher abstracts the modern hash scheme so cost can vary per test.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(hash, password string) bool
}

// BcryptHasher is the modern scheme. Hashing is CPU-bound, so concurrent work
// is bounded by a semaphore to avoid starving the request scheduler.
type BcryptHasher struct {
	cost int
	sem  chan struct{}
}

func NewBcryptHasher(cost, maxConcurrent int) *BcryptHasher {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &BcryptHasher{cost: cost, sem: make(chan struct{}, maxConcurrent)}
}

func (b *BcryptHasher) Hash(password string) (string, error) {
	b.sem <- struct{}{}
	defer func() { <-b.sem }()
	h, err := bcrypt.GenerateFromPassword([]byte(password), b.cost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

func (b *BcryptHasher) Verify(hash, password string) bool {
	b.sem <- struct{}{}
	defer func() { <-b.sem }()
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// LegacyDigest computes the pre-bcrypt salted digest, verification only.
// New hashes are always bcrypt.
func LegacyDigest(salt, password string) string {
	sum := md5.Sum([]byte(salt + password))
	return hex.EncodeToString(sum[:])
}

// VerifyResult reports whether a password matched and whether the stored
// credential should be upgraded to the modern scheme.
type VerifyResult struct {
	Valid         bool
	ShouldMigrate bool
}

// VerifyPassword checks a plaintext password against the account's stored
// credential. A legacy match flags migration; the caller re-hashes with the
// modern scheme within the same login. There is no downgrade path.
func VerifyPassword(h PasswordHasher, a *Account, password string) VerifyResult {
	if a.PasswordScheme == SchemeLegacy {
		salt := ""
		if a.LegacySalt != nil {
			salt = *a.LegacySalt
		}
		want := LegacyDigest(salt, password)
		if subtle.ConstantTimeCompare([]byte(want), []byte(a.PasswordHash)) == 1 {
			return VerifyResult{Valid: true, ShouldMigrate: true}
		}
		return VerifyResult{}
	}
	return VerifyResult{Valid: h.Verify(a.PasswordHash, password)}
}
