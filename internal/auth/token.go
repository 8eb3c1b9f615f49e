package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenIssuer mints stateless access tokens and opaque refresh secrets.
type TokenIssuer struct {
	cfg Config
}

func NewTokenIssuer(cfg Config) *TokenIssuer {
	return &TokenIssuer{cfg: cfg}
}

// AccessToken returns a signed short-lived bearer token for the account.
// It is never persisted and cannot be revoked before expiry; earlier
// revocation needs a shorter TTL, not a server-side check.
func (t *TokenIssuer) AccessToken(a *Account, now time.Time) (string, error) {
	claims := jwt.MapClaims{
		"iss":      t.cfg.Issuer,
		"sub":      strconv.FormatInt(a.ID, 10),
		"username": a.Username,
		"iat":      now.Unix(),
		"exp":      now.Add(t.cfg.AccessTokenTTL).Unix(),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(t.cfg.JWTSecret)
}

// ParseAccessToken validates a signed access token and returns the account id.
func (t *TokenIssuer) ParseAccessToken(raw string) (int64, error) {
	claims := jwt.MapClaims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(tk *jwt.Token) (any, error) {
		if _, ok := tk.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", tk.Header["alg"])
		}
		return t.cfg.JWTSecret, nil
	}, jwt.WithIssuer(t.cfg.Issuer), jwt.WithExpirationRequired())
	if err != nil || !tok.Valid {
		return 0, ErrInvalidAccessToken
	}
	sub, err := claims.GetSubject()
	if err != nil {
		return 0, ErrInvalidAccessToken
	}
	id, err := strconv.ParseInt(sub, 10, 64)
	if err != nil {
		return 0, ErrInvalidAccessToken
	}
	return id, nil
}

// NewRefreshSecret returns the opaque secret handed to the client, plus the
// digest persisted server-side. The raw secret exists only in the response.
func NewRefreshSecret() (secret, digest string, err error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", err
	}
	secret = base64.RawURLEncoding.EncodeToString(buf)
	return secret, HashRefreshSecret(secret), nil
}

// HashRefreshSecret computes the irreversible digest stored for a secret.
func HashRefreshSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}
