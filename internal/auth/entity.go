package auth

import "time"

// Password schemes stored on an account. New hashes are always modern;
// legacy survives only until the account's next successful login.
const (
	SchemeLegacy = "legacy"
	SchemeModern = "modern"
)

// Suspension ledger actions.
const (
	ActionSuspended   = "suspended"
	ActionReactivated = "reactivated"
	ActionWarning     = "warning"
)

// Account is an accounts row. Only the fields this subsystem touches.
type Account struct {
	ID             int64      `db:"id"`
	Username       string     `db:"username"`
	Email          string     `db:"email"`
	PasswordHash   string     `db:"password_hash"`
	PasswordScheme string     `db:"password_scheme"`
	LegacySalt     *string    `db:"legacy_salt"`
	FailedAttempts int        `db:"failed_attempts"`
	LockedUntil    *time.Time `db:"locked_until"`
	Active         bool       `db:"active"`
	CreatedAt      time.Time  `db:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at"`
}

// RefreshToken is one member of a rotation family. The raw bearer secret is
// never persisted; TokenHash holds its SHA-256 digest.
type RefreshToken struct {
	ID            int64      `db:"id"`
	AccountID     int64      `db:"account_id"`
	TokenHash     string     `db:"token_hash"`
	FamilyID      string     `db:"family_id"`
	ParentTokenID *int64     `db:"parent_token_id"`
	ExpiresAt     time.Time  `db:"expires_at"`
	Revoked       bool       `db:"revoked"`
	RevokedAt     *time.Time `db:"revoked_at"`
	IPAddress     string     `db:"ip_address"`
	UserAgent     string     `db:"user_agent"`
	CreatedAt     time.Time  `db:"created_at"`
}

// SuspensionRecord is one entry in the append-only suspension ledger. The
// account's cached active flag is a denormalized mirror of this ledger and is
// corrected from it, never the other way around.
type SuspensionRecord struct {
	ID             int64      `db:"id"`
	AccountID      int64      `db:"account_id"`
	Action         string     `db:"action"`
	ActionedBy     *int64     `db:"actioned_by"`
	ActionedAt     time.Time  `db:"actioned_at"`
	SuspendedUntil *time.Time `db:"suspended_until"`
	Reason         *string    `db:"reason"`
	AcknowledgedAt *time.Time `db:"acknowledged_at"`
}
