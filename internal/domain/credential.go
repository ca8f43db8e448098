package domain

import "time"

// Revocation reasons recorded on refresh credentials.
const (
	RevokedRotated     = "rotated"
	RevokedLogout      = "logout"
	RevokedSessionCap  = "exceeded maximum active sessions"
	RevokedAllSessions = "all sessions revoked"
)

// RefreshCredential is one long-lived session grant. Only the SHA-256
// hash of the raw secret is ever stored; the raw value is handed to the
// caller exactly once at issuance. Rows are never hard-deleted outside
// the retention sweep so revocations stay auditable.
type RefreshCredential struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	UserID        uint       `gorm:"index;not null" json:"user_id"`
	SecretHash    string     `gorm:"size:128;uniqueIndex;not null" json:"-"`
	UserAgent     string     `gorm:"size:512" json:"user_agent"`
	IP            string     `gorm:"size:64" json:"ip"`
	ExpiresAt     time.Time  `gorm:"index;not null" json:"expires_at"`
	RevokedAt     *time.Time `gorm:"index" json:"revoked_at,omitempty"`
	RevokedReason *string    `gorm:"size:64" json:"revoked_reason,omitempty"`
	RevokedByIP   *string    `gorm:"size:64" json:"-"`
	ReplacedByID  *uint      `gorm:"index" json:"-"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Active reports whether the credential can still mint access tokens.
func (c *RefreshCredential) Active(now time.Time) bool {
	return c.RevokedAt == nil && now.Before(c.ExpiresAt)
}
