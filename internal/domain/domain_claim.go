package domain

import "time"

type ClaimStatus string

const (
	ClaimPending   ClaimStatus = "pending"
	ClaimVerified  ClaimStatus = "verified"
	ClaimFailed    ClaimStatus = "failed"
	ClaimSuspended ClaimStatus = "suspended"
)

// DomainClaim is a tenant's assertion of ownership over a hostname.
// The verification worker is the only writer after creation; the
// request layer reads it to answer "is this domain usable yet".
type DomainClaim struct {
	ID                 uint        `gorm:"primaryKey" json:"id"`
	TenantID           uint        `gorm:"index;not null" json:"tenant_id"`
	Hostname           string      `gorm:"size:255;uniqueIndex;not null" json:"hostname"`
	VerificationSecret string      `gorm:"size:128;not null" json:"-"`
	Status             ClaimStatus `gorm:"size:32;not null;default:'pending'" json:"status"`
	IsVerified         bool        `gorm:"not null;default:false" json:"is_verified"`
	VerifiedAt         *time.Time  `json:"verified_at,omitempty"`
	APIKey             string      `gorm:"size:128;not null" json:"-"`
	Attempts           int         `gorm:"not null;default:0" json:"attempts"`
	LastAttemptAt      *time.Time  `gorm:"index" json:"last_attempt_at,omitempty"`
	LastError          *string     `gorm:"size:512" json:"last_error,omitempty"`
	NextAttemptAt      *time.Time  `gorm:"index" json:"next_attempt_at,omitempty"`
	CreatedAt          time.Time   `json:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at"`
}

// Usable reports whether the claim may release its API key to a public
// caller. Both flags must agree.
func (c *DomainClaim) Usable() bool {
	return c.IsVerified && c.Status == ClaimVerified
}
