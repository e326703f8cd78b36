// Package domain contains one-time token types for verification and reset
// flows.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Kind distinguishes the two one-time token flows.
type Kind string

const (
	KindPasswordReset     Kind = "password_reset"
	KindEmailVerification Kind = "email_verification"
)

// OneTimeToken stores the salted hash of a random secret. The plaintext
// value is returned to the caller once and never persisted; the record is
// redeemable exactly once, only before expiry.
type OneTimeToken struct {
	ID           string       `gorm:"primaryKey;type:text"`
	UserID       snowflake.ID `gorm:"column:user_id;not null;index"`
	Kind         Kind         `gorm:"type:text;not null;index"`
	Salt         string       `gorm:"type:text;not null"`
	VerifierHash string       `gorm:"column:verifier_hash;type:text;not null"`
	ExpiresAt    time.Time    `gorm:"column:expires_at;not null"`
	Used         bool         `gorm:"not null;default:false"`
	RequestedAt  time.Time    `gorm:"column:requested_at;not null;index"`
	CreatedAt    time.Time    `gorm:"column:created_at;not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (OneTimeToken) TableName() string { return "one_time_tokens" }
