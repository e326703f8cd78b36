// Package domain contains core types for the auth service.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// User represents a principal. Session state is held in explicit typed
// columns rather than a multiplexed metadata blob: the single refresh-token
// slot, the logout marker, and the device info each have their own field so
// unrelated mutations cannot race on one record value.
type User struct {
	ID              snowflake.ID  `gorm:"primaryKey"`
	ExternalID      string        `gorm:"type:text;not null;uniqueIndex"`
	Email           string        `gorm:"type:text;not null;uniqueIndex"`
	DisplayName     string        `gorm:"type:text"`
	PasswordHash    *string       `gorm:"type:text"`
	OrgID           *snowflake.ID `gorm:"column:org_id;index"`
	IsActive        bool          `gorm:"column:is_active;not null;default:true"`
	EmailVerified   bool          `gorm:"column:email_verified;not null;default:false"`
	IsPlatformAdmin bool          `gorm:"column:is_platform_admin;not null;default:false"`

	// Single-slot refresh session. At most one live refresh-token hash
	// exists per principal; a second login overwrites the first.
	RefreshTokenHash      *string    `gorm:"column:refresh_token_hash;type:text"`
	RefreshTokenExpiresAt *time.Time `gorm:"column:refresh_token_expires_at"`
	LoggedOutAt           *time.Time `gorm:"column:logged_out_at"`
	SessionUserAgent      string     `gorm:"column:session_user_agent;type:text"`
	SessionIPAddress      string     `gorm:"column:session_ip_address;type:text"`
	SessionCreatedAt      *time.Time `gorm:"column:session_created_at"`

	LastLoginAt         *time.Time        `gorm:"column:last_login_at"`
	LastPasswordChanged *time.Time        `gorm:"column:last_password_changed"`
	Metadata            datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'"`
	CreatedAt           time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt           time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (User) TableName() string { return "users" }

// CurrentSessionID is the only representable session identifier; the session
// list view synthesizes at most one entry from the refresh slot.
const CurrentSessionID = "current-session"

// SessionView is returned to clients without exposing token values.
type SessionView struct {
	ID        string    `json:"id"`
	UserAgent string    `json:"user_agent,omitempty"`
	IPAddress string    `json:"ip_address,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// UserView is the principal shape embedded in auth responses.
type UserView struct {
	ID              string     `json:"id"`
	Email           string     `json:"email"`
	DisplayName     string     `json:"display_name"`
	OrgID           *string    `json:"org_id,omitempty"`
	EmailVerified   bool       `json:"email_verified"`
	IsPlatformAdmin bool       `json:"is_platform_admin"`
	LastLoginAt     *time.Time `json:"last_login_at,omitempty"`
}

// View converts the record to its response shape.
func (u *User) View() UserView {
	view := UserView{
		ID:              u.ID.String(),
		Email:           u.Email,
		DisplayName:     u.DisplayName,
		EmailVerified:   u.EmailVerified,
		IsPlatformAdmin: u.IsPlatformAdmin,
		LastLoginAt:     u.LastLoginAt,
	}
	if u.OrgID != nil {
		orgID := u.OrgID.String()
		view.OrgID = &orgID
	}
	return view
}
