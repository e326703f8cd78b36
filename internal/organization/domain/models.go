// Package domain contains persistence models for the organization service.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// OrgType drives the static capability table.
type OrgType string

const (
	TypeFarmOperation   OrgType = "farm_operation"
	TypeTradingCompany  OrgType = "trading_company"
	TypeCooperative     OrgType = "cooperative"
	TypeServiceProvider OrgType = "service_provider"
)

// PlanTier is the billing plan of a tenant.
type PlanTier string

const (
	PlanFree     PlanTier = "free"
	PlanStandard PlanTier = "standard"
	PlanPremium  PlanTier = "premium"
)

// Organization represents a tenant.
type Organization struct {
	ID           snowflake.ID      `gorm:"primaryKey" json:"id"`
	Name         string            `gorm:"type:text;not null" json:"name"`
	Slug         string            `gorm:"type:text;not null;uniqueIndex:ux_organizations_slug" json:"slug"`
	Type         OrgType           `gorm:"type:text;not null" json:"type"`
	PlanTier     PlanTier          `gorm:"column:plan_tier;type:text;not null" json:"plan_tier"`
	IsActive     bool              `gorm:"column:is_active;not null;default:true" json:"is_active"`
	IsSuspended  bool              `gorm:"column:is_suspended;not null;default:false" json:"is_suspended"`
	Modules      datatypes.JSON    `gorm:"type:jsonb" json:"modules"`
	Features     datatypes.JSON    `gorm:"type:jsonb" json:"features"`
	SupportEmail string            `gorm:"type:text;column:support_email" json:"support_email"`
	Metadata     datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"metadata"`
	CreatedAt    time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt    time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Organization) TableName() string { return "organizations" }

// ValidType reports whether raw names a known organization type.
func ValidType(raw OrgType) bool {
	switch raw {
	case TypeFarmOperation, TypeTradingCompany, TypeCooperative, TypeServiceProvider:
		return true
	default:
		return false
	}
}

// ValidPlan reports whether raw names a known plan tier.
func ValidPlan(raw PlanTier) bool {
	switch raw {
	case PlanFree, PlanStandard, PlanPremium:
		return true
	default:
		return false
	}
}
