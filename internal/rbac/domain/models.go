// Package domain contains role and permission models for access control.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// RoleScope constrains where a role assignment applies.
type RoleScope string

const (
	ScopeOrganization RoleScope = "organization"
	ScopeFarm         RoleScope = "farm"
)

// Role groups permissions. System roles have a nil OrgID and are shared by
// every tenant; custom roles belong to one organization.
type Role struct {
	ID              snowflake.ID     `gorm:"primaryKey" json:"id"`
	OrgID           *snowflake.ID    `gorm:"column:org_id;index" json:"org_id,omitempty"`
	Name            string           `gorm:"type:text;not null;index" json:"name"`
	Scope           RoleScope        `gorm:"type:text;not null" json:"scope"`
	IsSystem        bool             `gorm:"column:is_system;not null;default:false" json:"is_system"`
	IsPlatformAdmin bool             `gorm:"column:is_platform_admin;not null;default:false" json:"is_platform_admin"`
	Permissions     []RolePermission `gorm:"foreignKey:RoleID" json:"permissions,omitempty"`
	CreatedAt       time.Time        `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (Role) TableName() string { return "roles" }

// Permission is a (resource, action) pair.
type Permission struct {
	ID       snowflake.ID `gorm:"primaryKey" json:"id"`
	Resource string       `gorm:"type:text;not null;uniqueIndex:ux_permissions_pair,priority:1" json:"resource"`
	Action   string       `gorm:"type:text;not null;uniqueIndex:ux_permissions_pair,priority:2" json:"action"`
}

// TableName sets the database table name.
func (Permission) TableName() string { return "permissions" }

// RolePermission links a role to a permission with an explicit grant flag.
type RolePermission struct {
	ID           snowflake.ID      `gorm:"primaryKey" json:"id"`
	RoleID       snowflake.ID      `gorm:"column:role_id;not null;uniqueIndex:ux_role_permission,priority:1" json:"role_id"`
	PermissionID snowflake.ID      `gorm:"column:permission_id;not null;uniqueIndex:ux_role_permission,priority:2" json:"permission_id"`
	Granted      bool              `gorm:"not null;default:true" json:"granted"`
	Conditions   datatypes.JSONMap `gorm:"type:jsonb" json:"conditions,omitempty"`
	Permission   Permission        `gorm:"foreignKey:PermissionID" json:"permission"`
}

// TableName sets the database table name.
func (RolePermission) TableName() string { return "role_permissions" }

// UserRoleAssignment links a principal to a role, optionally scoped to one
// farm. Assignments are soft-deactivated, never deleted, to keep history.
type UserRoleAssignment struct {
	ID            snowflake.ID  `gorm:"primaryKey" json:"id"`
	UserID        snowflake.ID  `gorm:"column:user_id;not null;index" json:"user_id"`
	RoleID        snowflake.ID  `gorm:"column:role_id;not null;index" json:"role_id"`
	OrgID         *snowflake.ID `gorm:"column:org_id;index" json:"org_id,omitempty"`
	FarmID        *snowflake.ID `gorm:"column:farm_id;index" json:"farm_id,omitempty"`
	IsActive      bool          `gorm:"column:is_active;not null;default:true" json:"is_active"`
	Role          Role          `gorm:"foreignKey:RoleID" json:"role"`
	CreatedAt     time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	DeactivatedAt *time.Time    `gorm:"column:deactivated_at" json:"deactivated_at,omitempty"`
}

// TableName sets the database table name.
func (UserRoleAssignment) TableName() string { return "user_role_assignments" }

// ScopedGrant is a permission restricted to one farm. The resolver supplies
// the scope; downstream checks must match it against the target farm.
type ScopedGrant struct {
	Resource string       `json:"resource"`
	Action   string       `json:"action"`
	FarmID   snowflake.ID `json:"farm_id"`
}

// ResolvedAccess is the effective permission surface of a principal.
type ResolvedAccess struct {
	// Permissions holds "resource:action" keys granted organization-wide.
	Permissions map[string]struct{} `json:"-"`
	// FarmGrants holds permissions carried by farm-scoped assignments.
	FarmGrants []ScopedGrant `json:"farm_grants,omitempty"`
	// PlatformAdmin is surfaced when any active assignment's role carries
	// the platform-admin flag. It does not auto-grant permissions.
	PlatformAdmin bool `json:"platform_admin"`
}

// Has reports whether the organization-wide set contains (resource, action).
func (a ResolvedAccess) Has(resource, action string) bool {
	_, ok := a.Permissions[resource+":"+action]
	return ok
}

// HasForFarm reports whether (resource, action) is granted for the target
// farm, either organization-wide or through a matching farm-scoped grant.
func (a ResolvedAccess) HasForFarm(resource, action string, farmID snowflake.ID) bool {
	if a.Has(resource, action) {
		return true
	}
	for _, g := range a.FarmGrants {
		if g.Resource == resource && g.Action == action && g.FarmID == farmID {
			return true
		}
	}
	return false
}
