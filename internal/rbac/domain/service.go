package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

//go:generate mockgen -source=service.go -destination=../mocks/mock_service.go -package=mocks

// Resolver aggregates a principal's active role assignments into an
// effective permission set.
type Resolver interface {
	Resolve(ctx context.Context, userID snowflake.ID) (*ResolvedAccess, error)
}

// Service manages role assignments.
type Service interface {
	Resolver
	AssignRoleInTx(ctx context.Context, tx *gorm.DB, req AssignRequest) (*UserRoleAssignment, error)
	RevokeAssignment(ctx context.Context, assignmentID snowflake.ID) error
}

type AssignRequest struct {
	UserID   snowflake.ID
	RoleName string
	OrgID    *snowflake.ID
	FarmID   *snowflake.ID
}
