package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

//go:generate mockgen -source=repository.go -destination=../mocks/mock_repository.go -package=mocks

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindRoleByName(ctx context.Context, name string) (*Role, error)
	CreateAssignment(ctx context.Context, assignment *UserRoleAssignment) error
	// ActiveAssignments loads a principal's active assignments with their
	// role and granted permission links preloaded, so resolution needs a
	// single read.
	ActiveAssignments(ctx context.Context, userID snowflake.ID) ([]UserRoleAssignment, error)
	DeactivateAssignment(ctx context.Context, id snowflake.ID) error
}
