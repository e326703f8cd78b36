package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

//go:generate mockgen -source=service.go -destination=../mocks/mock_service.go -package=mocks
type Service interface {
	// CreateInTx provisions a tenant inside an existing transaction so
	// registration can create the organization and its owner atomically.
	CreateInTx(ctx context.Context, tx *gorm.DB, req CreateRequest) (*Organization, error)
	GetByID(ctx context.Context, id snowflake.ID) (*Organization, error)
	// RequireActive loads the organization and fails if it is suspended
	// or deactivated.
	RequireActive(ctx context.Context, id snowflake.ID) (*Organization, error)
	Suspend(ctx context.Context, id snowflake.ID) error
	Reinstate(ctx context.Context, id snowflake.ID) error
}

type CreateRequest struct {
	Name     string
	Type     OrgType
	PlanTier PlanTier
}
