package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/farmgate/farmgate/internal/organization/capability"
	"github.com/farmgate/farmgate/internal/organization/domain"
	"github.com/gosimple/slug"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type service struct {
	db    *gorm.DB
	log   *zap.Logger
	repo  domain.Repository
	caps  capability.Lookup
	genID *snowflake.Node
}

func New(db *gorm.DB, log *zap.Logger, repo domain.Repository, caps capability.Lookup, genID *snowflake.Node) domain.Service {
	return &service{
		db:    db,
		log:   log.Named("organization.service"),
		repo:  repo,
		caps:  caps,
		genID: genID,
	}
}

func (s *service) CreateInTx(ctx context.Context, tx *gorm.DB, req domain.CreateRequest) (*domain.Organization, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	if !domain.ValidType(req.Type) {
		return nil, domain.ErrInvalidType
	}

	plan := req.PlanTier
	if plan == "" {
		plan = domain.PlanFree
	}
	if !domain.ValidPlan(plan) {
		return nil, domain.ErrInvalidPlan
	}

	set := s.caps(req.Type, plan)
	modules, err := json.Marshal(set.Modules)
	if err != nil {
		return nil, err
	}
	features, err := json.Marshal(set.Features)
	if err != nil {
		return nil, err
	}

	orgSlug, err := s.uniqueSlug(ctx, name)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	org := &domain.Organization{
		ID:        s.genID.Generate(),
		Name:      name,
		Slug:      orgSlug,
		Type:      req.Type,
		PlanTier:  plan,
		IsActive:  true,
		Modules:   datatypes.JSON(modules),
		Features:  datatypes.JSON(features),
		Metadata:  datatypes.JSONMap{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.WithTx(tx).Create(ctx, org); err != nil {
		return nil, err
	}
	return org, nil
}

func (s *service) GetByID(ctx context.Context, id snowflake.ID) (*domain.Organization, error) {
	if id == 0 {
		return nil, domain.ErrInvalidOrgID
	}
	return s.repo.FindByID(ctx, id)
}

func (s *service) RequireActive(ctx context.Context, id snowflake.ID) (*domain.Organization, error) {
	org, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if org.IsSuspended {
		return nil, domain.ErrSuspended
	}
	if !org.IsActive {
		return nil, domain.ErrInactive
	}
	return org, nil
}

func (s *service) Suspend(ctx context.Context, id snowflake.ID) error {
	return s.repo.UpdateFields(ctx, id, map[string]any{
		"is_suspended": true,
		"updated_at":   time.Now().UTC(),
	})
}

func (s *service) Reinstate(ctx context.Context, id snowflake.ID) error {
	return s.repo.UpdateFields(ctx, id, map[string]any{
		"is_suspended": false,
		"updated_at":   time.Now().UTC(),
	})
}

// uniqueSlug derives a URL slug from the name, suffixing on collision.
// Only a not-found probe means the slug is free; any other lookup error
// is propagated rather than risking an insert against the unique index.
func (s *service) uniqueSlug(ctx context.Context, name string) (string, error) {
	base := slug.Make(name)
	candidate := base
	for i := 2; i < 10; i++ {
		_, err := s.repo.FindBySlug(ctx, candidate)
		if errors.Is(err, domain.ErrNotFound) {
			return candidate, nil
		}
		if err != nil {
			return "", err
		}
		candidate = fmt.Sprintf("%s-%d", base, i)
	}
	return fmt.Sprintf("%s-%s", base, s.genID.Generate().String()), nil
}
