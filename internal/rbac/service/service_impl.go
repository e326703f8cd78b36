package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/farmgate/farmgate/internal/rbac/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	log   *zap.Logger
	repo  domain.Repository
	genID *snowflake.Node
}

func New(log *zap.Logger, repo domain.Repository, genID *snowflake.Node) domain.Service {
	return &Service{
		log:   log.Named("rbac.service"),
		repo:  repo,
		genID: genID,
	}
}

// Resolve builds the effective permission set of a principal: the union of
// every granted role-permission link across all active assignments.
// Duplicates collapse; farm-scoped assignments carry their scope as
// (permission, farmID) pairs instead of joining the org-wide set.
func (s *Service) Resolve(ctx context.Context, userID snowflake.ID) (*domain.ResolvedAccess, error) {
	assignments, err := s.repo.ActiveAssignments(ctx, userID)
	if err != nil {
		return nil, err
	}

	access := &domain.ResolvedAccess{
		Permissions: make(map[string]struct{}),
	}
	seenScoped := make(map[string]struct{})

	for _, assignment := range assignments {
		if assignment.Role.IsPlatformAdmin {
			access.PlatformAdmin = true
		}

		for _, link := range assignment.Role.Permissions {
			if !link.Granted {
				continue
			}
			key := link.Permission.Resource + ":" + link.Permission.Action

			if assignment.FarmID != nil {
				scopedKey := key + "@" + assignment.FarmID.String()
				if _, ok := seenScoped[scopedKey]; ok {
					continue
				}
				seenScoped[scopedKey] = struct{}{}
				access.FarmGrants = append(access.FarmGrants, domain.ScopedGrant{
					Resource: link.Permission.Resource,
					Action:   link.Permission.Action,
					FarmID:   *assignment.FarmID,
				})
				continue
			}

			access.Permissions[key] = struct{}{}
		}
	}

	return access, nil
}

func (s *Service) AssignRoleInTx(ctx context.Context, tx *gorm.DB, req domain.AssignRequest) (*domain.UserRoleAssignment, error) {
	name := strings.TrimSpace(req.RoleName)
	if name == "" {
		return nil, domain.ErrRoleNotFound
	}

	repo := s.repo.WithTx(tx)
	role, err := repo.FindRoleByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if req.FarmID != nil && role.Scope != domain.ScopeFarm {
		return nil, domain.ErrInvalidScope
	}

	assignment := &domain.UserRoleAssignment{
		ID:        s.genID.Generate(),
		UserID:    req.UserID,
		RoleID:    role.ID,
		OrgID:     req.OrgID,
		FarmID:    req.FarmID,
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
	}
	if err := repo.CreateAssignment(ctx, assignment); err != nil {
		return nil, err
	}
	return assignment, nil
}

func (s *Service) RevokeAssignment(ctx context.Context, assignmentID snowflake.ID) error {
	return s.repo.DeactivateAssignment(ctx, assignmentID)
}
