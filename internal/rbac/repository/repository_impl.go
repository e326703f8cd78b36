package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/farmgate/farmgate/internal/rbac/domain"
	"gorm.io/gorm"
)

type repo struct {
	db *gorm.DB
}

func New(db *gorm.DB) domain.Repository {
	return &repo{db: db}
}

func (r *repo) WithTx(tx *gorm.DB) domain.Repository {
	return &repo{db: tx}
}

func (r *repo) FindRoleByName(ctx context.Context, name string) (*domain.Role, error) {
	var role domain.Role
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&role).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrRoleNotFound
	}
	if err != nil {
		return nil, err
	}
	return &role, nil
}

func (r *repo) CreateAssignment(ctx context.Context, assignment *domain.UserRoleAssignment) error {
	return r.db.WithContext(ctx).Create(assignment).Error
}

func (r *repo) ActiveAssignments(ctx context.Context, userID snowflake.ID) ([]domain.UserRoleAssignment, error) {
	var assignments []domain.UserRoleAssignment
	err := r.db.WithContext(ctx).
		Preload("Role").
		Preload("Role.Permissions", "granted = ?", true).
		Preload("Role.Permissions.Permission").
		Where("user_id = ? AND is_active = ?", userID, true).
		Find(&assignments).Error
	if err != nil {
		return nil, err
	}
	return assignments, nil
}

func (r *repo) DeactivateAssignment(ctx context.Context, id snowflake.ID) error {
	now := time.Now().UTC()
	tx := r.db.WithContext(ctx).
		Model(&domain.UserRoleAssignment{}).
		Where("id = ? AND is_active = ?", id, true).
		Updates(map[string]any{
			"is_active":      false,
			"deactivated_at": now,
		})
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return domain.ErrAssignmentNotFound
	}
	return nil
}
