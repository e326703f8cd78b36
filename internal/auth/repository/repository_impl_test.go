package repository

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/farmgate/farmgate/internal/auth/domain"
	"github.com/farmgate/farmgate/pkg/db"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func newUser(node *snowflake.Node, email string) *domain.User {
	return &domain.User{
		ID:         node.Generate(),
		ExternalID: uuid.NewString(),
		Email:      email,
		IsActive:   true,
		Metadata:   datatypes.JSONMap{},
	}
}

func TestCreateTranslatesDuplicateEmail(t *testing.T) {
	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&domain.User{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	repo := New(conn)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newUser(node, "owner@example.com")))

	// The pre-insert email check cannot see a concurrent registration;
	// the unique index violation must come back as the domain conflict.
	err = repo.Create(ctx, newUser(node, "owner@example.com"))
	assert.ErrorIs(t, err, domain.ErrUserExists)

	assert.NoError(t, repo.Create(ctx, newUser(node, "other@example.com")))
}
