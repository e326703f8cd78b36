package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

//go:generate mockgen -source=service.go -destination=../mocks/mock_service.go -package=mocks
type Service interface {
	// Issue mints a one-time token and returns the plaintext value for
	// embedding in an outbound link. Prior unused tokens of the same kind
	// are superseded.
	Issue(ctx context.Context, userID snowflake.ID, kind Kind) (string, error)
	// Redeem consumes a token: on match the record is atomically marked
	// used and returned so the caller can apply the side effect.
	Redeem(ctx context.Context, plaintext string, kind Kind) (*OneTimeToken, error)
}

type Repository interface {
	Create(ctx context.Context, record *OneTimeToken) error
	FindByID(ctx context.Context, id string) (*OneTimeToken, error)
	// ConsumeOnce marks the record used iff it is still unused; it
	// reports whether this call won the update.
	ConsumeOnce(ctx context.Context, id string) (bool, error)
	SupersedeUnused(ctx context.Context, userID snowflake.ID, kind Kind) error
	CountRequestedSince(ctx context.Context, userID snowflake.ID, kind Kind, since time.Time) (int64, error)
}
