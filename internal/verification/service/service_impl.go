package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/farmgate/farmgate/internal/clock"
	"github.com/farmgate/farmgate/internal/verification/domain"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

const (
	secretBytes = 32
	saltBytes   = 16

	rateWindow = time.Hour
)

// Config carries token lifetimes and the reissue cap.
type Config struct {
	ResetTTL        time.Duration
	VerificationTTL time.Duration
	HourlyCap       int
}

type Service struct {
	log   *zap.Logger
	repo  domain.Repository
	clock clock.Clock
	cfg   Config
}

func New(log *zap.Logger, repo domain.Repository, clk clock.Clock, cfg Config) domain.Service {
	if cfg.ResetTTL <= 0 {
		cfg.ResetTTL = time.Hour
	}
	if cfg.VerificationTTL <= 0 {
		cfg.VerificationTTL = 24 * time.Hour
	}
	if cfg.HourlyCap <= 0 {
		cfg.HourlyCap = 3
	}
	return &Service{
		log:   log.Named("verification.service"),
		repo:  repo,
		clock: clk,
		cfg:   cfg,
	}
}

func (s *Service) Issue(ctx context.Context, userID snowflake.ID, kind domain.Kind) (string, error) {
	now := s.clock.Now()

	requested, err := s.repo.CountRequestedSince(ctx, userID, kind, now.Add(-rateWindow))
	if err != nil {
		return "", err
	}
	if requested >= int64(s.cfg.HourlyCap) {
		return "", domain.ErrRateLimited
	}

	secretBuf := make([]byte, secretBytes)
	if _, err := rand.Read(secretBuf); err != nil {
		return "", err
	}
	saltBuf := make([]byte, saltBytes)
	if _, err := rand.Read(saltBuf); err != nil {
		return "", err
	}

	selector := ulid.Make().String()
	secret := base64.RawURLEncoding.EncodeToString(secretBuf)
	salt := hex.EncodeToString(saltBuf)

	// Reissue supersedes any still-unused token of the same kind, so at
	// most one token per (user, kind) is live.
	if err := s.repo.SupersedeUnused(ctx, userID, kind); err != nil {
		return "", err
	}

	record := &domain.OneTimeToken{
		ID:           selector,
		UserID:       userID,
		Kind:         kind,
		Salt:         salt,
		VerifierHash: hashSecret(salt, secret),
		ExpiresAt:    now.Add(s.ttl(kind)),
		RequestedAt:  now,
		CreatedAt:    now,
	}
	if err := s.repo.Create(ctx, record); err != nil {
		return "", err
	}

	return selector + "." + secret, nil
}

func (s *Service) Redeem(ctx context.Context, plaintext string, kind domain.Kind) (*domain.OneTimeToken, error) {
	selector, secret, ok := splitToken(plaintext)
	if !ok {
		return nil, domain.ErrInvalidToken
	}

	record, err := s.repo.FindByID(ctx, selector)
	if err != nil {
		return nil, err
	}
	if record.Kind != kind || record.Used {
		return nil, domain.ErrInvalidToken
	}
	if s.clock.Now().After(record.ExpiresAt) {
		return nil, domain.ErrInvalidToken
	}
	if subtle.ConstantTimeCompare([]byte(record.VerifierHash), []byte(hashSecret(record.Salt, secret))) != 1 {
		return nil, domain.ErrInvalidToken
	}

	// The guarded update is what makes redemption single-use under
	// concurrent attempts: only one caller wins the flip.
	won, err := s.repo.ConsumeOnce(ctx, record.ID)
	if err != nil {
		return nil, err
	}
	if !won {
		return nil, domain.ErrInvalidToken
	}

	return record, nil
}

func (s *Service) ttl(kind domain.Kind) time.Duration {
	if kind == domain.KindEmailVerification {
		return s.cfg.VerificationTTL
	}
	return s.cfg.ResetTTL
}

func splitToken(plaintext string) (selector, secret string, ok bool) {
	parts := strings.SplitN(strings.TrimSpace(plaintext), ".", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

func hashSecret(salt, secret string) string {
	sum := sha256.Sum256([]byte(salt + secret))
	return hex.EncodeToString(sum[:])
}
