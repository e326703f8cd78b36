// Package token mints and verifies the signed access/refresh token pair.
// Access tokens carry coarse authorization claims so ordinary requests skip
// a database round trip; liveness is still re-checked per request by the
// validator. Refresh tokens are signed with an independent secret and only
// their hash is ever persisted.
package token

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const issuer = "farmgate"

var ErrInvalidToken = errors.New("invalid token")

// AccessClaims is the wire format of the access token. Claim names are
// stable; clients inspect them directly.
type AccessClaims struct {
	OrgID         string `json:"org,omitempty"`
	PlanTier      string `json:"plan,omitempty"`
	PlatformAdmin bool   `json:"adm,omitempty"`
	jwt.RegisteredClaims
}

// RefreshClaims is the wire format of the refresh token.
type RefreshClaims struct {
	TokenUse string `json:"use"`
	jwt.RegisteredClaims
}

// Pair is a freshly minted access/refresh token pair.
type Pair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Config carries signing material and lifetimes.
type Config struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

// Subject is the claim source for a token pair.
type Subject struct {
	UserID        snowflake.ID
	OrgID         *snowflake.ID
	PlanTier      string
	PlatformAdmin bool
}

type Manager struct {
	cfg Config
}

func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.AccessSecret) == 0 || len(cfg.RefreshSecret) == 0 {
		return nil, errors.New("token secrets are not configured")
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = time.Hour
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 7 * 24 * time.Hour
	}
	return &Manager{cfg: cfg}, nil
}

// RefreshTTL exposes the configured refresh lifetime for session bookkeeping.
func (m *Manager) RefreshTTL() time.Duration { return m.cfg.RefreshTTL }

// IssuePair mints a new access/refresh pair at the given instant.
func (m *Manager) IssuePair(subject Subject, now time.Time) (*Pair, error) {
	now = now.UTC()

	access := AccessClaims{
		PlanTier:      subject.PlanTier,
		PlatformAdmin: subject.PlatformAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.cfg.AccessTTL)),
			ID:        uuid.NewString(),
		},
	}
	if subject.OrgID != nil {
		access.OrgID = subject.OrgID.String()
	}

	signedAccess, err := jwt.NewWithClaims(jwt.SigningMethodHS256, access).SignedString(m.cfg.AccessSecret)
	if err != nil {
		return nil, err
	}

	refresh := RefreshClaims{
		TokenUse: "refresh",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.cfg.RefreshTTL)),
			ID:        uuid.NewString(),
		},
	}
	signedRefresh, err := jwt.NewWithClaims(jwt.SigningMethodHS256, refresh).SignedString(m.cfg.RefreshSecret)
	if err != nil {
		return nil, err
	}

	return &Pair{
		AccessToken:  signedAccess,
		RefreshToken: signedRefresh,
		ExpiresIn:    int64(m.cfg.AccessTTL.Seconds()),
	}, nil
}

// ParseAccess verifies an access token's signature and time claims.
func (m *Manager) ParseAccess(raw string) (*AccessClaims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrInvalidToken
	}

	parsed, err := jwt.ParseWithClaims(raw, &AccessClaims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return m.cfg.AccessSecret, nil
	}, jwt.WithIssuer(issuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*AccessClaims)
	if !ok || !parsed.Valid || strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// ParseRefresh verifies a refresh token's signature and time claims.
func (m *Manager) ParseRefresh(raw string) (*RefreshClaims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrInvalidToken
	}

	parsed, err := jwt.ParseWithClaims(raw, &RefreshClaims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return m.cfg.RefreshSecret, nil
	}, jwt.WithIssuer(issuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*RefreshClaims)
	if !ok || !parsed.Valid || claims.TokenUse != "refresh" || strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Hash returns the one-way digest under which a refresh token is stored.
func Hash(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
