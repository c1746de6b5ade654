// Package authtest mints access tokens for tests and local development.
// Production tokens are issued by the identity service.
package authtest

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/freshora-backend/pkg/auth"
	"github.com/angelmondragon/freshora-backend/pkg/config"
	"github.com/angelmondragon/freshora-backend/pkg/enums"
)

// Payload is what a minted token asserts about its bearer.
type Payload struct {
	UserID uuid.UUID
	Email  string
	Role   enums.Role
	JTI    string
}

// Mint signs a token the way the identity service does, valid for the
// configured TTL starting at now.
func Mint(cfg config.JWTConfig, now time.Time, payload Payload) (string, error) {
	switch {
	case cfg.Secret == "":
		return "", fmt.Errorf("jwt secret is required")
	case cfg.Issuer == "":
		return "", fmt.Errorf("jwt issuer is required")
	case cfg.ExpirationMinutes <= 0:
		return "", fmt.Errorf("jwt expiration minutes must be positive")
	case payload.UserID == uuid.Nil:
		return "", fmt.Errorf("user id is required")
	case payload.Role != enums.RoleBuyer && payload.Role != enums.RoleSeller:
		return "", fmt.Errorf("invalid role %q", payload.Role)
	}

	jti := strings.TrimSpace(payload.JTI)
	if jti == "" {
		jti = uuid.NewString()
	}
	claims := auth.AccessTokenClaims{
		UserID: payload.UserID,
		Email:  payload.Email,
		Role:   payload.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			Subject:   payload.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(cfg.ExpirationMinutes) * time.Minute)),
			ID:        jti,
		},
	}
	signed, err := jwt.NewWithClaims(auth.SigningMethod, claims).SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("signing jwt: %w", err)
	}
	return signed, nil
}

// MustMint returns a fresh token for a new user with role, failing t on error.
func MustMint(t testing.TB, cfg config.JWTConfig, role enums.Role, email string) string {
	t.Helper()
	token, err := Mint(cfg, time.Now(), Payload{UserID: uuid.New(), Email: email, Role: role})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}
