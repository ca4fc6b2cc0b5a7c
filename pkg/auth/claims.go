package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/freshcart-backend/pkg/enums"
)

// AccessTokenPayload is what a caller supplies to MintAccessToken. An empty
// JTI gets a random one.
type AccessTokenPayload struct {
	UserID uuid.UUID
	Role   enums.Role
	JTI    string
}

// AccessTokenClaims is the body of a shopper or admin access token.
type AccessTokenClaims struct {
	UserID uuid.UUID  `json:"user_id"`
	Role   enums.Role `json:"role"`
	jwt.RegisteredClaims
}

// TokenID is the jti claim.
func (c *AccessTokenClaims) TokenID() string {
	return c.ID
}

// Expiry is zero when the token carries no exp claim.
func (c *AccessTokenClaims) Expiry() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}
