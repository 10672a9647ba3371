package auth

import (
	"slices"

	"github.com/angelmondragon/stockflow-backend/pkg/enums"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	UserID      uuid.UUID
	Permissions []enums.Permission
	JTI         string
}

// AccessTokenClaims is the typed JWT presented by API callers. Identity and
// permission assignment live with the identity provider; this service only
// checks the keys carried here.
type AccessTokenClaims struct {
	UserID      uuid.UUID          `json:"user_id"`
	Permissions []enums.Permission `json:"permissions"`
	jwt.RegisteredClaims
}

// Has reports whether the token grants perm.
func (c *AccessTokenClaims) Has(perm enums.Permission) bool {
	if c == nil {
		return false
	}
	return slices.Contains(c.Permissions, perm)
}
