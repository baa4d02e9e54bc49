package auth

import (
	"github.com/angelmondragon/clubpay-backend/pkg/enums"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AccessTokenPayload captures the data available when minting a staff token.
type AccessTokenPayload struct {
	UserID uuid.UUID
	Email  string
	Role   enums.StaffRole
	JTI    string
}

// AccessTokenClaims is the typed JWT carried by admin API callers.
type AccessTokenClaims struct {
	UserID uuid.UUID       `json:"user_id"`
	Email  string          `json:"email,omitempty"`
	Role   enums.StaffRole `json:"role"`
	jwt.RegisteredClaims
}

// Actor is the audit string written to created_by/deleted_by columns.
func (c *AccessTokenClaims) Actor() string {
	if c == nil {
		return ""
	}
	if c.Email != "" {
		return c.Email
	}
	return c.UserID.String()
}
