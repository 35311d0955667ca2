package auth

import (
	"slices"
	"time"
)

type Role string

// RoleAdmin is the only role vaultd mints, for the operator account.
const RoleAdmin Role = "admin"

// Claims is the verified content of an operator token.
type Claims struct {
	Sub       string `json:"sub"`
	Roles     []Role `json:"roles"`
	TokenID   string `json:"jti"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
}

func (c *Claims) IsAdmin() bool {
	return c != nil && slices.Contains(c.Roles, RoleAdmin)
}

// LoginRequest is the body of POST /api/admin/login. There is one operator,
// so the password is the whole credential.
type LoginRequest struct {
	Password string `json:"password"`
}

type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}
