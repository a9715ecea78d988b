package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// RoleAdmin is the role claim required for privileged security operations
const RoleAdmin = "admin"

// TokenClaims are the JWT claims presented by admin panel callers
type TokenClaims struct {
	Type   string `json:"type"`
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}
