package models

import "github.com/golang-jwt/jwt/v5"

// UserRole represents the roles accepted by the billing API.
type UserRole string

const (
	RoleSuperAdmin UserRole = "SUPERADMIN"
	RoleAdmin      UserRole = "ADMIN"
	RoleBursar     UserRole = "BURSAR"
)

// JWTClaims is the access token payload issued by the identity service.
type JWTClaims struct {
	UserID   string   `json:"user_id"`
	SchoolID int64    `json:"school_id"`
	Role     UserRole `json:"role"`
	jwt.RegisteredClaims
}

// Actor is the authenticated user acting inside their active school.
type Actor struct {
	UserID   string
	SchoolID int64
	Role     UserRole
}

// Actor extracts the acting identity from the claims.
func (c *JWTClaims) Actor() Actor {
	return Actor{UserID: c.UserID, SchoolID: c.SchoolID, Role: c.Role}
}
