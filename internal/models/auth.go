package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AdminRole scopes what an admin token may do.
type AdminRole string

const (
	// RoleAdmin may manage sync runs and read audits.
	RoleAdmin AdminRole = "ADMIN"
	// RoleAuditor may only read scan audits.
	RoleAuditor AdminRole = "AUDITOR"
)

// AdminTokenRequest exchanges an operator key for an access token.
type AdminTokenRequest struct {
	Key string `json:"key" validate:"required,min=16"`
}

// AdminTokenResponse returns the issued token.
type AdminTokenResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresIn   int64     `json:"expires_in"`
	Role        AdminRole `json:"role"`
	IssuedAt    time.Time `json:"issued_at"`
}

// JWTClaims represents the JWT payload for admin access tokens.
type JWTClaims struct {
	Role AdminRole `json:"role"`
	jwt.RegisteredClaims
}
