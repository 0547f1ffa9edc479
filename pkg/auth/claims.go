package auth

import (
	"github.com/golang-jwt/jwt/v5"
)

// ScopeScheduler grants access to the scheduler admin routes.
const ScopeScheduler = "scheduler:admin"

// OperatorTokenPayload captures the data available when minting an operator JWT.
type OperatorTokenPayload struct {
	Subject string
	Scopes  []string
	JTI     string
}

// OperatorClaims represents the typed JWT presented to the admin API.
type OperatorClaims struct {
	Scopes []string `json:"scopes"`
	jwt.RegisteredClaims
}

// HasScope reports whether the claims grant scope.
func (c *OperatorClaims) HasScope(scope string) bool {
	if c == nil {
		return false
	}
	for _, s := range c.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}
