// Package auth adapts the platform bearer-token checks to swimlog identities and scopes.
package auth

import (
	"context"

	"example.com/swimlog/internal/domain"
	authlib "example.com/swimlog/internal/platform/auth"
)

// Claims mirrors the platform claims type.
type Claims = authlib.Claims

// Config mirrors the platform auth config.
type Config = authlib.Config

// WithClaims stores the claims in the request context.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return authlib.WithClaims(ctx, claims)
}

// FromContext retrieves claims from context.
func FromContext(ctx context.Context) (*Claims, bool) {
	return authlib.FromContext(ctx)
}

// Owner maps validated claims onto the swimmer they identify: the token subject is the user and
// the tenant_id claim the tenant.
func Owner(claims *Claims) domain.Owner {
	if claims == nil {
		return domain.Owner{}
	}
	return domain.Owner{TenantID: claims.TenantID, UserID: claims.Subject}
}
