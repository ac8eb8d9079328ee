package domain

import "time"

// Identity is a user's linked credential source. Local identities carry the password hash.
type Identity struct {
	ID           string
	UserID       string
	Provider     IdentityProvider
	ProviderID   string
	PasswordHash string // empty if not local
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type IdentityProvider string

const (
	IdentityProviderLocal IdentityProvider = "local"
	IdentityProviderOIDC  IdentityProvider = "oidc"
	IdentityProviderSAML  IdentityProvider = "saml"
)
