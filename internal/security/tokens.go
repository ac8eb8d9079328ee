package security

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"time"

	"blog-cms/backend/internal/identity/domain"
	"blog-cms/backend/internal/platform/clock"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when a token is malformed, forged, expired, or otherwise invalid.
	ErrInvalidToken = errors.New("invalid token")
	// ErrWeakSigningKey is returned when an HMAC secret is shorter than 32 bytes.
	ErrWeakSigningKey = errors.New("signing key must be at least 32 bytes")
)

const (
	accessTokenType = "access"
	minHMACKeyLen   = 32
	opaqueTokenLen  = 32
)

// AccessClaims is the issue-time projection of a Principal carried in an access token.
type AccessClaims struct {
	jwt.RegisteredClaims
	Username    string   `json:"username"`
	Email       string   `json:"email"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
	Type        string   `json:"typ"`
}

// TokenProvider issues and validates access JWTs. Keys are fixed at construction and never mutated.
type TokenProvider struct {
	method    jwt.SigningMethod
	signKey   any
	verifyKey any
	issuer    string
	audience  string
	accessTTL time.Duration
	clock     clock.Clock
}

// NewTokenProvider returns a TokenProvider signing with privateKey (RS256 for RSA, ES256 for ECDSA P-256)
// and verifying with publicKey.
func NewTokenProvider(privateKey crypto.Signer, publicKey crypto.PublicKey, issuer, audience string, accessTTL time.Duration, clk clock.Clock) (*TokenProvider, error) {
	if privateKey == nil || publicKey == nil {
		return nil, ErrInvalidKey
	}
	var method jwt.SigningMethod
	switch privateKey.Public().(type) {
	case *rsa.PublicKey:
		method = jwt.SigningMethodRS256
	case *ecdsa.PublicKey:
		method = jwt.SigningMethodES256
	default:
		return nil, ErrInvalidKey
	}
	if KeyAlg(publicKey) != method.Alg() {
		return nil, fmt.Errorf("%w: public key does not match private key type", ErrInvalidKey)
	}
	return newProvider(method, privateKey, publicKey, issuer, audience, accessTTL, clk), nil
}

// NewHMACTokenProvider returns a TokenProvider signing with HS256 and a shared secret of at least 32 bytes.
func NewHMACTokenProvider(secret []byte, issuer, audience string, accessTTL time.Duration, clk clock.Clock) (*TokenProvider, error) {
	if len(secret) < minHMACKeyLen {
		return nil, ErrWeakSigningKey
	}
	key := slices.Clone(secret)
	return newProvider(jwt.SigningMethodHS256, key, key, issuer, audience, accessTTL, clk), nil
}

func newProvider(method jwt.SigningMethod, signKey, verifyKey any, issuer, audience string, accessTTL time.Duration, clk clock.Clock) *TokenProvider {
	if clk == nil {
		clk = clock.System{}
	}
	return &TokenProvider{
		method:    method,
		signKey:   signKey,
		verifyKey: verifyKey,
		issuer:    issuer,
		audience:  audience,
		accessTTL: accessTTL,
		clock:     clk,
	}
}

// Alg returns the JWT alg header value this provider signs with.
func (p *TokenProvider) Alg() string { return p.method.Alg() }

// IssueAccessToken signs a short-lived access token for principal.
func (p *TokenProvider) IssueAccessToken(principal domain.Principal) (token string, expiresAt time.Time, err error) {
	jti, err := generateJTI()
	if err != nil {
		return "", time.Time{}, err
	}
	now := p.clock.Now().UTC().Truncate(time.Second)
	expiresAt = now.Add(p.accessTTL)
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   principal.UserID,
			Issuer:    p.issuer,
			Audience:  jwt.ClaimStrings{p.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Username:    principal.Username,
		Email:       principal.Email,
		Roles:       slices.Clone(principal.Roles),
		Permissions: slices.Clone(principal.Permissions),
		Type:        accessTokenType,
	}
	token, err = jwt.NewWithClaims(p.method, claims).SignedString(p.signKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

// IssueRefreshToken returns a new opaque refresh token value. It carries no semantics;
// the server-side record is the source of truth.
func (p *TokenProvider) IssueRefreshToken() (string, error) {
	return NewOpaqueToken()
}

// ParseAccessToken fully validates token (signature, pinned algorithm, exp against the provider clock,
// iss, aud, typ) and returns the principal it was issued for.
func (p *TokenProvider) ParseAccessToken(token string) (domain.Principal, error) {
	claims := &AccessClaims{}
	_, err := jwt.ParseWithClaims(token, claims, p.keyFunc,
		jwt.WithValidMethods([]string{p.method.Alg()}),
		jwt.WithIssuer(p.issuer),
		jwt.WithAudience(p.audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(p.clock.Now),
	)
	if err != nil {
		return domain.Principal{}, ErrInvalidToken
	}
	return p.principalFromClaims(claims)
}

// ExtractPrincipalFromExpiredToken returns the principal of a token whose only defect may be expiry.
// The signature, algorithm, issuer, audience, and type are still enforced.
func (p *TokenProvider) ExtractPrincipalFromExpiredToken(token string) (domain.Principal, error) {
	claims := &AccessClaims{}
	_, err := jwt.ParseWithClaims(token, claims, p.keyFunc,
		jwt.WithValidMethods([]string{p.method.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return domain.Principal{}, ErrInvalidToken
	}
	if claims.Issuer != p.issuer || !slices.Contains([]string(claims.Audience), p.audience) || claims.ExpiresAt == nil {
		return domain.Principal{}, ErrInvalidToken
	}
	return p.principalFromClaims(claims)
}

func (p *TokenProvider) keyFunc(t *jwt.Token) (any, error) {
	if t.Method.Alg() != p.method.Alg() {
		return nil, ErrInvalidToken
	}
	return p.verifyKey, nil
}

func (p *TokenProvider) principalFromClaims(c *AccessClaims) (domain.Principal, error) {
	if c.Type != accessTokenType || c.Subject == "" {
		return domain.Principal{}, ErrInvalidToken
	}
	return domain.NewPrincipal(c.Subject, c.Username, c.Email, c.Roles, c.Permissions), nil
}

// NewOpaqueToken returns 256 random bits encoded as unpadded base64url. Used for refresh and reset tokens.
func NewOpaqueToken() (string, error) {
	b := make([]byte, opaqueTokenLen)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func generateJTI() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
