// Package libauth handles bearer-token authentication and capability
// resolution. Engine components never check identities directly; they ask the
// Resolver for capabilities and gate on those.
package libauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrNotAuthorized           = errors.New("libauth: not authorized")
	ErrTokenMissing            = errors.New("libauth: token missing")
	ErrTokenExpired            = errors.New("libauth: token expired")
	ErrTokenParsingFailed      = errors.New("libauth: token parsing failed")
	ErrTokenSigningFailed      = errors.New("libauth: token signing failed")
	ErrUnexpectedSigningMethod = errors.New("libauth: unexpected signing method")
	ErrInvalidTokenClaims      = errors.New("libauth: invalid token claims")
	ErrIdentityMissing         = errors.New("libauth: identity missing in claims")
	ErrIssuedAtMissing         = errors.New("libauth: issued-at missing in claims")
	ErrIssuedAtInFuture        = errors.New("libauth: issued-at is in the future")
)

type contextKey string

const contextKeyIdentity = contextKey("identity")

// Capability is one permitted action class. Components depend on these, never
// on identity literals.
type Capability string

const (
	CapabilityOperator    Capability = "operator"
	CapabilityCTAOverride Capability = "cta_override"
)

// Resolver maps an authenticated identity to its capability set.
type Resolver interface {
	Resolve(ctx context.Context, identity string) (map[Capability]bool, error)
}

// StaticResolver grants every known identity the same fixed capability set.
// Deployments with a real IAM system provide their own Resolver.
type StaticResolver struct {
	Grants map[string][]Capability
}

func (r *StaticResolver) Resolve(ctx context.Context, identity string) (map[Capability]bool, error) {
	caps, ok := r.Grants[identity]
	if !ok {
		return nil, fmt.Errorf("%w: unknown identity", ErrNotAuthorized)
	}
	set := make(map[Capability]bool, len(caps))
	for _, c := range caps {
		set[c] = true
	}
	return set, nil
}

type claims struct {
	Identity string `json:"identity"`
	jwt.RegisteredClaims
}

// CreateToken signs a token for identity, valid for ttl.
func CreateToken(secret []byte, identity string, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Identity: identity,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrTokenSigningFailed, err)
	}
	return signed, nil
}

// ParseIdentity validates a signed token and returns the identity it carries.
func ParseIdentity(secret []byte, tokenString string) (string, error) {
	if tokenString == "" {
		return "", ErrTokenMissing
	}
	parsed, err := jwt.ParseWithClaims(tokenString, &claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("%w: %v", ErrUnexpectedSigningMethod, t.Header["alg"])
		}
		return secret, nil
	})
	if errors.Is(err, jwt.ErrTokenExpired) {
		return "", ErrTokenExpired
	}
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrTokenParsingFailed, err)
	}
	c, ok := parsed.Claims.(*claims)
	if !ok || !parsed.Valid {
		return "", ErrInvalidTokenClaims
	}
	if c.Identity == "" {
		return "", ErrIdentityMissing
	}
	if c.IssuedAt == nil {
		return "", ErrIssuedAtMissing
	}
	if c.IssuedAt.After(time.Now().Add(time.Minute)) {
		return "", ErrIssuedAtInFuture
	}
	return c.Identity, nil
}

// WithIdentity stamps the authenticated identity into ctx.
func WithIdentity(ctx context.Context, identity string) context.Context {
	return context.WithValue(ctx, contextKeyIdentity, identity)
}

// IdentityFromContext returns the authenticated identity, if any.
func IdentityFromContext(ctx context.Context) (string, bool) {
	identity, ok := ctx.Value(contextKeyIdentity).(string)
	return identity, ok && identity != ""
}

// RequireCapability resolves the context identity and verifies it holds cap.
func RequireCapability(ctx context.Context, resolver Resolver, cap Capability) error {
	identity, ok := IdentityFromContext(ctx)
	if !ok {
		return ErrNotAuthorized
	}
	caps, err := resolver.Resolve(ctx, identity)
	if err != nil {
		return err
	}
	if !caps[cap] {
		return fmt.Errorf("%w: missing capability %q", ErrNotAuthorized, cap)
	}
	return nil
}
