// Package auth resolves the caller identity for a relay call.
//
// Clients present a JWT either as a Bearer token or, for browser
// WebSocket clients that cannot set headers, as a ?jwt= query
// parameter. A missing, malformed, or expired token downgrades the
// caller to an anonymous guest rather than rejecting the call: the
// unauthenticated persona handles guests, and protected tools check
// authentication again at dispatch time.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/cxbuddy/voicerelay/pkg/relay/config"
)

type Principal struct {
	// Subject is the stable user identifier from the token's sub claim.
	Subject string
	// Name is the display name from the token's name claim.
	Name string
	// Token is the raw compact JWT, forwarded verbatim to the banking
	// API on authenticated tool calls. It must not be logged.
	Token string

	Authenticated bool
}

// DisplayName returns the customer name for tickets and greetings.
func (p Principal) DisplayName() string {
	if strings.TrimSpace(p.Name) != "" {
		return p.Name
	}
	return "Guest"
}

// Guest is the principal for callers without a usable token.
func Guest() Principal {
	return Principal{}
}

type ctxKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(Principal)
	return p, ok
}

func ParseBearer(r *http.Request) (string, bool) {
	authz := strings.TrimSpace(r.Header.Get("Authorization"))
	if authz == "" {
		return "", false
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(authz, prefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authz, prefix))
	if token == "" {
		return "", false
	}
	return token, true
}

// TokenFromRequest extracts the caller's JWT from the Authorization
// header or, failing that, the jwt query parameter.
func TokenFromRequest(r *http.Request) (string, bool) {
	if token, ok := ParseBearer(r); ok {
		return token, true
	}
	token := strings.TrimSpace(r.URL.Query().Get("jwt"))
	if token == "" {
		return "", false
	}
	return token, true
}

var (
	ErrTokenExpired   = errors.New("token expired")
	ErrTokenMalformed = errors.New("token malformed")
)

type Verifier struct {
	mode   config.JWTMode
	secret []byte
}

func NewVerifier(mode config.JWTMode, secret string) *Verifier {
	return &Verifier{mode: mode, secret: []byte(secret)}
}

// Verify parses raw and returns the authenticated principal. In
// unverified mode the signature is not checked, matching the mock
// identity provider; expiry is enforced in both modes.
func (v *Verifier) Verify(raw string) (Principal, error) {
	claims := jwt.MapClaims{}

	switch v.mode {
	case config.JWTModeHS256:
		_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
			return v.secret, nil
		}, jwt.WithValidMethods([]string{"HS256"}))
		if err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				return Principal{}, ErrTokenExpired
			}
			return Principal{}, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
		}
	default:
		if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
			return Principal{}, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
		}
		exp, err := claims.GetExpirationTime()
		if err != nil {
			return Principal{}, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
		}
		if exp != nil && exp.Before(time.Now()) {
			return Principal{}, ErrTokenExpired
		}
	}

	p := Principal{Token: raw, Authenticated: true}
	if sub, err := claims.GetSubject(); err == nil {
		p.Subject = sub
	}
	if name, ok := claims["name"].(string); ok {
		p.Name = name
	}
	return p, nil
}

// Resolve never fails: any token problem yields the guest principal.
func (v *Verifier) Resolve(r *http.Request) Principal {
	raw, ok := TokenFromRequest(r)
	if !ok {
		return Guest()
	}
	p, err := v.Verify(raw)
	if err != nil {
		return Guest()
	}
	return p
}
