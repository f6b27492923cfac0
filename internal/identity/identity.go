// Package identity resolves the acting user from a bearer credential.
package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/jhonHA2901/Crepes-and-Coffe1-sub001/internal/domain"
	"github.com/jhonHA2901/Crepes-and-Coffe1-sub001/pkg/middleware"
)

// Roles carried in credentials.
const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
)

// Identity is a verified caller.
type Identity struct {
	SubjectID string
	Email     string
	Role      string
}

// Verifier turns a credential into an Identity or fails with domain.ErrAuth.
type Verifier interface {
	Verify(ctx context.Context, credential string) (*Identity, error)
}

// TokenValidator adapts v to the bearer-token middleware.
func TokenValidator(v Verifier) middleware.TokenValidator {
	return func(ctx context.Context, token string) (*middleware.Claims, error) {
		id, err := v.Verify(ctx, token)
		if err != nil {
			return nil, err
		}
		return &middleware.Claims{SubjectID: id.SubjectID, Email: id.Email, Role: id.Role}, nil
	}
}

// Claims is the JWT payload.
type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// JWTVerifier validates HS256 access tokens.
type JWTVerifier struct {
	secret []byte
	issuer string
}

// NewJWTVerifier creates a verifier for tokens signed with secret. A
// non-empty issuer must match the iss claim.
func NewJWTVerifier(secret, issuer string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret), issuer: issuer}
}

// Verify parses and validates token.
func (v *JWTVerifier) Verify(_ context.Context, token string) (*Identity, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired()}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, domain.AuthError("invalid or expired token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return nil, domain.AuthError("invalid token claims")
	}

	role := claims.Role
	if role == "" {
		role = RoleCustomer
	}
	return &Identity{SubjectID: claims.Subject, Email: claims.Email, Role: role}, nil
}

// Issue signs a token for id valid for ttl. Used by tooling and tests;
// production tokens come from the identity provider.
func (v *JWTVerifier) Issue(id Identity, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := &Claims{
		Email: id.Email,
		Role:  id.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.SubjectID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// StaticVerifier maps fixed tokens to identities. It is the test double
// for Verifier.
type StaticVerifier struct {
	tokens map[string]Identity
}

// NewStaticVerifier creates a verifier that accepts exactly the given
// tokens.
func NewStaticVerifier(tokens map[string]Identity) *StaticVerifier {
	return &StaticVerifier{tokens: tokens}
}

// Verify looks credential up.
func (v *StaticVerifier) Verify(_ context.Context, credential string) (*Identity, error) {
	id, ok := v.tokens[credential]
	if !ok {
		return nil, domain.AuthError("unknown credential")
	}
	return &id, nil
}
