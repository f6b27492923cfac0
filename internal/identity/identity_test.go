package identity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhonHA2901/Crepes-and-Coffe1-sub001/internal/domain"
)

func TestJWTVerifier_RoundTrip(t *testing.T) {
	v := NewJWTVerifier("secret", "crepes")

	token, err := v.Issue(Identity{SubjectID: "user-1", Email: "ana@example.com", Role: RoleAdmin}, time.Hour)
	require.NoError(t, err)

	id, err := v.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", id.SubjectID)
	assert.Equal(t, RoleAdmin, id.Role)
}

func TestJWTVerifier_Rejects(t *testing.T) {
	v := NewJWTVerifier("secret", "crepes")

	expired, err := v.Issue(Identity{SubjectID: "user-1"}, -time.Minute)
	require.NoError(t, err)
	otherKey, err := NewJWTVerifier("other", "crepes").Issue(Identity{SubjectID: "user-1"}, time.Hour)
	require.NoError(t, err)
	otherIssuer, err := NewJWTVerifier("secret", "elsewhere").Issue(Identity{SubjectID: "user-1"}, time.Hour)
	require.NoError(t, err)
	noSubject, err := v.Issue(Identity{}, time.Hour)
	require.NoError(t, err)

	for name, token := range map[string]string{
		"expired":      expired,
		"wrong key":    otherKey,
		"wrong issuer": otherIssuer,
		"no subject":   noSubject,
		"garbage":      "not.a.jwt",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(context.Background(), token)
			assert.ErrorIs(t, err, domain.ErrAuth)
		})
	}
}

func TestJWTVerifier_DefaultRole(t *testing.T) {
	v := NewJWTVerifier("secret", "")
	token, err := v.Issue(Identity{SubjectID: "user-2"}, time.Hour)
	require.NoError(t, err)

	id, err := v.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, RoleCustomer, id.Role)
}

func TestStaticVerifier_And_TokenValidator(t *testing.T) {
	v := NewStaticVerifier(map[string]Identity{"tok-admin": {SubjectID: "admin-1", Role: RoleAdmin}})
	validate := TokenValidator(v)

	claims, err := validate(context.Background(), "tok-admin")
	require.NoError(t, err)
	assert.Equal(t, "admin-1", claims.SubjectID)
	assert.Equal(t, RoleAdmin, claims.Role)

	_, err = validate(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrAuth)
}
