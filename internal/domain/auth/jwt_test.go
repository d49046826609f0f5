package auth_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appctx "retailcore/internal/core/context"
	"retailcore/internal/domain/auth"
)

func TestJWTService_RoundTrip(t *testing.T) {
	svc := auth.NewJWTService(auth.DefaultJWTConfig("test-secret"))

	actor := &appctx.Actor{
		UserID:  "cashier-7",
		Name:    "Dana",
		StoreID: "store-3",
		Roles:   []string{"cashier", "manager"},
	}

	token, expiresAt, err := svc.GenerateAccessToken(actor)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.True(t, expiresAt.After(time.Now()))

	parsed, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, actor.UserID, parsed.UserID)
	assert.Equal(t, actor.Name, parsed.Name)
	assert.Equal(t, actor.StoreID, parsed.StoreID)
	assert.Equal(t, actor.Roles, parsed.Roles)
}

func TestJWTService_RejectsWrongSecret(t *testing.T) {
	issuer := auth.NewJWTService(auth.DefaultJWTConfig("secret-a"))
	verifier := auth.NewJWTService(auth.DefaultJWTConfig("secret-b"))

	token, _, err := issuer.GenerateAccessToken(&appctx.Actor{UserID: "u1"})
	require.NoError(t, err)

	_, err = verifier.ValidateToken(token)
	assert.Error(t, err)
}

func TestJWTService_RejectsGarbage(t *testing.T) {
	svc := auth.NewJWTService(auth.DefaultJWTConfig("test-secret"))

	_, err := svc.ValidateToken("not.a.token")
	assert.Error(t, err)
}
