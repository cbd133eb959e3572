package services

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeVerifier struct {
	identity *Identity
	err      error
}

func (f *fakeVerifier) Verify(ctx context.Context, idToken string) (*Identity, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.identity, nil
}

func TestExchangeToken(t *testing.T) {
	verifier := &fakeVerifier{identity: &Identity{UID: "uid-1", Email: "a@b.c", DisplayName: "A"}}
	svc := NewAuthService("test-secret", 30*24*time.Hour, verifier)

	token, identity, err := svc.ExchangeToken(context.Background(), "idp-token")
	require.NoError(t, err)
	assert.Equal(t, "uid-1", identity.UID)

	claims, err := svc.ValidateExtensionToken(token)
	require.NoError(t, err)
	assert.Equal(t, "uid-1", claims.Identity)
	assert.Equal(t, "a@b.c", claims.Email)
	assert.Equal(t, "extension", claims.TokenType)
}

func TestExchangeTokenMissingIDToken(t *testing.T) {
	svc := NewAuthService("test-secret", time.Hour, &fakeVerifier{})

	_, _, err := svc.ExchangeToken(context.Background(), "")
	assert.ErrorIs(t, err, ErrMissingIDToken)
}

func TestExchangeTokenVerifierRejects(t *testing.T) {
	svc := NewAuthService("test-secret", time.Hour, &fakeVerifier{err: ErrUnauthorized})

	_, _, err := svc.ExchangeToken(context.Background(), "bad-token")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestValidateExtensionTokenRejectsExpired(t *testing.T) {
	svc := NewAuthService("test-secret", -time.Hour, &fakeVerifier{})

	token, err := svc.GenerateExtensionToken(&Identity{UID: "uid-1"})
	require.NoError(t, err)

	_, err = svc.ValidateExtensionToken(token)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestValidateExtensionTokenRejectsWrongSecret(t *testing.T) {
	issuer := NewAuthService("secret-a", time.Hour, &fakeVerifier{})
	validator := NewAuthService("secret-b", time.Hour, &fakeVerifier{})

	token, err := issuer.GenerateExtensionToken(&Identity{UID: "uid-1"})
	require.NoError(t, err)

	_, err = validator.ValidateExtensionToken(token)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestValidateExtensionTokenRejectsWrongType(t *testing.T) {
	svc := NewAuthService("test-secret", time.Hour, &fakeVerifier{})

	// A structurally valid token whose tokenType is not "extension".
	claims := &Claims{
		Identity:  "uid-1",
		TokenType: "session",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = svc.ValidateExtensionToken(signed)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestValidateExtensionTokenRejectsGarbage(t *testing.T) {
	svc := NewAuthService("test-secret", time.Hour, &fakeVerifier{})

	_, err := svc.ValidateExtensionToken("not-a-jwt")
	assert.ErrorIs(t, err, ErrUnauthorized)
}
