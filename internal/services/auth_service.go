package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const extensionTokenType = "extension"

var (
	ErrUnauthorized   = errors.New("invalid or expired token")
	ErrMissingIDToken = errors.New("missing idToken")
)

// Identity is the caller identity asserted by the identity provider.
type Identity struct {
	UID         string
	Email       string
	DisplayName string
}

// TokenVerifier checks an identity-provider token. The provider itself is an
// external collaborator; production wiring posts the token to a verification
// endpoint, tests plug in a fake.
type TokenVerifier interface {
	Verify(ctx context.Context, idToken string) (*Identity, error)
}

// HTTPTokenVerifier verifies identity-provider tokens against a remote
// verification endpoint.
type HTTPTokenVerifier struct {
	VerifyURL string
	Client    *http.Client
}

func (v *HTTPTokenVerifier) Verify(ctx context.Context, idToken string) (*Identity, error) {
	body, _ := json.Marshal(map[string]string{"idToken": idToken})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.VerifyURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	client := v.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, ErrUnauthorized
	}

	var decoded struct {
		UID         string `json:"uid"`
		Email       string `json:"email"`
		DisplayName string `json:"displayName"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, err
	}
	if decoded.UID == "" {
		return nil, ErrUnauthorized
	}

	return &Identity{UID: decoded.UID, Email: decoded.Email, DisplayName: decoded.DisplayName}, nil
}

// AuthService bridges short-lived identity-provider tokens to the long-lived
// extension bearer credential and validates that credential on every call.
type AuthService struct {
	secret   []byte
	tokenTTL time.Duration
	verifier TokenVerifier
}

func NewAuthService(secret string, tokenTTL time.Duration, verifier TokenVerifier) *AuthService {
	return &AuthService{
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
		verifier: verifier,
	}
}

type Claims struct {
	Identity  string `json:"identity"`
	Email     string `json:"email"`
	TokenType string `json:"tokenType"`
	jwt.RegisteredClaims
}

// ExchangeToken verifies an identity-provider token and issues the
// extension-scoped bearer credential.
func (s *AuthService) ExchangeToken(ctx context.Context, idToken string) (string, *Identity, error) {
	if idToken == "" {
		return "", nil, ErrMissingIDToken
	}

	identity, err := s.verifier.Verify(ctx, idToken)
	if err != nil {
		return "", nil, err
	}

	token, err := s.GenerateExtensionToken(identity)
	if err != nil {
		return "", nil, err
	}
	return token, identity, nil
}

// GenerateExtensionToken signs a bearer credential carrying the caller's
// identity, scoped to extension use.
func (s *AuthService) GenerateExtensionToken(identity *Identity) (string, error) {
	expirationTime := time.Now().Add(s.tokenTTL)

	claims := &Claims{
		Identity:  identity.UID,
		Email:     identity.Email,
		TokenType: extensionTokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expirationTime),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "co2ounter",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// ValidateExtensionToken checks signature, expiry, and token type.
func (s *AuthService) ValidateExtensionToken(tokenString string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})

	if err != nil || !token.Valid {
		return nil, ErrUnauthorized
	}

	if claims.TokenType != extensionTokenType {
		return nil, ErrUnauthorized
	}

	return claims, nil
}
