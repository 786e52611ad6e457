package auth

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"
)

// JWKSVerifier checks tokens from an external identity provider against its
// published key set, refreshed in the background.
type JWKSVerifier struct {
	jwks *keyfunc.JWKS
}

func NewJWKSVerifier(jwksURL string) (*JWKSVerifier, error) {
	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{
		RefreshInterval:   time.Hour,
		RefreshRateLimit:  5 * time.Minute,
		RefreshTimeout:    10 * time.Second,
		RefreshUnknownKID: true,
		RefreshErrorHandler: func(err error) {
			log.Printf("JWKS refresh failed for %s: %v", jwksURL, err)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("load jwks: %w", err)
	}
	return &JWKSVerifier{jwks: jwks}, nil
}

func (v *JWKSVerifier) VerifyToken(ctx context.Context, tokenString string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, v.jwks.Keyfunc)
	if err != nil {
		return "", err
	}
	if !token.Valid || claims.Subject == "" {
		return "", fmt.Errorf("token has no subject")
	}
	return claims.Subject, nil
}

func (v *JWKSVerifier) Close() {
	v.jwks.EndBackground()
}
