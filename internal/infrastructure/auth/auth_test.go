package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHMACVerifierRoundTrip(t *testing.T) {
	v := NewHMACVerifier("secret", time.Hour)

	token, err := v.IssueToken("brand-1")
	require.NoError(t, err)

	uid, err := v.VerifyToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "brand-1", uid)
}

func TestHMACVerifierRejects(t *testing.T) {
	v := NewHMACVerifier("secret", time.Hour)

	other, err := NewHMACVerifier("other", time.Hour).IssueToken("brand-1")
	require.NoError(t, err)
	_, err = v.VerifyToken(context.Background(), other)
	assert.Error(t, err, "wrong secret")

	expired, err := NewHMACVerifier("secret", -time.Minute).IssueToken("brand-1")
	require.NoError(t, err)
	_, err = v.VerifyToken(context.Background(), expired)
	assert.Error(t, err, "expired")

	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = v.VerifyToken(context.Background(), noSubject)
	assert.Error(t, err, "no subject")

	_, err = v.VerifyToken(context.Background(), "not-a-token")
	assert.Error(t, err)
}

func TestJWKSVerifier(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"keys": []map[string]string{{
				"kty": "RSA",
				"kid": "k1",
				"alg": "RS256",
				"use": "sig",
				"n":   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
			}},
		})
	}))
	defer srv.Close()

	v, err := NewJWKSVerifier(srv.URL)
	require.NoError(t, err)
	defer v.Close()

	sign := func(kid string, k *rsa.PrivateKey) string {
		token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.RegisteredClaims{
			Subject:   "creator-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		})
		token.Header["kid"] = kid
		s, err := token.SignedString(k)
		require.NoError(t, err)
		return s
	}

	uid, err := v.VerifyToken(context.Background(), sign("k1", key))
	require.NoError(t, err)
	assert.Equal(t, "creator-1", uid)

	other, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	_, err = v.VerifyToken(context.Background(), sign("k1", other))
	assert.Error(t, err)
}
