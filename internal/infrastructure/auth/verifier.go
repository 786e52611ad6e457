// Package auth adapts identity providers to a single token check.
package auth

import "context"

// TokenVerifier validates a bearer token and returns the user id it was
// issued for.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (string, error)
}
