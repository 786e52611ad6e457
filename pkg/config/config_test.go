package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMemoryDefaults(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("AUTH_DRIVER", "jwt")
	t.Setenv("OVERDUE_SCAN_INTERVAL", "30s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.StoreDriver)
	assert.Equal(t, "gcs", cfg.StorageDriver)
	assert.Equal(t, 30*time.Second, cfg.OverdueScanInterval)
	assert.Equal(t, 3*time.Second, cfg.TypingTTL)
}

func TestLoadRejectsFirestoreWithoutProject(t *testing.T) {
	t.Setenv("STORE_DRIVER", "firestore")
	t.Setenv("FIREBASE_PROJECT_ID", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsJWKSWithoutURL(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("AUTH_DRIVER", "jwks")
	t.Setenv("JWKS_URL", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestBadDurationFallsBack(t *testing.T) {
	t.Setenv("TYPING_TTL", "soon")
	assert.Equal(t, 3*time.Second, getEnvAsDuration("TYPING_TTL", 3*time.Second))
}

func TestLoadAllowedOrigins(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("AUTH_DRIVER", "jwt")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://app.example.com, ,https://admin.example.com")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"https://app.example.com", "https://admin.example.com"}, cfg.AllowedOrigins)
}

func TestLoadRejectsFirebaseAuthWithoutProject(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("AUTH_DRIVER", "firebase")
	t.Setenv("FIREBASE_PROJECT_ID", "")

	_, err := Load()
	assert.Error(t, err)
}
