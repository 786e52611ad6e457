package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerPort  string
	Environment string

	// AllowedOrigins restricts CORS and websocket upgrades. Empty allows any origin.
	AllowedOrigins []string

	FirebaseProject            string
	FirebaseServiceAccountPath string
	FirebaseServiceAccountJSON string

	// StoreDriver selects the system of record: "firestore" or "memory".
	StoreDriver string
	// DevUsers seeds the memory store, as "id:role,id:role".
	DevUsers string

	// StorageDriver selects the file storage collaborator: "gcs" or "minio".
	StorageDriver  string
	StorageBucket  string
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioUseSSL    bool

	// RedisURL enables cross-instance fan-out. Empty keeps fan-out in-process.
	RedisURL string

	// AuthDriver selects the token verifier: "firebase", "jwt" or "jwks".
	AuthDriver string
	JWTSecret  string
	JWTExpiry  int64
	JWKSURL    string

	OverdueScanInterval time.Duration
	TypingTTL           time.Duration
}

func Load() (*Config, error) {
	godotenv.Load()

	config := &Config{
		ServerPort:  getEnv("SERVER_PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),

		AllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),

		FirebaseProject:            getEnv("FIREBASE_PROJECT_ID", ""),
		FirebaseServiceAccountPath: getEnv("FIREBASE_SERVICE_ACCOUNT_PATH", ""),
		FirebaseServiceAccountJSON: getEnv("FIREBASE_SERVICE_ACCOUNT_JSON", ""),

		StoreDriver: getEnv("STORE_DRIVER", "firestore"),
		DevUsers:    getEnv("DEV_USERS", ""),

		StorageDriver:  getEnv("STORAGE_DRIVER", "gcs"),
		StorageBucket:  getEnv("STORAGE_BUCKET", ""),
		MinioEndpoint:  getEnv("MINIO_ENDPOINT", "localhost:9000"),
		MinioAccessKey: getEnv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey: getEnv("MINIO_SECRET_KEY", ""),
		MinioUseSSL:    getEnvAsBool("MINIO_USE_SSL", false),

		RedisURL: getEnv("REDIS_URL", ""),

		AuthDriver: getEnv("AUTH_DRIVER", "firebase"),
		JWTSecret:  getEnv("JWT_SECRET", "your-secret-key"),
		JWTExpiry:  getEnvAsInt64("JWT_EXPIRY", 24*60*60), // 24 hours
		JWKSURL:    getEnv("JWKS_URL", ""),

		OverdueScanInterval: getEnvAsDuration("OVERDUE_SCAN_INTERVAL", 10*time.Minute),
		TypingTTL:           getEnvAsDuration("TYPING_TTL", 3*time.Second),
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) validate() error {
	switch c.StoreDriver {
	case "firestore":
		if c.FirebaseProject == "" {
			return fmt.Errorf("FIREBASE_PROJECT_ID is required for the firestore store driver")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}

	switch c.StorageDriver {
	case "gcs", "minio":
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", c.StorageDriver)
	}

	switch c.AuthDriver {
	case "firebase":
		if c.FirebaseProject == "" {
			return fmt.Errorf("FIREBASE_PROJECT_ID is required for the firebase auth driver")
		}
	case "jwt":
	case "jwks":
		if c.JWKSURL == "" {
			return fmt.Errorf("JWKS_URL is required for the jwks auth driver")
		}
	default:
		return fmt.Errorf("unknown AUTH_DRIVER %q", c.AuthDriver)
	}

	return nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		intValue, err := strconv.ParseInt(value, 10, 64)
		if err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		boolValue, err := strconv.ParseBool(value)
		if err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		d, err := time.ParseDuration(value)
		if err == nil && d > 0 {
			return d
		}
	}
	return defaultValue
}
