package app

import (
	"os"
	"strconv"
	"strings"
	"time"

	httpapi "github.com/aussiebroadwan/propulse/internal/identity/http"
	"github.com/aussiebroadwan/propulse/internal/identity/service"
	"github.com/aussiebroadwan/propulse/pkg/jwtx"
)

type Config struct {
	Issuer         string // Required: issuer claim for tokens and discovery (default: http://localhost:8080)
	PublicURL      string // Optional: base URL for links in emails (default: Issuer)
	BootstrapToken string // Optional: token required by POST /v1/clients (empty disables registration)

	Algorithm    string // Optional: JWT signing algorithm (RS256, EdDSA) (default: EdDSA)
	RSABits      int    // Optional: RSA key size for RS256 (default: 3072)
	NumKeys      int    // Optional: number of signing keys to generate (default: 3, max: 10)
	DatabaseFile string // Optional: path to SQLite database file (default: ./identity.db)
	PepperFile   string // Optional: path to file containing pepper for password hashing (default: ./pepper)

	RequireConfirmedAccount bool          // Block password sign in until the email is confirmed (default: true)
	MaxFailedAttempts       int           // Failed sign ins before lockout (default: 5)
	LockoutDuration         time.Duration // Lockout length (default: 5m)
	UserTokenTTL            time.Duration // Lifetime of confirm and reset tokens (default: 24h)
	CodeTTL                 time.Duration // Authorization code lifetime (default: 5m)
	AccessTokenTTL          time.Duration // (default: 15m)
	IDTokenTTL              time.Duration // (default: 15m)
	RefreshTokenTTL         time.Duration // (default: 14 days)

	SessionStore      string        // Browser session backend (memory, redis) (default: memory)
	RedisAddr         string        // Redis address when SessionStore is redis (default: localhost:6379)
	RedisPassword     string        // Optional
	RedisDB           int           // (default: 0)
	SessionTTL        time.Duration // Session lifetime without "remember me" (default: 12h)
	PersistentSession time.Duration // Session lifetime with "remember me" (default: 14 days)
	SecureCookies     bool          // Set the Secure cookie attribute (default: true outside dev)

	S3Bucket       string        // Optional: enables article attachments when set
	S3Region       string        // (default: us-east-1)
	S3Endpoint     string        // Optional: custom endpoint for MinIO and friends
	S3AccessKey    string        // Optional: static credentials, otherwise the default AWS chain
	S3SecretKey    string        // Optional
	S3UsePathStyle bool          // (default: false)
	S3PresignTTL   time.Duration // Lifetime of presigned URLs (default: 15m)

	OTLPEndpoint string // Optional: OTLP/HTTP endpoint, tracing is off when empty

	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Housekeeping interval (default: 1h)

	Providers map[string]service.Provider  // External login providers with credentials present
	Clients   []service.ClientRegistration // OAuth clients ensured at startup
}

func LoadConfig() (Config, error) {
	env := getEnvOrDefault("ENV", "dev")
	cfg := Config{
		Issuer:         getEnvOrDefault("IDENTITY_ISSUER", "http://localhost:8080"),
		PublicURL:      os.Getenv("IDENTITY_PUBLIC_URL"),
		BootstrapToken: os.Getenv("BOOTSTRAP_TOKEN"),

		Algorithm:    getEnvOrDefault("IDENTITY_ALGORITHM", jwtx.AlgorithmEdDSA),
		RSABits:      getEnvIntOrDefault("IDENTITY_RSA_BITS", 0), // 0 lets the KeyManager pick
		NumKeys:      getEnvIntOrDefault("IDENTITY_NUM_KEYS", 0),
		DatabaseFile: getEnvOrDefault("IDENTITY_DATABASE_FILE", "identity.db"),
		PepperFile:   getEnvOrDefault("IDENTITY_PEPPER_FILE", "pepper"),

		RequireConfirmedAccount: getEnvBoolOrDefault("IDENTITY_REQUIRE_CONFIRMED_ACCOUNT", true),
		MaxFailedAttempts:       getEnvIntOrDefault("IDENTITY_MAX_FAILED_ATTEMPTS", service.DefaultMaxFailedAttempts),
		LockoutDuration:         getEnvDurationOrDefault("IDENTITY_LOCKOUT_DURATION", service.DefaultLockoutDuration),
		UserTokenTTL:            getEnvDurationOrDefault("IDENTITY_USER_TOKEN_TTL", service.DefaultUserTokenTTL),
		CodeTTL:                 getEnvDurationOrDefault("IDENTITY_CODE_TTL", service.DefaultCodeTTL),
		AccessTokenTTL:          getEnvDurationOrDefault("IDENTITY_ACCESS_TOKEN_TTL", jwtx.DefaultAccessTokenTTL),
		IDTokenTTL:              getEnvDurationOrDefault("IDENTITY_ID_TOKEN_TTL", jwtx.DefaultIDTokenTTL),
		RefreshTokenTTL:         getEnvDurationOrDefault("IDENTITY_REFRESH_TOKEN_TTL", jwtx.DefaultRefreshTokenTTL),

		SessionStore:      strings.ToLower(getEnvOrDefault("IDENTITY_SESSION_STORE", "memory")),
		RedisAddr:         getEnvOrDefault("IDENTITY_REDIS_ADDR", "localhost:6379"),
		RedisPassword:     os.Getenv("IDENTITY_REDIS_PASSWORD"),
		RedisDB:           getEnvIntOrDefault("IDENTITY_REDIS_DB", 0),
		SessionTTL:        getEnvDurationOrDefault("IDENTITY_SESSION_TTL", httpapi.DefaultSessionTTL),
		PersistentSession: getEnvDurationOrDefault("IDENTITY_PERSISTENT_SESSION_TTL", httpapi.DefaultPersistentSessionTTL),
		SecureCookies:     getEnvBoolOrDefault("IDENTITY_SECURE_COOKIES", env != "dev"),

		S3Bucket:       os.Getenv("S3_BUCKET"),
		S3Region:       getEnvOrDefault("S3_REGION", "us-east-1"),
		S3Endpoint:     os.Getenv("S3_ENDPOINT"),
		S3AccessKey:    os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:    os.Getenv("S3_SECRET_KEY"),
		S3UsePathStyle: getEnvBoolOrDefault("S3_USE_PATH_STYLE", false),
		S3PresignTTL:   getEnvDurationOrDefault("S3_PRESIGN_TTL", 15*time.Minute),

		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),

		Env:                  env,
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 1*time.Hour),
	}

	cfg.Issuer = strings.TrimRight(cfg.Issuer, "/")
	if cfg.PublicURL == "" {
		cfg.PublicURL = cfg.Issuer
	}

	providers, err := LoadProviders(cfg.PublicURL)
	if err != nil {
		return Config{}, err
	}
	cfg.Providers = providers

	clients, err := LoadClients()
	if err != nil {
		return Config{}, err
	}
	cfg.Clients = clients

	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if boolValue, err := strconv.ParseBool(value); err == nil {
		return boolValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Plain integers are minutes
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}
