// Package config loads runtime settings from the environment.
//
// A .env file in the working directory is read first when it exists, so
// local development can keep settings in a file while production sets real
// environment variables. Variables already set in the environment win over
// the file (godotenv never overwrites).
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Storage backends accepted in STORAGE_BACKEND.
const (
	StorageLocal = "local"
	StorageMinIO = "minio"
)

// Config is every setting the server reads at startup.
type Config struct {
	Port int

	DBPath         string
	DBMaxOpenConns int

	StorageBackend string
	UploadDir      string
	MinIOEndpoint  string
	MinIOAccessKey string
	MinIOSecretKey string
	MinIOBucket    string
	MinIOUseSSL    bool
	MinIOPublicURL string

	// JWTSecret signs session tokens. Empty disables tokens and /api/me.
	JWTSecret string

	CORSOrigins []string
	LogLevel    slog.Level

	AuthAttemptsPerMinute int
	AuthAttemptBurst      int
	BcryptCost            int
}

// Load reads .env (if present) and then the environment.
func Load() (Config, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load()
	return fromEnv()
}

func fromEnv() (Config, error) {
	cfg := Config{
		DBPath:         getEnv("DB_PATH", "data/photoshare.db"),
		StorageBackend: strings.ToLower(getEnv("STORAGE_BACKEND", StorageLocal)),
		UploadDir:      getEnv("UPLOAD_DIR", "uploads"),
		MinIOEndpoint:  getEnv("MINIO_ENDPOINT", ""),
		MinIOAccessKey: getEnv("MINIO_ACCESS_KEY", ""),
		MinIOSecretKey: getEnv("MINIO_SECRET_KEY", ""),
		MinIOBucket:    getEnv("MINIO_BUCKET", "photoshare"),
		MinIOPublicURL: getEnv("MINIO_PUBLIC_URL", ""),
		JWTSecret:      getEnv("JWT_SECRET", ""),
		CORSOrigins:    splitList(getEnv("CORS_ORIGINS", "*")),
	}

	var err error
	if cfg.Port, err = getEnvInt("PORT", 8080); err != nil {
		return Config{}, err
	}
	if cfg.DBMaxOpenConns, err = getEnvInt("DB_MAX_OPEN_CONNS", 4); err != nil {
		return Config{}, err
	}
	if cfg.AuthAttemptsPerMinute, err = getEnvInt("AUTH_ATTEMPTS_PER_MINUTE", 5); err != nil {
		return Config{}, err
	}
	if cfg.AuthAttemptBurst, err = getEnvInt("AUTH_ATTEMPT_BURST", 5); err != nil {
		return Config{}, err
	}
	if cfg.BcryptCost, err = getEnvInt("BCRYPT_COST", 12); err != nil {
		return Config{}, err
	}
	if cfg.MinIOUseSSL, err = getEnvBool("MINIO_USE_SSL", false); err != nil {
		return Config{}, err
	}
	if cfg.LogLevel, err = parseLevel(getEnv("LOG_LEVEL", "info")); err != nil {
		return Config{}, err
	}

	if cfg.Port <= 0 || cfg.Port > 65535 {
		return Config{}, fmt.Errorf("config: PORT %d out of range", cfg.Port)
	}
	switch cfg.StorageBackend {
	case StorageLocal:
	case StorageMinIO:
		if cfg.MinIOEndpoint == "" {
			return Config{}, fmt.Errorf("config: MINIO_ENDPOINT is required when STORAGE_BACKEND=minio")
		}
	default:
		return Config{}, fmt.Errorf("config: unknown STORAGE_BACKEND %q", cfg.StorageBackend)
	}

	return cfg, nil
}

// getEnv treats a variable set to blank the same as an unset one.
func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := getEnv(key, "")
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s=%q is not a number", key, v)
	}
	return n, nil
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := getEnv(key, "")
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("config: %s=%q is not a boolean", key, v)
	}
	return b, nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("config: LOG_LEVEL %q: %w", s, err)
	}
	return level, nil
}

// splitList parses "a, b,,c" into [a b c].
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
