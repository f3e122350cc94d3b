package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// maxSceneLengthCeiling mirrors the scene CHECK constraint in the structures
// DDL.
const maxSceneLengthCeiling = 255

type Config struct {
	Env        string
	ListenAddr string
	LogLevel   string

	DatabaseURL   string
	DBHost        string
	DBPort        int
	DBName        string
	DBUser        string
	DBPassword    string
	DBSSLMode     string
	DBSSLRootCert string

	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration

	SteamAPIKey          string
	SteamAppID           int64
	SkipTicketValidation bool
	TicketCacheTTL       time.Duration

	MaxUserStructsSavedPerScene int
	MaxRequestedStructs         int
	DefaultRandomLimit          int
	MaxSceneLength              int

	PostStructureRateLimit time.Duration
	GetStructureRateLimit  time.Duration
	PostLikeRateLimit      time.Duration

	GlobalRateLimitRPS   float64
	GlobalRateLimitBurst int
}

func Load() (Config, error) {
	cfg := Config{
		Env:        getenvDefault("ENV", "development"),
		ListenAddr: getenvDefault("LISTEN_ADDR", ":8080"),
		LogLevel:   getenvDefault("LOG_LEVEL", "info"),

		DatabaseURL:   strings.TrimSpace(os.Getenv("DATABASE_URL")),
		DBHost:        getenvDefault("DB_HOST", "127.0.0.1"),
		DBName:        getenvDefault("DB_NAME", "peakstranding"),
		DBUser:        getenvDefault("DB_USER", "peakstranding_app"),
		DBPassword:    os.Getenv("DB_PASSWORD"),
		DBSSLMode:     getenvDefault("DB_SSLMODE", "disable"),
		DBSSLRootCert: strings.TrimSpace(os.Getenv("DB_SSLROOTCERT")),

		SteamAPIKey: strings.TrimSpace(os.Getenv("STEAM_API_KEY")),
	}

	dbPortStr := getenvDefault("DB_PORT", "5432")
	dbPort, err := strconv.Atoi(dbPortStr)
	if err != nil || dbPort <= 0 || dbPort > 65535 {
		return Config{}, fmt.Errorf("invalid DB_PORT %q", dbPortStr)
	}
	cfg.DBPort = dbPort

	if cfg.DBMaxOpenConns, err = getenvInt("DB_MAX_OPEN_CONNS", 25); err != nil {
		return Config{}, err
	}
	if cfg.DBMaxIdleConns, err = getenvInt("DB_MAX_IDLE_CONNS", 5); err != nil {
		return Config{}, err
	}
	if cfg.DBConnMaxLifetime, err = getenvDuration("DB_CONN_MAX_LIFETIME", 15*time.Minute); err != nil {
		return Config{}, err
	}

	if cfg.SteamAppID, err = getenvInt64("STEAM_APP_ID", 0); err != nil {
		return Config{}, err
	}
	if cfg.SkipTicketValidation, err = getenvBool("SKIP_STEAM_TICKET_VALIDATION", false); err != nil {
		return Config{}, err
	}
	if cfg.TicketCacheTTL, err = getenvDuration("TICKET_CACHE_TTL", 60*time.Second); err != nil {
		return Config{}, err
	}

	if cfg.MaxUserStructsSavedPerScene, err = getenvInt("MAX_USER_STRUCTS_SAVED_PER_SCENE", 30); err != nil {
		return Config{}, err
	}
	if cfg.MaxRequestedStructs, err = getenvInt("MAX_REQUESTED_STRUCTS", 20); err != nil {
		return Config{}, err
	}
	if cfg.DefaultRandomLimit, err = getenvInt("DEFAULT_RANDOM_LIMIT", 5); err != nil {
		return Config{}, err
	}
	if cfg.MaxSceneLength, err = getenvInt("MAX_SCENE_LENGTH", 64); err != nil {
		return Config{}, err
	}

	if cfg.PostStructureRateLimit, err = getenvDuration("POST_STRUCTURE_RATE_LIMIT", 10*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.GetStructureRateLimit, err = getenvDuration("GET_STRUCTURE_RATE_LIMIT", 2*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.PostLikeRateLimit, err = getenvDuration("POST_LIKE_RATE_LIMIT", time.Second); err != nil {
		return Config{}, err
	}

	if cfg.GlobalRateLimitRPS, err = getenvFloat("GLOBAL_RATE_LIMIT_RPS", 50); err != nil {
		return Config{}, err
	}
	if cfg.GlobalRateLimitBurst, err = getenvInt("GLOBAL_RATE_LIMIT_BURST", 100); err != nil {
		return Config{}, err
	}

	if cfg.MaxUserStructsSavedPerScene <= 0 {
		return Config{}, errors.New("MAX_USER_STRUCTS_SAVED_PER_SCENE must be positive")
	}
	if cfg.MaxRequestedStructs <= 0 {
		return Config{}, errors.New("MAX_REQUESTED_STRUCTS must be positive")
	}
	if cfg.DefaultRandomLimit <= 0 {
		return Config{}, errors.New("DEFAULT_RANDOM_LIMIT must be positive")
	}
	// The structures table CHECK caps scene at 255 characters; a larger
	// configured limit would turn should-be-validation failures into
	// database errors.
	if cfg.MaxSceneLength <= 0 || cfg.MaxSceneLength > maxSceneLengthCeiling {
		return Config{}, fmt.Errorf("MAX_SCENE_LENGTH must be in 1..%d", maxSceneLengthCeiling)
	}

	if cfg.Env == "production" {
		if cfg.SkipTicketValidation {
			return Config{}, errors.New("SKIP_STEAM_TICKET_VALIDATION is not allowed in production")
		}
		if cfg.SteamAPIKey == "" {
			return Config{}, errors.New("STEAM_API_KEY is required in production")
		}
	}

	return cfg, nil
}

func (c Config) PostgresURL() (string, error) {
	if c.DatabaseURL != "" {
		return c.DatabaseURL, nil
	}

	missing := make([]string, 0, 4)
	if c.DBHost == "" {
		missing = append(missing, "DB_HOST")
	}
	if c.DBName == "" {
		missing = append(missing, "DB_NAME")
	}
	if c.DBUser == "" {
		missing = append(missing, "DB_USER")
	}
	if c.DBSSLMode == "" {
		missing = append(missing, "DB_SSLMODE")
	}
	if len(missing) > 0 {
		return "", fmt.Errorf("missing env vars: %s", strings.Join(missing, ", "))
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.DBUser, c.DBPassword),
		Host:   fmt.Sprintf("%s:%d", c.DBHost, c.DBPort),
		Path:   c.DBName,
	}

	q := u.Query()
	q.Set("sslmode", c.DBSSLMode)
	if c.DBSSLRootCert != "" {
		q.Set("sslrootcert", c.DBSSLRootCert)
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}

func getenvDefault(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func getenvInt(key string, def int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", key, v)
	}
	return n, nil
}

func getenvInt64(key string, def int64) (int64, error) {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", key, v)
	}
	return n, nil
}

func getenvFloat(key string, def float64) (float64, error) {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || f < 0 {
		return 0, fmt.Errorf("invalid %s %q", key, v)
	}
	return f, nil
}

func getenvBool(key string, def bool) (bool, error) {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return false, fmt.Errorf("invalid %s %q", key, v)
	}
	return b, nil
}

// getenvDuration accepts Go duration strings ("10s", "250ms"). A bare integer
// is taken as milliseconds, which is how the game mod's own config expresses
// the rate limit intervals.
func getenvDuration(key string, def time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return def, nil
	}
	s := strings.TrimSpace(v)
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		if ms < 0 {
			return 0, fmt.Errorf("invalid %s %q", key, v)
		}
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid %s %q", key, v)
	}
	return d, nil
}
