package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

type Config struct {
	Env  string
	Port string

	// Optional backing stores; empty means in-memory.
	DBURL     string
	RedisAddr string

	TokenSecret     string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	ResetTokenTTL   time.Duration
	ClockSkewLeeway time.Duration

	PasswordMinLength int
	BcryptCost        int

	LockoutThreshold int
	LockoutCooldown  time.Duration

	MaxActiveTokens int
	SweepInterval   time.Duration

	// Seeded administrator account; empty AdminEmail disables seeding.
	AdminEmail    string
	AdminHandle   string
	AdminPassword string
}

func Load() *Config {
	// Missing .env is fine; real env vars win either way.
	_ = godotenv.Load()

	return &Config{
		Env:               getEnv("ENV", "development"),
		Port:              getEnv("PORT", "8080"),
		DBURL:             getEnv("DB_URL", ""),
		RedisAddr:         getEnv("REDIS_ADDR", ""),
		TokenSecret:       mustGetEnv("SECRET_KEY"),
		AccessTokenTTL:    getEnvAsMinutes("ACCESS_TOKEN_EXPIRY_MIN", 30),
		RefreshTokenTTL:   getEnvAsMinutes("REFRESH_TOKEN_EXPIRY_MIN", 7*24*60),
		ResetTokenTTL:     getEnvAsMinutes("RESET_TOKEN_EXPIRY_MIN", 60),
		ClockSkewLeeway:   time.Duration(getEnvAsInt("CLOCK_SKEW_LEEWAY_SEC", 0)) * time.Second,
		PasswordMinLength: getEnvAsInt("PASSWORD_MIN_LENGTH", 8),
		BcryptCost:        getEnvAsInt("BCRYPT_COST", bcrypt.DefaultCost),
		LockoutThreshold:  getEnvAsInt("MAX_LOGIN_ATTEMPTS", 5),
		LockoutCooldown:   getEnvAsMinutes("LOGIN_TIMEOUT_MIN", 15),
		MaxActiveTokens:   getEnvAsInt("MAX_ACTIVE_TOKENS", 5),
		SweepInterval:     getEnvAsMinutes("SWEEP_INTERVAL_MIN", 10),
		AdminEmail:        getEnv("ADMIN_EMAIL", "admin@aimini.games"),
		AdminHandle:       getEnv("ADMIN_HANDLE", "admin"),
		AdminPassword:     getEnv("ADMIN_PASSWORD", "Admin123!"),
	}
}

func getEnv(key string, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func mustGetEnv(key string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	log.Fatalf("Missing required environment variable: %s", key)
	return ""
}

func getEnvAsInt(key string, defaultVal int) int {
	valStr := os.Getenv(key)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(valStr)
	if err != nil {
		log.Printf("Invalid value for %s, using default %d", key, defaultVal)
		return defaultVal
	}
	return val
}

func getEnvAsMinutes(key string, defaultVal int) time.Duration {
	return time.Duration(getEnvAsInt(key, defaultVal)) * time.Minute
}
