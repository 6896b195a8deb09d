package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Env  string
	Port int

	MongoURI string
	MongoDB  string

	JWTSecret     string
	JWTExpiresIn  time.Duration
	CORSOrigins   []string
	MaxBodyBytes  int64
	RateLimit     int
	RateWindow    time.Duration
	RedisAddr     string
	OTLPEndpoint  string
	AdminEmail    string
	AdminPassword string
	AdminName     string
}

func Load() Config {
	env := getEnv("APP_ENV", "dev")
	port := getEnvInt("PORT", 8080)

	return Config{
		Env:  env,
		Port: port,

		MongoURI: getEnv("MONGO_URI", "mongodb://127.0.0.1:27017"),
		MongoDB:  getEnv("MONGO_DB", "userhub"),

		JWTSecret: getEnv("JWT_SECRET", ""),
		// original default: tokens live for 90 days
		JWTExpiresIn: time.Duration(getEnvInt("JWT_EXPIRES_DAYS", 90)) * 24 * time.Hour,

		CORSOrigins:  splitCSV(getEnv("CORS_ORIGINS", "")),
		MaxBodyBytes: int64(getEnvInt("MAX_BODY_BYTES", 10*1024)),
		RateLimit:    getEnvInt("RATE_LIMIT", 100),
		RateWindow:   time.Duration(getEnvInt("RATE_WINDOW_SECONDS", 60)) * time.Second,
		RedisAddr:    getEnv("REDIS_ADDR", ""),
		OTLPEndpoint: getEnv("OTLP_ENDPOINT", ""),

		AdminEmail:    getEnv("ADMIN_EMAIL", ""),
		AdminPassword: getEnv("ADMIN_PASSWORD", ""),
		AdminName:     getEnv("ADMIN_NAME", "Admin"),
	}
}

func WithTimeout(duration time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), duration)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		num, err := strconv.Atoi(v)

		if err != nil {
			fmt.Println(err)
		}

		return num
	}
	return fallback
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}

	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))

	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}

	return out
}
