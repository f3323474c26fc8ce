// Package config はアプリケーション設定の読み込みを提供する。
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Revocation cache (Redis)
	// 未設定の場合は失効キャッシュなしで起動する（署名検証のみに縮退）。
	RedisAddr     string
	RedisPassword string

	// JWT
	JWTAccessSecret   string
	JWTRefreshSecret  string
	AccessTokenExpiry time.Duration
	RefreshTokenExpiry time.Duration

	// Execute proxy
	ExecuteTimeoutDefault time.Duration
	ExecuteTimeoutMin     time.Duration
	ExecuteTimeoutMax     time.Duration
	ExecuteMaxBodySize    int64
	// EgressGuardEnabled が真の場合、プライベートIP等へのプロキシ実行をブロックする。
	// ワークベンチの性質上デフォルトは無効（任意の接続先への素通しが仕様）。
	EgressGuardEnabled bool

	// History
	HistoryRetentionDays int

	// Rate Limit（req/min/user）
	RateLimitGeneral int
	RateLimitExecute int

	// Logging
	LogLevel string

	// Server
	ServerPort string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.JWTAccessSecret = os.Getenv("JWT_ACCESS_SECRET")
	if cfg.JWTAccessSecret == "" {
		missing = append(missing, "JWT_ACCESS_SECRET")
	}

	cfg.JWTRefreshSecret = os.Getenv("JWT_REFRESH_SECRET")
	if cfg.JWTRefreshSecret == "" {
		missing = append(missing, "JWT_REFRESH_SECRET")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// アクセス用とリフレッシュ用の署名鍵は独立している必要がある
	if cfg.JWTAccessSecret == cfg.JWTRefreshSecret {
		return nil, fmt.Errorf("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ")
	}

	// Optional fields with defaults
	cfg.RedisAddr = getEnvString("REDIS_ADDR", "")
	cfg.RedisPassword = getEnvString("REDIS_PASSWORD", "")
	cfg.AccessTokenExpiry = getEnvDuration("ACCESS_TOKEN_EXPIRY", 15*time.Minute)
	cfg.RefreshTokenExpiry = getEnvDuration("REFRESH_TOKEN_EXPIRY", 7*24*time.Hour)
	cfg.ExecuteTimeoutDefault = getEnvDuration("EXECUTE_TIMEOUT_DEFAULT", 30*time.Second)
	cfg.ExecuteTimeoutMin = getEnvDuration("EXECUTE_TIMEOUT_MIN", 1*time.Second)
	cfg.ExecuteTimeoutMax = getEnvDuration("EXECUTE_TIMEOUT_MAX", 60*time.Second)
	cfg.ExecuteMaxBodySize = getEnvInt64("EXECUTE_MAX_BODY_SIZE", 10485760)
	cfg.EgressGuardEnabled = getEnvBool("EGRESS_GUARD_ENABLED", false)
	cfg.HistoryRetentionDays = getEnvInt("HISTORY_RETENTION_DAYS", 30)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitExecute = getEnvInt("RATE_LIMIT_EXECUTE", 30)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
