// Package config は環境変数（と任意の.env）から起動設定を組み立てる。
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	AppEnv string

	// Database
	DatabaseURL       string
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxIdleTime time.Duration
	DBConnMaxLifetime time.Duration
	DBConnectTimeout  time.Duration

	// EncryptionKey は投資金額の暗号化パスフレーズ。production以外では未設定を許す。
	EncryptionKey string

	// SessionMaxAge は秒。Cookieと sessions.expires_at の両方に使う。
	SessionMaxAge          int
	SessionCleanupSchedule string

	AuthRateLimitMax    int
	AuthRateLimitWindow time.Duration
	RateLimitGeneral    int // 1分あたり
	RateLimitImport     int // 1分あたり

	ImportMaxBytes int64

	LogLevel string

	ServerPort string
	BaseURL    string

	// CookieSecure はBASE_URLがhttpsのときtrue。
	CookieSecure bool
	CookieDomain string

	CORSAllowedOrigin string
}

// IsProduction はAPP_ENVがproductionかを返す。
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// ErrInvalidEnv は環境変数の値が型や範囲に合わないことを示す。
var ErrInvalidEnv = errors.New("invalid environment variable")

// Load は環境変数からConfigを読み込む。
// カレントディレクトリの.envは既存の環境変数を上書きしない。
// 必須値の欠落や解釈できない値は、まとめて1つのエラーとして返す。
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	var env envReader
	cfg := &Config{
		DatabaseURL: env.required("DATABASE_URL"),
		BaseURL:     env.required("BASE_URL"),

		AppEnv:        env.str("APP_ENV", "development"),
		EncryptionKey: os.Getenv("ENCRYPTION_KEY"),

		DBMaxOpenConns:    positive(&env, "DB_MAX_OPEN_CONNS", 10, strconv.Atoi),
		DBMaxIdleConns:    positive(&env, "DB_MAX_IDLE_CONNS", 2, strconv.Atoi),
		DBConnMaxIdleTime: positive(&env, "DB_CONN_MAX_IDLE_TIME", 20*time.Second, time.ParseDuration),
		DBConnMaxLifetime: positive(&env, "DB_CONN_MAX_LIFETIME", 30*time.Minute, time.ParseDuration),
		DBConnectTimeout:  positive(&env, "DB_CONNECT_TIMEOUT", 10*time.Second, time.ParseDuration),

		SessionMaxAge:          positive(&env, "SESSION_MAX_AGE", 30*24*60*60, strconv.Atoi),
		SessionCleanupSchedule: env.str("SESSION_CLEANUP_SCHEDULE", "@hourly"),

		AuthRateLimitMax:    positive(&env, "AUTH_RATE_LIMIT_MAX", 5, strconv.Atoi),
		AuthRateLimitWindow: positive(&env, "AUTH_RATE_LIMIT_WINDOW", 15*time.Minute, time.ParseDuration),
		RateLimitGeneral:    positive(&env, "RATE_LIMIT_GENERAL", 120, strconv.Atoi),
		RateLimitImport:     positive(&env, "RATE_LIMIT_IMPORT", 10, strconv.Atoi),

		ImportMaxBytes: positive(&env, "IMPORT_MAX_BYTES", 5<<20, parseInt64),

		LogLevel:          env.str("LOG_LEVEL", "info"),
		ServerPort:        env.str("SERVER_PORT", "8080"),
		CookieDomain:      env.str("COOKIE_DOMAIN", ""),
		CORSAllowedOrigin: env.str("CORS_ALLOWED_ORIGIN", "http://localhost:5173"),
	}
	if err := env.err(); err != nil {
		return nil, err
	}

	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	return cfg, nil
}

// envReader は読み込み中に見つかった問題を溜め、最後にまとめて報告する。
type envReader struct {
	missing []string
	invalid []error
}

func (e *envReader) str(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func (e *envReader) required(key string) string {
	v := os.Getenv(key)
	if v == "" {
		e.missing = append(e.missing, key)
	}
	return v
}

func (e *envReader) err() error {
	errs := e.invalid
	if len(e.missing) > 0 {
		errs = append([]error{fmt.Errorf("required environment variables are not set: %v", e.missing)}, errs...)
	}
	return errors.Join(errs...)
}

type number interface {
	~int | ~int64
}

// positive はkeyを数値として読み、未設定ならdefを返す。0以下や解釈できない値はエラーとして記録する。
func positive[T number](e *envReader, key string, def T, parse func(string) (T, error)) T {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := parse(raw)
	if err != nil || v <= 0 {
		e.invalid = append(e.invalid, fmt.Errorf("%w: %s=%q must be a positive value", ErrInvalidEnv, key, raw))
		return def
	}
	return v
}

func parseInt64(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}
