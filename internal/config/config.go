package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config 应用配置，全部来自环境变量（可由 .env 提供）
type Config struct {
	Port          string
	Env           string
	DatabaseURL   string
	SessionSecret string
	SiteURL       string
	CORSOrigins   []string

	// 身份令牌校验（托管身份服务签发的会话 JWT）
	JWTSecret    string
	JWTPublicKey string
	JWTIssuer    string
	AdminUserIDs []string

	LLMBaseURL string
	LLMToken   string
	LLMModel   string

	StripeSecretKey string

	X402Recipient string
	X402Network   string
	X402Asset     string

	ReconcileInterval time.Duration
}

// Load reads .env (if present) and the process environment.
func Load() *Config {
	// .env 不存在时直接使用系统环境变量
	_ = godotenv.Load()

	return &Config{
		Port:              getEnv("PORT", "8080"),
		Env:               getEnv("APP_ENV", "development"),
		DatabaseURL:       getEnv("DATABASE_URL", "host=localhost user=postgres password=postgres dbname=wikits port=5432 sslmode=disable"),
		SessionSecret:     getEnv("SESSION_SECRET", "secret_key_change_me"),
		SiteURL:           strings.TrimSuffix(getEnv("SITE_URL", "http://localhost:8080"), "/"),
		CORSOrigins:       splitList(getEnv("CORS_ORIGINS", "*")),
		JWTSecret:         os.Getenv("AUTH_JWT_SECRET"),
		JWTPublicKey:      os.Getenv("AUTH_JWT_PUBLIC_KEY"),
		JWTIssuer:         os.Getenv("AUTH_ISSUER"),
		AdminUserIDs:      splitList(os.Getenv("ADMIN_USER_IDS")),
		LLMBaseURL:        strings.TrimSuffix(os.Getenv("LLM_BASE_URL"), "/"),
		LLMToken:          os.Getenv("LLM_TOKEN"),
		LLMModel:          getEnv("LLM_MODEL", "gpt-4o-mini"),
		StripeSecretKey:   os.Getenv("STRIPE_SECRET_KEY"),
		X402Recipient:     os.Getenv("X402_RECIPIENT"),
		X402Network:       getEnv("X402_NETWORK", "base-sepolia"),
		X402Asset:         getEnv("X402_ASSET", "USDC"),
		ReconcileInterval: getDuration("RECONCILE_INTERVAL", 10*time.Minute),
	}
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production") || strings.EqualFold(c.Env, "prod")
}

// IsAdminID 判断外部身份 ID 是否在管理员白名单中
func (c *Config) IsAdminID(id string) bool {
	for _, a := range c.AdminUserIDs {
		if a == id {
			return true
		}
	}
	return false
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	if d, err := time.ParseDuration(raw); err == nil && d > 0 {
		return d
	}
	// 兼容纯秒数写法
	if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return def
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
