package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// DefaultSessionSecret signs cookies when SECRET_KEY is unset. It is public,
// so any deployment must override it.
const DefaultSessionSecret = "dev-secret-change-me-32-bytes!!!"

type Config struct {
	Port          int
	DataDir       string
	DatabaseURL   string
	SessionSecret string
	SessionMaxAge int
	CookieSecure  bool
	LogLevel      string

	AdminUser         string
	AdminPassword     string
	AdminPasswordHash string
	AdminLock         bool
	InitAdminEnabled  bool

	UserOrder      string
	IssueListLimit int
}

// Load reads the configuration from the environment. A .env file in the
// working directory or its parent is applied first without overriding
// variables that are already set.
func Load() *Config {
	loadDotenv()

	cfg := &Config{
		Port:          getEnvInt("PORT", 8080),
		DataDir:       getEnvString("SIGRA_DATA_DIR", "./data"),
		DatabaseURL:   getEnvString("DATABASE_URL", ""),
		SessionSecret: getEnvString("SECRET_KEY", DefaultSessionSecret),
		SessionMaxAge: getEnvInt("SIGRA_SESSION_MAX_AGE", 86400), // 24 hours
		CookieSecure:  getEnvBool("SIGRA_COOKIE_SECURE", false),
		LogLevel:      getEnvString("SIGRA_LOG_LEVEL", "info"),

		AdminUser:         getEnvString("SIGRA_ADMIN_USER", "admin"),
		AdminPassword:     getEnvString("SIGRA_ADMIN_PASSWORD", ""),
		AdminPasswordHash: getEnvString("SIGRA_ADMIN_PASSWORD_HASH", ""),
		AdminLock:         getEnvBool("SIGRA_ADMIN_LOCK", false),
		InitAdminEnabled:  getEnvBool("SIGRA_ENABLE_INIT_ADMIN", false),

		UserOrder:      getEnvString("SIGRA_USER_ORDER", "id_asc"),
		IssueListLimit: getEnvInt("SIGRA_ISSUE_LIST_LIMIT", 200),
	}

	return cfg
}

// InsecureSecret reports whether cookies are signed with the built-in key.
func (c *Config) InsecureSecret() bool {
	return c.SessionSecret == DefaultSessionSecret
}

// EnsureDataDir creates the data directory used by the default sqlite store.
func (c *Config) EnsureDataDir() error {
	return os.MkdirAll(c.DataDir, 0755)
}

func loadDotenv() {
	for _, p := range []string{".env", filepath.Join("..", ".env")} {
		if _, err := os.Stat(p); err == nil {
			_ = godotenv.Load(p)
			return
		}
	}
}

func getEnvString(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(val)); err == nil {
			return b
		}
	}
	return defaultVal
}
