package app

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr       string
	RequestTimeout time.Duration
	LogLevel       string
	LogFormat      string
	UserAgent      string
	AllowedOrigins string
	TrustedProxies string

	DebridAPIURL       string
	DebridAPIKey       string
	DebridPollInterval time.Duration
	DebridWaitTimeout  time.Duration
	DebridRPS          int
	DebridBurst        int

	DirectLinkPatterns  string
	ResolveLinkPatterns string

	StreamIndexURL     string
	StreamIndexOptions string

	ProxyRateLimit    int
	ProxyRateWindow   time.Duration
	RateLimitDisabled bool

	RedisURL       string
	SearchCacheTTL time.Duration
	CacheDisabled  bool

	MongoURI         string
	MongoDB          string
	HistoryRetention time.Duration

	SessionTTL time.Duration
}

// LoadConfig reads the environment. Variables from a .env file in the
// working directory fill in what the environment does not set.
func LoadConfig() Config {
	_ = godotenv.Load(getEnv("ENV_FILE", ".env"))

	return Config{
		HTTPAddr:       getEnv("HTTP_ADDR", ":8095"),
		RequestTimeout: time.Duration(getEnvInt("REQUEST_TIMEOUT_SECONDS", 15)) * time.Second,
		LogLevel:       strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:      strings.ToLower(getEnv("LOG_FORMAT", "text")),
		UserAgent:      getEnv("USER_AGENT", "torrent-stream-resolver/1.0"),
		AllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
		TrustedProxies: getEnv("TRUSTED_PROXIES", ""),

		DebridAPIURL:       getEnv("DEBRID_API_URL", "https://api.real-debrid.com/rest/1.0"),
		DebridAPIKey:       strings.TrimSpace(os.Getenv("DEBRID_API_KEY")),
		DebridPollInterval: time.Duration(getEnvInt("DEBRID_POLL_INTERVAL_MS", 2000)) * time.Millisecond,
		DebridWaitTimeout:  time.Duration(getEnvInt("DEBRID_WAIT_TIMEOUT_SECONDS", 300)) * time.Second,
		DebridRPS:          getEnvInt("DEBRID_RPS", 4),
		DebridBurst:        getEnvInt("DEBRID_BURST", 5),

		DirectLinkPatterns:  getEnv("DIRECT_LINK_PATTERNS", ""),
		ResolveLinkPatterns: getEnv("RESOLVE_LINK_PATTERNS", ""),

		StreamIndexURL:     getEnv("STREAM_INDEX_URL", "https://torrentio.strem.fun"),
		StreamIndexOptions: getEnv("STREAM_INDEX_OPTIONS", ""),

		ProxyRateLimit:    getEnvInt("PROXY_RATE_LIMIT_PER_MINUTE", 30),
		ProxyRateWindow:   time.Minute,
		RateLimitDisabled: getEnvBool("PROXY_RATE_LIMIT_DISABLED", false),

		RedisURL:       getEnv("REDIS_URL", ""),
		SearchCacheTTL: time.Duration(getEnvInt("SEARCH_CACHE_TTL_MINUTES", 10)) * time.Minute,
		CacheDisabled:  getEnvBool("SEARCH_CACHE_DISABLED", false),

		MongoURI:         getEnv("MONGO_URI", ""),
		MongoDB:          getEnv("MONGO_DB", "torrentstream_resolver"),
		HistoryRetention: time.Duration(getEnvInt("HISTORY_RETENTION_DAYS", 30)) * 24 * time.Hour,

		SessionTTL: time.Duration(getEnvInt("SESSION_TTL_MINUTES", 120)) * time.Minute,
	}
}

// Secrets lists configured credentials that must never be logged.
func (c Config) Secrets() []string {
	var secrets []string
	if c.DebridAPIKey != "" {
		secrets = append(secrets, c.DebridAPIKey)
	}
	return secrets
}

func getEnv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func getEnvInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
