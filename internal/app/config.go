package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Storage backends.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Config holds the application configuration, loadable from environment
// variables (SHOP_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	Storage      string `default:"postgres" usage:"Storage backend: postgres or memory"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (SHOP_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	RatesFile    string `usage:"YAML file with per-country shipping and tax rates" flag:"rates-file"`
	SeedCatalog  string `usage:"Catalog loaded into the memory backend; empty uses the demo shop" flag:"seed-catalog"`
	SecureCookie bool   `default:"false" usage:"Mark the session cookie Secure" flag:"secure-cookie"`
	Auth         AuthConfig
	Redis        RedisConfig
	AMQP         AMQPConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Graceful     GracefulConfig
}

// AuthConfig controls admin tokens and guest sessions.
type AuthConfig struct {
	JWTSecret  string        `usage:"HMAC secret for admin tokens (SHOP_AUTH_JWTSECRET)" flag:"jwt-secret"`
	TokenTTL   time.Duration `default:"12h" usage:"Admin token lifetime" flag:"token-ttl"`
	SessionTTL time.Duration `default:"24h" usage:"Guest session lifetime" flag:"session-ttl"`
}

// RedisConfig selects the session store. An empty Addr keeps sessions in the
// storage backend's memory.
type RedisConfig struct {
	Addr     string `usage:"Redis address for sessions (host:port)" flag:"redis-addr"`
	Password string `usage:"Redis password" flag:"redis-password"`
	DB       int    `default:"0" usage:"Redis database number" flag:"redis-db"`
}

// AMQPConfig controls order events. An empty URL disables publishing.
type AMQPConfig struct {
	URL      string `usage:"AMQP broker URL for order events" flag:"amqp-url"`
	Exchange string `default:"shop.events" usage:"Topic exchange for order events" flag:"amqp-exchange"`
}

// RateLimitConfig controls the per-session sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"true" usage:"Allow the session cookie on cross-origin requests" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables and YAML config
// files, then applies platform defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "SHOP",
		Files:     []string{"config.yaml", "/etc/shopcart/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Storage {
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return errors.New("database URL is required: set SHOP_DATABASE_URL or DATABASE_URL")
		}
	case StorageMemory:
	default:
		return errors.Errorf("unknown storage backend %q", c.Storage)
	}
	if len(c.Auth.JWTSecret) < 16 {
		return errors.New("jwt secret must be at least 16 bytes: set SHOP_AUTH_JWTSECRET")
	}
	return nil
}

// applyPlatformDefaults maps platform-provided variables (DATABASE_URL,
// REDIS_ADDR, PORT) onto the SHOP_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = os.Getenv("REDIS_ADDR")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
