package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the server configuration, loadable from environment
// variables (CRUNCHY_ prefix), flags, or YAML files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (CRUNCHY_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	Redis       RedisConfig
	Kafka       KafkaConfig
	Notify      NotifyConfig
	Reflect     ReflectConfig
	CORS        CORSConfig
	Graceful    GracefulConfig
}

// RedisConfig controls the catalog price cache.
type RedisConfig struct {
	Enabled  bool          `default:"false" usage:"Cache catalog prices in Redis"`
	Addr     string        `default:"localhost:6379" usage:"Redis address"`
	URL      string        `usage:"Redis URL, overrides Addr/Password/DB (CRUNCHY_REDIS_URL or REDIS_URL)"`
	Password string        `usage:"Redis password"`
	DB       int           `default:"0" usage:"Redis database"`
	PriceTTL time.Duration `default:"5m" usage:"Cached price lifetime" flag:"price-ttl"`
}

// KafkaConfig controls where order snapshots are published. With no
// brokers snapshots are only logged.
type KafkaConfig struct {
	Brokers []string `usage:"Kafka bootstrap brokers"`
	Topic   string   `default:"order-snapshots" usage:"Topic for order snapshots"`
}

// NotifyConfig controls snapshot delivery.
type NotifyConfig struct {
	Timeout    time.Duration `default:"30s" usage:"Deadline for one background delivery"`
	MaxRetries uint64        `default:"3" usage:"Publish retries after the first attempt"`
}

// ReflectConfig controls read-model synchronization.
type ReflectConfig struct {
	MaxRetries uint64 `default:"3" usage:"Retries per read-model collection"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from the environment and YAML files and
// applies platform fallbacks.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "CRUNCHY",
		Files:     []string{"config.yaml", "/etc/crunchy/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults(os.Getenv)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return errors.New("database URL is required: set CRUNCHY_DATABASE_URL or DATABASE_URL")
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return errors.New("kafka topic is required when brokers are set")
	}
	return nil
}

// applyPlatformDefaults maps the standard DATABASE_URL, REDIS_URL and PORT
// variables set by hosting platforms.
func (c *Config) applyPlatformDefaults(getenv func(string) string) {
	if c.DatabaseURL == "" {
		c.DatabaseURL = getenv("DATABASE_URL")
	}
	if c.Redis.URL == "" {
		if v := getenv("REDIS_URL"); v != "" {
			c.Redis.URL = v
			c.Redis.Enabled = true
		}
	}
	if port := getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}
