package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

const (
	DriverMemory   = "memory"
	DriverMongo    = "mongo"
	DriverPostgres = "postgres"
)

type Config struct {
	Port string

	StoreDriver     string
	MongoURI        string
	MongoDatabase   string
	MongoCollection string
	PostgresDSN     string

	CORSOrigins []string

	LogLevel  string
	LogFormat string

	WSPingInterval time.Duration
	WSWriteTimeout time.Duration
	WSOutboxSize   int

	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

// Load reads the environment, after an optional .env file.
func Load() (*Config, error) {
	// missing .env is fine, the environment wins anyway
	_ = godotenv.Load()

	cfg := &Config{
		Port:            getEnv("PORT", "8000"),
		StoreDriver:     strings.ToLower(getEnv("STORE_DRIVER", DriverMongo)),
		MongoURI:        getEnv("MONGODB_URI", "mongodb://localhost:27017/leaderboard"),
		MongoDatabase:   getEnv("MONGODB_DATABASE", ""),
		MongoCollection: getEnv("MONGODB_COLLECTION", "teams"),
		PostgresDSN:     getEnv("POSTGRES_DSN", ""),
		CORSOrigins:     splitList(getEnv("CORS_ORIGINS", "http://localhost:3000")),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogFormat:       getEnv("LOG_FORMAT", "json"),
	}

	var err error
	if cfg.WSPingInterval, err = getDuration("WS_PING_INTERVAL", 25*time.Second); err != nil {
		return nil, err
	}
	if cfg.WSWriteTimeout, err = getDuration("WS_WRITE_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.WSOutboxSize, err = getInt("WS_OUTBOX_SIZE", 16); err != nil {
		return nil, err
	}
	if cfg.RequestTimeout, err = getDuration("REQUEST_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.ShutdownTimeout, err = getDuration("SHUTDOWN_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}

	if cfg.MongoDatabase == "" {
		cfg.MongoDatabase = databaseFromURI(cfg.MongoURI)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.StoreDriver {
	case DriverMemory:
	case DriverMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("MONGODB_URI is required for the mongo store")
		}
	case DriverPostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("POSTGRES_DSN is required for the postgres store")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q (want memory, mongo or postgres)", c.StoreDriver)
	}
	if c.WSOutboxSize < 1 {
		return fmt.Errorf("WS_OUTBOX_SIZE must be positive, got %d", c.WSOutboxSize)
	}
	if c.WSPingInterval <= 0 || c.WSWriteTimeout <= 0 {
		return fmt.Errorf("WS_PING_INTERVAL and WS_WRITE_TIMEOUT must be positive")
	}
	return nil
}

func (c *Config) Addr() string { return ":" + c.Port }

// Fields is the loggable view of the config; DSNs are left out.
func (c *Config) Fields() []zap.Field {
	return []zap.Field{
		zap.String("port", c.Port),
		zap.String("store_driver", c.StoreDriver),
		zap.String("mongo_database", c.MongoDatabase),
		zap.String("mongo_collection", c.MongoCollection),
		zap.Strings("cors_origins", c.CORSOrigins),
		zap.String("log_level", c.LogLevel),
		zap.Duration("ws_ping_interval", c.WSPingInterval),
		zap.Int("ws_outbox_size", c.WSOutboxSize),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return d, nil
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return n, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// databaseFromURI picks the database out of mongodb://host/db?opts.
func databaseFromURI(uri string) string {
	rest := uri
	if i := strings.Index(rest, "://"); i >= 0 {
		rest = rest[i+3:]
	}
	i := strings.Index(rest, "/")
	if i < 0 {
		return "leaderboard"
	}
	db := rest[i+1:]
	if j := strings.IndexAny(db, "?#"); j >= 0 {
		db = db[:j]
	}
	if db == "" {
		return "leaderboard"
	}
	return db
}
