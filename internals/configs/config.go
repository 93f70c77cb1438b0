package configs

import (
	"fmt"
	"log"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is everything the process reads from the environment.
type Config struct {
	AppEnv   string `env:"APP_ENV" envDefault:"development"`
	Port     string `env:"PORT" envDefault:"3000"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// DB_DRIVER: postgres | sqlite | memory
	DBDriver   string `env:"DB_DRIVER" envDefault:"postgres"`
	DBUser     string `env:"DB_USER"`
	DBPassword string `env:"DB_PASSWORD"`
	DBHost     string `env:"DB_HOST" envDefault:"localhost"`
	DBPort     string `env:"DB_PORT" envDefault:"5432"`
	DBName     string `env:"DB_NAME"`
	DBSSLMode  string `env:"DB_SSLMODE" envDefault:"require"`
	SQLitePath string `env:"SQLITE_PATH" envDefault:"schoolrecords.db"`

	JWTSecret   string   `env:"JWT_SECRET"`
	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"http://localhost:5173,http://127.0.0.1:5500"`
	RateLimit   int      `env:"RATE_LIMIT_PER_MINUTE" envDefault:"100"`

	BatchChunkSize      int `env:"BATCH_CHUNK_SIZE" envDefault:"400"`
	StoreMaxBatchOps    int `env:"STORE_MAX_BATCH_OPS" envDefault:"500"`
	ApprovalMaxAttempts int `env:"APPROVAL_MAX_ATTEMPTS" envDefault:"3"`
	TxMaxAttempts       int `env:"TX_MAX_ATTEMPTS" envDefault:"5"`
}

// IsProduction reports whether APP_ENV is production.
func (c Config) IsProduction() bool { return c.AppEnv == "production" }

// ChunkSize is BATCH_CHUNK_SIZE clamped under the store ceiling.
func (c Config) ChunkSize() int {
	if c.BatchChunkSize <= 0 {
		return 400
	}
	if c.StoreMaxBatchOps > 0 && c.BatchChunkSize > c.StoreMaxBatchOps {
		return c.StoreMaxBatchOps
	}
	return c.BatchChunkSize
}

// PostgresDSN builds the connection string from the DB_* variables.
func (c Config) PostgresDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s&application_name=schoolrecords&options=-c statement_timeout=30000",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// =======================
// ENV LOADER
// =======================

// LoadEnv loads .env (outside Railway) and parses Config.
func LoadEnv() (Config, error) {
	if os.Getenv("RAILWAY_ENVIRONMENT") == "" {
		if err := godotenv.Load(); err != nil {
			log.Println("⚠️ .env not found, using system environment")
		}
	}
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.ApprovalMaxAttempts < 1 {
		cfg.ApprovalMaxAttempts = 1
	}
	if cfg.TxMaxAttempts < 1 {
		cfg.TxMaxAttempts = 1
	}
	return cfg, nil
}
