package configs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEnvDefaultsAndOverrides(t *testing.T) {
	t.Setenv("RAILWAY_ENVIRONMENT", "test")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("BATCH_CHUNK_SIZE", "900")
	t.Setenv("STORE_MAX_BATCH_OPS", "500")
	t.Setenv("APPROVAL_MAX_ATTEMPTS", "0")

	cfg, err := LoadEnv()
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, "3000", cfg.Port)
	assert.Equal(t, 500, cfg.ChunkSize(), "chunk size is clamped to the store ceiling")
	assert.Equal(t, 1, cfg.ApprovalMaxAttempts)
	assert.Equal(t, 5, cfg.TxMaxAttempts)
	assert.False(t, cfg.IsProduction())
}

func TestLoadEnvRejectsBadNumbers(t *testing.T) {
	t.Setenv("RAILWAY_ENVIRONMENT", "test")
	t.Setenv("BATCH_CHUNK_SIZE", "lots")
	_, err := LoadEnv()
	assert.Error(t, err)
}

func TestPostgresDSN(t *testing.T) {
	cfg := Config{DBUser: "u", DBPassword: "p", DBHost: "h", DBPort: "5432", DBName: "school", DBSSLMode: "disable"}
	assert.Contains(t, cfg.PostgresDSN(), "postgres://u:p@h:5432/school?sslmode=disable")
}
