package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandEnv(t *testing.T) {
	t.Setenv("ICAD_TEST_HOST", "db.internal")

	out := expandEnv("host: ${ICAD_TEST_HOST:localhost}\nport: ${ICAD_TEST_UNSET_PORT:5432}\nraw: ${ICAD_TEST_UNSET}")
	assert.Equal(t, "host: db.internal\nport: 5432\nraw: ${ICAD_TEST_UNSET}", out)
}

func TestLoadFrom_DefaultsOnly(t *testing.T) {
	t.Setenv("SECURITY_JWT_SECRET", "test-secret")

	cfg, err := LoadFrom(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, VectorBackendSQLite, cfg.Vector.Backend)
	assert.Equal(t, "icad_knowledge_base", cfg.Vector.CollectionName)
	assert.Equal(t, 5, cfg.Vector.DefaultTopK)
	assert.Equal(t, DatabaseDriverSQLite, cfg.Database.Driver)
	assert.Equal(t, 15, cfg.Database.Postgres.MaxOpenConns)
	assert.Equal(t, 30*time.Minute, cfg.Database.Postgres.ConnMaxLifetime)
	assert.Equal(t, 30*time.Minute, cfg.Security.JWT.Expiration)
	assert.Equal(t, "test-secret", cfg.Security.JWT.Secret)
	assert.Contains(t, cfg.Security.CORS.AllowedOrigins, "http://localhost:5173")
	assert.False(t, cfg.UsePostgres())
}

func TestLoadFrom_FileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	content := `
vector:
  backend: milvus
  default_top_k: 8
embedding:
  provider: ${ICAD_TEST_PROVIDER:hash}
  dimension: 256
security:
  jwt:
    secret: file-secret
  cors:
    allowed_origins: ${ICAD_TEST_ORIGINS:http://a.example,http://b.example}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o644))
	t.Setenv("APP_ENV", "test")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.test.yaml"), []byte("vector:\n  default_top_k: 3\n"), 0o644))

	cfg, err := LoadFrom(dir)
	require.NoError(t, err)

	assert.Equal(t, VectorBackendMilvus, cfg.Vector.Backend)
	assert.Equal(t, 3, cfg.Vector.DefaultTopK)
	assert.Equal(t, 256, cfg.Embedding.Dimension)
	assert.Equal(t, "file-secret", cfg.Security.JWT.Secret)
	assert.Equal(t, []string{"http://a.example", "http://b.example"}, cfg.Security.CORS.AllowedOrigins)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Database:  DatabaseConfig{Driver: DatabaseDriverSQLite},
			Vector:    VectorConfig{Backend: VectorBackendSQLite, CollectionName: "kb"},
			Embedding: EmbeddingConfig{Provider: EmbeddingProviderHash, Dimension: 8},
			Security:  SecurityConfig{JWT: JWTConfig{Secret: "s"}},
		}
	}

	require.NoError(t, base().Validate())

	cfg := base()
	cfg.Vector.Backend = VectorBackendPGVector
	assert.Error(t, cfg.Validate(), "pgvector needs postgres")

	cfg.Database.Driver = DatabaseDriverPostgres
	cfg.Database.Postgres.Host = "localhost"
	assert.NoError(t, cfg.Validate())

	cfg = base()
	cfg.Vector.Backend = "chroma"
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Security.JWT.Secret = ""
	assert.Error(t, cfg.Validate())
}
