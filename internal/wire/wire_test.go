package wire

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imrysn/kmti-icad-hub/internal/application/ingestion"
	"github.com/imrysn/kmti-icad-hub/internal/application/retrieval"
	"github.com/imrysn/kmti-icad-hub/internal/config"
	"github.com/imrysn/kmti-icad-hub/internal/domain/entity"
	"github.com/imrysn/kmti-icad-hub/internal/interfaces/http/middleware"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		App: config.AppConfig{Name: "icad-hub-test", Version: "test", Env: "test"},
		Database: config.DatabaseConfig{
			Driver: config.DatabaseDriverSQLite,
			SQLite: config.SQLiteConfig{Path: filepath.Join(dir, "hub.db"), BusyTimeout: time.Second},
		},
		Vector: config.VectorConfig{
			Backend:        config.VectorBackendSQLite,
			CollectionName: "icad_knowledge_base",
			DefaultTopK:    5,
			SQLitePath:     filepath.Join(dir, "vector_db"),
		},
		Embedding: config.EmbeddingConfig{
			Provider:  config.EmbeddingProviderHash,
			Dimension: 64,
			BatchSize: 16,
		},
		Security: config.SecurityConfig{
			JWT:       config.JWTConfig{Secret: "test-secret", Issuer: "test", Expiration: time.Minute},
			RateLimit: config.RateLimitConfig{Enabled: false, RequestsPerSecond: 10, Burst: 10},
		},
	}
}

func TestInitializeCore_SearchRoundTrip(t *testing.T) {
	ctx := context.Background()
	core, cleanup, err := InitializeCore(ctx, testConfig(t), CoreOptions{RequireVector: true})
	require.NoError(t, err)
	defer cleanup()

	require.NotNil(t, core.Store)
	assert.Nil(t, core.Redis)
	assert.Equal(t, config.DatabaseDriverSQLite, core.Data.Driver)

	n, err := core.Pipeline.IngestTable(ctx, &ingestion.Table{
		Name:    "bolts.xlsx",
		Columns: []string{"Part", "Note"},
		Rows: [][]string{
			{"hex bolt M8", "use torque wrench"},
			{"flange nut", "zinc plated"},
		},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	start := 1.5
	_, err = core.Media.BulkInsert(ctx, []entity.MediaRecordInput{{
		ExcelRowID:     "bolts.xlsx_row_0",
		MediaType:      entity.MediaTypeVideo,
		MediaURL:       "https://cdn.example.com/bolt.mp4",
		TimestampStart: &start,
	}})
	require.NoError(t, err)

	resp, err := core.Retrieval.Search(ctx, "hex bolt torque")
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	assert.False(t, resp.Degraded)
	for _, r := range resp.Results {
		assert.Equal(t, "bolts.xlsx", r.Source)
		require.Len(t, r.Media, 1)
		assert.Equal(t, "https://cdn.example.com/bolt.mp4", r.Media[0].MediaURL)
	}

	stats, err := core.Retrieval.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, stats.DocumentCount)
}

func TestInitializeCore_VectorOptional(t *testing.T) {
	cfg := testConfig(t)
	cfg.Embedding.Provider = "unknown"

	_, _, err := InitializeCore(context.Background(), cfg, CoreOptions{RequireVector: true})
	require.Error(t, err)

	core, cleanup, err := InitializeCore(context.Background(), cfg, CoreOptions{})
	require.NoError(t, err)
	defer cleanup()

	assert.Nil(t, core.Store)
	_, err = core.Retrieval.Search(context.Background(), "bolt")
	assert.True(t, errors.Is(err, retrieval.ErrVectorDisabled))
	assert.Error(t, vectorCheck{store: core.Store}.HealthCheck(context.Background()))
}

func TestProvideRateLimiter_LocalWithoutRedis(t *testing.T) {
	core, cleanup, err := InitializeCore(context.Background(), testConfig(t), CoreOptions{})
	require.NoError(t, err)
	defer cleanup()

	_, ok := ProvideRateLimiter(core).(*middleware.LocalRateLimiter)
	assert.True(t, ok)
}

func TestInitializeApp_ServesHealth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r, cleanup, err := InitializeApp(context.Background(), testConfig(t))
	require.NoError(t, err)
	defer cleanup()

	w := httptest.NewRecorder()
	r.Engine().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.Engine().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/search?query=bolt", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func postJSON(t *testing.T, h http.Handler, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestInitializeApp_SelfRegistrationCannotEscalate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r, cleanup, err := InitializeApp(context.Background(), testConfig(t))
	require.NoError(t, err)
	defer cleanup()
	h := r.Engine()

	w := postJSON(t, h, "/v1/auth/register", "", map[string]string{
		"username": "mallory", "email": "m@example.com", "password": "s3cret!", "role": "admin",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), `"role":"trainee"`)

	w = postJSON(t, h, "/v1/auth/login", "", map[string]string{"username": "mallory", "password": "s3cret!"})
	require.Equal(t, http.StatusOK, w.Code)
	var login struct {
		Data struct {
			AccessToken string `json:"access_token"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &login))
	require.NotEmpty(t, login.Data.AccessToken)

	req := httptest.NewRequest(http.MethodDelete, "/v1/kb", nil)
	req.Header.Set("Authorization", "Bearer "+login.Data.AccessToken)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = postJSON(t, h, "/v1/auth/users", login.Data.AccessToken, map[string]string{
		"username": "trudy", "email": "t@example.com", "password": "s3cret!", "role": "admin",
	})
	assert.Equal(t, http.StatusForbidden, w.Code)
}
