package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imrysn/kmti-icad-hub/internal/application/auth"
	"github.com/imrysn/kmti-icad-hub/internal/application/ingestion"
	"github.com/imrysn/kmti-icad-hub/internal/application/retrieval"
	"github.com/imrysn/kmti-icad-hub/internal/domain/entity"
	"github.com/imrysn/kmti-icad-hub/internal/interfaces/http/middleware"
	apperrors "github.com/imrysn/kmti-icad-hub/pkg/errors"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubSearcher struct {
	resp  *retrieval.SearchResponse
	err   error
	query string
}

func (s *stubSearcher) Search(_ context.Context, query string) (*retrieval.SearchResponse, error) {
	s.query = query
	return s.resp, s.err
}

func floatPtr(v float64) *float64 { return &v }

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestLegacySearch_ReturnsFrontendShape(t *testing.T) {
	searcher := &stubSearcher{resp: &retrieval.SearchResponse{
		Query: "isometric",
		Results: []retrieval.EnrichedResult{
			{
				RetrievedHit: retrieval.RetrievedHit{Content: "iso | Isometric View", Source: "sample.xlsx", Score: floatPtr(0.9)},
				Media: []retrieval.MediaAsset{{
					MediaType: entity.MediaTypeVideo, MediaURL: "/v/iso.mp4",
					TimestampStart: floatPtr(10), Description: "demo",
				}},
			},
			{RetrievedHit: retrieval.RetrievedHit{Content: "other", Source: "other.xlsx"}, Media: []retrieval.MediaAsset{}},
		},
	}}
	r := gin.New()
	r.GET("/search", NewSearchHandler(searcher).LegacySearch)

	w := doJSON(t, r, http.MethodGet, "/search?query=isometric", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "isometric", searcher.query)
	assert.Empty(t, w.Header().Get(middleware.EnrichmentDegradedHeader))

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "isometric", body["query"])
	results := body["results"].([]any)
	require.Len(t, results, 2)

	first := results[0].(map[string]any)
	assert.Equal(t, "sample.xlsx", first["source"])
	assert.InDelta(t, 0.9, first["score"], 1e-9)
	media := first["media"].([]any)[0].(map[string]any)
	assert.Equal(t, "video", media["media_type"])
	assert.Nil(t, media["timestamp_end"])

	second := results[1].(map[string]any)
	assert.Nil(t, second["score"])
	assert.Equal(t, []any{}, second["media"])
}

func TestSearch_DegradedSetsHeader(t *testing.T) {
	searcher := &stubSearcher{resp: &retrieval.SearchResponse{
		Query:    "q",
		Results:  []retrieval.EnrichedResult{{RetrievedHit: retrieval.RetrievedHit{Content: "c", Source: "s"}, Media: []retrieval.MediaAsset{}}},
		Degraded: true,
	}}
	r := gin.New()
	r.POST("/v1/search", NewSearchHandler(searcher).Search)

	w := doJSON(t, r, http.MethodPost, "/v1/search", map[string]string{"query": "q"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "true", w.Header().Get(middleware.EnrichmentDegradedHeader))
	assert.Contains(t, w.Body.String(), `"degraded":true`)
}

func TestSearch_Errors(t *testing.T) {
	r := gin.New()
	failing := &stubSearcher{err: apperrors.Wrap(errors.New("milvus down"), apperrors.CodeRetrievalFailed, "vector query failed")}
	r.POST("/v1/search", NewSearchHandler(failing).Search)
	r.GET("/search", NewSearchHandler(&stubSearcher{err: retrieval.ErrEmptyQuery}).LegacySearch)

	w := doJSON(t, r, http.MethodPost, "/v1/search", map[string]string{"query": "q"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.NotContains(t, w.Body.String(), "milvus down")

	w = doJSON(t, r, http.MethodPost, "/v1/search", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, r, http.MethodGet, "/search", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

type stubAuth struct {
	registered auth.RegisterInput
	created    auth.RegisterInput
	loginErr   error
}

func (s *stubAuth) CreateUser(_ context.Context, in auth.RegisterInput) (*entity.User, error) {
	s.created = in
	u := entity.NewUser(in.Username, in.Email, in.FullName, entity.UserRole(in.Role))
	u.ID = 8
	return u, nil
}

func (s *stubAuth) Register(_ context.Context, in auth.RegisterInput) (*entity.User, error) {
	if in.Username == "taken" {
		return nil, apperrors.ErrUserExists.WithDetail("username already registered")
	}
	s.registered = in
	u := entity.NewUser(in.Username, in.Email, in.FullName, entity.UserRoleTrainee)
	u.ID = 7
	return u, nil
}

func (s *stubAuth) Login(_ context.Context, _, _ string) (*auth.Token, error) {
	if s.loginErr != nil {
		return nil, s.loginErr
	}
	return &auth.Token{AccessToken: "tok", TokenType: auth.TokenTypeBearer, ExpiresIn: 1800}, nil
}

func TestAuthHandler(t *testing.T) {
	svc := &stubAuth{}
	h := NewAuthHandler(svc)
	r := gin.New()
	r.POST("/register", h.Register)
	r.POST("/login", h.Login)
	r.POST("/users", h.CreateUser)

	w := doJSON(t, r, http.MethodPost, "/register", map[string]string{
		"username": "alice", "email": "alice@example.com", "password": "s3cret!", "full_name": "Alice",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "alice", svc.registered.Username)
	assert.NotContains(t, w.Body.String(), "hashed_password")

	w = doJSON(t, r, http.MethodPost, "/register", map[string]string{
		"username": "mallory", "email": "m@example.com", "password": "s3cret!", "role": "admin",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Empty(t, svc.registered.Role)
	assert.Contains(t, w.Body.String(), `"role":"trainee"`)

	w = doJSON(t, r, http.MethodPost, "/users", map[string]string{
		"username": "erin", "email": "e@example.com", "password": "s3cret!", "role": "employee",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "employee", svc.created.Role)

	w = doJSON(t, r, http.MethodPost, "/users", map[string]string{
		"username": "frank", "email": "f@example.com", "password": "s3cret!",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, r, http.MethodPost, "/register", map[string]string{
		"username": "taken", "email": "t@example.com", "password": "s3cret!",
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doJSON(t, r, http.MethodPost, "/register", map[string]string{
		"username": "bob", "email": "not-an-email", "password": "s3cret!",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, r, http.MethodPost, "/login", map[string]string{"username": "alice", "password": "s3cret!"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"token_type":"bearer"`)

	svc.loginErr = apperrors.ErrInvalidCredentials
	w = doJSON(t, r, http.MethodPost, "/login", map[string]string{"username": "alice", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Bearer", w.Header().Get("WWW-Authenticate"))

	svc.loginErr = apperrors.ErrUserInactive
	w = doJSON(t, r, http.MethodPost, "/login", map[string]string{"username": "alice", "password": "s3cret!"})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

type stubImporter struct {
	inputs []entity.MediaRecordInput
	err    error
}

func (s *stubImporter) BulkInsert(_ context.Context, inputs []entity.MediaRecordInput) (int, error) {
	s.inputs = inputs
	if s.err != nil {
		return 0, s.err
	}
	return len(inputs), nil
}

func TestMediaHandler_BulkCreate(t *testing.T) {
	imp := &stubImporter{}
	r := gin.New()
	r.POST("/mappings", NewMediaHandler(imp, nil).BulkCreate)

	w := doJSON(t, r, http.MethodPost, "/mappings", map[string]any{"mappings": []map[string]any{
		{"excel_row_id": "sample.xlsx_row_0", "media_type": "video", "media_url": "/v.mp4", "description": "d", "timestamp_start": 1.5},
	}})
	require.Equal(t, http.StatusCreated, w.Code)
	require.Len(t, imp.inputs, 1)
	assert.Equal(t, entity.MediaTypeVideo, imp.inputs[0].MediaType)
	assert.InDelta(t, 1.5, *imp.inputs[0].TimestampStart, 1e-9)
	assert.Nil(t, imp.inputs[0].TimestampEnd)

	imp.err = apperrors.ErrValidationFailed.WithDetail("mapping 0: description is required")
	w = doJSON(t, r, http.MethodPost, "/mappings", map[string]any{"mappings": []map[string]any{{"excel_row_id": "x"}}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "description is required")

	w = doJSON(t, r, http.MethodPost, "/mappings", map[string]any{"mappings": []map[string]any{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

type stubKB struct {
	cleared bool
}

func (s *stubKB) Stats(context.Context) (*retrieval.CollectionStats, error) {
	return &retrieval.CollectionStats{DocumentCount: 3, CollectionName: "icad_knowledge_base", Backend: "sqlite"}, nil
}

func (s *stubKB) Clear(context.Context) error {
	s.cleared = true
	return nil
}

type stubIngester struct {
	path, pattern string
}

func (s *stubIngester) IngestPath(_ context.Context, path, pattern string, _ []string) (*ingestion.DirectoryReport, error) {
	s.path, s.pattern = path, pattern
	return &ingestion.DirectoryReport{
		Files:     []ingestion.FileResult{{Path: "a.xlsx", Documents: 2}, {Path: "b.xlsx", Err: errors.New("corrupt")}},
		Documents: 2,
		Failed:    1,
	}, nil
}

func TestKnowledgeBaseHandler(t *testing.T) {
	kb := &stubKB{}
	ing := &stubIngester{}
	h := NewKnowledgeBaseHandler(kb, ing, IngestDefaults{Dir: "knowledge_base", Pattern: "*.xlsx"})
	r := gin.New()
	r.GET("/stats", h.Stats)
	r.DELETE("/kb", h.Clear)
	r.POST("/ingest", h.Ingest)

	w := doJSON(t, r, http.MethodGet, "/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total_documents":3`)

	w = doJSON(t, r, http.MethodDelete, "/kb", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, kb.cleared)

	req := httptest.NewRequest(http.MethodPost, "/ingest", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "knowledge_base", ing.path)
	assert.Equal(t, "*.xlsx", ing.pattern)
	assert.Contains(t, rec.Body.String(), `"failed":1`)
	assert.Contains(t, rec.Body.String(), "corrupt")
}

type stubChecker struct{ err error }

func (s stubChecker) HealthCheck(context.Context) error { return s.err }

func TestHealthHandler_Ready(t *testing.T) {
	h := NewHealthHandler("v1",
		Dependency{Name: "database", Checker: stubChecker{}, Required: true},
		Dependency{Name: "redis", Checker: stubChecker{err: errors.New("refused")}},
		Dependency{Name: "milvus"},
	)
	r := gin.New()
	r.GET("/ready", h.Ready)

	w := doJSON(t, r, http.MethodGet, "/ready", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"redis":{"status":"degraded"`)
	assert.Contains(t, w.Body.String(), `"milvus":{"status":"disabled"`)

	h = NewHealthHandler("v1", Dependency{Name: "database", Checker: stubChecker{err: errors.New("down")}, Required: true})
	r = gin.New()
	r.GET("/ready", h.Ready)
	w = doJSON(t, r, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
