package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/onchainyaotoshi/sync-ginee-orders-server/internal/api/middleware"
	"github.com/onchainyaotoshi/sync-ginee-orders-server/internal/config"
	"github.com/onchainyaotoshi/sync-ginee-orders-server/internal/domain"
	"github.com/onchainyaotoshi/sync-ginee-orders-server/internal/logger"
	"github.com/onchainyaotoshi/sync-ginee-orders-server/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func setupRouter(t *testing.T) (*gin.Engine, *repository.Store) {
	t.Helper()

	logCfg := logger.DefaultConfig()
	logCfg.Output = io.Discard
	db, err := repository.InitDB(&config.DatabaseConfig{
		Driver:       "sqlite",
		Path:         filepath.Join(t.TempDir(), "api.db"),
		MaxOpenConns: 1,
		AutoMigrate:  true,
		LogLevel:     "silent",
	}, logger.New(logCfg))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	jakarta, err := time.LoadLocation("Asia/Jakarta")
	require.NoError(t, err)

	store := repository.NewStore(db)
	r := SetupRouter(store, Options{Mode: "test", Namespace: "default", Location: jakarta})
	return r, store
}

func get(t *testing.T, r http.Handler, path string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return w, body
}

func seedUnits(t *testing.T, store *repository.Store, days ...string) []*domain.SyncUnit {
	t.Helper()
	var out []*domain.SyncUnit
	for _, day := range days {
		unit := &domain.SyncUnit{
			Namespace: "default",
			BucketKey: day,
			Parameters: datatypes.NewJSONType(domain.UnitParameters{
				CreateSince: day + "T00:00:00.000Z",
				CreateTo:    day + "T23:59:59.999Z",
			}),
		}
		_, err := store.Units.EnsureUnit(context.Background(), unit)
		require.NoError(t, err)
		out = append(out, unit)
	}
	return out
}

func TestHealthEndpoints(t *testing.T) {
	r, _ := setupRouter(t)

	w, body := get(t, r, "/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))

	w, body = get(t, r, "/health/db")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, body, "latency_ms")

	w, body = get(t, r, "/health/time")
	assert.Equal(t, http.StatusOK, w.Code)
	app := body["app"].(map[string]interface{})
	assert.Equal(t, "Asia/Jakarta", app["timezone"])
	database := body["database"].(map[string]interface{})
	assert.Equal(t, "UTC", database["timezone"])
	assert.NotEmpty(t, database["now"])
}

func TestRequestIDIsEchoed(t *testing.T) {
	r, _ := setupRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(middleware.RequestIDHeader, "req-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "req-123", w.Header().Get(middleware.RequestIDHeader))
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestListUnits(t *testing.T) {
	r, store := setupRouter(t)
	seedUnits(t, store, "2024-01-01", "2024-01-02", "2024-01-03")
	_, err := store.Units.ClaimOldestPending(context.Background(), "default")
	require.NoError(t, err)

	w, body := get(t, r, "/api/v1/units?limit=2")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 3, body["total"])
	assert.EqualValues(t, 2, body["limit"])

	units := body["units"].([]interface{})
	require.Len(t, units, 2)
	assert.Equal(t, "2024-01-03", units[0].(map[string]interface{})["bucket_key"])

	states := body["states"].(map[string]interface{})
	assert.EqualValues(t, 2, states["PENDING"])
	assert.EqualValues(t, 1, states["PROCESSING"])

	w, body = get(t, r, "/api/v1/units?state=PROCESSING")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, body["total"])
	units = body["units"].([]interface{})
	require.Len(t, units, 1)
	assert.Equal(t, "2024-01-01", units[0].(map[string]interface{})["bucket_key"])

	w, _ = get(t, r, "/api/v1/units?state=FAILED")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetUnit(t *testing.T) {
	r, store := setupRouter(t)
	units := seedUnits(t, store, "2024-01-01")
	id := units[0].ID

	key := "3"
	now := time.Now()
	require.NoError(t, store.Attempts.Create(context.Background(), &domain.FetchAttempt{
		SyncUnitID:     id,
		ResultKey:      &key,
		Payload:        datatypes.JSON(`[]`),
		ExecutionStart: now,
		ExecutionEnd:   now,
	}))

	w, body := get(t, r, fmt.Sprintf("/api/v1/units/%d", id))
	require.Equal(t, http.StatusOK, w.Code)
	unit := body["unit"].(map[string]interface{})
	assert.Equal(t, "2024-01-01", unit["bucket_key"])
	assert.Equal(t, "PENDING", unit["state"])
	attempts := body["attempts"].([]interface{})
	require.Len(t, attempts, 1)
	assert.Equal(t, "3", attempts[0].(map[string]interface{})["result_key"])
	assert.NotContains(t, attempts[0], "payload")

	w, _ = get(t, r, "/api/v1/units/999")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = get(t, r, "/api/v1/units/abc")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListWatermarks(t *testing.T) {
	r, store := setupRouter(t)

	w, body := get(t, r, "/api/v1/watermarks")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, body["watermarks"])

	since := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.Watermarks.Create(context.Background(), &domain.SyncWatermark{
		Namespace: "default",
		Since:     since,
		To:        since.Add(time.Hour),
		State:     domain.WatermarkStatePending,
	}))

	w, body = get(t, r, "/api/v1/watermarks")
	require.Equal(t, http.StatusOK, w.Code)
	marks := body["watermarks"].([]interface{})
	require.Len(t, marks, 1)
	assert.Equal(t, "PENDING", marks[0].(map[string]interface{})["state"])
}

func TestCORSRestrictedOrigins(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.CORS(middleware.CORSConfig{AllowedOrigins: []string{"https://ops.example.com"}}))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://ops.example.com")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "https://ops.example.com", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, http.StatusOK, w.Code)
}
