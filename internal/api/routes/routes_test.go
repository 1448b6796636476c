package routes

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/seetohshaokang/HabitEase/internal/api/handlers"
	"github.com/seetohshaokang/HabitEase/internal/api/middleware"
	"github.com/seetohshaokang/HabitEase/internal/domain/habits"
	"github.com/seetohshaokang/HabitEase/pkg/security/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "routes-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

type statsService struct {
	habits.Service
	calls int
}

// the first read finds a stale streak and repairs it, later reads are clean
func (s *statsService) GetHabitStatistics(_ context.Context, id, _ uuid.UUID) (*habits.HabitStatistics, error) {
	s.calls++
	if s.calls == 1 {
		return &habits.HabitStatistics{HabitID: id, CurrentStreak: 1, CachedStreak: 4, StreakStale: true}, nil
	}
	return &habits.HabitStatistics{HabitID: id, CurrentStreak: 1, CachedStreak: 1}, nil
}

type mapCache struct {
	mu      sync.Mutex
	entries map[string]string
}

func (m *mapCache) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.entries[key]; ok {
		return v, nil
	}
	return "", errors.New("miss")
}

func (m *mapCache) Set(_ context.Context, key, value string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = value
	return nil
}

func (m *mapCache) ClearByPattern(context.Context, string) error { return nil }

func TestHabitsRoutes_RegistersEndpoints(t *testing.T) {
	router := gin.New()
	cacheMW := middleware.NewCacheMiddleware(nil, "habits", time.Minute)
	NewHabitsRoutes(handlers.NewHabitsHandler(&statsService{}), testSecret).RegisterRoutes(router, cacheMW)

	registered := map[string]bool{}
	for _, r := range router.Routes() {
		registered[r.Method+" "+r.Path] = true
	}

	for _, route := range []string{
		"GET /api/habits",
		"POST /api/habits",
		"GET /api/habits/:id",
		"PUT /api/habits/:id",
		"DELETE /api/habits/:id",
		"PUT /api/habits/:id/complete",
		"GET /api/habits/:id/logs",
		"PUT /api/habits/log/:logId",
		"DELETE /api/habits/log/:logId",
		"GET /api/habits/:id/statistics",
		"GET /api/habits/:id/heatmap",
		"GET /api/habits/:id/activity",
		"GET /api/habits/statistics/summary",
	} {
		assert.True(t, registered[route], route)
	}
}

func TestHabitsRoutes_RepairedStatisticsAreNotServedFromResponseCache(t *testing.T) {
	svc := &statsService{}
	store := &mapCache{entries: map[string]string{}}
	router := gin.New()
	NewHabitsRoutes(handlers.NewHabitsHandler(svc), testSecret).
		RegisterRoutes(router, middleware.NewCacheMiddleware(store, "habits", time.Minute))

	token, err := auth.GenerateToken(uuid.New(), testSecret, 1)
	require.NoError(t, err)
	target := "/api/habits/" + uuid.NewString() + "/statistics"

	get := func() map[string]interface{} {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("X-Cache"))

		var body struct {
			Data map[string]interface{} `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		return body.Data
	}

	first := get()
	assert.Equal(t, true, first["streak_stale"])

	second := get()
	assert.Equal(t, false, second["streak_stale"])
	assert.Equal(t, float64(1), second["cached_streak"])

	assert.Equal(t, 2, svc.calls)
	assert.Empty(t, store.entries)
}

func TestHabitsRoutes_StatisticsAreCompressed(t *testing.T) {
	router := gin.New()
	NewHabitsRoutes(handlers.NewHabitsHandler(&statsService{}), testSecret).
		RegisterRoutes(router, middleware.NewCacheMiddleware(nil, "habits", time.Minute))

	token, err := auth.GenerateToken(uuid.New(), testSecret, 1)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/habits/"+uuid.NewString()+"/statistics", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept-Encoding", "gzip")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "gzip", w.Header().Get("Content-Encoding"))
}

type issuer struct{}

func (issuer) Issue(uuid.UUID) (string, time.Time, error) {
	return "t", time.Now().Add(time.Hour), nil
}

type countingLimiter struct {
	limit int64
}

func (l *countingLimiter) Allow(context.Context, string) (bool, int, time.Time, error) {
	return true, int(l.limit), time.Now().Add(time.Minute), nil
}

func (l *countingLimiter) Reset(context.Context, string) error { return nil }

func (l *countingLimiter) WithLimit(maxAttempts int64, _ time.Duration) auth.RateLimiter {
	return &countingLimiter{limit: maxAttempts}
}

func TestAuthRoutes_TokenEndpointHasTighterLimit(t *testing.T) {
	router := gin.New()
	NewAuthRoutes(handlers.NewAuthHandler(issuer{}), &countingLimiter{limit: 1000}).RegisterRoutes(router)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/auth/token", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "10", w.Header().Get("X-RateLimit-Remaining"))
}

type downCache struct{}

func (downCache) HealthCheck(context.Context) error { return errors.New("connection refused") }

func (downCache) GetMetrics() map[string]interface{} { return nil }

func TestHealthRoutes(t *testing.T) {
	get := func(router *gin.Engine, path string) int {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		return w.Code
	}

	withoutCache := gin.New()
	SetupHealthRoutes(withoutCache, nil, nil)
	assert.Equal(t, http.StatusOK, get(withoutCache, "/health"))
	assert.Equal(t, http.StatusOK, get(withoutCache, "/health/ready"))
	assert.Equal(t, http.StatusOK, get(withoutCache, "/health/cache"))

	withDownCache := gin.New()
	SetupHealthRoutes(withDownCache, nil, downCache{})
	assert.Equal(t, http.StatusServiceUnavailable, get(withDownCache, "/health/cache"))
}
