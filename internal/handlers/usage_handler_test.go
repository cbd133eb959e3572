package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ciddy0/co2ounter/internal/cache"
	"github.com/ciddy0/co2ounter/internal/database"
	"github.com/ciddy0/co2ounter/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// testIdentity injects a fixed caller the way AuthMiddleware would after
// validating a token.
func testIdentity(identity string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("identity", identity)
		c.Set("email", identity+"@example.com")
		c.Next()
	}
}

func newTestRouter(t *testing.T, identity string) (*gin.Engine, *cache.CacheManager) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.Migrate(db))

	usage := services.NewUsageService(db, 3)
	cacheMgr := cache.GetCacheManager()
	handler := NewUsageHandler(usage, cacheMgr)

	router := gin.New()
	router.GET("/leaderboard", handler.GetLeaderboard)

	api := router.Group("/api")
	api.Use(testIdentity(identity))
	api.POST("/prompt", handler.RecordPrompt)
	api.POST("/response", handler.RecordResponse)
	api.GET("/stats", handler.GetStats)
	api.GET("/history", handler.GetHistory)
	api.POST("/register", handler.Register)
	api.PUT("/limits", handler.UpdateLimits)

	// The cache is process-wide; drop anything a previous test left behind.
	cacheMgr.Delete(cache.StatsKey(identity))
	cacheMgr.Delete(cache.LeaderboardKey)

	return router, cacheMgr
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRecordPromptEndpoint(t *testing.T) {
	router, _ := newTestRouter(t, "handler-user-1")

	w := doJSON(t, router, http.MethodPost, "/api/prompt", gin.H{
		"model":       "chatgpt",
		"inputTokens": 25,
		"co2":         0.5,
	})

	require.Equal(t, http.StatusOK, w.Code)

	var resp RecordResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, int64(1), resp.User.PromptTotal)
	assert.Equal(t, 0.5, resp.User.CO2TotalGrams)
	assert.False(t, resp.Exceeded.Prompts)
}

func TestRecordPromptDefaultsModel(t *testing.T) {
	router, _ := newTestRouter(t, "handler-user-2")

	w := doJSON(t, router, http.MethodPost, "/api/prompt", gin.H{
		"inputTokens": 10,
	})

	require.Equal(t, http.StatusOK, w.Code)

	var resp RecordResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp.User.ModelTotals, "chatgpt")
}

func TestRecordPromptRejectsUnknownModel(t *testing.T) {
	router, _ := newTestRouter(t, "handler-user-3")

	w := doJSON(t, router, http.MethodPost, "/api/prompt", gin.H{
		"model": "llama-unknown",
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRecordPromptRejectsNegativeTokens(t *testing.T) {
	router, _ := newTestRouter(t, "handler-user-4")

	w := doJSON(t, router, http.MethodPost, "/api/prompt", gin.H{
		"model":       "chatgpt",
		"inputTokens": -5,
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRecordResponseEndpoint(t *testing.T) {
	router, _ := newTestRouter(t, "handler-user-5")

	w := doJSON(t, router, http.MethodPost, "/api/response", gin.H{
		"model":        "claude-3-haiku",
		"outputTokens": 120,
		"co2":          0.10361,
	})

	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp, "exceeded")

	var exceeded map[string]bool
	require.NoError(t, json.Unmarshal(resp["exceeded"], &exceeded))
	_, hasPrompts := exceeded["prompts"]
	assert.False(t, hasPrompts)
	assert.False(t, exceeded["co2"])
}

func TestStatsEndpointRoundTrip(t *testing.T) {
	router, _ := newTestRouter(t, "handler-user-6")

	doJSON(t, router, http.MethodPost, "/api/prompt", gin.H{
		"model":       "gemini-pro",
		"inputTokens": 40,
		"co2":         1.25,
	})

	w := doJSON(t, router, http.MethodGet, "/api/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp StatsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, int64(1), resp.User.PromptTotal)
	assert.Equal(t, 1.25, resp.User.CO2TotalGrams)
	assert.Equal(t, int64(1), resp.Today.PromptCount)
}

func TestHistoryEndpointZeroFills(t *testing.T) {
	router, _ := newTestRouter(t, "handler-user-7")

	w := doJSON(t, router, http.MethodGet, "/api/history?days=7", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp HistoryResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Len(t, resp.Usage, 7)
	for _, day := range resp.Usage {
		assert.Zero(t, day.PromptCount)
	}
}

func TestRegisterAndLimitsEndpoints(t *testing.T) {
	router, _ := newTestRouter(t, "handler-user-8")

	w := doJSON(t, router, http.MethodPost, "/api/register", gin.H{
		"displayName": "Dee",
	})
	assert.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, router, http.MethodPut, "/api/limits", gin.H{
		"dailyLimitPrompts": 2,
		"dailyLimitCo2":     0,
	})
	assert.Equal(t, http.StatusOK, w.Code)

	// The limit applies to subsequent recordings.
	doJSON(t, router, http.MethodPost, "/api/prompt", gin.H{"model": "chatgpt"})
	resp := doJSON(t, router, http.MethodPost, "/api/prompt", gin.H{"model": "chatgpt"})

	var record RecordResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &record))
	assert.True(t, record.Exceeded.Prompts)
}

func TestLimitsEndpointRejectsNegative(t *testing.T) {
	router, _ := newTestRouter(t, "handler-user-9")

	w := doJSON(t, router, http.MethodPut, "/api/limits", gin.H{
		"dailyLimitPrompts": -1,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLeaderboardEndpoint(t *testing.T) {
	router, cacheMgr := newTestRouter(t, "handler-user-10")

	for i := 0; i < 3; i++ {
		doJSON(t, router, http.MethodPost, "/api/prompt", gin.H{
			"model": "chatgpt",
		})
	}
	cacheMgr.Delete(cache.LeaderboardKey)

	w := doJSON(t, router, http.MethodGet, "/leaderboard", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp LeaderboardResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	require.NotEmpty(t, resp.Data)
	assert.Equal(t, int64(3), resp.Data[0].PromptTotal)
	assert.WithinDuration(t, time.Now(), time.Unix(resp.GeneratedAt, 0), time.Minute)
}
