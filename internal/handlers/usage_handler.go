package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/ciddy0/co2ounter/configs"
	"github.com/ciddy0/co2ounter/internal/cache"
	"github.com/ciddy0/co2ounter/internal/logger"
	"github.com/ciddy0/co2ounter/internal/middleware"
	"github.com/ciddy0/co2ounter/internal/services"

	"github.com/gin-gonic/gin"
)

type UsageHandler struct {
	usage *services.UsageService
	cache *cache.CacheManager
}

func NewUsageHandler(usage *services.UsageService, cacheMgr *cache.CacheManager) *UsageHandler {
	return &UsageHandler{
		usage: usage,
		cache: cacheMgr,
	}
}

// RecordPrompt folds a prompt-sent event into the caller's counters
// @Summary Record a prompt
// @Tags usage
// @Accept json
// @Produce json
// @Param request body PromptRequest true "Prompt event"
// @Security BearerAuth
// @Success 200 {object} RecordResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/prompt [post]
func (h *UsageHandler) RecordPrompt(c *gin.Context) {
	var req PromptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body"})
		return
	}
	if req.Model == "" {
		req.Model = "chatgpt"
	}

	identity := middleware.Identity(c)

	result, err := h.usage.RecordPrompt(identity, req.Model, req.InputTokens, req.CO2, req.EventID)
	if err != nil {
		h.writeRecordError(c, err, "Failed to record prompt")
		return
	}

	h.cache.PublishStatsUpdate(identity)

	c.JSON(http.StatusOK, RecordResponse{
		Success:  true,
		Exceeded: result.Exceeded,
		User:     result.User,
		Today:    result.Today,
	})
}

// RecordResponse folds a response-received event into the caller's counters
// @Summary Record a streamed response
// @Tags usage
// @Accept json
// @Produce json
// @Param request body ResponseRequest true "Response event"
// @Security BearerAuth
// @Success 200 {object} RecordResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/response [post]
func (h *UsageHandler) RecordResponse(c *gin.Context) {
	var req ResponseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body"})
		return
	}
	if req.Model == "" {
		req.Model = "chatgpt"
	}

	identity := middleware.Identity(c)

	result, err := h.usage.RecordResponse(identity, req.Model, req.OutputTokens, req.CO2, req.EventID)
	if err != nil {
		h.writeRecordError(c, err, "Failed to record response")
		return
	}

	h.cache.PublishStatsUpdate(identity)

	// Responses never trip the prompt limit; only CO2 is reported here.
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"exceeded": gin.H{"co2": result.Exceeded.CO2},
		"user":     result.User,
		"today":    result.Today,
	})
}

func (h *UsageHandler) writeRecordError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, services.ErrInvalidModel):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid model"})
	case errors.Is(err, services.ErrInvalidCount):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Token and co2 values must be non-negative"})
	default:
		logger.Log.Error(fallback, ": ", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: fallback})
	}
}

// GetStats returns lifetime and today's counters for the caller
// @Summary Get usage stats
// @Tags usage
// @Produce json
// @Security BearerAuth
// @Success 200 {object} StatsResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/stats [get]
func (h *UsageHandler) GetStats(c *gin.Context) {
	identity := middleware.Identity(c)

	cacheKey := cache.StatsKey(identity)
	var cached StatsResponse
	if found, err := h.cache.Get(cacheKey, &cached); found && err == nil {
		c.JSON(http.StatusOK, cached)
		return
	}

	result, err := h.usage.GetStats(identity)
	if err != nil {
		logger.Log.Error("Failed to fetch stats: ", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to fetch stats"})
		return
	}

	response := StatsResponse{
		Success:  true,
		User:     result.User,
		Today:    result.Today,
		Exceeded: result.Exceeded,
	}

	h.cache.Set(cacheKey, response, configs.AppConfig.CacheTTL)

	c.JSON(http.StatusOK, response)
}

// GetHistory returns the last N days of usage, zero-filled
// @Summary Get daily usage history
// @Tags usage
// @Produce json
// @Security BearerAuth
// @Success 200 {object} HistoryResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/history [get]
func (h *UsageHandler) GetHistory(c *gin.Context) {
	identity := middleware.Identity(c)

	days, _ := strconv.Atoi(c.DefaultQuery("days", "7"))

	usage, err := h.usage.GetHistory(identity, days)
	if err != nil {
		logger.Log.Error("Failed to fetch history: ", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to fetch history"})
		return
	}

	c.JSON(http.StatusOK, HistoryResponse{Success: true, Usage: usage})
}

// GetHeatmap returns per-day prompt counts for the trailing year
// @Summary Get yearly activity heatmap data
// @Tags usage
// @Produce json
// @Security BearerAuth
// @Success 200 {object} HistoryResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/heatmap [get]
func (h *UsageHandler) GetHeatmap(c *gin.Context) {
	identity := middleware.Identity(c)

	usage, err := h.usage.GetYearHeatmap(identity)
	if err != nil {
		logger.Log.Error("Failed to fetch heatmap: ", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to fetch heatmap"})
		return
	}

	c.JSON(http.StatusOK, HistoryResponse{Success: true, Usage: usage})
}

// GetLeaderboard returns users ranked by lifetime prompt count
// @Summary Get leaderboard
// @Tags usage
// @Produce json
// @Success 200 {object} LeaderboardResponse
// @Failure 500 {object} ErrorResponse
// @Router /leaderboard [get]
func (h *UsageHandler) GetLeaderboard(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(configs.AppConfig.LeaderboardLimit)))

	var cached LeaderboardResponse
	if found, err := h.cache.Get(cache.LeaderboardKey, &cached); found && err == nil {
		if time.Since(time.Unix(cached.GeneratedAt, 0)) < configs.AppConfig.CacheTTL && len(cached.Data) >= limit {
			if len(cached.Data) > limit {
				cached.Data = cached.Data[:limit]
			}
			c.JSON(http.StatusOK, cached)
			return
		}
	}

	entries, err := h.usage.GetLeaderboard(limit)
	if err != nil {
		logger.Log.Error("Failed to fetch leaderboard: ", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to fetch leaderboard"})
		return
	}

	response := LeaderboardResponse{
		Success:     true,
		GeneratedAt: time.Now().Unix(),
		Data:        entries,
	}

	h.cache.Set(cache.LeaderboardKey, response, configs.AppConfig.CacheTTL)

	c.JSON(http.StatusOK, response)
}

// Register pre-creates the caller's record with a display name
// @Summary Register a display name
// @Tags users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Success 201 {object} SuccessResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/register [post]
func (h *UsageHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body"})
		return
	}

	identity := middleware.Identity(c)
	email, _ := c.Get("email")
	emailStr, _ := email.(string)

	if err := h.usage.Register(identity, req.DisplayName, emailStr); err != nil {
		logger.Log.Error("Failed to register user: ", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to register"})
		return
	}

	c.JSON(http.StatusCreated, SuccessResponse{Success: true})
}

// UpdateLimits sets the caller's daily thresholds
// @Summary Update daily limits
// @Tags users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Success 200 {object} SuccessResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/limits [put]
func (h *UsageHandler) UpdateLimits(c *gin.Context) {
	var req LimitsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body"})
		return
	}

	identity := middleware.Identity(c)

	if err := h.usage.UpdateLimits(identity, req.DailyLimitPrompts, req.DailyLimitCO2); err != nil {
		if errors.Is(err, services.ErrInvalidCount) {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Limits must be non-negative"})
			return
		}
		logger.Log.Error("Failed to update limits: ", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to update limits"})
		return
	}

	h.cache.Delete(cache.StatsKey(identity))

	c.JSON(http.StatusOK, SuccessResponse{Success: true})
}

// Request/Response structures
type PromptRequest struct {
	Model       string  `json:"model"`
	InputTokens int     `json:"inputTokens"`
	CO2         float64 `json:"co2"`
	EventID     string  `json:"eventId"`
}

type ResponseRequest struct {
	Model        string  `json:"model"`
	OutputTokens int     `json:"outputTokens"`
	CO2          float64 `json:"co2"`
	EventID      string  `json:"eventId"`
}

type RegisterRequest struct {
	DisplayName string `json:"displayName" binding:"required"`
}

type LimitsRequest struct {
	DailyLimitPrompts int64   `json:"dailyLimitPrompts"`
	DailyLimitCO2     float64 `json:"dailyLimitCo2"`
}

type RecordResponse struct {
	Success  bool                  `json:"success"`
	Exceeded services.Exceeded     `json:"exceeded"`
	User     services.UserSnapshot `json:"user"`
	Today    services.DaySnapshot  `json:"today"`
}

type StatsResponse struct {
	Success  bool                  `json:"success"`
	User     services.UserSnapshot `json:"user"`
	Today    services.DaySnapshot  `json:"today"`
	Exceeded services.Exceeded     `json:"exceeded"`
}

type HistoryResponse struct {
	Success bool               `json:"success"`
	Usage   []services.DayUsage `json:"usage"`
}

type LeaderboardResponse struct {
	Success     bool                        `json:"success"`
	GeneratedAt int64                       `json:"generatedAt"`
	Data        []services.LeaderboardEntry `json:"data"`
}

type SuccessResponse struct {
	Success bool `json:"success"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
