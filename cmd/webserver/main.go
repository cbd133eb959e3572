package main

import (
	"os"

	"github.com/ciddy0/co2ounter/configs"
	"github.com/ciddy0/co2ounter/internal/cache"
	"github.com/ciddy0/co2ounter/internal/database"
	"github.com/ciddy0/co2ounter/internal/handlers"
	"github.com/ciddy0/co2ounter/internal/logger"
	"github.com/ciddy0/co2ounter/internal/middleware"
	"github.com/ciddy0/co2ounter/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

// @title CO2ounter API
// @version 1.0
// @description Aggregation service for AI-chat carbon-footprint tracking

// @host localhost:4000
// @BasePath /

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and the extension token.

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		logger.Log.Info("No .env file found, using default configuration")
	}

	if err := configs.LoadConfig(); err != nil {
		logger.Log.Fatal("Failed to load configuration: ", err)
	}

	if configs.AppConfig.JWTSecret == "" {
		logger.Log.Fatal("JWT_SECRET is required")
	}

	// Initialize database
	dbManager := database.GetDBManager()

	// Initialize cache
	cacheMgr := cache.GetCacheManager()

	// Initialize services
	verifier := &services.HTTPTokenVerifier{VerifyURL: configs.AppConfig.IDPVerifyURL}
	authService := services.NewAuthService(
		configs.AppConfig.JWTSecret,
		configs.AppConfig.ExtensionTokenTTL,
		verifier,
	)
	usageService := services.NewUsageService(dbManager.DB, configs.AppConfig.TransactionRetries)

	// Initialize handlers
	usageHandler := handlers.NewUsageHandler(usageService, cacheMgr)
	authHandler := handlers.NewAuthHandler(authService, usageService)
	wsHandler := handlers.NewWebSocketHandler()

	// Setup Gin router
	if os.Getenv("GIN_MODE") != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()

	// Global middleware
	router.Use(middleware.CORSMiddleware(configs.AppConfig.CORSOrigins))
	router.Use(middleware.ValidationMiddleware())
	router.Use(gin.Recovery())

	// Public routes
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"ok": true})
	})
	router.GET("/leaderboard", usageHandler.GetLeaderboard)
	router.POST("/api/auth/extension-token", authHandler.ExchangeExtensionToken)

	// Protected routes
	protected := router.Group("/api")
	protected.Use(middleware.AuthMiddleware(authService))

	protected.POST("/prompt", usageHandler.RecordPrompt)
	protected.POST("/response", usageHandler.RecordResponse)
	protected.GET("/stats", usageHandler.GetStats)
	protected.GET("/history", usageHandler.GetHistory)
	protected.GET("/heatmap", usageHandler.GetHeatmap)
	protected.POST("/register", usageHandler.Register)
	protected.PUT("/limits", usageHandler.UpdateLimits)

	// WebSocket push for display surfaces
	if configs.AppConfig.EnableWebSocket {
		router.GET("/ws", wsHandler.HandleConnections)
		go wsHandler.RunHub(cacheMgr.SubscribeStatsUpdates())
	}

	// Start server
	port := ":" + configs.AppConfig.ServerPort
	logger.Log.Info("Server starting on port ", port)

	if err := router.Run(port); err != nil {
		logger.Log.Fatal("Failed to start server: ", err)
	}
}
