package main

import (
	"os"

	"github.com/ciddy0/co2ounter/configs"
	"github.com/ciddy0/co2ounter/internal/agent"
	"github.com/ciddy0/co2ounter/internal/logger"
	"github.com/ciddy0/co2ounter/internal/relay"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		logger.Log.Info("No .env file found, using default configuration")
	}

	if err := configs.LoadConfig(); err != nil {
		logger.Log.Fatal("Failed to load configuration: ", err)
	}

	store := &agent.FileStateStore{Path: configs.AppConfig.AgentStatePath}

	// The client reads the token lazily so a StoreToken received after
	// startup applies to every later delivery.
	var collector *agent.Collector
	client := agent.NewClient(configs.AppConfig.AgentBackendURL, func() string {
		if collector == nil {
			return ""
		}
		return collector.Token()
	})

	opts := []relay.Option{relay.WithSendInterval(configs.AppConfig.AgentSendInterval)}
	if configs.AppConfig.AgentMaxAttempts > 0 {
		opts = append(opts, relay.WithMaxAttempts(configs.AppConfig.AgentMaxAttempts, func(event interface{}) {
			logger.Log.Warn("Dropping usage event after repeated delivery failures: ", event)
		}))
	}
	queue := relay.NewQueue(client, opts...)
	defer queue.Stop()

	collector, err := agent.NewCollector(store, queue)
	if err != nil {
		logger.Log.Fatal("Failed to restore agent state: ", err)
	}

	server := agent.NewServer(collector)

	if os.Getenv("GIN_MODE") != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	addr := configs.AppConfig.AgentListenAddr
	logger.Log.Info("Agent listening on ", addr)

	if err := server.Router().Run(addr); err != nil {
		logger.Log.Fatal("Failed to start agent: ", err)
	}
}
