package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"ocrchat/internal/api"
	"ocrchat/internal/chat"
	"ocrchat/internal/config"
	"ocrchat/internal/logger"
	"ocrchat/internal/ocr"
	"ocrchat/internal/preview"
)

const previewBasePath = "/api/previews"

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	cfgPath := os.Getenv("OCRCHAT_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger.Init(cfg.BasicConfig.LogLevel)

	if cfg.Webhook.URL == "" {
		log.Fatalf("extraction webhook url must be configured (webhook.url or OCRCHAT_WEBHOOK_URL)")
	}
	extractor, err := ocr.NewClient(
		cfg.Webhook.URL,
		time.Duration(cfg.Webhook.TimeoutSeconds)*time.Second,
		cfg.Webhook.MaxRetries,
	)
	if err != nil {
		log.Fatalf("init extraction client: %v", err)
	}

	fileBase := cfg.BasicConfig.FileBaseDir
	if fileBase == "" {
		fileBase = "./data/uploads"
	}

	previews := preview.NewRegistry(previewBasePath)
	idleTTL := time.Duration(cfg.BasicConfig.SessionIdleMinutes) * time.Minute
	sessions := chat.NewManager(previews, extractor, idleTTL)

	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	defer sweepCancel()
	sweepInterval := time.Duration(cfg.BasicConfig.SweepIntervalMinutes) * time.Minute
	sessions.Start(sweepCtx, sweepInterval)

	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	handlers := api.NewHandler(sessions, previews, fileBase)
	handlers.RegisterRoutes(router, cfg.BasicConfig.AuthToken)

	addr := cfg.BasicConfig.ServerAddress
	if addr == "" {
		addr = ":8090"
	}

	logger.Info("ocrchat listening on " + addr)
	if err := router.Run(addr); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}
