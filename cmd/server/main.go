package main

import (
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/chartstudio/collab/api/handlers"
	"github.com/chartstudio/collab/internal/config"
	"github.com/chartstudio/collab/internal/db"
	"github.com/chartstudio/collab/internal/hub"
	"github.com/chartstudio/collab/internal/repository"
)

func main() {
	cfg := config.Load()

	log, err := newLogger(cfg)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	// Ensure data directory exists
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
		log.Fatal("failed to create database directory", zap.Error(err))
	}

	// Initialize database
	database, err := db.InitDB(cfg.DBPath)
	if err != nil {
		log.Fatal("failed to initialize database", zap.Error(err))
	}
	defer db.CloseDB()

	// Initialize repositories
	commentRepo := repository.NewCommentRepository(database)
	historyRepo := repository.NewHistoryRepository(database)

	// Initialize hub service
	hubService := hub.NewService(commentRepo, historyRepo, log, hub.Config{
		HistoryRingSize: cfg.HistoryRingSize,
		CheckOrigin:     originChecker(cfg),
	})
	defer hubService.Close()

	// Initialize handlers
	workspaceHandler := handlers.NewWorkspaceHandler(hubService, commentRepo, historyRepo)
	wsHandler := handlers.NewWebSocketHandler(hubService)

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()

	// Enable CORS for development
	r.Use(corsMiddleware())

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status": "ok",
		})
	})

	// Prometheus metrics
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API routes
	api := r.Group("/api")
	{
		workspaceHandler.RegisterRoutes(api)
	}

	// WebSocket route (top level, matches the client URL template)
	wsHandler.RegisterRoutes(r)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down server")
		hubService.Close()
		db.CloseDB()
		os.Exit(0)
	}()

	// Start server
	log.Info("starting collaboration relay", zap.String("port", cfg.Port))
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatal("failed to start server", zap.Error(err))
	}
}

// newLogger builds the process logger: human-readable in development,
// JSON in production.
func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsDevelopment() {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// originChecker restricts WebSocket upgrades to the configured origins.
// No configured origins means any origin is accepted.
func originChecker(cfg *config.Config) func(r *http.Request) bool {
	if len(cfg.AllowedOrigins) == 0 {
		return nil
	}
	allowed := make(map[string]bool, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		allowed[o] = true
	}
	return func(r *http.Request) bool {
		return allowed[r.Header.Get("Origin")]
	}
}

// corsMiddleware returns a CORS middleware for development.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
