package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"www.github.com/Wanderer0074348/AdaptiveLM/src/cache"
	"www.github.com/Wanderer0074348/AdaptiveLM/src/config"
	"www.github.com/Wanderer0074348/AdaptiveLM/src/dispatch"
	"www.github.com/Wanderer0074348/AdaptiveLM/src/handlers"
	"www.github.com/Wanderer0074348/AdaptiveLM/src/middleware"
	"www.github.com/Wanderer0074348/AdaptiveLM/src/models"
	"www.github.com/Wanderer0074348/AdaptiveLM/src/routing"
	"www.github.com/Wanderer0074348/AdaptiveLM/src/telemetry"
)

func init() {

	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, using system environment variables")
	} else {
		log.Println("✅ Loaded .env file")
	}
}

func main() {

	if os.Getenv("LLM_API_KEY") == "" {
		log.Fatal("❌ LLM_API_KEY not set in environment or .env file")
	}

	log.Println("✅ Environment variables loaded successfully")

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	log.Printf("✓ Config loaded successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var remote models.KeyValueStore
	var redisStore *cache.RedisStore
	if cfg.Cache.Distributed {
		redisStore, err = cache.NewRedisStore(&cfg.Redis)
		if err != nil {
			log.Printf("⚠️  Failed to connect to Redis: %v, continuing with in-process cache only", err)
		} else {
			defer redisStore.Close()
			remote = redisStore
			log.Printf("✓ Redis connected, distributed cache tier enabled")
		}
	} else {
		log.Println("ℹ️  Distributed cache tier disabled, using in-process cache only")
	}

	var embedding models.SimilarityBackend
	if cfg.Cache.EmbeddingEnabled && cfg.Cache.EmbeddingAPIKey != "" {
		embedding = cache.NewEmbeddingScorer(cfg.Cache.EmbeddingAPIKey, cfg.Cache.EmbeddingTimeout)
		log.Printf("✓ Embedding similarity tier enabled")
	} else {
		embedding = cache.NewNullScorer("embedding")
		log.Println("ℹ️  Embedding tier disabled, using fuzzy and TF-IDF similarity only")
	}

	tieredCache := cache.NewTieredCache(&cfg.Cache, embedding, remote)
	log.Printf("✓ Tiered cache ready (max size: %d, threshold: %.2f, ttl: %s)",
		cfg.Cache.MaxSize, cfg.Cache.SimilarityThreshold, cfg.Cache.TTL)

	registry, err := dispatch.NewRegistry(cfg.Models)
	if err != nil {
		log.Fatalf("Failed to initialize model registry: %v", err)
	}
	log.Printf("✓ Model registry ready with %d backends", len(cfg.Models))
	for _, m := range cfg.Models {
		log.Printf("  - %s (expected latency: %dms)", m.Name, m.ExpectedLatencyMs)
	}

	manager := routing.NewManager(&cfg.Routing)
	manager.StartSweeper(ctx, cfg.Routing.SweepInterval)
	if cfg.Routing.Enabled {
		log.Printf("✓ Adaptive routing enabled (epsilon: %.2f)", cfg.Routing.Epsilon)
		if len(cfg.Routing.ShadowTaskTypes) > 0 {
			log.Printf("  shadow task types: %s", strings.Join(cfg.Routing.ShadowTaskTypes, ", "))
		}
	} else {
		log.Println("ℹ️  Adaptive routing disabled, using static fallback policy")
	}

	coordinator := routing.NewCoordinator(tieredCache, manager, registry, cfg)
	log.Printf("✓ Routing coordinator initialized")

	var sink models.TelemetrySink
	if redisStore != nil {
		sink = telemetry.NewRedisStreamSink(redisStore.GetClient())
	} else {
		sink = telemetry.NewLogSink()
	}
	drainer := telemetry.NewDrainer(manager, sink, cfg.Routing.DrainInterval)
	go drainer.Run(ctx)
	log.Printf("✓ Telemetry drainer started")

	gin.SetMode(gin.ReleaseMode)
	r := gin.Default()

	r.Use(gin.Recovery())
	r.Use(corsMiddleware())

	completionHandler := handlers.NewCompletionHandler(coordinator, tieredCache, manager)
	authMiddleware := middleware.NewAuthMiddleware(cfg.Server.APIKey)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/health", completionHandler.HealthCheck)

		protected := v1.Group("")
		protected.Use(authMiddleware.RequireAuth())
		{
			protected.POST("/completion", completionHandler.HandleCompletion)
			protected.GET("/cache/stats", completionHandler.CacheStats)
			protected.POST("/cache/clear", completionHandler.ClearCache)
			protected.GET("/routing/stats", completionHandler.RoutingStats)
		}
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	log.Printf("🚀 AdaptiveLM running on port %s", cfg.Server.Port)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exited")
}

func corsMiddleware() gin.HandlerFunc {
	// Get allowed origins from environment variable
	// Default to localhost for development if not set
	allowedOriginsEnv := os.Getenv("ALLOWED_ORIGINS")
	var allowedOrigins []string

	if allowedOriginsEnv != "" {
		// Split by comma for multiple origins
		allowedOrigins = strings.Split(allowedOriginsEnv, ",")
		// Trim whitespace from each origin
		for i := range allowedOrigins {
			allowedOrigins[i] = strings.TrimSpace(allowedOrigins[i])
		}
	} else {
		// Default for local development
		allowedOrigins = []string{
			"http://localhost:3000",
			"http://localhost:3001",
		}
	}

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		// Allow requests without Origin header (e.g., health checks, curl, Postman)
		if origin == "" {
			c.Next()
			return
		}

		// Check if the origin is allowed
		allowed := false
		for _, allowedOrigin := range allowedOrigins {
			if origin == allowedOrigin {
				allowed = true
				c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
				break
			}
		}

		// If origin is not allowed, don't set CORS headers
		if !allowed {
			c.AbortWithStatus(403)
			return
		}

		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, GET, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
