package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"shijian-backend/internal/assistant"
	"shijian-backend/internal/chat"
	"shijian-backend/internal/config"
	"shijian-backend/internal/database"
	"shijian-backend/internal/handlers"
	"shijian-backend/internal/logging"
	"shijian-backend/internal/middleware"
	"shijian-backend/internal/repository"
	"shijian-backend/internal/router"
	"shijian-backend/internal/services"
	"shijian-backend/internal/websocket"
	"shijian-backend/internal/worker"
	"shijian-backend/migrations"
)

func main() {
	log.Println("🚀 Starting Shijian Backend...")

	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()
	if _, err := logging.Init(cfg); err != nil {
		log.Printf("✗ Log file unavailable, logging to stdout only: %v", err)
	}
	log.Println("✓ Environment variables loaded")

	problems := cfg.Validate()
	for _, p := range problems {
		log.Printf("  config: %s", p)
	}

	// ──── Step 2: Initialize PostgreSQL Connection Pool ────
	pool, err := database.NewPostgresPool(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("✗ PostgreSQL connection failed: %v", err)
	}
	defer pool.Close()
	log.Println("✓ PostgreSQL connected")

	// ──── Step 3: Initialize Redis Clients ────
	redisClients, err := database.NewRedisClients(cfg.RedisURL)
	if err != nil {
		log.Fatalf("✗ Redis connection failed: %v", err)
	}
	defer redisClients.Close()
	log.Println("✓ Redis connected")

	// ──── Step 4: Run Database Migrations ────
	if err := database.RunMigrations(context.Background(), pool, migrations.FS); err != nil {
		log.Fatalf("✗ Database migration failed: %v", err)
	}
	log.Println("✓ Database migrations applied")

	// ──── Initialize Repositories ────
	userRepo := repository.NewUserRepo(pool)
	poemRepo := repository.NewPoemRepo(pool)
	authorRepo := repository.NewAuthorRepo(pool)

	// ──── Step 5: Initialize Assistant ────
	catalog := assistant.DefaultCatalog()
	if cfg.AssistantCatalogFile != "" {
		catalog, err = assistant.LoadCatalog(cfg.AssistantCatalogFile)
		if err != nil {
			log.Fatalf("✗ Assistant catalogue failed to load: %v", err)
		}
	}
	assistantService := assistant.NewService(assistant.Options{
		Catalog: catalog,
		Stream:  cfg.StreamConfig(),
	})
	log.Println("✓ Poetry assistant initialized")

	var analyzer services.Analyzer = services.NewAssistantAnalyzer(assistantService)
	if cfg.GeminiAPIKey != "" {
		gemini, err := services.NewGeminiAnalyzer(cfg.GeminiAPIKey, cfg.GeminiConcurrentReqs, cfg.GeminiRequestsPerMin)
		if err != nil {
			log.Fatalf("✗ Gemini client initialization failed: %v", err)
		}
		defer gemini.Close()
		analyzer = gemini
		log.Println("✓ Gemini analysis client initialized")
	}

	// ──── Initialize Services ────
	jwtAuth := middleware.NewJWTAuth(cfg.JWTSecret)
	authService := services.NewAuthService(userRepo, redisClients.Queue, jwtAuth)
	analysisService := services.NewAnalysisService(analyzer, redisClients.Queue, cfg.CacheTTL())
	poemService := services.NewPoemService(poemRepo, authorRepo, redisClients.Queue, cfg.SearchCacheTTL(), analysisService)

	// ──── Step 6: Start Chat Session Registry ────
	sessions := chat.NewRegistry(
		chat.AssistantDialer(assistantService),
		chat.NewRedisPublisher(redisClients.PubSub),
		cfg.ChatSessionTTL,
	)
	sessions.Start()
	log.Println("✓ Chat session registry started")

	// ──── Step 7: Start Analysis Worker Pool ────
	workerPool := worker.NewPool(redisClients.Queue, redisClients.PubSub, analysisService, cfg.WorkerCount)
	workerPool.Start()
	log.Printf("✓ Worker pool started (%d goroutines)", cfg.WorkerCount)

	// ──── Step 8: Start WebSocket Hub ────
	wsHub := websocket.NewHub(redisClients.PubSub)
	log.Println("✓ WebSocket hub started")

	// ──── Initialize Handlers ────
	h := router.Handlers{
		Health:   handlers.NewHealthHandler(problems, sessions, redisClients),
		Auth:     handlers.NewAuthHandler(authService),
		Poem:     handlers.NewPoemHandler(poemService, wsHub),
		Analysis: handlers.NewAnalysisHandler(analysisService),
		Chat:     handlers.NewChatHandler(assistantService, sessions, wsHub, jwtAuth),
	}

	// ──── Step 9: Start HTTP Server ────
	r, stopLimiters := router.New(jwtAuth, h, cfg.FrontendURL)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down...")
		sessions.Stop()
		workerPool.Stop()
		wsHub.Shutdown()
		stopLimiters()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	log.Printf("✓ Shijian Backend ready on http://localhost:%s", cfg.Port)
	log.Printf("  API: http://localhost:%s/api/v1", cfg.Port)
	log.Printf("  WS:  ws://localhost:%s/api/v1/chat/sessions/{id}/ws", cfg.Port)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}
}
