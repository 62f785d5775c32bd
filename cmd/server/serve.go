package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"tempo-backend/internal/cache"
	"tempo-backend/internal/config"
	"tempo-backend/internal/database"
	"tempo-backend/internal/events"
	"tempo-backend/internal/handlers"
	"tempo-backend/internal/middleware"
	"tempo-backend/internal/models"
	"tempo-backend/internal/repository"
	"tempo-backend/internal/router"
	"tempo-backend/internal/services"
	"tempo-backend/internal/websocket"
	"tempo-backend/internal/worker"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, websocket hub and timer event workers",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	log.Println("🚀 Starting Tempo Backend...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()
	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	log.Printf("✓ Environment variables loaded (reports in %s)", loc)

	// ──── Step 2: Initialize PostgreSQL Connection Pool ────
	pool, err := openPostgres(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	// ──── Step 3: Initialize Redis Clients ────
	redisClients, err := database.NewRedisClients(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("redis connection failed: %w", err)
	}
	defer redisClients.Close()
	log.Println("✓ Redis connected")

	// ──── Step 4: Run Database Migrations ────
	if _, err := database.RunMigrations(ctx, pool, cfg.MigrationsDir); err != nil {
		return fmt.Errorf("database migration failed: %w", err)
	}
	log.Println("✓ Database migrations applied")

	// ──── Initialize Repositories ────
	itemRepo := repository.NewItemRepo(pool)
	sessionRepo := repository.NewSessionRepo(pool)
	productivityRepo := repository.NewProductivityRepo(pool)
	tx := repository.NewTransactor(pool)

	// ──── Initialize Services ────
	jwtAuth := middleware.NewJWTAuth(cfg.JWTSecret)
	publisher := events.NewPublisher(redisClients.Queue)
	reportCache := cache.NewReportCache(redisClients.Queue, cfg.ReportCacheTTL)

	timerService := services.NewTimerService(itemRepo, sessionRepo, tx, publisher)
	subTaskService := services.NewSubTaskService(itemRepo, tx, reportCache)
	productivityService := services.NewProductivityService(productivityRepo, itemRepo, sessionRepo, reportCache, loc)

	// ──── Step 5: Start Timer Event Workers ────
	workerPool := worker.NewPool(redisClients.Queue, reportCache, publisher, cfg.EventWorkers)
	workerPool.Start()
	defer workerPool.Stop()

	// ──── Step 6: Start WebSocket Hub ────
	wsHub := websocket.NewHub(redisClients.PubSub, jwtAuth, cfg.FrontendURL)
	defer wsHub.Shutdown()
	log.Println("✓ WebSocket hub started")

	// ──── Step 7: Start HTTP Server ────
	r := router.New(jwtAuth, router.Handlers{
		Tasks:        handlers.NewTimerHandler(models.KindTask, timerService, productivityService),
		SubTaskTimer: handlers.NewTimerHandler(models.KindSubTask, timerService, productivityService),
		SubTasks:     handlers.NewSubTaskHandler(subTaskService),
		Productivity: handlers.NewProductivityHandler(productivityService),
		WebSocket:    wsHub.HandleWebSocket,
	}, cfg.FrontendURL, cfg.RateLimitPerMinute)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("✓ Tempo Backend ready on http://localhost:%s", cfg.Port)
		log.Printf("  API: http://localhost:%s/api/v1", cfg.Port)
		log.Printf("  WS:  ws://localhost:%s/api/v1/ws", cfg.Port)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Println("Shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
