package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/rwandadisasteralert/alert-engine/internal/api"
	"github.com/rwandadisasteralert/alert-engine/internal/config"
	"github.com/rwandadisasteralert/alert-engine/internal/dispatch"
	"github.com/rwandadisasteralert/alert-engine/internal/feed"
	"github.com/rwandadisasteralert/alert-engine/internal/geo"
	"github.com/rwandadisasteralert/alert-engine/internal/lifecycle"
	"github.com/rwandadisasteralert/alert-engine/internal/logging"
	"github.com/rwandadisasteralert/alert-engine/internal/repository"
	"github.com/rwandadisasteralert/alert-engine/internal/stats"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatalf("Fatal while loading config: %v", err)
	}
	logging.Setup(cfg.Logging.Level)

	slog.Info("Server starting", "host", cfg.Server.Host, "port", cfg.Server.Port)

	db, err := repository.NewSQLiteDB(cfg.DB.Path)
	if err != nil {
		logging.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	broadcaster := feed.NewBroadcaster()
	matcher := geo.NewMatcher(db)

	dispatchers := []dispatch.Dispatcher{
		dispatch.NewSMSDispatcher(cfg.Providers.SMS),
		dispatch.NewPushDispatcher(cfg.Providers.Push),
		dispatch.NewEmailDispatcher(cfg.Providers.Email),
		dispatch.NewWebDispatcher(db, broadcaster),
	}
	coordinator := dispatch.NewCoordinator(db, db, db, matcher, dispatchers, cfg.Dispatch)
	coordinator.Start(ctx)

	lc := lifecycle.New(db, coordinator, cfg.Expiry.SweepInterval)
	lc.StartExpirySweeper(ctx)

	aggregator := stats.NewAggregator(db)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
	}))
	router.Use(api.RateLimitMiddleware(cfg.Server.RateLimit))

	handler := api.NewHandler(db, db, db, db, lc, aggregator, broadcaster)
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	go func() {
		slog.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	coordinator.Stop()
	cancel()
	lc.Stop()
	broadcaster.Close()

	slog.Info("shutdown complete")
}
