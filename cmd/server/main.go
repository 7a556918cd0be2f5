package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/restitch/marketplace/internal/config"
	"github.com/restitch/marketplace/internal/es"
	"github.com/restitch/marketplace/internal/events"
	"github.com/restitch/marketplace/internal/handlers"
	"github.com/restitch/marketplace/internal/logging"
	loggingmw "github.com/restitch/marketplace/internal/middleware/logging"
	"github.com/restitch/marketplace/internal/ratelimit"
	httpserver "github.com/restitch/marketplace/internal/transport/http"
	"github.com/restitch/marketplace/pkg/db"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger := logging.New(cfg.LOG_LEVEL)

	ctx := context.Background()
	gormDB, err := db.Open(ctx, cfg.DATABASE_URL)
	if err != nil {
		log.Fatalf("db init error: %v", err)
	}
	if err := db.Migrate(gormDB); err != nil {
		log.Fatalf("db migrate error: %v", err)
	}

	jwtSecret := []byte(cfg.JWT_SECRET)
	refreshSecret := []byte(cfg.REFRESH_SECRET)

	producer := events.NewProducer([]string{cfg.KAFKA_ADDRESS})

	esClient, err := es.NewClient(cfg)
	if err != nil {
		log.Fatalf("es init error: %v", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover(), middleware.RequestID())
	e.Use(loggingmw.RequestLogger(logger))

	deps := httpserver.Deps{
		AuthHandler: &handlers.AuthHandler{
			DB:            gormDB,
			JWTSecret:     jwtSecret,
			RefreshSecret: refreshSecret,
			Producer:      producer,
		},
		ProductHandler: &handlers.ProductHandler{
			DB:       gormDB,
			Producer: producer,
			ES:       esClient,
			Index:    cfg.ES_INDEX,
		},
		CartHandler: &handlers.CartHandler{
			DB:       gormDB,
			Producer: producer,
		},
		OrderHandler: &handlers.OrderHandler{
			DB:            gormDB,
			Producer:      producer,
			WebhookSecret: []byte(cfg.WEBHOOK_SECRET),
		},
		SearchHandler: handlers.NewSearchHandler(esClient, cfg.ES_INDEX),
		Limiter:       ratelimit.New(cfg.RATE_RPS, cfg.RATE_BURST),
		JWTSecret:     jwtSecret,
	}

	httpserver.Register(e, &deps)

	srv := &http.Server{
		Addr:         cfg.HTTP_ADDR,
		Handler:      e,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()
	logger.Info("server started", "addr", cfg.HTTP_ADDR)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	if sqlDB, err := gormDB.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			logger.Error("db close error", "error", err)
		}
	}

	if err := producer.Close(); err != nil {
		logger.Error("kafka close error", "error", err)
	}

	logger.Info("shutdown complete")
}
