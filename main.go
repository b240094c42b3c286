package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"clinic-portal-server/internal/config"
	"clinic-portal-server/internal/jobs"
	"clinic-portal-server/internal/logger"
	"clinic-portal-server/internal/metrics"
	"clinic-portal-server/internal/middleware"
	"clinic-portal-server/internal/models"
	"clinic-portal-server/internal/revocation"
	"clinic-portal-server/internal/routes"
	"clinic-portal-server/internal/services"
	"clinic-portal-server/internal/store"
	"clinic-portal-server/internal/store/memory"
	"clinic-portal-server/internal/utils"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	logger.Setup(cfg.LogLevel, cfg.LogFormat)
	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	stores, closeStores, err := openStores(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open stores")
	}
	defer closeStores()

	// Without Redis, revocations live in this process only.
	var (
		denylist    revocation.Denylist = revocation.NewMemoryDenylist(10 * time.Minute)
		redisPinger store.Pinger
	)
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()
		redisDenylist := revocation.NewRedisDenylist(client)
		denylist, redisPinger = redisDenylist, redisDenylist
		log.Info().Str("addr", cfg.Redis.Addr).Msg("using Redis token denylist")
	}

	loc, _ := cfg.Location()
	m := metrics.New()
	tokens := utils.NewTokenService(cfg.JWTSecret, cfg.JWTRefreshSecret, cfg.JWTExpiration, cfg.JWTRefreshExpiration)
	appointments := services.NewAppointmentService(stores.Users, stores.Appointments, loc, cfg.CancellationLeadTime, m)

	router, err := routes.NewRouter(cfg, m)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build router")
	}

	routes.SetupRoutes(router, routes.Dependencies{
		Config:       cfg,
		Stores:       stores,
		Tokens:       tokens,
		Appointments: appointments,
		Denylist:     denylist,
		Metrics:      m,
		RateLimiter: middleware.NewRateLimiter(middleware.RateLimiterConfig{
			Rate:  rate.Limit(cfg.AuthRateLimit),
			Burst: cfg.AuthRateBurst,
		}),
		Redis: redisPinger,
	})

	scheduler, err := jobs.NewScheduler(cfg.CleanupSchedule, stores.RefreshTokens)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to schedule housekeeping")
	}
	scheduler.Start()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Str("store", cfg.StoreDriver).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	scheduler.Stop(ctx)
	log.Info().Msg("server exited")
}

// openStores selects the persistence backend from STORE_DRIVER.
func openStores(cfg *config.Config) (*store.Stores, func(), error) {
	if cfg.StoreDriver == "memory" {
		log.Warn().Msg("using in-memory stores; data is lost on restart")
		return memory.New(), func() {}, nil
	}

	db, err := models.InitDB(cfg.Database.DSN())
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, fmt.Errorf("database handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	closeDB := func() {
		if err := sqlDB.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close database")
		}
	}
	return store.NewGormStores(db), closeDB, nil
}
