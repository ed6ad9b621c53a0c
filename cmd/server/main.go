package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/EthanVT97/rangoon-middleware/internal/config"
	"github.com/EthanVT97/rangoon-middleware/internal/database"
	"github.com/EthanVT97/rangoon-middleware/internal/erp"
	"github.com/EthanVT97/rangoon-middleware/internal/handlers"
	"github.com/EthanVT97/rangoon-middleware/internal/importer"
	"github.com/EthanVT97/rangoon-middleware/internal/metrics"
	"github.com/EthanVT97/rangoon-middleware/internal/models"
	"github.com/EthanVT97/rangoon-middleware/internal/monitor"
	"github.com/EthanVT97/rangoon-middleware/internal/ws"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if os.Getenv("GIN_MODE") != "release" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	log.Info().Str("db", cfg.DBName).Msg("database ready")

	hub := ws.NewHub(log.Logger)
	mon := monitor.New(db, log.Logger)

	source := &erp.DBConnectionSource{
		DB: db,
		Fallback: models.ERPConnection{
			Name:    "env",
			BaseURL: cfg.ERPBaseURL,
			APIKey:  cfg.ERPAPIKey,
		},
	}
	client := erp.NewClient(source, log.Logger)
	dispatcher := erp.NewDispatcher(client, erp.RealClock(), erp.DispatcherConfig{
		BatchSize:        cfg.ImportBatchSize,
		MaxAttempts:      cfg.DispatchMaxAttempts,
		BaseDelay:        cfg.DispatchBaseDelay,
		MaxDelay:         cfg.DispatchMaxDelay,
		FailureThreshold: cfg.BreakerFailureThreshold,
		Cooldown:         cfg.BreakerCooldown,
	}, log.Logger)
	dispatcher.OnBreakerChange(func(endpoint string, from, to erp.BreakerState) {
		metrics.BreakerState.WithLabelValues(endpoint).Set(float64(to))
		hub.Broadcast(ws.Event{
			Type: ws.EventSystemAlert,
			Data: map[string]interface{}{
				"message":  "erp circuit breaker " + to.String(),
				"endpoint": endpoint,
			},
		})
	})

	imp := importer.New(db, dispatcher, hub, mon, erp.RealClock(), importer.Config{
		Workers:         cfg.ImportWorkers,
		WaitForRecovery: cfg.ERPWaitForRecovery,
	}, log.Logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go mon.CleanupLoop(ctx, 10*time.Minute)

	h := handlers.New(db, imp, client, mon, hub, cfg.JWTSecret, log.Logger)
	router := gin.New()
	router.Use(gin.Recovery())
	h.RegisterRoutes(router)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}
	go func() {
		log.Info().Str("port", cfg.Port).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}
