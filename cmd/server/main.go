package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"idlemine/internal/config"
	"idlemine/internal/db"
	"idlemine/internal/economy"
	"idlemine/internal/handlers"
	"idlemine/internal/jobs"
	"idlemine/internal/keylock"
	"idlemine/internal/logging"
	"idlemine/internal/metrics"
	"idlemine/internal/middleware"
	"idlemine/internal/payout"
	"idlemine/internal/services"
	"idlemine/internal/store"
	"idlemine/internal/websocket"

	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("invalid configuration")
	}
	logger := logging.New(cfg.LogLevel, cfg.IsProduction())
	loc, err := cfg.Location()
	if err != nil {
		logger.WithError(err).Fatal("invalid timezone")
	}

	database, err := db.Connect(cfg.DatabaseURL, cfg.DBMaxOpenConns)
	if err != nil {
		logger.WithError(err).Fatal("failed to connect database")
	}
	defer database.Close()

	txRunner := db.NewTxRunner(database, logger)
	players := store.NewPlayerStore(database)
	claims := store.NewClaimStore(database)
	rounds := store.NewRoundStore(database)
	configStore := store.NewConfigStore(database)
	admins := store.NewAdminStore(database)
	audit := store.NewAuditStore(database)

	collector := metrics.New()
	hub := websocket.NewHub(logger, cfg.AllowedOriginList())
	locks := keylock.New()
	holder := economy.NewHolder(economy.Default())

	var emitter payout.Emitter = payout.NewLogEmitter(logger)
	if len(cfg.KafkaBrokers) > 0 {
		kafka, err := payout.NewKafkaEmitter(cfg.KafkaBrokers, cfg.KafkaPayoutTopic, logger)
		if err != nil {
			logger.WithError(err).Fatal("failed to create payout producer")
		}
		emitter = kafka
	}
	defer emitter.Close()

	game := services.NewGameService(txRunner, players, claims, holder, locks, hub, collector, logger)
	admin := services.NewAdminService(txRunner, configStore, holder, claims, players, admins, audit, locks, hub, collector, logger, cfg.AdminBootstrapHash, middleware.Roles)
	settlement := services.NewSettlementService(txRunner, rounds, claims, audit, holder, emitter, collector, logger, loc)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if _, err := admin.RefreshConfig(ctx); err != nil {
		logger.WithError(err).Fatal("failed to load economy config")
	}
	collector.ConfigVersion(holder.Current().Version)

	scheduler := jobs.NewScheduler(loc, admin, settlement, settlement, logger)
	err = scheduler.Start(ctx, jobs.Specs{
		ConfigRefresh: cfg.ConfigRefreshSpec,
		RoundOpen:     cfg.RoundOpenSpec,
		PayoutResend:  cfg.PayoutResendSpec,
	})
	if err != nil {
		logger.WithError(err).Fatal("failed to start scheduler")
	}
	defer scheduler.Stop()

	handler := handlers.New(*cfg, game, admin, settlement, admins, hub, collector, logger)
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.WithFields(logrus.Fields{"addr": server.Addr, "config_version": holder.Current().Version}).Info("idlemine API listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("server error")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("shutdown error")
	}
}
