package handlers

import (
	"net/http"

	"idlemine/internal/config"
	"idlemine/internal/metrics"
	"idlemine/internal/middleware"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"
)

type Handler struct {
	cfg        config.Config
	game       GameService
	admin      AdminService
	settlement SettlementService
	admins     AdminStore
	stream     LedgerStream
	metrics    *metrics.Collector
	logger     logrus.FieldLogger
}

func New(cfg config.Config, game GameService, admin AdminService, settlement SettlementService, admins AdminStore, stream LedgerStream, collector *metrics.Collector, logger logrus.FieldLogger) *Handler {
	return &Handler{
		cfg:        cfg,
		game:       game,
		admin:      admin,
		settlement: settlement,
		admins:     admins,
		stream:     stream,
		metrics:    collector,
		logger:     logger,
	}
}

func (h *Handler) Routes() http.Handler {
	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.Recoverer)
	router.Use(middleware.RequestLogger(h.logger))
	if h.metrics != nil {
		router.Use(h.metrics.Middleware)
	}
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   h.cfg.AllowedOriginList(),
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if h.metrics != nil {
		router.Handle("/metrics", h.metrics.Handler())
	}
	router.Get("/config", h.GetConfig)
	router.With(middleware.Auth(h.cfg.JWTSecret)).Get("/ws/ledger", h.WSLedger)

	router.Route("/player", func(r chi.Router) {
		r.Use(middleware.Auth(h.cfg.JWTSecret))
		r.Get("/", h.GetPlayer)
		r.Post("/process", h.ProcessMachines)
		r.Post("/machines", h.PurchaseMachine)
		r.Post("/machines/{id}/upgrade", h.UpgradeMachine)
		r.Post("/machines/{id}/refuel", h.RefuelMachine)
		r.Post("/minerals/sell", h.SellMinerals)
		r.Post("/diamonds/exchange", h.ExchangeDiamonds)
		r.Post("/cashout", h.RequestCashout)
		r.Get("/claims", h.PlayerClaims)
	})

	router.Route("/admin", func(r chi.Router) {
		r.Use(middleware.Auth(h.cfg.JWTSecret))
		r.Post("/bootstrap", h.Bootstrap)
		r.With(middleware.RequireAdmin(h.admins, "")).Get("/me", h.AdminMe)
		r.With(middleware.RequireAdmin(h.admins, middleware.RoleEditConfig)).Put("/config", h.SetConfig)
		r.With(middleware.RequireAdmin(h.admins, middleware.RoleReviewClaims)).Get("/claims", h.ListClaims)
		r.With(middleware.RequireAdmin(h.admins, middleware.RoleReviewClaims)).Post("/claims/{id}/reject", h.RejectClaim)
		r.With(middleware.RequireAdmin(h.admins, middleware.RoleReviewClaims)).Get("/audit", h.ListAudit)
		r.With(middleware.RequireAdmin(h.admins, middleware.RoleSettleRounds)).Post("/rounds", h.OpenRound)
		r.With(middleware.RequireAdmin(h.admins, middleware.RoleSettleRounds)).Get("/rounds/{id}", h.GetRound)
		r.With(middleware.RequireAdmin(h.admins, middleware.RoleSettleRounds)).Post("/rounds/{id}/settle", h.SettleRound)
	})
	return router
}
