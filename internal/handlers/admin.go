package handlers

import (
	"net/http"
	"strings"

	"idlemine/internal/middleware"
	"idlemine/internal/models"
	"idlemine/internal/validator"

	"github.com/go-chi/chi/v5"
)

type bootstrapRequest struct {
	Secret string `json:"secret"`
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

type openRoundRequest struct {
	Date string `json:"date"`
}

type settleRequest struct {
	Revenue string `json:"revenue"`
}

func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.admin.GetConfig())
}

// Bootstrap promotes the caller to super admin when no admin exists yet.
func (h *Handler) Bootstrap(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.playerID(w, r)
	if !ok {
		return
	}
	var req bootstrapRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if strings.TrimSpace(req.Secret) == "" {
		h.fail(w, r, models.ErrValidation.WithMessage("secret is required"))
		return
	}
	if err := h.admin.Bootstrap(r.Context(), userID, req.Secret); err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{"user_id": userID, "is_super": true})
}

func (h *Handler) AdminMe(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	_, isSuper, err := h.admins.IsAdmin(r.Context(), userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	roles, err := h.admins.Roles(r.Context(), userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"user_id": userID, "is_super": isSuper, "roles": roles})
}

// SetConfig applies a partial JSON document over the current config.
func (h *Handler) SetConfig(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.UserIDFromContext(r.Context())
	patch, err := readBody(w, r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	cfg, err := h.admin.SetConfig(r.Context(), actor, patch)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, cfg)
}

func (h *Handler) ListClaims(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit, offset, err := validator.ParsePage(query.Get("limit"), query.Get("offset"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	claims, err := h.admin.ListClaims(r.Context(), query.Get("status"), limit, offset)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"claims": claims, "limit": limit, "offset": offset})
}

func (h *Handler) RejectClaim(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.UserIDFromContext(r.Context())
	claimID := chi.URLParam(r, "id")
	if err := validator.ValidateID("claim id", claimID); err != nil {
		h.fail(w, r, err)
		return
	}
	var req rejectRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := validator.ValidateReason(req.Reason); err != nil {
		h.fail(w, r, err)
		return
	}
	claim, err := h.admin.RejectClaim(r.Context(), actor, claimID, strings.TrimSpace(req.Reason))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, claim)
}

func (h *Handler) ListAudit(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit, offset, err := validator.ParsePage(query.Get("limit"), query.Get("offset"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	entries, err := h.admin.ListAudit(r.Context(), limit, offset)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"entries": entries, "limit": limit, "offset": offset})
}

func (h *Handler) OpenRound(w http.ResponseWriter, r *http.Request) {
	var req openRoundRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	loc, err := h.cfg.Location()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	date, err := validator.ParseDate(req.Date, loc)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	round, err := h.settlement.OpenRound(r.Context(), date)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, round)
}

func (h *Handler) GetRound(w http.ResponseWriter, r *http.Request) {
	roundID := chi.URLParam(r, "id")
	if err := validator.ValidateID("round id", roundID); err != nil {
		h.fail(w, r, err)
		return
	}
	round, err := h.settlement.GetRound(r.Context(), roundID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, round)
}

func (h *Handler) SettleRound(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.UserIDFromContext(r.Context())
	roundID := chi.URLParam(r, "id")
	if err := validator.ValidateID("round id", roundID); err != nil {
		h.fail(w, r, err)
		return
	}
	var req settleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	revenue, err := validator.ParseRevenue(req.Revenue)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	round, err := h.settlement.SettleRound(r.Context(), actor, roundID, revenue)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, round)
}
