package handlers

import (
	"net/http"

	"idlemine/internal/middleware"
	"idlemine/internal/models"
	"idlemine/internal/services"
	"idlemine/internal/validator"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type purchaseRequest struct {
	MachineType string `json:"machine_type"`
}

type sellRequest struct {
	Resource string `json:"resource"`
	Quantity int64  `json:"quantity"`
}

type amountRequest struct {
	Amount string `json:"amount"`
}

// playerResponse is a snapshot plus the operation-specific result fields.
type playerResponse struct {
	services.Snapshot
	Machine     *models.Machine      `json:"machine,omitempty"`
	Claim       *models.CashoutClaim `json:"claim,omitempty"`
	UpgradeCost *decimal.Decimal     `json:"upgrade_cost,omitempty"`
	FuelMoved   *decimal.Decimal     `json:"fuel_moved,omitempty"`
	FuelGained  *decimal.Decimal     `json:"fuel_gained,omitempty"`
}

func (h *Handler) playerID(w http.ResponseWriter, r *http.Request) (string, bool) {
	playerID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
		return "", false
	}
	return playerID, true
}

func (h *Handler) GetPlayer(w http.ResponseWriter, r *http.Request) {
	playerID, ok := h.playerID(w, r)
	if !ok {
		return
	}
	snapshot, err := h.game.GetPlayer(r.Context(), playerID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, playerResponse{Snapshot: snapshot})
}

func (h *Handler) ProcessMachines(w http.ResponseWriter, r *http.Request) {
	playerID, ok := h.playerID(w, r)
	if !ok {
		return
	}
	snapshot, err := h.game.ProcessMachines(r.Context(), playerID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, playerResponse{Snapshot: snapshot})
}

func (h *Handler) PurchaseMachine(w http.ResponseWriter, r *http.Request) {
	playerID, ok := h.playerID(w, r)
	if !ok {
		return
	}
	var req purchaseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	machineType, err := validator.ParseMachineType(req.MachineType)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	snapshot, machine, err := h.game.PurchaseMachine(r.Context(), playerID, machineType)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, playerResponse{Snapshot: snapshot, Machine: machine})
}

func (h *Handler) UpgradeMachine(w http.ResponseWriter, r *http.Request) {
	playerID, ok := h.playerID(w, r)
	if !ok {
		return
	}
	machineID := chi.URLParam(r, "id")
	if err := validator.ValidateID("machine id", machineID); err != nil {
		h.fail(w, r, err)
		return
	}
	snapshot, cost, err := h.game.UpgradeMachine(r.Context(), playerID, machineID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, playerResponse{Snapshot: snapshot, UpgradeCost: &cost})
}

func (h *Handler) RefuelMachine(w http.ResponseWriter, r *http.Request) {
	playerID, ok := h.playerID(w, r)
	if !ok {
		return
	}
	machineID := chi.URLParam(r, "id")
	if err := validator.ValidateID("machine id", machineID); err != nil {
		h.fail(w, r, err)
		return
	}
	snapshot, moved, err := h.game.RefuelMachine(r.Context(), playerID, machineID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, playerResponse{Snapshot: snapshot, FuelMoved: &moved})
}

func (h *Handler) SellMinerals(w http.ResponseWriter, r *http.Request) {
	playerID, ok := h.playerID(w, r)
	if !ok {
		return
	}
	var req sellRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	resource, err := validator.ParseResource(req.Resource)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := validator.ValidateQuantity(req.Quantity); err != nil {
		h.fail(w, r, err)
		return
	}
	snapshot, fuel, err := h.game.SellMinerals(r.Context(), playerID, resource, req.Quantity)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, playerResponse{Snapshot: snapshot, FuelGained: &fuel})
}

func (h *Handler) ExchangeDiamonds(w http.ResponseWriter, r *http.Request) {
	playerID, ok := h.playerID(w, r)
	if !ok {
		return
	}
	var req amountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	amount, err := validator.ParseGameAmount("amount", req.Amount)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	snapshot, fuel, err := h.game.ExchangeDiamonds(r.Context(), playerID, amount)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, playerResponse{Snapshot: snapshot, FuelGained: &fuel})
}

func (h *Handler) RequestCashout(w http.ResponseWriter, r *http.Request) {
	playerID, ok := h.playerID(w, r)
	if !ok {
		return
	}
	var req amountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	amount, err := validator.ParseGameAmount("amount", req.Amount)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	snapshot, claim, err := h.game.RequestCashout(r.Context(), playerID, amount)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, playerResponse{Snapshot: snapshot, Claim: claim})
}

func (h *Handler) PlayerClaims(w http.ResponseWriter, r *http.Request) {
	playerID, ok := h.playerID(w, r)
	if !ok {
		return
	}
	query := r.URL.Query()
	limit, offset, err := validator.ParsePage(query.Get("limit"), query.Get("offset"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	claims, err := h.game.ListClaims(r.Context(), playerID, limit, offset)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"claims": claims, "limit": limit, "offset": offset})
}

// WSLedger upgrades to a websocket that receives the caller's ledger
// snapshots after every mutation.
func (h *Handler) WSLedger(w http.ResponseWriter, r *http.Request) {
	playerID, ok := h.playerID(w, r)
	if !ok {
		return
	}
	h.stream.ServeWS(w, r, playerID)
}
