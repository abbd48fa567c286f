package handlers

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"idlemine/internal/auth"
	"idlemine/internal/config"
	"idlemine/internal/economy"
	"idlemine/internal/logging"
	"idlemine/internal/models"
	"idlemine/internal/services"

	"github.com/shopspring/decimal"
)

type stubGameService struct {
	getPlayerFn      func(ctx context.Context, playerID string) (services.Snapshot, error)
	processFn        func(ctx context.Context, playerID string) (services.Snapshot, error)
	purchaseFn       func(ctx context.Context, playerID string, machineType models.MachineType) (services.Snapshot, *models.Machine, error)
	upgradeFn        func(ctx context.Context, playerID, machineID string) (services.Snapshot, decimal.Decimal, error)
	refuelFn         func(ctx context.Context, playerID, machineID string) (services.Snapshot, decimal.Decimal, error)
	sellFn           func(ctx context.Context, playerID string, resource models.Resource, qty int64) (services.Snapshot, decimal.Decimal, error)
	exchangeFn       func(ctx context.Context, playerID string, amount decimal.Decimal) (services.Snapshot, decimal.Decimal, error)
	requestCashoutFn func(ctx context.Context, playerID string, amount decimal.Decimal) (services.Snapshot, *models.CashoutClaim, error)
	listClaimsFn     func(ctx context.Context, playerID string, limit, offset int) ([]models.CashoutClaim, error)
}

func testSnapshot(playerID string) services.Snapshot {
	return services.Snapshot{Player: &models.Player{ID: playerID, Fuel: decimal.NewFromInt(100), Minerals: map[models.Resource]int64{}}}
}

func (s stubGameService) GetPlayer(ctx context.Context, playerID string) (services.Snapshot, error) {
	if s.getPlayerFn == nil {
		return testSnapshot(playerID), nil
	}
	return s.getPlayerFn(ctx, playerID)
}

func (s stubGameService) ProcessMachines(ctx context.Context, playerID string) (services.Snapshot, error) {
	if s.processFn == nil {
		return testSnapshot(playerID), nil
	}
	return s.processFn(ctx, playerID)
}

func (s stubGameService) PurchaseMachine(ctx context.Context, playerID string, machineType models.MachineType) (services.Snapshot, *models.Machine, error) {
	if s.purchaseFn == nil {
		return testSnapshot(playerID), &models.Machine{ID: "m-1", PlayerID: playerID, Type: machineType, Level: 1}, nil
	}
	return s.purchaseFn(ctx, playerID, machineType)
}

func (s stubGameService) UpgradeMachine(ctx context.Context, playerID, machineID string) (services.Snapshot, decimal.Decimal, error) {
	if s.upgradeFn == nil {
		return testSnapshot(playerID), decimal.Zero, nil
	}
	return s.upgradeFn(ctx, playerID, machineID)
}

func (s stubGameService) RefuelMachine(ctx context.Context, playerID, machineID string) (services.Snapshot, decimal.Decimal, error) {
	if s.refuelFn == nil {
		return testSnapshot(playerID), decimal.Zero, nil
	}
	return s.refuelFn(ctx, playerID, machineID)
}

func (s stubGameService) SellMinerals(ctx context.Context, playerID string, resource models.Resource, qty int64) (services.Snapshot, decimal.Decimal, error) {
	if s.sellFn == nil {
		return testSnapshot(playerID), decimal.Zero, nil
	}
	return s.sellFn(ctx, playerID, resource, qty)
}

func (s stubGameService) ExchangeDiamonds(ctx context.Context, playerID string, amount decimal.Decimal) (services.Snapshot, decimal.Decimal, error) {
	if s.exchangeFn == nil {
		return testSnapshot(playerID), decimal.Zero, nil
	}
	return s.exchangeFn(ctx, playerID, amount)
}

func (s stubGameService) RequestCashout(ctx context.Context, playerID string, amount decimal.Decimal) (services.Snapshot, *models.CashoutClaim, error) {
	if s.requestCashoutFn == nil {
		return testSnapshot(playerID), &models.CashoutClaim{ID: "c-1", PlayerID: playerID, Amount: amount, Status: models.ClaimPending}, nil
	}
	return s.requestCashoutFn(ctx, playerID, amount)
}

func (s stubGameService) ListClaims(ctx context.Context, playerID string, limit, offset int) ([]models.CashoutClaim, error) {
	if s.listClaimsFn == nil {
		return []models.CashoutClaim{}, nil
	}
	return s.listClaimsFn(ctx, playerID, limit, offset)
}

type stubAdminService struct {
	setConfigFn   func(ctx context.Context, actor string, patch []byte) (*economy.Config, error)
	rejectClaimFn func(ctx context.Context, actor, claimID, reason string) (*models.CashoutClaim, error)
	listClaimsFn  func(ctx context.Context, status string, limit, offset int) ([]models.CashoutClaim, error)
	listAuditFn   func(ctx context.Context, limit, offset int) ([]models.AuditEntry, error)
	bootstrapFn   func(ctx context.Context, userID, secret string) error
}

func (s stubAdminService) GetConfig() *economy.Config {
	return economy.Default()
}

func (s stubAdminService) SetConfig(ctx context.Context, actor string, patch []byte) (*economy.Config, error) {
	if s.setConfigFn == nil {
		return economy.Default(), nil
	}
	return s.setConfigFn(ctx, actor, patch)
}

func (s stubAdminService) RejectClaim(ctx context.Context, actor, claimID, reason string) (*models.CashoutClaim, error) {
	if s.rejectClaimFn == nil {
		return &models.CashoutClaim{ID: claimID, Status: models.ClaimRejected, RejectReason: &reason}, nil
	}
	return s.rejectClaimFn(ctx, actor, claimID, reason)
}

func (s stubAdminService) ListClaims(ctx context.Context, status string, limit, offset int) ([]models.CashoutClaim, error) {
	if s.listClaimsFn == nil {
		return []models.CashoutClaim{}, nil
	}
	return s.listClaimsFn(ctx, status, limit, offset)
}

func (s stubAdminService) ListAudit(ctx context.Context, limit, offset int) ([]models.AuditEntry, error) {
	if s.listAuditFn == nil {
		return []models.AuditEntry{}, nil
	}
	return s.listAuditFn(ctx, limit, offset)
}

func (s stubAdminService) Bootstrap(ctx context.Context, userID, secret string) error {
	if s.bootstrapFn == nil {
		return nil
	}
	return s.bootstrapFn(ctx, userID, secret)
}

type stubSettlementService struct {
	openRoundFn   func(ctx context.Context, date time.Time) (*models.Round, error)
	settleRoundFn func(ctx context.Context, actor, roundID string, revenueMinor int64) (*models.Round, error)
	getRoundFn    func(ctx context.Context, roundID string) (*models.Round, error)
}

func (s stubSettlementService) OpenRound(ctx context.Context, date time.Time) (*models.Round, error) {
	if s.openRoundFn == nil {
		return &models.Round{ID: "r-1", RoundDate: date, Status: models.RoundOpen}, nil
	}
	return s.openRoundFn(ctx, date)
}

func (s stubSettlementService) SettleRound(ctx context.Context, actor, roundID string, revenueMinor int64) (*models.Round, error) {
	if s.settleRoundFn == nil {
		return &models.Round{ID: roundID, Status: models.RoundClosed, RevenueMinor: revenueMinor}, nil
	}
	return s.settleRoundFn(ctx, actor, roundID, revenueMinor)
}

func (s stubSettlementService) GetRound(ctx context.Context, roundID string) (*models.Round, error) {
	if s.getRoundFn == nil {
		return nil, models.ErrNotFound
	}
	return s.getRoundFn(ctx, roundID)
}

// stubAdminStore treats every user in admins as an admin holding roles.
type stubAdminStore struct {
	admins map[string][]string
	supers map[string]bool
	err    error
}

func (s stubAdminStore) IsAdmin(_ context.Context, userID string) (bool, bool, error) {
	if s.err != nil {
		return false, false, s.err
	}
	_, ok := s.admins[userID]
	return ok || s.supers[userID], s.supers[userID], nil
}

func (s stubAdminStore) HasRole(_ context.Context, userID, role string) (bool, error) {
	for _, granted := range s.admins[userID] {
		if granted == role {
			return true, nil
		}
	}
	return false, nil
}

func (s stubAdminStore) Roles(_ context.Context, userID string) ([]string, error) {
	return s.admins[userID], nil
}

type stubStream struct {
	served []string
}

func (s *stubStream) ServeWS(w http.ResponseWriter, _ *http.Request, playerID string) {
	s.served = append(s.served, playerID)
	w.WriteHeader(http.StatusSwitchingProtocols)
}

type testDeps struct {
	game       GameService
	admin      AdminService
	settlement SettlementService
	admins     AdminStore
	stream     LedgerStream
}

func newTestHandler(deps testDeps) *Handler {
	cfg := config.Config{
		AppEnv:         "test",
		Port:           "0",
		JWTSecret:      "secret",
		AllowedOrigins: "*",
		Timezone:       "UTC",
	}
	if deps.game == nil {
		deps.game = stubGameService{}
	}
	if deps.admin == nil {
		deps.admin = stubAdminService{}
	}
	if deps.settlement == nil {
		deps.settlement = stubSettlementService{}
	}
	if deps.admins == nil {
		deps.admins = stubAdminStore{}
	}
	if deps.stream == nil {
		deps.stream = &stubStream{}
	}
	return New(cfg, deps.game, deps.admin, deps.settlement, deps.admins, deps.stream, nil, logging.Discard())
}

// serve sends a request through the full router. An empty userID sends no
// bearer token.
func serve(t *testing.T, h *Handler, method, path, body, userID string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		token, err := auth.GenerateToken("secret", userID, time.Minute)
		if err != nil {
			t.Fatalf("failed to generate token: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.Routes().ServeHTTP(rr, req)
	return rr
}
