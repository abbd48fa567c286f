package handlers

import (
	"context"
	"net/http"
	"time"

	"idlemine/internal/economy"
	"idlemine/internal/models"
	"idlemine/internal/services"

	"github.com/shopspring/decimal"
)

type GameService interface {
	GetPlayer(ctx context.Context, playerID string) (services.Snapshot, error)
	ProcessMachines(ctx context.Context, playerID string) (services.Snapshot, error)
	PurchaseMachine(ctx context.Context, playerID string, machineType models.MachineType) (services.Snapshot, *models.Machine, error)
	UpgradeMachine(ctx context.Context, playerID, machineID string) (services.Snapshot, decimal.Decimal, error)
	RefuelMachine(ctx context.Context, playerID, machineID string) (services.Snapshot, decimal.Decimal, error)
	SellMinerals(ctx context.Context, playerID string, resource models.Resource, qty int64) (services.Snapshot, decimal.Decimal, error)
	ExchangeDiamonds(ctx context.Context, playerID string, amount decimal.Decimal) (services.Snapshot, decimal.Decimal, error)
	RequestCashout(ctx context.Context, playerID string, amount decimal.Decimal) (services.Snapshot, *models.CashoutClaim, error)
	ListClaims(ctx context.Context, playerID string, limit, offset int) ([]models.CashoutClaim, error)
}

type AdminService interface {
	GetConfig() *economy.Config
	SetConfig(ctx context.Context, actor string, patch []byte) (*economy.Config, error)
	RejectClaim(ctx context.Context, actor, claimID, reason string) (*models.CashoutClaim, error)
	ListClaims(ctx context.Context, status string, limit, offset int) ([]models.CashoutClaim, error)
	ListAudit(ctx context.Context, limit, offset int) ([]models.AuditEntry, error)
	Bootstrap(ctx context.Context, userID, secret string) error
}

type SettlementService interface {
	OpenRound(ctx context.Context, date time.Time) (*models.Round, error)
	SettleRound(ctx context.Context, actor, roundID string, revenueMinor int64) (*models.Round, error)
	GetRound(ctx context.Context, roundID string) (*models.Round, error)
}

type AdminStore interface {
	IsAdmin(ctx context.Context, userID string) (bool, bool, error)
	HasRole(ctx context.Context, userID, role string) (bool, error)
	Roles(ctx context.Context, userID string) ([]string, error)
}

type LedgerStream interface {
	ServeWS(w http.ResponseWriter, r *http.Request, playerID string)
}
