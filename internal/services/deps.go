package services

import (
	"context"
	"errors"
	"time"

	"idlemine/internal/economy"
	"idlemine/internal/models"
	"idlemine/internal/store"
	"idlemine/internal/websocket"

	"github.com/shopspring/decimal"
)

type PlayerStore interface {
	Ensure(ctx context.Context, tx store.Execer, playerID string, starterFuel decimal.Decimal) (bool, error)
	GetForUpdate(ctx context.Context, tx store.Tx, playerID string) (*models.Player, error)
	Save(ctx context.Context, tx store.Execer, player *models.Player) error
}

type ClaimStore interface {
	Create(ctx context.Context, tx store.Execer, claim *models.CashoutClaim) error
	Get(ctx context.Context, claimID string) (*models.CashoutClaim, error)
	GetForUpdate(ctx context.Context, tx store.Getter, claimID string) (*models.CashoutClaim, error)
	Resolve(ctx context.Context, tx store.Execer, claim *models.CashoutClaim) error
	LockPendingUpTo(ctx context.Context, tx store.Selecter, cutoff time.Time) ([]models.CashoutClaim, error)
	List(ctx context.Context, statuses []string, limit, offset int) ([]models.CashoutClaim, error)
	ListByPlayer(ctx context.Context, playerID string, limit, offset int) ([]models.CashoutClaim, error)
}

type RoundStore interface {
	Create(ctx context.Context, tx store.Execer, round *models.Round) (bool, error)
	GetByDate(ctx context.Context, q store.Getter, date time.Time) (*models.Round, error)
	Get(ctx context.Context, roundID string) (*models.Round, error)
	GetForUpdate(ctx context.Context, tx store.Getter, roundID string) (*models.Round, error)
	Update(ctx context.Context, tx store.Execer, round *models.Round) error
	TakeCarry(ctx context.Context, tx store.Tx, roundID string) (int64, error)
	InsertPayouts(ctx context.Context, tx store.Execer, records []models.PayoutRecord) error
	ListUnemitted(ctx context.Context, limit int) ([]models.PayoutRecord, error)
	MarkEmitted(ctx context.Context, ids []string, at time.Time) error
}

type ConfigStore interface {
	Latest(ctx context.Context) (*economy.Config, error)
	LatestForUpdate(ctx context.Context, tx store.Getter) (*economy.Config, error)
	Insert(ctx context.Context, tx store.Getter, cfg *economy.Config, createdBy string) (*economy.Config, error)
}

type AdminStore interface {
	HasAnyAdmin(ctx context.Context, tx store.Tx) (bool, error)
	CreateAdmin(ctx context.Context, tx store.Execer, userID string, isSuper bool, createdBy *string) error
	GrantRole(ctx context.Context, tx store.Execer, adminUserID, role string) error
}

type AuditStore interface {
	Log(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID string, data any) error
	List(ctx context.Context, limit, offset int) ([]models.AuditEntry, error)
}

type LedgerHub interface {
	BroadcastLedger(playerID string, update websocket.LedgerUpdate)
}

// errorCode labels an outcome for the operations counter.
func errorCode(err error) string {
	if err == nil {
		return "OK"
	}
	var domainErr *models.Error
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return "INTERNAL"
}
