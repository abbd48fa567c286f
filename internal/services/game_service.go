package services

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"idlemine/internal/accrual"
	"idlemine/internal/cashout"
	"idlemine/internal/db"
	"idlemine/internal/economy"
	"idlemine/internal/keylock"
	"idlemine/internal/ledger"
	"idlemine/internal/metrics"
	"idlemine/internal/models"
	"idlemine/internal/money"
	"idlemine/internal/store"
	"idlemine/internal/upgrade"
	"idlemine/internal/websocket"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Snapshot is a player's state after an operation committed.
type Snapshot struct {
	Player        *models.Player      `json:"player"`
	Credited      ledger.CreditResult `json:"credited"`
	ConfigVersion int64               `json:"config_version"`
}

type GameService struct {
	txRunner db.TxRunner
	players  PlayerStore
	claims   ClaimStore
	configs  *economy.Holder
	locks    *keylock.Map
	hub      LedgerHub
	metrics  *metrics.Collector
	logger   logrus.FieldLogger

	now    func() time.Time
	newID  func() string
	newRNG func() *rand.Rand
}

func NewGameService(txRunner db.TxRunner, players PlayerStore, claims ClaimStore, configs *economy.Holder, locks *keylock.Map, hub LedgerHub, collector *metrics.Collector, logger logrus.FieldLogger) *GameService {
	return &GameService{
		txRunner: txRunner,
		players:  players,
		claims:   claims,
		configs:  configs,
		locks:    locks,
		hub:      hub,
		metrics:  collector,
		logger:   logger,
		now:      time.Now,
		newID:    uuid.NewString,
		newRNG:   seededRNG,
	}
}

// seededRNG returns a source owned by a single accrual call.
func seededRNG() *rand.Rand {
	return rand.New(rand.NewSource(rand.Int63()))
}

// mutation runs against a locked, fully accrued player inside the
// transaction. Returning an error rolls back the accrual as well.
type mutation func(tx store.Tx, player *models.Player, cfg *economy.Config, now time.Time) error

func (s *GameService) mutate(ctx context.Context, playerID, event string, op mutation) (Snapshot, error) {
	if playerID == "" {
		return Snapshot{}, models.ErrValidation.WithMessage("player id is required")
	}
	unlock := s.locks.Lock(playerID)
	defer unlock()

	cfg := s.configs.Current()
	now := s.now()
	var snapshot Snapshot
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := s.players.Ensure(ctx, tx, playerID, cfg.Starter.Fuel); err != nil {
			return err
		}
		player, err := s.players.GetForUpdate(ctx, tx, playerID)
		if err != nil {
			return err
		}
		credited, err := s.accrueAll(player, cfg, now)
		if err != nil {
			return err
		}
		if op != nil {
			if err := op(tx, player, cfg, now); err != nil {
				return err
			}
		}
		if err := s.players.Save(ctx, tx, player); err != nil {
			return err
		}
		snapshot = Snapshot{Player: player, Credited: credited, ConfigVersion: cfg.Version}
		return nil
	})
	s.metrics.Operation(event, errorCode(err))
	if err != nil {
		return Snapshot{}, err
	}
	s.metrics.DiamondsConverted(snapshot.Credited.DiamondsConverted.InexactFloat64())
	s.broadcast(event, snapshot)
	return snapshot, nil
}

// accrueAll settles every machine to now. A machine whose timestamp is ahead
// of now is skipped and left untouched.
func (s *GameService) accrueAll(player *models.Player, cfg *economy.Config, now time.Time) (ledger.CreditResult, error) {
	var rng *rand.Rand
	if cfg.Rewards.DropMode == economy.DropSampled {
		rng = s.newRNG()
	}

	total := ledger.CreditResult{DiamondsCredited: decimal.Zero, DiamondsConverted: decimal.Zero, FuelFromExcess: decimal.Zero}
	for i := range player.Machines {
		result, err := accrual.Accrue(player.Machines[i], cfg, now, rng)
		if errors.Is(err, accrual.ErrClockSkew) {
			s.metrics.ClockSkew()
			s.logger.WithFields(logrus.Fields{
				"player_id":         player.ID,
				"machine_id":        player.Machines[i].ID,
				"last_processed_at": player.Machines[i].LastProcessedAt,
				"now":               now,
			}).Warn("clock skew, machine left untouched")
			continue
		}
		if err != nil {
			return ledger.CreditResult{}, err
		}
		player.Machines[i] = result.Machine
		total.Add(ledger.ApplyAccrual(player, result.Delta, cfg, now))
	}
	return total, nil
}

func (s *GameService) broadcast(event string, snapshot Snapshot) {
	if s.hub == nil || snapshot.Player == nil {
		return
	}
	s.hub.BroadcastLedger(snapshot.Player.ID, ledgerUpdate(event, snapshot))
}

func ledgerUpdate(event string, snapshot Snapshot) websocket.LedgerUpdate {
	player := snapshot.Player
	minerals := make(map[string]int64, len(models.Resources))
	for _, resource := range models.Resources {
		minerals[string(resource)] = player.Minerals[resource]
	}
	return websocket.LedgerUpdate{
		Event:         event,
		Fuel:          money.FormatGame(player.Fuel),
		Diamonds:      money.FormatGame(player.Diamonds),
		DailyDiamonds: money.FormatGame(player.DailyDiamonds),
		Minerals:      minerals,
		Machines:      len(player.Machines),
		ConfigVersion: snapshot.ConfigVersion,
	}
}

// GetPlayer returns the player, provisioning it with starter fuel on first
// access. Machines are accrued so the view is current.
func (s *GameService) GetPlayer(ctx context.Context, playerID string) (Snapshot, error) {
	return s.mutate(ctx, playerID, "get_player", nil)
}

func (s *GameService) ProcessMachines(ctx context.Context, playerID string) (Snapshot, error) {
	return s.mutate(ctx, playerID, "process", nil)
}

func (s *GameService) PurchaseMachine(ctx context.Context, playerID string, machineType models.MachineType) (Snapshot, *models.Machine, error) {
	var bought models.Machine
	snapshot, err := s.mutate(ctx, playerID, "purchase", func(_ store.Tx, player *models.Player, cfg *economy.Config, now time.Time) error {
		machine, err := upgrade.Purchase(player, machineType, cfg, now, s.newID())
		if err != nil {
			return err
		}
		bought = *machine
		return nil
	})
	if err != nil {
		return Snapshot{}, nil, err
	}
	return snapshot, &bought, nil
}

func (s *GameService) UpgradeMachine(ctx context.Context, playerID, machineID string) (Snapshot, decimal.Decimal, error) {
	var cost decimal.Decimal
	snapshot, err := s.mutate(ctx, playerID, "upgrade", func(_ store.Tx, player *models.Player, cfg *economy.Config, _ time.Time) error {
		var err error
		cost, err = upgrade.Upgrade(player, machineID, cfg)
		return err
	})
	return snapshot, cost, err
}

func (s *GameService) RefuelMachine(ctx context.Context, playerID, machineID string) (Snapshot, decimal.Decimal, error) {
	var moved decimal.Decimal
	snapshot, err := s.mutate(ctx, playerID, "refuel", func(_ store.Tx, player *models.Player, cfg *economy.Config, _ time.Time) error {
		var err error
		moved, err = upgrade.Refuel(player, machineID, cfg)
		return err
	})
	return snapshot, moved, err
}

func (s *GameService) SellMinerals(ctx context.Context, playerID string, resource models.Resource, qty int64) (Snapshot, decimal.Decimal, error) {
	var fuel decimal.Decimal
	snapshot, err := s.mutate(ctx, playerID, "sell_minerals", func(_ store.Tx, player *models.Player, cfg *economy.Config, _ time.Time) error {
		var err error
		fuel, err = ledger.SellMinerals(player, resource, qty, cfg)
		return err
	})
	return snapshot, fuel, err
}

func (s *GameService) ExchangeDiamonds(ctx context.Context, playerID string, amount decimal.Decimal) (Snapshot, decimal.Decimal, error) {
	var fuel decimal.Decimal
	snapshot, err := s.mutate(ctx, playerID, "exchange_diamonds", func(_ store.Tx, player *models.Player, cfg *economy.Config, _ time.Time) error {
		var err error
		fuel, err = ledger.ExchangeDiamonds(player, amount, cfg)
		return err
	})
	return snapshot, fuel, err
}

// RequestCashout debits diamonds into a pending claim that the next round
// settlement pays out.
func (s *GameService) RequestCashout(ctx context.Context, playerID string, amount decimal.Decimal) (Snapshot, *models.CashoutClaim, error) {
	var created models.CashoutClaim
	snapshot, err := s.mutate(ctx, playerID, "cashout", func(tx store.Tx, player *models.Player, cfg *economy.Config, now time.Time) error {
		claim, err := cashout.Request(player, amount, cfg, now, s.newID())
		if err != nil {
			return err
		}
		if err := s.claims.Create(ctx, tx, claim); err != nil {
			return err
		}
		created = *claim
		return nil
	})
	if err != nil {
		return Snapshot{}, nil, err
	}
	return snapshot, &created, nil
}

// ListClaims returns the player's cashout claims without accruing or
// provisioning anything.
func (s *GameService) ListClaims(ctx context.Context, playerID string, limit, offset int) ([]models.CashoutClaim, error) {
	if playerID == "" {
		return nil, models.ErrValidation.WithMessage("player id is required")
	}
	return s.claims.ListByPlayer(ctx, playerID, limit, offset)
}
