package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"idlemine/internal/models"

	"github.com/shopspring/decimal"
)

type PlayerStore struct {
	db DB
}

type playerRow struct {
	ID                   string          `db:"id"`
	Fuel                 decimal.Decimal `db:"fuel"`
	Diamonds             decimal.Decimal `db:"diamonds"`
	Coal                 int64           `db:"coal"`
	Iron                 int64           `db:"iron"`
	Gold                 int64           `db:"gold"`
	DailyDiamonds        decimal.Decimal `db:"daily_diamonds"`
	DailyResetAt         *time.Time      `db:"daily_reset_at"`
	CashoutCooldownUntil *time.Time      `db:"cashout_cooldown_until"`
	CreatedAt            time.Time       `db:"created_at"`
	UpdatedAt            time.Time       `db:"updated_at"`
}

type machineRow struct {
	ID              string          `db:"id"`
	PlayerID        string          `db:"player_id"`
	Type            string          `db:"machine_type"`
	Level           int             `db:"level"`
	Fuel            decimal.Decimal `db:"fuel"`
	IsActive        bool            `db:"is_active"`
	LastProcessedAt time.Time       `db:"last_processed_at"`
	MineralCarry    []byte          `db:"mineral_carry"`
	DiamondCarry    decimal.Decimal `db:"diamond_carry"`
	FuelCarry       decimal.Decimal `db:"fuel_carry"`
	CreatedAt       time.Time       `db:"created_at"`
}

const playerColumns = `id, fuel, diamonds, coal, iron, gold, daily_diamonds, daily_reset_at, cashout_cooldown_until, created_at, updated_at`

const machineColumns = `id, player_id, machine_type, level, fuel, is_active, last_processed_at, mineral_carry, diamond_carry, fuel_carry, created_at`

func NewPlayerStore(db DB) *PlayerStore {
	return &PlayerStore{db: db}
}

// Ensure inserts the player with a starter fuel balance if it does not exist
// and reports whether a row was created.
func (s *PlayerStore) Ensure(ctx context.Context, tx Execer, playerID string, starterFuel decimal.Decimal) (bool, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO players (id, fuel)
		VALUES ($1, $2)
		ON CONFLICT (id) DO NOTHING
	`, playerID, starterFuel)
	if err != nil {
		return false, fmt.Errorf("ensure player %s: %w", playerID, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// GetForUpdate locks the player row and its machines for the rest of tx.
func (s *PlayerStore) GetForUpdate(ctx context.Context, tx Tx, playerID string) (*models.Player, error) {
	var row playerRow
	err := tx.GetContext(ctx, &row, `
		SELECT `+playerColumns+`
		FROM players
		WHERE id = $1
		FOR UPDATE
	`, playerID)
	if err != nil {
		return nil, notFound(err, "player", playerID)
	}
	var machines []machineRow
	err = tx.SelectContext(ctx, &machines, `
		SELECT `+machineColumns+`
		FROM machines
		WHERE player_id = $1
		ORDER BY created_at, id
		FOR UPDATE
	`, playerID)
	if err != nil {
		return nil, fmt.Errorf("lock machines for %s: %w", playerID, err)
	}
	return toPlayer(row, machines)
}

// Save writes balances and upserts every machine of the snapshot.
func (s *PlayerStore) Save(ctx context.Context, tx Execer, player *models.Player) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE players
		SET fuel = $1,
		    diamonds = $2,
		    coal = $3,
		    iron = $4,
		    gold = $5,
		    daily_diamonds = $6,
		    daily_reset_at = $7,
		    cashout_cooldown_until = $8,
		    updated_at = NOW()
		WHERE id = $9
	`, player.Fuel, player.Diamonds,
		player.Minerals[models.ResourceCoal], player.Minerals[models.ResourceIron], player.Minerals[models.ResourceGold],
		player.DailyDiamonds, player.DailyResetAt, player.CashoutCooldownUntil, player.ID)
	if err != nil {
		return fmt.Errorf("save player %s: %w", player.ID, err)
	}
	for i := range player.Machines {
		if err := s.saveMachine(ctx, tx, &player.Machines[i]); err != nil {
			return err
		}
	}
	return nil
}

func (s *PlayerStore) saveMachine(ctx context.Context, tx Execer, machine *models.Machine) error {
	carry, err := encodeCarry(machine.MineralCarry)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO machines (`+machineColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE
		SET level = EXCLUDED.level,
		    fuel = EXCLUDED.fuel,
		    is_active = EXCLUDED.is_active,
		    last_processed_at = EXCLUDED.last_processed_at,
		    mineral_carry = EXCLUDED.mineral_carry,
		    diamond_carry = EXCLUDED.diamond_carry,
		    fuel_carry = EXCLUDED.fuel_carry
	`, machine.ID, machine.PlayerID, string(machine.Type), machine.Level, machine.Fuel, machine.IsActive,
		machine.LastProcessedAt, carry, machine.DiamondCarry, machine.FuelCarry, machine.CreatedAt)
	if err != nil {
		return fmt.Errorf("save machine %s: %w", machine.ID, err)
	}
	return nil
}

func toPlayer(row playerRow, machines []machineRow) (*models.Player, error) {
	player := &models.Player{
		ID:       row.ID,
		Fuel:     row.Fuel,
		Diamonds: row.Diamonds,
		Minerals: map[models.Resource]int64{
			models.ResourceCoal: row.Coal,
			models.ResourceIron: row.Iron,
			models.ResourceGold: row.Gold,
		},
		DailyDiamonds:        row.DailyDiamonds,
		DailyResetAt:         row.DailyResetAt,
		CashoutCooldownUntil: row.CashoutCooldownUntil,
		Machines:             make([]models.Machine, 0, len(machines)),
		CreatedAt:            row.CreatedAt,
		UpdatedAt:            row.UpdatedAt,
	}
	for _, m := range machines {
		carry, err := decodeCarry(m.MineralCarry)
		if err != nil {
			return nil, fmt.Errorf("machine %s carry: %w", m.ID, err)
		}
		player.Machines = append(player.Machines, models.Machine{
			ID:              m.ID,
			PlayerID:        m.PlayerID,
			Type:            models.MachineType(m.Type),
			Level:           m.Level,
			Fuel:            m.Fuel,
			IsActive:        m.IsActive,
			LastProcessedAt: m.LastProcessedAt,
			MineralCarry:    carry,
			DiamondCarry:    m.DiamondCarry,
			FuelCarry:       m.FuelCarry,
			CreatedAt:       m.CreatedAt,
		})
	}
	return player, nil
}

func encodeCarry(carry map[models.Resource]decimal.Decimal) (string, error) {
	if len(carry) == 0 {
		return "{}", nil
	}
	raw, err := json.Marshal(carry)
	if err != nil {
		return "", fmt.Errorf("encode carry: %w", err)
	}
	return string(raw), nil
}

func decodeCarry(raw []byte) (map[models.Resource]decimal.Decimal, error) {
	carry := map[models.Resource]decimal.Decimal{}
	if len(raw) == 0 {
		return carry, nil
	}
	if err := json.Unmarshal(raw, &carry); err != nil {
		return nil, err
	}
	return carry, nil
}
