// Package upgrade prices and applies machine purchases, level upgrades and
// refuels against a player's fuel balance.
package upgrade

import (
	"time"

	"idlemine/internal/economy"
	"idlemine/internal/ledger"
	"idlemine/internal/models"
	"idlemine/internal/money"

	"github.com/shopspring/decimal"
)

var (
	ErrMaxLevel           = models.ErrMaxLevel
	ErrMachineNotFound    = models.ErrNotFound.WithMessage("machine not found")
	ErrUnknownMachineType = models.ErrValidation.WithMessage("unknown machine type")
	ErrTankFull           = models.ErrConflict.WithMessage("tank is already full")
)

// Cost is the price of upgrading from level to level+1:
// purchase_cost * upgrade_cost_multiplier^level.
func Cost(cfg *economy.Config, machineType models.MachineType, level int) (decimal.Decimal, error) {
	spec, ok := cfg.Machine(machineType)
	if !ok {
		return decimal.Zero, ErrUnknownMachineType
	}
	factor := economy.LevelFactor(cfg.Progression.UpgradeCostMultiplier, level+1)
	return money.Floor(spec.PurchaseCost.Mul(factor)), nil
}

// Upgrade raises a machine one level and debits the cost. Fuel already in the
// tank is kept; only the capacity grows.
func Upgrade(player *models.Player, machineID string, cfg *economy.Config) (decimal.Decimal, error) {
	machine, ok := player.Machine(machineID)
	if !ok {
		return decimal.Zero, ErrMachineNotFound
	}
	spec, ok := cfg.Machine(machine.Type)
	if !ok {
		return decimal.Zero, ErrUnknownMachineType
	}
	if machine.Level >= spec.MaxLevel {
		return decimal.Zero, ErrMaxLevel
	}
	cost, err := Cost(cfg, machine.Type, machine.Level)
	if err != nil {
		return decimal.Zero, err
	}
	if err := ledger.DebitFuel(player, cost); err != nil {
		return decimal.Zero, err
	}
	machine.Level++
	return cost, nil
}

// Purchase buys a level 1 machine with a full tank, active from now.
func Purchase(player *models.Player, machineType models.MachineType, cfg *economy.Config, now time.Time, newID string) (*models.Machine, error) {
	spec, ok := cfg.Machine(machineType)
	if !ok || !machineType.Valid() {
		return nil, ErrUnknownMachineType
	}
	if err := ledger.DebitFuel(player, spec.PurchaseCost); err != nil {
		return nil, err
	}
	machine := models.Machine{
		ID:              newID,
		PlayerID:        player.ID,
		Type:            machineType,
		Level:           1,
		Fuel:            cfg.TankCapacity(machineType, 1),
		IsActive:        true,
		LastProcessedAt: now,
		MineralCarry:    map[models.Resource]decimal.Decimal{},
		CreatedAt:       now,
	}
	player.Machines = append(player.Machines, machine)
	return &player.Machines[len(player.Machines)-1], nil
}

// Refuel moves fuel from the player's balance into the tank, up to capacity,
// and reactivates the machine. The machine must already be accrued to now.
func Refuel(player *models.Player, machineID string, cfg *economy.Config) (decimal.Decimal, error) {
	machine, ok := player.Machine(machineID)
	if !ok {
		return decimal.Zero, ErrMachineNotFound
	}
	room := cfg.TankCapacity(machine.Type, machine.Level).Sub(machine.Fuel)
	if !room.IsPositive() {
		return decimal.Zero, ErrTankFull
	}
	if !player.Fuel.IsPositive() {
		return decimal.Zero, ledger.ErrInsufficientFunds.WithMessage("no fuel to transfer")
	}
	amount := decimal.Min(room, player.Fuel)
	if err := ledger.DebitFuel(player, amount); err != nil {
		return decimal.Zero, err
	}
	machine.Fuel = machine.Fuel.Add(amount)
	machine.IsActive = true
	return amount, nil
}
