// Package ledger applies balance changes to a player snapshot. Callers hold
// the player's lock; nothing here is safe for concurrent use on one player.
package ledger

import (
	"time"

	"idlemine/internal/accrual"
	"idlemine/internal/economy"
	"idlemine/internal/models"
	"idlemine/internal/money"

	"github.com/shopspring/decimal"
)

var ErrInsufficientFunds = models.ErrInsufficientFunds

type CreditResult struct {
	DiamondsCredited  decimal.Decimal `json:"diamonds_credited"`
	DiamondsConverted decimal.Decimal `json:"diamonds_converted"`
	FuelFromExcess    decimal.Decimal `json:"fuel_from_excess"`
}

func (r *CreditResult) Add(other CreditResult) {
	r.DiamondsCredited = r.DiamondsCredited.Add(other.DiamondsCredited)
	r.DiamondsConverted = r.DiamondsConverted.Add(other.DiamondsConverted)
	r.FuelFromExcess = r.FuelFromExcess.Add(other.FuelFromExcess)
}

// ApplyAccrual credits minerals and diamonds from one machine delta.
// Diamonds above the daily cap are converted to fuel.
func ApplyAccrual(player *models.Player, delta accrual.Delta, cfg *economy.Config, now time.Time) CreditResult {
	for resource, qty := range delta.Minerals {
		CreditMinerals(player, resource, qty)
	}

	rollWindow(player, now)
	result := CreditResult{DiamondsCredited: decimal.Zero, DiamondsConverted: decimal.Zero, FuelFromExcess: decimal.Zero}
	if !delta.Diamonds.IsPositive() {
		return result
	}
	if player.DailyResetAt == nil {
		resetAt := now.Add(cfg.ResetPeriod())
		player.DailyResetAt = &resetAt
		player.DailyDiamonds = decimal.Zero
	}

	room := cfg.Diamonds.DailyCapPerUser.Sub(player.DailyDiamonds)
	if room.IsNegative() {
		room = decimal.Zero
	}
	credited := decimal.Min(delta.Diamonds, room)
	excess := delta.Diamonds.Sub(credited)

	player.Diamonds = player.Diamonds.Add(credited)
	player.DailyDiamonds = player.DailyDiamonds.Add(credited)
	result.DiamondsCredited = credited
	if excess.IsPositive() {
		fuel := money.Floor(excess.Mul(cfg.Diamonds.ExcessDiamondOilValue))
		player.Fuel = player.Fuel.Add(fuel)
		result.DiamondsConverted = excess
		result.FuelFromExcess = fuel
	}
	return result
}

// rollWindow clears an expired daily window. The next earn anchors a new one.
func rollWindow(player *models.Player, now time.Time) {
	if player.DailyResetAt == nil || now.Before(*player.DailyResetAt) {
		return
	}
	player.DailyResetAt = nil
	player.DailyDiamonds = decimal.Zero
}

func DebitFuel(player *models.Player, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return models.ErrValidation.WithMessage("fuel amount must not be negative")
	}
	if player.Fuel.LessThan(amount) {
		return ErrInsufficientFunds.WithMessage("need %s fuel, have %s", money.FormatGame(amount), money.FormatGame(player.Fuel))
	}
	player.Fuel = player.Fuel.Sub(amount)
	return nil
}

func CreditFuel(player *models.Player, amount decimal.Decimal) {
	player.Fuel = player.Fuel.Add(amount)
}

func DebitDiamonds(player *models.Player, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return models.ErrValidation.WithMessage("diamond amount must not be negative")
	}
	if player.Diamonds.LessThan(amount) {
		return ErrInsufficientFunds.WithMessage("need %s diamonds, have %s", money.FormatGame(amount), money.FormatGame(player.Diamonds))
	}
	player.Diamonds = player.Diamonds.Sub(amount)
	return nil
}

func CreditDiamonds(player *models.Player, amount decimal.Decimal) {
	player.Diamonds = player.Diamonds.Add(amount)
}

func DebitMinerals(player *models.Player, resource models.Resource, qty int64) error {
	if qty < 0 {
		return models.ErrValidation.WithMessage("quantity must not be negative")
	}
	if player.Minerals[resource] < qty {
		return ErrInsufficientFunds.WithMessage("need %d %s, have %d", qty, resource, player.Minerals[resource])
	}
	player.Minerals[resource] -= qty
	return nil
}

func CreditMinerals(player *models.Player, resource models.Resource, qty int64) {
	if qty == 0 {
		return
	}
	if player.Minerals == nil {
		player.Minerals = map[models.Resource]int64{}
	}
	player.Minerals[resource] += qty
}

// SellMinerals converts minerals to fuel at the configured value.
func SellMinerals(player *models.Player, resource models.Resource, qty int64, cfg *economy.Config) (decimal.Decimal, error) {
	if !resource.Valid() {
		return decimal.Zero, models.ErrValidation.WithMessage("unknown resource %q", resource)
	}
	if qty <= 0 {
		return decimal.Zero, models.ErrValidation.WithMessage("quantity must be positive")
	}
	if err := DebitMinerals(player, resource, qty); err != nil {
		return decimal.Zero, err
	}
	fuel := money.Floor(decimal.NewFromInt(qty).Mul(cfg.Rewards.Minerals[resource].Value))
	CreditFuel(player, fuel)
	return fuel, nil
}

// ExchangeDiamonds converts diamonds to fuel at pricing.diamond_fuel_rate.
func ExchangeDiamonds(player *models.Player, amount decimal.Decimal, cfg *economy.Config) (decimal.Decimal, error) {
	rate := cfg.Pricing.DiamondFuelRate
	if !rate.IsPositive() {
		return decimal.Zero, models.ErrDisabled.WithMessage("diamond exchange is disabled")
	}
	if !amount.IsPositive() {
		return decimal.Zero, models.ErrValidation.WithMessage("amount must be positive")
	}
	if err := DebitDiamonds(player, amount); err != nil {
		return decimal.Zero, err
	}
	fuel := money.Floor(amount.Mul(rate))
	CreditFuel(player, fuel)
	return fuel, nil
}
