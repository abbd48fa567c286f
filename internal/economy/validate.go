package economy

import (
	"fmt"

	"idlemine/internal/models"
	"idlemine/internal/money"

	"github.com/shopspring/decimal"
)

// ValidationError names the first config field that violates an invariant.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return &models.Error{Code: models.CodeValidation, Message: e.Error()}
}

var one = decimal.NewFromInt(1)

func (c *Config) Validate() error {
	if err := nonNegative("pricing.diamond_fuel_rate", c.Pricing.DiamondFuelRate); err != nil {
		return err
	}

	for machineType := range c.Machines {
		if !machineType.Valid() {
			return &ValidationError{Field: "machines." + string(machineType), Reason: "unknown machine type"}
		}
	}
	for _, machineType := range models.MachineTypes {
		prefix := "machines." + string(machineType)
		spec, ok := c.Machines[machineType]
		if !ok {
			return &ValidationError{Field: prefix, Reason: "missing"}
		}
		if err := positive(prefix+".purchase_cost", spec.PurchaseCost); err != nil {
			return err
		}
		if err := positive(prefix+".base_ticks_per_hour", spec.BaseTicksPerHour); err != nil {
			return err
		}
		if err := nonNegative(prefix+".base_fuel_per_tick", spec.BaseFuelPerTick); err != nil {
			return err
		}
		if err := positive(prefix+".tank_capacity", spec.TankCapacity); err != nil {
			return err
		}
		if spec.MaxLevel < 1 {
			return &ValidationError{Field: prefix + ".max_level", Reason: "must be at least 1"}
		}
	}

	switch c.Rewards.DropMode {
	case DropExpected, DropSampled:
	default:
		return &ValidationError{Field: "rewards.drop_mode", Reason: `must be "expected" or "sampled"`}
	}
	for resource := range c.Rewards.Minerals {
		if !resource.Valid() {
			return &ValidationError{Field: "rewards.minerals." + string(resource), Reason: "unknown resource"}
		}
	}
	for _, resource := range models.Resources {
		prefix := "rewards.minerals." + string(resource)
		spec, ok := c.Rewards.Minerals[resource]
		if !ok {
			return &ValidationError{Field: prefix, Reason: "missing"}
		}
		if err := probability(prefix+".drop_rate", spec.DropRate); err != nil {
			return err
		}
		if err := nonNegative(prefix+".value", spec.Value); err != nil {
			return err
		}
	}
	if err := probability("rewards.diamond_drop_rate", c.Rewards.DiamondDropRate); err != nil {
		return err
	}
	if err := nonNegative("rewards.diamonds_per_drop", c.Rewards.DiamondsPerDrop); err != nil {
		return err
	}

	if err := nonNegative("diamonds.daily_cap_per_user", c.Diamonds.DailyCapPerUser); err != nil {
		return err
	}
	if err := positive("diamonds.excess_diamond_oil_value", c.Diamonds.ExcessDiamondOilValue); err != nil {
		return err
	}
	if c.Diamonds.ResetPeriodHours <= 0 {
		return &ValidationError{Field: "diamonds.reset_period_hours", Reason: "must be positive"}
	}

	multipliers := []struct {
		field string
		value decimal.Decimal
	}{
		{"progression.speed_multiplier", c.Progression.SpeedMultiplier},
		{"progression.fuel_burn_multiplier", c.Progression.FuelBurnMultiplier},
		{"progression.tank_capacity_multiplier", c.Progression.TankCapacityMultiplier},
		{"progression.upgrade_cost_multiplier", c.Progression.UpgradeCostMultiplier},
	}
	for _, m := range multipliers {
		if err := positive(m.field, m.value); err != nil {
			return err
		}
	}
	if !c.Progression.UpgradeCostMultiplier.GreaterThan(one) {
		return &ValidationError{Field: "progression.upgrade_cost_multiplier", Reason: "must be greater than 1"}
	}
	for _, machineType := range models.MachineTypes {
		if err := c.checkUpgradeCurve(machineType); err != nil {
			return err
		}
	}

	if err := nonNegative("cashout.minimum_diamonds_required", c.Cashout.MinimumDiamondsRequired); err != nil {
		return err
	}
	if c.Cashout.CooldownDays < 0 {
		return &ValidationError{Field: "cashout.cooldown_days", Reason: "must not be negative"}
	}
	if err := probability("treasury.payout_percentage", c.Treasury.PayoutPercentage); err != nil {
		return err
	}
	return nonNegative("starter.fuel", c.Starter.Fuel)
}

// checkUpgradeCurve requires the upgrade cost, after flooring to game
// precision, to rise at every level up to max_level.
func (c *Config) checkUpgradeCurve(machineType models.MachineType) error {
	spec := c.Machines[machineType]
	mult := c.Progression.UpgradeCostMultiplier
	prev := decimal.Zero
	factor := one
	for level := 1; level < spec.MaxLevel; level++ {
		factor = factor.Mul(mult)
		cost := money.Floor(spec.PurchaseCost.Mul(factor))
		if !cost.GreaterThan(prev) {
			return &ValidationError{
				Field:  "machines." + string(machineType) + ".purchase_cost",
				Reason: fmt.Sprintf("upgrade cost must rise at every level, level %d costs %s", level, cost.String()),
			}
		}
		prev = cost
	}
	return nil
}

func nonNegative(field string, value decimal.Decimal) error {
	if value.IsNegative() {
		return &ValidationError{Field: field, Reason: "must not be negative"}
	}
	return nil
}

func positive(field string, value decimal.Decimal) error {
	if !value.IsPositive() {
		return &ValidationError{Field: field, Reason: "must be positive"}
	}
	return nil
}

func probability(field string, value decimal.Decimal) error {
	if value.IsNegative() || value.GreaterThan(one) {
		return &ValidationError{Field: field, Reason: "must be within [0,1]"}
	}
	return nil
}
