// Package economy holds the versioned, admin-editable game economy settings.
// A Config is immutable once loaded; updates produce a new value that is
// swapped in through a Holder.
package economy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"idlemine/internal/models"
	"idlemine/internal/money"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/shopspring/decimal"
)

type DropMode string

const (
	DropExpected DropMode = "expected"
	DropSampled  DropMode = "sampled"
)

type Config struct {
	Version     int64                              `json:"version"`
	CreatedAt   time.Time                          `json:"created_at"`
	Pricing     Pricing                            `json:"pricing"`
	Machines    map[models.MachineType]MachineSpec `json:"machines"`
	Rewards     Rewards                            `json:"rewards"`
	Diamonds    DiamondPolicy                      `json:"diamonds"`
	Progression Progression                        `json:"progression"`
	Cashout     CashoutPolicy                      `json:"cashout"`
	Treasury    Treasury                           `json:"treasury"`
	Starter     Starter                            `json:"starter"`
}

type Pricing struct {
	// DiamondFuelRate is the fuel paid per diamond on exchange. Zero disables it.
	DiamondFuelRate decimal.Decimal `json:"diamond_fuel_rate"`
}

type MachineSpec struct {
	PurchaseCost     decimal.Decimal `json:"purchase_cost"`
	BaseTicksPerHour decimal.Decimal `json:"base_ticks_per_hour"`
	BaseFuelPerTick  decimal.Decimal `json:"base_fuel_per_tick"`
	TankCapacity     decimal.Decimal `json:"tank_capacity"`
	MaxLevel         int             `json:"max_level"`
}

type MineralSpec struct {
	DropRate decimal.Decimal `json:"drop_rate"`
	Value    decimal.Decimal `json:"value"`
}

type Rewards struct {
	DropMode        DropMode                        `json:"drop_mode"`
	Minerals        map[models.Resource]MineralSpec `json:"minerals"`
	DiamondDropRate decimal.Decimal                 `json:"diamond_drop_rate"`
	DiamondsPerDrop decimal.Decimal                 `json:"diamonds_per_drop"`
}

type DiamondPolicy struct {
	DailyCapPerUser       decimal.Decimal `json:"daily_cap_per_user"`
	ExcessDiamondOilValue decimal.Decimal `json:"excess_diamond_oil_value"`
	ResetPeriodHours      int             `json:"reset_period_hours"`
}

type Progression struct {
	SpeedMultiplier        decimal.Decimal `json:"speed_multiplier"`
	FuelBurnMultiplier     decimal.Decimal `json:"fuel_burn_multiplier"`
	TankCapacityMultiplier decimal.Decimal `json:"tank_capacity_multiplier"`
	UpgradeCostMultiplier  decimal.Decimal `json:"upgrade_cost_multiplier"`
}

type CashoutPolicy struct {
	Enabled                 bool            `json:"enabled"`
	MinimumDiamondsRequired decimal.Decimal `json:"minimum_diamonds_required"`
	CooldownDays            int             `json:"cooldown_days"`
}

type Treasury struct {
	PayoutPercentage decimal.Decimal `json:"payout_percentage"`
}

type Starter struct {
	Fuel decimal.Decimal `json:"fuel"`
}

// Load decodes and validates a full config document.
func Load(raw []byte) (*Config, error) {
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.DisallowUnknownFields()
	var cfg Config
	if err := decoder.Decode(&cfg); err != nil {
		return nil, &ValidationError{Field: "$", Reason: err.Error()}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Machine returns the spec for a machine type.
func (c *Config) Machine(machineType models.MachineType) (MachineSpec, bool) {
	spec, ok := c.Machines[machineType]
	return spec, ok
}

// LevelFactor is mult^(level-1); level 1 is always the base value.
func LevelFactor(mult decimal.Decimal, level int) decimal.Decimal {
	factor := decimal.NewFromInt(1)
	for i := 1; i < level; i++ {
		factor = factor.Mul(mult)
	}
	return factor
}

func (c *Config) TicksPerHour(machineType models.MachineType, level int) decimal.Decimal {
	spec := c.Machines[machineType]
	return spec.BaseTicksPerHour.Mul(LevelFactor(c.Progression.SpeedMultiplier, level))
}

func (c *Config) FuelPerTick(machineType models.MachineType, level int) decimal.Decimal {
	spec := c.Machines[machineType]
	return spec.BaseFuelPerTick.Mul(LevelFactor(c.Progression.FuelBurnMultiplier, level))
}

func (c *Config) TankCapacity(machineType models.MachineType, level int) decimal.Decimal {
	spec := c.Machines[machineType]
	return money.Floor(spec.TankCapacity.Mul(LevelFactor(c.Progression.TankCapacityMultiplier, level)))
}

func (c *Config) ResetPeriod() time.Duration {
	return time.Duration(c.Diamonds.ResetPeriodHours) * time.Hour
}

func (c *Config) CashoutCooldown() time.Duration {
	return time.Duration(c.Cashout.CooldownDays) * 24 * time.Hour
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	out := *c
	out.Machines = make(map[models.MachineType]MachineSpec, len(c.Machines))
	for machineType, spec := range c.Machines {
		out.Machines[machineType] = spec
	}
	out.Rewards.Minerals = make(map[models.Resource]MineralSpec, len(c.Rewards.Minerals))
	for resource, spec := range c.Rewards.Minerals {
		out.Rewards.Minerals[resource] = spec
	}
	return &out
}

// Merge applies a JSON merge patch (RFC 7386) to a copy of c and loads the
// result. Version and CreatedAt are carried from c; the store assigns new ones.
func (c *Config) Merge(patch []byte) (*Config, error) {
	trimmed := bytes.TrimSpace(patch)
	if !json.Valid(trimmed) {
		return nil, &ValidationError{Field: "$", Reason: "patch is not valid JSON"}
	}
	if trimmed[0] != '{' {
		return nil, &ValidationError{Field: "$", Reason: "patch must be a JSON object"}
	}
	base, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	merged, err := jsonpatch.MergePatch(base, trimmed)
	if err != nil {
		return nil, &ValidationError{Field: "$", Reason: err.Error()}
	}
	next, err := Load(merged)
	if err != nil {
		return nil, err
	}
	next.Version = c.Version
	next.CreatedAt = c.CreatedAt
	return next, nil
}
