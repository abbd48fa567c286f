// Package accrual computes what a machine produced between its last
// processed timestamp and now.
package accrual

import (
	"math/rand"
	"time"

	"idlemine/internal/economy"
	"idlemine/internal/models"
	"idlemine/internal/money"

	"github.com/shopspring/decimal"
)

var ErrClockSkew = models.ErrClockSkew

var hourNanos = decimal.NewFromInt(int64(time.Hour))

type Delta struct {
	Ticks            decimal.Decimal
	FuelConsumed     decimal.Decimal
	Minerals         map[models.Resource]int64
	Diamonds         decimal.Decimal
	ConsumedInterval time.Duration
}

func (d Delta) IsZero() bool {
	if !d.Ticks.IsZero() || !d.Diamonds.IsZero() {
		return false
	}
	for _, qty := range d.Minerals {
		if qty != 0 {
			return false
		}
	}
	return true
}

type Result struct {
	Machine models.Machine
	Delta   Delta
}

// Accrue settles one machine up to now. The input machine is not modified.
// rng is only consulted in sampled drop mode and may be nil otherwise.
func Accrue(machine models.Machine, cfg *economy.Config, now time.Time, rng *rand.Rand) (Result, error) {
	if now.Before(machine.LastProcessedAt) {
		return Result{Machine: machine}, ErrClockSkew
	}
	out := machine.Clone()
	delta := Delta{Minerals: map[models.Resource]int64{}}

	elapsed := now.Sub(machine.LastProcessedAt)
	if elapsed == 0 {
		return Result{Machine: out, Delta: delta}, nil
	}
	if !out.IsActive || !out.Fuel.IsPositive() {
		if !out.Fuel.IsPositive() {
			out.IsActive = false
			out.FuelCarry = decimal.Zero
		}
		out.LastProcessedAt = now
		return Result{Machine: out, Delta: delta}, nil
	}
	if _, ok := cfg.Machine(out.Type); !ok {
		return Result{Machine: machine}, models.ErrValidation.WithMessage("unknown machine type %q", out.Type)
	}

	ticksPerHour := cfg.TicksPerHour(out.Type, out.Level)
	fuelPerTick := cfg.FuelPerTick(out.Type, out.Level)
	elapsedHours := decimal.NewFromInt(elapsed.Nanoseconds()).Div(hourNanos)
	ticks := elapsedHours.Mul(ticksPerHour)

	// FuelCarry is burn already owed below game precision.
	fuelLimited := false
	if fuelPerTick.IsPositive() {
		fuelTicks := out.Fuel.Sub(out.FuelCarry).Div(fuelPerTick)
		if fuelTicks.LessThan(ticks) {
			ticks = fuelTicks
			fuelLimited = true
		}
	}

	if fuelLimited {
		delta.FuelConsumed = out.Fuel
		out.FuelCarry = decimal.Zero
		interval := time.Duration(ticks.Div(ticksPerHour).Mul(hourNanos).Floor().IntPart())
		if interval > elapsed {
			interval = elapsed
		}
		delta.ConsumedInterval = interval
		out.LastProcessedAt = machine.LastProcessedAt.Add(interval)
	} else {
		owed := out.FuelCarry.Add(ticks.Mul(fuelPerTick))
		consumed := money.Floor(owed)
		if consumed.GreaterThan(out.Fuel) {
			consumed = out.Fuel
		}
		delta.FuelConsumed = consumed
		out.FuelCarry = owed.Sub(consumed)
		delta.ConsumedInterval = elapsed
		out.LastProcessedAt = now
	}
	delta.Ticks = ticks
	out.Fuel = out.Fuel.Sub(delta.FuelConsumed)
	if !out.Fuel.IsPositive() {
		out.Fuel = decimal.Zero
		out.FuelCarry = decimal.Zero
		out.IsActive = false
	}

	sampled := cfg.Rewards.DropMode == economy.DropSampled && rng != nil
	if out.MineralCarry == nil {
		out.MineralCarry = map[models.Resource]decimal.Decimal{}
	}
	for _, resource := range models.Resources {
		rate := cfg.Rewards.Minerals[resource].DropRate
		carry := out.MineralCarry[resource]
		var whole int64
		if sampled {
			whole, carry = sampleUnits(rng, ticks, rate, carry)
		} else {
			whole, carry = expectedUnits(ticks, rate, carry)
		}
		if whole > 0 {
			delta.Minerals[resource] = whole
		}
		if carry.IsZero() {
			delete(out.MineralCarry, resource)
		} else {
			out.MineralCarry[resource] = carry
		}
	}

	perDrop := cfg.Rewards.DiamondsPerDrop
	var earned decimal.Decimal
	if sampled {
		earned = sampleDiamonds(rng, ticks, cfg.Rewards.DiamondDropRate, perDrop)
	} else {
		earned = ticks.Mul(cfg.Rewards.DiamondDropRate).Mul(perDrop)
	}
	delta.Diamonds, out.DiamondCarry = payGame(out.DiamondCarry.Add(earned))
	return Result{Machine: out, Delta: delta}, nil
}

// expectedUnits pays the whole part of carry + ticks*rate and keeps the rest.
func expectedUnits(ticks, rate, carry decimal.Decimal) (int64, decimal.Decimal) {
	total := carry.Add(ticks.Mul(rate))
	whole := total.Floor()
	return whole.IntPart(), total.Sub(whole)
}

// sampleUnits draws one Bernoulli(rate) per whole tick; the fractional tick
// contributes its expected value to the carry.
func sampleUnits(rng *rand.Rand, ticks, rate, carry decimal.Decimal) (int64, decimal.Decimal) {
	wholeTicks := ticks.Floor()
	p := rate.InexactFloat64()
	var hits int64
	for i := int64(0); i < wholeTicks.IntPart(); i++ {
		if rng.Float64() < p {
			hits++
		}
	}
	tail, rest := expectedUnits(ticks.Sub(wholeTicks), rate, carry)
	return hits + tail, rest
}

// sampleDiamonds returns unrounded diamonds; the caller applies the carry.
func sampleDiamonds(rng *rand.Rand, ticks, rate, perDrop decimal.Decimal) decimal.Decimal {
	wholeTicks := ticks.Floor()
	p := rate.InexactFloat64()
	var drops int64
	for i := int64(0); i < wholeTicks.IntPart(); i++ {
		if rng.Float64() < p {
			drops++
		}
	}
	tail := ticks.Sub(wholeTicks).Mul(rate)
	return decimal.NewFromInt(drops).Add(tail).Mul(perDrop)
}

// payGame splits total into the part representable at game precision and
// the remainder carried to the next accrual.
func payGame(total decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	paid := money.Floor(total)
	return paid, total.Sub(paid)
}
