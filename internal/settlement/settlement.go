// Package settlement splits a round's cash pool across pending claims.
package settlement

import (
	"time"

	"idlemine/internal/models"
	"idlemine/internal/money"

	"github.com/shopspring/decimal"
)

var (
	ErrRoundNotOpen        = models.ErrConflict.WithMessage("round is not open")
	ErrRoundNotSettling    = models.ErrConflict.WithMessage("round is not settling")
	ErrClaimAlreadySettled = models.ErrConflict.WithMessage("claim already resolved")
	ErrNegativeRevenue     = models.ErrValidation.WithMessage("revenue must not be negative")
)

type Allocation struct {
	ClaimID     string          `json:"claim_id"`
	PlayerID    string          `json:"player_id"`
	Claimed     decimal.Decimal `json:"claimed"`
	PayoutMinor int64           `json:"payout_minor"`
}

type Outcome struct {
	PoolMinor     int64           `json:"pool_minor"`
	PaidMinor     int64           `json:"paid_minor"`
	ResidualMinor int64           `json:"residual_minor"`
	TotalClaimed  decimal.Decimal `json:"total_claimed"`
	Allocations   []Allocation    `json:"allocations"`
}

// Pool is floor(revenue * percentage) plus what the previous round left over.
func Pool(revenueMinor int64, percentage decimal.Decimal, carryInMinor int64) int64 {
	return money.FloorMinor(revenueMinor, percentage) + carryInMinor
}

// Distribute pays each claim floor(pool * amount / total). The sum never
// exceeds the pool; the remainder is the residual.
func Distribute(poolMinor int64, claims []models.CashoutClaim) (Outcome, error) {
	outcome := Outcome{PoolMinor: poolMinor, TotalClaimed: decimal.Zero}
	for _, claim := range claims {
		if claim.Status != models.ClaimPending {
			return Outcome{}, ErrClaimAlreadySettled.WithMessage("claim %s is %s", claim.ID, claim.Status)
		}
		outcome.TotalClaimed = outcome.TotalClaimed.Add(claim.Amount)
	}
	if !outcome.TotalClaimed.IsPositive() || poolMinor <= 0 {
		for _, claim := range claims {
			outcome.Allocations = append(outcome.Allocations, Allocation{ClaimID: claim.ID, PlayerID: claim.PlayerID, Claimed: claim.Amount})
		}
		outcome.ResidualMinor = poolMinor
		return outcome, nil
	}

	pool := decimal.NewFromInt(poolMinor)
	for _, claim := range claims {
		share, _ := pool.Mul(claim.Amount).QuoRem(outcome.TotalClaimed, 0)
		payout := share.IntPart()
		outcome.Allocations = append(outcome.Allocations, Allocation{
			ClaimID:     claim.ID,
			PlayerID:    claim.PlayerID,
			Claimed:     claim.Amount,
			PayoutMinor: payout,
		})
		outcome.PaidMinor += payout
	}
	outcome.ResidualMinor = poolMinor - outcome.PaidMinor
	return outcome, nil
}

// BeginSettling moves an open round to settling and fixes the claim cutoff.
func BeginSettling(round *models.Round, cutoff time.Time) error {
	if round.Status != models.RoundOpen {
		return ErrRoundNotOpen
	}
	round.Status = models.RoundSettling
	round.CutoffAt = &cutoff
	return nil
}

// Close records the outcome on a settling round.
func Close(round *models.Round, revenueMinor, carryInMinor int64, outcome Outcome, now time.Time) error {
	if round.Status != models.RoundSettling {
		return ErrRoundNotSettling
	}
	round.Status = models.RoundClosed
	round.RevenueMinor = revenueMinor
	round.CarryInMinor = carryInMinor
	round.PoolMinor = outcome.PoolMinor
	round.PaidMinor = outcome.PaidMinor
	round.ResidualMinor = outcome.ResidualMinor
	round.TotalClaimed = outcome.TotalClaimed
	round.ClosedAt = &now
	return nil
}

// Records turns allocations into payout records and marks claims settled.
// claims must be the slice passed to Distribute.
func Records(round *models.Round, claims []models.CashoutClaim, outcome Outcome, newID func() string, now time.Time) []models.PayoutRecord {
	records := make([]models.PayoutRecord, 0, len(outcome.Allocations))
	for i, alloc := range outcome.Allocations {
		payout := alloc.PayoutMinor
		roundID := round.ID
		claims[i].Status = models.ClaimSettled
		claims[i].RoundID = &roundID
		claims[i].PayoutMinor = &payout
		claims[i].ResolvedAt = &now
		records = append(records, models.PayoutRecord{
			ID:          newID(),
			RoundID:     round.ID,
			ClaimID:     alloc.ClaimID,
			PlayerID:    alloc.PlayerID,
			Claimed:     alloc.Claimed,
			PayoutMinor: payout,
			CreatedAt:   now,
		})
	}
	return records
}
