// Package cashout turns diamonds into pending claims against the next
// settlement round.
package cashout

import (
	"time"

	"idlemine/internal/economy"
	"idlemine/internal/ledger"
	"idlemine/internal/models"
	"idlemine/internal/money"

	"github.com/shopspring/decimal"
)

var (
	ErrDisabled        = models.ErrDisabled.WithMessage("cashout is disabled")
	ErrOnCooldown      = models.ErrOnCooldown
	ErrBelowMinimum    = models.ErrBelowMinimum
	ErrClaimNotPending = models.ErrConflict.WithMessage("claim is not pending")
)

// Request checks, in order: enabled, amount shape, cooldown, minimum,
// balance. On success the amount is debited and held by the new claim.
func Request(player *models.Player, amount decimal.Decimal, cfg *economy.Config, now time.Time, claimID string) (*models.CashoutClaim, error) {
	if !cfg.Cashout.Enabled {
		return nil, ErrDisabled
	}
	if !amount.IsPositive() {
		return nil, models.ErrValidation.WithMessage("amount must be positive")
	}
	if !amount.Equal(money.Floor(amount)) {
		return nil, models.ErrValidation.WithMessage("amount has too many decimal places")
	}
	if player.CashoutCooldownUntil != nil && now.Before(*player.CashoutCooldownUntil) {
		return nil, ErrOnCooldown.WithMessage("cashout available after %s", player.CashoutCooldownUntil.UTC().Format(time.RFC3339))
	}
	if amount.LessThan(cfg.Cashout.MinimumDiamondsRequired) {
		return nil, ErrBelowMinimum.WithMessage("minimum cashout is %s diamonds", money.FormatGame(cfg.Cashout.MinimumDiamondsRequired))
	}
	if err := ledger.DebitDiamonds(player, amount); err != nil {
		return nil, err
	}
	until := now.Add(cfg.CashoutCooldown())
	player.CashoutCooldownUntil = &until
	return &models.CashoutClaim{
		ID:        claimID,
		PlayerID:  player.ID,
		Amount:    amount,
		Status:    models.ClaimPending,
		CreatedAt: now,
	}, nil
}

// Reject refunds a pending claim. The player's cooldown is left as is.
func Reject(player *models.Player, claim *models.CashoutClaim, reason string, now time.Time) error {
	if claim.Status != models.ClaimPending {
		return ErrClaimNotPending
	}
	if claim.PlayerID != player.ID {
		return models.ErrValidation.WithMessage("claim belongs to another player")
	}
	ledger.CreditDiamonds(player, claim.Amount)
	claim.Status = models.ClaimRejected
	claim.RejectReason = &reason
	claim.ResolvedAt = &now
	return nil
}
