package cashout

import (
	"errors"
	"testing"
	"time"

	"idlemine/internal/economy"
	"idlemine/internal/models"

	"github.com/shopspring/decimal"
)

var now = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func d(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}

func TestRequestCreatesPendingClaimAndCooldown(t *testing.T) {
	cfg := economy.Default()
	player := &models.Player{ID: "p-1", Diamonds: d("25")}
	claim, err := Request(player, d("12"), cfg, now, "c-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if claim.Status != models.ClaimPending || claim.RoundID != nil {
		t.Fatalf("unexpected claim: %+v", claim)
	}
	if !player.Diamonds.Equal(d("13")) {
		t.Fatalf("expected diamonds reserved, got %s", player.Diamonds)
	}
	if player.CashoutCooldownUntil == nil || !player.CashoutCooldownUntil.Equal(now.Add(7*24*time.Hour)) {
		t.Fatalf("unexpected cooldown: %v", player.CashoutCooldownUntil)
	}
}

func TestRequestCooldownRejectsRegardlessOfBalance(t *testing.T) {
	cfg := economy.Default()
	until := now.Add(time.Hour)
	player := &models.Player{ID: "p-1", Diamonds: d("1000000"), CashoutCooldownUntil: &until}
	if _, err := Request(player, d("50"), cfg, now, "c-1"); !errors.Is(err, models.ErrOnCooldown) {
		t.Fatalf("expected cooldown, got %v", err)
	}
	if !player.Diamonds.Equal(d("1000000")) {
		t.Fatalf("balance changed while on cooldown")
	}
	if _, err := Request(player, d("50"), cfg, until, "c-2"); err != nil {
		t.Fatalf("cooldown should end at its expiry: %v", err)
	}
}

func TestRequestCheckOrder(t *testing.T) {
	base := economy.Default()
	disabled, err := base.Merge([]byte(`{"cashout":{"enabled":false}}`))
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	until := now.Add(time.Hour)

	cases := []struct {
		name   string
		cfg    *economy.Config
		player models.Player
		amount string
		want   error
	}{
		{"disabled beats everything", disabled, models.Player{CashoutCooldownUntil: &until}, "0", models.ErrDisabled},
		{"validation before cooldown", base, models.Player{CashoutCooldownUntil: &until}, "-1", models.ErrValidation},
		{"cooldown before minimum", base, models.Player{CashoutCooldownUntil: &until}, "1", models.ErrOnCooldown},
		{"minimum before funds", base, models.Player{}, "1", models.ErrBelowMinimum},
		{"funds last", base, models.Player{Diamonds: d("5")}, "10", models.ErrInsufficientFunds},
	}
	for _, tc := range cases {
		player := tc.player
		if _, err := Request(&player, d(tc.amount), tc.cfg, now, "c"); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
}

func TestRejectRefundsAndKeepsCooldown(t *testing.T) {
	cfg := economy.Default()
	player := &models.Player{ID: "p-1", Diamonds: d("20")}
	claim, err := Request(player, d("20"), cfg, now, "c-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cooldown := *player.CashoutCooldownUntil

	if err := Reject(player, claim, "duplicate account", now.Add(time.Minute)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !player.Diamonds.Equal(d("20")) {
		t.Fatalf("expected refund, got %s", player.Diamonds)
	}
	if claim.Status != models.ClaimRejected || claim.RejectReason == nil || *claim.RejectReason != "duplicate account" {
		t.Fatalf("unexpected claim: %+v", claim)
	}
	if !player.CashoutCooldownUntil.Equal(cooldown) {
		t.Fatalf("cooldown must not reset on reject")
	}
	if err := Reject(player, claim, "again", now); !errors.Is(err, models.ErrConflict) {
		t.Fatalf("expected conflict on terminal claim, got %v", err)
	}
	if !player.Diamonds.Equal(d("20")) {
		t.Fatalf("double refund")
	}
}
