package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type MachineType string

const (
	MachineDrill     MachineType = "drill"
	MachineExcavator MachineType = "excavator"
	MachineRefinery  MachineType = "refinery"
)

var MachineTypes = []MachineType{MachineDrill, MachineExcavator, MachineRefinery}

func (t MachineType) Valid() bool {
	for _, known := range MachineTypes {
		if t == known {
			return true
		}
	}
	return false
}

type Resource string

const (
	ResourceCoal Resource = "coal"
	ResourceIron Resource = "iron"
	ResourceGold Resource = "gold"
)

var Resources = []Resource{ResourceCoal, ResourceIron, ResourceGold}

func (r Resource) Valid() bool {
	for _, known := range Resources {
		if r == known {
			return true
		}
	}
	return false
}

type Machine struct {
	ID              string                       `db:"id" json:"id"`
	PlayerID        string                       `db:"player_id" json:"player_id"`
	Type            MachineType                  `db:"machine_type" json:"type"`
	Level           int                          `db:"level" json:"level"`
	Fuel            decimal.Decimal              `db:"fuel" json:"fuel"`
	IsActive        bool                         `db:"is_active" json:"is_active"`
	LastProcessedAt time.Time                    `db:"last_processed_at" json:"last_processed_at"`
	MineralCarry    map[Resource]decimal.Decimal `db:"-" json:"-"`
	DiamondCarry    decimal.Decimal              `db:"diamond_carry" json:"-"`
	FuelCarry       decimal.Decimal              `db:"fuel_carry" json:"-"`
	CreatedAt       time.Time                    `db:"created_at" json:"created_at"`
}

// Clone returns a deep copy so accrual never aliases the caller's carry map.
func (m Machine) Clone() Machine {
	out := m
	out.MineralCarry = make(map[Resource]decimal.Decimal, len(m.MineralCarry))
	for resource, carry := range m.MineralCarry {
		out.MineralCarry[resource] = carry
	}
	return out
}

type Player struct {
	ID                   string             `db:"id" json:"id"`
	Fuel                 decimal.Decimal    `db:"fuel" json:"fuel"`
	Diamonds             decimal.Decimal    `db:"diamonds" json:"diamonds"`
	Minerals             map[Resource]int64 `db:"-" json:"minerals"`
	DailyDiamonds        decimal.Decimal    `db:"daily_diamonds" json:"daily_diamonds"`
	DailyResetAt         *time.Time         `db:"daily_reset_at" json:"daily_reset_at,omitempty"`
	CashoutCooldownUntil *time.Time         `db:"cashout_cooldown_until" json:"cashout_cooldown_until,omitempty"`
	Machines             []Machine          `db:"-" json:"machines"`
	CreatedAt            time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time          `db:"updated_at" json:"updated_at"`
}

func (p *Player) Machine(machineID string) (*Machine, bool) {
	for i := range p.Machines {
		if p.Machines[i].ID == machineID {
			return &p.Machines[i], true
		}
	}
	return nil, false
}

type ClaimStatus string

const (
	ClaimPending  ClaimStatus = "pending"
	ClaimSettled  ClaimStatus = "settled"
	ClaimRejected ClaimStatus = "rejected"
)

type CashoutClaim struct {
	ID           string          `db:"id" json:"id"`
	PlayerID     string          `db:"player_id" json:"player_id"`
	Amount       decimal.Decimal `db:"amount" json:"amount"`
	Status       ClaimStatus     `db:"status" json:"status"`
	RoundID      *string         `db:"round_id" json:"round_id,omitempty"`
	PayoutMinor  *int64          `db:"payout_minor" json:"payout_minor,omitempty"`
	RejectReason *string         `db:"reject_reason" json:"reject_reason,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	ResolvedAt   *time.Time      `db:"resolved_at" json:"resolved_at,omitempty"`
}

type RoundStatus string

const (
	RoundOpen     RoundStatus = "open"
	RoundSettling RoundStatus = "settling"
	RoundClosed   RoundStatus = "closed"
)

type Round struct {
	ID            string          `db:"id" json:"id"`
	RoundDate     time.Time       `db:"round_date" json:"round_date"`
	Status        RoundStatus     `db:"status" json:"status"`
	RevenueMinor  int64           `db:"revenue_minor" json:"revenue_minor"`
	PoolMinor     int64           `db:"pool_minor" json:"pool_minor"`
	CarryInMinor  int64           `db:"carry_in_minor" json:"carry_in_minor"`
	PaidMinor     int64           `db:"paid_minor" json:"paid_minor"`
	ResidualMinor int64           `db:"residual_minor" json:"residual_minor"`
	TotalClaimed  decimal.Decimal `db:"total_claimed" json:"total_claimed"`
	CutoffAt      *time.Time      `db:"cutoff_at" json:"cutoff_at,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	ClosedAt      *time.Time      `db:"closed_at" json:"closed_at,omitempty"`
	Payouts       []PayoutRecord  `db:"-" json:"payouts,omitempty"`
}

type PayoutRecord struct {
	ID          string          `db:"id" json:"id"`
	RoundID     string          `db:"round_id" json:"round_id"`
	ClaimID     string          `db:"claim_id" json:"claim_id"`
	PlayerID    string          `db:"player_id" json:"player_id"`
	Claimed     decimal.Decimal `db:"claimed" json:"claimed"`
	PayoutMinor int64           `db:"payout_minor" json:"payout_minor"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	EmittedAt   *time.Time      `db:"emitted_at" json:"emitted_at,omitempty"`
}

type AuditEntry struct {
	ID          string          `db:"id" json:"id"`
	ActorUserID *string         `db:"actor_user_id" json:"actor_user_id,omitempty"`
	Action      string          `db:"action" json:"action"`
	EntityType  string          `db:"entity_type" json:"entity_type"`
	EntityID    string          `db:"entity_id" json:"entity_id"`
	Data        json.RawMessage `db:"data" json:"data"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
}
