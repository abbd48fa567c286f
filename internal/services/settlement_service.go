package services

import (
	"context"
	"fmt"
	"time"

	"idlemine/internal/db"
	"idlemine/internal/economy"
	"idlemine/internal/metrics"
	"idlemine/internal/models"
	"idlemine/internal/money"
	"idlemine/internal/payout"
	"idlemine/internal/settlement"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

const resendBatchSize = 500

type SettlementService struct {
	txRunner db.TxRunner
	rounds   RoundStore
	claims   ClaimStore
	audit    AuditStore
	configs  *economy.Holder
	emitter  payout.Emitter
	metrics  *metrics.Collector
	logger   logrus.FieldLogger
	location *time.Location

	now   func() time.Time
	newID func() string
}

func NewSettlementService(txRunner db.TxRunner, rounds RoundStore, claims ClaimStore, audit AuditStore, configs *economy.Holder, emitter payout.Emitter, collector *metrics.Collector, logger logrus.FieldLogger, location *time.Location) *SettlementService {
	if location == nil {
		location = time.UTC
	}
	return &SettlementService{
		txRunner: txRunner,
		rounds:   rounds,
		claims:   claims,
		audit:    audit,
		configs:  configs,
		emitter:  emitter,
		metrics:  collector,
		logger:   logger,
		location: location,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// roundDate truncates t to its calendar day in the service location.
func (s *SettlementService) roundDate(t time.Time) time.Time {
	y, m, d := t.In(s.location).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// OpenRound opens the round for date's calendar day, or returns the round
// already open for it.
func (s *SettlementService) OpenRound(ctx context.Context, date time.Time) (*models.Round, error) {
	day := s.roundDate(date)
	var round *models.Round
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		candidate := &models.Round{
			ID:        s.newID(),
			RoundDate: day,
			Status:    models.RoundOpen,
			CreatedAt: s.now(),
		}
		created, err := s.rounds.Create(ctx, tx, candidate)
		if err != nil {
			return err
		}
		if !created {
			round, err = s.rounds.GetByDate(ctx, tx, day)
			return err
		}
		round = candidate
		return s.audit.Log(ctx, tx, "", ActionRoundOpen, "round", candidate.ID, map[string]string{"round_date": day.Format("2006-01-02")})
	})
	s.metrics.Operation("open_round", errorCode(err))
	if err != nil {
		return nil, err
	}
	return round, nil
}

// SettleRound pays every pending claim created up to the cutoff from the
// round's pool. Phase one fixes the cutoff; phase two distributes. A round
// left in settling by a failed phase two is resumed with its original cutoff.
func (s *SettlementService) SettleRound(ctx context.Context, actor, roundID string, revenueMinor int64) (*models.Round, error) {
	if revenueMinor < 0 {
		return nil, settlement.ErrNegativeRevenue
	}
	cfg := s.configs.Current()

	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		round, err := s.rounds.GetForUpdate(ctx, tx, roundID)
		if err != nil {
			return err
		}
		if round.Status == models.RoundSettling {
			return nil
		}
		if err := settlement.BeginSettling(round, s.now()); err != nil {
			return err
		}
		return s.rounds.Update(ctx, tx, round)
	})
	if err != nil {
		s.metrics.Operation("settle_round", errorCode(err))
		return nil, err
	}

	var closed *models.Round
	var records []models.PayoutRecord
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		round, err := s.rounds.GetForUpdate(ctx, tx, roundID)
		if err != nil {
			return err
		}
		if round.Status != models.RoundSettling || round.CutoffAt == nil {
			return settlement.ErrRoundNotSettling
		}
		claims, err := s.claims.LockPendingUpTo(ctx, tx, *round.CutoffAt)
		if err != nil {
			return err
		}
		carry, err := s.rounds.TakeCarry(ctx, tx, round.ID)
		if err != nil {
			return err
		}
		pool := settlement.Pool(revenueMinor, cfg.Treasury.PayoutPercentage, carry)
		outcome, err := settlement.Distribute(pool, claims)
		if err != nil {
			return err
		}
		now := s.now()
		records = settlement.Records(round, claims, outcome, s.newID, now)
		for i := range claims {
			if err := s.claims.Resolve(ctx, tx, &claims[i]); err != nil {
				return err
			}
		}
		if err := s.rounds.InsertPayouts(ctx, tx, records); err != nil {
			return err
		}
		if err := settlement.Close(round, revenueMinor, carry, outcome, now); err != nil {
			return err
		}
		if err := s.rounds.Update(ctx, tx, round); err != nil {
			return err
		}
		closed = round
		return s.audit.Log(ctx, tx, actor, ActionRoundSettle, "round", round.ID, map[string]any{
			"revenue_minor":  revenueMinor,
			"carry_in_minor": carry,
			"pool_minor":     outcome.PoolMinor,
			"paid_minor":     outcome.PaidMinor,
			"residual_minor": outcome.ResidualMinor,
			"claims":         len(claims),
			"config_version": cfg.Version,
		})
	})
	s.metrics.Operation("settle_round", errorCode(err))
	if err != nil {
		return nil, err
	}
	closed.Payouts = records
	s.metrics.RoundSettled(closed.PaidMinor, closed.ResidualMinor)

	log := s.logger.WithFields(logrus.Fields{
		"round_id": closed.ID,
		"pool":     money.FormatMinor(closed.PoolMinor),
		"paid":     money.FormatMinor(closed.PaidMinor),
		"residual": money.FormatMinor(closed.ResidualMinor),
		"claims":   len(records),
	})
	if err := s.emit(ctx, *closed, closed.Payouts); err != nil {
		log.WithError(err).Error("payout emission failed, records stay queued")
	}
	log.Info("round settled")
	return closed, nil
}

// emit hands records to the payment collaborator and marks them sent.
// Records are marked only after the collaborator accepted them.
func (s *SettlementService) emit(ctx context.Context, round models.Round, records []models.PayoutRecord) error {
	if s.emitter == nil || len(records) == 0 {
		return nil
	}
	if err := s.emitter.Emit(ctx, round, records); err != nil {
		return err
	}
	now := s.now()
	ids := make([]string, 0, len(records))
	for i := range records {
		ids = append(ids, records[i].ID)
		records[i].EmittedAt = &now
	}
	return s.rounds.MarkEmitted(ctx, ids, now)
}

// ResendPayouts re-emits payout records whose first emission failed, oldest
// first, one round at a time. It returns how many records were sent.
func (s *SettlementService) ResendPayouts(ctx context.Context) (int, error) {
	records, err := s.rounds.ListUnemitted(ctx, resendBatchSize)
	if err != nil {
		return 0, err
	}
	var order []string
	byRound := map[string][]models.PayoutRecord{}
	for _, record := range records {
		if _, ok := byRound[record.RoundID]; !ok {
			order = append(order, record.RoundID)
		}
		byRound[record.RoundID] = append(byRound[record.RoundID], record)
	}

	sent := 0
	for _, roundID := range order {
		round, err := s.rounds.Get(ctx, roundID)
		if err != nil {
			s.metrics.Operation("resend_payouts", errorCode(err))
			return sent, err
		}
		if err := s.emit(ctx, *round, byRound[roundID]); err != nil {
			s.metrics.Operation("resend_payouts", errorCode(err))
			return sent, fmt.Errorf("resend payouts for round %s: %w", roundID, err)
		}
		sent += len(byRound[roundID])
	}
	if sent > 0 {
		s.metrics.Operation("resend_payouts", errorCode(nil))
		s.logger.WithField("records", sent).Info("queued payout records sent")
	}
	return sent, nil
}

func (s *SettlementService) GetRound(ctx context.Context, roundID string) (*models.Round, error) {
	return s.rounds.Get(ctx, roundID)
}

// OpenToday opens the round for the current day. Used by the scheduler.
func (s *SettlementService) OpenToday(ctx context.Context) error {
	round, err := s.OpenRound(ctx, s.now())
	if err != nil {
		return err
	}
	s.logger.WithFields(logrus.Fields{"round_id": round.ID, "round_date": round.RoundDate.Format("2006-01-02")}).Info("round open")
	return nil
}
