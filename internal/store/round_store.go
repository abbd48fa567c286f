package store

import (
	"context"
	"fmt"
	"time"

	"idlemine/internal/models"

	"github.com/lib/pq"
)

type RoundStore struct {
	db DB
}

const roundColumns = `id, round_date, status, revenue_minor, pool_minor, carry_in_minor, paid_minor, residual_minor, total_claimed, cutoff_at, created_at, closed_at`

const payoutColumns = `id, round_id, claim_id, player_id, claimed, payout_minor, created_at, emitted_at`

func NewRoundStore(db DB) *RoundStore {
	return &RoundStore{db: db}
}

// Create inserts an open round for date; it reports false when a round for
// that date already exists.
func (s *RoundStore) Create(ctx context.Context, tx Execer, round *models.Round) (bool, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO rounds (id, round_date, status, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (round_date) DO NOTHING
	`, round.ID, round.RoundDate, string(round.Status), round.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("create round: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func (s *RoundStore) GetByDate(ctx context.Context, q Getter, date time.Time) (*models.Round, error) {
	var round models.Round
	err := q.GetContext(ctx, &round, `
		SELECT `+roundColumns+`
		FROM rounds
		WHERE round_date = $1
	`, date)
	if err != nil {
		return nil, notFound(err, "round for", date.Format("2006-01-02"))
	}
	return &round, nil
}

func (s *RoundStore) Get(ctx context.Context, roundID string) (*models.Round, error) {
	var round models.Round
	err := s.db.GetContext(ctx, &round, `
		SELECT `+roundColumns+`
		FROM rounds
		WHERE id = $1
	`, roundID)
	if err != nil {
		return nil, notFound(err, "round", roundID)
	}
	payouts := []models.PayoutRecord{}
	err = s.db.SelectContext(ctx, &payouts, `
		SELECT `+payoutColumns+`
		FROM payout_records
		WHERE round_id = $1
		ORDER BY created_at, id
	`, roundID)
	if err != nil {
		return nil, fmt.Errorf("list payouts for %s: %w", roundID, err)
	}
	round.Payouts = payouts
	return &round, nil
}

func (s *RoundStore) GetForUpdate(ctx context.Context, tx Getter, roundID string) (*models.Round, error) {
	var round models.Round
	err := tx.GetContext(ctx, &round, `
		SELECT `+roundColumns+`
		FROM rounds
		WHERE id = $1
		FOR UPDATE
	`, roundID)
	if err != nil {
		return nil, notFound(err, "round", roundID)
	}
	return &round, nil
}

func (s *RoundStore) Update(ctx context.Context, tx Execer, round *models.Round) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE rounds
		SET status = $1,
		    revenue_minor = $2,
		    pool_minor = $3,
		    carry_in_minor = $4,
		    paid_minor = $5,
		    residual_minor = $6,
		    total_claimed = $7,
		    cutoff_at = $8,
		    closed_at = $9
		WHERE id = $10
	`, string(round.Status), round.RevenueMinor, round.PoolMinor, round.CarryInMinor, round.PaidMinor,
		round.ResidualMinor, round.TotalClaimed, round.CutoffAt, round.ClosedAt, round.ID)
	if err != nil {
		return fmt.Errorf("update round %s: %w", round.ID, err)
	}
	return nil
}

// TakeCarry claims the residual of every closed round not yet carried
// forward. Each residual is handed out exactly once.
func (s *RoundStore) TakeCarry(ctx context.Context, tx Tx, roundID string) (int64, error) {
	var residuals []int64
	err := tx.SelectContext(ctx, &residuals, `
		SELECT residual_minor
		FROM rounds
		WHERE status = 'closed' AND residual_carried = FALSE AND id <> $1
		FOR UPDATE
	`, roundID)
	if err != nil {
		return 0, fmt.Errorf("lock residuals: %w", err)
	}
	var carry int64
	for _, residual := range residuals {
		carry += residual
	}
	if len(residuals) == 0 {
		return 0, nil
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE rounds
		SET residual_carried = TRUE
		WHERE status = 'closed' AND residual_carried = FALSE AND id <> $1
	`, roundID)
	if err != nil {
		return 0, fmt.Errorf("mark residuals carried: %w", err)
	}
	return carry, nil
}

func (s *RoundStore) InsertPayouts(ctx context.Context, tx Execer, records []models.PayoutRecord) error {
	for _, record := range records {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO payout_records (id, round_id, claim_id, player_id, claimed, payout_minor, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, record.ID, record.RoundID, record.ClaimID, record.PlayerID, record.Claimed, record.PayoutMinor, record.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert payout for claim %s: %w", record.ClaimID, err)
		}
	}
	return nil
}

// ListUnemitted returns the oldest payout records the payment collaborator
// has not acknowledged yet.
func (s *RoundStore) ListUnemitted(ctx context.Context, limit int) ([]models.PayoutRecord, error) {
	records := []models.PayoutRecord{}
	err := s.db.SelectContext(ctx, &records, `
		SELECT `+payoutColumns+`
		FROM payout_records
		WHERE emitted_at IS NULL
		ORDER BY created_at, id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list unemitted payouts: %w", err)
	}
	return records, nil
}

func (s *RoundStore) MarkEmitted(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE payout_records
		SET emitted_at = $1
		WHERE id = ANY($2) AND emitted_at IS NULL
	`, at, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("mark payouts emitted: %w", err)
	}
	return nil
}
