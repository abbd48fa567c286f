package store

import (
	"context"
	"fmt"
	"time"

	"idlemine/internal/models"

	"github.com/lib/pq"
)

type ClaimStore struct {
	db DB
}

const claimColumns = `id, player_id, amount, status, round_id, payout_minor, reject_reason, created_at, resolved_at`

func NewClaimStore(db DB) *ClaimStore {
	return &ClaimStore{db: db}
}

func (s *ClaimStore) Create(ctx context.Context, tx Execer, claim *models.CashoutClaim) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO cashout_claims (id, player_id, amount, status, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, claim.ID, claim.PlayerID, claim.Amount, string(claim.Status), claim.CreatedAt)
	if err != nil {
		return fmt.Errorf("create claim %s: %w", claim.ID, err)
	}
	return nil
}

func (s *ClaimStore) Get(ctx context.Context, claimID string) (*models.CashoutClaim, error) {
	var claim models.CashoutClaim
	err := s.db.GetContext(ctx, &claim, `
		SELECT `+claimColumns+`
		FROM cashout_claims
		WHERE id = $1
	`, claimID)
	if err != nil {
		return nil, notFound(err, "claim", claimID)
	}
	return &claim, nil
}

func (s *ClaimStore) GetForUpdate(ctx context.Context, tx Getter, claimID string) (*models.CashoutClaim, error) {
	var claim models.CashoutClaim
	err := tx.GetContext(ctx, &claim, `
		SELECT `+claimColumns+`
		FROM cashout_claims
		WHERE id = $1
		FOR UPDATE
	`, claimID)
	if err != nil {
		return nil, notFound(err, "claim", claimID)
	}
	return &claim, nil
}

// Resolve persists a terminal claim state.
func (s *ClaimStore) Resolve(ctx context.Context, tx Execer, claim *models.CashoutClaim) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE cashout_claims
		SET status = $1, round_id = $2, payout_minor = $3, reject_reason = $4, resolved_at = $5
		WHERE id = $6 AND status = 'pending'
	`, string(claim.Status), claim.RoundID, claim.PayoutMinor, claim.RejectReason, claim.ResolvedAt, claim.ID)
	if err != nil {
		return fmt.Errorf("resolve claim %s: %w", claim.ID, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return models.ErrConflict.WithMessage("claim %s is no longer pending", claim.ID)
	}
	return nil
}

// LockPendingUpTo locks every pending claim created at or before cutoff.
func (s *ClaimStore) LockPendingUpTo(ctx context.Context, tx Selecter, cutoff time.Time) ([]models.CashoutClaim, error) {
	var claims []models.CashoutClaim
	err := tx.SelectContext(ctx, &claims, `
		SELECT `+claimColumns+`
		FROM cashout_claims
		WHERE status = 'pending' AND created_at <= $1
		ORDER BY created_at, id
		FOR UPDATE
	`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("lock pending claims: %w", err)
	}
	return claims, nil
}

// List filters by any of statuses; an empty filter returns every claim.
func (s *ClaimStore) List(ctx context.Context, statuses []string, limit, offset int) ([]models.CashoutClaim, error) {
	claims := []models.CashoutClaim{}
	var err error
	if len(statuses) == 0 {
		err = s.db.SelectContext(ctx, &claims, `
			SELECT `+claimColumns+`
			FROM cashout_claims
			ORDER BY created_at DESC
			LIMIT $1 OFFSET $2
		`, limit, offset)
	} else {
		err = s.db.SelectContext(ctx, &claims, `
			SELECT `+claimColumns+`
			FROM cashout_claims
			WHERE status = ANY($1)
			ORDER BY created_at DESC
			LIMIT $2 OFFSET $3
		`, pq.Array(statuses), limit, offset)
	}
	if err != nil {
		return nil, fmt.Errorf("list claims: %w", err)
	}
	return claims, nil
}

// ListByPlayer returns a player's own claims, newest first.
func (s *ClaimStore) ListByPlayer(ctx context.Context, playerID string, limit, offset int) ([]models.CashoutClaim, error) {
	claims := []models.CashoutClaim{}
	err := s.db.SelectContext(ctx, &claims, `
		SELECT `+claimColumns+`
		FROM cashout_claims
		WHERE player_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, playerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list claims for %s: %w", playerID, err)
	}
	return claims, nil
}
