package store

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"idlemine/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

func TestRoundStoreCreateReportsExisting(t *testing.T) {
	execer := stubExecer{
		execFn: func(_ context.Context, query string, _ ...any) (sql.Result, error) {
			if !strings.Contains(query, "ON CONFLICT (round_date) DO NOTHING") {
				t.Fatalf("unexpected query: %s", query)
			}
			return stubResult{rows: 0}, nil
		},
	}
	round := &models.Round{ID: "r-1", RoundDate: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), Status: models.RoundOpen}
	created, err := NewRoundStore(stubDB{}).Create(context.Background(), execer, round)
	if err != nil || created {
		t.Fatalf("expected existing round, got %v %v", created, err)
	}
}

func TestRoundStoreGetLoadsPayouts(t *testing.T) {
	store := NewRoundStore(stubDB{
		getFn: func(_ context.Context, dest any, _ string, args ...any) error {
			*dest.(*models.Round) = models.Round{ID: args[0].(string), Status: models.RoundClosed, PoolMinor: 500}
			return nil
		},
		selectFn: func(_ context.Context, dest any, query string, _ ...any) error {
			if !strings.Contains(query, "FROM payout_records") {
				t.Fatalf("unexpected query: %s", query)
			}
			*dest.(*[]models.PayoutRecord) = []models.PayoutRecord{{ID: "po-1", PayoutMinor: 250}, {ID: "po-2", PayoutMinor: 249}}
			return nil
		},
	})
	round, err := store.Get(context.Background(), "r-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(round.Payouts) != 2 || round.Payouts[1].PayoutMinor != 249 {
		t.Fatalf("unexpected payouts: %+v", round.Payouts)
	}
}

func TestRoundStoreGetNotFound(t *testing.T) {
	store := NewRoundStore(stubDB{
		getFn: func(context.Context, any, string, ...any) error { return sql.ErrNoRows },
	})
	if _, err := store.Get(context.Background(), "r-x"); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRoundStoreTakeCarrySumsAndMarks(t *testing.T) {
	tx, mock, done := newMockTx(t)
	defer done()

	mock.ExpectQuery(regexp.QuoteMeta("residual_carried = FALSE")).
		WithArgs("r-3").
		WillReturnRows(sqlmock.NewRows([]string{"residual_minor"}).AddRow(int64(3)).AddRow(int64(4)))
	mock.ExpectExec(regexp.QuoteMeta("SET residual_carried = TRUE")).
		WithArgs("r-3").
		WillReturnResult(sqlmock.NewResult(0, 2))

	carry, err := NewRoundStore(stubDB{}).TakeCarry(context.Background(), tx, "r-3")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if carry != 7 {
		t.Fatalf("expected carry 7, got %d", carry)
	}
}

func TestRoundStoreTakeCarryNothingPending(t *testing.T) {
	tx := stubTx{
		execFn: func(context.Context, string, ...any) (sql.Result, error) {
			t.Fatalf("nothing to mark")
			return nil, nil
		},
	}
	carry, err := NewRoundStore(stubDB{}).TakeCarry(context.Background(), tx, "r-1")
	if err != nil || carry != 0 {
		t.Fatalf("expected zero carry, got %d %v", carry, err)
	}
}

func TestRoundStoreInsertPayouts(t *testing.T) {
	var claimIDs []any
	execer := stubExecer{
		execFn: func(_ context.Context, query string, args ...any) (sql.Result, error) {
			if !strings.Contains(query, "INSERT INTO payout_records") {
				t.Fatalf("unexpected query: %s", query)
			}
			claimIDs = append(claimIDs, args[2])
			return stubResult{rows: 1}, nil
		},
	}
	records := []models.PayoutRecord{
		{ID: "po-1", RoundID: "r-1", ClaimID: "c-1", Claimed: decimal.NewFromInt(1), PayoutMinor: 10},
		{ID: "po-2", RoundID: "r-1", ClaimID: "c-2", Claimed: decimal.NewFromInt(2), PayoutMinor: 20},
	}
	if err := NewRoundStore(stubDB{}).InsertPayouts(context.Background(), execer, records); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(claimIDs) != 2 || claimIDs[1] != "c-2" {
		t.Fatalf("unexpected inserts: %v", claimIDs)
	}
}

func TestRoundStoreUpdateWrapsError(t *testing.T) {
	execer := stubExecer{
		execFn: func(context.Context, string, ...any) (sql.Result, error) {
			return nil, errors.New("deadlock")
		},
	}
	err := NewRoundStore(stubDB{}).Update(context.Background(), execer, &models.Round{ID: "r-9"})
	if err == nil || !strings.Contains(err.Error(), "update round r-9") {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

func TestRoundStoreListUnemitted(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer sqlDB.Close()

	created := time.Date(2024, 5, 1, 0, 5, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE emitted_at IS NULL")).
		WithArgs(100).
		WillReturnRows(sqlmock.NewRows([]string{"id", "round_id", "claim_id", "player_id", "claimed", "payout_minor", "created_at", "emitted_at"}).
			AddRow("po-1", "r-1", "c-1", "p-1", "5.0000", 25, created, nil))

	records, err := NewRoundStore(sqlx.NewDb(sqlDB, "sqlmock")).ListUnemitted(context.Background(), 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 1 || records[0].PayoutMinor != 25 || records[0].EmittedAt != nil {
		t.Fatalf("unexpected records: %+v", records)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRoundStoreMarkEmitted(t *testing.T) {
	at := time.Date(2024, 5, 1, 0, 6, 0, 0, time.UTC)
	calls := 0
	store := NewRoundStore(stubDB{
		execFn: func(_ context.Context, query string, args ...any) (sql.Result, error) {
			calls++
			if !strings.Contains(query, "SET emitted_at = $1") || !strings.Contains(query, "emitted_at IS NULL") {
				t.Fatalf("unexpected query: %s", query)
			}
			if args[0] != at {
				t.Fatalf("unexpected timestamp: %v", args[0])
			}
			return stubResult{rows: 2}, nil
		},
	})
	if err := store.MarkEmitted(context.Background(), []string{"po-1", "po-2"}, at); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := store.MarkEmitted(context.Background(), nil, at); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Fatalf("empty id list must not hit the database, calls=%d", calls)
	}
}
