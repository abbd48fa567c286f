package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"idlemine/internal/logging"
	"idlemine/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })
	return sqlx.NewDb(sqlDB, "sqlmock"), mock
}

func TestWithTxCommits(t *testing.T) {
	xdb, mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE players").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	runner := NewTxRunner(xdb, logging.Discard())
	err := runner.WithTx(context.Background(), func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(context.Background(), "UPDATE players SET fuel = fuel")
		return err
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestWithTxRollsBackOnError(t *testing.T) {
	xdb, mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	boom := errors.New("boom")
	err := NewTxRunner(xdb, nil).WithTx(context.Background(), func(*sqlx.Tx) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("expected callback error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestWithTxRetriesSerializationFailureOnCommit(t *testing.T) {
	xdb, mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectCommit().WillReturnError(&pq.Error{Code: "40001"})
	mock.ExpectBegin()
	mock.ExpectCommit()

	calls := 0
	runner := NewTxRunner(xdb, logging.Discard())
	err := runner.WithTx(context.Background(), func(*sqlx.Tx) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestWithTxRetriesWrappedDeadlockFromCallback(t *testing.T) {
	xdb, mock := newMockDB(t)
	for i := 0; i < 2; i++ {
		mock.ExpectBegin()
		mock.ExpectRollback()
	}
	mock.ExpectBegin()
	mock.ExpectCommit()

	calls := 0
	err := NewTxRunner(xdb, nil).WithTx(context.Background(), func(*sqlx.Tx) error {
		calls++
		if calls < 3 {
			return fmt.Errorf("lock player: %w", &pq.Error{Code: "40P01"})
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestWithTxRetryLimitIsTransient(t *testing.T) {
	xdb, mock := newMockDB(t)
	for i := 0; i < maxAttempts; i++ {
		mock.ExpectBegin()
		mock.ExpectRollback()
	}

	calls := 0
	err := NewTxRunner(xdb, nil).WithTx(context.Background(), func(*sqlx.Tx) error {
		calls++
		return &pq.Error{Code: "40001"}
	})
	if !errors.Is(err, ErrRetryLimit) || !errors.Is(err, models.ErrTransient) {
		t.Fatalf("expected transient retry limit error, got %v", err)
	}
	if calls != maxAttempts {
		t.Fatalf("expected %d attempts, got %d", maxAttempts, calls)
	}
}

func TestWithTxDoesNotRetryDomainErrors(t *testing.T) {
	xdb, mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	calls := 0
	err := NewTxRunner(xdb, nil).WithTx(context.Background(), func(*sqlx.Tx) error {
		calls++
		return models.ErrInsufficientFunds
	})
	if !errors.Is(err, models.ErrInsufficientFunds) || calls != 1 {
		t.Fatalf("expected single attempt with domain error, got %d calls err=%v", calls, err)
	}
}

func TestWithTxStopsWhenContextCancelled(t *testing.T) {
	xdb, mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	ctx, cancel := context.WithCancel(context.Background())
	err := NewTxRunner(xdb, nil).WithTx(ctx, func(*sqlx.Tx) error {
		cancel()
		return &pq.Error{Code: "40001"}
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation, got %v", err)
	}
}
