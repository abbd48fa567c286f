package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"idlemine/internal/models"
)

type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type Getter interface {
	GetContext(ctx context.Context, dest any, query string, args ...any) error
}

type Selecter interface {
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
}

type DB interface {
	Execer
	Getter
	Selecter
}

// Tx is what stores need from a transaction; *sqlx.Tx satisfies it.
type Tx interface {
	Execer
	Getter
	Selecter
}

func notFound(err error, entity, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return models.ErrNotFound.WithMessage("%s %s not found", entity, id)
	}
	return fmt.Errorf("load %s %s: %w", entity, id, err)
}
