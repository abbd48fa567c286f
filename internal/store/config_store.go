package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"idlemine/internal/economy"
)

type ConfigStore struct {
	db DB
}

type configRow struct {
	Version   int64     `db:"version"`
	Document  []byte    `db:"document"`
	CreatedBy *string   `db:"created_by"`
	CreatedAt time.Time `db:"created_at"`
}

func NewConfigStore(db DB) *ConfigStore {
	return &ConfigStore{db: db}
}

// Latest returns the newest stored config, or models.ErrNotFound when the
// table is empty.
func (s *ConfigStore) Latest(ctx context.Context) (*economy.Config, error) {
	return s.latest(ctx, s.db, "")
}

// LatestForUpdate locks the newest config row so concurrent edits serialize.
func (s *ConfigStore) LatestForUpdate(ctx context.Context, tx Getter) (*economy.Config, error) {
	return s.latest(ctx, tx, "FOR UPDATE")
}

func (s *ConfigStore) latest(ctx context.Context, q Getter, lock string) (*economy.Config, error) {
	var row configRow
	err := q.GetContext(ctx, &row, `
		SELECT version, document, created_by, created_at
		FROM economy_configs
		ORDER BY version DESC
		LIMIT 1
		`+lock)
	if err != nil {
		return nil, notFound(err, "economy config", "latest")
	}
	cfg, err := economy.Load(row.Document)
	if err != nil {
		return nil, fmt.Errorf("stored config v%d: %w", row.Version, err)
	}
	cfg.Version = row.Version
	cfg.CreatedAt = row.CreatedAt
	return cfg, nil
}

// Insert stores cfg as a new version and returns a copy stamped with the
// assigned version and creation time.
func (s *ConfigStore) Insert(ctx context.Context, tx Getter, cfg *economy.Config, createdBy string) (*economy.Config, error) {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	var author *string
	if createdBy != "" {
		author = &createdBy
	}
	var row configRow
	err = tx.GetContext(ctx, &row, `
		INSERT INTO economy_configs (document, created_by)
		VALUES ($1, $2)
		RETURNING version, created_at
	`, string(raw), author)
	if err != nil {
		return nil, fmt.Errorf("insert config: %w", err)
	}
	stored := cfg.Clone()
	stored.Version = row.Version
	stored.CreatedAt = row.CreatedAt
	return stored, nil
}
