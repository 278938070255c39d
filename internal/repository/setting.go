package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"hr-portal/internal/model"
	"hr-portal/internal/pkg/db"
)

// SettingRepository handles the key/value settings table.
type SettingRepository struct {
	q db.Querier
}

// NewSettingRepository creates a new SettingRepository instance.
func NewSettingRepository(q db.Querier) *SettingRepository {
	return &SettingRepository{q: q}
}

// WithTx returns a copy bound to the transaction.
func (r *SettingRepository) WithTx(tx pgx.Tx) *SettingRepository {
	return &SettingRepository{q: tx}
}

// Get returns a setting by key.
// Returns ErrSettingNotFound if the key is absent.
func (r *SettingRepository) Get(ctx context.Context, key string) (*model.Setting, error) {
	const query = `
		SELECT id, key, value, description, created_at, updated_at
		FROM settings WHERE key = $1
	`
	var s model.Setting
	err := r.q.QueryRow(ctx, query, key).Scan(&s.ID, &s.Key, &s.Value, &s.Description, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSettingNotFound
		}
		return nil, fmt.Errorf("failed to get setting: %w", err)
	}
	return &s, nil
}

// All returns every setting value keyed by name.
func (r *SettingRepository) All(ctx context.Context) (map[string]string, error) {
	const query = `SELECT key, value FROM settings`

	rows, err := r.q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list settings: %w", err)
	}
	defer rows.Close()

	values := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("failed to scan setting: %w", err)
		}
		values[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating settings: %w", err)
	}
	return values, nil
}

// Upsert creates or replaces a setting value.
func (r *SettingRepository) Upsert(ctx context.Context, key, value, description string) error {
	const query = `
		INSERT INTO settings (key, value, description, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value, description = EXCLUDED.description, updated_at = NOW()
	`
	if _, err := r.q.Exec(ctx, query, key, value, description); err != nil {
		return fmt.Errorf("failed to upsert setting %s: %w", key, err)
	}
	return nil
}
