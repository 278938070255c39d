package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"hr-portal/internal/model"
	"hr-portal/internal/pkg/db"
)

// NewsRepository handles announcements.
type NewsRepository struct {
	q db.Querier
}

// NewNewsRepository creates a new NewsRepository instance.
func NewNewsRepository(q db.Querier) *NewsRepository {
	return &NewsRepository{q: q}
}

// Create publishes an announcement.
func (r *NewsRepository) Create(ctx context.Context, title, content string, createdBy int64) (*model.News, error) {
	const query = `
		INSERT INTO news (title, content, created_by, created_at, is_active)
		VALUES ($1, $2, $3, NOW(), TRUE)
		RETURNING id, title, content, created_by, created_at, is_active
	`
	var n model.News
	err := r.q.QueryRow(ctx, query, title, content, createdBy).Scan(
		&n.ID, &n.Title, &n.Content, &n.CreatedBy, &n.CreatedAt, &n.IsActive,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create news: %w", err)
	}
	return &n, nil
}

// ListActive returns active announcements, newest first.
func (r *NewsRepository) ListActive(ctx context.Context, limit int) ([]*model.News, error) {
	const query = `
		SELECT id, title, content, created_by, created_at, is_active
		FROM news WHERE is_active
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`
	rows, err := r.q.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list news: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*model.News, error) {
		var n model.News
		err := row.Scan(&n.ID, &n.Title, &n.Content, &n.CreatedBy, &n.CreatedAt, &n.IsActive)
		return &n, err
	})
}

// Deactivate hides an announcement.
func (r *NewsRepository) Deactivate(ctx context.Context, id int64) error {
	const query = `UPDATE news SET is_active = FALSE WHERE id = $1`

	tag, err := r.q.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate news: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNewsNotFound
	}
	return nil
}
