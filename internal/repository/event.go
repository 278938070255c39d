package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"hr-portal/internal/model"
	"hr-portal/internal/pkg/db"
)

// EventRepository appends to and reads the user audit log.
// There are no update or delete methods: the log is append-only.
type EventRepository struct {
	q db.Querier
}

// NewEventRepository creates a new EventRepository instance.
func NewEventRepository(q db.Querier) *EventRepository {
	return &EventRepository{q: q}
}

// WithTx returns a copy bound to the transaction.
func (r *EventRepository) WithTx(tx pgx.Tx) *EventRepository {
	return &EventRepository{q: tx}
}

// Create appends an event. data is stored as JSONB and may be nil.
func (r *EventRepository) Create(ctx context.Context, userID int64, eventType, description string, data map[string]any) (*model.UserEvent, error) {
	const query = `
		INSERT INTO user_events (user_id, event_type, event_description, event_data, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING id, user_id, event_type, event_description, event_data, created_at
	`

	var e model.UserEvent
	err := r.q.QueryRow(ctx, query, userID, eventType, description, data).Scan(
		&e.ID,
		&e.UserID,
		&e.EventType,
		&e.EventDescription,
		&e.EventData,
		&e.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create user event: %w", err)
	}
	return &e, nil
}

// GetByUserID retrieves a user's events, newest first.
func (r *EventRepository) GetByUserID(ctx context.Context, userID int64, limit int) ([]*model.UserEvent, error) {
	const query = `
		SELECT id, user_id, event_type, event_description, event_data, created_at
		FROM user_events
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`

	rows, err := r.q.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get user events: %w", err)
	}
	defer rows.Close()

	var events []*model.UserEvent
	for rows.Next() {
		var e model.UserEvent
		if err := rows.Scan(&e.ID, &e.UserID, &e.EventType, &e.EventDescription, &e.EventData, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan user event: %w", err)
		}
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating user events: %w", err)
	}
	return events, nil
}

// CountByType counts a user's events of one type.
func (r *EventRepository) CountByType(ctx context.Context, userID int64, eventType string) (int, error) {
	const query = `SELECT COUNT(*) FROM user_events WHERE user_id = $1 AND event_type = $2`

	var n int
	if err := r.q.QueryRow(ctx, query, userID, eventType).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count user events: %w", err)
	}
	return n, nil
}
