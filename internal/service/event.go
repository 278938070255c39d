package service

import (
	"context"

	"github.com/jackc/pgx/v5"

	"hr-portal/internal/model"
	"hr-portal/internal/repository"
)

// EventLog records user-visible audit events. Records are written inside the
// caller's transaction so they commit or roll back with the change they describe.
type EventLog struct {
	events *repository.EventRepository
}

// NewEventLog creates a new EventLog instance.
func NewEventLog(events *repository.EventRepository) *EventLog {
	return &EventLog{events: events}
}

// Record appends an event within tx.
func (l *EventLog) Record(ctx context.Context, tx pgx.Tx, userID int64, eventType, description string, data map[string]any) error {
	if _, err := l.events.WithTx(tx).Create(ctx, userID, eventType, description, data); err != nil {
		return storageErr("record event", err)
	}
	return nil
}

// List returns a user's events, newest first.
func (l *EventLog) List(ctx context.Context, userID int64, limit int) ([]*model.UserEvent, error) {
	events, err := l.events.GetByUserID(ctx, userID, clampLimit(limit, 50, 500))
	if err != nil {
		return nil, storageErr("list events", err)
	}
	return events, nil
}
