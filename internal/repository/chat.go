package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"hr-portal/internal/model"
	"hr-portal/internal/pkg/db"
)

// ChatRepository handles chat messages and read watermarks.
//
// A support thread belongs to one user: messages the user sends have no
// recipient, admin replies carry the user as recipient. The thread owner of a
// support message is therefore COALESCE(recipient_id, sender_id).
type ChatRepository struct {
	q db.Querier
}

// NewChatRepository creates a new ChatRepository instance.
func NewChatRepository(q db.Querier) *ChatRepository {
	return &ChatRepository{q: q}
}

// WithTx returns a copy bound to the transaction.
func (r *ChatRepository) WithTx(tx pgx.Tx) *ChatRepository {
	return &ChatRepository{q: tx}
}

const chatMessageColumns = `id, sender_id, sender_name, recipient_id, chat_type, message, is_admin, sent_at`

func scanChatMessage(row pgx.Row) (*model.ChatMessage, error) {
	var m model.ChatMessage
	err := row.Scan(&m.ID, &m.SenderID, &m.SenderName, &m.RecipientID, &m.ChatType, &m.Message, &m.IsAdmin, &m.SentAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// Insert stores a message and returns it with its ID.
func (r *ChatRepository) Insert(ctx context.Context, m model.ChatMessage) (*model.ChatMessage, error) {
	query := `
		INSERT INTO chat_messages (sender_id, sender_name, recipient_id, chat_type, message, is_admin, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + chatMessageColumns

	msg, err := scanChatMessage(r.q.QueryRow(ctx, query,
		m.SenderID, m.SenderName, m.RecipientID, m.ChatType, m.Message, m.IsAdmin, m.SentAt,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to insert chat message: %w", err)
	}
	return msg, nil
}

// ListGeneral returns the latest general messages in chronological order.
func (r *ChatRepository) ListGeneral(ctx context.Context, limit int) ([]*model.ChatMessage, error) {
	query := `SELECT * FROM (
			SELECT ` + chatMessageColumns + ` FROM chat_messages
			WHERE chat_type = 'general'
			ORDER BY sent_at DESC, id DESC
			LIMIT $1
		) recent ORDER BY sent_at, id`
	return r.list(ctx, query, limit)
}

// ListSupportThread returns the latest messages of a user's support thread in
// chronological order.
func (r *ChatRepository) ListSupportThread(ctx context.Context, userID int64, limit int) ([]*model.ChatMessage, error) {
	query := `SELECT * FROM (
			SELECT ` + chatMessageColumns + ` FROM chat_messages
			WHERE chat_type = 'support' AND COALESCE(recipient_id, sender_id) = $1
			ORDER BY sent_at DESC, id DESC
			LIMIT $2
		) recent ORDER BY sent_at, id`
	return r.list(ctx, query, userID, limit)
}

func (r *ChatRepository) list(ctx context.Context, query string, args ...any) ([]*model.ChatMessage, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list chat messages: %w", err)
	}
	defer rows.Close()

	var out []*model.ChatMessage
	for rows.Next() {
		m, err := scanChatMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chat message: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating chat messages: %w", err)
	}
	return out, nil
}

// CountUnread counts messages in the user's view of a channel that someone
// else wrote after the user's watermark. A missing watermark counts as never read.
func (r *ChatRepository) CountUnread(ctx context.Context, userID int64, chatType model.ChatType) (int, error) {
	const query = `
		SELECT COUNT(*) FROM chat_messages m
		WHERE m.chat_type = $2
			AND m.sender_id <> $1
			AND ($2 <> 'support' OR m.recipient_id = $1)
			AND m.sent_at > COALESCE(
				(SELECT rs.last_read_at FROM chat_read_state rs
				 WHERE rs.user_id = $1 AND rs.chat_type = $2 AND rs.counterpart_id = 0),
				$3)
	`
	var n int
	if err := r.q.QueryRow(ctx, query, userID, string(chatType), model.NeverRead).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count unread messages: %w", err)
	}
	return n, nil
}

// CountUnreadByThread counts, per support thread, the user-authored messages
// an admin has not read yet. Keyed by thread owner.
func (r *ChatRepository) CountUnreadByThread(ctx context.Context, adminID int64) (map[int64]int, error) {
	const query = `
		SELECT m.sender_id, COUNT(*)
		FROM chat_messages m
		LEFT JOIN chat_read_state rs
			ON rs.user_id = $1 AND rs.chat_type = 'support' AND rs.counterpart_id = m.sender_id
		WHERE m.chat_type = 'support'
			AND m.is_admin = FALSE
			AND m.recipient_id IS NULL
			AND m.sender_id <> $1
			AND m.sent_at > COALESCE(rs.last_read_at, $2)
		GROUP BY m.sender_id
	`
	rows, err := r.q.Query(ctx, query, adminID, model.NeverRead)
	if err != nil {
		return nil, fmt.Errorf("failed to count unread threads: %w", err)
	}
	defer rows.Close()

	counts := make(map[int64]int)
	for rows.Next() {
		var userID int64
		var n int
		if err := rows.Scan(&userID, &n); err != nil {
			return nil, fmt.Errorf("failed to scan unread thread: %w", err)
		}
		counts[userID] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating unread threads: %w", err)
	}
	return counts, nil
}

// Threads lists every support thread with its latest message, most recent first.
func (r *ChatRepository) Threads(ctx context.Context) ([]*model.Conversation, error) {
	const query = `
		SELECT t.owner, TRIM(u.first_name || ' ' || u.last_name), u.email, t.message, t.sent_at
		FROM (
			SELECT DISTINCT ON (COALESCE(recipient_id, sender_id))
				COALESCE(recipient_id, sender_id) AS owner, message, sent_at
			FROM chat_messages
			WHERE chat_type = 'support'
			ORDER BY COALESCE(recipient_id, sender_id), sent_at DESC, id DESC
		) t
		JOIN users u ON u.id = t.owner
		ORDER BY t.sent_at DESC
	`
	rows, err := r.q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list support threads: %w", err)
	}
	defer rows.Close()

	var out []*model.Conversation
	for rows.Next() {
		var c model.Conversation
		if err := rows.Scan(&c.UserID, &c.UserName, &c.UserEmail, &c.LastMessage, &c.LastMessageAt); err != nil {
			return nil, fmt.Errorf("failed to scan support thread: %w", err)
		}
		out = append(out, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating support threads: %w", err)
	}
	return out, nil
}

// AdvanceWatermark sets the watermark to at unless the stored one is later,
// and returns the resulting watermark. Watermarks never move backwards.
func (r *ChatRepository) AdvanceWatermark(ctx context.Context, userID int64, chatType model.ChatType, counterpartID int64, at time.Time) (time.Time, error) {
	const query = `
		INSERT INTO chat_read_state (user_id, chat_type, counterpart_id, last_read_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, chat_type, counterpart_id)
		DO UPDATE SET last_read_at = GREATEST(chat_read_state.last_read_at, EXCLUDED.last_read_at)
		RETURNING last_read_at
	`
	var stored time.Time
	if err := r.q.QueryRow(ctx, query, userID, chatType, counterpartID, at).Scan(&stored); err != nil {
		return time.Time{}, fmt.Errorf("failed to advance read watermark: %w", err)
	}
	return stored, nil
}

// Watermark returns the stored watermark, or ok=false when none exists.
func (r *ChatRepository) Watermark(ctx context.Context, userID int64, chatType model.ChatType, counterpartID int64) (time.Time, bool, error) {
	const query = `
		SELECT last_read_at FROM chat_read_state
		WHERE user_id = $1 AND chat_type = $2 AND counterpart_id = $3
	`
	var at time.Time
	err := r.q.QueryRow(ctx, query, userID, chatType, counterpartID).Scan(&at)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("failed to get read watermark: %w", err)
	}
	return at, true, nil
}

// InitWatermarks materializes a watermark at the given instant for each
// channel, leaving existing rows untouched.
func (r *ChatRepository) InitWatermarks(ctx context.Context, userID int64, at time.Time, chatTypes ...model.ChatType) error {
	const query = `
		INSERT INTO chat_read_state (user_id, chat_type, counterpart_id, last_read_at)
		VALUES ($1, $2, 0, $3)
		ON CONFLICT (user_id, chat_type, counterpart_id) DO NOTHING
	`
	for _, ct := range chatTypes {
		if _, err := r.q.Exec(ctx, query, userID, ct, at); err != nil {
			return fmt.Errorf("failed to init %s watermark: %w", ct, err)
		}
	}
	return nil
}
