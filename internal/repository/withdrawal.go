package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"hr-portal/internal/model"
	"hr-portal/internal/pkg/db"
)

// WithdrawalRepository handles withdrawal requests.
type WithdrawalRepository struct {
	q db.Querier
}

// NewWithdrawalRepository creates a new WithdrawalRepository instance.
func NewWithdrawalRepository(q db.Querier) *WithdrawalRepository {
	return &WithdrawalRepository{q: q}
}

// WithTx returns a copy bound to the transaction.
func (r *WithdrawalRepository) WithTx(tx pgx.Tx) *WithdrawalRepository {
	return &WithdrawalRepository{q: tx}
}

const withdrawalColumns = `w.id, w.user_id, w.network_coin, w.amount, w.wallet_address, w.status, w.created_at, w.completed_at`

func scanWithdrawal(row pgx.Row, extra ...any) (*model.WithdrawalRequest, error) {
	var w model.WithdrawalRequest
	dest := append([]any{
		&w.ID, &w.UserID, &w.NetworkCoin, &w.Amount, &w.WalletAddress, &w.Status, &w.CreatedAt, &w.CompletedAt,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	return &w, nil
}

// Create inserts a pending request.
func (r *WithdrawalRepository) Create(ctx context.Context, userID int64, network string, amount decimal.Decimal, address string) (*model.WithdrawalRequest, error) {
	query := `
		INSERT INTO withdrawal_requests AS w (user_id, network_coin, amount, wallet_address, status, created_at)
		VALUES ($1, $2, $3, $4, 'pending', NOW())
		RETURNING ` + withdrawalColumns

	w, err := scanWithdrawal(r.q.QueryRow(ctx, query, userID, network, amount, address))
	if err != nil {
		return nil, fmt.Errorf("failed to create withdrawal request: %w", err)
	}
	return w, nil
}

// GetByIDForUpdate retrieves a request and locks it.
func (r *WithdrawalRepository) GetByIDForUpdate(ctx context.Context, id int64) (*model.WithdrawalRequest, error) {
	query := `SELECT ` + withdrawalColumns + ` FROM withdrawal_requests w WHERE w.id = $1 FOR UPDATE`

	w, err := scanWithdrawal(r.q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWithdrawalNotFound
		}
		return nil, fmt.Errorf("failed to get withdrawal request: %w", err)
	}
	return w, nil
}

// MarkCompleted sets a request to completed.
func (r *WithdrawalRepository) MarkCompleted(ctx context.Context, id int64, at time.Time) (*model.WithdrawalRequest, error) {
	query := `
		UPDATE withdrawal_requests AS w SET status = 'completed', completed_at = $2
		WHERE w.id = $1
		RETURNING ` + withdrawalColumns

	w, err := scanWithdrawal(r.q.QueryRow(ctx, query, id, at))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWithdrawalNotFound
		}
		return nil, fmt.Errorf("failed to complete withdrawal request: %w", err)
	}
	return w, nil
}

// ListByUser returns a user's requests, newest first.
func (r *WithdrawalRepository) ListByUser(ctx context.Context, userID int64) ([]*model.WithdrawalRequest, error) {
	query := `SELECT ` + withdrawalColumns + `, '' FROM withdrawal_requests w
		WHERE w.user_id = $1 ORDER BY w.created_at DESC, w.id DESC`
	return r.list(ctx, query, userID)
}

// ListAll returns every request with the owner's email, optionally filtered by status.
func (r *WithdrawalRepository) ListAll(ctx context.Context, status *model.WithdrawalStatus) ([]*model.WithdrawalRequest, error) {
	query := `SELECT ` + withdrawalColumns + `, u.email FROM withdrawal_requests w
		JOIN users u ON u.id = w.user_id
		WHERE $1::text IS NULL OR w.status = $1
		ORDER BY w.created_at DESC, w.id DESC`
	return r.list(ctx, query, status)
}

func (r *WithdrawalRepository) list(ctx context.Context, query string, args ...any) ([]*model.WithdrawalRequest, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list withdrawal requests: %w", err)
	}
	defer rows.Close()

	var out []*model.WithdrawalRequest
	for rows.Next() {
		var email string
		w, err := scanWithdrawal(rows, &email)
		if err != nil {
			return nil, fmt.Errorf("failed to scan withdrawal request: %w", err)
		}
		w.UserEmail = email
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating withdrawal requests: %w", err)
	}
	return out, nil
}
