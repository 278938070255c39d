// Package repository provides data access layer implementations.
//
// Every repository runs its statements through a db.Querier, so the same
// repository can be bound to the pool or, via WithTx, to a transaction.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"hr-portal/internal/model"
	"hr-portal/internal/pkg/db"
	"hr-portal/internal/schema"
)

// UserRepository handles user data persistence.
type UserRepository struct {
	q db.Querier
}

// NewUserRepository creates a new UserRepository instance.
func NewUserRepository(q db.Querier) *UserRepository {
	return &UserRepository{q: q}
}

// WithTx returns a copy bound to the transaction.
func (r *UserRepository) WithTx(tx pgx.Tx) *UserRepository {
	return &UserRepository{q: tx}
}

const userColumns = `id, first_name, last_name, email, telegram_username, hashed_password,
	balance, level, is_admin, is_verified, documents_accepted, tour_completed,
	withdrawal_enabled, min_withdrawal_amount, created_at, updated_at`

func scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	err := row.Scan(
		&u.ID,
		&u.FirstName,
		&u.LastName,
		&u.Email,
		&u.TelegramUsername,
		&u.HashedPassword,
		&u.Balance,
		&u.Level,
		&u.IsAdmin,
		&u.IsVerified,
		&u.DocumentsAccepted,
		&u.TourCompleted,
		&u.WithdrawalEnabled,
		&u.MinWithdrawalAmount,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// NewUser holds the fields supplied at registration.
type NewUser struct {
	FirstName           string
	LastName            string
	Email               string
	TelegramUsername    *string
	HashedPassword      string
	Balance             decimal.Decimal
	MinWithdrawalAmount decimal.Decimal
}

// Create inserts a new user. Returns ErrDuplicateEmail if the email is taken.
func (r *UserRepository) Create(ctx context.Context, nu NewUser) (*model.User, error) {
	query := `
		INSERT INTO users (first_name, last_name, email, telegram_username, hashed_password,
			balance, min_withdrawal_amount, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		RETURNING ` + userColumns

	user, err := scanUser(r.q.QueryRow(ctx, query,
		nu.FirstName, nu.LastName, nu.Email, nu.TelegramUsername, nu.HashedPassword,
		nu.Balance, nu.MinWithdrawalAmount,
	))
	if err != nil {
		if db.IsUniqueViolation(err, schema.IndexUsersEmail) {
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// GetByID retrieves a user by ID.
// Returns ErrUserNotFound if the user does not exist.
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.getOne(ctx, query, id)
}

// GetByIDForUpdate retrieves a user and locks the row until the transaction ends.
func (r *UserRepository) GetByIDForUpdate(ctx context.Context, id int64) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1 FOR UPDATE`
	return r.getOne(ctx, query, id)
}

// GetByEmail retrieves a user by email, ignoring case.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE LOWER(email) = LOWER($1)`
	return r.getOne(ctx, query, email)
}

func (r *UserRepository) getOne(ctx context.Context, query string, args ...any) (*model.User, error) {
	user, err := scanUser(r.q.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// EmailExists checks whether an account uses the email, ignoring case.
func (r *UserRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM users WHERE LOWER(email) = LOWER($1))`

	var exists bool
	if err := r.q.QueryRow(ctx, query, email).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check email: %w", err)
	}
	return exists, nil
}

// List returns users ordered by registration, newest first.
func (r *UserRepository) List(ctx context.Context, limit, offset int) ([]*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2`

	rows, err := r.q.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*model.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}
	return users, nil
}

// AddBalance atomically adds delta (which may be negative) to the balance.
// Returns the updated user.
func (r *UserRepository) AddBalance(ctx context.Context, id int64, delta decimal.Decimal) (*model.User, error) {
	query := `
		UPDATE users SET balance = balance + $2, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + userColumns
	return r.getOne(ctx, query, id, delta)
}

// UserPatch lists admin-editable fields. Nil fields are left unchanged.
type UserPatch struct {
	FirstName           *string
	LastName            *string
	TelegramUsername    *string
	Balance             *decimal.Decimal
	MinWithdrawalAmount *decimal.Decimal
	Level               *model.Level
	IsAdmin             *bool
	IsVerified          *bool
	WithdrawalEnabled   *bool
	DocumentsAccepted   *bool
	TourCompleted       *bool
}

// Empty reports whether the patch changes nothing.
func (p UserPatch) Empty() bool {
	return p == UserPatch{}
}

// Update applies a patch and returns the updated user.
func (r *UserRepository) Update(ctx context.Context, id int64, p UserPatch) (*model.User, error) {
	query := `
		UPDATE users SET
			first_name = COALESCE($2, first_name),
			last_name = COALESCE($3, last_name),
			telegram_username = COALESCE($4, telegram_username),
			balance = COALESCE($5, balance),
			min_withdrawal_amount = COALESCE($6, min_withdrawal_amount),
			level = COALESCE($7, level),
			is_admin = COALESCE($8, is_admin),
			is_verified = COALESCE($9, is_verified),
			withdrawal_enabled = COALESCE($10, withdrawal_enabled),
			documents_accepted = COALESCE($11, documents_accepted),
			tour_completed = COALESCE($12, tour_completed),
			updated_at = NOW()
		WHERE id = $1
		RETURNING ` + userColumns

	return r.getOne(ctx, query, id,
		p.FirstName, p.LastName, p.TelegramUsername,
		p.Balance, p.MinWithdrawalAmount, p.Level,
		p.IsAdmin, p.IsVerified, p.WithdrawalEnabled,
		p.DocumentsAccepted, p.TourCompleted,
	)
}

// SetPassword replaces the password hash.
func (r *UserRepository) SetPassword(ctx context.Context, id int64, hash string) error {
	const query = `UPDATE users SET hashed_password = $2, updated_at = NOW() WHERE id = $1`

	tag, err := r.q.Exec(ctx, query, id, hash)
	if err != nil {
		return fmt.Errorf("failed to set password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// SetWithdrawalEnabledAll toggles withdrawals for every non-admin user.
// Returns the number of users changed.
func (r *UserRepository) SetWithdrawalEnabledAll(ctx context.Context, enabled bool) (int64, error) {
	const query = `
		UPDATE users SET withdrawal_enabled = $1, updated_at = NOW()
		WHERE is_admin = FALSE AND withdrawal_enabled <> $1
	`
	tag, err := r.q.Exec(ctx, query, enabled)
	if err != nil {
		return 0, fmt.Errorf("failed to update withdrawal access: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListIDs returns the IDs of all non-admin users.
func (r *UserRepository) ListIDs(ctx context.Context) ([]int64, error) {
	const query = `SELECT id FROM users WHERE is_admin = FALSE ORDER BY id`

	rows, err := r.q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list user ids: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}
