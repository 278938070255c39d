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

// VerificationRepository handles KYC requests.
type VerificationRepository struct {
	q db.Querier
}

// NewVerificationRepository creates a new VerificationRepository instance.
func NewVerificationRepository(q db.Querier) *VerificationRepository {
	return &VerificationRepository{q: q}
}

// WithTx returns a copy bound to the transaction.
func (r *VerificationRepository) WithTx(tx pgx.Tx) *VerificationRepository {
	return &VerificationRepository{q: tx}
}

const verificationColumns = `id, user_id, full_name, date_of_birth, passport_number,
	passport_issue_date, passport_issuer, address, phone_number, document_front,
	document_back, selfie_with_document, status, admin_comment, submitted_at,
	reviewed_at, reviewed_by`

func scanVerification(row pgx.Row) (*model.VerificationRequest, error) {
	var v model.VerificationRequest
	err := row.Scan(
		&v.ID, &v.UserID, &v.FullName, &v.DateOfBirth, &v.PassportNumber,
		&v.PassportIssueDate, &v.PassportIssuer, &v.Address, &v.PhoneNumber, &v.DocumentFront,
		&v.DocumentBack, &v.SelfieWithDocument, &v.Status, &v.AdminComment, &v.SubmittedAt,
		&v.ReviewedAt, &v.ReviewedBy,
	)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *VerificationRepository) getOne(ctx context.Context, query string, args ...any) (*model.VerificationRequest, error) {
	v, err := scanVerification(r.q.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrVerificationNotFound
		}
		return nil, fmt.Errorf("failed to get verification request: %w", err)
	}
	return v, nil
}

// Create inserts a pending request from v. ID, status and timestamps are ignored.
func (r *VerificationRepository) Create(ctx context.Context, v *model.VerificationRequest) (*model.VerificationRequest, error) {
	query := `
		INSERT INTO verification_requests (user_id, full_name, date_of_birth, passport_number,
			passport_issue_date, passport_issuer, address, phone_number, document_front,
			document_back, selfie_with_document, status, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 'pending', NOW())
		RETURNING ` + verificationColumns

	created, err := scanVerification(r.q.QueryRow(ctx, query,
		v.UserID, v.FullName, v.DateOfBirth, v.PassportNumber,
		v.PassportIssueDate, v.PassportIssuer, v.Address, v.PhoneNumber, v.DocumentFront,
		v.DocumentBack, v.SelfieWithDocument,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create verification request: %w", err)
	}
	return created, nil
}

// GetByIDForUpdate retrieves a request and locks it.
func (r *VerificationRepository) GetByIDForUpdate(ctx context.Context, id int64) (*model.VerificationRequest, error) {
	query := `SELECT ` + verificationColumns + ` FROM verification_requests WHERE id = $1 FOR UPDATE`
	return r.getOne(ctx, query, id)
}

// Latest returns the user's most recent request.
func (r *VerificationRepository) Latest(ctx context.Context, userID int64) (*model.VerificationRequest, error) {
	query := `SELECT ` + verificationColumns + ` FROM verification_requests
		WHERE user_id = $1 ORDER BY submitted_at DESC, id DESC LIMIT 1`
	return r.getOne(ctx, query, userID)
}

// HasPending reports whether the user has a request awaiting review.
func (r *VerificationRepository) HasPending(ctx context.Context, userID int64) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM verification_requests WHERE user_id = $1 AND status = 'pending')`

	var exists bool
	if err := r.q.QueryRow(ctx, query, userID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check pending verification: %w", err)
	}
	return exists, nil
}

// MarkReviewed stores the admin decision.
func (r *VerificationRepository) MarkReviewed(ctx context.Context, id int64, status model.VerificationStatus, comment *string, reviewer int64, at time.Time) (*model.VerificationRequest, error) {
	query := `
		UPDATE verification_requests
		SET status = $2, admin_comment = $3, reviewed_by = $4, reviewed_at = $5
		WHERE id = $1
		RETURNING ` + verificationColumns
	return r.getOne(ctx, query, id, status, comment, reviewer, at)
}

// List returns requests, optionally filtered by status, newest first.
func (r *VerificationRepository) List(ctx context.Context, status *model.VerificationStatus) ([]*model.VerificationRequest, error) {
	query := `SELECT ` + verificationColumns + ` FROM verification_requests
		WHERE $1::text IS NULL OR status = $1
		ORDER BY submitted_at DESC, id DESC`

	rows, err := r.q.Query(ctx, query, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list verification requests: %w", err)
	}
	defer rows.Close()

	var out []*model.VerificationRequest
	for rows.Next() {
		v, err := scanVerification(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan verification request: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating verification requests: %w", err)
	}
	return out, nil
}

// ListPendingIDs returns pending request IDs, oldest first.
func (r *VerificationRepository) ListPendingIDs(ctx context.Context) ([]int64, error) {
	const query = `SELECT id FROM verification_requests WHERE status = 'pending' ORDER BY submitted_at, id`

	rows, err := r.q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending verifications: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}
