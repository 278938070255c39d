package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"hr-portal/internal/model"
	"hr-portal/internal/pkg/db"
)

// RankingRepository runs the leaderboard queries.
type RankingRepository struct {
	q db.Querier
}

// NewRankingRepository creates a new RankingRepository instance.
func NewRankingRepository(q db.Querier) *RankingRepository {
	return &RankingRepository{q: q}
}

// TopByBalance returns non-admin users with the highest balances.
func (r *RankingRepository) TopByBalance(ctx context.Context, limit int) ([]*model.RankedUser, error) {
	const query = `
		SELECT u.id, TRIM(u.first_name || ' ' || u.last_name), u.email, u.balance,
			COUNT(ut.id) FILTER (WHERE ut.status = 'approved'),
			COUNT(ut.id) FILTER (WHERE ut.status IN ('approved', 'rejected'))
		FROM users u
		LEFT JOIN user_tasks ut ON ut.user_id = u.id
		WHERE u.is_admin = FALSE
		GROUP BY u.id
		ORDER BY u.balance DESC, u.id
		LIMIT $1
	`
	return r.ranked(ctx, query, limit)
}

// TopByApproved returns users with the most approved attempts.
func (r *RankingRepository) TopByApproved(ctx context.Context, limit int) ([]*model.RankedUser, error) {
	const query = `
		SELECT u.id, TRIM(u.first_name || ' ' || u.last_name), u.email,
			COUNT(ut.id) FILTER (WHERE ut.status = 'approved')::numeric,
			COUNT(ut.id) FILTER (WHERE ut.status = 'approved'),
			COUNT(ut.id) FILTER (WHERE ut.status IN ('approved', 'rejected'))
		FROM users u
		JOIN user_tasks ut ON ut.user_id = u.id
		WHERE u.is_admin = FALSE
		GROUP BY u.id
		HAVING COUNT(ut.id) FILTER (WHERE ut.status = 'approved') > 0
		ORDER BY 4 DESC, u.id
		LIMIT $1
	`
	return r.ranked(ctx, query, limit)
}

// TopByApprovalRate returns users with the best approved/(approved+rejected)
// ratio in percent, among users with at least minReviewed decided attempts.
func (r *RankingRepository) TopByApprovalRate(ctx context.Context, limit, minReviewed int) ([]*model.RankedUser, error) {
	const query = `
		SELECT id, name, email,
			ROUND(approved::numeric * 100 / reviewed, 2), approved, reviewed
		FROM (
			SELECT u.id, TRIM(u.first_name || ' ' || u.last_name) AS name, u.email,
				COUNT(ut.id) FILTER (WHERE ut.status = 'approved') AS approved,
				COUNT(ut.id) FILTER (WHERE ut.status IN ('approved', 'rejected')) AS reviewed
			FROM users u
			JOIN user_tasks ut ON ut.user_id = u.id
			WHERE u.is_admin = FALSE
			GROUP BY u.id
		) s
		WHERE reviewed >= GREATEST($2, 1)
		ORDER BY 4 DESC, reviewed DESC, id
		LIMIT $1
	`
	return r.ranked(ctx, query, limit, minReviewed)
}

func (r *RankingRepository) ranked(ctx context.Context, query string, args ...any) ([]*model.RankedUser, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query leaderboard: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*model.RankedUser, error) {
		var ru model.RankedUser
		err := row.Scan(&ru.UserID, &ru.Name, &ru.Email, &ru.Score, &ru.Approved, &ru.Reviewed)
		return &ru, err
	})
}
