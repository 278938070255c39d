package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"hr-portal/internal/model"
	"hr-portal/internal/pkg/db"
	"hr-portal/internal/pkg/lock"
	"hr-portal/internal/repository"
)

// WithdrawalService handles payout requests. The amount is debited when the
// request is created; completing a request only records that it was paid out.
type WithdrawalService struct {
	pool        *pgxpool.Pool
	users       *repository.UserRepository
	withdrawals *repository.WithdrawalRepository
	events      *EventLog
	locks       *lock.UserLock
	notifier    Notifier
	now         func() time.Time
}

// NewWithdrawalService creates a new WithdrawalService instance.
func NewWithdrawalService(
	pool *pgxpool.Pool,
	users *repository.UserRepository,
	withdrawals *repository.WithdrawalRepository,
	events *EventLog,
	locks *lock.UserLock,
	notifier Notifier,
) *WithdrawalService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &WithdrawalService{
		pool:        pool,
		users:       users,
		withdrawals: withdrawals,
		events:      events,
		locks:       locks,
		notifier:    notifier,
		now:         now,
	}
}

// Request validates and records a withdrawal. The user row is locked for the
// duration of the check and the debit, so concurrent requests cannot
// overdraw the balance.
func (s *WithdrawalService) Request(ctx context.Context, userID int64, network string, amount decimal.Decimal, address string) (*model.WithdrawalRequest, error) {
	network = strings.TrimSpace(network)
	address = strings.TrimSpace(address)
	if network == "" {
		return nil, invalidInput("network is required")
	}
	if address == "" {
		return nil, invalidInput("wallet address is required")
	}

	var (
		req  *model.WithdrawalRequest
		user *model.User
	)
	err := withUserLock(ctx, s.locks, userID, func() error {
		return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
			users := s.users.WithTx(tx)

			current, err := getUser(ctx, users, userID, true)
			if err != nil {
				return err
			}
			if err := CheckWithdrawal(current, amount); err != nil {
				return err
			}

			user, err = users.AddBalance(ctx, userID, amount.Neg())
			if err != nil {
				return storageErr("debit balance", err)
			}

			req, err = s.withdrawals.WithTx(tx).Create(ctx, userID, network, amount, address)
			if err != nil {
				return storageErr("create withdrawal", err)
			}

			return s.events.Record(ctx, tx, userID, model.EventWithdrawalRequest,
				fmt.Sprintf("Requested withdrawal of %s via %s", amount.StringFixed(2), network),
				map[string]any{
					"withdrawal_id":  req.ID,
					"amount":         amount.StringFixed(2),
					"network_coin":   network,
					"wallet_address": address,
					"balance_after":  user.Balance.StringFixed(2),
				})
		})
	})
	if err != nil {
		if errors.Is(err, ErrPolicy) {
			log.Info().Err(err).Int64("user_id", userID).Str("amount", amount.StringFixed(2)).Msg("Withdrawal rejected")
		}
		return nil, err
	}

	log.Info().
		Int64("user_id", userID).
		Int64("withdrawal_id", req.ID).
		Str("amount", amount.StringFixed(2)).
		Str("balance", user.Balance.StringFixed(2)).
		Msg("Withdrawal requested")

	s.notifier.Notify(ctx, fmt.Sprintf("Withdrawal request #%d: %s %s from %s",
		req.ID, amount.StringFixed(2), network, user.Email))

	return req, nil
}

// Complete marks a pending request as paid out.
func (s *WithdrawalService) Complete(ctx context.Context, adminID, id int64) (*model.WithdrawalRequest, error) {
	if _, err := requireAdmin(ctx, s.users, adminID); err != nil {
		return nil, err
	}

	var req *model.WithdrawalRequest
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		withdrawals := s.withdrawals.WithTx(tx)

		current, err := withdrawals.GetByIDForUpdate(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrWithdrawalNotFound) {
				return ErrWithdrawalNotFound
			}
			return storageErr("load withdrawal", err)
		}
		if current.Status == model.WithdrawalCompleted {
			return ErrWithdrawalCompleted
		}

		req, err = withdrawals.MarkCompleted(ctx, id, s.now())
		if err != nil {
			return storageErr("complete withdrawal", err)
		}

		return s.events.Record(ctx, tx, req.UserID, model.EventWithdrawalCompleted,
			fmt.Sprintf("Withdrawal of %s completed", req.Amount.StringFixed(2)),
			map[string]any{
				"withdrawal_id": req.ID,
				"amount":        req.Amount.StringFixed(2),
				"admin_id":      adminID,
			})
	})
	if err != nil {
		return nil, err
	}

	log.Info().Int64("admin_id", adminID).Int64("withdrawal_id", id).Msg("Withdrawal completed")
	return req, nil
}

// ListForUser returns a user's requests, newest first.
func (s *WithdrawalService) ListForUser(ctx context.Context, userID int64) ([]*model.WithdrawalRequest, error) {
	reqs, err := s.withdrawals.ListByUser(ctx, userID)
	if err != nil {
		return nil, storageErr("list withdrawals", err)
	}
	return reqs, nil
}

// ListAll returns every request, optionally filtered by status.
func (s *WithdrawalService) ListAll(ctx context.Context, status *model.WithdrawalStatus) ([]*model.WithdrawalRequest, error) {
	if status != nil && *status != model.WithdrawalPending && *status != model.WithdrawalCompleted {
		return nil, invalidInput("unknown withdrawal status %q", *status)
	}
	reqs, err := s.withdrawals.ListAll(ctx, status)
	if err != nil {
		return nil, storageErr("list withdrawals", err)
	}
	return reqs, nil
}

// SetAllEnabled toggles withdrawals for every non-admin user. Returns the
// number of users whose flag changed.
func (s *WithdrawalService) SetAllEnabled(ctx context.Context, adminID int64, enabled bool) (int64, error) {
	if _, err := requireAdmin(ctx, s.users, adminID); err != nil {
		return 0, err
	}
	n, err := s.users.SetWithdrawalEnabledAll(ctx, enabled)
	if err != nil {
		return 0, storageErr("set withdrawal access", err)
	}
	log.Info().Int64("admin_id", adminID).Bool("enabled", enabled).Int64("users", n).Msg("Withdrawal access changed")
	return n, nil
}
