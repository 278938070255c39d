package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"hr-portal/internal/auth"
	"hr-portal/internal/model"
	"hr-portal/internal/pkg/db"
	"hr-portal/internal/repository"
)

// minPasswordLength is the shortest password accepted at registration.
const minPasswordLength = 6

// Registration is the input of Register.
type Registration struct {
	FirstName        string
	LastName         string
	Email            string
	Password         string
	TelegramUsername *string
}

// AdminUserUpdate lists the fields an admin may change on a user.
// Nil fields are left unchanged.
type AdminUserUpdate struct {
	Balance             *decimal.Decimal
	MinWithdrawalAmount *decimal.Decimal
	Level               *model.Level
	IsVerified          *bool
	IsAdmin             *bool
	WithdrawalEnabled   *bool
}

// AccountService handles user account operations.
type AccountService struct {
	pool           *pgxpool.Pool
	users          *repository.UserRepository
	settings       *SettingsStore
	events         *EventLog
	chat           *ChatService
	hasher         *auth.PasswordHasher
	notifier       Notifier
	initialBalance decimal.Decimal
	adminSecret    string
}

// NewAccountService creates a new AccountService instance.
func NewAccountService(
	pool *pgxpool.Pool,
	users *repository.UserRepository,
	settings *SettingsStore,
	events *EventLog,
	chat *ChatService,
	hasher *auth.PasswordHasher,
	notifier Notifier,
	initialBalance decimal.Decimal,
	adminSecret string,
) *AccountService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &AccountService{
		pool:           pool,
		users:          users,
		settings:       settings,
		events:         events,
		chat:           chat,
		hasher:         hasher,
		notifier:       notifier,
		initialBalance: initialBalance,
		adminSecret:    adminSecret,
	}
}

// normalizeEmail trims and lowercases an address for storage and lookup.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates an account.
//
// The user's minimum withdrawal amount is frozen from the global setting as it
// stands at registration. The account row, its audit event, its chat read
// state and the optional welcome message commit together.
func (s *AccountService) Register(ctx context.Context, in Registration) (*model.User, error) {
	email := normalizeEmail(in.Email)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, invalidInput("invalid email address")
	}
	if len(in.Password) < minPasswordLength {
		return nil, invalidInput("password must be at least %d characters", minPasswordLength)
	}
	firstName := strings.TrimSpace(in.FirstName)
	lastName := strings.TrimSpace(in.LastName)
	if firstName == "" {
		return nil, invalidInput("first name is required")
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	var user *model.User
	err = db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		users := s.users.WithTx(tx)

		exists, err := users.EmailExists(ctx, email)
		if err != nil {
			return storageErr("check email", err)
		}
		if exists {
			return ErrEmailTaken
		}

		snap, err := s.settings.SnapshotTx(ctx, tx)
		if err != nil {
			return err
		}

		user, err = users.Create(ctx, repository.NewUser{
			FirstName:           firstName,
			LastName:            lastName,
			Email:               email,
			TelegramUsername:    in.TelegramUsername,
			HashedPassword:      hash,
			Balance:             s.initialBalance,
			MinWithdrawalAmount: snap.GlobalMinWithdrawal,
		})
		if err != nil {
			if errors.Is(err, repository.ErrDuplicateEmail) {
				return ErrEmailTaken
			}
			return storageErr("create user", err)
		}

		if err := s.events.Record(ctx, tx, user.ID, model.EventAccountCreated,
			"Account created",
			map[string]any{
				"email":                 user.Email,
				"initial_balance":       user.Balance.StringFixed(2),
				"min_withdrawal_amount": user.MinWithdrawalAmount.StringFixed(2),
			}); err != nil {
			return err
		}

		if err := s.chat.InitializeUser(ctx, tx, user.ID); err != nil {
			return err
		}

		if snap.WelcomeMessage != "" {
			if err := s.chat.SendWelcomeTx(ctx, tx, user.ID, snap.WelcomeMessage); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Int64("user_id", user.ID).
		Str("email", user.Email).
		Msg("User registered")

	s.notifier.Notify(ctx, fmt.Sprintf("New registration: %s (%s)", user.DisplayName(), user.Email))

	return user, nil
}

// Login checks credentials and returns the user.
func (s *AccountService) Login(ctx context.Context, email, password string) (*model.User, error) {
	user, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, storageErr("load user", err)
	}
	if !s.hasher.Check(user.HashedPassword, password) {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// GetUser retrieves a user by ID.
func (s *AccountService) GetUser(ctx context.Context, id int64) (*model.User, error) {
	return getUser(ctx, s.users, id, false)
}

// RequireAdmin returns the user when they hold admin privileges.
func (s *AccountService) RequireAdmin(ctx context.Context, id int64) (*model.User, error) {
	return requireAdmin(ctx, s.users, id)
}

// ListUsers returns a page of users, newest first.
func (s *AccountService) ListUsers(ctx context.Context, limit, offset int) ([]*model.User, error) {
	if offset < 0 {
		offset = 0
	}
	users, err := s.users.List(ctx, clampLimit(limit, 100, 1000), offset)
	if err != nil {
		return nil, storageErr("list users", err)
	}
	return users, nil
}

// AdminUpdate applies an admin edit to a user and records what changed.
func (s *AccountService) AdminUpdate(ctx context.Context, adminID, userID int64, in AdminUserUpdate) (*model.User, error) {
	if _, err := requireAdmin(ctx, s.users, adminID); err != nil {
		return nil, err
	}
	if in.Balance != nil && in.Balance.IsNegative() {
		return nil, invalidInput("balance must not be negative")
	}
	if in.MinWithdrawalAmount != nil && in.MinWithdrawalAmount.IsNegative() {
		return nil, invalidInput("minimum withdrawal amount must not be negative")
	}
	if in.Level != nil {
		if _, err := model.ParseLevel(string(*in.Level)); err != nil {
			return nil, invalidInput("%v", err)
		}
	}

	patch := repository.UserPatch{
		Balance:             in.Balance,
		MinWithdrawalAmount: in.MinWithdrawalAmount,
		Level:               in.Level,
		IsVerified:          in.IsVerified,
		IsAdmin:             in.IsAdmin,
		WithdrawalEnabled:   in.WithdrawalEnabled,
	}

	var updated *model.User
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		users := s.users.WithTx(tx)

		before, err := getUser(ctx, users, userID, true)
		if err != nil {
			return err
		}
		if patch.Empty() {
			updated = before
			return nil
		}

		updated, err = users.Update(ctx, userID, patch)
		if err != nil {
			return storageErr("update user", err)
		}

		changes := diffUser(before, updated)
		if len(changes) == 0 {
			return nil
		}
		changes["admin_id"] = adminID
		return s.events.Record(ctx, tx, userID, model.EventAdminUpdate,
			"Account updated by administrator", changes)
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Int64("admin_id", adminID).
		Int64("user_id", userID).
		Msg("User updated by admin")

	return updated, nil
}

// diffUser describes admin-editable fields that differ between two user rows.
func diffUser(before, after *model.User) map[string]any {
	changes := make(map[string]any)
	change := func(field string, from, to any) {
		changes[field] = map[string]any{"from": from, "to": to}
	}
	if !before.Balance.Equal(after.Balance) {
		change("balance", before.Balance.StringFixed(2), after.Balance.StringFixed(2))
	}
	if !before.MinWithdrawalAmount.Equal(after.MinWithdrawalAmount) {
		change("min_withdrawal_amount", before.MinWithdrawalAmount.StringFixed(2), after.MinWithdrawalAmount.StringFixed(2))
	}
	if before.Level != after.Level {
		change("level", before.Level, after.Level)
	}
	if before.IsVerified != after.IsVerified {
		change("is_verified", before.IsVerified, after.IsVerified)
	}
	if before.IsAdmin != after.IsAdmin {
		change("is_admin", before.IsAdmin, after.IsAdmin)
	}
	if before.WithdrawalEnabled != after.WithdrawalEnabled {
		change("withdrawal_enabled", before.WithdrawalEnabled, after.WithdrawalEnabled)
	}
	return changes
}

// ChangePassword sets a new password for a user on behalf of an admin.
func (s *AccountService) ChangePassword(ctx context.Context, adminID, userID int64, password string) error {
	if _, err := requireAdmin(ctx, s.users, adminID); err != nil {
		return err
	}
	if len(password) < minPasswordLength {
		return invalidInput("password must be at least %d characters", minPasswordLength)
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.users.SetPassword(ctx, userID, hash); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrUserNotFound
		}
		return storageErr("set password", err)
	}
	log.Info().Int64("admin_id", adminID).Int64("user_id", userID).Msg("Password changed by admin")
	return nil
}

// CompleteTour marks the onboarding tour as done.
func (s *AccountService) CompleteTour(ctx context.Context, userID int64) (*model.User, error) {
	done := true
	return s.patchSelf(ctx, userID, repository.UserPatch{TourCompleted: &done})
}

// AcceptDocuments records that the user accepted the portal documents.
func (s *AccountService) AcceptDocuments(ctx context.Context, userID int64) (*model.User, error) {
	accepted := true
	return s.patchSelf(ctx, userID, repository.UserPatch{DocumentsAccepted: &accepted})
}

func (s *AccountService) patchSelf(ctx context.Context, userID int64, p repository.UserPatch) (*model.User, error) {
	user, err := s.users.Update(ctx, userID, p)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, storageErr("update user", err)
	}
	return user, nil
}

// GrantAdminWithSecret promotes a user to admin when the configured access key
// matches. An empty configured key disables this path.
func (s *AccountService) GrantAdminWithSecret(ctx context.Context, userID int64, secret string) (*model.User, error) {
	if s.adminSecret == "" || subtle.ConstantTimeCompare([]byte(secret), []byte(s.adminSecret)) != 1 {
		log.Warn().Int64("user_id", userID).Msg("Rejected admin access key")
		return nil, ErrInvalidAdminSecret
	}

	var user *model.User
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		users := s.users.WithTx(tx)
		current, err := getUser(ctx, users, userID, true)
		if err != nil {
			return err
		}
		if current.IsAdmin {
			user = current
			return nil
		}

		isAdmin := true
		user, err = users.Update(ctx, userID, repository.UserPatch{IsAdmin: &isAdmin})
		if err != nil {
			return storageErr("grant admin", err)
		}
		return s.events.Record(ctx, tx, userID, model.EventAdminGranted,
			"Administrator access granted with access key", nil)
	})
	if err != nil {
		return nil, err
	}

	log.Info().Int64("user_id", userID).Msg("Admin access granted")
	return user, nil
}
