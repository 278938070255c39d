package service

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"hr-portal/internal/model"
	"hr-portal/internal/repository"
)

// SettingsSnapshot is an immutable view of the runtime settings, read once
// per transaction.
type SettingsSnapshot struct {
	GlobalMinWithdrawal decimal.Decimal
	WelcomeMessage      string
}

// SettingsStore exposes the settings table through typed accessors.
// Missing or malformed values fall back to the defaults.
type SettingsStore struct {
	settings *repository.SettingRepository
	defaults SettingsSnapshot
}

// NewSettingsStore creates a SettingsStore. defaultMin is used when the
// global minimum withdrawal setting is absent or unparsable.
func NewSettingsStore(settings *repository.SettingRepository, defaultMin decimal.Decimal) *SettingsStore {
	return &SettingsStore{
		settings: settings,
		defaults: SettingsSnapshot{GlobalMinWithdrawal: defaultMin},
	}
}

// Snapshot reads the current settings.
func (s *SettingsStore) Snapshot(ctx context.Context) (SettingsSnapshot, error) {
	return s.load(ctx, s.settings)
}

// SnapshotTx reads the current settings inside tx.
func (s *SettingsStore) SnapshotTx(ctx context.Context, tx pgx.Tx) (SettingsSnapshot, error) {
	return s.load(ctx, s.settings.WithTx(tx))
}

func (s *SettingsStore) load(ctx context.Context, repo *repository.SettingRepository) (SettingsSnapshot, error) {
	values, err := repo.All(ctx)
	if err != nil {
		return SettingsSnapshot{}, storageErr("load settings", err)
	}
	return parseSettings(values, s.defaults), nil
}

// parseSettings converts raw rows into a snapshot.
func parseSettings(values map[string]string, defaults SettingsSnapshot) SettingsSnapshot {
	snap := defaults

	if raw, ok := values[model.SettingGlobalMinWithdrawal]; ok {
		v, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil || v.IsNegative() {
			log.Warn().
				Str("key", model.SettingGlobalMinWithdrawal).
				Str("value", raw).
				Msg("Ignoring malformed setting, using default")
		} else {
			snap.GlobalMinWithdrawal = v
		}
	}

	if raw, ok := values[model.SettingWelcomeMessage]; ok {
		snap.WelcomeMessage = strings.TrimSpace(raw)
	}

	return snap
}

// SetGlobalMinWithdrawal changes the minimum applied to future registrations.
// Existing users keep the minimum they registered with.
func (s *SettingsStore) SetGlobalMinWithdrawal(ctx context.Context, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return ErrInvalidAmount
	}
	err := s.settings.Upsert(ctx, model.SettingGlobalMinWithdrawal, amount.StringFixed(2),
		"Global minimum withdrawal amount for all users")
	return storageErr("set global minimum", err)
}

// SetWelcomeMessage changes the message sent to new users. An empty message
// disables it.
func (s *SettingsStore) SetWelcomeMessage(ctx context.Context, message string) error {
	err := s.settings.Upsert(ctx, model.SettingWelcomeMessage, strings.TrimSpace(message),
		"Support message sent to newly registered users")
	return storageErr("set welcome message", err)
}
