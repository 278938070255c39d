package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"hr-portal/internal/model"
	"hr-portal/internal/pkg/lock"
	"hr-portal/internal/repository"
)

// Notifier delivers short operational messages to the admins. Delivery is
// best effort and happens after the triggering transaction committed.
type Notifier interface {
	Notify(ctx context.Context, text string)
}

// NopNotifier discards notifications.
type NopNotifier struct{}

// Notify implements Notifier.
func (NopNotifier) Notify(context.Context, string) {}

// now returns the current time at the precision PostgreSQL stores, so a
// timestamp read back compares equal to the one written.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// requireAdmin loads the actor and checks the admin flag.
func requireAdmin(ctx context.Context, users *repository.UserRepository, adminID int64) (*model.User, error) {
	admin, err := users.GetByID(ctx, adminID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrNotAdmin
		}
		return nil, storageErr("load admin", err)
	}
	if !admin.IsAdmin {
		return nil, ErrNotAdmin
	}
	return admin, nil
}

// getUser loads a user, mapping the repository error to the service kind.
func getUser(ctx context.Context, users *repository.UserRepository, id int64, forUpdate bool) (*model.User, error) {
	var (
		user *model.User
		err  error
	)
	if forUpdate {
		user, err = users.GetByIDForUpdate(ctx, id)
	} else {
		user, err = users.GetByID(ctx, id)
	}
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, storageErr("load user", err)
	}
	return user, nil
}

func clampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}

// ErrBusy is returned when a per-user lock could not be acquired in time.
var ErrBusy = fmt.Errorf("%w: another request for this user is in progress", ErrConflict)

// withUserLock runs fn while holding the user's in-process lock.
func withUserLock(ctx context.Context, locks *lock.UserLock, userID int64, fn func() error) error {
	err := locks.WithLock(ctx, userID, fn)
	if errors.Is(err, lock.ErrLockTimeout) {
		return ErrBusy
	}
	return err
}
