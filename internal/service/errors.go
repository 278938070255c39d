// Package service provides business logic implementations.
package service

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by a service operation matches exactly one
// kind via errors.Is, except ErrAlreadyReviewed which is both a conflict and an
// invalid state.
var (
	ErrConflict     = errors.New("conflict")
	ErrIneligible   = errors.New("ineligible")
	ErrInvalidState = errors.New("invalid state")
	ErrPolicy       = errors.New("policy violation")
	ErrNotFound     = errors.New("not found")
	ErrStorage      = errors.New("storage failure")
)

// Not found errors.
var (
	ErrUserNotFound         = fmt.Errorf("%w: user", ErrNotFound)
	ErrTaskNotFound         = fmt.Errorf("%w: task", ErrNotFound)
	ErrUserTaskNotFound     = fmt.Errorf("%w: task attempt", ErrNotFound)
	ErrWithdrawalNotFound   = fmt.Errorf("%w: withdrawal request", ErrNotFound)
	ErrVerificationNotFound = fmt.Errorf("%w: verification request", ErrNotFound)
	ErrNewsNotFound         = fmt.Errorf("%w: news", ErrNotFound)
)

// Conflict errors.
var (
	ErrTaskAlreadyTaken       = fmt.Errorf("%w: task already taken", ErrConflict)
	ErrEmailTaken             = fmt.Errorf("%w: email already registered", ErrConflict)
	ErrWithdrawalCompleted    = fmt.Errorf("%w: withdrawal already completed", ErrConflict)
	ErrAlreadyVerified        = fmt.Errorf("%w: user already verified", ErrConflict)
	ErrVerificationInProgress = fmt.Errorf("%w: verification already pending", ErrConflict)
)

// Eligibility errors.
var (
	ErrLevelTooLow        = fmt.Errorf("%w: user level too low for task", ErrIneligible)
	ErrNotAdmin           = fmt.Errorf("%w: admin privileges required", ErrIneligible)
	ErrInvalidCredentials = fmt.Errorf("%w: invalid email or password", ErrIneligible)
	ErrInvalidAdminSecret = fmt.Errorf("%w: invalid admin secret", ErrIneligible)
)

// Invalid state errors.
var (
	ErrTaskUnavailable   = fmt.Errorf("%w: task is inactive or expired", ErrInvalidState)
	ErrInvalidTransition = fmt.Errorf("%w: transition not allowed", ErrInvalidState)
	ErrAttemptExpired    = fmt.Errorf("%w: attempt deadline passed", ErrInvalidState)
	ErrNotPending        = fmt.Errorf("%w: request is not pending", ErrInvalidState)
)

// Policy errors.
var (
	ErrWithdrawalDisabled  = fmt.Errorf("%w: withdrawals disabled for user", ErrPolicy)
	ErrBelowMinimum        = fmt.Errorf("%w: amount below minimum withdrawal", ErrPolicy)
	ErrInsufficientBalance = fmt.Errorf("%w: insufficient balance", ErrPolicy)
	ErrInvalidAmount       = fmt.Errorf("%w: amount must be positive", ErrPolicy)
	ErrAmountPrecision     = fmt.Errorf("%w: amount has more than two decimal places", ErrPolicy)
	ErrInvalidInput        = fmt.Errorf("%w: invalid input", ErrPolicy)
)

// ErrAlreadyReviewed is returned when reviewing an attempt that already has a
// final decision.
var ErrAlreadyReviewed error = &multiKindError{
	msg:   "attempt already reviewed",
	kinds: []error{ErrConflict, ErrInvalidState},
}

type multiKindError struct {
	msg   string
	kinds []error
}

func (e *multiKindError) Error() string { return e.msg }

func (e *multiKindError) Is(target error) bool {
	for _, k := range e.kinds {
		if target == k {
			return true
		}
	}
	return false
}

// StorageError wraps a database failure. The enclosing transaction has been
// rolled back when it is returned.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Is makes every StorageError match ErrStorage.
func (e *StorageError) Is(target error) bool { return target == ErrStorage }

// storageErr wraps err unless it already carries a service error kind.
func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, kind := range []error{ErrConflict, ErrIneligible, ErrInvalidState, ErrPolicy, ErrNotFound, ErrStorage} {
		if errors.Is(err, kind) {
			return err
		}
	}
	return &StorageError{Op: op, Err: err}
}

// invalidInput builds a policy error describing a rejected field.
func invalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
