package repository

import "errors"

// Common errors for repository operations.
var (
	ErrUserNotFound         = errors.New("user not found")
	ErrTaskNotFound         = errors.New("task not found")
	ErrUserTaskNotFound     = errors.New("user task not found")
	ErrWithdrawalNotFound   = errors.New("withdrawal request not found")
	ErrVerificationNotFound = errors.New("verification request not found")
	ErrNewsNotFound         = errors.New("news not found")
	ErrSettingNotFound      = errors.New("setting not found")

	// ErrDuplicateEmail is returned when another account already uses the
	// email address, compared case-insensitively.
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrActiveAttempt is returned when the user already holds a
	// non-terminal attempt at the task.
	ErrActiveAttempt = errors.New("active attempt already exists")
)
