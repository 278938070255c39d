// Package model defines the data models for the HR portal.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// User represents a portal account.
// MinWithdrawalAmount is copied from the global setting at registration and
// only changes afterwards through an explicit admin edit.
type User struct {
	ID                  int64           `db:"id" json:"id"`
	FirstName           string          `db:"first_name" json:"first_name"`
	LastName            string          `db:"last_name" json:"last_name"`
	Email               string          `db:"email" json:"email"`
	TelegramUsername    *string         `db:"telegram_username" json:"telegram_username,omitempty"`
	HashedPassword      string          `db:"hashed_password" json:"-"`
	Balance             decimal.Decimal `db:"balance" json:"balance"`
	Level               Level           `db:"level" json:"level"`
	IsAdmin             bool            `db:"is_admin" json:"is_admin"`
	IsVerified          bool            `db:"is_verified" json:"is_verified"`
	DocumentsAccepted   bool            `db:"documents_accepted" json:"documents_accepted"`
	TourCompleted       bool            `db:"tour_completed" json:"tour_completed"`
	WithdrawalEnabled   bool            `db:"withdrawal_enabled" json:"withdrawal_enabled"`
	MinWithdrawalAmount decimal.Decimal `db:"min_withdrawal_amount" json:"min_withdrawal_amount"`
	CreatedAt           time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time       `db:"updated_at" json:"updated_at"`
}

// DisplayName returns the name shown to other chat participants.
func (u *User) DisplayName() string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	default:
		return u.Email
	}
}

// Task is an admin-defined unit of work with a reward.
// ExpiresAt is the absolute cutoff after which the task cannot be taken;
// TimeLimitHours bounds each individual attempt.
type Task struct {
	ID             int64           `db:"id" json:"id"`
	Title          string          `db:"title" json:"title"`
	Description    string          `db:"description" json:"description"`
	RequiredProof  string          `db:"required_proof" json:"required_proof"`
	Reward         decimal.Decimal `db:"reward" json:"reward"`
	LevelRequired  Level           `db:"level_required" json:"level_required"`
	CreatedBy      int64           `db:"created_by" json:"created_by"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	ExpiresAt      *time.Time      `db:"expires_at" json:"expires_at,omitempty"`
	TimeLimitHours *int            `db:"time_limit_hours" json:"time_limit_hours,omitempty"`
	IsActive       bool            `db:"is_active" json:"is_active"`
}

// AvailableAt reports whether the task can be taken at the given instant.
func (t *Task) AvailableAt(now time.Time) bool {
	if !t.IsActive {
		return false
	}
	return t.ExpiresAt == nil || !now.After(*t.ExpiresAt)
}

// UserTask is one attempt by a user at a task.
type UserTask struct {
	ID           int64          `db:"id" json:"id"`
	UserID       int64          `db:"user_id" json:"user_id"`
	TaskID       int64          `db:"task_id" json:"task_id"`
	Status       UserTaskStatus `db:"status" json:"status"`
	TakenAt      time.Time      `db:"taken_at" json:"taken_at"`
	ExpiresAt    time.Time      `db:"expires_at" json:"expires_at"`
	SubmittedAt  *time.Time     `db:"submitted_at" json:"submitted_at,omitempty"`
	ApprovedAt   *time.Time     `db:"approved_at" json:"approved_at,omitempty"`
	Proof        *string        `db:"proof" json:"proof,omitempty"`
	ProofFiles   []string       `db:"proof_files" json:"proof_files"`
	ProofLinks   []string       `db:"proof_links" json:"proof_links"`
	AdminComment *string        `db:"admin_comment" json:"admin_comment,omitempty"`
	ReviewedBy   *int64         `db:"reviewed_by" json:"reviewed_by,omitempty"`
}

// Overdue reports whether a taken attempt has passed its deadline.
func (ut *UserTask) Overdue(now time.Time) bool {
	return ut.Status == StatusTaken && now.After(ut.ExpiresAt)
}

// UserTaskDetail joins an attempt with its task and the owning user,
// used by the moderation queue.
type UserTaskDetail struct {
	UserTask
	TaskTitle string          `json:"task_title"`
	Reward    decimal.Decimal `json:"reward"`
	UserEmail string          `json:"user_email"`
	UserName  string          `json:"user_name"`
}

// AvailableTask is a task as seen by a specific user.
type AvailableTask struct {
	Task
	Eligible      bool            `json:"eligible"`
	CurrentStatus *UserTaskStatus `json:"current_status,omitempty"`
	UserTaskID    *int64          `json:"user_task_id,omitempty"`
}

// TaskStats summarizes a user's attempts.
type TaskStats struct {
	Taken       int             `json:"taken"`
	Submitted   int             `json:"submitted"`
	Approved    int             `json:"approved"`
	Rejected    int             `json:"rejected"`
	Revision    int             `json:"revision"`
	Expired     int             `json:"expired"`
	TotalEarned decimal.Decimal `json:"total_earned"`
}

// Setting is a key/value row of the runtime settings store.
type Setting struct {
	ID          int64     `db:"id" json:"id"`
	Key         string    `db:"key" json:"key"`
	Value       string    `db:"value" json:"value"`
	Description *string   `db:"description" json:"description,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Setting keys.
const (
	SettingGlobalMinWithdrawal = "global_min_withdrawal_amount"
	SettingWelcomeMessage      = "welcome_message"
)

// WithdrawalStatus is the state of a withdrawal request.
type WithdrawalStatus string

// Withdrawal request states.
const (
	WithdrawalPending   WithdrawalStatus = "pending"
	WithdrawalCompleted WithdrawalStatus = "completed"
)

// WithdrawalRequest is a pending or completed payout. The amount has already
// been debited from the user's balance when the request exists.
type WithdrawalRequest struct {
	ID            int64            `db:"id" json:"id"`
	UserID        int64            `db:"user_id" json:"user_id"`
	NetworkCoin   string           `db:"network_coin" json:"network_coin"`
	Amount        decimal.Decimal  `db:"amount" json:"amount"`
	WalletAddress string           `db:"wallet_address" json:"wallet_address"`
	Status        WithdrawalStatus `db:"status" json:"status"`
	CreatedAt     time.Time        `db:"created_at" json:"created_at"`
	CompletedAt   *time.Time       `db:"completed_at" json:"completed_at,omitempty"`
	UserEmail     string           `db:"-" json:"user_email,omitempty"`
}

// VerificationStatus is the state of a KYC request.
type VerificationStatus string

// Verification request states.
const (
	VerificationPending  VerificationStatus = "pending"
	VerificationApproved VerificationStatus = "approved"
	VerificationRejected VerificationStatus = "rejected"
)

// VerificationRequest holds identity documents submitted for review.
type VerificationRequest struct {
	ID                 int64              `db:"id" json:"id"`
	UserID             int64              `db:"user_id" json:"user_id"`
	FullName           string             `db:"full_name" json:"full_name"`
	DateOfBirth        string             `db:"date_of_birth" json:"date_of_birth"`
	PassportNumber     string             `db:"passport_number" json:"passport_number"`
	PassportIssueDate  string             `db:"passport_issue_date" json:"passport_issue_date"`
	PassportIssuer     string             `db:"passport_issuer" json:"passport_issuer"`
	Address            string             `db:"address" json:"address"`
	PhoneNumber        string             `db:"phone_number" json:"phone_number"`
	DocumentFront      *string            `db:"document_front" json:"document_front,omitempty"`
	DocumentBack       *string            `db:"document_back" json:"document_back,omitempty"`
	SelfieWithDocument *string            `db:"selfie_with_document" json:"selfie_with_document,omitempty"`
	Status             VerificationStatus `db:"status" json:"status"`
	AdminComment       *string            `db:"admin_comment" json:"admin_comment,omitempty"`
	SubmittedAt        time.Time          `db:"submitted_at" json:"submitted_at"`
	ReviewedAt         *time.Time         `db:"reviewed_at" json:"reviewed_at,omitempty"`
	ReviewedBy         *int64             `db:"reviewed_by" json:"reviewed_by,omitempty"`
}

// UserEvent is an append-only audit record.
type UserEvent struct {
	ID               int64          `db:"id" json:"id"`
	UserID           int64          `db:"user_id" json:"user_id"`
	EventType        string         `db:"event_type" json:"event_type"`
	EventDescription string         `db:"event_description" json:"event_description"`
	EventData        map[string]any `db:"event_data" json:"event_data,omitempty"`
	CreatedAt        time.Time      `db:"created_at" json:"created_at"`
}

// Event types recorded in the audit log.
const (
	EventAccountCreated        = "account_created"
	EventTaskTaken             = "task_taken"
	EventTaskSubmitted         = "task_submitted"
	EventTaskApproved          = "task_approved"
	EventTaskRejected          = "task_rejected"
	EventTaskRevision          = "task_revision"
	EventTaskExpired           = "task_expired"
	EventWithdrawalRequest     = "withdrawal_request"
	EventWithdrawalCompleted   = "withdrawal_completed"
	EventVerificationSubmitted = "verification_submitted"
	EventVerificationApproved  = "verification_approved"
	EventVerificationRejected  = "verification_rejected"
	EventAdminUpdate           = "admin_update"
	EventAdminGranted          = "admin_granted"
)

// News is an admin announcement.
type News struct {
	ID        int64     `db:"id" json:"id"`
	Title     string    `db:"title" json:"title"`
	Content   string    `db:"content" json:"content"`
	CreatedBy int64     `db:"created_by" json:"created_by"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	IsActive  bool      `db:"is_active" json:"is_active"`
}

// RankedUser is a leaderboard row. Score meaning depends on the board:
// balance, approved attempts, or approval rate in percent.
type RankedUser struct {
	UserID   int64           `json:"user_id"`
	Name     string          `json:"name"`
	Email    string          `json:"email"`
	Score    decimal.Decimal `json:"score"`
	Approved int             `json:"approved"`
	Reviewed int             `json:"reviewed"`
}
