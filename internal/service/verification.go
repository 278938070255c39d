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

	"hr-portal/internal/model"
	"hr-portal/internal/pkg/db"
	"hr-portal/internal/repository"
)

// VerificationSubmission is the identity data a user sends for review.
// Document fields hold stored upload paths and may be nil.
type VerificationSubmission struct {
	FullName           string
	DateOfBirth        string
	PassportNumber     string
	PassportIssueDate  string
	PassportIssuer     string
	Address            string
	PhoneNumber        string
	DocumentFront      *string
	DocumentBack       *string
	SelfieWithDocument *string
}

// VerificationService handles KYC requests.
type VerificationService struct {
	pool          *pgxpool.Pool
	users         *repository.UserRepository
	verifications *repository.VerificationRepository
	events        *EventLog
	notifier      Notifier
	now           func() time.Time
}

// NewVerificationService creates a new VerificationService instance.
func NewVerificationService(
	pool *pgxpool.Pool,
	users *repository.UserRepository,
	verifications *repository.VerificationRepository,
	events *EventLog,
	notifier Notifier,
) *VerificationService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &VerificationService{
		pool:          pool,
		users:         users,
		verifications: verifications,
		events:        events,
		notifier:      notifier,
		now:           now,
	}
}

// Submit files a verification request. A verified user, or one with a request
// still pending, cannot submit another.
func (s *VerificationService) Submit(ctx context.Context, userID int64, in VerificationSubmission) (*model.VerificationRequest, error) {
	req := &model.VerificationRequest{
		UserID:             userID,
		FullName:           strings.TrimSpace(in.FullName),
		DateOfBirth:        strings.TrimSpace(in.DateOfBirth),
		PassportNumber:     strings.TrimSpace(in.PassportNumber),
		PassportIssueDate:  strings.TrimSpace(in.PassportIssueDate),
		PassportIssuer:     strings.TrimSpace(in.PassportIssuer),
		Address:            strings.TrimSpace(in.Address),
		PhoneNumber:        strings.TrimSpace(in.PhoneNumber),
		DocumentFront:      in.DocumentFront,
		DocumentBack:       in.DocumentBack,
		SelfieWithDocument: in.SelfieWithDocument,
	}
	if req.FullName == "" || req.PassportNumber == "" {
		return nil, invalidInput("full name and passport number are required")
	}

	var created *model.VerificationRequest
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		user, err := getUser(ctx, s.users.WithTx(tx), userID, true)
		if err != nil {
			return err
		}
		if user.IsVerified {
			return ErrAlreadyVerified
		}

		verifications := s.verifications.WithTx(tx)
		pending, err := verifications.HasPending(ctx, userID)
		if err != nil {
			return storageErr("check pending verification", err)
		}
		if pending {
			return ErrVerificationInProgress
		}

		created, err = verifications.Create(ctx, req)
		if err != nil {
			return storageErr("create verification", err)
		}

		return s.events.Record(ctx, tx, userID, model.EventVerificationSubmitted,
			"Submitted identity verification",
			map[string]any{"verification_id": created.ID, "documents": countDocuments(created)})
	})
	if err != nil {
		return nil, err
	}

	log.Info().Int64("user_id", userID).Int64("verification_id", created.ID).Msg("Verification submitted")
	s.notifier.Notify(ctx, fmt.Sprintf("Verification request #%d from user #%d", created.ID, userID))

	return created, nil
}

func countDocuments(v *model.VerificationRequest) int {
	n := 0
	for _, doc := range []*string{v.DocumentFront, v.DocumentBack, v.SelfieWithDocument} {
		if doc != nil && *doc != "" {
			n++
		}
	}
	return n
}

// Status returns the user's latest request, or nil when there is none.
func (s *VerificationService) Status(ctx context.Context, userID int64) (*model.VerificationRequest, error) {
	req, err := s.verifications.Latest(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrVerificationNotFound) {
			return nil, nil
		}
		return nil, storageErr("load verification", err)
	}
	return req, nil
}

// List returns requests, optionally filtered by status.
func (s *VerificationService) List(ctx context.Context, status *model.VerificationStatus) ([]*model.VerificationRequest, error) {
	reqs, err := s.verifications.List(ctx, status)
	if err != nil {
		return nil, storageErr("list verifications", err)
	}
	return reqs, nil
}

// Review approves or rejects a pending request. Approval marks the user verified.
func (s *VerificationService) Review(ctx context.Context, adminID, id int64, approve bool, comment string) (*model.VerificationRequest, error) {
	if _, err := requireAdmin(ctx, s.users, adminID); err != nil {
		return nil, err
	}

	var note *string
	if c := strings.TrimSpace(comment); c != "" {
		note = &c
	}

	var req *model.VerificationRequest
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		verifications := s.verifications.WithTx(tx)

		current, err := verifications.GetByIDForUpdate(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrVerificationNotFound) {
				return ErrVerificationNotFound
			}
			return storageErr("load verification", err)
		}
		if current.Status != model.VerificationPending {
			return ErrNotPending
		}

		status := model.VerificationRejected
		eventType := model.EventVerificationRejected
		description := "Identity verification rejected"
		if approve {
			status = model.VerificationApproved
			eventType = model.EventVerificationApproved
			description = "Identity verification approved"
		}

		req, err = verifications.MarkReviewed(ctx, id, status, note, adminID, s.now())
		if err != nil {
			return storageErr("review verification", err)
		}

		if approve {
			verified := true
			if _, err := s.users.WithTx(tx).Update(ctx, req.UserID, repository.UserPatch{IsVerified: &verified}); err != nil {
				return storageErr("mark user verified", err)
			}
		}

		data := map[string]any{"verification_id": req.ID, "admin_id": adminID}
		if note != nil {
			data["comment"] = *note
		}
		return s.events.Record(ctx, tx, req.UserID, eventType, description, data)
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Int64("admin_id", adminID).
		Int64("verification_id", id).
		Str("status", string(req.Status)).
		Msg("Verification reviewed")

	return req, nil
}

// ApproveAll approves every pending request. Returns the number approved.
func (s *VerificationService) ApproveAll(ctx context.Context, adminID int64) (int, error) {
	if _, err := requireAdmin(ctx, s.users, adminID); err != nil {
		return 0, err
	}
	ids, err := s.verifications.ListPendingIDs(ctx)
	if err != nil {
		return 0, storageErr("list pending verifications", err)
	}

	approved := 0
	for _, id := range ids {
		_, err := s.Review(ctx, adminID, id, true, "")
		switch {
		case err == nil:
			approved++
		case errors.Is(err, ErrNotPending):
		default:
			return approved, err
		}
	}
	return approved, nil
}
