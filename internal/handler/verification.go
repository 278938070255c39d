package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"hr-portal/internal/model"
	"hr-portal/internal/service"
	"hr-portal/internal/storage"
)

// VerificationHandler serves identity verification requests.
type VerificationHandler struct {
	verifications *service.VerificationService
	store         storage.Store
}

// NewVerificationHandler creates a new VerificationHandler.
func NewVerificationHandler(verifications *service.VerificationService, store storage.Store) *VerificationHandler {
	return &VerificationHandler{verifications: verifications, store: store}
}

// Submit handles POST /api/verification/submit (multipart).
func (h *VerificationHandler) Submit(c *gin.Context) {
	in := service.VerificationSubmission{
		FullName:          c.PostForm("full_name"),
		DateOfBirth:       c.PostForm("date_of_birth"),
		PassportNumber:    c.PostForm("passport_number"),
		PassportIssueDate: c.PostForm("passport_issue_date"),
		PassportIssuer:    c.PostForm("passport_issuer"),
		Address:           c.PostForm("address"),
		PhoneNumber:       c.PostForm("phone_number"),
	}

	docs := []struct {
		field string
		dst   **string
	}{
		{"document_front", &in.DocumentFront},
		{"document_back", &in.DocumentBack},
		{"selfie_with_document", &in.SelfieWithDocument},
	}
	for _, d := range docs {
		p, err := saveOptionalUpload(c, h.store, "verification", d.field)
		if err != nil {
			writeUploadError(c, err)
			return
		}
		*d.dst = p
	}

	req, err := h.verifications.Submit(c.Request.Context(), currentUserID(c), in)
	if err != nil {
		writeError(c, err)
		return
	}
	created(c, req)
}

// Status handles GET /api/verification/status.
func (h *VerificationHandler) Status(c *gin.Context) {
	req, err := h.verifications.Status(c.Request.Context(), currentUserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	if req == nil {
		ok(c, gin.H{"status": "none"})
		return
	}
	ok(c, req)
}

// List handles GET /admin/verification/requests.
func (h *VerificationHandler) List(c *gin.Context) {
	var status *model.VerificationStatus
	if raw := c.Query("status"); raw != "" {
		s := model.VerificationStatus(raw)
		status = &s
	}
	reqs, err := h.verifications.List(c.Request.Context(), status)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, reqs)
}

type verificationReviewRequest struct {
	Status  string `json:"status" binding:"required,oneof=approved rejected"`
	Comment string `json:"admin_comment"`
}

// Review handles POST /admin/verification/:id/review.
func (h *VerificationHandler) Review(c *gin.Context) {
	id, valid := paramID(c, "id")
	if !valid {
		return
	}
	var req verificationReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	approve := req.Status == string(model.VerificationApproved)

	reviewed, err := h.verifications.Review(c.Request.Context(), currentUserID(c), id, approve, req.Comment)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, reviewed)
}

// ApproveAll handles POST /admin/verification/approve-all.
func (h *VerificationHandler) ApproveAll(c *gin.Context) {
	n, err := h.verifications.ApproveAll(c.Request.Context(), currentUserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, gin.H{"approved": n})
}
