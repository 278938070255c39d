package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"hr-portal/internal/auth"
	"hr-portal/internal/model"
	"hr-portal/internal/service"
)

// AccountHandler handles registration, sessions and the caller's own profile.
type AccountHandler struct {
	accounts *service.AccountService
	events   *service.EventLog
	tokens   *auth.TokenManager
	revoker  *auth.Revoker
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(accounts *service.AccountService, events *service.EventLog, tokens *auth.TokenManager, revoker *auth.Revoker) *AccountHandler {
	return &AccountHandler{
		accounts: accounts,
		events:   events,
		tokens:   tokens,
		revoker:  revoker,
	}
}

type registerRequest struct {
	FirstName        string  `json:"first_name" binding:"required"`
	LastName         string  `json:"last_name"`
	Email            string  `json:"email" binding:"required"`
	Password         string  `json:"password" binding:"required"`
	TelegramUsername *string `json:"telegram_username"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type tokenResponse struct {
	AccessToken string      `json:"access_token"`
	TokenType   string      `json:"token_type"`
	User        *model.User `json:"user"`
}

// Register handles POST /register.
func (h *AccountHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}

	user, err := h.accounts.Register(c.Request.Context(), service.Registration{
		FirstName:        req.FirstName,
		LastName:         req.LastName,
		Email:            req.Email,
		Password:         req.Password,
		TelegramUsername: req.TelegramUsername,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	h.issue(c, user, http.StatusCreated)
}

// Login handles POST /login.
func (h *AccountHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}

	user, err := h.accounts.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if statusFor(err) == http.StatusForbidden {
			fail(c, http.StatusUnauthorized, err.Error())
			return
		}
		writeError(c, err)
		return
	}

	h.issue(c, user, http.StatusOK)
}

func (h *AccountHandler) issue(c *gin.Context, user *model.User, status int) {
	token, _, err := h.tokens.Issue(user.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(status, Response{Code: status, Data: tokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		User:        user,
	}})
}

// Logout handles POST /logout. The token is revoked when Redis is configured.
func (h *AccountHandler) Logout(c *gin.Context) {
	if claims := currentClaims(c); claims != nil {
		if err := h.revoker.Revoke(c.Request.Context(), claims); err != nil {
			log.Error().Err(err).Int64("user_id", currentUserID(c)).Msg("Failed to revoke token")
			fail(c, http.StatusServiceUnavailable, "logout unavailable")
			return
		}
	}
	ok(c, gin.H{"revoked": h.revoker.Enabled()})
}

// Profile handles GET /profile.
func (h *AccountHandler) Profile(c *gin.Context) {
	user, err := h.accounts.GetUser(c.Request.Context(), currentUserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, user)
}

// CompleteTour handles POST /api/tour/complete.
func (h *AccountHandler) CompleteTour(c *gin.Context) {
	user, err := h.accounts.CompleteTour(c.Request.Context(), currentUserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, gin.H{"tour_completed": user.TourCompleted})
}

// TourStatus handles GET /api/tour/status.
func (h *AccountHandler) TourStatus(c *gin.Context) {
	user, err := h.accounts.GetUser(c.Request.Context(), currentUserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, gin.H{"tour_completed": user.TourCompleted})
}

// AcceptDocuments handles POST /api/accept-documents.
func (h *AccountHandler) AcceptDocuments(c *gin.Context) {
	user, err := h.accounts.AcceptDocuments(c.Request.Context(), currentUserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, gin.H{"documents_accepted": user.DocumentsAccepted})
}

// Events handles GET /api/user/events.
func (h *AccountHandler) Events(c *gin.Context) {
	events, err := h.events.List(c.Request.Context(), currentUserID(c), queryInt(c, "limit", 50))
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, events)
}

type secretKeyRequest struct {
	SecretKey string `json:"secret_key" binding:"required"`
}

// GrantAdmin handles POST /admin/access/secret-key.
func (h *AccountHandler) GrantAdmin(c *gin.Context) {
	var req secretKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	user, err := h.accounts.GrantAdminWithSecret(c.Request.Context(), currentUserID(c), req.SecretKey)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, gin.H{"is_admin": user.IsAdmin})
}

// CheckAdmin handles GET /admin/access/check.
func (h *AccountHandler) CheckAdmin(c *gin.Context) {
	user, err := h.accounts.GetUser(c.Request.Context(), currentUserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, gin.H{"is_admin": user.IsAdmin})
}
