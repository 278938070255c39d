package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"hr-portal/internal/model"
	"hr-portal/internal/service"
)

// AdminHandler serves user management and runtime settings.
type AdminHandler struct {
	accounts *service.AccountService
	events   *service.EventLog
	settings *service.SettingsStore
	chat     *service.ChatService
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(accounts *service.AccountService, events *service.EventLog, settings *service.SettingsStore, chat *service.ChatService) *AdminHandler {
	return &AdminHandler{
		accounts: accounts,
		events:   events,
		settings: settings,
		chat:     chat,
	}
}

// Users handles GET /admin/users.
func (h *AdminHandler) Users(c *gin.Context) {
	users, err := h.accounts.ListUsers(c.Request.Context(), queryInt(c, "limit", 100), queryInt(c, "offset", 0))
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, users)
}

type userUpdateRequest struct {
	Balance             *decimal.Decimal `json:"balance"`
	MinWithdrawalAmount *decimal.Decimal `json:"min_withdrawal_amount"`
	Level               *string          `json:"level"`
	IsVerified          *bool            `json:"is_verified"`
	IsAdmin             *bool            `json:"is_admin"`
	WithdrawalEnabled   *bool            `json:"withdrawal_enabled"`
}

// UpdateUser handles POST /admin/users/:id/update.
func (h *AdminHandler) UpdateUser(c *gin.Context) {
	userID, valid := paramID(c, "id")
	if !valid {
		return
	}
	var req userUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}

	in := service.AdminUserUpdate{
		Balance:             req.Balance,
		MinWithdrawalAmount: req.MinWithdrawalAmount,
		IsVerified:          req.IsVerified,
		IsAdmin:             req.IsAdmin,
		WithdrawalEnabled:   req.WithdrawalEnabled,
	}
	if req.Level != nil {
		level, err := model.ParseLevel(*req.Level)
		if err != nil {
			fail(c, http.StatusBadRequest, err.Error())
			return
		}
		in.Level = &level
	}

	user, err := h.accounts.AdminUpdate(c.Request.Context(), currentUserID(c), userID, in)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, user)
}

type changePasswordRequest struct {
	NewPassword string `json:"new_password" binding:"required"`
}

// ChangePassword handles POST /admin/users/:id/change-password.
func (h *AdminHandler) ChangePassword(c *gin.Context) {
	userID, valid := paramID(c, "id")
	if !valid {
		return
	}
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	if err := h.accounts.ChangePassword(c.Request.Context(), currentUserID(c), userID, req.NewPassword); err != nil {
		writeError(c, err)
		return
	}
	ok(c, gin.H{"user_id": userID})
}

// UserEvents handles GET /admin/user/:id/events.
func (h *AdminHandler) UserEvents(c *gin.Context) {
	userID, valid := paramID(c, "id")
	if !valid {
		return
	}
	if _, err := h.accounts.GetUser(c.Request.Context(), userID); err != nil {
		writeError(c, err)
		return
	}
	events, err := h.events.List(c.Request.Context(), userID, queryInt(c, "limit", 100))
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, events)
}

type globalMinRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// SetGlobalMinimum handles POST /admin/settings/global-min-withdrawal.
// Users registered earlier keep their own minimum.
func (h *AdminHandler) SetGlobalMinimum(c *gin.Context) {
	var req globalMinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	if err := h.settings.SetGlobalMinWithdrawal(c.Request.Context(), req.Amount); err != nil {
		writeError(c, err)
		return
	}
	log.Info().
		Int64("admin_id", currentUserID(c)).
		Str("amount", req.Amount.StringFixed(2)).
		Msg("Global minimum withdrawal changed")
	ok(c, gin.H{"global_min_withdrawal_amount": req.Amount.Round(2)})
}

// WelcomeMessage handles GET /admin/settings/welcome-message.
func (h *AdminHandler) WelcomeMessage(c *gin.Context) {
	snap, err := h.settings.Snapshot(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, gin.H{"message": snap.WelcomeMessage})
}

type welcomeRequest struct {
	Message string `json:"message"`
}

// SetWelcomeMessage handles POST /admin/settings/welcome-message.
func (h *AdminHandler) SetWelcomeMessage(c *gin.Context) {
	var req welcomeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	if err := h.settings.SetWelcomeMessage(c.Request.Context(), req.Message); err != nil {
		writeError(c, err)
		return
	}
	ok(c, gin.H{"message": req.Message})
}

// SendWelcomeToAll handles POST /admin/send-welcome-to-all. An empty body
// sends the stored welcome message.
func (h *AdminHandler) SendWelcomeToAll(c *gin.Context) {
	var req welcomeRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, "invalid request: "+err.Error())
			return
		}
	}
	if req.Message == "" {
		snap, err := h.settings.Snapshot(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		req.Message = snap.WelcomeMessage
	}

	n, err := h.chat.SendWelcomeToAll(c.Request.Context(), currentUserID(c), req.Message)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, gin.H{"sent": n})
}
