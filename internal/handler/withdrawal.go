package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"hr-portal/internal/model"
	"hr-portal/internal/service"
)

// WithdrawalHandler serves payout requests.
type WithdrawalHandler struct {
	withdrawals *service.WithdrawalService
	settings    *service.SettingsStore
}

// NewWithdrawalHandler creates a new WithdrawalHandler.
func NewWithdrawalHandler(withdrawals *service.WithdrawalService, settings *service.SettingsStore) *WithdrawalHandler {
	return &WithdrawalHandler{withdrawals: withdrawals, settings: settings}
}

type withdrawalRequest struct {
	NetworkCoin   string          `json:"network_coin" binding:"required"`
	Amount        decimal.Decimal `json:"amount"`
	WalletAddress string          `json:"wallet_address" binding:"required"`
}

// Request handles POST /api/withdrawal/request.
func (h *WithdrawalHandler) Request(c *gin.Context) {
	var req withdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	w, err := h.withdrawals.Request(c.Request.Context(), currentUserID(c), req.NetworkCoin, req.Amount, req.WalletAddress)
	if err != nil {
		writeError(c, err)
		return
	}
	created(c, w)
}

// Mine handles GET /api/user/withdrawal-requests.
func (h *WithdrawalHandler) Mine(c *gin.Context) {
	reqs, err := h.withdrawals.ListForUser(c.Request.Context(), currentUserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, reqs)
}

// GlobalMinimum handles GET /api/settings/global_min_withdrawal_amount and
// GET /admin/settings/global-min-withdrawal.
func (h *WithdrawalHandler) GlobalMinimum(c *gin.Context) {
	snap, err := h.settings.Snapshot(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, gin.H{"global_min_withdrawal_amount": snap.GlobalMinWithdrawal})
}

// List handles GET /admin/withdrawals.
func (h *WithdrawalHandler) List(c *gin.Context) {
	var status *model.WithdrawalStatus
	if raw := c.Query("status"); raw != "" {
		s := model.WithdrawalStatus(raw)
		status = &s
	}
	reqs, err := h.withdrawals.ListAll(c.Request.Context(), status)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, reqs)
}

// Complete handles POST /admin/withdrawals/:id/complete.
func (h *WithdrawalHandler) Complete(c *gin.Context) {
	id, valid := paramID(c, "id")
	if !valid {
		return
	}
	w, err := h.withdrawals.Complete(c.Request.Context(), currentUserID(c), id)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, w)
}

// SetAllEnabled returns the handler for POST /admin/withdrawals/{enable-all|disable-all}.
func (h *WithdrawalHandler) SetAllEnabled(enabled bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		n, err := h.withdrawals.SetAllEnabled(c.Request.Context(), currentUserID(c), enabled)
		if err != nil {
			writeError(c, err)
			return
		}
		ok(c, gin.H{"withdrawal_enabled": enabled, "updated": n})
	}
}
