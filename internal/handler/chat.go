package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"hr-portal/internal/model"
	"hr-portal/internal/service"
)

// ChatHandler serves the general channel and support threads.
type ChatHandler struct {
	chat *service.ChatService
}

// NewChatHandler creates a new ChatHandler.
func NewChatHandler(chat *service.ChatService) *ChatHandler {
	return &ChatHandler{chat: chat}
}

// chatTypeQuery reads chat_type, defaulting to the general channel.
func chatTypeQuery(c *gin.Context) (model.ChatType, bool) {
	raw := c.DefaultQuery("chat_type", string(model.ChatGeneral))
	ct, err := model.ParseChatType(raw)
	if err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return "", false
	}
	return ct, true
}

// Messages handles GET /api/chat/messages.
func (h *ChatHandler) Messages(c *gin.Context) {
	ct, valid := chatTypeQuery(c)
	if !valid {
		return
	}
	msgs, err := h.chat.List(c.Request.Context(), currentUserID(c), ct, queryInt(c, "limit", 100))
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, msgs)
}

type sendRequest struct {
	Message     string `json:"message" binding:"required"`
	ChatType    string `json:"chat_type"`
	RecipientID *int64 `json:"recipient_id"`
}

func (h *ChatHandler) send(c *gin.Context, defaultType model.ChatType, recipient *int64) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	ct := defaultType
	if req.ChatType != "" {
		parsed, err := model.ParseChatType(req.ChatType)
		if err != nil {
			fail(c, http.StatusBadRequest, err.Error())
			return
		}
		ct = parsed
	}
	if recipient == nil {
		recipient = req.RecipientID
	}

	msg, err := h.chat.Send(c.Request.Context(), currentUserID(c), ct, req.Message, recipient)
	if err != nil {
		writeError(c, err)
		return
	}
	created(c, msg)
}

// Send handles POST /api/chat/send.
func (h *ChatHandler) Send(c *gin.Context) {
	h.send(c, model.ChatGeneral, nil)
}

// UnreadCount handles GET /api/chat/unread-count. Without chat_type the
// response carries the total and a per-channel breakdown.
func (h *ChatHandler) UnreadCount(c *gin.Context) {
	ctx := c.Request.Context()
	userID := currentUserID(c)

	if raw := c.Query("chat_type"); raw != "" {
		ct, err := model.ParseChatType(raw)
		if err != nil {
			fail(c, http.StatusBadRequest, err.Error())
			return
		}
		n, err := h.chat.UnreadCount(ctx, userID, &ct)
		if err != nil {
			writeError(c, err)
			return
		}
		ok(c, gin.H{"unread_count": n, "chat_type": ct})
		return
	}

	counts, err := h.chat.UnreadBreakdown(ctx, userID)
	if err != nil {
		writeError(c, err)
		return
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	ok(c, gin.H{"unread_count": total, "by_chat_type": counts})
}

type markReadRequest struct {
	ChatType string `json:"chat_type"`
}

// MarkRead handles POST /api/chat/mark-read.
func (h *ChatHandler) MarkRead(c *gin.Context) {
	var req markReadRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, "invalid request: "+err.Error())
			return
		}
	}
	if req.ChatType == "" {
		req.ChatType = c.DefaultQuery("chat_type", string(model.ChatGeneral))
	}
	ct, err := model.ParseChatType(req.ChatType)
	if err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}

	at, err := h.chat.MarkRead(c.Request.Context(), currentUserID(c), ct)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, gin.H{"chat_type": ct, "last_read_at": at})
}

// Conversations handles GET /admin/chat/conversations.
func (h *ChatHandler) Conversations(c *gin.Context) {
	convs, err := h.chat.Conversations(c.Request.Context(), currentUserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, convs)
}

// ConversationMessages handles GET /admin/chat/messages/:userId.
func (h *ChatHandler) ConversationMessages(c *gin.Context) {
	userID, valid := paramID(c, "userId")
	if !valid {
		return
	}
	msgs, err := h.chat.ConversationMessages(c.Request.Context(), userID, queryInt(c, "limit", 100))
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, msgs)
}

// AdminSend handles POST /admin/chat/send. Replies default to the support
// thread named by recipient_id.
func (h *ChatHandler) AdminSend(c *gin.Context) {
	h.send(c, model.ChatSupport, nil)
}

// AdminMarkRead handles POST /admin/chat/mark-read/:userId.
func (h *ChatHandler) AdminMarkRead(c *gin.Context) {
	userID, valid := paramID(c, "userId")
	if !valid {
		return
	}
	at, err := h.chat.AdminMarkRead(c.Request.Context(), currentUserID(c), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, gin.H{"user_id": userID, "last_read_at": at})
}

// AdminUnreadCounts handles GET /admin/chat/unread-counts.
func (h *ChatHandler) AdminUnreadCounts(c *gin.Context) {
	counts, err := h.chat.AdminUnreadCounts(c.Request.Context(), currentUserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, counts)
}
