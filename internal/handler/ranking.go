package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"hr-portal/internal/service"
)

// RankingHandler serves the admin leaderboards.
type RankingHandler struct {
	rankings *service.RankingService
}

// NewRankingHandler creates a new RankingHandler.
func NewRankingHandler(rankings *service.RankingService) *RankingHandler {
	return &RankingHandler{rankings: rankings}
}

// TopEarners handles GET /admin/top-earners.
func (h *RankingHandler) TopEarners(c *gin.Context) {
	board, err := h.rankings.TopEarners(c.Request.Context(), queryInt(c, "limit", 10))
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, board)
}

// MostProductive handles GET /admin/most-productive.
func (h *RankingHandler) MostProductive(c *gin.Context) {
	board, err := h.rankings.MostProductive(c.Request.Context(), queryInt(c, "limit", 10))
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, board)
}

// QualityLeaders handles GET /admin/quality-leaders.
func (h *RankingHandler) QualityLeaders(c *gin.Context) {
	board, err := h.rankings.QualityLeaders(c.Request.Context(),
		queryInt(c, "limit", 10), queryInt(c, "min_reviewed", 3))
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, board)
}

// NewsHandler serves announcements.
type NewsHandler struct {
	news *service.NewsService
}

// NewNewsHandler creates a new NewsHandler.
func NewNewsHandler(news *service.NewsService) *NewsHandler {
	return &NewsHandler{news: news}
}

// List handles GET /news.
func (h *NewsHandler) List(c *gin.Context) {
	items, err := h.news.ListActive(c.Request.Context(), queryInt(c, "limit", 20))
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, items)
}

type newsRequest struct {
	Title   string `json:"title" binding:"required"`
	Content string `json:"content" binding:"required"`
}

// Create handles POST /admin/news.
func (h *NewsHandler) Create(c *gin.Context) {
	var req newsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	item, err := h.news.Create(c.Request.Context(), currentUserID(c), req.Title, req.Content)
	if err != nil {
		writeError(c, err)
		return
	}
	created(c, item)
}

// Delete handles DELETE /admin/news/:id.
func (h *NewsHandler) Delete(c *gin.Context) {
	id, valid := paramID(c, "id")
	if !valid {
		return
	}
	if err := h.news.Deactivate(c.Request.Context(), currentUserID(c), id); err != nil {
		writeError(c, err)
		return
	}
	ok(c, gin.H{"id": id})
}
