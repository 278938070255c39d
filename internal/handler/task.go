package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"hr-portal/internal/model"
	"hr-portal/internal/service"
	"hr-portal/internal/storage"
)

// TaskHandler serves the task catalogue, attempts and moderation.
type TaskHandler struct {
	tasks *service.TaskService
	store storage.Store
}

// NewTaskHandler creates a new TaskHandler.
func NewTaskHandler(tasks *service.TaskService, store storage.Store) *TaskHandler {
	return &TaskHandler{tasks: tasks, store: store}
}

// Available handles GET /tasks.
func (h *TaskHandler) Available(c *gin.Context) {
	tasks, err := h.tasks.ListAvailable(c.Request.Context(), currentUserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, tasks)
}

// Mine handles GET /tasks/my.
func (h *TaskHandler) Mine(c *gin.Context) {
	attempts, err := h.tasks.ListUserTasks(c.Request.Context(), currentUserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, attempts)
}

// Stats handles GET /tasks/stats.
func (h *TaskHandler) Stats(c *gin.Context) {
	stats, err := h.tasks.Stats(c.Request.Context(), currentUserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, stats)
}

// Take handles POST /tasks/:id/take.
func (h *TaskHandler) Take(c *gin.Context) {
	taskID, valid := paramID(c, "id")
	if !valid {
		return
	}
	attempt, err := h.tasks.Take(c.Request.Context(), currentUserID(c), taskID)
	if err != nil {
		writeError(c, err)
		return
	}
	created(c, attempt)
}

// Submit handles POST /tasks/:id/submit. The form carries proof_text, any
// number of files and links (repeated or newline separated).
func (h *TaskHandler) Submit(c *gin.Context) {
	taskID, valid := paramID(c, "id")
	if !valid {
		return
	}
	userID := currentUserID(c)

	files, err := saveUploads(c, h.store, "proofs", "files")
	if err != nil {
		writeUploadError(c, err)
		return
	}

	proof := service.Proof{
		Text:  c.PostForm("proof_text"),
		Files: files,
		Links: formLinks(c),
	}
	attempt, err := h.tasks.Submit(c.Request.Context(), userID, taskID, proof)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, attempt)
}

func formLinks(c *gin.Context) []string {
	raw, sent := c.GetPostFormArray("links")
	if !sent {
		return nil
	}
	var links []string
	for _, v := range raw {
		for _, line := range strings.Split(v, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				links = append(links, line)
			}
		}
	}
	if links == nil {
		links = []string{}
	}
	return links
}

type taskRequest struct {
	Title          string          `json:"title" binding:"required"`
	Description    string          `json:"description"`
	RequiredProof  string          `json:"required_proof"`
	Reward         decimal.Decimal `json:"reward"`
	LevelRequired  string          `json:"level_required"`
	ExpiresAt      *time.Time      `json:"expires_at"`
	TimeLimitHours *int            `json:"time_limit_hours"`
	IsActive       *bool           `json:"is_active"`
}

func (r taskRequest) input() (service.TaskInput, error) {
	level := model.LevelBasic
	if r.LevelRequired != "" {
		parsed, err := model.ParseLevel(r.LevelRequired)
		if err != nil {
			return service.TaskInput{}, err
		}
		level = parsed
	}
	active := true
	if r.IsActive != nil {
		active = *r.IsActive
	}
	return service.TaskInput{
		Title:          r.Title,
		Description:    r.Description,
		RequiredProof:  r.RequiredProof,
		Reward:         r.Reward,
		LevelRequired:  level,
		ExpiresAt:      r.ExpiresAt,
		TimeLimitHours: r.TimeLimitHours,
		IsActive:       active,
	}, nil
}

func bindTask(c *gin.Context) (service.TaskInput, bool) {
	var req taskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return service.TaskInput{}, false
	}
	in, err := req.input()
	if err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return service.TaskInput{}, false
	}
	return in, true
}

// List handles GET /admin/tasks.
func (h *TaskHandler) List(c *gin.Context) {
	tasks, err := h.tasks.ListTasks(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, tasks)
}

// Create handles POST /admin/tasks.
func (h *TaskHandler) Create(c *gin.Context) {
	in, valid := bindTask(c)
	if !valid {
		return
	}
	task, err := h.tasks.CreateTask(c.Request.Context(), currentUserID(c), in)
	if err != nil {
		writeError(c, err)
		return
	}
	created(c, task)
}

// Update handles PUT /admin/tasks/:id.
func (h *TaskHandler) Update(c *gin.Context) {
	taskID, valid := paramID(c, "id")
	if !valid {
		return
	}
	in, valid := bindTask(c)
	if !valid {
		return
	}
	task, err := h.tasks.UpdateTask(c.Request.Context(), currentUserID(c), taskID, in)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, task)
}

// Toggle handles POST /admin/tasks/:id/toggle.
func (h *TaskHandler) Toggle(c *gin.Context) {
	taskID, valid := paramID(c, "id")
	if !valid {
		return
	}
	task, err := h.tasks.ToggleTask(c.Request.Context(), currentUserID(c), taskID)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, task)
}

// Moderation handles GET /admin/moderation.
func (h *TaskHandler) Moderation(c *gin.Context) {
	queue, err := h.tasks.ListModeration(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, queue)
}

type reviewRequest struct {
	Comment string `json:"comment"`
}

// Review returns the handler for POST /admin/moderation/:id/{approve|reject|revision}.
func (h *TaskHandler) Review(decision model.ReviewDecision) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, valid := paramID(c, "id")
		if !valid {
			return
		}
		var req reviewRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				fail(c, http.StatusBadRequest, "invalid request: "+err.Error())
				return
			}
		}
		attempt, err := h.tasks.Review(c.Request.Context(), currentUserID(c), id, decision, req.Comment)
		if err != nil {
			writeError(c, err)
			return
		}
		ok(c, attempt)
	}
}

// ApproveAll handles POST /admin/moderation/approve-all.
func (h *TaskHandler) ApproveAll(c *gin.Context) {
	n, err := h.tasks.ApproveAll(c.Request.Context(), currentUserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, gin.H{"approved": n})
}
