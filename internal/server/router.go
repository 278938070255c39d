// Package server wires the HTTP handlers into a gin engine.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"hr-portal/internal/auth"
	"hr-portal/internal/config"
	"hr-portal/internal/handler"
	"hr-portal/internal/model"
	"hr-portal/internal/service"
	"hr-portal/internal/storage"
)

// HealthChecker reports whether the database is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Dependencies holds everything the router needs.
type Dependencies struct {
	Config *config.Config
	Health HealthChecker

	Tokens  *auth.TokenManager
	Revoker *auth.Revoker

	Accounts      *service.AccountService
	Events        *service.EventLog
	Settings      *service.SettingsStore
	Tasks         *service.TaskService
	Chat          *service.ChatService
	Withdrawals   *service.WithdrawalService
	Verifications *service.VerificationService
	News          *service.NewsService
	Rankings      *service.RankingService

	Store storage.Store

	// UploadDir is served under the storage public prefix when set.
	UploadDir string
}

// NewRouter builds the gin engine with every route of the portal API.
func NewRouter(deps *Dependencies) *gin.Engine {
	cfg := deps.Config

	r := gin.New()
	r.MaxMultipartMemory = cfg.Server.MaxUploadMB << 20
	r.Use(handler.Recovery(), handler.RequestLogger(), cors.New(corsConfig(cfg.Server.CORSOrigins)))

	if deps.UploadDir != "" {
		r.Static(cfg.Storage.PublicPrefix, deps.UploadDir)
	}

	accounts := handler.NewAccountHandler(deps.Accounts, deps.Events, deps.Tokens, deps.Revoker)
	admin := handler.NewAdminHandler(deps.Accounts, deps.Events, deps.Settings, deps.Chat)
	tasks := handler.NewTaskHandler(deps.Tasks, deps.Store)
	chat := handler.NewChatHandler(deps.Chat)
	withdrawals := handler.NewWithdrawalHandler(deps.Withdrawals, deps.Settings)
	verifications := handler.NewVerificationHandler(deps.Verifications, deps.Store)
	news := handler.NewNewsHandler(deps.News)
	rankings := handler.NewRankingHandler(deps.Rankings)

	r.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := deps.Health.HealthCheck(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, handler.Response{Code: http.StatusServiceUnavailable, Msg: "database unavailable"})
			return
		}
		c.JSON(http.StatusOK, handler.Response{Code: http.StatusOK, Data: gin.H{"status": "ok"}})
	})
	r.POST("/register", accounts.Register)
	r.POST("/login", accounts.Login)
	r.GET("/news", news.List)

	user := r.Group("/", handler.Auth(deps.Tokens, deps.Revoker))
	{
		user.GET("/profile", accounts.Profile)
		user.POST("/logout", accounts.Logout)

		user.GET("/tasks", tasks.Available)
		user.GET("/tasks/my", tasks.Mine)
		user.GET("/tasks/stats", tasks.Stats)
		user.POST("/tasks/:id/take", tasks.Take)
		user.POST("/tasks/:id/submit", tasks.Submit)

		user.POST("/admin/access/secret-key", accounts.GrantAdmin)
		user.GET("/admin/access/check", accounts.CheckAdmin)
	}

	api := r.Group("/api", handler.Auth(deps.Tokens, deps.Revoker))
	{
		api.GET("/chat/messages", chat.Messages)
		api.POST("/chat/send", chat.Send)
		api.GET("/chat/unread-count", chat.UnreadCount)
		api.POST("/chat/mark-read", chat.MarkRead)

		api.POST("/withdrawal/request", withdrawals.Request)
		api.GET("/user/withdrawal-requests", withdrawals.Mine)
		api.GET("/settings/global_min_withdrawal_amount", withdrawals.GlobalMinimum)

		api.POST("/verification/submit", verifications.Submit)
		api.GET("/verification/status", verifications.Status)

		api.GET("/user/events", accounts.Events)
		api.POST("/tour/complete", accounts.CompleteTour)
		api.GET("/tour/status", accounts.TourStatus)
		api.POST("/accept-documents", accounts.AcceptDocuments)
	}

	adm := r.Group("/admin", handler.Auth(deps.Tokens, deps.Revoker), handler.AdminOnly(deps.Accounts))
	{
		adm.GET("/users", admin.Users)
		adm.POST("/users/:id/update", admin.UpdateUser)
		adm.POST("/users/:id/change-password", admin.ChangePassword)
		adm.GET("/user/:id/events", admin.UserEvents)

		adm.GET("/tasks", tasks.List)
		adm.POST("/tasks", tasks.Create)
		adm.PUT("/tasks/:id", tasks.Update)
		adm.POST("/tasks/:id/toggle", tasks.Toggle)

		adm.GET("/moderation", tasks.Moderation)
		adm.POST("/moderation/approve-all", tasks.ApproveAll)
		adm.POST("/moderation/:id/approve", tasks.Review(model.DecisionApprove))
		adm.POST("/moderation/:id/reject", tasks.Review(model.DecisionReject))
		adm.POST("/moderation/:id/revision", tasks.Review(model.DecisionRevision))

		adm.GET("/withdrawals", withdrawals.List)
		adm.POST("/withdrawals/:id/complete", withdrawals.Complete)
		adm.POST("/withdrawals/enable-all", withdrawals.SetAllEnabled(true))
		adm.POST("/withdrawals/disable-all", withdrawals.SetAllEnabled(false))

		adm.GET("/settings/global-min-withdrawal", withdrawals.GlobalMinimum)
		adm.POST("/settings/global-min-withdrawal", admin.SetGlobalMinimum)
		adm.GET("/settings/welcome-message", admin.WelcomeMessage)
		adm.POST("/settings/welcome-message", admin.SetWelcomeMessage)
		adm.POST("/send-welcome-to-all", admin.SendWelcomeToAll)

		adm.GET("/verification/requests", verifications.List)
		adm.POST("/verification/approve-all", verifications.ApproveAll)
		adm.POST("/verification/:id/review", verifications.Review)

		adm.GET("/chat/conversations", chat.Conversations)
		adm.GET("/chat/messages/:userId", chat.ConversationMessages)
		adm.POST("/chat/send", chat.AdminSend)
		adm.POST("/chat/mark-read/:userId", chat.AdminMarkRead)
		adm.GET("/chat/unread-counts", chat.AdminUnreadCounts)

		adm.POST("/news", news.Create)
		adm.DELETE("/news/:id", news.Delete)

		adm.GET("/top-earners", rankings.TopEarners)
		adm.GET("/most-productive", rankings.MostProductive)
		adm.GET("/quality-leaders", rankings.QualityLeaders)
	}

	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
		cfg.AllowCredentials = false
		return cfg
	}
	cfg.AllowOrigins = origins
	return cfg
}
