package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"inverapp/internal/authz"
	"inverapp/internal/handlers"
	"inverapp/internal/middleware"
)

type Handlers struct {
	Auth          *handlers.AuthHandler
	Users         *handlers.UserHandler
	Tasks         *handlers.TaskHandler
	Flows         *handlers.FlowHandler
	Reservations  *handlers.ReservationHandler
	Notifications *handlers.NotificationHandler
	Documents     *handlers.DocumentHandler
	Integrations  *handlers.IntegrationsHandler // может быть nil
}

func SetupRoutes(r *gin.Engine, h Handlers) *gin.Engine {
	// ---- public
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.POST("/login", h.Auth.Login)

	// Telegram webhook публикуем только если есть интеграция
	if h.Integrations != nil {
		r.POST("/integrations/telegram/webhook", h.Integrations.Webhook)
	}

	// ---- protected
	r.Use(middleware.AuthMiddleware())
	r.Use(middleware.ReadOnlyGuard())

	r.GET("/me", h.Auth.Me)
	r.GET("/users", h.Users.ListUsers)
	r.GET("/users/:id", h.Users.GetUserByID)

	if h.Integrations != nil {
		r.POST("/integrations/telegram/request-link", h.Integrations.RequestTelegramLink)
	}

	// FLOWS: /flows/sale/:id, /flows/payment/:id
	flows := r.Group("/flows/:kind/:id")
	{
		// жизненный цикл flow ведут администратор и операции
		flowOps := middleware.RequireUserTypes(authz.UserTypeAdmin, authz.UserTypeOperations)

		flows.GET("", h.Tasks.GetFlowDetail)
		flows.POST("/start", flowOps, h.Flows.Start)
		flows.POST("/complete", flowOps, h.Flows.Complete)
		flows.PUT("/stage", flowOps, h.Flows.SetStage)
		flows.POST("/report", h.Documents.GenerateFlowReport)

		flows.GET("/tasks/:task_id", h.Tasks.GetTask)
		flows.PUT("/tasks/:task_id/status", h.Tasks.SetStatus)
		flows.PUT("/tasks/:task_id/assignees", h.Tasks.SetAssignees)
		flows.GET("/tasks/:task_id/comments", h.Tasks.ListComments)
		flows.POST("/tasks/:task_id/comments", h.Tasks.AddComment)
	}
	r.DELETE("/comments/:id", middleware.RequireAdmin(), h.Tasks.DeleteComment)

	// NOTIFICATIONS
	notif := r.Group("/notifications")
	{
		notif.GET("/stream", h.Notifications.Stream) // WebSocket, токен в ?token=
		notif.GET("/count", h.Notifications.Count)
		notif.GET("/popups", h.Notifications.ActivePopups)
		notif.POST("/popups/:id/hide", h.Notifications.HidePopup)
	}
	r.POST("/assignments/:id/collapse", h.Notifications.Collapse)

	// RESERVATIONS
	res := r.Group("/reservations")
	{
		res.POST("", middleware.RequireUserTypes(authz.UserTypeAdmin, authz.UserTypeSeller, authz.UserTypeOperations), h.Reservations.Create)
		res.GET("/:id", h.Reservations.Get)
		res.POST("/:id/rescind", middleware.RequireUserTypes(authz.UserTypeAdmin, authz.UserTypeOperations), h.Reservations.Rescind)
	}

	// COMMISSIONS
	com := r.Group("/commissions")
	{
		com.GET("/:id", h.Reservations.GetCommission)
		com.POST("/:id/penalize", middleware.RequireAdmin(), h.Reservations.PenalizeCommission)
		com.POST("/:id/payment-flow", middleware.RequireUserTypes(authz.UserTypeAdmin, authz.UserTypeFinance), h.Flows.EnsurePaymentFlow)
		com.POST("/:id/settlement", middleware.RequireUserTypes(authz.UserTypeAdmin, authz.UserTypeFinance), h.Documents.GenerateCommissionSettlement)
	}

	// DOCUMENTS
	docs := r.Group("/documents")
	{
		docs.GET("", h.Documents.ListDocuments)
		docs.GET("/:id", h.Documents.GetDocument)
		docs.GET("/:id/file", h.Documents.ServeFile)
		docs.GET("/:id/download", h.Documents.Download)
	}

	return r
}
