package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "inverapp/docs"
	"inverapp/internal/config"
	"inverapp/internal/handlers"
	"inverapp/internal/middleware"
	"inverapp/internal/pdf"
	"inverapp/internal/realtime"
	"inverapp/internal/repositories"
	"inverapp/internal/routes"
	"inverapp/internal/services"
)

func Run() {
	cfg := config.LoadConfig()
	middleware.SetJWTKey(cfg.Auth.JWTSecret)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// === DB ===
	db, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		log.Fatal("Ошибка подключения к БД: ", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Printf("Ошибка закрытия БД: %v", err)
		}
	}()
	if err := db.PingContext(ctx); err != nil {
		log.Fatal("БД недоступна: ", err)
	}

	// === Repos ===
	userRepo := repositories.NewUserRepository(db)
	flowRepo := repositories.NewFlowRepository(db)
	taskRepo := repositories.NewTaskRepository(db)
	assignmentRepo := repositories.NewAssignmentRepository(db)
	commentRepo := repositories.NewCommentRepository(db)
	collapsedRepo := repositories.NewCollapsedTaskRepository(db)
	reservationRepo := repositories.NewReservationRepository(db)
	commissionRepo := repositories.NewCommissionRepository(db)
	documentRepo := repositories.NewDocumentRepository(db)
	linkRepo := repositories.NewTelegramLinkRepository(db)

	// === Realtime ===
	hub := realtime.NewHub()
	popups := realtime.NewMediator(hub, cfg.Realtime.PopupClearAfter)

	// === Services ===
	tgService, err := services.NewTelegramService(cfg.Telegram.BotToken)
	if err != nil {
		log.Printf("[tg][init][err] %v (telegram disabled)", err)
		tgService = nil
	}
	if err := tgService.SetWebhook(cfg.Telegram.WebhookURL); err != nil {
		log.Printf("[tg][webhook][err] %v", err)
	}
	var emailService services.EmailService // без SMTP письма не шлём
	if cfg.Email.SMTPHost != "" {
		emailService = services.NewEmailService(
			cfg.Email.SMTPHost,
			cfg.Email.SMTPPort,
			cfg.Email.SMTPUser,
			cfg.Email.SMTPPassword,
			cfg.Email.FromEmail,
		)
	}

	notifyService := services.NewNotificationService(
		assignmentRepo, flowRepo, userRepo, hub, popups, tgService, emailService, cfg.Realtime.ChangeFeed,
	)
	workflowService := services.NewWorkflowService(flowRepo, taskRepo, assignmentRepo, commentRepo, notifyService)
	flowService := services.NewFlowService(flowRepo, commissionRepo, notifyService)
	reservationService := services.NewReservationService(reservationRepo, flowRepo, flowService)
	commissionService := services.NewCommissionService(commissionRepo)
	userService := services.NewUserService(userRepo, cfg.Auth.AccessTTL)

	collapseService := services.NewCollapseService(collapsedRepo, assignmentRepo, notifyService, cfg.Collapse.DefaultTTL)
	sweeper, err := collapseService.StartSweeper(cfg.Collapse.SweepSchedule)
	if err != nil {
		log.Fatal("Ошибка запуска очистки свёрнутых задач: ", err)
	}
	defer sweeper.Stop()

	pdfGen := pdf.NewDocumentGenerator(cfg.Files.RootDir, cfg.Files.FontPath)
	documentService := services.NewDocumentService(
		documentRepo,
		workflowService,
		flowRepo,
		reservationRepo,
		commissionRepo,
		userRepo,
		cfg.Files.RootDir,
		pdfGen,
	)

	// Лента изменений таблиц (LISTEN/NOTIFY): popups и пересчёт счётчиков
	if cfg.Realtime.ChangeFeed {
		feed := realtime.NewChangeFeed(cfg.Realtime.DeliveryTimeout)
		notifyService.Subscribe(feed)
		go func() {
			if err := feed.Listen(ctx, cfg.Database.DSN, cfg.Realtime.Channel); err != nil {
				log.Printf("[feed][err] %v", err)
			}
		}()
	}

	// === Handlers ===
	var integrationsHandler *handlers.IntegrationsHandler
	if tgService != nil {
		integrationsHandler = handlers.NewIntegrationsHandler(tgService, linkRepo, userRepo, assignmentRepo)
	}

	// === Gin ===
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	// Swagger
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Роуты (JWT/роли: внутри SetupRoutes)
	routes.SetupRoutes(router, routes.Handlers{
		Auth:          handlers.NewAuthHandler(userService),
		Users:         handlers.NewUserHandler(userService),
		Tasks:         handlers.NewTaskHandler(workflowService),
		Flows:         handlers.NewFlowHandler(flowService),
		Reservations:  handlers.NewReservationHandler(reservationService, commissionService),
		Notifications: handlers.NewNotificationHandler(notifyService, collapseService, hub, popups),
		Documents:     handlers.NewDocumentHandler(documentService),
		Integrations:  integrationsHandler,
	})

	// === Run ===
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}
	go func() {
		log.Printf("Сервер запущен на %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Ошибка запуска сервера: ", err)
		}
	}()

	<-ctx.Done()
	log.Printf("Остановка сервера...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Ошибка остановки сервера: %v", err)
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
