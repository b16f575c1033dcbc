package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/novasendhq/nova-sender-backend/docs"
	"github.com/novasendhq/nova-sender-backend/internal/config"
	"github.com/novasendhq/nova-sender-backend/internal/database"
	"github.com/novasendhq/nova-sender-backend/internal/database/repository"
	"github.com/novasendhq/nova-sender-backend/internal/handlers"
	"github.com/novasendhq/nova-sender-backend/internal/router"
	"github.com/novasendhq/nova-sender-backend/internal/services"
	"github.com/novasendhq/nova-sender-backend/internal/utils"
)

// @title Nova Sender Backend API
// @version 1.0
// @description Campaign execution engine for profile-based mass messaging

// @contact.name API Support
// @contact.email support@novasend.io

// @BasePath /

func main() {
	cfg := config.Load()
	docs.SwaggerInfo.BasePath = cfg.BasePath

	configureLogging()
	utils.InitSentry()

	db, err := database.InitDB(cfg.DB)
	if err != nil {
		logrus.Fatalf("Failed to initialize database: %v", err)
	}

	// Repositories
	campaignRepo := repository.NewCampaignRepository(db)
	contactRepo := repository.NewContactRepository(db)
	profileRepo := repository.NewProfileRepository(db)
	queueRepo := repository.NewQueueRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)
	logRepo := repository.NewCampaignLogRepository(db)

	// Event fan-out: SSE always, RabbitMQ when reachable
	sseHub := services.NewSSEHub()
	rabbitMQService, err := services.NewRabbitMQService(cfg.RabbitMQ)
	if err != nil {
		logrus.Warnf("Failed to initialize RabbitMQ, notifications disabled: %v", err)
		rabbitMQService = nil
	} else {
		defer rabbitMQService.Close()
	}
	var eventService *services.EventService
	if rabbitMQService != nil {
		eventService = services.NewEventService(sseHub, rabbitMQService)
	} else {
		eventService = services.NewEventService(sseHub, nil)
	}

	audit := services.NewAuditLogger(logRepo)
	automation := services.NewAutomationClient(cfg.AutomationBaseURL, cfg.SendTimeout)

	// Execution engine
	balancer := services.NewLoadBalancer(campaignRepo, contactRepo, queueRepo, assignmentRepo, audit)
	tracker := services.NewProgressTracker(campaignRepo, assignmentRepo, queueRepo)
	executor := services.NewCampaignExecutor(
		campaignRepo, queueRepo, contactRepo, assignmentRepo,
		balancer, tracker, eventService, audit,
		automation, automation,
		cfg.WorkerPollInterval, cfg.ProgressPushEvery,
	)
	errorHandler := services.NewErrorHandler(assignmentRepo, profileRepo, contactRepo, balancer, eventService, audit)
	errorHandler.SetPauser(executor)
	executor.SetErrorEscalator(errorHandler)

	// Crash recovery, then the stale-item sweep
	recovery := services.NewRecoveryService(campaignRepo, queueRepo, executor, errorHandler, audit, cfg.StaleItemTimeout)
	if err := recovery.RecoverOnBoot(); err != nil {
		logrus.Errorf("Boot recovery failed: %v", err)
	}
	recovery.StartSweep()
	defer recovery.Stop()

	// Background cadences
	scheduler := services.NewSchedulerService(campaignRepo, logRepo, executor, audit, cfg)
	scheduler.Start()
	defer scheduler.Stop()

	executionHandler := handlers.NewCampaignExecutionHandler(executor, tracker, queueRepo, logRepo, sseHub)
	r := router.SetupRouter(executionHandler)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Port),
		Handler: r,
	}

	go func() {
		logrus.Infof("Server starting on port %s", cfg.Port)
		logrus.Infof("API Health Check: http://localhost:%s/api/v1/health", cfg.Port)
		logrus.Infof("Swagger UI: http://localhost:%s/swagger/index.html", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("Shutting down server...")

	// Workers first, so in-flight sends finish and their items are
	// persisted before the process exits
	executor.StopAll()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logrus.Fatalf("Server forced to shutdown: %v", err)
	}

	logrus.Info("Server exited properly")
}

func configureLogging() {
	logLevel := os.Getenv("LOG_LEVEL")
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
}
