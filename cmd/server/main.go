package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"doubtsolver-backend/internal/api"
	"doubtsolver-backend/internal/app"
	"doubtsolver-backend/internal/config"
	"doubtsolver-backend/internal/core"
	"doubtsolver-backend/internal/metrics"
	"doubtsolver-backend/internal/middleware"
	"doubtsolver-backend/internal/notify"
)

func main() {
	// --- 1. Load .env outside release mode ---
	if os.Getenv("GIN_MODE") != "release" {
		if err := godotenv.Load(); err != nil {
			log.Println("No .env file loaded:", err)
		}
	}

	// --- 2. Load Application Configuration ---
	appConfig, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("CRITICAL_ERROR: Failed to load application configuration: %v", err)
	}

	// --- 3. Initialize Logger (Zap) ---
	zapLogger, err := app.NewLogger(appConfig)
	if err != nil {
		log.Fatalf("CRITICAL_ERROR: Failed to initialize Zap logger: %v", err)
	}
	defer zapLogger.Sync()
	zapLogger.Info("Application configuration loaded successfully.",
		zap.String("storeDriver", appConfig.StoreDriver),
		zap.String("objectStoreDriver", appConfig.ObjectStoreDriver))

	// --- 4. Connect the store, identity provider and file storage ---
	initCtx, cancelInitCtx := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelInitCtx()

	backend, err := app.NewBackend(initCtx, appConfig, zapLogger)
	if err != nil {
		zapLogger.Fatal("CRITICAL_ERROR: Failed to initialize the backend", zap.Error(err))
	}
	defer backend.Close()

	objects, err := app.NewObjectStore(initCtx, appConfig, backend.Firebase, zapLogger)
	if err != nil {
		zapLogger.Fatal("CRITICAL_ERROR: Failed to initialize object storage", zap.Error(err))
	}

	subscriptionCache, closeCache, err := app.NewCache(initCtx, appConfig, zapLogger)
	if err != nil {
		zapLogger.Fatal("CRITICAL_ERROR: Failed to connect to Redis", zap.Error(err))
	}
	defer closeCache()

	// --- 5. Notifications: RabbitMQ when configured, log otherwise ---
	var notifier core.Notifier = notify.NewLogNotifier(zapLogger)
	queue, err := app.NewQueue(appConfig, zapLogger)
	if err != nil {
		zapLogger.Fatal("CRITICAL_ERROR: Failed to connect to RabbitMQ", zap.Error(err))
	}
	if queue != nil {
		defer queue.Close()
		notifier = notify.NewQueueNotifier(queue, appConfig.NotificationsQueue, zapLogger)
		zapLogger.Info("Publishing notifications to RabbitMQ", zap.String("queue", appConfig.NotificationsQueue))
	}

	var appMetrics *metrics.Metrics
	if appConfig.MetricsEnabled {
		appMetrics = metrics.NewMetrics("doubtsolver")
	}

	// --- 6. Initialize Services ---
	store := backend.Store
	limits := core.UploadLimits{MaxBytes: appConfig.MaxUploadBytes, MaxImages: appConfig.MaxDoubtImages}
	auditService := core.NewAuditService(store.Audit)
	userService := core.NewUserService(store.Users, backend.Identity, auditService, zapLogger)
	gate := core.NewSubscriptionGate(store.Payments, subscriptionCache, appConfig.SubscriptionCacheTTL, zapLogger, appMetrics)
	doubtService := core.NewDoubtService(core.DoubtServiceDeps{
		Doubts:   store.Doubts,
		Messages: store.Messages,
		Objects:  objects,
		Gate:     gate,
		Audit:    auditService,
		Notifier: notifier,
		Limits:   limits,
		Logger:   zapLogger,
		Metrics:  appMetrics,
	})
	paymentService := core.NewPaymentService(core.PaymentServiceDeps{
		Payments: store.Payments,
		Objects:  objects,
		Gate:     gate,
		Audit:    auditService,
		Notifier: notifier,
		MaxBytes: appConfig.MaxUploadBytes,
		UPIID:    appConfig.UPIID,
		Logger:   zapLogger,
		Metrics:  appMetrics,
	})
	dashboardService := core.NewDashboardService(store, paymentService, zapLogger)
	zapLogger.Info("Core services initialized successfully.")

	// --- 7. Setup Gin HTTP Engine ---
	if strings.ToLower(appConfig.GinMode) == "release" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}
	router := gin.New()
	router.MaxMultipartMemory = appConfig.MaxUploadBytes

	// --- 8. Apply Global Middleware (Order is important) ---
	router.Use(middleware.RequestLogger(zapLogger))
	router.Use(middleware.RecoveryMiddleware(zapLogger))
	if appMetrics != nil {
		router.Use(middleware.MetricsMiddleware(appMetrics))
	}
	if appConfig.ClientURL == "" {
		zapLogger.Warn("CLIENT_URL is not configured; allowing any origin without credentials.")
	}
	router.Use(middleware.CORSMiddleware(appConfig.ClientURL))

	// --- 9. Setup API Routes ---
	api.SetupRoutes(router, api.RouteDeps{
		Logger:    zapLogger,
		Verifier:  backend.Identity,
		Users:     userService,
		Doubts:    doubtService,
		Payments:  paymentService,
		Dashboard: dashboardService,
		Limits:    limits,
		ClientURL: appConfig.ClientURL,
		Metrics:   appMetrics,
	})

	// --- 10. Configure and Start HTTP Server ---
	serverAddr := fmt.Sprintf(":%s", appConfig.Port)
	httpServer := &http.Server{
		Addr:              serverAddr,
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	zapLogger.Info("Starting HTTP server...", zap.String("address", serverAddr), zap.String("ginMode", gin.Mode()))
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	// --- 11. Graceful Shutdown Handling ---
	quitChannel := make(chan os.Signal, 1)
	signal.Notify(quitChannel, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quitChannel
	zapLogger.Info("Received shutdown signal", zap.String("signal", sig.String()))

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	// Shutdown does not wait for hijacked WebSocket connections; their
	// streams end when the process exits.
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("Server forced to shutdown", zap.Error(err))
	}
	zapLogger.Info("Server exiting gracefully.")
}
