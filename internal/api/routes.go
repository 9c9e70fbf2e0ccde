package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"doubtsolver-backend/internal/core"
	"doubtsolver-backend/internal/identity"
	"doubtsolver-backend/internal/metrics"
	"doubtsolver-backend/internal/middleware"
)

// RouteDeps are the collaborators the HTTP surface is built from.
type RouteDeps struct {
	Logger    *zap.Logger
	Verifier  identity.Provider
	Users     core.UserService
	Doubts    core.DoubtService
	Payments  core.PaymentService
	Dashboard core.DashboardService
	Limits    core.UploadLimits
	ClientURL string
	// Metrics is exposed on GET /metrics when non-nil.
	Metrics *metrics.Metrics
}

// SetupRoutes configures all the application routes with their handlers and middleware.
// Global middleware (logging, recovery, CORS, metrics) is applied by the caller.
func SetupRoutes(router *gin.Engine, deps RouteDeps) {
	logger := deps.Logger
	authMW := middleware.NewAuthMiddleware(deps.Verifier, deps.Users, logger)
	adminOnly := middleware.RequireAdmin(logger)

	authHandler := NewAuthHandler(deps.Users, logger)
	userHandler := NewUserHandler()
	paymentHandler := NewPaymentHandler(deps.Payments, logger)
	doubtHandler := NewDoubtHandler(deps.Doubts, deps.Limits, logger)
	dashboardHandler := NewDashboardHandler(deps.Dashboard, logger)
	streamHandler := NewStreamHandler(deps.Doubts, deps.Payments, deps.ClientURL, deps.Metrics, logger)

	apiV1 := router.Group("/api/v1")
	{
		authGroup := apiV1.Group("/auth")
		{
			authGroup.POST("/signup", authHandler.SignUp)
			authGroup.POST("/signin", authHandler.SignIn)
			authGroup.POST("/signout", authMW.VerifyToken(), authHandler.SignOut)
		}

		protected := apiV1.Group("", authMW.VerifyToken())

		usersGroup := protected.Group("/users")
		{
			usersGroup.POST("/initialize", authHandler.InitializeUserProfile)
			usersGroup.GET("/me", userHandler.GetCurrentUserProfile)
		}

		protected.GET("/dashboard", dashboardHandler.Student)

		paymentsGroup := protected.Group("/payments")
		{
			paymentsGroup.GET("", paymentHandler.ListMine)
			paymentsGroup.POST("", paymentHandler.SubmitProof)
			paymentsGroup.GET("/status", paymentHandler.Status)
			paymentsGroup.GET("/instructions", paymentHandler.Instructions)
		}

		doubtsGroup := protected.Group("/doubts")
		{
			doubtsGroup.POST("", doubtHandler.CreateDoubt)
			doubtsGroup.GET("", doubtHandler.ListMine)
			doubtsGroup.GET("/solved", doubtHandler.ListSolved)
			doubtsGroup.GET("/ws", streamHandler.MyDoubts)
			doubtsGroup.GET("/:doubtId", doubtHandler.GetDoubt)
			doubtsGroup.GET("/:doubtId/messages", doubtHandler.ListMessages)
			doubtsGroup.POST("/:doubtId/messages", doubtHandler.PostMessage)
			doubtsGroup.GET("/:doubtId/messages/ws", streamHandler.Messages)
		}

		// Admin routes check the stored role here and again inside every service call.
		adminGroup := protected.Group("/admin", adminOnly)
		{
			adminGroup.GET("/dashboard", dashboardHandler.Admin)

			adminGroup.GET("/payments", paymentHandler.List)
			adminGroup.GET("/payments/ws", streamHandler.AdminPayments)
			adminGroup.POST("/payments/:paymentId/review", paymentHandler.Review)

			adminGroup.GET("/doubts", doubtHandler.List)
			adminGroup.GET("/doubts/ws", streamHandler.AdminDoubts)
			adminGroup.GET("/doubts/:doubtId", doubtHandler.GetDoubt)
			adminGroup.PUT("/doubts/:doubtId", doubtHandler.UpdateDoubt)
			adminGroup.PUT("/doubts/:doubtId/status", doubtHandler.UpdateStatus)
			adminGroup.PUT("/doubts/:doubtId/solution", doubtHandler.AttachSolution)
			adminGroup.POST("/doubts/:doubtId/messages", doubtHandler.PostMessage)
		}
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "UP", "message": "Doubt solver backend is healthy."})
	})
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	logger.Info("API routes configured successfully under /api/v1, /health and /metrics.")
}
