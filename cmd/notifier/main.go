// Command notifier consumes domain events from RabbitMQ and emails students.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"doubtsolver-backend/internal/app"
	"doubtsolver-backend/internal/config"
	"doubtsolver-backend/internal/notify"
)

func main() {
	if os.Getenv("GIN_MODE") != "release" {
		if err := godotenv.Load(); err != nil {
			log.Println("No .env file loaded:", err)
		}
	}

	appConfig, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("CRITICAL_ERROR: Failed to load application configuration: %v", err)
	}
	zapLogger, err := app.NewLogger(appConfig)
	if err != nil {
		log.Fatalf("CRITICAL_ERROR: Failed to initialize Zap logger: %v", err)
	}
	defer zapLogger.Sync()

	if appConfig.RabbitMQURL == "" {
		zapLogger.Fatal("RABBITMQ_URL is required by the notifier")
	}
	queue, err := app.NewQueue(appConfig, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to connect to RabbitMQ", zap.Error(err))
	}
	defer queue.Close()

	m, err := app.NewMailer(appConfig, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to initialize mailer", zap.Error(err))
	}
	zapLogger.Info("Mailer ready", zap.String("driver", appConfig.MailDriver))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	worker := notify.NewWorker(queue, appConfig.NotificationsQueue, m, appConfig.ClientURL, zapLogger)
	if err := worker.Run(ctx); err != nil {
		zapLogger.Error("Notification worker stopped", zap.Error(err))
		return
	}
	zapLogger.Info("Notification worker exiting gracefully.")
}
