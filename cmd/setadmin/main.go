// Command setadmin changes a user's role. It is the only way to grant the
// administrator role; no HTTP route can.
//
//	setadmin -email tutor@example.com
//	setadmin -uid 8f2c... -role student
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"doubtsolver-backend/internal/app"
	"doubtsolver-backend/internal/config"
	"doubtsolver-backend/internal/core"
	"doubtsolver-backend/internal/models"
)

func main() {
	uid := flag.String("uid", "", "user ID to update")
	email := flag.String("email", "", "email of the user to update (used when -uid is empty)")
	role := flag.String("role", string(models.RoleAdmin), "role to assign: admin or student")
	flag.Parse()

	if *uid == "" && *email == "" {
		fmt.Fprintln(os.Stderr, "one of -uid or -email is required")
		flag.Usage()
		os.Exit(2)
	}

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file loaded:", err)
	}
	appConfig, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger, err := app.NewLogger(appConfig)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	backend, err := app.NewBackend(ctx, appConfig, logger)
	if err != nil {
		logger.Fatal("Failed to initialize the backend", zap.Error(err))
	}
	defer backend.Close()

	users := core.NewUserService(backend.Store.Users, backend.Identity, core.NewAuditService(backend.Store.Audit), logger)

	userID := *uid
	if userID == "" {
		userID, err = users.ResolveUserID(ctx, *email)
		if err != nil {
			logger.Fatal("Failed to resolve user", zap.String("email", *email), zap.Error(err))
		}
	}

	user, err := users.SetRole(ctx, userID, models.Role(*role))
	if err != nil {
		logger.Fatal("Failed to set role", zap.String("userId", userID), zap.Error(err))
	}
	fmt.Printf("%s (%s) is now %s\n", user.Email, user.ID, user.Role)
}
