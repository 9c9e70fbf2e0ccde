package db

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"doubtsolver-backend/internal/config"
)

// Clients bundles the Firebase Admin SDK handles created at startup.
// It is passed explicitly to whatever needs it; nothing here is package-global.
type Clients struct {
	App       *firebase.App
	Firestore *firestore.Client
	Auth      *auth.Client
}

// Close releases the Firestore connection.
func (c *Clients) Close() error {
	if c == nil || c.Firestore == nil {
		return nil
	}
	return c.Firestore.Close()
}

// CredentialOption resolves the Google credentials configured for the app.
// A nil option means Application Default Credentials.
func CredentialOption(appConfig *config.Config, logger *zap.Logger) (option.ClientOption, error) {
	switch {
	case appConfig.GoogleApplicationCredentials != "":
		logger.Info("Initializing Firebase with credentials file", zap.String("path", appConfig.GoogleApplicationCredentials))
		if _, err := os.Stat(appConfig.GoogleApplicationCredentials); os.IsNotExist(err) {
			// The SDK may still find ADC in the environment, so this is only a warning.
			logger.Warn("Credentials file specified in GOOGLE_APPLICATION_CREDENTIALS does not exist",
				zap.String("path", appConfig.GoogleApplicationCredentials))
		}
		return option.WithCredentialsFile(appConfig.GoogleApplicationCredentials), nil
	case appConfig.FirebaseServiceAccountJSONBase64 != "":
		logger.Info("Initializing Firebase with Base64 encoded service account JSON.")
		decodedJSON, err := base64.StdEncoding.DecodeString(appConfig.FirebaseServiceAccountJSONBase64)
		if err != nil {
			return nil, fmt.Errorf("failed to decode FirebaseServiceAccountJSONBase64: %w", err)
		}
		return option.WithCredentialsJSON(decodedJSON), nil
	default:
		logger.Info("Initializing Firebase using Application Default Credentials (ADC).")
		return nil, nil
	}
}

// InitFirebase initializes the Firebase Admin SDK and returns the Firestore and Auth clients.
func InitFirebase(ctx context.Context, appConfig *config.Config, logger *zap.Logger) (*Clients, error) {
	if appConfig == nil {
		return nil, fmt.Errorf("InitFirebase: appConfig cannot be nil")
	}

	credsOption, err := CredentialOption(appConfig, logger)
	if err != nil {
		return nil, err
	}

	firebaseAppConfig := &firebase.Config{
		ProjectID:     appConfig.FirebaseProjectID,
		StorageBucket: appConfig.FirebaseStorageBucket,
	}

	var opts []option.ClientOption
	if credsOption != nil {
		opts = append(opts, credsOption)
	}
	app, err := firebase.NewApp(ctx, firebaseAppConfig, opts...)
	if err != nil {
		return nil, fmt.Errorf("firebase.NewApp: %w", err)
	}

	fsClient, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("app.Firestore: %w", err)
	}
	logger.Info("Firestore client initialized successfully.")

	authClient, err := app.Auth(ctx)
	if err != nil {
		fsClient.Close() // Best effort close
		return nil, fmt.Errorf("app.Auth: %w", err)
	}
	logger.Info("Firebase Auth client initialized successfully.")

	return &Clients{App: app, Firestore: fsClient, Auth: authClient}, nil
}

// NewFirestoreStore wires every Firestore repository onto one client.
func NewFirestoreStore(client *firestore.Client, logger *zap.Logger) *Store {
	return &Store{
		Users:    NewFirestoreUserRepository(client),
		Payments: NewFirestorePaymentRepository(client, logger),
		Doubts:   NewFirestoreDoubtRepository(client, logger),
		Messages: NewFirestoreMessageRepository(client, logger),
		Audit:    NewFirestoreAuditRepository(client),
	}
}
