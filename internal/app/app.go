// Package app builds the runtime dependency graph from configuration. Each
// binary constructs exactly the pieces it needs; nothing is package-global.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"doubtsolver-backend/internal/config"
	"doubtsolver-backend/internal/db"
	"doubtsolver-backend/internal/db/memdb"
	"doubtsolver-backend/internal/identity"
	"doubtsolver-backend/internal/storage"
	"doubtsolver-backend/pkg/cache"
	"doubtsolver-backend/pkg/mailer"
	"doubtsolver-backend/pkg/messagequeue"
)

// NewLogger returns a production JSON logger in release mode and a
// development console logger otherwise.
func NewLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", cfg.LogLevel, err)
	}
	var zc zap.Config
	if strings.EqualFold(cfg.GinMode, "release") {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

// Backend is the storage and identity layer shared by every binary.
type Backend struct {
	Store    *db.Store
	Identity identity.Provider
	Firebase *db.Clients

	closers []func() error
}

// Close releases every connection opened by NewBackend.
func (b *Backend) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NewBackend connects the profile store and the identity provider selected by cfg.
func NewBackend(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Backend, error) {
	b := &Backend{}

	if cfg.UsesFirebase() || cfg.FirebaseProjectID != "" {
		clients, err := db.InitFirebase(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		b.Firebase = clients
		b.closers = append(b.closers, clients.Close)

		provider, err := identity.NewFirebaseProvider(ctx, clients.Auth, cfg.FirebaseWebAPIKey, logger)
		if err != nil {
			_ = b.Close()
			return nil, fmt.Errorf("failed to create identity provider: %w", err)
		}
		b.Identity = provider
	} else {
		logger.Warn("FIREBASE_PROJECT_ID is not set; using the in-memory identity provider. Accounts do not survive a restart.")
		b.Identity = identity.NewMemoryProvider()
	}

	switch cfg.StoreDriver {
	case config.DriverFirestore:
		b.Store = db.NewFirestoreStore(b.Firebase.Firestore, logger)
		logger.Info("Using Firestore profile store.")
	case config.DriverMemory:
		b.Store = memdb.New().Store()
		logger.Warn("Using in-memory profile store. Data does not survive a restart.")
	default:
		_ = b.Close()
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}
	return b, nil
}

// NewObjectStore opens the file store selected by OBJECT_STORE_DRIVER.
func NewObjectStore(ctx context.Context, cfg *config.Config, clients *db.Clients, logger *zap.Logger) (storage.ObjectStore, error) {
	switch cfg.ObjectStoreDriver {
	case config.DriverFirebase:
		if clients == nil {
			return nil, errors.New("firebase object store requires the Firebase Admin SDK")
		}
		sc, err := clients.App.Storage(ctx)
		if err != nil {
			return nil, fmt.Errorf("app.Storage: %w", err)
		}
		fs, err := storage.NewFirebaseStore(sc, cfg.FirebaseStorageBucket, logger)
		if err != nil {
			return nil, err
		}
		return fs, nil
	case config.DriverMinio:
		ms, err := storage.NewMinioStore(storage.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
			PublicURL: cfg.MinioPublicURL,
		}, logger)
		if err != nil {
			return nil, err
		}
		if err := ms.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return ms, nil
	case config.DriverMemory:
		logger.Warn("Using in-memory object store. Uploads do not survive a restart.")
		return storage.NewMemoryStore("http://localhost:" + cfg.Port + "/files"), nil
	default:
		return nil, fmt.Errorf("unknown OBJECT_STORE_DRIVER %q", cfg.ObjectStoreDriver)
	}
}

// NewCache connects to Redis when REDIS_ADDR is set and falls back to a
// process-local cache otherwise. The returned func closes the connection.
func NewCache(ctx context.Context, cfg *config.Config, logger *zap.Logger) (cache.Cache, func() error, error) {
	if cfg.RedisAddr == "" {
		logger.Info("REDIS_ADDR not set; subscription decisions are cached in process.")
		return cache.NewMemoryCache(), func() error { return nil }, nil
	}
	rc, err := cache.NewRedisCache(ctx, cache.NewRedisCacheConfig{
		Address:  cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, logger)
	if err != nil {
		return nil, nil, err
	}
	return rc, rc.Close, nil
}

// NewQueue connects to RabbitMQ. It returns nil when RABBITMQ_URL is unset.
func NewQueue(cfg *config.Config, logger *zap.Logger) (messagequeue.MessageQueue, error) {
	if cfg.RabbitMQURL == "" {
		return nil, nil
	}
	q, err := messagequeue.NewRabbitMQService(messagequeue.NewRabbitMQServiceConfig{URL: cfg.RabbitMQURL}, logger)
	if err != nil {
		return nil, err
	}
	return q, nil
}

// NewMailer builds the mail transport selected by MAIL_DRIVER.
func NewMailer(cfg *config.Config, logger *zap.Logger) (mailer.Mailer, error) {
	switch cfg.MailDriver {
	case config.DriverSMTP:
		sm, err := mailer.NewSMTPMailer(mailer.SMTPConfig{
			Host: cfg.SMTPHost,
			Port: cfg.SMTPPort,
			User: cfg.SMTPUser,
			Pass: cfg.SMTPPass,
			From: cfg.MailFrom,
		}, logger)
		if err != nil {
			return nil, err
		}
		return sm, nil
	case config.DriverSendgrid:
		return mailer.NewSendgridMailer(cfg.SendgridAPIKey, "Doubt Solver", cfg.MailFrom, logger), nil
	case config.DriverLog:
		return mailer.NewLogMailer(logger), nil
	default:
		return nil, fmt.Errorf("unknown MAIL_DRIVER %q", cfg.MailDriver)
	}
}
