package core

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"doubtsolver-backend/internal/db"
	"doubtsolver-backend/internal/models"
)

// auditService implements the AuditService interface.
type auditService struct {
	auditRepo db.AuditRepository
}

// NewAuditService creates a new AuditService instance.
func NewAuditService(auditRepo db.AuditRepository) AuditService {
	return &auditService{
		auditRepo: auditRepo,
	}
}

// CreateAuditLog creates a new audit log entry.
func (s *auditService) CreateAuditLog(ctx context.Context, logEntry models.AuditLog) error {
	if s.auditRepo == nil {
		return fmt.Errorf("AuditRepository not initialized in AuditService")
	}
	if err := s.auditRepo.Create(ctx, logEntry); err != nil {
		return fmt.Errorf("failed to create audit log via repository: %w", err)
	}
	return nil
}

// recordAudit writes an audit entry. A failure is logged but never fails the
// operation being audited.
func recordAudit(ctx context.Context, audit AuditService, logger *zap.Logger, entry models.AuditLog) {
	if audit == nil {
		return
	}
	if err := audit.CreateAuditLog(ctx, entry); err != nil {
		logger.Warn("Failed to create audit log",
			zap.String("action", entry.Action),
			zap.String("targetId", entry.TargetID),
			zap.Error(err))
	}
}

// publish hands event to the notifier and logs a failure.
func publish(ctx context.Context, notifier Notifier, logger *zap.Logger, event Event) error {
	if notifier == nil {
		return nil
	}
	err := notifier.Notify(ctx, event)
	if err != nil {
		logger.Warn("Failed to publish notification",
			zap.String("type", string(event.Type)),
			zap.String("targetId", event.TargetID),
			zap.Error(err))
	}
	return err
}
