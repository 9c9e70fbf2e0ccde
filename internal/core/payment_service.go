package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"doubtsolver-backend/internal/db"
	"doubtsolver-backend/internal/metrics"
	"doubtsolver-backend/internal/models"
	"doubtsolver-backend/internal/storage"
)

const maxReviewNotesLength = 2000

// Proof files may be photos or scans of the transfer receipt.
var acceptedProofTypes = []string{"image/jpeg", "image/png", "application/pdf"}

// PaymentServiceDeps are the collaborators of the payment service.
type PaymentServiceDeps struct {
	Payments db.PaymentRepository
	Objects  storage.ObjectStore
	Gate     SubscriptionGate
	Audit    AuditService
	Notifier Notifier
	// MaxBytes caps a proof upload; zero means 5 MiB.
	MaxBytes int64
	UPIID    string
	Logger   *zap.Logger
	Metrics  *metrics.Metrics
}

// paymentService implements the PaymentService interface.
type paymentService struct {
	paymentRepo db.PaymentRepository
	objects     storage.ObjectStore
	gate        SubscriptionGate
	audit       AuditService
	notifier    Notifier
	maxBytes    int64
	upiID       string
	logger      *zap.Logger
	metrics     *metrics.Metrics
	now         func() time.Time
}

// NewPaymentService creates a new PaymentService instance.
func NewPaymentService(deps PaymentServiceDeps) PaymentService {
	if deps.Notifier == nil {
		deps.Notifier = NopNotifier
	}
	if deps.MaxBytes <= 0 {
		deps.MaxBytes = DefaultUploadLimits().MaxBytes
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &paymentService{
		paymentRepo: deps.Payments,
		objects:     deps.Objects,
		gate:        deps.Gate,
		audit:       deps.Audit,
		notifier:    deps.Notifier,
		maxBytes:    deps.MaxBytes,
		upiID:       deps.UPIID,
		logger:      deps.Logger,
		metrics:     deps.Metrics,
		now:         utcNow,
	}
}

func acceptedProofType(contentType string) bool {
	for _, t := range acceptedProofTypes {
		if t == contentType {
			return true
		}
	}
	return false
}

// SubmitProof uploads the proof and records a pending payment. Every
// submission is a new record; the gate only ever consults the latest.
func (s *paymentService) SubmitProof(ctx context.Context, user *models.User, file models.FileUpload) (*models.Payment, error) {
	if user == nil {
		return nil, denied("not authenticated")
	}
	if file.Size() == 0 {
		return nil, invalid("proof", "file is empty")
	}
	if file.Size() > s.maxBytes {
		return nil, invalid("proof", fmt.Sprintf("file exceeds %d bytes", s.maxBytes))
	}
	contentType := storage.DetectContentType(file.Data)
	if !acceptedProofType(contentType) {
		return nil, invalid("proof", fmt.Sprintf("unsupported file type %q; use JPEG, PNG or PDF", contentType))
	}

	now := s.now()
	objectPath := storage.PaymentProofPath(user.ID, now, storage.Extension(contentType, file.Filename))
	proofURL, err := s.objects.Upload(ctx, objectPath, contentType, file.Data)
	if err != nil {
		return nil, remote("upload payment proof", err)
	}

	payment := &models.Payment{
		UserID:    user.ID,
		UserEmail: user.Email,
		ProofURL:  proofURL,
		ProofPath: objectPath,
		Status:    models.PaymentPending,
		CreatedAt: now,
	}
	paymentID, err := s.paymentRepo.Create(ctx, payment)
	if err != nil {
		if delErr := s.objects.Delete(context.WithoutCancel(ctx), objectPath); delErr != nil {
			s.logger.Error("Failed to delete orphaned payment proof", zap.String("path", objectPath), zap.Error(delErr))
		}
		return nil, remote("create payment", err)
	}
	payment.ID = paymentID
	s.gate.Invalidate(ctx, user.ID)

	s.logger.Info("Payment proof submitted", zap.String("paymentId", paymentID), zap.String("userId", user.ID))
	s.metrics.PaymentSubmitted()
	recordAudit(ctx, s.audit, s.logger, models.AuditLog{
		UserID:     user.ID,
		Action:     models.AuditPaymentSubmit,
		TargetType: models.AuditTargetPayment,
		TargetID:   paymentID,
		Timestamp:  now,
		Details:    map[string]interface{}{"contentType": contentType, "size": file.Size()},
	})
	err = publish(ctx, s.notifier, s.logger, Event{
		Type:       EventPaymentSubmitted,
		UserID:     user.ID,
		UserEmail:  user.Email,
		TargetID:   paymentID,
		OccurredAt: now,
	})
	s.metrics.NotificationPublished(string(EventPaymentSubmitted), err)
	return payment, nil
}

func (s *paymentService) GetPaymentStatus(ctx context.Context, user *models.User) (*PaymentStatusView, error) {
	if user == nil {
		return nil, denied("not authenticated")
	}
	latest, err := s.paymentRepo.LatestByUser(ctx, user.ID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return &PaymentStatusView{Status: "none"}, nil
		}
		return nil, remote("get payment status", err)
	}
	return &PaymentStatusView{
		Status:     string(latest.Status),
		Subscribed: latest.Status == models.PaymentApproved,
		Latest:     latest,
	}, nil
}

func (s *paymentService) ListMyPayments(ctx context.Context, user *models.User) ([]*models.Payment, error) {
	if user == nil {
		return nil, denied("not authenticated")
	}
	payments, err := s.paymentRepo.List(ctx, models.PaymentFilter{UserID: user.ID})
	if err != nil {
		return nil, remote("list payments", err)
	}
	return payments, nil
}

func (s *paymentService) Instructions() PaymentInstructions {
	return PaymentInstructions{
		UPIID:          s.upiID,
		AcceptedTypes:  append([]string(nil), acceptedProofTypes...),
		MaxUploadBytes: s.maxBytes,
	}
}

func validPaymentFilter(filter models.PaymentFilter) error {
	if filter.Status != "" && !filter.Status.Valid() {
		return invalid("status", fmt.Sprintf("unknown status %q", filter.Status))
	}
	if filter.Limit < 0 {
		return invalid("limit", "must not be negative")
	}
	return nil
}

func (s *paymentService) ListPayments(ctx context.Context, actor *models.User, filter models.PaymentFilter) ([]*models.Payment, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if err := validPaymentFilter(filter); err != nil {
		return nil, err
	}
	payments, err := s.paymentRepo.List(ctx, filter)
	if err != nil {
		return nil, remote("list payments", err)
	}
	return payments, nil
}

func (s *paymentService) WatchPayments(ctx context.Context, actor *models.User, filter models.PaymentFilter) (db.Stream[*models.Payment], error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if err := validPaymentFilter(filter); err != nil {
		return nil, err
	}
	return s.paymentRepo.Watch(ctx, filter), nil
}

// ReviewPayment records an approve/reject decision. Re-reviewing overwrites
// the earlier decision, and two concurrent reviews race: the last write wins.
func (s *paymentService) ReviewPayment(ctx context.Context, actor *models.User, paymentID string, decision models.PaymentStatus, notes string) (*models.Payment, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if !decision.IsDecision() {
		return nil, invalid("status", fmt.Sprintf("decision must be %q or %q", models.PaymentApproved, models.PaymentRejected))
	}
	notes = strings.TrimSpace(notes)
	if len(notes) > maxReviewNotesLength {
		return nil, invalid("notes", fmt.Sprintf("must be at most %d characters", maxReviewNotesLength))
	}
	if strings.TrimSpace(paymentID) == "" {
		return nil, invalid("paymentId", "must not be empty")
	}

	payment, err := s.paymentRepo.GetByID(ctx, paymentID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrPaymentNotFound, paymentID)
		}
		return nil, remote("get payment", err)
	}
	previous := payment.Status

	now := s.now()
	review := db.PaymentReview{
		Status:     decision,
		ReviewedBy: actor.ID,
		ReviewedAt: now,
		Notes:      notes,
	}
	if err := s.paymentRepo.Review(ctx, paymentID, review); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrPaymentNotFound, paymentID)
		}
		return nil, remote("review payment", err)
	}
	payment.Status = decision
	payment.ReviewedAt = &review.ReviewedAt
	payment.ReviewedBy = &review.ReviewedBy
	payment.Notes = notes
	s.gate.Invalidate(ctx, payment.UserID)

	s.logger.Info("Payment reviewed",
		zap.String("paymentId", paymentID),
		zap.String("decision", string(decision)),
		zap.String("previous", string(previous)),
		zap.String("reviewer", actor.ID))
	s.metrics.PaymentReviewed(string(decision))
	recordAudit(ctx, s.audit, s.logger, models.AuditLog{
		UserID:     actor.ID,
		Action:     models.AuditPaymentReview,
		TargetType: models.AuditTargetPayment,
		TargetID:   paymentID,
		Timestamp:  now,
		Details: map[string]interface{}{
			"from":  string(previous),
			"to":    string(decision),
			"owner": payment.UserID,
		},
	})
	err = publish(ctx, s.notifier, s.logger, Event{
		Type:       EventPaymentReviewed,
		UserID:     payment.UserID,
		UserEmail:  payment.UserEmail,
		TargetID:   paymentID,
		Attributes: map[string]string{"status": string(decision), "notes": notes},
		OccurredAt: now,
	})
	s.metrics.NotificationPublished(string(EventPaymentReviewed), err)
	return payment, nil
}
