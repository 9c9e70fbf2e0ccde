package db

import (
	"context"
	"errors"
	"fmt"
	"log"

	"cloud.google.com/go/firestore"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"doubtsolver-backend/internal/models"
)

const paymentsCollection = "payments"

// firestorePaymentRepository implements the PaymentRepository interface using Firestore.
type firestorePaymentRepository struct {
	client *firestore.Client
	logger *zap.Logger
}

// NewFirestorePaymentRepository creates a new instance of firestorePaymentRepository.
func NewFirestorePaymentRepository(client *firestore.Client, logger *zap.Logger) PaymentRepository {
	if client == nil {
		log.Fatal("Firestore client is not initialized for PaymentRepository.")
	}
	return &firestorePaymentRepository{client: client, logger: logger}
}

// Create adds a new payment document with an auto-generated ID.
func (r *firestorePaymentRepository) Create(ctx context.Context, payment *models.Payment) (string, error) {
	docRef := r.client.Collection(paymentsCollection).NewDoc()
	payment.ID = docRef.ID

	if _, err := docRef.Create(ctx, payment); err != nil {
		return "", fmt.Errorf("failed to create payment: %w", err)
	}
	return docRef.ID, nil
}

// GetByID retrieves a payment document by its ID.
func (r *firestorePaymentRepository) GetByID(ctx context.Context, paymentID string) (*models.Payment, error) {
	if paymentID == "" {
		return nil, errors.New("paymentID cannot be empty for GetByID operation")
	}
	docSnap, err := r.client.Collection(paymentsCollection).Doc(paymentID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, fmt.Errorf("payment with ID '%s' not found: %w", paymentID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get payment with ID '%s': %w", paymentID, err)
	}
	return decodePayment(docSnap)
}

// LatestByUser returns the user's most recently created payment.
// Requires the composite index (userId ASC, createdAt DESC).
func (r *firestorePaymentRepository) LatestByUser(ctx context.Context, userID string) (*models.Payment, error) {
	payments, err := r.List(ctx, models.PaymentFilter{UserID: userID, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(payments) == 0 {
		return nil, fmt.Errorf("no payment for user '%s': %w", userID, ErrNotFound)
	}
	return payments[0], nil
}

// List returns payments newest first.
func (r *firestorePaymentRepository) List(ctx context.Context, filter models.PaymentFilter) ([]*models.Payment, error) {
	payments, err := collect(ctx, r.query(filter), decodePayment, r.keep(filter), filter.Limit, r.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	return payments, nil
}

// Review writes the review fields onto an existing payment.
func (r *firestorePaymentRepository) Review(ctx context.Context, paymentID string, review PaymentReview) error {
	_, err := r.client.Collection(paymentsCollection).Doc(paymentID).Update(ctx, []firestore.Update{
		{Path: "status", Value: review.Status},
		{Path: "reviewedAt", Value: review.ReviewedAt},
		{Path: "reviewedBy", Value: review.ReviewedBy},
		{Path: "notes", Value: review.Notes},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return fmt.Errorf("payment with ID '%s' not found: %w", paymentID, ErrNotFound)
		}
		return fmt.Errorf("failed to review payment '%s': %w", paymentID, err)
	}
	return nil
}

// Watch streams the filtered payment list as it changes.
func (r *firestorePaymentRepository) Watch(ctx context.Context, filter models.PaymentFilter) Stream[*models.Payment] {
	return watch(ctx, r.query(filter), decodePayment, r.keep(filter), filter.Limit, r.logger)
}

func (r *firestorePaymentRepository) query(filter models.PaymentFilter) firestore.Query {
	q := r.client.Collection(paymentsCollection).Query
	if filter.UserID != "" {
		q = q.Where("userId", "==", filter.UserID)
	}
	if filter.Status != "" {
		q = q.Where("status", "==", string(filter.Status))
	}
	q = q.OrderBy("createdAt", firestore.Desc)
	// With a search term the limit has to wait until after the in-memory filter.
	if filter.Limit > 0 && filter.Search == "" {
		q = q.Limit(filter.Limit)
	}
	return q
}

func (r *firestorePaymentRepository) keep(filter models.PaymentFilter) func(*models.Payment) bool {
	if filter.Search == "" {
		return nil
	}
	return func(p *models.Payment) bool { return MatchPayment(p, filter) }
}

func decodePayment(docSnap *firestore.DocumentSnapshot) (*models.Payment, error) {
	var payment models.Payment
	if err := docSnap.DataTo(&payment); err != nil {
		return nil, fmt.Errorf("failed to decode payment data for ID '%s': %w", docSnap.Ref.ID, err)
	}
	payment.ID = docSnap.Ref.ID
	return &payment, nil
}
