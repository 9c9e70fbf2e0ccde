package db

import (
	"context"
	"time"

	"doubtsolver-backend/internal/models"
)

// UserRepository defines the interface for user profile storage operations.
type UserRepository interface {
	GetByID(ctx context.Context, userID string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	// TouchLastLogin merges lastLoginAt into the profile, creating the document if needed.
	TouchLastLogin(ctx context.Context, userID string, at time.Time) error
	SetRole(ctx context.Context, userID string, role models.Role) error
	Count(ctx context.Context) (int, error)
}

// PaymentReview holds the fields a reviewer writes onto a payment.
type PaymentReview struct {
	Status     models.PaymentStatus
	ReviewedBy string
	ReviewedAt time.Time
	Notes      string
}

// DoubtChange is an administrator edit of a doubt. An empty Status and nil
// solution fields are left as stored.
type DoubtChange struct {
	Status   models.DoubtStatus
	Solution models.AttachSolutionRequest
}

// PaymentRepository defines the interface for payment storage operations.
type PaymentRepository interface {
	Create(ctx context.Context, payment *models.Payment) (string, error) // Returns new payment ID
	GetByID(ctx context.Context, paymentID string) (*models.Payment, error)
	// LatestByUser returns the most recently created payment for userID, or ErrNotFound.
	LatestByUser(ctx context.Context, userID string) (*models.Payment, error)
	List(ctx context.Context, filter models.PaymentFilter) ([]*models.Payment, error)
	// Review overwrites the review fields. Concurrent reviews race; the last write wins.
	Review(ctx context.Context, paymentID string, review PaymentReview) error
	Watch(ctx context.Context, filter models.PaymentFilter) Stream[*models.Payment]
}

// DoubtRepository defines the interface for doubt storage operations.
type DoubtRepository interface {
	// NewID reserves a document ID without writing anything.
	NewID() string
	// Create writes the doubt under doubt.ID in a single write. It fails if the ID is taken.
	Create(ctx context.Context, doubt *models.Doubt) error
	GetByID(ctx context.Context, doubtID string) (*models.Doubt, error)
	List(ctx context.Context, filter models.DoubtFilter) ([]*models.Doubt, error)
	// Update applies change and sets updatedAt in a single write.
	Update(ctx context.Context, doubtID string, change DoubtChange, at time.Time) error
	Watch(ctx context.Context, filter models.DoubtFilter) Stream[*models.Doubt]
}

// MessageRepository defines the interface for the per-doubt chat sub-collection.
type MessageRepository interface {
	// Append inserts a new message; it never overwrites an existing one.
	Append(ctx context.Context, doubtID string, msg *models.Message) (string, error)
	// List returns messages ordered by createdAt ascending.
	List(ctx context.Context, doubtID string) ([]*models.Message, error)
	Watch(ctx context.Context, doubtID string) Stream[*models.Message]
}

// AuditRepository defines the interface for audit log data storage operations.
type AuditRepository interface {
	Create(ctx context.Context, logEntry models.AuditLog) error
}

// Store groups the repositories a running service needs.
type Store struct {
	Users    UserRepository
	Payments PaymentRepository
	Doubts   DoubtRepository
	Messages MessageRepository
	Audit    AuditRepository
}
