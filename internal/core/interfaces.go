package core

import (
	"context"

	"doubtsolver-backend/internal/db"
	"doubtsolver-backend/internal/identity"
	"doubtsolver-backend/internal/models"
)

// UserService defines the interface for account and profile operations.
type UserService interface {
	// SignUp creates the identity account and its profile with role=student.
	SignUp(ctx context.Context, req models.SignUpRequest) (*models.User, error)
	// SignIn verifies the password and records lastLoginAt.
	SignIn(ctx context.Context, req models.SignInRequest) (*identity.Session, *models.User, error)
	SignOut(ctx context.Context, userID string) error
	// GetOrCreate returns the stored profile for an authenticated identity,
	// creating it when the account predates its profile.
	GetOrCreate(ctx context.Context, ident identity.User) (*models.User, bool, error)
	GetByID(ctx context.Context, userID string) (*models.User, error)
	// SetRole is the out-of-band role promotion. It is not exposed over HTTP.
	SetRole(ctx context.Context, userID string, role models.Role) (*models.User, error)
	// ResolveUserID maps an email to a user ID through the identity provider.
	ResolveUserID(ctx context.Context, email string) (string, error)
}

// SubscriptionGate decides whether a user may ask doubts.
type SubscriptionGate interface {
	// IsSubscribed is true iff the user's most recent payment is approved.
	// Any failure yields false.
	IsSubscribed(ctx context.Context, userID string) bool
	// Invalidate retires every cached decision for userID, including one a
	// concurrent check has yet to write.
	Invalidate(ctx context.Context, userID string)
}

// CreateDoubtInput is a new doubt as submitted by a student.
type CreateDoubtInput struct {
	Title       string
	Description string
	Subject     models.Subject
	Images      []models.FileUpload
}

// DoubtService defines the interface for the doubt lifecycle.
type DoubtService interface {
	CreateDoubt(ctx context.Context, user *models.User, in CreateDoubtInput) (*models.Doubt, error)
	// GetDoubt returns a doubt visible to user: its owner or any administrator.
	GetDoubt(ctx context.Context, user *models.User, doubtID string) (*models.Doubt, error)
	ListMyDoubts(ctx context.Context, user *models.User, status models.DoubtStatus) ([]*models.Doubt, error)
	// ListSolved returns the user's solved doubts, most recently updated first.
	ListSolved(ctx context.Context, user *models.User) ([]*models.Doubt, error)
	WatchMyDoubts(ctx context.Context, user *models.User, status models.DoubtStatus) (db.Stream[*models.Doubt], error)

	// Administrator operations. The actor's stored role is checked on every call.
	ListDoubts(ctx context.Context, actor *models.User, filter models.DoubtFilter) ([]*models.Doubt, error)
	WatchDoubts(ctx context.Context, actor *models.User, filter models.DoubtFilter) (db.Stream[*models.Doubt], error)
	TransitionStatus(ctx context.Context, actor *models.User, doubtID string, status models.DoubtStatus) (*models.Doubt, error)
	AttachSolution(ctx context.Context, actor *models.User, doubtID string, solution models.AttachSolutionRequest) (*models.Doubt, error)
	// UpdateDoubt writes a status change and solution fields as one edit.
	UpdateDoubt(ctx context.Context, actor *models.User, doubtID string, req models.UpdateDoubtRequest) (*models.Doubt, error)

	// Chat thread. Students may only use threads of their own doubts.
	PostMessage(ctx context.Context, sender *models.User, doubtID, text string) (*models.Message, error)
	ListMessages(ctx context.Context, user *models.User, doubtID string) ([]*models.Message, error)
	WatchMessages(ctx context.Context, user *models.User, doubtID string) (db.Stream[*models.Message], error)
}

// PaymentStatusView is a student's current subscription state.
type PaymentStatusView struct {
	// Status is the latest payment's status, or "none".
	Status     string          `json:"status"`
	Subscribed bool            `json:"subscribed"`
	Latest     *models.Payment `json:"latest,omitempty"`
}

// PaymentInstructions tells a student where to send the fee.
type PaymentInstructions struct {
	UPIID          string   `json:"upiId"`
	AcceptedTypes  []string `json:"acceptedTypes"`
	MaxUploadBytes int64    `json:"maxUploadBytes"`
}

// PaymentService defines the interface for proof submission and review.
type PaymentService interface {
	SubmitProof(ctx context.Context, user *models.User, file models.FileUpload) (*models.Payment, error)
	GetPaymentStatus(ctx context.Context, user *models.User) (*PaymentStatusView, error)
	ListMyPayments(ctx context.Context, user *models.User) ([]*models.Payment, error)
	Instructions() PaymentInstructions

	// Administrator operations.
	ListPayments(ctx context.Context, actor *models.User, filter models.PaymentFilter) ([]*models.Payment, error)
	WatchPayments(ctx context.Context, actor *models.User, filter models.PaymentFilter) (db.Stream[*models.Payment], error)
	ReviewPayment(ctx context.Context, actor *models.User, paymentID string, decision models.PaymentStatus, notes string) (*models.Payment, error)
}

// StudentDashboard is the landing view of a student.
type StudentDashboard struct {
	Subscription PaymentStatusView `json:"subscription"`
	RecentDoubts []*models.Doubt   `json:"recentDoubts"`
	SolvedCount  int               `json:"solvedCount"`
}

// AdminStats summarises the most recent activity for administrators.
type AdminStats struct {
	TotalUsers      int               `json:"totalUsers"`
	PendingPayments int               `json:"pendingPayments"`
	OpenDoubts      int               `json:"openDoubts"`
	InProgress      int               `json:"inProgressDoubts"`
	SolvedDoubts    int               `json:"solvedDoubts"`
	RecentPayments  []*models.Payment `json:"recentPayments"`
	RecentDoubts    []*models.Doubt   `json:"recentDoubts"`
}

// DashboardService defines the interface for dashboard aggregates.
type DashboardService interface {
	Student(ctx context.Context, user *models.User) (*StudentDashboard, error)
	Admin(ctx context.Context, actor *models.User) (*AdminStats, error)
}

// AuditService defines the interface for audit logging operations.
type AuditService interface {
	CreateAuditLog(ctx context.Context, logEntry models.AuditLog) error
}
