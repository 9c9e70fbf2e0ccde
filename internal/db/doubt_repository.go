package db

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"cloud.google.com/go/firestore"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"doubtsolver-backend/internal/models"
)

const doubtsCollection = "doubts"

// firestoreDoubtRepository implements the DoubtRepository interface using Firestore.
type firestoreDoubtRepository struct {
	client *firestore.Client
	logger *zap.Logger
}

// NewFirestoreDoubtRepository creates a new instance of firestoreDoubtRepository.
func NewFirestoreDoubtRepository(client *firestore.Client, logger *zap.Logger) DoubtRepository {
	if client == nil {
		log.Fatal("Firestore client is not initialized for DoubtRepository.")
	}
	return &firestoreDoubtRepository{client: client, logger: logger}
}

// NewID generates a document ID client-side; nothing is written.
func (r *firestoreDoubtRepository) NewID() string {
	return r.client.Collection(doubtsCollection).NewDoc().ID
}

// Create writes the complete doubt document, images included, in one call.
func (r *firestoreDoubtRepository) Create(ctx context.Context, doubt *models.Doubt) error {
	if doubt.ID == "" {
		return errors.New("doubt ID cannot be empty for Create operation")
	}
	_, err := r.client.Collection(doubtsCollection).Doc(doubt.ID).Create(ctx, doubt)
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return fmt.Errorf("doubt with ID '%s': %w", doubt.ID, ErrAlreadyExists)
		}
		return fmt.Errorf("failed to create doubt with ID '%s': %w", doubt.ID, err)
	}
	return nil
}

// GetByID retrieves a doubt document by its ID.
func (r *firestoreDoubtRepository) GetByID(ctx context.Context, doubtID string) (*models.Doubt, error) {
	if doubtID == "" {
		return nil, errors.New("doubtID cannot be empty for GetByID operation")
	}
	docSnap, err := r.client.Collection(doubtsCollection).Doc(doubtID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, fmt.Errorf("doubt with ID '%s' not found: %w", doubtID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get doubt with ID '%s': %w", doubtID, err)
	}
	return decodeDoubt(docSnap)
}

// List returns doubts newest first, by createdAt or updatedAt.
func (r *firestoreDoubtRepository) List(ctx context.Context, filter models.DoubtFilter) ([]*models.Doubt, error) {
	doubts, err := collect(ctx, r.query(filter), decodeDoubt, r.keep(filter), filter.Limit, r.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to list doubts: %w", err)
	}
	return doubts, nil
}

// Update writes the changed fields and updatedAt in one document update.
func (r *firestoreDoubtRepository) Update(ctx context.Context, doubtID string, change DoubtChange, at time.Time) error {
	updates := []firestore.Update{{Path: "updatedAt", Value: at}}
	if change.Status != "" {
		updates = append(updates, firestore.Update{Path: "status", Value: string(change.Status)})
	}
	solution := change.Solution
	if solution.SolutionYouTubeURL != nil {
		updates = append(updates, firestore.Update{Path: "solutionYouTubeUrl", Value: *solution.SolutionYouTubeURL})
	}
	if solution.SolutionNotes != nil {
		updates = append(updates, firestore.Update{Path: "solutionNotes", Value: *solution.SolutionNotes})
	}
	if solution.LiveSessionLink != nil {
		updates = append(updates, firestore.Update{Path: "liveSessionLink", Value: *solution.LiveSessionLink})
	}
	return r.update(ctx, doubtID, updates)
}

// Watch streams the filtered doubt list as it changes.
func (r *firestoreDoubtRepository) Watch(ctx context.Context, filter models.DoubtFilter) Stream[*models.Doubt] {
	return watch(ctx, r.query(filter), decodeDoubt, r.keep(filter), filter.Limit, r.logger)
}

func (r *firestoreDoubtRepository) update(ctx context.Context, doubtID string, updates []firestore.Update) error {
	_, err := r.client.Collection(doubtsCollection).Doc(doubtID).Update(ctx, updates)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return fmt.Errorf("doubt with ID '%s' not found: %w", doubtID, ErrNotFound)
		}
		return fmt.Errorf("failed to update doubt '%s': %w", doubtID, err)
	}
	return nil
}

// query builds the Firestore query for filter. Equality filters combined with the
// ordering need composite indexes, e.g. (userId, status, updatedAt DESC) for the solved view.
func (r *firestoreDoubtRepository) query(filter models.DoubtFilter) firestore.Query {
	q := r.client.Collection(doubtsCollection).Query
	if filter.UserID != "" {
		q = q.Where("userId", "==", filter.UserID)
	}
	if filter.Status != "" {
		q = q.Where("status", "==", string(filter.Status))
	}
	if filter.Subject != "" {
		q = q.Where("subject", "==", string(filter.Subject))
	}
	orderField := "createdAt"
	if filter.OrderByUpdated {
		orderField = "updatedAt"
	}
	q = q.OrderBy(orderField, firestore.Desc)
	if filter.Limit > 0 && filter.Search == "" {
		q = q.Limit(filter.Limit)
	}
	return q
}

func (r *firestoreDoubtRepository) keep(filter models.DoubtFilter) func(*models.Doubt) bool {
	if filter.Search == "" {
		return nil
	}
	return func(d *models.Doubt) bool { return MatchDoubt(d, filter) }
}

func decodeDoubt(docSnap *firestore.DocumentSnapshot) (*models.Doubt, error) {
	var doubt models.Doubt
	if err := docSnap.DataTo(&doubt); err != nil {
		return nil, fmt.Errorf("failed to decode doubt data for ID '%s': %w", docSnap.Ref.ID, err)
	}
	doubt.ID = docSnap.Ref.ID
	if doubt.Images == nil {
		doubt.Images = []string{}
	}
	return &doubt, nil
}
