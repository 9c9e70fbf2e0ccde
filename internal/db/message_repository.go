package db

import (
	"context"
	"fmt"
	"log"

	"cloud.google.com/go/firestore"
	"go.uber.org/zap"

	"doubtsolver-backend/internal/models"
)

const messagesSubcollection = "messages"

// firestoreMessageRepository stores chat messages under doubts/{doubtId}/messages.
type firestoreMessageRepository struct {
	client *firestore.Client
	logger *zap.Logger
}

// NewFirestoreMessageRepository creates a new instance of firestoreMessageRepository.
func NewFirestoreMessageRepository(client *firestore.Client, logger *zap.Logger) MessageRepository {
	if client == nil {
		log.Fatal("Firestore client is not initialized for MessageRepository.")
	}
	return &firestoreMessageRepository{client: client, logger: logger}
}

func (r *firestoreMessageRepository) messages(doubtID string) *firestore.CollectionRef {
	return r.client.Collection(doubtsCollection).Doc(doubtID).Collection(messagesSubcollection)
}

// Append creates a new auto-ID message document. Each post is an independent
// insert, so concurrent posts cannot overwrite one another.
func (r *firestoreMessageRepository) Append(ctx context.Context, doubtID string, msg *models.Message) (string, error) {
	docRef := r.messages(doubtID).NewDoc()
	msg.ID = docRef.ID
	msg.DoubtID = doubtID

	if _, err := docRef.Create(ctx, msg); err != nil {
		return "", fmt.Errorf("failed to append message to doubt '%s': %w", doubtID, err)
	}
	return docRef.ID, nil
}

// List returns the thread oldest first.
func (r *firestoreMessageRepository) List(ctx context.Context, doubtID string) ([]*models.Message, error) {
	msgs, err := collect(ctx, r.query(doubtID), decodeMessage(doubtID), nil, 0, r.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages for doubt '%s': %w", doubtID, err)
	}
	return msgs, nil
}

// Watch streams the thread oldest first.
func (r *firestoreMessageRepository) Watch(ctx context.Context, doubtID string) Stream[*models.Message] {
	return watch(ctx, r.query(doubtID), decodeMessage(doubtID), nil, 0, r.logger)
}

func (r *firestoreMessageRepository) query(doubtID string) firestore.Query {
	return r.messages(doubtID).OrderBy("createdAt", firestore.Asc)
}

func decodeMessage(doubtID string) func(*firestore.DocumentSnapshot) (*models.Message, error) {
	return func(docSnap *firestore.DocumentSnapshot) (*models.Message, error) {
		var msg models.Message
		if err := docSnap.DataTo(&msg); err != nil {
			return nil, fmt.Errorf("failed to decode message data for ID '%s': %w", docSnap.Ref.ID, err)
		}
		msg.ID = docSnap.Ref.ID
		msg.DoubtID = doubtID
		if msg.Attachments == nil {
			msg.Attachments = []string{}
		}
		return &msg, nil
	}
}
