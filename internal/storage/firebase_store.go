package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	gcs "cloud.google.com/go/storage"
	firebasestorage "firebase.google.com/go/v4/storage"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// downloadTokenKey is the object metadata key Firebase Storage reads download tokens from.
const downloadTokenKey = "firebaseStorageDownloadTokens"

// FirebaseStore writes objects to the app's Cloud Storage bucket and returns
// Firebase download URLs, the same URLs the web SDK's getDownloadURL yields.
type FirebaseStore struct {
	bucket     *gcs.BucketHandle
	bucketName string
	logger     *zap.Logger
}

// NewFirebaseStore opens bucketName through the Firebase storage client.
func NewFirebaseStore(client *firebasestorage.Client, bucketName string, logger *zap.Logger) (*FirebaseStore, error) {
	if client == nil {
		return nil, errors.New("firebase storage client is nil")
	}
	bucket, err := client.Bucket(bucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to open bucket %q: %w", bucketName, err)
	}
	return &FirebaseStore{bucket: bucket, bucketName: bucketName, logger: logger}, nil
}

// Upload writes data and attaches a fresh download token.
func (s *FirebaseStore) Upload(ctx context.Context, objectPath, contentType string, data []byte) (string, error) {
	token := uuid.NewString()

	w := s.bucket.Object(objectPath).NewWriter(ctx)
	w.ContentType = contentType
	w.Metadata = map[string]string{downloadTokenKey: token}

	if _, err := w.Write(data); err != nil {
		w.Close()
		return "", fmt.Errorf("upload %s: %w", objectPath, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("upload %s: %w", objectPath, err)
	}

	s.logger.Debug("Uploaded object", zap.String("path", objectPath), zap.Int("bytes", len(data)))
	return fmt.Sprintf("https://firebasestorage.googleapis.com/v0/b/%s/o/%s?alt=media&token=%s",
		s.bucketName, url.PathEscape(objectPath), token), nil
}

// Delete removes an object; a missing object is ignored.
func (s *FirebaseStore) Delete(ctx context.Context, objectPath string) error {
	err := s.bucket.Object(objectPath).Delete(ctx)
	if err != nil && !errors.Is(err, gcs.ErrObjectNotExist) {
		return fmt.Errorf("delete %s: %w", objectPath, err)
	}
	return nil
}
