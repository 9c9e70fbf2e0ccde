// Package storage uploads user files to an object store and returns URLs a
// browser can fetch.
package storage

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
)

// ObjectStore is the blob storage boundary.
type ObjectStore interface {
	// Upload stores data under objectPath and returns a retrievable URL.
	Upload(ctx context.Context, objectPath, contentType string, data []byte) (string, error)
	// Delete removes the object. Deleting a missing object is not an error.
	Delete(ctx context.Context, objectPath string) error
}

// PaymentProofPath builds paymentProofs/{uid}/{timestamp}.{ext}.
func PaymentProofPath(userID string, at time.Time, ext string) string {
	return path.Join("paymentProofs", userID, fmt.Sprintf("%d.%s", at.UnixMilli(), ext))
}

// DoubtImagePath builds doubts/{uid}/{doubtId}/{timestamp}_{index}.{ext}.
func DoubtImagePath(userID, doubtID string, at time.Time, index int, ext string) string {
	return path.Join("doubts", userID, doubtID, fmt.Sprintf("%d_%d.%s", at.UnixMilli(), index, ext))
}

// DetectContentType sniffs the real MIME type of data. The client-declared
// type is never consulted: unrecognised content is "application/octet-stream"
// and matches no accepted upload type.
func DetectContentType(data []byte) string {
	return normalizeMIME(mimetype.Detect(data).String())
}

// Extension returns the file extension for a MIME type, falling back to the
// client-supplied filename and finally "bin".
func Extension(contentType, filename string) string {
	switch normalizeMIME(contentType) {
	case "image/jpeg":
		return "jpg"
	case "image/png":
		return "png"
	case "application/pdf":
		return "pdf"
	}
	if m := mimetype.Lookup(normalizeMIME(contentType)); m != nil && m.Extension() != "" {
		return strings.TrimPrefix(m.Extension(), ".")
	}
	if ext := strings.TrimPrefix(path.Ext(filename), "."); ext != "" {
		return strings.ToLower(ext)
	}
	return "bin"
}

// normalizeMIME drops parameters and maps the non-standard image/jpg alias.
func normalizeMIME(contentType string) string {
	base, _, _ := strings.Cut(contentType, ";")
	base = strings.ToLower(strings.TrimSpace(base))
	if base == "image/jpg" {
		return "image/jpeg"
	}
	return base
}
