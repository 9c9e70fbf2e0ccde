package api

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"

	"doubtsolver-backend/internal/models"
)

// multipartOverhead is the allowance for form fields and part headers on top
// of the file payloads.
const multipartOverhead = 1 << 20

// limitBody caps the request body so oversized uploads fail while parsing.
func limitBody(c *gin.Context, limit int64) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit+multipartOverhead)
}

// readUpload reads at most maxBytes+1 bytes so the service can report the
// size violation itself.
func readUpload(fh *multipart.FileHeader, maxBytes int64) (models.FileUpload, error) {
	f, err := fh.Open()
	if err != nil {
		return models.FileUpload{}, fmt.Errorf("open upload %q: %w", fh.Filename, err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxBytes+1))
	if err != nil {
		return models.FileUpload{}, fmt.Errorf("read upload %q: %w", fh.Filename, err)
	}
	return models.FileUpload{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

// respondFormError reports a multipart body that could not be parsed.
func respondFormError(c *gin.Context, field string, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, ErrorResponse{
			Error:   "Upload too large",
			Details: fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit),
			Field:   field,
		})
		return
	}
	if errors.Is(err, http.ErrMissingFile) {
		c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Error: "Validation failed", Details: "file is required", Field: field})
		return
	}
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid multipart form", Details: err.Error(), Field: field})
}
