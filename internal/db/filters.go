package db

import (
	"strings"

	"doubtsolver-backend/internal/models"
)

// MatchPayment reports whether p satisfies every constraint in filter.
// Firestore cannot do substring search, so Search is always applied in memory.
func MatchPayment(p *models.Payment, filter models.PaymentFilter) bool {
	if filter.UserID != "" && p.UserID != filter.UserID {
		return false
	}
	if filter.Status != "" && p.Status != filter.Status {
		return false
	}
	return filter.Search == "" || containsFold(p.UserEmail, filter.Search)
}

// MatchDoubt reports whether d satisfies every constraint in filter.
func MatchDoubt(d *models.Doubt, filter models.DoubtFilter) bool {
	if filter.UserID != "" && d.UserID != filter.UserID {
		return false
	}
	if filter.Status != "" && d.Status != filter.Status {
		return false
	}
	if filter.Subject != "" && d.Subject != filter.Subject {
		return false
	}
	return filter.Search == "" ||
		containsFold(d.UserEmail, filter.Search) ||
		containsFold(d.Title, filter.Search)
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(strings.TrimSpace(substr)))
}

// truncate applies a post-filter limit. A non-positive limit keeps everything.
func truncate[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}
