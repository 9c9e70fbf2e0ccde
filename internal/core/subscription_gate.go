package core

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"doubtsolver-backend/internal/db"
	"doubtsolver-backend/internal/metrics"
	"doubtsolver-backend/internal/models"
	"doubtsolver-backend/pkg/cache"
)

const (
	gateCachePrefix = "subscription:"
	gateGenPrefix   = "subscription:gen:"
	gateAllowed     = "1"
	gateDenied      = "0"
)

// subscriptionGate implements SubscriptionGate over the payment repository,
// with an optional read-through cache.
//
// Cached decisions are keyed by a per-user generation that Invalidate bumps.
// A check reads the generation before it reads the store, so a decision
// computed from a payment that was superseded mid-check lands under a
// generation nobody reads any more.
type subscriptionGate struct {
	payments db.PaymentRepository
	cache    cache.Cache // nil disables caching
	ttl      time.Duration
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

// NewSubscriptionGate creates a SubscriptionGate. c may be nil.
func NewSubscriptionGate(payments db.PaymentRepository, c cache.Cache, ttl time.Duration, logger *zap.Logger, m *metrics.Metrics) SubscriptionGate {
	if ttl <= 0 {
		c = nil
	}
	return &subscriptionGate{payments: payments, cache: c, ttl: ttl, logger: logger, metrics: m}
}

func gateKey(userID, gen string) string { return gateCachePrefix + userID + ":" + gen }

func gateGenKey(userID string) string { return gateGenPrefix + userID }

// generation returns the current cache generation of userID, "0" before the
// first invalidation. ok is false when the cache cannot be trusted.
func (g *subscriptionGate) generation(ctx context.Context, userID string) (gen string, ok bool) {
	v, err := g.cache.Get(ctx, gateGenKey(userID))
	if err != nil {
		g.logger.Debug("Subscription generation read failed; bypassing cache", zap.String("userId", userID), zap.Error(err))
		return "", false
	}
	if v == "" {
		v = "0"
	}
	return v, true
}

func (g *subscriptionGate) IsSubscribed(ctx context.Context, userID string) bool {
	if userID == "" {
		return false
	}

	var gen string
	useCache := false
	if g.cache != nil {
		gen, useCache = g.generation(ctx, userID)
	}
	if useCache {
		v, err := g.cache.Get(ctx, gateKey(userID, gen))
		if err != nil {
			g.logger.Debug("Subscription cache read failed; falling back to store", zap.String("userId", userID), zap.Error(err))
		} else if v == gateAllowed || v == gateDenied {
			subscribed := v == gateAllowed
			g.metrics.GateChecked(subscribed, "cache")
			return subscribed
		}
	}

	latest, err := g.payments.LatestByUser(ctx, userID)
	var subscribed bool
	switch {
	case errors.Is(err, db.ErrNotFound):
		subscribed = false
	case err != nil:
		// Fail closed, and do not cache a decision derived from an error.
		g.logger.Error("Subscription check failed", zap.String("userId", userID), zap.Error(err))
		g.metrics.GateChecked(false, "store")
		return false
	default:
		subscribed = latest.Status == models.PaymentApproved
	}
	g.metrics.GateChecked(subscribed, "store")

	if useCache {
		value := gateDenied
		if subscribed {
			value = gateAllowed
		}
		if err := g.cache.Set(ctx, gateKey(userID, gen), value, g.ttl); err != nil {
			g.logger.Debug("Subscription cache write failed", zap.String("userId", userID), zap.Error(err))
		}
	}
	return subscribed
}

func (g *subscriptionGate) Invalidate(ctx context.Context, userID string) {
	if g.cache == nil || userID == "" {
		return
	}
	if _, err := g.cache.Incr(ctx, gateGenKey(userID)); err != nil {
		g.logger.Error("Failed to invalidate subscription cache", zap.String("userId", userID), zap.Error(err))
	}
}
