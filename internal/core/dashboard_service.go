package core

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"doubtsolver-backend/internal/db"
	"doubtsolver-backend/internal/models"
)

const (
	studentRecentDoubts = 5
	adminRecentWindow   = 10
)

// dashboardService implements the DashboardService interface.
type dashboardService struct {
	store    *db.Store
	payments PaymentService
	logger   *zap.Logger
}

// NewDashboardService creates a new DashboardService instance.
func NewDashboardService(store *db.Store, payments PaymentService, logger *zap.Logger) DashboardService {
	return &dashboardService{store: store, payments: payments, logger: logger}
}

func (s *dashboardService) Student(ctx context.Context, user *models.User) (*StudentDashboard, error) {
	if user == nil {
		return nil, denied("not authenticated")
	}
	var (
		status *PaymentStatusView
		recent []*models.Doubt
		solved []*models.Doubt
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		status, err = s.payments.GetPaymentStatus(gctx, user)
		return err
	})
	g.Go(func() error {
		var err error
		recent, err = s.store.Doubts.List(gctx, models.DoubtFilter{UserID: user.ID, Limit: studentRecentDoubts})
		if err != nil {
			return remote("list recent doubts", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		solved, err = s.store.Doubts.List(gctx, models.DoubtFilter{UserID: user.ID, Status: models.DoubtSolved})
		if err != nil {
			return remote("count solved doubts", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &StudentDashboard{
		Subscription: *status,
		RecentDoubts: recent,
		SolvedCount:  len(solved),
	}, nil
}

// Admin counts statuses over the most recent payments and doubts only,
// matching what the dashboard lists next to the counters.
func (s *dashboardService) Admin(ctx context.Context, actor *models.User) (*AdminStats, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	stats := &AdminStats{}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := s.store.Users.Count(gctx)
		if err != nil {
			return remote("count users", err)
		}
		stats.TotalUsers = n
		return nil
	})
	g.Go(func() error {
		payments, err := s.store.Payments.List(gctx, models.PaymentFilter{Limit: adminRecentWindow})
		if err != nil {
			return remote("list recent payments", err)
		}
		stats.RecentPayments = payments
		for _, p := range payments {
			if p.Status == models.PaymentPending {
				stats.PendingPayments++
			}
		}
		return nil
	})
	g.Go(func() error {
		doubts, err := s.store.Doubts.List(gctx, models.DoubtFilter{Limit: adminRecentWindow})
		if err != nil {
			return remote("list recent doubts", err)
		}
		stats.RecentDoubts = doubts
		for _, d := range doubts {
			switch d.Status {
			case models.DoubtOpen:
				stats.OpenDoubts++
			case models.DoubtInProgress:
				stats.InProgress++
			case models.DoubtSolved:
				stats.SolvedDoubts++
			}
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		s.logger.Error("Failed to build admin dashboard", zap.Error(err))
		return nil, err
	}
	return stats, nil
}
