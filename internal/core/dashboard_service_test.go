package core

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"doubtsolver-backend/internal/models"
)

func TestDashboard_Student(t *testing.T) {
	env := newTestEnv(t)
	admin := env.admin(t, "admin@example.com")
	student := env.signUp(t, "s@example.com")

	dash, err := env.dashboard.Student(env.ctx, student)
	require.NoError(t, err)
	assert.Equal(t, "none", dash.Subscription.Status)
	assert.Empty(t, dash.RecentDoubts)

	env.subscribe(t, student, admin)
	for i := 0; i < 7; i++ {
		in := validInput()
		in.Title = fmt.Sprintf("Q%d", i)
		d, err := env.doubts.CreateDoubt(env.ctx, student, in)
		require.NoError(t, err)
		if i < 2 {
			_, err = env.doubts.TransitionStatus(env.ctx, admin, d.ID, models.DoubtSolved)
			require.NoError(t, err)
		}
	}

	dash, err = env.dashboard.Student(env.ctx, student)
	require.NoError(t, err)
	assert.True(t, dash.Subscription.Subscribed)
	require.Len(t, dash.RecentDoubts, 5)
	assert.Equal(t, "Q6", dash.RecentDoubts[0].Title)
	assert.Equal(t, 2, dash.SolvedCount)
}

func TestDashboard_Admin(t *testing.T) {
	env := newTestEnv(t)
	admin := env.admin(t, "admin@example.com")
	s1 := env.signUp(t, "s1@example.com")
	s2 := env.signUp(t, "s2@example.com")
	env.subscribe(t, s1, admin)
	_, err := env.payments.SubmitProof(env.ctx, s2, fileOf(jpegHeader, 100, "r.jpg"))
	require.NoError(t, err)

	d1, err := env.doubts.CreateDoubt(env.ctx, s1, validInput())
	require.NoError(t, err)
	d2, err := env.doubts.CreateDoubt(env.ctx, s1, validInput())
	require.NoError(t, err)
	_, err = env.doubts.CreateDoubt(env.ctx, s1, validInput())
	require.NoError(t, err)
	_, err = env.doubts.TransitionStatus(env.ctx, admin, d1.ID, models.DoubtInProgress)
	require.NoError(t, err)
	_, err = env.doubts.TransitionStatus(env.ctx, admin, d2.ID, models.DoubtSolved)
	require.NoError(t, err)

	stats, err := env.dashboard.Admin(env.ctx, admin)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalUsers)
	assert.Equal(t, 1, stats.PendingPayments)
	assert.Equal(t, 1, stats.OpenDoubts)
	assert.Equal(t, 1, stats.InProgress)
	assert.Equal(t, 1, stats.SolvedDoubts)
	assert.Len(t, stats.RecentPayments, 2)
	assert.Len(t, stats.RecentDoubts, 3)
}
