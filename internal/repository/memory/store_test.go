package memory

import (
	"context"
	"testing"
	"time"

	"bank-reconciliation-engine/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransitionMatch_CompareAndSwap(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	match := &models.TransactionMatch{SessionID: 1, SourceTransactionID: 1, Status: models.MatchNeedsReview}
	require.NoError(t, store.CreateMatch(ctx, match))

	updated, err := store.TransitionMatch(ctx, match.ID, models.MatchNeedsReview, models.MatchApproved)
	require.NoError(t, err)
	assert.Equal(t, models.MatchApproved, updated.Status)

	// Stale attempt: the conflict carries the authoritative row.
	_, err = store.TransitionMatch(ctx, match.ID, models.MatchNeedsReview, models.MatchRejected)
	var cerr *models.ConflictError
	require.ErrorAs(t, err, &cerr)
	current, ok := cerr.Current.(models.TransactionMatch)
	require.True(t, ok)
	assert.Equal(t, models.MatchApproved, current.Status)

	_, err = store.TransitionMatch(ctx, 404, models.MatchNeedsReview, models.MatchApproved)
	var nerr *models.NotFoundError
	require.ErrorAs(t, err, &nerr)
}

func TestTransitionSession_StampsTimestamps(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	sess := &models.ReconciliationSession{Status: models.SessionCreated}
	require.NoError(t, store.CreateSession(ctx, sess))

	require.NoError(t, store.TransitionSession(ctx, sess.ID, models.SessionCreated, models.SessionProcessing))
	mid, err := store.SessionByID(ctx, sess.ID)
	require.NoError(t, err)
	require.NotNil(t, mid.StartedAt)
	assert.Nil(t, mid.CompletedAt)

	require.NoError(t, store.TransitionSession(ctx, sess.ID, models.SessionProcessing, models.SessionCompleted))
	done, err := store.SessionByID(ctx, sess.ID)
	require.NoError(t, err)
	require.NotNil(t, done.CompletedAt)
	assert.True(t, done.CompletedAt.Sub(*done.StartedAt) >= 0)
	assert.True(t, done.Status.Terminal())
}

func TestTransactionsInPeriod_Filters(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	jan := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	for _, tx := range []*models.Transaction{
		{AccountID: 1, Side: models.SideBank, PostedAt: jan},
		{AccountID: 1, Side: models.SideBank, PostedAt: jan.AddDate(0, 2, 0)}, // outside period
		{AccountID: 9, Side: models.SideBank, PostedAt: jan},                  // other account
	} {
		require.NoError(t, store.CreateTransaction(ctx, tx))
	}

	got, err := store.TransactionsInPeriod(ctx, []uint{1}, jan.AddDate(0, 0, -9), jan.AddDate(0, 0, 21))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, uint(1), got[0].ID)
}
