// Package repository defines the session-scoped persistence boundary for
// the reconciliation engine. The engine holds no mutable state of its own:
// sessions, matches and queue items live behind this interface, with a
// postgres implementation for production and an in-memory one for tests.
package repository

import (
	"context"
	"time"

	"bank-reconciliation-engine/internal/models"
)

// QueueFilter narrows ListQueue. Zero values mean "any".
type QueueFilter struct {
	SessionID uint
	Status    models.ReviewStatus
	Priority  models.ReviewPriority
}

// Analytics is computed from persisted match/session state only.
type Analytics struct {
	AutoMatchRate      float64 `json:"auto_match_rate"`
	AverageConfidence  float64 `json:"average_confidence"`
	ReviewQueueVolume  int     `json:"review_queue_volume"`
	CrossBankTransfers int     `json:"cross_bank_transfers"`
}

type Store interface {
	// Reference data and the session's transaction pool.
	CreateAccount(ctx context.Context, acct *models.BankAccount) error
	CreateTransaction(ctx context.Context, tx *models.Transaction) error
	TransactionByID(ctx context.Context, id uint) (*models.Transaction, error)
	AccountsByIDs(ctx context.Context, ids []uint) ([]models.BankAccount, error)
	TransactionsInPeriod(ctx context.Context, accountIDs []uint, from, to time.Time) ([]models.Transaction, error)

	// Sessions. TransitionSession is a compare-and-swap on status; it
	// stamps StartedAt entering processing and CompletedAt entering any
	// settled state. AddSessionCounters applies an atomic delta.
	CreateSession(ctx context.Context, s *models.ReconciliationSession) error
	SessionByID(ctx context.Context, id uint) (*models.ReconciliationSession, error)
	ListSessions(ctx context.Context) ([]models.ReconciliationSession, error)
	TransitionSession(ctx context.Context, id uint, from, to models.SessionStatus) error
	AddSessionCounters(ctx context.Context, id uint, delta models.SessionCounters) error
	AppendSessionError(ctx context.Context, id uint, msg string) error

	// Matches. TransitionMatch fails with a ConflictError carrying the
	// authoritative row when the status already moved.
	CreateMatch(ctx context.Context, m *models.TransactionMatch) error
	MatchByID(ctx context.Context, id uint) (*models.TransactionMatch, error)
	MatchesBySession(ctx context.Context, sessionID uint) ([]models.TransactionMatch, error)
	TransitionMatch(ctx context.Context, id uint, from, to models.MatchStatus) (*models.TransactionMatch, error)

	// Review queue.
	CreateQueueItem(ctx context.Context, item *models.ReviewQueueItem) error
	QueueItemByID(ctx context.Context, id uint) (*models.ReviewQueueItem, error)
	QueueItemByMatch(ctx context.Context, matchID uint) (*models.ReviewQueueItem, error)
	ListQueue(ctx context.Context, f QueueFilter) ([]models.ReviewQueueItem, error)
	TransitionQueueItem(ctx context.Context, id uint, from, to models.ReviewStatus) (*models.ReviewQueueItem, error)
	UpdateQueueItemPriority(ctx context.Context, id uint, priority models.ReviewPriority) error
	UpdateQueuePositions(ctx context.Context, positions map[uint]int) error
	PendingQueueCount(ctx context.Context, sessionID uint) (int, error)

	// Audit and analytics.
	CreateDecision(ctx context.Context, d *models.ReviewDecision) error
	ComputeAnalytics(ctx context.Context) (Analytics, error)
}
