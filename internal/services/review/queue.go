// Package review manages the manual-review queue: priority and ordering of
// pending matches, reviewer decisions, and bulk approvals. Decisions from
// concurrent reviewers are serialized by the store's compare-and-swap
// transitions, so a stale attempt fails with a ConflictError instead of
// double-applying.
package review

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"bank-reconciliation-engine/internal/models"
	"bank-reconciliation-engine/internal/repository"

	"github.com/shopspring/decimal"
)

// nearWinnerMargin is how close a runner-up must score to the winner to
// count toward ambiguity.
const nearWinnerMargin = 0.1

type Manager struct {
	store repository.Store
}

func NewManager(store repository.Store) *Manager {
	return &Manager{store: store}
}

// Complexity derives a [0,1] ambiguity score from how many alternative
// candidates landed near the winning score.
func Complexity(winning float64, alts []models.AlternativeCandidate) float64 {
	score := 0.2
	for _, alt := range alts {
		if alt.Score >= winning-nearWinnerMargin {
			score += 0.25
		}
	}
	if score > 1 {
		return 1
	}
	return score
}

// PriorityFor combines ambiguity, amount magnitude and queue age. Larger
// amounts bias toward high/urgent; age escalates priority over time.
func PriorityFor(complexity float64, magnitude decimal.Decimal, age time.Duration) models.ReviewPriority {
	score := 0.5*complexity + 0.3*amountBand(magnitude) + 0.2*ageBand(age)
	switch {
	case score >= 0.8:
		return models.PriorityUrgent
	case score >= 0.6:
		return models.PriorityHigh
	case score >= 0.35:
		return models.PriorityMedium
	default:
		return models.PriorityLow
	}
}

func amountBand(magnitude decimal.Decimal) float64 {
	switch {
	case magnitude.GreaterThanOrEqual(decimal.NewFromInt(10000)):
		return 1.0
	case magnitude.GreaterThanOrEqual(decimal.NewFromInt(1000)):
		return 0.7
	case magnitude.GreaterThanOrEqual(decimal.NewFromInt(100)):
		return 0.4
	default:
		return 0.1
	}
}

func ageBand(age time.Duration) float64 {
	days := age.Hours() / 24
	band := days / 7
	if band > 1 {
		return 1
	}
	if band < 0 {
		return 0
	}
	return band
}

// Enqueue creates the review ticket for a fresh needs_review match and
// reorders the session's queue.
func (m *Manager) Enqueue(ctx context.Context, match *models.TransactionMatch, magnitude decimal.Decimal) (*models.ReviewQueueItem, error) {
	complexity := Complexity(match.Confidence, match.Alternatives)
	item := &models.ReviewQueueItem{
		SessionID:       match.SessionID,
		MatchID:         match.ID,
		Priority:        PriorityFor(complexity, magnitude, 0),
		ComplexityScore: complexity,
		SuggestedAction: suggestAction(match),
		Status:          models.ReviewPending,
	}
	if err := m.store.CreateQueueItem(ctx, item); err != nil {
		return nil, err
	}
	if err := m.Reorder(ctx, match.SessionID); err != nil {
		return nil, err
	}
	return m.store.QueueItemByID(ctx, item.ID)
}

func suggestAction(match *models.TransactionMatch) string {
	switch {
	case match.Confidence >= 0.75 && len(match.Alternatives) == 0:
		return "approve"
	case len(match.Alternatives) > 0:
		return "compare alternatives"
	default:
		return "verify reference"
	}
}

// Reorder recomputes priorities with current queue age and rewrites the
// stable ordering: priority desc, then age desc. Called on insertion and
// removal.
func (m *Manager) Reorder(ctx context.Context, sessionID uint) error {
	items, err := m.store.ListQueue(ctx, repository.QueueFilter{SessionID: sessionID, Status: models.ReviewPending})
	if err != nil {
		return err
	}

	now := time.Now()
	for i := range items {
		magnitude := decimal.Zero
		if match, err := m.store.MatchByID(ctx, items[i].MatchID); err == nil {
			if tx, err := m.store.TransactionByID(ctx, match.SourceTransactionID); err == nil {
				magnitude = tx.Magnitude()
			}
		}
		aged := PriorityFor(items[i].ComplexityScore, magnitude, now.Sub(items[i].CreatedAt))
		if aged.Rank() > items[i].Priority.Rank() {
			items[i].Priority = aged
			if err := m.store.UpdateQueueItemPriority(ctx, items[i].ID, aged); err != nil {
				return err
			}
		}
	}

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Priority.Rank() != items[j].Priority.Rank() {
			return items[i].Priority.Rank() > items[j].Priority.Rank()
		}
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.Before(items[j].CreatedAt)
		}
		return items[i].ID < items[j].ID
	})

	positions := make(map[uint]int, len(items))
	for i, item := range items {
		positions[item.ID] = i + 1
	}
	return m.store.UpdateQueuePositions(ctx, positions)
}

// List returns queue items under the given filter in queue order.
func (m *Manager) List(ctx context.Context, f repository.QueueFilter) ([]models.ReviewQueueItem, error) {
	return m.store.ListQueue(ctx, f)
}

// CompleteReview applies a reviewer decision to the match behind a queue
// item. Idempotent: the match transition is a compare-and-swap, so a second
// call finds the match already decided and fails with a ConflictError
// without touching counters again.
func (m *Manager) CompleteReview(ctx context.Context, itemID uint, decision models.MatchStatus, notes string) (*models.ReviewQueueItem, error) {
	if decision != models.MatchApproved && decision != models.MatchRejected {
		return nil, &models.ValidationError{Field: "decision", Message: "must be approved or rejected"}
	}

	item, err := m.store.QueueItemByID(ctx, itemID)
	if err != nil {
		return nil, err
	}

	match, err := m.store.TransitionMatch(ctx, item.MatchID, models.MatchNeedsReview, decision)
	if err != nil {
		return nil, err
	}

	item, err = m.store.TransitionQueueItem(ctx, item.ID, item.Status, models.ReviewCompleted)
	if err != nil {
		return nil, err
	}

	delta := models.SessionCounters{PendingReview: -1}
	if decision == models.MatchRejected {
		delta.Matched = -1
		delta.Unmatched = 1
	}
	if err := m.store.AddSessionCounters(ctx, item.SessionID, delta); err != nil {
		return nil, err
	}

	if err := m.store.CreateDecision(ctx, &models.ReviewDecision{
		MatchID:     match.ID,
		QueueItemID: &item.ID,
		Decision:    decision,
		Notes:       notes,
	}); err != nil {
		return nil, err
	}

	if err := m.Reorder(ctx, item.SessionID); err != nil {
		return nil, err
	}
	if err := m.settleSession(ctx, item.SessionID); err != nil {
		return nil, err
	}
	return item, nil
}

// BulkResult reports per-id outcomes of a bulk approval; one failing id
// never aborts the batch.
type BulkResult struct {
	ApprovedCount int         `json:"approved_count"`
	Errors        []BulkError `json:"errors"`
}

type BulkError struct {
	MatchID uint   `json:"match_id"`
	Message string `json:"message"`
}

// BulkApprove applies approved to each match independently.
func (m *Manager) BulkApprove(ctx context.Context, matchIDs []uint) (BulkResult, error) {
	var result BulkResult
	touched := make(map[uint]bool)

	for _, id := range matchIDs {
		if err := m.approveOne(ctx, id, touched); err != nil {
			result.Errors = append(result.Errors, BulkError{MatchID: id, Message: err.Error()})
			continue
		}
		result.ApprovedCount++
	}

	for sessionID := range touched {
		if err := m.Reorder(ctx, sessionID); err != nil {
			log.Printf("bulk approve: reorder session %d: %v", sessionID, err)
		}
		if err := m.settleSession(ctx, sessionID); err != nil {
			log.Printf("bulk approve: settle session %d: %v", sessionID, err)
		}
	}
	return result, nil
}

func (m *Manager) approveOne(ctx context.Context, matchID uint, touched map[uint]bool) error {
	match, err := m.store.MatchByID(ctx, matchID)
	if err != nil {
		return err
	}
	if match.Status != models.MatchNeedsReview && match.Status != models.MatchPending {
		return fmt.Errorf("match %d is %s, not approvable", matchID, match.Status)
	}

	if _, err := m.store.TransitionMatch(ctx, matchID, match.Status, models.MatchApproved); err != nil {
		return err
	}
	touched[match.SessionID] = true

	delta := models.SessionCounters{}
	if match.Status == models.MatchNeedsReview {
		delta.PendingReview = -1
		if item, err := m.store.QueueItemByMatch(ctx, matchID); err == nil {
			if _, err := m.store.TransitionQueueItem(ctx, item.ID, item.Status, models.ReviewCompleted); err != nil {
				return err
			}
		}
	}
	if err := m.store.AddSessionCounters(ctx, match.SessionID, delta); err != nil {
		return err
	}

	return m.store.CreateDecision(ctx, &models.ReviewDecision{
		MatchID:  matchID,
		Decision: models.MatchApproved,
		Notes:    "bulk approval",
	})
}

// settleSession moves a review_required session to completed once its queue
// drains.
func (m *Manager) settleSession(ctx context.Context, sessionID uint) error {
	pending, err := m.store.PendingQueueCount(ctx, sessionID)
	if err != nil || pending > 0 {
		return err
	}
	sess, err := m.store.SessionByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.Status != models.SessionReviewRequired {
		return nil
	}
	return m.store.TransitionSession(ctx, sessionID, models.SessionReviewRequired, models.SessionCompleted)
}
