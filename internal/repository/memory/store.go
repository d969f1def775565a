// Package memory is the in-memory Store used by tests and local runs.
// Thread-safe behind one mutex; the compare-and-swap transitions give the
// same conflict semantics as the postgres implementation.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"bank-reconciliation-engine/internal/models"
	"bank-reconciliation-engine/internal/repository"
)

type Store struct {
	mu sync.Mutex

	accounts     map[uint]models.BankAccount
	transactions map[uint]models.Transaction
	sessions     map[uint]models.ReconciliationSession
	matches      map[uint]models.TransactionMatch
	queueItems   map[uint]models.ReviewQueueItem
	decisions    []models.ReviewDecision

	nextAccount, nextTx, nextSession, nextMatch, nextItem, nextDecision uint
}

func NewStore() *Store {
	return &Store{
		accounts:     make(map[uint]models.BankAccount),
		transactions: make(map[uint]models.Transaction),
		sessions:     make(map[uint]models.ReconciliationSession),
		matches:      make(map[uint]models.TransactionMatch),
		queueItems:   make(map[uint]models.ReviewQueueItem),
	}
}

func (s *Store) CreateAccount(_ context.Context, acct *models.BankAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if acct.ID == 0 {
		s.nextAccount++
		acct.ID = s.nextAccount
	}
	acct.CreatedAt = time.Now()
	s.accounts[acct.ID] = *acct
	return nil
}

func (s *Store) CreateTransaction(_ context.Context, tx *models.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tx.ID == 0 {
		s.nextTx++
		tx.ID = s.nextTx
	}
	tx.CreatedAt = time.Now()
	s.transactions[tx.ID] = *tx
	return nil
}

func (s *Store) TransactionByID(_ context.Context, id uint) (*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.transactions[id]
	if !ok {
		return nil, &models.NotFoundError{Resource: "transaction", ID: id}
	}
	return &tx, nil
}

func (s *Store) AccountsByIDs(_ context.Context, ids []uint) ([]models.BankAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.BankAccount, 0, len(ids))
	for _, id := range ids {
		acct, ok := s.accounts[id]
		if !ok {
			return nil, &models.NotFoundError{Resource: "account", ID: id}
		}
		out = append(out, acct)
	}
	return out, nil
}

func (s *Store) TransactionsInPeriod(_ context.Context, accountIDs []uint, from, to time.Time) ([]models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wanted := make(map[uint]bool, len(accountIDs))
	for _, id := range accountIDs {
		wanted[id] = true
	}
	var out []models.Transaction
	for _, tx := range s.transactions {
		if !wanted[tx.AccountID] {
			continue
		}
		if tx.PostedAt.Before(from) || tx.PostedAt.After(to) {
			continue
		}
		out = append(out, tx)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) CreateSession(_ context.Context, sess *models.ReconciliationSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSession++
	sess.ID = s.nextSession
	sess.CreatedAt = time.Now()
	sess.UpdatedAt = sess.CreatedAt
	s.sessions[sess.ID] = *sess
	return nil
}

func (s *Store) SessionByID(_ context.Context, id uint) (*models.ReconciliationSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, &models.NotFoundError{Resource: "session", ID: id}
	}
	return &sess, nil
}

func (s *Store) ListSessions(_ context.Context) ([]models.ReconciliationSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ReconciliationSession, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) TransitionSession(_ context.Context, id uint, from, to models.SessionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return &models.NotFoundError{Resource: "session", ID: id}
	}
	if sess.Status != from {
		return &models.ConflictError{Resource: "session", ID: id, Message: "status already " + string(sess.Status), Current: sess}
	}
	now := time.Now()
	sess.Status = to
	sess.UpdatedAt = now
	if to == models.SessionProcessing {
		sess.StartedAt = &now
	}
	if to == models.SessionCompleted || to == models.SessionReviewRequired || to == models.SessionFailed {
		sess.CompletedAt = &now
	}
	s.sessions[id] = sess
	return nil
}

func (s *Store) AddSessionCounters(_ context.Context, id uint, delta models.SessionCounters) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return &models.NotFoundError{Resource: "session", ID: id}
	}
	sess.Counters.Total += delta.Total
	sess.Counters.Matched += delta.Matched
	sess.Counters.PendingReview += delta.PendingReview
	sess.Counters.AutoApproved += delta.AutoApproved
	sess.Counters.Unmatched += delta.Unmatched
	sess.Counters.DuplicatesFound += delta.DuplicatesFound
	sess.UpdatedAt = time.Now()
	s.sessions[id] = sess
	return nil
}

func (s *Store) AppendSessionError(_ context.Context, id uint, msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return &models.NotFoundError{Resource: "session", ID: id}
	}
	sess.ErrorLog = append(sess.ErrorLog, msg)
	sess.UpdatedAt = time.Now()
	s.sessions[id] = sess
	return nil
}

func (s *Store) CreateMatch(_ context.Context, m *models.TransactionMatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextMatch++
	m.ID = s.nextMatch
	m.CreatedAt = time.Now()
	m.UpdatedAt = m.CreatedAt
	s.matches[m.ID] = *m
	return nil
}

func (s *Store) MatchByID(_ context.Context, id uint) (*models.TransactionMatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[id]
	if !ok {
		return nil, &models.NotFoundError{Resource: "match", ID: id}
	}
	return &m, nil
}

func (s *Store) MatchesBySession(_ context.Context, sessionID uint) ([]models.TransactionMatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.TransactionMatch
	for _, m := range s.matches {
		if m.SessionID == sessionID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) TransitionMatch(_ context.Context, id uint, from, to models.MatchStatus) (*models.TransactionMatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[id]
	if !ok {
		return nil, &models.NotFoundError{Resource: "match", ID: id}
	}
	if m.Status != from {
		return nil, &models.ConflictError{Resource: "match", ID: id, Message: "status already " + string(m.Status), Current: m}
	}
	m.Status = to
	m.UpdatedAt = time.Now()
	s.matches[id] = m
	return &m, nil
}

func (s *Store) CreateQueueItem(_ context.Context, item *models.ReviewQueueItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextItem++
	item.ID = s.nextItem
	item.CreatedAt = time.Now()
	item.UpdatedAt = item.CreatedAt
	s.queueItems[item.ID] = *item
	return nil
}

func (s *Store) QueueItemByID(_ context.Context, id uint) (*models.ReviewQueueItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.queueItems[id]
	if !ok {
		return nil, &models.NotFoundError{Resource: "queue item", ID: id}
	}
	return &item, nil
}

func (s *Store) QueueItemByMatch(_ context.Context, matchID uint) (*models.ReviewQueueItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range s.queueItems {
		if item.MatchID == matchID {
			return &item, nil
		}
	}
	return nil, &models.NotFoundError{Resource: "queue item for match", ID: matchID}
}

func (s *Store) ListQueue(_ context.Context, f repository.QueueFilter) ([]models.ReviewQueueItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ReviewQueueItem
	for _, item := range s.queueItems {
		if f.SessionID != 0 && item.SessionID != f.SessionID {
			continue
		}
		if f.Status != "" && item.Status != f.Status {
			continue
		}
		if f.Priority != "" && item.Priority != f.Priority {
			continue
		}
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Position != out[j].Position {
			return out[i].Position < out[j].Position
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) TransitionQueueItem(_ context.Context, id uint, from, to models.ReviewStatus) (*models.ReviewQueueItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.queueItems[id]
	if !ok {
		return nil, &models.NotFoundError{Resource: "queue item", ID: id}
	}
	if item.Status != from {
		return nil, &models.ConflictError{Resource: "queue item", ID: id, Message: "status already " + string(item.Status), Current: item}
	}
	item.Status = to
	item.UpdatedAt = time.Now()
	s.queueItems[id] = item
	return &item, nil
}

func (s *Store) UpdateQueueItemPriority(_ context.Context, id uint, priority models.ReviewPriority) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.queueItems[id]
	if !ok {
		return &models.NotFoundError{Resource: "queue item", ID: id}
	}
	item.Priority = priority
	item.UpdatedAt = time.Now()
	s.queueItems[id] = item
	return nil
}

func (s *Store) UpdateQueuePositions(_ context.Context, positions map[uint]int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, pos := range positions {
		item, ok := s.queueItems[id]
		if !ok {
			continue
		}
		item.Position = pos
		s.queueItems[id] = item
	}
	return nil
}

func (s *Store) PendingQueueCount(_ context.Context, sessionID uint) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, item := range s.queueItems {
		if item.SessionID != sessionID {
			continue
		}
		if item.Status == models.ReviewPending || item.Status == models.ReviewInReview || item.Status == models.ReviewEscalated {
			count++
		}
	}
	return count, nil
}

func (s *Store) CreateDecision(_ context.Context, d *models.ReviewDecision) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextDecision++
	d.ID = s.nextDecision
	d.CreatedAt = time.Now()
	s.decisions = append(s.decisions, *d)
	return nil
}

// Decisions returns the audit trail; test helper.
func (s *Store) Decisions() []models.ReviewDecision {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ReviewDecision, len(s.decisions))
	copy(out, s.decisions)
	return out
}

func (s *Store) ComputeAnalytics(_ context.Context) (repository.Analytics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var a repository.Analytics
	matched, auto := 0, 0
	confidenceSum := 0.0
	for _, m := range s.matches {
		if m.CandidateTransactionID == nil {
			continue
		}
		matched++
		confidenceSum += m.Confidence
		if m.AutoApproved {
			auto++
		}
		if m.Factors.Data().CrossBankTransfer {
			a.CrossBankTransfers++
		}
	}
	if matched > 0 {
		a.AutoMatchRate = float64(auto) / float64(matched)
		a.AverageConfidence = confidenceSum / float64(matched)
	}
	for _, item := range s.queueItems {
		if item.Status == models.ReviewPending || item.Status == models.ReviewInReview || item.Status == models.ReviewEscalated {
			a.ReviewQueueVolume++
		}
	}
	return a, nil
}

var _ repository.Store = (*Store)(nil)
