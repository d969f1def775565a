// Package reconciliation owns the session lifecycle: it snapshots the
// transaction pool, runs candidate generation and assignment, classifies
// each assignment against the session thresholds, and aggregates counters.
package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"bank-reconciliation-engine/internal/models"
	"bank-reconciliation-engine/internal/repository"
	"bank-reconciliation-engine/internal/services/matching"
	"bank-reconciliation-engine/internal/services/review"
	"bank-reconciliation-engine/internal/services/scoring"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// duplicateScoreFloor is how well a source must have scored against some
// candidate before a signature collision with an approved match counts as
// a duplicate rather than a coincidence.
const duplicateScoreFloor = 0.95

type Service struct {
	store  repository.Store
	scorer *scoring.Engine
	queue  *review.Manager
}

func NewService(store repository.Store, scorer *scoring.Engine, queue *review.Manager) *Service {
	return &Service{store: store, scorer: scorer, queue: queue}
}

// CreateSessionRequest is the caller's session definition.
type CreateSessionRequest struct {
	Name       string
	Type       models.ReconciliationType
	AccountIDs []uint
	PeriodFrom time.Time
	PeriodTo   time.Time
	Config     models.SessionConfig
}

// CreateSession validates the request and persists a created session.
// Processing is started separately (the HTTP layer runs it in a worker
// goroutine; sessions never share claimable state, so runs are independent).
func (s *Service) CreateSession(ctx context.Context, req CreateSessionRequest) (*models.ReconciliationSession, error) {
	if len(req.AccountIDs) == 0 {
		return nil, &models.ValidationError{Field: "account_ids", Message: "at least one account is required"}
	}
	if req.PeriodFrom.IsZero() || req.PeriodTo.IsZero() {
		return nil, &models.ValidationError{Field: "period", Message: "both period bounds are required"}
	}
	if req.PeriodTo.Before(req.PeriodFrom) {
		return nil, &models.ValidationError{Field: "period", Message: "period end precedes period start"}
	}
	if err := req.Config.Validate(); err != nil {
		return nil, err
	}
	if req.Type == "" {
		req.Type = models.TypeAutomated
	}
	if !req.Type.Valid() {
		return nil, &models.ValidationError{Field: "type", Message: "unknown reconciliation type " + string(req.Type)}
	}

	sess := &models.ReconciliationSession{
		BatchID:    uuid.New(),
		Name:       req.Name,
		Type:       req.Type,
		AccountIDs: datatypes.NewJSONSlice(req.AccountIDs),
		PeriodFrom: req.PeriodFrom,
		PeriodTo:   req.PeriodTo,
		Config:     req.Config,
		Status:     models.SessionCreated,
	}
	if err := s.store.CreateSession(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *Service) GetSession(ctx context.Context, id uint) (*models.ReconciliationSession, error) {
	return s.store.SessionByID(ctx, id)
}

func (s *Service) ListSessions(ctx context.Context) ([]models.ReconciliationSession, error) {
	return s.store.ListSessions(ctx)
}

func (s *Service) ListMatches(ctx context.Context, sessionID uint) ([]models.TransactionMatch, error) {
	if _, err := s.store.SessionByID(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.store.MatchesBySession(ctx, sessionID)
}

func (s *Service) Analytics(ctx context.Context) (repository.Analytics, error) {
	return s.store.ComputeAnalytics(ctx)
}

// Process runs the full pipeline for one session. Pool-level failures mark
// the session failed; per-transaction failures land in the error log and
// leave the offending transaction unmatched. Cancellation abandons the
// remaining unclaimed transactions but never rolls back committed matches.
func (s *Service) Process(ctx context.Context, sessionID uint) error {
	sess, err := s.store.SessionByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := s.store.TransitionSession(ctx, sessionID, models.SessionCreated, models.SessionProcessing); err != nil {
		return err
	}
	log.Printf("session %d (%s): processing started", sessionID, sess.BatchID)

	accounts, err := s.store.AccountsByIDs(ctx, sess.AccountIDs)
	if err != nil {
		return s.fail(ctx, sessionID, fmt.Errorf("loading accounts: %w", err))
	}
	txs, err := s.store.TransactionsInPeriod(ctx, sess.AccountIDs, sess.PeriodFrom, sess.PeriodTo)
	if err != nil {
		return s.fail(ctx, sessionID, fmt.Errorf("loading transactions: %w", err))
	}

	pool := matching.NewPool(accounts, txs)
	generator := matching.NewGenerator(s.scorer, pool)

	candidates, procErrs := generator.Generate(ctx, sess.Config)
	if ctx.Err() != nil {
		return s.abandon(ctx, sessionID, false)
	}

	errored := make(map[uint]bool)
	for _, perr := range procErrs {
		_ = s.store.AppendSessionError(context.WithoutCancel(ctx), sessionID, perr.Error())
		var pe *models.ProcessingError
		if errors.As(perr, &pe) {
			errored[pe.TransactionID] = true
		}
	}

	var sources []models.Transaction
	for _, src := range pool.Sources() {
		if !errored[src.ID] {
			sources = append(sources, src)
		}
	}

	assignments := matching.Assign(candidates, sources)

	committed := false
	for i, a := range assignments {
		if ctx.Err() != nil {
			_ = s.store.AppendSessionError(context.WithoutCancel(ctx), sessionID,
				fmt.Sprintf("processing cancelled with %d of %d transactions resolved", i, len(assignments)))
			return s.abandon(ctx, sessionID, committed)
		}
		if err := s.decide(ctx, sess, a); err != nil {
			// Isolated degradation: record and keep going.
			_ = s.store.AppendSessionError(ctx, sessionID, (&models.ProcessingError{TransactionID: a.Source.ID, Err: err}).Error())
			continue
		}
		committed = true
	}

	// Error-side transactions surface as unmatched with the annotation
	// already in the session log.
	for _, src := range pool.Sources() {
		if errored[src.ID] {
			s.recordUnmatched(ctx, sess, src, "skipped: account lookup failed", false)
		}
	}

	return s.finalize(ctx, sessionID)
}

// decide classifies one assignment against the session thresholds.
func (s *Service) decide(ctx context.Context, sess *models.ReconciliationSession, a matching.Assignment) error {
	cfg := sess.Config

	if a.Best == nil {
		if a.TopScore >= duplicateScoreFloor && s.isDuplicate(ctx, sess, a.Source) {
			return nil
		}
		reason := "no candidate above the floor score"
		if a.TopScore > 0 {
			reason = fmt.Sprintf("best candidate (%.2f) already claimed", a.TopScore)
		}
		s.recordUnmatched(ctx, sess, a.Source, reason, false)
		return nil
	}

	score := a.Best.Score
	if score.Value < cfg.ConfidenceThreshold {
		s.recordUnmatched(ctx, sess, a.Source,
			fmt.Sprintf("assignment discarded: %.2f below confidence threshold %.2f", score.Value, cfg.ConfidenceThreshold), false)
		return nil
	}

	candidateID := a.Best.Candidate.ID
	match := &models.TransactionMatch{
		SessionID:              sess.ID,
		SourceTransactionID:    a.Source.ID,
		CandidateTransactionID: &candidateID,
		Confidence:             score.Value,
		Type:                   score.Type,
		Factors:                datatypes.NewJSONType(score.Factors),
		Reasoning:              score.Reasoning,
		Alternatives:           datatypes.NewJSONSlice(a.Alternatives),
	}

	if score.Value >= cfg.AutoApproveThreshold {
		match.Status = models.MatchApproved
		match.AutoApproved = true
		if err := s.store.CreateMatch(ctx, match); err != nil {
			return err
		}
		return s.store.AddSessionCounters(ctx, sess.ID, models.SessionCounters{Total: 1, Matched: 1, AutoApproved: 1})
	}

	match.Status = models.MatchNeedsReview
	if err := s.store.CreateMatch(ctx, match); err != nil {
		return err
	}
	if err := s.store.AddSessionCounters(ctx, sess.ID, models.SessionCounters{Total: 1, Matched: 1, PendingReview: 1}); err != nil {
		return err
	}
	_, err := s.queue.Enqueue(ctx, match, a.Source.Magnitude())
	return err
}

// isDuplicate checks whether an unassigned source with a near-perfect
// candidate is a statement duplicate of an already-approved match: same
// amount, reference and date as that match's source. Tagged instead of
// creating a second approved match.
func (s *Service) isDuplicate(ctx context.Context, sess *models.ReconciliationSession, source models.Transaction) bool {
	matches, err := s.store.MatchesBySession(ctx, sess.ID)
	if err != nil {
		return false
	}
	for _, m := range matches {
		if m.Status != models.MatchApproved {
			continue
		}
		approved, err := s.store.TransactionByID(ctx, m.SourceTransactionID)
		if err != nil {
			continue
		}
		if approved.Magnitude().Equal(source.Magnitude()) &&
			approved.Reference == source.Reference &&
			sameDay(approved.PostedAt, source.PostedAt) {
			s.recordUnmatched(ctx, sess, source, fmt.Sprintf("duplicate of approved match %d", m.ID), true)
			return true
		}
	}
	return false
}

// recordUnmatched persists the placeholder row so session aggregates can be
// audited from the match table alone.
func (s *Service) recordUnmatched(ctx context.Context, sess *models.ReconciliationSession, source models.Transaction, reason string, duplicate bool) {
	match := &models.TransactionMatch{
		SessionID:           sess.ID,
		SourceTransactionID: source.ID,
		Status:              models.MatchUnmatched,
		Reasoning:           reason,
	}
	if err := s.store.CreateMatch(ctx, match); err != nil {
		log.Printf("session %d: persisting unmatched placeholder for tx %d: %v", sess.ID, source.ID, err)
		return
	}
	delta := models.SessionCounters{Total: 1, Unmatched: 1}
	if duplicate {
		delta.DuplicatesFound = 1
	}
	if err := s.store.AddSessionCounters(ctx, sess.ID, delta); err != nil {
		log.Printf("session %d: counter update: %v", sess.ID, err)
	}
}

func (s *Service) finalize(ctx context.Context, sessionID uint) error {
	pending, err := s.store.PendingQueueCount(ctx, sessionID)
	if err != nil {
		return s.fail(ctx, sessionID, err)
	}
	target := models.SessionCompleted
	if pending > 0 {
		target = models.SessionReviewRequired
	}
	log.Printf("session %d: processing finished, %d item(s) pending review", sessionID, pending)
	return s.store.TransitionSession(ctx, sessionID, models.SessionProcessing, target)
}

// abandon settles a cancelled run: partial results stay committed, the
// session lands on review_required if anything was written, failed if not.
func (s *Service) abandon(ctx context.Context, sessionID uint, committed bool) error {
	cause := ctx.Err()
	ctx = context.WithoutCancel(ctx)
	target := models.SessionFailed
	if committed {
		target = models.SessionReviewRequired
	}
	if err := s.store.TransitionSession(ctx, sessionID, models.SessionProcessing, target); err != nil {
		return err
	}
	return cause
}

func (s *Service) fail(ctx context.Context, sessionID uint, cause error) error {
	_ = s.store.AppendSessionError(ctx, sessionID, cause.Error())
	if err := s.store.TransitionSession(ctx, sessionID, models.SessionProcessing, models.SessionFailed); err != nil {
		return err
	}
	return cause
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
