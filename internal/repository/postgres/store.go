// Package postgres is the gorm-backed Store used in production.
package postgres

import (
	"context"
	"errors"
	"time"

	"bank-reconciliation-engine/internal/models"
	"bank-reconciliation-engine/internal/repository"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for migrations at startup.
func (s *Store) DB() *gorm.DB {
	return s.db
}

func (s *Store) CreateAccount(ctx context.Context, acct *models.BankAccount) error {
	return s.db.WithContext(ctx).Create(acct).Error
}

func (s *Store) CreateTransaction(ctx context.Context, tx *models.Transaction) error {
	return s.db.WithContext(ctx).Create(tx).Error
}

func (s *Store) TransactionByID(ctx context.Context, id uint) (*models.Transaction, error) {
	var tx models.Transaction
	if err := s.db.WithContext(ctx).First(&tx, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &models.NotFoundError{Resource: "transaction", ID: id}
		}
		return nil, err
	}
	return &tx, nil
}

func (s *Store) AccountsByIDs(ctx context.Context, ids []uint) ([]models.BankAccount, error) {
	var accounts []models.BankAccount
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&accounts).Error; err != nil {
		return nil, err
	}
	if len(accounts) != len(ids) {
		found := make(map[uint]bool, len(accounts))
		for _, a := range accounts {
			found[a.ID] = true
		}
		for _, id := range ids {
			if !found[id] {
				return nil, &models.NotFoundError{Resource: "account", ID: id}
			}
		}
	}
	return accounts, nil
}

func (s *Store) TransactionsInPeriod(ctx context.Context, accountIDs []uint, from, to time.Time) ([]models.Transaction, error) {
	var txs []models.Transaction
	err := s.db.WithContext(ctx).
		Where("account_id IN ?", accountIDs).
		Where("posted_at BETWEEN ? AND ?", from, to).
		Order("id ASC").
		Find(&txs).Error
	return txs, err
}

func (s *Store) CreateSession(ctx context.Context, sess *models.ReconciliationSession) error {
	return s.db.WithContext(ctx).Create(sess).Error
}

func (s *Store) SessionByID(ctx context.Context, id uint) (*models.ReconciliationSession, error) {
	var sess models.ReconciliationSession
	if err := s.db.WithContext(ctx).First(&sess, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &models.NotFoundError{Resource: "session", ID: id}
		}
		return nil, err
	}
	return &sess, nil
}

func (s *Store) ListSessions(ctx context.Context) ([]models.ReconciliationSession, error) {
	var sessions []models.ReconciliationSession
	err := s.db.WithContext(ctx).Order("id ASC").Find(&sessions).Error
	return sessions, err
}

func (s *Store) TransitionSession(ctx context.Context, id uint, from, to models.SessionStatus) error {
	now := time.Now()
	updates := map[string]interface{}{"status": to, "updated_at": now}
	switch to {
	case models.SessionProcessing:
		updates["started_at"] = now
	case models.SessionCompleted, models.SessionReviewRequired, models.SessionFailed:
		updates["completed_at"] = now
	}

	res := s.db.WithContext(ctx).Model(&models.ReconciliationSession{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		current, err := s.SessionByID(ctx, id)
		if err != nil {
			return err
		}
		return &models.ConflictError{Resource: "session", ID: id, Message: "status already " + string(current.Status), Current: current}
	}
	return nil
}

func (s *Store) AddSessionCounters(ctx context.Context, id uint, delta models.SessionCounters) error {
	res := s.db.WithContext(ctx).Model(&models.ReconciliationSession{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"count_total":            gorm.Expr("count_total + ?", delta.Total),
			"count_matched":          gorm.Expr("count_matched + ?", delta.Matched),
			"count_pending_review":   gorm.Expr("count_pending_review + ?", delta.PendingReview),
			"count_auto_approved":    gorm.Expr("count_auto_approved + ?", delta.AutoApproved),
			"count_unmatched":        gorm.Expr("count_unmatched + ?", delta.Unmatched),
			"count_duplicates_found": gorm.Expr("count_duplicates_found + ?", delta.DuplicatesFound),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return &models.NotFoundError{Resource: "session", ID: id}
	}
	return nil
}

func (s *Store) AppendSessionError(ctx context.Context, id uint, msg string) error {
	// Processing is single-threaded per session, so read-modify-write on
	// the error log cannot race with itself.
	sess, err := s.SessionByID(ctx, id)
	if err != nil {
		return err
	}
	sess.ErrorLog = append(sess.ErrorLog, msg)
	return s.db.WithContext(ctx).Model(sess).Update("error_log", sess.ErrorLog).Error
}

func (s *Store) CreateMatch(ctx context.Context, m *models.TransactionMatch) error {
	return s.db.WithContext(ctx).Create(m).Error
}

func (s *Store) MatchByID(ctx context.Context, id uint) (*models.TransactionMatch, error) {
	var m models.TransactionMatch
	if err := s.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &models.NotFoundError{Resource: "match", ID: id}
		}
		return nil, err
	}
	return &m, nil
}

func (s *Store) MatchesBySession(ctx context.Context, sessionID uint) ([]models.TransactionMatch, error) {
	var matches []models.TransactionMatch
	err := s.db.WithContext(ctx).Where("session_id = ?", sessionID).Order("id ASC").Find(&matches).Error
	return matches, err
}

func (s *Store) TransitionMatch(ctx context.Context, id uint, from, to models.MatchStatus) (*models.TransactionMatch, error) {
	res := s.db.WithContext(ctx).Model(&models.TransactionMatch{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]interface{}{"status": to, "updated_at": time.Now()})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		current, err := s.MatchByID(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, &models.ConflictError{Resource: "match", ID: id, Message: "status already " + string(current.Status), Current: current}
	}
	return s.MatchByID(ctx, id)
}

func (s *Store) CreateQueueItem(ctx context.Context, item *models.ReviewQueueItem) error {
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) QueueItemByID(ctx context.Context, id uint) (*models.ReviewQueueItem, error) {
	var item models.ReviewQueueItem
	if err := s.db.WithContext(ctx).First(&item, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &models.NotFoundError{Resource: "queue item", ID: id}
		}
		return nil, err
	}
	return &item, nil
}

func (s *Store) QueueItemByMatch(ctx context.Context, matchID uint) (*models.ReviewQueueItem, error) {
	var item models.ReviewQueueItem
	if err := s.db.WithContext(ctx).First(&item, "match_id = ?", matchID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &models.NotFoundError{Resource: "queue item for match", ID: matchID}
		}
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListQueue(ctx context.Context, f repository.QueueFilter) ([]models.ReviewQueueItem, error) {
	query := s.db.WithContext(ctx).Model(&models.ReviewQueueItem{})
	if f.SessionID != 0 {
		query = query.Where("session_id = ?", f.SessionID)
	}
	if f.Status != "" {
		query = query.Where("status = ?", f.Status)
	}
	if f.Priority != "" {
		query = query.Where("priority = ?", f.Priority)
	}
	var items []models.ReviewQueueItem
	err := query.Order("position ASC, id ASC").Find(&items).Error
	return items, err
}

func (s *Store) TransitionQueueItem(ctx context.Context, id uint, from, to models.ReviewStatus) (*models.ReviewQueueItem, error) {
	res := s.db.WithContext(ctx).Model(&models.ReviewQueueItem{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]interface{}{"status": to, "updated_at": time.Now()})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		current, err := s.QueueItemByID(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, &models.ConflictError{Resource: "queue item", ID: id, Message: "status already " + string(current.Status), Current: current}
	}
	return s.QueueItemByID(ctx, id)
}

func (s *Store) UpdateQueueItemPriority(ctx context.Context, id uint, priority models.ReviewPriority) error {
	res := s.db.WithContext(ctx).Model(&models.ReviewQueueItem{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"priority": priority, "updated_at": time.Now()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return &models.NotFoundError{Resource: "queue item", ID: id}
	}
	return nil
}

func (s *Store) UpdateQueuePositions(ctx context.Context, positions map[uint]int) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for id, pos := range positions {
			if err := tx.Model(&models.ReviewQueueItem{}).Where("id = ?", id).Update("position", pos).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) PendingQueueCount(ctx context.Context, sessionID uint) (int, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.ReviewQueueItem{}).
		Where("session_id = ?", sessionID).
		Where("status IN ?", []models.ReviewStatus{models.ReviewPending, models.ReviewInReview, models.ReviewEscalated}).
		Count(&count).Error
	return int(count), err
}

func (s *Store) CreateDecision(ctx context.Context, d *models.ReviewDecision) error {
	return s.db.WithContext(ctx).Create(d).Error
}

func (s *Store) ComputeAnalytics(ctx context.Context) (repository.Analytics, error) {
	var a repository.Analytics

	var row struct {
		Matched int64
		Auto    int64
		AvgConf float64
	}
	err := s.db.WithContext(ctx).Model(&models.TransactionMatch{}).
		Where("candidate_transaction_id IS NOT NULL").
		Select("COUNT(*) as matched, COUNT(*) FILTER (WHERE auto_approved) as auto, COALESCE(AVG(confidence),0) as avg_conf").
		Scan(&row).Error
	if err != nil {
		return a, err
	}
	if row.Matched > 0 {
		a.AutoMatchRate = float64(row.Auto) / float64(row.Matched)
		a.AverageConfidence = row.AvgConf
	}

	var crossBank int64
	err = s.db.WithContext(ctx).Model(&models.TransactionMatch{}).
		Where("candidate_transaction_id IS NOT NULL").
		Where(datatypes.JSONQuery("factors").Equals(true, "cross_bank_transfer")).
		Count(&crossBank).Error
	if err != nil {
		return a, err
	}
	a.CrossBankTransfers = int(crossBank)

	var pending int64
	err = s.db.WithContext(ctx).Model(&models.ReviewQueueItem{}).
		Where("status IN ?", []models.ReviewStatus{models.ReviewPending, models.ReviewInReview, models.ReviewEscalated}).
		Count(&pending).Error
	if err != nil {
		return a, err
	}
	a.ReviewQueueVolume = int(pending)

	return a, nil
}

var _ repository.Store = (*Store)(nil)
