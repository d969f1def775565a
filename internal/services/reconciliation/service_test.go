package reconciliation

import (
	"context"
	"testing"
	"time"

	"bank-reconciliation-engine/internal/models"
	"bank-reconciliation-engine/internal/repository"
	"bank-reconciliation-engine/internal/repository/memory"
	"bank-reconciliation-engine/internal/services/review"
	"bank-reconciliation-engine/internal/services/scoring"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store *memory.Store
	svc   *Service
	queue *review.Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	queue := review.NewManager(store)
	svc := NewService(store, scoring.NewEngine(scoring.DefaultConfig()), queue)
	return &fixture{store: store, svc: svc, queue: queue}
}

func (f *fixture) seedAccount(t *testing.T, institution, number string) uint {
	t.Helper()
	acct := &models.BankAccount{Institution: institution, AccountNumber: number, Currency: "ZAR"}
	require.NoError(t, f.store.CreateAccount(context.Background(), acct))
	return acct.ID
}

func (f *fixture) seedTx(t *testing.T, accountID uint, side models.TransactionSide, amount, ref string, date time.Time) uint {
	t.Helper()
	tx := &models.Transaction{
		AccountID: accountID,
		Side:      side,
		Amount:    decimal.RequireFromString(amount),
		Currency:  "ZAR",
		Reference: ref,
		PostedAt:  date,
	}
	require.NoError(t, f.store.CreateTransaction(context.Background(), tx))
	return tx.ID
}

func (f *fixture) runSession(t *testing.T, accountIDs []uint, cfg models.SessionConfig) *models.ReconciliationSession {
	t.Helper()
	ctx := context.Background()
	sess, err := f.svc.CreateSession(ctx, CreateSessionRequest{
		Name:       "january close",
		AccountIDs: accountIDs,
		PeriodFrom: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		PeriodTo:   time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC),
		Config:     cfg,
	})
	require.NoError(t, err)
	require.NoError(t, f.svc.Process(ctx, sess.ID))

	out, err := f.svc.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	return out
}

var jan5 = time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC)

func TestCreateSession_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	period := CreateSessionRequest{
		AccountIDs: []uint{1},
		PeriodFrom: jan5,
		PeriodTo:   jan5.AddDate(0, 1, 0),
		Config:     models.SessionConfig{ConfidenceThreshold: 0.5, AutoApproveThreshold: 0.9},
	}

	t.Run("empty accounts", func(t *testing.T) {
		req := period
		req.AccountIDs = nil
		_, err := f.svc.CreateSession(ctx, req)
		var verr *models.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "account_ids", verr.Field)
	})

	t.Run("inverted period", func(t *testing.T) {
		req := period
		req.PeriodFrom, req.PeriodTo = req.PeriodTo, req.PeriodFrom
		_, err := f.svc.CreateSession(ctx, req)
		var verr *models.ValidationError
		require.ErrorAs(t, err, &verr)
	})

	t.Run("threshold out of range", func(t *testing.T) {
		req := period
		req.Config.AutoApproveThreshold = 1.5
		_, err := f.svc.CreateSession(ctx, req)
		var cerr *models.ConfigError
		require.ErrorAs(t, err, &cerr)
	})

	t.Run("auto below confidence", func(t *testing.T) {
		req := period
		req.Config = models.SessionConfig{ConfidenceThreshold: 0.8, AutoApproveThreshold: 0.6}
		_, err := f.svc.CreateSession(ctx, req)
		var cerr *models.ConfigError
		require.ErrorAs(t, err, &cerr)
	})

	t.Run("unknown type", func(t *testing.T) {
		req := period
		req.Type = "bogus"
		_, err := f.svc.CreateSession(ctx, req)
		var verr *models.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "type", verr.Field)
	})
}

func TestProcess_ExactMatchAutoApproves(t *testing.T) {
	f := newFixture(t)
	bank := f.seedAccount(t, "FNB", "621000001")
	ledger := f.seedAccount(t, "FNB", "621000002")
	f.seedTx(t, bank, models.SideBank, "100.00", "INV1001", jan5)
	candID := f.seedTx(t, ledger, models.SideLedger, "100.00", "INV1001", jan5)

	sess := f.runSession(t, []uint{bank, ledger}, models.SessionConfig{ConfidenceThreshold: 0.5, AutoApproveThreshold: 0.9})

	assert.Equal(t, models.SessionCompleted, sess.Status)
	assert.Equal(t, models.SessionCounters{Total: 1, Matched: 1, AutoApproved: 1}, sess.Counters)

	matches, err := f.svc.ListMatches(context.Background(), sess.ID)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	m := matches[0]
	assert.Equal(t, models.MatchApproved, m.Status)
	assert.True(t, m.AutoApproved)
	assert.Equal(t, models.MatchExact, m.Type)
	require.NotNil(t, m.CandidateTransactionID)
	assert.Equal(t, candID, *m.CandidateTransactionID)
	assert.GreaterOrEqual(t, m.Confidence, sess.Config.AutoApproveThreshold)
}

func TestProcess_MidConfidenceLandsInReviewQueue(t *testing.T) {
	f := newFixture(t)
	bank := f.seedAccount(t, "FNB", "621000001")
	ledger := f.seedAccount(t, "FNB", "621000002")
	f.seedTx(t, bank, models.SideBank, "250.00", "INV-555", jan5)
	f.seedTx(t, ledger, models.SideLedger, "250.00", "INV-555", jan5.AddDate(0, 0, 6))

	sess := f.runSession(t, []uint{bank, ledger}, models.SessionConfig{ConfidenceThreshold: 0.9, AutoApproveThreshold: 0.99})

	assert.Equal(t, models.SessionReviewRequired, sess.Status)
	assert.Equal(t, models.SessionCounters{Total: 1, Matched: 1, PendingReview: 1}, sess.Counters)

	ctx := context.Background()
	matches, err := f.svc.ListMatches(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, models.MatchNeedsReview, matches[0].Status)
	assert.False(t, matches[0].AutoApproved)

	items, err := f.queue.List(ctx, repository.QueueFilter{SessionID: sess.ID})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, matches[0].ID, items[0].MatchID)
	assert.Equal(t, models.ReviewPending, items[0].Status)

	// Approving the one pending item settles the session.
	_, err = f.queue.CompleteReview(ctx, items[0].ID, models.MatchApproved, "verified against statement")
	require.NoError(t, err)

	sess, err = f.svc.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionCompleted, sess.Status)
	assert.Zero(t, sess.Counters.PendingReview)
}

func TestProcess_NoPlausibleCounterpartStaysUnmatched(t *testing.T) {
	f := newFixture(t)
	bank := f.seedAccount(t, "FNB", "621000001")
	ledger := f.seedAccount(t, "FNB", "621000002")
	f.seedTx(t, bank, models.SideBank, "5000.00", "SALARY BATCH OCT", jan5)
	f.seedTx(t, ledger, models.SideLedger, "10.00", "COFFEE", jan5.AddDate(0, 0, 25))

	sess := f.runSession(t, []uint{bank, ledger}, models.SessionConfig{ConfidenceThreshold: 0.5, AutoApproveThreshold: 0.9})

	assert.Equal(t, models.SessionCompleted, sess.Status)
	assert.Equal(t, models.SessionCounters{Total: 1, Unmatched: 1}, sess.Counters)

	matches, err := f.svc.ListMatches(context.Background(), sess.ID)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, models.MatchUnmatched, matches[0].Status)
	assert.Nil(t, matches[0].CandidateTransactionID)
}

func TestProcess_DuplicateStatementRow(t *testing.T) {
	f := newFixture(t)
	bank := f.seedAccount(t, "FNB", "621000001")
	ledger := f.seedAccount(t, "FNB", "621000002")
	f.seedTx(t, bank, models.SideBank, "100.00", "INV1001", jan5)
	f.seedTx(t, bank, models.SideBank, "100.00", "INV1001", jan5) // statement duplicate
	f.seedTx(t, ledger, models.SideLedger, "100.00", "INV1001", jan5)

	sess := f.runSession(t, []uint{bank, ledger}, models.SessionConfig{ConfidenceThreshold: 0.5, AutoApproveThreshold: 0.9})

	assert.Equal(t, 1, sess.Counters.DuplicatesFound)
	assert.Equal(t, 1, sess.Counters.Matched)
	assert.Equal(t, 1, sess.Counters.AutoApproved)
	assert.Equal(t, 2, sess.Counters.Total)
}

func TestProcess_DeterministicAcrossSessions(t *testing.T) {
	f := newFixture(t)
	bank := f.seedAccount(t, "FNB", "621000001")
	ledger := f.seedAccount(t, "ABSA", "409000002")
	f.seedTx(t, bank, models.SideBank, "100.00", "INV1001", jan5)
	f.seedTx(t, bank, models.SideBank, "-500.00", "TRANSFER OUT", jan5)
	f.seedTx(t, bank, models.SideBank, "250.00", "SAL-99", jan5)
	f.seedTx(t, ledger, models.SideLedger, "100.00", "INV1001", jan5)
	f.seedTx(t, ledger, models.SideLedger, "500.00", "TRANSFER IN", jan5.AddDate(0, 0, 2))
	f.seedTx(t, ledger, models.SideLedger, "250.00", "SAL-99", jan5.AddDate(0, 0, 3))
	f.seedTx(t, ledger, models.SideLedger, "250.00", "SAL-99", jan5.AddDate(0, 0, 4))

	cfg := models.SessionConfig{ConsiderBankDelays: true, CrossBankMatching: true, ConfidenceThreshold: 0.4, AutoApproveThreshold: 0.95}

	type outcome struct {
		Source     uint
		Candidate  *uint
		Confidence float64
		Type       models.MatchType
		Status     models.MatchStatus
	}
	collect := func(sessionID uint) []outcome {
		matches, err := f.svc.ListMatches(context.Background(), sessionID)
		require.NoError(t, err)
		out := make([]outcome, 0, len(matches))
		for _, m := range matches {
			out = append(out, outcome{m.SourceTransactionID, m.CandidateTransactionID, m.Confidence, m.Type, m.Status})
		}
		return out
	}

	first := f.runSession(t, []uint{bank, ledger}, cfg)
	second := f.runSession(t, []uint{bank, ledger}, cfg)

	assert.Equal(t, collect(first.ID), collect(second.ID))
	assert.Equal(t, first.Counters, second.Counters)
}

func TestProcess_UnknownAccountFailsSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sess, err := f.svc.CreateSession(ctx, CreateSessionRequest{
		Name:       "broken",
		AccountIDs: []uint{42},
		PeriodFrom: jan5,
		PeriodTo:   jan5.AddDate(0, 1, 0),
		Config:     models.SessionConfig{ConfidenceThreshold: 0.5, AutoApproveThreshold: 0.9},
	})
	require.NoError(t, err)

	err = f.svc.Process(ctx, sess.ID)
	require.Error(t, err)

	sess, getErr := f.svc.GetSession(ctx, sess.ID)
	require.NoError(t, getErr)
	assert.Equal(t, models.SessionFailed, sess.Status)
	assert.NotEmpty(t, sess.ErrorLog)
}

func TestProcess_CancelledBeforeAnyCommitFailsSession(t *testing.T) {
	f := newFixture(t)
	bank := f.seedAccount(t, "FNB", "621000001")
	ledger := f.seedAccount(t, "FNB", "621000002")
	f.seedTx(t, bank, models.SideBank, "100.00", "INV1001", jan5)
	f.seedTx(t, ledger, models.SideLedger, "100.00", "INV1001", jan5)

	sess, err := f.svc.CreateSession(context.Background(), CreateSessionRequest{
		Name:       "cancelled close",
		AccountIDs: []uint{bank, ledger},
		PeriodFrom: jan5.AddDate(0, 0, -4),
		PeriodTo:   jan5.AddDate(0, 0, 26),
		Config:     models.SessionConfig{ConfidenceThreshold: 0.5, AutoApproveThreshold: 0.9},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = f.svc.Process(ctx, sess.ID)
	require.ErrorIs(t, err, context.Canceled)

	sess, err = f.svc.GetSession(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionFailed, sess.Status)

	matches, err := f.svc.ListMatches(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

// cancellingStore pulls the plug as soon as the first match lands, so the
// run is interrupted between one committed transaction and the next.
type cancellingStore struct {
	*memory.Store
	cancel context.CancelFunc
}

func (s *cancellingStore) CreateMatch(ctx context.Context, m *models.TransactionMatch) error {
	err := s.Store.CreateMatch(ctx, m)
	s.cancel()
	return err
}

func TestProcess_CancelledMidRunKeepsCommittedMatches(t *testing.T) {
	mem := memory.NewStore()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := &cancellingStore{Store: mem, cancel: cancel}
	queue := review.NewManager(store)
	svc := NewService(store, scoring.NewEngine(scoring.DefaultConfig()), queue)

	seed := func(accountID uint, side models.TransactionSide, amount, ref string) {
		t.Helper()
		tx := &models.Transaction{
			AccountID: accountID,
			Side:      side,
			Amount:    decimal.RequireFromString(amount),
			Currency:  "ZAR",
			Reference: ref,
			PostedAt:  jan5,
		}
		require.NoError(t, mem.CreateTransaction(context.Background(), tx))
	}
	bankAcct := &models.BankAccount{Institution: "FNB", AccountNumber: "621000001", Currency: "ZAR"}
	ledgerAcct := &models.BankAccount{Institution: "FNB", AccountNumber: "621000002", Currency: "ZAR"}
	require.NoError(t, mem.CreateAccount(context.Background(), bankAcct))
	require.NoError(t, mem.CreateAccount(context.Background(), ledgerAcct))
	seed(bankAcct.ID, models.SideBank, "100.00", "INV1001")
	seed(bankAcct.ID, models.SideBank, "200.00", "INV2002")
	seed(ledgerAcct.ID, models.SideLedger, "100.00", "INV1001")
	seed(ledgerAcct.ID, models.SideLedger, "200.00", "INV2002")

	sess, err := svc.CreateSession(context.Background(), CreateSessionRequest{
		Name:       "interrupted close",
		AccountIDs: []uint{bankAcct.ID, ledgerAcct.ID},
		PeriodFrom: jan5.AddDate(0, 0, -4),
		PeriodTo:   jan5.AddDate(0, 0, 26),
		Config:     models.SessionConfig{ConfidenceThreshold: 0.5, AutoApproveThreshold: 0.9},
	})
	require.NoError(t, err)

	err = svc.Process(ctx, sess.ID)
	require.ErrorIs(t, err, context.Canceled)

	// Partial results stay committed, never rolled back.
	sess, err = svc.GetSession(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionReviewRequired, sess.Status)
	assert.Equal(t, models.SessionCounters{Total: 1, Matched: 1, AutoApproved: 1}, sess.Counters)
	assert.NotEmpty(t, sess.ErrorLog)

	matches, err := svc.ListMatches(context.Background(), sess.ID)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, models.MatchApproved, matches[0].Status)
}

func TestProcess_SecondRunConflicts(t *testing.T) {
	f := newFixture(t)
	bank := f.seedAccount(t, "FNB", "621000001")
	ledger := f.seedAccount(t, "FNB", "621000002")
	f.seedTx(t, bank, models.SideBank, "100.00", "INV1001", jan5)
	f.seedTx(t, ledger, models.SideLedger, "100.00", "INV1001", jan5)

	sess := f.runSession(t, []uint{bank, ledger}, models.SessionConfig{ConfidenceThreshold: 0.5, AutoApproveThreshold: 0.9})

	err := f.svc.Process(context.Background(), sess.ID)
	var cerr *models.ConflictError
	require.ErrorAs(t, err, &cerr)
}

func TestAnalytics_FromPersistedState(t *testing.T) {
	f := newFixture(t)
	bank := f.seedAccount(t, "FNB", "621000001")
	ledger := f.seedAccount(t, "ABSA", "409000002")
	f.seedTx(t, bank, models.SideBank, "-500.00", "", jan5)
	f.seedTx(t, ledger, models.SideLedger, "500.00", "", jan5.AddDate(0, 0, 2))

	sess := f.runSession(t, []uint{bank, ledger}, models.SessionConfig{
		ConsiderBankDelays:   true,
		CrossBankMatching:    true,
		ConfidenceThreshold:  0.5,
		AutoApproveThreshold: 0.99,
	})
	assert.Equal(t, models.SessionReviewRequired, sess.Status)

	analytics, err := f.svc.Analytics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, analytics.CrossBankTransfers)
	assert.Equal(t, 1, analytics.ReviewQueueVolume)
	assert.Zero(t, analytics.AutoMatchRate)
	assert.InDelta(t, 0.84, analytics.AverageConfidence, 0.05)
}
