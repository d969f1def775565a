package models

import (
	"time"

	"gorm.io/datatypes"
)

type MatchType string

const (
	MatchExact      MatchType = "exact"
	MatchFeePattern MatchType = "fee_pattern"
	MatchCrossBank  MatchType = "cross_bank"
	MatchDelayed    MatchType = "delayed"
	MatchFuzzy      MatchType = "fuzzy"
	MatchPartial    MatchType = "partial"
)

// Precedence orders match types for tie-breaking; higher wins.
func (m MatchType) Precedence() int {
	switch m {
	case MatchExact:
		return 6
	case MatchFeePattern:
		return 5
	case MatchCrossBank:
		return 4
	case MatchDelayed:
		return 3
	case MatchFuzzy:
		return 2
	case MatchPartial:
		return 1
	default:
		return 0
	}
}

type MatchStatus string

const (
	MatchPending     MatchStatus = "pending"
	MatchApproved    MatchStatus = "approved"
	MatchRejected    MatchStatus = "rejected"
	MatchNeedsReview MatchStatus = "needs_review"
	MatchUnmatched   MatchStatus = "unmatched"
)

// MatchFactors records which heuristics contributed to a score.
type MatchFactors struct {
	BankDelayConsidered bool `json:"bank_delay_considered"`
	ReferenceMatched    bool `json:"reference_matched"`
	CrossBankTransfer   bool `json:"cross_bank_transfer"`
	ImmediatePayment    bool `json:"immediate_payment"`
	WithinEftWindow     bool `json:"within_eft_window"`
	FeePatternMatch     bool `json:"fee_pattern_match"`
}

// AlternativeCandidate is a runner-up kept for reviewer context.
type AlternativeCandidate struct {
	TransactionID uint    `json:"transaction_id"`
	Score         float64 `json:"score"`
	Reason        string  `json:"reason"`
}

// TransactionMatch pairs a bank-side source with a ledger-side candidate.
// CandidateTransactionID is nil for unmatched placeholders. Status changes
// only through the compare-and-swap transition in the store.
type TransactionMatch struct {
	ID                     uint                                      `gorm:"primaryKey" json:"id"`
	SessionID              uint                                      `gorm:"index" json:"session_id"`
	SourceTransactionID    uint                                      `gorm:"index" json:"source_transaction_id"`
	CandidateTransactionID *uint                                     `gorm:"index" json:"candidate_transaction_id"`
	Confidence             float64                                   `json:"confidence"`
	Type                   MatchType                                 `json:"match_type"`
	Factors                datatypes.JSONType[MatchFactors]          `json:"factors"`
	Status                 MatchStatus                               `gorm:"index" json:"status"`
	AutoApproved           bool                                      `json:"auto_approved"`
	Reasoning              string                                    `json:"reasoning"`
	Alternatives           datatypes.JSONSlice[AlternativeCandidate] `json:"alternatives"`
	CreatedAt              time.Time                                 `json:"created_at"`
	UpdatedAt              time.Time                                 `json:"updated_at"`
}
