package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type SessionStatus string

const (
	SessionCreated        SessionStatus = "created"
	SessionProcessing     SessionStatus = "processing"
	SessionCompleted      SessionStatus = "completed"
	SessionReviewRequired SessionStatus = "review_required"
	SessionFailed         SessionStatus = "failed"
)

// Terminal reports whether the session can no longer change state.
func (s SessionStatus) Terminal() bool {
	return s == SessionCompleted || s == SessionFailed
}

type ReconciliationType string

const (
	TypeAutomated ReconciliationType = "automated"
	TypeManual    ReconciliationType = "manual"
	TypeHybrid    ReconciliationType = "hybrid"
)

func (t ReconciliationType) Valid() bool {
	switch t {
	case TypeAutomated, TypeManual, TypeHybrid:
		return true
	}
	return false
}

// SessionConfig is the caller-supplied tuning for one session.
type SessionConfig struct {
	ConsiderBankDelays   bool    `json:"consider_bank_delays"`
	CrossBankMatching    bool    `json:"cross_bank_matching"`
	ConfidenceThreshold  float64 `json:"confidence_threshold"`
	AutoApproveThreshold float64 `json:"auto_approve_threshold"`
}

// Validate rejects threshold values the engine cannot run with.
func (c SessionConfig) Validate() error {
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return &ConfigError{Message: "confidence_threshold must be within [0,1]"}
	}
	if c.AutoApproveThreshold < 0 || c.AutoApproveThreshold > 1 {
		return &ConfigError{Message: "auto_approve_threshold must be within [0,1]"}
	}
	if c.AutoApproveThreshold < c.ConfidenceThreshold {
		return &ConfigError{Message: "auto_approve_threshold must not be below confidence_threshold"}
	}
	return nil
}

// SessionCounters aggregates match outcomes. Updated by atomic deltas
// alongside each match/queue transition, never recomputed on the hot path.
type SessionCounters struct {
	Total           int `json:"total"`
	Matched         int `json:"matched"`
	PendingReview   int `json:"pending_review"`
	AutoApproved    int `json:"auto_approved"`
	Unmatched       int `json:"unmatched"`
	DuplicatesFound int `json:"duplicates_found"`
}

// ReconciliationSession owns one reconciliation run over a closed pool of
// transactions. Mutated only by the engine while processing; terminal once
// completed or failed.
type ReconciliationSession struct {
	ID          uint                        `gorm:"primaryKey" json:"id"`
	BatchID     uuid.UUID                   `gorm:"type:uuid;uniqueIndex" json:"batch_id"`
	Name        string                      `json:"name"`
	Type        ReconciliationType          `json:"type"`
	AccountIDs  datatypes.JSONSlice[uint]   `json:"account_ids"`
	PeriodFrom  time.Time                   `json:"period_from"`
	PeriodTo    time.Time                   `json:"period_to"`
	Config      SessionConfig               `gorm:"embedded;embeddedPrefix:config_" json:"config"`
	Status      SessionStatus               `gorm:"index" json:"status"`
	Counters    SessionCounters             `gorm:"embedded;embeddedPrefix:count_" json:"counters"`
	ErrorLog    datatypes.JSONSlice[string] `json:"error_log"`
	StartedAt   *time.Time                  `json:"started_at"`
	CompletedAt *time.Time                  `json:"completed_at"`
	CreatedAt   time.Time                   `json:"created_at"`
	UpdatedAt   time.Time                   `json:"updated_at"`
}
