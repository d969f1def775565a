package models

import "time"

type ReviewPriority string

const (
	PriorityLow    ReviewPriority = "low"
	PriorityMedium ReviewPriority = "medium"
	PriorityHigh   ReviewPriority = "high"
	PriorityUrgent ReviewPriority = "urgent"
)

// Rank orders priorities for queue positioning; higher first.
func (p ReviewPriority) Rank() int {
	switch p {
	case PriorityUrgent:
		return 4
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

type ReviewStatus string

const (
	ReviewPending   ReviewStatus = "pending"
	ReviewInReview  ReviewStatus = "in_review"
	ReviewEscalated ReviewStatus = "escalated"
	ReviewCompleted ReviewStatus = "completed"
	ReviewCancelled ReviewStatus = "cancelled"
)

// ReviewQueueItem is the one-to-one review ticket for a needs_review match.
// Position is recomputed on insertion/removal; it is a presentation order,
// not a correctness invariant.
type ReviewQueueItem struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	SessionID       uint           `gorm:"index" json:"session_id"`
	MatchID         uint           `gorm:"uniqueIndex" json:"match_id"`
	Priority        ReviewPriority `gorm:"index" json:"priority"`
	ComplexityScore float64        `json:"complexity_score"`
	SuggestedAction string         `json:"suggested_action"`
	Position        int            `json:"position"`
	Status          ReviewStatus   `gorm:"index" json:"status"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// ReviewDecision is the append-only audit row for every manual or bulk
// decision applied to a match.
type ReviewDecision struct {
	ID          uint        `gorm:"primaryKey" json:"id"`
	MatchID     uint        `gorm:"index" json:"match_id"`
	QueueItemID *uint       `json:"queue_item_id"`
	Decision    MatchStatus `json:"decision"`
	Notes       string      `json:"notes"`
	DecidedBy   string      `json:"decided_by"`
	CreatedAt   time.Time   `json:"created_at"`
}
