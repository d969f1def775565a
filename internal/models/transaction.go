package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionSide tells which pool a transaction belongs to.
type TransactionSide string

const (
	SideBank   TransactionSide = "bank"
	SideLedger TransactionSide = "ledger"
)

// Transaction is a normalized statement or ledger row. Immutable once
// ingested; the engine never writes back to this table.
type Transaction struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	AccountID uint            `gorm:"index" json:"account_id"`
	Side      TransactionSide `gorm:"index" json:"side"`
	Amount    decimal.Decimal `gorm:"type:numeric(18,2)" json:"amount"`
	Currency  string          `json:"currency"`
	PostedAt  time.Time       `gorm:"index" json:"posted_at"`
	Reference string          `json:"reference"`
	BatchID   uuid.UUID       `gorm:"type:uuid;index" json:"batch_id"`
	CreatedAt time.Time       `json:"created_at"`
}

// Magnitude is the unsigned amount, used when comparing across the
// bank/ledger sign convention.
func (t Transaction) Magnitude() decimal.Decimal {
	return t.Amount.Abs()
}
