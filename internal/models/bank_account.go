package models

import "time"

// BankAccount is immutable reference data. Institution is the clearing
// identifier used for cross-bank detection and settlement windows.
type BankAccount struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	Institution   string    `gorm:"index" json:"institution"`
	AccountNumber string    `gorm:"uniqueIndex" json:"account_number"`
	Currency      string    `json:"currency"`
	CreatedAt     time.Time `json:"created_at"`
}
