package domain

import (
	"time" // Timestamps

	"github.com/shopspring/decimal" // Exact decimal amounts
)

// TransactionType enumerates the balance-affecting event kinds
type TransactionType string

const (
	TypeTaskReward TransactionType = "task_reward"
	TypeReferral   TransactionType = "referral"
	TypeWithdrawal TransactionType = "withdrawal"
	TypeAdjustment TransactionType = "adjustment"
)

// Valid reports whether t is one of the enumerated types
func (t TransactionType) Valid() bool {
	switch t {
	case TypeTaskReward, TypeReferral, TypeWithdrawal, TypeAdjustment:
		return true
	}
	return false
}

// TransactionStatus is the settlement state of a ledger row
type TransactionStatus string

const (
	StatusCompleted TransactionStatus = "completed"
	StatusPending   TransactionStatus = "pending"
	StatusFailed    TransactionStatus = "failed"
)

// Transaction Model. Rows are appended by the ledger engine and never updated.
type Transaction struct {
	ID           uint              `gorm:"primaryKey" json:"id"`                                  // Primary key
	Reference    string            `gorm:"size:36;uniqueIndex;not null" json:"reference"`         // UUID handed to callers
	UserID       int64             `gorm:"index;not null" json:"user_id"`                         // Owner of the balance
	Amount       decimal.Decimal   `gorm:"type:decimal(20,2);not null" json:"amount"`             // Signed amount
	Type         TransactionType   `gorm:"size:32;index;not null" json:"type"`                    // task_reward, referral, withdrawal, adjustment
	Description  string            `gorm:"size:512" json:"description"`                           // Human readable reason
	BalanceAfter decimal.Decimal   `gorm:"type:decimal(20,2);not null" json:"balance_after"`      // Snapshot after applying Amount
	Status       TransactionStatus `gorm:"size:16;not null;default:completed" json:"status"`      // completed, pending, failed
	CreatedAt    time.Time         `gorm:"index" json:"created_at"`                               // Creation time
}

// AmountPlaces is the scale of every money column
const AmountPlaces = 2

// WholeCents reports whether d fits the money columns without rounding
func WholeCents(d decimal.Decimal) bool {
	return d.Equal(d.Round(AmountPlaces))
}
