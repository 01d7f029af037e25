package models

import (
	"time"
)

// Payment statuses
const (
	PaymentStatusPending   = "pending"
	PaymentStatusPaid      = "paid"
	PaymentStatusCancelled = "cancelled"
)

// Flow types
const (
	FlowTypeIn  = "in"
	FlowTypeOut = "out"
)

// Well-known financial category codes
const (
	CategoryMonthlyFee     = "MONTHLY_FEE"
	CategoryFine           = "FINE"
	CategoryRewardPayout   = "REWARD_PAYOUT"
	CategoryOpeningBalance = "OPENING_BALANCE"
)

// FinancialCategory classifies ledger entries. Seeded at boot, admin-managed
// afterwards.
type FinancialCategory struct {
	ID       string `json:"id" gorm:"primaryKey;type:uuid"`
	Code     string `json:"code" gorm:"uniqueIndex;not null"`
	Name     string `json:"name" gorm:"not null"`
	FlowType string `json:"flow_type" gorm:"not null"` // "in" or "out"

	Timestamps
}

// Transaction is one row of the club ledger. Created by the reward engine
// and the penalty job as a side effect; status transitions belong to the
// finance admin flows.
type Transaction struct {
	ID         string  `json:"id" gorm:"primaryKey;type:uuid"`
	CategoryID string  `json:"category_id" gorm:"not null;index"`
	UserID     *string `json:"user_id,omitempty" gorm:"index"`

	Amount        float64 `json:"amount" gorm:"not null"`
	Description   string  `json:"description"`
	PaymentStatus string  `json:"payment_status" gorm:"default:'pending';index"`
	ReceiptURL    string  `json:"receipt_url,omitempty"`

	FiscalYear      int        `json:"fiscal_year" gorm:"index"`
	PeriodMonth     int        `json:"period_month"`
	TransactionDate time.Time  `json:"transaction_date"`
	ProcessedAt     *time.Time `json:"processed_at,omitempty"`

	Timestamps

	Category FinancialCategory `json:"category,omitempty" gorm:"foreignKey:CategoryID"`
}
