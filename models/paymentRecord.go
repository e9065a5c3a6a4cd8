package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentRecord logs each partial payment received against a document.
type PaymentRecord struct {
	ID              int                  `gorm:"primary_key" json:"id"`
	ReferenceType   JournalReferenceType `gorm:"type:varchar(20);not null;index:idx_payment_reference,priority:1" json:"reference_type"`
	ReferenceID     int                  `gorm:"not null;index:idx_payment_reference,priority:2" json:"reference_id"`
	LedgerAccountID *int                 `gorm:"index" json:"ledger_account_id,omitempty"`
	Amount          decimal.Decimal      `gorm:"type:decimal(20,4);default:0" json:"amount"`
	PaymentMode     PaymentMode          `gorm:"type:varchar(20);not null;default:Cash" json:"payment_mode"`
	TransactionCode string               `gorm:"size:255" json:"transaction_code"`
	CreatedBy       string               `gorm:"size:100" json:"created_by"`
	CreatedAt       time.Time            `gorm:"autoCreateTime" json:"created_at"`
}

type ReceivePaymentInput struct {
	ReferenceType   JournalReferenceType `json:"reference_type" validate:"required,oneof=sale purchase servicebill"`
	ReferenceID     int                  `json:"reference_id" validate:"gt=0"`
	Amount          decimal.Decimal      `json:"amount"`
	Mode            PaymentMode          `json:"mode" validate:"omitempty,oneof=Cash Online"`
	TransactionCode string               `json:"transaction_code"`
	Actor           string               `json:"actor"`
}
