package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Payment is the block shared by every balance-affecting document.
type Payment struct {
	GrandTotal    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"grand_total"`
	AmountPaid    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount_paid"`
	AmountChange  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount_change"`
	PaymentType   PaymentType     `gorm:"type:varchar(10);not null;default:Cash" json:"payment_type"`
	BankAccountID *int            `gorm:"index" json:"bank_account_id,omitempty"`
	Status        PaymentStatus   `gorm:"type:varchar(10);not null;default:Unpaid" json:"status"`
}

// ComputeStatus derives the payment status from what was paid against the total.
func ComputeStatus(amountPaid, grandTotal decimal.Decimal) PaymentStatus {
	switch {
	case amountPaid.GreaterThanOrEqual(grandTotal):
		return PaymentStatusPaid
	case amountPaid.IsZero():
		return PaymentStatusUnpaid
	default:
		return PaymentStatusBalance
	}
}

// AffectsBank reports whether the block carries a balance effect at all.
func (p Payment) AffectsBank() bool {
	return p.PaymentType == PaymentTypeBank && p.BankAccountID != nil
}

// Validate checks the payment block invariants; ref names the owning document in errors.
func (p Payment) Validate(ref string) error {
	if !p.PaymentType.IsValid() {
		return &ValidationError{Field: "payment_type", Reason: fmt.Sprintf("unknown payment type %q", p.PaymentType)}
	}
	if p.AmountPaid.IsNegative() {
		return &ValidationError{Field: "amount_paid", Reason: "amount paid cannot be negative"}
	}
	if p.GrandTotal.IsNegative() {
		return &ValidationError{Field: "grand_total", Reason: "grand total cannot be negative"}
	}
	if p.PaymentType == PaymentTypeBank && p.BankAccountID == nil {
		return &LedgerInvariantViolationError{Reference: ref, Reason: "bank payment requires a bank account"}
	}
	return nil
}

// LedgerTransaction is implemented by Sale, Purchase and ServiceBill.
type LedgerTransaction interface {
	ReferenceType() JournalReferenceType
	ReferenceID() int
	// ResetID clears the primary key after a rolled-back insert.
	ResetID()
	PaymentBlock() *Payment
	DisplayNumber() string
}

type Sale struct {
	ID                  int             `gorm:"primary_key" json:"id"`
	CustomerName        string          `gorm:"size:255" json:"customer_name"`
	SubTotal            decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"sub_total"`
	TaxAmount           decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"tax_amount"`
	TaxPercentage       decimal.Decimal `gorm:"type:decimal(7,4);default:0" json:"tax_percentage"`
	TotalDiscountAmount decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_discount_amount"`
	Description         string          `gorm:"type:text" json:"description"`
	Payment             `gorm:"embedded"`
	CreatedBy           string          `gorm:"size:100" json:"created_by"`
	UpdatedBy           string          `gorm:"size:100" json:"updated_by"`
	CreatedAt           time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (s *Sale) ReferenceType() JournalReferenceType { return JournalReferenceTypeSale }
func (s *Sale) ReferenceID() int                    { return s.ID }
func (s *Sale) ResetID()                            { s.ID = 0 }
func (s *Sale) PaymentBlock() *Payment              { return &s.Payment }
func (s *Sale) DisplayNumber() string               { return fmt.Sprintf("INV%d", s.ID) }

type Purchase struct {
	ID                  int             `gorm:"primary_key" json:"id"`
	VendorName          string          `gorm:"size:255" json:"vendor_name"`
	Description         string          `gorm:"type:text" json:"description"`
	SubTotal            decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"sub_total"`
	TaxAmount           decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"tax_amount"`
	TotalDiscountAmount decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_discount_amount"`
	Payment             `gorm:"embedded"`
	CreatedBy           string    `gorm:"size:100" json:"created_by"`
	UpdatedBy           string    `gorm:"size:100" json:"updated_by"`
	CreatedAt           time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (p *Purchase) ReferenceType() JournalReferenceType { return JournalReferenceTypePurchase }
func (p *Purchase) ReferenceID() int                    { return p.ID }
func (p *Purchase) ResetID()                            { p.ID = 0 }
func (p *Purchase) PaymentBlock() *Payment              { return &p.Payment }
func (p *Purchase) DisplayNumber() string               { return fmt.Sprintf("INV%d", p.ID) }

type ServiceBill struct {
	ID             int             `gorm:"primary_key" json:"id"`
	CustomerName   string          `gorm:"size:255" json:"customer_name"`
	DeviceSerialNo string          `gorm:"size:100;index" json:"device_serial_no"`
	Description    string          `gorm:"type:text" json:"description"`
	ServiceCharge  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"service_charge"`
	DiscountAmount decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"discount_amount"`
	Payment        `gorm:"embedded"`
	CreatedBy      string    `gorm:"size:100" json:"created_by"`
	UpdatedBy      string    `gorm:"size:100" json:"updated_by"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (b *ServiceBill) ReferenceType() JournalReferenceType { return JournalReferenceTypeServiceBill }
func (b *ServiceBill) ReferenceID() int                    { return b.ID }
func (b *ServiceBill) ResetID()                            { b.ID = 0 }
func (b *ServiceBill) PaymentBlock() *Payment              { return &b.Payment }
func (b *ServiceBill) DisplayNumber() string               { return fmt.Sprintf("SVC%d", b.ID) }

// NewLedgerTransaction returns an empty document of the given type, ready to be loaded into.
func NewLedgerTransaction(refType JournalReferenceType) (LedgerTransaction, error) {
	switch refType {
	case JournalReferenceTypeSale:
		return &Sale{}, nil
	case JournalReferenceTypePurchase:
		return &Purchase{}, nil
	case JournalReferenceTypeServiceBill:
		return &ServiceBill{}, nil
	}
	return nil, &ValidationError{Field: "reference_type", Reason: fmt.Sprintf("unknown transaction type %q", refType)}
}

// LockLedgerTransaction loads a document by type and id with a row lock.
func LockLedgerTransaction(tx *gorm.DB, refType JournalReferenceType, id int) (LedgerTransaction, error) {
	doc, err := NewLedgerTransaction(refType)
	if err != nil {
		return nil, err
	}
	err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(doc, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &LedgerInvariantViolationError{Reference: ReferenceLabel(refType, id), Reason: "transaction does not exist"}
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// ListLedgerTransactions loads every document of a type, newest first.
func ListLedgerTransactions(db *gorm.DB, refType JournalReferenceType) ([]LedgerTransaction, error) {
	var out []LedgerTransaction
	switch refType {
	case JournalReferenceTypeSale:
		var rows []*Sale
		if err := db.Order("id DESC").Find(&rows).Error; err != nil {
			return nil, err
		}
		for _, r := range rows {
			out = append(out, r)
		}
	case JournalReferenceTypePurchase:
		var rows []*Purchase
		if err := db.Order("id DESC").Find(&rows).Error; err != nil {
			return nil, err
		}
		for _, r := range rows {
			out = append(out, r)
		}
	case JournalReferenceTypeServiceBill:
		var rows []*ServiceBill
		if err := db.Order("id DESC").Find(&rows).Error; err != nil {
			return nil, err
		}
		for _, r := range rows {
			out = append(out, r)
		}
	default:
		return nil, &ValidationError{Field: "reference_type", Reason: fmt.Sprintf("unknown transaction type %q", refType)}
	}
	return out, nil
}
