package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// JournalEntry is one append-only balance event. Edits never delete rows: a superseded entry is
// marked reversed and paired with a reversal entry of the opposite kind.
type JournalEntry struct {
	ID                int                  `gorm:"primary_key" json:"id"`
	AccountID         int                  `gorm:"index;not null" json:"account_id"`
	ReferenceType     JournalReferenceType `gorm:"type:varchar(20);not null;index:idx_journal_reference,priority:1" json:"reference_type"`
	ReferenceID       int                  `gorm:"not null;index:idx_journal_reference,priority:2" json:"reference_id"`
	Kind              JournalKind          `gorm:"type:varchar(10);not null" json:"kind"`
	Amount            decimal.Decimal      `gorm:"type:decimal(20,4);default:0" json:"amount"`
	Note              string               `gorm:"size:255" json:"note"`
	CorrelationID     string               `gorm:"size:64;index" json:"correlation_id"`
	IsReversal        bool                 `gorm:"not null;default:false" json:"is_reversal"`
	ReversesEntryID   *int                 `gorm:"index" json:"reverses_entry_id,omitempty"`
	ReversedByEntryID *int                 `gorm:"index" json:"reversed_by_entry_id,omitempty"`
	ReversedAt        *time.Time           `json:"reversed_at,omitempty"`
	CreatedAt         time.Time            `gorm:"autoCreateTime" json:"created_at"`
}

// Signed is the entry's effect on its account balance.
func (e JournalEntry) Signed() decimal.Decimal {
	if e.Kind == JournalKindDebit {
		return e.Amount.Neg()
	}
	return e.Amount
}

// IsLive reports whether the entry is the current effect of its transaction.
func (e JournalEntry) IsLive() bool {
	return !e.IsReversal && e.ReversedByEntryID == nil
}

func ReferenceLabel(refType JournalReferenceType, refID int) string {
	return fmt.Sprintf("%s:%d", refType, refID)
}

// LockLiveJournalEntries returns the live entries of a transaction, locked, oldest first.
func LockLiveJournalEntries(tx *gorm.DB, refType JournalReferenceType, refID int) ([]JournalEntry, error) {
	var entries []JournalEntry
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("reference_type = ? AND reference_id = ?", refType, refID).
		Where("is_reversal = ? AND reversed_by_entry_id IS NULL", false).
		Order("id ASC").Find(&entries).Error
	return entries, err
}

// ListJournalEntries returns the full history of a transaction, reversals included.
func ListJournalEntries(db *gorm.DB, refType JournalReferenceType, refID int) ([]JournalEntry, error) {
	var entries []JournalEntry
	err := db.Where("reference_type = ? AND reference_id = ?", refType, refID).
		Order("id ASC").Find(&entries).Error
	return entries, err
}

// SumSignedJournal folds every entry of an account, reversals included.
func SumSignedJournal(db *gorm.DB, accountID int) (decimal.Decimal, error) {
	var entries []JournalEntry
	if err := db.Select("kind", "amount").Where("account_id = ?", accountID).Find(&entries).Error; err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, e := range entries {
		total = total.Add(e.Signed())
	}
	return total, nil
}
