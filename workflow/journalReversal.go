package workflow

import (
	"fmt"
	"time"

	"github.com/mmdatafocus/assetshop_backend/models"
	"gorm.io/gorm"
)

// ReverseJournalEntry appends an entry that negates original and moves the account balance back.
//
// Posted entries are never deleted or edited beyond the reversal link: the reversal carries
// is_reversal=true and reverses_entry_id=<original>, the original gets reversed_by_entry_id.
// account must be the locked row of original.AccountID.
func ReverseJournalEntry(tx *gorm.DB, original *models.JournalEntry, account *models.LedgerAccount, reason string, correlationID string) (reversalID int, err error) {
	if tx == nil || original == nil || account == nil {
		return 0, fmt.Errorf("reverse journal entry: tx/original/account is nil")
	}
	if account.ID != original.AccountID {
		return 0, fmt.Errorf("reverse journal entry %d: account %d does not own it", original.ID, account.ID)
	}

	// Already reversed: hand back the existing reversal.
	if original.ReversedByEntryID != nil && *original.ReversedByEntryID > 0 {
		return *original.ReversedByEntryID, nil
	}

	kind := models.JournalKindDebit
	if original.Kind == models.JournalKindDebit {
		kind = models.JournalKindCredit
	}
	now := time.Now().UTC()
	originalID := original.ID

	reversal := models.JournalEntry{
		AccountID:       original.AccountID,
		ReferenceType:   original.ReferenceType,
		ReferenceID:     original.ReferenceID,
		Kind:            kind,
		Amount:          original.Amount,
		Note:            "Reversal: " + reason,
		CorrelationID:   correlationID,
		IsReversal:      true,
		ReversesEntryID: &originalID,
	}
	if err := tx.Create(&reversal).Error; err != nil {
		return 0, err
	}

	if err := tx.Model(&models.JournalEntry{}).
		Where("id = ?", original.ID).
		Updates(map[string]interface{}{
			"reversed_by_entry_id": reversal.ID,
			"reversed_at":          &now,
		}).Error; err != nil {
		return 0, err
	}
	original.ReversedByEntryID = &reversal.ID
	original.ReversedAt = &now

	if err := account.AdjustBalance(tx, reversal.Signed()); err != nil {
		return 0, err
	}
	return reversal.ID, nil
}
