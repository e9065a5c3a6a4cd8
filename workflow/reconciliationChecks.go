package workflow

import (
	"context"
	"fmt"

	"github.com/mmdatafocus/assetshop_backend/metrics"
	"github.com/mmdatafocus/assetshop_backend/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type LedgerMismatch struct {
	AccountID int             `json:"account_id"`
	Name      string          `json:"name"`
	Cached    decimal.Decimal `json:"cached"`
	Expected  decimal.Decimal `json:"expected"`
}

func (m LedgerMismatch) Drift() decimal.Decimal {
	return m.Cached.Sub(m.Expected)
}

func checkAccount(db *gorm.DB, account models.LedgerAccount) (*LedgerMismatch, error) {
	sum, err := models.SumSignedJournal(db, account.ID)
	if err != nil {
		return nil, err
	}
	expected := account.OpeningBalance.Add(sum)
	if account.Balance.Equal(expected) {
		return nil, nil
	}
	return &LedgerMismatch{
		AccountID: account.ID,
		Name:      account.Name,
		Cached:    account.Balance,
		Expected:  expected,
	}, nil
}

// VerifyLedgerAccount recomputes balance = opening_balance + sum(signed entries) for one account.
func VerifyLedgerAccount(ctx context.Context, db *gorm.DB, id int) error {
	db = db.WithContext(ctx)
	account, err := models.GetLedgerAccount(db, id)
	if err != nil {
		return err
	}
	mismatch, err := checkAccount(db, *account)
	if err != nil {
		return err
	}
	if mismatch != nil {
		return &models.LedgerInvariantViolationError{
			Reference: fmt.Sprintf("ledger_account:%d", id),
			Reason:    fmt.Sprintf("cached balance %s, journal gives %s", mismatch.Cached, mismatch.Expected),
		}
	}
	return nil
}

// VerifyLedgerAccounts checks every account and returns the ones that drifted.
// Intended for a nightly run or an admin trigger.
func VerifyLedgerAccounts(ctx context.Context, db *gorm.DB, logger *logrus.Logger) ([]LedgerMismatch, error) {
	db = db.WithContext(ctx)
	accounts, err := models.ListLedgerAccounts(db)
	if err != nil {
		return nil, err
	}
	mismatches := make([]LedgerMismatch, 0)
	for _, account := range accounts {
		m, err := checkAccount(db, account)
		if err != nil {
			return nil, err
		}
		if m != nil {
			mismatches = append(mismatches, *m)
		}
	}
	metrics.LedgerMismatchedAccounts.Set(float64(len(mismatches)))
	if logger != nil {
		logger.WithFields(logrus.Fields{
			"field":      "LedgerReconciliationChecks",
			"accounts":   len(accounts),
			"mismatches": len(mismatches),
		}).Info("ledger reconciliation checks completed")
	}
	return mismatches, nil
}

// MultipleLiveEntries lists transactions holding more than one live journal entry.
func MultipleLiveEntries(ctx context.Context, db *gorm.DB) ([]string, error) {
	type row struct {
		ReferenceType models.JournalReferenceType
		ReferenceID   int
	}
	var rows []row
	err := db.WithContext(ctx).Model(&models.JournalEntry{}).
		Select("reference_type, reference_id").
		Where("is_reversal = ? AND reversed_by_entry_id IS NULL", false).
		Group("reference_type, reference_id").
		Having("COUNT(*) > 1").
		Order("reference_type, reference_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	refs := make([]string, 0, len(rows))
	for _, r := range rows {
		refs = append(refs, models.ReferenceLabel(r.ReferenceType, r.ReferenceID))
	}
	return refs, nil
}

// StockTotals is the quantity of a component summed over every location.
func StockTotals(ctx context.Context, db *gorm.DB, name string, category models.ComponentCategory) (int, error) {
	return models.SumQuantity(db.WithContext(ctx), models.NormalizeComponentName(name), category)
}

// CountEmptyLots counts lots holding zero or negative quantity; it should always be zero.
func CountEmptyLots(ctx context.Context, db *gorm.DB) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&models.ComponentRecord{}).Where("quantity <= 0").Count(&n).Error
	return n, err
}
