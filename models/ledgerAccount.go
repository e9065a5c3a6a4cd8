package models

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LedgerAccount is a bank account. Balance is a cached fold of its journal:
// opening_balance + sum(credit) - sum(debit).
type LedgerAccount struct {
	ID             int             `gorm:"primary_key" json:"id"`
	Name           string          `gorm:"size:100;not null" json:"name"`
	OpeningBalance decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"opening_balance"`
	Balance        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"balance"`
	AsOfDate       *time.Time      `json:"as_of_date"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewLedgerAccount struct {
	Name           string          `json:"name" validate:"required"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
	AsOfDate       *time.Time      `json:"as_of_date"`
}

func CreateLedgerAccount(tx *gorm.DB, input NewLedgerAccount) (*LedgerAccount, error) {
	account := LedgerAccount{
		Name:           input.Name,
		OpeningBalance: input.OpeningBalance,
		Balance:        input.OpeningBalance,
		AsOfDate:       input.AsOfDate,
	}
	if err := tx.Create(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

func GetLedgerAccount(db *gorm.DB, id int) (*LedgerAccount, error) {
	var account LedgerAccount
	err := db.First(&account, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &LedgerInvariantViolationError{
			Reference: fmt.Sprintf("ledger_account:%d", id),
			Reason:    "bank account does not exist",
		}
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func ListLedgerAccounts(db *gorm.DB) ([]LedgerAccount, error) {
	var accounts []LedgerAccount
	err := db.Order("id ASC").Find(&accounts).Error
	return accounts, err
}

// LockLedgerAccounts locks the given accounts in ascending id order so two savers never
// wait on each other in opposite orders.
func LockLedgerAccounts(tx *gorm.DB, ids ...int) (map[int]*LedgerAccount, error) {
	unique := make([]int, 0, len(ids))
	seen := make(map[int]bool, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			unique = append(unique, id)
		}
	}
	sort.Ints(unique)

	accounts := make(map[int]*LedgerAccount, len(unique))
	for _, id := range unique {
		var account LedgerAccount
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&account, id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &LedgerInvariantViolationError{
				Reference: fmt.Sprintf("ledger_account:%d", id),
				Reason:    "bank account does not exist",
			}
		}
		if err != nil {
			return nil, err
		}
		accounts[id] = &account
	}
	return accounts, nil
}

// AdjustBalance moves the cached balance of a locked account by delta.
func (a *LedgerAccount) AdjustBalance(tx *gorm.DB, delta decimal.Decimal) error {
	a.Balance = a.Balance.Add(delta)
	return tx.Model(&LedgerAccount{}).Where("id = ?", a.ID).Update("balance", a.Balance).Error
}
