package models

import (
	"gorm.io/gorm"
)

func MigrateTable(db *gorm.DB) error {
	return db.AutoMigrate(
		&ComponentRecord{}, &Device{},
		&LedgerAccount{}, &JournalEntry{},
		&Sale{}, &Purchase{}, &ServiceBill{},
		&PaymentRecord{},
	)
}
