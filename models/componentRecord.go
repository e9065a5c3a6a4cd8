package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ComponentRecord is one lot of a component at a location. Several lots may share the same
// (name, category, location); quantity never rests at zero.
type ComponentRecord struct {
	ID         int               `gorm:"primary_key" json:"id"`
	Name       string            `gorm:"size:255;not null;index:idx_component_key,priority:1" json:"name"`
	Category   ComponentCategory `gorm:"type:varchar(16);not null;index:idx_component_key,priority:2" json:"category"`
	Location   Location          `gorm:"embedded" json:"location"`
	Quantity   int               `gorm:"not null" json:"quantity"`
	UnitPrice  decimal.Decimal   `gorm:"type:decimal(20,4);default:0" json:"unit_price"`
	LotCode    string            `gorm:"size:100" json:"lot_code"`
	ReceivedAt time.Time         `gorm:"not null;index" json:"received_at"`
	CreatedBy  string            `gorm:"size:100" json:"created_by"`
	UpdatedBy  string            `gorm:"size:100" json:"updated_by"`
	CreatedAt  time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

func (r ComponentRecord) Key() LotKey {
	return LotKey{Name: r.Name, Category: r.Category, Location: r.Location}
}

// NewLot is the seed/import input; it adds stock without deducting anywhere.
type NewLot struct {
	Name       string          `json:"name" validate:"required"`
	Category   string          `json:"category" validate:"required"`
	Location   string          `json:"location" validate:"required"`
	Quantity   int             `json:"quantity" validate:"gt=0"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	LotCode    string          `json:"lot_code"`
	ReceivedAt *time.Time      `json:"received_at,omitempty"`
}

// NormalizeComponentName returns the canonical upper-case form used for matching.
func NormalizeComponentName(name string) string {
	return strings.ToUpper(strings.Join(strings.Fields(name), " "))
}

// fifoOrder is the consumption order shared by every lot query.
const fifoOrder = "received_at ASC, id ASC"

func whereLocations(tx *gorm.DB, locations []Location) *gorm.DB {
	cond := tx.Session(&gorm.Session{NewDB: true})
	for i, loc := range locations {
		if i == 0 {
			cond = cond.Where("location_kind = ? AND serial_no = ?", loc.Kind, loc.SerialNo)
		} else {
			cond = cond.Or("location_kind = ? AND serial_no = ?", loc.Kind, loc.SerialNo)
		}
	}
	return tx.Where(cond)
}

// LockLots loads every lot of (name, category) at any of locations in FIFO order, holding
// row locks until the surrounding transaction ends.
func LockLots(tx *gorm.DB, name string, category ComponentCategory, locations []Location) ([]ComponentRecord, error) {
	var lots []ComponentRecord
	if len(locations) == 0 {
		return lots, nil
	}
	q := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("name = ? AND category = ?", name, category)
	err := whereLocations(q, locations).Order(fifoOrder).Find(&lots).Error
	return lots, err
}

// LockLotsAt loads every lot of category at location in FIFO order, locked.
func LockLotsAt(tx *gorm.DB, category ComponentCategory, location Location) ([]ComponentRecord, error) {
	var lots []ComponentRecord
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("category = ? AND location_kind = ? AND serial_no = ?", category, location.Kind, location.SerialNo).
		Order(fifoOrder).Find(&lots).Error
	return lots, err
}

// ListLotsAt returns lots at the given locations in FIFO order without locking.
func ListLotsAt(db *gorm.DB, locations []Location) ([]ComponentRecord, error) {
	var lots []ComponentRecord
	if len(locations) == 0 {
		return lots, nil
	}
	err := whereLocations(db, locations).Order(fifoOrder).Find(&lots).Error
	return lots, err
}

func ListAllLots(db *gorm.DB) ([]ComponentRecord, error) {
	var lots []ComponentRecord
	err := db.Order("category ASC, name ASC").Order(fifoOrder).Find(&lots).Error
	return lots, err
}

// SumQuantity totals a component across every location.
func SumQuantity(db *gorm.DB, name string, category ComponentCategory) (int, error) {
	var total int64
	err := db.Model(&ComponentRecord{}).
		Where("name = ? AND category = ?", name, category).
		Select("COALESCE(SUM(quantity), 0)").Scan(&total).Error
	return int(total), err
}

// SetLotQuantity writes a new quantity, deleting the row when it reaches zero.
func SetLotQuantity(tx *gorm.DB, lot *ComponentRecord, quantity int, actor string) error {
	if quantity < 0 {
		return &ValidationError{Field: "quantity", Reason: "lot quantity cannot go negative"}
	}
	if quantity == 0 {
		if err := tx.Delete(&ComponentRecord{}, lot.ID).Error; err != nil {
			return err
		}
		lot.Quantity = 0
		return nil
	}
	lot.Quantity = quantity
	lot.UpdatedBy = actor
	return tx.Model(&ComponentRecord{}).Where("id = ?", lot.ID).
		Updates(map[string]interface{}{"quantity": quantity, "updated_by": actor}).Error
}
