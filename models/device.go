package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Device struct {
	ID           int             `gorm:"primary_key" json:"id"`
	SerialNo     string          `gorm:"size:100;not null;uniqueIndex" json:"serial_no"`
	Name         string          `gorm:"size:255" json:"name"`
	MakeAndModel string          `gorm:"size:255" json:"make_and_model"`
	Price        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"price"`
	CreatedBy    string          `gorm:"size:100" json:"created_by"`
	UpdatedBy    string          `gorm:"size:100" json:"updated_by"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewDevice struct {
	SerialNo     string          `json:"serial_no" validate:"required"`
	Name         string          `json:"name"`
	MakeAndModel string          `json:"make_and_model"`
	Price        decimal.Decimal `json:"price"`
}

func (d Device) Location() Location {
	return DeviceLocation(d.SerialNo)
}

// LockDevice loads the device by serial with a row lock; a missing device is a RecordNotFoundError.
func LockDevice(tx *gorm.DB, serial string) (*Device, error) {
	var device Device
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("serial_no = ?", NormalizeSerial(serial)).First(&device).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &RecordNotFoundError{Location: DeviceLocation(serial)}
	}
	if err != nil {
		return nil, err
	}
	return &device, nil
}

func GetDevice(db *gorm.DB, serial string) (*Device, error) {
	var device Device
	err := db.Where("serial_no = ?", NormalizeSerial(serial)).First(&device).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &RecordNotFoundError{Location: DeviceLocation(serial)}
	}
	if err != nil {
		return nil, err
	}
	return &device, nil
}

func CreateDevice(tx *gorm.DB, input NewDevice, actor string) (*Device, error) {
	serial := NormalizeSerial(input.SerialNo)
	if serial == "" {
		return nil, &ValidationError{Field: "serial_no", Reason: "serial number is required"}
	}
	if _, ok := centralTokens[serial]; ok {
		return nil, &ValidationError{Field: "serial_no", Reason: "serial collides with the central pool name"}
	}
	device := Device{
		SerialNo:     serial,
		Name:         input.Name,
		MakeAndModel: input.MakeAndModel,
		Price:        input.Price,
		CreatedBy:    actor,
		UpdatedBy:    actor,
	}
	if err := tx.Create(&device).Error; err != nil {
		return nil, err
	}
	return &device, nil
}
