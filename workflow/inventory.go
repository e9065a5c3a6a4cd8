package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mmdatafocus/assetshop_backend/config"
	"github.com/mmdatafocus/assetshop_backend/models"
	"github.com/mmdatafocus/assetshop_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// RegisterDevice creates a device so stock can be allocated to its serial.
func RegisterDevice(ctx context.Context, db *gorm.DB, logger *logrus.Logger, input models.NewDevice, actor string) (*models.Device, error) {
	if err := validateInput(&input); err != nil {
		return nil, err
	}
	actor = actorFor(ctx, actor)
	ctx = utils.WithActor(ctx, actor)

	var device *models.Device
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		d, err := models.CreateDevice(tx, input, actor)
		device = d
		return err
	})
	if err != nil {
		config.LogError(logger, "Inventory", "RegisterDevice", "create device", input, err)
		return nil, err
	}
	return device, nil
}

// SeedLots adds inbound stock as new lots. Nothing is deducted anywhere; device locations must
// already be registered.
func SeedLots(ctx context.Context, db *gorm.DB, logger *logrus.Logger, lots []models.NewLot, actor string) ([]models.ComponentRecord, error) {
	actor = actorFor(ctx, actor)
	ctx = utils.WithActor(ctx, actor)
	records, err := prepareLots(lots, actor)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return records, nil
	}

	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return seedLotsInTx(tx, records)
	})
	if err != nil {
		config.LogError(logger, "Inventory", "SeedLots", "create lots", len(records), err)
		return nil, err
	}
	if logger != nil {
		logger.WithFields(logrus.Fields{
			"lots": len(records),
		}).Info("stock seeded")
	}
	return records, nil
}

func prepareLots(lots []models.NewLot, actor string) ([]models.ComponentRecord, error) {
	records := make([]models.ComponentRecord, 0, len(lots))
	now := time.Now().UTC()
	for i, lot := range lots {
		if err := validateInput(&lot); err != nil {
			return nil, withRow(err, i)
		}
		category, err := models.ParseComponentCategory(lot.Category)
		if err != nil {
			return nil, withRow(err, i)
		}
		location, err := models.ParseLocation(lot.Location)
		if err != nil {
			return nil, withRow(err, i)
		}
		if lot.UnitPrice.IsNegative() {
			return nil, withRow(&models.ValidationError{Field: "unit_price", Reason: "unit price cannot be negative"}, i)
		}
		receivedAt := now
		if lot.ReceivedAt != nil {
			receivedAt = lot.ReceivedAt.UTC()
		}
		records = append(records, models.ComponentRecord{
			Name:       models.NormalizeComponentName(lot.Name),
			Category:   category,
			Location:   location,
			Quantity:   lot.Quantity,
			UnitPrice:  lot.UnitPrice,
			LotCode:    strings.TrimSpace(lot.LotCode),
			ReceivedAt: receivedAt,
			CreatedBy:  actor,
			UpdatedBy:  actor,
		})
	}
	return records, nil
}

func seedLotsInTx(tx *gorm.DB, records []models.ComponentRecord) error {
	known := make(map[string]bool)
	for _, r := range records {
		if !r.Location.IsDevice() || known[r.Location.SerialNo] {
			continue
		}
		if _, err := models.GetDevice(tx, r.Location.SerialNo); err != nil {
			var notFound *models.RecordNotFoundError
			if errors.As(err, &notFound) {
				return &models.ValidationError{Field: "location", Reason: fmt.Sprintf("device %s does not exist", r.Location.SerialNo)}
			}
			return err
		}
		known[r.Location.SerialNo] = true
	}
	return tx.Create(&records).Error
}

func withRow(err error, row int) error {
	var validationErr *models.ValidationError
	if errors.As(err, &validationErr) {
		return &models.ValidationError{Field: validationErr.Field, Reason: fmt.Sprintf("row %d: %s", row+1, validationErr.Reason)}
	}
	return err
}

// DeleteDevice removes a device together with every lot at its serial.
// Returns the number of lots removed.
func DeleteDevice(ctx context.Context, db *gorm.DB, logger *logrus.Logger, serial string) (int, error) {
	location, err := models.ParseLocation(serial)
	if err != nil {
		return 0, err
	}
	if !location.IsDevice() {
		return 0, &models.ValidationError{Field: "serial_no", Reason: "central pool is not a device"}
	}

	var removed int64
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		device, err := models.LockDevice(tx, location.SerialNo)
		if err != nil {
			return err
		}
		res := tx.Where("location_kind = ? AND serial_no = ?", location.Kind, location.SerialNo).
			Delete(&models.ComponentRecord{})
		if res.Error != nil {
			return res.Error
		}
		removed = res.RowsAffected
		return tx.Delete(&models.Device{}, device.ID).Error
	})
	if err != nil {
		config.LogError(logger, "Inventory", "DeleteDevice", "delete device", location.SerialNo, err)
		return 0, err
	}
	if logger != nil {
		logger.WithFields(logrus.Fields{
			"serial_no": location.SerialNo,
			"lots":      removed,
		}).Info("device deleted")
	}
	return int(removed), nil
}
