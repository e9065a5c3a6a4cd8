package workflow_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/mmdatafocus/assetshop_backend/config"
	"github.com/mmdatafocus/assetshop_backend/models"
	"github.com/mmdatafocus/assetshop_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// newTestDB opens a private in-memory SQLite database with the production schema and plugins.
// Row locks are not enforced there; the MySQL concurrency test covers them.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_", "#", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), config.GormConfig())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sqlite handle: %v", err)
	}
	// one connection keeps the shared in-memory database alive and serialises access
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := config.InstallPlugins(db); err != nil {
		t.Fatalf("install plugins: %v", err)
	}
	if err := models.MigrateTable(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func testContext() context.Context {
	return utils.SetUsernameInContext(context.Background(), "tester")
}

var lotClock = time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)

// seedLot inserts one lot directly, received a minute after the previous one.
func seedLot(t *testing.T, db *gorm.DB, name string, category models.ComponentCategory, loc models.Location, qty int, price int64) models.ComponentRecord {
	t.Helper()
	lotClock = lotClock.Add(time.Minute)
	rec := models.ComponentRecord{
		Name:       name,
		Category:   category,
		Location:   loc,
		Quantity:   qty,
		UnitPrice:  decimal.NewFromInt(price),
		ReceivedAt: lotClock,
	}
	if err := db.Create(&rec).Error; err != nil {
		t.Fatalf("seed lot: %v", err)
	}
	return rec
}

func seedDevice(t *testing.T, db *gorm.DB, serial string, price int64) *models.Device {
	t.Helper()
	d, err := models.CreateDevice(db, models.NewDevice{SerialNo: serial, Price: decimal.NewFromInt(price)}, "tester")
	if err != nil {
		t.Fatalf("seed device: %v", err)
	}
	return d
}

func lotsAt(t *testing.T, db *gorm.DB, name string, category models.ComponentCategory, loc models.Location) []models.ComponentRecord {
	t.Helper()
	var lots []models.ComponentRecord
	err := db.Where("name = ? AND category = ? AND location_kind = ? AND serial_no = ?", name, category, loc.Kind, loc.SerialNo).
		Order("received_at ASC, id ASC").Find(&lots).Error
	if err != nil {
		t.Fatalf("load lots: %v", err)
	}
	return lots
}

func devicePrice(t *testing.T, db *gorm.DB, serial string) decimal.Decimal {
	t.Helper()
	d, err := models.GetDevice(db, serial)
	if err != nil {
		t.Fatalf("load device %s: %v", serial, err)
	}
	return d.Price
}

func mustDec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("decimal %q: %v", s, err)
	}
	return d
}
