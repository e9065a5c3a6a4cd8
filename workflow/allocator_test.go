package workflow_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/mmdatafocus/assetshop_backend/metrics"
	"github.com/mmdatafocus/assetshop_backend/models"
	"github.com/mmdatafocus/assetshop_backend/workflow"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
)

const ram = models.ComponentCategoryRam

func allocateFromCentral(name string, category models.ComponentCategory, serial string, qty int) models.AllocationInput {
	return models.AllocationInput{
		Name:        name,
		Category:    category,
		Sources:     []models.Location{models.Central()},
		Destination: models.DeviceLocation(serial),
		Quantity:    qty,
	}
}

func TestAllocateSplitLot(t *testing.T) {
	db := newTestDB(t)
	ctx := testContext()
	seedDevice(t, db, "DEV1", 0)
	lot1 := seedLot(t, db, "8GB", ram, models.Central(), 3, 10)
	lot2 := seedLot(t, db, "8GB", ram, models.Central(), 5, 12)

	res, err := workflow.Allocate(ctx, db, testLogger(), allocateFromCentral("8gb", "RAM", "dev1", 8))
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}

	if len(res.Consumed) != 2 ||
		res.Consumed[0].RecordID != lot1.ID || res.Consumed[0].Taken != 3 ||
		res.Consumed[1].RecordID != lot2.ID || res.Consumed[1].Taken != 5 {
		t.Fatalf("unexpected consumption %+v", res.Consumed)
	}
	if !res.UnitPrice.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("unit price=%s, want 10", res.UnitPrice)
	}
	if left := lotsAt(t, db, "8GB", ram, models.Central()); len(left) != 0 {
		t.Fatalf("expected no central residue, got %+v", left)
	}
	dest := lotsAt(t, db, "8GB", ram, models.DeviceLocation("DEV1"))
	if len(dest) != 1 || dest[0].Quantity != 8 || !dest[0].UnitPrice.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("unexpected destination lots %+v", dest)
	}
	if dest[0].ID != res.DestinationRecordID {
		t.Fatalf("destination id=%d, result says %d", dest[0].ID, res.DestinationRecordID)
	}
	if dest[0].CreatedBy != "tester" {
		t.Fatalf("created_by=%q, want tester", dest[0].CreatedBy)
	}
}

func TestAllocateAccumulatesDevicePrice(t *testing.T) {
	db := newTestDB(t)
	ctx := testContext()
	seedDevice(t, db, "DEV1", 0)
	seedLot(t, db, "8GB", ram, models.Central(), 4, 10)
	seedLot(t, db, "256GB", models.ComponentCategorySsd, models.Central(), 2, 20)

	if _, err := workflow.Allocate(ctx, db, testLogger(), allocateFromCentral("8GB", ram, "DEV1", 1)); err != nil {
		t.Fatalf("Allocate ram: %v", err)
	}
	if _, err := workflow.Allocate(ctx, db, testLogger(), allocateFromCentral("256GB", models.ComponentCategorySsd, "DEV1", 1)); err != nil {
		t.Fatalf("Allocate ssd: %v", err)
	}
	if got := devicePrice(t, db, "DEV1"); !got.Equal(decimal.NewFromInt(30)) {
		t.Fatalf("device price=%s, want 30", got)
	}
}

func TestAllocateFlatDeltaIgnoresQuantity(t *testing.T) {
	db := newTestDB(t)
	seedDevice(t, db, "DEV1", 100)
	seedLot(t, db, "8GB", ram, models.Central(), 4, 10)

	res, err := workflow.Allocate(testContext(), db, testLogger(), allocateFromCentral("8GB", ram, "DEV1", 4))
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if !res.PriceDelta.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("delta=%s, want 10", res.PriceDelta)
	}
	if got := devicePrice(t, db, "DEV1"); !got.Equal(decimal.NewFromInt(110)) {
		t.Fatalf("device price=%s, want 110", got)
	}
}

func TestAllocatePerUnitDeltaBehindFlag(t *testing.T) {
	t.Setenv("DEVICE_PRICE_DELTA_PER_UNIT", "true")
	db := newTestDB(t)
	seedDevice(t, db, "DEV1", 0)
	seedLot(t, db, "8GB", ram, models.Central(), 4, 10)

	if _, err := workflow.Allocate(testContext(), db, testLogger(), allocateFromCentral("8GB", ram, "DEV1", 4)); err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if got := devicePrice(t, db, "DEV1"); !got.Equal(decimal.NewFromInt(40)) {
		t.Fatalf("device price=%s, want 40", got)
	}
}

func TestAllocateInsufficientStockChangesNothing(t *testing.T) {
	db := newTestDB(t)
	seedDevice(t, db, "DEV1", 5)
	seedLot(t, db, "8GB", ram, models.Central(), 3, 10)
	seedLot(t, db, "8GB", ram, models.Central(), 2, 12)
	before := lotsAt(t, db, "8GB", ram, models.Central())

	_, err := workflow.Allocate(testContext(), db, testLogger(), allocateFromCentral("8GB", ram, "DEV1", 6))
	var insufficient *models.InsufficientStockError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}
	if insufficient.Available != 5 || insufficient.Requested != 6 {
		t.Fatalf("unexpected shortfall %+v", insufficient)
	}

	after := lotsAt(t, db, "8GB", ram, models.Central())
	if len(after) != len(before) {
		t.Fatalf("lot count changed: %d -> %d", len(before), len(after))
	}
	for i := range before {
		if before[i].ID != after[i].ID || before[i].Quantity != after[i].Quantity ||
			!before[i].UnitPrice.Equal(after[i].UnitPrice) || !before[i].UpdatedAt.Equal(after[i].UpdatedAt) {
			t.Fatalf("lot changed: %+v -> %+v", before[i], after[i])
		}
	}
	if dest := lotsAt(t, db, "8GB", ram, models.DeviceLocation("DEV1")); len(dest) != 0 {
		t.Fatalf("destination created on failure: %+v", dest)
	}
	if got := devicePrice(t, db, "DEV1"); !got.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("device price changed to %s", got)
	}
}

func TestAllocateValidation(t *testing.T) {
	db := newTestDB(t)
	seedDevice(t, db, "DEV1", 0)
	seedLot(t, db, "8GB", ram, models.Central(), 3, 10)

	cases := []struct {
		name  string
		input models.AllocationInput
		field string
	}{
		{"zero quantity", allocateFromCentral("8GB", ram, "DEV1", 0), "quantity"},
		{"blank name", allocateFromCentral("  ", ram, "DEV1", 1), "name"},
		{"bad category", allocateFromCentral("8GB", "gpu", "DEV1", 1), "category"},
		{"no sources", models.AllocationInput{Name: "8GB", Category: ram, Destination: models.DeviceLocation("DEV1"), Quantity: 1}, "sources"},
		{"destination is source", models.AllocationInput{Name: "8GB", Category: ram, Sources: []models.Location{models.Central()}, Destination: models.Central(), Quantity: 1}, "destination"},
		{"unknown device", allocateFromCentral("8GB", ram, "NOPE", 1), "destination"},
		{"unset destination", models.AllocationInput{Name: "8GB", Category: ram, Sources: []models.Location{models.Central()}, Quantity: 1}, "destination"},
	}
	for _, tc := range cases {
		_, err := workflow.Allocate(testContext(), db, testLogger(), tc.input)
		var validationErr *models.ValidationError
		if !errors.As(err, &validationErr) {
			t.Fatalf("%s: expected ValidationError, got %v", tc.name, err)
		}
		if validationErr.Field != tc.field {
			t.Fatalf("%s: field=%q, want %q", tc.name, validationErr.Field, tc.field)
		}
	}
	if left := lotsAt(t, db, "8GB", ram, models.Central()); len(left) != 1 || left[0].Quantity != 3 {
		t.Fatalf("stock changed by rejected input: %+v", left)
	}
}

func TestAllocateMergesIntoNewestDestinationLot(t *testing.T) {
	db := newTestDB(t)
	seedDevice(t, db, "DEV1", 0)
	seedDevice(t, db, "DEV2", 0)
	seedLot(t, db, "8GB", ram, models.DeviceLocation("DEV2"), 1, 7)
	newest := seedLot(t, db, "8GB", ram, models.DeviceLocation("DEV2"), 1, 9)
	seedLot(t, db, "8GB", ram, models.DeviceLocation("DEV1"), 2, 10)

	res, err := workflow.Allocate(testContext(), db, testLogger(), models.AllocationInput{
		Name:        "8GB",
		Category:    ram,
		Sources:     []models.Location{models.DeviceLocation("DEV1")},
		Destination: models.DeviceLocation("DEV2"),
		Quantity:    2,
	})
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if res.DestinationRecordID != newest.ID {
		t.Fatalf("merged into %d, want newest lot %d", res.DestinationRecordID, newest.ID)
	}
	dest := lotsAt(t, db, "8GB", ram, models.DeviceLocation("DEV2"))
	if len(dest) != 2 || dest[1].Quantity != 3 || dest[0].Quantity != 1 {
		t.Fatalf("unexpected destination lots %+v", dest)
	}
	// only the destination device moves
	if got := devicePrice(t, db, "DEV1"); !got.IsZero() {
		t.Fatalf("source device price=%s, want 0", got)
	}
	if got := devicePrice(t, db, "DEV2"); !got.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("destination device price=%s, want 10", got)
	}
}

func TestDeallocate(t *testing.T) {
	db := newTestDB(t)
	ctx := testContext()
	seedDevice(t, db, "DEV1", 0)
	seedLot(t, db, "8GB", ram, models.Central(), 5, 10)

	if _, err := workflow.Allocate(ctx, db, testLogger(), allocateFromCentral("8GB", ram, "DEV1", 3)); err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	res, err := workflow.Deallocate(ctx, db, testLogger(), models.DeallocationInput{
		Name: "8GB", Category: ram, Location: models.DeviceLocation("DEV1"), Quantity: 2,
	})
	if err != nil {
		t.Fatalf("Deallocate: %v", err)
	}
	if !res.PriceDelta.Equal(decimal.NewFromInt(-10)) {
		t.Fatalf("delta=%s, want -10", res.PriceDelta)
	}
	if got := devicePrice(t, db, "DEV1"); !got.IsZero() {
		t.Fatalf("device price=%s, want 0", got)
	}
	if dev := lotsAt(t, db, "8GB", ram, models.DeviceLocation("DEV1")); len(dev) != 1 || dev[0].Quantity != 1 {
		t.Fatalf("device lots %+v", dev)
	}
	if total, err := workflow.StockTotals(ctx, db, "8GB", ram); err != nil || total != 5 {
		t.Fatalf("StockTotals=%d,%v want 5", total, err)
	}

	_, err = workflow.Deallocate(ctx, db, testLogger(), models.DeallocationInput{
		Name: "8GB", Category: ram, Location: models.DeviceLocation("DEV1"), Quantity: 2,
	})
	var insufficient *models.InsufficientStockError
	if !errors.As(err, &insufficient) || insufficient.Available != 1 {
		t.Fatalf("expected InsufficientStockError with 1 available, got %v", err)
	}

	_, err = workflow.Deallocate(ctx, db, testLogger(), models.DeallocationInput{
		Name: "16GB", Category: ram, Location: models.DeviceLocation("DEV1"), Quantity: 1,
	})
	var notFound *models.RecordNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected RecordNotFoundError, got %v", err)
	}

	_, err = workflow.Deallocate(ctx, db, testLogger(), models.DeallocationInput{
		Name: "8GB", Category: ram, Location: models.Central(), Quantity: 1,
	})
	var validationErr *models.ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError for central source, got %v", err)
	}
}

func TestReturnRestoresCentralStock(t *testing.T) {
	db := newTestDB(t)
	ctx := testContext()
	seedDevice(t, db, "DEV1", 50)
	seedLot(t, db, "8GB", ram, models.Central(), 4, 10)
	seedLot(t, db, "16GB", ram, models.Central(), 2, 25)

	if _, err := workflow.Allocate(ctx, db, testLogger(), allocateFromCentral("8GB", ram, "DEV1", 2)); err != nil {
		t.Fatalf("Allocate 8GB: %v", err)
	}
	if _, err := workflow.Allocate(ctx, db, testLogger(), allocateFromCentral("16GB", ram, "DEV1", 2)); err != nil {
		t.Fatalf("Allocate 16GB: %v", err)
	}
	if got := devicePrice(t, db, "DEV1"); !got.Equal(decimal.NewFromInt(85)) {
		t.Fatalf("device price after allocation=%s, want 85", got)
	}

	res, err := workflow.Return(ctx, db, testLogger(), models.ReturnInput{Location: models.DeviceLocation("DEV1"), Category: "Ram"})
	if err != nil {
		t.Fatalf("Return: %v", err)
	}
	if len(res.Moved) != 2 {
		t.Fatalf("moved=%d, want 2", len(res.Moved))
	}
	if !res.PriceDelta.IsZero() {
		t.Fatalf("price delta=%s, want 0", res.PriceDelta)
	}
	if got := devicePrice(t, db, "DEV1"); !got.Equal(decimal.NewFromInt(85)) {
		t.Fatalf("device price after return=%s, want 85", got)
	}
	if left := lotsAt(t, db, "8GB", ram, models.DeviceLocation("DEV1")); len(left) != 0 {
		t.Fatalf("device still holds %+v", left)
	}
	central := lotsAt(t, db, "8GB", ram, models.Central())
	if len(central) != 1 || central[0].Quantity != 4 {
		t.Fatalf("central 8GB lots %+v, want one lot of 4", central)
	}
	central16 := lotsAt(t, db, "16GB", ram, models.Central())
	if len(central16) != 1 || central16[0].Quantity != 2 || !central16[0].UnitPrice.Equal(decimal.NewFromInt(25)) {
		t.Fatalf("central 16GB lots %+v", central16)
	}

	// nothing left: a second return is a no-op
	res, err = workflow.Return(ctx, db, testLogger(), models.ReturnInput{Location: models.DeviceLocation("DEV1"), Category: ram})
	if err != nil || len(res.Moved) != 0 {
		t.Fatalf("second Return=%+v,%v", res, err)
	}
}

func TestReassignReplacesCategoryAtomically(t *testing.T) {
	db := newTestDB(t)
	ctx := testContext()
	seedDevice(t, db, "DEV1", 0)
	seedLot(t, db, "8GB", ram, models.Central(), 2, 10)
	seedLot(t, db, "16GB", ram, models.Central(), 2, 20)
	seedLot(t, db, "I5", models.ComponentCategoryProcessor, models.Central(), 1, 100)

	if _, err := workflow.Allocate(ctx, db, testLogger(), allocateFromCentral("8GB", ram, "DEV1", 2)); err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if _, err := workflow.Allocate(ctx, db, testLogger(), allocateFromCentral("I5", models.ComponentCategoryProcessor, "DEV1", 1)); err != nil {
		t.Fatalf("Allocate processor: %v", err)
	}

	// 16GB x3 exceeds stock: the whole reassignment, including the return, rolls back
	_, err := workflow.Reassign(ctx, db, testLogger(), models.ReassignInput{
		Location: models.DeviceLocation("DEV1"),
		Category: ram,
		Items:    []models.ReassignItem{{Name: "16GB", Quantity: 3}},
	})
	var insufficient *models.InsufficientStockError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}
	if dev := lotsAt(t, db, "8GB", ram, models.DeviceLocation("DEV1")); len(dev) != 1 || dev[0].Quantity != 2 {
		t.Fatalf("failed reassign changed device stock: %+v", dev)
	}
	if got := devicePrice(t, db, "DEV1"); !got.Equal(decimal.NewFromInt(110)) {
		t.Fatalf("device price=%s, want 110", got)
	}
	if central := lotsAt(t, db, "8GB", ram, models.Central()); len(central) != 0 {
		t.Fatalf("rolled back return left central lots %+v", central)
	}

	res, err := workflow.Reassign(ctx, db, testLogger(), models.ReassignInput{
		Location: models.DeviceLocation("DEV1"),
		Category: ram,
		Items:    []models.ReassignItem{{Name: "16gb", Quantity: 1}, {Name: "8gb", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("Reassign: %v", err)
	}
	if len(res.Returned.Moved) != 1 || len(res.Allocations) != 2 {
		t.Fatalf("unexpected reassign result %+v", res)
	}

	view, err := workflow.GroupedView(ctx, db, []models.Location{models.DeviceLocation("DEV1"), models.Central()})
	if err != nil {
		t.Fatalf("GroupedView: %v", err)
	}
	dev := view["DEV1"]
	if strings.Join(dev.Rams, "|") != "8GB X(1)|16GB X(1)" {
		t.Fatalf("device rams=%v", dev.Rams)
	}
	if strings.Join(dev.Processors, "|") != "I5 X(1)" {
		t.Fatalf("processor untouched by ram reassign, got %v", dev.Processors)
	}
	// returned 8GB stock keeps the receipt date of its seeded lot
	central := view["central"]
	if strings.Join(central.Rams, "|") != "8GB X(1)|16GB X(1)" {
		t.Fatalf("central rams=%v", central.Rams)
	}
	// 10 + 100 from the first allocations, the return keeps them, then 20 + 10
	if got := devicePrice(t, db, "DEV1"); !got.Equal(decimal.NewFromInt(140)) {
		t.Fatalf("device price=%s, want 140", got)
	}
}

func TestReturnDecrementsDevicePriceBehindFlag(t *testing.T) {
	t.Setenv("DEVICE_PRICE_DECREMENT_ON_RETURN", "true")
	db := newTestDB(t)
	ctx := testContext()
	seedDevice(t, db, "DEV1", 50)
	seedLot(t, db, "8GB", ram, models.Central(), 4, 10)
	seedLot(t, db, "16GB", ram, models.Central(), 2, 25)

	for _, name := range []string{"8GB", "16GB"} {
		if _, err := workflow.Allocate(ctx, db, testLogger(), allocateFromCentral(name, ram, "DEV1", 2)); err != nil {
			t.Fatalf("Allocate %s: %v", name, err)
		}
	}
	res, err := workflow.Return(ctx, db, testLogger(), models.ReturnInput{Location: models.DeviceLocation("DEV1"), Category: ram})
	if err != nil {
		t.Fatalf("Return: %v", err)
	}
	if !res.PriceDelta.Equal(decimal.NewFromInt(-35)) {
		t.Fatalf("price delta=%s, want -35", res.PriceDelta)
	}
	if got := devicePrice(t, db, "DEV1"); !got.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("device price after return=%s, want 50", got)
	}
}

func TestReturnLeavesMergedAllocationPrice(t *testing.T) {
	db := newTestDB(t)
	ctx := testContext()
	seedDevice(t, db, "DEV1", 0)
	seedLot(t, db, "8GB", ram, models.Central(), 8, 10)

	for i := 0; i < 2; i++ {
		if _, err := workflow.Allocate(ctx, db, testLogger(), allocateFromCentral("8GB", ram, "DEV1", 4)); err != nil {
			t.Fatalf("Allocate %d: %v", i, err)
		}
	}
	if lots := lotsAt(t, db, "8GB", ram, models.DeviceLocation("DEV1")); len(lots) != 1 || lots[0].Quantity != 8 {
		t.Fatalf("device lots %+v, want one merged lot of 8", lots)
	}
	if _, err := workflow.Return(ctx, db, testLogger(), models.ReturnInput{Location: models.DeviceLocation("DEV1"), Category: ram}); err != nil {
		t.Fatalf("Return: %v", err)
	}
	if got := devicePrice(t, db, "DEV1"); !got.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("device price after return=%s, want 20", got)
	}
	if central := lotsAt(t, db, "8GB", ram, models.Central()); len(central) != 1 || central[0].Quantity != 8 {
		t.Fatalf("central lots %+v", central)
	}
}

func TestReturnedStockKeepsFifoPosition(t *testing.T) {
	db := newTestDB(t)
	ctx := testContext()
	seedDevice(t, db, "DEV1", 0)
	seedDevice(t, db, "DEV2", 0)
	seedDevice(t, db, "DEV3", 0)
	first := seedLot(t, db, "8GB", ram, models.Central(), 1, 10)

	if _, err := workflow.Allocate(ctx, db, testLogger(), allocateFromCentral("8GB", ram, "DEV1", 1)); err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	dev := lotsAt(t, db, "8GB", ram, models.DeviceLocation("DEV1"))
	if len(dev) != 1 || !dev[0].ReceivedAt.Equal(first.ReceivedAt) {
		t.Fatalf("device lot %+v, want received_at %s", dev, first.ReceivedAt)
	}
	if _, err := workflow.Return(ctx, db, testLogger(), models.ReturnInput{Location: models.DeviceLocation("DEV1"), Category: ram}); err != nil {
		t.Fatalf("Return: %v", err)
	}
	central := lotsAt(t, db, "8GB", ram, models.Central())
	if len(central) != 1 || !central[0].ReceivedAt.Equal(first.ReceivedAt) {
		t.Fatalf("returned lot %+v, want received_at %s", central, first.ReceivedAt)
	}

	// a later receipt queues behind the returned unit
	seedLot(t, db, "8GB", ram, models.Central(), 1, 5)
	res, err := workflow.Allocate(ctx, db, testLogger(), allocateFromCentral("8GB", ram, "DEV2", 1))
	if err != nil {
		t.Fatalf("Allocate after return: %v", err)
	}
	if !res.UnitPrice.Equal(decimal.NewFromInt(10)) || res.Consumed[0].RecordID != central[0].ID {
		t.Fatalf("consumed %+v at %s, want returned lot %d at 10", res.Consumed, res.UnitPrice, central[0].ID)
	}

	// empty the pool, then bring the oldest unit back through Deallocate
	if _, err := workflow.Allocate(ctx, db, testLogger(), allocateFromCentral("8GB", ram, "DEV3", 1)); err != nil {
		t.Fatalf("Allocate later receipt: %v", err)
	}
	if _, err := workflow.Deallocate(ctx, db, testLogger(), models.DeallocationInput{Name: "8GB", Category: ram, Location: models.DeviceLocation("DEV2"), Quantity: 1}); err != nil {
		t.Fatalf("Deallocate: %v", err)
	}
	central = lotsAt(t, db, "8GB", ram, models.Central())
	if len(central) != 1 || !central[0].ReceivedAt.Equal(first.ReceivedAt) {
		t.Fatalf("deallocated lot %+v, want received_at %s", central, first.ReceivedAt)
	}
}

func TestConservationAndNoResidue(t *testing.T) {
	db := newTestDB(t)
	ctx := testContext()
	seedDevice(t, db, "DEV1", 0)
	seedDevice(t, db, "DEV2", 0)
	seedLot(t, db, "8GB", ram, models.Central(), 3, 10)
	seedLot(t, db, "8GB", ram, models.Central(), 4, 11)
	seedLot(t, db, "8GB", ram, models.Central(), 1, 9)
	const total = 8

	steps := []func() error{
		func() error {
			_, err := workflow.Allocate(ctx, db, testLogger(), allocateFromCentral("8GB", ram, "DEV1", 5))
			return err
		},
		func() error {
			_, err := workflow.Allocate(ctx, db, testLogger(), models.AllocationInput{
				Name: "8GB", Category: ram,
				Sources:     []models.Location{models.Central(), models.DeviceLocation("DEV1")},
				Destination: models.DeviceLocation("DEV2"), Quantity: 4,
			})
			return err
		},
		func() error {
			_, err := workflow.Deallocate(ctx, db, testLogger(), models.DeallocationInput{Name: "8GB", Category: ram, Location: models.DeviceLocation("DEV2"), Quantity: 1})
			return err
		},
		func() error {
			_, err := workflow.Return(ctx, db, testLogger(), models.ReturnInput{Location: models.DeviceLocation("DEV1"), Category: ram})
			return err
		},
		func() error {
			_, err := workflow.Allocate(ctx, db, testLogger(), allocateFromCentral("8GB", ram, "DEV1", 100))
			return err
		},
	}
	for i, step := range steps {
		err := step()
		var insufficient *models.InsufficientStockError
		if err != nil && !errors.As(err, &insufficient) {
			t.Fatalf("step %d: %v", i, err)
		}
		got, err := workflow.StockTotals(ctx, db, "8gb", ram)
		if err != nil {
			t.Fatalf("step %d StockTotals: %v", i, err)
		}
		if got != total {
			t.Fatalf("step %d: total=%d, want %d", i, got, total)
		}
		empty, err := workflow.CountEmptyLots(ctx, db)
		if err != nil || empty != 0 {
			t.Fatalf("step %d: %d empty lots (%v)", i, empty, err)
		}
	}
}

func TestApplyAllocationDispatchesByOp(t *testing.T) {
	db := newTestDB(t)
	ctx := testContext()
	seedDevice(t, db, "DEV1", 0)
	seedLot(t, db, "8GB", ram, models.Central(), 2, 10)

	in := allocateFromCentral("8GB", ram, "DEV1", 1)
	// a populated Deallocate must be ignored for an allocate command
	out, err := workflow.ApplyAllocation(ctx, db, testLogger(), models.AllocationCommand{
		Op:         models.AllocationOpAllocate,
		Allocate:   &in,
		Deallocate: &models.DeallocationInput{Name: "8GB", Category: ram, Location: models.DeviceLocation("DEV1"), Quantity: 1},
	})
	if err != nil {
		t.Fatalf("ApplyAllocation: %v", err)
	}
	if out.Allocation == nil || out.Return != nil || out.Reassign != nil {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if dev := lotsAt(t, db, "8GB", ram, models.DeviceLocation("DEV1")); len(dev) != 1 || dev[0].Quantity != 1 {
		t.Fatalf("device lots %+v", dev)
	}

	var validationErr *models.ValidationError
	if _, err := workflow.ApplyAllocation(ctx, db, testLogger(), models.AllocationCommand{Op: models.AllocationOpReturn}); !errors.As(err, &validationErr) {
		t.Fatalf("missing input: expected ValidationError, got %v", err)
	}
	if _, err := workflow.ApplyAllocation(ctx, db, testLogger(), models.AllocationCommand{Op: "transfer"}); !errors.As(err, &validationErr) {
		t.Fatalf("unknown op: expected ValidationError, got %v", err)
	}
}

func TestAllocationMetrics(t *testing.T) {
	db := newTestDB(t)
	seedDevice(t, db, "DEV1", 0)
	seedLot(t, db, "8GB", ram, models.Central(), 1, 10)

	ok := metrics.AllocationsTotal.WithLabelValues("allocate", "ram", "ok")
	short := metrics.AllocationsTotal.WithLabelValues("allocate", "ram", "insufficient_stock")
	okBefore, shortBefore := testutil.ToFloat64(ok), testutil.ToFloat64(short)

	if _, err := workflow.Allocate(testContext(), db, testLogger(), allocateFromCentral("8GB", ram, "DEV1", 1)); err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	_, _ = workflow.Allocate(testContext(), db, testLogger(), allocateFromCentral("8GB", ram, "DEV1", 1))

	if got := testutil.ToFloat64(ok) - okBefore; got != 1 {
		t.Fatalf("ok counter moved by %v, want 1", got)
	}
	if got := testutil.ToFloat64(short) - shortBefore; got != 1 {
		t.Fatalf("insufficient counter moved by %v, want 1", got)
	}
}

func TestDeleteDeviceCascadesLots(t *testing.T) {
	db := newTestDB(t)
	ctx := testContext()
	seedDevice(t, db, "DEV1", 0)
	seedLot(t, db, "8GB", ram, models.DeviceLocation("DEV1"), 2, 10)
	seedLot(t, db, "I5", models.ComponentCategoryProcessor, models.DeviceLocation("DEV1"), 1, 90)
	seedLot(t, db, "8GB", ram, models.Central(), 1, 10)

	n, err := workflow.DeleteDevice(ctx, db, testLogger(), "dev1")
	if err != nil {
		t.Fatalf("DeleteDevice: %v", err)
	}
	if n != 2 {
		t.Fatalf("removed %d lots, want 2", n)
	}
	var notFound *models.RecordNotFoundError
	if _, err := models.GetDevice(db, "DEV1"); !errors.As(err, &notFound) {
		t.Fatalf("device still present: %v", err)
	}
	if central := lotsAt(t, db, "8GB", ram, models.Central()); len(central) != 1 {
		t.Fatalf("central stock touched: %+v", central)
	}
}

func TestDeviceDescription(t *testing.T) {
	groups := models.CategoryGroups{
		Processors: []string{"I5 X(1)"},
		Rams:       []string{"8GB X(2)", "4GB X(1)"},
	}
	got := workflow.DeviceDescription(groups, "dev1")
	want := "PROCESSOR: I5 X(1) (DEV1)<br>RAM: 8GB X(2), 4GB X(1) (DEV1)<br>"
	if got != want {
		t.Fatalf("DeviceDescription=%q, want %q", got, want)
	}
	if workflow.DeviceDescription(models.CategoryGroups{}, "dev1") != "" {
		t.Fatalf("empty groups should render nothing")
	}
}

func TestSeedLotsRequiresRegisteredDevice(t *testing.T) {
	db := newTestDB(t)
	ctx := testContext()

	_, err := workflow.SeedLots(ctx, db, testLogger(), []models.NewLot{
		{Name: "8gb", Category: "ram", Location: "DEV404", Quantity: 1},
	}, "")
	var validationErr *models.ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}

	if _, err := workflow.RegisterDevice(ctx, db, testLogger(), models.NewDevice{SerialNo: "dev404"}, ""); err != nil {
		t.Fatalf("RegisterDevice: %v", err)
	}
	recs, err := workflow.SeedLots(ctx, db, testLogger(), []models.NewLot{
		{Name: "8gb", Category: "ram", Location: "DEV404", Quantity: 1, UnitPrice: decimal.NewFromInt(10)},
		{Name: "8gb", Category: "RAM", Location: "Solv-IT", Quantity: 3, UnitPrice: decimal.NewFromInt(10)},
	}, "")
	if err != nil {
		t.Fatalf("SeedLots: %v", err)
	}
	if len(recs) != 2 || recs[1].Location.Kind != models.LocationKindCentral || recs[0].Name != "8GB" {
		t.Fatalf("unexpected records %+v", recs)
	}
	if recs[0].CreatedBy != "tester" {
		t.Fatalf("created_by=%q, want tester from context", recs[0].CreatedBy)
	}
}
