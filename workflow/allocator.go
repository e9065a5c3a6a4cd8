package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mmdatafocus/assetshop_backend/config"
	"github.com/mmdatafocus/assetshop_backend/metrics"
	"github.com/mmdatafocus/assetshop_backend/models"
	"github.com/mmdatafocus/assetshop_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

func componentLockKey(category models.ComponentCategory, name string) string {
	return fmt.Sprintf("alloc:%s:%s", category, name)
}

func locationLockKey(category models.ComponentCategory, location models.Location) string {
	return fmt.Sprintf("alloc:%s:@%s", category, location.SerialNo)
}

func actorFor(ctx context.Context, actor string) string {
	if actor != "" {
		return actor
	}
	if username, ok := utils.GetUsernameFromContext(ctx); ok {
		return username
	}
	return ""
}

// validateInput runs struct tags and converts the first failure into a ValidationError.
func validateInput(input interface{}) error {
	err := utils.ValidateStruct(input)
	if err == nil {
		return nil
	}
	if field, tag, ok := utils.FirstValidationError(err); ok {
		return &models.ValidationError{Field: strings.ToLower(field), Reason: "failed on " + tag}
	}
	return &models.ValidationError{Reason: err.Error()}
}

func finishSpan(span trace.Span, op models.AllocationOp, category models.ComponentCategory, err error) {
	metrics.AllocationsTotal.WithLabelValues(string(op), string(category), metrics.ResultLabel(err)).Inc()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func validateAllocationInput(in *models.AllocationInput) error {
	in.Normalize()
	if err := validateInput(in); err != nil {
		return err
	}
	if err := in.Destination.ValidateField("destination"); err != nil {
		return err
	}
	sources := make([]models.Location, 0, len(in.Sources))
	for _, src := range in.Sources {
		if err := src.ValidateField("sources"); err != nil {
			return err
		}
		if src.Equal(in.Destination) {
			return &models.ValidationError{Field: "destination", Reason: "destination is also a source"}
		}
		duplicate := false
		for _, seen := range sources {
			if seen.Equal(src) {
				duplicate = true
				break
			}
		}
		if !duplicate {
			sources = append(sources, src)
		}
	}
	in.Sources = sources
	return nil
}

// Allocate moves quantity of a component from the source locations to the destination,
// consuming source lots oldest-first. When the destination is a device its price grows by the
// allocation's delta.
func Allocate(ctx context.Context, db *gorm.DB, logger *logrus.Logger, input models.AllocationInput) (result *models.AllocationResult, err error) {
	ctx, span := tracer.Start(ctx, "workflow.Allocate")
	defer func() { finishSpan(span, models.AllocationOpAllocate, input.Category, err) }()

	if err = validateAllocationInput(&input); err != nil {
		return nil, err
	}
	input.Actor = actorFor(ctx, input.Actor)
	ctx = utils.WithActor(ctx, input.Actor)
	span.SetAttributes(
		attribute.String("component.name", input.Name),
		attribute.String("component.category", string(input.Category)),
		attribute.String("destination", input.Destination.String()),
		attribute.Int("quantity", input.Quantity),
	)

	perUnit := config.DevicePriceDeltaPerUnit()
	err = runUnitOfWork(ctx, db, logger, "allocate", []string{componentLockKey(input.Category, input.Name)}, func(tx *gorm.DB) error {
		r, err := allocateInTx(tx, input, perUnit)
		result = r
		return err
	})
	if err != nil {
		config.LogError(logger, "Allocator", "Allocate", "apply allocation", input, err)
		return nil, err
	}
	if logger != nil {
		logger.WithFields(logrus.Fields{
			"name":        input.Name,
			"category":    input.Category,
			"destination": input.Destination.String(),
			"quantity":    input.Quantity,
			"unit_price":  result.UnitPrice.String(),
		}).Info("components allocated")
	}
	return result, nil
}

func allocateInTx(tx *gorm.DB, in models.AllocationInput, perUnit bool) (*models.AllocationResult, error) {
	locations := append(append([]models.Location{}, in.Sources...), in.Destination)
	lots, err := models.LockLots(tx, in.Name, in.Category, locations)
	if err != nil {
		return nil, err
	}
	idx := models.NewLotIndex(lots)

	if in.Destination.IsDevice() {
		if _, err := models.LockDevice(tx, in.Destination.SerialNo); err != nil {
			var notFound *models.RecordNotFoundError
			if errors.As(err, &notFound) {
				return nil, &models.ValidationError{
					Field:  "destination",
					Reason: fmt.Sprintf("device %s does not exist", in.Destination.SerialNo),
				}
			}
			return nil, err
		}
	}

	steps, err := planConsumption(idx, sourceKeys(in.Name, in.Category, in.Sources), in.Quantity)
	if err != nil {
		return nil, err
	}
	receivedAt := earliestReceivedAt(idx, in.Name, in.Category, steps)
	if err := applyConsumption(tx, idx, in.Name, in.Category, steps, in.Actor); err != nil {
		return nil, err
	}

	unitPrice := models.ChoosePrice(steps)
	destKey := models.LotKey{Name: in.Name, Category: in.Category, Location: in.Destination}
	destID, err := upsertLot(tx, idx, destKey, in.Quantity, unitPrice, "", receivedAt, in.Actor)
	if err != nil {
		return nil, err
	}

	result := &models.AllocationResult{
		DestinationRecordID: destID,
		UnitPrice:           unitPrice,
		PriceDelta:          decimal.Zero,
		Consumed:            steps,
	}
	if in.Destination.IsDevice() {
		delta := models.DeviceDelta(unitPrice, in.Quantity, perUnit)
		if _, err := ApplyDeviceDelta(tx, in.Destination.SerialNo, delta); err != nil {
			return nil, err
		}
		result.PriceDelta = delta
	}
	return result, nil
}

func applyConsumption(tx *gorm.DB, idx *models.LotIndex, name string, category models.ComponentCategory, steps []models.ConsumedLot, actor string) error {
	for _, step := range steps {
		key := models.LotKey{Name: name, Category: category, Location: step.Location}
		lot := idx.Find(key, step.RecordID)
		if lot == nil {
			return fmt.Errorf("lot %d missing from consumption index", step.RecordID)
		}
		if err := models.SetLotQuantity(tx, lot, step.Remaining, actor); err != nil {
			return err
		}
	}
	return nil
}

// earliestReceivedAt is the receipt date of the oldest lot a consumption plan touches.
// It must be read before the plan is applied.
func earliestReceivedAt(idx *models.LotIndex, name string, category models.ComponentCategory, steps []models.ConsumedLot) time.Time {
	var earliest time.Time
	for _, step := range steps {
		lot := idx.Find(models.LotKey{Name: name, Category: category, Location: step.Location}, step.RecordID)
		if lot == nil {
			continue
		}
		if earliest.IsZero() || lot.ReceivedAt.Before(earliest) {
			earliest = lot.ReceivedAt
		}
	}
	return earliest
}

// upsertLot adds quantity to the newest lot for key, or creates a lot at unitPrice. A new lot
// keeps receivedAt so moved stock holds its FIFO position; zero means now.
func upsertLot(tx *gorm.DB, idx *models.LotIndex, key models.LotKey, quantity int, unitPrice decimal.Decimal, lotCode string, receivedAt time.Time, actor string) (int, error) {
	if lot := idx.Newest(key); lot != nil {
		if err := models.SetLotQuantity(tx, lot, lot.Quantity+quantity, actor); err != nil {
			return 0, err
		}
		return lot.ID, nil
	}
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}
	record := models.ComponentRecord{
		Name:       key.Name,
		Category:   key.Category,
		Location:   key.Location,
		Quantity:   quantity,
		UnitPrice:  unitPrice,
		LotCode:    lotCode,
		ReceivedAt: receivedAt,
		CreatedBy:  actor,
		UpdatedBy:  actor,
	}
	if err := tx.Create(&record).Error; err != nil {
		return 0, err
	}
	idx.Add(record)
	return record.ID, nil
}

// ApplyDeviceDelta locks the device row and moves its price by delta (which may be negative).
func ApplyDeviceDelta(tx *gorm.DB, serial string, delta decimal.Decimal) (*models.Device, error) {
	device, err := models.LockDevice(tx, serial)
	if err != nil {
		return nil, err
	}
	if delta.IsZero() {
		return device, nil
	}
	device.Price = device.Price.Add(delta)
	if err := tx.Model(&models.Device{}).Where("id = ?", device.ID).Update("price", device.Price).Error; err != nil {
		return nil, err
	}
	return device, nil
}

// Deallocate moves quantity from a device back to the central pool and lowers the device price.
func Deallocate(ctx context.Context, db *gorm.DB, logger *logrus.Logger, input models.DeallocationInput) (result *models.AllocationResult, err error) {
	ctx, span := tracer.Start(ctx, "workflow.Deallocate")
	defer func() { finishSpan(span, models.AllocationOpDeallocate, input.Category, err) }()

	input.Normalize()
	if err = validateInput(&input); err != nil {
		return nil, err
	}
	if err = input.Location.ValidateField("location"); err != nil {
		return nil, err
	}
	if !input.Location.IsDevice() {
		err = &models.ValidationError{Field: "location", Reason: "deallocation source must be a device"}
		return nil, err
	}
	input.Actor = actorFor(ctx, input.Actor)
	ctx = utils.WithActor(ctx, input.Actor)
	span.SetAttributes(
		attribute.String("component.name", input.Name),
		attribute.String("component.category", string(input.Category)),
		attribute.String("location", input.Location.String()),
		attribute.Int("quantity", input.Quantity),
	)

	perUnit := config.DevicePriceDeltaPerUnit()
	err = runUnitOfWork(ctx, db, logger, "deallocate", []string{componentLockKey(input.Category, input.Name)}, func(tx *gorm.DB) error {
		r, err := deallocateInTx(tx, input, perUnit)
		result = r
		return err
	})
	if err != nil {
		config.LogError(logger, "Allocator", "Deallocate", "apply deallocation", input, err)
		return nil, err
	}
	if logger != nil {
		logger.WithFields(logrus.Fields{
			"name":       input.Name,
			"category":   input.Category,
			"location":   input.Location.String(),
			"quantity":   input.Quantity,
			"unit_price": result.UnitPrice.String(),
		}).Info("components deallocated")
	}
	return result, nil
}

func deallocateInTx(tx *gorm.DB, in models.DeallocationInput, perUnit bool) (*models.AllocationResult, error) {
	central := models.Central()
	lots, err := models.LockLots(tx, in.Name, in.Category, []models.Location{in.Location, central})
	if err != nil {
		return nil, err
	}
	idx := models.NewLotIndex(lots)
	srcKey := models.LotKey{Name: in.Name, Category: in.Category, Location: in.Location}
	if len(idx.Lots(srcKey)) == 0 {
		return nil, &models.RecordNotFoundError{Name: in.Name, Category: in.Category, Location: in.Location}
	}
	if _, err := models.LockDevice(tx, in.Location.SerialNo); err != nil {
		return nil, err
	}

	steps, err := planConsumption(idx, []models.LotKey{srcKey}, in.Quantity)
	if err != nil {
		return nil, err
	}
	receivedAt := earliestReceivedAt(idx, in.Name, in.Category, steps)
	if err := applyConsumption(tx, idx, in.Name, in.Category, steps, in.Actor); err != nil {
		return nil, err
	}

	unitPrice := models.ChoosePrice(steps)
	destKey := models.LotKey{Name: in.Name, Category: in.Category, Location: central}
	destID, err := upsertLot(tx, idx, destKey, in.Quantity, unitPrice, "", receivedAt, in.Actor)
	if err != nil {
		return nil, err
	}

	delta := models.DeviceDelta(unitPrice, in.Quantity, perUnit).Neg()
	if _, err := ApplyDeviceDelta(tx, in.Location.SerialNo, delta); err != nil {
		return nil, err
	}
	return &models.AllocationResult{
		DestinationRecordID: destID,
		UnitPrice:           unitPrice,
		PriceDelta:          delta,
		Consumed:            steps,
	}, nil
}

func validateReturnInput(in *models.ReturnInput) error {
	in.Category = models.ComponentCategory(strings.ToLower(strings.TrimSpace(string(in.Category))))
	if err := validateInput(in); err != nil {
		return err
	}
	if err := in.Location.ValidateField("location"); err != nil {
		return err
	}
	if !in.Location.IsDevice() {
		return &models.ValidationError{Field: "location", Reason: "only device stock can be returned"}
	}
	return nil
}

// Return moves every lot of a category at a device back to the central pool. The device price
// is left alone unless DEVICE_PRICE_DECREMENT_ON_RETURN is on, in which case it drops by one
// delta per returned lot.
func Return(ctx context.Context, db *gorm.DB, logger *logrus.Logger, input models.ReturnInput) (result *models.ReturnResult, err error) {
	ctx, span := tracer.Start(ctx, "workflow.Return")
	defer func() { finishSpan(span, models.AllocationOpReturn, input.Category, err) }()

	if err = validateReturnInput(&input); err != nil {
		return nil, err
	}
	input.Actor = actorFor(ctx, input.Actor)
	ctx = utils.WithActor(ctx, input.Actor)
	span.SetAttributes(
		attribute.String("component.category", string(input.Category)),
		attribute.String("location", input.Location.String()),
	)

	pricing := returnPricing{perUnit: config.DevicePriceDeltaPerUnit(), decrement: config.DevicePriceDecrementOnReturn()}
	err = runUnitOfWork(ctx, db, logger, "return", []string{locationLockKey(input.Category, input.Location)}, func(tx *gorm.DB) error {
		r, err := returnInTx(tx, input, pricing)
		result = r
		return err
	})
	if err != nil {
		config.LogError(logger, "Allocator", "Return", "return device stock", input, err)
		return nil, err
	}
	if logger != nil {
		logger.WithFields(logrus.Fields{
			"category": input.Category,
			"location": input.Location.String(),
			"lots":     len(result.Moved),
		}).Info("device stock returned")
	}
	return result, nil
}

type returnPricing struct {
	perUnit   bool
	decrement bool
}

func returnInTx(tx *gorm.DB, in models.ReturnInput, pricing returnPricing) (*models.ReturnResult, error) {
	result := &models.ReturnResult{Moved: []models.MovedLot{}, PriceDelta: decimal.Zero}
	lots, err := models.LockLotsAt(tx, in.Category, in.Location)
	if err != nil {
		return nil, err
	}
	if len(lots) == 0 {
		return result, nil
	}
	if _, err := models.LockDevice(tx, in.Location.SerialNo); err != nil {
		return nil, err
	}

	idx := models.NewLotIndex(nil)
	seen := make(map[string]bool)
	for _, lot := range lots {
		if seen[lot.Name] {
			continue
		}
		seen[lot.Name] = true
		centralLots, err := models.LockLots(tx, lot.Name, in.Category, []models.Location{models.Central()})
		if err != nil {
			return nil, err
		}
		for _, c := range centralLots {
			idx.Add(c)
		}
	}

	total := decimal.Zero
	for i := range lots {
		lot := lots[i]
		destKey := models.LotKey{Name: lot.Name, Category: in.Category, Location: models.Central()}
		destID, err := upsertLot(tx, idx, destKey, lot.Quantity, lot.UnitPrice, lot.LotCode, lot.ReceivedAt, in.Actor)
		if err != nil {
			return nil, err
		}
		moved := models.MovedLot{
			Name:                lot.Name,
			Quantity:            lot.Quantity,
			UnitPrice:           lot.UnitPrice,
			SourceRecordID:      lot.ID,
			DestinationRecordID: destID,
		}
		total = total.Add(models.DeviceDelta(lot.UnitPrice, lot.Quantity, pricing.perUnit))
		if err := models.SetLotQuantity(tx, &lot, 0, in.Actor); err != nil {
			return nil, err
		}
		result.Moved = append(result.Moved, moved)
	}

	if !pricing.decrement {
		return result, nil
	}
	result.PriceDelta = total.Neg()
	if _, err := ApplyDeviceDelta(tx, in.Location.SerialNo, result.PriceDelta); err != nil {
		return nil, err
	}
	return result, nil
}

// Reassign clears a device's stock of one category and allocates the given items from the
// central pool in its place. Everything commits together or not at all.
func Reassign(ctx context.Context, db *gorm.DB, logger *logrus.Logger, input models.ReassignInput) (result *models.ReassignResult, err error) {
	ctx, span := tracer.Start(ctx, "workflow.Reassign")
	defer func() { finishSpan(span, models.AllocationOpReassign, input.Category, err) }()

	ret := models.ReturnInput{Location: input.Location, Category: input.Category, Actor: input.Actor}
	if err = validateReturnInput(&ret); err != nil {
		return nil, err
	}
	input.Category = ret.Category
	if err = validateInput(&input); err != nil {
		return nil, err
	}
	input.Actor = actorFor(ctx, input.Actor)
	ret.Actor = input.Actor
	ctx = utils.WithActor(ctx, input.Actor)

	allocations := make([]models.AllocationInput, 0, len(input.Items))
	lockKeys := []string{locationLockKey(input.Category, input.Location)}
	for _, item := range input.Items {
		alloc := models.AllocationInput{
			Name:        item.Name,
			Category:    input.Category,
			Sources:     []models.Location{models.Central()},
			Destination: input.Location,
			Quantity:    item.Quantity,
			Actor:       input.Actor,
		}
		if err = validateAllocationInput(&alloc); err != nil {
			return nil, err
		}
		allocations = append(allocations, alloc)
		lockKeys = append(lockKeys, componentLockKey(alloc.Category, alloc.Name))
	}
	span.SetAttributes(
		attribute.String("component.category", string(input.Category)),
		attribute.String("location", input.Location.String()),
		attribute.Int("items", len(allocations)),
	)

	pricing := returnPricing{perUnit: config.DevicePriceDeltaPerUnit(), decrement: config.DevicePriceDecrementOnReturn()}
	err = runUnitOfWork(ctx, db, logger, "reassign", lockKeys, func(tx *gorm.DB) error {
		returned, err := returnInTx(tx, ret, pricing)
		if err != nil {
			return err
		}
		r := &models.ReassignResult{Returned: returned, Allocations: make([]*models.AllocationResult, 0, len(allocations))}
		for _, alloc := range allocations {
			a, err := allocateInTx(tx, alloc, pricing.perUnit)
			if err != nil {
				return err
			}
			r.Allocations = append(r.Allocations, a)
		}
		result = r
		return nil
	})
	if err != nil {
		config.LogError(logger, "Allocator", "Reassign", "reassign device stock", input, err)
		return nil, err
	}
	if logger != nil {
		logger.WithFields(logrus.Fields{
			"category": input.Category,
			"location": input.Location.String(),
			"returned": len(result.Returned.Moved),
			"items":    len(result.Allocations),
		}).Info("device stock reassigned")
	}
	return result, nil
}

// ApplyAllocation dispatches cmd by its Op. The input for any other op is ignored.
func ApplyAllocation(ctx context.Context, db *gorm.DB, logger *logrus.Logger, cmd models.AllocationCommand) (*models.AllocationOutcome, error) {
	missing := func() error {
		return &models.ValidationError{Field: "op", Reason: fmt.Sprintf("no input supplied for %s", cmd.Op)}
	}
	outcome := &models.AllocationOutcome{Op: cmd.Op}
	switch cmd.Op {
	case models.AllocationOpAllocate:
		if cmd.Allocate == nil {
			return nil, missing()
		}
		r, err := Allocate(ctx, db, logger, *cmd.Allocate)
		if err != nil {
			return nil, err
		}
		outcome.Allocation = r
	case models.AllocationOpDeallocate:
		if cmd.Deallocate == nil {
			return nil, missing()
		}
		r, err := Deallocate(ctx, db, logger, *cmd.Deallocate)
		if err != nil {
			return nil, err
		}
		outcome.Allocation = r
	case models.AllocationOpReturn:
		if cmd.Return == nil {
			return nil, missing()
		}
		r, err := Return(ctx, db, logger, *cmd.Return)
		if err != nil {
			return nil, err
		}
		outcome.Return = r
	case models.AllocationOpReassign:
		if cmd.Reassign == nil {
			return nil, missing()
		}
		r, err := Reassign(ctx, db, logger, *cmd.Reassign)
		if err != nil {
			return nil, err
		}
		outcome.Reassign = r
	default:
		return nil, &models.ValidationError{Field: "op", Reason: fmt.Sprintf("unknown allocation op %q", cmd.Op)}
	}
	return outcome, nil
}
