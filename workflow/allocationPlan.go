package workflow

import (
	"github.com/mmdatafocus/assetshop_backend/models"
)

// planConsumption walks the lots of keys oldest-first and takes quantity from them.
// Nothing is written; a shortfall is reported before any step is produced.
func planConsumption(idx *models.LotIndex, keys []models.LotKey, quantity int) ([]models.ConsumedLot, error) {
	available := idx.Available(keys...)
	if available < quantity {
		name, category := "", models.ComponentCategory("")
		if len(keys) > 0 {
			name, category = keys[0].Name, keys[0].Category
		}
		return nil, &models.InsufficientStockError{
			Name:      name,
			Category:  category,
			Available: available,
			Requested: quantity,
		}
	}

	remaining := quantity
	steps := make([]models.ConsumedLot, 0)
	for _, lot := range idx.Merged(keys...) {
		if remaining == 0 {
			break
		}
		if lot.Quantity <= 0 {
			continue
		}
		take := min(lot.Quantity, remaining)
		remaining -= take
		steps = append(steps, models.ConsumedLot{
			RecordID:  lot.ID,
			Location:  lot.Location,
			Taken:     take,
			Remaining: lot.Quantity - take,
			UnitPrice: lot.UnitPrice,
		})
	}
	return steps, nil
}

func sourceKeys(name string, category models.ComponentCategory, sources []models.Location) []models.LotKey {
	keys := make([]models.LotKey, 0, len(sources))
	for _, loc := range sources {
		keys = append(keys, models.LotKey{Name: name, Category: category, Location: loc})
	}
	return keys
}
