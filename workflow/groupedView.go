package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/mmdatafocus/assetshop_backend/models"
	"gorm.io/gorm"
)

// GroupedView summarises the stock at each location as "<NAME> X(<qty>)" per category.
// Quantities are summed per name; names keep the FIFO order of their oldest lot.
// Result keys are Location.String() values.
func GroupedView(ctx context.Context, db *gorm.DB, locations []models.Location) (map[string]models.CategoryGroups, error) {
	lots, err := models.ListLotsAt(db.WithContext(ctx), locations)
	if err != nil {
		return nil, err
	}
	idx := models.NewLotIndex(lots)

	view := make(map[string]models.CategoryGroups, len(locations))
	for _, loc := range locations {
		view[loc.String()] = models.CategoryGroups{
			Processors: []string{},
			Rams:       []string{},
			Hdds:       []string{},
			Ssds:       []string{},
		}
	}
	for _, key := range idx.Keys() {
		entry := fmt.Sprintf("%s X(%d)", key.Name, idx.Available(key))
		groups := view[key.Location.String()]
		switch key.Category {
		case models.ComponentCategoryProcessor:
			groups.Processors = append(groups.Processors, entry)
		case models.ComponentCategoryRam:
			groups.Rams = append(groups.Rams, entry)
		case models.ComponentCategoryHdd:
			groups.Hdds = append(groups.Hdds, entry)
		case models.ComponentCategorySsd:
			groups.Ssds = append(groups.Ssds, entry)
		}
		view[key.Location.String()] = groups
	}
	return view, nil
}

// DeviceDescription renders a device's components as a sale line description, one
// "<CATEGORY>: a, b (SERIAL)<br>" segment per non-empty category.
func DeviceDescription(groups models.CategoryGroups, serial string) string {
	var b strings.Builder
	sections := []struct {
		label   string
		entries []string
	}{
		{"PROCESSOR", groups.Processors},
		{"RAM", groups.Rams},
		{"HDD", groups.Hdds},
		{"SSD", groups.Ssds},
	}
	for _, s := range sections {
		if len(s.entries) == 0 {
			continue
		}
		fmt.Fprintf(&b, "%s: %s (%s)<br>", s.label, strings.Join(s.entries, ", "), models.NormalizeSerial(serial))
	}
	return b.String()
}
