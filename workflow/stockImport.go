package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/mmdatafocus/assetshop_backend/config"
	"github.com/mmdatafocus/assetshop_backend/models"
	"github.com/mmdatafocus/assetshop_backend/utils"
	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

type ImportSummary struct {
	Lots           int `json:"lots"`
	DevicesCreated int `json:"devices_created"`
	BlankRows      int `json:"blank_rows"`
}

type importColumns struct {
	name, category, location, quantity, price, lotCode int
}

// matchers are checked in order; a header fills the first unset column whose fragment it contains.
var importHeaderMatchers = []struct {
	fragments []string
	field     func(c *importColumns) *int
}{
	{[]string{"categ", "type"}, func(c *importColumns) *int { return &c.category }},
	{[]string{"serial", "location"}, func(c *importColumns) *int { return &c.location }},
	{[]string{"qty", "quantity"}, func(c *importColumns) *int { return &c.quantity }},
	{[]string{"price", "cost", "rate"}, func(c *importColumns) *int { return &c.price }},
	{[]string{"lot", "code", "batch"}, func(c *importColumns) *int { return &c.lotCode }},
	{[]string{"name", "item", "component"}, func(c *importColumns) *int { return &c.name }},
}

func locateImportColumns(header []string) (importColumns, error) {
	cols := importColumns{-1, -1, -1, -1, -1, -1}
	for i, raw := range header {
		h := strings.ToLower(strings.TrimSpace(raw))
		if h == "" {
			continue
		}
	matchers:
		for _, m := range importHeaderMatchers {
			target := m.field(&cols)
			if *target >= 0 {
				continue
			}
			for _, f := range m.fragments {
				if strings.Contains(h, f) {
					*target = i
					break matchers
				}
			}
		}
	}
	switch {
	case cols.name < 0:
		return cols, &models.ValidationError{Field: "header", Reason: "no name column"}
	case cols.category < 0:
		return cols, &models.ValidationError{Field: "header", Reason: "no category column"}
	case cols.quantity < 0:
		return cols, &models.ValidationError{Field: "header", Reason: "no quantity column"}
	}
	return cols, nil
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// ReadLotsFromExcel parses a stock sheet into seed rows. The first row is the header and
// columns are located by header text. A blank location means the central pool. An empty sheet
// name reads the first sheet.
func ReadLotsFromExcel(r io.Reader, sheet string) ([]models.NewLot, int, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open Excel file: %v", err)
	}
	defer f.Close()

	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, 0, fmt.Errorf("unable to read sheet: %v", err)
	}
	if len(rows) == 0 {
		return nil, 0, &models.ValidationError{Field: "header", Reason: "sheet is empty"}
	}
	cols, err := locateImportColumns(rows[0])
	if err != nil {
		return nil, 0, err
	}

	lots := make([]models.NewLot, 0, len(rows)-1)
	blank := 0
	for idx, row := range rows[1:] {
		rowNo := idx + 2
		name := cell(row, cols.name)
		if name == "" && cell(row, cols.quantity) == "" {
			blank++
			continue
		}
		qty, err := utils.ParseDecimal(cell(row, cols.quantity))
		if err != nil || !qty.IsInteger() {
			return nil, blank, &models.ValidationError{Field: "quantity", Reason: fmt.Sprintf("row %d: quantity %q is not a whole number", rowNo, cell(row, cols.quantity))}
		}
		price, err := utils.ParseDecimalOrZero(cell(row, cols.price))
		if err != nil {
			return nil, blank, &models.ValidationError{Field: "unit_price", Reason: fmt.Sprintf("row %d: price %q is not a number", rowNo, cell(row, cols.price))}
		}
		location := cell(row, cols.location)
		if location == "" {
			location = models.Central().String()
		}
		lots = append(lots, models.NewLot{
			Name:      name,
			Category:  cell(row, cols.category),
			Location:  location,
			Quantity:  int(qty.IntPart()),
			UnitPrice: price,
			LotCode:   cell(row, cols.lotCode),
		})
	}
	return lots, blank, nil
}

// ImportLotsFromExcel reads a stock sheet and seeds every row in one transaction, registering
// devices for serials seen for the first time.
func ImportLotsFromExcel(ctx context.Context, db *gorm.DB, logger *logrus.Logger, r io.Reader, sheet string, actor string) (*ImportSummary, error) {
	actor = actorFor(ctx, actor)
	ctx = utils.WithActor(ctx, actor)

	lots, blank, err := ReadLotsFromExcel(r, sheet)
	if err != nil {
		config.LogError(logger, "StockImport", "ImportLotsFromExcel", "read sheet", sheet, err)
		return nil, err
	}
	records, err := prepareLots(lots, actor)
	if err != nil {
		config.LogError(logger, "StockImport", "ImportLotsFromExcel", "validate rows", sheet, err)
		return nil, err
	}

	summary := &ImportSummary{Lots: len(records), BlankRows: blank}
	if len(records) == 0 {
		return summary, nil
	}
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seen := make(map[string]bool)
		for _, rec := range records {
			serial := rec.Location.SerialNo
			if !rec.Location.IsDevice() || seen[serial] {
				continue
			}
			seen[serial] = true
			_, err := models.GetDevice(tx, serial)
			var notFound *models.RecordNotFoundError
			if errors.As(err, &notFound) {
				if _, err := models.CreateDevice(tx, models.NewDevice{SerialNo: serial}, actor); err != nil {
					return err
				}
				summary.DevicesCreated++
				continue
			}
			if err != nil {
				return err
			}
		}
		return seedLotsInTx(tx, records)
	})
	if err != nil {
		config.LogError(logger, "StockImport", "ImportLotsFromExcel", "seed lots", sheet, err)
		return nil, err
	}
	if logger != nil {
		logger.WithFields(logrus.Fields{
			"lots":            summary.Lots,
			"devices_created": summary.DevicesCreated,
			"blank_rows":      summary.BlankRows,
		}).Info("stock sheet imported")
	}
	return summary, nil
}
