package reports

import (
	"context"
	"io"

	"github.com/mmdatafocus/assetshop_backend/models"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

const sheetName = "Sheet1"

type ExcelExporter interface {
	GetCellValues() []interface{}
}

type componentRecordRow struct{ models.ComponentRecord }

func (r componentRecordRow) GetCellValues() []interface{} {
	location := "central"
	if r.Location.IsDevice() {
		location = "device"
	}
	return []interface{}{
		r.Name,
		string(r.Category),
		location,
		r.Location.SerialNo,
		r.Quantity,
		r.UnitPrice.StringFixed(2),
		r.LotCode,
		r.ReceivedAt.Format("2006-01-02 15:04:05"),
	}
}

var ComponentRecordHeadings = []string{"name", "category", "location", "serial_no", "quantity", "unit_price", "lot_code", "received_at"}

type ledgerTransactionRow struct{ models.LedgerTransaction }

func (r ledgerTransactionRow) GetCellValues() []interface{} {
	p := r.PaymentBlock()
	var bankAccount interface{} = ""
	if p.BankAccountID != nil {
		bankAccount = *p.BankAccountID
	}
	return []interface{}{
		r.DisplayNumber(),
		string(r.ReferenceType()),
		p.GrandTotal.StringFixed(2),
		p.AmountPaid.StringFixed(2),
		p.AmountChange.StringFixed(2),
		string(p.PaymentType),
		bankAccount,
		string(p.Status),
	}
}

var LedgerTransactionHeadings = []string{"number", "type", "grand_total", "amount_paid", "amount_change", "payment_type", "bank_account_id", "status"}

type ledgerAccountRow struct{ models.LedgerAccount }

func (r ledgerAccountRow) GetCellValues() []interface{} {
	asOf := ""
	if r.AsOfDate != nil {
		asOf = r.AsOfDate.Format("2006-01-02")
	}
	return []interface{}{r.ID, r.Name, r.OpeningBalance.StringFixed(2), r.Balance.StringFixed(2), asOf}
}

var LedgerAccountHeadings = []string{"id", "name", "opening_balance", "balance", "as_of_date"}

// ExportComponentRecords writes every lot, grouped by category and name in FIFO order.
func ExportComponentRecords(ctx context.Context, db *gorm.DB, w io.Writer) error {
	lots, err := models.ListAllLots(db.WithContext(ctx))
	if err != nil {
		return err
	}
	data := make([]ExcelExporter, 0, len(lots))
	for _, l := range lots {
		data = append(data, componentRecordRow{l})
	}
	return exportExcel(w, data, ComponentRecordHeadings...)
}

// ExportLedgerTransactions writes sales, purchases and service bills, in that order.
func ExportLedgerTransactions(ctx context.Context, db *gorm.DB, w io.Writer) error {
	data := make([]ExcelExporter, 0)
	for _, refType := range []models.JournalReferenceType{
		models.JournalReferenceTypeSale,
		models.JournalReferenceTypePurchase,
		models.JournalReferenceTypeServiceBill,
	} {
		docs, err := models.ListLedgerTransactions(db.WithContext(ctx), refType)
		if err != nil {
			return err
		}
		for _, d := range docs {
			data = append(data, ledgerTransactionRow{d})
		}
	}
	return exportExcel(w, data, LedgerTransactionHeadings...)
}

func ExportLedgerAccounts(ctx context.Context, db *gorm.DB, w io.Writer) error {
	accounts, err := models.ListLedgerAccounts(db.WithContext(ctx))
	if err != nil {
		return err
	}
	data := make([]ExcelExporter, 0, len(accounts))
	for _, a := range accounts {
		data = append(data, ledgerAccountRow{a})
	}
	return exportExcel(w, data, LedgerAccountHeadings...)
}

func exportExcel(w io.Writer, data []ExcelExporter, headings ...string) error {
	f := excelize.NewFile()
	defer f.Close()

	for i, h := range headings {
		cellName, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheetName, cellName, h); err != nil {
			return err
		}
	}

	for rowNo, d := range data {
		for i, value := range d.GetCellValues() {
			cellName, err := excelize.CoordinatesToCellName(i+1, rowNo+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheetName, cellName, value); err != nil {
				return err
			}
		}
	}

	return f.Write(w)
}
