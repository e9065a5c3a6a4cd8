package models

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
)

type ComponentCategory string

const (
	ComponentCategoryProcessor ComponentCategory = "processor"
	ComponentCategoryRam       ComponentCategory = "ram"
	ComponentCategoryHdd       ComponentCategory = "hdd"
	ComponentCategorySsd       ComponentCategory = "ssd"
)

// AllComponentCategories lists categories in display order.
var AllComponentCategories = []ComponentCategory{
	ComponentCategoryProcessor,
	ComponentCategoryRam,
	ComponentCategoryHdd,
	ComponentCategorySsd,
}

func (c ComponentCategory) IsValid() bool {
	switch c {
	case ComponentCategoryProcessor, ComponentCategoryRam, ComponentCategoryHdd, ComponentCategorySsd:
		return true
	}
	return false
}

// ParseComponentCategory trims and lower-cases input ("RAM " -> ram).
func ParseComponentCategory(s string) (ComponentCategory, error) {
	c := ComponentCategory(strings.ToLower(strings.TrimSpace(s)))
	if !c.IsValid() {
		return "", &ValidationError{Field: "category", Reason: fmt.Sprintf("unknown component category %q", s)}
	}
	return c, nil
}

type LocationKind string

const (
	LocationKindCentral LocationKind = "central"
	LocationKindDevice  LocationKind = "device"
)

func (k LocationKind) Value() (driver.Value, error) {
	return string(k), nil
}

func (k *LocationKind) Scan(value interface{}) error {
	var s string
	switch v := value.(type) {
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		return errors.New("location kind must be string")
	}
	switch LocationKind(s) {
	case LocationKindCentral, LocationKindDevice:
		*k = LocationKind(s)
		return nil
	}
	return fmt.Errorf("invalid location kind %q", s)
}

// AllocationOp selects the allocator behavior explicitly; callers never signal it through
// which form fields happen to be present.
type AllocationOp string

const (
	AllocationOpAllocate   AllocationOp = "allocate"
	AllocationOpDeallocate AllocationOp = "deallocate"
	AllocationOpReturn     AllocationOp = "return"
	AllocationOpReassign   AllocationOp = "reassign"
)

func ParseAllocationOp(s string) (AllocationOp, error) {
	switch op := AllocationOp(strings.ToLower(strings.TrimSpace(s))); op {
	case AllocationOpAllocate, AllocationOpDeallocate, AllocationOpReturn, AllocationOpReassign:
		return op, nil
	}
	return "", &ValidationError{Field: "op", Reason: fmt.Sprintf("unknown allocation op %q", s)}
}

type PaymentType string

const (
	PaymentTypeCash   PaymentType = "Cash"
	PaymentTypeCheque PaymentType = "Cheque"
	PaymentTypeBank   PaymentType = "Bank"
)

func (t PaymentType) IsValid() bool {
	switch t {
	case PaymentTypeCash, PaymentTypeCheque, PaymentTypeBank:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentStatusPaid    PaymentStatus = "Paid"
	PaymentStatusUnpaid  PaymentStatus = "Unpaid"
	PaymentStatusBalance PaymentStatus = "Balance"
)

type PaymentMode string

const (
	PaymentModeCash   PaymentMode = "Cash"
	PaymentModeOnline PaymentMode = "Online"
)

type JournalKind string

const (
	JournalKindCredit JournalKind = "credit"
	JournalKindDebit  JournalKind = "debit"
)

// JournalReferenceType names the one transaction table a journal entry points at.
type JournalReferenceType string

const (
	JournalReferenceTypeSale        JournalReferenceType = "sale"
	JournalReferenceTypePurchase    JournalReferenceType = "purchase"
	JournalReferenceTypeServiceBill JournalReferenceType = "servicebill"
)

func ParseJournalReferenceType(s string) (JournalReferenceType, error) {
	switch t := JournalReferenceType(strings.ToLower(strings.TrimSpace(s))); t {
	case JournalReferenceTypeSale, JournalReferenceTypePurchase, JournalReferenceTypeServiceBill:
		return t, nil
	}
	return "", &ValidationError{Field: "reference_type", Reason: fmt.Sprintf("unknown transaction type %q", s)}
}
