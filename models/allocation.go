package models

import (
	"strings"

	"github.com/shopspring/decimal"
)

type AllocationInput struct {
	Name        string            `json:"name" validate:"required"`
	Category    ComponentCategory `json:"category" validate:"required,oneof=processor ram hdd ssd"`
	Sources     []Location        `json:"sources" validate:"required,min=1"`
	Destination Location          `json:"destination"`
	Quantity    int               `json:"quantity" validate:"gt=0"`
	Actor       string            `json:"actor"`
}

// Normalize canonicalises name and category in place.
func (in *AllocationInput) Normalize() {
	in.Name = NormalizeComponentName(in.Name)
	in.Category = ComponentCategory(strings.ToLower(strings.TrimSpace(string(in.Category))))
}

type DeallocationInput struct {
	Name     string            `json:"name" validate:"required"`
	Category ComponentCategory `json:"category" validate:"required,oneof=processor ram hdd ssd"`
	Location Location          `json:"location"`
	Quantity int               `json:"quantity" validate:"gt=0"`
	Actor    string            `json:"actor"`
}

func (in *DeallocationInput) Normalize() {
	in.Name = NormalizeComponentName(in.Name)
	in.Category = ComponentCategory(strings.ToLower(strings.TrimSpace(string(in.Category))))
}

type ReturnInput struct {
	Location Location          `json:"location"`
	Category ComponentCategory `json:"category" validate:"required,oneof=processor ram hdd ssd"`
	Actor    string            `json:"actor"`
}

type ReassignItem struct {
	Name     string `json:"name" validate:"required"`
	Quantity int    `json:"quantity" validate:"gt=0"`
}

// ReassignInput replaces everything of Category at Location with Items taken from central.
type ReassignInput struct {
	Location Location          `json:"location"`
	Category ComponentCategory `json:"category" validate:"required,oneof=processor ram hdd ssd"`
	Items    []ReassignItem    `json:"items" validate:"dive"`
	Actor    string            `json:"actor"`
}

// AllocationCommand carries one allocator request; Op alone selects the behavior and only the
// matching input is read.
type AllocationCommand struct {
	Op         AllocationOp
	Allocate   *AllocationInput
	Deallocate *DeallocationInput
	Return     *ReturnInput
	Reassign   *ReassignInput
}

type ConsumedLot struct {
	RecordID  int             `json:"record_id"`
	Location  Location        `json:"location"`
	Taken     int             `json:"taken"`
	Remaining int             `json:"remaining"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type AllocationResult struct {
	DestinationRecordID int             `json:"destination_record_id"`
	UnitPrice           decimal.Decimal `json:"unit_price"`
	PriceDelta          decimal.Decimal `json:"price_delta"`
	Consumed            []ConsumedLot   `json:"consumed"`
}

type MovedLot struct {
	Name                string          `json:"name"`
	Quantity            int             `json:"quantity"`
	UnitPrice           decimal.Decimal `json:"unit_price"`
	SourceRecordID      int             `json:"source_record_id"`
	DestinationRecordID int             `json:"destination_record_id"`
}

type ReturnResult struct {
	Moved      []MovedLot      `json:"moved"`
	PriceDelta decimal.Decimal `json:"price_delta"`
}

type ReassignResult struct {
	Returned    *ReturnResult       `json:"returned"`
	Allocations []*AllocationResult `json:"allocations"`
}

// AllocationOutcome is what ApplyAllocation returns; exactly one field is set, matching Op.
type AllocationOutcome struct {
	Op         AllocationOp      `json:"op"`
	Allocation *AllocationResult `json:"allocation,omitempty"`
	Return     *ReturnResult     `json:"return,omitempty"`
	Reassign   *ReassignResult   `json:"reassign,omitempty"`
}

// CategoryGroups is the per-location display summary, one "<NAME> X(<qty>)" string per name.
type CategoryGroups struct {
	Processors []string `json:"processors"`
	Rams       []string `json:"rams"`
	Hdds       []string `json:"hdds"`
	Ssds       []string `json:"ssds"`
}
