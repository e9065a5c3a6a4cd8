package models

import (
	"github.com/shopspring/decimal"
)

// ChoosePrice returns the minimum unit price among consumed lots, not an average.
// Zero when nothing was consumed.
func ChoosePrice(consumed []ConsumedLot) decimal.Decimal {
	if len(consumed) == 0 {
		return decimal.Zero
	}
	price := consumed[0].UnitPrice
	for _, c := range consumed[1:] {
		if c.UnitPrice.LessThan(price) {
			price = c.UnitPrice
		}
	}
	return price
}

// DeviceDelta is the amount a device price moves for one allocation. Existing data was built
// with a flat delta (the unit price regardless of quantity); perUnit scales it by quantity.
func DeviceDelta(unitPrice decimal.Decimal, quantity int, perUnit bool) decimal.Decimal {
	if perUnit {
		return unitPrice.Mul(decimal.NewFromInt(int64(quantity)))
	}
	return unitPrice
}
