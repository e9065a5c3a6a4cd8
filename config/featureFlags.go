package config

import (
	"os"
	"strings"
	"time"
)

// DevicePriceDeltaPerUnit scales the device price delta of an allocation by its quantity.
//
// Default OFF: a device's price moves by one unit price per allocation regardless of quantity,
// which is how existing device prices were accumulated. Turn on only after product sign-off.
//
// Set via env:
// - DEVICE_PRICE_DELTA_PER_UNIT=true
func DevicePriceDeltaPerUnit() bool {
	return boolFromEnv("DEVICE_PRICE_DELTA_PER_UNIT")
}

// DevicePriceDecrementOnReturn lowers a device's price when a category is returned to the
// central pool, by one delta per returned lot.
//
// Default OFF: a return only moves stock, the device price keeps what its allocations added.
//
// Set via env:
// - DEVICE_PRICE_DECREMENT_ON_RETURN=true
func DevicePriceDecrementOnReturn() bool {
	return boolFromEnv("DEVICE_PRICE_DECREMENT_ON_RETURN")
}

// LedgerReverseOnPaymentTypeChange reverses a transaction's bank posting when its payment type
// moves away from Bank.
//
// Default OFF: the earlier bank posting stays on the account until the business confirms
// the expected behavior.
//
// Set via env:
// - LEDGER_REVERSE_ON_PAYMENT_TYPE_CHANGE=true
func LedgerReverseOnPaymentTypeChange() bool {
	return boolFromEnv("LEDGER_REVERSE_ON_PAYMENT_TYPE_CHANGE")
}

// AllocationConflictRetries is how many extra attempts a unit of work gets after a deadlock
// or lock-wait timeout. ALLOCATION_CONFLICT_RETRIES, default 3.
func AllocationConflictRetries() int {
	n := IntFromEnv("ALLOCATION_CONFLICT_RETRIES", 3)
	if n < 0 {
		return 0
	}
	return n
}

// AllocationLockTTL bounds how long a component-key redis lock is held.
// ALLOCATION_LOCK_TTL_SECONDS, default 15.
func AllocationLockTTL() time.Duration {
	n := IntFromEnv("ALLOCATION_LOCK_TTL_SECONDS", 15)
	if n <= 0 {
		n = 15
	}
	return time.Duration(n) * time.Second
}

func boolFromEnv(key string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}
