package metrics

import (
	"errors"

	"github.com/mmdatafocus/assetshop_backend/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "assetshop"

var (
	// Allocator metrics
	AllocationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "allocations_total",
			Help:      "Total number of allocator operations by outcome",
		},
		[]string{"op", "category", "result"},
	)

	AllocationConflictRetries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "allocation_conflict_retries_total",
		Help:      "Units of work retried after a deadlock or lock-wait timeout",
	})

	// Ledger metrics
	LedgerPostingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_postings_total",
			Help:      "Ledger reconciliations by transaction type and action taken",
		},
		[]string{"reference_type", "action"},
	)

	LedgerMismatchedAccounts = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "ledger_mismatched_accounts",
		Help:      "Accounts whose cached balance disagreed with the journal on the last verification run",
	})

	// Database operation metrics
	DBOperationHistogram = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "db_operation_duration_seconds",
			Help:      "Duration of allocator and ledger units of work in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
)

// Ledger posting actions.
const (
	LedgerActionPosted  = "posted"
	LedgerActionNoop    = "noop"
	LedgerActionSkipped = "skipped"
	LedgerActionVoided  = "voided"
)

// ResultLabel buckets an operation error into a low-cardinality label.
func ResultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	var (
		validationErr   *models.ValidationError
		insufficientErr *models.InsufficientStockError
		notFoundErr     *models.RecordNotFoundError
		conflictErr     *models.ConcurrencyConflictError
		ledgerErr       *models.LedgerInvariantViolationError
	)
	switch {
	case errors.As(err, &validationErr):
		return "validation"
	case errors.As(err, &insufficientErr):
		return "insufficient_stock"
	case errors.As(err, &notFoundErr):
		return "not_found"
	case errors.As(err, &conflictErr):
		return "conflict"
	case errors.As(err, &ledgerErr):
		return "ledger_invariant"
	}
	return "error"
}
