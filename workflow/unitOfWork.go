package workflow

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/bsm/redislock"
	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/mmdatafocus/assetshop_backend/config"
	"github.com/mmdatafocus/assetshop_backend/metrics"
	"github.com/mmdatafocus/assetshop_backend/models"
	"github.com/mmdatafocus/assetshop_backend/utils"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("assetshop/workflow")

// locker resolves the shared client lazily so config can connect redis first.
var locker = func() *redislock.Client { return config.GetRedisLock() }

const (
	mysqlErrLockWaitTimeout = 1205
	mysqlErrDeadlock        = 1213
)

func isRetryableLockError(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == mysqlErrDeadlock || mysqlErr.Number == mysqlErrLockWaitTimeout
	}
	return false
}

func asConflict(err error, resource string) error {
	if err == nil {
		return nil
	}
	var conflict *models.ConcurrencyConflictError
	if errors.As(err, &conflict) {
		return err
	}
	if isRetryableLockError(err) {
		return &models.ConcurrencyConflictError{Resource: resource, Err: err}
	}
	return err
}

// obtainKeyLocks takes every redis key lock in sorted order. With redis disabled it does nothing.
func obtainKeyLocks(ctx context.Context, keys []string) (func(), error) {
	client := locker()
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)

	releases := make([]func(), 0, len(sorted))
	releaseAll := func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}
	var last string
	for _, key := range sorted {
		if key == last {
			continue
		}
		last = key
		release, err := utils.ObtainKeyLock(ctx, client, key, config.AllocationLockTTL())
		if err != nil {
			releaseAll()
			return func() {}, &models.ConcurrencyConflictError{Resource: key, Err: err}
		}
		releases = append(releases, release)
	}
	return releaseAll, nil
}

// runUnitOfWork runs fn in one transaction under the given key locks, retrying the whole
// transaction when MySQL reports a deadlock or lock-wait timeout.
func runUnitOfWork(ctx context.Context, db *gorm.DB, logger *logrus.Logger, operation string, lockKeys []string, fn func(tx *gorm.DB) error) error {
	start := time.Now()
	defer func() {
		metrics.DBOperationHistogram.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}()

	release, err := obtainKeyLocks(ctx, lockKeys)
	if err != nil {
		return err
	}
	defer release()

	attempts := config.AllocationConflictRetries() + 1
	for attempt := 1; ; attempt++ {
		err = asConflict(db.WithContext(ctx).Transaction(fn), operation)

		var conflict *models.ConcurrencyConflictError
		if err == nil || !errors.As(err, &conflict) || attempt >= attempts {
			return err
		}
		metrics.AllocationConflictRetries.Inc()
		if logger != nil {
			logger.WithFields(logrus.Fields{
				"operation": operation,
				"attempt":   attempt,
			}).Warn("lock conflict, retrying unit of work")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt*25) * time.Millisecond):
		}
	}
}
