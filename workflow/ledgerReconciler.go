package workflow

import (
	"context"
	"fmt"

	"github.com/mmdatafocus/assetshop_backend/config"
	"github.com/mmdatafocus/assetshop_backend/metrics"
	"github.com/mmdatafocus/assetshop_backend/models"
	"github.com/mmdatafocus/assetshop_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"
)

func correlationIDFromTx(tx *gorm.DB) string {
	var ctx context.Context
	if tx != nil && tx.Statement != nil {
		ctx = tx.Statement.Context
	}
	return utils.CorrelationIdFromContextOrNew(ctx)
}

// OnSave brings the bank ledger in line with doc's current payment block. It must run inside
// the caller's transaction, after doc has been persisted.
//
// Only Bank payments with an account carry a balance effect. A transaction keeps at most one
// live journal entry; when that entry already matches (same account, same amount) nothing is
// written, otherwise it is reversed and a fresh credit is appended.
//
// prev is the payment block as it was before this save, nil on create. A move away from Bank
// keeps the earlier posting unless LEDGER_REVERSE_ON_PAYMENT_TYPE_CHANGE is on.
func OnSave(tx *gorm.DB, logger *logrus.Logger, doc models.LedgerTransaction, prev *models.Payment) error {
	p := doc.PaymentBlock()
	refType, refID := doc.ReferenceType(), doc.ReferenceID()
	if refID == 0 {
		return fmt.Errorf("ledger on save: %s has no id", refType)
	}
	correlationID := correlationIDFromTx(tx)

	if !p.AffectsBank() {
		if prev != nil && prev.AffectsBank() && config.LedgerReverseOnPaymentTypeChange() {
			n, err := reverseLiveEntries(tx, refType, refID, nil, "payment type changed to "+string(p.PaymentType), correlationID)
			if err != nil {
				return err
			}
			if n > 0 {
				metrics.LedgerPostingsTotal.WithLabelValues(string(refType), metrics.LedgerActionVoided).Inc()
				return nil
			}
		}
		metrics.LedgerPostingsTotal.WithLabelValues(string(refType), metrics.LedgerActionSkipped).Inc()
		return nil
	}

	accountID := *p.BankAccountID
	live, err := models.LockLiveJournalEntries(tx, refType, refID)
	if err != nil {
		return err
	}
	ids := []int{accountID}
	for _, e := range live {
		ids = append(ids, e.AccountID)
	}
	accounts, err := models.LockLedgerAccounts(tx, ids...)
	if err != nil {
		return err
	}

	if len(live) == 1 && live[0].AccountID == accountID && live[0].Amount.Equal(p.AmountPaid) {
		metrics.LedgerPostingsTotal.WithLabelValues(string(refType), metrics.LedgerActionNoop).Inc()
		return nil
	}

	for i := range live {
		if _, err := ReverseJournalEntry(tx, &live[i], accounts[live[i].AccountID], "payment updated", correlationID); err != nil {
			return err
		}
	}

	entry := models.JournalEntry{
		AccountID:     accountID,
		ReferenceType: refType,
		ReferenceID:   refID,
		Kind:          models.JournalKindCredit,
		Amount:        p.AmountPaid,
		Note:          "Payment for " + doc.DisplayNumber(),
		CorrelationID: correlationID,
	}
	if err := tx.Create(&entry).Error; err != nil {
		return err
	}
	if err := accounts[accountID].AdjustBalance(tx, entry.Signed()); err != nil {
		return err
	}
	metrics.LedgerPostingsTotal.WithLabelValues(string(refType), metrics.LedgerActionPosted).Inc()

	if logger != nil {
		logger.WithFields(logrus.Fields{
			"reference":      models.ReferenceLabel(refType, refID),
			"account_id":     accountID,
			"amount":         p.AmountPaid.String(),
			"reversed":       len(live),
			"correlation_id": correlationID,
		}).Info("ledger posted")
	}
	return nil
}

// reverseLiveEntries reverses every live entry of a transaction. accounts may be nil, in which
// case the owning accounts are locked here.
func reverseLiveEntries(tx *gorm.DB, refType models.JournalReferenceType, refID int, accounts map[int]*models.LedgerAccount, reason string, correlationID string) (int, error) {
	live, err := models.LockLiveJournalEntries(tx, refType, refID)
	if err != nil || len(live) == 0 {
		return 0, err
	}
	if accounts == nil {
		ids := make([]int, 0, len(live))
		for _, e := range live {
			ids = append(ids, e.AccountID)
		}
		if accounts, err = models.LockLedgerAccounts(tx, ids...); err != nil {
			return 0, err
		}
	}
	for i := range live {
		if _, err := ReverseJournalEntry(tx, &live[i], accounts[live[i].AccountID], reason, correlationID); err != nil {
			return 0, err
		}
	}
	return len(live), nil
}

func SaveSale(ctx context.Context, db *gorm.DB, logger *logrus.Logger, sale *models.Sale) error {
	return saveLedgerTransaction(ctx, db, logger, sale, "SaveSale")
}

func SavePurchase(ctx context.Context, db *gorm.DB, logger *logrus.Logger, purchase *models.Purchase) error {
	return saveLedgerTransaction(ctx, db, logger, purchase, "SavePurchase")
}

func SaveServiceBill(ctx context.Context, db *gorm.DB, logger *logrus.Logger, bill *models.ServiceBill) error {
	return saveLedgerTransaction(ctx, db, logger, bill, "SaveServiceBill")
}

// saveLedgerTransaction creates or updates doc and reconciles the ledger in one transaction.
// Status is always derived from the amounts.
func saveLedgerTransaction(ctx context.Context, db *gorm.DB, logger *logrus.Logger, doc models.LedgerTransaction, funcName string) (err error) {
	ctx, span := tracer.Start(ctx, "workflow."+funcName)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	p := doc.PaymentBlock()
	ref := models.ReferenceLabel(doc.ReferenceType(), doc.ReferenceID())
	if err = p.Validate(ref); err != nil {
		return err
	}
	p.Status = models.ComputeStatus(p.AmountPaid, p.GrandTotal)
	ctx = utils.SetCorrelationIdInContext(ctx, utils.CorrelationIdFromContextOrNew(ctx))
	span.SetAttributes(attribute.String("reference", ref))

	// a rolled-back insert leaves its auto-increment id on doc; each attempt starts clean
	isNew := doc.ReferenceID() == 0
	err = runUnitOfWork(ctx, db, logger, "ledger_save", nil, func(tx *gorm.DB) error {
		var prev *models.Payment
		if isNew {
			doc.ResetID()
			if err := tx.Create(doc).Error; err != nil {
				return err
			}
		} else {
			old, err := models.LockLedgerTransaction(tx, doc.ReferenceType(), doc.ReferenceID())
			if err != nil {
				return err
			}
			snapshot := *old.PaymentBlock()
			prev = &snapshot
			if err := tx.Model(doc).Select("*").Omit("id", "created_at", "created_by").Updates(doc).Error; err != nil {
				return err
			}
		}
		return OnSave(tx, logger, doc, prev)
	})
	if err != nil {
		if isNew {
			doc.ResetID()
		}
		config.LogError(logger, "LedgerReconciler", funcName, "save transaction", ref, err)
		return err
	}
	return nil
}

// ReceivePayment adds a partial payment to a document, re-derives its balance fields and
// status, reconciles the ledger and records the payment, all in one transaction.
func ReceivePayment(ctx context.Context, db *gorm.DB, logger *logrus.Logger, input models.ReceivePaymentInput) (doc models.LedgerTransaction, err error) {
	ctx, span := tracer.Start(ctx, "workflow.ReceivePayment")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	refType, err := models.ParseJournalReferenceType(string(input.ReferenceType))
	if err != nil {
		return nil, err
	}
	input.ReferenceType = refType
	if err = validateInput(&input); err != nil {
		return nil, err
	}
	if !input.Amount.IsPositive() {
		err = &models.ValidationError{Field: "amount", Reason: "payment amount must be greater than zero"}
		return nil, err
	}
	if input.Mode == "" {
		input.Mode = models.PaymentModeCash
	}
	input.Actor = actorFor(ctx, input.Actor)
	ctx = utils.WithActor(ctx, input.Actor)
	ctx = utils.SetCorrelationIdInContext(ctx, utils.CorrelationIdFromContextOrNew(ctx))
	ref := models.ReferenceLabel(input.ReferenceType, input.ReferenceID)
	span.SetAttributes(attribute.String("reference", ref), attribute.String("amount", input.Amount.String()))

	err = runUnitOfWork(ctx, db, logger, "receive_payment", nil, func(tx *gorm.DB) error {
		d, err := models.LockLedgerTransaction(tx, input.ReferenceType, input.ReferenceID)
		if err != nil {
			return err
		}
		p := d.PaymentBlock()
		prev := *p
		p.AmountPaid = p.AmountPaid.Add(input.Amount)
		p.AmountChange = decimal.Max(p.GrandTotal.Sub(p.AmountPaid), decimal.Zero)
		p.Status = models.ComputeStatus(p.AmountPaid, p.GrandTotal)
		if err := p.Validate(ref); err != nil {
			return err
		}
		if err := tx.Model(d).Updates(map[string]interface{}{
			"amount_paid":   p.AmountPaid,
			"amount_change": p.AmountChange,
			"status":        p.Status,
		}).Error; err != nil {
			return err
		}
		if err := OnSave(tx, logger, d, &prev); err != nil {
			return err
		}

		record := models.PaymentRecord{
			ReferenceType:   input.ReferenceType,
			ReferenceID:     input.ReferenceID,
			Amount:          input.Amount,
			PaymentMode:     input.Mode,
			TransactionCode: input.TransactionCode,
			CreatedBy:       input.Actor,
		}
		if p.AffectsBank() {
			accountID := *p.BankAccountID
			record.LedgerAccountID = &accountID
		}
		if err := tx.Create(&record).Error; err != nil {
			return err
		}
		doc = d
		return nil
	})
	if err != nil {
		config.LogError(logger, "LedgerReconciler", "ReceivePayment", "receive payment", input, err)
		return nil, err
	}
	if logger != nil {
		logger.WithFields(logrus.Fields{
			"reference": ref,
			"amount":    input.Amount.String(),
			"status":    doc.PaymentBlock().Status,
		}).Info("payment received")
	}
	return doc, nil
}

// DeleteLedgerTransaction removes a document and reverses whatever it still has posted.
// The journal keeps the full history.
func DeleteLedgerTransaction(ctx context.Context, db *gorm.DB, logger *logrus.Logger, refType models.JournalReferenceType, id int) error {
	ctx = utils.SetCorrelationIdInContext(ctx, utils.CorrelationIdFromContextOrNew(ctx))
	ref := models.ReferenceLabel(refType, id)
	err := runUnitOfWork(ctx, db, logger, "ledger_delete", nil, func(tx *gorm.DB) error {
		doc, err := models.LockLedgerTransaction(tx, refType, id)
		if err != nil {
			return err
		}
		n, err := reverseLiveEntries(tx, refType, id, nil, "transaction deleted", correlationIDFromTx(tx))
		if err != nil {
			return err
		}
		if n > 0 {
			metrics.LedgerPostingsTotal.WithLabelValues(string(refType), metrics.LedgerActionVoided).Inc()
		}
		return tx.Delete(doc).Error
	})
	if err != nil {
		config.LogError(logger, "LedgerReconciler", "DeleteLedgerTransaction", "delete transaction", ref, err)
		return err
	}
	return nil
}
