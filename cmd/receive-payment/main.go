package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/mmdatafocus/assetshop_backend/config"
	"github.com/mmdatafocus/assetshop_backend/models"
	"github.com/mmdatafocus/assetshop_backend/utils"
	"github.com/mmdatafocus/assetshop_backend/workflow"
)

func main() {
	refType := flag.String("type", "", "sale | purchase | servicebill")
	refID := flag.Int("id", 0, "Transaction id")
	amount := flag.String("amount", "", "Amount received, e.g. 1,200.50")
	mode := flag.String("mode", "Cash", "Cash | Online")
	code := flag.String("code", "", "Transaction code for online payments")
	actor := flag.String("actor", "ReceivePaymentCLI", "Username recorded on the payment")
	flag.Parse()

	amt, err := utils.ParseDecimal(*amount)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid amount %q: %v\n", *amount, err)
		os.Exit(2)
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil)")
		os.Exit(1)
	}

	ctx := utils.SetUsernameInContext(context.Background(), *actor)
	doc, err := workflow.ReceivePayment(ctx, db, config.GetLogger(), models.ReceivePaymentInput{
		ReferenceType:   models.JournalReferenceType(*refType),
		ReferenceID:     *refID,
		Amount:          amt,
		Mode:            models.PaymentMode(*mode),
		TransactionCode: *code,
		Actor:           *actor,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "receive payment failed: %v\n", err)
		os.Exit(1)
	}
	p := doc.PaymentBlock()
	fmt.Printf("%s paid=%s due=%s status=%s\n", doc.DisplayNumber(), p.AmountPaid.StringFixed(2), p.AmountChange.StringFixed(2), p.Status)
}
