package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/mmdatafocus/assetshop_backend/config"
	"github.com/mmdatafocus/assetshop_backend/workflow"
)

func main() {
	accountID := flag.Int("account-id", 0, "Optional: verify only one account")
	flag.Parse()

	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil)")
		os.Exit(1)
	}

	if *accountID > 0 {
		if err := workflow.VerifyLedgerAccount(ctx, db, *accountID); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Printf("account %d consistent\n", *accountID)
		return
	}

	mismatches, err := workflow.VerifyLedgerAccounts(ctx, db, config.GetLogger())
	if err != nil {
		fmt.Fprintf(os.Stderr, "verification failed: %v\n", err)
		os.Exit(1)
	}
	refs, err := workflow.MultipleLiveEntries(ctx, db)
	if err != nil {
		fmt.Fprintf(os.Stderr, "live entry check failed: %v\n", err)
		os.Exit(1)
	}
	emptyLots, err := workflow.CountEmptyLots(ctx, db)
	if err != nil {
		fmt.Fprintf(os.Stderr, "lot check failed: %v\n", err)
		os.Exit(1)
	}

	for _, m := range mismatches {
		fmt.Printf("account %d (%s): cached=%s journal=%s drift=%s\n", m.AccountID, m.Name, m.Cached, m.Expected, m.Drift())
	}
	for _, ref := range refs {
		fmt.Printf("%s has more than one live journal entry\n", ref)
	}
	if emptyLots > 0 {
		fmt.Printf("%d lots hold zero or negative quantity\n", emptyLots)
	}
	if len(mismatches) > 0 || len(refs) > 0 || emptyLots > 0 {
		os.Exit(1)
	}
	fmt.Println("ledger and stock consistent")
}
