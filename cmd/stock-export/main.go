package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/mmdatafocus/assetshop_backend/config"
	"github.com/mmdatafocus/assetshop_backend/models/reports"
)

func main() {
	what := flag.String("what", "stock", "stock | transactions | accounts")
	out := flag.String("out", "export.xlsx", "Output .xlsx path")
	flag.Parse()

	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil)")
		os.Exit(1)
	}

	f, err := os.Create(*out)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create %s: %v\n", *out, err)
		os.Exit(1)
	}

	switch *what {
	case "stock":
		err = reports.ExportComponentRecords(ctx, db, f)
	case "transactions":
		err = reports.ExportLedgerTransactions(ctx, db, f)
	case "accounts":
		err = reports.ExportLedgerAccounts(ctx, db, f)
	default:
		err = fmt.Errorf("unknown export %q", *what)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "export failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("wrote %s\n", *out)
}
