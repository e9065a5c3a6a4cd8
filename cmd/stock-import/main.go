package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/mmdatafocus/assetshop_backend/config"
	"github.com/mmdatafocus/assetshop_backend/utils"
	"github.com/mmdatafocus/assetshop_backend/workflow"
)

func main() {
	file := flag.String("file", "", "Path to the .xlsx stock sheet")
	sheet := flag.String("sheet", "", "Optional: sheet name (defaults to the first sheet)")
	actor := flag.String("actor", "StockImport", "Username recorded on created rows")
	flag.Parse()

	if !strings.HasSuffix(strings.ToLower(*file), ".xlsx") {
		fmt.Fprintln(os.Stderr, "invalid file type: only .xlsx files are allowed")
		os.Exit(2)
	}
	f, err := os.Open(*file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open %s: %v\n", *file, err)
		os.Exit(1)
	}
	defer f.Close()

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil)")
		os.Exit(1)
	}

	ctx := utils.SetUsernameInContext(context.Background(), *actor)
	summary, err := workflow.ImportLotsFromExcel(ctx, db, config.GetLogger(), f, *sheet, *actor)
	if err != nil {
		fmt.Fprintf(os.Stderr, "import failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("imported lots=%d devices_created=%d blank_rows=%d\n", summary.Lots, summary.DevicesCreated, summary.BlankRows)
}
