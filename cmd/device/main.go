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
	action := flag.String("action", "", "register | delete | describe")
	serial := flag.String("serial", "", "Device serial number")
	name := flag.String("name", "", "register: device name")
	model := flag.String("model", "", "register: make and model")
	price := flag.String("price", "0", "register: starting price")
	actor := flag.String("actor", "DeviceCLI", "Username recorded on changed rows")
	flag.Parse()

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil)")
		os.Exit(1)
	}
	logger := config.GetLogger()
	ctx := utils.SetUsernameInContext(context.Background(), *actor)

	switch *action {
	case "register":
		p, err := utils.ParseDecimal(*price)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid price %q: %v\n", *price, err)
			os.Exit(2)
		}
		d, err := workflow.RegisterDevice(ctx, db, logger, models.NewDevice{SerialNo: *serial, Name: *name, MakeAndModel: *model, Price: p}, *actor)
		if err != nil {
			fmt.Fprintf(os.Stderr, "register failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("registered %s (id=%d)\n", d.SerialNo, d.ID)
	case "delete":
		n, err := workflow.DeleteDevice(ctx, db, logger, *serial)
		if err != nil {
			fmt.Fprintf(os.Stderr, "delete failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("deleted %s with %d lots\n", models.NormalizeSerial(*serial), n)
	case "describe":
		loc, err := models.ParseLocation(*serial)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		view, err := workflow.GroupedView(ctx, db, []models.Location{loc})
		if err != nil {
			fmt.Fprintf(os.Stderr, "describe failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(workflow.DeviceDescription(view[loc.String()], loc.String()))
	default:
		fmt.Fprintf(os.Stderr, "unknown action %q\n", *action)
		os.Exit(2)
	}
}
