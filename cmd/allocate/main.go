package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/mmdatafocus/assetshop_backend/config"
	"github.com/mmdatafocus/assetshop_backend/models"
	"github.com/mmdatafocus/assetshop_backend/utils"
	"github.com/mmdatafocus/assetshop_backend/workflow"
)

func parseLocations(raw string) ([]models.Location, error) {
	var out []models.Location
	for _, part := range strings.Split(raw, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		loc, err := models.ParseLocation(part)
		if err != nil {
			return nil, err
		}
		out = append(out, loc)
	}
	return out, nil
}

// parseItems reads "NAME:QTY,NAME:QTY".
func parseItems(raw string) ([]models.ReassignItem, error) {
	var items []models.ReassignItem
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		i := strings.LastIndex(part, ":")
		if i <= 0 {
			return nil, fmt.Errorf("item %q: expected NAME:QTY", part)
		}
		qty, err := strconv.Atoi(strings.TrimSpace(part[i+1:]))
		if err != nil {
			return nil, fmt.Errorf("item %q: %v", part, err)
		}
		items = append(items, models.ReassignItem{Name: part[:i], Quantity: qty})
	}
	return items, nil
}

func buildCommand(op models.AllocationOp, name, category, from, to, location, items string, qty int, actor string) (models.AllocationCommand, error) {
	cmd := models.AllocationCommand{Op: op}
	cat := models.ComponentCategory(category)
	switch op {
	case models.AllocationOpAllocate:
		sources, err := parseLocations(from)
		if err != nil {
			return cmd, err
		}
		dest, err := models.ParseLocation(to)
		if err != nil {
			return cmd, err
		}
		cmd.Allocate = &models.AllocationInput{Name: name, Category: cat, Sources: sources, Destination: dest, Quantity: qty, Actor: actor}
	case models.AllocationOpDeallocate:
		loc, err := models.ParseLocation(location)
		if err != nil {
			return cmd, err
		}
		cmd.Deallocate = &models.DeallocationInput{Name: name, Category: cat, Location: loc, Quantity: qty, Actor: actor}
	case models.AllocationOpReturn:
		loc, err := models.ParseLocation(location)
		if err != nil {
			return cmd, err
		}
		cmd.Return = &models.ReturnInput{Location: loc, Category: cat, Actor: actor}
	case models.AllocationOpReassign:
		loc, err := models.ParseLocation(location)
		if err != nil {
			return cmd, err
		}
		parsed, err := parseItems(items)
		if err != nil {
			return cmd, err
		}
		cmd.Reassign = &models.ReassignInput{Location: loc, Category: cat, Items: parsed, Actor: actor}
	}
	return cmd, nil
}

func main() {
	opFlag := flag.String("op", "", "allocate | deallocate | return | reassign")
	name := flag.String("name", "", "Component name")
	category := flag.String("category", "", "processor | ram | hdd | ssd")
	from := flag.String("from", "central", "allocate: comma separated source locations")
	to := flag.String("to", "", "allocate: destination location (device serial or central)")
	location := flag.String("location", "", "deallocate/return/reassign: device serial")
	items := flag.String("items", "", "reassign: NAME:QTY,NAME:QTY")
	qty := flag.Int("qty", 0, "Quantity")
	actor := flag.String("actor", "AllocateCLI", "Username recorded on changed rows")
	flag.Parse()

	op, err := models.ParseAllocationOp(*opFlag)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	cmd, err := buildCommand(op, *name, *category, *from, *to, *location, *items, *qty, *actor)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil)")
		os.Exit(1)
	}

	ctx := utils.SetUsernameInContext(context.Background(), *actor)
	outcome, err := workflow.ApplyAllocation(ctx, db, config.GetLogger(), cmd)
	config.CloseRedis()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s failed: %v\n", op, err)
		os.Exit(1)
	}
	out, _ := json.MarshalIndent(outcome, "", "  ")
	fmt.Println(string(out))
}
