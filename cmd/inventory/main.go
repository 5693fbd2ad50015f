/*
main.go - Operations CLI for an inventory-ledger database

PURPOSE:
  Small inspection tool for a ledger database file. Opens the store (which
  migrates the schema), then runs one read-only command. The engine API is
  a library; movements are driven by the application embedding it, not by
  this tool.

COMMANDS:
  migrate                      bring the schema up to date and exit
  balances <location>          quantities on hand at a location
  card <item> <location>       stock card with running balance
  asset <asset-id>             asset state plus movement history
  tickets                      open maintenance tickets, oldest first

EXAMPLES:
  ./inventory -db=./data/inventory.db migrate
  ./inventory -db=./data/inventory.db balances main-store
  ./inventory -db=./data/inventory.db card towel-std main-store
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/warp/inventory-ledger/ledger"
	"github.com/warp/inventory-ledger/store/sqlite"
)

func main() {
	dbPath := flag.String("db", "inventory.db", "SQLite database path")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Error("open database", "path", *dbPath, "err", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx := context.Background()
	args := flag.Args()
	if len(args) == 0 {
		usage()
	}

	switch args[0] {
	case "migrate":
		// New() already migrated; opening successfully is the whole job.
		fmt.Println("schema up to date")

	case "balances":
		if len(args) != 2 {
			usage()
		}
		balances, err := store.BalancesByLocation(ctx, ledger.LocationID(args[1]))
		if err != nil {
			fatal(log, "balances", err)
		}
		for _, b := range balances {
			fmt.Printf("%-24s %12s\n", b.ItemID, b.QtyOnHand)
		}

	case "card":
		if len(args) != 3 {
			usage()
		}
		card, err := ledger.StockCard(ctx, store, ledger.ItemID(args[1]), ledger.LocationID(args[2]))
		if err != nil {
			fatal(log, "stock card", err)
		}
		for _, entry := range card {
			fmt.Printf("%s  %-11s %8s  running %8s\n",
				entry.Movement.RecordedAt.Format("2006-01-02 15:04"),
				entry.Movement.Type, entry.Delta, entry.Running)
		}

	case "asset":
		if len(args) != 2 {
			usage()
		}
		report, err := ledger.AssetHistory(ctx, store, ledger.AssetID(args[1]))
		if err != nil {
			fatal(log, "asset history", err)
		}
		location := "(unplaced)"
		if report.Asset.LocationID != nil {
			location = string(*report.Asset.LocationID)
		}
		fmt.Printf("%s  tag=%s  condition=%s  at=%s\n",
			report.Asset.ID, report.Asset.Tag, report.Asset.Condition, location)
		for _, m := range report.Movements {
			fmt.Printf("  %s  %-11s -> %s\n",
				m.RecordedAt.Format("2006-01-02 15:04"), m.Type, m.ToLocation)
		}

	case "tickets":
		tickets, err := store.OpenTickets(ctx)
		if err != nil {
			fatal(log, "open tickets", err)
		}
		for _, t := range tickets {
			fmt.Printf("%s  %-14s asset=%s  %s\n",
				t.OpenedAt.Format("2006-01-02"), t.Status, t.AssetID, t.Problem)
		}

	default:
		usage()
	}
}

func fatal(log *slog.Logger, op string, err error) {
	log.Error(op, "err", err)
	os.Exit(1)
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: inventory [-db=path] <command>

commands:
  migrate
  balances <location>
  card <item> <location>
  asset <asset-id>
  tickets`)
	os.Exit(2)
}
