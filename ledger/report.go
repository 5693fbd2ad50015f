/*
report.go - Read-only projections over the movement log

PURPOSE:
  The reporting layer consumes the ledger through these projections. They
  are pure reads: nothing here takes locks or writes, and a slightly stale
  committed view is acceptable.

PROJECTIONS:
  - StockCard: per (item, location) movement history with a running balance
  - AssetHistory: one asset's movements plus its current state
*/
package ledger

import (
	"context"

	"github.com/shopspring/decimal"
)

// =============================================================================
// STOCK CARD
// =============================================================================

// StockCardEntry is one movement as seen from a single location, with the
// running balance after it applied.
type StockCardEntry struct {
	Movement MovementLog
	Delta    decimal.Decimal // signed from the location's point of view
	Running  decimal.Decimal
}

// StockCard replays an item's movements at one location into a running
// balance. The final Running value equals the stored balance.
func StockCard(ctx context.Context, store Store, itemID ItemID, locationID LocationID) ([]StockCardEntry, error) {
	moves, err := store.MovementsByItem(ctx, itemID, locationID)
	if err != nil {
		return nil, err
	}

	entries := make([]StockCardEntry, 0, len(moves))
	running := decimal.Zero
	for _, m := range moves {
		delta := m.Qty
		if m.FromLocation != nil && *m.FromLocation == locationID {
			delta = m.Qty.Neg()
		}
		running = running.Add(delta)
		entries = append(entries, StockCardEntry{Movement: m, Delta: delta, Running: running})
	}
	return entries, nil
}

// =============================================================================
// ASSET HISTORY
// =============================================================================

// AssetHistory pairs an asset's current state with its full movement
// trail, oldest first.
type AssetHistoryReport struct {
	Asset     Asset
	Movements []MovementLog
}

func AssetHistory(ctx context.Context, store Store, id AssetID) (*AssetHistoryReport, error) {
	asset, err := store.GetAsset(ctx, id)
	if err != nil {
		return nil, err
	}
	moves, err := store.MovementsByAsset(ctx, id)
	if err != nil {
		return nil, err
	}
	return &AssetHistoryReport{Asset: *asset, Movements: moves}, nil
}
