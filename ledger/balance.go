/*
balance.go - Stock balance adjuster

PURPOSE:
  Applies one signed quantity delta to a (item, location) balance while
  enforcing the non-negative invariant. This is the ONLY code path that
  writes stock_balances.

CONTRACT:
  - Absence reads as zero; the row is created lazily on first credit.
  - next = current + delta; if next < 0 the adjuster fails with
    InsufficientStockError and the caller's transaction must roll back -
    no partial application of a multi-line slip.
  - The adjuster writes the balance row and its audit event only. Pairing
    the adjustment with a MovementLog entry is the caller's job.

CONCURRENCY:
  GetBalanceForUpdate is a locking read. Two concurrent debits of the same
  balance serialize at the store; they cannot both see the stale quantity
  and both succeed past the invariant.
*/
package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// AdjustBalance applies delta to the (itemID, locationID) balance inside
// tx. Negative results reject with InsufficientStockError.
func AdjustBalance(ctx context.Context, tx Tx, actor Actor, itemID ItemID, locationID LocationID, delta decimal.Decimal, at time.Time) error {
	current, err := tx.GetBalanceForUpdate(ctx, itemID, locationID)
	if err != nil {
		return err
	}

	next := current.Add(delta)
	if next.IsNegative() {
		return &InsufficientStockError{
			ItemID:     itemID,
			LocationID: locationID,
			OnHand:     current,
			Requested:  delta.Neg(),
		}
	}

	if err := tx.UpsertBalance(ctx, itemID, locationID, next, at); err != nil {
		return err
	}

	old := StockBalance{ItemID: itemID, LocationID: locationID, QtyOnHand: current}
	upd := StockBalance{ItemID: itemID, LocationID: locationID, QtyOnHand: next, UpdatedAt: at}
	return WriteAudit(ctx, tx, actor, AuditUpdate, "stock_balance",
		string(itemID)+"@"+string(locationID), old, upd, at)
}
