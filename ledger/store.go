/*
store.go - Persistence interfaces for the movement engine

PURPOSE:
  Defines the boundary between engine logic and the database. Every engine
  operation runs inside one transaction: the store hands the engine a Tx,
  the engine performs all reads and writes through it, and the store
  commits or rolls back as a unit.

TRANSACTIONAL CONTRACT:
  - WithTx executes fn atomically. fn error => rollback, nil => commit.
  - Reads of contended rows (stock balances, assets) inside a Tx must be
    locking reads: two concurrent debits of the same balance may not both
    observe the stale quantity. SQLite does this with immediate write
    transactions; PostgreSQL would use SELECT ... FOR UPDATE.
  - A store that cannot take its locks in time returns ErrStoreBusy so the
    caller can retry; the engine itself never retries.

APPEND-ONLY TABLES:
  MovementLog and AuditEvent have no update or delete operations, here or
  anywhere. Corrections are new movements.

IMPLEMENTATIONS:
  - store/memory: in-memory, snapshot rollback, for tests and dev
  - store/sqlite: durable, goose-migrated schema

SEE ALSO:
  - slip.go: the engine driving these interfaces
  - report.go: read-only projections built on the Store reads
*/
package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// TX - One atomic unit of engine work
// =============================================================================

// Tx is the transactional context threaded through every sub-operation of
// one engine call. All mutations of balances, assets, slips, movements,
// and audit events go through a Tx; there is no ambient transaction state.
type Tx interface {
	// GetItem loads a catalog item. Returns ErrItemNotFound if absent.
	GetItem(ctx context.Context, id ItemID) (*Item, error)

	// GetBalanceForUpdate returns the quantity on hand for (item, location),
	// taking whatever lock the store needs to make a later UpsertBalance
	// safe against concurrent debits. Absence reads as zero.
	GetBalanceForUpdate(ctx context.Context, itemID ItemID, locationID LocationID) (decimal.Decimal, error)

	// UpsertBalance writes the new quantity, creating the row if absent.
	// at stamps the row; all writes in one engine operation share one time.
	UpsertBalance(ctx context.Context, itemID ItemID, locationID LocationID, qty decimal.Decimal, at time.Time) error

	// GetAssetForUpdate loads an asset with a write lock.
	// Returns ErrAssetNotFound if absent.
	GetAssetForUpdate(ctx context.Context, id AssetID) (*Asset, error)

	// UpdateAsset persists an asset's condition and location. Only the
	// asset state machine calls this.
	UpdateAsset(ctx context.Context, a *Asset) error

	// GetSlip loads a slip header. Returns ErrSlipNotFound if absent.
	GetSlip(ctx context.Context, id SlipID) (*Slip, error)

	// LinesBySlip returns a slip's lines in creation order.
	LinesBySlip(ctx context.Context, id SlipID) ([]SlipLine, error)

	// ReturnLinesBySource returns the lines of every committed RETURN slip
	// whose SourceSlipID is the given ISSUE slip. Return conservation is
	// checked against this set, so it must see all prior returns.
	ReturnLinesBySource(ctx context.Context, source SlipID) ([]SlipLine, error)

	// InsertSlip / InsertLine create the immutable slip records.
	InsertSlip(ctx context.Context, s *Slip) error
	InsertLine(ctx context.Context, l *SlipLine) error

	// AppendMovement adds one movement-log row. Append-only.
	AppendMovement(ctx context.Context, m *MovementLog) error

	// AppendAudit adds one audit row. Append-only.
	AppendAudit(ctx context.Context, e *AuditEvent) error

	// InsertSignature attaches a sign-off to a slip. Returns
	// ErrDuplicateSignature if the signer already signed it.
	InsertSignature(ctx context.Context, s *Signature) error
}

// =============================================================================
// STORE - Transaction factory plus read-only access
// =============================================================================

// Store opens transactions for the engine and serves reads outside them.
// Reads never lock; projections tolerate seeing a committed-but-older view.
type Store interface {
	// WithTx runs fn in one atomic transaction.
	WithTx(ctx context.Context, fn func(Tx) error) error

	GetItem(ctx context.Context, id ItemID) (*Item, error)
	GetAsset(ctx context.Context, id AssetID) (*Asset, error)
	GetSlip(ctx context.Context, id SlipID) (*Slip, error)
	LinesBySlip(ctx context.Context, id SlipID) ([]SlipLine, error)
	SignaturesBySlip(ctx context.Context, id SlipID) ([]Signature, error)

	// GetBalance returns the quantity on hand, zero when no row exists.
	GetBalance(ctx context.Context, itemID ItemID, locationID LocationID) (decimal.Decimal, error)

	// BalancesByLocation lists all balances held at one location.
	BalancesByLocation(ctx context.Context, locationID LocationID) ([]StockBalance, error)

	// MovementsByItem returns movements touching (item, location) in
	// recorded order. locationID "" means all locations.
	MovementsByItem(ctx context.Context, itemID ItemID, locationID LocationID) ([]MovementLog, error)

	// MovementsByAsset returns an asset's full movement history.
	MovementsByAsset(ctx context.Context, id AssetID) ([]MovementLog, error)

	// QueryAudit returns audit events matching the filter, oldest first.
	QueryAudit(ctx context.Context, f AuditFilter) ([]AuditEvent, error)

	// SaveItem and RegisterAsset seed reference data. RegisterAsset only
	// creates new tags; condition/location updates afterwards belong to
	// the engine alone.
	SaveItem(ctx context.Context, it *Item) error
	RegisterAsset(ctx context.Context, a *Asset) error
}
