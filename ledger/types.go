/*
Package ledger is the core inventory movement engine.

PURPOSE:
  This package converts user-declared movement slips (receive, issue,
  return, transfer, maintenance) into consistent updates across stock
  balances, asset state, an append-only movement log, and an audit trail.
  Master data (items, locations, people) is managed elsewhere; the engine
  only reads items and owns the mutable state of balances and assets.

KEY CONCEPTS IN THIS FILE (types.go):
  - Item: catalog entry, STOCK (quantity tracked) or ASSET (tag tracked)
  - StockBalance: quantity on hand for one (item, location) pair
  - Asset: one individually tagged physical unit with condition + location
  - Slip / SlipLine: a declared movement event and its per-item lines
  - MovementLog: append-only record of what physically happened
  - AuditEvent: append-only who-did-what trail with value snapshots

DESIGN PRINCIPLES:
  1. Precision: quantities use decimal.Decimal, never floats
  2. Immutability: slips, lines, movements, and audit events are never
     updated after creation; corrections are new movements
  3. Exclusive ownership: only this engine writes Asset condition/location
     and StockBalance quantities
  4. Atomicity: every operation runs inside one storage transaction

SEE ALSO:
  - slip.go: the slip engine (primary entry point)
  - balance.go: stock balance adjuster
  - asset.go: asset state machine
  - store.go: persistence interfaces
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type (
	ItemID       string
	LocationID   string
	AssetID      string
	SlipID       string
	PropertyID   string
	DepartmentID string
)

// Actor is the already-authorized identity performing an operation.
// Authentication and permission checks happen before the engine is called;
// the engine only records who acted.
type Actor struct {
	ID   string
	Name string
}

// =============================================================================
// ITEM - Read-only catalog reference
// =============================================================================

type ItemType string

const (
	ItemStock ItemType = "STOCK" // quantity tracked per location
	ItemAsset ItemType = "ASSET" // individually tagged units
)

// Item is a catalog entry. The engine never mutates items; Type is
// immutable for the life of the item.
type Item struct {
	ID           ItemID
	Name         string
	Type         ItemType
	Unit         string
	ReorderLevel decimal.Decimal
	Active       bool
	CreatedAt    time.Time
}

// =============================================================================
// STOCK BALANCE - Quantity on hand per (item, location)
// =============================================================================

// StockBalance holds the quantity on hand for one (item, location) pair.
//
// INVARIANT: QtyOnHand >= 0 at all times, per location independently.
// Rows are created lazily on first credit and never deleted by the engine.
type StockBalance struct {
	ItemID     ItemID
	LocationID LocationID
	QtyOnHand  decimal.Decimal
	UpdatedAt  time.Time
}

// =============================================================================
// ASSET - Individually tracked unit
// =============================================================================

type Condition string

const (
	ConditionNew              Condition = "NEW"
	ConditionGood             Condition = "GOOD"
	ConditionWorn             Condition = "WORN"
	ConditionDamaged          Condition = "DAMAGED"
	ConditionUnderMaintenance Condition = "UNDER_MAINTENANCE"
	ConditionScrap            Condition = "SCRAP"
)

// Asset is one physical unit of an ASSET-type item. Condition and
// LocationID change together through TransitionAsset and nowhere else.
type Asset struct {
	ID         AssetID
	Tag        string // unique across the system
	ItemID     ItemID
	Condition  Condition
	LocationID *LocationID // nil until first placed
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// =============================================================================
// SLIP - One user-declared movement event
// =============================================================================

type SlipType string

const (
	SlipReceive  SlipType = "RECEIVE"
	SlipIssue    SlipType = "ISSUE"
	SlipReturn   SlipType = "RETURN"
	SlipTransfer SlipType = "TRANSFER"
	SlipMaint    SlipType = "MAINT"
)

// Slip is immutable after creation, except for signatures attached later.
type Slip struct {
	ID           SlipID
	Number       string // unique, generated (type prefix + time token + random suffix)
	Type         SlipType
	PropertyID   PropertyID
	FromLocation *LocationID // nil only for RECEIVE
	ToLocation   LocationID
	DepartmentID DepartmentID
	IssuedByID   string
	ReceivedByID string
	Vendor       string
	SourceSlipID *SlipID // RETURN only: the ISSUE slip being returned against
	CreatedBy    string
	CreatedAt    time.Time
}

// SlipLine is one item's movement within a slip. Exactly one of the
// quantity (STOCK) or the asset reference (ASSET) is meaningful; ItemType
// records which. Immutable after creation.
type SlipLine struct {
	ID        string
	SlipID    SlipID
	ItemID    ItemID
	ItemType  ItemType
	Qty       decimal.Decimal // zero for ASSET lines
	AssetID   *AssetID        // nil for STOCK lines
	Condition *Condition      // condition the asset carried on this move
	CreatedAt time.Time
}

// =============================================================================
// MOVEMENT LOG - Append-only physical history
// =============================================================================

type MovementType string

const (
	MoveReceiveIn MovementType = "RECEIVE_IN"
	MoveIssueOut  MovementType = "ISSUE_OUT"
	MoveReturnIn  MovementType = "RETURN_IN"
	MoveTransfer  MovementType = "TRANSFER"
	MoveMaintOut  MovementType = "MAINT_OUT"
	MoveMaintIn   MovementType = "MAINT_IN"
)

// movementTypeFor maps a slip type to the movement type its lines emit.
// Deterministic: every slip type has exactly one movement type. MAINT_IN
// is emitted only by maintenance closure, never by a slip.
func movementTypeFor(t SlipType) MovementType {
	switch t {
	case SlipReceive:
		return MoveReceiveIn
	case SlipIssue:
		return MoveIssueOut
	case SlipReturn:
		return MoveReturnIn
	case SlipTransfer:
		return MoveTransfer
	case SlipMaint:
		return MoveMaintOut
	}
	return ""
}

// MovementLog records the physical effect of one line. Never updated or
// deleted; this is the canonical history of what happened.
type MovementLog struct {
	ID           string
	Type         MovementType
	ItemID       ItemID
	AssetID      *AssetID
	Qty          decimal.Decimal // zero for asset movements
	FromLocation *LocationID
	ToLocation   LocationID
	Condition    *Condition // resulting asset condition, nil for stock
	SlipID       *SlipID    // nil for maintenance-driven movements
	ActorID      string
	RecordedAt   time.Time
}

// =============================================================================
// SIGNATURE - Optional sign-off on a slip
// =============================================================================

type SignatureMethod string

const (
	SignatureTyped SignatureMethod = "typed"
	SignatureDrawn SignatureMethod = "drawn"
)

// Signature does not affect any ledger invariant; it exists for the paper
// trail only.
type Signature struct {
	ID           string
	SlipID       SlipID
	SignerName   string
	SignerUserID *string
	Method       SignatureMethod
	SignedAt     time.Time
}
