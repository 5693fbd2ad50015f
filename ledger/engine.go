/*
engine.go - Engine wiring and slip input types

PURPOSE:
  The Engine holds the store plus ambient dependencies (logger, clock) and
  exposes the movement operations. Inputs arrive as plain structured
  values from an authorization layer that has already validated the actor
  and approved the action.

LINE VARIANTS:
  A line is either a stock move (quantity) or an asset move (tag). The two
  are separate types behind the sealed LineInput interface so a line can
  never carry both a quantity and an asset reference.
*/
package ledger

import (
	"io"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ENGINE
// =============================================================================

// Engine is the movement/ledger engine. Zero-value Log and Now fall back
// to a discard logger and time.Now.
type Engine struct {
	Store Store
	Log   *slog.Logger
	Now   func() time.Time
}

func NewEngine(store Store) *Engine {
	return &Engine{Store: store}
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now().UTC()
}

func (e *Engine) logger() *slog.Logger {
	if e.Log != nil {
		return e.Log
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// =============================================================================
// SLIP INPUT
// =============================================================================

// SlipInput describes one movement event to be committed atomically.
type SlipInput struct {
	Type         SlipType
	PropertyID   PropertyID
	FromLocation *LocationID // required unless Type is RECEIVE
	ToLocation   LocationID
	DepartmentID DepartmentID
	IssuedByID   string
	ReceivedByID string
	Vendor       string
	SourceSlipID *SlipID // RETURN only
	Lines        []LineInput
	Signature    *SignatureInput // optional sign-off created with the slip
}

// LineInput is either a StockLine or an AssetLine. Sealed.
type LineInput interface {
	lineItem() ItemID
	lineType() ItemType
}

// StockLine moves a positive quantity of a STOCK item.
type StockLine struct {
	ItemID ItemID
	Qty    decimal.Decimal
}

func (l StockLine) lineItem() ItemID   { return l.ItemID }
func (l StockLine) lineType() ItemType { return ItemStock }

// AssetLine moves one tagged unit of an ASSET item. Condition may only be
// set on RETURN slips; elsewhere the asset's condition carries forward.
type AssetLine struct {
	ItemID    ItemID
	AssetID   AssetID
	Condition *Condition
}

func (l AssetLine) lineItem() ItemID   { return l.ItemID }
func (l AssetLine) lineType() ItemType { return ItemAsset }

// SignatureInput attaches a sign-off to a slip.
type SignatureInput struct {
	SignerName   string
	SignerUserID *string
	Method       SignatureMethod
}

// =============================================================================
// INPUT VALIDATION - Before any write
// =============================================================================

func validateSlipInput(in SlipInput) error {
	if _, ok := slipPrefixes[in.Type]; !ok {
		return &ValidationError{Field: "type", Reason: "unknown slip type"}
	}
	if in.ToLocation == "" {
		return &ValidationError{Field: "toLocation", Reason: "is required"}
	}
	if in.Type != SlipReceive {
		if in.FromLocation == nil || *in.FromLocation == "" {
			return &ValidationError{Field: "fromLocation", Reason: "is required for " + string(in.Type)}
		}
	}
	if in.SourceSlipID != nil && in.Type != SlipReturn {
		return &ValidationError{Field: "sourceSlipId", Reason: "only allowed on RETURN slips"}
	}
	if len(in.Lines) == 0 {
		return &ValidationError{Field: "lines", Reason: "must not be empty"}
	}
	for _, line := range in.Lines {
		switch l := line.(type) {
		case StockLine:
			if !l.Qty.IsPositive() {
				return &ValidationError{Field: "lines", Reason: "stock quantity must be positive"}
			}
		case AssetLine:
			if l.AssetID == "" {
				return &ValidationError{Field: "lines", Reason: "asset reference is required"}
			}
			if l.Condition != nil && in.Type != SlipReturn {
				return &ValidationError{Field: "lines", Reason: "condition override only allowed on RETURN slips"}
			}
		default:
			return &ValidationError{Field: "lines", Reason: "unknown line variant"}
		}
	}
	if in.Signature != nil && in.Signature.SignerName == "" {
		return &ValidationError{Field: "signature", Reason: "signer name is required"}
	}
	return nil
}
