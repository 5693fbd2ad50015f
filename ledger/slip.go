/*
slip.go - The slip engine

PURPOSE:
  CreateSlip is the primary entry point of the ledger: one user-declared
  slip in, consistent updates to balances, assets, movement log, and audit
  trail out - or nothing at all.

ALGORITHM (one atomic transaction):
  1. RETURN slips: validate the source ISSUE slip and aggregate what it
     issued; over-returns and foreign assets reject here.
  2. Create the slip header with a generated number.
  3. Per line, in input order: resolve the item, then debit/credit
     balances (stock) or transition the asset (asset), persist the line,
     and append the paired movement entry.
  4. Attach the signature, if supplied.
  5. Append one audit event summarizing the slip.

  Any failure anywhere rolls the whole slip back; a five-line slip whose
  fourth line overdraws a balance persists nothing.

MOVEMENT TYPES (by slip type):
  RECEIVE->RECEIVE_IN, ISSUE->ISSUE_OUT, RETURN->RETURN_IN,
  TRANSFER->TRANSFER, MAINT->MAINT_OUT.
*/
package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// CREATE SLIP
// =============================================================================

// CreateSlip validates in, then commits the whole movement atomically and
// returns the persisted slip.
func (e *Engine) CreateSlip(ctx context.Context, actor Actor, in SlipInput) (*Slip, error) {
	if err := validateSlipInput(in); err != nil {
		return nil, err
	}

	now := e.now()
	slip := &Slip{
		ID:           SlipID(uuid.NewString()),
		Number:       NewSlipNumber(in.Type, now),
		Type:         in.Type,
		PropertyID:   in.PropertyID,
		FromLocation: in.FromLocation,
		ToLocation:   in.ToLocation,
		DepartmentID: in.DepartmentID,
		IssuedByID:   in.IssuedByID,
		ReceivedByID: in.ReceivedByID,
		Vendor:       in.Vendor,
		SourceSlipID: in.SourceSlipID,
		CreatedBy:    actor.ID,
		CreatedAt:    now,
	}

	err := e.Store.WithTx(ctx, func(tx Tx) error {
		if in.SourceSlipID != nil {
			if err := e.checkReturnSource(ctx, tx, slip, in.Lines); err != nil {
				return err
			}
		}

		if err := tx.InsertSlip(ctx, slip); err != nil {
			return err
		}

		mt := movementTypeFor(in.Type)
		for _, line := range in.Lines {
			if err := e.applyLine(ctx, tx, actor, slip, mt, line, now); err != nil {
				return err
			}
		}

		if in.Signature != nil {
			if err := tx.InsertSignature(ctx, &Signature{
				ID:           newEventID(),
				SlipID:       slip.ID,
				SignerName:   in.Signature.SignerName,
				SignerUserID: in.Signature.SignerUserID,
				Method:       in.Signature.Method,
				SignedAt:     now,
			}); err != nil {
				return err
			}
		}

		summary := slipSummary{
			Number:    slip.Number,
			Type:      slip.Type,
			LineCount: len(in.Lines),
			Signed:    in.Signature != nil,
		}
		return WriteAudit(ctx, tx, actor, AuditCreate, "slip", string(slip.ID), nil, summary, now)
	})
	if err != nil {
		countViolation(err)
		e.logger().Warn("slip rejected", "type", in.Type, "err", err)
		return nil, err
	}

	slipsCreated.WithLabelValues(string(in.Type)).Inc()
	e.logger().Info("slip created", "number", slip.Number, "type", slip.Type, "lines", len(in.Lines))
	return slip, nil
}

type slipSummary struct {
	Number    string   `json:"number"`
	Type      SlipType `json:"type"`
	LineCount int      `json:"lineCount"`
	Signed    bool     `json:"signed"`
}

// =============================================================================
// PER-LINE PROCESSING
// =============================================================================

func (e *Engine) applyLine(ctx context.Context, tx Tx, actor Actor, slip *Slip, mt MovementType, line LineInput, now time.Time) error {
	item, err := tx.GetItem(ctx, line.lineItem())
	if err != nil {
		return err
	}
	if item.Type != line.lineType() {
		return &TypeMismatchError{ItemID: item.ID, Declared: line.lineType(), Stored: item.Type}
	}

	switch l := line.(type) {
	case StockLine:
		return e.applyStockLine(ctx, tx, actor, slip, mt, l, now)
	case AssetLine:
		return e.applyAssetLine(ctx, tx, actor, slip, mt, l, now)
	}
	return &ValidationError{Field: "lines", Reason: "unknown line variant"}
}

// applyStockLine debits the source and credits the destination. RECEIVE
// has no source: new stock enters the system as a pure credit.
func (e *Engine) applyStockLine(ctx context.Context, tx Tx, actor Actor, slip *Slip, mt MovementType, l StockLine, now time.Time) error {
	if slip.Type != SlipReceive {
		// The debit is where negative-stock prevention fires.
		if err := AdjustBalance(ctx, tx, actor, l.ItemID, *slip.FromLocation, l.Qty.Neg(), now); err != nil {
			return err
		}
	}
	if err := AdjustBalance(ctx, tx, actor, l.ItemID, slip.ToLocation, l.Qty, now); err != nil {
		return err
	}

	if err := tx.InsertLine(ctx, &SlipLine{
		ID:        newEventID(),
		SlipID:    slip.ID,
		ItemID:    l.ItemID,
		ItemType:  ItemStock,
		Qty:       l.Qty,
		CreatedAt: now,
	}); err != nil {
		return err
	}
	return e.appendMovement(ctx, tx, &MovementLog{
		ID:           newEventID(),
		Type:         mt,
		ItemID:       l.ItemID,
		Qty:          l.Qty,
		FromLocation: slip.FromLocation,
		ToLocation:   slip.ToLocation,
		SlipID:       &slip.ID,
		ActorID:      actor.ID,
		RecordedAt:   now,
	})
}

// applyAssetLine transitions the asset to the slip's destination. The
// condition changes only on RETURN lines that supply an override.
func (e *Engine) applyAssetLine(ctx context.Context, tx Tx, actor Actor, slip *Slip, mt MovementType, l AssetLine, now time.Time) error {
	asset, err := tx.GetAssetForUpdate(ctx, l.AssetID)
	if err != nil {
		return err
	}
	if asset.ItemID != l.ItemID {
		return ErrAssetMismatch
	}
	if slip.Type == SlipIssue {
		if err := CheckIssueEligibility(asset); err != nil {
			return err
		}
	}

	next := asset.Condition
	policy := CarryCondition
	if slip.Type == SlipReturn && l.Condition != nil {
		next = *l.Condition
		policy = ChangeCondition
	}
	if err := TransitionAsset(ctx, tx, actor, asset, &slip.ToLocation, next, policy, now); err != nil {
		return err
	}

	cond := asset.Condition
	if err := tx.InsertLine(ctx, &SlipLine{
		ID:        newEventID(),
		SlipID:    slip.ID,
		ItemID:    l.ItemID,
		ItemType:  ItemAsset,
		AssetID:   &l.AssetID,
		Condition: &cond,
		CreatedAt: now,
	}); err != nil {
		return err
	}
	return e.appendMovement(ctx, tx, &MovementLog{
		ID:           newEventID(),
		Type:         mt,
		ItemID:       l.ItemID,
		AssetID:      &l.AssetID,
		FromLocation: slip.FromLocation,
		ToLocation:   slip.ToLocation,
		Condition:    &cond,
		SlipID:       &slip.ID,
		ActorID:      actor.ID,
		RecordedAt:   now,
	})
}

func (e *Engine) appendMovement(ctx context.Context, tx Tx, m *MovementLog) error {
	if err := tx.AppendMovement(ctx, m); err != nil {
		return err
	}
	CountMovement(m.Type)
	return nil
}

// =============================================================================
// RETURN VALIDATION - Against the source ISSUE slip
// =============================================================================

// checkReturnSource verifies the source slip and rejects over-returns and
// assets that were never issued on it. Conservation is cumulative: the
// requested totals start from every RETURN already committed against the
// source, so repeated returns cannot together exceed the issue. Runs
// before any write.
func (e *Engine) checkReturnSource(ctx context.Context, tx Tx, ret *Slip, lines []LineInput) error {
	src, err := tx.GetSlip(ctx, *ret.SourceSlipID)
	if err != nil {
		return err
	}
	if src.Type != SlipIssue || src.PropertyID != ret.PropertyID {
		return ErrInvalidReturnSource
	}
	// The return must travel the exact reverse route of the issue.
	if src.FromLocation == nil ||
		*ret.FromLocation != src.ToLocation ||
		ret.ToLocation != *src.FromLocation {
		return ErrInvalidReturnSource
	}

	srcLines, err := tx.LinesBySlip(ctx, src.ID)
	if err != nil {
		return err
	}
	issuedQty := make(map[ItemID]decimal.Decimal)
	issuedAssets := make(map[AssetID]bool)
	for _, sl := range srcLines {
		switch sl.ItemType {
		case ItemStock:
			issuedQty[sl.ItemID] = issuedQty[sl.ItemID].Add(sl.Qty)
		case ItemAsset:
			if sl.AssetID != nil {
				issuedAssets[*sl.AssetID] = true
			}
		}
	}

	prior, err := tx.ReturnLinesBySource(ctx, src.ID)
	if err != nil {
		return err
	}
	requested := make(map[ItemID]decimal.Decimal)
	returnedAssets := make(map[AssetID]bool)
	for _, pl := range prior {
		switch pl.ItemType {
		case ItemStock:
			requested[pl.ItemID] = requested[pl.ItemID].Add(pl.Qty)
		case ItemAsset:
			if pl.AssetID != nil {
				returnedAssets[*pl.AssetID] = true
			}
		}
	}

	for _, line := range lines {
		switch l := line.(type) {
		case StockLine:
			requested[l.ItemID] = requested[l.ItemID].Add(l.Qty)
			if requested[l.ItemID].GreaterThan(issuedQty[l.ItemID]) {
				return &OverReturnError{
					ItemID:    l.ItemID,
					Issued:    issuedQty[l.ItemID],
					Requested: requested[l.ItemID],
				}
			}
		case AssetLine:
			if !issuedAssets[l.AssetID] {
				return ErrAssetNotInSource
			}
			if returnedAssets[l.AssetID] {
				return ErrAssetAlreadyReturned
			}
			returnedAssets[l.AssetID] = true
		}
	}
	return nil
}

// =============================================================================
// ADD SIGNATURE - After the fact
// =============================================================================

// AddSignature attaches a sign-off to an existing slip.
func (e *Engine) AddSignature(ctx context.Context, actor Actor, slipID SlipID, in SignatureInput) (*Signature, error) {
	if in.SignerName == "" {
		return nil, &ValidationError{Field: "signerName", Reason: "is required"}
	}

	now := e.now()
	sig := &Signature{
		ID:           newEventID(),
		SlipID:       slipID,
		SignerName:   in.SignerName,
		SignerUserID: in.SignerUserID,
		Method:       in.Method,
		SignedAt:     now,
	}
	err := e.Store.WithTx(ctx, func(tx Tx) error {
		if _, err := tx.GetSlip(ctx, slipID); err != nil {
			return err
		}
		if err := tx.InsertSignature(ctx, sig); err != nil {
			return err
		}
		return WriteAudit(ctx, tx, actor, AuditCreate, "signature", sig.ID, nil, sig, now)
	})
	if err != nil {
		return nil, err
	}
	return sig, nil
}
