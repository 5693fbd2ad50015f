/*
asset.go - Asset state machine

PURPOSE:
  The single entry point for changing an asset's condition and location.
  The pair changes together as one atomic update, never independently, and
  no other code path may write these fields. Centralizing the transition
  keeps the gate rules from being bypassed by future call sites.

GATES:
  - Issue eligibility: an asset in SCRAP or UNDER_MAINTENANCE cannot go on
    an ISSUE line.
  - Condition lock: only a RETURN line or a maintenance transition may set
    a condition different from the asset's current one; every other
    movement carries the condition forward unchanged.
  - SCRAP has no special terminal handling here; it is reachable only via
    maintenance closure with an unrepairable outcome.
*/
package ledger

import (
	"context"
	"time"
)

// ConditionChangePolicy says whether a transition may alter the asset's
// condition. Only return lines and maintenance transitions may.
type ConditionChangePolicy bool

const (
	CarryCondition  ConditionChangePolicy = false
	ChangeCondition ConditionChangePolicy = true
)

// CheckIssueEligibility rejects assets whose condition forbids issue.
func CheckIssueEligibility(a *Asset) error {
	if a.Condition == ConditionScrap || a.Condition == ConditionUnderMaintenance {
		return &IneligibleAssetError{AssetID: a.ID, Condition: a.Condition}
	}
	return nil
}

// TransitionAsset moves a (already locked) asset to targetLocation with
// targetCondition and persists the update plus its audit event. A nil
// targetLocation keeps the asset unplaced (maintenance on an asset that
// was never put anywhere).
//
// A condition differing from the asset's current one is rejected with
// ErrConditionLocked unless policy is ChangeCondition.
func TransitionAsset(ctx context.Context, tx Tx, actor Actor, a *Asset, targetLocation *LocationID, targetCondition Condition, policy ConditionChangePolicy, at time.Time) error {
	if targetCondition != a.Condition && policy != ChangeCondition {
		return ErrConditionLocked
	}

	old := *a
	a.Condition = targetCondition
	a.LocationID = nil
	if targetLocation != nil {
		loc := *targetLocation
		a.LocationID = &loc
	}
	a.UpdatedAt = at

	if err := tx.UpdateAsset(ctx, a); err != nil {
		return err
	}
	return WriteAudit(ctx, tx, actor, AuditUpdate, "asset", string(a.ID), old, *a, at)
}
