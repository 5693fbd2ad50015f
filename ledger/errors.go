/*
errors.go - Centralized error types for the movement engine

PURPOSE:
  All engine error types in one place. Callers match with errors.Is /
  errors.As; structured errors carry the offending identifiers so the
  caller can render an actionable message.

ERROR CATEGORIES:
  1. Validation errors  - malformed input, rejected before any write
  2. Invariant errors   - would leave the ledger in an impossible state;
                          the whole transaction rolls back
  3. Not-found errors   - unknown item/asset/slip
  4. Storage conflicts  - lock contention, retryable by the caller

Nothing is retried inside the engine and no error is swallowed: every
operation either fully commits or fully rolls back.
*/
package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is returned for malformed input, before any write.
	ErrValidation = errors.New("invalid input")

	// ErrInsufficientStock is returned when a debit would take a stock
	// balance below zero. The enclosing transaction rolls back entirely.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrIneligibleAssetState is returned when an asset in SCRAP or
	// UNDER_MAINTENANCE condition is placed on an ISSUE line.
	ErrIneligibleAssetState = errors.New("asset not eligible for issue")

	// ErrConditionLocked is returned when a movement that may not change
	// an asset's condition tries to.
	ErrConditionLocked = errors.New("condition change not permitted for this movement")

	// ErrTypeMismatch is returned when a line's declared item type
	// disagrees with the catalog.
	ErrTypeMismatch = errors.New("item type mismatch")

	// ErrAssetMismatch is returned when a line's asset belongs to a
	// different item than the line declares.
	ErrAssetMismatch = errors.New("asset does not belong to item")

	// ErrInvalidReturnSource is returned when a RETURN references a source
	// slip that is not an ISSUE, belongs to another property, or whose
	// locations are not the exact reverse of the return's.
	ErrInvalidReturnSource = errors.New("invalid return source slip")

	// ErrOverReturn is returned when returned quantities for an item would
	// exceed what the source slip issued.
	ErrOverReturn = errors.New("return exceeds issued quantity")

	// ErrAssetNotInSource is returned when a RETURN line names an asset
	// that was not part of the source ISSUE slip.
	ErrAssetNotInSource = errors.New("asset not in source slip")

	// ErrAssetAlreadyReturned is returned when a RETURN line names an asset
	// that an earlier return already brought back against the same source.
	ErrAssetAlreadyReturned = errors.New("asset already returned against source slip")

	// ErrItemNotFound / ErrAssetNotFound / ErrSlipNotFound abort the
	// transaction; the referenced record does not exist.
	ErrItemNotFound  = errors.New("item not found")
	ErrAssetNotFound = errors.New("asset not found")
	ErrSlipNotFound  = errors.New("slip not found")

	// ErrStoreBusy is returned when the store could not take the locks it
	// needs in time. Safe to retry; nothing was persisted.
	ErrStoreBusy = errors.New("storage busy, retry")

	// ErrDuplicateSignature is returned when the same signer signs a slip
	// twice.
	ErrDuplicateSignature = errors.New("slip already signed by this signer")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientStockError reports the balance that would have gone negative.
type InsufficientStockError struct {
	ItemID     ItemID
	LocationID LocationID
	OnHand     decimal.Decimal
	Requested  decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for item %s at %s: on hand %s, requested %s",
		e.ItemID, e.LocationID, e.OnHand, e.Requested)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// IneligibleAssetError reports why an asset may not be issued.
type IneligibleAssetError struct {
	AssetID   AssetID
	Condition Condition
}

func (e *IneligibleAssetError) Error() string {
	return fmt.Sprintf("asset %s cannot be issued while %s", e.AssetID, e.Condition)
}

func (e *IneligibleAssetError) Unwrap() error { return ErrIneligibleAssetState }

// TypeMismatchError reports a declared-vs-catalog item type disagreement.
type TypeMismatchError struct {
	ItemID   ItemID
	Declared ItemType
	Stored   ItemType
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("item %s is %s, line declared %s", e.ItemID, e.Stored, e.Declared)
}

func (e *TypeMismatchError) Unwrap() error { return ErrTypeMismatch }

// OverReturnError reports a return quantity exceeding the issued quantity.
type OverReturnError struct {
	ItemID    ItemID
	Issued    decimal.Decimal
	Requested decimal.Decimal
}

func (e *OverReturnError) Error() string {
	return fmt.Sprintf("item %s: returning %s but only %s was issued", e.ItemID, e.Requested, e.Issued)
}

func (e *OverReturnError) Unwrap() error { return ErrOverReturn }

// ValidationError reports which input field was rejected.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid input: %s %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsInvariantViolation reports whether err is a ledger invariant breach,
// as opposed to bad input or a missing record.
func IsInvariantViolation(err error) bool {
	return errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrIneligibleAssetState) ||
		errors.Is(err, ErrConditionLocked) ||
		errors.Is(err, ErrOverReturn) ||
		errors.Is(err, ErrAssetNotInSource) ||
		errors.Is(err, ErrAssetAlreadyReturned)
}

// IsNotFound reports whether err indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrItemNotFound) ||
		errors.Is(err, ErrAssetNotFound) ||
		errors.Is(err, ErrSlipNotFound)
}

// IsRetryable reports whether the operation may succeed if retried.
// Only storage contention qualifies; invariant breaches never do.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreBusy)
}
