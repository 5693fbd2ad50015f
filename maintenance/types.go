/*
Package maintenance is the repair-ticket lifecycle engine.

PURPOSE:
  Tracks one open repair episode per asset through a status state machine
  and drives the asset's condition transitions through the ledger engine.
  Ticket creation and closure emit paired MAINT_OUT/MAINT_IN movement-log
  entries without a user-facing slip, so the physical history stays
  complete.

STATE MACHINE:
  REPORTED -> {DIAGNOSING, SENT_TO_VENDOR, IN_REPAIR, FIXED, UNREPAIRABLE}
           -> {CLOSED, SCRAPPED}

  SENT_TO_VENDOR, IN_REPAIR, and FIXED may not fall back to REPORTED;
  every other transition among the open states is allowed. CLOSED and
  SCRAPPED are terminal.

INVARIANT:
  At most one open (non-terminal) ticket per asset at a time.

This package layers on ledger the way a domain wraps a core engine: it
adds ticket semantics while reusing the ledger's transactional context,
asset state machine, movement log, and audit writer.
*/
package maintenance

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/inventory-ledger/ledger"
)

// =============================================================================
// TICKET
// =============================================================================

type TicketID string

type Status string

const (
	StatusReported     Status = "REPORTED"
	StatusDiagnosing   Status = "DIAGNOSING"
	StatusSentToVendor Status = "SENT_TO_VENDOR"
	StatusInRepair     Status = "IN_REPAIR"
	StatusFixed        Status = "FIXED"
	StatusUnrepairable Status = "UNREPAIRABLE"
	StatusClosed       Status = "CLOSED"
	StatusScrapped     Status = "SCRAPPED"
)

// IsTerminal reports whether no further status updates are accepted.
func (s Status) IsTerminal() bool {
	return s == StatusClosed || s == StatusScrapped
}

// Ticket is the lifecycle record for one repair episode on one asset.
type Ticket struct {
	ID            TicketID
	AssetID       ledger.AssetID
	Status        Status
	Problem       string
	Vendor        string
	EstimatedCost *decimal.Decimal
	ActualCost    *decimal.Decimal
	OpenedBy      string
	OpenedAt      time.Time
	ClosedAt      *time.Time
	UpdatedAt     time.Time
}

// LogEntry is one row of the append-only status trail. The initial
// REPORTED entry has a nil FromStatus.
type LogEntry struct {
	ID         string
	TicketID   TicketID
	FromStatus *Status
	ToStatus   Status
	Note       string
	ActorID    string
	RecordedAt time.Time
}

// =============================================================================
// INPUTS
// =============================================================================

type TicketInput struct {
	AssetID       ledger.AssetID
	Problem       string
	Vendor        string
	EstimatedCost *decimal.Decimal
}

type StatusUpdateInput struct {
	TicketID      TicketID
	Status        Status
	Note          string
	Vendor        *string
	EstimatedCost *decimal.Decimal
	ActualCost    *decimal.Decimal
}

type CloseInput struct {
	TicketID       TicketID
	Note           string
	ActualCost     *decimal.Decimal
	FinalCondition *ledger.Condition
}
