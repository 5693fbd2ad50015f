/*
engine.go - Maintenance lifecycle engine

PURPOSE:
  CreateTicket, UpdateStatus, and CloseTicket. Creation and closure bridge
  into the ledger: the asset moves to UNDER_MAINTENANCE (MAINT_OUT) when
  the ticket opens and back to a serviceable condition (MAINT_IN) when it
  closes, all inside the ticket's own transaction.

CLOSURE CONDITION:
  Explicit override if given, else FIXED closes to GOOD and UNREPAIRABLE
  closes to DAMAGED; any other status leaves the condition as it stands.
  A close that lands the asset on SCRAP terminates the ticket as SCRAPPED
  rather than CLOSED - that is the only path that scraps an asset.
*/
package maintenance

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/warp/inventory-ledger/ledger"
)

var (
	ticketsOpened = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "inventory",
		Name:      "maintenance_tickets_opened_total",
		Help:      "Maintenance tickets created.",
	})
	ticketsClosed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "inventory",
		Name:      "maintenance_tickets_closed_total",
		Help:      "Maintenance tickets terminated, by final status.",
	}, []string{"status"})
)

// =============================================================================
// ENGINE
// =============================================================================

// Engine drives the ticket lifecycle. Zero-value Log and Now fall back to
// a discard logger and time.Now.
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
// STATE TABLE
// =============================================================================

// canTransition applies the open-state rules. Terminal sources are
// rejected before this is consulted; terminal targets go through
// CloseTicket, never UpdateStatus.
func canTransition(from, to Status) bool {
	switch to {
	case StatusReported:
		// Guard against accidental state loss once repair is under way.
		return from != StatusSentToVendor && from != StatusInRepair && from != StatusFixed
	case StatusDiagnosing, StatusSentToVendor, StatusInRepair, StatusFixed, StatusUnrepairable:
		return true
	}
	return false
}

// =============================================================================
// CREATE TICKET
// =============================================================================

// CreateTicket opens a repair episode: ticket in REPORTED, initial log
// entry, asset to UNDER_MAINTENANCE at its current location, MAINT_OUT
// movement, audit event. One transaction.
func (e *Engine) CreateTicket(ctx context.Context, actor ledger.Actor, in TicketInput) (*Ticket, error) {
	if in.AssetID == "" {
		return nil, &ledger.ValidationError{Field: "assetId", Reason: "is required"}
	}
	if in.Problem == "" {
		return nil, &ledger.ValidationError{Field: "problem", Reason: "is required"}
	}

	now := e.now()
	ticket := &Ticket{
		ID:            TicketID(uuid.NewString()),
		AssetID:       in.AssetID,
		Status:        StatusReported,
		Problem:       in.Problem,
		Vendor:        in.Vendor,
		EstimatedCost: in.EstimatedCost,
		OpenedBy:      actor.ID,
		OpenedAt:      now,
		UpdatedAt:     now,
	}

	err := e.Store.WithTicketTx(ctx, func(tx Tx) error {
		asset, err := tx.GetAssetForUpdate(ctx, in.AssetID)
		if err != nil {
			return err
		}
		if asset.Condition == ledger.ConditionScrap {
			return ErrAssetScrapped
		}
		open, err := tx.HasOpenTicket(ctx, in.AssetID)
		if err != nil {
			return err
		}
		if open {
			return ErrDuplicateOpenTicket
		}

		if err := tx.InsertTicket(ctx, ticket); err != nil {
			return err
		}
		if err := tx.AppendTicketLog(ctx, &LogEntry{
			ID:         uuid.NewString(),
			TicketID:   ticket.ID,
			ToStatus:   StatusReported,
			Note:       in.Problem,
			ActorID:    actor.ID,
			RecordedAt: now,
		}); err != nil {
			return err
		}

		// Condition changes, location stays put.
		if err := ledger.TransitionAsset(ctx, tx, actor, asset, asset.LocationID,
			ledger.ConditionUnderMaintenance, ledger.ChangeCondition, now); err != nil {
			return err
		}
		if err := e.appendMaintMovement(ctx, tx, actor, asset, ledger.MoveMaintOut, now); err != nil {
			return err
		}

		return ledger.WriteAudit(ctx, tx, actor, ledger.AuditCreate,
			"maintenance_ticket", string(ticket.ID), nil, ticket, now)
	})
	if err != nil {
		return nil, err
	}

	ticketsOpened.Inc()
	e.logger().Info("ticket opened", "ticket", ticket.ID, "asset", in.AssetID)
	return ticket, nil
}

// =============================================================================
// UPDATE STATUS
// =============================================================================

// UpdateStatus moves an open ticket laterally through the state table and
// applies any field updates. Terminal statuses are reached only through
// CloseTicket.
func (e *Engine) UpdateStatus(ctx context.Context, actor ledger.Actor, in StatusUpdateInput) (*Ticket, error) {
	now := e.now()

	var ticket *Ticket
	err := e.Store.WithTicketTx(ctx, func(tx Tx) error {
		t, err := tx.GetTicketForUpdate(ctx, in.TicketID)
		if err != nil {
			return err
		}
		if t.Status.IsTerminal() {
			return terminalError(t.Status)
		}
		if !canTransition(t.Status, in.Status) {
			return &InvalidTransitionError{From: t.Status, To: in.Status}
		}

		old := *t
		t.Status = in.Status
		if in.Vendor != nil {
			t.Vendor = *in.Vendor
		}
		if in.EstimatedCost != nil {
			t.EstimatedCost = in.EstimatedCost
		}
		if in.ActualCost != nil {
			t.ActualCost = in.ActualCost
		}
		t.UpdatedAt = now
		if err := tx.UpdateTicket(ctx, t); err != nil {
			return err
		}

		if err := tx.AppendTicketLog(ctx, &LogEntry{
			ID:         uuid.NewString(),
			TicketID:   t.ID,
			FromStatus: &old.Status,
			ToStatus:   t.Status,
			Note:       in.Note,
			ActorID:    actor.ID,
			RecordedAt: now,
		}); err != nil {
			return err
		}

		ticket = t
		return ledger.WriteAudit(ctx, tx, actor, ledger.AuditUpdate,
			"maintenance_ticket", string(t.ID), old, *t, now)
	})
	if err != nil {
		return nil, err
	}
	return ticket, nil
}

// =============================================================================
// CLOSE TICKET
// =============================================================================

// CloseTicket terminates the episode and brings the asset back into
// service (or scraps it). One transaction: ticket terminal, closing log
// entry, asset condition restored, MAINT_IN movement, audit event.
func (e *Engine) CloseTicket(ctx context.Context, actor ledger.Actor, in CloseInput) (*Ticket, error) {
	now := e.now()

	var ticket *Ticket
	err := e.Store.WithTicketTx(ctx, func(tx Tx) error {
		t, err := tx.GetTicketForUpdate(ctx, in.TicketID)
		if err != nil {
			return err
		}
		if t.Status.IsTerminal() {
			return terminalError(t.Status)
		}

		asset, err := tx.GetAssetForUpdate(ctx, t.AssetID)
		if err != nil {
			return err
		}

		final := finalCondition(t.Status, asset.Condition, in.FinalCondition)
		old := *t
		if final == ledger.ConditionScrap {
			t.Status = StatusScrapped
		} else {
			t.Status = StatusClosed
		}
		if in.ActualCost != nil {
			t.ActualCost = in.ActualCost
		}
		closedAt := now
		t.ClosedAt = &closedAt
		t.UpdatedAt = now
		if err := tx.UpdateTicket(ctx, t); err != nil {
			return err
		}

		if err := tx.AppendTicketLog(ctx, &LogEntry{
			ID:         uuid.NewString(),
			TicketID:   t.ID,
			FromStatus: &old.Status,
			ToStatus:   t.Status,
			Note:       in.Note,
			ActorID:    actor.ID,
			RecordedAt: now,
		}); err != nil {
			return err
		}

		if err := ledger.TransitionAsset(ctx, tx, actor, asset, asset.LocationID,
			final, ledger.ChangeCondition, now); err != nil {
			return err
		}
		if err := e.appendMaintMovement(ctx, tx, actor, asset, ledger.MoveMaintIn, now); err != nil {
			return err
		}

		ticket = t
		return ledger.WriteAudit(ctx, tx, actor, ledger.AuditUpdate,
			"maintenance_ticket", string(t.ID), old, *t, now)
	})
	if err != nil {
		return nil, err
	}

	ticketsClosed.WithLabelValues(string(ticket.Status)).Inc()
	e.logger().Info("ticket closed", "ticket", ticket.ID, "status", ticket.Status)
	return ticket, nil
}

// finalCondition resolves what the asset becomes when the ticket closes.
func finalCondition(status Status, current ledger.Condition, override *ledger.Condition) ledger.Condition {
	if override != nil {
		return *override
	}
	switch status {
	case StatusFixed:
		return ledger.ConditionGood
	case StatusUnrepairable:
		return ledger.ConditionDamaged
	}
	return current
}

// appendMaintMovement records the paired maintenance movement. From and
// to are the asset's own location: maintenance never relocates an asset.
func (e *Engine) appendMaintMovement(ctx context.Context, tx Tx, actor ledger.Actor, asset *ledger.Asset, mt ledger.MovementType, now time.Time) error {
	var to ledger.LocationID
	if asset.LocationID != nil {
		to = *asset.LocationID
	}
	cond := asset.Condition
	id := asset.ID
	if err := tx.AppendMovement(ctx, &ledger.MovementLog{
		ID:           uuid.NewString(),
		Type:         mt,
		ItemID:       asset.ItemID,
		AssetID:      &id,
		FromLocation: asset.LocationID,
		ToLocation:   to,
		Condition:    &cond,
		ActorID:      actor.ID,
		RecordedAt:   now,
	}); err != nil {
		return err
	}
	ledger.CountMovement(mt)
	return nil
}
