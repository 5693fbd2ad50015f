// store.go - Persistence interfaces for tickets.
//
// A maintenance transaction is a ledger transaction plus ticket writes:
// Tx embeds ledger.Tx so creating or closing a ticket can drive the asset
// state machine, append movements, and write audit events in the same
// atomic unit. Stores that serve the ledger (store/memory, store/sqlite)
// implement both families.
package maintenance

import (
	"context"

	"github.com/warp/inventory-ledger/ledger"
)

// Tx is the transactional context for one ticket operation.
type Tx interface {
	ledger.Tx

	// InsertTicket creates a ticket record.
	InsertTicket(ctx context.Context, t *Ticket) error

	// GetTicketForUpdate loads a ticket with a write lock.
	// Returns ErrTicketNotFound if absent.
	GetTicketForUpdate(ctx context.Context, id TicketID) (*Ticket, error)

	// UpdateTicket persists status/field changes.
	UpdateTicket(ctx context.Context, t *Ticket) error

	// HasOpenTicket reports whether the asset has a non-terminal ticket.
	HasOpenTicket(ctx context.Context, assetID ledger.AssetID) (bool, error)

	// AppendTicketLog adds one status-trail row. Append-only.
	AppendTicketLog(ctx context.Context, e *LogEntry) error
}

// Store opens ticket transactions and serves reads outside them.
type Store interface {
	// WithTicketTx runs fn in one atomic transaction spanning ticket and
	// ledger writes.
	WithTicketTx(ctx context.Context, fn func(Tx) error) error

	GetTicket(ctx context.Context, id TicketID) (*Ticket, error)
	LogsByTicket(ctx context.Context, id TicketID) ([]LogEntry, error)

	// OpenTickets lists all non-terminal tickets, oldest first.
	OpenTickets(ctx context.Context) ([]Ticket, error)
}
