// errors.go - Ticket lifecycle errors.
//
// Same taxonomy as the ledger package: sentinels for errors.Is, one
// structured error for transitions so callers can name both states.
package maintenance

import (
	"errors"
	"fmt"
)

var (
	// ErrAssetScrapped is returned when opening a ticket on a SCRAP asset.
	ErrAssetScrapped = errors.New("asset is scrapped")

	// ErrDuplicateOpenTicket is returned when the asset already has an
	// open ticket. One repair episode at a time.
	ErrDuplicateOpenTicket = errors.New("asset already has an open ticket")

	// ErrTicketNotFound aborts the transaction.
	ErrTicketNotFound = errors.New("ticket not found")

	// ErrTicketClosed / ErrTicketScrapped are returned when operating on a
	// terminal ticket.
	ErrTicketClosed   = errors.New("ticket is closed")
	ErrTicketScrapped = errors.New("ticket is scrapped")

	// ErrInvalidTransition is returned for a status move the state table
	// forbids.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// InvalidTransitionError names both ends of the rejected move.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot move ticket from %s to %s", e.From, e.To)
}

func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidTransition }

// terminalError maps a terminal status to its sentinel.
func terminalError(s Status) error {
	if s == StatusScrapped {
		return ErrTicketScrapped
	}
	return ErrTicketClosed
}
