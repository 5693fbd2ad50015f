/*
audit.go - Append-only audit trail

PURPOSE:
  Every create/update the engine performs leaves an AuditEvent with old and
  new value snapshots and the acting user. The trail exists purely for
  compliance traceability; the engine never reads it back.

PAIRING:
  - One event per balance upsert (entity "stock_balance")
  - One event per asset transition (entity "asset")
  - One summary event per slip creation, signature, and maintenance
    create/update/close

Snapshots are JSON-encoded at write time; a snapshot that fails to encode
fails the whole transaction rather than writing a partial row.
*/
package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// =============================================================================
// AUDIT EVENT
// =============================================================================

type AuditAction string

const (
	AuditCreate AuditAction = "create"
	AuditUpdate AuditAction = "update"
	AuditDelete AuditAction = "delete"
)

// AuditEvent is one append-only audit row.
type AuditEvent struct {
	ID         string
	Action     AuditAction
	Entity     string // "slip", "stock_balance", "asset", "signature", "maintenance_ticket"
	EntityID   string
	OldValue   json.RawMessage // nil for creations
	NewValue   json.RawMessage
	ActorID    string
	ActorName  string
	RecordedAt time.Time
}

// AuditFilter narrows QueryAudit. Nil/zero fields match everything.
type AuditFilter struct {
	Entity   string
	EntityID string
	ActorID  string
	From     *time.Time
	To       *time.Time
}

// =============================================================================
// AUDIT WRITER
// =============================================================================

// WriteAudit snapshots old/new values and appends one audit event inside
// the caller's transaction. old may be nil for creations.
func WriteAudit(ctx context.Context, tx Tx, actor Actor, action AuditAction, entity, entityID string, old, new any, at time.Time) error {
	var oldJSON, newJSON json.RawMessage
	var err error
	if old != nil {
		if oldJSON, err = json.Marshal(old); err != nil {
			return fmt.Errorf("audit snapshot (old) for %s %s: %w", entity, entityID, err)
		}
	}
	if new != nil {
		if newJSON, err = json.Marshal(new); err != nil {
			return fmt.Errorf("audit snapshot (new) for %s %s: %w", entity, entityID, err)
		}
	}
	return tx.AppendAudit(ctx, &AuditEvent{
		ID:         newEventID(),
		Action:     action,
		Entity:     entity,
		EntityID:   entityID,
		OldValue:   oldJSON,
		NewValue:   newJSON,
		ActorID:    actor.ID,
		ActorName:  actor.Name,
		RecordedAt: at,
	})
}
