/*
Package memory provides an in-memory store for tests and development.

TRANSACTION MODEL:
  One mutex serializes all transactions - a crude but correct version of
  the locking the engine requires: two concurrent debits of the same
  balance cannot interleave. Rollback is snapshot-based: WithTx copies the
  whole state up front and restores it if fn fails, so a failed multi-line
  slip leaves nothing behind.

The same view type implements both the ledger and maintenance transaction
interfaces, mirroring how the durable store serves both engines from one
database transaction.
*/
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/inventory-ledger/ledger"
	"github.com/warp/inventory-ledger/maintenance"
)

type balKey struct {
	Item     ledger.ItemID
	Location ledger.LocationID
}

type balVal struct {
	Qty       decimal.Decimal
	UpdatedAt time.Time
}

// Store keeps everything in maps/slices guarded by one RWMutex.
type Store struct {
	mu         sync.RWMutex
	items      map[ledger.ItemID]ledger.Item
	assets     map[ledger.AssetID]ledger.Asset
	balances   map[balKey]balVal
	slips      map[ledger.SlipID]ledger.Slip
	lines      map[ledger.SlipID][]ledger.SlipLine
	movements  []ledger.MovementLog
	audits     []ledger.AuditEvent
	signatures map[ledger.SlipID][]ledger.Signature
	tickets    map[maintenance.TicketID]maintenance.Ticket
	ticketLogs map[maintenance.TicketID][]maintenance.LogEntry
}

func New() *Store {
	return &Store{
		items:      make(map[ledger.ItemID]ledger.Item),
		assets:     make(map[ledger.AssetID]ledger.Asset),
		balances:   make(map[balKey]balVal),
		slips:      make(map[ledger.SlipID]ledger.Slip),
		lines:      make(map[ledger.SlipID][]ledger.SlipLine),
		signatures: make(map[ledger.SlipID][]ledger.Signature),
		tickets:    make(map[maintenance.TicketID]maintenance.Ticket),
		ticketLogs: make(map[maintenance.TicketID][]maintenance.LogEntry),
	}
}

// =============================================================================
// TRANSACTIONS - snapshot + rollback under one lock
// =============================================================================

func (s *Store) WithTx(ctx context.Context, fn func(ledger.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	if err := fn(&txView{s: s}); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

func (s *Store) WithTicketTx(ctx context.Context, fn func(maintenance.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	if err := fn(&txView{s: s}); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

type snapshot struct {
	items      map[ledger.ItemID]ledger.Item
	assets     map[ledger.AssetID]ledger.Asset
	balances   map[balKey]balVal
	slips      map[ledger.SlipID]ledger.Slip
	lines      map[ledger.SlipID][]ledger.SlipLine
	movements  []ledger.MovementLog
	audits     []ledger.AuditEvent
	signatures map[ledger.SlipID][]ledger.Signature
	tickets    map[maintenance.TicketID]maintenance.Ticket
	ticketLogs map[maintenance.TicketID][]maintenance.LogEntry
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copySliceMap[K comparable, V any](m map[K][]V) map[K][]V {
	out := make(map[K][]V, len(m))
	for k, v := range m {
		out[k] = append([]V(nil), v...)
	}
	return out
}

func (s *Store) snapshot() snapshot {
	return snapshot{
		items:      copyMap(s.items),
		assets:     copyMap(s.assets),
		balances:   copyMap(s.balances),
		slips:      copyMap(s.slips),
		lines:      copySliceMap(s.lines),
		movements:  append([]ledger.MovementLog(nil), s.movements...),
		audits:     append([]ledger.AuditEvent(nil), s.audits...),
		signatures: copySliceMap(s.signatures),
		tickets:    copyMap(s.tickets),
		ticketLogs: copySliceMap(s.ticketLogs),
	}
}

func (s *Store) restore(snap snapshot) {
	s.items = snap.items
	s.assets = snap.assets
	s.balances = snap.balances
	s.slips = snap.slips
	s.lines = snap.lines
	s.movements = snap.movements
	s.audits = snap.audits
	s.signatures = snap.signatures
	s.tickets = snap.tickets
	s.ticketLogs = snap.ticketLogs
}

// =============================================================================
// TX VIEW - implements ledger.Tx and maintenance.Tx
// =============================================================================

// txView writes straight into the parent; the snapshot taken by WithTx is
// what makes rollback possible. The parent's lock is already held.
type txView struct {
	s *Store
}

func (t *txView) GetItem(_ context.Context, id ledger.ItemID) (*ledger.Item, error) {
	it, ok := t.s.items[id]
	if !ok {
		return nil, ledger.ErrItemNotFound
	}
	return &it, nil
}

func (t *txView) GetBalanceForUpdate(_ context.Context, itemID ledger.ItemID, locationID ledger.LocationID) (decimal.Decimal, error) {
	return t.s.balances[balKey{itemID, locationID}].Qty, nil
}

func (t *txView) UpsertBalance(_ context.Context, itemID ledger.ItemID, locationID ledger.LocationID, qty decimal.Decimal, at time.Time) error {
	t.s.balances[balKey{itemID, locationID}] = balVal{Qty: qty, UpdatedAt: at}
	return nil
}

func (t *txView) GetAssetForUpdate(_ context.Context, id ledger.AssetID) (*ledger.Asset, error) {
	a, ok := t.s.assets[id]
	if !ok {
		return nil, ledger.ErrAssetNotFound
	}
	return &a, nil
}

func (t *txView) UpdateAsset(_ context.Context, a *ledger.Asset) error {
	if _, ok := t.s.assets[a.ID]; !ok {
		return ledger.ErrAssetNotFound
	}
	t.s.assets[a.ID] = *a
	return nil
}

func (t *txView) GetSlip(_ context.Context, id ledger.SlipID) (*ledger.Slip, error) {
	sl, ok := t.s.slips[id]
	if !ok {
		return nil, ledger.ErrSlipNotFound
	}
	return &sl, nil
}

func (t *txView) LinesBySlip(_ context.Context, id ledger.SlipID) ([]ledger.SlipLine, error) {
	return append([]ledger.SlipLine(nil), t.s.lines[id]...), nil
}

func (t *txView) ReturnLinesBySource(_ context.Context, source ledger.SlipID) ([]ledger.SlipLine, error) {
	var out []ledger.SlipLine
	for id, sl := range t.s.slips {
		if sl.Type != ledger.SlipReturn || sl.SourceSlipID == nil || *sl.SourceSlipID != source {
			continue
		}
		out = append(out, t.s.lines[id]...)
	}
	return out, nil
}

func (t *txView) InsertSlip(_ context.Context, s *ledger.Slip) error {
	if _, ok := t.s.slips[s.ID]; ok {
		return fmt.Errorf("slip %s already exists", s.ID)
	}
	t.s.slips[s.ID] = *s
	return nil
}

func (t *txView) InsertLine(_ context.Context, l *ledger.SlipLine) error {
	t.s.lines[l.SlipID] = append(t.s.lines[l.SlipID], *l)
	return nil
}

func (t *txView) AppendMovement(_ context.Context, m *ledger.MovementLog) error {
	t.s.movements = append(t.s.movements, *m)
	return nil
}

func (t *txView) AppendAudit(_ context.Context, e *ledger.AuditEvent) error {
	t.s.audits = append(t.s.audits, *e)
	return nil
}

func (t *txView) InsertSignature(_ context.Context, sig *ledger.Signature) error {
	for _, existing := range t.s.signatures[sig.SlipID] {
		if existing.SignerName == sig.SignerName {
			return ledger.ErrDuplicateSignature
		}
	}
	t.s.signatures[sig.SlipID] = append(t.s.signatures[sig.SlipID], *sig)
	return nil
}

func (t *txView) InsertTicket(_ context.Context, tk *maintenance.Ticket) error {
	if _, ok := t.s.tickets[tk.ID]; ok {
		return fmt.Errorf("ticket %s already exists", tk.ID)
	}
	t.s.tickets[tk.ID] = *tk
	return nil
}

func (t *txView) GetTicketForUpdate(_ context.Context, id maintenance.TicketID) (*maintenance.Ticket, error) {
	tk, ok := t.s.tickets[id]
	if !ok {
		return nil, maintenance.ErrTicketNotFound
	}
	return &tk, nil
}

func (t *txView) UpdateTicket(_ context.Context, tk *maintenance.Ticket) error {
	if _, ok := t.s.tickets[tk.ID]; !ok {
		return maintenance.ErrTicketNotFound
	}
	t.s.tickets[tk.ID] = *tk
	return nil
}

func (t *txView) HasOpenTicket(_ context.Context, assetID ledger.AssetID) (bool, error) {
	for _, tk := range t.s.tickets {
		if tk.AssetID == assetID && !tk.Status.IsTerminal() {
			return true, nil
		}
	}
	return false, nil
}

func (t *txView) AppendTicketLog(_ context.Context, e *maintenance.LogEntry) error {
	t.s.ticketLogs[e.TicketID] = append(t.s.ticketLogs[e.TicketID], *e)
	return nil
}

// =============================================================================
// READS OUTSIDE TRANSACTIONS
// =============================================================================

func (s *Store) GetItem(_ context.Context, id ledger.ItemID) (*ledger.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	it, ok := s.items[id]
	if !ok {
		return nil, ledger.ErrItemNotFound
	}
	return &it, nil
}

func (s *Store) GetAsset(_ context.Context, id ledger.AssetID) (*ledger.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.assets[id]
	if !ok {
		return nil, ledger.ErrAssetNotFound
	}
	return &a, nil
}

func (s *Store) GetSlip(_ context.Context, id ledger.SlipID) (*ledger.Slip, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sl, ok := s.slips[id]
	if !ok {
		return nil, ledger.ErrSlipNotFound
	}
	return &sl, nil
}

func (s *Store) LinesBySlip(_ context.Context, id ledger.SlipID) ([]ledger.SlipLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]ledger.SlipLine(nil), s.lines[id]...), nil
}

func (s *Store) SignaturesBySlip(_ context.Context, id ledger.SlipID) ([]ledger.Signature, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]ledger.Signature(nil), s.signatures[id]...), nil
}

func (s *Store) GetBalance(_ context.Context, itemID ledger.ItemID, locationID ledger.LocationID) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.balances[balKey{itemID, locationID}].Qty, nil
}

func (s *Store) BalancesByLocation(_ context.Context, locationID ledger.LocationID) ([]ledger.StockBalance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ledger.StockBalance
	for k, v := range s.balances {
		if k.Location == locationID {
			out = append(out, ledger.StockBalance{
				ItemID: k.Item, LocationID: k.Location,
				QtyOnHand: v.Qty, UpdatedAt: v.UpdatedAt,
			})
		}
	}
	return out, nil
}

func (s *Store) MovementsByItem(_ context.Context, itemID ledger.ItemID, locationID ledger.LocationID) ([]ledger.MovementLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ledger.MovementLog
	for _, m := range s.movements {
		if m.ItemID != itemID {
			continue
		}
		if locationID != "" && m.ToLocation != locationID &&
			(m.FromLocation == nil || *m.FromLocation != locationID) {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *Store) MovementsByAsset(_ context.Context, id ledger.AssetID) ([]ledger.MovementLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ledger.MovementLog
	for _, m := range s.movements {
		if m.AssetID != nil && *m.AssetID == id {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *Store) QueryAudit(_ context.Context, f ledger.AuditFilter) ([]ledger.AuditEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ledger.AuditEvent
	for _, e := range s.audits {
		if f.Entity != "" && e.Entity != f.Entity {
			continue
		}
		if f.EntityID != "" && e.EntityID != f.EntityID {
			continue
		}
		if f.ActorID != "" && e.ActorID != f.ActorID {
			continue
		}
		if f.From != nil && e.RecordedAt.Before(*f.From) {
			continue
		}
		if f.To != nil && e.RecordedAt.After(*f.To) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *Store) SaveItem(_ context.Context, it *ledger.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[it.ID] = *it
	return nil
}

func (s *Store) RegisterAsset(_ context.Context, a *ledger.Asset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.assets[a.ID]; ok {
		return fmt.Errorf("asset %s already registered", a.ID)
	}
	for _, existing := range s.assets {
		if existing.Tag == a.Tag {
			return fmt.Errorf("asset tag %q already registered", a.Tag)
		}
	}
	s.assets[a.ID] = *a
	return nil
}

func (s *Store) GetTicket(_ context.Context, id maintenance.TicketID) (*maintenance.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tk, ok := s.tickets[id]
	if !ok {
		return nil, maintenance.ErrTicketNotFound
	}
	return &tk, nil
}

func (s *Store) LogsByTicket(_ context.Context, id maintenance.TicketID) ([]maintenance.LogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]maintenance.LogEntry(nil), s.ticketLogs[id]...), nil
}

func (s *Store) OpenTickets(_ context.Context) ([]maintenance.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []maintenance.Ticket
	for _, tk := range s.tickets {
		if !tk.Status.IsTerminal() {
			out = append(out, tk)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenedAt.Before(out[j].OpenedAt) })
	return out, nil
}

// Interface checks.
var (
	_ ledger.Store      = (*Store)(nil)
	_ ledger.Tx         = (*txView)(nil)
	_ maintenance.Store = (*Store)(nil)
	_ maintenance.Tx    = (*txView)(nil)
)
