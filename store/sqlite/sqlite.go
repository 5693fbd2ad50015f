/*
Package sqlite provides the durable store for the movement engine.

PURPOSE:
  Implements ledger.Store and maintenance.Store on SQLite. The same
  patterns apply to PostgreSQL with minor dialect differences (there the
  ForUpdate reads become SELECT ... FOR UPDATE).

CONCURRENCY:
  The database is opened with _txlock=immediate: every transaction takes
  the writer lock at BEGIN, so two concurrent debits of the same balance
  serialize instead of both reading the stale quantity. WAL keeps readers
  unblocked. A transaction that cannot take the lock within the busy
  timeout fails with ledger.ErrStoreBusy - retryable by the caller,
  nothing persisted.

APPEND-ONLY ENFORCEMENT:
  No UPDATE or DELETE is ever issued against movement_log, audit_events,
  slip_lines, or maintenance_log.

MIGRATIONS:
  Schema is versioned with goose and embedded in the binary; New() brings
  the database up to date.

BACKSTOPS:
  The schema double-checks the engine's invariants where SQLite can:
  non-negative balances (CHECK), unique slip numbers and asset tags, one
  open maintenance ticket per asset (partial unique index), one signature
  per signer per slip.

SEE ALSO:
  - ledger/store.go: interface definitions
  - store/memory: in-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
	"github.com/shopspring/decimal"

	"github.com/warp/inventory-ledger/ledger"
	"github.com/warp/inventory-ledger/maintenance"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store implements ledger.Store and maintenance.Store.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the database at path and migrates it to the
// latest schema. Use ":memory:" for an in-memory database.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One pooled connection keeps ":memory:" databases coherent and costs
	// nothing for file databases given the single-writer model.
	db.SetMaxOpenConns(1)

	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		db.Close()
		return nil, err
	}
	if err := goose.Up(db, "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// =============================================================================
// TRANSACTIONS
// =============================================================================

func (s *Store) withTx(ctx context.Context, fn func(*sqlTx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mapBusy(err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(&sqlTx{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return mapBusy(err)
	}
	return nil
}

func (s *Store) WithTx(ctx context.Context, fn func(ledger.Tx) error) error {
	return s.withTx(ctx, func(t *sqlTx) error { return fn(t) })
}

func (s *Store) WithTicketTx(ctx context.Context, fn func(maintenance.Tx) error) error {
	return s.withTx(ctx, func(t *sqlTx) error { return fn(t) })
}

// mapBusy converts lock-contention errors into the retryable sentinel.
func mapBusy(err error) error {
	var se sqlite3.Error
	if errors.As(err, &se) && (se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked) {
		return fmt.Errorf("%w: %v", ledger.ErrStoreBusy, err)
	}
	return err
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique
}

// querier is satisfied by *sql.DB and *sql.Tx so reads share one code path.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// sqlTx implements ledger.Tx and maintenance.Tx over one *sql.Tx. The
// transaction already holds the writer lock (BEGIN IMMEDIATE), so the
// ForUpdate reads are plain selects here.
type sqlTx struct {
	q querier
}

// =============================================================================
// ENCODING HELPERS
// =============================================================================

func fmtTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad stored timestamp %q: %w", s, err)
	}
	return t, nil
}

func parseDec(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("bad stored quantity %q: %w", s, err)
	}
	return d, nil
}

func strOrNil[T ~string](p *T) any {
	if p == nil {
		return nil
	}
	return string(*p)
}

func decOrNil(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func timeOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return fmtTime(*t)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// =============================================================================
// ITEMS & ASSETS
// =============================================================================

func getItem(ctx context.Context, q querier, id ledger.ItemID) (*ledger.Item, error) {
	var (
		it        ledger.Item
		reorder   string
		active    int
		createdAt string
	)
	err := q.QueryRowContext(ctx, `
		SELECT id, name, type, unit, reorder_level, active, created_at
		FROM items WHERE id = ?`, string(id)).
		Scan(&it.ID, &it.Name, &it.Type, &it.Unit, &reorder, &active, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.ErrItemNotFound
	}
	if err != nil {
		return nil, err
	}
	if it.ReorderLevel, err = parseDec(reorder); err != nil {
		return nil, err
	}
	if it.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	it.Active = active != 0
	return &it, nil
}

func getAsset(ctx context.Context, q querier, id ledger.AssetID) (*ledger.Asset, error) {
	var (
		a         ledger.Asset
		location  sql.NullString
		createdAt string
		updatedAt string
	)
	err := q.QueryRowContext(ctx, `
		SELECT id, tag, item_id, condition, location_id, created_at, updated_at
		FROM assets WHERE id = ?`, string(id)).
		Scan(&a.ID, &a.Tag, &a.ItemID, &a.Condition, &location, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.ErrAssetNotFound
	}
	if err != nil {
		return nil, err
	}
	if location.Valid {
		loc := ledger.LocationID(location.String)
		a.LocationID = &loc
	}
	if a.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if a.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

func (t *sqlTx) GetItem(ctx context.Context, id ledger.ItemID) (*ledger.Item, error) {
	return getItem(ctx, t.q, id)
}

func (t *sqlTx) GetAssetForUpdate(ctx context.Context, id ledger.AssetID) (*ledger.Asset, error) {
	return getAsset(ctx, t.q, id)
}

func (t *sqlTx) UpdateAsset(ctx context.Context, a *ledger.Asset) error {
	res, err := t.q.ExecContext(ctx, `
		UPDATE assets SET condition = ?, location_id = ?, updated_at = ?
		WHERE id = ?`,
		string(a.Condition), strOrNil(a.LocationID), fmtTime(a.UpdatedAt), string(a.ID))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ledger.ErrAssetNotFound
	}
	return nil
}

// =============================================================================
// STOCK BALANCES
// =============================================================================

func getBalance(ctx context.Context, q querier, itemID ledger.ItemID, locationID ledger.LocationID) (decimal.Decimal, error) {
	var qty string
	err := q.QueryRowContext(ctx, `
		SELECT qty_on_hand FROM stock_balances
		WHERE item_id = ? AND location_id = ?`, string(itemID), string(locationID)).
		Scan(&qty)
	if errors.Is(err, sql.ErrNoRows) {
		// Absent row reads as zero.
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return parseDec(qty)
}

func (t *sqlTx) GetBalanceForUpdate(ctx context.Context, itemID ledger.ItemID, locationID ledger.LocationID) (decimal.Decimal, error) {
	return getBalance(ctx, t.q, itemID, locationID)
}

func (t *sqlTx) UpsertBalance(ctx context.Context, itemID ledger.ItemID, locationID ledger.LocationID, qty decimal.Decimal, at time.Time) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO stock_balances (item_id, location_id, qty_on_hand, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (item_id, location_id)
		DO UPDATE SET qty_on_hand = excluded.qty_on_hand, updated_at = excluded.updated_at`,
		string(itemID), string(locationID), qty.String(), fmtTime(at))
	return err
}

// =============================================================================
// SLIPS & LINES
// =============================================================================

func getSlip(ctx context.Context, q querier, id ledger.SlipID) (*ledger.Slip, error) {
	var (
		s          ledger.Slip
		from       sql.NullString
		department sql.NullString
		issuedBy   sql.NullString
		receivedBy sql.NullString
		vendor     sql.NullString
		source     sql.NullString
		createdAt  string
	)
	err := q.QueryRowContext(ctx, `
		SELECT id, number, type, property_id, from_location, to_location,
		       department_id, issued_by, received_by, vendor, source_slip_id,
		       created_by, created_at
		FROM slips WHERE id = ?`, string(id)).
		Scan(&s.ID, &s.Number, &s.Type, &s.PropertyID, &from, &s.ToLocation,
			&department, &issuedBy, &receivedBy, &vendor, &source,
			&s.CreatedBy, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.ErrSlipNotFound
	}
	if err != nil {
		return nil, err
	}
	if from.Valid {
		loc := ledger.LocationID(from.String)
		s.FromLocation = &loc
	}
	if department.Valid {
		s.DepartmentID = ledger.DepartmentID(department.String)
	}
	if issuedBy.Valid {
		s.IssuedByID = issuedBy.String
	}
	if receivedBy.Valid {
		s.ReceivedByID = receivedBy.String
	}
	if vendor.Valid {
		s.Vendor = vendor.String
	}
	if source.Valid {
		src := ledger.SlipID(source.String)
		s.SourceSlipID = &src
	}
	if s.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &s, nil
}

func scanLines(rows *sql.Rows) ([]ledger.SlipLine, error) {
	defer rows.Close()

	var out []ledger.SlipLine
	for rows.Next() {
		var (
			l         ledger.SlipLine
			qty       string
			assetID   sql.NullString
			condition sql.NullString
			createdAt string
		)
		if err := rows.Scan(&l.ID, &l.SlipID, &l.ItemID, &l.ItemType, &qty, &assetID, &condition, &createdAt); err != nil {
			return nil, err
		}
		var err error
		if l.Qty, err = parseDec(qty); err != nil {
			return nil, err
		}
		if assetID.Valid {
			a := ledger.AssetID(assetID.String)
			l.AssetID = &a
		}
		if condition.Valid {
			c := ledger.Condition(condition.String)
			l.Condition = &c
		}
		if l.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func linesBySlip(ctx context.Context, q querier, id ledger.SlipID) ([]ledger.SlipLine, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, slip_id, item_id, item_type, qty, asset_id, condition, created_at
		FROM slip_lines WHERE slip_id = ? ORDER BY rowid`, string(id))
	if err != nil {
		return nil, err
	}
	return scanLines(rows)
}

func (t *sqlTx) GetSlip(ctx context.Context, id ledger.SlipID) (*ledger.Slip, error) {
	return getSlip(ctx, t.q, id)
}

func (t *sqlTx) LinesBySlip(ctx context.Context, id ledger.SlipID) ([]ledger.SlipLine, error) {
	return linesBySlip(ctx, t.q, id)
}

func (t *sqlTx) ReturnLinesBySource(ctx context.Context, source ledger.SlipID) ([]ledger.SlipLine, error) {
	rows, err := t.q.QueryContext(ctx, `
		SELECT l.id, l.slip_id, l.item_id, l.item_type, l.qty, l.asset_id, l.condition, l.created_at
		FROM slip_lines l
		JOIN slips s ON s.id = l.slip_id
		WHERE s.source_slip_id = ? AND s.type = 'RETURN'
		ORDER BY l.rowid`, string(source))
	if err != nil {
		return nil, err
	}
	return scanLines(rows)
}

func (t *sqlTx) InsertSlip(ctx context.Context, s *ledger.Slip) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO slips (id, number, type, property_id, from_location, to_location,
		                   department_id, issued_by, received_by, vendor,
		                   source_slip_id, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(s.ID), s.Number, string(s.Type), string(s.PropertyID),
		strOrNil(s.FromLocation), string(s.ToLocation), string(s.DepartmentID),
		s.IssuedByID, s.ReceivedByID, s.Vendor, strOrNil(s.SourceSlipID),
		s.CreatedBy, fmtTime(s.CreatedAt))
	return err
}

func (t *sqlTx) InsertLine(ctx context.Context, l *ledger.SlipLine) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO slip_lines (id, slip_id, item_id, item_type, qty, asset_id, condition, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, string(l.SlipID), string(l.ItemID), string(l.ItemType),
		l.Qty.String(), strOrNil(l.AssetID), strOrNil(l.Condition), fmtTime(l.CreatedAt))
	return err
}

// =============================================================================
// MOVEMENT LOG, AUDIT, SIGNATURES
// =============================================================================

func (t *sqlTx) AppendMovement(ctx context.Context, m *ledger.MovementLog) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO movement_log (id, type, item_id, asset_id, qty, from_location,
		                          to_location, condition, slip_id, actor_id, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, string(m.Type), string(m.ItemID), strOrNil(m.AssetID), m.Qty.String(),
		strOrNil(m.FromLocation), string(m.ToLocation), strOrNil(m.Condition),
		strOrNil(m.SlipID), m.ActorID, fmtTime(m.RecordedAt))
	return err
}

func (t *sqlTx) AppendAudit(ctx context.Context, e *ledger.AuditEvent) error {
	var oldVal, newVal any
	if e.OldValue != nil {
		oldVal = string(e.OldValue)
	}
	if e.NewValue != nil {
		newVal = string(e.NewValue)
	}
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO audit_events (id, action, entity, entity_id, old_value, new_value,
		                          actor_id, actor_name, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, string(e.Action), e.Entity, e.EntityID, oldVal, newVal,
		e.ActorID, e.ActorName, fmtTime(e.RecordedAt))
	return err
}

func (t *sqlTx) InsertSignature(ctx context.Context, sig *ledger.Signature) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO signatures (id, slip_id, signer_name, signer_user_id, method, signed_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		sig.ID, string(sig.SlipID), sig.SignerName, strOrNil(sig.SignerUserID),
		string(sig.Method), fmtTime(sig.SignedAt))
	if isUniqueViolation(err) {
		return ledger.ErrDuplicateSignature
	}
	return err
}

// =============================================================================
// MAINTENANCE TICKETS
// =============================================================================

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTicket(row rowScanner) (*maintenance.Ticket, error) {
	var (
		t         maintenance.Ticket
		vendor    sql.NullString
		estimated sql.NullString
		actual    sql.NullString
		openedAt  string
		closedAt  sql.NullString
		updatedAt string
	)
	err := row.Scan(&t.ID, &t.AssetID, &t.Status, &t.Problem, &vendor,
		&estimated, &actual, &t.OpenedBy, &openedAt, &closedAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	if vendor.Valid {
		t.Vendor = vendor.String
	}
	if estimated.Valid {
		d, err := parseDec(estimated.String)
		if err != nil {
			return nil, err
		}
		t.EstimatedCost = &d
	}
	if actual.Valid {
		d, err := parseDec(actual.String)
		if err != nil {
			return nil, err
		}
		t.ActualCost = &d
	}
	if t.OpenedAt, err = parseTime(openedAt); err != nil {
		return nil, err
	}
	if closedAt.Valid {
		c, err := parseTime(closedAt.String)
		if err != nil {
			return nil, err
		}
		t.ClosedAt = &c
	}
	if t.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

func getTicket(ctx context.Context, q querier, id maintenance.TicketID) (*maintenance.Ticket, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, asset_id, status, problem, vendor, estimated_cost, actual_cost,
		       opened_by, opened_at, closed_at, updated_at
		FROM maintenance_tickets WHERE id = ?`, string(id))
	t, err := scanTicket(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, maintenance.ErrTicketNotFound
	}
	return t, err
}

func (t *sqlTx) InsertTicket(ctx context.Context, tk *maintenance.Ticket) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO maintenance_tickets (id, asset_id, status, problem, vendor,
		                                 estimated_cost, actual_cost, opened_by,
		                                 opened_at, closed_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(tk.ID), string(tk.AssetID), string(tk.Status), tk.Problem, tk.Vendor,
		decOrNil(tk.EstimatedCost), decOrNil(tk.ActualCost), tk.OpenedBy,
		fmtTime(tk.OpenedAt), timeOrNil(tk.ClosedAt), fmtTime(tk.UpdatedAt))
	if isUniqueViolation(err) {
		// Partial unique index: one open ticket per asset.
		return maintenance.ErrDuplicateOpenTicket
	}
	return err
}

func (t *sqlTx) GetTicketForUpdate(ctx context.Context, id maintenance.TicketID) (*maintenance.Ticket, error) {
	return getTicket(ctx, t.q, id)
}

func (t *sqlTx) UpdateTicket(ctx context.Context, tk *maintenance.Ticket) error {
	res, err := t.q.ExecContext(ctx, `
		UPDATE maintenance_tickets
		SET status = ?, vendor = ?, estimated_cost = ?, actual_cost = ?,
		    closed_at = ?, updated_at = ?
		WHERE id = ?`,
		string(tk.Status), tk.Vendor, decOrNil(tk.EstimatedCost), decOrNil(tk.ActualCost),
		timeOrNil(tk.ClosedAt), fmtTime(tk.UpdatedAt), string(tk.ID))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return maintenance.ErrTicketNotFound
	}
	return nil
}

func (t *sqlTx) HasOpenTicket(ctx context.Context, assetID ledger.AssetID) (bool, error) {
	var one int
	err := t.q.QueryRowContext(ctx, `
		SELECT 1 FROM maintenance_tickets
		WHERE asset_id = ? AND status NOT IN ('CLOSED', 'SCRAPPED')
		LIMIT 1`, string(assetID)).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (t *sqlTx) AppendTicketLog(ctx context.Context, e *maintenance.LogEntry) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO maintenance_log (id, ticket_id, from_status, to_status, note, actor_id, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, string(e.TicketID), strOrNil(e.FromStatus), string(e.ToStatus),
		e.Note, e.ActorID, fmtTime(e.RecordedAt))
	return err
}

// =============================================================================
// READS OUTSIDE TRANSACTIONS
// =============================================================================

func (s *Store) GetItem(ctx context.Context, id ledger.ItemID) (*ledger.Item, error) {
	return getItem(ctx, s.db, id)
}

func (s *Store) GetAsset(ctx context.Context, id ledger.AssetID) (*ledger.Asset, error) {
	return getAsset(ctx, s.db, id)
}

func (s *Store) GetSlip(ctx context.Context, id ledger.SlipID) (*ledger.Slip, error) {
	return getSlip(ctx, s.db, id)
}

func (s *Store) LinesBySlip(ctx context.Context, id ledger.SlipID) ([]ledger.SlipLine, error) {
	return linesBySlip(ctx, s.db, id)
}

func (s *Store) GetBalance(ctx context.Context, itemID ledger.ItemID, locationID ledger.LocationID) (decimal.Decimal, error) {
	return getBalance(ctx, s.db, itemID, locationID)
}

func (s *Store) BalancesByLocation(ctx context.Context, locationID ledger.LocationID) ([]ledger.StockBalance, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT item_id, location_id, qty_on_hand, updated_at
		FROM stock_balances WHERE location_id = ? ORDER BY item_id`, string(locationID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.StockBalance
	for rows.Next() {
		var (
			b         ledger.StockBalance
			qty       string
			updatedAt string
		)
		if err := rows.Scan(&b.ItemID, &b.LocationID, &qty, &updatedAt); err != nil {
			return nil, err
		}
		if b.QtyOnHand, err = parseDec(qty); err != nil {
			return nil, err
		}
		if b.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *Store) SignaturesBySlip(ctx context.Context, id ledger.SlipID) ([]ledger.Signature, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, slip_id, signer_name, signer_user_id, method, signed_at
		FROM signatures WHERE slip_id = ? ORDER BY rowid`, string(id))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.Signature
	for rows.Next() {
		var (
			sig      ledger.Signature
			userID   sql.NullString
			signedAt string
		)
		if err := rows.Scan(&sig.ID, &sig.SlipID, &sig.SignerName, &userID, &sig.Method, &signedAt); err != nil {
			return nil, err
		}
		if userID.Valid {
			v := userID.String
			sig.SignerUserID = &v
		}
		if sig.SignedAt, err = parseTime(signedAt); err != nil {
			return nil, err
		}
		out = append(out, sig)
	}
	return out, rows.Err()
}

const movementCols = `id, type, item_id, asset_id, qty, from_location,
		to_location, condition, slip_id, actor_id, recorded_at`

func scanMovements(rows *sql.Rows) ([]ledger.MovementLog, error) {
	defer rows.Close()

	var out []ledger.MovementLog
	for rows.Next() {
		var (
			m          ledger.MovementLog
			assetID    sql.NullString
			qty        string
			from       sql.NullString
			condition  sql.NullString
			slipID     sql.NullString
			recordedAt string
		)
		err := rows.Scan(&m.ID, &m.Type, &m.ItemID, &assetID, &qty, &from,
			&m.ToLocation, &condition, &slipID, &m.ActorID, &recordedAt)
		if err != nil {
			return nil, err
		}
		if assetID.Valid {
			a := ledger.AssetID(assetID.String)
			m.AssetID = &a
		}
		if m.Qty, err = parseDec(qty); err != nil {
			return nil, err
		}
		if from.Valid {
			loc := ledger.LocationID(from.String)
			m.FromLocation = &loc
		}
		if condition.Valid {
			c := ledger.Condition(condition.String)
			m.Condition = &c
		}
		if slipID.Valid {
			sl := ledger.SlipID(slipID.String)
			m.SlipID = &sl
		}
		if m.RecordedAt, err = parseTime(recordedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) MovementsByItem(ctx context.Context, itemID ledger.ItemID, locationID ledger.LocationID) ([]ledger.MovementLog, error) {
	if locationID == "" {
		rows, err := s.db.QueryContext(ctx, `
			SELECT `+movementCols+` FROM movement_log
			WHERE item_id = ? ORDER BY rowid`, string(itemID))
		if err != nil {
			return nil, err
		}
		return scanMovements(rows)
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+movementCols+` FROM movement_log
		WHERE item_id = ? AND (to_location = ? OR from_location = ?)
		ORDER BY rowid`, string(itemID), string(locationID), string(locationID))
	if err != nil {
		return nil, err
	}
	return scanMovements(rows)
}

func (s *Store) MovementsByAsset(ctx context.Context, id ledger.AssetID) ([]ledger.MovementLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+movementCols+` FROM movement_log
		WHERE asset_id = ? ORDER BY rowid`, string(id))
	if err != nil {
		return nil, err
	}
	return scanMovements(rows)
}

func (s *Store) QueryAudit(ctx context.Context, f ledger.AuditFilter) ([]ledger.AuditEvent, error) {
	query := `SELECT id, action, entity, entity_id, old_value, new_value,
	                 actor_id, actor_name, recorded_at
	          FROM audit_events WHERE 1=1`
	var args []any
	if f.Entity != "" {
		query += " AND entity = ?"
		args = append(args, f.Entity)
	}
	if f.EntityID != "" {
		query += " AND entity_id = ?"
		args = append(args, f.EntityID)
	}
	if f.ActorID != "" {
		query += " AND actor_id = ?"
		args = append(args, f.ActorID)
	}
	if f.From != nil {
		query += " AND recorded_at >= ?"
		args = append(args, fmtTime(*f.From))
	}
	if f.To != nil {
		query += " AND recorded_at <= ?"
		args = append(args, fmtTime(*f.To))
	}
	query += " ORDER BY rowid"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.AuditEvent
	for rows.Next() {
		var (
			e          ledger.AuditEvent
			oldVal     sql.NullString
			newVal     sql.NullString
			actorName  sql.NullString
			recordedAt string
		)
		if err := rows.Scan(&e.ID, &e.Action, &e.Entity, &e.EntityID, &oldVal, &newVal,
			&e.ActorID, &actorName, &recordedAt); err != nil {
			return nil, err
		}
		if oldVal.Valid {
			e.OldValue = []byte(oldVal.String)
		}
		if newVal.Valid {
			e.NewValue = []byte(newVal.String)
		}
		if actorName.Valid {
			e.ActorName = actorName.String
		}
		if e.RecordedAt, err = parseTime(recordedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) SaveItem(ctx context.Context, it *ledger.Item) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO items (id, name, type, unit, reorder_level, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name, unit = excluded.unit,
			reorder_level = excluded.reorder_level, active = excluded.active`,
		string(it.ID), it.Name, string(it.Type), it.Unit,
		it.ReorderLevel.String(), boolToInt(it.Active), fmtTime(it.CreatedAt))
	return err
}

func (s *Store) RegisterAsset(ctx context.Context, a *ledger.Asset) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO assets (id, tag, item_id, condition, location_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(a.ID), a.Tag, string(a.ItemID), string(a.Condition),
		strOrNil(a.LocationID), fmtTime(a.CreatedAt), fmtTime(a.UpdatedAt))
	if isUniqueViolation(err) {
		return fmt.Errorf("asset %s (tag %q) already registered", a.ID, a.Tag)
	}
	return err
}

func (s *Store) GetTicket(ctx context.Context, id maintenance.TicketID) (*maintenance.Ticket, error) {
	return getTicket(ctx, s.db, id)
}

func (s *Store) LogsByTicket(ctx context.Context, id maintenance.TicketID) ([]maintenance.LogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ticket_id, from_status, to_status, note, actor_id, recorded_at
		FROM maintenance_log WHERE ticket_id = ? ORDER BY rowid`, string(id))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []maintenance.LogEntry
	for rows.Next() {
		var (
			e          maintenance.LogEntry
			fromStatus sql.NullString
			note       sql.NullString
			recordedAt string
		)
		if err := rows.Scan(&e.ID, &e.TicketID, &fromStatus, &e.ToStatus, &note, &e.ActorID, &recordedAt); err != nil {
			return nil, err
		}
		if fromStatus.Valid {
			st := maintenance.Status(fromStatus.String)
			e.FromStatus = &st
		}
		if note.Valid {
			e.Note = note.String
		}
		if e.RecordedAt, err = parseTime(recordedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) OpenTickets(ctx context.Context) ([]maintenance.Ticket, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, asset_id, status, problem, vendor, estimated_cost, actual_cost,
		       opened_by, opened_at, closed_at, updated_at
		FROM maintenance_tickets
		WHERE status NOT IN ('CLOSED', 'SCRAPPED')
		ORDER BY opened_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []maintenance.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// Interface checks.
var (
	_ ledger.Store      = (*Store)(nil)
	_ ledger.Tx         = (*sqlTx)(nil)
	_ maintenance.Store = (*Store)(nil)
	_ maintenance.Tx    = (*sqlTx)(nil)
)
