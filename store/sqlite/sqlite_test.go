package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/inventory-ledger/ledger"
	"github.com/warp/inventory-ledger/maintenance"
	"github.com/warp/inventory-ledger/store/sqlite"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

var clerk = ledger.Actor{ID: "user-1", Name: "Pat Clerk"}

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func loc(id string) *ledger.LocationID {
	l := ledger.LocationID(id)
	return &l
}

func seedStockItem(t *testing.T, store *sqlite.Store, id ledger.ItemID) {
	t.Helper()
	err := store.SaveItem(context.Background(), &ledger.Item{
		ID: id, Name: string(id), Type: ledger.ItemStock, Unit: "pcs",
		ReorderLevel: decimal.NewFromInt(5), Active: true, CreatedAt: time.Now(),
	})
	require.NoError(t, err)
}

func seedAsset(t *testing.T, store *sqlite.Store, assetID ledger.AssetID) {
	t.Helper()
	ctx := context.Background()
	err := store.SaveItem(ctx, &ledger.Item{
		ID: "vacuum", Name: "vacuum", Type: ledger.ItemAsset, Unit: "unit",
		Active: true, CreatedAt: time.Now(),
	})
	require.NoError(t, err)
	err = store.RegisterAsset(ctx, &ledger.Asset{
		ID: assetID, Tag: "TAG-" + string(assetID), ItemID: "vacuum",
		Condition: ledger.ConditionGood, LocationID: loc("main-store"),
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	})
	require.NoError(t, err)
}

// =============================================================================
// ENGINE ROUNDTRIP
// =============================================================================

func TestSQLite_SlipRoundtrip(t *testing.T) {
	// GIVEN: a migrated :memory: database
	// WHEN: the slip engine receives 40 and issues 15
	// THEN: balances, slip, lines, and movements read back correctly

	store := newTestStore(t)
	ctx := context.Background()
	seedStockItem(t, store, "towel")
	engine := ledger.NewEngine(store)

	_, err := engine.CreateSlip(ctx, clerk, ledger.SlipInput{
		Type:       ledger.SlipReceive,
		PropertyID: "prop-1",
		ToLocation: "main-store",
		Vendor:     "Acme Supply",
		Lines:      []ledger.LineInput{ledger.StockLine{ItemID: "towel", Qty: decimal.NewFromInt(40)}},
	})
	require.NoError(t, err)

	slip, err := engine.CreateSlip(ctx, clerk, ledger.SlipInput{
		Type:         ledger.SlipIssue,
		PropertyID:   "prop-1",
		FromLocation: loc("main-store"),
		ToLocation:   "housekeeping",
		DepartmentID: "hk",
		Signature:    &ledger.SignatureInput{SignerName: "R. Porter", Method: ledger.SignatureTyped},
		Lines:        []ledger.LineInput{ledger.StockLine{ItemID: "towel", Qty: decimal.NewFromInt(15)}},
	})
	require.NoError(t, err)

	bal, err := store.GetBalance(ctx, "towel", "main-store")
	require.NoError(t, err)
	assert.True(t, bal.Equal(decimal.NewFromInt(25)), "main-store = %s", bal)
	bal, err = store.GetBalance(ctx, "towel", "housekeeping")
	require.NoError(t, err)
	assert.True(t, bal.Equal(decimal.NewFromInt(15)), "housekeeping = %s", bal)

	got, err := store.GetSlip(ctx, slip.ID)
	require.NoError(t, err)
	assert.Equal(t, slip.Number, got.Number)
	assert.Equal(t, ledger.SlipIssue, got.Type)
	require.NotNil(t, got.FromLocation)
	assert.Equal(t, ledger.LocationID("main-store"), *got.FromLocation)
	assert.Equal(t, ledger.DepartmentID("hk"), got.DepartmentID)

	lines, err := store.LinesBySlip(ctx, slip.ID)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.True(t, lines[0].Qty.Equal(decimal.NewFromInt(15)))

	sigs, err := store.SignaturesBySlip(ctx, slip.ID)
	require.NoError(t, err)
	require.Len(t, sigs, 1)
	assert.Equal(t, "R. Porter", sigs[0].SignerName)

	moves, err := store.MovementsByItem(ctx, "towel", "housekeeping")
	require.NoError(t, err)
	require.Len(t, moves, 1)
	assert.Equal(t, ledger.MoveIssueOut, moves[0].Type)
}

func TestSQLite_FailedSlip_RollsBack(t *testing.T) {
	// A slip whose second line overdraws must leave no rows behind.

	store := newTestStore(t)
	ctx := context.Background()
	seedStockItem(t, store, "towel")
	seedStockItem(t, store, "soap")
	engine := ledger.NewEngine(store)

	_, err := engine.CreateSlip(ctx, clerk, ledger.SlipInput{
		Type:       ledger.SlipReceive,
		PropertyID: "prop-1",
		ToLocation: "main-store",
		Lines:      []ledger.LineInput{ledger.StockLine{ItemID: "towel", Qty: decimal.NewFromInt(10)}},
	})
	require.NoError(t, err)

	_, err = engine.CreateSlip(ctx, clerk, ledger.SlipInput{
		Type:         ledger.SlipIssue,
		PropertyID:   "prop-1",
		FromLocation: loc("main-store"),
		ToLocation:   "housekeeping",
		Lines: []ledger.LineInput{
			ledger.StockLine{ItemID: "towel", Qty: decimal.NewFromInt(5)},
			ledger.StockLine{ItemID: "soap", Qty: decimal.NewFromInt(1)},
		},
	})
	assert.ErrorIs(t, err, ledger.ErrInsufficientStock)

	bal, err := store.GetBalance(ctx, "towel", "main-store")
	require.NoError(t, err)
	assert.True(t, bal.Equal(decimal.NewFromInt(10)), "balance = %s, want 10 untouched", bal)

	moves, err := store.MovementsByItem(ctx, "towel", "")
	require.NoError(t, err)
	require.Len(t, moves, 1)
	assert.Equal(t, ledger.MoveReceiveIn, moves[0].Type)
}

func TestSQLite_CumulativeReturns_Conserved(t *testing.T) {
	// Conservation must hold across transactions: returns committed earlier
	// count against the source's issued quantity.

	store := newTestStore(t)
	ctx := context.Background()
	seedStockItem(t, store, "towel")
	engine := ledger.NewEngine(store)

	_, err := engine.CreateSlip(ctx, clerk, ledger.SlipInput{
		Type:       ledger.SlipReceive,
		PropertyID: "prop-1",
		ToLocation: "main-store",
		Lines:      []ledger.LineInput{ledger.StockLine{ItemID: "towel", Qty: decimal.NewFromInt(30)}},
	})
	require.NoError(t, err)

	issue := func() *ledger.Slip {
		slip, err := engine.CreateSlip(ctx, clerk, ledger.SlipInput{
			Type:         ledger.SlipIssue,
			PropertyID:   "prop-1",
			FromLocation: loc("main-store"),
			ToLocation:   "housekeeping",
			Lines:        []ledger.LineInput{ledger.StockLine{ItemID: "towel", Qty: decimal.NewFromInt(10)}},
		})
		require.NoError(t, err)
		return slip
	}
	first := issue()
	issue()

	returnAgainst := func(n int64) error {
		_, err := engine.CreateSlip(ctx, clerk, ledger.SlipInput{
			Type:         ledger.SlipReturn,
			PropertyID:   "prop-1",
			FromLocation: loc("housekeeping"),
			ToLocation:   "main-store",
			SourceSlipID: &first.ID,
			Lines:        []ledger.LineInput{ledger.StockLine{ItemID: "towel", Qty: decimal.NewFromInt(n)}},
		})
		return err
	}
	require.NoError(t, returnAgainst(10))
	assert.ErrorIs(t, returnAgainst(10), ledger.ErrOverReturn)
}

func TestSQLite_BalanceTimestampFollowsEngineClock(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedStockItem(t, store, "towel")

	fixed := time.Date(2026, time.March, 5, 10, 0, 0, 0, time.UTC)
	engine := &ledger.Engine{Store: store, Now: func() time.Time { return fixed }}

	_, err := engine.CreateSlip(ctx, clerk, ledger.SlipInput{
		Type:       ledger.SlipReceive,
		PropertyID: "prop-1",
		ToLocation: "main-store",
		Lines:      []ledger.LineInput{ledger.StockLine{ItemID: "towel", Qty: decimal.NewFromInt(3)}},
	})
	require.NoError(t, err)

	balances, err := store.BalancesByLocation(ctx, "main-store")
	require.NoError(t, err)
	require.Len(t, balances, 1)
	assert.True(t, balances[0].UpdatedAt.Equal(fixed), "updated_at = %s, want %s", balances[0].UpdatedAt, fixed)
}

func TestSQLite_AuditQueryFilters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedStockItem(t, store, "towel")
	engine := ledger.NewEngine(store)

	slip, err := engine.CreateSlip(ctx, clerk, ledger.SlipInput{
		Type:       ledger.SlipReceive,
		PropertyID: "prop-1",
		ToLocation: "main-store",
		Lines:      []ledger.LineInput{ledger.StockLine{ItemID: "towel", Qty: decimal.NewFromInt(3)}},
	})
	require.NoError(t, err)

	events, err := store.QueryAudit(ctx, ledger.AuditFilter{Entity: "slip"})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, string(slip.ID), events[0].EntityID)
	assert.Equal(t, clerk.ID, events[0].ActorID)
	assert.NotEmpty(t, events[0].NewValue)
	assert.Nil(t, events[0].OldValue)

	events, err = store.QueryAudit(ctx, ledger.AuditFilter{ActorID: "nobody"})
	require.NoError(t, err)
	assert.Empty(t, events)
}

// =============================================================================
// SCHEMA BACKSTOPS
// =============================================================================

func TestSQLite_OpenTicketIndex_Backstop(t *testing.T) {
	// The partial unique index catches a duplicate open ticket even when
	// the write bypasses the engine's HasOpenTicket check.

	store := newTestStore(t)
	ctx := context.Background()
	seedAsset(t, store, "vac-1")

	insert := func() error {
		return store.WithTicketTx(ctx, func(tx maintenance.Tx) error {
			now := time.Now()
			return tx.InsertTicket(ctx, &maintenance.Ticket{
				ID:        maintenance.TicketID(uuid.NewString()),
				AssetID:   "vac-1",
				Status:    maintenance.StatusReported,
				Problem:   "rattles",
				OpenedBy:  clerk.ID,
				OpenedAt:  now,
				UpdatedAt: now,
			})
		})
	}
	require.NoError(t, insert())
	assert.ErrorIs(t, insert(), maintenance.ErrDuplicateOpenTicket)
}

func TestSQLite_DuplicateSignature_Backstop(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedStockItem(t, store, "towel")
	engine := ledger.NewEngine(store)

	slip, err := engine.CreateSlip(ctx, clerk, ledger.SlipInput{
		Type:       ledger.SlipReceive,
		PropertyID: "prop-1",
		ToLocation: "main-store",
		Lines:      []ledger.LineInput{ledger.StockLine{ItemID: "towel", Qty: decimal.NewFromInt(1)}},
	})
	require.NoError(t, err)

	in := ledger.SignatureInput{SignerName: "R. Porter", Method: ledger.SignatureDrawn}
	_, err = engine.AddSignature(ctx, clerk, slip.ID, in)
	require.NoError(t, err)
	_, err = engine.AddSignature(ctx, clerk, slip.ID, in)
	assert.ErrorIs(t, err, ledger.ErrDuplicateSignature)
}

// =============================================================================
// MAINTENANCE ROUNDTRIP
// =============================================================================

func TestSQLite_TicketLifecycleRoundtrip(t *testing.T) {
	// Full episode against the durable store: open, send to vendor with an
	// estimate, fix, close; verify ticket, trail, asset, and movements.

	store := newTestStore(t)
	ctx := context.Background()
	seedAsset(t, store, "vac-1")
	engine := maintenance.NewEngine(store)

	ticket, err := engine.CreateTicket(ctx, clerk, maintenance.TicketInput{
		AssetID: "vac-1",
		Problem: "motor rattles",
	})
	require.NoError(t, err)

	vendor := "SpinFix Ltd"
	estimate := decimal.NewFromInt(120)
	_, err = engine.UpdateStatus(ctx, clerk, maintenance.StatusUpdateInput{
		TicketID:      ticket.ID,
		Status:        maintenance.StatusSentToVendor,
		Vendor:        &vendor,
		EstimatedCost: &estimate,
	})
	require.NoError(t, err)
	_, err = engine.UpdateStatus(ctx, clerk, maintenance.StatusUpdateInput{
		TicketID: ticket.ID,
		Status:   maintenance.StatusFixed,
	})
	require.NoError(t, err)

	actual := decimal.NewFromInt(95)
	closed, err := engine.CloseTicket(ctx, clerk, maintenance.CloseInput{
		TicketID:   ticket.ID,
		ActualCost: &actual,
	})
	require.NoError(t, err)
	assert.Equal(t, maintenance.StatusClosed, closed.Status)

	got, err := store.GetTicket(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, maintenance.StatusClosed, got.Status)
	assert.Equal(t, vendor, got.Vendor)
	require.NotNil(t, got.EstimatedCost)
	assert.True(t, got.EstimatedCost.Equal(estimate))
	require.NotNil(t, got.ActualCost)
	assert.True(t, got.ActualCost.Equal(actual))
	require.NotNil(t, got.ClosedAt)

	logs, err := store.LogsByTicket(ctx, ticket.ID)
	require.NoError(t, err)
	require.Len(t, logs, 4)
	assert.Nil(t, logs[0].FromStatus)
	assert.Equal(t, maintenance.StatusClosed, logs[3].ToStatus)

	asset, err := store.GetAsset(ctx, "vac-1")
	require.NoError(t, err)
	assert.Equal(t, ledger.ConditionGood, asset.Condition)

	moves, err := store.MovementsByAsset(ctx, "vac-1")
	require.NoError(t, err)
	require.Len(t, moves, 2)
	assert.Equal(t, ledger.MoveMaintOut, moves[0].Type)
	assert.Equal(t, ledger.MoveMaintIn, moves[1].Type)

	open, err := store.OpenTickets(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)
}
