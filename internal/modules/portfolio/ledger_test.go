package portfolio

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tmarkos/quant-trader/internal/database"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()

	db, err := database.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate())

	ledger, err := NewLedger(NewStore(db), 100000, zerolog.Nop())
	require.NoError(t, err)
	return ledger
}

func TestApplyBuyOpensPosition(t *testing.T) {
	ledger := newTestLedger(t)

	_, err := ledger.Apply(Transaction{
		Symbol:          "AAPL",
		Action:          ActionBuy,
		Shares:          100,
		Price:           150,
		Fees:            1,
		StopLossPrice:   142.5,
		TakeProfitPrice: 165,
		EntryScore:      42,
	})
	require.NoError(t, err)

	snap := ledger.Snapshot()
	assert.InDelta(t, 100000-15001, snap.Cash, 1e-9)

	pos, ok := ledger.Position("AAPL")
	require.True(t, ok)
	assert.Equal(t, 100.0, pos.Shares)
	assert.InDelta(t, 150.01, pos.CostBasis, 1e-9) // fees folded into basis
	assert.Equal(t, 142.5, pos.StopLossPrice)
	assert.Equal(t, 165.0, pos.TakeProfitPrice)
	assert.Equal(t, 42.0, pos.EntryScore)
}

func TestApplyBuyAveragesBasis(t *testing.T) {
	ledger := newTestLedger(t)

	_, err := ledger.Apply(Transaction{Symbol: "AAPL", Action: ActionBuy, Shares: 100, Price: 100})
	require.NoError(t, err)
	_, err = ledger.Apply(Transaction{Symbol: "AAPL", Action: ActionBuy, Shares: 100, Price: 120})
	require.NoError(t, err)

	pos, ok := ledger.Position("AAPL")
	require.True(t, ok)
	assert.Equal(t, 200.0, pos.Shares)
	assert.InDelta(t, 110.0, pos.CostBasis, 1e-9) // VWAP of 100 and 120
}

func TestApplySellRealizesPnL(t *testing.T) {
	ledger := newTestLedger(t)

	_, err := ledger.Apply(Transaction{Symbol: "AAPL", Action: ActionBuy, Shares: 100, Price: 100})
	require.NoError(t, err)

	tx, err := ledger.Apply(Transaction{Symbol: "AAPL", Action: ActionSell, Shares: 100, Price: 110, Fees: 1})
	require.NoError(t, err)

	// proceeds 11000 - 1 fees - basis 10000 = 999
	assert.InDelta(t, 999.0, tx.RealizedPnL, 1e-9)

	snap := ledger.Snapshot()
	assert.InDelta(t, 100999.0, snap.Cash, 1e-9)
	assert.InDelta(t, 999.0, snap.RealizedPnLToday, 1e-9)
	assert.Equal(t, 0, snap.ConsecutiveLosses)

	_, ok := ledger.Position("AAPL")
	assert.False(t, ok)
}

func TestPartialSellKeepsBasis(t *testing.T) {
	ledger := newTestLedger(t)

	_, err := ledger.Apply(Transaction{Symbol: "AAPL", Action: ActionBuy, Shares: 100, Price: 100})
	require.NoError(t, err)
	_, err = ledger.Apply(Transaction{Symbol: "AAPL", Action: ActionSell, Shares: 40, Price: 105})
	require.NoError(t, err)

	pos, ok := ledger.Position("AAPL")
	require.True(t, ok)
	assert.Equal(t, 60.0, pos.Shares)
	assert.InDelta(t, 100.0, pos.CostBasis, 1e-9)
}

func TestConsecutiveLossTracking(t *testing.T) {
	ledger := newTestLedger(t)

	losers := []string{"AAPL", "MSFT"}
	for _, sym := range losers {
		_, err := ledger.Apply(Transaction{Symbol: sym, Action: ActionBuy, Shares: 10, Price: 100})
		require.NoError(t, err)
		_, err = ledger.Apply(Transaction{Symbol: sym, Action: ActionStopLoss, Shares: 10, Price: 90})
		require.NoError(t, err)
	}
	assert.Equal(t, 2, ledger.Snapshot().ConsecutiveLosses)

	// A winner resets the streak
	_, err := ledger.Apply(Transaction{Symbol: "GOOG", Action: ActionBuy, Shares: 10, Price: 100})
	require.NoError(t, err)
	_, err = ledger.Apply(Transaction{Symbol: "GOOG", Action: ActionTakeProfit, Shares: 10, Price: 115})
	require.NoError(t, err)

	assert.Equal(t, 0, ledger.Snapshot().ConsecutiveLosses)
}

func TestApplyRejectsInvalid(t *testing.T) {
	ledger := newTestLedger(t)

	tests := []struct {
		name string
		tx   Transaction
	}{
		{"zero shares", Transaction{Symbol: "AAPL", Action: ActionBuy, Shares: 0, Price: 100}},
		{"zero price", Transaction{Symbol: "AAPL", Action: ActionBuy, Shares: 10, Price: 0}},
		{"sell without position", Transaction{Symbol: "AAPL", Action: ActionSell, Shares: 10, Price: 100}},
		{"overspend", Transaction{Symbol: "AAPL", Action: ActionBuy, Shares: 10000, Price: 100}},
		{"unknown action", Transaction{Symbol: "AAPL", Action: Action("SHORT"), Shares: 10, Price: 100}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ledger.Apply(tt.tx)
			assert.Error(t, err)
		})
	}

	// Failed applies must not change state
	snap := ledger.Snapshot()
	assert.Equal(t, 100000.0, snap.Cash)
	assert.Empty(t, snap.Positions)
}

func TestOversellRejected(t *testing.T) {
	ledger := newTestLedger(t)

	_, err := ledger.Apply(Transaction{Symbol: "AAPL", Action: ActionBuy, Shares: 10, Price: 100})
	require.NoError(t, err)

	_, err = ledger.Apply(Transaction{Symbol: "AAPL", Action: ActionSell, Shares: 20, Price: 100})
	assert.Error(t, err)

	pos, ok := ledger.Position("AAPL")
	require.True(t, ok)
	assert.Equal(t, 10.0, pos.Shares)
}

func TestResetDay(t *testing.T) {
	ledger := newTestLedger(t)

	_, err := ledger.Apply(Transaction{Symbol: "AAPL", Action: ActionBuy, Shares: 10, Price: 100})
	require.NoError(t, err)
	_, err = ledger.Apply(Transaction{Symbol: "AAPL", Action: ActionSell, Shares: 10, Price: 90})
	require.NoError(t, err)

	require.NoError(t, ledger.ResetDay(99000))

	snap := ledger.Snapshot()
	assert.Equal(t, 0.0, snap.RealizedPnLToday)
	assert.Equal(t, 99000.0, snap.StartOfDayValue)
	// Consecutive losses survive the day boundary; only wins clear them
	assert.Equal(t, 1, snap.ConsecutiveLosses)
}

func TestPersistenceRoundTrip(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "roundtrip.db")

	db, err := database.New(dbPath)
	require.NoError(t, err)
	require.NoError(t, db.Migrate())

	ledger, err := NewLedger(NewStore(db), 100000, zerolog.Nop())
	require.NoError(t, err)

	_, err = ledger.Apply(Transaction{
		Symbol:          "AAPL",
		Action:          ActionBuy,
		Shares:          50,
		Price:           200,
		StopLossPrice:   190,
		TakeProfitPrice: 220,
		Timestamp:       time.Date(2026, 8, 28, 14, 30, 0, 0, time.UTC),
		OrderID:         "order-1",
	})
	require.NoError(t, err)
	before := ledger.Snapshot()
	require.NoError(t, db.Close())

	// Reopen and restore
	db2, err := database.New(dbPath)
	require.NoError(t, err)
	defer db2.Close()

	restored, err := NewLedger(NewStore(db2), 0, zerolog.Nop())
	require.NoError(t, err)

	after := restored.Snapshot()
	assert.InDelta(t, before.Cash, after.Cash, 1e-9)
	assert.Equal(t, before.ConsecutiveLosses, after.ConsecutiveLosses)

	pos, ok := restored.Position("AAPL")
	require.True(t, ok)
	assert.Equal(t, 50.0, pos.Shares)
	assert.InDelta(t, 200.0, pos.CostBasis, 1e-9)
	assert.Equal(t, 190.0, pos.StopLossPrice)

	txs, err := restored.Transactions(10)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, "AAPL", txs[0].Symbol)
	assert.Equal(t, ActionBuy, txs[0].Action)
	assert.Equal(t, "order-1", txs[0].OrderID)
}
