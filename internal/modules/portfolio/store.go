package portfolio

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/tmarkos/quant-trader/internal/database"
)

// Store persists ledger state to SQLite. Each Persist call writes the
// materialized portfolio/positions view and, when given, appends the
// transaction record in the same database transaction.
type Store struct {
	db *database.DB
}

// NewStore creates a ledger store
func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

// Load restores the last persisted snapshot, or nil if the database has
// never been seeded.
func (s *Store) Load() (*Snapshot, error) {
	var snap Snapshot
	var updatedAt string

	err := s.db.QueryRow(
		`SELECT cash, realized_pnl_today, consecutive_losses, start_of_day_value, updated_at
		 FROM portfolio WHERE id = 1`,
	).Scan(&snap.Cash, &snap.RealizedPnLToday, &snap.ConsecutiveLosses, &snap.StartOfDayValue, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load portfolio row: %w", err)
	}

	snap.Positions = make(map[string]Position)
	rows, err := s.db.Query(
		`SELECT symbol, shares, cost_basis, entry_score, entry_at, stop_loss_price, take_profit_price
		 FROM positions`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load positions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var pos Position
		var entryAt string
		if err := rows.Scan(&pos.Symbol, &pos.Shares, &pos.CostBasis, &pos.EntryScore,
			&entryAt, &pos.StopLossPrice, &pos.TakeProfitPrice); err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		pos.EntryAt, _ = time.Parse(time.RFC3339, entryAt)
		snap.Positions[pos.Symbol] = pos
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate positions: %w", err)
	}

	return &snap, nil
}

// Persist writes the snapshot and optionally appends a transaction,
// atomically.
func (s *Store) Persist(snap Snapshot, txRecord *Transaction) error {
	dbTx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := dbTx.Exec(
		`INSERT INTO portfolio (id, cash, realized_pnl_today, consecutive_losses, start_of_day_value, updated_at)
		 VALUES (1, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			cash = excluded.cash,
			realized_pnl_today = excluded.realized_pnl_today,
			consecutive_losses = excluded.consecutive_losses,
			start_of_day_value = excluded.start_of_day_value,
			updated_at = excluded.updated_at`,
		snap.Cash, snap.RealizedPnLToday, snap.ConsecutiveLosses, snap.StartOfDayValue, now,
	); err != nil {
		return fmt.Errorf("failed to upsert portfolio: %w", err)
	}

	// The positions table is small; rewriting it whole keeps the code
	// simpler than diffing against the previous state.
	if _, err := dbTx.Exec(`DELETE FROM positions`); err != nil {
		return fmt.Errorf("failed to clear positions: %w", err)
	}
	for _, pos := range snap.Positions {
		if _, err := dbTx.Exec(
			`INSERT INTO positions (symbol, shares, cost_basis, entry_score, entry_at, stop_loss_price, take_profit_price)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			pos.Symbol, pos.Shares, pos.CostBasis, pos.EntryScore,
			pos.EntryAt.UTC().Format(time.RFC3339), pos.StopLossPrice, pos.TakeProfitPrice,
		); err != nil {
			return fmt.Errorf("failed to insert position %s: %w", pos.Symbol, err)
		}
	}

	if txRecord != nil {
		res, err := dbTx.Exec(
			`INSERT INTO transactions (timestamp, symbol, action, shares, price, fees, realized_pnl, order_id)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			txRecord.Timestamp.UTC().Format(time.RFC3339), txRecord.Symbol, string(txRecord.Action),
			txRecord.Shares, txRecord.Price, txRecord.Fees, txRecord.RealizedPnL, txRecord.OrderID,
		)
		if err != nil {
			return fmt.Errorf("failed to append transaction: %w", err)
		}
		if id, err := res.LastInsertId(); err == nil {
			txRecord.ID = id
		}
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit ledger write: %w", err)
	}
	return nil
}

// Transactions returns the most recent trade records, newest first
func (s *Store) Transactions(limit int) ([]Transaction, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.Query(
		`SELECT id, timestamp, symbol, action, shares, price, fees, realized_pnl, COALESCE(order_id, '')
		 FROM transactions ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	out := make([]Transaction, 0, limit)
	for rows.Next() {
		var tx Transaction
		var ts, action string
		if err := rows.Scan(&tx.ID, &ts, &tx.Symbol, &action, &tx.Shares,
			&tx.Price, &tx.Fees, &tx.RealizedPnL, &tx.OrderID); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		tx.Timestamp, _ = time.Parse(time.RFC3339, ts)
		tx.Action = Action(action)
		out = append(out, tx)
	}
	return out, rows.Err()
}
