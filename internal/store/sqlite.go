package store

import (
	"context"
	"database/sql"
	"fmt"

	"quantbt/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ RunStore = (*SQLiteStore)(nil)

// SQLiteStore implements RunStore backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, runs the
// schema migration, and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func migrate(db *sql.DB) error {
	const schema = `
CREATE TABLE IF NOT EXISTS signals (
	run         TEXT    NOT NULL,
	ts          INTEGER NOT NULL,
	strategy    TEXT    NOT NULL,
	ticker      TEXT    NOT NULL,
	asset_class TEXT    NOT NULL,
	type        TEXT    NOT NULL,
	strength    REAL    NOT NULL
);
CREATE TABLE IF NOT EXISTS trades (
	run         TEXT    NOT NULL,
	ts          INTEGER NOT NULL,
	strategy    TEXT    NOT NULL,
	ticker      TEXT    NOT NULL,
	asset_class TEXT    NOT NULL,
	quantity    INTEGER NOT NULL,
	limit_price REAL    NOT NULL,
	trade_type  TEXT    NOT NULL
);
CREATE TABLE IF NOT EXISTS position_snapshots (
	run         TEXT    NOT NULL,
	ts          INTEGER NOT NULL,
	strategy    TEXT    NOT NULL,
	ticker      TEXT    NOT NULL,
	asset_class TEXT    NOT NULL,
	quantity    INTEGER NOT NULL,
	cost_basis  REAL    NOT NULL,
	cash        REAL    NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_signals_run_ts ON signals(run, ts);
CREATE INDEX IF NOT EXISTS idx_trades_run_ts ON trades(run, ts);
CREATE INDEX IF NOT EXISTS idx_snapshots_run_ts ON position_snapshots(run, ts);
`
	_, err := db.Exec(schema)
	return err
}

// ---------------------------------------------------------------------------
// RunStore implementation
// ---------------------------------------------------------------------------

// SaveSignals inserts one step's signals in a single transaction.
func (s *SQLiteStore) SaveSignals(ctx context.Context, run string, signals []domain.Signal) error {
	if len(signals) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO signals (run, ts, strategy, ticker, asset_class, type, strength)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, sig := range signals {
		if _, err := stmt.ExecContext(ctx, run, sig.Timestamp, sig.Strategy,
			sig.Symbol.Ticker, string(sig.Symbol.AssetClass), string(sig.Type), sig.Strength); err != nil {
			return fmt.Errorf("inserting signal for %s: %w", sig.Symbol, err)
		}
	}
	return tx.Commit()
}

// SaveTrades inserts one step's executed trades for a strategy.
func (s *SQLiteStore) SaveTrades(ctx context.Context, run, strategy string, trades []domain.Trade) error {
	if len(trades) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO trades (run, ts, strategy, ticker, asset_class, quantity, limit_price, trade_type)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, tr := range trades {
		if _, err := stmt.ExecContext(ctx, run, tr.Timestamp, strategy,
			tr.Symbol.Ticker, string(tr.Symbol.AssetClass), tr.Quantity, tr.Limit, string(tr.Type)); err != nil {
			return fmt.Errorf("inserting trade for %s: %w", tr.Symbol, err)
		}
	}
	return tx.Commit()
}

// SavePositions inserts a snapshot of a strategy's open positions at ts.
func (s *SQLiteStore) SavePositions(ctx context.Context, run, strategy string, ts int64, cash float64, positions []domain.Position) error {
	if len(positions) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO position_snapshots (run, ts, strategy, ticker, asset_class, quantity, cost_basis, cash)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, pos := range positions {
		if _, err := stmt.ExecContext(ctx, run, ts, strategy,
			pos.Symbol.Ticker, string(pos.Symbol.AssetClass), pos.Quantity, pos.Price, cash); err != nil {
			return fmt.Errorf("inserting position for %s: %w", pos.Symbol, err)
		}
	}
	return tx.Commit()
}

// CountRows returns the number of rows the given run wrote to a table. It
// exists for verification and tests; table must be one of the known tables.
func (s *SQLiteStore) CountRows(ctx context.Context, table, run string) (int, error) {
	switch table {
	case "signals", "trades", "position_snapshots":
	default:
		return 0, fmt.Errorf("unknown table %q", table)
	}
	var n int
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE run = ?", table), run).Scan(&n)
	return n, err
}
