package storage

// sqlite.go — journal de auditoría del bot.
//
// Estrategia:
//   - `transactions`: una fila por operación ejecutada en el ledger (buy/sell, SL/TP incluidos).
//   - `updates`: una fila por evento del bot, incluidos los errores por símbolo.
//   - Solo escritura desde el bot: el ledger nunca se reconstruye desde aquí,
//     cada arranque empieza con la cuenta limpia.
//   - Prune automático al arrancar: filas con más de 30 días.

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/alejandrodnm/paperbot/internal/domain"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS transactions (
    id       TEXT PRIMARY KEY,
    symbol   TEXT    NOT NULL,
    type     TEXT    NOT NULL,
    quantity REAL    NOT NULL,
    price    REAL    NOT NULL,
    reason   TEXT    NOT NULL,
    ts_ms    INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS updates (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    pass_id       TEXT    NOT NULL,
    symbol        TEXT    NOT NULL,
    action        TEXT    NOT NULL,
    reason        TEXT    NOT NULL DEFAULT '',
    confidence    REAL    NOT NULL DEFAULT 0,
    stop_loss     REAL    NOT NULL DEFAULT 0,
    take_profit   REAL    NOT NULL DEFAULT 0,
    position_size REAL    NOT NULL DEFAULT 0,
    quantity      REAL    NOT NULL DEFAULT 0,
    price         REAL    NOT NULL DEFAULT 0,
    ts_ms         INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tx_ts      ON transactions(ts_ms DESC);
CREATE INDEX IF NOT EXISTS idx_tx_symbol  ON transactions(symbol);
CREATE INDEX IF NOT EXISTS idx_updates_ts ON updates(ts_ms DESC);
`

const retention = 30 * 24 * time.Hour

// Summary agrega el journal desde un instante dado.
type Summary struct {
	Transactions int
	Buys         int
	Sells        int
	StopLosses   int
	TakeProfits  int
	BuyNotional  float64
	SellNotional float64
	Updates      int
	Errors       int // updates con action=error
	FirstAt      time.Time
	LastAt       time.Time
}

// SQLiteJournal implementa ports.Journal usando SQLite (pure Go, sin CGo).
type SQLiteJournal struct {
	db *sql.DB
}

// NewSQLiteJournal abre (o crea) la base de datos en la ruta dada y aplica el schema.
func NewSQLiteJournal(path string) (*SQLiteJournal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteJournal: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteJournal: apply schema: %w", err)
	}

	j := &SQLiteJournal{db: db}
	j.pruneOld(context.Background())
	return j, nil
}

// RecordTransaction añade una transacción ejecutada.
func (j *SQLiteJournal) RecordTransaction(ctx context.Context, tx domain.Transaction) error {
	if _, err := j.db.ExecContext(ctx,
		`INSERT INTO transactions (id, symbol, type, quantity, price, reason, ts_ms) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		tx.ID, tx.Symbol, string(tx.Type), tx.Quantity, tx.Price, string(tx.Reason), tx.Timestamp.UnixMilli(),
	); err != nil {
		return fmt.Errorf("storage.RecordTransaction %s: %w", tx.ID, err)
	}
	return nil
}

// RecordUpdate añade un evento del bot.
func (j *SQLiteJournal) RecordUpdate(ctx context.Context, u domain.BotUpdate) error {
	if _, err := j.db.ExecContext(ctx, `
		INSERT INTO updates
			(pass_id, symbol, action, reason, confidence, stop_loss, take_profit,
			 position_size, quantity, price, ts_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.PassID, u.Symbol, string(u.Action), u.Reason, u.Confidence, u.StopLoss, u.TakeProfit,
		u.PositionSize, u.Quantity, u.Price, u.Timestamp.UnixMilli(),
	); err != nil {
		return fmt.Errorf("storage.RecordUpdate %s: %w", u.Symbol, err)
	}
	return nil
}

// Summary agrega transacciones y updates con timestamp >= since.
func (j *SQLiteJournal) Summary(ctx context.Context, since time.Time) (Summary, error) {
	var (
		s           Summary
		first, last sql.NullInt64
	)
	sinceMs := since.UnixMilli()

	if err := j.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN type = 'buy'  THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN type = 'sell' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN reason = 'stop_loss'   THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN reason = 'take_profit' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN type = 'buy'  THEN quantity * price ELSE 0 END), 0.0),
		       COALESCE(SUM(CASE WHEN type = 'sell' THEN quantity * price ELSE 0 END), 0.0),
		       MIN(ts_ms), MAX(ts_ms)
		FROM transactions
		WHERE ts_ms >= ?
	`, sinceMs).Scan(
		&s.Transactions, &s.Buys, &s.Sells, &s.StopLosses, &s.TakeProfits,
		&s.BuyNotional, &s.SellNotional, &first, &last,
	); err != nil {
		return Summary{}, fmt.Errorf("storage.Summary: transactions: %w", err)
	}

	if err := j.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN action = 'error' THEN 1 ELSE 0 END), 0)
		FROM updates
		WHERE ts_ms >= ?
	`, sinceMs).Scan(&s.Updates, &s.Errors); err != nil {
		return Summary{}, fmt.Errorf("storage.Summary: updates: %w", err)
	}

	if first.Valid {
		s.FirstAt = time.UnixMilli(first.Int64).UTC()
	}
	if last.Valid {
		s.LastAt = time.UnixMilli(last.Int64).UTC()
	}
	return s, nil
}

// Close cierra la conexión a la base de datos.
func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}

// pruneOld elimina filas antiguas para mantener la DB ligera.
func (j *SQLiteJournal) pruneOld(ctx context.Context) {
	cutoff := time.Now().Add(-retention).UnixMilli()
	j.db.ExecContext(ctx, `DELETE FROM transactions WHERE ts_ms < ?`, cutoff)
	j.db.ExecContext(ctx, `DELETE FROM updates WHERE ts_ms < ?`, cutoff)
}
