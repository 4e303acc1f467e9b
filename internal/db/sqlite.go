package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/amirphl/strategy-lab/internal/candle"
)

// SQLite stores candles in a local database file. Timestamps are kept as
// unix seconds.
type SQLite struct {
	db     *sql.DB
	logger zerolog.Logger
}

// OpenSQLite opens path in WAL mode and creates the candles table when it
// does not exist yet.
func OpenSQLite(ctx context.Context, path string, opts Options) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSQLiteSchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	opts.Logger.Info().Str("path", path).Msg("opened sqlite candle store")
	return &SQLite{db: db, logger: opts.Logger}, nil
}

func createSQLiteSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS candles (
			symbol    TEXT    NOT NULL,
			timeframe TEXT    NOT NULL,
			ts        INTEGER NOT NULL,
			open      REAL    NOT NULL,
			high      REAL    NOT NULL,
			low       REAL    NOT NULL,
			close     REAL    NOT NULL,
			volume    REAL    NOT NULL,
			source    TEXT    NOT NULL DEFAULT '',
			PRIMARY KEY (symbol, timeframe, ts, source)
		);
		CREATE INDEX IF NOT EXISTS idx_candles_ts ON candles (ts);
	`)
	return err
}

func (s *SQLite) SaveCandles(ctx context.Context, candles []candle.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	if err := candle.ValidateAll(candles); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO candles (symbol, timeframe, ts, open, high, low, close, volume, source)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (symbol, timeframe, ts, source) DO UPDATE SET
			open=excluded.open, high=excluded.high, low=excluded.low,
			close=excluded.close, volume=excluded.volume
	`)
	if err != nil {
		return fmt.Errorf("sqlite prepare: %w", err)
	}
	defer stmt.Close()

	for _, c := range candles {
		if _, err := stmt.ExecContext(ctx, c.Symbol, c.Timeframe, c.Timestamp.Unix(),
			c.Open, c.High, c.Low, c.Close, c.Volume, c.Source); err != nil {
			return fmt.Errorf("sqlite insert candle at %s: %w", c.Timestamp, err)
		}
	}
	return tx.Commit()
}

func (s *SQLite) GetCandles(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]candle.Candle, error) {
	where := []string{"ts >= ?"}
	args := []any{start.Unix()}
	if !end.IsZero() {
		where = append(where, "ts < ?")
		args = append(args, end.Unix())
	}
	if symbol != "" {
		where = append(where, "symbol = ? COLLATE NOCASE")
		args = append(args, symbol)
	}
	if timeframe != "" {
		where = append(where, "timeframe = ?")
		args = append(args, timeframe)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, timeframe, ts, open, high, low, close, volume, source
		FROM candles
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY ts ASC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite query candles: %w", err)
	}
	defer rows.Close()

	var candles []candle.Candle
	for rows.Next() {
		var c candle.Candle
		var tsUnix int64
		if err := rows.Scan(&c.Symbol, &c.Timeframe, &tsUnix, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume, &c.Source); err != nil {
			return nil, fmt.Errorf("sqlite scan candles: %w", err)
		}
		c.Timestamp = time.Unix(tsUnix, 0).UTC()
		candles = append(candles, c)
	}
	return candles, rows.Err()
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
