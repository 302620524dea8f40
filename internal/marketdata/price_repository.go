package marketdata

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// PriceRepository handles daily price database operations on market.db.
// Writes are append-only: a later fetch for the same symbol/date never
// overwrites the stored close.
type PriceRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewPriceRepository creates a new price repository
func NewPriceRepository(db *sql.DB, log zerolog.Logger) *PriceRepository {
	return &PriceRepository{
		db:  db,
		log: log.With().Str("repo", "prices").Logger(),
	}
}

// InsertDailyCloses appends closing prices for one date. Existing rows for a
// symbol/date are kept as-is (idempotent collection). Returns the number of
// rows actually inserted.
func (r *PriceRepository) InsertDailyCloses(ctx context.Context, date string, closes map[string]float64) (int, error) {
	if len(closes) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO daily_prices (symbol, date, close_price)
		VALUES (?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for symbol, close := range closes {
		res, err := stmt.ExecContext(ctx, normalizeSymbol(symbol), date, close)
		if err != nil {
			return 0, fmt.Errorf("failed to insert price for %s: %w", symbol, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit prices: %w", err)
	}

	r.log.Debug().
		Str("date", date).
		Int("symbols", len(closes)).
		Int("inserted", inserted).
		Msg("Stored daily closes")

	return inserted, nil
}

// GetRange performs one bulk read of all prices for the given symbols within
// [startDate, endDate]. This is the only read path the price cache uses.
func (r *PriceRepository) GetRange(ctx context.Context, symbols []string, startDate, endDate string) ([]PricePoint, error) {
	if len(symbols) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(symbols))
	args := make([]interface{}, 0, len(symbols)+2)
	for i, s := range symbols {
		placeholders[i] = "?"
		args = append(args, normalizeSymbol(s))
	}
	args = append(args, startDate, endDate)

	query := fmt.Sprintf(`
		SELECT symbol, date, close_price
		FROM daily_prices
		WHERE symbol IN (%s) AND date >= ? AND date <= ?
		ORDER BY symbol, date
	`, strings.Join(placeholders, ","))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query price range: %w", err)
	}
	defer rows.Close()

	var points []PricePoint
	for rows.Next() {
		var p PricePoint
		if err := rows.Scan(&p.Symbol, &p.Date, &p.Close); err != nil {
			return nil, fmt.Errorf("failed to scan price: %w", err)
		}
		points = append(points, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating prices: %w", err)
	}

	return points, nil
}

// GetClose returns the stored close for one symbol/date, or nil when absent
func (r *PriceRepository) GetClose(ctx context.Context, symbol, date string) (*float64, error) {
	var close float64
	err := r.db.QueryRowContext(ctx, `
		SELECT close_price FROM daily_prices WHERE symbol = ? AND date = ?
	`, normalizeSymbol(symbol), date).Scan(&close)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query close: %w", err)
	}
	return &close, nil
}

// CountForDate returns the number of stored prices for a date
func (r *PriceRepository) CountForDate(ctx context.Context, date string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM daily_prices WHERE date = ?
	`, date).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count prices: %w", err)
	}
	return count, nil
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
