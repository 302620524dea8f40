// Package marketdata owns the durable daily price history (market.db) and its
// Phase 1 collection path: fetching end-of-day closes from the quote feed and
// appending them to the price store.
package marketdata

// DateFormat is the canonical calculation-date format used across the system.
const DateFormat = "2006-01-02"

// PricePoint represents one daily closing price. Rows are immutable once
// written for a given symbol/date.
type PricePoint struct {
	Symbol string  `json:"symbol"`
	Date   string  `json:"date"` // YYYY-MM-DD
	Close  float64 `json:"close"`
}

// Schema is the DDL for market.db.
const Schema = `
CREATE TABLE IF NOT EXISTS daily_prices (
	symbol      TEXT NOT NULL,
	date        TEXT NOT NULL,
	close_price REAL NOT NULL,
	created_at  TEXT NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (symbol, date)
);
CREATE INDEX IF NOT EXISTS idx_daily_prices_date ON daily_prices(date);
`
