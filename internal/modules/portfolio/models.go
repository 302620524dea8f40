// Package portfolio holds the externally owned portfolio and position records
// the analytics engines read, plus weight resolution. Nothing here mutates
// portfolios; CRUD lives in the owning system.
package portfolio

// Portfolio is a basket of positions tracked for nightly analytics
type Portfolio struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

// Position is one holding inside a portfolio. MarketValue and LastPrice come
// from the owning system and may be absent; weight resolution falls back to
// quantity times entry price.
type Position struct {
	ID          int64    `json:"id"`
	PortfolioID int64    `json:"portfolio_id"`
	Symbol      string   `json:"symbol"`
	Quantity    float64  `json:"quantity"`
	EntryPrice  float64  `json:"entry_price"`
	MarketValue *float64 `json:"market_value,omitempty"`
	LastPrice   *float64 `json:"last_price,omitempty"`
}

// Value resolves the position's dollar value using the market value when
// present and positive, otherwise quantity times entry price.
func (p Position) Value() (float64, ValueSource) {
	if p.MarketValue != nil && *p.MarketValue > 0 {
		return *p.MarketValue, ValueSourceMarket
	}
	if v := p.Quantity * p.EntryPrice; v > 0 {
		return v, ValueSourceEntry
	}
	return 0, ValueSourceNone
}

// Schema is the portfolio slice of the analytics database DDL.
const Schema = `
CREATE TABLE IF NOT EXISTS portfolios (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	name       TEXT NOT NULL UNIQUE,
	active     INTEGER NOT NULL DEFAULT 1,
	created_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS positions (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	portfolio_id INTEGER NOT NULL REFERENCES portfolios(id),
	symbol       TEXT NOT NULL,
	quantity     REAL NOT NULL,
	entry_price  REAL NOT NULL,
	market_value REAL,
	last_price   REAL,
	UNIQUE (portfolio_id, symbol)
);
CREATE INDEX IF NOT EXISTS idx_positions_portfolio ON positions(portfolio_id);
`
