package portfolio

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"
)

// Repository reads portfolios and positions from analytics.db
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new portfolio repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "portfolio").Logger(),
	}
}

// GetActive returns all active portfolios ordered by ID
func (r *Repository) GetActive(ctx context.Context) ([]Portfolio, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, active FROM portfolios WHERE active = 1 ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query active portfolios: %w", err)
	}
	defer rows.Close()

	return scanPortfolios(rows)
}

// GetByIDs returns the portfolios with the given IDs, active or not
func (r *Repository) GetByIDs(ctx context.Context, ids []int64) ([]Portfolio, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := `SELECT id, name, active FROM portfolios WHERE id IN (`
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		if i > 0 {
			query += ","
		}
		query += "?"
		args[i] = id
	}
	query += ") ORDER BY id"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query portfolios: %w", err)
	}
	defer rows.Close()

	return scanPortfolios(rows)
}

// GetPositions returns all positions of one portfolio
func (r *Repository) GetPositions(ctx context.Context, portfolioID int64) ([]Position, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, portfolio_id, symbol, quantity, entry_price, market_value, last_price
		FROM positions
		WHERE portfolio_id = ?
		ORDER BY symbol
	`, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	var positions []Position
	for rows.Next() {
		var p Position
		var marketValue, lastPrice sql.NullFloat64
		if err := rows.Scan(&p.ID, &p.PortfolioID, &p.Symbol, &p.Quantity, &p.EntryPrice, &marketValue, &lastPrice); err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		if marketValue.Valid {
			p.MarketValue = &marketValue.Float64
		}
		if lastPrice.Valid {
			p.LastPrice = &lastPrice.Float64
		}
		positions = append(positions, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating positions: %w", err)
	}

	return positions, nil
}

// Symbols returns the distinct symbols held across all active portfolios
func (r *Repository) Symbols(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT p.symbol
		FROM positions p
		JOIN portfolios pf ON pf.id = p.portfolio_id
		WHERE pf.active = 1
		ORDER BY p.symbol
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query held symbols: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("failed to scan symbol: %w", err)
		}
		symbols = append(symbols, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating symbols: %w", err)
	}

	return symbols, nil
}

func scanPortfolios(rows *sql.Rows) ([]Portfolio, error) {
	var portfolios []Portfolio
	for rows.Next() {
		var p Portfolio
		if err := rows.Scan(&p.ID, &p.Name, &p.Active); err != nil {
			return nil, fmt.Errorf("failed to scan portfolio: %w", err)
		}
		portfolios = append(portfolios, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating portfolios: %w", err)
	}
	return portfolios, nil
}
