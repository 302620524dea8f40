package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// QuoteProvider delivers end-of-day closing prices per symbol. The transport
// behind it (vendor feed, broker API) is external to this system.
type QuoteProvider interface {
	DailyCloses(ctx context.Context, symbols []string, date string) (map[string]float64, error)
}

// HTTPQuoteProvider fetches EOD closes from a JSON quote feed
type HTTPQuoteProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client
	log     zerolog.Logger
}

// NewHTTPQuoteProvider creates a new quote feed client
func NewHTTPQuoteProvider(baseURL, apiKey string, log zerolog.Logger) *HTTPQuoteProvider {
	return &HTTPQuoteProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 30 * time.Second},
		log:     log.With().Str("client", "quote_feed").Logger(),
	}
}

// eodResponse is the feed's payload for GET /eod
type eodResponse struct {
	Date   string `json:"date"`
	Quotes []struct {
		Symbol string  `json:"symbol"`
		Close  float64 `json:"close"`
	} `json:"quotes"`
}

// DailyCloses fetches closing prices for the given symbols on one date.
// Symbols absent from the feed's response are simply missing from the result;
// the caller decides whether that is acceptable.
func (p *HTTPQuoteProvider) DailyCloses(ctx context.Context, symbols []string, date string) (map[string]float64, error) {
	if len(symbols) == 0 {
		return map[string]float64{}, nil
	}

	params := url.Values{}
	params.Set("date", date)
	params.Set("symbols", strings.Join(symbols, ","))
	if p.apiKey != "" {
		params.Set("api_key", p.apiKey)
	}

	reqURL := fmt.Sprintf("%s/eod?%s", p.baseURL, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build quote request: %w", err)
	}

	p.log.Debug().Str("date", date).Int("symbols", len(symbols)).Msg("Fetching EOD closes")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("quote feed request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("quote feed returned status %d", resp.StatusCode)
	}

	var payload eodResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode quote response: %w", err)
	}

	closes := make(map[string]float64, len(payload.Quotes))
	for _, q := range payload.Quotes {
		if q.Close > 0 {
			closes[normalizeSymbol(q.Symbol)] = q.Close
		}
	}

	if len(closes) < len(symbols) {
		p.log.Warn().
			Str("date", date).
			Int("requested", len(symbols)).
			Int("received", len(closes)).
			Msg("Quote feed returned fewer closes than requested")
	}

	return closes, nil
}
