package finnhub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"net/http"

	"stockquotes/internal/quote"
)

const baseURL = "https://finnhub.io/api/v1"

// ErrNoData marks the provider's all-zero sentinel: a response with both
// current price and change equal to zero means the symbol is unknown or has
// no data, not that it trades at zero.
var ErrNoData = errors.New("no data for symbol")

// rawQuote mirrors the upstream /quote response.
type rawQuote struct {
	Current       float64 `json:"c"`
	Change        float64 `json:"d"`
	PercentChange float64 `json:"dp"`
	High          float64 `json:"h"`
	Low           float64 `json:"l"`
	Open          float64 `json:"o"`
	PreviousClose float64 `json:"pc"`
	Timestamp     int64   `json:"t"`
}

func (c *Client) Name() string { return "Finnhub" }

// Quote retrieves the current quote for one symbol.
func (c *Client) Quote(ctx context.Context, symbol string) (quote.Quote, error) {
	query := maps.Clone(c.query)
	query.Set("symbol", symbol)

	url := fmt.Sprintf("%s/quote?%s", c.baseURL, query.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return quote.Quote{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header = c.header.Clone()

	res, err := c.httpClient.Do(req)
	if err != nil {
		return quote.Quote{}, fmt.Errorf("performing request: %w", err)
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
		break

	case http.StatusUnauthorized, http.StatusForbidden:
		return quote.Quote{}, fmt.Errorf("unauthorized")

	case http.StatusTooManyRequests:
		return quote.Quote{}, fmt.Errorf("rate limited")

	default:
		return quote.Quote{}, fmt.Errorf("unexpected status code: %d", res.StatusCode)
	}

	var raw rawQuote
	if err := json.NewDecoder(res.Body).Decode(&raw); err != nil {
		return quote.Quote{}, fmt.Errorf("decoding quote response: %w", err)
	}

	if raw.Current == 0 && raw.Change == 0 {
		return quote.Quote{}, fmt.Errorf("%s: %w", symbol, ErrNoData)
	}

	return quote.Quote{
		Symbol:        symbol,
		CurrentPrice:  raw.Current,
		Change:        raw.Change,
		PercentChange: raw.PercentChange,
		High:          raw.High,
		Low:           raw.Low,
		Open:          raw.Open,
		PreviousClose: raw.PreviousClose,
		Timestamp:     raw.Timestamp,
	}, nil
}
