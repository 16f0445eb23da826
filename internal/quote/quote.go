package quote

import "context"

// Quote is the normalized snapshot for one symbol at one point in time.
// Timestamp is the provider-side epoch in seconds.
type Quote struct {
    Symbol        string  `json:"symbol"`
    CurrentPrice  float64 `json:"currentPrice"`
    Change        float64 `json:"change"`
    PercentChange float64 `json:"percentChange"`
    High          float64 `json:"high"`
    Low           float64 `json:"low"`
    Open          float64 `json:"open"`
    PreviousClose float64 `json:"previousClose"`
    Timestamp     int64   `json:"timestamp"`
}

type Fetcher interface {
    Name() string
    Quote(ctx context.Context, symbol string) (Quote, error)
}

// defaultWatchlist is the fixed symbol set used when a request carries none.
var defaultWatchlist = []string{
    "AAPL", "MSFT", "GOOGL", "AMZN", "NVDA", "META", "TSLA", "AVGO", "ORCL",
    "CRM", "ADBE", "AMD", "INTC", "NFLX",
    "JPM", "BAC", "WFC", "GS", "MS", "V", "MA",
    "XOM", "CVX", "COP",
    "WMT", "PG", "KO",
}

// DefaultWatchlist returns a copy so callers cannot mutate the shared list.
func DefaultWatchlist() []string {
    out := make([]string, len(defaultWatchlist))
    copy(out, defaultWatchlist)
    return out
}
