package main

import (
    "context"
    "encoding/json"
    "flag"
    "fmt"
    "log"
    "net/http"
    "os"
    "strings"
    "time"

    "stockquotes/internal/batch"
    "stockquotes/internal/config"
    "stockquotes/internal/httpx"
    "stockquotes/internal/provider/finnhub"
    "stockquotes/internal/provider/ratelimit"
    "stockquotes/internal/quote"
)

func main() {
    var symbolsCSV string
    var batchSize int
    var delayMs int
    var timeout int
    var configPath string

    flag.StringVar(&symbolsCSV, "symbols", getenv("SYMBOLS", ""), "comma-separated ticker symbols (default: built-in watchlist)")
    flag.IntVar(&batchSize, "batch", getenvInt("BATCH_SIZE", 0), "max symbols per concurrent batch")
    flag.IntVar(&delayMs, "delay-ms", getenvInt("BATCH_DELAY_MS", 0), "pause between batches in milliseconds")
    flag.IntVar(&timeout, "timeout", getenvInt("REQUEST_TIMEOUT_SEC", 0), "request timeout seconds")
    flag.StringVar(&configPath, "config", getenv("CONFIG_FILE", ""), "path to config.json (optional)")
    flag.Parse()

    // Load config (optional) and merge with flags/env
    cfg, err := config.Load(configPath)
    if err != nil { log.Fatalf("config: %v", err) }
    if batchSize > 0 { cfg.Finnhub.BatchSize = batchSize }
    if delayMs > 0 { cfg.Finnhub.BatchDelayMs = delayMs }
    if timeout > 0 { cfg.Server.RequestTimeoutSec = timeout }

    if cfg.Finnhub.APIKey == "" {
        log.Fatal("FINNHUB_API_KEY missing (set in config.json or env)")
    }

    symbols := splitCSV(symbolsCSV)
    if len(symbols) == 0 { symbols = cfg.Watchlist }
    if len(symbols) == 0 { log.Fatal("no symbols provided") }

    httpClient := httpx.New(time.Duration(cfg.Server.RequestTimeoutSec) * time.Second)

    client, err := finnhub.NewClient(cfg.Finnhub.APIKey,
        finnhub.WithBaseURL(cfg.Finnhub.Endpoint),
        finnhub.WithHTTPClient(httpClient),
        finnhub.WithHeader(http.Header{
            "User-Agent": []string{"stockquotes/1.0"},
        }),
    )
    if err != nil { log.Fatalf("finnhub client: %v", err) }

    var f quote.Fetcher = client
    if cfg.Finnhub.MaxRequestsPerMinute > 0 {
        rate := float64(cfg.Finnhub.MaxRequestsPerMinute) / 60.0
        burst := cfg.Finnhub.Burst
        if burst <= 0 { burst = 1 }
        f = &ratelimit.TokenBucketFetcher{F: f, TB: ratelimit.NewTokenBucket(rate, burst)}
    } else if cfg.Finnhub.MinRequestIntervalSec > 0 {
        f = &ratelimit.MinInterval{F: f, Interval: time.Duration(cfg.Finnhub.MinRequestIntervalSec) * time.Second}
    }

    agg := &batch.Aggregator{
        Fetcher:   f,
        BatchSize: cfg.Finnhub.BatchSize,
        Delay:     time.Duration(cfg.Finnhub.BatchDelayMs) * time.Millisecond,
    }

    ctx := context.Background()
    quotes := agg.Aggregate(ctx, symbols)
    log.Printf("%s: %d of %d symbols resolved", f.Name(), len(quotes), len(symbols))

    envelope := struct {
        Success   bool          `json:"success"`
        Quotes    []quote.Quote `json:"quotes"`
        FetchedAt string        `json:"fetchedAt"`
        Count     int           `json:"count"`
    }{Success: true, Quotes: quotes, FetchedAt: time.Now().UTC().Format(time.RFC3339), Count: len(quotes)}
    b, _ := json.MarshalIndent(envelope, "", "  ")
    fmt.Println(string(b))
}

func splitCSV(s string) []string {
    parts := strings.Split(s, ",")
    out := make([]string, 0, len(parts))
    for _, p := range parts {
        p = strings.TrimSpace(p)
        if p != "" { out = append(out, p) }
    }
    return out
}

func getenv(key, def string) string { if v := os.Getenv(key); v != "" { return v }; return def }
func getenvInt(key string, def int) int {
    if v := os.Getenv(key); v != "" {
        var x int
        _, _ = fmt.Sscanf(v, "%d", &x)
        if x != 0 { return x }
    }
    return def
}
