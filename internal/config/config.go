package config

import (
    "encoding/json"
    "errors"
    "fmt"
    "os"
    "strings"

    "stockquotes/internal/quote"
)

type Server struct {
    Port              string `json:"port"`
    RequestTimeoutSec int    `json:"request_timeout_sec"`
}

type Finnhub struct {
    APIKey                string `json:"api_key"`
    Endpoint              string `json:"endpoint"`
    BatchSize             int    `json:"batch_size"`
    BatchDelayMs          int    `json:"batch_delay_ms"`
    MaxRequestsPerMinute  int    `json:"max_requests_per_minute"`
    MinRequestIntervalSec int    `json:"min_request_interval_sec"`
    Burst                 int    `json:"burst"`
}

type Config struct {
    Server    Server   `json:"server"`
    Finnhub   Finnhub  `json:"finnhub"`
    Watchlist []string `json:"watchlist"`
}

func Default() Config {
    return Config{
        Server: Server{Port: "8080", RequestTimeoutSec: 10},
        Finnhub: Finnhub{
            Endpoint:     "https://finnhub.io/api/v1",
            BatchSize:    10,
            BatchDelayMs: 200,
        },
        Watchlist: quote.DefaultWatchlist(),
    }
}

// Load reads JSON config from path. If path is empty or file does not exist,
// it returns defaults. Environment variables override select fields for secrecy.
func Load(path string) (Config, error) {
    cfg := Default()
    if path == "" {
        if _, err := os.Stat("config.json"); err == nil {
            path = "config.json"
        }
    }
    if path != "" {
        b, err := os.ReadFile(path)
        if err != nil && !errors.Is(err, os.ErrNotExist) {
            return cfg, fmt.Errorf("read config: %w", err)
        }
        if err == nil {
            if err := json.Unmarshal(b, &cfg); err != nil {
                return cfg, fmt.Errorf("parse config: %w", err)
            }
        }
    }
    applyEnv(&cfg)
    if len(cfg.Watchlist) == 0 {
        cfg.Watchlist = quote.DefaultWatchlist()
    }
    return cfg, nil
}

func applyEnv(cfg *Config) {
    if v := os.Getenv("PORT"); v != "" { cfg.Server.Port = v }
    if v := os.Getenv("REQUEST_TIMEOUT_SEC"); v != "" {
        var x int; fmt.Sscanf(v, "%d", &x); if x > 0 { cfg.Server.RequestTimeoutSec = x }
    }
    if v := os.Getenv("FINNHUB_API_KEY"); v != "" { cfg.Finnhub.APIKey = v }
    if v := os.Getenv("FINNHUB_ENDPOINT"); v != "" { cfg.Finnhub.Endpoint = v }
    if v := os.Getenv("BATCH_SIZE"); v != "" {
        var x int; fmt.Sscanf(v, "%d", &x); if x > 0 { cfg.Finnhub.BatchSize = x }
    }
    if v := os.Getenv("BATCH_DELAY_MS"); v != "" {
        // The aggregator falls back to its default on a non-positive delay,
        // so zero is not an accepted override.
        var x int; fmt.Sscanf(v, "%d", &x); if x > 0 { cfg.Finnhub.BatchDelayMs = x }
    }
    if v := os.Getenv("FINNHUB_MAX_RPM"); v != "" {
        var x int; fmt.Sscanf(v, "%d", &x); if x >= 0 { cfg.Finnhub.MaxRequestsPerMinute = x }
    }
    if v := os.Getenv("FINNHUB_MIN_INTERVAL_SEC"); v != "" {
        var x int; fmt.Sscanf(v, "%d", &x); if x >= 0 { cfg.Finnhub.MinRequestIntervalSec = x }
    }
    if v := os.Getenv("FINNHUB_BURST"); v != "" {
        var x int; fmt.Sscanf(v, "%d", &x); if x > 0 { cfg.Finnhub.Burst = x }
    }
    if v := os.Getenv("WATCHLIST"); v != "" { cfg.Watchlist = splitCSV(v) }
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
