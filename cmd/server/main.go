package main

import (
    "bytes"
    "context"
    "encoding/json"
    "fmt"
    "io"
    "log"
    "net/http"
    "os"
    "os/signal"
    "strings"
    "syscall"
    "time"
    "compress/gzip"
    "sync"

    "stockquotes/internal/batch"
    "stockquotes/internal/config"
    "stockquotes/internal/httpx"
    "stockquotes/internal/provider/finnhub"
    "stockquotes/internal/provider/ratelimit"
    "stockquotes/internal/quote"
)

type quotesResponse struct {
    Success   bool          `json:"success"`
    Quotes    []quote.Quote `json:"quotes"`
    FetchedAt string        `json:"fetchedAt"`
    Count     int           `json:"count"`
}

type errorResponse struct {
    Error   string        `json:"error"`
    Message string        `json:"message,omitempty"`
    Quotes  []quote.Quote `json:"quotes"`
}

func main() {
    // Config
    cfgPath := os.Getenv("CONFIG_FILE")
    cfg, err := config.Load(cfgPath)
    if err != nil { log.Fatalf("config: %v", err) }
    port := cfg.Server.Port

    if cfg.Finnhub.APIKey == "" {
        log.Println("warning: FINNHUB_API_KEY not set; quote requests will return a configuration error")
    }

    httpClient := httpx.New(time.Duration(cfg.Server.RequestTimeoutSec) * time.Second)

    fetcher, err := buildFetcher(cfg, httpClient)
    if err != nil { log.Fatalf("finnhub client: %v", err) }
    agg := &batch.Aggregator{
        Fetcher:   fetcher,
        BatchSize: cfg.Finnhub.BatchSize,
        Delay:     time.Duration(cfg.Finnhub.BatchDelayMs) * time.Millisecond,
    }

    mux := http.NewServeMux()
    mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
        w.WriteHeader(http.StatusOK)
        _, _ = w.Write([]byte("ok"))
    })
    mux.HandleFunc("/api/quotes", func(w http.ResponseWriter, r *http.Request) {
        switch r.Method {
        case http.MethodGet, http.MethodPost:
            handleQuotes(w, r, cfg.Finnhub.APIKey, agg, cfg.Watchlist)
        default:
            writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed", Quotes: []quote.Quote{}})
        }
    })

    srv := &http.Server{
        Addr:              ":" + port,
        Handler:           withCORS(withGzip(recoverPanic(limitBody(mux)))),
        ReadHeaderTimeout: 5 * time.Second,
        ReadTimeout:       15 * time.Second,
        WriteTimeout:      60 * time.Second,
        IdleTimeout:       60 * time.Second,
    }

    go func() {
        log.Printf("server listening on :%s", port)
        if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
            log.Fatalf("server: %v", err)
        }
    }()

    // graceful shutdown
    ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
    defer stop()
    <-ctx.Done()
    shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
    defer cancel()
    _ = srv.Shutdown(shutdownCtx)
}

// buildFetcher assembles the upstream client with the configured rate gate.
func buildFetcher(cfg config.Config, hc *http.Client) (quote.Fetcher, error) {
    client, err := finnhub.NewClient(cfg.Finnhub.APIKey,
        finnhub.WithBaseURL(cfg.Finnhub.Endpoint),
        finnhub.WithHTTPClient(hc),
        finnhub.WithHeader(http.Header{
            "User-Agent": []string{"stockquotes/1.0"},
        }),
    )
    if err != nil { return nil, err }
    var f quote.Fetcher = client
    // Prefer token bucket with burst if RPM is set, otherwise use min-interval
    if cfg.Finnhub.MaxRequestsPerMinute > 0 {
        rate := float64(cfg.Finnhub.MaxRequestsPerMinute) / 60.0
        burst := cfg.Finnhub.Burst
        if burst <= 0 { burst = 1 }
        f = &ratelimit.TokenBucketFetcher{F: f, TB: ratelimit.NewTokenBucket(rate, burst)}
    } else if cfg.Finnhub.MinRequestIntervalSec > 0 {
        interval := time.Duration(cfg.Finnhub.MinRequestIntervalSec) * time.Second
        f = &ratelimit.MinInterval{F: f, Interval: interval}
    }
    return f, nil
}

// handleQuotes serves GET and POST /api/quotes. Partial and even total
// upstream failure is still a success response; only a missing credential or
// a malformed body produce an error envelope.
func handleQuotes(w http.ResponseWriter, r *http.Request, apiKey string, agg *batch.Aggregator, watchlist []string) {
    if apiKey == "" {
        writeJSON(w, http.StatusInternalServerError, errorResponse{
            Error:  "missing FINNHUB_API_KEY",
            Quotes: []quote.Quote{},
        })
        return
    }
    symbols, err := resolveSymbols(r, watchlist)
    if err != nil {
        log.Printf("quotes request: %v", err)
        writeJSON(w, http.StatusInternalServerError, errorResponse{
            Error:   "failed to fetch stock data",
            Message: err.Error(),
            Quotes:  []quote.Quote{},
        })
        return
    }
    quotes := agg.Aggregate(r.Context(), symbols)
    writeJSON(w, http.StatusOK, quotesResponse{
        Success:   true,
        Quotes:    quotes,
        FetchedAt: time.Now().UTC().Format(time.RFC3339),
        Count:     len(quotes),
    })
}

type postBody struct {
    Symbols []string `json:"symbols"`
}

// resolveSymbols picks the caller-supplied symbol list when the POST body
// carries a non-empty one, otherwise the default watchlist. GET is treated
// exactly like a body-less POST.
func resolveSymbols(r *http.Request, fallback []string) ([]string, error) {
    if r.Method != http.MethodPost || r.Body == nil {
        return fallback, nil
    }
    body, err := io.ReadAll(r.Body)
    if err != nil { return nil, fmt.Errorf("read body: %w", err) }
    if len(bytes.TrimSpace(body)) == 0 {
        return fallback, nil
    }
    var b postBody
    if err := json.Unmarshal(body, &b); err != nil {
        return nil, fmt.Errorf("invalid JSON body: %w", err)
    }
    if len(b.Symbols) == 0 {
        return fallback, nil
    }
    return b.Symbols, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
    w.WriteHeader(status)
    enc := json.NewEncoder(w)
    enc.SetEscapeHTML(false)
    _ = enc.Encode(v)
}

// withCORS sets the response headers every client of this endpoint expects
// and short-circuits pre-flight requests.
func withCORS(next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        w.Header().Set("Access-Control-Allow-Origin", "*")
        w.Header().Set("Access-Control-Allow-Headers", "authorization, x-client-info, apikey, content-type")
        w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
        w.Header().Set("Content-Type", "application/json")
        if r.Method == http.MethodOptions {
            w.WriteHeader(http.StatusOK)
            return
        }
        next.ServeHTTP(w, r)
    })
}

// withGzip compresses response when client supports gzip.
func withGzip(next http.Handler) http.Handler {
    var gzPool = sync.Pool{New: func() any {
        // Prefer best speed to reduce CPU usage since payloads are JSON
        w, _ := gzip.NewWriterLevel(io.Discard, gzip.BestSpeed)
        return w
    }}
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
            next.ServeHTTP(w, r)
            return
        }
        gz := gzPool.Get().(*gzip.Writer)
        gz.Reset(w)
        defer func() {
            _ = gz.Close()
            gz.Reset(io.Discard)
            gzPool.Put(gz)
        }()
        w.Header().Set("Content-Encoding", "gzip")
        w.Header().Add("Vary", "Accept-Encoding")
        gw := gzipResponseWriter{ResponseWriter: w, Writer: gz}
        next.ServeHTTP(gw, r)
    })
}

type gzipResponseWriter struct {
    http.ResponseWriter
    Writer io.Writer
}

func (g gzipResponseWriter) Write(b []byte) (int, error) {
    return g.Writer.Write(b)
}

// limitBody caps request body size to avoid memory abuse.
func limitBody(next http.Handler) http.Handler {
    const maxBody = 1 << 20 // 1MB
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        if r.Method == http.MethodPost && r.Body != nil {
            r.Body = http.MaxBytesReader(w, r.Body, maxBody)
        }
        next.ServeHTTP(w, r)
    })
}

// recoverPanic is the single top-level failure boundary: nothing below it is
// allowed to crash the handler. The client sees a generic message; the panic
// detail goes to the server log only.
func recoverPanic(next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        defer func() {
            if rec := recover(); rec != nil {
                log.Printf("panic serving %s %s: %v", r.Method, r.URL.Path, rec)
                writeJSON(w, http.StatusInternalServerError, errorResponse{
                    Error:   "internal server error",
                    Message: "unexpected error handling request",
                    Quotes:  []quote.Quote{},
                })
            }
        }()
        next.ServeHTTP(w, r)
    })
}
