package main

import (
    "bufio"
    "context"
    "encoding/json"
    "flag"
    "fmt"
    "io"
    "log"
    "net/http"
    "net/url"
    "os"
    "strings"
    "sync"
    "time"

    "stockquotes/internal/config"
)

// quote_dump pulls the raw upstream response for every symbol in a file and
// streams them into a single JSON object, keyed by symbol. Useful for
// inspecting provider payloads and building test fixtures.

type httpStatusErr struct {
    code int
    body string
}

func (e *httpStatusErr) Error() string { return fmt.Sprintf("http %d: %s", e.code, e.body) }

func main() {
    var (
        symbolsFile string
        outPath     string
        cfgPath     string
        concurrency int
        timeoutSec  int
        maxRetries  int
        rpm         int
    )
    flag.StringVar(&symbolsFile, "symbols-file", "symbols.txt", "file with one ticker symbol per line")
    flag.StringVar(&outPath, "out", "quotes_raw.json", "output JSON file path")
    flag.StringVar(&cfgPath, "config", "", "path to config.json (optional)")
    flag.IntVar(&concurrency, "concurrency", 4, "number of parallel requests")
    flag.IntVar(&timeoutSec, "timeout", 20, "HTTP timeout seconds")
    flag.IntVar(&maxRetries, "retries", 3, "max retries on 429/5xx")
    flag.IntVar(&rpm, "rpm", 0, "max requests per minute (0 = unlimited)")
    flag.Parse()

    // Load config/env
    cfg, err := config.Load(cfgPath)
    if err != nil {
        log.Fatalf("config: %v", err)
    }
    if cfg.Finnhub.APIKey == "" {
        log.Fatal("FINNHUB_API_KEY missing (set in config.json or env)")
    }
    endpoint := cfg.Finnhub.Endpoint
    if endpoint == "" {
        endpoint = "https://finnhub.io/api/v1"
    }

    symbols, err := readSymbols(symbolsFile)
    if err != nil {
        log.Fatalf("read symbols: %v", err)
    }
    if len(symbols) == 0 {
        log.Fatal("no symbols found in symbols-file")
    }
    log.Printf("symbols: %d", len(symbols))

    // Prepare HTTP client
    hc := &http.Client{Timeout: time.Duration(timeoutSec) * time.Second}

    // Prepare output writer (streaming)
    outFile, err := os.Create(outPath)
    if err != nil {
        log.Fatalf("create out: %v", err)
    }
    defer outFile.Close()
    bw := bufio.NewWriterSize(outFile, 1<<20)
    defer bw.Flush()

    // Start JSON envelope
    _, _ = bw.WriteString("{\"quotes\":{")
    first := true
    var writeMu sync.Mutex

    // Request rate limiter by RPM, if provided
    var tokenCh <-chan time.Time
    if rpm > 0 {
        interval := time.Minute / time.Duration(rpm)
        t := time.NewTicker(interval)
        defer t.Stop()
        tokenCh = t.C
    }

    doReq := func(ctx context.Context, symbol string) (json.RawMessage, error) {
        q := url.Values{}
        q.Set("symbol", symbol)
        q.Set("token", cfg.Finnhub.APIKey)
        req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"/quote?"+q.Encode(), http.NoBody)
        if err != nil { return nil, err }
        req.Header.Set("Accept", "application/json")
        if tokenCh != nil {
            <-tokenCh // gate by RPM
        }
        resp, err := hc.Do(req)
        if err != nil { return nil, err }
        defer resp.Body.Close()
        if resp.StatusCode < 200 || resp.StatusCode >= 300 {
            b, _ := io.ReadAll(io.LimitReader(resp.Body, 2<<10))
            return nil, &httpStatusErr{code: resp.StatusCode, body: string(b)}
        }
        raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
        if err != nil { return nil, err }
        if !json.Valid(raw) {
            return nil, fmt.Errorf("invalid JSON body for %s", symbol)
        }
        return raw, nil
    }

    fetchRetry := func(ctx context.Context, symbol string) (json.RawMessage, error) {
        attempt := 0
        for {
            raw, err := doReq(ctx, symbol)
            if err == nil {
                return raw, nil
            }
            var hs *httpStatusErr
            if errorsAs(err, &hs) {
                // 429/5xx -> retry with backoff
                if hs.code == 429 || (hs.code >= 500 && hs.code < 600) {
                    if attempt < maxRetries {
                        back := time.Duration(250*(1<<attempt)) * time.Millisecond
                        time.Sleep(back)
                        attempt++
                        continue
                    }
                }
            }
            return nil, err
        }
    }

    // Worker pool
    jobs := make(chan string, concurrency*2)
    wg := sync.WaitGroup{}

    worker := func() {
        defer wg.Done()
        for symbol := range jobs {
            ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeoutSec)*time.Second)
            raw, err := fetchRetry(ctx, symbol)
            cancel()
            if err != nil {
                log.Printf("%s error: %v", symbol, err)
                continue
            }
            key, _ := json.Marshal(symbol)
            writeMu.Lock()
            if !first { _, _ = bw.WriteString(",") } else { first = false }
            _, _ = bw.Write(key)
            _, _ = bw.WriteString(":")
            _, _ = bw.Write(raw)
            writeMu.Unlock()
        }
    }

    for i := 0; i < concurrency; i++ {
        wg.Add(1)
        go worker()
    }

    for _, s := range symbols {
        jobs <- s
    }
    close(jobs)
    wg.Wait()

    // Close JSON envelope
    _, _ = bw.WriteString("}}")
    if err := bw.Flush(); err != nil {
        log.Fatalf("flush: %v", err)
    }
    log.Printf("done: wrote %s", outPath)
}

func readSymbols(path string) ([]string, error) {
    b, err := os.ReadFile(path)
    if err != nil { return nil, err }
    lines := strings.Split(string(b), "\n")
    out := make([]string, 0, len(lines))
    seen := make(map[string]struct{}, len(lines))
    for _, l := range lines {
        l = strings.TrimSpace(l)
        if l == "" || strings.HasPrefix(l, "#") { continue }
        if _, dup := seen[l]; dup { continue }
        seen[l] = struct{}{}
        out = append(out, l)
    }
    return out, nil
}

// errorsAs is a small local helper to avoid importing errors in many spots
func errorsAs(err error, target **httpStatusErr) bool {
    if err == nil { return false }
    if v, ok := err.(*httpStatusErr); ok {
        *target = v
        return true
    }
    return false
}
