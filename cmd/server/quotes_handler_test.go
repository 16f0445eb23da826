package main

import (
    "context"
    "encoding/json"
    "errors"
    "net/http"
    "net/http/httptest"
    "sort"
    "strings"
    "sync"
    "testing"
    "time"

    "stockquotes/internal/batch"
    "stockquotes/internal/quote"
)

type fakeFetcher struct {
    fail map[string]error

    mu    sync.Mutex
    calls []string
}

func (f *fakeFetcher) Name() string { return "fake" }
func (f *fakeFetcher) Quote(_ context.Context, symbol string) (quote.Quote, error) {
    f.mu.Lock()
    f.calls = append(f.calls, symbol)
    err := f.fail[symbol]
    f.mu.Unlock()
    if err != nil { return quote.Quote{}, err }
    return quote.Quote{Symbol: symbol, CurrentPrice: 123.45, Change: 0.5, Timestamp: 1706302801}, nil
}

func testAggregator(f *fakeFetcher) *batch.Aggregator {
    return &batch.Aggregator{Fetcher: f, BatchSize: 10, Delay: time.Millisecond}
}

func TestQuotes_MissingCredential(t *testing.T) {
    rr := httptest.NewRecorder()
    req := httptest.NewRequest(http.MethodPost, "/api/quotes", strings.NewReader(`{"symbols":["AAPL"]}`))

    handleQuotes(rr, req, "", testAggregator(&fakeFetcher{}), quote.DefaultWatchlist())
    if rr.Code != http.StatusInternalServerError {
        t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
    }
    var resp errorResponse
    if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil { t.Fatalf("decode: %v", err) }
    if resp.Error == "" { t.Fatal("expected an error message") }
    if resp.Quotes == nil || len(resp.Quotes) != 0 {
        t.Fatalf("expected empty quotes array, got %+v", resp.Quotes)
    }
    if !strings.Contains(rr.Body.String(), `"quotes":[]`) {
        t.Fatalf("quotes must serialize as [], body=%s", rr.Body.String())
    }
}

func TestQuotes_GetUsesDefaultWatchlist(t *testing.T) {
    f := &fakeFetcher{}
    rr := httptest.NewRecorder()
    req := httptest.NewRequest(http.MethodGet, "/api/quotes", nil)

    handleQuotes(rr, req, "key", testAggregator(f), quote.DefaultWatchlist())
    if rr.Code != http.StatusOK {
        t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
    }

    want := quote.DefaultWatchlist()
    if len(f.calls) != len(want) {
        t.Fatalf("want %d fetches, got %d", len(want), len(f.calls))
    }
    got := append([]string(nil), f.calls...)
    sort.Strings(got)
    sort.Strings(want)
    for i := range want {
        if got[i] != want[i] { t.Fatalf("watchlist mismatch at %d: %q vs %q", i, got[i], want[i]) }
    }
}

func TestQuotes_EmptyPostBodyUsesDefaultWatchlist(t *testing.T) {
    f := &fakeFetcher{}
    rr := httptest.NewRecorder()
    req := httptest.NewRequest(http.MethodPost, "/api/quotes", strings.NewReader(""))

    handleQuotes(rr, req, "key", testAggregator(f), quote.DefaultWatchlist())
    if rr.Code != http.StatusOK {
        t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
    }
    if len(f.calls) != 27 {
        t.Fatalf("want 27 fetches from default watchlist, got %d", len(f.calls))
    }
}

func TestQuotes_PostSymbolsVerbatim_PartialFailureIsSuccess(t *testing.T) {
    f := &fakeFetcher{fail: map[string]error{"ZZZZINVALID": errors.New("no data for symbol")}}
    rr := httptest.NewRecorder()
    req := httptest.NewRequest(http.MethodPost, "/api/quotes", strings.NewReader(`{"symbols":["AAPL","ZZZZINVALID"]}`))

    handleQuotes(rr, req, "key", testAggregator(f), quote.DefaultWatchlist())
    if rr.Code != http.StatusOK {
        t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
    }
    var resp quotesResponse
    if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil { t.Fatalf("decode: %v", err) }
    if !resp.Success { t.Fatal("partial results must be a success") }
    if resp.Count != 1 || len(resp.Quotes) != 1 {
        t.Fatalf("want 1 quote, got count=%d quotes=%+v", resp.Count, resp.Quotes)
    }
    if resp.Quotes[0].Symbol != "AAPL" {
        t.Fatalf("unexpected symbol: %q", resp.Quotes[0].Symbol)
    }
    if _, err := time.Parse(time.RFC3339, resp.FetchedAt); err != nil {
        t.Fatalf("fetchedAt not RFC3339: %q", resp.FetchedAt)
    }
}

func TestQuotes_AllFailuresStillSuccess(t *testing.T) {
    f := &fakeFetcher{fail: map[string]error{
        "A": errors.New("boom"), "B": errors.New("boom"),
    }}
    rr := httptest.NewRecorder()
    req := httptest.NewRequest(http.MethodPost, "/api/quotes", strings.NewReader(`{"symbols":["A","B"]}`))

    handleQuotes(rr, req, "key", testAggregator(f), quote.DefaultWatchlist())
    if rr.Code != http.StatusOK {
        t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
    }
    var resp quotesResponse
    if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil { t.Fatalf("decode: %v", err) }
    if !resp.Success || resp.Count != 0 {
        t.Fatalf("zero results must still be success: %+v", resp)
    }
    if !strings.Contains(rr.Body.String(), `"quotes":[]`) {
        t.Fatalf("quotes must serialize as [], body=%s", rr.Body.String())
    }
}

func TestQuotes_MalformedBody(t *testing.T) {
    rr := httptest.NewRecorder()
    req := httptest.NewRequest(http.MethodPost, "/api/quotes", strings.NewReader(`{"symbols": [`))

    handleQuotes(rr, req, "key", testAggregator(&fakeFetcher{}), quote.DefaultWatchlist())
    if rr.Code != http.StatusInternalServerError {
        t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
    }
    var resp errorResponse
    if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil { t.Fatalf("decode: %v", err) }
    if resp.Error == "" || resp.Message == "" {
        t.Fatalf("expected error and message fields: %+v", resp)
    }
}

func TestCORS_PreflightShortCircuits(t *testing.T) {
    next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        t.Fatal("pre-flight must not reach the handler")
    })
    rr := httptest.NewRecorder()
    req := httptest.NewRequest(http.MethodOptions, "/api/quotes", nil)

    withCORS(next).ServeHTTP(rr, req)
    if rr.Code != http.StatusOK {
        t.Fatalf("status=%d", rr.Code)
    }
    if rr.Body.Len() != 0 {
        t.Fatalf("pre-flight body must be empty, got %q", rr.Body.String())
    }
    headers := map[string]string{
        "Access-Control-Allow-Origin":  "*",
        "Access-Control-Allow-Headers": "authorization, x-client-info, apikey, content-type",
        "Access-Control-Allow-Methods": "POST, GET, OPTIONS",
        "Content-Type":                 "application/json",
    }
    for k, want := range headers {
        if got := rr.Header().Get(k); got != want {
            t.Fatalf("%s: want %q, got %q", k, want, got)
        }
    }
}

func TestRecoverPanic_ReturnsErrorEnvelope(t *testing.T) {
    next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        panic("unexpected upstream shape")
    })
    rr := httptest.NewRecorder()
    req := httptest.NewRequest(http.MethodGet, "/api/quotes", nil)

    recoverPanic(next).ServeHTTP(rr, req)
    if rr.Code != http.StatusInternalServerError {
        t.Fatalf("status=%d", rr.Code)
    }
    var resp errorResponse
    if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil { t.Fatalf("decode: %v", err) }
    if resp.Error == "" || resp.Message == "" {
        t.Fatalf("expected generic error envelope: %+v", resp)
    }
    if strings.Contains(resp.Message, "upstream shape") {
        t.Fatalf("panic detail must not leak to the client: %q", resp.Message)
    }
}
