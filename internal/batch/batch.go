package batch

import (
    "context"
    "log"
    "sync"
    "time"

    "stockquotes/internal/quote"
    "golang.org/x/sync/errgroup"
)

const (
    // DefaultBatchSize bounds in-flight upstream calls. Combined with
    // DefaultDelay it keeps a full watchlist under the provider's
    // per-minute rate ceiling.
    DefaultBatchSize = 10
    DefaultDelay     = 200 * time.Millisecond
)

// Aggregator fans out quote fetches in fixed-size batches. Each batch runs
// concurrently and is awaited in full before the next batch starts; a fixed
// pause separates consecutive batches. Failed fetches are logged and
// dropped, never retried and never surfaced to the caller.
type Aggregator struct {
    Fetcher   quote.Fetcher
    BatchSize int           // max symbols per batch; DefaultBatchSize when <= 0
    Delay     time.Duration // pause between batches; DefaultDelay when <= 0
}

// Aggregate resolves quotes for symbols, best effort. The result holds every
// symbol that resolved, in batch order then per-batch completion order.
// An all-failure aggregation returns an empty set, not an error.
func (a *Aggregator) Aggregate(ctx context.Context, symbols []string) []quote.Quote {
    size := a.BatchSize
    if size <= 0 { size = DefaultBatchSize }
    delay := a.Delay
    if delay <= 0 { delay = DefaultDelay }

    out := make([]quote.Quote, 0, len(symbols))
    var mu sync.Mutex

    for i, b := range chunkSymbols(symbols, size) {
        if i > 0 {
            // The inter-batch pause is the rate budget. It is an
            // unconditional sleep, not tied to ctx.
            time.Sleep(delay)
        }
        var g errgroup.Group
        for _, sym := range b {
            g.Go(func() error {
                q, err := a.Fetcher.Quote(ctx, sym)
                if err != nil {
                    log.Printf("%s: quote %s: %v", a.Fetcher.Name(), sym, err)
                    return nil
                }
                mu.Lock()
                out = append(out, q)
                mu.Unlock()
                return nil
            })
        }
        _ = g.Wait()
    }
    return out
}

func chunkSymbols(in []string, size int) [][]string {
    if size <= 0 { size = DefaultBatchSize }
    out := make([][]string, 0, (len(in)+size-1)/size)
    for i := 0; i < len(in); i += size {
        j := i + size
        if j > len(in) { j = len(in) }
        out = append(out, in[i:j])
    }
    return out
}
