package broker

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// PrefetchQuotes fetches quotes for all symbols concurrently, bounded by
// maxConcurrent, and returns a StaticQuoteSource snapshot. Symbols that
// fail to price are simply absent; the settlement engine reports them as
// per-underlying errors when it asks for them. The snapshot keeps the
// engine itself synchronous, so per-underlying ordering guarantees hold.
func PrefetchQuotes(ctx context.Context, source QuoteSource, symbols []string, maxConcurrent int) *StaticQuoteSource {
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}

	var mu sync.Mutex
	quotes := make(map[string]*Quote, len(symbols))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrent)
	for _, symbol := range symbols {
		symbol := symbol
		g.Go(func() error {
			q, err := source.GetQuote(ctx, symbol)
			if err != nil || q == nil {
				return nil // missing quotes surface later as settlement errors
			}
			mu.Lock()
			quotes[symbol] = q
			mu.Unlock()
			return nil
		})
	}
	// Workers never return errors; Wait only observes context cancellation.
	_ = g.Wait()

	return NewStaticQuoteSource(quotes)
}
