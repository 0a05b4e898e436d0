// Package broker provides market-data clients used to price underlyings at
// settlement time. It includes a Tradier quote client, a circuit-breaker
// wrapper, and a concurrent prefetcher for batch settlement runs.
package broker

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// QuoteSource is the single collaborator the settlement engine depends on.
// Implementations must be safe for concurrent use.
type QuoteSource interface {
	// GetQuote returns the current quote for a symbol. A nil quote or an
	// error both mean the symbol cannot be priced right now.
	GetQuote(ctx context.Context, symbol string) (*Quote, error)
}

// Quote is a point-in-time quote for a single symbol.
type Quote struct {
	Symbol      string  `json:"symbol"`
	Description string  `json:"description"`
	Type        string  `json:"type"`
	Last        float64 `json:"last"`
	Close       float64 `json:"close"`
	PrevClose   float64 `json:"prevclose"`
	Bid         float64 `json:"bid"`
	Ask         float64 `json:"ask"`
	Volume      int64   `json:"volume"`
}

// LastPrice returns the best available trade price as a decimal. It falls
// back from last to close to previous close; ok is false when none of
// them is a usable positive price.
func (q *Quote) LastPrice() (decimal.Decimal, bool) {
	if q == nil {
		return decimal.Zero, false
	}
	for _, px := range []float64{q.Last, q.Close, q.PrevClose} {
		if px > 0 {
			return decimal.NewFromFloat(px), true
		}
	}
	return decimal.Zero, false
}

// StaticQuoteSource serves quotes from a fixed in-memory map. It backs
// prefetched settlement runs and tests.
type StaticQuoteSource struct {
	Quotes map[string]*Quote
}

// Ensure StaticQuoteSource implements QuoteSource at compile time.
var _ QuoteSource = (*StaticQuoteSource)(nil)

// NewStaticQuoteSource builds a StaticQuoteSource over the given map.
func NewStaticQuoteSource(quotes map[string]*Quote) *StaticQuoteSource {
	if quotes == nil {
		quotes = make(map[string]*Quote)
	}
	return &StaticQuoteSource{Quotes: quotes}
}

// GetQuote returns the stored quote for symbol.
func (s *StaticQuoteSource) GetQuote(_ context.Context, symbol string) (*Quote, error) {
	q, ok := s.Quotes[symbol]
	if !ok {
		return nil, fmt.Errorf("no quote found for symbol: %s", symbol)
	}
	return q, nil
}
