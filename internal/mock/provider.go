// Package mock provides a synthetic quote source for paper-mode runs and
// tests, simulating small random price movements per symbol.
package mock

import (
	"context"
	"crypto/rand"
	"math/big"
	"sync"

	"github.com/eddiefleurent/schrute_bucks/internal/broker"
)

// Provider serves synthetic quotes. Prices start from a seeded base per
// symbol and drift a little on every fetch.
type Provider struct {
	mu     sync.Mutex
	prices map[string]float64
}

// Ensure Provider implements QuoteSource at compile time.
var _ broker.QuoteSource = (*Provider)(nil)

// NewProvider creates an empty provider; unknown symbols get a base price
// near 100 on first fetch.
func NewProvider() *Provider {
	return &Provider{prices: make(map[string]float64)}
}

// NewProviderWithPrices seeds fixed base prices per symbol.
func NewProviderWithPrices(prices map[string]float64) *Provider {
	p := NewProvider()
	for sym, px := range prices {
		p.prices[sym] = px
	}
	return p
}

// secureFloat64 generates a cryptographically secure random float64 between 0 and 1
func secureFloat64() float64 {
	n, err := rand.Int(rand.Reader, big.NewInt(1<<53))
	if err != nil {
		// Fallback to a reasonable default if crypto/rand fails
		return 0.5
	}
	return float64(n.Int64()) / (1 << 53)
}

// GetQuote returns a synthetic quote for the symbol.
func (p *Provider) GetQuote(_ context.Context, symbol string) (*broker.Quote, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	px, ok := p.prices[symbol]
	if !ok {
		px = 80.0 + secureFloat64()*40 // arbitrary mid-cap base price
	}
	// Simulate small price movements
	px += (secureFloat64() - 0.5) * 2
	if px < 1 {
		px = 1
	}
	p.prices[symbol] = px

	return &broker.Quote{
		Symbol:      symbol,
		Description: "mock quote",
		Type:        "stock",
		Last:        px,
		Close:       px,
		PrevClose:   px,
		Bid:         px - 0.02,
		Ask:         px + 0.02,
		Volume:      1_000_000,
	}, nil
}
