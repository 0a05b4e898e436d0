// Package strategy decomposes a flat list of positions into named trading
// strategies: covered calls/puts, vertical spreads, and naked legs, plus
// complex structures (iron condors, straddles, strangles) detected over
// the basic decomposition.
package strategy

import (
	"fmt"
	"sort"

	"github.com/eddiefleurent/schrute_bucks/internal/asset"
	"github.com/eddiefleurent/schrute_bucks/internal/models"
)

// Basic is a closed union over AssetLeg, Spread, and Covered. Every option
// contract in the input is consumed into exactly one Basic.
type Basic interface {
	// Quantity returns the signed strategy quantity.
	Quantity() int
	// UnderlyingSymbol returns the equity symbol the strategy is built on.
	UnderlyingSymbol() string
	// Key returns a structural identity used to collapse duplicates.
	Key() string

	basic()
}

// AssetLeg is unpaired single-leg exposure: residual stock or a naked or
// leftover option leg.
type AssetLeg struct {
	Asset asset.Asset
	Qty   int
}

// Quantity returns the signed leg quantity.
func (l AssetLeg) Quantity() int { return l.Qty }

// UnderlyingSymbol returns the leg's underlying equity symbol.
func (l AssetLeg) UnderlyingSymbol() string { return l.Asset.UnderlyingSymbol() }

// Key identifies the leg by its instrument.
func (l AssetLeg) Key() string { return "asset:" + l.Asset.Symbol() }

func (AssetLeg) basic() {}

// Spread is a vertical spread: a short option hedged by a long option of
// the same type.
type Spread struct {
	BuyOption  asset.Option
	SellOption asset.Option
	Qty        int
}

// Quantity returns the spread quantity in contracts.
func (s Spread) Quantity() int { return s.Qty }

// UnderlyingSymbol returns the spread's underlying equity symbol.
func (s Spread) UnderlyingSymbol() string { return s.SellOption.UnderlyingSymbol() }

// Key identifies the spread by both legs.
func (s Spread) Key() string {
	return fmt.Sprintf("spread:%s/%s", s.BuyOption.Sym, s.SellOption.Sym)
}

func (Spread) basic() {}

// Covered is a short option backed by offsetting equity: long stock for a
// covered call, short stock for a covered put.
type Covered struct {
	Underlying string
	SellOption asset.Option
	Qty        int
}

// Quantity returns the covered quantity in contracts.
func (c Covered) Quantity() int { return c.Qty }

// UnderlyingSymbol returns the covering equity symbol.
func (c Covered) UnderlyingSymbol() string { return c.Underlying }

// Key identifies the pairing of equity and short option.
func (c Covered) Key() string {
	return fmt.Sprintf("covered:%s/%s", c.Underlying, c.SellOption.Sym)
}

func (Covered) basic() {}

// underlyingGroup is the per-underlying working state during grouping.
type underlyingGroup struct {
	longEq  int
	shortEq int
	// Option legs expanded to unit quantity, bucketed by side and type.
	shortCalls []asset.Option
	longCalls  []asset.Option
	shortPuts  []asset.Option
	longPuts   []asset.Option
}

// GroupBasic partitions positions per underlying and pairs short option
// legs with covering equity or long option legs into basic strategies.
// Zero-quantity rows and unparseable symbols are skipped; zero-quantity
// strategies are filtered from the output.
func GroupBasic(positions []models.Position) []Basic {
	groups := make(map[string]*underlyingGroup)
	var order []string

	grp := func(underlying string) *underlyingGroup {
		g, ok := groups[underlying]
		if !ok {
			g = &underlyingGroup{}
			groups[underlying] = g
			order = append(order, underlying)
		}
		return g
	}

	for i := range positions {
		p := &positions[i]
		if p.Quantity == 0 {
			continue
		}
		switch a := asset.Parse(p.Symbol).(type) {
		case asset.Option:
			g := grp(a.UnderlyingSymbol())
			// Expand to unit legs so each contract pairs independently.
			for n := 0; n < absInt(p.Quantity); n++ {
				switch {
				case a.Type == asset.Call && p.Quantity < 0:
					g.shortCalls = append(g.shortCalls, a)
				case a.Type == asset.Call:
					g.longCalls = append(g.longCalls, a)
				case p.Quantity < 0:
					g.shortPuts = append(g.shortPuts, a)
				default:
					g.longPuts = append(g.longPuts, a)
				}
			}
		case asset.Stock:
			g := grp(a.Sym)
			if p.Quantity > 0 {
				g.longEq += p.Quantity
			} else {
				g.shortEq += p.Quantity
			}
		}
	}

	var out []Basic
	for _, underlying := range order {
		out = append(out, groupUnderlying(underlying, groups[underlying])...)
	}

	kept := out[:0]
	for _, s := range out {
		if s.Quantity() != 0 {
			kept = append(kept, s)
		}
	}
	return kept
}

// groupUnderlying pairs legs for one underlying. Calls sort ascending by
// strike and puts descending so pairing proceeds from the strike closest
// to the money outward.
func groupUnderlying(underlying string, g *underlyingGroup) []Basic {
	sortByStrike(g.shortCalls, true)
	sortByStrike(g.longCalls, true)
	sortByStrike(g.shortPuts, false)
	sortByStrike(g.longPuts, false)

	var out []Basic

	// Short calls: covered by long stock, then spread against long calls,
	// then naked.
	nextLongCall := 0
	for _, sc := range g.shortCalls {
		switch {
		case g.longEq >= models.SharesPerContract:
			out = append(out, Covered{Underlying: underlying, SellOption: sc, Qty: 1})
			g.longEq -= models.SharesPerContract
		case nextLongCall < len(g.longCalls):
			out = append(out, Spread{BuyOption: g.longCalls[nextLongCall], SellOption: sc, Qty: 1})
			nextLongCall++
		default:
			out = append(out, AssetLeg{Asset: sc, Qty: -1})
		}
	}

	// Short puts: covered by short stock, then spread against long puts,
	// then naked.
	nextLongPut := 0
	for _, sp := range g.shortPuts {
		switch {
		case -g.shortEq >= models.SharesPerContract:
			out = append(out, Covered{Underlying: underlying, SellOption: sp, Qty: 1})
			g.shortEq += models.SharesPerContract
		case nextLongPut < len(g.longPuts):
			out = append(out, Spread{BuyOption: g.longPuts[nextLongPut], SellOption: sp, Qty: 1})
			nextLongPut++
		default:
			out = append(out, AssetLeg{Asset: sp, Qty: -1})
		}
	}

	// Unconsumed long legs stand alone.
	for _, lc := range g.longCalls[nextLongCall:] {
		out = append(out, AssetLeg{Asset: lc, Qty: 1})
	}
	for _, lp := range g.longPuts[nextLongPut:] {
		out = append(out, AssetLeg{Asset: lp, Qty: 1})
	}

	// Residual equity.
	if g.longEq != 0 {
		out = append(out, AssetLeg{Asset: asset.Stock{Sym: underlying}, Qty: g.longEq})
	}
	if g.shortEq != 0 {
		out = append(out, AssetLeg{Asset: asset.Stock{Sym: underlying}, Qty: g.shortEq})
	}

	return out
}

// NormalizeQuantities collapses structurally identical strategies by
// summing their quantities; entries summing to zero are dropped.
// First-seen order is preserved.
func NormalizeQuantities(basics []Basic) []Basic {
	totals := make(map[string]int)
	first := make(map[string]Basic)
	var order []string

	for _, s := range basics {
		k := s.Key()
		if _, seen := totals[k]; !seen {
			first[k] = s
			order = append(order, k)
		}
		totals[k] += s.Quantity()
	}

	var out []Basic
	for _, k := range order {
		total := totals[k]
		if total == 0 {
			continue
		}
		switch s := first[k].(type) {
		case AssetLeg:
			s.Qty = total
			out = append(out, s)
		case Spread:
			s.Qty = total
			out = append(out, s)
		case Covered:
			s.Qty = total
			out = append(out, s)
		}
	}
	return out
}

// sortByStrike orders legs by strike, ascending or descending. The sort is
// stable so equal-strike legs keep input order.
func sortByStrike(legs []asset.Option, ascending bool) {
	sort.SliceStable(legs, func(i, j int) bool {
		if ascending {
			return legs[i].Strike.LessThan(legs[j].Strike)
		}
		return legs[i].Strike.GreaterThan(legs[j].Strike)
	})
}

func absInt(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
