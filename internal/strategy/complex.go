package strategy

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/eddiefleurent/schrute_bucks/internal/asset"
)

// IronCondor is a short call spread plus a short put spread on the same
// underlying and expiration in equal quantity.
type IronCondor struct {
	CallSpread Spread
	PutSpread  Spread
	Qty        int
	Underlying string
	Expiration time.Time
}

// VolPair is two long options of opposite type on the same underlying and
// expiration in equal quantity: a straddle when the strikes match, a
// strangle otherwise.
type VolPair struct {
	CallLeg    asset.Option
	PutLeg     asset.Option
	Qty        int
	Underlying string
	Expiration time.Time
}

// IsStraddle reports whether both legs share a strike.
func (v VolPair) IsStraddle() bool {
	return v.CallLeg.Strike.Equal(v.PutLeg.Strike)
}

// Butterfly detection is not implemented; the bucket exists so callers see
// an explicit empty result rather than a missing category.
type Butterfly struct {
	Legs []asset.Option
	Qty  int
}

// Complex holds every complex structure detected over a set of basic
// strategies, bucketed by category.
type Complex struct {
	IronCondors []IronCondor
	Straddles   []VolPair
	Strangles   []VolPair
	Butterflies []Butterfly // always empty, see Butterfly
}

// IdentifyComplex scans basic strategies for iron condors and long
// straddles/strangles. Detection is read-only: the basic strategies are
// not consumed or deduplicated beyond the natural uniqueness of each
// spread identity.
func IdentifyComplex(basics []Basic) *Complex {
	out := &Complex{}
	out.IronCondors = findIronCondors(basics)
	out.Straddles, out.Strangles = findVolPairs(basics)
	return out
}

// findIronCondors pairs every call spread with every put spread that
// matches on underlying, expiration, and quantity.
func findIronCondors(basics []Basic) []IronCondor {
	var callSpreads, putSpreads []Spread
	for _, s := range basics {
		spread, ok := s.(Spread)
		if !ok {
			continue
		}
		if spread.SellOption.Type == asset.Call {
			callSpreads = append(callSpreads, spread)
		} else {
			putSpreads = append(putSpreads, spread)
		}
	}

	var out []IronCondor
	for _, cs := range callSpreads {
		for _, ps := range putSpreads {
			if cs.UnderlyingSymbol() != ps.UnderlyingSymbol() {
				continue
			}
			if !cs.SellOption.Expiration.Equal(ps.SellOption.Expiration) {
				continue
			}
			if cs.Qty != ps.Qty {
				continue
			}
			out = append(out, IronCondor{
				CallSpread: cs,
				PutSpread:  ps,
				Qty:        cs.Qty,
				Underlying: cs.UnderlyingSymbol(),
				Expiration: cs.SellOption.Expiration,
			})
		}
	}
	return out
}

// volKey groups long option legs eligible for straddle/strangle pairing.
type volKey struct {
	underlying string
	expiration time.Time
}

// findVolPairs groups long single-leg option strategies by underlying and
// expiration, then pairs every call with every put of equal positive
// quantity.
func findVolPairs(basics []Basic) (straddles, strangles []VolPair) {
	type volLeg struct {
		opt asset.Option
		qty int
	}
	groups := make(map[volKey][]volLeg)
	var order []volKey

	for _, s := range basics {
		leg, ok := s.(AssetLeg)
		if !ok || leg.Qty <= 0 {
			continue
		}
		opt, ok := leg.Asset.(asset.Option)
		if !ok {
			continue
		}
		k := volKey{underlying: opt.UnderlyingSymbol(), expiration: opt.Expiration}
		if _, seen := groups[k]; !seen {
			order = append(order, k)
		}
		groups[k] = append(groups[k], volLeg{opt: opt, qty: leg.Qty})
	}

	for _, k := range order {
		legs := groups[k]
		for _, call := range legs {
			if call.opt.Type != asset.Call {
				continue
			}
			for _, put := range legs {
				if put.opt.Type != asset.Put {
					continue
				}
				if call.qty != put.qty || call.qty <= 0 {
					continue
				}
				pair := VolPair{
					CallLeg:    call.opt,
					PutLeg:     put.opt,
					Qty:        call.qty,
					Underlying: k.underlying,
					Expiration: k.expiration,
				}
				if pair.IsStraddle() {
					straddles = append(straddles, pair)
				} else {
					strangles = append(strangles, pair)
				}
			}
		}
	}
	return straddles, strangles
}

// Strikes returns the pair's strikes, call first.
func (v VolPair) Strikes() (decimal.Decimal, decimal.Decimal) {
	return v.CallLeg.Strike, v.PutLeg.Strike
}
