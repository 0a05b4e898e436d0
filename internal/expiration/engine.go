// Package expiration settles expired option positions against a paper
// account: worthless expirations, exercises of long ITM contracts, and
// assignments of short ITM contracts, including the stock deliveries each
// implies.
package expiration

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/eddiefleurent/schrute_bucks/internal/asset"
	"github.com/eddiefleurent/schrute_bucks/internal/broker"
	"github.com/eddiefleurent/schrute_bucks/internal/models"
	"github.com/eddiefleurent/schrute_bucks/internal/util"
)

// Engine settles expirations. It is stateless across calls: the processing
// date is passed per call and every run works on its own account clone, so
// a single Engine is safe to reuse.
type Engine struct {
	quotes broker.QuoteSource
	logger *log.Logger
}

// NewEngine creates a settlement engine.
func NewEngine(quotes broker.QuoteSource, logger *log.Logger) *Engine {
	if quotes == nil {
		panic("expiration.NewEngine: quotes must not be nil")
	}
	// Guard against nil logger
	if logger == nil {
		logger = log.New(os.Stderr, "expiration: ", log.LstdFlags)
	}
	return &Engine{quotes: quotes, logger: logger}
}

// expiredLeg ties an expired option position (by index into the working
// account) to its parsed contract. Positions are addressed by index
// because settlement appends stock positions to the same slice mid-loop.
type expiredLeg struct {
	idx int
	opt asset.Option
}

// ProcessAccount settles every option position expired as of
// processingDate. A zero processingDate means today. The caller's account
// is never mutated; the returned account is an owned clone with settlement
// applied and zero-quantity positions dropped. Business-level failures
// (missing quotes, malformed rows) never abort the run; they are reported
// through the Result.
func (e *Engine) ProcessAccount(ctx context.Context, account *models.Account, processingDate time.Time) (*models.Account, *Result) {
	result := NewResult()
	if account == nil {
		result.Errors = append(result.Errors, "no account to process")
		return nil, result
	}
	if processingDate.IsZero() {
		processingDate = time.Now().UTC()
	}

	work := account.Clone()

	// Group expired option positions by underlying, preserving input order
	// both across and within groups.
	groups := make(map[string][]expiredLeg)
	var order []string
	for i := range work.Positions {
		p := &work.Positions[i]
		if p.Quantity == 0 {
			continue
		}
		opt, ok := asset.ParseOption(p.Symbol)
		if !ok {
			continue // stock rows and unparseable symbols are not settled
		}
		if !opt.ExpiredOn(processingDate) {
			continue
		}
		u := opt.UnderlyingSymbol()
		if _, seen := groups[u]; !seen {
			order = append(order, u)
		}
		groups[u] = append(groups[u], expiredLeg{idx: i, opt: opt})
	}

	for _, underlying := range order {
		result.Merge(e.settleUnderlying(ctx, work, underlying, groups[underlying]))
	}

	work.DropFlat()
	return work, result
}

// settleUnderlying settles all expired legs for one underlying. A failure
// here is isolated: it lands in the sub-result's Errors and the other
// underlyings proceed.
func (e *Engine) settleUnderlying(ctx context.Context, acct *models.Account, underlying string, legs []expiredLeg) (res *Result) {
	res = NewResult()
	defer func() {
		if r := recover(); r != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("settlement of %s aborted: %v", underlying, r))
		}
	}()

	quote, err := e.quotes.GetQuote(ctx, underlying)
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("quote for %s: %v", underlying, err))
		return res
	}
	spot, ok := quote.LastPrice()
	if !ok {
		res.Errors = append(res.Errors, fmt.Sprintf("quote for %s has no usable price", underlying))
		return res
	}

	longEq, shortEq := models.EquityTotals(acct.Positions, underlying)

	for _, leg := range legs {
		qty := acct.Positions[leg.idx].Quantity
		if qty == 0 {
			continue
		}
		res.ExpiredPositions = append(res.ExpiredPositions, acct.Positions[leg.idx])

		intrinsic := leg.opt.IntrinsicValue(spot)
		if !intrinsic.IsPositive() {
			e.logger.Printf("%s expired worthless (%d contracts, spot %s)", leg.opt.Sym, qty, spot)
			res.Worthless = append(res.Worthless, Worthless{
				OptionSymbol: leg.opt.Sym,
				Underlying:   underlying,
				Quantity:     qty,
			})
			acct.Positions[leg.idx].Quantity = 0
			continue
		}

		if qty > 0 {
			longEq, shortEq = e.exercise(acct, res, leg, longEq, shortEq)
		} else {
			longEq, shortEq = e.assign(acct, res, leg, spot, longEq, shortEq)
		}
	}

	return res
}

// exercise settles a long ITM option: calls take delivery of stock at the
// strike, puts deliver stock short at the strike. Returns updated equity
// totals for the underlying.
func (e *Engine) exercise(acct *models.Account, res *Result, leg expiredLeg, longEq, shortEq int) (int, int) {
	opt := leg.opt
	underlying := opt.UnderlyingSymbol()
	contracts := acct.Positions[leg.idx].Quantity
	premium := acct.Positions[leg.idx].AvgPrice.Abs()
	shares := contracts * models.SharesPerContract
	strikeCash := util.ContractCash(opt.Strike, contracts)

	var cash decimal.Decimal
	var sharesMoved int
	if opt.Type == asset.Call {
		// Pay strike, receive shares. Effective basis carries the premium.
		cash = strikeCash.Neg()
		sharesMoved = shares
		acct.AddShares(underlying, shares, opt.Strike.Add(premium))
		longEq += shares
	} else {
		// Deliver shares short, receive strike. Premium lowers the basis.
		cash = strikeCash
		sharesMoved = -shares
		acct.AddShares(underlying, -shares, opt.Strike.Sub(premium))
		shortEq -= shares
	}
	acct.CashBalance = acct.CashBalance.Add(cash)
	res.CashImpact = res.CashImpact.Add(cash)
	if sp := acct.FindPosition(underlying); sp != nil {
		res.NewPositions = append(res.NewPositions, *sp)
	}

	e.logger.Printf("exercised %s: %d contracts, %d shares, cash %s", opt.Sym, contracts, sharesMoved, cash)
	res.Exercises = append(res.Exercises, Exercise{
		ID:           uuid.New().String(),
		OptionSymbol: opt.Sym,
		Underlying:   underlying,
		Type:         opt.Type,
		Strike:       opt.Strike,
		Contracts:    contracts,
		SharesMoved:  sharesMoved,
		CashImpact:   cash,
	})
	acct.Positions[leg.idx].Quantity = 0
	return longEq, shortEq
}

// assign settles a short ITM option. Short calls deliver shares (drained
// FIFO from long stock, topped up with a market buy at spot when the
// ledger is short); short puts take delivery at the strike (covering short
// stock FIFO first, the shortfall becoming a new long position). Returns
// updated equity totals.
func (e *Engine) assign(acct *models.Account, res *Result, leg expiredLeg, spot decimal.Decimal, longEq, shortEq int) (int, int) {
	opt := leg.opt
	underlying := opt.UnderlyingSymbol()
	contracts := util.Abs(acct.Positions[leg.idx].Quantity)
	shares := contracts * models.SharesPerContract
	strikeCash := util.ContractCash(opt.Strike, contracts)

	var cash decimal.Decimal
	var sharesMoved int
	coverage := CoverageExistingPosition

	if opt.Type == asset.Call {
		// Called away: deliver shares, receive strike.
		if longEq >= shares {
			if rem := models.Drain(acct.Positions, underlying, shares); rem != 0 {
				res.Errors = append(res.Errors, fmt.Sprintf(
					"internal: drain left %d undelivered shares of %s despite verified coverage", rem, underlying))
			}
			longEq -= shares
			cash = strikeCash
			sharesMoved = -shares
		} else {
			// Not enough stock: buy the shortfall at spot, deliver everything.
			shortfall := shares - longEq
			if longEq > 0 {
				if rem := models.Drain(acct.Positions, underlying, longEq); rem != 0 {
					res.Errors = append(res.Errors, fmt.Sprintf(
						"internal: drain left %d undelivered shares of %s despite verified coverage", rem, underlying))
				}
			}
			marketCost := spot.Mul(decimal.NewFromInt(int64(shortfall)))
			cash = strikeCash.Sub(marketCost)
			sharesMoved = -shares
			longEq = 0
			coverage = CoverageMarketPurchase
			res.Warnings = append(res.Warnings, fmt.Sprintf(
				"insufficient shares of %s to cover %s assignment; forced market purchase of %d shares at %s",
				underlying, opt.Sym, shortfall, spot))
		}
	} else {
		// Put to us: buy shares at the strike.
		cash = strikeCash.Neg()
		sharesMoved = shares
		if -shortEq >= shares {
			if rem := models.Drain(acct.Positions, underlying, -shares); rem != 0 {
				res.Errors = append(res.Errors, fmt.Sprintf(
					"internal: drain left %d uncovered shares of %s despite verified coverage", -rem, underlying))
			}
			shortEq += shares
		} else {
			// Cover whatever short stock exists; the rest becomes long at strike.
			shortfall := shares + shortEq
			if shortEq < 0 {
				if rem := models.Drain(acct.Positions, underlying, shortEq); rem != 0 {
					res.Errors = append(res.Errors, fmt.Sprintf(
						"internal: drain left %d uncovered shares of %s despite verified coverage", -rem, underlying))
				}
			}
			acct.AddShares(underlying, shortfall, opt.Strike)
			longEq += shortfall
			shortEq = 0
			coverage = CoverageMarketPurchase
			if sp := acct.FindPosition(underlying); sp != nil {
				res.NewPositions = append(res.NewPositions, *sp)
			}
		}
	}

	acct.CashBalance = acct.CashBalance.Add(cash)
	res.CashImpact = res.CashImpact.Add(cash)

	e.logger.Printf("assigned %s: %d contracts, %d shares (%s), cash %s", opt.Sym, contracts, sharesMoved, coverage, cash)
	res.Assignments = append(res.Assignments, Assignment{
		ID:           uuid.New().String(),
		OptionSymbol: opt.Sym,
		Underlying:   underlying,
		Type:         opt.Type,
		Strike:       opt.Strike,
		Contracts:    contracts,
		SharesMoved:  sharesMoved,
		CashImpact:   cash,
		Coverage:     coverage,
	})
	acct.Positions[leg.idx].Quantity = 0
	return longEq, shortEq
}
