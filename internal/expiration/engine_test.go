package expiration

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eddiefleurent/schrute_bucks/internal/asset"
	"github.com/eddiefleurent/schrute_bucks/internal/broker"
	"github.com/eddiefleurent/schrute_bucks/internal/models"
)

var (
	expMarch15 = time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	march16    = time.Date(2024, 3, 16, 0, 0, 0, 0, time.UTC)
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newTestEngine(quotes map[string]*broker.Quote) *Engine {
	return NewEngine(broker.NewStaticQuoteSource(quotes), log.New(io.Discard, "", 0))
}

func optSym(underlying string, typ asset.OptionType, strike string) string {
	return asset.FormatOption(underlying, expMarch15, typ, dec(strike))
}

func quoteAt(symbol string, last float64) map[string]*broker.Quote {
	return map[string]*broker.Quote{symbol: {Symbol: symbol, Last: last}}
}

func TestProcessAccount_WorthlessExpiration(t *testing.T) {
	acct := &models.Account{
		CashBalance: dec("10000"),
		Positions: []models.Position{
			{Symbol: optSym("AAPL", asset.Call, "150"), Quantity: 2, AvgPrice: dec("2.50")},
		},
	}

	settled, res := newTestEngine(quoteAt("AAPL", 145)).ProcessAccount(context.Background(), acct, march16)

	require.Len(t, res.Worthless, 1)
	assert.Equal(t, 2, res.Worthless[0].Quantity)
	assert.True(t, res.CashImpact.IsZero(), "worthless expiration moved cash: %s", res.CashImpact)
	assert.True(t, settled.CashBalance.Equal(dec("10000")))
	assert.Empty(t, settled.Positions, "worthless position should be dropped")
	assert.Empty(t, res.Errors)
}

func TestProcessAccount_LongCallExercise(t *testing.T) {
	// Long 2x AAPL 150C bought for 2.50, spot 155 the day after expiration.
	acct := &models.Account{
		CashBalance: dec("50000"),
		Positions: []models.Position{
			{Symbol: optSym("AAPL", asset.Call, "150"), Quantity: 2, AvgPrice: dec("2.50")},
		},
	}

	settled, res := newTestEngine(quoteAt("AAPL", 155)).ProcessAccount(context.Background(), acct, march16)

	require.Len(t, res.Exercises, 1)
	ex := res.Exercises[0]
	assert.Equal(t, 2, ex.Contracts)
	assert.Equal(t, 200, ex.SharesMoved)
	assert.True(t, ex.CashImpact.Equal(dec("-30000")), "cash impact %s", ex.CashImpact)
	assert.NotEmpty(t, ex.ID)

	assert.True(t, res.CashImpact.Equal(dec("-30000")))
	assert.True(t, settled.CashBalance.Equal(dec("20000")))

	stock := settled.FindPosition("AAPL")
	require.NotNil(t, stock)
	assert.Equal(t, 200, stock.Quantity)
	assert.True(t, stock.AvgPrice.Equal(dec("152.50")), "basis = strike + premium, got %s", stock.AvgPrice)
}

func TestProcessAccount_LongCallExercise_MergesExistingStock(t *testing.T) {
	acct := &models.Account{
		CashBalance: dec("50000"),
		Positions: []models.Position{
			{Symbol: "AAPL", Quantity: 100, AvgPrice: dec("140")},
			{Symbol: optSym("AAPL", asset.Call, "150"), Quantity: 1, AvgPrice: dec("0")},
		},
	}

	settled, _ := newTestEngine(quoteAt("AAPL", 155)).ProcessAccount(context.Background(), acct, march16)

	stock := settled.FindPosition("AAPL")
	require.NotNil(t, stock)
	assert.Equal(t, 200, stock.Quantity)
	// (100*140 + 100*150) / 200 = 145
	assert.True(t, stock.AvgPrice.Equal(dec("145")), "weighted basis, got %s", stock.AvgPrice)
}

func TestProcessAccount_LongPutExercise(t *testing.T) {
	acct := &models.Account{
		CashBalance: dec("0"),
		Positions: []models.Position{
			{Symbol: optSym("AAPL", asset.Put, "150"), Quantity: 1, AvgPrice: dec("3")},
		},
	}

	settled, res := newTestEngine(quoteAt("AAPL", 140)).ProcessAccount(context.Background(), acct, march16)

	require.Len(t, res.Exercises, 1)
	assert.Equal(t, -100, res.Exercises[0].SharesMoved)
	assert.True(t, res.CashImpact.Equal(dec("15000")))
	assert.True(t, settled.CashBalance.Equal(dec("15000")))

	stock := settled.FindPosition("AAPL")
	require.NotNil(t, stock)
	assert.Equal(t, -100, stock.Quantity)
	assert.True(t, stock.AvgPrice.Equal(dec("147")), "basis = strike - premium, got %s", stock.AvgPrice)
}

func TestProcessAccount_ShortCallAssignment_Covered(t *testing.T) {
	acct := &models.Account{
		CashBalance: dec("0"),
		Positions: []models.Position{
			{Symbol: "AAPL", Quantity: 100, AvgPrice: dec("140")},
			{Symbol: optSym("AAPL", asset.Call, "150"), Quantity: -1, AvgPrice: dec("2")},
		},
	}

	settled, res := newTestEngine(quoteAt("AAPL", 160)).ProcessAccount(context.Background(), acct, march16)

	require.Len(t, res.Assignments, 1)
	as := res.Assignments[0]
	assert.Equal(t, CoverageExistingPosition, as.Coverage)
	assert.Equal(t, -100, as.SharesMoved)
	assert.True(t, as.CashImpact.Equal(dec("15000")))

	assert.True(t, settled.CashBalance.Equal(dec("15000")))
	assert.Empty(t, settled.Positions, "shares delivered and option settled")
	assert.Empty(t, res.Warnings)
	assert.Empty(t, res.Errors)
}

func TestProcessAccount_ShortCallAssignment_ForcedMarketPurchase(t *testing.T) {
	acct := &models.Account{
		CashBalance: dec("0"),
		Positions: []models.Position{
			{Symbol: optSym("AAPL", asset.Call, "150"), Quantity: -1, AvgPrice: dec("2")},
		},
	}

	settled, res := newTestEngine(quoteAt("AAPL", 160)).ProcessAccount(context.Background(), acct, march16)

	require.Len(t, res.Assignments, 1)
	as := res.Assignments[0]
	assert.Equal(t, CoverageMarketPurchase, as.Coverage)
	// Receive 15000 at strike, pay 16000 at spot: net -1000.
	assert.True(t, as.CashImpact.Equal(dec("-1000")), "cash impact %s", as.CashImpact)
	assert.True(t, settled.CashBalance.Equal(dec("-1000")))
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "forced market purchase")
}

func TestProcessAccount_ShortCallAssignment_PartialCoverage(t *testing.T) {
	acct := &models.Account{
		CashBalance: dec("0"),
		Positions: []models.Position{
			{Symbol: "AAPL", Quantity: 60, AvgPrice: dec("140")},
			{Symbol: optSym("AAPL", asset.Call, "150"), Quantity: -1, AvgPrice: dec("2")},
		},
	}

	settled, res := newTestEngine(quoteAt("AAPL", 160)).ProcessAccount(context.Background(), acct, march16)

	// 60 shares drained, 40 bought at 160: 15000 - 6400 = 8600.
	assert.True(t, settled.CashBalance.Equal(dec("8600")), "cash %s", settled.CashBalance)
	assert.Empty(t, settled.Positions)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "40 shares")
}

func TestProcessAccount_ShortPutAssignment_NoShorts(t *testing.T) {
	acct := &models.Account{
		CashBalance: dec("20000"),
		Positions: []models.Position{
			{Symbol: optSym("AAPL", asset.Put, "150"), Quantity: -1, AvgPrice: dec("3")},
		},
	}

	settled, res := newTestEngine(quoteAt("AAPL", 140)).ProcessAccount(context.Background(), acct, march16)

	require.Len(t, res.Assignments, 1)
	as := res.Assignments[0]
	assert.Equal(t, CoverageMarketPurchase, as.Coverage)
	assert.Equal(t, 100, as.SharesMoved)
	assert.True(t, as.CashImpact.Equal(dec("-15000")))

	assert.True(t, settled.CashBalance.Equal(dec("5000")))
	stock := settled.FindPosition("AAPL")
	require.NotNil(t, stock)
	assert.Equal(t, 100, stock.Quantity)
	assert.True(t, stock.AvgPrice.Equal(dec("150")), "shares put at strike, got %s", stock.AvgPrice)
	assert.Empty(t, res.Warnings, "put shortfall is settled silently")
}

func TestProcessAccount_ShortPutAssignment_CoversShortStock(t *testing.T) {
	acct := &models.Account{
		CashBalance: dec("0"),
		Positions: []models.Position{
			{Symbol: "AAPL", Quantity: -100, AvgPrice: dec("155")},
			{Symbol: optSym("AAPL", asset.Put, "150"), Quantity: -1, AvgPrice: dec("3")},
		},
	}

	settled, res := newTestEngine(quoteAt("AAPL", 140)).ProcessAccount(context.Background(), acct, march16)

	require.Len(t, res.Assignments, 1)
	assert.Equal(t, CoverageExistingPosition, res.Assignments[0].Coverage)
	assert.True(t, settled.CashBalance.Equal(dec("-15000")))
	assert.Empty(t, settled.Positions, "short stock covered, option settled")
}

func TestProcessAccount_RunningCoverageWithinUnderlying(t *testing.T) {
	// The long 150C exercise delivers 100 shares; the short 152C assignment
	// processed right after must see them as coverage.
	acct := &models.Account{
		CashBalance: dec("0"),
		Positions: []models.Position{
			{Symbol: optSym("AAPL", asset.Call, "150"), Quantity: 1, AvgPrice: dec("2")},
			{Symbol: optSym("AAPL", asset.Call, "152"), Quantity: -1, AvgPrice: dec("1")},
		},
	}

	settled, res := newTestEngine(quoteAt("AAPL", 155)).ProcessAccount(context.Background(), acct, march16)

	require.Len(t, res.Exercises, 1)
	require.Len(t, res.Assignments, 1)
	assert.Equal(t, CoverageExistingPosition, res.Assignments[0].Coverage)
	assert.Empty(t, res.Warnings)
	// -15000 exercise + 15200 assignment.
	assert.True(t, settled.CashBalance.Equal(dec("200")), "cash %s", settled.CashBalance)
	assert.Empty(t, settled.Positions)
}

func TestProcessAccount_QuoteFailureIsolatesUnderlying(t *testing.T) {
	acct := &models.Account{
		CashBalance: dec("0"),
		Positions: []models.Position{
			{Symbol: optSym("MISS", asset.Call, "50"), Quantity: 1, AvgPrice: dec("1")},
			{Symbol: optSym("AAPL", asset.Call, "150"), Quantity: 2, AvgPrice: dec("2.50")},
		},
	}

	settled, res := newTestEngine(quoteAt("AAPL", 155)).ProcessAccount(context.Background(), acct, march16)

	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "MISS")
	require.Len(t, res.Exercises, 1, "AAPL settles despite MISS failing")

	// The unsettled MISS option stays on the book untouched.
	miss := settled.FindPosition(optSym("MISS", asset.Call, "50"))
	require.NotNil(t, miss)
	assert.Equal(t, 1, miss.Quantity)
}

func TestProcessAccount_QuoteWithoutPriceIsError(t *testing.T) {
	quotes := map[string]*broker.Quote{"AAPL": {Symbol: "AAPL"}} // all prices zero
	acct := &models.Account{
		Positions: []models.Position{
			{Symbol: optSym("AAPL", asset.Call, "150"), Quantity: 1, AvgPrice: dec("1")},
		},
	}

	_, res := newTestEngine(quotes).ProcessAccount(context.Background(), acct, march16)

	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "no usable price")
	assert.Empty(t, res.Exercises)
}

func TestProcessAccount_IgnoresUnexpiredStockAndZeroRows(t *testing.T) {
	acct := &models.Account{
		CashBalance: dec("100"),
		Positions: []models.Position{
			{Symbol: "AAPL", Quantity: 100, AvgPrice: dec("140")},
			{Symbol: optSym("AAPL", asset.Call, "150"), Quantity: 0, AvgPrice: dec("1")},
			{Symbol: asset.FormatOption("AAPL", march16.AddDate(1, 0, 0), asset.Call, dec("150")), Quantity: 1, AvgPrice: dec("1")},
			{Symbol: "not a symbol!!", Quantity: 5, AvgPrice: dec("1")},
		},
	}

	settled, res := newTestEngine(quoteAt("AAPL", 155)).ProcessAccount(context.Background(), acct, march16)

	assert.Empty(t, res.Exercises)
	assert.Empty(t, res.Assignments)
	assert.Empty(t, res.Worthless)
	assert.Empty(t, res.Errors)
	assert.True(t, settled.CashBalance.Equal(dec("100")))
	// Only the zero-quantity row disappears.
	assert.Len(t, settled.Positions, 3)
}

func TestProcessAccount_CallerSnapshotUntouched(t *testing.T) {
	acct := &models.Account{
		CashBalance: dec("50000"),
		Positions: []models.Position{
			{Symbol: optSym("AAPL", asset.Call, "150"), Quantity: 2, AvgPrice: dec("2.50")},
		},
	}

	settled, _ := newTestEngine(quoteAt("AAPL", 155)).ProcessAccount(context.Background(), acct, march16)

	require.NotSame(t, acct, settled)
	assert.True(t, acct.CashBalance.Equal(dec("50000")), "caller cash mutated")
	require.Len(t, acct.Positions, 1)
	assert.Equal(t, 2, acct.Positions[0].Quantity, "caller position mutated")
}

func TestProcessAccount_NilAccount(t *testing.T) {
	settled, res := newTestEngine(nil).ProcessAccount(context.Background(), nil, march16)
	assert.Nil(t, settled)
	require.Len(t, res.Errors, 1)
}

func TestProcessAccount_MultiUnderlyingCashMerges(t *testing.T) {
	quotes := map[string]*broker.Quote{
		"AAPL": {Symbol: "AAPL", Last: 155},
		"SPY":  {Symbol: "SPY", Last: 400},
	}
	acct := &models.Account{
		CashBalance: dec("100000"),
		Positions: []models.Position{
			{Symbol: optSym("AAPL", asset.Call, "150"), Quantity: 1, AvgPrice: dec("2")}, // -15000
			{Symbol: optSym("SPY", asset.Put, "410"), Quantity: -1, AvgPrice: dec("5")}, // -41000
		},
	}

	settled, res := newTestEngine(quotes).ProcessAccount(context.Background(), acct, march16)

	assert.True(t, res.CashImpact.Equal(dec("-56000")), "merged cash impact %s", res.CashImpact)
	assert.True(t, settled.CashBalance.Equal(dec("44000")))
	require.Len(t, res.Exercises, 1)
	require.Len(t, res.Assignments, 1)
}

func TestResultMerge(t *testing.T) {
	a := NewResult()
	a.CashImpact = dec("100")
	a.Warnings = []string{"w1"}

	b := NewResult()
	b.CashImpact = dec("-30")
	b.Errors = []string{"e1"}
	b.Worthless = []Worthless{{OptionSymbol: "X", Quantity: 1}}

	a.Merge(b)
	a.Merge(nil)

	assert.True(t, a.CashImpact.Equal(dec("70")))
	assert.Len(t, a.Warnings, 1)
	assert.Len(t, a.Errors, 1)
	assert.Len(t, a.Worthless, 1)
}
