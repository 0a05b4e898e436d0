package expiration

import (
	"github.com/shopspring/decimal"

	"github.com/eddiefleurent/schrute_bucks/internal/asset"
	"github.com/eddiefleurent/schrute_bucks/internal/models"
)

// CoverageSource records how an assignment obligation was met.
type CoverageSource string

const (
	// CoverageExistingPosition means the ledger held enough stock to
	// satisfy the assignment and it was drained FIFO.
	CoverageExistingPosition CoverageSource = "existing_position"
	// CoverageMarketPurchase means the ledger came up short and shares
	// were sourced at settlement (market buy for short calls, shares put
	// at strike for short puts).
	CoverageMarketPurchase CoverageSource = "market_purchase"
)

// Assignment records the forced settlement of one short option position.
type Assignment struct {
	ID           string           `json:"id"`
	OptionSymbol string           `json:"option_symbol"`
	Underlying   string           `json:"underlying"`
	Type         asset.OptionType `json:"type"`
	Strike       decimal.Decimal  `json:"strike"`
	Contracts    int              `json:"contracts"`
	SharesMoved  int              `json:"shares_moved"`
	CashImpact   decimal.Decimal  `json:"cash_impact"`
	Coverage     CoverageSource   `json:"coverage"`
}

// Exercise records the automatic settlement of one long ITM option position.
type Exercise struct {
	ID           string           `json:"id"`
	OptionSymbol string           `json:"option_symbol"`
	Underlying   string           `json:"underlying"`
	Type         asset.OptionType `json:"type"`
	Strike       decimal.Decimal  `json:"strike"`
	Contracts    int              `json:"contracts"`
	SharesMoved  int              `json:"shares_moved"`
	CashImpact   decimal.Decimal  `json:"cash_impact"`
}

// Worthless records an option position that expired out of the money.
type Worthless struct {
	OptionSymbol string `json:"option_symbol"`
	Underlying   string `json:"underlying"`
	Quantity     int    `json:"quantity"`
}

// Result accumulates everything a settlement run did. Per-underlying
// results are merged into one account-level Result.
type Result struct {
	// ExpiredPositions are snapshots of option positions as they stood
	// before settlement zeroed them.
	ExpiredPositions []models.Position `json:"expired_positions"`
	// NewPositions are snapshots of stock positions created or merged
	// into by exercises and assignments, taken after the change.
	NewPositions []models.Position `json:"new_positions"`
	CashImpact   decimal.Decimal   `json:"cash_impact"`
	Assignments  []Assignment      `json:"assignments"`
	Exercises    []Exercise        `json:"exercises"`
	Worthless    []Worthless       `json:"worthless_expirations"`
	Warnings     []string          `json:"warnings"`
	Errors       []string          `json:"errors"`
}

// NewResult returns an empty Result ready to accumulate.
func NewResult() *Result {
	return &Result{CashImpact: decimal.Zero}
}

// Merge folds other into r: record slices concatenate, cash impacts sum.
func (r *Result) Merge(other *Result) {
	if other == nil {
		return
	}
	r.ExpiredPositions = append(r.ExpiredPositions, other.ExpiredPositions...)
	r.NewPositions = append(r.NewPositions, other.NewPositions...)
	r.CashImpact = r.CashImpact.Add(other.CashImpact)
	r.Assignments = append(r.Assignments, other.Assignments...)
	r.Exercises = append(r.Exercises, other.Exercises...)
	r.Worthless = append(r.Worthless, other.Worthless...)
	r.Warnings = append(r.Warnings, other.Warnings...)
	r.Errors = append(r.Errors, other.Errors...)
}
