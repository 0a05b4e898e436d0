// Package util provides common helpers for money math on decimals.
package util

import (
	"github.com/shopspring/decimal"

	"github.com/eddiefleurent/schrute_bucks/internal/models"
)

// RoundToTick rounds x to the nearest tick increment.
// For example, with tick=0.01, 1.2345 becomes 1.23.
func RoundToTick(x, tick decimal.Decimal) decimal.Decimal {
	if !tick.IsPositive() {
		return x
	}
	return x.Div(tick).Round(0).Mul(tick)
}

// ContractCash returns perShare * contracts * 100, the cash moved when a
// number of standard contracts settles at a per-share price.
func ContractCash(perShare decimal.Decimal, contracts int) decimal.Decimal {
	return perShare.Mul(decimal.NewFromInt(int64(contracts) * models.SharesPerContract))
}

// Abs returns the absolute value of a signed integer quantity.
func Abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
