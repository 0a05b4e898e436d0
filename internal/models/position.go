// Package models defines the position ledger shared by the settlement and
// classification engines: positions, account snapshots, and the two
// inventory primitives (FIFO draining and cost-basis merging).
package models

import (
	"github.com/shopspring/decimal"
)

// SharesPerContract is the deliverable size of one standard option contract.
const SharesPerContract = 100

// Position is a single ledger entry. Quantity is signed: positive is long,
// negative is short. For options, one unit of quantity is one contract
// (100 underlying shares); for stock it is one share.
type Position struct {
	Symbol       string          `json:"symbol"`
	Quantity     int             `json:"quantity"`
	AvgPrice     decimal.Decimal `json:"avg_price"`
	CurrentPrice decimal.Decimal `json:"current_price,omitempty"`
}

// IsLong returns true for positive-quantity positions.
func (p *Position) IsLong() bool { return p.Quantity > 0 }

// IsShort returns true for negative-quantity positions.
func (p *Position) IsShort() bool { return p.Quantity < 0 }

// Account is a snapshot of a paper-trading account: free cash plus the
// ordered set of open positions. Order matters; settlement and draining
// both walk positions in list order.
type Account struct {
	CashBalance decimal.Decimal `json:"cash_balance"`
	Positions   []Position      `json:"positions"`
}

// Clone returns a deep copy of the account. Engines operate on an owned
// clone and never mutate the caller's snapshot.
func (a *Account) Clone() *Account {
	out := &Account{
		CashBalance: a.CashBalance,
		Positions:   make([]Position, len(a.Positions)),
	}
	copy(out.Positions, a.Positions)
	return out
}

// FindPosition returns a pointer to the first position with the given
// symbol, or nil.
func (a *Account) FindPosition(symbol string) *Position {
	for i := range a.Positions {
		if a.Positions[i].Symbol == symbol {
			return &a.Positions[i]
		}
	}
	return nil
}

// AddShares merges quantity at price into the account's position for
// symbol, creating one if absent. Merging uses the weighted-average cost
// basis. A position whose quantity lands on exactly zero is zeroed in
// place rather than deleted, so indices held by in-flight settlement loops
// stay valid; DropFlat removes flat entries afterwards.
func (a *Account) AddShares(symbol string, quantity int, price decimal.Decimal) {
	if quantity == 0 {
		return
	}
	for i := range a.Positions {
		p := &a.Positions[i]
		if p.Symbol != symbol {
			continue
		}
		newQty := p.Quantity + quantity
		if newQty == 0 {
			p.Quantity = 0
			p.AvgPrice = decimal.Zero
			return
		}
		// Weighted-average merge: (old*oldPx + new*newPx) / (old+new).
		oldPart := p.AvgPrice.Mul(decimal.NewFromInt(int64(p.Quantity)))
		newPart := price.Mul(decimal.NewFromInt(int64(quantity)))
		p.AvgPrice = oldPart.Add(newPart).Div(decimal.NewFromInt(int64(newQty)))
		p.Quantity = newQty
		return
	}
	a.Positions = append(a.Positions, Position{
		Symbol:   symbol,
		Quantity: quantity,
		AvgPrice: price,
	})
}

// DropFlat removes every position whose quantity is exactly zero.
func (a *Account) DropFlat() {
	kept := a.Positions[:0]
	for _, p := range a.Positions {
		if p.Quantity != 0 {
			kept = append(kept, p)
		}
	}
	a.Positions = kept
}

// Drain consumes up to amount units of inventory in symbol from positions,
// in list order, and returns the unsatisfied remainder. A positive amount
// drains long positions (delivering shares), a negative amount covers
// short positions. Each eligible position is zeroed in turn until the
// request is satisfied; a non-zero remainder means the ledger did not hold
// enough inventory and the caller must treat that as an invariant
// violation, not a silent partial fill.
func Drain(positions []Position, symbol string, amount int) int {
	remaining := amount
	for i := range positions {
		if remaining == 0 {
			break
		}
		p := &positions[i]
		if p.Symbol != symbol {
			continue
		}
		switch {
		case remaining > 0 && p.Quantity > 0:
			take := p.Quantity
			if take > remaining {
				take = remaining
			}
			p.Quantity -= take
			remaining -= take
		case remaining < 0 && p.Quantity < 0:
			take := p.Quantity
			if take < remaining {
				take = remaining
			}
			p.Quantity -= take
			remaining -= take
		}
	}
	return remaining
}

// EquityTotals sums long and short stock quantities for the underlying
// across non-option positions. Long is >= 0, short is <= 0.
func EquityTotals(positions []Position, underlying string) (long, short int) {
	for i := range positions {
		p := &positions[i]
		if p.Symbol != underlying {
			continue
		}
		if p.Quantity > 0 {
			long += p.Quantity
		} else {
			short += p.Quantity
		}
	}
	return long, short
}
