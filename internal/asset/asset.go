// Package asset defines the tradeable instrument model: plain stocks and
// exchange-listed options identified by OCC/OSI symbols.
//
// An OSI symbol encodes everything about a contract:
// UNDERLYING + YYMMDD + C/P + 8-digit strike in 1/1000 dollars,
// e.g. AAPL240315C00150000 is the AAPL 2024-03-15 $150 call.
package asset

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OptionType represents the type of option contract.
type OptionType string

const (
	// Call is the right to buy the underlying at the strike.
	Call OptionType = "call"
	// Put is the right to sell the underlying at the strike.
	Put OptionType = "put"
)

// Valid returns true if the OptionType is one of the defined constants.
func (t OptionType) Valid() bool {
	return t == Call || t == Put
}

// Asset is a closed union over Stock and Option. The only implementations
// live in this package; consumers switch exhaustively on the concrete type.
type Asset interface {
	// Symbol returns the full trading symbol.
	Symbol() string
	// UnderlyingSymbol returns the underlying equity symbol. For a Stock
	// that is the symbol itself.
	UnderlyingSymbol() string

	sealed()
}

// Stock is a plain equity instrument.
type Stock struct {
	Sym string
}

// Symbol returns the equity symbol.
func (s Stock) Symbol() string { return s.Sym }

// UnderlyingSymbol returns the equity symbol itself.
func (s Stock) UnderlyingSymbol() string { return s.Sym }

func (Stock) sealed() {}

// Option is a listed option contract. All fields are derivable from the
// OSI symbol and vice versa.
type Option struct {
	Sym        string
	Underlying Stock
	Strike     decimal.Decimal
	Expiration time.Time
	Type       OptionType
}

// Symbol returns the full OSI symbol.
func (o Option) Symbol() string { return o.Sym }

// UnderlyingSymbol returns the underlying equity symbol.
func (o Option) UnderlyingSymbol() string { return o.Underlying.Sym }

func (Option) sealed() {}

// IntrinsicValue returns the per-share value of exercising at the given
// spot price: max(0, spot-strike) for calls, max(0, strike-spot) for puts.
func (o Option) IntrinsicValue(spot decimal.Decimal) decimal.Decimal {
	var v decimal.Decimal
	switch o.Type {
	case Call:
		v = spot.Sub(o.Strike)
	case Put:
		v = o.Strike.Sub(spot)
	}
	if v.IsNegative() {
		return decimal.Zero
	}
	return v
}

// ExpiredOn reports whether the contract has expired as of the given date.
// Comparison is at day granularity; the expiration day itself counts.
func (o Option) ExpiredOn(date time.Time) bool {
	exp := o.Expiration.UTC().Truncate(24 * time.Hour)
	on := date.UTC().Truncate(24 * time.Hour)
	return !exp.After(on)
}

// Parse interprets sym as an OSI option code; anything that does not scan
// as one is treated as a plain stock symbol.
func Parse(sym string) Asset {
	if opt, ok := ParseOption(sym); ok {
		return opt
	}
	return Stock{Sym: strings.TrimSpace(sym)}
}

// ParseOption decodes an OSI option symbol. It returns false for symbols
// that do not scan as UNDERLYING + YYMMDD + C/P + 8-digit strike.
func ParseOption(sym string) (Option, bool) {
	s := strings.TrimSpace(sym)
	if len(s) < 16 { // minimum length for a valid option symbol
		return Option{}, false
	}

	// Look for the first standalone 6-digit sequence (expiration date).
	for i := 1; i <= len(s)-15; i++ { // need YYMMDD + C/P + 8 digits after i
		if !isSixDigits(s[i : i+6]) {
			continue
		}
		// The 6-digit run must not be part of a longer numeric run.
		if isDigit(s[i-1]) {
			continue
		}

		typeChar := s[i+6]
		var typ OptionType
		switch typeChar {
		case 'C', 'c':
			typ = Call
		case 'P', 'p':
			typ = Put
		default:
			continue
		}

		strikeStart := i + 7
		if !isEightDigits(s[strikeStart : strikeStart+8]) {
			continue
		}
		strikeEnd := strikeStart + 8
		if strikeEnd < len(s) && isDigit(s[strikeEnd]) {
			continue
		}

		exp, err := time.Parse("060102", s[i:i+6])
		if err != nil {
			continue
		}

		var strikeMilli int64
		for _, c := range s[strikeStart:strikeEnd] {
			strikeMilli = strikeMilli*10 + int64(c-'0')
		}

		return Option{
			Sym:        s,
			Underlying: Stock{Sym: s[:i]},
			Strike:     decimal.New(strikeMilli, -3),
			Expiration: exp.UTC(),
			Type:       typ,
		}, true
	}

	return Option{}, false
}

// FormatOption builds the OSI symbol for a contract. Strikes are encoded
// to the nearest 1/1000th dollar per the standard format.
func FormatOption(underlying string, expiration time.Time, typ OptionType, strike decimal.Decimal) string {
	typeChar := "C"
	if typ == Put {
		typeChar = "P"
	}
	strikeMilli := strike.Shift(3).Round(0).IntPart()
	return fmt.Sprintf("%s%s%s%08d", underlying, expiration.Format("060102"), typeChar, strikeMilli)
}

// NewOption constructs an Option with its canonical OSI symbol.
func NewOption(underlying string, expiration time.Time, typ OptionType, strike decimal.Decimal) Option {
	return Option{
		Sym:        FormatOption(underlying, expiration, typ, strike),
		Underlying: Stock{Sym: underlying},
		Strike:     strike,
		Expiration: expiration.UTC().Truncate(24 * time.Hour),
		Type:       typ,
	}
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// isSixDigits checks if a string consists of exactly 6 digits
func isSixDigits(s string) bool {
	if len(s) != 6 {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// isEightDigits checks if a string consists of exactly 8 digits
func isEightDigits(s string) bool {
	if len(s) != 8 {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
