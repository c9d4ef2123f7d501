package currency

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

var ErrInvalidAmount = errors.New("invalid amount")

// Unit describes how integer subunit amounts are shown to people.
// Amounts are always stored and computed in subunits.
type Unit struct {
	Symbol   string
	Decimals int32
}

var (
	TAC  = Unit{Symbol: "TAC", Decimals: 3}
	KOII = Unit{Symbol: "KOII", Decimals: 3}
)

func (u Unit) ToPrimary(v uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), -u.Decimals)
}

func (u Unit) Format(v uint64) string {
	return u.ToPrimary(v).StringFixed(u.Decimals) + " " + u.Symbol
}

// ToSubunit parses a primary unit amount such as "12.5" into subunits.
func (u Unit) ToSubunit(s string) (uint64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidAmount, err)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("%w: %s is negative", ErrInvalidAmount, s)
	}

	shifted := d.Shift(u.Decimals)
	if !shifted.Equal(shifted.Truncate(0)) {
		return 0, fmt.Errorf("%w: %s has more than %d decimals", ErrInvalidAmount, s, u.Decimals)
	}

	v := shifted.BigInt()
	if !v.IsUint64() {
		return 0, fmt.Errorf("%w: %s is out of range", ErrInvalidAmount, s)
	}
	return v.Uint64(), nil
}
