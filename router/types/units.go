package types

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// ParseUnits 把 "1.5" 这样的金额转换为最小单位
func ParseUnits(amount string, decimals int32) (*big.Int, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("%w: amount %q", ErrInvalidArgument, amount)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("%w: negative amount %q", ErrInvalidArgument, amount)
	}
	scaled := d.Shift(decimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("%w: amount %q has more than %d decimals", ErrInvalidArgument, amount, decimals)
	}
	return scaled.BigInt(), nil
}

// FormatUnits 最小单位转换为可读金额
func FormatUnits(amount *big.Int, decimals int32) string {
	if amount == nil {
		return "0"
	}
	return decimal.NewFromBigInt(amount, -decimals).String()
}

// FormatEther 18 位精度
func FormatEther(amount *big.Int) string {
	return FormatUnits(amount, 18)
}
