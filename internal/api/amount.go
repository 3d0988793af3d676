package api

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// displayAmount renders base units as a decimal string with the given precision,
// e.g. 3000000 with 6 decimals is "3".
func displayAmount(units uint64, decimals int32) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(units), -decimals).String()
}
