package fare

import (
	"math/big"

	"github.com/shopspring/decimal"

	"acp-node/core/models"
)

var basisPointsPerUnit = decimal.NewFromInt(10000)

// FeeBasisPoints converts a percentage price value (0.05 = 5%) to basis points, rounded
func FeeBasisPoints(priceValue float64) *big.Int {
	return decimal.NewFromFloat(priceValue).Mul(basisPointsPerUnit).Round(0).BigInt()
}

// ComputeFee returns the fee amount and fee type attached to a payable memo
func ComputeFee(priceType models.PriceType, priceValue float64, skipFee bool) (*big.Int, models.FeeType) {
	if skipFee || priceType != models.PriceTypePercentage {
		return new(big.Int), models.FeeTypeNone
	}
	return FeeBasisPoints(priceValue), models.FeeTypePercentage
}
