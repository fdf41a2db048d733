package fare

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"acp-node/core/models"
)

// truncateDigits is the number of fractional digits kept from a human amount,
// regardless of the asset's own decimals.
const truncateDigits = 6

// Fare identifies a payable on-chain asset
type Fare struct {
	ContractAddress common.Address
	Decimals        uint8
	// ChainID is non-zero when the asset lives off the job's home chain
	ChainID uint64
}

// NewFare creates a fare for a home-chain asset
func NewFare(contractAddress common.Address, decimals uint8) Fare {
	return Fare{ContractAddress: contractAddress, Decimals: decimals}
}

// WithChain returns a copy of the fare tagged with chainID
func (f Fare) WithChain(chainID uint64) Fare {
	f.ChainID = chainID
	return f
}

// IsCrossChain reports whether the fare settles on a chain other than home
func (f Fare) IsCrossChain(homeChainID uint64) bool {
	return f.ChainID != 0 && f.ChainID != homeChainID
}

// SameAsset reports whether both fares use the same contract
func (f Fare) SameAsset(other Fare) bool {
	return f.ContractAddress == other.ContractAddress
}

// ToUnits scales a human decimal amount into base units, dropping any
// fraction smaller than one unit.
func (f Fare) ToUnits(amount decimal.Decimal) *big.Int {
	return amount.Shift(int32(f.Decimals)).Truncate(0).BigInt()
}

// Format renders base units as a human decimal string
func (f Fare) Format(units *big.Int) string {
	if units == nil {
		return "0"
	}
	return decimal.NewFromBigInt(units, -int32(f.Decimals)).String()
}

// Amount is an amount of a specific fare, held in base units
type Amount interface {
	Units() *big.Int
	Fare() Fare
	Add(other Amount) (Amount, error)
}

// FareAmount is built from a human decimal amount truncated to six digits
type FareAmount struct {
	amount decimal.Decimal
	units  *big.Int
	fare   Fare
}

// NewFareAmount truncates amount to six fractional digits and scales it by the fare decimals
func NewFareAmount(amount float64, f Fare) *FareAmount {
	return NewFareAmountFromDecimal(decimal.NewFromFloat(amount), f)
}

// NewFareAmountFromDecimal is NewFareAmount for callers that already hold a decimal
func NewFareAmountFromDecimal(amount decimal.Decimal, f Fare) *FareAmount {
	truncated := amount.Truncate(truncateDigits)
	return &FareAmount{
		amount: truncated,
		units:  f.ToUnits(truncated),
		fare:   f,
	}
}

// Units returns a copy of the base-unit amount
func (a *FareAmount) Units() *big.Int {
	return new(big.Int).Set(a.units)
}

// Fare returns the asset of the amount
func (a *FareAmount) Fare() Fare {
	return a.fare
}

// Decimal returns the truncated human amount
func (a *FareAmount) Decimal() decimal.Decimal {
	return a.amount
}

// Add sums two amounts of the same asset. Adding a FareAmountBase yields a
// FareAmountBase so the result stays in exact base units.
func (a *FareAmount) Add(other Amount) (Amount, error) {
	if err := checkSameAsset(a, other); err != nil {
		return nil, err
	}
	if o, ok := other.(*FareAmount); ok {
		sum := a.amount.Add(o.amount)
		return &FareAmount{
			amount: sum,
			units:  new(big.Int).Add(a.units, o.units),
			fare:   a.fare,
		}, nil
	}
	return NewFareAmountBase(new(big.Int).Add(a.units, other.Units()), a.fare), nil
}

func (a *FareAmount) String() string {
	return fmt.Sprintf("%s@%s", a.amount.String(), a.fare.ContractAddress.Hex())
}

// FareAmountBase is an amount already expressed in base units
type FareAmountBase struct {
	units *big.Int
	fare  Fare
}

// NewFareAmountBase wraps base units without any truncation
func NewFareAmountBase(units *big.Int, f Fare) *FareAmountBase {
	if units == nil {
		units = new(big.Int)
	}
	return &FareAmountBase{units: new(big.Int).Set(units), fare: f}
}

// Units returns a copy of the base-unit amount
func (a *FareAmountBase) Units() *big.Int {
	return new(big.Int).Set(a.units)
}

// Fare returns the asset of the amount
func (a *FareAmountBase) Fare() Fare {
	return a.fare
}

// Add sums two amounts of the same asset in base units
func (a *FareAmountBase) Add(other Amount) (Amount, error) {
	if err := checkSameAsset(a, other); err != nil {
		return nil, err
	}
	return NewFareAmountBase(new(big.Int).Add(a.units, other.Units()), a.fare), nil
}

func (a *FareAmountBase) String() string {
	return fmt.Sprintf("%s@%s", a.units.String(), a.fare.ContractAddress.Hex())
}

func checkSameAsset(a, b Amount) error {
	if b == nil {
		return fmt.Errorf("%w: missing amount", models.ErrTokenMismatch)
	}
	if !a.Fare().SameAsset(b.Fare()) {
		return fmt.Errorf("%w: %s != %s", models.ErrTokenMismatch,
			a.Fare().ContractAddress.Hex(), b.Fare().ContractAddress.Hex())
	}
	return nil
}
