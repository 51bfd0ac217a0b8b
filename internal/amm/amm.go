// =============================
// File: internal/amm/amm.go
// =============================
package amm

import (
	"fmt"
	"math/big"
)

// TenThousand is the basis-point denominator used for both swap fees and
// slippage tolerances.
const TenThousand = 10_000

// CounterAmount computes the constant-product output for an exact-in swap
// against a pool with the given reserves and fee schedule. The fee is taken
// from the input side before the invariant is applied:
//
//	amountWithFee = amountIn * (feeDen - feeNum) / feeDen
//	amountOut     = outputReserve * amountWithFee / (inputReserve + amountWithFee)
//
// All intermediate math is done on big.Int so the multiply cannot overflow
// uint64 before the divide.
func CounterAmount(inputReserve, outputReserve, feeNumerator, feeDenominator, amountIn uint64) (uint64, error) {
	if inputReserve == 0 || outputReserve == 0 {
		return 0, fmt.Errorf("amm: pool has empty reserves (%d/%d)", inputReserve, outputReserve)
	}
	if feeDenominator == 0 || feeNumerator >= feeDenominator {
		return 0, fmt.Errorf("amm: invalid fee schedule %d/%d", feeNumerator, feeDenominator)
	}
	if amountIn == 0 {
		return 0, nil
	}

	in := new(big.Int).SetUint64(inputReserve)
	out := new(big.Int).SetUint64(outputReserve)

	withFee := new(big.Int).SetUint64(amountIn)
	withFee.Mul(withFee, new(big.Int).SetUint64(feeDenominator-feeNumerator))
	withFee.Div(withFee, new(big.Int).SetUint64(feeDenominator))

	num := new(big.Int).Mul(out, withFee)
	den := new(big.Int).Add(in, withFee)
	num.Div(num, den)

	return num.Uint64(), nil
}

// MinWithSlippage lowers amount by slippageBPS basis points, rounding down.
// Used when amount is a minimum acceptable receipt.
func MinWithSlippage(amount, slippageBPS uint64) uint64 {
	v := new(big.Int).SetUint64(amount)
	v.Mul(v, big.NewInt(TenThousand-int64(slippageBPS)))
	v.Div(v, big.NewInt(TenThousand))
	return v.Uint64()
}

// MaxWithSlippage raises amount by slippageBPS basis points, rounding down.
// Used when amount is a maximum acceptable cost.
func MaxWithSlippage(amount, slippageBPS uint64) uint64 {
	v := new(big.Int).SetUint64(amount)
	v.Mul(v, big.NewInt(TenThousand+int64(slippageBPS)))
	v.Div(v, big.NewInt(TenThousand))
	return v.Uint64()
}

// MulDiv returns floor(a * b / c) with a 128-bit intermediate.
func MulDiv(a, b, c uint64) (uint64, error) {
	if c == 0 {
		return 0, fmt.Errorf("amm: division by zero")
	}
	v := new(big.Int).SetUint64(a)
	v.Mul(v, new(big.Int).SetUint64(b))
	v.Div(v, new(big.Int).SetUint64(c))
	if !v.IsUint64() {
		return 0, fmt.Errorf("amm: result overflows uint64")
	}
	return v.Uint64(), nil
}
