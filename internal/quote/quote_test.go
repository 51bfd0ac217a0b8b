package quote

import (
	"errors"
	"math"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ektovd/soltrader/internal/route"
)

func curveState(vTok, vSol uint64) *route.State {
	return &route.State{
		Mint: solana.NewWallet().PublicKey(),
		Kind: route.KindBondingCurve,
		Curve: &route.BondingCurveState{
			Address:              solana.NewWallet().PublicKey(),
			VirtualTokenReserves: vTok,
			VirtualSolReserves:   vSol,
		},
	}
}

func poolState(baseRes, quoteRes uint64) *route.State {
	mint := solana.NewWallet().PublicKey()
	return &route.State{
		Mint: mint,
		Kind: route.KindPooledMarket,
		Pool: &route.PooledMarketState{
			Address:        solana.NewWallet().PublicKey(),
			BaseMint:       mint,
			QuoteMint:      route.NativeMint,
			BaseReserves:   baseRes,
			QuoteReserves:  quoteRes,
			BaseDecimals:   6,
			QuoteDecimals:  9,
			FeeNumerator:   25,
			FeeDenominator: 10_000,
		},
	}
}

func poolNoFee(baseRes, quoteRes uint64) *route.State {
	st := poolState(baseRes, quoteRes)
	st.Pool.FeeNumerator = 0
	return st
}

func TestCurveBuyEstimate(t *testing.T) {
	st := curveState(500_000, 1_000_000_000)

	// 0.1 SOL in
	q, err := Build(st, Request{Side: Buy, Amount: 0.1, SlippageBPS: 100}, 1_000_000_000, 6)
	require.NoError(t, err)
	assert.Equal(t, uint64(100_000_000), q.InAmount)
	assert.Equal(t, uint64(50_000), q.EstimatedOut)
	// max cost is the input plus tolerance
	assert.Equal(t, uint64(101_000_000), q.Threshold)
	assert.False(t, q.Empty)
	assert.False(t, q.SellAll)
}

func TestCurveSellEstimate(t *testing.T) {
	st := curveState(500_000, 1_000_000_000)

	q, err := Build(st, Request{Side: Sell, Amount: 0.05, Sizing: ExactQuantity, SlippageBPS: 100}, 100_000, 6)
	require.NoError(t, err)
	assert.Equal(t, uint64(50_000), q.InAmount)
	// 50_000 * 1_000_000_000 / 500_000 = 100_000_000 lamports
	assert.Equal(t, uint64(100_000_000), q.EstimatedOut)
	// min receipt is the estimate minus tolerance
	assert.Equal(t, uint64(99_000_000), q.Threshold)
}

func TestZeroSlippageThresholdEqualsEstimate(t *testing.T) {
	st := curveState(500_000, 1_000_000_000)

	q, err := Build(st, Request{Side: Sell, Amount: 0.05, SlippageBPS: 0}, 100_000, 6)
	require.NoError(t, err)
	assert.Equal(t, q.EstimatedOut, q.Threshold)

	q, err = Build(st, Request{Side: Buy, Amount: 0.1, SlippageBPS: 0}, 1_000_000_000, 6)
	require.NoError(t, err)
	assert.Equal(t, q.InAmount, q.Threshold)
}

func TestPoolBuyAppliesFee(t *testing.T) {
	st := poolState(742_080, 33_322_000_000)

	q, err := Build(st, Request{Side: Buy, Amount: 1.0, SlippageBPS: 50}, 2_000_000_000, 6)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000_000), q.InAmount)
	assert.NotZero(t, q.EstimatedOut)
	// fee shaves the estimate below the no-fee invariant output
	noFee, err := Build(poolNoFee(742_080, 33_322_000_000), Request{Side: Buy, Amount: 1.0, SlippageBPS: 50}, 2_000_000_000, 6)
	require.NoError(t, err)
	assert.Less(t, q.EstimatedOut, noFee.EstimatedOut)
	// buy threshold caps the input side
	assert.Equal(t, uint64(1_005_000_000), q.Threshold)
}

func TestPoolReversedOrientation(t *testing.T) {
	// same pool but with native SOL as the base mint
	st := poolState(742_080, 33_322_000_000)
	st.Pool.BaseMint, st.Pool.QuoteMint = st.Pool.QuoteMint, st.Pool.BaseMint
	st.Pool.BaseReserves, st.Pool.QuoteReserves = st.Pool.QuoteReserves, st.Pool.BaseReserves

	straight := poolState(742_080, 33_322_000_000)

	q1, err := Build(st, Request{Side: Buy, Amount: 1.0, SlippageBPS: 50}, 2_000_000_000, 6)
	require.NoError(t, err)
	q2, err := Build(straight, Request{Side: Buy, Amount: 1.0, SlippageBPS: 50}, 2_000_000_000, 6)
	require.NoError(t, err)
	assert.Equal(t, q2.EstimatedOut, q1.EstimatedOut)
}

func TestPercentSell(t *testing.T) {
	st := curveState(500_000, 1_000_000_000)
	balance := uint64(1_000)

	q, err := Build(st, Request{Side: Sell, Amount: 0.5, Sizing: PercentOfBalance, SlippageBPS: 100}, balance, 6)
	require.NoError(t, err)
	assert.Equal(t, uint64(500), q.InAmount)
	assert.False(t, q.SellAll)

	q, err = Build(st, Request{Side: Sell, Amount: 1.0, Sizing: PercentOfBalance, SlippageBPS: 100}, balance, 6)
	require.NoError(t, err)
	assert.Equal(t, balance, q.InAmount)
	assert.True(t, q.SellAll)
}

func TestZeroInputYieldsEmptyQuote(t *testing.T) {
	st := curveState(500_000, 1_000_000_000)

	q, err := Build(st, Request{Side: Buy, Amount: 0, SlippageBPS: 100}, 1_000_000_000, 6)
	require.NoError(t, err)
	assert.True(t, q.Empty)
	assert.Zero(t, q.InAmount)

	q, err = Build(st, Request{Side: Sell, Amount: 0, Sizing: PercentOfBalance, SlippageBPS: 100}, 1_000, 6)
	require.NoError(t, err)
	assert.True(t, q.Empty)
}

func TestInvalidAmounts(t *testing.T) {
	st := curveState(500_000, 1_000_000_000)

	for _, amount := range []float64{math.NaN(), math.Inf(1), math.Inf(-1), -0.5} {
		_, err := Build(st, Request{Side: Buy, Amount: amount}, 1_000_000_000, 6)
		assert.True(t, errors.Is(err, ErrInvalidAmount), "amount=%v", amount)
	}

	// percent above 1 is rejected, not clamped
	_, err := Build(st, Request{Side: Sell, Amount: 1.5, Sizing: PercentOfBalance}, 1_000, 6)
	assert.True(t, errors.Is(err, ErrInvalidAmount))

	// a finite amount whose raw form overflows uint64 is rejected, not wrapped
	_, err = Build(st, Request{Side: Buy, Amount: 1e30}, 1_000_000_000, 6)
	assert.True(t, errors.Is(err, ErrInvalidAmount))
}

func TestInsufficientBalance(t *testing.T) {
	st := curveState(500_000, 1_000_000_000)

	_, err := Build(st, Request{Side: Sell, Amount: 10, Sizing: ExactQuantity, SlippageBPS: 100}, 1_000_000, 6)
	assert.True(t, errors.Is(err, ErrInsufficientBalance))

	_, err = Build(st, Request{Side: Buy, Amount: 5, SlippageBPS: 100}, 1_000_000_000, 6)
	assert.True(t, errors.Is(err, ErrInsufficientBalance))
}
