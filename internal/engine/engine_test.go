package engine

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ektovd/soltrader/internal/logger"
	"github.com/ektovd/soltrader/internal/quote"
	"github.com/ektovd/soltrader/internal/route"
	"github.com/ektovd/soltrader/internal/swap"
	"github.com/ektovd/soltrader/internal/wallet"
)

type stubChain struct {
	lamports     uint64
	tokenBalance string
	mintDecimals uint8
}

func (s *stubChain) GetAccountInfo(_ context.Context, _ solana.PublicKey) (*rpc.GetAccountInfoResult, error) {
	data := make([]byte, 82)
	data[44] = s.mintDecimals
	return &rpc.GetAccountInfoResult{Value: &rpc.Account{Data: rpc.DataBytesOrJSONFromBytes(data)}}, nil
}

func (s *stubChain) GetBalance(_ context.Context, _ solana.PublicKey, _ rpc.CommitmentType) (uint64, error) {
	return s.lamports, nil
}

func (s *stubChain) GetTokenAccountBalance(_ context.Context, _ solana.PublicKey, _ rpc.CommitmentType) (*rpc.GetTokenAccountBalanceResult, error) {
	return &rpc.GetTokenAccountBalanceResult{
		Value: &rpc.UiTokenAmount{Amount: s.tokenBalance},
	}, nil
}

func (s *stubChain) GetTokenAccountsByOwner(_ context.Context, _ solana.PublicKey, _ *solana.PublicKey) (*rpc.GetTokenAccountsResult, error) {
	mint := solana.NewWallet().PublicKey()
	data := make([]byte, 165)
	copy(data[0:32], mint.Bytes())
	binary.LittleEndian.PutUint64(data[64:72], 12345)
	return &rpc.GetTokenAccountsResult{
		Value: []*rpc.TokenAccount{{
			Pubkey:  solana.NewWallet().PublicKey(),
			Account: rpc.Account{Data: rpc.DataBytesOrJSONFromBytes(data)},
		}},
	}, nil
}

type stubResolver struct {
	state *route.State
	pool  *route.PooledMarketState
	err   error
}

func (s *stubResolver) Resolve(_ context.Context, _ solana.PublicKey) (*route.State, error) {
	return s.state, s.err
}

func (s *stubResolver) PoolByID(_ context.Context, _ solana.PublicKey) (*route.PooledMarketState, error) {
	if s.pool == nil {
		return nil, s.err
	}
	return s.pool, nil
}

type stubAssembler struct {
	built *quote.Quote
}

func (s *stubAssembler) Build(_ context.Context, q *quote.Quote) (*swap.Plan, error) {
	s.built = q
	return &swap.Plan{Instructions: nil, SwapIndex: 0}, nil
}

type stubSubmitter struct {
	direct, bundled int
}

func (s *stubSubmitter) SubmitDirect(_ context.Context, _ *swap.Plan) ([]string, error) {
	s.direct++
	return []string{"direct-sig"}, nil
}

func (s *stubSubmitter) SubmitBundle(_ context.Context, _ *swap.Plan) ([]string, error) {
	s.bundled++
	return []string{"bundle-sig-1", "bundle-sig-2"}, nil
}

func nopLogger() *logger.Logger {
	return &logger.Logger{Logger: zap.NewNop()}
}

func testEngine(t *testing.T, st *route.State, c *stubChain) (*Engine, *stubAssembler, *stubSubmitter) {
	t.Helper()
	w, err := wallet.New(base58.Encode(solana.NewWallet().PrivateKey))
	require.NoError(t, err)
	asm := &stubAssembler{}
	sub := &stubSubmitter{}
	return New(c, &stubResolver{state: st}, asm, sub, w, 300, nopLogger()), asm, sub
}

func curveState(mint solana.PublicKey) *route.State {
	return &route.State{
		Mint: mint,
		Kind: route.KindBondingCurve,
		Curve: &route.BondingCurveState{
			Address:              solana.NewWallet().PublicKey(),
			VirtualTokenReserves: 500_000_000_000,
			VirtualSolReserves:   1_000_000_000,
		},
	}
}

func TestSwapDirectPath(t *testing.T) {
	mint := solana.NewWallet().PublicKey()
	e, asm, sub := testEngine(t, curveState(mint), &stubChain{lamports: 2_000_000_000, mintDecimals: 6})

	sigs, err := e.Swap(context.Background(), Request{
		Mint:   mint.String(),
		Side:   quote.Buy,
		Amount: 0.5,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"direct-sig"}, sigs)
	assert.Equal(t, 1, sub.direct)
	assert.Zero(t, sub.bundled)

	// default slippage applied
	require.NotNil(t, asm.built)
	assert.Equal(t, uint64(300), asm.built.SlippageBPS)
}

func TestSwapBundlePath(t *testing.T) {
	mint := solana.NewWallet().PublicKey()
	e, _, sub := testEngine(t, curveState(mint), &stubChain{lamports: 2_000_000_000, mintDecimals: 6})

	sigs, err := e.Swap(context.Background(), Request{
		Mint:   mint.String(),
		Side:   quote.Buy,
		Amount: 0.5,
		Bundle: true,
	})
	require.NoError(t, err)
	assert.Len(t, sigs, 2)
	assert.Equal(t, 1, sub.bundled)
	assert.Zero(t, sub.direct)
}

func TestSwapSellReadsTokenBalance(t *testing.T) {
	mint := solana.NewWallet().PublicKey()
	e, asm, sub := testEngine(t, curveState(mint), &stubChain{
		tokenBalance: "1000000",
		mintDecimals: 6,
	})

	sigs, err := e.Swap(context.Background(), Request{
		Mint:   mint.String(),
		Side:   quote.Sell,
		Amount: 1.0,
		Sizing: quote.PercentOfBalance,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"direct-sig"}, sigs)
	assert.Equal(t, 1, sub.direct)

	require.NotNil(t, asm.built)
	assert.True(t, asm.built.SellAll)
	assert.Equal(t, uint64(1_000_000), asm.built.InAmount)
}

func TestSwapZeroAmountIsNoOp(t *testing.T) {
	mint := solana.NewWallet().PublicKey()
	e, _, sub := testEngine(t, curveState(mint), &stubChain{lamports: 1, mintDecimals: 6})

	sigs, err := e.Swap(context.Background(), Request{Mint: mint.String(), Side: quote.Buy, Amount: 0})
	require.NoError(t, err)
	assert.Empty(t, sigs)
	assert.Zero(t, sub.direct)
	assert.Zero(t, sub.bundled)
}

func TestSwapInvalidMint(t *testing.T) {
	e, _, _ := testEngine(t, nil, &stubChain{})

	_, err := e.Swap(context.Background(), Request{Mint: "not-a-mint", Side: quote.Buy, Amount: 1})
	assert.True(t, errors.Is(err, ErrInvalidAmount))
}

func TestSwapRouteNotFoundPropagates(t *testing.T) {
	w, err := wallet.New(base58.Encode(solana.NewWallet().PrivateKey))
	require.NoError(t, err)
	e := New(&stubChain{}, &stubResolver{err: ErrRouteNotFound}, &stubAssembler{}, &stubSubmitter{}, w, 300, nopLogger())

	_, err = e.Swap(context.Background(), Request{
		Mint: solana.NewWallet().PublicKey().String(), Side: quote.Buy, Amount: 1,
	})
	assert.True(t, errors.Is(err, ErrRouteNotFound))
}

func TestGetRouteCurveSummary(t *testing.T) {
	mint := solana.NewWallet().PublicKey()
	st := curveState(mint)
	e, _, _ := testEngine(t, st, &stubChain{mintDecimals: 6})

	summary, err := e.GetRoute(context.Background(), mint.String())
	require.NoError(t, err)
	assert.Equal(t, "bonding_curve", summary.Kind)
	assert.Equal(t, st.Curve.Address.String(), summary.Address)
	assert.Equal(t, uint64(500_000_000_000), summary.TokenReserves)
	assert.Equal(t, uint64(1_000_000_000), summary.SolReserves)
	// 1 SOL vs 500k tokens (6 decimals)
	assert.InDelta(t, 1.0/500_000, summary.PriceSOL, 1e-12)
}

func TestGetPoolSummary(t *testing.T) {
	w, err := wallet.New(base58.Encode(solana.NewWallet().PrivateKey))
	require.NoError(t, err)

	mint := solana.NewWallet().PublicKey()
	pool := &route.PooledMarketState{
		Address:       solana.NewWallet().PublicKey(),
		BaseMint:      route.NativeMint,
		QuoteMint:     mint,
		BaseReserves:  2_000_000_000, // SOL side
		QuoteReserves: 4_000_000,     // token side
		BaseDecimals:  9,
		QuoteDecimals: 6,
	}
	e := New(&stubChain{}, &stubResolver{pool: pool}, &stubAssembler{}, &stubSubmitter{}, w, 300, nopLogger())

	summary, err := e.GetPool(context.Background(), pool.Address.String())
	require.NoError(t, err)
	assert.Equal(t, "pooled_market", summary.Kind)
	assert.Equal(t, mint.String(), summary.Mint)
	// reserves come out token side first regardless of pool orientation
	assert.Equal(t, uint64(4_000_000), summary.TokenReserves)
	assert.Equal(t, uint64(2_000_000_000), summary.SolReserves)
	// 2 SOL against 4 tokens
	assert.InDelta(t, 0.5, summary.PriceSOL, 1e-12)
}

func TestGetPoolInvalidAddress(t *testing.T) {
	e, _, _ := testEngine(t, nil, &stubChain{})

	_, err := e.GetPool(context.Background(), "not-an-address")
	assert.True(t, errors.Is(err, ErrInvalidAmount))
}

func TestTokenAccountsListing(t *testing.T) {
	mint := solana.NewWallet().PublicKey()
	e, _, _ := testEngine(t, curveState(mint), &stubChain{mintDecimals: 6})

	accounts, err := e.TokenAccounts(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, uint64(12345), accounts[0].Amount)
	assert.NotEmpty(t, accounts[0].Mint)
}
