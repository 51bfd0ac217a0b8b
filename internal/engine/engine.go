// =============================
// File: internal/engine/engine.go
// =============================
package engine

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"

	"github.com/ektovd/soltrader/internal/logger"
	"github.com/ektovd/soltrader/internal/quote"
	"github.com/ektovd/soltrader/internal/route"
	"github.com/ektovd/soltrader/internal/swap"
	"github.com/ektovd/soltrader/internal/wallet"
)

// ChainReader is the chain access the engine itself performs: balances and
// raw accounts. Route resolution and submission carry their own clients.
type ChainReader interface {
	GetAccountInfo(ctx context.Context, account solana.PublicKey) (*rpc.GetAccountInfoResult, error)
	GetBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (uint64, error)
	GetTokenAccountBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetTokenAccountBalanceResult, error)
	GetTokenAccountsByOwner(ctx context.Context, owner solana.PublicKey, mint *solana.PublicKey) (*rpc.GetTokenAccountsResult, error)
}

// Resolver resolves a mint to its current market, or loads a pooled market
// by address for the inspection surface.
type Resolver interface {
	Resolve(ctx context.Context, mint solana.PublicKey) (*route.State, error)
	PoolByID(ctx context.Context, id solana.PublicKey) (*route.PooledMarketState, error)
}

// Assembler turns quotes into instruction plans.
type Assembler interface {
	Build(ctx context.Context, q *quote.Quote) (*swap.Plan, error)
}

// Submitter lands instruction plans.
type Submitter interface {
	SubmitDirect(ctx context.Context, plan *swap.Plan) ([]string, error)
	SubmitBundle(ctx context.Context, plan *swap.Plan) ([]string, error)
}

// Request is one swap order as it arrives from a shell.
type Request struct {
	Mint        string
	Side        quote.Side
	Amount      float64
	Sizing      quote.Sizing
	SlippageBPS uint64
	Bundle      bool
}

// Engine wires the full pipeline: resolve, quote, assemble, submit. One
// engine serves all requests; each request runs its pipeline start to
// finish with no shared mutable state.
type Engine struct {
	chain     ChainReader
	resolver  Resolver
	assembler Assembler
	submitter Submitter
	wallet    *wallet.Wallet
	logger    *logger.Logger

	defaultSlippageBPS uint64
}

// New builds an engine.
func New(c ChainReader, r Resolver, a Assembler, s Submitter, w *wallet.Wallet, defaultSlippageBPS uint64, log *logger.Logger) *Engine {
	return &Engine{
		chain:              c,
		resolver:           r,
		assembler:          a,
		submitter:          s,
		wallet:             w,
		logger:             log,
		defaultSlippageBPS: defaultSlippageBPS,
	}
}

// Swap runs one order through the pipeline and returns the landed
// transaction signatures. A zero-size order is a no-op with an empty result.
func (e *Engine) Swap(ctx context.Context, req Request) ([]string, error) {
	mint, err := solana.PublicKeyFromBase58(req.Mint)
	if err != nil {
		return nil, fmt.Errorf("%w: mint %q", ErrInvalidAmount, req.Mint)
	}

	slippage := req.SlippageBPS
	if slippage == 0 {
		slippage = e.defaultSlippageBPS
	}

	log := e.logger.WithOperation("swap").With(
		zap.String("mint", req.Mint),
		zap.String("side", req.Side.String()),
		zap.Float64("amount", req.Amount),
		zap.Bool("bundle", req.Bundle))

	st, err := e.resolver.Resolve(ctx, mint)
	if err != nil {
		return nil, err
	}
	log.Info("route resolved", zap.String("kind", st.Kind.String()))

	balance, decimals, err := e.inputBalance(ctx, st, req.Side)
	if err != nil {
		return nil, err
	}

	q, err := quote.Build(st, quote.Request{
		Mint:        req.Mint,
		Side:        req.Side,
		Amount:      req.Amount,
		Sizing:      req.Sizing,
		SlippageBPS: slippage,
	}, balance, decimals)
	if err != nil {
		return nil, err
	}
	if q.Empty {
		log.Info("zero-size order, nothing to do")
		return nil, nil
	}
	log.Info("quote built",
		zap.Uint64("in_amount", q.InAmount),
		zap.Uint64("estimated_out", q.EstimatedOut),
		zap.Uint64("threshold", q.Threshold),
		zap.Bool("sell_all", q.SellAll))

	plan, err := e.assembler.Build(ctx, q)
	if err != nil {
		return nil, err
	}

	var sigs []string
	if req.Bundle {
		sigs, err = e.submitter.SubmitBundle(ctx, plan)
	} else {
		sigs, err = e.submitter.SubmitDirect(ctx, plan)
	}
	if err != nil {
		return nil, err
	}
	for _, sig := range sigs {
		e.logger.WithTransaction(sig).Info("transaction landed", zap.String("mint", req.Mint))
	}
	return sigs, nil
}

// inputBalance returns the wallet's raw balance of the input mint and the
// token's decimals.
func (e *Engine) inputBalance(ctx context.Context, st *route.State, side quote.Side) (uint64, uint8, error) {
	decimals, err := e.mintDecimals(ctx, st)
	if err != nil {
		return 0, 0, err
	}

	if side == quote.Buy {
		lamports, err := e.chain.GetBalance(ctx, e.wallet.PublicKey, rpc.CommitmentConfirmed)
		if err != nil {
			return 0, 0, fmt.Errorf("get wallet balance: %w", err)
		}
		return lamports, decimals, nil
	}

	ata, err := e.wallet.ATA(st.Mint)
	if err != nil {
		return 0, 0, err
	}
	result, err := e.chain.GetTokenAccountBalance(ctx, ata, rpc.CommitmentConfirmed)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: no holdings of %s", ErrInsufficientBalance, st.Mint)
	}
	if result == nil || result.Value == nil {
		return 0, 0, fmt.Errorf("%w: no holdings of %s", ErrInsufficientBalance, st.Mint)
	}
	balance, err := strconv.ParseUint(result.Value.Amount, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("parse token balance: %w", err)
	}
	return balance, decimals, nil
}

// mintDecimals reads the token's decimal count. Pooled routes already carry
// it; curve routes need one mint fetch.
func (e *Engine) mintDecimals(ctx context.Context, st *route.State) (uint8, error) {
	if st.Kind == route.KindPooledMarket {
		if st.Pool.BaseMint.Equals(st.Mint) {
			return st.Pool.BaseDecimals, nil
		}
		return st.Pool.QuoteDecimals, nil
	}

	info, err := e.chain.GetAccountInfo(ctx, st.Mint)
	if err != nil {
		return 0, fmt.Errorf("fetch mint %s: %w", st.Mint, err)
	}
	if info == nil || info.Value == nil {
		return 0, fmt.Errorf("mint not found: %s", st.Mint)
	}
	data := info.Value.Data.GetBinary()
	if len(data) < 45 {
		return 0, fmt.Errorf("mint account %s too short", st.Mint)
	}
	return data[44], nil
}

// RouteSummary is the pool-inspection view of a resolved route.
type RouteSummary struct {
	Mint          string  `json:"mint"`
	Kind          string  `json:"kind"`
	Address       string  `json:"address"`
	TokenReserves uint64  `json:"token_reserves"`
	SolReserves   uint64  `json:"sol_reserves"`
	Complete      bool    `json:"complete,omitempty"`
	PriceSOL      float64 `json:"price_sol"`
}

// GetRoute resolves a mint and summarizes the market it trades on.
func (e *Engine) GetRoute(ctx context.Context, mintStr string) (*RouteSummary, error) {
	mint, err := solana.PublicKeyFromBase58(mintStr)
	if err != nil {
		return nil, fmt.Errorf("%w: mint %q", ErrInvalidAmount, mintStr)
	}

	st, err := e.resolver.Resolve(ctx, mint)
	if err != nil {
		return nil, err
	}

	decimals, err := e.mintDecimals(ctx, st)
	if err != nil {
		return nil, err
	}

	summary := &RouteSummary{
		Mint: mintStr,
		Kind: st.Kind.String(),
	}

	var tokenRes, solRes uint64
	switch st.Kind {
	case route.KindBondingCurve:
		summary.Address = st.Curve.Address.String()
		summary.Complete = st.Curve.Complete
		tokenRes, solRes = st.Curve.VirtualTokenReserves, st.Curve.VirtualSolReserves
	case route.KindPooledMarket:
		summary.Address = st.Pool.Address.String()
		tokenRes, solRes = st.Pool.BaseReserves, st.Pool.QuoteReserves
		if st.Pool.BaseMint.Equals(route.NativeMint) {
			tokenRes, solRes = solRes, tokenRes
		}
	}
	summary.TokenReserves = tokenRes
	summary.SolReserves = solRes

	if tokenRes > 0 {
		uiSol := float64(solRes) / math.Pow10(route.NativeDecimals)
		uiToken := float64(tokenRes) / math.Pow10(int(decimals))
		if uiToken > 0 {
			summary.PriceSOL = uiSol / uiToken
		}
	}
	return summary, nil
}

// GetPool summarizes one pooled market directly by its address, skipping
// mint resolution.
func (e *Engine) GetPool(ctx context.Context, poolStr string) (*RouteSummary, error) {
	id, err := solana.PublicKeyFromBase58(poolStr)
	if err != nil {
		return nil, fmt.Errorf("%w: pool %q", ErrInvalidAmount, poolStr)
	}

	pool, err := e.resolver.PoolByID(ctx, id)
	if err != nil {
		return nil, err
	}

	// orient token side first; decimals follow the token mint
	mint, decimals := pool.BaseMint, pool.BaseDecimals
	tokenRes, solRes := pool.BaseReserves, pool.QuoteReserves
	if pool.BaseMint.Equals(route.NativeMint) {
		mint, decimals = pool.QuoteMint, pool.QuoteDecimals
		tokenRes, solRes = pool.QuoteReserves, pool.BaseReserves
	}

	summary := &RouteSummary{
		Mint:          mint.String(),
		Kind:          route.KindPooledMarket.String(),
		Address:       pool.Address.String(),
		TokenReserves: tokenRes,
		SolReserves:   solRes,
	}
	if tokenRes > 0 {
		uiSol := float64(solRes) / math.Pow10(route.NativeDecimals)
		uiToken := float64(tokenRes) / math.Pow10(int(decimals))
		if uiToken > 0 {
			summary.PriceSOL = uiSol / uiToken
		}
	}
	return summary, nil
}

// TokenAccountInfo is one wallet holding.
type TokenAccountInfo struct {
	Address string `json:"address"`
	Mint    string `json:"mint"`
	Amount  uint64 `json:"amount"`
}

// TokenAccounts lists the wallet's SPL token holdings. mint, when non-nil,
// narrows the listing to one token.
func (e *Engine) TokenAccounts(ctx context.Context, mint *solana.PublicKey) ([]TokenAccountInfo, error) {
	result, err := e.chain.GetTokenAccountsByOwner(ctx, e.wallet.PublicKey, mint)
	if err != nil {
		return nil, fmt.Errorf("list token accounts: %w", err)
	}

	accounts := make([]TokenAccountInfo, 0, len(result.Value))
	for _, entry := range result.Value {
		data := entry.Account.Data.GetBinary()
		if len(data) < 72 {
			continue
		}
		accounts = append(accounts, TokenAccountInfo{
			Address: entry.Pubkey.String(),
			Mint:    solana.PublicKeyFromBytes(data[0:32]).String(),
			Amount:  binary.LittleEndian.Uint64(data[64:72]),
		})
	}
	return accounts, nil
}
