// =============================
// File: internal/swap/assembler.go
// =============================
package swap

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"

	"github.com/ektovd/soltrader/internal/amm"
	"github.com/ektovd/soltrader/internal/quote"
	"github.com/ektovd/soltrader/internal/route"
	"github.com/ektovd/soltrader/internal/wallet"
)

// AccountChecker is the chain access the assembler needs: existence and
// balance checks on token accounts.
type AccountChecker interface {
	GetAccountInfo(ctx context.Context, account solana.PublicKey) (*rpc.GetAccountInfoResult, error)
}

// Plan is an ordered instruction list for one swap, plus the structural
// facts the submission layer and tests care about. SwapIndex is -1 for an
// empty plan.
type Plan struct {
	Instructions  []solana.Instruction
	HasWrap       bool
	HasCreateDest bool
	HasClose      bool
	SwapIndex     int
	Empty         bool
}

// Assembler turns quotes into instruction plans. It is stateless between
// calls; every account check happens fresh.
type Assembler struct {
	chain  AccountChecker
	wallet *wallet.Wallet
	logger *zap.Logger
}

// NewAssembler builds an assembler bound to one wallet.
func NewAssembler(chain AccountChecker, w *wallet.Wallet, logger *zap.Logger) *Assembler {
	return &Assembler{
		chain:  chain,
		wallet: w,
		logger: logger.Named("assembler"),
	}
}

// Build assembles the instruction plan for a quote. Ordering is fixed:
// wrap steps, then account creation, then exactly one swap instruction,
// then the close on a sell-all. An empty quote yields an empty plan.
func (a *Assembler) Build(ctx context.Context, q *quote.Quote) (*Plan, error) {
	if q.Empty {
		return &Plan{SwapIndex: -1, Empty: true}, nil
	}

	switch q.Route.Kind {
	case route.KindBondingCurve:
		return a.buildCurvePlan(ctx, q)
	case route.KindPooledMarket:
		return a.buildPoolPlan(ctx, q)
	default:
		return nil, fmt.Errorf("unknown route kind %d", q.Route.Kind)
	}
}

// buildCurvePlan handles both curve directions. The curve program takes
// native lamports directly, so buys never wrap.
func (a *Assembler) buildCurvePlan(ctx context.Context, q *quote.Quote) (*Plan, error) {
	mint := q.Route.Mint
	userATA, err := a.wallet.ATA(mint)
	if err != nil {
		return nil, err
	}

	plan := &Plan{SwapIndex: -1}

	if q.Side == quote.Buy {
		exists, err := a.accountExists(ctx, userATA)
		if err != nil {
			return nil, err
		}
		if !exists {
			createIx, err := buildCreateATAIdempotent(a.wallet.PublicKey, a.wallet.PublicKey, mint)
			if err != nil {
				return nil, err
			}
			plan.Instructions = append(plan.Instructions, createIx)
			plan.HasCreateDest = true
		}

		plan.SwapIndex = len(plan.Instructions)
		plan.Instructions = append(plan.Instructions,
			buildCurveBuy(q.Route.Curve, mint, a.wallet.PublicKey, userATA, q.EstimatedOut, q.Threshold))
		return plan, nil
	}

	plan.SwapIndex = len(plan.Instructions)
	plan.Instructions = append(plan.Instructions,
		buildCurveSell(q.Route.Curve, mint, a.wallet.PublicKey, userATA, q.InAmount, q.Threshold))

	if q.SellAll {
		plan.Instructions = append(plan.Instructions,
			buildCloseAccount(userATA, a.wallet.PublicKey, a.wallet.PublicKey))
		plan.HasClose = true
	}
	return plan, nil
}

// buildPoolPlan handles both pool directions, including wrapped-SOL
// funding on buys and the reversed mint orientation some pools carry.
func (a *Assembler) buildPoolPlan(ctx context.Context, q *quote.Quote) (*Plan, error) {
	pool := q.Route.Pool
	mint := q.Route.Mint

	tokenATA, err := a.wallet.ATA(mint)
	if err != nil {
		return nil, err
	}
	wsolATA, err := a.wallet.ATA(route.NativeMint)
	if err != nil {
		return nil, err
	}

	// orientation: which side of the pool is the token
	tokenIsBase := pool.BaseMint.Equals(mint)
	userBaseATA, userQuoteATA := tokenATA, wsolATA
	if !tokenIsBase {
		userBaseATA, userQuoteATA = wsolATA, tokenATA
	}

	plan := &Plan{SwapIndex: -1}

	if q.Side == quote.Buy {
		// fund the wSOL account up to the input amount
		wsolBalance, wsolExists, err := a.tokenBalance(ctx, wsolATA)
		if err != nil {
			return nil, err
		}
		if !wsolExists {
			createIx, err := buildCreateATAIdempotent(a.wallet.PublicKey, a.wallet.PublicKey, route.NativeMint)
			if err != nil {
				return nil, err
			}
			plan.Instructions = append(plan.Instructions, createIx)
		}
		if wsolBalance < q.InAmount {
			shortfall := q.InAmount - wsolBalance
			plan.Instructions = append(plan.Instructions,
				system.NewTransferInstruction(shortfall, a.wallet.PublicKey, wsolATA).Build(),
				buildSyncNative(wsolATA))
			plan.HasWrap = true
		}

		tokenExists, err := a.accountExists(ctx, tokenATA)
		if err != nil {
			return nil, err
		}
		if !tokenExists {
			createIx, err := buildCreateATAIdempotent(a.wallet.PublicKey, a.wallet.PublicKey, mint)
			if err != nil {
				return nil, err
			}
			plan.Instructions = append(plan.Instructions, createIx)
			plan.HasCreateDest = true
		}
	} else {
		// sells receive wSOL; the destination account must exist
		wsolExists, err := a.accountExists(ctx, wsolATA)
		if err != nil {
			return nil, err
		}
		if !wsolExists {
			createIx, err := buildCreateATAIdempotent(a.wallet.PublicKey, a.wallet.PublicKey, route.NativeMint)
			if err != nil {
				return nil, err
			}
			plan.Instructions = append(plan.Instructions, createIx)
			plan.HasCreateDest = true
		}
	}

	swapIx, err := a.buildOrientedPoolSwap(q, pool, tokenIsBase, userBaseATA, userQuoteATA)
	if err != nil {
		return nil, err
	}
	plan.SwapIndex = len(plan.Instructions)
	plan.Instructions = append(plan.Instructions, swapIx)

	if q.Side == quote.Sell && q.SellAll {
		plan.Instructions = append(plan.Instructions,
			buildCloseAccount(tokenATA, a.wallet.PublicKey, a.wallet.PublicKey))
		plan.HasClose = true
	}
	return plan, nil
}

// buildOrientedPoolSwap maps the quote onto the program's base/quote frame.
// In the common orientation the token is base and native SOL is quote, so a
// token buy is the program's buy. When the pool is reversed the directions
// flip and the amounts are re-derived for the other argument shape.
func (a *Assembler) buildOrientedPoolSwap(q *quote.Quote, pool *route.PooledMarketState, tokenIsBase bool, userBaseATA, userQuoteATA solana.PublicKey) (solana.Instruction, error) {
	acc := poolSwapAccounts{
		pool:         pool,
		user:         a.wallet.PublicKey,
		userBaseATA:  userBaseATA,
		userQuoteATA: userQuoteATA,
	}

	if tokenIsBase {
		if q.Side == quote.Buy {
			// buy: (base_amount_out, max_quote_amount_in)
			return buildPoolSwap(acc, true, q.EstimatedOut, q.Threshold)
		}
		// sell: (base_amount_in, min_quote_amount_out)
		return buildPoolSwap(acc, false, q.InAmount, q.Threshold)
	}

	if q.Side == quote.Buy {
		// spending base (native), receiving quote (token): program sell
		minTokenOut := amm.MinWithSlippage(q.EstimatedOut, q.SlippageBPS)
		return buildPoolSwap(acc, false, q.InAmount, minTokenOut)
	}
	// spending quote (token), receiving base (native): program buy
	maxTokenIn := amm.MaxWithSlippage(q.InAmount, q.SlippageBPS)
	return buildPoolSwap(acc, true, q.EstimatedOut, maxTokenIn)
}

// accountExists reports whether an account is present on-chain.
func (a *Assembler) accountExists(ctx context.Context, account solana.PublicKey) (bool, error) {
	info, err := a.chain.GetAccountInfo(ctx, account)
	if err != nil {
		return false, fmt.Errorf("check account %s: %w", account, err)
	}
	return info != nil && info.Value != nil, nil
}

// tokenBalance returns the raw amount in a token account, with existence.
func (a *Assembler) tokenBalance(ctx context.Context, account solana.PublicKey) (uint64, bool, error) {
	info, err := a.chain.GetAccountInfo(ctx, account)
	if err != nil {
		return 0, false, fmt.Errorf("read token account %s: %w", account, err)
	}
	if info == nil || info.Value == nil {
		return 0, false, nil
	}
	data := info.Value.Data.GetBinary()
	if len(data) < 72 {
		return 0, true, nil
	}
	return binary.LittleEndian.Uint64(data[64:72]), true, nil
}
