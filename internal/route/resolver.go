// =============================
// File: internal/route/resolver.go
// =============================
package route

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"
)

// ChainReader is the slice of the RPC client the resolver needs. Narrow on
// purpose so tests can stub it.
type ChainReader interface {
	GetAccountInfo(ctx context.Context, account solana.PublicKey) (*rpc.GetAccountInfoResult, error)
	GetMultipleAccounts(ctx context.Context, accounts []solana.PublicKey) (*rpc.GetMultipleAccountsResult, error)
	GetProgramAccountsWithOpts(ctx context.Context, program solana.PublicKey, opts *rpc.GetProgramAccountsOpts) (rpc.GetProgramAccountsResult, error)
}

// Resolver decides which market a token trades on. The decision is made fresh
// on every call: a token can graduate from the curve between two swaps.
type Resolver struct {
	chain       ChainReader
	registry    *Registry
	logger      *zap.Logger
	poolProgram solana.PublicKey

	// pool program config, immutable in practice, cached after the first
	// successful fetch
	cfgMu sync.Mutex
	cfg   *poolGlobalConfig
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithRegistry enables the off-chain index fallback.
func WithRegistry(reg *Registry) ResolverOption {
	return func(r *Resolver) { r.registry = reg }
}

// WithPoolProgram overrides the pooled-market program id.
func WithPoolProgram(program solana.PublicKey) ResolverOption {
	return func(r *Resolver) { r.poolProgram = program }
}

// NewResolver builds a route resolver on top of a chain reader.
func NewResolver(chain ChainReader, logger *zap.Logger, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		chain:       chain,
		logger:      logger.Named("route"),
		poolProgram: PoolProgramID,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve probes the bonding curve first, then falls back to the pooled
// market. A curve account that exists but is marked complete means the token
// has graduated, so the pool path is taken. Returns ErrRouteNotFound when
// neither market exists.
func (r *Resolver) Resolve(ctx context.Context, mint solana.PublicKey) (*State, error) {
	curve, err := r.probeCurve(ctx, mint)
	if err != nil {
		return nil, err
	}
	if curve != nil && !curve.Complete {
		r.logger.Debug("resolved to bonding curve",
			zap.String("mint", mint.String()),
			zap.String("curve", curve.Address.String()),
			zap.Uint64("virtual_sol_reserves", curve.VirtualSolReserves))
		return &State{Mint: mint, Kind: KindBondingCurve, Curve: curve}, nil
	}

	pool, err := r.resolvePool(ctx, mint)
	if err != nil {
		return nil, err
	}
	if pool == nil {
		return nil, fmt.Errorf("%w: mint %s", ErrRouteNotFound, mint)
	}

	r.logger.Debug("resolved to pooled market",
		zap.String("mint", mint.String()),
		zap.String("pool", pool.Address.String()),
		zap.Uint64("base_reserves", pool.BaseReserves),
		zap.Uint64("quote_reserves", pool.QuoteReserves))
	return &State{Mint: mint, Kind: KindPooledMarket, Pool: pool}, nil
}

// probeCurve fetches and parses the curve PDA. A missing account is not an
// error here, it only means the token never launched on the curve.
func (r *Resolver) probeCurve(ctx context.Context, mint solana.PublicKey) (*BondingCurveState, error) {
	address, associated, err := DeriveBondingCurve(mint)
	if err != nil {
		return nil, err
	}

	info, err := r.chain.GetAccountInfo(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("probe bonding curve %s: %w", address, err)
	}
	if info == nil || info.Value == nil {
		return nil, nil
	}

	state, err := ParseBondingCurve(info.Value.Data.GetBinary())
	if err != nil {
		return nil, fmt.Errorf("parse bonding curve %s: %w", address, err)
	}
	state.Address = address
	state.AssociatedBondingCurve = associated
	return state, nil
}

// resolvePool runs the on-chain scan with retry, then the registry fallback.
// Returns (nil, nil) only on a genuine miss: scan and registry both ran fine
// and no pool exists. RPC or registry failures propagate as errors so the
// caller does not mistake an outage for an unknown token.
func (r *Resolver) resolvePool(ctx context.Context, mint solana.PublicKey) (*PooledMarketState, error) {
	pool, err := r.findPoolWithRetry(ctx, mint, NativeMint)
	if err == nil {
		return pool, nil
	}
	if !errors.Is(err, errPoolNotFound) {
		return nil, fmt.Errorf("pool scan for %s: %w", mint, err)
	}
	r.logger.Debug("on-chain pool scan came up empty, trying registry",
		zap.String("mint", mint.String()))

	if r.registry == nil {
		return nil, nil
	}

	ids, err := r.registry.PoolsByMints(ctx, mint, NativeMint)
	if err != nil {
		return nil, fmt.Errorf("pool registry lookup for %s: %w", mint, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	if _, err := r.globalConfig(ctx); err != nil {
		return nil, fmt.Errorf("pool program config: %w", err)
	}

	for _, id := range ids {
		pool, err := r.fetchPoolByAddress(ctx, id)
		if err != nil {
			r.logger.Debug("registry pool did not validate on-chain",
				zap.String("pool", id.String()), zap.Error(err))
			continue
		}
		if pool == nil {
			r.logger.Debug("registry pool has empty vaults", zap.String("pool", id.String()))
			continue
		}
		return pool, nil
	}
	return nil, nil
}

// findPoolWithRetry wraps the parallel scan in exponential backoff. Fresh
// pools can take a slot or two to become visible at confirmed commitment.
func (r *Resolver) findPoolWithRetry(ctx context.Context, baseMint, quoteMint solana.PublicKey) (*PooledMarketState, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 500 * time.Millisecond
	policy.MaxInterval = 5 * time.Second

	notify := func(err error, duration time.Duration) {
		r.logger.Debug("retrying pool scan", zap.Error(err), zap.Duration("backoff", duration))
	}

	operation := func() (*PooledMarketState, error) {
		return r.findPool(ctx, baseMint, quoteMint)
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(3),
		backoff.WithNotify(notify))
}

// accountData fetches one account's raw bytes.
func (r *Resolver) accountData(ctx context.Context, account solana.PublicKey) ([]byte, error) {
	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	info, err := r.chain.GetAccountInfo(cctx, account)
	if err != nil {
		return nil, fmt.Errorf("get account %s: %w", account, err)
	}
	if info == nil || info.Value == nil {
		return nil, fmt.Errorf("account not found: %s", account)
	}
	return info.Value.Data.GetBinary(), nil
}

// multipleAccountData fetches raw bytes for several accounts in one call.
// Missing accounts come back as nil slices.
func (r *Resolver) multipleAccountData(ctx context.Context, accounts []solana.PublicKey) ([][]byte, error) {
	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	resp, err := r.chain.GetMultipleAccounts(cctx, accounts)
	if err != nil {
		return nil, fmt.Errorf("get multiple accounts: %w", err)
	}

	data := make([][]byte, len(accounts))
	for i, info := range resp.Value {
		if info != nil {
			data[i] = info.Data.GetBinary()
		}
	}
	return data, nil
}
