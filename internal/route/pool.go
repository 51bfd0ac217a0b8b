// =============================
// File: internal/route/pool.go
// =============================
package route

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// errPoolNotFound marks a genuine miss: the scan ran fine and no market
// exists. Anything else coming out of the pool path is an upstream failure
// and must not collapse into ErrRouteNotFound.
var errPoolNotFound = errors.New("no pool found")

var (
	// PoolDiscriminator identifies pooled-market accounts.
	PoolDiscriminator = []byte{241, 154, 109, 4, 17, 177, 109, 188}

	// GlobalConfigDiscriminator identifies the pool program's config account.
	GlobalConfigDiscriminator = []byte{149, 8, 156, 202, 160, 252, 176, 217}
)

const (
	// SPL token account layout: amount sits at byte 64.
	tokenAccountAmountOffset = 64

	offsetBaseMint  = 8 + 1 + 2 + 32 // disc, bump, index, creator
	offsetQuoteMint = offsetBaseMint + 32
)

// rawPool is the wire layout of a pool account.
type rawPool struct {
	PoolBump              uint8
	Index                 uint16
	Creator               solana.PublicKey
	BaseMint              solana.PublicKey
	QuoteMint             solana.PublicKey
	LPMint                solana.PublicKey
	PoolBaseTokenAccount  solana.PublicKey
	PoolQuoteTokenAccount solana.PublicKey
	LPSupply              uint64
	CoinCreator           solana.PublicKey
}

// poolGlobalConfig is the decoded pool program config. Only the fee fields
// matter for quoting; the recipient list matters for fee routing.
type poolGlobalConfig struct {
	Address                solana.PublicKey
	Admin                  solana.PublicKey
	LPFeeBasisPoints       uint64
	ProtocolFeeBasisPoints uint64
	DisableFlags           uint8
	ProtocolFeeRecipients  [8]solana.PublicKey
}

// parsePool decodes a raw pool account, rejecting wrong discriminators.
func parsePool(data []byte) (*rawPool, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("data too short for pool")
	}
	for i := 0; i < 8; i++ {
		if data[i] != PoolDiscriminator[i] {
			return nil, fmt.Errorf("invalid discriminator for pool")
		}
	}

	pos := 8
	if len(data) < pos+1+2+32*5+8 {
		return nil, fmt.Errorf("data too short for pool content")
	}

	p := &rawPool{}
	p.PoolBump = data[pos]
	pos++
	p.Index = binary.LittleEndian.Uint16(data[pos : pos+2])
	pos += 2

	p.Creator = solana.PublicKeyFromBytes(data[pos : pos+32])
	pos += 32
	p.BaseMint = solana.PublicKeyFromBytes(data[pos : pos+32])
	pos += 32
	p.QuoteMint = solana.PublicKeyFromBytes(data[pos : pos+32])
	pos += 32
	p.LPMint = solana.PublicKeyFromBytes(data[pos : pos+32])
	pos += 32
	p.PoolBaseTokenAccount = solana.PublicKeyFromBytes(data[pos : pos+32])
	pos += 32
	p.PoolQuoteTokenAccount = solana.PublicKeyFromBytes(data[pos : pos+32])
	pos += 32

	p.LPSupply = binary.LittleEndian.Uint64(data[pos : pos+8])
	pos += 8

	if len(data) >= pos+32 {
		p.CoinCreator = solana.PublicKeyFromBytes(data[pos : pos+32])
	}

	return p, nil
}

// parseGlobalConfig decodes the pool program's global config account.
func parseGlobalConfig(data []byte) (*poolGlobalConfig, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("data too short for global config")
	}
	for i := 0; i < 8; i++ {
		if data[i] != GlobalConfigDiscriminator[i] {
			return nil, fmt.Errorf("invalid discriminator for global config")
		}
	}

	pos := 8
	if len(data) < pos+32+8+8+1+32*8 {
		return nil, fmt.Errorf("data too short for global config content")
	}

	cfg := &poolGlobalConfig{}
	cfg.Admin = solana.PublicKeyFromBytes(data[pos : pos+32])
	pos += 32
	cfg.LPFeeBasisPoints = binary.LittleEndian.Uint64(data[pos : pos+8])
	pos += 8
	cfg.ProtocolFeeBasisPoints = binary.LittleEndian.Uint64(data[pos : pos+8])
	pos += 8
	cfg.DisableFlags = data[pos]
	pos++
	for i := 0; i < 8; i++ {
		cfg.ProtocolFeeRecipients[i] = solana.PublicKeyFromBytes(data[pos : pos+32])
		pos += 32
	}

	return cfg, nil
}

// parseTokenAmount reads the amount field out of a raw SPL token account.
func parseTokenAmount(data []byte) uint64 {
	if len(data) < tokenAccountAmountOffset+8 {
		return 0
	}
	return binary.LittleEndian.Uint64(data[tokenAccountAmountOffset : tokenAccountAmountOffset+8])
}

// parseMintDecimals reads the decimals field out of a raw SPL mint account.
func parseMintDecimals(data []byte) uint8 {
	// mint layout: mintAuthority option+key (36), supply (8), decimals (1)
	if len(data) < 45 {
		return 0
	}
	return data[44]
}

// globalConfig returns the pool program config. Only a successful fetch is
// cached: a transient RPC failure here must not poison every later
// resolution, the next call retries from scratch.
func (r *Resolver) globalConfig(ctx context.Context) (*poolGlobalConfig, error) {
	r.cfgMu.Lock()
	defer r.cfgMu.Unlock()

	if r.cfg != nil {
		return r.cfg, nil
	}

	addr, _, err := solana.FindProgramAddress([][]byte{[]byte("global_config")}, r.poolProgram)
	if err != nil {
		return nil, fmt.Errorf("derive global config address: %w", err)
	}
	data, err := r.accountData(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("fetch global config: %w", err)
	}
	cfg, err := parseGlobalConfig(data)
	if err != nil {
		return nil, err
	}
	cfg.Address = addr
	r.cfg = cfg
	return cfg, nil
}

// findPool scans the pool program for a market on the pair, trying both mint
// orderings in parallel and taking whichever side lands first. A scan error
// on either side is reported only when neither side found a pool.
func (r *Resolver) findPool(ctx context.Context, baseMint, quoteMint solana.PublicKey) (*PooledMarketState, error) {
	searchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		found   *PooledMarketState
		scanErr error
		mu      sync.Mutex
	)

	scan := func(base, quoteM solana.PublicKey) func() error {
		return func() error {
			p, err := r.scanPools(searchCtx, base, quoteM)
			mu.Lock()
			defer mu.Unlock()
			if err != nil && scanErr == nil {
				scanErr = err
			}
			if p != nil && found == nil {
				found = p
				cancel()
			}
			return nil
		}
	}

	g, _ := errgroup.WithContext(searchCtx)
	g.Go(scan(baseMint, quoteMint))
	g.Go(scan(quoteMint, baseMint))
	_ = g.Wait()

	if found != nil {
		return found, nil
	}
	if scanErr != nil {
		return nil, scanErr
	}
	return nil, fmt.Errorf("%w for %s / %s", errPoolNotFound, baseMint, quoteMint)
}

// scanPools runs a filtered program-account scan for one mint ordering and
// returns the first candidate with live reserves on both vaults. A nil, nil
// return is a miss; errors mean the scan itself could not complete.
func (r *Resolver) scanPools(ctx context.Context, baseMint, quoteMint solana.PublicKey) (*PooledMarketState, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	opts := &rpc.GetProgramAccountsOpts{
		Commitment: rpc.CommitmentConfirmed,
		Encoding:   solana.EncodingBase64,
		Filters: []rpc.RPCFilter{
			{Memcmp: &rpc.RPCFilterMemcmp{Offset: 0, Bytes: PoolDiscriminator}},
			{Memcmp: &rpc.RPCFilterMemcmp{Offset: offsetBaseMint, Bytes: baseMint.Bytes()}},
			{Memcmp: &rpc.RPCFilterMemcmp{Offset: offsetQuoteMint, Bytes: quoteMint.Bytes()}},
		},
	}

	accounts, err := r.chain.GetProgramAccountsWithOpts(ctx, r.poolProgram, opts)
	if err != nil {
		return nil, fmt.Errorf("GetProgramAccountsWithOpts: %w", err)
	}

	for _, acc := range accounts {
		pool, err := parsePool(acc.Account.Data.GetBinary())
		if err != nil {
			continue
		}

		cfg, err := r.globalConfig(ctx)
		if err != nil {
			return nil, err
		}
		state, err := r.hydratePool(ctx, acc.Pubkey, pool, cfg)
		if err != nil {
			return nil, fmt.Errorf("hydrate pool %s: %w", acc.Pubkey, err)
		}
		if state == nil {
			r.logger.Debug("skipping pool candidate with empty vaults",
				zap.String("pool", acc.Pubkey.String()))
			continue
		}
		return state, nil
	}

	return nil, nil
}

// hydratePool fills a parsed pool with vault reserves, mint decimals and the
// fee schedule. Pools with an empty vault cannot quote and come back nil.
func (r *Resolver) hydratePool(ctx context.Context, address solana.PublicKey, pool *rawPool, cfg *poolGlobalConfig) (*PooledMarketState, error) {
	accounts := []solana.PublicKey{
		pool.PoolBaseTokenAccount, pool.PoolQuoteTokenAccount,
		pool.BaseMint, pool.QuoteMint,
	}
	raw, err := r.multipleAccountData(ctx, accounts)
	if err != nil {
		return nil, err
	}
	baseRes := parseTokenAmount(raw[0])
	quoteRes := parseTokenAmount(raw[1])
	if baseRes == 0 || quoteRes == 0 {
		return nil, nil
	}

	return &PooledMarketState{
		Address:        address,
		BaseMint:       pool.BaseMint,
		QuoteMint:      pool.QuoteMint,
		BaseVault:      pool.PoolBaseTokenAccount,
		QuoteVault:     pool.PoolQuoteTokenAccount,
		BaseReserves:   baseRes,
		QuoteReserves:  quoteRes,
		BaseDecimals:   parseMintDecimals(raw[2]),
		QuoteDecimals:  parseMintDecimals(raw[3]),
		FeeNumerator:   cfg.LPFeeBasisPoints + cfg.ProtocolFeeBasisPoints,
		FeeDenominator: 10_000,
		FeeRecipient:   cfg.ProtocolFeeRecipients[0],
		CoinCreator:    pool.CoinCreator,
		GlobalConfig:   cfg.Address,
	}, nil
}

// fetchPoolByAddress loads one pool directly, used for registry hits.
func (r *Resolver) fetchPoolByAddress(ctx context.Context, address solana.PublicKey) (*PooledMarketState, error) {
	data, err := r.accountData(ctx, address)
	if err != nil {
		return nil, err
	}
	pool, err := parsePool(data)
	if err != nil {
		return nil, err
	}
	cfg, err := r.globalConfig(ctx)
	if err != nil {
		return nil, err
	}
	return r.hydratePool(ctx, address, pool, cfg)
}

// PoolByID loads one pooled market directly by its address. When the
// registry is configured the id is checked against the index first, purely
// for logging; chain state stays authoritative.
func (r *Resolver) PoolByID(ctx context.Context, id solana.PublicKey) (*PooledMarketState, error) {
	if r.registry != nil {
		known, err := r.registry.PoolsByIDs(ctx, []solana.PublicKey{id})
		if err != nil {
			r.logger.Warn("registry id lookup failed",
				zap.String("pool", id.String()), zap.Error(err))
		} else if len(known) == 0 {
			r.logger.Debug("pool id not present in registry index",
				zap.String("pool", id.String()))
		}
	}

	pool, err := r.fetchPoolByAddress(ctx, id)
	if err != nil {
		return nil, err
	}
	if pool == nil {
		return nil, fmt.Errorf("%w: pool %s has empty vaults", ErrRouteNotFound, id)
	}
	return pool, nil
}
