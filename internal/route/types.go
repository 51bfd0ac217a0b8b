// =============================
// File: internal/route/types.go
// =============================
package route

import (
	"errors"

	"github.com/gagliardetto/solana-go"
)

// ErrRouteNotFound means the token trades on neither the bonding curve nor a
// pooled market. This is an expected outcome for unlisted tokens.
var ErrRouteNotFound = errors.New("route not found")

// Known protocol addresses.
var (
	// PumpProgramID is the pump.fun bonding-curve program.
	PumpProgramID = solana.MustPublicKeyFromBase58("6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P")

	// PumpGlobal is the pump.fun global state account.
	PumpGlobal = solana.MustPublicKeyFromBase58("4wTV1YmiEkRvAtNtsSGPtUrqRYQMe5SKy2uB4Jjaxnjf")

	// PumpFeeRecipient receives the protocol fee on curve swaps.
	PumpFeeRecipient = solana.MustPublicKeyFromBase58("CebN5WGQ4jvEPvsVU4EoHEpgzq1VV7AbicfhtW4xC9iM")

	// PumpEventAuthority is the event authority account on curve swaps.
	PumpEventAuthority = solana.MustPublicKeyFromBase58("Ce6TQqeHC9p8KetsN6JsjHK7UTZk7nasjjnr7XxXp9F1")

	// PoolProgramID is the pooled-market AMM program tokens graduate to.
	PoolProgramID = solana.MustPublicKeyFromBase58("pAMMBay6oceH9fJKBRHGP5D4bD4sWpmSwMn52FMfXEA")

	// NativeMint is wrapped SOL.
	NativeMint = solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")
)

const (
	// NativeDecimals is the decimal count of the native mint.
	NativeDecimals = 9
)

// Kind tags which market a token currently trades on.
type Kind int

const (
	KindBondingCurve Kind = iota
	KindPooledMarket
)

func (k Kind) String() string {
	switch k {
	case KindBondingCurve:
		return "bonding_curve"
	case KindPooledMarket:
		return "pooled_market"
	default:
		return "unknown"
	}
}

// BondingCurveState is the parsed on-chain bonding-curve account for a mint.
type BondingCurveState struct {
	Address                solana.PublicKey
	AssociatedBondingCurve solana.PublicKey
	VirtualTokenReserves   uint64
	VirtualSolReserves     uint64
	RealTokenReserves      uint64
	RealSolReserves        uint64
	TokenTotalSupply       uint64
	Complete               bool
}

// PooledMarketState is the parsed on-chain pool for a {mint, native} pair,
// including the current vault reserves.
type PooledMarketState struct {
	Address        solana.PublicKey
	BaseMint       solana.PublicKey
	QuoteMint      solana.PublicKey
	BaseVault      solana.PublicKey
	QuoteVault     solana.PublicKey
	BaseReserves   uint64
	QuoteReserves  uint64
	BaseDecimals   uint8
	QuoteDecimals  uint8
	FeeNumerator   uint64
	FeeDenominator uint64
	FeeRecipient   solana.PublicKey
	CoinCreator    solana.PublicKey
	GlobalConfig   solana.PublicKey
}

// State is the tagged route variant: exactly one of Curve or Pool is set,
// matching Kind. It is fetched fresh per swap request and never cached;
// reserves change every block.
type State struct {
	Mint  solana.PublicKey
	Kind  Kind
	Curve *BondingCurveState
	Pool  *PooledMarketState
}
