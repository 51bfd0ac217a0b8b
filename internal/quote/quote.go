// =============================
// File: internal/quote/quote.go
// =============================
package quote

import (
	"errors"
	"fmt"
	"math"

	"github.com/ektovd/soltrader/internal/amm"
	"github.com/ektovd/soltrader/internal/route"
)

var (
	// ErrInvalidAmount flags sizing input that cannot be interpreted:
	// negative, NaN, infinite, or a percent outside (0, 1].
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInsufficientBalance means the requested input exceeds what the
	// wallet holds.
	ErrInsufficientBalance = errors.New("insufficient balance")
)

// Side is the swap direction relative to the token: Buy spends SOL for the
// token, Sell spends the token for SOL.
type Side int

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	if s == Buy {
		return "buy"
	}
	return "sell"
}

// Sizing selects how Request.Amount is interpreted on sells.
type Sizing int

const (
	// ExactQuantity treats Amount as a UI token quantity.
	ExactQuantity Sizing = iota
	// PercentOfBalance treats Amount as a fraction of the wallet balance
	// in (0, 1]. Exactly 1.0 sells everything and closes the account.
	PercentOfBalance
)

// Request describes one swap to be quoted. Amount is a UI-scale number:
// SOL for buys, tokens (or a fraction) for sells.
type Request struct {
	Mint        string
	Side        Side
	Amount      float64
	Sizing      Sizing
	SlippageBPS uint64
}

// Quote is a priced swap ready for assembly. All amounts are raw base units.
// Threshold is side-dependent: the maximum acceptable input cost on buys,
// the minimum acceptable output on sells.
type Quote struct {
	Route        *route.State
	Side         Side
	InAmount     uint64
	EstimatedOut uint64
	Threshold    uint64
	SlippageBPS  uint64
	SellAll      bool
	Empty        bool
}

// Build prices a request against resolved route state. balance is the raw
// balance of the input mint (lamports on buys, token units on sells);
// decimals is the token mint's decimal count. A zero-size input yields an
// Empty quote and no error.
func Build(st *route.State, req Request, balance uint64, decimals uint8) (*Quote, error) {
	in, sellAll, err := resolveInput(req, balance, decimals)
	if err != nil {
		return nil, err
	}
	if in == 0 {
		return &Quote{Route: st, Side: req.Side, Empty: true}, nil
	}
	if in > balance {
		return nil, fmt.Errorf("%w: need %d, have %d", ErrInsufficientBalance, in, balance)
	}

	estimate, err := estimateOut(st, req.Side, in)
	if err != nil {
		return nil, err
	}

	q := &Quote{
		Route:        st,
		Side:         req.Side,
		InAmount:     in,
		EstimatedOut: estimate,
		SlippageBPS:  req.SlippageBPS,
		SellAll:      sellAll,
	}
	if req.Side == Buy {
		q.Threshold = amm.MaxWithSlippage(in, req.SlippageBPS)
	} else {
		q.Threshold = amm.MinWithSlippage(estimate, req.SlippageBPS)
	}
	return q, nil
}

// resolveInput turns the UI-scale sizing into raw input units.
func resolveInput(req Request, balance uint64, decimals uint8) (in uint64, sellAll bool, err error) {
	if math.IsNaN(req.Amount) || math.IsInf(req.Amount, 0) || req.Amount < 0 {
		return 0, false, fmt.Errorf("%w: %v", ErrInvalidAmount, req.Amount)
	}

	if req.Side == Sell && req.Sizing == PercentOfBalance {
		if req.Amount == 0 {
			return 0, false, nil
		}
		if req.Amount > 1 {
			return 0, false, fmt.Errorf("%w: percent %v outside (0, 1]", ErrInvalidAmount, req.Amount)
		}
		if req.Amount == 1 {
			return balance, true, nil
		}
		// integer percent form keeps sizing deterministic across platforms
		pct := uint64(req.Amount * 100)
		in, err := amm.MulDiv(balance, pct, 100)
		if err != nil {
			return 0, false, err
		}
		return in, false, nil
	}

	scale := route.NativeDecimals
	if req.Side == Sell {
		scale = int(decimals)
	}
	raw := req.Amount * math.Pow10(scale)
	// float-to-uint conversion is undefined out of range
	if raw >= math.MaxUint64 {
		return 0, false, fmt.Errorf("%w: %v exceeds the raw amount range", ErrInvalidAmount, req.Amount)
	}
	return uint64(raw), false, nil
}

// estimateOut runs the route-appropriate math for an exact-in swap.
func estimateOut(st *route.State, side Side, in uint64) (uint64, error) {
	switch st.Kind {
	case route.KindBondingCurve:
		c := st.Curve
		if c.VirtualSolReserves == 0 || c.VirtualTokenReserves == 0 {
			return 0, fmt.Errorf("bonding curve %s has zero virtual reserves", c.Address)
		}
		if side == Buy {
			return amm.MulDiv(in, c.VirtualTokenReserves, c.VirtualSolReserves)
		}
		return amm.MulDiv(in, c.VirtualSolReserves, c.VirtualTokenReserves)

	case route.KindPooledMarket:
		p := st.Pool
		// orient reserves so the input side matches the swap direction
		tokenRes, solRes := p.BaseReserves, p.QuoteReserves
		if p.BaseMint.Equals(route.NativeMint) {
			tokenRes, solRes = p.QuoteReserves, p.BaseReserves
		}
		if side == Buy {
			return amm.CounterAmount(solRes, tokenRes, p.FeeNumerator, p.FeeDenominator, in)
		}
		return amm.CounterAmount(tokenRes, solRes, p.FeeNumerator, p.FeeDenominator, in)

	default:
		return 0, fmt.Errorf("unknown route kind %d", st.Kind)
	}
}
