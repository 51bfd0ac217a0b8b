// =============================
// File: internal/jito/tipfeed.go
// =============================
package jito

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrTipUnavailable means no tip snapshot has arrived yet and no override is
// configured, so a tipped submission cannot be priced.
var ErrTipUnavailable = errors.New("tip data unavailable")

// MaxTipLamports caps what a single bundle will ever tip (0.1 SOL). A spiked
// percentile feed must not drain the wallet.
const MaxTipLamports = 100_000_000

const lamportsPerSOL = 1_000_000_000

// TipSnapshot is one observation of the relay's landed-tip percentiles,
// denominated in SOL.
type TipSnapshot struct {
	Time                        string  `json:"time"`
	LandedTips25thPercentile    float64 `json:"landed_tips_25th_percentile"`
	LandedTips50thPercentile    float64 `json:"landed_tips_50th_percentile"`
	LandedTips75thPercentile    float64 `json:"landed_tips_75th_percentile"`
	LandedTips95thPercentile    float64 `json:"landed_tips_95th_percentile"`
	LandedTips99thPercentile    float64 `json:"landed_tips_99th_percentile"`
	EMALandedTips50thPercentile float64 `json:"ema_landed_tips_50th_percentile"`
}

// percentile returns the requested percentile value in SOL.
func (s *TipSnapshot) percentile(p int) (float64, error) {
	switch p {
	case 25:
		return s.LandedTips25thPercentile, nil
	case 50:
		return s.LandedTips50thPercentile, nil
	case 75:
		return s.LandedTips75thPercentile, nil
	case 95:
		return s.LandedTips95thPercentile, nil
	case 99:
		return s.LandedTips99thPercentile, nil
	default:
		return 0, fmt.Errorf("unsupported tip percentile %d", p)
	}
}

// TipFeedOptions configures a TipFeed.
type TipFeedOptions struct {
	// Percentile keys into the snapshot; one of 25/50/75/95/99.
	Percentile int
	// OverrideSOL, when positive, bypasses the feed entirely.
	OverrideSOL float64
	// FloorURL is the one-shot pull endpoint for Refresh.
	FloorURL string
	// StreamURL is the websocket endpoint for Run.
	StreamURL string
}

// TipFeed holds the freshest tip snapshot behind an RWMutex: one writer (the
// stream loop or Refresh), many concurrent readers on the swap path.
type TipFeed struct {
	opts   TipFeedOptions
	http   *http.Client
	logger *zap.Logger

	mu       sync.RWMutex
	snapshot *TipSnapshot
}

// NewTipFeed builds a feed. Percentile defaults to the 50th.
func NewTipFeed(opts TipFeedOptions, logger *zap.Logger) *TipFeed {
	if opts.Percentile == 0 {
		opts.Percentile = 50
	}
	return &TipFeed{
		opts:   opts,
		http:   &http.Client{Timeout: 10 * time.Second},
		logger: logger.Named("tipfeed"),
	}
}

// store replaces the snapshot wholesale.
func (f *TipFeed) store(s *TipSnapshot) {
	f.mu.Lock()
	f.snapshot = s
	f.mu.Unlock()
}

// Snapshot returns the current snapshot, or nil before the first update.
func (f *TipFeed) Snapshot() *TipSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.snapshot
}

// TipValue returns the tip to attach to the next bundle, in lamports. An
// override wins over the feed; otherwise the configured percentile of the
// latest snapshot is used. ErrTipUnavailable when neither exists.
func (f *TipFeed) TipValue() (uint64, error) {
	if f.opts.OverrideSOL > 0 {
		return uint64(f.opts.OverrideSOL * lamportsPerSOL), nil
	}

	snap := f.Snapshot()
	if snap == nil {
		return 0, ErrTipUnavailable
	}
	sol, err := snap.percentile(f.opts.Percentile)
	if err != nil {
		return 0, err
	}
	if sol <= 0 {
		return 0, ErrTipUnavailable
	}
	return uint64(sol * lamportsPerSOL), nil
}

// Refresh pulls the tip floor once over HTTP. Useful for one-shot CLI runs
// that never start the stream.
func (f *TipFeed) Refresh(ctx context.Context) error {
	if f.opts.FloorURL == "" {
		return errors.New("tip floor URL not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.opts.FloorURL, nil)
	if err != nil {
		return fmt.Errorf("build tip floor request: %w", err)
	}

	resp, err := f.http.Do(req)
	if err != nil {
		return fmt.Errorf("fetch tip floor: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("tip floor returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read tip floor response: %w", err)
	}

	snap, err := decodeTipMessage(body)
	if err != nil {
		return err
	}

	f.store(snap)
	f.logger.Debug("tip floor refreshed",
		zap.Float64("p50_sol", snap.LandedTips50thPercentile))
	return nil
}

// decodeTipMessage parses a feed message: a JSON array of snapshots with the
// freshest first.
func decodeTipMessage(data []byte) (*TipSnapshot, error) {
	var snapshots []TipSnapshot
	if err := json.Unmarshal(data, &snapshots); err != nil {
		return nil, fmt.Errorf("%w: tip feed: %s", ErrMalformedResponse, err)
	}
	if len(snapshots) == 0 {
		return nil, fmt.Errorf("%w: tip feed: empty array", ErrMalformedResponse)
	}
	return &snapshots[0], nil
}
