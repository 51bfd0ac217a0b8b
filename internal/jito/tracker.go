// =============================
// File: internal/jito/tracker.go
// =============================
package jito

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrBundleTimeout means the bundle never reached a terminal state
	// within the tracking window.
	ErrBundleTimeout = errors.New("bundle confirmation timeout")

	// ErrBundleFailed means the relay reported the bundle as failed.
	ErrBundleFailed = errors.New("bundle failed")
)

// StatusFunc fetches current statuses for a set of bundle ids. Injected so
// the tracker can be driven by the relay client in production and by a stub
// in tests.
type StatusFunc func(ctx context.Context, bundleIDs []string) ([]*BundleStatus, error)

// WaitForBundle polls statusFn until the bundle lands, fails, or the timeout
// elapses. Transient network errors keep the loop alive; a malformed payload
// aborts immediately. On success the bundle's transaction signatures are
// returned.
func WaitForBundle(ctx context.Context, statusFn StatusFunc, bundleID string, interval, timeout time.Duration, logger *zap.Logger) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log := logger.Named("tracker").With(zap.String("bundle_id", bundleID))

	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w: %s", ErrBundleTimeout, bundleID)
			}
			return nil, ctx.Err()

		case <-ticker.C:
			statuses, err := statusFn(ctx, []string{bundleID})
			if err != nil {
				if errors.Is(err, ErrMalformedResponse) {
					return nil, err
				}
				// transient; the deadline bounds how long we keep trying
				log.Debug("status poll failed", zap.Error(err))
				continue
			}

			if len(statuses) == 0 || statuses[0] == nil {
				// relay does not know the bundle yet
				continue
			}

			status := statuses[0]
			switch status.ConfirmationStatus {
			case "confirmed", "finalized":
				log.Info("bundle landed",
					zap.String("status", status.ConfirmationStatus),
					zap.Uint64("slot", status.Slot),
					zap.Int("txs", len(status.Transactions)))
				return status.Transactions, nil
			case "failed":
				return nil, fmt.Errorf("%w: %s", ErrBundleFailed, bundleID)
			default:
				log.Debug("bundle pending", zap.String("status", status.ConfirmationStatus))
			}
		}
	}
}
