// =============================
// File: internal/jito/stream.go
// =============================
package jito

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const streamReconnectDelay = 3 * time.Second

// Run subscribes to the tip-percentile websocket and keeps the snapshot cell
// fresh until ctx is cancelled. Malformed messages are logged and dropped;
// connection errors trigger a reconnect after a short delay. Intended to run
// as one long-lived goroutine per process.
func (f *TipFeed) Run(ctx context.Context) error {
	if f.opts.StreamURL == "" {
		<-ctx.Done()
		return ctx.Err()
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := f.streamOnce(ctx); err != nil {
			f.logger.Warn("tip stream disconnected", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(streamReconnectDelay):
		}
	}
}

// streamOnce dials the stream and consumes messages until an error.
func (f *TipFeed) streamOnce(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, f.opts.StreamURL, nil)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	f.logger.Info("tip stream connected", zap.String("url", f.opts.StreamURL))

	// close the socket when ctx dies so ReadMessage unblocks
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		snap, err := decodeTipMessage(message)
		if err != nil {
			f.logger.Warn("dropping malformed tip message", zap.Error(err))
			continue
		}

		f.store(snap)
		f.logger.Debug("tip snapshot updated",
			zap.Float64("p50_sol", snap.LandedTips50thPercentile),
			zap.Float64("p95_sol", snap.LandedTips95thPercentile))
	}
}
