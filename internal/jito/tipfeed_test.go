package jito

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const tipMessage = `[{
	"time": "2025-06-01T12:00:00Z",
	"landed_tips_25th_percentile": 0.0005,
	"landed_tips_50th_percentile": 0.002,
	"landed_tips_75th_percentile": 0.004,
	"landed_tips_95th_percentile": 0.01,
	"landed_tips_99th_percentile": 0.05,
	"ema_landed_tips_50th_percentile": 0.0021
}]`

func TestTipValueFromSnapshot(t *testing.T) {
	feed := NewTipFeed(TipFeedOptions{Percentile: 50}, zap.NewNop())

	snap, err := decodeTipMessage([]byte(tipMessage))
	require.NoError(t, err)
	feed.store(snap)

	tip, err := feed.TipValue()
	require.NoError(t, err)
	// p50 of 0.002 SOL
	assert.Equal(t, uint64(2_000_000), tip)
}

func TestTipValuePercentileSelection(t *testing.T) {
	feed := NewTipFeed(TipFeedOptions{Percentile: 95}, zap.NewNop())
	snap, err := decodeTipMessage([]byte(tipMessage))
	require.NoError(t, err)
	feed.store(snap)

	tip, err := feed.TipValue()
	require.NoError(t, err)
	assert.Equal(t, uint64(10_000_000), tip)
}

func TestTipValueOverrideWinsOverFeed(t *testing.T) {
	feed := NewTipFeed(TipFeedOptions{Percentile: 50, OverrideSOL: 0.01}, zap.NewNop())
	snap, err := decodeTipMessage([]byte(tipMessage))
	require.NoError(t, err)
	feed.store(snap)

	tip, err := feed.TipValue()
	require.NoError(t, err)
	assert.Equal(t, uint64(10_000_000), tip)
}

func TestTipValueUnavailableBeforeFirstSnapshot(t *testing.T) {
	feed := NewTipFeed(TipFeedOptions{Percentile: 50}, zap.NewNop())

	_, err := feed.TipValue()
	assert.True(t, errors.Is(err, ErrTipUnavailable))
}

func TestDecodeTipMessageMalformed(t *testing.T) {
	_, err := decodeTipMessage([]byte(`{"not": "an array"}`))
	assert.True(t, errors.Is(err, ErrMalformedResponse))

	_, err = decodeTipMessage([]byte(`[]`))
	assert.True(t, errors.Is(err, ErrMalformedResponse))
}

func TestDecodeTipMessageFirstElementWins(t *testing.T) {
	msg := `[
		{"landed_tips_50th_percentile": 0.003},
		{"landed_tips_50th_percentile": 0.001}
	]`
	snap, err := decodeTipMessage([]byte(msg))
	require.NoError(t, err)
	assert.Equal(t, 0.003, snap.LandedTips50thPercentile)
}

func TestRefreshPullsTipFloor(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(tipMessage))
	}))
	defer srv.Close()

	feed := NewTipFeed(TipFeedOptions{Percentile: 50, FloorURL: srv.URL}, zap.NewNop())
	require.NoError(t, feed.Refresh(context.Background()))

	tip, err := feed.TipValue()
	require.NoError(t, err)
	assert.Equal(t, uint64(2_000_000), tip)
}
