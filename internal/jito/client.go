// =============================
// File: internal/jito/client.go
// =============================
package jito

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
)

var (
	// ErrNoTipAccounts means the tip-account pool was never primed or came
	// back empty. Raised before any relay submission is attempted.
	ErrNoTipAccounts = errors.New("no tip accounts available")

	// ErrMalformedResponse means the relay answered with a payload that
	// does not decode into the expected shape.
	ErrMalformedResponse = errors.New("malformed relay response")
)

// Client talks JSON-RPC to a bundle relay.
type Client struct {
	endpoint string
	http     *http.Client
	logger   *zap.Logger

	mu          sync.RWMutex
	tipAccounts []solana.PublicKey
}

// NewClient builds a relay client for the given JSON-RPC endpoint.
func NewClient(endpoint string, logger *zap.Logger) *Client {
	return &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: 15 * time.Second},
		logger:   logger.Named("relay"),
	}
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("relay error %d: %s", e.Code, e.Message)
}

func (c *Client) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	payload, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("relay %s: %w", method, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s response: %w", method, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("relay %s returned status %d: %s", method, resp.StatusCode, string(body))
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return fmt.Errorf("%w: %s", ErrMalformedResponse, err)
	}
	if rpcResp.Error != nil {
		return rpcResp.Error
	}
	if err := json.Unmarshal(rpcResp.Result, result); err != nil {
		return fmt.Errorf("%w: %s result: %s", ErrMalformedResponse, method, err)
	}
	return nil
}

// PrimeTipAccounts fetches the relay's tip accounts into the local pool.
// Called once at startup; RandomTipAccount never hits the network.
func (c *Client) PrimeTipAccounts(ctx context.Context) error {
	var raw []string
	if err := c.call(ctx, "getTipAccounts", []interface{}{}, &raw); err != nil {
		return fmt.Errorf("prime tip accounts: %w", err)
	}

	accounts := make([]solana.PublicKey, 0, len(raw))
	for _, s := range raw {
		pk, err := solana.PublicKeyFromBase58(s)
		if err != nil {
			c.logger.Warn("relay returned malformed tip account", zap.String("account", s))
			continue
		}
		accounts = append(accounts, pk)
	}
	if len(accounts) == 0 {
		return fmt.Errorf("prime tip accounts: %w", ErrNoTipAccounts)
	}

	c.mu.Lock()
	c.tipAccounts = accounts
	c.mu.Unlock()

	c.logger.Info("primed tip accounts", zap.Int("count", len(accounts)))
	return nil
}

// RandomTipAccount picks a tip account from the primed pool. Spreading tips
// across accounts avoids write-lock contention between concurrent bundles.
func (c *Client) RandomTipAccount() (solana.PublicKey, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.tipAccounts) == 0 {
		return solana.PublicKey{}, ErrNoTipAccounts
	}
	return c.tipAccounts[rand.Intn(len(c.tipAccounts))], nil
}

// SendBundle submits transactions as an ordered bundle and returns the
// relay-assigned bundle id. Order is preserved by the relay.
func (c *Client) SendBundle(ctx context.Context, txs []*solana.Transaction) (string, error) {
	encoded := make([]string, len(txs))
	for i, tx := range txs {
		wire, err := tx.MarshalBinary()
		if err != nil {
			return "", fmt.Errorf("serialize bundle tx %d: %w", i, err)
		}
		encoded[i] = base64.StdEncoding.EncodeToString(wire)
	}

	var bundleID string
	err := c.call(ctx, "sendBundle",
		[]interface{}{encoded, map[string]string{"encoding": "base64"}}, &bundleID)
	if err != nil {
		return "", fmt.Errorf("send bundle: %w", err)
	}

	c.logger.Info("bundle submitted", zap.String("bundle_id", bundleID), zap.Int("txs", len(txs)))
	return bundleID, nil
}

// BundleStatus is one entry of a getBundleStatuses result.
type BundleStatus struct {
	BundleID           string   `json:"bundle_id"`
	Transactions       []string `json:"transactions"`
	Slot               uint64   `json:"slot"`
	ConfirmationStatus string   `json:"confirmation_status"`
	Err                struct {
		Ok interface{} `json:"Ok"`
	} `json:"err"`
}

type bundleStatusesResult struct {
	Value []*BundleStatus `json:"value"`
}

// GetBundleStatuses asks the relay for the current status of the given
// bundle ids. Unknown bundles come back as nil entries.
func (c *Client) GetBundleStatuses(ctx context.Context, bundleIDs []string) ([]*BundleStatus, error) {
	var result bundleStatusesResult
	if err := c.call(ctx, "getBundleStatuses", []interface{}{bundleIDs}, &result); err != nil {
		return nil, fmt.Errorf("get bundle statuses: %w", err)
	}
	return result.Value, nil
}
