// =============================
// File: internal/route/registry.go
// =============================
package route

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
)

// Registry queries an off-chain pool index over HTTP. It is a fallback for
// the on-chain scan: the index can lag the chain, so hits are re-fetched and
// re-validated on-chain before use.
type Registry struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// NewRegistry builds a registry client. baseURL has no trailing slash.
func NewRegistry(baseURL string, logger *zap.Logger) *Registry {
	return &Registry{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
		logger:  logger.Named("registry"),
	}
}

// registryEnvelope is the index's response wrapper.
type registryEnvelope struct {
	ID      string          `json:"id"`
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
}

type registryPoolPage struct {
	Count int                 `json:"count"`
	Data  []registryPoolEntry `json:"data"`
}

type registryPoolEntry struct {
	ID    string `json:"id"`
	MintA struct {
		Address  string `json:"address"`
		Decimals uint8  `json:"decimals"`
	} `json:"mintA"`
	MintB struct {
		Address  string `json:"address"`
		Decimals uint8  `json:"decimals"`
	} `json:"mintB"`
}

// PoolsByMints returns candidate pool addresses for a mint pair, best first.
func (r *Registry) PoolsByMints(ctx context.Context, mint1, mint2 solana.PublicKey) ([]solana.PublicKey, error) {
	q := url.Values{}
	q.Set("mint1", mint1.String())
	q.Set("mint2", mint2.String())
	q.Set("poolType", "standard")
	q.Set("poolSortField", "default")
	q.Set("sortType", "desc")
	q.Set("pageSize", "10")
	q.Set("page", "1")

	var page registryPoolPage
	if err := r.get(ctx, "/pools/info/mint", q, &page); err != nil {
		return nil, err
	}

	pools := make([]solana.PublicKey, 0, len(page.Data))
	for _, entry := range page.Data {
		pk, err := solana.PublicKeyFromBase58(entry.ID)
		if err != nil {
			r.logger.Debug("registry returned malformed pool id", zap.String("id", entry.ID))
			continue
		}
		pools = append(pools, pk)
	}
	return pools, nil
}

// PoolsByIDs looks up specific pools in the index.
func (r *Registry) PoolsByIDs(ctx context.Context, ids []solana.PublicKey) ([]solana.PublicKey, error) {
	joined := ""
	for i, id := range ids {
		if i > 0 {
			joined += ","
		}
		joined += id.String()
	}
	q := url.Values{}
	q.Set("ids", joined)

	var entries []registryPoolEntry
	if err := r.get(ctx, "/pools/info/ids", q, &entries); err != nil {
		return nil, err
	}

	pools := make([]solana.PublicKey, 0, len(entries))
	for _, entry := range entries {
		pk, err := solana.PublicKeyFromBase58(entry.ID)
		if err != nil {
			continue
		}
		pools = append(pools, pk)
	}
	return pools, nil
}

func (r *Registry) get(ctx context.Context, path string, q url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("build registry request: %w", err)
	}

	resp, err := r.http.Do(req)
	if err != nil {
		return fmt.Errorf("registry request %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("registry %s returned status %d", path, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read registry response: %w", err)
	}

	var envelope registryEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("decode registry envelope: %w", err)
	}
	if !envelope.Success {
		return fmt.Errorf("registry %s reported failure", path)
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("decode registry payload: %w", err)
	}
	return nil
}
