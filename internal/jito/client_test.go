package jito

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func relayServer(t *testing.T, handler func(method string, params []json.RawMessage) (interface{}, *rpcError)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		result, rpcErr := handler(req.Method, req.Params)
		resp := map[string]interface{}{"jsonrpc": "2.0", "id": 1}
		if rpcErr != nil {
			resp["error"] = rpcErr
		} else {
			resp["result"] = result
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
}

func TestPrimeTipAccountsAndRandomPick(t *testing.T) {
	accounts := []string{
		solana.NewWallet().PublicKey().String(),
		solana.NewWallet().PublicKey().String(),
	}
	srv := relayServer(t, func(method string, _ []json.RawMessage) (interface{}, *rpcError) {
		require.Equal(t, "getTipAccounts", method)
		return accounts, nil
	})
	defer srv.Close()

	client := NewClient(srv.URL, zap.NewNop())
	require.NoError(t, client.PrimeTipAccounts(context.Background()))

	pick, err := client.RandomTipAccount()
	require.NoError(t, err)
	assert.Contains(t, accounts, pick.String())
}

func TestRandomTipAccountEmptyPool(t *testing.T) {
	client := NewClient("http://unused.invalid", zap.NewNop())

	_, err := client.RandomTipAccount()
	assert.True(t, errors.Is(err, ErrNoTipAccounts))
}

func TestSendBundleEncodesBase64(t *testing.T) {
	var gotParams []json.RawMessage
	srv := relayServer(t, func(method string, params []json.RawMessage) (interface{}, *rpcError) {
		require.Equal(t, "sendBundle", method)
		gotParams = params
		return "bundle-id-123", nil
	})
	defer srv.Close()

	payer := solana.NewWallet()
	tx, err := solana.NewTransaction(
		[]solana.Instruction{solana.NewInstruction(solana.SystemProgramID, []*solana.AccountMeta{
			{PublicKey: payer.PublicKey(), IsSigner: true, IsWritable: true},
		}, []byte{2, 0, 0, 0})},
		solana.Hash{},
		solana.TransactionPayer(payer.PublicKey()),
	)
	require.NoError(t, err)
	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		return &payer.PrivateKey
	})
	require.NoError(t, err)

	client := NewClient(srv.URL, zap.NewNop())
	id, err := client.SendBundle(context.Background(), []*solana.Transaction{tx})
	require.NoError(t, err)
	assert.Equal(t, "bundle-id-123", id)

	require.Len(t, gotParams, 2)
	var txs []string
	require.NoError(t, json.Unmarshal(gotParams[0], &txs))
	assert.Len(t, txs, 1)
	var opts map[string]string
	require.NoError(t, json.Unmarshal(gotParams[1], &opts))
	assert.Equal(t, "base64", opts["encoding"])
}

func TestGetBundleStatuses(t *testing.T) {
	srv := relayServer(t, func(method string, _ []json.RawMessage) (interface{}, *rpcError) {
		require.Equal(t, "getBundleStatuses", method)
		return map[string]interface{}{
			"value": []map[string]interface{}{{
				"bundle_id":           "b1",
				"transactions":        []string{"sig1"},
				"slot":                42,
				"confirmation_status": "confirmed",
			}},
		}, nil
	})
	defer srv.Close()

	client := NewClient(srv.URL, zap.NewNop())
	statuses, err := client.GetBundleStatuses(context.Background(), []string{"b1"})
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.Equal(t, "confirmed", statuses[0].ConfirmationStatus)
	assert.Equal(t, []string{"sig1"}, statuses[0].Transactions)
}

func TestRelayErrorSurfaced(t *testing.T) {
	srv := relayServer(t, func(_ string, _ []json.RawMessage) (interface{}, *rpcError) {
		return nil, &rpcError{Code: -32600, Message: "rate limited"}
	})
	defer srv.Close()

	client := NewClient(srv.URL, zap.NewNop())
	err := client.PrimeTipAccounts(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
}

func TestMalformedRelayResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, zap.NewNop())
	err := client.PrimeTipAccounts(context.Background())
	assert.True(t, errors.Is(err, ErrMalformedResponse))
}
