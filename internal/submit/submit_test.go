package submit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ektovd/soltrader/internal/chain"
	"github.com/ektovd/soltrader/internal/jito"
	"github.com/ektovd/soltrader/internal/swap"
	"github.com/ektovd/soltrader/internal/wallet"
)

type fakeChain struct {
	sent      []*solana.Transaction
	simulated []*solana.Transaction
	simErr    interface{}
}

func (f *fakeChain) GetLatestBlockhash(_ context.Context) (solana.Hash, error) {
	return solana.Hash{1}, nil
}

func (f *fakeChain) SendTransaction(_ context.Context, tx *solana.Transaction) (solana.Signature, error) {
	f.sent = append(f.sent, tx)
	return solana.Signature{2}, nil
}

func (f *fakeChain) SimulateTransaction(_ context.Context, tx *solana.Transaction) (*chain.SimulationResult, error) {
	f.simulated = append(f.simulated, tx)
	return &chain.SimulationResult{Err: f.simErr, Logs: []string{"Program log: ok"}}, nil
}

type fakeRelay struct {
	tipAccounts []solana.PublicKey
	bundles     [][]*solana.Transaction
	statuses    []*jito.BundleStatus
}

func (f *fakeRelay) RandomTipAccount() (solana.PublicKey, error) {
	if len(f.tipAccounts) == 0 {
		return solana.PublicKey{}, jito.ErrNoTipAccounts
	}
	return f.tipAccounts[0], nil
}

func (f *fakeRelay) SendBundle(_ context.Context, txs []*solana.Transaction) (string, error) {
	f.bundles = append(f.bundles, txs)
	return "bundle-1", nil
}

func (f *fakeRelay) GetBundleStatuses(_ context.Context, _ []string) ([]*jito.BundleStatus, error) {
	return f.statuses, nil
}

type fixedTip uint64

func (t fixedTip) TipValue() (uint64, error) { return uint64(t), nil }

func testWallet(t *testing.T) *wallet.Wallet {
	t.Helper()
	w, err := wallet.New(base58.Encode(solana.NewWallet().PrivateKey))
	require.NoError(t, err)
	return w
}

func dummyPlan(w *wallet.Wallet) *swap.Plan {
	ix := solana.NewInstruction(solana.SystemProgramID, []*solana.AccountMeta{
		{PublicKey: w.PublicKey, IsSigner: true, IsWritable: true},
	}, []byte{2, 0, 0, 0, 1, 0, 0, 0, 0, 0, 0, 0})
	return &swap.Plan{Instructions: []solana.Instruction{ix}, SwapIndex: 0}
}

func TestSubmitDirectPrependsComputeBudget(t *testing.T) {
	w := testWallet(t)
	fc := &fakeChain{}
	s := NewSubmitter(fc, nil, nil, w, DefaultOptions(), zap.NewNop())

	sigs, err := s.SubmitDirect(context.Background(), dummyPlan(w))
	require.NoError(t, err)
	require.Len(t, sigs, 1)
	require.Len(t, fc.sent, 1)

	tx := fc.sent[0]
	require.GreaterOrEqual(t, len(tx.Message.Instructions), 3)
	// the first two instructions belong to the compute budget program
	for i := 0; i < 2; i++ {
		prog, err := tx.Message.Program(tx.Message.Instructions[i].ProgramIDIndex)
		require.NoError(t, err)
		assert.Equal(t, solana.ComputeBudget, prog)
	}
}

func TestSubmitDirectSimulateOnlySendsNothing(t *testing.T) {
	w := testWallet(t)
	fc := &fakeChain{}
	opts := DefaultOptions()
	opts.SimulateOnly = true
	s := NewSubmitter(fc, nil, nil, w, opts, zap.NewNop())

	sigs, err := s.SubmitDirect(context.Background(), dummyPlan(w))
	require.NoError(t, err)
	assert.Empty(t, sigs)
	assert.Empty(t, fc.sent)
	assert.Len(t, fc.simulated, 1)
}

func TestSubmitDirectSimulationFailureRejected(t *testing.T) {
	w := testWallet(t)
	fc := &fakeChain{simErr: map[string]interface{}{"InstructionError": []interface{}{0, "Custom"}}}
	opts := DefaultOptions()
	opts.SimulateOnly = true
	s := NewSubmitter(fc, nil, nil, w, opts, zap.NewNop())

	_, err := s.SubmitDirect(context.Background(), dummyPlan(w))
	assert.True(t, errors.Is(err, ErrTransactionRejected))
}

func TestSubmitBundleFailsBeforeRelayWhenNoTipAccounts(t *testing.T) {
	w := testWallet(t)
	fr := &fakeRelay{} // empty tip pool
	s := NewSubmitter(&fakeChain{}, fr, fixedTip(1_000_000), w, DefaultOptions(), zap.NewNop())

	_, err := s.SubmitBundle(context.Background(), dummyPlan(w))
	assert.True(t, errors.Is(err, jito.ErrNoTipAccounts))
	// nothing reached the relay
	assert.Empty(t, fr.bundles)
}

func TestSubmitBundleTwoOrderedTransactions(t *testing.T) {
	w := testWallet(t)
	tipAccount := solana.NewWallet().PublicKey()
	fr := &fakeRelay{
		tipAccounts: []solana.PublicKey{tipAccount},
		statuses: []*jito.BundleStatus{{
			ConfirmationStatus: "confirmed",
			Transactions:       []string{"sig-swap", "sig-tip"},
		}},
	}
	opts := DefaultOptions()
	opts.PollInterval = 5 * time.Millisecond
	opts.BundleTimeout = time.Second
	s := NewSubmitter(&fakeChain{}, fr, fixedTip(2_000_000), w, opts, zap.NewNop())

	sigs, err := s.SubmitBundle(context.Background(), dummyPlan(w))
	require.NoError(t, err)
	assert.Equal(t, []string{"sig-swap", "sig-tip"}, sigs)

	require.Len(t, fr.bundles, 1)
	bundle := fr.bundles[0]
	require.Len(t, bundle, 2)
	// swap first, tip second; the tip tx is a bare system transfer
	assert.Len(t, bundle[1].Message.Instructions, 1)
	prog, err := bundle[1].Message.Program(bundle[1].Message.Instructions[0].ProgramIDIndex)
	require.NoError(t, err)
	assert.Equal(t, solana.SystemProgramID, prog)
}

func TestSubmitBundleCapsTip(t *testing.T) {
	w := testWallet(t)
	tipAccount := solana.NewWallet().PublicKey()
	fr := &fakeRelay{
		tipAccounts: []solana.PublicKey{tipAccount},
		statuses:    []*jito.BundleStatus{{ConfirmationStatus: "confirmed", Transactions: []string{"s"}}},
	}
	opts := DefaultOptions()
	opts.PollInterval = 5 * time.Millisecond
	opts.BundleTimeout = time.Second
	// tip source asks for 1 SOL, far above the cap
	s := NewSubmitter(&fakeChain{}, fr, fixedTip(1_000_000_000), w, opts, zap.NewNop())

	_, err := s.SubmitBundle(context.Background(), dummyPlan(w))
	require.NoError(t, err)

	require.Len(t, fr.bundles, 1)
	tipTx := fr.bundles[0][1]
	data := tipTx.Message.Instructions[0].Data
	// system transfer layout: u32 index then u64 lamports
	lamports := uint64(data[4]) | uint64(data[5])<<8 | uint64(data[6])<<16 | uint64(data[7])<<24 |
		uint64(data[8])<<32 | uint64(data[9])<<40 | uint64(data[10])<<48 | uint64(data[11])<<56
	assert.Equal(t, uint64(jito.MaxTipLamports), lamports)
}

func TestEmptyPlanSubmitsNothing(t *testing.T) {
	w := testWallet(t)
	fc := &fakeChain{}
	fr := &fakeRelay{tipAccounts: []solana.PublicKey{solana.NewWallet().PublicKey()}}
	s := NewSubmitter(fc, fr, fixedTip(1), w, DefaultOptions(), zap.NewNop())

	sigs, err := s.SubmitDirect(context.Background(), &swap.Plan{Empty: true, SwapIndex: -1})
	require.NoError(t, err)
	assert.Empty(t, sigs)

	sigs, err = s.SubmitBundle(context.Background(), &swap.Plan{Empty: true, SwapIndex: -1})
	require.NoError(t, err)
	assert.Empty(t, sigs)
	assert.Empty(t, fc.sent)
	assert.Empty(t, fr.bundles)
}
