// =============================
// File: internal/submit/submit.go
// =============================
package submit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	computebudget "github.com/gagliardetto/solana-go/programs/compute-budget"
	"github.com/gagliardetto/solana-go/programs/system"
	"go.uber.org/zap"

	"github.com/ektovd/soltrader/internal/chain"
	"github.com/ektovd/soltrader/internal/jito"
	"github.com/ektovd/soltrader/internal/swap"
	"github.com/ektovd/soltrader/internal/wallet"
)

// ErrTransactionRejected means the chain or the simulator refused the
// transaction outright.
var ErrTransactionRejected = errors.New("transaction rejected")

// ChainSubmitter is the chain access the submitter needs.
type ChainSubmitter interface {
	GetLatestBlockhash(ctx context.Context) (solana.Hash, error)
	SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
	SimulateTransaction(ctx context.Context, tx *solana.Transaction) (*chain.SimulationResult, error)
}

// Relay is the bundle-relay surface the submitter needs.
type Relay interface {
	RandomTipAccount() (solana.PublicKey, error)
	SendBundle(ctx context.Context, txs []*solana.Transaction) (string, error)
	GetBundleStatuses(ctx context.Context, bundleIDs []string) ([]*jito.BundleStatus, error)
}

// TipSource prices the tip for the next bundle.
type TipSource interface {
	TipValue() (uint64, error)
}

// Options tunes the submitter.
type Options struct {
	ComputeUnitLimit uint32
	ComputeUnitPrice uint64
	SimulateOnly     bool
	PollInterval     time.Duration
	BundleTimeout    time.Duration
}

// DefaultOptions mirror the config defaults.
func DefaultOptions() Options {
	return Options{
		ComputeUnitLimit: 200_000,
		ComputeUnitPrice: 20_000,
		PollInterval:     2 * time.Second,
		BundleTimeout:    60 * time.Second,
	}
}

// Submitter turns instruction plans into landed transactions, either
// directly against the chain or as a tipped bundle through a relay.
type Submitter struct {
	chain  ChainSubmitter
	relay  Relay
	tips   TipSource
	wallet *wallet.Wallet
	opts   Options
	logger *zap.Logger
}

// NewSubmitter builds a submitter. relay and tips may be nil when the
// bundled path is not configured.
func NewSubmitter(c ChainSubmitter, relay Relay, tips TipSource, w *wallet.Wallet, opts Options, logger *zap.Logger) *Submitter {
	if opts.PollInterval == 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.BundleTimeout == 0 {
		opts.BundleTimeout = 60 * time.Second
	}
	return &Submitter{
		chain:  c,
		relay:  relay,
		tips:   tips,
		wallet: w,
		opts:   opts,
		logger: logger.Named("submit"),
	}
}

// SubmitDirect sends the plan as one transaction with compute-budget
// instructions prepended. Returns the transaction signature. In
// simulate-only mode nothing is sent and the signature list is empty.
func (s *Submitter) SubmitDirect(ctx context.Context, plan *swap.Plan) ([]string, error) {
	if plan.Empty {
		return nil, nil
	}

	instructions := make([]solana.Instruction, 0, len(plan.Instructions)+2)
	instructions = append(instructions,
		computebudget.NewSetComputeUnitLimitInstruction(s.opts.ComputeUnitLimit).Build(),
		computebudget.NewSetComputeUnitPriceInstruction(s.opts.ComputeUnitPrice).Build(),
	)
	instructions = append(instructions, plan.Instructions...)

	tx, err := s.signedTransaction(ctx, instructions)
	if err != nil {
		return nil, err
	}

	if s.opts.SimulateOnly {
		return nil, s.simulate(ctx, tx)
	}

	sig, err := s.chain.SendTransaction(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrTransactionRejected, err)
	}

	s.logger.Info("transaction sent", zap.String("signature", sig.String()))
	return []string{sig.String()}, nil
}

// SubmitBundle sends the plan as a tipped two-transaction bundle: the swap
// first, then a tip transfer. Blocks until the bundle reaches a terminal
// state and returns the landed transaction signatures.
//
// The tip account is picked before anything touches the network, so an
// unprimed pool fails fast with ErrNoTipAccounts.
func (s *Submitter) SubmitBundle(ctx context.Context, plan *swap.Plan) ([]string, error) {
	if plan.Empty {
		return nil, nil
	}
	if s.relay == nil || s.tips == nil {
		return nil, errors.New("bundle submission not configured")
	}

	tip, err := s.tips.TipValue()
	if err != nil {
		return nil, err
	}
	if tip > jito.MaxTipLamports {
		s.logger.Warn("tip capped",
			zap.Uint64("requested", tip), zap.Uint64("cap", jito.MaxTipLamports))
		tip = jito.MaxTipLamports
	}

	tipAccount, err := s.relay.RandomTipAccount()
	if err != nil {
		return nil, err
	}

	// no compute-budget prepend on the bundled path: bundle auctions are
	// won by tips, not priority fees
	swapTx, err := s.signedTransaction(ctx, plan.Instructions)
	if err != nil {
		return nil, err
	}
	tipTx, err := s.signedTransaction(ctx, []solana.Instruction{
		system.NewTransferInstruction(tip, s.wallet.PublicKey, tipAccount).Build(),
	})
	if err != nil {
		return nil, err
	}

	bundleID, err := s.relay.SendBundle(ctx, []*solana.Transaction{swapTx, tipTx})
	if err != nil {
		return nil, err
	}

	s.logger.Info("bundle submitted, waiting for confirmation",
		zap.String("bundle_id", bundleID),
		zap.Uint64("tip_lamports", tip),
		zap.String("tip_account", tipAccount.String()))

	return jito.WaitForBundle(ctx, s.relay.GetBundleStatuses, bundleID,
		s.opts.PollInterval, s.opts.BundleTimeout, s.logger)
}

// signedTransaction assembles and signs one transaction over a fresh
// blockhash.
func (s *Submitter) signedTransaction(ctx context.Context, instructions []solana.Instruction) (*solana.Transaction, error) {
	blockhash, err := s.chain.GetLatestBlockhash(ctx)
	if err != nil {
		return nil, fmt.Errorf("get blockhash: %w", err)
	}

	tx, err := solana.NewTransaction(instructions, blockhash,
		solana.TransactionPayer(s.wallet.PublicKey))
	if err != nil {
		return nil, fmt.Errorf("build transaction: %w", err)
	}
	if err := s.wallet.SignTransaction(tx); err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}
	return tx, nil
}

// simulate runs the transaction through the simulator and logs the program
// output. A simulation error maps to ErrTransactionRejected.
func (s *Submitter) simulate(ctx context.Context, tx *solana.Transaction) error {
	result, err := s.chain.SimulateTransaction(ctx, tx)
	if err != nil {
		return fmt.Errorf("simulate: %w", err)
	}
	for _, line := range result.Logs {
		s.logger.Info("simulation log", zap.String("line", line))
	}
	if result.Err != nil {
		return fmt.Errorf("%w: simulation failed: %v", ErrTransactionRejected, result.Err)
	}
	s.logger.Info("simulation succeeded", zap.Uint64("units_consumed", result.UnitsConsumed))
	return nil
}
