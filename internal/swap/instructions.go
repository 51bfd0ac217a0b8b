// =============================
// File: internal/swap/instructions.go
// =============================
package swap

import (
	"encoding/binary"

	"github.com/gagliardetto/solana-go"

	"github.com/ektovd/soltrader/internal/route"
)

// Anchor instruction discriminators shared by the curve and pool programs.
var (
	buyDiscriminator  = []byte{102, 6, 61, 18, 1, 218, 235, 234}
	sellDiscriminator = []byte{51, 230, 133, 164, 1, 127, 131, 173}
)

// swapData packs a discriminator plus two little-endian u64 arguments, the
// shape both programs use for their swap instructions.
func swapData(discriminator []byte, amount1, amount2 uint64) []byte {
	data := make([]byte, 8+8+8)
	copy(data[0:8], discriminator)
	binary.LittleEndian.PutUint64(data[8:16], amount1)
	binary.LittleEndian.PutUint64(data[16:24], amount2)
	return data
}

// buildCurveBuy builds a bonding-curve buy: args (token_amount_out,
// max_sol_cost). Account order is fixed by the program.
func buildCurveBuy(curve *route.BondingCurveState, mint, user, userATA solana.PublicKey, tokensOut, maxSolCost uint64) solana.Instruction {
	data := swapData(buyDiscriminator, tokensOut, maxSolCost)

	accounts := []*solana.AccountMeta{
		{PublicKey: route.PumpGlobal, IsSigner: false, IsWritable: false},
		{PublicKey: route.PumpFeeRecipient, IsSigner: false, IsWritable: true},
		{PublicKey: mint, IsSigner: false, IsWritable: false},
		{PublicKey: curve.Address, IsSigner: false, IsWritable: true},
		{PublicKey: curve.AssociatedBondingCurve, IsSigner: false, IsWritable: true},
		{PublicKey: userATA, IsSigner: false, IsWritable: true},
		{PublicKey: user, IsSigner: true, IsWritable: true},
		{PublicKey: solana.SystemProgramID, IsSigner: false, IsWritable: false},
		{PublicKey: solana.TokenProgramID, IsSigner: false, IsWritable: false},
		{PublicKey: solana.SysVarRentPubkey, IsSigner: false, IsWritable: false},
		{PublicKey: route.PumpEventAuthority, IsSigner: false, IsWritable: false},
		{PublicKey: route.PumpProgramID, IsSigner: false, IsWritable: false},
	}
	return solana.NewInstruction(route.PumpProgramID, accounts, data)
}

// buildCurveSell builds a bonding-curve sell: args (token_amount_in,
// min_sol_output). Differs from buy only in the tenth slot.
func buildCurveSell(curve *route.BondingCurveState, mint, user, userATA solana.PublicKey, tokensIn, minSolOut uint64) solana.Instruction {
	data := swapData(sellDiscriminator, tokensIn, minSolOut)

	accounts := []*solana.AccountMeta{
		{PublicKey: route.PumpGlobal, IsSigner: false, IsWritable: false},
		{PublicKey: route.PumpFeeRecipient, IsSigner: false, IsWritable: true},
		{PublicKey: mint, IsSigner: false, IsWritable: false},
		{PublicKey: curve.Address, IsSigner: false, IsWritable: true},
		{PublicKey: curve.AssociatedBondingCurve, IsSigner: false, IsWritable: true},
		{PublicKey: userATA, IsSigner: false, IsWritable: true},
		{PublicKey: user, IsSigner: true, IsWritable: true},
		{PublicKey: solana.SystemProgramID, IsSigner: false, IsWritable: false},
		{PublicKey: solana.TokenProgramID, IsSigner: false, IsWritable: false},
		{PublicKey: solana.SPLAssociatedTokenAccountProgramID, IsSigner: false, IsWritable: false},
		{PublicKey: route.PumpEventAuthority, IsSigner: false, IsWritable: false},
		{PublicKey: route.PumpProgramID, IsSigner: false, IsWritable: false},
	}
	return solana.NewInstruction(route.PumpProgramID, accounts, data)
}

// poolSwapAccounts is everything the pooled-market swap instruction needs
// beyond the two amounts.
type poolSwapAccounts struct {
	pool         *route.PooledMarketState
	user         solana.PublicKey
	userBaseATA  solana.PublicKey
	userQuoteATA solana.PublicKey
}

// buildPoolSwap builds a pooled-market swap instruction. isBuy selects the
// discriminator: buy args are (base_amount_out, max_quote_amount_in), sell
// args (base_amount_in, min_quote_amount_out). Nineteen accounts in program
// order.
func buildPoolSwap(acc poolSwapAccounts, isBuy bool, amount1, amount2 uint64) (solana.Instruction, error) {
	discriminator := sellDiscriminator
	if isBuy {
		discriminator = buyDiscriminator
	}
	data := swapData(discriminator, amount1, amount2)

	eventAuthority, _, err := solana.FindProgramAddress(
		[][]byte{[]byte("__event_authority")}, route.PoolProgramID)
	if err != nil {
		return nil, err
	}
	creatorVaultAuthority, _, err := solana.FindProgramAddress(
		[][]byte{[]byte("creator_vault"), acc.pool.CoinCreator.Bytes()}, route.PoolProgramID)
	if err != nil {
		return nil, err
	}
	creatorVaultATA, _, err := solana.FindAssociatedTokenAddress(creatorVaultAuthority, acc.pool.QuoteMint)
	if err != nil {
		return nil, err
	}
	feeRecipientATA, _, err := solana.FindAssociatedTokenAddress(acc.pool.FeeRecipient, acc.pool.QuoteMint)
	if err != nil {
		return nil, err
	}

	accounts := []*solana.AccountMeta{
		solana.NewAccountMeta(acc.pool.Address, false, false),
		solana.NewAccountMeta(acc.user, true, true),
		solana.NewAccountMeta(acc.pool.GlobalConfig, false, false),
		solana.NewAccountMeta(acc.pool.BaseMint, false, false),
		solana.NewAccountMeta(acc.pool.QuoteMint, false, false),
		solana.NewAccountMeta(acc.userBaseATA, true, false),
		solana.NewAccountMeta(acc.userQuoteATA, true, false),
		solana.NewAccountMeta(acc.pool.BaseVault, true, false),
		solana.NewAccountMeta(acc.pool.QuoteVault, true, false),
		solana.NewAccountMeta(acc.pool.FeeRecipient, false, false),
		solana.NewAccountMeta(feeRecipientATA, true, false),
		solana.NewAccountMeta(solana.TokenProgramID, false, false),
		solana.NewAccountMeta(solana.TokenProgramID, false, false),
		solana.NewAccountMeta(solana.SystemProgramID, false, false),
		solana.NewAccountMeta(solana.SPLAssociatedTokenAccountProgramID, false, false),
		solana.NewAccountMeta(eventAuthority, false, false),
		solana.NewAccountMeta(route.PoolProgramID, false, false),
		solana.NewAccountMeta(creatorVaultATA, true, false),
		solana.NewAccountMeta(creatorVaultAuthority, false, false),
	}
	return solana.NewInstruction(route.PoolProgramID, accounts, data), nil
}

// buildCreateATAIdempotent creates the owner's associated token account for
// mint if it does not exist yet. Instruction code 1 is the idempotent
// variant.
func buildCreateATAIdempotent(payer, owner, mint solana.PublicKey) (solana.Instruction, error) {
	ata, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return nil, err
	}
	accounts := []*solana.AccountMeta{
		{PublicKey: payer, IsSigner: true, IsWritable: true},
		{PublicKey: ata, IsSigner: false, IsWritable: true},
		{PublicKey: owner, IsSigner: false, IsWritable: false},
		{PublicKey: mint, IsSigner: false, IsWritable: false},
		{PublicKey: solana.SystemProgramID, IsSigner: false, IsWritable: false},
		{PublicKey: solana.TokenProgramID, IsSigner: false, IsWritable: false},
	}
	return solana.NewInstruction(solana.SPLAssociatedTokenAccountProgramID, accounts, []byte{1}), nil
}

// buildSyncNative updates a wrapped-SOL account's token balance to match its
// lamports after a transfer. Token program instruction 17.
func buildSyncNative(wsolATA solana.PublicKey) solana.Instruction {
	return solana.NewInstruction(
		solana.TokenProgramID,
		[]*solana.AccountMeta{
			{PublicKey: wsolATA, IsSigner: false, IsWritable: true},
		},
		[]byte{17},
	)
}

// buildCloseAccount closes a token account, returning its rent lamports to
// the owner. Token program instruction 9.
func buildCloseAccount(account, destination, owner solana.PublicKey) solana.Instruction {
	return solana.NewInstruction(
		solana.TokenProgramID,
		[]*solana.AccountMeta{
			{PublicKey: account, IsSigner: false, IsWritable: true},
			{PublicKey: destination, IsSigner: false, IsWritable: true},
			{PublicKey: owner, IsSigner: true, IsWritable: false},
		},
		[]byte{9},
	)
}
