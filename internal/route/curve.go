// =============================
// File: internal/route/curve.go
// =============================
package route

import (
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// curveAccountLen is the fixed size of a bonding-curve account:
// 8-byte discriminator, five little-endian u64 fields, one completion flag.
const curveAccountLen = 8 + 5*8 + 1

// DeriveBondingCurve computes the curve PDA and its associated token account
// for a mint. Both derivations are deterministic and need no RPC.
func DeriveBondingCurve(mint solana.PublicKey) (curve, associated solana.PublicKey, err error) {
	curve, _, err = solana.FindProgramAddress(
		[][]byte{[]byte("bonding-curve"), mint.Bytes()},
		PumpProgramID,
	)
	if err != nil {
		return solana.PublicKey{}, solana.PublicKey{}, fmt.Errorf("derive bonding curve: %w", err)
	}

	associated, _, err = solana.FindAssociatedTokenAddress(curve, mint)
	if err != nil {
		return solana.PublicKey{}, solana.PublicKey{}, fmt.Errorf("derive associated bonding curve: %w", err)
	}
	return curve, associated, nil
}

// ParseBondingCurve decodes a raw bonding-curve account.
func ParseBondingCurve(data []byte) (*BondingCurveState, error) {
	if len(data) < curveAccountLen {
		return nil, fmt.Errorf("bonding curve data too short: %d bytes", len(data))
	}

	pos := 8 // skip discriminator
	state := &BondingCurveState{}

	state.VirtualTokenReserves = binary.LittleEndian.Uint64(data[pos : pos+8])
	pos += 8
	state.VirtualSolReserves = binary.LittleEndian.Uint64(data[pos : pos+8])
	pos += 8
	state.RealTokenReserves = binary.LittleEndian.Uint64(data[pos : pos+8])
	pos += 8
	state.RealSolReserves = binary.LittleEndian.Uint64(data[pos : pos+8])
	pos += 8
	state.TokenTotalSupply = binary.LittleEndian.Uint64(data[pos : pos+8])
	pos += 8
	state.Complete = data[pos] != 0

	return state, nil
}
