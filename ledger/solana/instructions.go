package solana

import (
	"context"
	"encoding/binary"
	"fmt"

	sol "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/pkg/errors"
)

// getAssociatedTokenAddress returns the token account address for a given
// token mint and owner, following the Associated Token Account Program
// conventions.
func getAssociatedTokenAddress(tokenMint, owner sol.PublicKey) (sol.PublicKey, error) {
	seeds := [][]byte{
		owner.Bytes(),
		sol.TokenProgramID.Bytes(),
		tokenMint.Bytes(),
	}

	addr, _, err := sol.FindProgramAddress(
		seeds,
		sol.SPLAssociatedTokenAccountProgramID,
	)

	return addr, err
}

// createAssociatedTokenAccountInstruction creates the instruction for ATA
// creation.
func createAssociatedTokenAccountInstruction(
	payer sol.PublicKey,
	associatedToken sol.PublicKey,
	owner sol.PublicKey,
	mint sol.PublicKey,
	ataProgram sol.PublicKey,
	tokenProgram sol.PublicKey,
) sol.Instruction {
	return sol.NewInstruction(
		ataProgram,
		sol.AccountMetaSlice{
			{PublicKey: payer, IsSigner: true, IsWritable: true},
			{PublicKey: associatedToken, IsSigner: false, IsWritable: true},
			{PublicKey: owner, IsSigner: false, IsWritable: false},
			{PublicKey: mint, IsSigner: false, IsWritable: false},
			{PublicKey: sol.SystemProgramID, IsSigner: false, IsWritable: false},
			{PublicKey: tokenProgram, IsSigner: false, IsWritable: false},
			{PublicKey: sol.SysVarRentPubkey, IsSigner: false, IsWritable: false},
		},
		[]byte{},
	)
}

// createTokenTransferInstruction creates a token-program transfer between
// two associated token accounts.
func createTokenTransferInstruction(
	source sol.PublicKey,
	destination sol.PublicKey,
	owner sol.PublicKey,
	amount uint64,
) sol.Instruction {
	data := make([]byte, 9) // 1 byte for instruction code + 8 bytes for amount
	data[0] = 3             // Transfer instruction code
	binary.LittleEndian.PutUint64(data[1:], amount)

	return sol.NewInstruction(
		sol.TokenProgramID,
		sol.AccountMetaSlice{
			{PublicKey: source, IsSigner: false, IsWritable: true},
			{PublicKey: destination, IsSigner: false, IsWritable: true},
			{PublicKey: owner, IsSigner: true, IsWritable: false},
		},
		data,
	)
}

// simulateTransaction simulates a transaction to calculate required compute
// units.
func simulateTransaction(ctx context.Context, client *rpc.Client, signer sol.PrivateKey, instructions []sol.Instruction, latestBlockHash sol.Hash) (uint64, error) {
	tx, err := sol.NewTransaction(
		instructions,
		latestBlockHash,
		sol.TransactionPayer(signer.PublicKey()),
	)
	if err != nil {
		return 0, errors.Wrap(err, "failed to create transaction")
	}

	_, err = tx.Sign(func(key sol.PublicKey) *sol.PrivateKey {
		if signer.PublicKey().Equals(key) {
			return &signer
		}
		return nil
	})
	if err != nil {
		return 0, errors.Wrap(err, "failed to sign transaction")
	}

	sim, err := client.SimulateTransaction(ctx, tx)
	if err != nil {
		return 0, errors.Wrap(err, "failed to simulate transaction")
	}

	if sim.Value.Err != nil {
		return 0, fmt.Errorf("simulation failed: %v", sim.Value.Err)
	}

	return *sim.Value.UnitsConsumed, nil
}
