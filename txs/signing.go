// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package txs

import (
	"crypto/ed25519"
	"errors"

	"github.com/time-coin/timecoin/ids"
	"github.com/time-coin/timecoin/utils/hashing"
	"github.com/time-coin/timecoin/utils/wrappers"
)

var ErrInvalidSignature = errors.New("invalid input signature")

// SigHash returns the message signed for input [inputIndex]. It binds the
// txid, the input position, the outpoint, and the value and owner of the
// consumed output, so a signature cannot be replayed against any other spend.
func SigHash(txID ids.ID, inputIndex uint32, utxoID UTXOID, value uint64, pubKey []byte) []byte {
	p := wrappers.Packer{MaxSize: 256}
	p.PackFixedBytes(txID.Bytes())
	p.PackInt(inputIndex)
	p.PackFixedBytes(utxoID.TxID.Bytes())
	p.PackInt(utxoID.OutputIndex)
	p.PackLong(value)
	p.PackBytes(pubKey)
	hash := hashing.ComputeHash256(p.Bytes)
	return hash[:]
}

// SignInput produces the signature for input [inputIndex] spending an output
// of [value] owned by the public key of [key].
func SignInput(key ed25519.PrivateKey, txID ids.ID, inputIndex uint32, utxoID UTXOID, value uint64) []byte {
	pubKey := key.Public().(ed25519.PublicKey)
	return ed25519.Sign(key, SigHash(txID, inputIndex, utxoID, value, pubKey))
}

// VerifyInputSignature checks input [inputIndex] of [tx] against the consumed
// output's value and owner.
func VerifyInputSignature(tx *Tx, inputIndex uint32, value uint64, pubKey []byte) error {
	if int(inputIndex) >= len(tx.Inputs) {
		return ErrInvalidSignature
	}
	in := tx.Inputs[inputIndex]
	if len(pubKey) != ed25519.PublicKeySize || len(in.Sig) != ed25519.SignatureSize {
		return ErrInvalidSignature
	}
	msg := SigHash(tx.ID(), inputIndex, in.UTXOID, value, pubKey)
	if !ed25519.Verify(ed25519.PublicKey(pubKey), msg, in.Sig) {
		return ErrInvalidSignature
	}
	return nil
}
