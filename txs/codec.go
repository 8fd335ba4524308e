// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package txs

import (
	"crypto/ed25519"
	"errors"
	"sort"

	"github.com/time-coin/timecoin/ids"
	"github.com/time-coin/timecoin/utils/constants"
	"github.com/time-coin/timecoin/utils/hashing"
	"github.com/time-coin/timecoin/utils/wrappers"
)

var errTrailingBytes = errors.New("trailing bytes after transaction")

// Initialize sorts the inputs into canonical order, computes the canonical
// serialization and the txid. The txid covers the unsigned form (outpoints,
// outputs, lock time) so that input signatures, which commit to the txid, do
// not feed back into it. Must be called before ID, Bytes or any signature
// operation.
func (tx *Tx) Initialize() error {
	sort.Slice(tx.Inputs, func(i, j int) bool {
		return tx.Inputs[i].UTXOID.Compare(tx.Inputs[j].UTXOID) < 0
	})

	unsigned := wrappers.Packer{MaxSize: constants.MaxTxSize}
	packTx(&unsigned, tx, false)
	if unsigned.Err != nil {
		return unsigned.Err
	}
	tx.id = ids.ID(hashing.ComputeHash256(unsigned.Bytes))

	signed := wrappers.Packer{MaxSize: constants.MaxTxSize}
	packTx(&signed, tx, true)
	if signed.Err != nil {
		return signed.Err
	}
	tx.bytes = signed.Bytes
	return nil
}

// Parse deserializes a canonical transaction and initializes it. The input
// ordering of the wire form is required to already be canonical; out-of-order
// inputs fail SyntacticVerify downstream.
func Parse(bytes []byte) (*Tx, error) {
	p := wrappers.Packer{Bytes: bytes, MaxSize: constants.MaxTxSize}
	tx := unpackTx(&p)
	if p.Err != nil {
		return nil, p.Err
	}
	if p.Offset != len(bytes) {
		return nil, errTrailingBytes
	}

	unsigned := wrappers.Packer{MaxSize: constants.MaxTxSize}
	packTx(&unsigned, tx, false)
	if unsigned.Err != nil {
		return nil, unsigned.Err
	}
	tx.id = ids.ID(hashing.ComputeHash256(unsigned.Bytes))
	tx.bytes = bytes
	return tx, nil
}

// packTx writes the canonical encoding. When [withSigs] is false the input
// signatures are omitted; that form is what the txid commits to.
func packTx(p *wrappers.Packer, tx *Tx, withSigs bool) {
	p.PackInt(tx.Version)
	p.PackInt(uint32(len(tx.Inputs)))
	for _, in := range tx.Inputs {
		p.PackFixedBytes(in.UTXOID.TxID.Bytes())
		p.PackInt(in.UTXOID.OutputIndex)
		if withSigs {
			p.PackBytes(in.Sig)
		}
	}
	p.PackInt(uint32(len(tx.Outputs)))
	for _, out := range tx.Outputs {
		p.PackLong(out.Value)
		p.PackBytes(out.PubKey)
	}
	p.PackLong(tx.LockTime)
}

func unpackTx(p *wrappers.Packer) *Tx {
	tx := &Tx{
		Version: p.UnpackInt(),
	}
	numInputs := p.UnpackInt()
	for i := uint32(0); i < numInputs && p.Err == nil; i++ {
		txID, _ := ids.ToID(p.UnpackFixedBytes(ids.IDLen))
		tx.Inputs = append(tx.Inputs, Input{
			UTXOID: UTXOID{
				TxID:        txID,
				OutputIndex: p.UnpackInt(),
			},
			Sig: p.UnpackLimitedBytes(ed25519.SignatureSize),
		})
	}
	numOutputs := p.UnpackInt()
	for i := uint32(0); i < numOutputs && p.Err == nil; i++ {
		tx.Outputs = append(tx.Outputs, Output{
			Value:  p.UnpackLong(),
			PubKey: p.UnpackLimitedBytes(ed25519.PublicKeySize),
		})
	}
	tx.LockTime = p.UnpackLong()
	return tx
}
