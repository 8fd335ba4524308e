// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package txs

import (
	"crypto/ed25519"
	"errors"

	"github.com/time-coin/timecoin/ids"
	"github.com/time-coin/timecoin/utils/constants"
	safemath "github.com/time-coin/timecoin/utils/math"
)

const Version uint32 = 1

var (
	ErrNoInputs        = errors.New("transaction has no inputs")
	ErrNoOutputs       = errors.New("transaction has no outputs")
	ErrTooLarge        = errors.New("transaction exceeds maximum size")
	ErrDuplicateInput  = errors.New("duplicate input outpoint")
	ErrDustOutput      = errors.New("output value below dust threshold")
	ErrZeroOutput      = errors.New("output value is zero")
	ErrInsufficientFee = errors.New("fee below minimum")
	ErrOutputsExceed   = errors.New("outputs exceed inputs")
	ErrBadPubKeyLen    = errors.New("script pubkey is not an ed25519 public key")
)

// UTXOID references output [OutputIndex] of the transaction [TxID]
type UTXOID struct {
	TxID        ids.ID `json:"txID"`
	OutputIndex uint32 `json:"outputIndex"`
}

// InputID returns the canonical identifier of the referenced outpoint
func (u UTXOID) InputID() ids.ID {
	return u.TxID.Prefix(uint64(u.OutputIndex))
}

// Compare orders outpoints by (TxID, OutputIndex). Inputs are sorted in this
// order before hashing, signing and lock acquisition.
func (u UTXOID) Compare(other UTXOID) int {
	if txIDComp := u.TxID.Compare(other.TxID); txIDComp != 0 {
		return txIDComp
	}
	switch {
	case u.OutputIndex < other.OutputIndex:
		return -1
	case u.OutputIndex > other.OutputIndex:
		return 1
	default:
		return 0
	}
}

// Input spends a referenced outpoint. Sig authorizes the spend against the
// outpoint's script pubkey.
type Input struct {
	UTXOID UTXOID `json:"utxoID"`
	Sig    []byte `json:"signature"`
}

// Output creates [Value] base units spendable by the holder of PubKey
type Output struct {
	Value  uint64 `json:"value"`
	PubKey []byte `json:"pubKey"`
}

// Tx is a value transfer. The zero-input form is the coinbase, which is only
// valid in block position zero.
type Tx struct {
	Version  uint32   `json:"version"`
	Inputs   []Input  `json:"inputs"`
	Outputs  []Output `json:"outputs"`
	LockTime uint64   `json:"lockTime"`

	// Populated by Initialize
	id    ids.ID
	bytes []byte
}

// ID returns the txid. The transaction must have been initialized.
func (tx *Tx) ID() ids.ID {
	return tx.id
}

// Bytes returns the canonical serialization. The transaction must have been
// initialized.
func (tx *Tx) Bytes() []byte {
	return tx.bytes
}

// Size returns the canonical serialized length in bytes
func (tx *Tx) Size() int {
	return len(tx.bytes)
}

// IsCoinbase reports whether this is a reward-minting transaction
func (tx *Tx) IsCoinbase() bool {
	return len(tx.Inputs) == 0
}

// InputUTXOIDs returns the outpoints consumed by this transaction, in the
// canonical sorted order.
func (tx *Tx) InputUTXOIDs() []UTXOID {
	utxoIDs := make([]UTXOID, len(tx.Inputs))
	for i, in := range tx.Inputs {
		utxoIDs[i] = in.UTXOID
	}
	return utxoIDs
}

// SumOutputs returns the total value created by this transaction
func (tx *Tx) SumOutputs() (uint64, error) {
	total := uint64(0)
	for _, out := range tx.Outputs {
		newTotal, err := safemath.Add64(total, out.Value)
		if err != nil {
			return 0, err
		}
		total = newTotal
	}
	return total, nil
}

// SyntacticVerify checks everything that can be checked without the ledger:
// structure, input ordering, dust and size bounds.
func (tx *Tx) SyntacticVerify() error {
	switch {
	case tx == nil:
		return ErrNoInputs
	case len(tx.Inputs) == 0 && !tx.IsCoinbase():
		return ErrNoInputs
	case len(tx.Outputs) == 0:
		return ErrNoOutputs
	case len(tx.bytes) > constants.MaxTxSize:
		return ErrTooLarge
	}

	for i, in := range tx.Inputs {
		if i > 0 && tx.Inputs[i-1].UTXOID.Compare(in.UTXOID) >= 0 {
			return ErrDuplicateInput
		}
	}
	for _, out := range tx.Outputs {
		if out.Value == 0 {
			return ErrZeroOutput
		}
		if out.Value < constants.MinDust {
			return ErrDustOutput
		}
		if len(out.PubKey) != ed25519.PublicKeySize {
			return ErrBadPubKeyLen
		}
	}
	return nil
}

// Fee returns inputValue - outputValue given the total value of the consumed
// outpoints. Errors if outputs exceed inputs or the fee is below MinTxFee.
// Coinbase transactions do not pay a fee.
func (tx *Tx) Fee(inputValue uint64) (uint64, error) {
	if tx.IsCoinbase() {
		return 0, nil
	}
	outputValue, err := tx.SumOutputs()
	if err != nil {
		return 0, err
	}
	fee, err := safemath.Sub(inputValue, outputValue)
	if err != nil {
		return 0, ErrOutputsExceed
	}
	if fee < constants.MinTxFee {
		return 0, ErrInsufficientFee
	}
	return fee, nil
}
