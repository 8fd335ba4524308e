// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package blocks

import (
	"crypto/ed25519"
	"errors"

	"github.com/time-coin/timecoin/ids"
	"github.com/time-coin/timecoin/txs"
	"github.com/time-coin/timecoin/utils/hashing"
)

const Version uint32 = 1

var (
	ErrNoCoinbase        = errors.New("block has no coinbase")
	ErrUnexpectedInputs  = errors.New("coinbase has inputs")
	ErrWrongMerkleRoot   = errors.New("merkle root mismatch")
	ErrInvalidBlockSig   = errors.New("invalid leader signature")
	ErrWrongVersion      = errors.New("unexpected block version")
	ErrTimestampSlotSkew = errors.New("timestamp outside slot window")
)

// Header commits to everything needed to validate a block without its body
type Header struct {
	Version     uint32     `json:"version"`
	Height      uint64     `json:"height"`
	PrevHash    ids.ID     `json:"prevHash"`
	MerkleRoot  ids.ID     `json:"merkleRoot"`
	Timestamp   uint64     `json:"timestamp"`
	SlotIndex   uint64     `json:"slotIndex"`
	Leader      ids.NodeID `json:"leader"`
	VRFOutput   []byte     `json:"vrfOutput"`
	VRFProof    []byte     `json:"vrfProof"`
	BlockReward uint64     `json:"blockReward"`
}

// Block packages Avalanche-finalized transactions for a slot. Txs[0] is the
// coinbase; the remainder are value transfers in deterministic fee order.
type Block struct {
	Header Header    `json:"header"`
	Txs    []*txs.Tx `json:"txs"`

	// Signature of the block hash by the leader's Ed25519 key
	Signature []byte `json:"signature"`

	// Populated by Initialize
	id    ids.ID
	bytes []byte
}

// ID returns the block hash. The block must have been initialized.
func (b *Block) ID() ids.ID {
	return b.id
}

// Bytes returns the canonical serialization. The block must have been
// initialized.
func (b *Block) Bytes() []byte {
	return b.bytes
}

// Coinbase returns the reward-minting transaction
func (b *Block) Coinbase() *txs.Tx {
	return b.Txs[0]
}

// NonCoinbaseTxs returns the value transfers carried by this block
func (b *Block) NonCoinbaseTxs() []*txs.Tx {
	return b.Txs[1:]
}

// TxIDs returns the ids of every transaction, coinbase first
func (b *Block) TxIDs() []ids.ID {
	txIDs := make([]ids.ID, len(b.Txs))
	for i, tx := range b.Txs {
		txIDs[i] = tx.ID()
	}
	return txIDs
}

// VerifyStructure checks the body against the header: coinbase placement,
// merkle commitment and version.
func (b *Block) VerifyStructure() error {
	switch {
	case b.Header.Version != Version:
		return ErrWrongVersion
	case len(b.Txs) == 0 || !b.Txs[0].IsCoinbase():
		return ErrNoCoinbase
	}
	for _, tx := range b.NonCoinbaseTxs() {
		if tx.IsCoinbase() {
			return ErrUnexpectedInputs
		}
	}
	if root := MerkleRoot(b.TxIDs()); root != b.Header.MerkleRoot {
		return ErrWrongMerkleRoot
	}
	return nil
}

// Sign records the leader's signature over the block hash
func (b *Block) Sign(key ed25519.PrivateKey) {
	b.Signature = ed25519.Sign(key, b.id.Bytes())
}

// VerifySignature checks the leader's signature against [pubKey]
func (b *Block) VerifySignature(pubKey ed25519.PublicKey) error {
	if len(pubKey) != ed25519.PublicKeySize ||
		len(b.Signature) != ed25519.SignatureSize ||
		!ed25519.Verify(pubKey, b.id.Bytes(), b.Signature) {
		return ErrInvalidBlockSig
	}
	return nil
}

// MerkleRoot computes the BLAKE3 binary merkle tree over [txIDs]. Odd levels
// duplicate their last node.
func MerkleRoot(txIDs []ids.ID) ids.ID {
	if len(txIDs) == 0 {
		return ids.Empty
	}
	level := make([]ids.ID, len(txIDs))
	copy(level, txIDs)
	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		next := level[:0]
		for i := 0; i < len(level); i += 2 {
			next = append(next, ids.ID(hashing.ComputeHash256Array(
				level[i].Bytes(),
				level[i+1].Bytes(),
			)))
		}
		level = next
	}
	return level[0]
}
