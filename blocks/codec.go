// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package blocks

import (
	"crypto/ed25519"
	"errors"

	"github.com/time-coin/timecoin/ids"
	"github.com/time-coin/timecoin/txs"
	"github.com/time-coin/timecoin/utils/constants"
	"github.com/time-coin/timecoin/utils/hashing"
	"github.com/time-coin/timecoin/utils/wrappers"
)

const (
	maxVRFFieldLen = 128

	// maxBlockWireSize leaves headroom above the body cap for the header and
	// framing.
	maxBlockWireSize = constants.BlockMaxBytes + 4096
)

var errTrailingBytes = errors.New("trailing bytes after block")

// Initialize computes the canonical serialization and the block hash. The
// hash covers the header only; the header's merkle root commits to the body,
// and the leader signature commits to the hash.
func (b *Block) Initialize() error {
	header := wrappers.Packer{MaxSize: maxBlockWireSize}
	packHeader(&header, &b.Header)
	if header.Err != nil {
		return header.Err
	}
	b.id = ids.ID(hashing.ComputeHash256(header.Bytes))

	p := wrappers.Packer{MaxSize: maxBlockWireSize}
	packHeader(&p, &b.Header)
	p.PackBytes(b.Signature)
	p.PackInt(uint32(len(b.Txs)))
	for _, tx := range b.Txs {
		p.PackBytes(tx.Bytes())
	}
	if p.Err != nil {
		return p.Err
	}
	b.bytes = p.Bytes
	return nil
}

// Parse deserializes a canonical block and initializes it
func Parse(bytes []byte) (*Block, error) {
	p := wrappers.Packer{Bytes: bytes, MaxSize: maxBlockWireSize}
	b := &Block{}
	unpackHeader(&p, &b.Header)
	b.Signature = p.UnpackLimitedBytes(ed25519.SignatureSize)
	numTxs := p.UnpackInt()
	for i := uint32(0); i < numTxs && p.Err == nil; i++ {
		txBytes := p.UnpackLimitedBytes(constants.MaxTxSize)
		if p.Err != nil {
			break
		}
		tx, err := txs.Parse(txBytes)
		if err != nil {
			return nil, err
		}
		b.Txs = append(b.Txs, tx)
	}
	if p.Err != nil {
		return nil, p.Err
	}
	if p.Offset != len(bytes) {
		return nil, errTrailingBytes
	}
	return b, b.Initialize()
}

func packHeader(p *wrappers.Packer, h *Header) {
	p.PackInt(h.Version)
	p.PackLong(h.Height)
	p.PackFixedBytes(h.PrevHash.Bytes())
	p.PackFixedBytes(h.MerkleRoot.Bytes())
	p.PackLong(h.Timestamp)
	p.PackLong(h.SlotIndex)
	p.PackFixedBytes(h.Leader.Bytes())
	p.PackBytes(h.VRFOutput)
	p.PackBytes(h.VRFProof)
	p.PackLong(h.BlockReward)
}

func unpackHeader(p *wrappers.Packer, h *Header) {
	h.Version = p.UnpackInt()
	h.Height = p.UnpackLong()
	h.PrevHash, _ = ids.ToID(p.UnpackFixedBytes(ids.IDLen))
	h.MerkleRoot, _ = ids.ToID(p.UnpackFixedBytes(ids.IDLen))
	h.Timestamp = p.UnpackLong()
	h.SlotIndex = p.UnpackLong()
	h.Leader, _ = ids.ToNodeID(p.UnpackFixedBytes(ids.NodeIDLen))
	h.VRFOutput = p.UnpackLimitedBytes(maxVRFFieldLen)
	h.VRFProof = p.UnpackLimitedBytes(maxVRFFieldLen)
	h.BlockReward = p.UnpackLong()
}
