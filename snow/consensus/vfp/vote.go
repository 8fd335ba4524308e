// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package vfp

import (
	"crypto/ed25519"
	"errors"

	"github.com/time-coin/timecoin/ids"
	"github.com/time-coin/timecoin/utils/wrappers"
)

var ErrInvalidVoteSig = errors.New("finality vote signature invalid")

// FinalityVote is a signed statement that the voter observed [TxID] finalize
// in Avalanche at [SlotIndex]. The commitment pins the exact transaction
// bytes so a txid collision cannot transfer the vote.
type FinalityVote struct {
	ChainID      uint32     `json:"chainID"`
	TxID         ids.ID     `json:"txID"`
	TxCommitment ids.ID     `json:"txCommitment"`
	SlotIndex    uint64     `json:"slotIndex"`
	Voter        ids.NodeID `json:"voter"`
	VoterWeight  uint64     `json:"voterWeight"`
	Signature    []byte     `json:"signature"`
}

const maxVoteSize = 256

// signedBytes is the canonical message the signature covers
func (v *FinalityVote) signedBytes() []byte {
	p := wrappers.Packer{MaxSize: maxVoteSize}
	p.PackInt(v.ChainID)
	p.PackFixedBytes(v.TxID.Bytes())
	p.PackFixedBytes(v.TxCommitment.Bytes())
	p.PackLong(v.SlotIndex)
	p.PackFixedBytes(v.Voter.Bytes())
	p.PackLong(v.VoterWeight)
	return p.Bytes
}

// Sign fills in the vote signature
func (v *FinalityVote) Sign(key ed25519.PrivateKey) {
	v.Signature = ed25519.Sign(key, v.signedBytes())
}

// VerifySignature checks the vote against the voter's snapshot public key
func (v *FinalityVote) VerifySignature(publicKey ed25519.PublicKey) error {
	if len(publicKey) != ed25519.PublicKeySize ||
		len(v.Signature) != ed25519.SignatureSize ||
		!ed25519.Verify(publicKey, v.signedBytes(), v.Signature) {
		return ErrInvalidVoteSig
	}
	return nil
}

// Marshal returns the wire encoding of the vote
func (v *FinalityVote) Marshal() ([]byte, error) {
	p := wrappers.Packer{MaxSize: maxVoteSize}
	p.PackInt(v.ChainID)
	p.PackFixedBytes(v.TxID.Bytes())
	p.PackFixedBytes(v.TxCommitment.Bytes())
	p.PackLong(v.SlotIndex)
	p.PackFixedBytes(v.Voter.Bytes())
	p.PackLong(v.VoterWeight)
	p.PackBytes(v.Signature)
	return p.Bytes, p.Err
}

// UnmarshalVote parses a wire-encoded vote
func UnmarshalVote(bytes []byte) (*FinalityVote, error) {
	p := wrappers.Packer{Bytes: bytes, MaxSize: maxVoteSize}
	v := &FinalityVote{}
	v.ChainID = p.UnpackInt()
	v.TxID, _ = ids.ToID(p.UnpackFixedBytes(ids.IDLen))
	v.TxCommitment, _ = ids.ToID(p.UnpackFixedBytes(ids.IDLen))
	v.SlotIndex = p.UnpackLong()
	v.Voter, _ = ids.ToNodeID(p.UnpackFixedBytes(ids.NodeIDLen))
	v.VoterWeight = p.UnpackLong()
	v.Signature = p.UnpackLimitedBytes(ed25519.SignatureSize)
	return v, p.Err
}
