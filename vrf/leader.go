// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package vrf

import (
	"math/big"

	"github.com/time-coin/timecoin/ids"
	"github.com/time-coin/timecoin/utils/hashing"
	"github.com/time-coin/timecoin/utils/wrappers"
)

// leaderDomainTag separates leader-election VRF inputs from any other use of
// the same keys.
const leaderDomainTag = "TSDC-leader-selection"

// LeaderInput derives the slot's election input from the previous block hash
// and the slot index.
func LeaderInput(prevBlockHash ids.ID, slotIndex uint64) []byte {
	p := wrappers.Packer{MaxSize: 64 + len(leaderDomainTag)}
	p.PackFixedBytes(prevBlockHash.Bytes())
	p.PackLong(slotIndex)
	p.PackFixedBytes([]byte(leaderDomainTag))
	hash := hashing.ComputeHash256(p.Bytes)
	return hash[:]
}

// Score interprets a VRF output as a big-endian unsigned integer lottery
// ticket. Longer outputs are truncated to 32 bytes.
func Score(output []byte) *big.Int {
	if len(output) > 32 {
		output = output[:32]
	}
	return new(big.Int).SetBytes(output)
}

// CompareCandidates orders two leader candidates: higher VRF score wins, with
// ties broken by the lexicographically smaller node ID. Returns a positive
// number if candidate a wins, negative if b wins.
func CompareCandidates(outputA []byte, idA ids.NodeID, outputB []byte, idB ids.NodeID) int {
	if cmp := Score(outputA).Cmp(Score(outputB)); cmp != 0 {
		return cmp
	}
	// Smaller ID wins the tie, so invert the comparison.
	return idB.Compare(idA)
}
