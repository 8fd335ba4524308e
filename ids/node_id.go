// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package ids

import (
	"bytes"
	"fmt"

	"github.com/mr-tron/base58"

	"github.com/time-coin/timecoin/utils/hashing"
)

const (
	NodeIDPrefix = "NodeID-"
	NodeIDLen    = 20
)

var errWrongNodeIDSize = fmt.Errorf("expected %d bytes", NodeIDLen)

// EmptyNodeID is a useful all-zero value
var EmptyNodeID = NodeID{}

// NodeID identifies a validator. It is the truncated hash of the validator's
// Ed25519 public key, so a peer cannot claim an identity it does not hold the
// key for.
type NodeID [NodeIDLen]byte

// NodeIDFromPublicKey derives the canonical node ID of an Ed25519 public key.
func NodeIDFromPublicKey(publicKey []byte) NodeID {
	hash := hashing.ComputeHash256(publicKey)
	var nodeID NodeID
	copy(nodeID[:], hash[:NodeIDLen])
	return nodeID
}

// ToNodeID attempts to convert a byte slice into a node ID
func ToNodeID(b []byte) (NodeID, error) {
	var nodeID NodeID
	if len(b) != NodeIDLen {
		return nodeID, errWrongNodeIDSize
	}
	copy(nodeID[:], b)
	return nodeID, nil
}

func (id NodeID) Bytes() []byte {
	return id[:]
}

func (id NodeID) String() string {
	withChecksum := make([]byte, NodeIDLen+hashing.ChecksumLen)
	copy(withChecksum, id[:])
	copy(withChecksum[NodeIDLen:], hashing.Checksum(id[:]))
	return NodeIDPrefix + base58.Encode(withChecksum)
}

// Compare returns a negative number, 0, or positive number if [id] is less
// than, equal to, or greater than [other].
func (id NodeID) Compare(other NodeID) int {
	return bytes.Compare(id[:], other[:])
}
