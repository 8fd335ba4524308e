// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package ids

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/mr-tron/base58"

	"github.com/time-coin/timecoin/utils/hashing"
)

const IDLen = 32

var (
	// Empty is a useful all-zero value
	Empty = ID{}

	errWrongIDSize = fmt.Errorf("expected %d bytes", IDLen)
)

// ID wraps a 32 byte content hash used as the universal identifier of
// transactions, blocks and outpoints.
type ID [IDLen]byte

// ToID attempts to convert a byte slice into an id
func ToID(b []byte) (ID, error) {
	var id ID
	if len(b) != IDLen {
		return id, errWrongIDSize
	}
	copy(id[:], b)
	return id, nil
}

// FromString is the inverse of ID.String()
func FromString(s string) (ID, error) {
	b, err := base58.Decode(s)
	if err != nil {
		return Empty, err
	}
	if len(b) < hashing.ChecksumLen {
		return Empty, fmt.Errorf("missing checksum in %q", s)
	}
	payload := b[:len(b)-hashing.ChecksumLen]
	if !bytes.Equal(b[len(b)-hashing.ChecksumLen:], hashing.Checksum(payload)) {
		return Empty, fmt.Errorf("invalid checksum in %q", s)
	}
	return ToID(payload)
}

// Prefix returns a new ID by hashing this ID prepended with [prefixes]. Used to
// derive the outpoint ID of output [i] of a transaction as txID.Prefix(i).
func (id ID) Prefix(prefixes ...uint64) ID {
	packed := make([]byte, 8*len(prefixes)+IDLen)
	for i, prefix := range prefixes {
		binary.BigEndian.PutUint64(packed[8*i:], prefix)
	}
	copy(packed[8*len(prefixes):], id[:])
	return ID(hashing.ComputeHash256(packed))
}

func (id ID) Bytes() []byte {
	return id[:]
}

func (id ID) Hex() string {
	return hex.EncodeToString(id[:])
}

func (id ID) String() string {
	withChecksum := make([]byte, IDLen+hashing.ChecksumLen)
	copy(withChecksum, id[:])
	copy(withChecksum[IDLen:], hashing.Checksum(id[:]))
	return base58.Encode(withChecksum)
}

// Compare returns a negative number, 0, or positive number if [id] is less
// than, equal to, or greater than [other].
func (id ID) Compare(other ID) int {
	return bytes.Compare(id[:], other[:])
}
