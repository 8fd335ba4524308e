// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package hashing

import "lukechampine.com/blake3"

const (
	// HashLen is the number of bytes in a content hash
	HashLen = 32

	// ChecksumLen is the number of checksum bytes appended to string encodings
	ChecksumLen = 4
)

// ComputeHash256 returns the BLAKE3 hash of [buf]. Every consensus-critical
// hash in the protocol goes through this function.
func ComputeHash256(buf []byte) [HashLen]byte {
	return blake3.Sum256(buf)
}

// ComputeHash256Array concatenates [bufs] and hashes the result.
func ComputeHash256Array(bufs ...[]byte) [HashLen]byte {
	h := blake3.New(HashLen, nil)
	for _, buf := range bufs {
		_, _ = h.Write(buf)
	}
	var out [HashLen]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Checksum returns the first [ChecksumLen] bytes of the hash of [b]
func Checksum(b []byte) []byte {
	hash := ComputeHash256(b)
	return hash[:ChecksumLen]
}
