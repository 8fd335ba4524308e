// Copyright (C) 2019-2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package wrappers

import (
	"encoding/binary"
	"errors"
)

const (
	ByteLen  = 1
	IntLen   = 4
	LongLen  = 8
	BoolLen  = 1
	IntSize  = IntLen
	LongSize = LongLen
)

var (
	ErrInsufficientLength = errors.New("packer has insufficient length for input")
	errBadLength          = errors.New("packer has insufficient length for byte slice")
	errOversized          = errors.New("size is larger than limit")
	errBadBool            = errors.New("unexpected value when unpacking bool")
)

// Packer packs and unpacks the canonical big-endian, length-prefixed binary
// encoding shared by transactions, blocks and wire messages. The encoding is
// consensus critical: two nodes must produce byte-identical serializations.
type Packer struct {
	// The maximum size Bytes can grow to while packing
	MaxSize int
	// The current byte array being worked on
	Bytes []byte
	// Offset that is being written to in the byte array
	Offset int
	// Whether any of the operations have errored
	Err error
}

// CheckSpace requires the remaining space in the byte array to be at least [bytes]
func (p *Packer) CheckSpace(bytes int) {
	switch {
	case p.Err != nil:
	case bytes < 0:
		p.Err = errBadLength
	case len(p.Bytes)-p.Offset < bytes:
		p.Err = ErrInsufficientLength
	}
}

// Expand ensures the byte array has at least [bytes] of headroom, growing it
// if allowed by MaxSize.
func (p *Packer) Expand(bytes int) {
	neededSize := bytes + p.Offset
	switch {
	case p.Err != nil:
		return
	case neededSize <= len(p.Bytes):
		return
	case neededSize > p.MaxSize:
		p.Err = ErrInsufficientLength
		return
	case neededSize <= cap(p.Bytes):
		p.Bytes = p.Bytes[:neededSize]
		return
	default:
		p.Bytes = append(p.Bytes[:cap(p.Bytes)], make([]byte, neededSize-cap(p.Bytes))...)
	}
}

func (p *Packer) PackByte(val byte) {
	p.Expand(ByteLen)
	if p.Err != nil {
		return
	}
	p.Bytes[p.Offset] = val
	p.Offset++
}

func (p *Packer) UnpackByte() byte {
	p.CheckSpace(ByteLen)
	if p.Err != nil {
		return 0
	}
	val := p.Bytes[p.Offset]
	p.Offset++
	return val
}

func (p *Packer) PackInt(val uint32) {
	p.Expand(IntLen)
	if p.Err != nil {
		return
	}
	binary.BigEndian.PutUint32(p.Bytes[p.Offset:], val)
	p.Offset += IntLen
}

func (p *Packer) UnpackInt() uint32 {
	p.CheckSpace(IntLen)
	if p.Err != nil {
		return 0
	}
	val := binary.BigEndian.Uint32(p.Bytes[p.Offset:])
	p.Offset += IntLen
	return val
}

func (p *Packer) PackLong(val uint64) {
	p.Expand(LongLen)
	if p.Err != nil {
		return
	}
	binary.BigEndian.PutUint64(p.Bytes[p.Offset:], val)
	p.Offset += LongLen
}

func (p *Packer) UnpackLong() uint64 {
	p.CheckSpace(LongLen)
	if p.Err != nil {
		return 0
	}
	val := binary.BigEndian.Uint64(p.Bytes[p.Offset:])
	p.Offset += LongLen
	return val
}

func (p *Packer) PackBool(b bool) {
	if b {
		p.PackByte(1)
	} else {
		p.PackByte(0)
	}
}

func (p *Packer) UnpackBool() bool {
	b := p.UnpackByte()
	switch b {
	case 0:
		return false
	case 1:
		return true
	default:
		if p.Err == nil {
			p.Err = errBadBool
		}
		return false
	}
}

// PackFixedBytes appends [bytes] without a length prefix
func (p *Packer) PackFixedBytes(bytes []byte) {
	p.Expand(len(bytes))
	if p.Err != nil {
		return
	}
	copy(p.Bytes[p.Offset:], bytes)
	p.Offset += len(bytes)
}

// UnpackFixedBytes reads [size] bytes without a length prefix
func (p *Packer) UnpackFixedBytes(size int) []byte {
	p.CheckSpace(size)
	if p.Err != nil {
		return nil
	}
	bytes := p.Bytes[p.Offset : p.Offset+size]
	p.Offset += size
	return bytes
}

// PackBytes appends [bytes] prefixed with its length as a uint32
func (p *Packer) PackBytes(bytes []byte) {
	p.PackInt(uint32(len(bytes)))
	p.PackFixedBytes(bytes)
}

// UnpackBytes reads a uint32 length prefix and then that many bytes. The
// length is bounded by the remaining buffer, so a corrupt prefix cannot force
// an allocation.
func (p *Packer) UnpackBytes() []byte {
	size := p.UnpackInt()
	return p.UnpackFixedBytes(int(size))
}

// UnpackLimitedBytes reads a length-prefixed byte slice, erroring if the
// prefix exceeds [limit]
func (p *Packer) UnpackLimitedBytes(limit uint32) []byte {
	size := p.UnpackInt()
	if p.Err == nil && size > limit {
		p.Err = errOversized
		return nil
	}
	return p.UnpackFixedBytes(int(size))
}

func (p *Packer) PackStr(s string) {
	p.PackBytes([]byte(s))
}

func (p *Packer) UnpackStr() string {
	return string(p.UnpackBytes())
}
