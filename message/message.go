// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package message

import (
	"errors"
	"io"

	"github.com/time-coin/timecoin/ids"
	"github.com/time-coin/timecoin/utils/wrappers"
)

const (
	// MaxFrameLen bounds one wire frame; oversize frames close the
	// connection.
	MaxFrameLen = 10 * 1024 * 1024

	frameHeaderLen = 4
)

var (
	ErrFrameTooLarge = errors.New("frame exceeds maximum length")
	ErrBadFrame      = errors.New("malformed frame")
)

// Message is one framed wire message. RequestID correlates requests with
// responses; Nonce feeds replay protection on broadcast-type messages.
type Message struct {
	Op        Op
	RequestID uint32
	Nonce     uint64
	Payload   []byte
}

// Marshal returns the frame body (without the length prefix)
func (m *Message) Marshal() ([]byte, error) {
	p := wrappers.Packer{MaxSize: MaxFrameLen}
	p.PackByte(byte(m.Op))
	p.PackInt(m.RequestID)
	p.PackLong(m.Nonce)
	p.PackBytes(m.Payload)
	return p.Bytes, p.Err
}

// Unmarshal parses a frame body
func Unmarshal(bytes []byte) (*Message, error) {
	p := wrappers.Packer{Bytes: bytes, MaxSize: MaxFrameLen}
	m := &Message{
		Op:        Op(p.UnpackByte()),
		RequestID: p.UnpackInt(),
		Nonce:     p.UnpackLong(),
		Payload:   p.UnpackBytes(),
	}
	if p.Err != nil {
		return nil, ErrBadFrame
	}
	return m, nil
}

// WriteFrame writes a length-prefixed frame to [w]
func WriteFrame(w io.Writer, m *Message) error {
	body, err := m.Marshal()
	if err != nil {
		return err
	}
	if len(body) > MaxFrameLen {
		return ErrFrameTooLarge
	}
	header := wrappers.Packer{MaxSize: frameHeaderLen}
	header.PackInt(uint32(len(body)))
	if _, err := w.Write(header.Bytes); err != nil {
		return err
	}
	_, err = w.Write(body)
	return err
}

// ReadFrame reads one length-prefixed frame from [r]
func ReadFrame(r io.Reader) (*Message, error) {
	header := make([]byte, frameHeaderLen)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}
	p := wrappers.Packer{Bytes: header, MaxSize: frameHeaderLen}
	length := p.UnpackInt()
	if length > MaxFrameLen {
		return nil, ErrFrameTooLarge
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	return Unmarshal(body)
}

// Handshake opens every connection: it binds the peer's key to its network,
// genesis and advertised stake. The signature covers the magic, versions and
// challenge nonce.
type Handshake struct {
	Magic           string
	ProtocolVersion uint32
	NetworkName     string
	ChainID         uint32
	GenesisHash     ids.ID
	PublicKey       []byte
	Stake           uint64
	ChallengeNonce  uint64
	Signature       []byte
}

// Magic is the protocol identifier every handshake leads with
const Magic = "TIME"

const maxHandshakeSize = 1024

// SignedBytes is the portion of the handshake the signature covers
func (h *Handshake) SignedBytes() []byte {
	p := wrappers.Packer{MaxSize: maxHandshakeSize}
	p.PackStr(h.Magic)
	p.PackInt(h.ProtocolVersion)
	p.PackStr(h.NetworkName)
	p.PackInt(h.ChainID)
	p.PackFixedBytes(h.GenesisHash.Bytes())
	p.PackBytes(h.PublicKey)
	p.PackLong(h.Stake)
	p.PackLong(h.ChallengeNonce)
	return p.Bytes
}

func (h *Handshake) Marshal() ([]byte, error) {
	p := wrappers.Packer{MaxSize: maxHandshakeSize}
	p.PackStr(h.Magic)
	p.PackInt(h.ProtocolVersion)
	p.PackStr(h.NetworkName)
	p.PackInt(h.ChainID)
	p.PackFixedBytes(h.GenesisHash.Bytes())
	p.PackBytes(h.PublicKey)
	p.PackLong(h.Stake)
	p.PackLong(h.ChallengeNonce)
	p.PackBytes(h.Signature)
	return p.Bytes, p.Err
}

func UnmarshalHandshake(bytes []byte) (*Handshake, error) {
	p := wrappers.Packer{Bytes: bytes, MaxSize: maxHandshakeSize}
	h := &Handshake{}
	h.Magic = p.UnpackStr()
	h.ProtocolVersion = p.UnpackInt()
	h.NetworkName = p.UnpackStr()
	h.ChainID = p.UnpackInt()
	h.GenesisHash, _ = ids.ToID(p.UnpackFixedBytes(ids.IDLen))
	h.PublicKey = p.UnpackLimitedBytes(64)
	h.Stake = p.UnpackLong()
	h.ChallengeNonce = p.UnpackLong()
	h.Signature = p.UnpackLimitedBytes(64)
	if p.Err != nil {
		return nil, ErrBadFrame
	}
	return h, nil
}

// VoteRequest asks a peer for its preference on a transaction
type VoteRequest struct {
	TxID ids.ID
}

func (v *VoteRequest) Marshal() []byte {
	return v.TxID.Bytes()
}

func UnmarshalVoteRequest(bytes []byte) (*VoteRequest, error) {
	txID, err := ids.ToID(bytes)
	if err != nil {
		return nil, ErrBadFrame
	}
	return &VoteRequest{TxID: txID}, nil
}

// VoteResponse answers a VoteRequest
type VoteResponse struct {
	TxID   ids.ID
	Accept bool
}

func (v *VoteResponse) Marshal() ([]byte, error) {
	p := wrappers.Packer{MaxSize: ids.IDLen + wrappers.BoolLen}
	p.PackFixedBytes(v.TxID.Bytes())
	p.PackBool(v.Accept)
	return p.Bytes, p.Err
}

func UnmarshalVoteResponse(bytes []byte) (*VoteResponse, error) {
	p := wrappers.Packer{Bytes: bytes, MaxSize: ids.IDLen + wrappers.BoolLen}
	v := &VoteResponse{}
	v.TxID, _ = ids.ToID(p.UnpackFixedBytes(ids.IDLen))
	v.Accept = p.UnpackBool()
	if p.Err != nil {
		return nil, ErrBadFrame
	}
	return v, nil
}

// Tip reports a peer's chain head
type Tip struct {
	Height      uint64
	TipHash     ids.ID
	GenesisHash ids.ID
}

func (t *Tip) Marshal() ([]byte, error) {
	p := wrappers.Packer{MaxSize: wrappers.LongLen + 2*ids.IDLen}
	p.PackLong(t.Height)
	p.PackFixedBytes(t.TipHash.Bytes())
	p.PackFixedBytes(t.GenesisHash.Bytes())
	return p.Bytes, p.Err
}

func UnmarshalTip(bytes []byte) (*Tip, error) {
	p := wrappers.Packer{Bytes: bytes, MaxSize: wrappers.LongLen + 2*ids.IDLen}
	t := &Tip{}
	t.Height = p.UnpackLong()
	t.TipHash, _ = ids.ToID(p.UnpackFixedBytes(ids.IDLen))
	t.GenesisHash, _ = ids.ToID(p.UnpackFixedBytes(ids.IDLen))
	if p.Err != nil {
		return nil, ErrBadFrame
	}
	return t, nil
}

// GetBlock requests the block at a height
type GetBlock struct {
	Height uint64
}

func (g *GetBlock) Marshal() []byte {
	p := wrappers.Packer{MaxSize: wrappers.LongLen}
	p.PackLong(g.Height)
	return p.Bytes
}

func UnmarshalGetBlock(bytes []byte) (*GetBlock, error) {
	p := wrappers.Packer{Bytes: bytes, MaxSize: wrappers.LongLen}
	g := &GetBlock{Height: p.UnpackLong()}
	if p.Err != nil {
		return nil, ErrBadFrame
	}
	return g, nil
}
