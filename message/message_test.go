// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package message

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/time-coin/timecoin/ids"
)

func TestMessageRoundTrip(t *testing.T) {
	require := require.New(t)

	msg := &Message{
		Op:        BlockProposalOp,
		RequestID: 7,
		Nonce:     99,
		Payload:   []byte("block-bytes"),
	}
	encoded, err := msg.Marshal()
	require.NoError(err)
	decoded, err := Unmarshal(encoded)
	require.NoError(err)
	require.Equal(msg, decoded)
}

func TestFrameRoundTrip(t *testing.T) {
	require := require.New(t)

	var buf bytes.Buffer
	msg := &Message{Op: GetTipOp, RequestID: 3}
	require.NoError(WriteFrame(&buf, msg))

	decoded, err := ReadFrame(&buf)
	require.NoError(err)
	require.Equal(msg.Op, decoded.Op)
	require.Equal(msg.RequestID, decoded.RequestID)
}

func TestReadFrameRejectsOversize(t *testing.T) {
	require := require.New(t)

	// a length prefix beyond the cap closes the connection path
	var buf bytes.Buffer
	buf.Write([]byte{0xff, 0xff, 0xff, 0xff})
	_, err := ReadFrame(&buf)
	require.ErrorIs(err, ErrFrameTooLarge)
}

func TestVoteRequestResponse(t *testing.T) {
	require := require.New(t)

	req := &VoteRequest{TxID: ids.ID{0x01}}
	parsedReq, err := UnmarshalVoteRequest(req.Marshal())
	require.NoError(err)
	require.Equal(req, parsedReq)

	resp := &VoteResponse{TxID: ids.ID{0x02}, Accept: true}
	respBytes, err := resp.Marshal()
	require.NoError(err)
	parsedResp, err := UnmarshalVoteResponse(respBytes)
	require.NoError(err)
	require.Equal(resp, parsedResp)
}

func TestTipRoundTrip(t *testing.T) {
	require := require.New(t)

	tip := &Tip{Height: 22, TipHash: ids.ID{0xaa}, GenesisHash: ids.ID{0xbb}}
	tipBytes, err := tip.Marshal()
	require.NoError(err)
	parsed, err := UnmarshalTip(tipBytes)
	require.NoError(err)
	require.Equal(tip, parsed)

	get := &GetBlock{Height: 5}
	parsedGet, err := UnmarshalGetBlock(get.Marshal())
	require.NoError(err)
	require.Equal(get, parsedGet)
}
