// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package message

// Op is the type tag of a wire message
type Op byte

const (
	HandshakeOp Op = iota
	HandshakeAckOp
	PingOp
	PongOp
	TxBroadcastOp
	TxVoteRequestOp
	TxVoteResponseOp
	FinalityVoteOp
	BlockProposalOp
	PrepareVoteOp
	PrecommitVoteOp
	GetTipOp
	TipOp
	GetBlockOp
	BlockOp
)

func (op Op) String() string {
	switch op {
	case HandshakeOp:
		return "handshake"
	case HandshakeAckOp:
		return "handshake_ack"
	case PingOp:
		return "ping"
	case PongOp:
		return "pong"
	case TxBroadcastOp:
		return "tx_broadcast"
	case TxVoteRequestOp:
		return "tx_vote_request"
	case TxVoteResponseOp:
		return "tx_vote_response"
	case FinalityVoteOp:
		return "finality_vote"
	case BlockProposalOp:
		return "block_proposal"
	case PrepareVoteOp:
		return "prepare_vote"
	case PrecommitVoteOp:
		return "precommit_vote"
	case GetTipOp:
		return "get_tip"
	case TipOp:
		return "tip"
	case GetBlockOp:
		return "get_block"
	case BlockOp:
		return "block"
	default:
		return "unknown"
	}
}
