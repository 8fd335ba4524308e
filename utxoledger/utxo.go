// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package utxoledger

import (
	"crypto/ed25519"
	"errors"

	"github.com/time-coin/timecoin/ids"
	"github.com/time-coin/timecoin/txs"
	"github.com/time-coin/timecoin/utils/wrappers"
)

// State is the lifecycle position of an output
type State byte

const (
	Unspent State = iota
	Locked
	Spent
	Archived
)

func (s State) String() string {
	switch s {
	case Unspent:
		return "unspent"
	case Locked:
		return "locked"
	case Spent:
		return "spent"
	case Archived:
		return "archived"
	default:
		return "unknown"
	}
}

var errUnknownState = errors.New("unknown utxo state")

// UTXO is an output tracked by the ledger. At most one transaction may hold
// the lock at a time; the lock fields are only meaningful in states Locked
// and Spent.
type UTXO struct {
	UTXOID txs.UTXOID `json:"utxoID"`
	Value  uint64     `json:"value"`
	PubKey []byte     `json:"pubKey"`
	State  State      `json:"state"`

	// SpenderTxID is the transaction holding or having exercised the lock
	SpenderTxID ids.ID `json:"spenderTxID"`
	// AcquiredAt is the unix second the lock was taken
	AcquiredAt uint64 `json:"acquiredAt"`
}

// InputID returns the canonical outpoint key
func (u *UTXO) InputID() ids.ID {
	return u.UTXOID.InputID()
}

const maxUTXORecordSize = 256

func (u *UTXO) marshal() ([]byte, error) {
	p := wrappers.Packer{MaxSize: maxUTXORecordSize}
	p.PackFixedBytes(u.UTXOID.TxID.Bytes())
	p.PackInt(u.UTXOID.OutputIndex)
	p.PackLong(u.Value)
	p.PackBytes(u.PubKey)
	p.PackByte(byte(u.State))
	p.PackFixedBytes(u.SpenderTxID.Bytes())
	p.PackLong(u.AcquiredAt)
	return p.Bytes, p.Err
}

func unmarshalUTXO(bytes []byte) (*UTXO, error) {
	p := wrappers.Packer{Bytes: bytes, MaxSize: maxUTXORecordSize}
	u := &UTXO{}
	u.UTXOID.TxID, _ = ids.ToID(p.UnpackFixedBytes(ids.IDLen))
	u.UTXOID.OutputIndex = p.UnpackInt()
	u.Value = p.UnpackLong()
	u.PubKey = p.UnpackLimitedBytes(ed25519.PublicKeySize)
	u.State = State(p.UnpackByte())
	u.SpenderTxID, _ = ids.ToID(p.UnpackFixedBytes(ids.IDLen))
	u.AcquiredAt = p.UnpackLong()
	if p.Err != nil {
		return nil, p.Err
	}
	if u.State > Archived {
		return nil, errUnknownState
	}
	return u, nil
}
