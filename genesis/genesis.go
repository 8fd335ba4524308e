// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package genesis

import (
	"encoding/hex"
	"fmt"

	"github.com/time-coin/timecoin/blocks"
	"github.com/time-coin/timecoin/ids"
	"github.com/time-coin/timecoin/txs"
	"github.com/time-coin/timecoin/utils/constants"
	"github.com/time-coin/timecoin/utxoledger"
)

// Allocation grants an initial balance to a public key at genesis
type Allocation struct {
	PubKeyHex string
	Amount    uint64
}

// Params describes one network's genesis
type Params struct {
	NetworkID   uint32
	ChainID     uint32
	Timestamp   uint64
	Allocations []Allocation
}

// GetParams returns the genesis parameters of [networkID]
func GetParams(networkID uint32) (*Params, error) {
	switch networkID {
	case constants.MainnetID:
		return &mainnetParams, nil
	case constants.TestnetID:
		return &testnetParams, nil
	case constants.DevnetID:
		return &devnetParams, nil
	default:
		return nil, fmt.Errorf("no genesis for network %d", networkID)
	}
}

// Build constructs the deterministic genesis block of [params]. Every node
// of the network must produce the identical block; its hash is
// consensus-critical and checked during every handshake.
func Build(params *Params) (*blocks.Block, error) {
	outputs := make([]txs.Output, len(params.Allocations))
	for i, alloc := range params.Allocations {
		pubKey, err := hex.DecodeString(alloc.PubKeyHex)
		if err != nil {
			return nil, fmt.Errorf("allocation %d: %w", i, err)
		}
		outputs[i] = txs.Output{Value: alloc.Amount, PubKey: pubKey}
	}
	coinbase := &txs.Tx{
		Version: txs.Version,
		Outputs: outputs,
	}
	if err := coinbase.Initialize(); err != nil {
		return nil, err
	}

	blk := &blocks.Block{
		Header: blocks.Header{
			Version:    blocks.Version,
			Height:     0,
			PrevHash:   ids.Empty,
			MerkleRoot: blocks.MerkleRoot([]ids.ID{coinbase.ID()}),
			Timestamp:  params.Timestamp,
			SlotIndex:  0,
		},
		Txs: []*txs.Tx{coinbase},
	}
	return blk, blk.Initialize()
}

// InitialUTXOs returns the ledger records the genesis block creates
func InitialUTXOs(genesis *blocks.Block) []*utxoledger.UTXO {
	coinbase := genesis.Coinbase()
	utxos := make([]*utxoledger.UTXO, len(coinbase.Outputs))
	for i, out := range coinbase.Outputs {
		utxos[i] = &utxoledger.UTXO{
			UTXOID: txs.UTXOID{TxID: coinbase.ID(), OutputIndex: uint32(i)},
			Value:  out.Value,
			PubKey: out.PubKey,
		}
	}
	return utxos
}
