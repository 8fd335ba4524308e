// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package chainstore

import (
	"fmt"

	"github.com/time-coin/timecoin/blocks"
	"github.com/time-coin/timecoin/ids"
	"github.com/time-coin/timecoin/txs"
	"github.com/time-coin/timecoin/utxoledger"
)

// LedgerWriter is the slice of the UTXO ledger the chain needs to apply and
// unapply committed blocks.
type LedgerWriter interface {
	Get(utxoID txs.UTXOID) (*utxoledger.UTXO, error)
	TryLock(utxoID txs.UTXOID, spender ids.ID) error
	CommitSpends(spender ids.ID, inputs []txs.UTXOID, newOutputs []*utxoledger.UTXO) error
	Archive(spends map[ids.ID][]txs.UTXOID) error
	AddUTXOs(utxos []*utxoledger.UTXO) error
	Rollback(spender ids.ID, consumed []*utxoledger.UTXO, created []txs.UTXOID) error
}

// outputsOf materializes a transaction's outputs as ledger records
func outputsOf(tx *txs.Tx) []*utxoledger.UTXO {
	outputs := make([]*utxoledger.UTXO, len(tx.Outputs))
	for i, out := range tx.Outputs {
		outputs[i] = &utxoledger.UTXO{
			UTXOID: txs.UTXOID{TxID: tx.ID(), OutputIndex: uint32(i)},
			Value:  out.Value,
			PubKey: out.PubKey,
		}
	}
	return outputs
}

// ApplyBlock pushes a committed block's state changes into the ledger: every
// input moves to Archived through Spent, every output is created Unspent.
// Used for synced and replayed blocks, whose inputs are not pre-locked by
// the local mempool.
func ApplyBlock(ledger LedgerWriter, blk *blocks.Block) error {
	if err := ledger.AddUTXOs(outputsOf(blk.Coinbase())); err != nil {
		return err
	}
	spends := make(map[ids.ID][]txs.UTXOID, len(blk.Txs)-1)
	for _, tx := range blk.NonCoinbaseTxs() {
		inputs := tx.InputUTXOIDs()
		for _, utxoID := range inputs {
			if err := ledger.TryLock(utxoID, tx.ID()); err != nil {
				return fmt.Errorf("applying %s: %w", tx.ID(), err)
			}
		}
		if err := ledger.CommitSpends(tx.ID(), inputs, outputsOf(tx)); err != nil {
			return fmt.Errorf("applying %s: %w", tx.ID(), err)
		}
		spends[tx.ID()] = inputs
	}
	return ledger.Archive(spends)
}

// UnapplyBlock reverses ApplyBlock during a reorg, walking the block's
// transactions newest first. The ledger returns to its pre-block state.
func UnapplyBlock(ledger LedgerWriter, blk *blocks.Block) error {
	nonCoinbase := blk.NonCoinbaseTxs()
	for i := len(nonCoinbase) - 1; i >= 0; i-- {
		tx := nonCoinbase[i]
		consumed := make([]*utxoledger.UTXO, 0, len(tx.Inputs))
		for _, utxoID := range tx.InputUTXOIDs() {
			record, err := ledger.Get(utxoID)
			if err != nil {
				return fmt.Errorf("unapplying %s: %w", tx.ID(), err)
			}
			consumed = append(consumed, record)
		}
		created := make([]txs.UTXOID, len(tx.Outputs))
		for vout := range tx.Outputs {
			created[vout] = txs.UTXOID{TxID: tx.ID(), OutputIndex: uint32(vout)}
		}
		if err := ledger.Rollback(tx.ID(), consumed, created); err != nil {
			return err
		}
	}

	coinbase := blk.Coinbase()
	created := make([]txs.UTXOID, len(coinbase.Outputs))
	for vout := range coinbase.Outputs {
		created[vout] = txs.UTXOID{TxID: coinbase.ID(), OutputIndex: uint32(vout)}
	}
	return ledger.Rollback(coinbase.ID(), nil, created)
}
