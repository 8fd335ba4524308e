// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package constants

import "time"

// Protocol-wide consensus constants. These are consensus critical: changing
// any of them partitions the node from the network.
const (
	// MinTxFee is the smallest fee a transaction may pay, in base units
	MinTxFee uint64 = 1

	// MinDust is the smallest value an output may carry, in base units
	MinDust uint64 = 1000

	// MaxTxSize bounds the serialized size of a transaction
	MaxTxSize = 100 * 1024

	// BlockMaxBytes bounds the serialized size of a block body
	BlockMaxBytes = 2 * 1024 * 1024

	// BlockTxLimit bounds the number of non-coinbase transactions per block
	BlockTxLimit = 4096

	// MaxReorgDepth bounds how far back a competing chain may fork
	MaxReorgDepth = 1000

	// MasternodeActiveThreshold is the minimum number of active validators
	// required for block production
	MasternodeActiveThreshold = 3

	// MinStake is the default stake required for validator admission
	MinStake uint64 = 1000

	// SnapshotWindow is how many slots of validator-set snapshots are retained
	SnapshotWindow = 100

	// DefaultShutdownGrace bounds how long tasks may take to wind down
	DefaultShutdownGrace = 10 * time.Second
)
